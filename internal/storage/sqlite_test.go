package storage

import (
	"errors"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_AppliesMigrations(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(versions) == 0 {
		t.Fatal("no migrations applied")
	}
	if versions[0] != 1 {
		t.Errorf("first migration version = %d, want 1", versions[0])
	}
}

func TestSaveAndGetMovie(t *testing.T) {
	s := openTestStore(t)

	in := Movie{
		Title:       "Parasite",
		ReleaseYear: 2019,
		Director:    "Bong Joon-ho",
		Genre:       "Thriller",
		Actors:      "Song Kang-ho",
		Runtime:     132,
		Rating:      5,
		Review:      "Razor-sharp class satire.",
	}
	id, err := s.SaveMovie(in)
	if err != nil {
		t.Fatalf("SaveMovie: %v", err)
	}
	if id <= 0 {
		t.Fatalf("id = %d, want positive", id)
	}

	got, err := s.GetMovie(id)
	if err != nil {
		t.Fatalf("GetMovie: %v", err)
	}
	if got.Title != in.Title || got.ReleaseYear != in.ReleaseYear || got.Rating != in.Rating {
		t.Errorf("got %+v, want fields of %+v", got, in)
	}
	if got.IsTMDB {
		t.Error("user-entered movie flagged as TMDB")
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("timestamps not stamped")
	}
}

func TestGetMovie_NotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetMovie(999)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdateMovie(t *testing.T) {
	s := openTestStore(t)

	id, err := s.SaveMovie(Movie{Title: "Old", ReleaseYear: 1990, Genre: "Drama", Rating: 2})
	if err != nil {
		t.Fatalf("SaveMovie: %v", err)
	}

	err = s.UpdateMovie(Movie{ID: id, Title: "New", ReleaseYear: 1991, Genre: "Comedy", Rating: 4})
	if err != nil {
		t.Fatalf("UpdateMovie: %v", err)
	}

	got, err := s.GetMovie(id)
	if err != nil {
		t.Fatalf("GetMovie: %v", err)
	}
	if got.Title != "New" || got.Genre != "Comedy" || got.Rating != 4 {
		t.Errorf("update not applied: %+v", got)
	}
}

func TestUpdateMovie_NotFound(t *testing.T) {
	s := openTestStore(t)
	err := s.UpdateMovie(Movie{ID: 999, Title: "X", ReleaseYear: 2000, Genre: "Drama", Rating: 3})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteMovie_CascadesVector(t *testing.T) {
	s := openTestStore(t)

	id, err := s.SaveMovie(Movie{Title: "Doomed", ReleaseYear: 2000, Genre: "Horror", Rating: 1})
	if err != nil {
		t.Fatalf("SaveMovie: %v", err)
	}
	if _, err := s.db.Exec(
		"INSERT INTO movie_vectors (movie_id, embedding, updated_at) VALUES (?, ?, ?)",
		id, []byte{0, 0, 128, 63}, "2026-01-01T00:00:00Z"); err != nil {
		t.Fatalf("inserting vector: %v", err)
	}

	if err := s.DeleteMovie(id); err != nil {
		t.Fatalf("DeleteMovie: %v", err)
	}

	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM movie_vectors WHERE movie_id = ?", id).Scan(&count); err != nil {
		t.Fatalf("counting vectors: %v", err)
	}
	if count != 0 {
		t.Errorf("vector row survived movie deletion")
	}
}

func TestDeleteMovie_NotFound(t *testing.T) {
	s := openTestStore(t)
	if err := s.DeleteMovie(999); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListMovies_SearchAndFilter(t *testing.T) {
	s := openTestStore(t)

	mustSave := func(m Movie) {
		t.Helper()
		if _, err := s.SaveMovie(m); err != nil {
			t.Fatalf("SaveMovie: %v", err)
		}
	}
	mustSave(Movie{Title: "Alien", ReleaseYear: 1979, Genre: "Sci-Fi", Rating: 5, Director: "Ridley Scott"})
	mustSave(Movie{Title: "Aliens", ReleaseYear: 1986, Genre: "Sci-Fi", Rating: 5, Director: "James Cameron"})
	if _, err := s.UpsertByTMDBID(Movie{Title: "Avatar", ReleaseYear: 2009, Genre: "Sci-Fi", TMDBID: 19995}); err != nil {
		t.Fatalf("UpsertByTMDBID: %v", err)
	}

	bySearch, err := s.ListMovies(ListOptions{Search: "Alien"})
	if err != nil {
		t.Fatalf("ListMovies: %v", err)
	}
	if len(bySearch) != 2 {
		t.Errorf("search 'Alien' returned %d movies, want 2", len(bySearch))
	}

	byDirector, err := s.ListMovies(ListOptions{Search: "Cameron"})
	if err != nil {
		t.Fatalf("ListMovies: %v", err)
	}
	if len(byDirector) != 1 {
		t.Errorf("search 'Cameron' returned %d movies, want 1", len(byDirector))
	}

	tmdbOnly, err := s.ListMovies(ListOptions{Filter: "tmdb"})
	if err != nil {
		t.Fatalf("ListMovies: %v", err)
	}
	if len(tmdbOnly) != 1 || tmdbOnly[0].Title != "Avatar" {
		t.Errorf("filter 'tmdb' returned %+v, want only Avatar", tmdbOnly)
	}

	userOnly, err := s.ListMovies(ListOptions{Filter: "user"})
	if err != nil {
		t.Fatalf("ListMovies: %v", err)
	}
	if len(userOnly) != 2 {
		t.Errorf("filter 'user' returned %d movies, want 2", len(userOnly))
	}
}

func TestListMovies_SortAndLimit(t *testing.T) {
	s := openTestStore(t)

	for _, m := range []Movie{
		{Title: "B-Movie", ReleaseYear: 2010, Genre: "Drama", Rating: 2},
		{Title: "A-Movie", ReleaseYear: 2020, Genre: "Drama", Rating: 5},
		{Title: "C-Movie", ReleaseYear: 2015, Genre: "Drama", Rating: 4},
	} {
		if _, err := s.SaveMovie(m); err != nil {
			t.Fatalf("SaveMovie: %v", err)
		}
	}

	byTitle, err := s.ListMovies(ListOptions{Sort: "title"})
	if err != nil {
		t.Fatalf("ListMovies: %v", err)
	}
	if byTitle[0].Title != "A-Movie" || byTitle[2].Title != "C-Movie" {
		t.Errorf("title sort order wrong: %s, %s, %s", byTitle[0].Title, byTitle[1].Title, byTitle[2].Title)
	}

	byRating, err := s.ListMovies(ListOptions{Sort: "rating", Limit: 2})
	if err != nil {
		t.Fatalf("ListMovies: %v", err)
	}
	if len(byRating) != 2 {
		t.Fatalf("limit 2 returned %d movies", len(byRating))
	}
	if byRating[0].Rating != 5 {
		t.Errorf("top rated = %d, want 5", byRating[0].Rating)
	}
}

func TestAllMovies_AscendingID(t *testing.T) {
	s := openTestStore(t)

	for _, title := range []string{"First", "Second", "Third"} {
		if _, err := s.SaveMovie(Movie{Title: title, ReleaseYear: 2000, Genre: "Drama", Rating: 3}); err != nil {
			t.Fatalf("SaveMovie: %v", err)
		}
	}

	all, err := s.AllMovies()
	if err != nil {
		t.Fatalf("AllMovies: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d movies, want 3", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].ID <= all[i-1].ID {
			t.Errorf("IDs not ascending: %d after %d", all[i].ID, all[i-1].ID)
		}
	}
}

func TestUpsertByTMDBID_PreservesUserFields(t *testing.T) {
	s := openTestStore(t)

	first, err := s.UpsertByTMDBID(Movie{Title: "Dune", ReleaseYear: 2021, Genre: "Sci-Fi", TMDBID: 438631})
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if !first.IsTMDB {
		t.Error("upserted movie not flagged as TMDB")
	}
	if first.Rating != 3 {
		t.Errorf("default rating = %d, want 3", first.Rating)
	}

	// User rates and reviews the synced movie.
	first.Rating = 5
	first.Review = "Stunning."
	if err := s.UpdateMovie(first); err != nil {
		t.Fatalf("UpdateMovie: %v", err)
	}

	// A later sync must not clobber the user's rating or review.
	second, err := s.UpsertByTMDBID(Movie{Title: "Dune: Part One", ReleaseYear: 2021, Genre: "Sci-Fi", TMDBID: 438631})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("upsert created a new row: %d != %d", second.ID, first.ID)
	}
	if second.Title != "Dune: Part One" {
		t.Errorf("title not refreshed: %q", second.Title)
	}
	if second.Rating != 5 || second.Review != "Stunning." {
		t.Errorf("user fields clobbered: rating %d, review %q", second.Rating, second.Review)
	}
}

func TestUpsertByTMDBID_RequiresID(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.UpsertByTMDBID(Movie{Title: "No ID", ReleaseYear: 2000, Genre: "Drama"}); err == nil {
		t.Error("expected error for zero TMDB ID")
	}
}

func TestCountMovies(t *testing.T) {
	s := openTestStore(t)

	count, err := s.CountMovies()
	if err != nil {
		t.Fatalf("CountMovies: %v", err)
	}
	if count != 0 {
		t.Errorf("empty catalog count = %d", count)
	}

	if _, err := s.SaveMovie(Movie{Title: "One", ReleaseYear: 2000, Genre: "Drama", Rating: 3}); err != nil {
		t.Fatalf("SaveMovie: %v", err)
	}
	count, err = s.CountMovies()
	if err != nil {
		t.Fatalf("CountMovies: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}
