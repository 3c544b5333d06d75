package tmdb

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kinobot/kinobot/internal/storage"
)

// CatalogWriter is the catalog surface the sync needs.
type CatalogWriter interface {
	UpsertByTMDBID(m storage.Movie) (storage.Movie, error)
	CountMovies() (int, error)
}

// Indexer embeds and stores a movie's vector after the catalog write.
type Indexer interface {
	IndexMovie(ctx context.Context, m storage.Movie) error
}

// Sync fetches the first page of popular movies and upserts them into the
// catalog, indexing each stored entry. The catalog write commits first;
// an indexing failure leaves the movie unindexed (a later reindex picks
// it up) rather than rolling the write back.
func Sync(ctx context.Context, client *Client, catalog CatalogWriter, indexer Indexer) (int, error) {
	popular, err := client.PopularMovies(ctx, 1)
	if err != nil {
		return 0, fmt.Errorf("fetching popular movies: %w", err)
	}

	saved := 0
	for _, p := range popular {
		stored, err := catalog.UpsertByTMDBID(storage.Movie{
			Title:       p.Title,
			ReleaseYear: p.ReleaseYear,
			Genre:       p.Genre,
			PosterURL:   p.PosterURL,
			TMDBID:      p.TMDBID,
			IsTMDB:      true,
		})
		if err != nil {
			return saved, fmt.Errorf("upserting tmdb movie %d: %w", p.TMDBID, err)
		}
		saved++

		if err := indexer.IndexMovie(ctx, stored); err != nil {
			slog.Warn("indexing synced movie failed", "movie_id", stored.ID, "title", stored.Title, "error", err)
		}
	}
	return saved, nil
}

// SyncIfEmpty runs Sync only when the catalog has no movies. Used once at
// server start to seed an empty catalog.
func SyncIfEmpty(ctx context.Context, client *Client, catalog CatalogWriter, indexer Indexer) (int, error) {
	count, err := catalog.CountMovies()
	if err != nil {
		return 0, fmt.Errorf("counting movies: %w", err)
	}
	if count > 0 {
		return 0, nil
	}
	return Sync(ctx, client, catalog, indexer)
}
