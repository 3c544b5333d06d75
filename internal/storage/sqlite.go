package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding the movie catalog and its
// embedding vectors.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "kinobot.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	// Vector rows cascade when a movie is removed.
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// DB exposes the underlying connection for the vector store layer.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		// Check if already applied.
		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Movies ---

const movieColumns = `id, title, release_year, director, genre, actors, runtime,
	rating, review, poster_url, tmdb_id, is_tmdb, created_at, updated_at`

// SaveMovie inserts a new movie and returns its assigned ID.
func (s *Store) SaveMovie(m Movie) (int64, error) {
	now := time.Now().UTC()
	res, err := s.db.Exec(`
		INSERT INTO movies (title, release_year, director, genre, actors, runtime, rating, review, poster_url, tmdb_id, is_tmdb, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.Title, m.ReleaseYear, m.Director, m.Genre, m.Actors, m.Runtime,
		m.Rating, m.Review, m.PosterURL, nullableID(m.TMDBID), m.IsTMDB,
		now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetMovie returns the movie with the given ID, or ErrNotFound.
func (s *Store) GetMovie(id int64) (Movie, error) {
	row := s.db.QueryRow(`SELECT `+movieColumns+` FROM movies WHERE id = ?`, id)
	m, err := scanMovie(row)
	if err == sql.ErrNoRows {
		return Movie{}, ErrNotFound
	}
	return m, err
}

// UpdateMovie replaces the stored fields of an existing movie, stamping updated_at.
func (s *Store) UpdateMovie(m Movie) error {
	res, err := s.db.Exec(`
		UPDATE movies SET title = ?, release_year = ?, director = ?, genre = ?, actors = ?,
			runtime = ?, rating = ?, review = ?, poster_url = ?, updated_at = ?
		WHERE id = ?`,
		m.Title, m.ReleaseYear, m.Director, m.Genre, m.Actors,
		m.Runtime, m.Rating, m.Review, m.PosterURL,
		time.Now().UTC().Format(time.RFC3339), m.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteMovie removes a movie; its vector row cascades.
func (s *Store) DeleteMovie(id int64) error {
	res, err := s.db.Exec("DELETE FROM movies WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListMovies returns movies matching the given options.
func (s *Store) ListMovies(opts ListOptions) ([]Movie, error) {
	query := `SELECT ` + movieColumns + ` FROM movies`
	var where []string
	var args []any

	if opts.Search != "" {
		where = append(where, "(title LIKE ? OR director LIKE ? OR actors LIKE ?)")
		pattern := "%" + opts.Search + "%"
		args = append(args, pattern, pattern, pattern)
	}
	switch opts.Filter {
	case "tmdb":
		where = append(where, "is_tmdb = 1")
	case "user":
		where = append(where, "is_tmdb = 0")
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	switch opts.Sort {
	case "title":
		query += " ORDER BY title ASC"
	case "rating":
		query += " ORDER BY rating DESC, created_at DESC"
	case "year":
		query += " ORDER BY release_year DESC, created_at DESC"
	default: // latest
		query += " ORDER BY created_at DESC, id DESC"
	}

	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Movie
	for rows.Next() {
		m, err := scanMovie(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, m)
	}
	return results, rows.Err()
}

// AllMovies returns the full catalog in insertion order.
func (s *Store) AllMovies() ([]Movie, error) {
	rows, err := s.db.Query(`SELECT ` + movieColumns + ` FROM movies ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Movie
	for rows.Next() {
		m, err := scanMovie(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, m)
	}
	return results, rows.Err()
}

// CountMovies returns the number of catalog entries.
func (s *Store) CountMovies() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM movies").Scan(&count)
	return count, err
}

// UpsertByTMDBID inserts or updates a TMDB-sourced movie keyed by its TMDB ID,
// and returns the stored row. User-entered fields (rating, review) are
// preserved on update.
func (s *Store) UpsertByTMDBID(m Movie) (Movie, error) {
	if m.TMDBID == 0 {
		return Movie{}, fmt.Errorf("upsert requires a TMDB ID")
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.Exec(`
		INSERT INTO movies (title, release_year, director, genre, actors, runtime, rating, review, poster_url, tmdb_id, is_tmdb, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(tmdb_id) DO UPDATE SET
			title = excluded.title,
			release_year = excluded.release_year,
			genre = excluded.genre,
			poster_url = excluded.poster_url,
			updated_at = excluded.updated_at`,
		m.Title, m.ReleaseYear, m.Director, m.Genre, m.Actors, m.Runtime,
		ratingOrDefault(m.Rating), m.Review, m.PosterURL, m.TMDBID, now, now,
	)
	if err != nil {
		return Movie{}, err
	}

	row := s.db.QueryRow(`SELECT `+movieColumns+` FROM movies WHERE tmdb_id = ?`, m.TMDBID)
	stored, err := scanMovie(row)
	if err != nil {
		return Movie{}, err
	}
	return stored, nil
}

func ratingOrDefault(r int) int {
	if r < 1 || r > 5 {
		return 3
	}
	return r
}

func nullableID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanMovie(row scanner) (Movie, error) {
	var m Movie
	var tmdbID sql.NullInt64
	var createdAt, updatedAt string
	err := row.Scan(&m.ID, &m.Title, &m.ReleaseYear, &m.Director, &m.Genre,
		&m.Actors, &m.Runtime, &m.Rating, &m.Review, &m.PosterURL,
		&tmdbID, &m.IsTMDB, &createdAt, &updatedAt)
	if err != nil {
		return Movie{}, err
	}
	m.TMDBID = tmdbID.Int64

	if m.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Movie{}, fmt.Errorf("parsing created_at for movie %d: %w", m.ID, err)
	}
	if m.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return Movie{}, fmt.Errorf("parsing updated_at for movie %d: %w", m.ID, err)
	}
	return m, nil
}
