package retrieval

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Candidate pairs a catalog movie ID with its stored embedding vector.
type Candidate struct {
	MovieID int64
	Vector  []float32
}

// EmbeddingStore persists one embedding vector per movie in the
// movie_vectors table, keyed by movie ID. Search over the stored vectors
// is a brute-force scan (see ranker.go); at catalog scale this is cheaper
// than maintaining an ANN index.
type EmbeddingStore struct {
	db *sql.DB
}

// NewEmbeddingStore wraps an existing *sql.DB for vector operations.
// The movie_vectors table must already exist (created via migrations).
func NewEmbeddingStore(db *sql.DB) *EmbeddingStore {
	return &EmbeddingStore{db: db}
}

// Upsert replaces or creates the vector for movieID, stamping the update time.
func (s *EmbeddingStore) Upsert(movieID int64, vector []float32) error {
	blob := encodeFloat32s(vector)
	_, err := s.db.Exec(`
		INSERT INTO movie_vectors (movie_id, embedding, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(movie_id) DO UPDATE SET
			embedding = excluded.embedding,
			updated_at = excluded.updated_at`,
		movieID, blob, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting vector for movie %d: %w", movieID, err)
	}
	return nil
}

// All returns every stored (movie, vector) pair in ascending movie ID order.
func (s *EmbeddingStore) All() ([]Candidate, error) {
	rows, err := s.db.Query(`SELECT movie_id, embedding FROM movie_vectors ORDER BY movie_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	var candidates []Candidate
	for rows.Next() {
		var c Candidate
		var blob []byte
		if err := rows.Scan(&c.MovieID, &blob); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		c.Vector, err = decodeFloat32s(blob)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding for movie %d: %w", c.MovieID, err)
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

// Delete removes the vector for movieID. Deleting an absent record is a no-op.
func (s *EmbeddingStore) Delete(movieID int64) error {
	_, err := s.db.Exec("DELETE FROM movie_vectors WHERE movie_id = ?", movieID)
	if err != nil {
		return fmt.Errorf("deleting vector for movie %d: %w", movieID, err)
	}
	return nil
}

// Count returns the number of stored vectors.
func (s *EmbeddingStore) Count() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM movie_vectors").Scan(&count)
	return count, err
}

// encodeFloat32s serializes a float32 slice to little-endian bytes.
func encodeFloat32s(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeFloat32s deserializes little-endian bytes into a new float32 slice.
// Returns an error if the byte slice length is not a multiple of 4 (indicates data corruption).
func decodeFloat32s(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	n := len(b) / 4
	v := make([]float32, n)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}
