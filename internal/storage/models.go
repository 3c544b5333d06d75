package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Genres lists the catalog genre labels, in display order.
var Genres = []string{
	"Action", "Comedy", "Drama", "Horror", "Sci-Fi",
	"Romance", "Thriller", "Animation", "Fantasy", "Documentary",
}

// Movie is one catalog entry. Movies either come from a TMDB sync
// (IsTMDB true, TMDBID set) or are added by the user.
type Movie struct {
	ID          int64
	Title       string
	ReleaseYear int
	Director    string
	Genre       string
	Actors      string
	Runtime     int // minutes, 0 when unknown
	Rating      int // 1..5
	Review      string
	PosterURL   string
	TMDBID      int64 // 0 when not a TMDB entry
	IsTMDB      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ListOptions controls filtering and ordering of ListMovies.
type ListOptions struct {
	Search string // matches title, director, or actors (substring)
	Filter string // "all" (default), "tmdb", or "user"
	Sort   string // "latest" (default), "title", "rating", or "year"
	Limit  int    // 0 means no limit
}
