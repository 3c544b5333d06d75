// Package tmdb imports popular movies from the TMDB API into the catalog.
package tmdb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.themoviedb.org/3"
	posterBaseURL  = "https://image.tmdb.org/t/p/w500"

	requestTimeout = 10 * time.Second

	// TMDB entries without a usable release date get this year.
	fallbackYear = 2000
)

// genreLabels maps TMDB genre IDs to catalog genre labels.
var genreLabels = map[int]string{
	28:    "Action",
	35:    "Comedy",
	18:    "Drama",
	27:    "Horror",
	878:   "Sci-Fi",
	10749: "Romance",
	53:    "Thriller",
	16:    "Animation",
	14:    "Fantasy",
	99:    "Documentary",
}

// PopularMovie is one entry from the popular-movies feed, mapped to
// catalog fields.
type PopularMovie struct {
	TMDBID      int64
	Title       string
	ReleaseYear int
	Genre       string
	PosterURL   string
}

// Client communicates with the TMDB API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// New creates a Client with the given API key.
func New(apiKey string) *Client {
	return &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

// NewWithBaseURL creates a client pointing at a custom base URL (for testing).
func NewWithBaseURL(apiKey, baseURL string) *Client {
	c := New(apiKey)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

// popularResponse mirrors the JSON returned by GET /movie/popular.
type popularResponse struct {
	Results []struct {
		ID          int64  `json:"id"`
		Title       string `json:"title"`
		ReleaseDate string `json:"release_date"`
		PosterPath  string `json:"poster_path"`
		GenreIDs    []int  `json:"genre_ids"`
	} `json:"results"`
}

// PopularMovies fetches one page of the popular-movies feed.
func (c *Client) PopularMovies(ctx context.Context, page int) ([]PopularMovie, error) {
	if page <= 0 {
		page = 1
	}

	params := url.Values{}
	params.Set("api_key", c.apiKey)
	params.Set("page", strconv.Itoa(page))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/movie/popular?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting popular movies: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("popular movies: unexpected status %d", resp.StatusCode)
	}

	var result popularResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	movies := make([]PopularMovie, 0, len(result.Results))
	for _, item := range result.Results {
		if item.ID == 0 || item.Title == "" {
			continue
		}
		m := PopularMovie{
			TMDBID:      item.ID,
			Title:       item.Title,
			ReleaseYear: parseYear(item.ReleaseDate),
			Genre:       pickGenre(item.GenreIDs),
		}
		if item.PosterPath != "" {
			m.PosterURL = posterBaseURL + item.PosterPath
		}
		movies = append(movies, m)
	}
	return movies, nil
}

// parseYear extracts the year from a "YYYY-MM-DD" release date.
func parseYear(releaseDate string) int {
	if len(releaseDate) < 4 {
		return fallbackYear
	}
	year, err := strconv.Atoi(releaseDate[:4])
	if err != nil || year == 0 {
		return fallbackYear
	}
	return year
}

// pickGenre returns the first mappable genre label, defaulting to Drama.
func pickGenre(genreIDs []int) string {
	for _, id := range genreIDs {
		if label, ok := genreLabels[id]; ok {
			return label
		}
	}
	return "Drama"
}
