package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kinobot/kinobot/internal/pipeline"
	"github.com/kinobot/kinobot/internal/provider"
	"github.com/kinobot/kinobot/internal/storage"
	"github.com/kinobot/kinobot/internal/tmdb"
)

const maxRequestBodySize = 1 << 20 // 1MB

// fallbackAnswer replaces the response when the provider fails mid-request.
// The raw error is logged server-side and never reaches the client.
const fallbackAnswer = "Sorry, I couldn't reach the movie assistant just now. Please try again in a moment."

// Deps holds everything the HTTP layer needs.
type Deps struct {
	Store    *storage.Store
	Pipeline *pipeline.Pipeline
	TMDB     *tmdb.Client // optional; nil disables /movies/sync
	Token    string
}

// NewHandler returns the full HTTP surface: an open chat endpoint plus
// bearer-authed catalog management routes.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	r.Post("/chat", handleChat(deps))

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Get("/movies", handleListMovies(deps))
		r.Post("/movies", handleCreateMovie(deps))
		r.Get("/movies/{id}", handleGetMovie(deps))
		r.Put("/movies/{id}", handleUpdateMovie(deps))
		r.Delete("/movies/{id}", handleDeleteMovie(deps))
		r.Post("/movies/sync", handleSync(deps))
		r.Post("/reindex", handleReindex(deps))
		r.Get("/stats", handleStats(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

type chatRequest struct {
	Message string `json:"message"`
	TopK    int    `json:"top_k,omitempty"`
}

type chatResponse struct {
	Answer string `json:"answer"`
}

func handleChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Message == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "message is required")
			return
		}

		requestID := uuid.New().String()
		start := time.Now()

		answer, err := deps.Pipeline.Answer(r.Context(), req.Message, req.TopK)
		if err != nil {
			var pErr *provider.Error
			if errors.As(err, &pErr) {
				slog.Warn("provider call failed, serving fallback answer",
					"request_id", requestID, "op", pErr.Op, "status", pErr.Status, "error", err)
				writeJSON(w, http.StatusOK, chatResponse{Answer: fallbackAnswer})
				return
			}
			slog.Error("answering question failed", "request_id", requestID, "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "failed to answer question")
			return
		}

		slog.Debug("question answered", "request_id", requestID, "duration_ms", time.Since(start).Milliseconds())
		writeJSON(w, http.StatusOK, chatResponse{Answer: answer})
	}
}

// movieJSON is the wire representation of a catalog movie.
type movieJSON struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	ReleaseYear int    `json:"release_year"`
	Director    string `json:"director,omitempty"`
	Genre       string `json:"genre"`
	Actors      string `json:"actors,omitempty"`
	Runtime     int    `json:"runtime,omitempty"`
	Rating      int    `json:"rating"`
	Review      string `json:"review,omitempty"`
	PosterURL   string `json:"poster_url,omitempty"`
	TMDBID      int64  `json:"tmdb_id,omitempty"`
	IsTMDB      bool   `json:"is_tmdb"`
	CreatedAt   string `json:"created_at,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
	Indexed     *bool  `json:"indexed,omitempty"`
}

func toMovieJSON(m storage.Movie) movieJSON {
	return movieJSON{
		ID:          m.ID,
		Title:       m.Title,
		ReleaseYear: m.ReleaseYear,
		Director:    m.Director,
		Genre:       m.Genre,
		Actors:      m.Actors,
		Runtime:     m.Runtime,
		Rating:      m.Rating,
		Review:      m.Review,
		PosterURL:   m.PosterURL,
		TMDBID:      m.TMDBID,
		IsTMDB:      m.IsTMDB,
		CreatedAt:   m.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   m.UpdatedAt.Format(time.RFC3339),
	}
}

func (j movieJSON) toMovie() storage.Movie {
	return storage.Movie{
		ID:          j.ID,
		Title:       j.Title,
		ReleaseYear: j.ReleaseYear,
		Director:    j.Director,
		Genre:       j.Genre,
		Actors:      j.Actors,
		Runtime:     j.Runtime,
		Rating:      j.Rating,
		Review:      j.Review,
		PosterURL:   j.PosterURL,
	}
}

func validateMovie(j movieJSON) string {
	if j.Title == "" {
		return "title is required"
	}
	if j.ReleaseYear == 0 {
		return "release_year is required"
	}
	if j.Genre == "" {
		return "genre is required"
	}
	if j.Rating != 0 && (j.Rating < 1 || j.Rating > 5) {
		return "rating must be between 1 and 5"
	}
	return ""
}

func handleListMovies(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		limit := 0
		if v := q.Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid limit")
				return
			}
			limit = n
		}

		movies, err := deps.Store.ListMovies(storage.ListOptions{
			Search: q.Get("search"),
			Filter: q.Get("filter"),
			Sort:   q.Get("sort"),
			Limit:  limit,
		})
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing movies: %v", err)
			return
		}

		out := make([]movieJSON, len(movies))
		for i, m := range movies {
			out[i] = toMovieJSON(m)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleCreateMovie(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req movieJSON
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if msg := validateMovie(req); msg != "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%s", msg)
			return
		}
		if req.Rating == 0 {
			req.Rating = 3
		}

		id, err := deps.Store.SaveMovie(req.toMovie())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "saving movie: %v", err)
			return
		}

		stored, err := deps.Store.GetMovie(id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading saved movie: %v", err)
			return
		}

		// The catalog write is committed; indexing failure leaves the
		// movie searchable by ID but absent from retrieval until the
		// next reindex.
		indexed := indexAfterWrite(r, deps, stored)

		out := toMovieJSON(stored)
		out.Indexed = &indexed
		writeJSON(w, http.StatusCreated, out)
	}
}

func handleGetMovie(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := movieID(w, r)
		if !ok {
			return
		}
		m, err := deps.Store.GetMovie(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found_error", "movie %d not found", id)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading movie: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, toMovieJSON(m))
	}
}

func handleUpdateMovie(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := movieID(w, r)
		if !ok {
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req movieJSON
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if msg := validateMovie(req); msg != "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%s", msg)
			return
		}
		if req.Rating == 0 {
			req.Rating = 3
		}

		m := req.toMovie()
		m.ID = id
		err := deps.Store.UpdateMovie(m)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found_error", "movie %d not found", id)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "updating movie: %v", err)
			return
		}

		stored, err := deps.Store.GetMovie(id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading updated movie: %v", err)
			return
		}

		indexed := indexAfterWrite(r, deps, stored)

		out := toMovieJSON(stored)
		out.Indexed = &indexed
		writeJSON(w, http.StatusOK, out)
	}
}

func handleDeleteMovie(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := movieID(w, r)
		if !ok {
			return
		}

		err := deps.Store.DeleteMovie(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found_error", "movie %d not found", id)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "deleting movie: %v", err)
			return
		}

		// The vector row cascades with the movie; this covers stores
		// opened before foreign keys were enforced.
		if err := deps.Pipeline.RemoveMovie(id); err != nil {
			slog.Warn("removing vector failed", "movie_id", id, "error", err)
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func handleSync(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.TMDB == nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "TMDB API key not configured")
			return
		}

		saved, err := tmdb.Sync(r.Context(), deps.TMDB, deps.Store, deps.Pipeline)
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "sync failed: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"synced": saved})
	}
}

func handleReindex(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		count, err := deps.Pipeline.ReindexAll(r.Context())
		if err != nil {
			var pErr *provider.Error
			if errors.As(err, &pErr) {
				httpError(w, http.StatusBadGateway, "api_error", "reindex failed: provider %s error", pErr.Op)
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "reindex failed: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"indexed": count})
	}
}

func handleStats(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := collectStats(deps)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "collecting stats: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

type statsJSON struct {
	Movies  int `json:"movies"`
	Vectors int `json:"vectors"`
}

func collectStats(deps Deps) (statsJSON, error) {
	movies, err := deps.Store.CountMovies()
	if err != nil {
		return statsJSON{}, fmt.Errorf("counting movies: %w", err)
	}
	vectors, err := deps.Pipeline.VectorCount()
	if err != nil {
		return statsJSON{}, fmt.Errorf("counting vectors: %w", err)
	}
	return statsJSON{Movies: movies, Vectors: vectors}, nil
}

// indexAfterWrite embeds and stores the movie's vector, returning whether
// indexing succeeded. Failures are logged, not surfaced; the catalog
// write has already committed.
func indexAfterWrite(r *http.Request, deps Deps, m storage.Movie) bool {
	if err := deps.Pipeline.IndexMovie(r.Context(), m); err != nil {
		slog.Warn("indexing movie failed", "movie_id", m.ID, "title", m.Title, "error", err)
		return false
	}
	return true
}

func movieID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid movie id")
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
