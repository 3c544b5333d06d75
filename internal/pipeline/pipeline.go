// Package pipeline wires embedding, vector storage, ranking, and prompt
// composition into the two catalog operations: indexing a movie and
// answering a question.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/kinobot/kinobot/internal/composer"
	"github.com/kinobot/kinobot/internal/provider"
	"github.com/kinobot/kinobot/internal/retrieval"
	"github.com/kinobot/kinobot/internal/storage"
)

// EmptyCatalogAnswer is returned when a question arrives before any movie
// has been indexed. This short-circuits before the ranker or the chat
// service is touched; it is a defined condition, not an error.
const EmptyCatalogAnswer = "I don't have any movies indexed yet. " +
	"Add a movie to the catalog or run a TMDB sync, then ask me again."

// Embedder turns text into a fixed-length vector in the given mode.
type Embedder interface {
	Embed(ctx context.Context, text string, mode provider.Mode) ([]float32, error)
}

// Catalog gives the pipeline read access to movie records.
type Catalog interface {
	GetMovie(id int64) (storage.Movie, error)
	AllMovies() ([]storage.Movie, error)
}

// Pipeline is the retrieval orchestrator. Each operation is a single-pass,
// request-scoped call with no persisted intermediate state.
type Pipeline struct {
	embedder Embedder
	vectors  *retrieval.EmbeddingStore
	catalog  Catalog
	composer *composer.Composer
	topK     int
	logger   *slog.Logger
}

// New creates a Pipeline. topK controls how many matches ground an answer
// (default 5 if <= 0).
func New(embedder Embedder, vectors *retrieval.EmbeddingStore, catalog Catalog, comp *composer.Composer, topK int) *Pipeline {
	if topK <= 0 {
		topK = 5
	}
	return &Pipeline{
		embedder: embedder,
		vectors:  vectors,
		catalog:  catalog,
		composer: comp,
		topK:     topK,
		logger:   slog.Default(),
	}
}

// IndexMovie renders the movie into its passage document, embeds it, and
// upserts the vector. Re-indexing unchanged content replaces the stored
// vector in place, so there is never more than one record per movie.
func (p *Pipeline) IndexMovie(ctx context.Context, m storage.Movie) error {
	doc := composer.Document(m)
	vec, err := p.embedder.Embed(ctx, doc, provider.ModePassage)
	if err != nil {
		return fmt.Errorf("embedding movie %d: %w", m.ID, err)
	}
	if err := p.vectors.Upsert(m.ID, vec); err != nil {
		return err
	}
	p.logger.Debug("movie indexed", "movie_id", m.ID, "title", m.Title, "dims", len(vec))
	return nil
}

// RemoveMovie deletes the movie's embedding record. Removing a movie that
// was never indexed is a no-op.
func (p *Pipeline) RemoveMovie(movieID int64) error {
	return p.vectors.Delete(movieID)
}

// ReindexAll re-embeds every catalog movie with bounded concurrency and
// returns the number of movies indexed. The first embedding failure
// cancels the remaining work.
func (p *Pipeline) ReindexAll(ctx context.Context) (int, error) {
	movies, err := p.catalog.AllMovies()
	if err != nil {
		return 0, fmt.Errorf("loading catalog: %w", err)
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4) // Bound concurrency to avoid overwhelming the provider.

	for _, m := range movies {
		g.Go(func() error {
			return p.IndexMovie(gCtx, m)
		})
	}

	if err := g.Wait(); err != nil {
		return 0, err
	}
	return len(movies), nil
}

// VectorCount reports how many movies are currently indexed.
func (p *Pipeline) VectorCount() (int, error) {
	return p.vectors.Count()
}

// Search embeds the question in query mode and returns the top-k ranked
// catalog matches without generating an answer.
func (p *Pipeline) Search(ctx context.Context, question string, k int) ([]composer.Match, error) {
	if k <= 0 {
		k = p.topK
	}

	candidates, err := p.vectors.All()
	if err != nil {
		return nil, fmt.Errorf("loading vectors: %w", err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	qvec, err := p.embedder.Embed(ctx, question, provider.ModeQuery)
	if err != nil {
		return nil, fmt.Errorf("embedding question: %w", err)
	}

	ranked := retrieval.TopK(qvec, candidates, k)

	matches := make([]composer.Match, 0, len(ranked))
	for _, r := range ranked {
		m, err := p.catalog.GetMovie(r.MovieID)
		if errors.Is(err, storage.ErrNotFound) {
			// Stale vector without a catalog row; skip it.
			p.logger.Warn("vector references missing movie", "movie_id", r.MovieID)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("loading movie %d: %w", r.MovieID, err)
		}
		matches = append(matches, composer.Match{Movie: m, Score: r.Score})
	}
	return matches, nil
}

// Answer runs the full question pipeline: embed the question, rank the
// stored vectors, and compose a grounded answer. An empty store returns
// EmptyCatalogAnswer without calling the ranker or the chat service.
// Provider failures propagate; converting them into a user-facing
// fallback is the request boundary's job.
func (p *Pipeline) Answer(ctx context.Context, question string, k int) (string, error) {
	matches, err := p.Search(ctx, question, k)
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return EmptyCatalogAnswer, nil
	}

	answer, err := p.composer.Compose(ctx, question, matches)
	if err != nil {
		return "", err
	}
	return answer, nil
}
