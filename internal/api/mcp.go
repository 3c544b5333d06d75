package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kinobot/kinobot/internal/composer"
	"github.com/kinobot/kinobot/internal/storage"
)

// MCPPipeline abstracts the retrieval pipeline for the MCP layer.
type MCPPipeline interface {
	Answer(ctx context.Context, question string, k int) (string, error)
	Search(ctx context.Context, question string, k int) ([]composer.Match, error)
	IndexMovie(ctx context.Context, m storage.Movie) error
}

// MCPCatalog abstracts catalog access for the MCP layer.
type MCPCatalog interface {
	SaveMovie(m storage.Movie) (int64, error)
	GetMovie(id int64) (storage.Movie, error)
	CountMovies() (int, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Catalog  MCPCatalog
	Pipeline MCPPipeline
}

// NewMCPServer creates an MCP server exposing the movie catalog and its
// retrieval pipeline as tools for agent hosts.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"kinobot",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("kinobot — movie catalog with retrieval-grounded question answering."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ask_movies",
			mcp.WithDescription("Ask a question about the movie catalog and get an answer grounded in the most similar entries."),
			mcp.WithString("question", mcp.Description("The question to answer"), mcp.Required()),
			mcp.WithNumber("top_k", mcp.Description("How many matches to ground the answer on (default 5)")),
		),
		mcpAskMovies(deps),
	)

	s.AddTool(
		mcp.NewTool("search_movies",
			mcp.WithDescription("Semantically search the movie catalog and return scored matches without generating an answer."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 5)")),
		),
		mcpSearchMovies(deps),
	)

	s.AddTool(
		mcp.NewTool("add_movie",
			mcp.WithDescription("Add a movie to the catalog and index it for retrieval."),
			mcp.WithString("title", mcp.Description("Movie title"), mcp.Required()),
			mcp.WithNumber("release_year", mcp.Description("Release year"), mcp.Required()),
			mcp.WithString("genre", mcp.Description("Genre label"), mcp.Required()),
			mcp.WithString("director", mcp.Description("Director name")),
			mcp.WithString("actors", mcp.Description("Lead actors")),
			mcp.WithNumber("rating", mcp.Description("Rating from 1 to 5 (default 3)")),
			mcp.WithString("review", mcp.Description("Review text")),
		),
		mcpAddMovie(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"kinobot://stats",
			"Catalog Stats",
			mcp.WithResourceDescription("Movie catalog counts as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceStats(deps),
	)

	return s
}

func mcpAskMovies(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}

		topK := req.GetInt("top_k", 0)

		answer, err := deps.Pipeline.Answer(ctx, question, topK)
		if err != nil {
			return mcpError(fmt.Sprintf("answering failed: %v", err)), nil
		}
		return mcpText(answer), nil
	}
}

func mcpSearchMovies(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		limit := req.GetInt("limit", 5)
		if limit <= 0 {
			limit = 5
		}
		if limit > 50 {
			limit = 50
		}

		matches, err := deps.Pipeline.Search(ctx, query, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		if len(matches) == 0 {
			return mcpText("[]"), nil
		}

		type matchResult struct {
			ID     int64   `json:"id"`
			Title  string  `json:"title"`
			Year   int     `json:"year"`
			Genre  string  `json:"genre"`
			Rating int     `json:"rating"`
			Score  float32 `json:"score"`
		}

		results := make([]matchResult, len(matches))
		for i, m := range matches {
			results[i] = matchResult{
				ID:     m.Movie.ID,
				Title:  m.Movie.Title,
				Year:   m.Movie.ReleaseYear,
				Genre:  m.Movie.Genre,
				Rating: m.Movie.Rating,
				Score:  m.Score,
			}
		}

		b, err := json.Marshal(results)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpAddMovie(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		title, err := req.RequireString("title")
		if err != nil {
			return mcpError("title is required"), nil
		}
		year := req.GetInt("release_year", 0)
		if year == 0 {
			return mcpError("release_year is required"), nil
		}
		genre, err := req.RequireString("genre")
		if err != nil {
			return mcpError("genre is required"), nil
		}

		rating := req.GetInt("rating", 3)
		if rating < 1 || rating > 5 {
			return mcpError("rating must be between 1 and 5"), nil
		}

		m := storage.Movie{
			Title:       title,
			ReleaseYear: year,
			Genre:       genre,
			Director:    req.GetString("director", ""),
			Actors:      req.GetString("actors", ""),
			Rating:      rating,
			Review:      req.GetString("review", ""),
		}

		id, err := deps.Catalog.SaveMovie(m)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to save: %v", err)), nil
		}

		stored, err := deps.Catalog.GetMovie(id)
		if err != nil {
			return mcpError(fmt.Sprintf("saved but failed to load movie %d: %v", id, err)), nil
		}

		if err := deps.Pipeline.IndexMovie(ctx, stored); err != nil {
			return mcpText(fmt.Sprintf("Stored movie %d (%s) but indexing failed: %v. Run a reindex to make it searchable.", id, title, err)), nil
		}
		return mcpText(fmt.Sprintf("Stored and indexed movie %d (%s)", id, title)), nil
	}
}

func mcpResourceStats(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		count, err := deps.Catalog.CountMovies()
		if err != nil {
			return nil, fmt.Errorf("failed to count movies: %w", err)
		}

		b, err := json.Marshal(map[string]int{"movies": count})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal stats: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
