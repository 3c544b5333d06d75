// Package composer renders catalog movies into prompt text: the passage
// document used for indexing, and the grounded two-role prompt sent to
// the chat-completion service when answering a question.
package composer

import (
	"context"
	"fmt"
	"strings"

	"github.com/kinobot/kinobot/internal/storage"
)

// Match pairs a catalog movie with its similarity score. Matches arrive
// in ranked order (highest similarity first) and are rendered in that
// order, since position is meaningful context-priming for the model.
type Match struct {
	Movie storage.Movie
	Score float32
}

// Chatter sends a two-role prompt to the chat-completion service.
type Chatter interface {
	Chat(ctx context.Context, system, user string) (string, error)
}

// systemPrompt constrains answers to the retrieved evidence.
const systemPrompt = "You are the chatbot for a movie catalog site. " +
	"Answer using only the [Search Results] below as evidence. " +
	"If the evidence is insufficient, say so, and ask a follow-up question when possible."

// Composer assembles grounded prompts and obtains answers from the chat service.
type Composer struct {
	chat Chatter
}

// New creates a Composer backed by the given chat service.
func New(chat Chatter) *Composer {
	return &Composer{chat: chat}
}

// Compose builds the grounding block from the ranked matches and asks the
// chat service for an answer constrained to it. The raw response text is
// returned unmodified; provider failures propagate to the caller.
func (c *Composer) Compose(ctx context.Context, question string, matches []Match) (string, error) {
	user := fmt.Sprintf("[Search Results]\n%s\n[User Question]\n%s\n", GroundingBlock(matches), question)
	return c.chat.Chat(ctx, systemPrompt, user)
}

// GroundingBlock renders each match as a bulleted entry, one per movie,
// preserving ranked order.
func GroundingBlock(matches []Match) string {
	var sb strings.Builder
	for _, match := range matches {
		m := match.Movie
		fmt.Fprintf(&sb, "- %s (%d, %s, rating %d/5)\n", m.Title, m.ReleaseYear, m.Genre, m.Rating)
		fmt.Fprintf(&sb, "  Director: %s\n", orDash(m.Director))
		fmt.Fprintf(&sb, "  Actors: %s\n", orDash(m.Actors))
		fmt.Fprintf(&sb, "  Review: %s\n", orDash(m.Review))
	}
	return sb.String()
}

// Document renders a movie's fields into one descriptive passage for
// embedding. Field order is fixed so the embedding model always sees the
// same structure.
func Document(m storage.Movie) string {
	source := "user"
	if m.IsTMDB {
		source = "tmdb"
	}
	return fmt.Sprintf(
		"ID: %d\nTitle: %s\nYear: %d\nGenre: %s\nDirector: %s\nActors: %s\nRuntime: %s\nRating: %d/5\nReview: %s\nSource: %s\n",
		m.ID, m.Title, m.ReleaseYear, m.Genre,
		orDash(m.Director), orDash(m.Actors), runtimeLabel(m.Runtime),
		m.Rating, orDash(m.Review), source,
	)
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func runtimeLabel(minutes int) string {
	if minutes <= 0 {
		return "-"
	}
	return fmt.Sprintf("%d min", minutes)
}
