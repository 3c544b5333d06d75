// Package provider implements the HTTP client for the Solar embedding and
// chat-completion API. Both endpoints speak the OpenAI-compatible JSON
// wire format with bearer authentication.
package provider

import (
	"fmt"
	"time"
)

// Mode selects the embedding model variant. Queries and passages use
// asymmetric models tuned for their side of the retrieval pair.
type Mode int

const (
	ModeQuery Mode = iota
	ModePassage
)

func (m Mode) String() string {
	switch m {
	case ModeQuery:
		return "query"
	case ModePassage:
		return "passage"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Error reports a failed call to the provider. A zero Status means the
// request never produced an HTTP response (transport failure or timeout).
type Error struct {
	Op     string // "embed" or "chat"
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("provider %s: unexpected status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("provider %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

const (
	defaultBaseURL      = "https://api.upstage.ai/v1"
	defaultQueryModel   = "solar-embedding-1-large-query"
	defaultPassageModel = "solar-embedding-1-large-passage"
	defaultChatModel    = "solar-1-mini-chat"

	embedTimeout = 20 * time.Second
	chatTimeout  = 30 * time.Second

	// Low temperature and a bounded completion keep grounded answers
	// close to deterministic.
	chatTemperature = 0.3
	chatMaxTokens   = 800
)
