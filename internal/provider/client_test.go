package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func embedJSON(vec []float32) []byte {
	b, _ := json.Marshal(map[string]any{
		"data": []map[string]any{{"embedding": vec}},
	})
	return b
}

func chatJSON(content string) []byte {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
	})
	return b
}

func TestEmbed_Success(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Model string `json:"model"`
			Input string `json:"input"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		gotModel = req.Model
		w.Write(embedJSON([]float32{0.1, 0.2, 0.3}))
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("test-key", srv.URL)
	vec, err := c.Embed(context.Background(), "some passage", ModePassage)
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 {
		t.Fatalf("got %d dims, want 3", len(vec))
	}
	if gotModel != defaultPassageModel {
		t.Errorf("model = %q, want %q", gotModel, defaultPassageModel)
	}
}

func TestEmbed_QueryModeSelectsQueryModel(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model string `json:"model"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		gotModel = req.Model
		w.Write(embedJSON([]float32{1}))
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("test-key", srv.URL)
	if _, err := c.Embed(context.Background(), "a question", ModeQuery); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if gotModel != defaultQueryModel {
		t.Errorf("model = %q, want %q", gotModel, defaultQueryModel)
	}
}

func TestEmbed_BearerAuth(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write(embedJSON([]float32{1}))
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("secret-key", srv.URL)
	if _, err := c.Embed(context.Background(), "x", ModeQuery); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if gotAuth != "Bearer secret-key" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Bearer secret-key")
	}
}

func TestEmbed_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("test-key", srv.URL)
	_, err := c.Embed(context.Background(), "x", ModeQuery)
	if err == nil {
		t.Fatal("expected error for 429 response")
	}

	var pErr *Error
	if !errors.As(err, &pErr) {
		t.Fatalf("error type = %T, want *Error", err)
	}
	if pErr.Op != "embed" {
		t.Errorf("Op = %q, want %q", pErr.Op, "embed")
	}
	if pErr.Status != http.StatusTooManyRequests {
		t.Errorf("Status = %d, want %d", pErr.Status, http.StatusTooManyRequests)
	}
}

func TestEmbed_EmptyData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": []}`))
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("test-key", srv.URL)
	_, err := c.Embed(context.Background(), "x", ModeQuery)
	var pErr *Error
	if !errors.As(err, &pErr) {
		t.Fatalf("error type = %T, want *Error", err)
	}
	if pErr.Status != 0 {
		t.Errorf("Status = %d, want 0 for malformed body", pErr.Status)
	}
}

func TestEmbed_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused

	c := NewClientWithBaseURL("test-key", srv.URL)
	_, err := c.Embed(context.Background(), "x", ModeQuery)
	var pErr *Error
	if !errors.As(err, &pErr) {
		t.Fatalf("error type = %T, want *Error", err)
	}
	if pErr.Status != 0 {
		t.Errorf("Status = %d, want 0 for transport failure", pErr.Status)
	}
}

func TestChat_Success(t *testing.T) {
	var gotReq struct {
		Model       string    `json:"model"`
		Messages    []Message `json:"messages"`
		Temperature float64   `json:"temperature"`
		MaxTokens   int       `json:"max_tokens"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		json.NewDecoder(r.Body).Decode(&gotReq)
		w.Write(chatJSON("The Matrix is a 1999 sci-fi film."))
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("test-key", srv.URL)
	answer, err := c.Chat(context.Background(), "system prompt", "user question")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if answer != "The Matrix is a 1999 sci-fi film." {
		t.Errorf("answer = %q", answer)
	}

	if gotReq.Model != defaultChatModel {
		t.Errorf("model = %q, want %q", gotReq.Model, defaultChatModel)
	}
	if len(gotReq.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(gotReq.Messages))
	}
	if gotReq.Messages[0].Role != "system" || gotReq.Messages[0].Content != "system prompt" {
		t.Errorf("messages[0] = %+v", gotReq.Messages[0])
	}
	if gotReq.Messages[1].Role != "user" || gotReq.Messages[1].Content != "user question" {
		t.Errorf("messages[1] = %+v", gotReq.Messages[1])
	}
	if gotReq.Temperature != chatTemperature {
		t.Errorf("temperature = %g, want %g", gotReq.Temperature, chatTemperature)
	}
	if gotReq.MaxTokens != chatMaxTokens {
		t.Errorf("max_tokens = %d, want %d", gotReq.MaxTokens, chatMaxTokens)
	}
}

func TestChat_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices": []}`))
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("test-key", srv.URL)
	_, err := c.Chat(context.Background(), "sys", "user")
	var pErr *Error
	if !errors.As(err, &pErr) {
		t.Fatalf("error type = %T, want *Error", err)
	}
	if pErr.Op != "chat" {
		t.Errorf("Op = %q, want %q", pErr.Op, "chat")
	}
}

func TestSetModels_EmptyKeepsCurrent(t *testing.T) {
	c := NewClient("test-key")
	c.SetModels("", "", "custom-chat")
	if c.queryModel != defaultQueryModel {
		t.Errorf("queryModel = %q, want default preserved", c.queryModel)
	}
	if c.chatModel != "custom-chat" {
		t.Errorf("chatModel = %q, want %q", c.chatModel, "custom-chat")
	}
}
