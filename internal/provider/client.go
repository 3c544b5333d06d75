package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client communicates with the Solar API. Every call is a single attempt:
// a non-2xx status or timeout surfaces as *Error with no automatic retry,
// leaving retry policy to the caller.
type Client struct {
	apiKey       string
	baseURL      string
	queryModel   string
	passageModel string
	chatModel    string
	httpClient   *http.Client
}

// NewClient creates a Client with the given API key. The key is assumed
// present; config.Load rejects a missing key before any client exists.
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:       apiKey,
		baseURL:      defaultBaseURL,
		queryModel:   defaultQueryModel,
		passageModel: defaultPassageModel,
		chatModel:    defaultChatModel,
		httpClient:   &http.Client{},
	}
}

// NewClientWithBaseURL creates a client pointing at a custom base URL (for testing).
func NewClientWithBaseURL(apiKey, baseURL string) *Client {
	c := NewClient(apiKey)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

// SetModels overrides the default model identifiers. Empty strings keep
// the current value.
func (c *Client) SetModels(queryModel, passageModel, chatModel string) {
	if queryModel != "" {
		c.queryModel = queryModel
	}
	if passageModel != "" {
		c.passageModel = passageModel
	}
	if chatModel != "" {
		c.chatModel = chatModel
	}
}

// Message is a chat message in the provider's wire format.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// embedRequest is the JSON body for POST /embeddings.
type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

// embedResponse is the JSON returned by POST /embeddings.
type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns the embedding vector for the given text. mode selects the
// query- or passage-optimized model. Input length is not validated here;
// that is the caller's concern.
func (c *Client) Embed(ctx context.Context, text string, mode Mode) ([]float32, error) {
	model := c.passageModel
	if mode == ModeQuery {
		model = c.queryModel
	}

	body, err := json.Marshal(embedRequest{Model: model, Input: text})
	if err != nil {
		return nil, err
	}

	respBody, err := c.post(ctx, "embed", "/embeddings", body, embedTimeout)
	if err != nil {
		return nil, err
	}

	var result embedResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, &Error{Op: "embed", Err: fmt.Errorf("decoding response: %w", err)}
	}
	if len(result.Data) == 0 {
		return nil, &Error{Op: "embed", Err: fmt.Errorf("empty embedding data")}
	}
	return result.Data[0].Embedding, nil
}

// chatRequest is the JSON body for POST /chat/completions.
type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

// chatResponse is the JSON returned by POST /chat/completions.
type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// Chat sends a two-role prompt and returns the assistant's raw text response.
func (c *Client) Chat(ctx context.Context, system, user string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.chatModel,
		Messages: []Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: chatTemperature,
		MaxTokens:   chatMaxTokens,
	})
	if err != nil {
		return "", err
	}

	respBody, err := c.post(ctx, "chat", "/chat/completions", body, chatTimeout)
	if err != nil {
		return "", err
	}

	var result chatResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", &Error{Op: "chat", Err: fmt.Errorf("decoding response: %w", err)}
	}
	if len(result.Choices) == 0 {
		return "", &Error{Op: "chat", Err: fmt.Errorf("empty choices array")}
	}
	return result.Choices[0].Message.Content, nil
}

func (c *Client) post(ctx context.Context, op, path string, body []byte, timeout time.Duration) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Op: op, Err: fmt.Errorf("reading response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("%s", strings.TrimSpace(string(respBody)))}
	}
	return respBody, nil
}
