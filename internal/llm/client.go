package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	maxBodyBytes   = 1 << 20
)

// ErrMissingCredentials is returned by Complete when no API key is set.
var ErrMissingCredentials = errors.New("llm: missing OPENAI_API_KEY")

// StatusError is a non-2xx provider response.
type StatusError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("llm: HTTP %d: %s: %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("llm: HTTP %d: %s", e.StatusCode, e.Message)
}

// Auth reports whether the provider rejected the credentials.
func (e *StatusError) Auth() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// ModelUnavailable reports whether the model itself was not found.
func (e *StatusError) ModelUnavailable() bool {
	return e.StatusCode == http.StatusNotFound
}

type Request struct {
	Model           string
	Prompt          string
	MaxOutputTokens int
}

type Completion struct {
	Model   string
	Payload Payload
}

// Completer is a single bounded model call.
type Completer interface {
	Complete(ctx context.Context, req Request) (Completion, error)
}

type ClientConfig struct {
	BaseURL           string
	APIKey            string
	RequestsPerSecond float64
	HTTPClient        *http.Client
}

// Client calls the OpenAI Responses API over plain HTTP so that every body
// shape reaches ParsePayload untouched.
type Client struct {
	baseURL string
	apiKey  string // never logged
	http    *http.Client
	limiter *rate.Limiter
}

func NewClient(cfg ClientConfig) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &Client{
		baseURL: base,
		apiKey:  cfg.APIKey,
		http:    hc,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// HasCredentials reports whether an API key is configured.
func (c *Client) HasCredentials() bool { return c.apiKey != "" }

type responsesRequest struct {
	Model           string         `json:"model"`
	Input           []inputMessage `json:"input"`
	MaxOutputTokens int            `json:"max_output_tokens,omitempty"`
}

type inputMessage struct {
	Role    string      `json:"role"`
	Content []inputPart `json:"content"`
}

type inputPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type errorBody struct {
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (c *Client) Complete(ctx context.Context, req Request) (Completion, error) {
	if c.apiKey == "" {
		return Completion{}, ErrMissingCredentials
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return Completion{}, fmt.Errorf("llm: rate limiter: %w", err)
	}

	body := responsesRequest{
		Model: req.Model,
		Input: []inputMessage{{
			Role:    "user",
			Content: []inputPart{{Type: "input_text", Text: req.Prompt}},
		}},
		MaxOutputTokens: req.MaxOutputTokens,
	}
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return Completion{}, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/responses", bytes.NewReader(bodyBytes))
	if err != nil {
		return Completion{}, fmt.Errorf("creating HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Completion{}, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Completion{}, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{StatusCode: resp.StatusCode, Message: truncate(strings.TrimSpace(string(respBytes)), 200)}
		var eb errorBody
		if json.Unmarshal(respBytes, &eb) == nil && eb.Error != nil {
			se.Type = eb.Error.Type
			se.Message = eb.Error.Message
		}
		return Completion{}, se
	}

	return Completion{Model: req.Model, Payload: ParsePayload(respBytes)}, nil
}
