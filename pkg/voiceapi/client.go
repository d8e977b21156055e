// Package voiceapi provides a client for the conversational voice
// platform's REST API (conversation listing and transcript retrieval).
package voiceapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/voicebridge/leadlink/internal/resilience"
)

// Client defines the voice platform operations used by the linker.
type Client interface {
	// ListConversations returns the most recent conversation summaries,
	// newest first.
	ListConversations(ctx context.Context, opts ...ListOption) (*ListResponse, error)
	// GetConversation fetches one conversation including its transcript.
	GetConversation(ctx context.Context, conversationID string) (*Conversation, error)
}

// Conversation is a call record as returned by the platform. Transcript
// ordering reflects chronological turn order and may be empty.
type Conversation struct {
	ConversationID  string    `json:"conversation_id"`
	Status          string    `json:"status"`
	StartTime       time.Time `json:"start_time"`
	DurationSeconds int       `json:"duration_seconds"`
	Transcript      []Message `json:"transcript,omitempty"`
}

// Message is a single transcript turn.
type Message struct {
	Role      string     `json:"role"`
	Text      string     `json:"text"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall is an agent tool invocation recorded in the transcript. The
// platform serializes Arguments either as a JSON object or as a
// JSON-encoded string depending on the agent version, so it is kept raw
// here and decoded by the caller.
type ToolCall struct {
	ToolName  string          `json:"tool_name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ListResponse is the paginated conversation listing.
type ListResponse struct {
	Conversations []Conversation `json:"conversations"`
	HasMore       bool           `json:"has_more"`
	NextCursor    string         `json:"next_cursor,omitempty"`
}

// ListOption configures a list request.
type ListOption func(*listOpts)

type listOpts struct {
	pageSize int
	cursor   string
}

// WithPageSize sets the number of conversations per page.
func WithPageSize(n int) ListOption {
	return func(o *listOpts) {
		o.pageSize = n
	}
}

// WithCursor resumes listing from a pagination cursor.
func WithCursor(cursor string) ListOption {
	return func(o *listOpts) {
		o.cursor = cursor
	}
}

// Option configures the voiceapi client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a voice platform API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://api.voicebridge.io/v1",
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// retryDo executes a GET request with exponential backoff retries on
// transient failures (408, 429, 5xx). Returns the response body and
// status code on success, or the last error after exhausting retries.
func (c *httpClient) retryDo(ctx context.Context, req *http.Request) ([]byte, int, error) {
	const maxAttempts = 3
	backoff := 1 * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		retryReq := req.Clone(ctx)

		resp, err := c.http.Do(retryReq)
		if err != nil {
			lastErr = err
			if attempt < maxAttempts {
				select {
				case <-ctx.Done():
					return nil, 0, ctx.Err()
				case <-time.After(backoff):
				}
				backoff *= 2
				continue
			}
			return nil, 0, lastErr
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, resp.StatusCode, eris.Wrap(readErr, "voiceapi: read response body")
		}

		if resilience.IsTransientHTTPStatus(resp.StatusCode) && attempt < maxAttempts {
			lastErr = eris.Errorf("voiceapi: status %d: %s", resp.StatusCode, string(body))
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			continue
		}

		return body, resp.StatusCode, nil
	}

	return nil, 0, lastErr
}

// statusError turns a non-OK response into an error, tagging retryable
// statuses as transient so callers can requeue the work.
func statusError(statusCode int, body []byte) error {
	err := eris.Errorf("voiceapi: unexpected status %d: %s", statusCode, string(body))
	if resilience.IsTransientHTTPStatus(statusCode) {
		return resilience.NewTransientError(err, statusCode)
	}
	return err
}

func (c *httpClient) ListConversations(ctx context.Context, opts ...ListOption) (*ListResponse, error) {
	lo := &listOpts{pageSize: 100}
	for _, opt := range opts {
		opt(lo)
	}

	q := url.Values{}
	q.Set("page_size", strconv.Itoa(lo.pageSize))
	if lo.cursor != "" {
		q.Set("cursor", lo.cursor)
	}
	reqURL := fmt.Sprintf("%s/conversations?%s", c.baseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "voiceapi: create list request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	body, statusCode, err := c.retryDo(ctx, req)
	if err != nil {
		return nil, eris.Wrap(err, "voiceapi: list request failed")
	}
	if statusCode != http.StatusOK {
		return nil, statusError(statusCode, body)
	}

	var result ListResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "voiceapi: unmarshal list response")
	}
	return &result, nil
}

func (c *httpClient) GetConversation(ctx context.Context, conversationID string) (*Conversation, error) {
	reqURL := fmt.Sprintf("%s/conversations/%s", c.baseURL, url.PathEscape(conversationID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "voiceapi: create get request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	body, statusCode, err := c.retryDo(ctx, req)
	if err != nil {
		return nil, eris.Wrapf(err, "voiceapi: get conversation %s", conversationID)
	}
	if statusCode == http.StatusNotFound {
		return nil, eris.Errorf("voiceapi: conversation not found: %s", conversationID)
	}
	if statusCode != http.StatusOK {
		return nil, statusError(statusCode, body)
	}

	var result Conversation
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "voiceapi: unmarshal conversation")
	}
	return &result, nil
}
