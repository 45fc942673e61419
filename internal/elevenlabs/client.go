package elevenlabs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// PageSize is the provider's conversations page size.
const PageSize = 100

// Window is a half-open [Start, End) interval in epoch seconds.
type Window struct {
	StartUnix int64
	EndUnix   int64
}

// ProviderFetchError wraps any failure talking to the call-log provider:
// transport errors, non-2xx responses and malformed bodies. Callers must
// not apply partial results when one is returned.
type ProviderFetchError struct {
	Window Window
	Cause  error
}

func (e *ProviderFetchError) Error() string {
	return fmt.Sprintf("provider fetch failed for window [%d, %d): %v", e.Window.StartUnix, e.Window.EndUnix, e.Cause)
}

func (e *ProviderFetchError) Unwrap() error { return e.Cause }

// Client is an HTTP client for the conversational-AI provider API.
// The provider is treated as untrusted, rate-limited and eventually
// consistent; requests are not retried, a transient failure is surfaced
// to the caller immediately.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// Config holds provider client configuration
type Config struct {
	BaseURL string        // e.g. "https://api.elevenlabs.io"
	APIKey  string        // xi-api-key header value
	Timeout time.Duration // HTTP request timeout (default: 30s)
}

// NewClient creates a new provider API client
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,

		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,

		ForceAttemptHTTP2:     true,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
	}

	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		logger: logger,
	}
}

// ListConversations fetches one page of conversations whose call start time
// falls in the window. Pass an empty cursor for the first page.
func (c *Client) ListConversations(ctx context.Context, w Window, cursor string) (*ConversationsPage, error) {
	q := url.Values{}
	q.Set("call_start_after_unix", strconv.FormatInt(w.StartUnix, 10))
	q.Set("call_start_before_unix", strconv.FormatInt(w.EndUnix, 10))
	q.Set("page_size", strconv.Itoa(PageSize))
	if cursor != "" {
		q.Set("cursor", cursor)
	}

	var page ConversationsPage
	if err := c.get(ctx, "/v1/convai/conversations?"+q.Encode(), &page); err != nil {
		return nil, &ProviderFetchError{Window: w, Cause: err}
	}

	c.logger.Debug("fetched conversations page",
		zap.Int64("start_unix", w.StartUnix),
		zap.Int64("end_unix", w.EndUnix),
		zap.Int("count", len(page.Conversations)),
		zap.Bool("has_more", page.HasMore),
	)
	return &page, nil
}

// GetConversation fetches the full detail for one conversation.
func (c *Client) GetConversation(ctx context.Context, id string) (*ConversationDetail, error) {
	var detail ConversationDetail
	if err := c.get(ctx, "/v1/convai/conversations/"+url.PathEscape(id), &detail); err != nil {
		return nil, &ProviderFetchError{Cause: err}
	}
	return &detail, nil
}

// GetConversationAudio fetches the recorded audio for one conversation.
func (c *Client) GetConversationAudio(ctx context.Context, id string) (*Audio, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/v1/convai/conversations/"+url.PathEscape(id)+"/audio", nil)
	if err != nil {
		return nil, &ProviderFetchError{Cause: err}
	}
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ProviderFetchError{Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &ProviderFetchError{Cause: fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ProviderFetchError{Cause: fmt.Errorf("read audio body: %w", err)}
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	return &Audio{ContentType: contentType, Data: data}, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("xi-api-key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
