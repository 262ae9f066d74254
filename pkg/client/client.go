package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/splax/livelog/internal/domain"
)

const (
	defaultBaseURL   = "http://localhost:3000"
	maxErrorBodySize = 4 << 10
)

// Client provides typed access to a livelog server.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	streamClient   *http.Client
	reconnectDelay time.Duration
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the client used for request/response calls.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithStreamClient overrides the client used for long-lived stream reads.
// It should not carry a request timeout.
func WithStreamClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.streamClient = h
		}
	}
}

// WithReconnectDelay sets the fixed pause between stream reconnects.
func WithReconnectDelay(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.reconnectDelay = d
		}
	}
}

// New constructs a Client pointing at the provided server base URL.
func New(base string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		trimmed = defaultBaseURL
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	cli := &Client{
		baseURL:        strings.TrimRight(trimmed, "/"),
		httpClient:     &http.Client{Timeout: 15 * time.Second},
		streamClient:   &http.Client{},
		reconnectDelay: 3 * time.Second,
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

// BaseURL returns the normalised server address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// APIError represents an error response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("livelog request failed with status %d", e.Status)
	}
	return fmt.Sprintf("livelog request failed (%d): %s", e.Status, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, body any, token string, v any) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(token) != "" {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(token))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return APIError{Status: resp.StatusCode, Message: extractError(resp.Body)}
	}
	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func extractError(body io.Reader) string {
	if body == nil {
		return ""
	}
	data, err := io.ReadAll(io.LimitReader(body, maxErrorBodySize))
	if err != nil || len(data) == 0 {
		return ""
	}
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return strings.TrimSpace(string(data))
	}
	return strings.TrimSpace(payload.Error)
}

// ErrorEvent is an archived or streamed error report.
type ErrorEvent = domain.ErrorEvent

// Report is the payload accepted by the ingest endpoint. Empty fields are
// omitted and stamped by the server.
type Report struct {
	Type         string `json:"type,omitempty"`
	Message      string `json:"message"`
	Source       string `json:"source,omitempty"`
	Line         int    `json:"line,omitempty"`
	Column       int    `json:"column,omitempty"`
	Stack        string `json:"stack,omitempty"`
	URL          string `json:"url,omitempty"`
	UserAgent    string `json:"userAgent,omitempty"`
	Timestamp    string `json:"timestamp,omitempty"`
	SessionToken string `json:"sessionToken,omitempty"`
}

// ReportAck acknowledges an accepted report.
type ReportAck struct {
	Status string `json:"status"`
	ID     string `json:"id"`
}

// Report submits an error report.
func (c *Client) Report(ctx context.Context, report Report) (ReportAck, error) {
	var ack ReportAck
	if err := c.do(ctx, http.MethodPost, "/api/error", report, "", &ack); err != nil {
		return ReportAck{}, err
	}
	return ack, nil
}

// Archive returns every persisted error in arrival order.
func (c *Client) Archive(ctx context.Context) ([]ErrorEvent, error) {
	var events []ErrorEvent
	if err := c.do(ctx, http.MethodGet, "/archive", nil, "", &events); err != nil {
		return nil, err
	}
	return events, nil
}

// Recent returns the newest errors held in memory. A limit of zero uses the
// server default.
func (c *Client) Recent(ctx context.Context, limit int) ([]ErrorEvent, error) {
	path := "/api/errors/recent"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var events []ErrorEvent
	if err := c.do(ctx, http.MethodGet, path, nil, "", &events); err != nil {
		return nil, err
	}
	return events, nil
}

// Status summarises server state.
type Status struct {
	Status        string         `json:"status"`
	Clients       int            `json:"clients"`
	Buffered      int            `json:"buffered"`
	Evicted       uint64         `json:"evicted"`
	Reaped        uint64         `json:"reaped"`
	Recent        int            `json:"recent"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Storage       string         `json:"storage"`
	Components    map[string]any `json:"components"`
}

// Status fetches server statistics.
func (c *Client) Status(ctx context.Context) (Status, error) {
	var status Status
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, "", &status); err != nil {
		return Status{}, err
	}
	return status, nil
}

// Session describes a named viewing scope.
type Session struct {
	Token     string    `json:"token"`
	Name      string    `json:"name"`
	Protected bool      `json:"protected"`
	CreatedAt time.Time `json:"createdAt"`
	IsSaved   bool      `json:"isSaved"`
}

// CreateSessionInput captures the payload for session creation.
type CreateSessionInput struct {
	Name     string `json:"name"`
	Password string `json:"password,omitempty"`
	Save     bool   `json:"save"`
}

// CreateSession provisions a new session.
func (c *Client) CreateSession(ctx context.Context, input CreateSessionInput) (Session, error) {
	var session Session
	if err := c.do(ctx, http.MethodPost, "/api/sessions", input, "", &session); err != nil {
		return Session{}, err
	}
	return session, nil
}

// ListSessions returns saved sessions.
func (c *Client) ListSessions(ctx context.Context) ([]Session, error) {
	var sessions []Session
	if err := c.do(ctx, http.MethodGet, "/api/sessions", nil, "", &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// GetSession fetches a single session.
func (c *Client) GetSession(ctx context.Context, token string) (Session, error) {
	var session Session
	path := "/api/sessions/" + url.PathEscape(token)
	if err := c.do(ctx, http.MethodGet, path, nil, "", &session); err != nil {
		return Session{}, err
	}
	return session, nil
}

// DeleteSession removes a session.
func (c *Client) DeleteSession(ctx context.Context, token string) error {
	path := "/api/sessions/" + url.PathEscape(token)
	return c.do(ctx, http.MethodDelete, path, nil, "", nil)
}

// JoinResponse carries the viewer token for a session.
type JoinResponse struct {
	Token     string    `json:"token"`
	Name      string    `json:"name"`
	Access    string    `json:"access"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// JoinSession exchanges a session password for a viewer token.
func (c *Client) JoinSession(ctx context.Context, token, password string) (JoinResponse, error) {
	body := map[string]string{"password": password}
	path := "/api/sessions/" + url.PathEscape(token) + "/join"
	var resp JoinResponse
	if err := c.do(ctx, http.MethodPost, path, body, "", &resp); err != nil {
		return JoinResponse{}, err
	}
	return resp, nil
}
