package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/splax/livelog/internal/stream"
)

// ErrStopStream may be returned by a StreamHandler to end Stream cleanly.
var ErrStopStream = errors.New("stop stream")

// StreamHandler receives decoded frames. Ping frames are filtered out.
type StreamHandler func(stream.Message) error

// StreamOptions scope a live subscription.
type StreamOptions struct {
	Session string
	Access  string
	// OnDisconnect is called with the cause each time the connection drops
	// before the client waits to reconnect.
	OnDisconnect func(error)
}

// Stream follows the server's event stream until ctx is cancelled or the
// handler returns an error. Dropped connections are retried after a fixed
// delay.
func (c *Client) Stream(ctx context.Context, opts StreamOptions, handler StreamHandler) error {
	if handler == nil {
		return fmt.Errorf("stream handler is required")
	}
	for {
		err := c.streamOnce(ctx, opts, handler)
		switch {
		case errors.Is(err, ErrStopStream):
			return nil
		case ctx.Err() != nil:
			return nil
		case isTerminal(err):
			return err
		}
		var handlerErr handlerError
		if errors.As(err, &handlerErr) {
			return handlerErr.err
		}
		if opts.OnDisconnect != nil {
			opts.OnDisconnect(err)
		}
		timer := time.NewTimer(c.reconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

type handlerError struct{ err error }

func (e handlerError) Error() string { return e.err.Error() }
func (e handlerError) Unwrap() error { return e.err }

// isTerminal reports whether reconnecting cannot help: the scope was
// rejected or does not exist.
func isTerminal(err error) bool {
	var apiErr APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return true
	}
	return false
}

func (c *Client) streamOnce(ctx context.Context, opts StreamOptions, handler StreamHandler) error {
	query := url.Values{}
	if s := strings.TrimSpace(opts.Session); s != "" {
		query.Set("session", s)
	}
	endpoint := c.baseURL + "/events"
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	if access := strings.TrimSpace(opts.Access); access != "" {
		req.Header.Set("Authorization", "Bearer "+access)
	}
	resp, err := c.streamClient.Do(req)
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return APIError{Status: resp.StatusCode, Message: extractError(resp.Body)}
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}
		msg, err := stream.Decode([]byte(payload))
		if err != nil {
			continue
		}
		if _, ok := msg.(stream.PingMessage); ok {
			continue
		}
		if err := handler(msg); err != nil {
			if errors.Is(err, ErrStopStream) {
				return err
			}
			return handlerError{err: err}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	return errors.New("stream closed by server")
}
