package httpx

import (
	"context"
	"errors"
	"net/http"

	"github.com/splax/livelog/internal/stream"
)

const wsReadLimit = 1 << 10

func (r *Router) handleSSE(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	scope, ok := r.streamScope(w, req)
	if !ok {
		return
	}
	if !supportsFlush(w) {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	flusher := w.(http.Flusher)

	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	client := stream.NewSSEClient(w, flusher)
	r.subscribe(req.Context(), client, clientIP(req), scope)
}

func (r *Router) handleWS(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	scope, ok := r.streamScope(w, req)
	if !ok {
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	conn.SetReadLimit(wsReadLimit)
	client := stream.NewWSClient(conn)

	ctx, cancel := context.WithCancel(req.Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	r.subscribe(ctx, client, clientIP(req), scope)
}

func (r *Router) subscribe(ctx context.Context, sub stream.Subscriber, ip, scope string) {
	err := r.hub.Subscribe(ctx, sub, ip, scope)
	switch {
	case err == nil:
	case errors.Is(err, stream.ErrHubClosed):
		r.logger.Info("stream rejected during shutdown", "ip", ip)
		sub.Close()
	default:
		r.logger.Debug("stream ended", "ip", ip, "error", err)
	}
}
