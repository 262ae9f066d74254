package domain

import "time"

// ErrorEvent is a runtime error reported by a client application.
type ErrorEvent struct {
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	Type          string    `json:"type"`
	Message       string    `json:"message"`
	Source        string    `json:"source,omitempty"`
	Line          int       `json:"line,omitempty"`
	Column        int       `json:"column,omitempty"`
	Stack         string    `json:"stack,omitempty"`
	URL           string    `json:"url,omitempty"`
	UserAgent     string    `json:"userAgent,omitempty"`
	RemoteAddress string    `json:"remoteAddress,omitempty"`
	SessionToken  string    `json:"sessionToken,omitempty"`
}

// DefaultErrorType is applied when a report carries neither type nor level.
const DefaultErrorType = "error"
