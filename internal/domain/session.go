package domain

import "time"

// Session groups error reports under a named viewing scope.
type Session struct {
	Token        string
	Name         string
	PasswordHash []byte
	CreatedAt    time.Time
	IsSaved      bool
}

// Protected reports whether joining the session requires a password.
func (s Session) Protected() bool {
	return len(s.PasswordHash) > 0
}
