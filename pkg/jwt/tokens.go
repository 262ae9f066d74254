package jwt

import (
	"errors"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

const issuer = "livelog"

// ErrSessionMismatch is returned when a token was issued for another session.
var ErrSessionMismatch = errors.New("token issued for a different session")

// ViewerClaims grants read access to one session's stream.
type ViewerClaims struct {
	Session string `json:"session"`
	jwtlib.RegisteredClaims
}

// IssueViewerToken signs a viewer token for session valid for ttl.
func IssueViewerToken(session, secret string, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	expires := now.Add(ttl)
	claims := ViewerClaims{
		Session: session,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Issuer:    issuer,
			Subject:   session,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(expires),
		},
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

// ParseViewerToken validates token and extracts its claims.
func ParseViewerToken(token, secret string) (*ViewerClaims, error) {
	parsed, err := jwtlib.ParseWithClaims(token, &ViewerClaims{}, func(t *jwtlib.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Name}), jwtlib.WithIssuer(issuer))
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*ViewerClaims)
	if !ok || !parsed.Valid {
		return nil, jwtlib.ErrTokenInvalidClaims
	}
	return claims, nil
}

// VerifyViewerToken checks that token is valid and was issued for session.
func VerifyViewerToken(token, session, secret string) error {
	claims, err := ParseViewerToken(token, secret)
	if err != nil {
		return err
	}
	if claims.Session != session {
		return ErrSessionMismatch
	}
	return nil
}
