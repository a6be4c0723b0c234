package handlers

import (
	"context"

	"github.com/vivoor/vivoor-api/internal/models"
)

// Context keys
type contextKey string

const (
	// SessionKey is the key for the authenticated session in the context
	SessionKey contextKey = "session"
)

// NewContextWithSession adds the caller's session to the context
func NewContextWithSession(ctx context.Context, s *models.Session) context.Context {
	return context.WithValue(ctx, SessionKey, s)
}

// SessionFromContext extracts the session from the context
func SessionFromContext(ctx context.Context) (*models.Session, bool) {
	s, ok := ctx.Value(SessionKey).(*models.Session)
	return s, ok && s != nil
}
