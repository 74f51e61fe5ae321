package middleware

import (
	"context"

	"github.com/aetherflow/lobby/internal/lobby"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	userIDKey    contextKey = "user_id"
)

func requestIDToContext(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the request id, or ""
func RequestIDFromContext(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// UserIDToContext stores the calling player's id
func UserIDToContext(ctx context.Context, userID lobby.UserID) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext returns the calling player's id and whether one was set
func UserIDFromContext(ctx context.Context) (lobby.UserID, bool) {
	userID, ok := ctx.Value(userIDKey).(lobby.UserID)
	return userID, ok && userID != ""
}
