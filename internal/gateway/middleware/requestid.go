package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/aetherflow/lobby/internal/lobby"
)

const (
	// RequestIDHeader carries the request id
	RequestIDHeader = "X-Request-ID"
	// UserIDHeader names the player a request acts for
	UserIDHeader = "X-User-ID"
)

// RequestIDMiddleware tags every request with a UUIDv7 unless the caller sent one
func RequestIDMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			id, err := uuid.NewV7()
			if err != nil {
				requestID = "unknown"
			} else {
				requestID = id.String()
			}
		}

		w.Header().Set(RequestIDHeader, requestID)
		next(w, r.WithContext(requestIDToContext(r.Context(), requestID)))
	}
}

// UserMiddleware copies the X-User-ID header into the request context
func UserMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if userID := r.Header.Get(UserIDHeader); userID != "" {
			r = r.WithContext(UserIDToContext(r.Context(), lobby.UserID(userID)))
		}
		next(w, r)
	}
}
