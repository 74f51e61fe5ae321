package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aetherflow/lobby/internal/lobby"
)

// Response is the envelope of every JSON reply
type Response struct {
	Code      int         `json:"code"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, statusCode int, response Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(response)
}

// SuccessResponse writes a 200
func SuccessResponse(w http.ResponseWriter, data interface{}, requestID string) {
	writeJSON(w, http.StatusOK, Response{
		Code:      0,
		Message:   "success",
		Data:      data,
		RequestID: requestID,
	})
}

// AcceptedResponse writes a 202 for an operation whose outcome arrives later
func AcceptedResponse(w http.ResponseWriter, data interface{}, requestID string) {
	writeJSON(w, http.StatusAccepted, Response{
		Code:      0,
		Message:   "accepted",
		Data:      data,
		RequestID: requestID,
	})
}

// ErrorResponse writes an error envelope with statusCode
func ErrorResponse(w http.ResponseWriter, statusCode int, message string, requestID string) {
	writeJSON(w, statusCode, Response{
		Code:      statusCode,
		Message:   message,
		RequestID: requestID,
	})
}

// BadRequestResponse 400
func BadRequestResponse(w http.ResponseWriter, message string, requestID string) {
	ErrorResponse(w, http.StatusBadRequest, message, requestID)
}

// NotFoundResponse 404
func NotFoundResponse(w http.ResponseWriter, message string, requestID string) {
	ErrorResponse(w, http.StatusNotFound, message, requestID)
}

// InternalServerErrorResponse 500
func InternalServerErrorResponse(w http.ResponseWriter, message string, requestID string) {
	ErrorResponse(w, http.StatusInternalServerError, message, requestID)
}

// LobbyErrorResponse maps a controller error to its HTTP status
func LobbyErrorResponse(w http.ResponseWriter, err error, requestID string) {
	ErrorResponse(w, statusOf(err), err.Error(), requestID)
}

// statusOf maps lobby and context errors to HTTP status codes
func statusOf(err error) int {
	switch {
	case errors.Is(err, lobby.ErrInvalidUser):
		return http.StatusBadRequest
	case errors.Is(err, lobby.ErrNoMatchingSession):
		return http.StatusNotFound
	case errors.Is(err, lobby.ErrRequestRejected):
		return http.StatusConflict
	case errors.Is(err, lobby.ErrBackendUnavailable), errors.Is(err, lobby.ErrLoopClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
