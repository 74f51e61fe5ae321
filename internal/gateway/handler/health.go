package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/aetherflow/lobby/internal/gateway/svc"
	"github.com/aetherflow/lobby/internal/online"
)

const (
	serviceName    = "lobby-gateway"
	serviceVersion = "0.1.0"
)

// HealthResponse is the body of /health
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Version   string    `json:"version"`
	Loop      string    `json:"loop"`
	Registry  string    `json:"registry"`
}

// HealthCheckHandler reports DOWN when the lobby loop has stopped and
// DEGRADED while the registry circuit is open
func HealthCheckHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := HealthResponse{
			Status:    "UP",
			Timestamp: time.Now(),
			Service:   serviceName,
			Version:   serviceVersion,
			Loop:      "UP",
			Registry:  svcCtx.Guard.State().String(),
		}

		ctx, cancel := context.WithTimeout(r.Context(), time.Second)
		defer cancel()
		if err := svcCtx.Loop.Do(ctx, func() {}); err != nil {
			response.Status = "DOWN"
			response.Loop = "DOWN"
		} else if svcCtx.Guard.State() == online.GuardOpen {
			response.Status = "DEGRADED"
		}

		statusCode := http.StatusOK
		if response.Status == "DOWN" {
			statusCode = http.StatusServiceUnavailable
		}
		writeJSON(w, statusCode, Response{Code: 0, Message: "success", Data: response})
	}
}

func PingHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("pong"))
	}
}

// VersionResponse is the body of /version
type VersionResponse struct {
	Service   string    `json:"service"`
	Version   string    `json:"version"`
	GoVersion string    `json:"go_version"`
	Timestamp time.Time `json:"timestamp"`
}

func VersionHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		SuccessResponse(w, VersionResponse{
			Service:   serviceName,
			Version:   serviceVersion,
			GoVersion: runtime.Version(),
			Timestamp: time.Now(),
		}, "")
	}
}
