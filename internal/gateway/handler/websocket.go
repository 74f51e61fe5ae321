package handler

import (
	"net/http"

	"github.com/aetherflow/lobby/internal/gateway/middleware"
	"github.com/aetherflow/lobby/internal/gateway/svc"
)

// WebSocketHandler upgrades to the lobby event stream
func WebSocketHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return svcCtx.WSServer.HandleWebSocket()
}

func WebSocketStatsHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		SuccessResponse(w, svcCtx.WSServer.Stats(), middleware.RequestIDFromContext(r.Context()))
	}
}
