package handler

import (
	"net/http"

	"github.com/zeromicro/go-zero/rest"

	"github.com/aetherflow/lobby/internal/gateway/svc"
)

// RegisterHandlers registers every route
func RegisterHandlers(server *rest.Server, svcCtx *svc.ServiceContext) {
	wsPath := svcCtx.Config.WebSocket.Path
	if wsPath == "" {
		wsPath = "/ws"
	}

	server.AddRoutes(
		[]rest.Route{
			{Method: http.MethodGet, Path: "/health", Handler: HealthCheckHandler(svcCtx)},
			{Method: http.MethodGet, Path: "/ping", Handler: PingHandler(svcCtx)},
			{Method: http.MethodGet, Path: "/version", Handler: VersionHandler(svcCtx)},
			{Method: http.MethodGet, Path: wsPath, Handler: WebSocketHandler(svcCtx)},
			{Method: http.MethodGet, Path: wsPath + "/stats", Handler: WebSocketStatsHandler(svcCtx)},
		},
	)

	server.AddRoutes(LobbyRoutes(svcCtx), rest.WithPrefix("/api/v1/lobby"))
}

// LobbyRoutes lists the session lifecycle routes, relative to /api/v1/lobby
func LobbyRoutes(svcCtx *svc.ServiceContext) []rest.Route {
	return []rest.Route{
		{Method: http.MethodPost, Path: "/host", Handler: HostHandler(svcCtx)},
		{Method: http.MethodPost, Path: "/find", Handler: FindHandler(svcCtx)},
		{Method: http.MethodGet, Path: "/results", Handler: ResultsHandler(svcCtx)},
		{Method: http.MethodPost, Path: "/join", Handler: JoinHandler(svcCtx)},
		{Method: http.MethodPost, Path: "/leave", Handler: LeaveHandler(svcCtx)},
		{Method: http.MethodPost, Path: "/reset", Handler: ResetHandler(svcCtx)},
		{Method: http.MethodGet, Path: "/state", Handler: StateHandler(svcCtx)},
		{Method: http.MethodGet, Path: "/status", Handler: StatusHandler(svcCtx)},
		{Method: http.MethodGet, Path: "/world", Handler: WorldHandler(svcCtx)},
	}
}
