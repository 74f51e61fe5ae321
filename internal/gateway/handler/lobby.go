package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/zeromicro/go-zero/rest/httpx"

	"github.com/aetherflow/lobby/internal/gateway/middleware"
	"github.com/aetherflow/lobby/internal/gateway/svc"
	"github.com/aetherflow/lobby/internal/lobby"
	"github.com/aetherflow/lobby/internal/world"
)

const loopTimeout = 3 * time.Second

// HostRequest is the body of POST /lobby/host
type HostRequest struct {
	MapName    string `json:"map_name"`
	SessionID  string `json:"session_id,optional"`
	MaxPlayers int    `json:"max_players,optional"`
	LAN        *bool  `json:"lan,optional"`
	Presence   *bool  `json:"presence,optional"`
}

// FindRequest is the body of POST /lobby/find
type FindRequest struct {
	SessionID string `json:"session_id,optional"`
	AutoJoin  bool   `json:"auto_join,optional"`
	LAN       *bool  `json:"lan,optional"`
	Presence  *bool  `json:"presence,optional"`
}

// JoinRequest is the body of POST /lobby/join. An empty key joins the
// first result not owned by the caller.
type JoinRequest struct {
	Key string `json:"key,optional"`
}

// ResetRequest is the body of POST /lobby/reset
type ResetRequest struct {
	Op string `json:"op"`
}

// ResultView is one search result as returned to clients
type ResultView struct {
	Key        string            `json:"key"`
	Owner      lobby.UserID      `json:"owner"`
	SessionID  string            `json:"session_id,omitempty"`
	Settings   map[string]string `json:"settings,omitempty"`
	MaxPlayers int               `json:"max_players"`
	OpenSlots  int               `json:"open_slots"`
	PingMs     int               `json:"ping_ms"`
}

// StateView is the body of GET /lobby/state
type StateView struct {
	lobby.ConnectionState
	Phase            string   `json:"phase"`
	CurrentSessionID string   `json:"current_session_id,omitempty"`
	Pending          []string `json:"pending,omitempty"`
}

// WorldView is the body of GET /lobby/world
type WorldView struct {
	world.Context
	Participants int  `json:"participants"`
	Authority    bool `json:"authority"`
}

// HostHandler hosts a session and travels to its map once started
func HostHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.RequestIDFromContext(r.Context())

		var req HostRequest
		if err := httpx.ParseJsonBody(r, &req); err != nil {
			BadRequestResponse(w, "Invalid request body: "+err.Error(), requestID)
			return
		}
		if req.MapName == "" {
			BadRequestResponse(w, "map_name is required", requestID)
			return
		}
		if req.SessionID == "" {
			req.SessionID = uuid.NewString()
		}
		if req.MaxPlayers <= 0 {
			req.MaxPlayers = svcCtx.Config.Lobby.MaxPlayers
		}
		lan := flag(req.LAN, svcCtx.Config.Lobby.LAN)
		presence := flag(req.Presence, svcCtx.Config.Lobby.Presence)
		user := requestUser(r, svcCtx)

		err := do(r.Context(), svcCtx, func(c *lobby.Controller) error {
			return c.HostSession(user, req.MapName, req.SessionID, c.GameSessionName(), lan, presence, req.MaxPlayers)
		})
		if err != nil {
			LobbyErrorResponse(w, err, requestID)
			return
		}

		AcceptedResponse(w, map[string]interface{}{
			"session_id":  req.SessionID,
			"map_name":    req.MapName,
			"max_players": req.MaxPlayers,
		}, requestID)
	}
}

// FindHandler starts a search; with auto_join the first match is joined
func FindHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.RequestIDFromContext(r.Context())

		var req FindRequest
		if err := httpx.ParseJsonBody(r, &req); err != nil {
			BadRequestResponse(w, "Invalid request body: "+err.Error(), requestID)
			return
		}
		lan := flag(req.LAN, svcCtx.Config.Lobby.LAN)
		presence := flag(req.Presence, svcCtx.Config.Lobby.Presence)

		var player lobby.Player
		if user := requestUser(r, svcCtx); user.Valid() {
			player = lobby.LocalPlayer(user)
		}

		err := do(r.Context(), svcCtx, func(c *lobby.Controller) error {
			return c.FindSessions(player, lan, presence, req.AutoJoin, req.SessionID)
		})
		if err != nil {
			LobbyErrorResponse(w, err, requestID)
			return
		}

		AcceptedResponse(w, map[string]interface{}{
			"session_id": req.SessionID,
			"auto_join":  req.AutoJoin,
		}, requestID)
	}
}

// ResultsHandler returns the candidates of the last completed search
func ResultsHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.RequestIDFromContext(r.Context())

		var results []lobby.SearchResult
		err := do(r.Context(), svcCtx, func(c *lobby.Controller) error {
			results = c.Results()
			return nil
		})
		if err != nil {
			LobbyErrorResponse(w, err, requestID)
			return
		}

		views := make([]ResultView, 0, len(results))
		for _, res := range results {
			sessionID, _ := res.SessionID()
			views = append(views, ResultView{
				Key:        res.Key,
				Owner:      res.OwningUserID,
				SessionID:  sessionID,
				Settings:   res.Settings,
				MaxPlayers: res.MaxPlayers,
				OpenSlots:  res.OpenSlots,
				PingMs:     res.PingMs,
			})
		}
		SuccessResponse(w, views, requestID)
	}
}

// JoinHandler joins a result of the last search
func JoinHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.RequestIDFromContext(r.Context())

		var req JoinRequest
		if err := httpx.ParseJsonBody(r, &req); err != nil {
			BadRequestResponse(w, "Invalid request body: "+err.Error(), requestID)
			return
		}
		user := requestUser(r, svcCtx)
		local := user == lobby.UserID(svcCtx.Config.Lobby.LocalUserID)

		err := do(r.Context(), svcCtx, func(c *lobby.Controller) error {
			if req.Key == "" && local {
				return c.JoinOnlineGame()
			}
			for _, res := range c.Results() {
				if req.Key == "" && res.OwningUserID == user {
					continue
				}
				if req.Key != "" && res.Key != req.Key {
					continue
				}
				return c.JoinSession(user, c.GameSessionName(), res)
			}
			return fmt.Errorf("join %q: %w", req.Key, lobby.ErrNoMatchingSession)
		})
		if err != nil {
			LobbyErrorResponse(w, err, requestID)
			return
		}

		AcceptedResponse(w, nil, requestID)
	}
}

// LeaveHandler destroys the current session and returns to the idle context
func LeaveHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.RequestIDFromContext(r.Context())

		err := do(r.Context(), svcCtx, func(c *lobby.Controller) error {
			return c.DestroySessionAndLeaveGame()
		})
		if err != nil {
			LobbyErrorResponse(w, err, requestID)
			return
		}

		AcceptedResponse(w, nil, requestID)
	}
}

// ResetHandler abandons a pending operation
func ResetHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.RequestIDFromContext(r.Context())

		var req ResetRequest
		if err := httpx.ParseJsonBody(r, &req); err != nil {
			BadRequestResponse(w, "Invalid request body: "+err.Error(), requestID)
			return
		}
		op, ok := lobby.ParseOperation(req.Op)
		if !ok {
			BadRequestResponse(w, "unknown operation: "+req.Op, requestID)
			return
		}

		var released bool
		err := do(r.Context(), svcCtx, func(c *lobby.Controller) error {
			released = c.Reset(op)
			return nil
		})
		if err != nil {
			LobbyErrorResponse(w, err, requestID)
			return
		}

		SuccessResponse(w, map[string]interface{}{
			"op":       op.String(),
			"released": released,
		}, requestID)
	}
}

// StateHandler returns the connection state
func StateHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.RequestIDFromContext(r.Context())

		var view StateView
		err := do(r.Context(), svcCtx, func(c *lobby.Controller) error {
			view.ConnectionState = c.State()
			view.Phase = view.ConnectionState.Phase()
			view.CurrentSessionID = c.CurrentSessionID()
			for _, op := range lobby.Operations {
				if c.Pending(op) {
					view.Pending = append(view.Pending, op.String())
				}
			}
			return nil
		})
		if err != nil {
			LobbyErrorResponse(w, err, requestID)
			return
		}

		SuccessResponse(w, view, requestID)
	}
}

// StatusHandler reports whether the caller is in a multi-participant game
func StatusHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.RequestIDFromContext(r.Context())

		var player lobby.Player
		if user := requestUser(r, svcCtx); user.Valid() {
			player = lobby.LocalPlayer(user)
		}

		var status lobby.OnlineStatus
		err := do(r.Context(), svcCtx, func(c *lobby.Controller) error {
			status = c.OnlineStatus(player)
			return nil
		})
		if err != nil {
			LobbyErrorResponse(w, err, requestID)
			return
		}

		SuccessResponse(w, status, requestID)
	}
}

// WorldHandler returns the active context and roster
func WorldHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		SuccessResponse(w, WorldView{
			Context:      svcCtx.World.Current(),
			Participants: svcCtx.World.ParticipantCount(),
			Authority:    svcCtx.World.HasAuthority(),
		}, middleware.RequestIDFromContext(r.Context()))
	}
}

// requestUser returns the X-User-ID identity, or the configured local user
func requestUser(r *http.Request, svcCtx *svc.ServiceContext) lobby.UserID {
	if user, ok := middleware.UserIDFromContext(r.Context()); ok {
		return user
	}
	return lobby.UserID(svcCtx.Config.Lobby.LocalUserID)
}

// do runs fn on the lobby loop and returns its error
func do(ctx context.Context, svcCtx *svc.ServiceContext, fn func(c *lobby.Controller) error) error {
	ctx, cancel := context.WithTimeout(ctx, loopTimeout)
	defer cancel()

	var err error
	if loopErr := svcCtx.Do(ctx, func(c *lobby.Controller) {
		err = fn(c)
	}); loopErr != nil {
		return loopErr
	}
	return err
}

func flag(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
