package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/estatehub/realtime/internal/application/realtime"
	"github.com/estatehub/realtime/internal/domain"
	"github.com/estatehub/realtime/internal/infrastructure/ws"
	"github.com/estatehub/realtime/internal/pkg/id"
	"github.com/estatehub/realtime/internal/transport/http/middleware"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// Control messages accepted from clients.
const (
	cmdJoin          = "join"
	cmdJoinProperty  = "joinProperty"
	cmdLeaveProperty = "leaveProperty"
	cmdJoinAdmin     = "joinAdmin"
)

// Frames the socket answers commands with.
const (
	eventJoined = "joined"
	eventLeft   = "left"
	eventError  = "error"
)

type command struct {
	Type       string `json:"type"`
	UserID     string `json:"userId,omitempty"`
	PropertyID string `json:"propertyId,omitempty"`
}

// RoomAck confirms a join or leave.
type RoomAck struct {
	Room string `json:"room"`
}

// CommandError explains why a command was refused. The connection stays open.
type CommandError struct {
	Command string `json:"command,omitempty"`
	Message string `json:"message"`
}

type SocketDeps struct {
	Registry *realtime.Registry
	Upgrader *websocket.Upgrader
	Client   ws.Options
	// CommandRate and CommandBurst bound control messages per connection.
	CommandRate  rate.Limit
	CommandBurst int
	// Base is cancelled on shutdown and closes every open socket.
	Base context.Context
	Log  *slog.Logger
}

// SocketHandler upgrades authenticated requests to live event connections.
type SocketHandler struct {
	deps SocketDeps
}

func NewSocketHandler(deps SocketDeps) *SocketHandler {
	if deps.Upgrader == nil {
		deps.Upgrader = ws.NewUpgrader([]string{"*"})
	}
	if deps.Base == nil {
		deps.Base = context.Background()
	}
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	if deps.CommandRate <= 0 {
		deps.CommandRate = 10
	}
	if deps.CommandBurst <= 0 {
		deps.CommandBurst = 20
	}
	return &SocketHandler{deps: deps}
}

func (h *SocketHandler) Serve(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	conn, err := h.deps.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already answered the request.
		h.deps.Log.Debug("websocket upgrade failed", "user_id", claims.UserID, "err", err)
		return
	}

	client := ws.NewClient(id.New(), conn, h.deps.Client, h.deps.Log)
	reg := h.deps.Registry
	reg.Register(client)
	defer reg.UnregisterAll(client.ID())

	s := &socketSession{
		client:  client,
		userID:  claims.UserID,
		role:    claims.Role,
		reg:     reg,
		limiter: rate.NewLimiter(h.deps.CommandRate, h.deps.CommandBurst),
		log:     h.deps.Log,
	}
	h.deps.Log.Debug("socket connected", "conn_id", client.ID(), "user_id", claims.UserID)
	if err := client.Run(h.deps.Base, s.handle); err != nil {
		h.deps.Log.Warn("socket closed with error", "conn_id", client.ID(), "user_id", claims.UserID, "err", err)
		return
	}
	h.deps.Log.Debug("socket disconnected", "conn_id", client.ID(), "user_id", claims.UserID)
}

// socketSession applies one connection's control messages to the registry.
type socketSession struct {
	client  *ws.Client
	userID  string
	role    string
	reg     *realtime.Registry
	limiter *rate.Limiter
	log     *slog.Logger
}

func (s *socketSession) handle(msg []byte) {
	if !s.limiter.Allow() {
		s.reject("", "rate limit exceeded")
		return
	}
	var cmd command
	if err := json.Unmarshal(msg, &cmd); err != nil {
		s.reject("", "malformed command")
		return
	}

	switch cmd.Type {
	case cmdJoin:
		if cmd.UserID != "" && cmd.UserID != s.userID {
			s.reject(cmd.Type, "cannot join another user's room")
			return
		}
		s.join(cmd.Type, domain.PersonalRoom(s.userID))
	case cmdJoinProperty:
		if cmd.PropertyID == "" {
			s.reject(cmd.Type, "propertyId is required")
			return
		}
		s.join(cmd.Type, domain.PropertyRoom(cmd.PropertyID))
	case cmdLeaveProperty:
		if cmd.PropertyID == "" {
			s.reject(cmd.Type, "propertyId is required")
			return
		}
		room := domain.PropertyRoom(cmd.PropertyID)
		s.reg.Leave(s.client.ID(), room)
		s.reply(eventLeft, RoomAck{Room: room.Key()})
	case cmdJoinAdmin:
		if s.role != domain.RoleAdmin {
			s.reject(cmd.Type, "admin role required")
			return
		}
		s.join(cmd.Type, domain.AdminRoom())
	default:
		s.reject(cmd.Type, "unknown command")
	}
}

func (s *socketSession) join(cmd string, room domain.Room) {
	if !s.reg.Join(s.client.ID(), room) {
		s.reject(cmd, "cannot join room")
		return
	}
	s.reply(eventJoined, RoomAck{Room: room.Key()})
}

func (s *socketSession) reject(cmd, message string) {
	s.reply(eventError, CommandError{Command: cmd, Message: message})
}

func (s *socketSession) reply(event string, payload any) {
	msg, err := realtime.EncodeFrame(event, payload)
	if err != nil {
		s.log.Error("encode reply", "conn_id", s.client.ID(), "event", event, "err", err)
		return
	}
	if err := s.client.Send(msg); err != nil {
		s.log.Warn("reply dropped", "conn_id", s.client.ID(), "event", event, "err", err)
	}
}
