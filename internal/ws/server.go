package ws

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const maxFrameBytes = 64 << 10

// TokenVerifier resolves an identity token to a user id.
type TokenVerifier interface {
	GetUserID(token string) (string, error)
}

type Server struct {
	auth     TokenVerifier
	hub      *Hub
	upgrader *websocket.Upgrader
	config   ConnectionConfig
}

func NewServer(auth TokenVerifier, hub *Hub, config ConnectionConfig) *Server {
	return &Server{
		auth:   auth,
		hub:    hub,
		config: config,
		upgrader: &websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     SameOrigin,
		},
	}
}

// SameOrigin reports whether the request carries no Origin header or one
// matching the requested host. The token cookie rides along with
// cross-site requests, so they must not reach the chat or any write.
func SameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// TokenFromRequest extracts the identity token from the "token" header,
// an "Authorization: Bearer" header, the "token" cookie or the "token"
// query parameter, in that order.
func TokenFromRequest(r *http.Request) string {
	if token := r.Header.Get("token"); token != "" {
		return token
	}
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok && token != "" {
		return token
	}
	if cookie, err := r.Cookie("token"); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return r.URL.Query().Get("token")
}

func (s *Server) HandleConnections(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, err := s.auth.GetUserID(TokenFromRequest(r))
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("error upgrading to websocket", "user_id", userID, "error", err)
		return
	}
	ws.SetReadLimit(maxFrameBytes)

	conn := NewConnection(s.hub, ws, userID, s.config)
	slog.Info("connection opened", "conn_id", conn.ID(), "user_id", userID)

	start := time.Now()
	if err := conn.Handle(r.Context()); err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		slog.Warn("connection closed with error", "conn_id", conn.ID(), "user_id", userID, "error", err)
	}
	slog.Info("connection closed", "conn_id", conn.ID(), "user_id", userID, "duration", time.Since(start))
}
