package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"veranda/internal/filestore"
	"veranda/internal/forum"
	"veranda/internal/friends"
	"veranda/internal/models"
	"veranda/internal/ws"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

type TokenVerifier interface {
	GetUserID(token string) (string, error)
}

type Store interface {
	GetUser(id string) (models.User, error)
	ListUsers() ([]models.User, error)
	UpdateUser(id string, fn func(*models.User) error) (models.User, error)
	ListMessagesBefore(roomID string, before int64, limit int) ([]models.Message, error)
	UpsertPushSubscription(sub models.PushSubscription) error
}

type Hub interface {
	UpsertProfile(userID string, profile *models.Profile) (models.User, error)
	ListRooms(userID string) ([]models.Room, error)
}

type Deps struct {
	Auth           TokenVerifier
	Store          Store
	Hub            Hub
	Forum          *forum.Service
	Friends        *friends.Service
	Files          *filestore.Service
	VAPIDPublicKey string
}

type API struct {
	auth    TokenVerifier
	store   Store
	hub     Hub
	forum   *forum.Service
	friends *friends.Service
	files   *filestore.Service
	vapid   string
}

func New(deps Deps) *API {
	return &API{
		auth:    deps.Auth,
		store:   deps.Store,
		hub:     deps.Hub,
		forum:   deps.Forum,
		friends: deps.Friends,
		files:   deps.Files,
		vapid:   deps.VAPIDPublicKey,
	}
}

type ctxKey struct{}

func withUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// UserID returns the authenticated user of a request that passed RequireAuth.
func UserID(r *http.Request) string {
	id, _ := r.Context().Value(ctxKey{}).(string)
	return id
}

// RequireAuth rejects requests without a valid identity token and puts the
// user id into the request context.
func (a *API) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := a.auth.GetUserID(ws.TokenFromRequest(r))
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r.WithContext(withUserID(r.Context(), userID)))
	}
}

// RequireSameOrigin refuses cross-site state changes made with the token cookie.
func RequireSameOrigin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !ws.SameOrigin(r) {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func statusOf(err error) int {
	if errors.Is(err, models.ErrPostLocked) || errors.Is(err, models.ErrUsernameTaken) {
		return http.StatusConflict
	}
	switch models.CodeOf(err) {
	case models.ErrorCodeNotFound:
		return http.StatusNotFound
	case models.ErrorCodeInvalidArgument, models.ErrorCodeProtocolViolation:
		return http.StatusBadRequest
	case models.ErrorCodeAuthorizationDenied:
		return http.StatusForbidden
	case models.ErrorCodeWriteFailure:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		log.Printf("request failed: %v", err)
	}
	writeJSON(w, status, models.APIResponse{Success: false, Message: err.Error()})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func (a *API) MeHandler(w http.ResponseWriter, r *http.Request) {
	user, err := a.store.GetUser(UserID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *API) UpdateMeHandler(w http.ResponseWriter, r *http.Request) {
	var req models.Profile
	if !decodeBody(w, r, &req) {
		return
	}
	user, err := a.hub.UpsertProfile(UserID(r), &req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *API) UsersHandler(w http.ResponseWriter, r *http.Request) {
	users, err := a.store.ListUsers()
	if err != nil {
		writeError(w, err)
		return
	}
	if users == nil {
		users = []models.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

func (a *API) RoomsHandler(w http.ResponseWriter, r *http.Request) {
	rooms, err := a.hub.ListRooms(UserID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rooms)
}

// MessagesHandler pages backwards through a room's history:
// ?limit=N&before=<seq>.
func (a *API) MessagesHandler(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("id")
	if !models.CanAccessRoom(UserID(r), roomID) {
		writeError(w, models.ErrAuthorizationDenied)
		return
	}

	limit := defaultPageSize
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, maxPageSize)
	}

	var before int64
	if v := r.URL.Query().Get("before"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			http.Error(w, "Invalid before", http.StatusBadRequest)
			return
		}
		before = n
	}

	messages, err := a.store.ListMessagesBefore(roomID, before, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}
