package ws

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"veranda/internal/broadcast"
	"veranda/internal/chat"
	"veranda/internal/content"
	"veranda/internal/models"
	"veranda/internal/moderation"
	"veranda/internal/presence"

	"github.com/google/uuid"
)

// Store is the persistence the hub needs.
type Store interface {
	GetUser(id string) (models.User, error)
	CreateOrUpdateUser(id string, fn func(*models.User) error) (models.User, error)
	CreateOrGetRoom(id string) (models.Room, error)
	ListRooms() ([]models.Room, error)
	AppendMessage(message models.Message) (models.Message, error)
	ListRecentMessages(roomID string, limit int) ([]models.Message, error)
	GetFileMetadata(id string) (models.FileMetadata, error)
}

// Notifier reaches users that are not connected to a room.
// Implementations must not block.
type Notifier interface {
	NotifyMessage(recipientID string, message models.Message)
}

type nopNotifier struct{}

func (nopNotifier) NotifyMessage(string, models.Message) {}

type HubConfig struct {
	HistoryLimit int
	Notifier     Notifier
}

// Hub owns the live state of the chat: presence, the per-room
// serialization locks with their history caches, and the broadcast engine.
type Hub struct {
	store        Store
	notifier     Notifier
	presence     *presence.Registry
	engine       *broadcast.Engine
	gate         *moderation.Gate
	historyLimit int

	// Map of roomID -> Room
	rooms map[string]*chat.Room
	mu    sync.Mutex
}

func NewHub(store Store, config HubConfig) *Hub {
	if config.HistoryLimit <= 0 {
		config.HistoryLimit = 100
	}
	if config.Notifier == nil {
		config.Notifier = nopNotifier{}
	}

	registry := presence.NewRegistry()
	return &Hub{
		store:        store,
		notifier:     config.Notifier,
		presence:     registry,
		engine:       broadcast.New(registry),
		gate:         moderation.NewGate(),
		historyLimit: config.HistoryLimit,
		rooms:        make(map[string]*chat.Room),
	}
}

func (h *Hub) room(roomID string) (*chat.Room, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if r, ok := h.rooms[roomID]; ok {
		return r, nil
	}

	stored, err := h.store.CreateOrGetRoom(roomID)
	if err != nil {
		return nil, err
	}

	r := chat.New(chat.Config{
		ID:         stored.ID,
		Name:       stored.Name,
		MaxRecords: h.historyLimit,
	})
	h.rooms[roomID] = r
	return r, nil
}

// history returns the cached recent messages of r, filling the cache from
// storage on first use. Must be called inside r.Serialize.
func (h *Hub) history(r *chat.Room) ([]models.Message, error) {
	if !r.Loaded() {
		messages, err := h.store.ListRecentMessages(r.ID, h.historyLimit)
		if err != nil {
			return nil, fmt.Errorf("failed to load history of %s: %w", r.ID, err)
		}
		r.Load(messages)
	}
	return r.GetLastRecords(h.historyLimit), nil
}

// Connect attaches a new live connection and returns its id.
func (h *Hub) Connect(o broadcast.Outlet) string {
	connID := uuid.NewString()
	h.engine.Attach(connID, o)
	return connID
}

// JoinRoom puts the connection into roomID on behalf of userID. The caller
// receives room_joined with the history, everyone else user_joined.
func (h *Hub) JoinRoom(connID, userID, roomID string, profile *models.Profile) error {
	if roomID == "" {
		return fmt.Errorf("%w: empty room id", models.ErrProtocolViolation)
	}
	if !models.CanAccessRoom(userID, roomID) {
		return fmt.Errorf("%w: %s is not a participant of %s", models.ErrAuthorizationDenied, userID, roomID)
	}
	if entry, ok := h.presence.Lookup(connID); ok {
		return fmt.Errorf("%w: already joined to %s", models.ErrProtocolViolation, entry.RoomID)
	}

	r, err := h.room(roomID)
	if err != nil {
		return err
	}

	user, err := h.UpsertProfile(userID, profile)
	if err != nil {
		return err
	}

	return r.Serialize(func() error {
		messages, err := h.history(r)
		if err != nil {
			return err
		}

		if err := h.presence.Register(connID, roomID, userID); err != nil {
			return err
		}

		joined := models.ServerEvent{
			Type: models.ServerEventRoomJoined,
			Room: &models.RoomData{
				ID:       r.ID,
				Name:     r.Name,
				Messages: messages,
				Online:   h.presence.UsersInRoom(roomID),
			},
		}
		if err := h.engine.Send(connID, joined); err != nil {
			slog.Warn("failed to send room_joined", "conn_id", connID, "room_id", roomID, "error", err)
		}

		h.engine.Publish(roomID, models.ServerEvent{
			Type: models.ServerEventUserJoined,
			User: &user,
		}, connID)

		slog.Debug("user joined room", "conn_id", connID, "user_id", userID, "room_id", roomID)
		return nil
	})
}

// UpsertProfile stores the profile fields a client sent with join_room or
// through the HTTP API.
// Role, prefix and timeout are never taken from the client.
func (h *Hub) UpsertProfile(userID string, profile *models.Profile) (models.User, error) {
	var userName, displayName string
	if profile != nil {
		userName = strings.TrimSpace(profile.UserName)
		displayName = content.Sanitize(strings.TrimSpace(profile.DisplayName))
	}

	// Applied inside the store transaction so concurrent moderation
	// changes to the same user are never overwritten.
	return h.store.CreateOrUpdateUser(userID, func(user *models.User) error {
		if userName != "" && user.UserName == "" {
			if err := content.ValidateUsername(userName); err != nil {
				return fmt.Errorf("%w: %v", models.ErrInvalidArgument, err)
			}
			user.UserName = userName
		}
		if displayName != "" {
			user.DisplayName = displayName
		}
		if user.DisplayName == "" {
			user.DisplayName = user.UserName
		}
		return nil
	})
}

// LeaveRoom removes the connection from its room and announces it.
func (h *Hub) LeaveRoom(connID string) error {
	left, err := h.leave(connID)
	if err != nil {
		return err
	}
	if !left {
		return fmt.Errorf("%w: not joined to any room", models.ErrProtocolViolation)
	}
	return nil
}

// leave unregisters connID and publishes user_left. It reports false when
// the connection had no membership, so a departure is announced once.
func (h *Hub) leave(connID string) (bool, error) {
	entry, ok := h.presence.Lookup(connID)
	if !ok {
		return false, nil
	}

	r, err := h.room(entry.RoomID)
	if err != nil {
		return false, err
	}

	left := false
	err = r.Serialize(func() error {
		entry, ok := h.presence.Unregister(connID)
		if !ok {
			return nil
		}
		left = true
		h.engine.Publish(entry.RoomID, models.ServerEvent{
			Type:   models.ServerEventUserLeft,
			UserID: entry.UserID,
		}, connID)
		slog.Debug("user left room", "conn_id", connID, "user_id", entry.UserID, "room_id", entry.RoomID)
		return nil
	})
	return left, err
}

// Disconnect tears down everything the hub holds for connID. Repeated
// calls are no-ops.
func (h *Hub) Disconnect(connID string) {
	if _, err := h.leave(connID); err != nil {
		slog.Error("failed to leave room on disconnect", "conn_id", connID, "error", err)
	}
	h.engine.Detach(connID)
}

// SendMessage validates, persists and then publishes a message from the
// connection's user to its room. Nothing is published when persisting fails.
func (h *Hub) SendMessage(connID, roomID string, draft models.Draft) (models.Message, error) {
	entry, ok := h.presence.Lookup(connID)
	if !ok {
		return models.Message{}, fmt.Errorf("%w: send_message before join_room", models.ErrProtocolViolation)
	}
	if roomID != "" && roomID != entry.RoomID {
		return models.Message{}, fmt.Errorf("%w: joined to %s, not %s", models.ErrProtocolViolation, entry.RoomID, roomID)
	}
	if entry.RoomID == models.ForumRoomID {
		return models.Message{}, fmt.Errorf("%w: the forum room does not take chat messages", models.ErrInvalidArgument)
	}

	user, err := h.store.GetUser(entry.UserID)
	if err != nil {
		return models.Message{}, err
	}
	if err := h.gate.Check(user); err != nil {
		return models.Message{}, err
	}

	body, err := h.validateDraft(draft)
	if err != nil {
		return models.Message{}, err
	}

	r, err := h.room(entry.RoomID)
	if err != nil {
		return models.Message{}, err
	}

	var persisted models.Message
	err = r.Serialize(func() error {
		if _, ok := h.presence.Lookup(connID); !ok {
			return fmt.Errorf("%w: connection left %s", models.ErrProtocolViolation, entry.RoomID)
		}
		// The cache must be filled before the append or it would hold msg twice.
		if _, err := h.history(r); err != nil {
			return err
		}

		msg, err := h.store.AppendMessage(models.Message{
			RoomID:   entry.RoomID,
			UserID:   entry.UserID,
			Content:  body,
			Kind:     draft.Kind,
			ClientID: draft.ID,
		})
		if err != nil {
			return err
		}
		persisted = msg
		r.AddRecord(msg)

		h.engine.Publish(entry.RoomID, models.ServerEvent{
			Type:    models.ServerEventNewMessage,
			Message: &msg,
		}, "")
		return nil
	})
	if err != nil {
		return models.Message{}, err
	}

	h.notifyOffline(persisted)
	return persisted, nil
}

func (h *Hub) validateDraft(draft models.Draft) (string, error) {
	kind := draft.Kind
	if kind == "" {
		kind = models.MessageKindText
	}

	switch kind {
	case models.MessageKindText:
		body, err := content.CleanText(draft.Content, content.MaxMessageLength)
		if err != nil {
			return "", fmt.Errorf("%w: %w", models.ErrProtocolViolation, err)
		}
		return body, nil
	case models.MessageKindFile, models.MessageKindVoice:
		fileID := strings.TrimSpace(draft.Content)
		if fileID == "" {
			return "", fmt.Errorf("%w: %s without file id", models.ErrProtocolViolation, kind)
		}
		meta, err := h.store.GetFileMetadata(fileID)
		if err != nil {
			return "", fmt.Errorf("%w: unknown file %s", models.ErrInvalidArgument, fileID)
		}
		if kind == models.MessageKindVoice && !strings.HasPrefix(meta.MimeType, "audio/") {
			return "", fmt.Errorf("%w: voice message must be audio, got %s", models.ErrInvalidArgument, meta.MimeType)
		}
		return meta.ID, nil
	}
	return "", fmt.Errorf("%w: unknown message kind %q", models.ErrProtocolViolation, kind)
}

// notifyOffline pushes a DM to the participant that is not in the room.
func (h *Hub) notifyOffline(msg models.Message) {
	a, b, ok := models.DMParticipants(msg.RoomID)
	if !ok {
		return
	}
	recipient := a
	if recipient == msg.UserID {
		recipient = b
	}
	if recipient == msg.UserID || h.presence.IsPresent(msg.RoomID, recipient) {
		return
	}
	h.notifier.NotifyMessage(recipient, msg)
}

// RoomData replies with the current snapshot of the connection's room.
func (h *Hub) RoomData(connID, roomID string) error {
	entry, ok := h.presence.Lookup(connID)
	if !ok {
		return fmt.Errorf("%w: get_room_data before join_room", models.ErrProtocolViolation)
	}
	if roomID != "" && roomID != entry.RoomID {
		return fmt.Errorf("%w: joined to %s, not %s", models.ErrProtocolViolation, entry.RoomID, roomID)
	}

	r, err := h.room(entry.RoomID)
	if err != nil {
		return err
	}

	return r.Serialize(func() error {
		messages, err := h.history(r)
		if err != nil {
			return err
		}
		return h.engine.Send(connID, models.ServerEvent{
			Type: models.ServerEventRoomData,
			Room: &models.RoomData{
				ID:       r.ID,
				Name:     r.Name,
				Messages: messages,
				Online:   h.presence.UsersInRoom(r.ID),
			},
		})
	})
}

// PublishRoomEvent fans an event out to everyone in roomID under the
// room's serialization. Used by services outside the chat protocol.
func (h *Hub) PublishRoomEvent(roomID string, event models.ServerEvent) int {
	r, err := h.room(roomID)
	if err != nil {
		slog.Error("failed to publish room event", "room_id", roomID, "type", event.Type, "error", err)
		return 0
	}

	delivered := 0
	_ = r.Serialize(func() error {
		delivered = h.engine.Publish(roomID, event, "")
		return nil
	})
	return delivered
}

// Online returns the users currently present in roomID.
func (h *Hub) Online(roomID string) []string {
	return h.presence.UsersInRoom(roomID)
}

// ListRooms returns the rooms userID may join: main, forum and the DM
// rooms the user participates in. Main and forum come first.
func (h *Hub) ListRooms(userID string) ([]models.Room, error) {
	stored, err := h.store.ListRooms()
	if err != nil {
		return nil, err
	}

	result := []models.Room{
		{ID: models.MainRoomID, Name: models.DefaultRoomName(models.MainRoomID)},
		{ID: models.ForumRoomID, Name: models.DefaultRoomName(models.ForumRoomID)},
	}
	var rest []models.Room
	for _, r := range stored {
		switch {
		case r.ID == models.MainRoomID:
			result[0] = r
		case r.ID == models.ForumRoomID:
			result[1] = r
		case models.CanAccessRoom(userID, r.ID):
			rest = append(rest, r)
		}
	}

	sort.Slice(rest, func(i, j int) bool {
		return rest[i].ID < rest[j].ID
	})

	return append(result, rest...), nil
}
