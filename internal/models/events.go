package models

import (
	"encoding/json"
	"fmt"
)

type ClientEventType string

const (
	ClientEventJoinRoom    ClientEventType = "join_room"
	ClientEventLeaveRoom   ClientEventType = "leave_room"
	ClientEventSendMessage ClientEventType = "send_message"
	ClientEventGetRoomData ClientEventType = "get_room_data"
)

type ServerEventType string

const (
	ServerEventRoomJoined  ServerEventType = "room_joined"
	ServerEventUserJoined  ServerEventType = "user_joined"
	ServerEventUserLeft    ServerEventType = "user_left"
	ServerEventNewMessage  ServerEventType = "new_message"
	ServerEventRoomData    ServerEventType = "room_data"
	ServerEventError       ServerEventType = "error"
	ServerEventPostCreated ServerEventType = "post_created"
	ServerEventReplyAdded  ServerEventType = "reply_added"
	ServerEventPostUpdated ServerEventType = "post_updated"
)

// Profile is the user description a client sends with join_room.
// Only the profile fields are taken from it, the id always comes
// from the authenticated token.
type Profile struct {
	ID          string `json:"id,omitempty"`
	UserName    string `json:"userName"`
	DisplayName string `json:"displayName"`
}

// Draft is the message payload of send_message.
type Draft struct {
	ID      string      `json:"id,omitempty"`
	Content string      `json:"content"`
	Kind    MessageKind `json:"kind,omitempty"`
}

// ClientEvent represents an event sent from the client to the server.
type ClientEvent struct {
	Type    ClientEventType `json:"type"`
	RoomID  string          `json:"roomId,omitempty"`
	User    *Profile        `json:"user,omitempty"`
	Message *Draft          `json:"message,omitempty"`
}

// DecodeClientEvent parses and validates a raw frame. Every failure
// wraps ErrProtocolViolation.
func DecodeClientEvent(data []byte) (ClientEvent, error) {
	var ev ClientEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return ClientEvent{}, fmt.Errorf("%w: %v", ErrProtocolViolation, err)
	}

	switch ev.Type {
	case ClientEventJoinRoom:
		if ev.RoomID == "" {
			return ClientEvent{}, fmt.Errorf("%w: join_room without roomId", ErrProtocolViolation)
		}
		if ev.User == nil {
			ev.User = &Profile{}
		}
	case ClientEventLeaveRoom:
	case ClientEventSendMessage:
		if ev.Message == nil {
			return ClientEvent{}, fmt.Errorf("%w: send_message without message", ErrProtocolViolation)
		}
		if ev.Message.Kind == "" {
			ev.Message.Kind = MessageKindText
		}
		if !ev.Message.Kind.Valid() {
			return ClientEvent{}, fmt.Errorf("%w: unknown message kind %q", ErrProtocolViolation, ev.Message.Kind)
		}
	case ClientEventGetRoomData:
	default:
		return ClientEvent{}, fmt.Errorf("%w: unknown event type %q", ErrProtocolViolation, ev.Type)
	}

	return ev, nil
}

type ErrorPayload struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// ServerEvent represents an event sent to the client.
type ServerEvent struct {
	Type    ServerEventType `json:"type"`
	Room    *RoomData       `json:"room,omitempty"`
	User    *User           `json:"user,omitempty"`
	UserID  string          `json:"userId,omitempty"`
	Message *Message        `json:"message,omitempty"`
	Post    *ForumPost      `json:"post,omitempty"`
	Reply   *ForumReply     `json:"reply,omitempty"`
	Error   *ErrorPayload   `json:"error,omitempty"`
}

func ErrorEvent(err error) ServerEvent {
	return ServerEvent{
		Type: ServerEventError,
		Error: &ErrorPayload{
			Code:    CodeOf(err),
			Message: err.Error(),
		},
	}
}
