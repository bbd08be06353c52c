package models

import (
	"errors"
	"fmt"
	"testing"
)

func TestDMRoomID(t *testing.T) {
	id := DMRoomID("bob", "alice")
	if id != "dm_alice_bob" {
		t.Fatalf("expected dm_alice_bob, got %s", id)
	}
	if DMRoomID("alice", "bob") != id {
		t.Error("room id must not depend on argument order")
	}

	a, b, ok := DMParticipants(id)
	if !ok || a != "alice" || b != "bob" {
		t.Errorf("unexpected participants %q %q %v", a, b, ok)
	}

	// Ids may contain the separator and must still map to distinct rooms.
	underscored := DMRoomID("alice_1", "bob")
	if underscored == DMRoomID("alice", "1_bob") {
		t.Errorf("%q is shared by two different pairs", underscored)
	}
	a, b, ok = DMParticipants(underscored)
	if !ok || a != "alice_1" || b != "bob" {
		t.Errorf("unexpected participants of %q: %q %q %v", underscored, a, b, ok)
	}
	a, b, ok = DMParticipants(DMRoomID("50%", "x_y"))
	if !ok || a != "50%" || b != "x_y" {
		t.Errorf("unexpected participants %q %q %v", a, b, ok)
	}

	for _, bad := range []string{"main", "dm_", "dm_alice", "dm_a_b_c", "dm__bob", "dm_bob_alice", "dm_%61lice_bob", "dm_alice_1_bob"} {
		if _, _, ok := DMParticipants(bad); ok {
			t.Errorf("%q must not parse as a DM room", bad)
		}
	}
}

func TestCanAccessRoom(t *testing.T) {
	tests := []struct {
		user, room string
		want       bool
	}{
		{"carol", MainRoomID, true},
		{"carol", "lobby", true},
		{"alice", "dm_alice_bob", true},
		{"bob", "dm_alice_bob", true},
		{"carol", "dm_alice_bob", false},
		{"alice_1", DMRoomID("alice_1", "bob"), true},
		{"eve", DMRoomID("alice_1", "bob"), false},
		{"alice_1", "dm_alice_1_bob", false},
		{"eve", "dm_alice_1_bob", false},
		{"alice", "dm_bob_alice", false},
	}
	for _, tt := range tests {
		if got := CanAccessRoom(tt.user, tt.room); got != tt.want {
			t.Errorf("CanAccessRoom(%q, %q) = %v, want %v", tt.user, tt.room, got, tt.want)
		}
	}
}

func TestDecodeClientEvent(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		wantErr bool
	}{
		{"Join", `{"type":"join_room","roomId":"main"}`, false},
		{"JoinWithoutRoom", `{"type":"join_room"}`, true},
		{"Leave", `{"type":"leave_room"}`, false},
		{"Send", `{"type":"send_message","roomId":"main","message":{"content":"hi"}}`, false},
		{"SendWithoutMessage", `{"type":"send_message","roomId":"main"}`, true},
		{"SendUnknownKind", `{"type":"send_message","message":{"content":"x","kind":"gif"}}`, true},
		{"RoomData", `{"type":"get_room_data","roomId":"main"}`, false},
		{"UnknownType", `{"type":"dance"}`, true},
		{"NotJSON", `{{`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeClientEvent([]byte(tt.frame))
			if tt.wantErr {
				if !errors.Is(err, ErrProtocolViolation) {
					t.Errorf("expected protocol violation, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}

	ev, err := DecodeClientEvent([]byte(`{"type":"send_message","message":{"content":"hi"}}`))
	if err != nil {
		t.Fatal(err)
	}
	if ev.Message.Kind != MessageKindText {
		t.Errorf("kind should default to text, got %q", ev.Message.Kind)
	}

	ev, err = DecodeClientEvent([]byte(`{"type":"join_room","roomId":"main"}`))
	if err != nil {
		t.Fatal(err)
	}
	if ev.User == nil {
		t.Error("join_room without user should carry an empty profile")
	}
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorCode
	}{
		{fmt.Errorf("join: %w", ErrProtocolViolation), ErrorCodeProtocolViolation},
		{fmt.Errorf("%w: closed", ErrWriteFailure), ErrorCodeWriteFailure},
		{ErrAuthorizationDenied, ErrorCodeAuthorizationDenied},
		{ErrPostLocked, ErrorCodeAuthorizationDenied},
		{fmt.Errorf("user x: %w", ErrNotFound), ErrorCodeNotFound},
		{ErrUsernameTaken, ErrorCodeInvalidArgument},
		{errors.New("boom"), ErrorCodeInternal},
	}
	for _, tt := range tests {
		if got := CodeOf(tt.err); got != tt.want {
			t.Errorf("CodeOf(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}
