package models

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

type Role string

const (
	RoleRegular       Role = "regular"
	RoleElevated      Role = "elevated"
	RoleAdministrator Role = "administrator"
)

func (r Role) Valid() bool {
	switch r {
	case RoleRegular, RoleElevated, RoleAdministrator:
		return true
	}
	return false
}

// User represents a chat participant. ID is issued by the identity provider
// and never reused.
type User struct {
	ID          string `json:"id"`
	UserName    string `json:"userName"`
	DisplayName string `json:"displayName"`
	Role        Role   `json:"role"`
	Prefix      string `json:"prefix,omitempty"`
	// TimeoutUntil is a unix timestamp in milliseconds, zero when not timed out.
	TimeoutUntil   int64    `json:"timeoutUntil,omitempty"`
	TimeoutReason  string   `json:"timeoutReason,omitempty"`
	Friends        []string `json:"friends,omitempty"`
	FriendRequests []string `json:"friendRequests,omitempty"`
	CreatedAt      int64    `json:"createdAt"`
}

// HasTimeout reports whether the user carries a timeout record,
// expired or not.
func (u User) HasTimeout() bool {
	return u.TimeoutUntil != 0
}

func (u User) TimeoutExpiry() time.Time {
	return time.UnixMilli(u.TimeoutUntil)
}

const (
	MainRoomID  = "main"
	ForumRoomID = "forum"

	dmPrefix = "dm_"
)

// Room is a named channel scoping message visibility and presence.
type Room struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	LastSeq       int64  `json:"lastSeq"`
	LastTimestamp int64  `json:"lastTimestamp"`
	IsDM          bool   `json:"isDm,omitempty"`
}

// dmEscaper keeps the separator out of user ids, so any two ids map to
// a distinct room id.
var dmEscaper = strings.NewReplacer("%", "%25", "_", "%5F")

// DMRoomID returns the deterministic room id for a direct-message pair.
func DMRoomID(u1, u2 string) string {
	ids := []string{u1, u2}
	sort.Strings(ids)
	return fmt.Sprintf("%s%s_%s", dmPrefix, dmEscaper.Replace(ids[0]), dmEscaper.Replace(ids[1]))
}

// DMParticipants splits a DM room id into its two user ids. Only the
// canonical form produced by DMRoomID is accepted.
func DMParticipants(roomID string) (string, string, bool) {
	rest, ok := strings.CutPrefix(roomID, dmPrefix)
	if !ok {
		return "", "", false
	}
	parts := strings.Split(rest, "_")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	a, err := url.PathUnescape(parts[0])
	if err != nil {
		return "", "", false
	}
	b, err := url.PathUnescape(parts[1])
	if err != nil {
		return "", "", false
	}
	if DMRoomID(a, b) != roomID {
		return "", "", false
	}
	return a, b, true
}

func IsDMRoom(roomID string) bool {
	_, _, ok := DMParticipants(roomID)
	return ok
}

// CanAccessRoom reports whether userID may join or read roomID.
// Only DM rooms are restricted. The dm_ prefix is reserved: an id that
// carries it without naming a valid pair is open to nobody.
func CanAccessRoom(userID, roomID string) bool {
	if !strings.HasPrefix(roomID, dmPrefix) {
		return true
	}
	a, b, ok := DMParticipants(roomID)
	if !ok {
		return false
	}
	return userID == a || userID == b
}

func DefaultRoomName(roomID string) string {
	switch {
	case roomID == MainRoomID:
		return "Main"
	case roomID == ForumRoomID:
		return "Forum"
	case IsDMRoom(roomID):
		return "Direct message"
	}
	return roomID
}

type MessageKind string

const (
	MessageKindText  MessageKind = "text"
	MessageKindFile  MessageKind = "file-reference"
	MessageKindVoice MessageKind = "voice-reference"
)

func (k MessageKind) Valid() bool {
	switch k {
	case MessageKindText, MessageKindFile, MessageKindVoice:
		return true
	}
	return false
}

// Message is an immutable chat message. Seq and Timestamp are assigned
// by the store at the moment of the durable write.
type Message struct {
	ID        string      `json:"id"`
	Seq       int64       `json:"seq"`
	Timestamp int64       `json:"timestamp"` // Unix milliseconds
	RoomID    string      `json:"roomId"`
	UserID    string      `json:"userId"`
	Content   string      `json:"content"`
	Kind      MessageKind `json:"kind"`
	ClientID  string      `json:"clientId,omitempty"`
}

// RoomData is the room snapshot sent on join and on request.
type RoomData struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Messages []Message `json:"messages"`
	Online   []string  `json:"online,omitempty"`
}

type ForumCategory string

const (
	CategoryGeneral       ForumCategory = "general"
	CategoryAnnouncements ForumCategory = "announcements"
	CategoryHelp          ForumCategory = "help"
	CategoryFeedback      ForumCategory = "feedback"
	CategoryOffTopic      ForumCategory = "off-topic"
)

var ForumCategories = []ForumCategory{
	CategoryGeneral,
	CategoryAnnouncements,
	CategoryHelp,
	CategoryFeedback,
	CategoryOffTopic,
}

// ParseCategory falls back to general for unknown categories.
func ParseCategory(s string) ForumCategory {
	for _, c := range ForumCategories {
		if string(c) == s {
			return c
		}
	}
	return CategoryGeneral
}

type ForumPost struct {
	ID         string        `json:"id"`
	Title      string        `json:"title"`
	Body       string        `json:"body"`
	BodyHTML   string        `json:"bodyHtml"`
	AuthorID   string        `json:"authorId"`
	AuthorName string        `json:"authorName"`
	Category   ForumCategory `json:"category"`
	Pinned     bool          `json:"pinned"`
	Locked     bool          `json:"locked"`
	CreatedAt  int64         `json:"createdAt"`
	Replies    []ForumReply  `json:"replies"`
}

type ForumReply struct {
	ID         string `json:"id"`
	PostID     string `json:"postId"`
	Body       string `json:"body"`
	BodyHTML   string `json:"bodyHtml"`
	AuthorID   string `json:"authorId"`
	AuthorName string `json:"authorName"`
	CreatedAt  int64  `json:"createdAt"`
}

type FileMetadata struct {
	ID        string `json:"id"`
	Hash      string `json:"hash"`
	MimeType  string `json:"mimeType"`
	Size      int64  `json:"size"`
	CreatedAt int64  `json:"createdAt"`
	UserID    string `json:"userId"`
}

type PushSubscription struct {
	UserID   string `json:"userId"`
	Endpoint string `json:"endpoint"`
	Auth     string `json:"auth"`
	P256dh   string `json:"p256dh"`
}

type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
