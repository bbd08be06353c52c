package storage

import (
	"encoding"
	"encoding/binary"

	"github.com/vmihailenco/msgpack/v5"
)

type Storeable interface {
	Key() []byte
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

type DBUser struct {
	ID             string   `msgpack:"id"`
	UserName       string   `msgpack:"userName"`
	DisplayName    string   `msgpack:"displayName"`
	Role           string   `msgpack:"role"`
	Prefix         string   `msgpack:"prefix"`
	TimeoutUntil   int64    `msgpack:"timeoutUntil"`
	TimeoutReason  string   `msgpack:"timeoutReason"`
	Friends        []string `msgpack:"friends"`
	FriendRequests []string `msgpack:"friendRequests"`
	CreatedAt      int64    `msgpack:"createdAt"`
}

func (u *DBUser) Key() []byte {
	return []byte(u.ID)
}

func (u *DBUser) MarshalBinary() (data []byte, err error) {
	type alias DBUser
	return msgpack.Marshal((*alias)(u))
}

func (u *DBUser) UnmarshalBinary(data []byte) error {
	type alias DBUser
	return msgpack.Unmarshal(data, (*alias)(u))
}

type DBRoom struct {
	ID            string `msgpack:"id"`
	Name          string `msgpack:"name"`
	LastSeq       int64  `msgpack:"lastSeq"`
	LastTimestamp int64  `msgpack:"lastTimestamp"`
	IsDM          bool   `msgpack:"isDm"`
}

func (r *DBRoom) Key() []byte {
	return []byte(r.ID)
}

func (r *DBRoom) MarshalBinary() (data []byte, err error) {
	type alias DBRoom
	return msgpack.Marshal((*alias)(r))
}

func (r *DBRoom) UnmarshalBinary(data []byte) error {
	type alias DBRoom
	return msgpack.Unmarshal(data, (*alias)(r))
}

type DBMessage struct {
	Seq       int64  `msgpack:"seq"`
	Timestamp int64  `msgpack:"timestamp"`
	RoomID    string `msgpack:"roomId"`
	UserID    string `msgpack:"userId"`
	Content   string `msgpack:"content"`
	Kind      string `msgpack:"kind"`
	ClientID  string `msgpack:"clientId"`
}

func (m *DBMessage) Key() []byte {
	return seqKey(m.Seq)
}

func (m *DBMessage) MarshalBinary() (data []byte, err error) {
	type alias DBMessage
	return msgpack.Marshal((*alias)(m))
}

func (m *DBMessage) UnmarshalBinary(data []byte) error {
	type alias DBMessage
	return msgpack.Unmarshal(data, (*alias)(m))
}

type DBForumPost struct {
	ID         string         `msgpack:"id"`
	Title      string         `msgpack:"title"`
	Body       string         `msgpack:"body"`
	BodyHTML   string         `msgpack:"bodyHtml"`
	AuthorID   string         `msgpack:"authorId"`
	AuthorName string         `msgpack:"authorName"`
	Category   string         `msgpack:"category"`
	Pinned     bool           `msgpack:"pinned"`
	Locked     bool           `msgpack:"locked"`
	CreatedAt  int64          `msgpack:"createdAt"`
	Replies    []DBForumReply `msgpack:"replies"`
}

type DBForumReply struct {
	ID         string `msgpack:"id"`
	Body       string `msgpack:"body"`
	BodyHTML   string `msgpack:"bodyHtml"`
	AuthorID   string `msgpack:"authorId"`
	AuthorName string `msgpack:"authorName"`
	CreatedAt  int64  `msgpack:"createdAt"`
}

func (p *DBForumPost) Key() []byte {
	return []byte(p.ID)
}

func (p *DBForumPost) MarshalBinary() (data []byte, err error) {
	type alias DBForumPost
	return msgpack.Marshal((*alias)(p))
}

func (p *DBForumPost) UnmarshalBinary(data []byte) error {
	type alias DBForumPost
	return msgpack.Unmarshal(data, (*alias)(p))
}

func seqKey(seq int64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(seq))
	return key
}
