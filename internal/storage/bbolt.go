package storage

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"time"

	"veranda/internal/models"

	"go.etcd.io/bbolt"
)

var (
	bucketUsers     = []byte("users")
	bucketUsernames = []byte("usernames")
	bucketRooms     = []byte("rooms")
	bucketMessages  = []byte("messages")
	bucketForum     = []byte("forum_posts")
	bucketFiles     = []byte("files")
	bucketPush      = []byte("push_subscriptions")
)

type BboltStorage struct {
	db  *bbolt.DB
	now func() time.Time
}

func NewBboltStorage(path string) (*BboltStorage, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{
			bucketUsers,
			bucketUsernames,
			bucketRooms,
			bucketMessages,
			bucketForum,
			bucketFiles,
			bucketPush,
		} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BboltStorage{db: db, now: time.Now}, nil
}

func (s *BboltStorage) Close() error {
	return s.db.Close()
}

// writeErr classifies a failed write transaction. Domain errors returned
// from inside the transaction pass through untouched, everything else
// means the medium did not accept the write.
func writeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, domain := range []error{
		models.ErrNotFound,
		models.ErrUsernameTaken,
		models.ErrPostLocked,
		models.ErrAuthorizationDenied,
		models.ErrInvalidArgument,
	} {
		if errors.Is(err, domain) {
			return err
		}
	}
	return fmt.Errorf("%w: %s: %w", models.ErrWriteFailure, op, err)
}

func getRecord(b *bbolt.Bucket, key []byte, rec Storeable) (bool, error) {
	data := b.Get(key)
	if data == nil {
		return false, nil
	}
	if err := rec.UnmarshalBinary(data); err != nil {
		return false, err
	}
	return true, nil
}

func putRecord(b *bbolt.Bucket, rec Storeable) error {
	data, err := rec.MarshalBinary()
	if err != nil {
		return err
	}
	return b.Put(rec.Key(), data)
}

// Users

func userToDB(u models.User) *DBUser {
	return &DBUser{
		ID:             u.ID,
		UserName:       u.UserName,
		DisplayName:    u.DisplayName,
		Role:           string(u.Role),
		Prefix:         u.Prefix,
		TimeoutUntil:   u.TimeoutUntil,
		TimeoutReason:  u.TimeoutReason,
		Friends:        u.Friends,
		FriendRequests: u.FriendRequests,
		CreatedAt:      u.CreatedAt,
	}
}

func userFromDB(u *DBUser) models.User {
	return models.User{
		ID:             u.ID,
		UserName:       u.UserName,
		DisplayName:    u.DisplayName,
		Role:           models.Role(u.Role),
		Prefix:         u.Prefix,
		TimeoutUntil:   u.TimeoutUntil,
		TimeoutReason:  u.TimeoutReason,
		Friends:        u.Friends,
		FriendRequests: u.FriendRequests,
		CreatedAt:      u.CreatedAt,
	}
}

// claimUsername binds a handle to a user id. A handle bound to a
// different user is rejected.
func claimUsername(tx *bbolt.Tx, userName, userID string) error {
	if userName == "" {
		return nil
	}
	b := tx.Bucket(bucketUsernames)
	owner := b.Get([]byte(userName))
	if owner != nil && string(owner) != userID {
		return fmt.Errorf("%q: %w", userName, models.ErrUsernameTaken)
	}
	return b.Put([]byte(userName), []byte(userID))
}

func (s *BboltStorage) loadUser(tx *bbolt.Tx, id string) (models.User, error) {
	var dbUser DBUser
	found, err := getRecord(tx.Bucket(bucketUsers), []byte(id), &dbUser)
	if err != nil {
		return models.User{}, err
	}
	if !found {
		return models.User{}, fmt.Errorf("user %s: %w", id, models.ErrNotFound)
	}
	return userFromDB(&dbUser), nil
}

// saveUser writes u, keeping identity fields of an existing record:
// the id, the creation time and a handle once it was set.
func (s *BboltStorage) saveUser(tx *bbolt.Tx, u models.User) (models.User, error) {
	if u.ID == "" {
		return models.User{}, fmt.Errorf("%w: user without id", models.ErrInvalidArgument)
	}

	existing, err := s.loadUser(tx, u.ID)
	switch {
	case err == nil:
		u.CreatedAt = existing.CreatedAt
		if existing.UserName != "" {
			u.UserName = existing.UserName
		}
	case errors.Is(err, models.ErrNotFound):
		if u.CreatedAt == 0 {
			u.CreatedAt = s.now().UnixMilli()
		}
	default:
		return models.User{}, err
	}

	if u.Role == "" {
		u.Role = models.RoleRegular
	}
	if err := claimUsername(tx, u.UserName, u.ID); err != nil {
		return models.User{}, err
	}
	if err := putRecord(tx.Bucket(bucketUsers), userToDB(u)); err != nil {
		return models.User{}, err
	}
	return u, nil
}

// UpsertUser creates the user or overwrites its mutable fields.
func (s *BboltStorage) UpsertUser(user models.User) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		_, err := s.saveUser(tx, user)
		return err
	})
	return writeErr("upsert user", err)
}

func (s *BboltStorage) GetUser(id string) (models.User, error) {
	var user models.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		user, err = s.loadUser(tx, id)
		return err
	})
	return user, err
}

// ListUsers returns all users stored in the database.
func (s *BboltStorage) ListUsers() ([]models.User, error) {
	var users []models.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketUsers).ForEach(func(k, v []byte) error {
			var dbUser DBUser
			if err := dbUser.UnmarshalBinary(v); err != nil {
				return err
			}
			users = append(users, userFromDB(&dbUser))
			return nil
		})
	})
	return users, err
}

// UpdateUser applies fn to the stored user inside a single transaction.
func (s *BboltStorage) UpdateUser(id string, fn func(*models.User) error) (models.User, error) {
	var updated models.User
	err := s.db.Update(func(tx *bbolt.Tx) error {
		user, err := s.loadUser(tx, id)
		if err != nil {
			return err
		}
		if err := fn(&user); err != nil {
			return err
		}
		user.ID = id
		updated, err = s.saveUser(tx, user)
		return err
	})
	return updated, writeErr("update user", err)
}

// CreateOrUpdateUser is UpdateUser for a user that may not exist yet:
// fn then receives a zero user carrying only the id.
func (s *BboltStorage) CreateOrUpdateUser(id string, fn func(*models.User) error) (models.User, error) {
	var updated models.User
	err := s.db.Update(func(tx *bbolt.Tx) error {
		user, err := s.loadUser(tx, id)
		if errors.Is(err, models.ErrNotFound) {
			user, err = models.User{ID: id}, nil
		}
		if err != nil {
			return err
		}
		if err := fn(&user); err != nil {
			return err
		}
		user.ID = id
		updated, err = s.saveUser(tx, user)
		return err
	})
	return updated, writeErr("create or update user", err)
}

// UpdateUserPair applies fn to two distinct users atomically.
func (s *BboltStorage) UpdateUserPair(id1, id2 string, fn func(u1, u2 *models.User) error) error {
	if id1 == id2 {
		return fmt.Errorf("%w: same user on both sides", models.ErrInvalidArgument)
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		u1, err := s.loadUser(tx, id1)
		if err != nil {
			return err
		}
		u2, err := s.loadUser(tx, id2)
		if err != nil {
			return err
		}
		if err := fn(&u1, &u2); err != nil {
			return err
		}
		u1.ID, u2.ID = id1, id2
		if _, err := s.saveUser(tx, u1); err != nil {
			return err
		}
		_, err = s.saveUser(tx, u2)
		return err
	})
	return writeErr("update user pair", err)
}

// Rooms

func roomFromDB(r *DBRoom) models.Room {
	return models.Room{
		ID:            r.ID,
		Name:          r.Name,
		LastSeq:       r.LastSeq,
		LastTimestamp: r.LastTimestamp,
		IsDM:          r.IsDM,
	}
}

func ensureRoom(tx *bbolt.Tx, id string) (*DBRoom, error) {
	var dbRoom DBRoom
	found, err := getRecord(tx.Bucket(bucketRooms), []byte(id), &dbRoom)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal room: %w", err)
	}
	if found {
		return &dbRoom, nil
	}
	dbRoom = DBRoom{
		ID:   id,
		Name: models.DefaultRoomName(id),
		IsDM: models.IsDMRoom(id),
	}
	if err := putRecord(tx.Bucket(bucketRooms), &dbRoom); err != nil {
		return nil, err
	}
	return &dbRoom, nil
}

// CreateOrGetRoom returns the stored room, creating it on first reference.
func (s *BboltStorage) CreateOrGetRoom(id string) (models.Room, error) {
	if id == "" {
		return models.Room{}, fmt.Errorf("%w: empty room id", models.ErrInvalidArgument)
	}
	var room models.Room
	err := s.db.Update(func(tx *bbolt.Tx) error {
		dbRoom, err := ensureRoom(tx, id)
		if err != nil {
			return err
		}
		room = roomFromDB(dbRoom)
		return nil
	})
	return room, writeErr("create room", err)
}

// ListRooms returns all rooms stored in the database.
func (s *BboltStorage) ListRooms() ([]models.Room, error) {
	var rooms []models.Room
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRooms).ForEach(func(k, v []byte) error {
			var dbRoom DBRoom
			if err := dbRoom.UnmarshalBinary(v); err != nil {
				return err
			}
			rooms = append(rooms, roomFromDB(&dbRoom))
			return nil
		})
	})
	return rooms, err
}

// Messages

func messageFromDB(m *DBMessage) models.Message {
	return models.Message{
		ID:        messageID(m.Seq),
		Seq:       m.Seq,
		Timestamp: m.Timestamp,
		RoomID:    m.RoomID,
		UserID:    m.UserID,
		Content:   m.Content,
		Kind:      models.MessageKind(m.Kind),
		ClientID:  m.ClientID,
	}
}

func messageID(seq int64) string {
	return fmt.Sprintf("m%d", seq)
}

// AppendMessage durably stores a message and returns it with its id,
// sequence number and timestamp assigned. Sequence numbers are global,
// so they are unique across rooms and increase with creation order.
// The timestamp is the candidate message.Timestamp (or now) raised
// if needed to stay strictly above the room's last one.
func (s *BboltStorage) AppendMessage(message models.Message) (models.Message, error) {
	if message.RoomID == "" {
		return models.Message{}, fmt.Errorf("%w: message missing roomID", models.ErrInvalidArgument)
	}
	if message.Timestamp == 0 {
		message.Timestamp = s.now().UnixMilli()
	}
	if message.Kind == "" {
		message.Kind = models.MessageKindText
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		dbRoom, err := ensureRoom(tx, message.RoomID)
		if err != nil {
			return err
		}

		mainMsgBucket := tx.Bucket(bucketMessages)
		seq, err := mainMsgBucket.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to allocate sequence: %w", err)
		}
		roomBucket, err := mainMsgBucket.CreateBucketIfNotExists([]byte(message.RoomID))
		if err != nil {
			return fmt.Errorf("failed to create room bucket: %w", err)
		}

		message.Seq = int64(seq)
		message.ID = messageID(message.Seq)
		if message.Timestamp <= dbRoom.LastTimestamp {
			message.Timestamp = dbRoom.LastTimestamp + 1
		}

		dbMessage := DBMessage{
			Seq:       message.Seq,
			Timestamp: message.Timestamp,
			RoomID:    message.RoomID,
			UserID:    message.UserID,
			Content:   message.Content,
			Kind:      string(message.Kind),
			ClientID:  message.ClientID,
		}
		if err := putRecord(roomBucket, &dbMessage); err != nil {
			return fmt.Errorf("failed to put message: %w", err)
		}

		dbRoom.LastSeq = message.Seq
		dbRoom.LastTimestamp = message.Timestamp
		return putRecord(tx.Bucket(bucketRooms), dbRoom)
	})
	if err != nil {
		return models.Message{}, writeErr("append message", err)
	}
	return message, nil
}

// ListRecentMessages returns up to limit most recent messages of the room,
// oldest first.
func (s *BboltStorage) ListRecentMessages(roomID string, limit int) ([]models.Message, error) {
	return s.ListMessagesBefore(roomID, 0, limit)
}

// ListMessagesBefore returns up to limit messages with seq below before,
// oldest first. before <= 0 means no upper bound.
func (s *BboltStorage) ListMessagesBefore(roomID string, before int64, limit int) ([]models.Message, error) {
	messages := []models.Message{}
	if limit <= 0 {
		return messages, nil
	}
	err := s.db.View(func(tx *bbolt.Tx) error {
		roomBucket := tx.Bucket(bucketMessages).Bucket([]byte(roomID))
		if roomBucket == nil {
			return nil // No messages for this room
		}

		c := roomBucket.Cursor()
		var k, v []byte
		if before <= 0 {
			k, v = c.Last()
		} else {
			upper := seqKey(before)
			k, v = c.Seek(upper)
			switch {
			case k == nil:
				k, v = c.Last()
			case bytes.Compare(k, upper) >= 0:
				k, v = c.Prev()
			}
		}

		for ; k != nil && len(messages) < limit; k, v = c.Prev() {
			var dbMsg DBMessage
			if err := dbMsg.UnmarshalBinary(v); err != nil {
				return err
			}
			messages = append(messages, messageFromDB(&dbMsg))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Reverse(messages)
	return messages, nil
}
