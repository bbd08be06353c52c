package storage

import (
	"veranda/internal/models"

	"github.com/vmihailenco/msgpack/v5"
	"go.etcd.io/bbolt"
)

type DBPushSubscription struct {
	UserID   string `msgpack:"userId"`
	Endpoint string `msgpack:"endpoint"`
	Auth     string `msgpack:"auth"`
	P256dh   string `msgpack:"p256dh"`
}

// Key is the endpoint: a browser endpoint belongs to a single user at a time.
func (p *DBPushSubscription) Key() []byte {
	return []byte(p.Endpoint)
}

func (p *DBPushSubscription) MarshalBinary() (data []byte, err error) {
	type alias DBPushSubscription
	return msgpack.Marshal((*alias)(p))
}

func (p *DBPushSubscription) UnmarshalBinary(data []byte) error {
	type alias DBPushSubscription
	return msgpack.Unmarshal(data, (*alias)(p))
}

func (s *BboltStorage) UpsertPushSubscription(sub models.PushSubscription) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		dbSub := DBPushSubscription(sub)
		return putRecord(tx.Bucket(bucketPush), &dbSub)
	})
	return writeErr("upsert push subscription", err)
}

func (s *BboltStorage) ListPushSubscriptions(userID string) ([]models.PushSubscription, error) {
	var subs []models.PushSubscription
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPush).ForEach(func(k, v []byte) error {
			var dbSub DBPushSubscription
			if err := dbSub.UnmarshalBinary(v); err != nil {
				return err
			}
			if dbSub.UserID == userID {
				subs = append(subs, models.PushSubscription(dbSub))
			}
			return nil
		})
	})
	return subs, err
}

func (s *BboltStorage) DeletePushSubscription(endpoint string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPush).Delete([]byte(endpoint))
	})
	return writeErr("delete push subscription", err)
}
