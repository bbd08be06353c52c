package notify

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"veranda/internal/models"
	"veranda/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSubscription(t *testing.T, userID, endpoint string) models.PushSubscription {
	t.Helper()
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	auth := make([]byte, 16)
	_, err = rand.Read(auth)
	require.NoError(t, err)

	return models.PushSubscription{
		UserID:   userID,
		Endpoint: endpoint,
		Auth:     base64.RawURLEncoding.EncodeToString(auth),
		P256dh:   base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes()),
	}
}

func newTestPush(t *testing.T) (*WebPush, *storage.BboltStorage) {
	t.Helper()
	store, err := storage.NewBboltStorage(filepath.Join(t.TempDir(), "push.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	public, private, err := GenerateVAPIDKeys()
	require.NoError(t, err)

	return NewWebPush(store, Config{
		VAPIDPublicKey:  public,
		VAPIDPrivateKey: private,
		Subscriber:      "mailto:ops@example.com",
	}), store
}

func TestWebPush_SendAndPruneGone(t *testing.T) {
	var delivered atomic.Int32
	live := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "aes128gcm", r.Header.Get("Content-Encoding"))
		assert.True(t, strings.HasPrefix(r.Header.Get("Authorization"), "vapid "))
		delivered.Add(1)
		w.WriteHeader(http.StatusCreated)
	}))
	defer live.Close()
	gone := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))
	defer gone.Close()

	push, store := newTestPush(t)
	require.NoError(t, store.UpsertPushSubscription(newSubscription(t, "bob", live.URL+"/a")))
	require.NoError(t, store.UpsertPushSubscription(newSubscription(t, "bob", gone.URL+"/b")))

	err := push.Send(context.Background(), "bob", PayloadFor(models.Message{ID: "m1", RoomID: "dm_alice_bob", Content: "hi"}))
	require.NoError(t, err)
	assert.Equal(t, int32(1), delivered.Load())

	subs, err := store.ListPushSubscriptions("bob")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, live.URL+"/a", subs[0].Endpoint)
}

func TestWebPush_RunDrainsQueue(t *testing.T) {
	received := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		received <- struct{}{}
	}))
	defer srv.Close()

	push, store := newTestPush(t)
	require.NoError(t, store.UpsertPushSubscription(newSubscription(t, "bob", srv.URL)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = push.Run(ctx) }()

	push.NotifyMessage("bob", models.Message{ID: "m7", RoomID: "dm_alice_bob", Content: "ping"})

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("notification was not sent")
	}
}

func TestPayloadFor(t *testing.T) {
	long := strings.Repeat("ж", previewRunes+10)
	p := PayloadFor(models.Message{ID: "m1", RoomID: "r", Content: long, Kind: models.MessageKindText})
	assert.Equal(t, previewRunes+1, len([]rune(p.Body)))

	p = PayloadFor(models.Message{Content: "file-id", Kind: models.MessageKindVoice})
	assert.Equal(t, "Sent a voice message", p.Body)
}
