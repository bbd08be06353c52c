// Package notify delivers Web Push notifications to users that are not
// connected to the room a message was sent to.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"unicode/utf8"

	"veranda/internal/models"

	webpush "github.com/SherClockHolmes/webpush-go"
)

const (
	defaultQueueSize = 128
	defaultTTL       = 60 * 60 * 24
	previewRunes     = 120
)

type Store interface {
	ListPushSubscriptions(userID string) ([]models.PushSubscription, error)
	DeletePushSubscription(endpoint string) error
}

type Config struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	// Subscriber is the contact (mailto: or https:) sent to push services.
	Subscriber string
	TTL        int
	QueueSize  int
}

type Payload struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	RoomID    string `json:"roomId"`
	MessageID string `json:"messageId"`
}

type job struct {
	userID  string
	payload Payload
}

// WebPush queues notifications and sends them from Run.
type WebPush struct {
	store  Store
	config Config
	client webpush.HTTPClient
	jobs   chan job
}

func NewWebPush(store Store, config Config) *WebPush {
	if config.TTL <= 0 {
		config.TTL = defaultTTL
	}
	if config.QueueSize <= 0 {
		config.QueueSize = defaultQueueSize
	}
	return &WebPush{
		store:  store,
		config: config,
		client: http.DefaultClient,
		jobs:   make(chan job, config.QueueSize),
	}
}

// GenerateVAPIDKeys returns a new (public, private) key pair.
func GenerateVAPIDKeys() (string, string, error) {
	private, public, err := webpush.GenerateVAPIDKeys()
	if err != nil {
		return "", "", fmt.Errorf("failed to generate VAPID keys: %w", err)
	}
	return public, private, nil
}

func PayloadFor(msg models.Message) Payload {
	body := msg.Content
	switch msg.Kind {
	case models.MessageKindFile:
		body = "Sent a file"
	case models.MessageKindVoice:
		body = "Sent a voice message"
	default:
		if utf8.RuneCountInString(body) > previewRunes {
			body = string([]rune(body)[:previewRunes]) + "…"
		}
	}
	return Payload{
		Title:     "New message",
		Body:      body,
		RoomID:    msg.RoomID,
		MessageID: msg.ID,
	}
}

// NotifyMessage queues a notification for recipientID. It never blocks,
// a full queue drops the notification.
func (w *WebPush) NotifyMessage(recipientID string, msg models.Message) {
	select {
	case w.jobs <- job{userID: recipientID, payload: PayloadFor(msg)}:
	default:
		slog.Warn("push queue full, dropping notification", "user_id", recipientID, "message_id", msg.ID)
	}
}

// Run sends queued notifications until ctx is done.
func (w *WebPush) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case j := <-w.jobs:
			if err := w.Send(ctx, j.userID, j.payload); err != nil {
				slog.Warn("push notification failed", "user_id", j.userID, "error", err)
			}
		}
	}
}

// Send pushes payload to every subscription of userID. Subscriptions the
// push service reports as gone are deleted.
func (w *WebPush) Send(ctx context.Context, userID string, payload Payload) error {
	subs, err := w.store.ListPushSubscriptions(userID)
	if err != nil {
		return err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	var errs []error
	for _, sub := range subs {
		if err := w.sendOne(ctx, sub, data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (w *WebPush) sendOne(ctx context.Context, sub models.PushSubscription, data []byte) error {
	resp, err := webpush.SendNotificationWithContext(ctx, data, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			Auth:   sub.Auth,
			P256dh: sub.P256dh,
		},
	}, &webpush.Options{
		HTTPClient:      w.client,
		Subscriber:      w.config.Subscriber,
		VAPIDPublicKey:  w.config.VAPIDPublicKey,
		VAPIDPrivateKey: w.config.VAPIDPrivateKey,
		TTL:             w.config.TTL,
	})
	if err != nil {
		return fmt.Errorf("push to %s: %w", sub.Endpoint, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusGone:
		slog.Info("push subscription gone, deleting", "user_id", sub.UserID, "endpoint", sub.Endpoint)
		return w.store.DeletePushSubscription(sub.Endpoint)
	case resp.StatusCode >= 300:
		return fmt.Errorf("push to %s: unexpected status %d", sub.Endpoint, resp.StatusCode)
	}
	return nil
}
