package forum

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"veranda/internal/models"
	"veranda/internal/moderation"
	"veranda/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.ServerEvent
}

func (p *recordingPublisher) PublishRoomEvent(roomID string, ev models.ServerEvent) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if roomID != models.ForumRoomID {
		panic("forum events must go to the forum room")
	}
	p.events = append(p.events, ev)
	return 1
}

func (p *recordingPublisher) types() []models.ServerEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []models.ServerEventType
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

func newTestService(t *testing.T) (*Service, *storage.BboltStorage, *recordingPublisher) {
	t.Helper()
	store, err := storage.NewBboltStorage(filepath.Join(t.TempDir(), "forum.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.UpsertUser(models.User{ID: "admin", UserName: "admin", Role: models.RoleAdministrator}))
	require.NoError(t, store.UpsertUser(models.User{ID: "alice", UserName: "alice", DisplayName: "Alice"}))

	pub := &recordingPublisher{}
	svc := NewService(store, pub)

	clock := time.UnixMilli(1_700_000_000_000)
	svc.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return svc, store, pub
}

func TestService_PostAndReply(t *testing.T) {
	svc, _, pub := newTestService(t)

	post, err := svc.CreatePost("alice", "Hello", "**first** post", "help")
	require.NoError(t, err)
	assert.Equal(t, models.CategoryHelp, post.Category)
	assert.Equal(t, "Alice", post.AuthorName)
	assert.Contains(t, post.BodyHTML, "<strong>first</strong>")

	reply, err := svc.Reply(post.ID, "admin", "welcome")
	require.NoError(t, err)
	assert.Equal(t, post.ID, reply.PostID)

	got, err := svc.Get(post.ID)
	require.NoError(t, err)
	require.Len(t, got.Replies, 1)
	assert.Equal(t, reply.ID, got.Replies[0].ID)

	assert.Equal(t, []models.ServerEventType{
		models.ServerEventPostCreated,
		models.ServerEventReplyAdded,
	}, pub.types())
}

func TestService_UnknownCategoryFallsBack(t *testing.T) {
	svc, _, _ := newTestService(t)

	post, err := svc.CreatePost("alice", "Hi", "body", "gardening")
	require.NoError(t, err)
	assert.Equal(t, models.CategoryGeneral, post.Category)

	_, err = svc.CreatePost("alice", "News", "body", "announcements")
	assert.True(t, errors.Is(err, models.ErrAuthorizationDenied))
}

func TestService_LockedPostRefusesReplies(t *testing.T) {
	svc, _, pub := newTestService(t)

	post, err := svc.CreatePost("alice", "Topic", "body", "general")
	require.NoError(t, err)

	_, err = svc.ToggleLock("alice", post.ID)
	assert.True(t, errors.Is(err, models.ErrAuthorizationDenied), "only admins lock")

	locked, err := svc.ToggleLock("admin", post.ID)
	require.NoError(t, err)
	assert.True(t, locked.Locked)

	for _, author := range []string{"alice", "admin"} {
		_, err = svc.Reply(post.ID, author, "too late")
		assert.True(t, errors.Is(err, models.ErrPostLocked), "author %s", author)
	}

	unlocked, err := svc.ToggleLock("admin", post.ID)
	require.NoError(t, err)
	assert.False(t, unlocked.Locked)

	_, err = svc.Reply(post.ID, "alice", "open again")
	require.NoError(t, err)

	assert.Contains(t, pub.types(), models.ServerEventPostUpdated)
}

func TestService_TimedOutUserCannotWrite(t *testing.T) {
	svc, store, _ := newTestService(t)

	_, err := store.UpdateUser("alice", func(u *models.User) error {
		*u = moderation.ImposeTimeout(*u, time.Now().Add(time.Hour), "spam")
		return nil
	})
	require.NoError(t, err)

	_, err = svc.CreatePost("alice", "Title", "body", "")
	assert.True(t, errors.Is(err, models.ErrAuthorizationDenied))
}

func TestService_ListPinnedFirstThenNewest(t *testing.T) {
	svc, _, _ := newTestService(t)

	old, err := svc.CreatePost("alice", "Old", "body", "general")
	require.NoError(t, err)
	mid, err := svc.CreatePost("alice", "Mid", "body", "general")
	require.NoError(t, err)
	recent, err := svc.CreatePost("alice", "Recent", "body", "general")
	require.NoError(t, err)
	other, err := svc.CreatePost("alice", "Elsewhere", "body", "feedback")
	require.NoError(t, err)

	_, err = svc.TogglePin("admin", old.ID)
	require.NoError(t, err)

	posts, err := svc.List("general")
	require.NoError(t, err)
	var ids []string
	for _, p := range posts {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{old.ID, recent.ID, mid.ID}, ids)

	all, err := svc.List("")
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.Equal(t, old.ID, all[0].ID)
	assert.Equal(t, other.ID, all[1].ID)
}

func TestService_Validation(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.CreatePost("alice", "  ", "body", "")
	assert.True(t, errors.Is(err, models.ErrInvalidArgument))

	_, err = svc.CreatePost("alice", "title", "", "")
	assert.True(t, errors.Is(err, models.ErrInvalidArgument))

	_, err = svc.Reply("missing", "alice", "hello")
	assert.True(t, errors.Is(err, models.ErrNotFound))

	_, err = svc.CreatePost("nobody", "title", "body", "")
	assert.True(t, errors.Is(err, models.ErrNotFound))
}
