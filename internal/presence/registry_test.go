package presence

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"veranda/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterUnregister(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register("c1", "main", "alice"))
	require.NoError(t, r.Register("c2", "main", "bob"))
	require.NoError(t, r.Register("c3", "other", "bob"))

	assert.ElementsMatch(t, []string{"c1", "c2"}, r.ConnectionsInRoom("main"))
	assert.Equal(t, []string{"alice", "bob"}, r.UsersInRoom("main"))
	assert.True(t, r.IsPresent("other", "bob"))
	assert.False(t, r.IsPresent("other", "alice"))

	err := r.Register("c1", "other", "alice")
	assert.True(t, errors.Is(err, models.ErrProtocolViolation), "second membership must be rejected, got %v", err)

	entry, ok := r.Unregister("c1")
	require.True(t, ok)
	assert.Equal(t, Entry{RoomID: "main", UserID: "alice"}, entry)

	_, ok = r.Unregister("c1")
	assert.False(t, ok, "second unregister must report nothing")

	assert.Equal(t, []string{"c2"}, r.ConnectionsInRoom("main"))

	_, ok = r.Unregister("c2")
	require.True(t, ok)
	assert.Empty(t, r.ConnectionsInRoom("main"))
	assert.Empty(t, r.UsersInRoom("main"))
}

func TestRegistry_SameUserManyConnections(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("c1", "main", "alice"))
	require.NoError(t, r.Register("c2", "main", "alice"))

	assert.Equal(t, []string{"alice"}, r.UsersInRoom("main"))

	r.Unregister("c1")
	assert.True(t, r.IsPresent("main", "alice"))
}

func TestRegistry_Concurrent(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Go(func() {
			id := fmt.Sprintf("c%d", i)
			_ = r.Register(id, "main", id)
			_ = r.ConnectionsInRoom("main")
			r.Unregister(id)
		})
	}
	wg.Wait()

	assert.Empty(t, r.ConnectionsInRoom("main"))
}
