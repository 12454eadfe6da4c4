package policycache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/modsentry/modsentry/internal/store"
)

// countingDAO implements only the method the cache touches; the embedded nil
// interface panics if the cache ever reaches past GetChatPolicy.
type countingDAO struct {
	store.DAO
	calls  int
	policy *store.ChatPolicy
}

func (d *countingDAO) GetChatPolicy(_ context.Context, chatID int64) (*store.ChatPolicy, error) {
	d.calls++
	if d.policy == nil {
		return nil, store.ErrChatNotFound
	}
	cp := *d.policy
	return &cp, nil
}

func TestGet_ReadThroughCachesWithinTTL(t *testing.T) {
	dao := &countingDAO{policy: &store.ChatPolicy{ChatID: 1, AIEnabled: true}}
	c := New(dao, time.Minute)

	p1, err := c.Get(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, p1.AIEnabled)

	_, err = c.Get(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, 1, dao.calls)
}

func TestGet_ExpiredEntryRequeries(t *testing.T) {
	dao := &countingDAO{policy: &store.ChatPolicy{ChatID: 1}}
	c := New(dao, time.Nanosecond)

	_, err := c.Get(context.Background(), 1)
	require.NoError(t, err)

	time.Sleep(time.Millisecond)

	_, err = c.Get(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, 2, dao.calls)
}

func TestInvalidate_ForcesRequeryWithoutTTLWait(t *testing.T) {
	dao := &countingDAO{policy: &store.ChatPolicy{ChatID: 1, AIEnabled: false}}
	c := New(dao, time.Hour)

	p, err := c.Get(context.Background(), 1)
	require.NoError(t, err)
	require.False(t, p.AIEnabled)

	// Simulate an admin write landing in the store, then invalidating.
	dao.policy.AIEnabled = true
	c.Invalidate(1)

	p, err = c.Get(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, p.AIEnabled)
	require.Equal(t, 2, dao.calls)
}

func TestSet_SeedsWithoutQuery(t *testing.T) {
	dao := &countingDAO{}
	c := New(dao, time.Hour)

	c.Set(5, store.ChatPolicy{ChatID: 5, Processed: 9})

	p, err := c.Get(context.Background(), 5)
	require.NoError(t, err)
	require.Equal(t, int64(9), p.Processed)
	require.Equal(t, 0, dao.calls)
}

func TestGet_NotFoundPassesThroughUncached(t *testing.T) {
	dao := &countingDAO{}
	c := New(dao, time.Hour)

	_, err := c.Get(context.Background(), 42)
	require.ErrorIs(t, err, store.ErrChatNotFound)

	// A chat registered right after a miss is visible immediately.
	dao.policy = &store.ChatPolicy{ChatID: 42}
	_, err = c.Get(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, 2, dao.calls)
}
