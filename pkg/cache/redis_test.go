package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/companionlabs/companion-go/pkg/cache"
	"github.com/companionlabs/companion-go/pkg/core"
)

func newTestCache(t *testing.T) (*cache.Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := cache.NewCache("redis://"+mr.Addr(), time.Hour, time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestNewCacheRejectsBadURL(t *testing.T) {
	_, err := cache.NewCache("not-a-url", time.Hour, time.Second)
	assert.Error(t, err)
}

func TestNewCacheFailsWhenRedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := cache.NewCache("redis://"+addr, time.Hour, time.Second)
	assert.Error(t, err)
}

func TestProfileCacheRoundTrip(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	// Cold cache is a miss, not an error.
	profile, err := c.GetProfile(ctx, "user-1")
	require.NoError(t, err)
	assert.Nil(t, profile)

	stored := core.NewProfile("user-1")
	stored.Identity.Name = "John"
	require.NoError(t, c.SetProfile(ctx, stored))

	cached, err := c.GetProfile(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, "John", cached.Identity.Name)

	// Entries live under the fixed key scheme with the configured TTL.
	require.True(t, mr.Exists("user_profile:user-1"))
	assert.Equal(t, time.Hour, mr.TTL("user_profile:user-1"))

	mr.FastForward(time.Hour + time.Minute)
	expired, err := c.GetProfile(ctx, "user-1")
	require.NoError(t, err)
	assert.Nil(t, expired)
}

func TestConversationCacheRoundTripAndInvalidate(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	conv := core.NewConversation("user-1", "session-1")
	conv.Append(core.Message{Role: core.RoleUser, Content: "hello", Timestamp: time.Now()})
	require.NoError(t, c.SetConversation(ctx, conv))
	require.True(t, mr.Exists("conversation:user-1:session-1"))

	cached, err := c.GetConversation(ctx, "user-1", "session-1")
	require.NoError(t, err)
	require.NotNil(t, cached)
	require.Len(t, cached.Messages, 1)
	assert.Equal(t, "hello", cached.Messages[0].Content)

	require.NoError(t, c.InvalidateConversation(ctx, "user-1", "session-1"))
	assert.False(t, mr.Exists("conversation:user-1:session-1"))

	gone, err := c.GetConversation(ctx, "user-1", "session-1")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestCorruptEntryBehavesAsMiss(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("user_profile:user-1", "not json"))

	profile, err := c.GetProfile(ctx, "user-1")
	require.NoError(t, err)
	assert.Nil(t, profile)
}

func TestOperationsErrorWhenRedisDown(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	mr.Close()

	_, err := c.GetProfile(ctx, "user-1")
	assert.Error(t, err)
	assert.Error(t, c.SetProfile(ctx, core.NewProfile("user-1")))
	assert.Error(t, c.Ping(ctx))
}
