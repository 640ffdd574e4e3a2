package storage

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestNoteCache(t *testing.T) (*NoteCache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewNoteCacheWithClient(client)
	t.Cleanup(func() { _ = cache.Close() })
	return cache, mr
}

func TestNoteCache_MissIsUnknown(t *testing.T) {
	cache, _ := newTestNoteCache(t)
	ctx := context.Background()

	hasNote, known := cache.HasNote(ctx, "0xAbC")
	assert.False(t, hasNote)
	assert.False(t, known)
}

func TestNoteCache_SetAndGet(t *testing.T) {
	cache, _ := newTestNoteCache(t)
	ctx := context.Background()

	cache.SetHasNote(ctx, "0xAbC", true)

	// Lookups normalize the wallet, so case must not matter.
	hasNote, known := cache.HasNote(ctx, "0xabc")
	assert.True(t, known)
	assert.True(t, hasNote)

	cache.SetHasNote(ctx, "0xabc", false)
	hasNote, known = cache.HasNote(ctx, "0xABC")
	assert.True(t, known)
	assert.False(t, hasNote)
}

func TestNoteCache_Invalidate(t *testing.T) {
	cache, _ := newTestNoteCache(t)
	ctx := context.Background()

	cache.SetHasNote(ctx, "0xabc", true)
	cache.Invalidate(ctx, "0xabc")

	_, known := cache.HasNote(ctx, "0xabc")
	assert.False(t, known)
}

func TestNoteCache_Expiry(t *testing.T) {
	cache, mr := newTestNoteCache(t)
	ctx := context.Background()

	cache.SetHasNote(ctx, "0xabc", true)
	mr.FastForward(2 * cache.ttl)

	_, known := cache.HasNote(ctx, "0xabc")
	assert.False(t, known)
}

func TestNoteCache_ServerDownFallsThrough(t *testing.T) {
	cache, mr := newTestNoteCache(t)
	ctx := context.Background()

	cache.SetHasNote(ctx, "0xabc", true)
	mr.Close()

	hasNote, known := cache.HasNote(ctx, "0xabc")
	assert.False(t, hasNote)
	assert.False(t, known)
}
