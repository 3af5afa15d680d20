package statestore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekemper/leadgen/errors"
)

func TestMemoryStoreGetMissing(t *testing.T) {
	s := NewMemoryStore()

	_, err := s.Get(context.Background(), "absent")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrKeyMissing))
}

func TestMemoryStoreSetGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("v"), 0))

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
}

func TestMemoryStoreExpiry(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	now := time.Now()
	s.SetClock(func() time.Time { return now })

	require.NoError(t, s.Set(ctx, "k", []byte("v"), time.Hour))

	_, err := s.Get(ctx, "k")
	require.NoError(t, err)

	// advance past the TTL
	now = now.Add(2 * time.Hour)

	_, err = s.Get(ctx, "k")
	assert.True(t, errors.Is(err, ErrKeyMissing))
}

func TestMemoryStoreCompareAndSwap(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	// nil expect means key must be absent
	swapped, err := s.CompareAndSwap(ctx, "k", nil, []byte("first"), 0)
	require.NoError(t, err)
	assert.True(t, swapped)

	// second writer expecting absence loses
	swapped, err = s.CompareAndSwap(ctx, "k", nil, []byte("second"), 0)
	require.NoError(t, err)
	assert.False(t, swapped)

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), got)

	// swap with matching expect wins
	swapped, err = s.CompareAndSwap(ctx, "k", []byte("first"), []byte("second"), 0)
	require.NoError(t, err)
	assert.True(t, swapped)

	got, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), got)
}

func TestMemoryStoreQueue(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	// empty queue pops nil without error
	head, err := s.Pop(ctx, "q")
	require.NoError(t, err)
	assert.Nil(t, head)

	require.NoError(t, s.Push(ctx, "q", []byte("a")))
	require.NoError(t, s.Push(ctx, "q", []byte("b")))

	head, err = s.Pop(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), head)

	head, err = s.Pop(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), head)

	head, err = s.Pop(ctx, "q")
	require.NoError(t, err)
	assert.Nil(t, head)
}

func TestMemoryStoreDelete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("v"), 0))
	require.NoError(t, s.Delete(ctx, "k"))
	require.NoError(t, s.Delete(ctx, "k")) // deleting absent key is fine

	_, err := s.Get(ctx, "k")
	assert.True(t, errors.Is(err, ErrKeyMissing))
}
