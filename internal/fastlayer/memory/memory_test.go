package memory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	ctx := context.Background()
	s := New()
	id := uuid.New()

	got, err := s.Load(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, got)

	data := []byte{1, 2, 3}
	require.NoError(t, s.Store(ctx, id, data))
	data[0] = 9

	got, err = s.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, got)

	got[1] = 9
	again, _ := s.Load(ctx, id)
	assert.Equal(t, []byte{1, 2, 3}, again)
	assert.Equal(t, 1, s.Len())

	require.NoError(t, s.Remove(ctx, id))
	require.NoError(t, s.Remove(ctx, id))
	assert.Equal(t, 0, s.Len())
}

func TestCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	s := New()
	id := uuid.New()

	ok, err := s.CompareAndSwap(ctx, id, nil, []byte{1})
	require.NoError(t, err)
	assert.False(t, ok, "absent record is never swapped")

	require.NoError(t, s.Store(ctx, id, []byte{1, 2}))

	ok, err = s.CompareAndSwap(ctx, id, []byte{9, 9}, []byte{3, 4})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.CompareAndSwap(ctx, id, []byte{1, 2}, []byte{3, 4})
	require.NoError(t, err)
	assert.True(t, ok)

	got, _ := s.Load(ctx, id)
	assert.Equal(t, []byte{3, 4}, got)
}
