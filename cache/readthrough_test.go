package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftbox/authcore/domain"
)

type widget struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

func TestLookup_Get(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	loads := 0
	lookup := NewLookup(store, "widget", time.Minute, func(_ context.Context, key string) (*widget, error) {
		loads++
		switch key {
		case "w-1":
			return &widget{ID: "w-1", Label: "first"}, nil
		default:
			return nil, domain.ErrNotFound
		}
	})

	t.Run("miss loads and warms", func(t *testing.T) {
		got, err := lookup.Get(ctx, "w-1")
		require.NoError(t, err)
		assert.Equal(t, "first", got.Label)
		assert.Equal(t, 1, loads)

		// Second read is served from the cache.
		got, err = lookup.Get(ctx, "w-1")
		require.NoError(t, err)
		assert.Equal(t, "first", got.Label)
		assert.Equal(t, 1, loads)
	})

	t.Run("not-found passes through uncached", func(t *testing.T) {
		before := loads
		_, err := lookup.Get(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = lookup.Get(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.Equal(t, before+2, loads)
	})

	t.Run("invalidate forces a reload", func(t *testing.T) {
		before := loads
		require.NoError(t, lookup.Invalidate(ctx, "w-1"))
		_, err := lookup.Get(ctx, "w-1")
		require.NoError(t, err)
		assert.Equal(t, before+1, loads)
	})
}

func TestLookup_LoadErrorIsWrapped(t *testing.T) {
	store := newTestStore(t)
	boom := errors.New("datastore down")
	lookup := NewLookup(store, "widget", time.Minute, func(_ context.Context, _ string) (*widget, error) {
		return nil, boom
	})

	_, err := lookup.Get(context.Background(), "w-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, domain.ErrNotFound)
}

func TestLookup_KeysAreNamespaced(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := NewLookup(store, "alpha", time.Minute, func(_ context.Context, _ string) (string, error) {
		return "from-alpha", nil
	})
	b := NewLookup(store, "beta", time.Minute, func(_ context.Context, _ string) (string, error) {
		return "from-beta", nil
	})

	gotA, err := a.Get(ctx, "same-key")
	require.NoError(t, err)
	gotB, err := b.Get(ctx, "same-key")
	require.NoError(t, err)

	assert.Equal(t, "from-alpha", gotA)
	assert.Equal(t, "from-beta", gotB)
}
