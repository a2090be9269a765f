package recognition

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGallery_LargeGalleryRoundTrip(t *testing.T) {
	ctx := context.Background()
	cache := newFakeCache()
	g := &gallery{cache: cache, ttl: time.Minute, log: slog.Default()}
	sigs := syntheticGallery(500, 512)

	_, gen, ok := g.load(ctx)
	require.False(t, ok)
	require.NotEmpty(t, gen, "a miss still yields a generation to write under")

	g.store(ctx, gen, sigs)
	assert.Less(t, len(cache.get(galleryDataKey(gen))), 500*2300)

	got, gen2, ok := g.load(ctx)
	require.True(t, ok)
	assert.Equal(t, gen, gen2)
	require.Len(t, got, len(sigs))
	assert.Equal(t, sigs[499].Vector, got[499].Vector)

	g.invalidate(ctx)
	assert.False(t, cache.has(galleryDataKey(gen)))
	_, gen3, ok := g.load(ctx)
	assert.False(t, ok)
	assert.NotEqual(t, gen, gen3)
}

func TestGallery_StaleWriteAfterInvalidate(t *testing.T) {
	ctx := context.Background()
	cache := newFakeCache()
	g := &gallery{cache: cache, ttl: time.Minute, log: slog.Default()}
	before := syntheticGallery(3, 4)

	_, gen, ok := g.load(ctx)
	require.False(t, ok)
	g.invalidate(ctx)
	g.store(ctx, gen, before)

	_, _, ok = g.load(ctx)
	assert.False(t, ok, "write under a retired generation is never served")
}

func TestGallery_EmptyNotCached(t *testing.T) {
	ctx := context.Background()
	cache := newFakeCache()
	g := &gallery{cache: cache, ttl: time.Minute, log: slog.Default()}

	_, gen, _ := g.load(ctx)
	g.store(ctx, gen, nil)

	assert.False(t, cache.has(galleryDataKey(gen)))
}
