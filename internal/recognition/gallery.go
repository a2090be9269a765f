package recognition

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/faceid/internal/models"
	"github.com/your-org/faceid/internal/observability"
)

const (
	galleryGenKey     = "gallery.gen"
	galleryDataPrefix = "gallery.data."
)

func galleryDataKey(gen string) string {
	return galleryDataPrefix + gen
}

// gallery is a read-through cache of every stored signature. Cache failures
// never fail a resolution; the store stays authoritative.
//
// Entries are keyed by a generation that every mutation replaces, so a
// reader that listed the store before a mutation writes under a generation
// nobody reads any more.
type gallery struct {
	cache Cache
	ttl   time.Duration
	log   *slog.Logger
}

// load returns the cached gallery and the generation it was read under. On
// a miss gen is still set when the cache is reachable, and store must be
// given it.
func (g *gallery) load(ctx context.Context) (sigs []models.Signature, gen string, ok bool) {
	if g.cache == nil {
		return nil, "", false
	}

	gen, err := g.generation(ctx)
	if err != nil {
		observability.GalleryCache.WithLabelValues("error").Inc()
		g.log.Warn("gallery cache read failed", "error", err)
		return nil, "", false
	}

	data, ok, err := g.cache.Get(ctx, galleryDataKey(gen))
	if err != nil {
		observability.GalleryCache.WithLabelValues("error").Inc()
		g.log.Warn("gallery cache read failed", "error", err)
		return nil, gen, false
	}
	if !ok {
		observability.GalleryCache.WithLabelValues("miss").Inc()
		return nil, gen, false
	}

	sigs, err = decodeGallery(data)
	if err != nil {
		observability.GalleryCache.WithLabelValues("error").Inc()
		g.log.Warn("gallery cache entry corrupt", "error", err)
		return nil, gen, false
	}
	observability.GalleryCache.WithLabelValues("hit").Inc()
	return sigs, gen, true
}

// generation reads the current generation, minting one when none is set.
func (g *gallery) generation(ctx context.Context) (string, error) {
	raw, ok, err := g.cache.Get(ctx, galleryGenKey)
	if err != nil {
		return "", err
	}
	if ok && len(raw) > 0 {
		return string(raw), nil
	}
	gen := uuid.NewString()
	if err := g.cache.Set(ctx, galleryGenKey, []byte(gen), 0); err != nil {
		return "", err
	}
	return gen, nil
}

func (g *gallery) store(ctx context.Context, gen string, sigs []models.Signature) {
	if g.cache == nil || gen == "" || len(sigs) == 0 {
		return
	}
	data, err := encodeGallery(sigs)
	if err != nil {
		g.log.Warn("encode gallery", "error", err)
		return
	}
	if err := g.cache.Set(ctx, galleryDataKey(gen), data, g.ttl); err != nil {
		g.log.Warn("gallery cache write failed", "error", err)
	}
}

// invalidate moves readers to a fresh generation and drops the old entry.
func (g *gallery) invalidate(ctx context.Context) {
	if g.cache == nil {
		return
	}
	old, ok, err := g.cache.Get(ctx, galleryGenKey)
	if err != nil {
		g.log.Warn("gallery cache read failed", "error", err)
	}
	if err := g.cache.Set(ctx, galleryGenKey, []byte(uuid.NewString()), 0); err != nil {
		g.log.Warn("gallery cache invalidation failed", "error", err)
	}
	if ok && len(old) > 0 {
		if err := g.cache.Delete(ctx, galleryDataKey(string(old))); err != nil {
			g.log.Warn("gallery cache invalidation failed", "error", err)
		}
	}
}
