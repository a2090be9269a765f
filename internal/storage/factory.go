package storage

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/faceid/internal/config"
	"github.com/your-org/faceid/internal/recognition"
)

// NewGalleryCache builds the configured gallery cache backend. The none
// backend returns a nil cache, which disables caching.
func NewGalleryCache(ctx context.Context, cfg config.RecognitionConfig, js jetstream.JetStream, bucket string) (recognition.Cache, error) {
	switch cfg.CacheBackend {
	case config.CacheBackendNATS:
		obs, err := NewObjectCache(ctx, js, bucket, cfg.CacheTTL)
		if err != nil {
			return nil, err
		}
		return obs, nil
	case config.CacheBackendMemory:
		return NewMemoryCache(), nil
	case config.CacheBackendNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
}
