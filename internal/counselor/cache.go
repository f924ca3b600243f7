package counselor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/jomigata/wiz-coco-sub004/pkg/logging"
)

// CachedResolver fronts a Resolver with a Redis cache so hot escalation
// paths do not hammer the directory. Misses and directory errors are never
// cached.
type CachedResolver struct {
	inner  Resolver
	client *redis.Client
	ttl    time.Duration
	logger *logging.Logger
	tracer trace.Tracer
}

// NewCachedResolver wraps inner with a Redis cache. A nil client disables
// caching and delegates directly.
func NewCachedResolver(inner Resolver, client *redis.Client, ttl time.Duration, logger *logging.Logger) *CachedResolver {
	if logger == nil {
		logger = logging.Default()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedResolver{
		inner:  inner,
		client: client,
		ttl:    ttl,
		logger: logger,
		tracer: otel.Tracer("wizcoco/counselor-cache"),
	}
}

func cacheKey(clientID string) string {
	return "counselor:assignment:" + clientID
}

// ResolveCounselor consults the cache first, falling back to the directory.
// Cache failures degrade to direct lookups.
func (r *CachedResolver) ResolveCounselor(ctx context.Context, clientID string) (string, error) {
	ctx, span := r.tracer.Start(ctx, "counselor.resolve_cached")
	defer span.End()

	if r.client != nil {
		cached, err := r.client.Get(ctx, cacheKey(clientID)).Result()
		if err == nil && cached != "" {
			return cached, nil
		}
		if err != nil && !errors.Is(err, redis.Nil) {
			r.logger.Warn("counselor cache read failed", "error", err, "client_id", clientID)
		}
	}

	counselorID, err := r.inner.ResolveCounselor(ctx, clientID)
	if err != nil {
		span.RecordError(err)
		return "", err
	}

	if r.client != nil {
		if err := r.client.Set(ctx, cacheKey(clientID), counselorID, r.ttl).Err(); err != nil {
			r.logger.Warn("counselor cache write failed", "error", err, "client_id", clientID)
		}
	}
	return counselorID, nil
}

// Invalidate drops a cached assignment, e.g. after reassignment.
func (r *CachedResolver) Invalidate(ctx context.Context, clientID string) error {
	if r.client == nil {
		return nil
	}
	if err := r.client.Del(ctx, cacheKey(clientID)).Err(); err != nil {
		return fmt.Errorf("counselor: invalidate cache: %w", err)
	}
	return nil
}

var _ Resolver = (*CachedResolver)(nil)
