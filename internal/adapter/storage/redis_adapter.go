package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/rl1809/nexus-shop/internal/core/domain"
	"github.com/rl1809/nexus-shop/internal/observability"
)

const (
	productKeyPrefix = "products::"
	loadTimeout      = 10 * time.Second
)

// RedisAdapter is the product read-through cache. Redis failures are
// logged and degrade to a store read; they never fail the caller.
type RedisAdapter struct {
	client  *redis.Client
	ttl     time.Duration
	group   singleflight.Group
	logger  *zap.Logger
	metrics *observability.Metrics
}

func NewRedisAdapter(client *redis.Client, ttl time.Duration, logger *zap.Logger, metrics *observability.Metrics) *RedisAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisAdapter{client: client, ttl: ttl, logger: logger, metrics: metrics}
}

func productKey(id string) string {
	return productKeyPrefix + id
}

// GetOrLoad collapses concurrent misses for the same id into one load.
func (r *RedisAdapter) GetOrLoad(ctx context.Context, id string, load func(ctx context.Context) (*domain.ProductResponse, error)) (*domain.ProductResponse, error) {
	cached, err := r.get(ctx, id)
	if err != nil {
		r.logger.Warn("product cache read failed", zap.String("product_id", id), zap.Error(err))
	}
	if cached != nil {
		r.metrics.CacheHit(true)
		return cached, nil
	}
	r.metrics.CacheHit(false)

	flight := r.group.DoChan(id, func() (any, error) {
		// the load is shared, so it must outlive the caller that started it
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()

		loaded, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		if err := r.Put(loadCtx, id, *loaded); err != nil {
			r.logger.Warn("product cache write failed", zap.String("product_id", id), zap.Error(err))
		}
		return loaded, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-flight:
	}
	if res.Err != nil {
		return nil, res.Err
	}

	// each caller gets its own copy
	p := *res.Val.(*domain.ProductResponse)
	return &p, nil
}

func (r *RedisAdapter) get(ctx context.Context, id string) (*domain.ProductResponse, error) {
	raw, err := r.client.Get(ctx, productKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var p domain.ProductResponse
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode cached product: %w", err)
	}
	return &p, nil
}

func (r *RedisAdapter) Put(ctx context.Context, id string, product domain.ProductResponse) error {
	raw, err := json.Marshal(product)
	if err != nil {
		return fmt.Errorf("encode product: %w", err)
	}
	return r.client.Set(ctx, productKey(id), raw, r.ttl).Err()
}

func (r *RedisAdapter) Evict(ctx context.Context, id string) error {
	return r.client.Del(ctx, productKey(id)).Err()
}
