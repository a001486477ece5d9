package port

import (
	"context"

	"github.com/rl1809/nexus-shop/internal/core/domain"
)

type ProductCache interface {
	// GetOrLoad returns the cached entry or calls load and stores its result
	GetOrLoad(ctx context.Context, id string, load func(ctx context.Context) (*domain.ProductResponse, error)) (*domain.ProductResponse, error)

	Put(ctx context.Context, id string, product domain.ProductResponse) error

	Evict(ctx context.Context, id string) error
}
