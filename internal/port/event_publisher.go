package port

import (
	"context"

	"github.com/rl1809/nexus-shop/internal/core/domain"
)

type EventPublisher interface {
	PublishProductCreated(ctx context.Context, event domain.ProductCreatedEvent) error
}
