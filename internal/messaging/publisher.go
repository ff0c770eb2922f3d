package messaging

import (
	"context"

	"github.com/grailsmarket/backend-sub002/internal/domain"
)

// Publisher defines the interface for emitting change signals onto the
// durable channel
//
//go:generate mockgen -source=publisher.go -destination=../mocks/publisher.go -package=mocks -mock_names=Publisher=MockPublisher
type Publisher interface {
	// PublishEntityChanged publishes an entity change signal
	PublishEntityChanged(ctx context.Context, signal *domain.ChangeSignal) error
	// Close closes the connection
	Close()
}
