package messaging

import (
	"context"

	"github.com/grailsmarket/backend-sub002/internal/domain"
)

// SignalHandler is called once per delivered change signal. Delivery is
// at-least-once, so handlers must be idempotent. A returned error causes
// redelivery.
type SignalHandler func(signal *domain.ChangeSignal) error

// Subscriber defines the interface for consuming change signals from the
// durable channel
//
//go:generate mockgen -source=subscriber.go -destination=../mocks/subscriber.go -package=mocks -mock_names=Subscriber=MockSubscriber
type Subscriber interface {
	// SubscribeSignals consumes signals until the context is canceled
	SubscribeSignals(ctx context.Context, handler SignalHandler) error
	// Close closes the connection and cleans up resources
	Close()
}
