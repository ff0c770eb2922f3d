package jetstream

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/grailsmarket/backend-sub002/internal/adapter"
	"github.com/grailsmarket/backend-sub002/internal/domain"
	"github.com/grailsmarket/backend-sub002/internal/logger"
	"github.com/grailsmarket/backend-sub002/internal/messaging"
)

type subscriber struct {
	nc     adapter.NatsConn
	js     adapter.JetStream
	json   adapter.JSON
	config Config
}

// NewSubscriber creates a new NATS JetStream change-signal subscriber with a
// durable consumer, so signals delivered while the process is down are
// replayed on restart
func NewSubscriber(cfg Config, natsJS adapter.NatsJetStream, jsonAdapter adapter.JSON) (messaging.Subscriber, error) {
	nc, js, err := natsJS.Connect(cfg.URL, connectOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS and create JetStream: %w", err)
	}

	return &subscriber{
		nc:     nc,
		js:     js,
		json:   jsonAdapter,
		config: cfg,
	}, nil
}

// SubscribeSignals consumes change signals until the context is canceled
func (s *subscriber) SubscribeSignals(ctx context.Context, handler messaging.SignalHandler) error {
	consumerConfig := jetstream.ConsumerConfig{
		Durable:       s.config.ConsumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       s.config.AckWait,
		MaxDeliver:    s.config.MaxDeliver,
		FilterSubject: SubjectEntityChanged,
	}

	consumer, err := s.js.CreateOrUpdateConsumer(ctx, s.config.StreamName, consumerConfig)
	if err != nil {
		return fmt.Errorf("failed to create/update consumer: %w", err)
	}

	consumerInfo, err := consumer.Info(ctx)
	if err != nil {
		return fmt.Errorf("failed to get consumer info: %w", err)
	}
	logger.Info("Consumer created/retrieved", zap.String("consumer", consumerInfo.Name))

	cc, err := consumer.Consume(func(msg adapter.Message) {
		s.handleMessage(msg, handler)
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}
	defer cc.Stop()

	logger.Info("Started consuming change signals", zap.String("stream", s.config.StreamName))

	<-ctx.Done()
	logger.Info("Shutting down change-signal subscriber")
	return ctx.Err()
}

// handleMessage processes a single delivery. Unparseable payloads are
// terminated (redelivery cannot fix them); handler errors are NAKed so the
// broker redelivers.
func (s *subscriber) handleMessage(msg adapter.Message, handler messaging.SignalHandler) {
	metadata, _ := msg.Metadata()

	var signal domain.ChangeSignal
	if err := s.json.Unmarshal(msg.Data(), &signal); err != nil {
		logger.Error(err, zap.String("message", "Failed to unmarshal change signal"))
		if err := msg.Term(); err != nil {
			logger.Error(err, zap.String("message", "Failed to terminate message"))
		}
		return
	}

	fields := []zap.Field{
		zap.Uint64("entity_id", signal.EntityID),
		zap.String("reason", string(signal.Reason)),
		zap.String("event_id", signal.EventID),
	}
	if metadata != nil {
		fields = append(fields, zap.Uint64("delivery_count", metadata.NumDelivered))
	}
	logger.Info("Received change signal", fields...)

	if err := handler(&signal); err != nil {
		logger.Error(err, zap.Uint64("entity_id", signal.EntityID))
		if err := msg.Nak(); err != nil {
			logger.Error(err, zap.String("message", "Failed to NAK message"))
		}
		return
	}

	if err := msg.Ack(); err != nil {
		logger.Error(err, zap.String("message", "Failed to ACK message"))
	}
}

// Close closes the NATS connection
func (s *subscriber) Close() {
	if s.nc == nil {
		return
	}

	s.nc.Close()
}
