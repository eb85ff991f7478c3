package outbox

import (
	"context"
	"time"

	"go.uber.org/zap"

	"paygate/internal/repository/outbox_repo"
)

// Producer is the outbound message sink, satisfied by the Kafka producer.
type Producer interface {
	Produce(ctx context.Context, key, topic string, value []byte) error
}

// Processor drains pending outbox messages to Kafka on a polling loop.
// Delivery is at-least-once: a crash between Produce and MarkSent republishes
// the message, and consumers dedup on order id + status.
type Processor struct {
	repo         outbox_repo.OutboxRepository
	producer     Producer
	topic        string
	pollInterval time.Duration
	pollTimeout  time.Duration
	batchSize    int
	logger       *zap.Logger
}

func NewProcessor(
	repo outbox_repo.OutboxRepository,
	producer Producer,
	topic string,
	pollInterval time.Duration,
	pollTimeout time.Duration,
	logger *zap.Logger,
) *Processor {
	return &Processor{
		repo:         repo,
		producer:     producer,
		topic:        topic,
		pollInterval: pollInterval,
		pollTimeout:  pollTimeout,
		batchSize:    10,
		logger:       logger,
	}
}

// Run blocks, polling until ctx is cancelled.
func (p *Processor) Run(ctx context.Context) error {
	p.logger.Info("Starting outbox processor", zap.String("topic", p.topic), zap.Duration("poll_interval", p.pollInterval))
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Outbox processor stopping")
			return ctx.Err()
		case <-ticker.C:
			p.processPending(ctx)
		}
	}
}

func (p *Processor) processPending(ctx context.Context) {
	queryCtx, cancel := context.WithTimeout(ctx, p.pollTimeout)
	messages, err := p.repo.GetPendingMessages(queryCtx, p.batchSize)
	cancel()
	if err != nil {
		p.logger.Error("Failed to get pending outbox messages", zap.Error(err))
		return
	}
	if len(messages) == 0 {
		return
	}
	p.logger.Debug("Found pending outbox messages", zap.Int("count", len(messages)))

	for _, msg := range messages {
		if err := p.producer.Produce(ctx, msg.Key, p.topic, msg.Payload); err != nil {
			p.logger.Error("Failed to publish outbox message",
				zap.String("message_id", msg.ID),
				zap.String("order_id", msg.OrderID),
				zap.Error(err))
			continue
		}
		if err := p.repo.MarkSent(ctx, msg.ID); err != nil {
			p.logger.Error("Failed to mark outbox message as sent",
				zap.String("message_id", msg.ID),
				zap.Error(err))
			continue
		}
		p.logger.Debug("Outbox message published",
			zap.String("message_id", msg.ID),
			zap.String("order_id", msg.OrderID),
			zap.String("type", msg.MessageType))
	}
}
