package projection

import (
	"context"
	"errors"

	"github.com/docflowlabs/docflow-service/internal/event"
	"github.com/docflowlabs/docflow-service/internal/metrics"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// messageSource is the slice of kafka.Reader the consume loop needs.
type messageSource interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// applier applies one decoded event to the read store.
type applier interface {
	Apply(ctx context.Context, topic string, env event.Envelope) error
}

// Consumer reads event topics as one consumer group and feeds the manager.
// Offsets are only committed after a successful apply, so a crash replays
// from the earliest unprocessed offset; duplicate applies are harmless.
type Consumer struct {
	reader messageSource
	mgr    applier
	log    *zap.SugaredLogger
}

// NewConsumer returns Consumer.
func NewConsumer(brokers []string, groupID string, mgr *Manager, log *zap.SugaredLogger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     groupID,
		GroupTopics: event.Topics(),
		StartOffset: kafka.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	return &Consumer{reader: reader, mgr: mgr, log: log}
}

// Run consumes until the context is cancelled or an apply fails. An apply
// failure stops the loop: a group offset is a single integer per partition,
// so committing any later message would commit past the failed one and it
// would never be redelivered. The restarted consumer resumes at the earliest
// uncommitted offset.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		env, err := event.Decode(msg.Value)
		if err != nil {
			// malformed payload will never apply; commit past it
			c.log.Errorw("drop undecodable event", "topic", msg.Topic, "offset", msg.Offset, "err", err)
			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				return err
			}
			continue
		}
		if err := c.mgr.Apply(ctx, msg.Topic, env); err != nil {
			metrics.ApplyFailures.WithLabelValues(msg.Topic).Inc()
			c.log.Errorw("apply failed", "topic", msg.Topic, "offset", msg.Offset, "aggregate", env.AggregateID, "err", err)
			return err
		}
		metrics.EventsApplied.WithLabelValues(msg.Topic).Inc()
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			return err
		}
	}
}

// Close shuts the group reader down.
func (c *Consumer) Close() error { return c.reader.Close() }
