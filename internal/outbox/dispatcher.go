// Package outbox drains pending event rows to the broker. The writer side
// lives in the repository and runs inside business transactions; this side
// is the asynchronous half of the contract: at-least-once publication,
// creation order per tenant, no cross-topic ordering promise. It is safe
// to run multiple dispatcher instances; consumers are idempotent.
package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/docflowlabs/docflow-service/internal/metrics"
	"github.com/docflowlabs/docflow-service/internal/model"
	"github.com/docflowlabs/docflow-service/internal/repo"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Publisher sends one payload to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// KafkaPublisher publishes via a single multi-topic writer.
type KafkaPublisher struct {
	w *kafka.Writer
}

// NewKafkaPublisher returns KafkaPublisher.
func NewKafkaPublisher(brokers []string) *KafkaPublisher {
	return &KafkaPublisher{w: &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Balancer: &kafka.LeastBytes{},
	}}
}

func (p *KafkaPublisher) Publish(ctx context.Context, topic string, key, value []byte) error {
	return p.w.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   key,
		Value: value,
		Time:  time.Now(),
	})
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error { return p.w.Close() }

// Dispatcher polls pending outbox rows and publishes them.
type Dispatcher struct {
	repo           *repo.Repository
	pub            Publisher
	log            *zap.SugaredLogger
	batchSize      int
	publishRetries int
}

// NewDispatcher returns Dispatcher.
func NewDispatcher(r *repo.Repository, pub Publisher, log *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{repo: r, pub: pub, log: log, batchSize: 100, publishRetries: 3}
}

// RunOnce drains one batch. Rows that publish are marked Published; rows
// that exhaust the per-row retry budget are marked Failed with the error
// text. Returns the number published.
func (d *Dispatcher) RunOnce(ctx context.Context) (int, error) {
	entries, err := d.repo.PollPendingOutbox(ctx, d.batchSize)
	if err != nil {
		return 0, err
	}
	published := 0
	for _, entry := range entries {
		if err := d.publish(ctx, entry); err != nil {
			d.log.Errorw("outbox publish failed", "id", entry.ID, "topic", entry.Topic, "err", err)
			metrics.OutboxFailed.Inc()
			if markErr := d.repo.MarkOutboxFailed(ctx, entry.ID, err.Error()); markErr != nil {
				d.log.Errorw("mark failed", "id", entry.ID, "err", markErr)
			}
			continue
		}
		if err := d.repo.MarkOutboxPublished(ctx, entry.ID); err != nil {
			// entry stays pending and will be re-published: duplicates are
			// acceptable, drops are not
			d.log.Errorw("mark published", "id", entry.ID, "err", err)
			continue
		}
		metrics.OutboxPublished.Inc()
		published++
	}
	return published, nil
}

func (d *Dispatcher) publish(ctx context.Context, entry model.OutboxEntry) error {
	key := []byte(fmt.Sprintf("%s:%d", entry.TenantID, entry.ID))
	for i := 0; ; i++ {
		err := d.pub.Publish(ctx, entry.Topic, key, []byte(entry.Payload))
		if err == nil {
			return nil
		}
		if i+1 >= d.publishRetries {
			return err
		}
		select {
		case <-time.After(time.Duration(i+1) * 100 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Run polls on an interval until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := d.RunOnce(ctx); err != nil {
				d.log.Errorw("poll outbox", "err", err)
			} else if n > 0 {
				d.log.Infow("outbox batch published", "count", n)
			}
		}
	}
}
