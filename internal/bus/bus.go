// Package bus wraps the message-bus capability the ingestion pipeline and
// the summarization trigger publish to and consume from (spec.md 4.G,
// 4.M). It is deliberately narrow: publish a message, consume a topic with
// a worker pool, retry-then-dead-letter on persistent handler failure.
package bus

import (
	"context"
	"fmt"
	"time"

	kafka "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Handler processes one message. A returned error triggers the retry/DLQ
// path; nil commits the message.
type Handler func(ctx context.Context, msg kafka.Message) error

// Bus is a thin producer+consumer pair bound to one broker set.
type Bus struct {
	brokers []string
	logger  *zap.Logger
}

// New returns a Bus bound to the given Kafka brokers.
func New(brokers []string, logger *zap.Logger) *Bus {
	return &Bus{brokers: brokers, logger: logger}
}

// Producer is a topic-scoped writer. Close when done.
type Producer struct {
	writer *kafka.Writer
}

// NewProducer opens a writer for topic, using the teacher's
// least-surprise defaults (async off, so each Publish returns only once
// its write has landed and Flush below has nothing left to wait on;
// balancer left at kafka-go's default round robin).
func (b *Bus) NewProducer(topic string) *Producer {
	return &Producer{writer: &kafka.Writer{
		Addr:                   kafka.TCP(b.brokers...),
		Topic:                  topic,
		AllowAutoTopicCreation: true,
	}}
}

// Publish writes one message keyed by key.
func (p *Producer) Publish(ctx context.Context, key, value []byte) error {
	return p.writer.WriteMessages(ctx, kafka.Message{Key: key, Value: value})
}

// Flush waits for any buffered writes to land; kafka-go's Writer writes
// synchronously by default, so this is a best-effort no-op hook kept for
// symmetry with spec.md 4.G's "flush producer" step and for a future
// async-writer swap.
func (p *Producer) Flush() error { return nil }

// Close releases the writer.
func (p *Producer) Close() error { return p.writer.Close() }

// ConsumeOptions configures Consume.
type ConsumeOptions struct {
	GroupID         string
	WorkerCount     int
	MaxAttempts     int
	BaseBackoff     time.Duration
	DeadLetterTopic string // if set, failed messages are published here after MaxAttempts
}

// Consume runs a worker-pool consumer over topic until ctx is canceled:
// fetch -> fan out to workerCount goroutines -> retry with exponential
// backoff on handler error -> publish to the dead-letter topic (if
// configured) -> commit regardless, so a persistently failing message
// never blocks the partition. This mirrors the retry/backoff/DLQ shape of
// a worker-pool Kafka consumer, generalized from single-handler dispatch
// to the pluggable Handler used here.
func (b *Bus) Consume(ctx context.Context, topic string, opts ConsumeOptions, handle Handler) error {
	if opts.WorkerCount <= 0 {
		opts.WorkerCount = 4
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = 200 * time.Millisecond
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  b.brokers,
		GroupID:  opts.GroupID,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	defer func() {
		if err := reader.Close(); err != nil {
			b.logger.Warn("bus: close reader", zap.Error(err))
		}
	}()

	var dlq *Producer
	if opts.DeadLetterTopic != "" {
		dlq = b.NewProducer(opts.DeadLetterTopic)
		defer dlq.Close()
	}

	jobs := make(chan kafka.Message, opts.WorkerCount*4)
	done := make(chan struct{})

	for i := 0; i < opts.WorkerCount; i++ {
		go b.worker(ctx, reader, jobs, handle, dlq, opts, done)
	}

	for {
		if ctx.Err() != nil {
			break
		}
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			b.logger.Warn("bus: fetch error", zap.String("topic", topic), zap.Error(err))
			time.Sleep(500 * time.Millisecond)
			continue
		}
		select {
		case jobs <- msg:
		case <-ctx.Done():
		}
	}
	close(jobs)
	for i := 0; i < opts.WorkerCount; i++ {
		<-done
	}
	return ctx.Err()
}

func (b *Bus) worker(ctx context.Context, reader *kafka.Reader, jobs <-chan kafka.Message, handle Handler, dlq *Producer, opts ConsumeOptions, done chan<- struct{}) {
	defer func() { done <- struct{}{} }()
	for msg := range jobs {
		var lastErr error
		for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
			if err := handle(ctx, msg); err != nil {
				lastErr = err
				if attempt < opts.MaxAttempts && ctx.Err() == nil {
					backoff := opts.BaseBackoff * time.Duration(1<<uint(attempt-1))
					b.logger.Warn("bus: handler failed, retrying",
						zap.Int("attempt", attempt), zap.Duration("backoff", backoff), zap.Error(err))
					timer := time.NewTimer(backoff)
					select {
					case <-timer.C:
					case <-ctx.Done():
						timer.Stop()
					}
					continue
				}
				break
			}
			lastErr = nil
			break
		}
		if lastErr != nil {
			b.publishDeadLetter(ctx, dlq, msg, lastErr)
		}
		if err := reader.CommitMessages(ctx, msg); err != nil {
			b.logger.Warn("bus: commit failed", zap.Error(err))
		}
	}
}

func (b *Bus) publishDeadLetter(ctx context.Context, dlq *Producer, msg kafka.Message, cause error) {
	if dlq == nil {
		b.logger.Error("bus: message failed permanently, no dead-letter topic configured", zap.Error(cause))
		return
	}
	if err := dlq.Publish(ctx, msg.Key, msg.Value); err != nil {
		b.logger.Error("bus: failed to publish to dead-letter topic", zap.Error(fmt.Errorf("%v (original: %w)", err, cause)))
	}
}
