package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"relentless-relay/internal/crawler"
	"relentless-relay/internal/models"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewWriter builds a writer for topic. Messages with the same key stay on one
// partition, which keeps a job's chain ordered.
func NewWriter(broker, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(broker),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: false,
	}
}

// StartPublisher enqueues a start-of-job trigger.
type StartPublisher interface {
	PublishStart(ctx context.Context, jobID string) error
}

// ContinuationProducer publishes ContinuationMessages keyed by job id.
type ContinuationProducer struct {
	writer messageWriter
}

// NewContinuationProducer creates a producer for the given broker and topic.
func NewContinuationProducer(broker, topic string) *ContinuationProducer {
	return &ContinuationProducer{writer: NewWriter(broker, topic)}
}

// NewContinuationProducerWithWriter builds a producer using a custom writer (tests).
func NewContinuationProducerWithWriter(writer messageWriter) *ContinuationProducer {
	return &ContinuationProducer{writer: writer}
}

// Close shuts down the underlying writer.
func (p *ContinuationProducer) Close() error {
	return p.writer.Close()
}

// Publish writes msg to Kafka. Transport failures come back as *crawler.ChannelError.
func (p *ContinuationProducer) Publish(ctx context.Context, msg models.ContinuationMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return &crawler.ChannelError{Ref: msg.Cursor.Unit.Ref, Err: err}
	}
	if err := p.writeKeyed(ctx, msg.Cursor.JobID, payload); err != nil {
		return &crawler.ChannelError{Ref: msg.Cursor.Unit.Ref, Err: err}
	}
	return nil
}

// PublishStart writes a start-of-job message (no cursor) for jobID.
func (p *ContinuationProducer) PublishStart(ctx context.Context, jobID string) error {
	payload, err := json.Marshal(startMessage{JobID: jobID})
	if err != nil {
		return err
	}
	return p.writeKeyed(ctx, jobID, payload)
}

func (p *ContinuationProducer) writeKeyed(ctx context.Context, key string, payload []byte) error {
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Time:  time.Now().UTC(),
	})
}

// FailureProducer publishes RunFailure reports to the DLQ topic.
type FailureProducer struct {
	writer messageWriter
}

func NewFailureProducer(broker, topic string) *FailureProducer {
	return &FailureProducer{writer: NewWriter(broker, topic)}
}

func NewFailureProducerWithWriter(writer messageWriter) *FailureProducer {
	return &FailureProducer{writer: writer}
}

func (p *FailureProducer) Close() error {
	return p.writer.Close()
}

// WriteFailure publishes one failure report.
func (p *FailureProducer) WriteFailure(ctx context.Context, failure models.RunFailure) error {
	payload, err := json.Marshal(failure)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(failure.JobID),
		Value: payload,
		Time:  time.Now().UTC(),
	})
}
