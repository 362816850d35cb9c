package crawler

import (
	"context"

	"github.com/segmentio/kafka-go"

	"relentless-relay/internal/models"
)

// MessageReader abstracts kafka.Reader.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// MessageWriter abstracts kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Processor turns one WorkUnit into records and the next unit.
// It returns data only; persistence and handoff belong to the caller.
// A nil next unit with a nil error means the job is complete.
type Processor interface {
	Process(ctx context.Context, unit models.WorkUnit) ([]models.Record, *models.WorkUnit, error)
}

// RecordStore upserts records by natural key.
type RecordStore interface {
	Put(ctx context.Context, record models.Record) error
}

// ContinuationPublisher hands a cursor to the next invocation.
type ContinuationPublisher interface {
	Publish(ctx context.Context, msg models.ContinuationMessage) error
}
