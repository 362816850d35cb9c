package kafka_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	kgo "github.com/segmentio/kafka-go"

	"relentless-relay/internal/crawler"
	rkafka "relentless-relay/internal/kafka"
	"relentless-relay/internal/models"
	"relentless-relay/mocks"
)

func TestContinuationProducerPublish(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	writer := mocks.NewMockMessageWriter(ctrl)
	prod := rkafka.NewContinuationProducerWithWriter(writer)

	msg := models.ContinuationMessage{
		Cursor: models.Cursor{
			JobID: "job-42",
			Unit:  models.WorkUnit{Ref: "https://openlibrary.org/search.json?page=3&q=x", Seq: 2},
		},
		Attempt: 2,
	}

	writer.EXPECT().
		WriteMessages(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msgs ...kgo.Message) error {
			if len(msgs) != 1 {
				t.Fatalf("expected 1 message, got %d", len(msgs))
			}
			if string(msgs[0].Key) != "job-42" {
				t.Fatalf("unexpected message key: %s", string(msgs[0].Key))
			}

			got := rkafka.ParseContinuation(msgs[0].Value, "job-42")
			if got.Resume == nil || got.Resume.Cursor.Unit != msg.Cursor.Unit || got.Resume.Attempt != 2 {
				t.Fatalf("unexpected continuation payload: %+v", got)
			}
			return nil
		})

	if err := prod.Publish(context.Background(), msg); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}
}

func TestContinuationProducerPublishError(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	writer := mocks.NewMockMessageWriter(ctrl)
	prod := rkafka.NewContinuationProducerWithWriter(writer)

	writer.EXPECT().
		WriteMessages(gomock.Any(), gomock.Any()).
		Return(errors.New("write failed"))

	err := prod.Publish(context.Background(), models.ContinuationMessage{
		Cursor: models.Cursor{JobID: "job", Unit: models.WorkUnit{Ref: "u2"}},
	})
	var channelErr *crawler.ChannelError
	if !errors.As(err, &channelErr) {
		t.Fatalf("expected ChannelError, got %v", err)
	}
	if channelErr.Ref != "u2" {
		t.Fatalf("unexpected ref: %s", channelErr.Ref)
	}
}

func TestContinuationProducerPublishStart(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	writer := mocks.NewMockMessageWriter(ctrl)
	prod := rkafka.NewContinuationProducerWithWriter(writer)

	writer.EXPECT().
		WriteMessages(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msgs ...kgo.Message) error {
			got := rkafka.ParseContinuation(msgs[0].Value, "job")
			if got.Resume != nil || got.Foreign || got.Malformed {
				t.Fatalf("expected clean start message, got %+v", got)
			}
			return nil
		})

	if err := prod.PublishStart(context.Background(), "job"); err != nil {
		t.Fatalf("PublishStart returned error: %v", err)
	}
}

func TestFailureProducerWriteFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	writer := mocks.NewMockMessageWriter(ctrl)
	prod := rkafka.NewFailureProducerWithWriter(writer)

	failure := models.RunFailure{
		JobID:    "job",
		Hop:      3,
		UnitRef:  "u4",
		Kind:     "fetch",
		Error:    "timeout",
		Attempts: 4,
		FailedAt: time.Unix(0, 0).UTC(),
	}

	writer.EXPECT().
		WriteMessages(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msgs ...kgo.Message) error {
			var got models.RunFailure
			if err := json.Unmarshal(msgs[0].Value, &got); err != nil {
				t.Fatalf("failed to decode failure: %v", err)
			}
			if got.JobID != "job" || got.UnitRef != "u4" || got.Attempts != 4 || got.Kind != "fetch" {
				t.Fatalf("unexpected failure payload: %+v", got)
			}
			return nil
		})

	if err := prod.WriteFailure(context.Background(), failure); err != nil {
		t.Fatalf("WriteFailure returned error: %v", err)
	}
}

func TestProducersClose(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	writer := mocks.NewMockMessageWriter(ctrl)
	writer.EXPECT().Close().Return(nil).Times(2)

	if err := rkafka.NewContinuationProducerWithWriter(writer).Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	if err := rkafka.NewFailureProducerWithWriter(writer).Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
}
