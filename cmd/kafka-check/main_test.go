package main

import (
	"reflect"
	"testing"

	"github.com/segmentio/kafka-go"
)

func TestMissingTopics(t *testing.T) {
	partitions := []kafka.Partition{
		{Topic: "relentless.relay.continuations", ID: 0},
		{Topic: "relentless.relay.continuations", ID: 1},
		{Topic: "other", ID: 0},
	}
	got := missingTopics(partitions, []string{"relentless.relay.continuations", "relentless.relay.dlq"})
	if !reflect.DeepEqual(got, []string{"relentless.relay.dlq"}) {
		t.Fatalf("unexpected missing topics: %v", got)
	}
	if got := missingTopics(partitions, []string{"other"}); got != nil {
		t.Fatalf("expected none missing, got %v", got)
	}
}
