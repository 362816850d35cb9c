package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/segmentio/kafka-go"

	"relentless-relay/common"
)

// kafka-check verifies the broker is reachable and the relay topics exist.
func main() {
	broker := common.GetEnv("KAFKA_BROKER", "localhost:9092")
	topics := []string{
		common.GetEnv("KAFKA_CONTINUATION_TOPIC", "relentless.relay.continuations"),
		common.GetEnv("KAFKA_DLQ_TOPIC", "relentless.relay.dlq"),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := kafka.DialContext(ctx, "tcp", broker)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to Kafka at %s: %v\n", broker, err)
		os.Exit(1)
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read metadata: %v\n", err)
		os.Exit(1)
	}

	missing := missingTopics(partitions, topics)
	fmt.Printf("connected to Kafka at %s (%d partitions)\n", broker, len(partitions))
	if len(missing) > 0 {
		fmt.Fprintf(os.Stderr, "missing topics: %v\n", missing)
		os.Exit(2)
	}
}

func missingTopics(partitions []kafka.Partition, want []string) []string {
	present := make(map[string]bool, len(partitions))
	for _, p := range partitions {
		present[p.Topic] = true
	}
	var missing []string
	for _, topic := range want {
		if !present[topic] {
			missing = append(missing, topic)
		}
	}
	return missing
}
