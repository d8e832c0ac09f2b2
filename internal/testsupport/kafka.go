//go:build integration

package testsupport

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkacontainer "github.com/testcontainers/testcontainers-go/modules/kafka"
)

// StartKafka launches a single-broker Kafka, creates topics and returns the broker addresses.
func StartKafka(ctx context.Context, t *testing.T, topics ...string) []string {
	t.Helper()

	container, err := kafkacontainer.Run(ctx, "confluentinc/confluent-local:7.5.0",
		kafkacontainer.WithClusterID("study-streak-test"),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)

	conn, err := kafka.Dial("tcp", brokers[0])
	require.NoError(t, err)
	defer conn.Close()

	configs := make([]kafka.TopicConfig, 0, len(topics))
	for _, topic := range topics {
		configs = append(configs, kafka.TopicConfig{Topic: topic, NumPartitions: 1, ReplicationFactor: 1})
	}
	if len(configs) > 0 {
		require.NoError(t, conn.CreateTopics(configs...))
	}
	return brokers
}
