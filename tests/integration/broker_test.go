package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	kafkamodule "github.com/testcontainers/testcontainers-go/modules/kafka"

	"verdict/internal/broker"
	"verdict/internal/config"
	"verdict/pkg/models"
)

func setupKafka(t *testing.T) config.KafkaConfig {
	t.Helper()
	ctx := context.Background()

	container, err := kafkamodule.Run(ctx, "confluentinc/confluent-local:7.5.0",
		kafkamodule.WithClusterID("test-cluster"),
	)
	if err != nil {
		t.Fatalf("failed to start kafka container: %v", err)
	}
	t.Cleanup(func() {
		container.Terminate(ctx)
	})

	brokers, err := container.Brokers(ctx)
	if err != nil {
		t.Fatalf("failed to get kafka brokers: %v", err)
	}

	return config.KafkaConfig{
		Brokers: brokers,
		GroupID: "test-group",
	}
}

func TestKafkaBroker_ConfigEventRoundTrip(t *testing.T) {
	kafkaCfg := setupKafka(t)

	producer := broker.NewKafkaProducer(kafkaCfg, createTestLogger())
	t.Cleanup(func() {
		producer.Close()
	})

	consumer := broker.NewKafkaConsumer(kafkaCfg, createTestLogger())
	consumer.SetServiceName("decision-service-test")
	t.Cleanup(func() {
		consumer.Close()
	})

	received := make(chan models.ConfigUpdateEvent, 1)
	consumeCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go consumer.Consume(consumeCtx, "config-updates", func(ctx context.Context, event models.ConfigUpdateEvent) error {
		select {
		case received <- event:
		default:
		}
		return nil
	})

	sent := models.ConfigUpdateEvent{
		EventType:  models.EventTypeRulesetUpdated,
		Generation: "shadow",
		RuleID:     "high-amount",
		Action:     models.ActionDeployToShadow,
		Timestamp:  time.Now().UTC(),
		ChangedBy:  "alice",
	}

	// The consumer group may still be rebalancing; publish until delivery.
	publishCtx, publishCancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer publishCancel()

	var got models.ConfigUpdateEvent
	require.Eventually(t, func() bool {
		if err := producer.Publish(publishCtx, "config-updates", sent); err != nil {
			return false
		}
		select {
		case got = <-received:
			return true
		case <-time.After(2 * time.Second):
			return false
		}
	}, 60*time.Second, time.Second)

	assert.Equal(t, sent.EventType, got.EventType)
	assert.Equal(t, sent.Generation, got.Generation)
	assert.Equal(t, sent.RuleID, got.RuleID)
	assert.Equal(t, sent.Action, got.Action)
	assert.Equal(t, sent.ChangedBy, got.ChangedBy)
}
