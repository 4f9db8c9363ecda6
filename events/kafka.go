package events

import (
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
)

const defaultKafkaTopic = "agent-events"

// KafkaConfig configures the Kafka emitter.
type KafkaConfig struct {
	// Brokers lists the broker addresses. Required.
	Brokers []string
	// Topic defaults to "agent-events".
	Topic string
}

// KafkaEmitter publishes events to a Kafka topic, keyed by session ID
// so one session's events land on one partition in order.
type KafkaEmitter struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafkaEmitter connects a synchronous producer to the brokers.
func NewKafkaEmitter(cfg KafkaConfig) (*KafkaEmitter, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("events: at least one Kafka broker is required")
	}
	topic := cfg.Topic
	if topic == "" {
		topic = defaultKafkaTopic
	}

	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_6_0_0
	saramaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	saramaConfig.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	return &KafkaEmitter{producer: producer, topic: topic}, nil
}

// newKafkaEmitterWithProducer wires an existing producer, used by tests.
func newKafkaEmitterWithProducer(producer sarama.SyncProducer, topic string) *KafkaEmitter {
	return &KafkaEmitter{producer: producer, topic: topic}
}

// Emit publishes one event.
func (e *KafkaEmitter) Emit(event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: e.topic,
		Key:   sarama.StringEncoder(event.SessionID),
		Value: sarama.ByteEncoder(data),
	}
	if _, _, err := e.producer.SendMessage(message); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Close shuts the producer down.
func (e *KafkaEmitter) Close() error {
	return e.producer.Close()
}
