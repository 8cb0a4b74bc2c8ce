package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

const eventIDHeader = "event-id"

// Publisher writes records to any topic through one shared writer.
type Publisher struct {
	writer *kafka.Writer
}

func NewPublisher(brokers []string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
			BatchTimeout:           10 * time.Millisecond,
		},
	}
}

// Publish blocks until the broker acknowledges the record. Records sharing a
// key land on the same partition.
func (p *Publisher) Publish(ctx context.Context, topic, key string, value []byte, eventID string) error {
	return p.writer.WriteMessages(ctx, newMessage(topic, key, value, eventID, time.Now().UTC()))
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

func newMessage(topic, key string, value []byte, eventID string, at time.Time) kafka.Message {
	return kafka.Message{
		Topic:   topic,
		Key:     []byte(key),
		Value:   value,
		Headers: []kafka.Header{{Key: eventIDHeader, Value: []byte(eventID)}},
		Time:    at,
	}
}
