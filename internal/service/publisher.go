package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/nexusholdings/nexus/internal/domain"
)

const ActivityTopic = "nexus.activity"

// Publisher fans activity out to subscribers.
type Publisher interface {
	Publish(ctx context.Context, activity domain.Activity) error
}

type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, activity domain.Activity) error {
	return nil
}

type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	if topic == "" {
		topic = ActivityTopic
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			MaxAttempts:            3,
			BatchTimeout:           10 * time.Millisecond,
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
		},
	}
}

// Publish keys messages by channel so a target's activity stays ordered.
func (p *KafkaPublisher) Publish(ctx context.Context, activity domain.Activity) error {
	value, err := json.Marshal(activity)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(activity.Channel()),
		Value: value,
		Time:  activity.CreatedAt,
		Headers: []kafka.Header{
			{Key: "actionType", Value: []byte(activity.ActionType)},
		},
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
