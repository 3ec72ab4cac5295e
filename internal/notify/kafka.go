package notify

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/hackgods/salon-scheduling/internal/schedule"
)

// MessageWriter is the part of *kafka.Writer the notifier needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes one message per affected appointment, keyed by
// resource so a professional's events stay ordered on one partition.
type KafkaNotifier struct {
	writer MessageWriter
}

func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
}

func NewKafkaNotifier(writer MessageWriter) *KafkaNotifier {
	return &KafkaNotifier{writer: writer}
}

func (n *KafkaNotifier) Notify(ctx context.Context, ev schedule.Event) error {
	msgs := Messages(ev)
	if len(msgs) == 0 {
		return nil
	}

	out := make([]kafka.Message, 0, len(msgs))
	for _, m := range msgs {
		value, err := m.Encode()
		if err != nil {
			return fmt.Errorf("encode %s: %w", m.AppointmentID, err)
		}
		out = append(out, kafka.Message{
			Key:   []byte(m.ResourceID),
			Value: value,
			Headers: []kafka.Header{
				{Key: "event_id", Value: []byte(m.EventID)},
				{Key: "event_type", Value: []byte(m.EventType)},
			},
		})
	}

	if err := n.writer.WriteMessages(ctx, out...); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	return nil
}

func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}
