package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"

	"service-rates/internal"
)

const EventRatesUpdated = "rates.updated"

// Writer is the subset of *kafka.Writer the publisher needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type RatesEvent struct {
	Type     string                `json:"type"`
	Snapshot internal.RateSnapshot `json:"snapshot"`
}

type Publisher struct {
	writer  Writer
	timeout time.Duration
}

func NewPublisher(brokers []string, topic string) *Publisher {
	return NewPublisherWithWriter(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireOne,
	})
}

func NewPublisherWithWriter(w Writer) *Publisher {
	return &Publisher{writer: w, timeout: 10 * time.Second}
}

// PublishSnapshot writes one message keyed by base currency, so all snapshots
// of one base land on the same partition in order.
func (p *Publisher) PublishSnapshot(ctx context.Context, snap internal.RateSnapshot) error {
	v, err := json.Marshal(RatesEvent{Type: EventRatesUpdated, Snapshot: snap})
	if err != nil {
		return fmt.Errorf("marshal rates event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(snap.Base().String()),
		Value: v,
		Time:  snap.FetchedAt(),
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write rates event: %w", err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
