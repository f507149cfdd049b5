/*
Package kafka publishes settlement events to a Kafka topic so downstream
consumers (notifications, analytics, the property CRM) can react to invoice
payments without polling the API.

One event is emitted per settled invoice, after its ledger transaction and
invoice update have committed. Publishing is best-effort: a broker outage
never fails a settlement, it only logs.
*/
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/warp/billing-engine/settle"
)

// Topic is the Kafka topic settlement events are written to.
const Topic = "settlement_settled"

// Publisher writes settle.Events to Kafka.
type Publisher struct {
	writer *kafka.Writer
}

// NewPublisher connects to the given brokers ("host:9092,host2:9092" split
// beforehand). The topic is created by the broker when auto-creation is on;
// otherwise create it out of band.
func NewPublisher(brokers []string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        Topic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 50 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
		},
	}
}

// Publish sends one settlement event. Events for the same account share a
// partition key so consumers see them in ledger order.
func (p *Publisher) Publish(ctx context.Context, event settle.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.AccountID),
		Value: payload,
		Time:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to publish settlement event: %w", err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

var _ settle.EventPublisher = (*Publisher)(nil)
