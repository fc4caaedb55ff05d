package rabbit

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"challenge-service/internal/app"
	"challenge-service/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	// DefaultExchange receives challenge lifecycle events.
	DefaultExchange = "challenge.events"
	// CompletedRoutingKey is used for each finalized participant result.
	CompletedRoutingKey = "challenge.completed"
)

// Publisher is the subset of *amqp.Channel used to emit events.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Connect dials the broker and declares the topic exchange results are published to.
func Connect(url, exchange string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	err = ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return conn, ch, nil
}

// ResultPublisher records results in the wrapped sink and then announces them on the broker.
// A publish failure is logged; the stored result stays authoritative.
type ResultPublisher struct {
	app.ResultSink
	pub      Publisher
	exchange string
}

func NewResultPublisher(sink app.ResultSink, pub Publisher, exchange string) *ResultPublisher {
	if exchange == "" {
		exchange = DefaultExchange
	}
	return &ResultPublisher{ResultSink: sink, pub: pub, exchange: exchange}
}

func (p *ResultPublisher) RecordResult(ctx context.Context, result domain.ChallengeResult) error {
	if err := p.ResultSink.RecordResult(ctx, result); err != nil {
		return err
	}
	body, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result event: %w", err)
	}
	err = p.pub.PublishWithContext(ctx, p.exchange, CompletedRoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    result.ID,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		log.Printf("publish %s for user %s: %v", CompletedRoutingKey, result.UserID, err)
	}
	return nil
}
