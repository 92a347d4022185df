package notify

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPPublisher publishes to RabbitMQ queues through the default exchange.
type AMQPPublisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel

	declared map[string]bool
}

// DialAMQP connects to url and opens a channel.
func DialAMQP(url string) (*AMQPPublisher, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("amqp url is required")
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &AMQPPublisher{conn: conn, channel: ch, declared: make(map[string]bool)}, nil
}

// Publish declares queue (durable, once per publisher) and sends body to it.
// Publish is called from a single goroutine.
func (p *AMQPPublisher) Publish(ctx context.Context, queue string, body []byte, attrs map[string]string) error {
	if strings.TrimSpace(queue) == "" {
		return errors.New("amqp queue is required")
	}
	if !p.declared[queue] {
		if _, err := p.channel.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			return err
		}
		p.declared[queue] = true
	}
	headers := amqp.Table{}
	for k, v := range attrs {
		headers[k] = v
	}
	return p.channel.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Headers:      headers,
		Body:         body,
	})
}

// Close closes the channel and connection.
func (p *AMQPPublisher) Close() error {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
