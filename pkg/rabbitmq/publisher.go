package rabbitmq

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Message is an outbound publication. ContentType and Headers are optional;
// CorrelationID, when set, is stored both as the AMQP correlation-id
// property and as the x-request-id header so consumers on either convention
// can match replies.
type Message struct {
	RoutingKey    string
	Body          []byte
	ContentType   string
	CorrelationID string
	Headers       amqp.Table
}

// Publisher publishes messages to the user topic exchange.
type Publisher struct {
	channel *amqp.Channel
	logger  *zap.Logger
}

// NewPublisher creates a new publisher and declares the topic exchange.
func NewPublisher(conn *Connection, logger *zap.Logger) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}

	err = ch.ExchangeDeclare(
		ExchangeName,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, err
	}

	return &Publisher{channel: ch, logger: logger}, nil
}

// Publish sends a message to the topic exchange.
func (p *Publisher) Publish(msg Message) error {
	return p.publish(ExchangeName, msg.RoutingKey, msg)
}

// PublishToQueue sends a message straight to a named queue through the
// default exchange. Command ingress uses this path.
func (p *Publisher) PublishToQueue(queue string, msg Message) error {
	return p.publish("", queue, msg)
}

func (p *Publisher) publish(exchange, routingKey string, msg Message) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	headers := msg.Headers
	if msg.CorrelationID != "" {
		if headers == nil {
			headers = amqp.Table{}
		}
		headers[HeaderRequestID] = msg.CorrelationID
	}

	p.logger.Info("publishing message",
		zap.String("routing_key", routingKey),
		zap.String("correlation_id", msg.CorrelationID))

	return p.channel.PublishWithContext(
		ctx,
		exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:   msg.ContentType,
			CorrelationId: msg.CorrelationID,
			Headers:       headers,
			Body:          msg.Body,
			DeliveryMode:  amqp.Persistent,
			Timestamp:     time.Now(),
		},
	)
}

// Close closes the publisher channel.
func (p *Publisher) Close() error {
	if p.channel != nil {
		return p.channel.Close()
	}
	return nil
}
