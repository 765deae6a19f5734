package rabbitmq

import (
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// ConsumerConfig holds configuration for setting up a consumer.
type ConsumerConfig struct {
	QueueName    string
	DLQName      string
	RoutingKeys  []string
	ConsumerName string
}

// MessageHandler processes a delivered message.
// Return nil to ack, return an error to nack (routes to the DLQ).
type MessageHandler func(delivery amqp.Delivery) error

// SetupConsumer declares the main queue and its DLQ, binds the main queue to
// the topic exchange, and starts consuming with manual acks.
func SetupConsumer(conn *Connection, cfg ConsumerConfig, handler MessageHandler, logger *zap.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return err
	}

	// Declaring the exchange here too keeps startup order irrelevant.
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
		return err
	}

	_, err = ch.QueueDeclare(
		cfg.DLQName,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return err
	}

	// Main queue dead-letters to the DLQ through the default exchange.
	args := amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": cfg.DLQName,
	}

	_, err = ch.QueueDeclare(
		cfg.QueueName,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		args,
	)
	if err != nil {
		return err
	}

	for _, key := range cfg.RoutingKeys {
		if err := ch.QueueBind(cfg.QueueName, key, ExchangeName, false, nil); err != nil {
			return err
		}
	}

	if err := ch.Qos(1, 0, false); err != nil {
		return err
	}

	msgs, err := ch.Consume(
		cfg.QueueName,
		cfg.ConsumerName,
		false, // manual ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return err
	}

	go func() {
		for msg := range msgs {
			logger.Info("received message",
				zap.String("consumer", cfg.ConsumerName),
				zap.String("routing_key", msg.RoutingKey),
				zap.String("correlation_id", msg.CorrelationId))

			if err := handler(msg); err != nil {
				logger.Error("error processing message, nacking to DLQ",
					zap.String("consumer", cfg.ConsumerName),
					zap.Error(err))
				_ = msg.Nack(false, false) // no requeue, goes to DLQ
			} else {
				_ = msg.Ack(false)
			}
		}
	}()

	logger.Info("consumer started",
		zap.String("consumer", cfg.ConsumerName),
		zap.String("queue", cfg.QueueName))
	return nil
}
