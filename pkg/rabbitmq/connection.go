package rabbitmq

import (
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// ExchangeName is the durable topic exchange all user events flow through.
const ExchangeName = "user.exchange"

// HeaderRequestID is the message header carrying the caller's correlation id
// on GET/SEARCH commands and their response events.
const HeaderRequestID = "x-request-id"

// Connection wraps an AMQP connection with retrying dial logic.
type Connection struct {
	URL    string
	Conn   *amqp.Connection
	logger *zap.Logger
}

// Connect establishes a connection to RabbitMQ with retries.
func Connect(url string, logger *zap.Logger) (*Connection, error) {
	var conn *amqp.Connection
	var err error

	for i := 0; i < 30; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			logger.Info("connected to RabbitMQ")
			return &Connection{URL: url, Conn: conn, logger: logger}, nil
		}
		logger.Warn("failed to connect to RabbitMQ, retrying in 2s", zap.Error(err))
		time.Sleep(2 * time.Second)
	}

	return nil, fmt.Errorf("could not connect to RabbitMQ after 30 attempts: %w", err)
}

// Channel opens a new AMQP channel.
func (c *Connection) Channel() (*amqp.Channel, error) {
	return c.Conn.Channel()
}

// Close closes the connection.
func (c *Connection) Close() error {
	if c.Conn != nil {
		return c.Conn.Close()
	}
	return nil
}
