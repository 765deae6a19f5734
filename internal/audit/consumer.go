// Package audit records every domain event in a durable trail. The consumer
// is idempotent: redelivered events are detected by event id and ack'd
// without a second audit row.
package audit

import (
	"database/sql"
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/choicespecs/user-service-microservice/pkg/models"
)

// Consumer writes user events to the audit log.
type Consumer struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewConsumer creates a new audit consumer.
func NewConsumer(db *sql.DB, logger *zap.Logger) *Consumer {
	return &Consumer{db: db, logger: logger}
}

// HandleMessage records one user event. A non-nil return nacks the delivery
// to the DLQ.
func (c *Consumer) HandleMessage(delivery amqp.Delivery) error {
	var event models.UserEvent
	if err := json.Unmarshal(delivery.Body, &event); err != nil {
		c.logger.Error("failed to unmarshal event",
			zap.String("correlation_id", delivery.CorrelationId), zap.Error(err))
		return err
	}

	c.logger.Info("processing event",
		zap.String("event_type", string(event.EventType)),
		zap.String("event_id", event.EventID),
		zap.String("user_id", event.Data.ID))

	var exists bool
	err := c.db.QueryRow("SELECT EXISTS(SELECT 1 FROM idempotency_keys WHERE event_id = $1)", event.EventID).Scan(&exists)
	if err != nil {
		c.logger.Error("error checking idempotency", zap.String("event_id", event.EventID), zap.Error(err))
		return err
	}
	if exists {
		c.logger.Info("duplicate event ignored", zap.String("event_id", event.EventID))
		return nil
	}

	_, err = c.db.Exec(
		`INSERT INTO audit_log (event_id, event_type, user_id, user_email, username)
		 VALUES ($1, $2, $3, $4, $5)`,
		event.EventID, string(event.EventType),
		event.Data.ID, event.Data.Email, event.Data.Username,
	)
	if err != nil {
		c.logger.Error("error writing audit row", zap.String("event_id", event.EventID), zap.Error(err))
		return err
	}

	_, _ = c.db.Exec("INSERT INTO idempotency_keys (event_id) VALUES ($1) ON CONFLICT DO NOTHING", event.EventID)

	c.logger.Info("event recorded",
		zap.String("event_id", event.EventID),
		zap.String("event_type", string(event.EventType)),
		zap.String("user_email", event.Data.Email))

	return nil
}
