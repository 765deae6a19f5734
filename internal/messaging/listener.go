// Package messaging is the command entry point: it parses inbound envelopes,
// validates their shape per action, and dispatches to the handlers.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/choicespecs/user-service-microservice/pkg/models"
	"github.com/choicespecs/user-service-microservice/pkg/rabbitmq"
)

// Envelope field validation errors.
var (
	ErrMissingField  = errors.New("missing required fields in message")
	ErrMissingHeader = errors.New("missing required header in message")
)

// Commands is the handler surface the listener dispatches to.
type Commands interface {
	Create(ctx context.Context, user models.User) error
	Update(ctx context.Context, username string, patch models.UserPatch) error
	Delete(ctx context.Context, email string) error
	Get(ctx context.Context, sel models.UserSelector, requestID string)
	Search(ctx context.Context, req models.SearchRequest, requestID string)
}

// ErrorEmitter publishes correlated error events for GET/SEARCH validation
// failures that happen after the request id is known.
type ErrorEmitter interface {
	PublishGetError(requestID, message string) error
	PublishSearchError(requestID string, req models.SearchRequest, message string) error
}

// Listener routes command envelopes. Its return value drives the transport's
// ack/nack: nil acks (including every validation failure — those are
// terminal, redelivery cannot fix a malformed message), an error nacks to
// the DLQ (storage failures on the fire-and-forget actions).
type Listener struct {
	commands Commands
	emitter  ErrorEmitter
	logger   *zap.Logger
}

// NewListener creates a Listener.
func NewListener(commands Commands, emitter ErrorEmitter, logger *zap.Logger) *Listener {
	return &Listener{commands: commands, emitter: emitter, logger: logger}
}

// HandleMessage processes one command envelope. It never panics past its
// boundary: a panic anywhere below is logged and the message dropped, so a
// poisoned message cannot take down the consumer loop.
func (l *Listener) HandleMessage(delivery amqp.Delivery) (err error) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("panic while processing message, dropping",
				zap.Any("panic", r),
				zap.String("correlation_id", delivery.CorrelationId))
			err = nil
		}
	}()

	ctx := context.Background()

	var body map[string]json.RawMessage
	if err := json.Unmarshal(delivery.Body, &body); err != nil {
		l.logger.Error("failed to parse message body", zap.Error(err))
		return nil
	}

	action, err := parseActionField(body)
	if err != nil {
		l.logger.Error("failed to resolve action", zap.Error(err))
		return nil
	}

	requestID := headerRequestID(delivery)

	switch action {
	case models.ActionCreate:
		return l.handleCreate(ctx, body)
	case models.ActionUpdate:
		return l.handleUpdate(ctx, body)
	case models.ActionDelete:
		return l.handleDelete(ctx, body)
	case models.ActionGet:
		l.handleGet(ctx, body, requestID)
		return nil
	case models.ActionSearch:
		l.handleSearch(ctx, delivery.Body, requestID)
		return nil
	}
	return nil
}

func (l *Listener) handleCreate(ctx context.Context, body map[string]json.RawMessage) error {
	var user models.User
	if err := unmarshalField(body, "user", &user); err != nil {
		l.logger.Error("invalid create command", zap.Error(err))
		return nil
	}
	return l.commands.Create(ctx, user)
}

func (l *Listener) handleDelete(ctx context.Context, body map[string]json.RawMessage) error {
	email, err := requireText(body, "email")
	if err != nil {
		l.logger.Error("invalid delete command", zap.Error(err))
		return nil
	}
	return l.commands.Delete(ctx, email)
}

func (l *Listener) handleUpdate(ctx context.Context, body map[string]json.RawMessage) error {
	var patch models.UserPatch
	if err := unmarshalField(body, "user", &patch); err != nil {
		l.logger.Error("invalid update command", zap.Error(err))
		return nil
	}
	if patch.Username == nil {
		l.logger.Error("invalid update command", zap.Error(fmt.Errorf("%w: username", ErrMissingField)))
		return nil
	}
	return l.commands.Update(ctx, *patch.Username, patch)
}

func (l *Listener) handleGet(ctx context.Context, body map[string]json.RawMessage, requestID string) {
	// Without the request id there is nothing to correlate a response to;
	// log and drop. After this point every failure is reported back.
	if requestID == "" {
		l.logger.Error("invalid get command", zap.Error(ErrMissingHeader))
		return
	}

	var sel models.UserSelector
	if err := unmarshalField(body, "user", &sel); err != nil {
		l.logger.Error("invalid get command", zap.String("request_id", requestID), zap.Error(err))
		l.emitError(l.emitter.PublishGetError(requestID, err.Error()), requestID)
		return
	}

	l.commands.Get(ctx, sel, requestID)
}

func (l *Listener) handleSearch(ctx context.Context, rawBody []byte, requestID string) {
	if requestID == "" {
		l.logger.Error("invalid search command", zap.Error(ErrMissingHeader))
		return
	}

	// SEARCH reads the entire payload, not a sub-object.
	var req models.SearchRequest
	if err := json.Unmarshal(rawBody, &req); err != nil {
		l.logger.Error("invalid search command", zap.String("request_id", requestID), zap.Error(err))
		l.emitError(l.emitter.PublishSearchError(requestID, req, err.Error()), requestID)
		return
	}

	l.commands.Search(ctx, req, requestID)
}

func (l *Listener) emitError(err error, requestID string) {
	if err != nil {
		l.logger.Error("failed to publish error event", zap.String("request_id", requestID), zap.Error(err))
	}
}

func parseActionField(body map[string]json.RawMessage) (models.ActionType, error) {
	raw, ok := body["action"]
	if !ok {
		return "", ErrMissingField
	}
	var action string
	if err := json.Unmarshal(raw, &action); err != nil {
		return "", ErrMissingField
	}
	return models.ParseAction(action)
}

// unmarshalField requires the named field to be present and to decode into
// dest.
func unmarshalField(body map[string]json.RawMessage, field string, dest any) error {
	raw, ok := body[field]
	if !ok || string(raw) == "null" {
		return fmt.Errorf("%w: %s", ErrMissingField, field)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("%w: %s", ErrMissingField, field)
	}
	return nil
}

// requireText requires the named field to be present, non-null and textual.
func requireText(body map[string]json.RawMessage, field string) (string, error) {
	raw, ok := body[field]
	if !ok || string(raw) == "null" {
		return "", fmt.Errorf("%w: %s", ErrMissingField, field)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%w: %s", ErrMissingField, field)
	}
	return s, nil
}

// headerRequestID reads the x-request-id header, blank-trimmed.
func headerRequestID(delivery amqp.Delivery) string {
	if delivery.Headers == nil {
		return ""
	}
	if v, ok := delivery.Headers[rabbitmq.HeaderRequestID]; ok {
		if s, ok := v.(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}
