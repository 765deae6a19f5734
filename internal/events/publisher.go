// Package events publishes domain and correlated response events onto the
// user topic exchange.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/choicespecs/user-service-microservice/pkg/models"
	"github.com/choicespecs/user-service-microservice/pkg/rabbitmq"
)

const jsonContentType = "application/json"

// Transport is the outbound message sink. *rabbitmq.Publisher satisfies it.
type Transport interface {
	Publish(msg rabbitmq.Message) error
}

// EventPublisher builds outcome events and hands them to the transport.
// Publishing is fire-and-forget: delivery guarantees belong to the broker.
type EventPublisher struct {
	transport Transport
	logger    *zap.Logger
}

// NewEventPublisher creates an EventPublisher.
func NewEventPublisher(transport Transport, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{transport: transport, logger: logger}
}

// PublishUserCreated emits a user.created domain event.
func (p *EventPublisher) PublishUserCreated(user models.User) error {
	return p.publishDomainEvent(models.EventUserCreated, user)
}

// PublishUserUpdated emits a user.updated domain event.
func (p *EventPublisher) PublishUserUpdated(user models.User) error {
	return p.publishDomainEvent(models.EventUserUpdated, user)
}

// PublishUserDeleted emits a user.deleted domain event.
func (p *EventPublisher) PublishUserDeleted(user models.User) error {
	return p.publishDomainEvent(models.EventUserDeleted, user)
}

func (p *EventPublisher) publishDomainEvent(eventType models.EventType, user models.User) error {
	event := models.UserEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
		Data:      user,
	}

	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return p.transport.Publish(rabbitmq.Message{
		RoutingKey:  string(eventType),
		Body:        body,
		ContentType: jsonContentType,
	})
}

// PublishFound emits a FOUND response for a GET request.
func (p *EventPublisher) PublishFound(requestID string, user models.User) error {
	return p.publishGetEvent(requestID, models.GetEvent{
		Status: models.GetFound,
		User:   &user,
	}, jsonContentType)
}

// PublishNotFound emits a NOT_FOUND response for a GET request.
func (p *EventPublisher) PublishNotFound(requestID string) error {
	// No payload body worth typing; only FOUND carries a content type.
	return p.publishGetEvent(requestID, models.GetEvent{Status: models.GetNotFound}, "")
}

// PublishGetError emits an ERROR response for a GET request.
func (p *EventPublisher) PublishGetError(requestID, message string) error {
	return p.publishGetEvent(requestID, models.GetEvent{
		Status: models.GetError,
		Error:  message,
	}, "")
}

func (p *EventPublisher) publishGetEvent(requestID string, event models.GetEvent, contentType string) error {
	event.RequestID = requestID
	event.At = time.Now()

	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	p.logger.Info("publishing get outcome",
		zap.String("status", string(event.Status)),
		zap.String("request_id", requestID))

	return p.transport.Publish(rabbitmq.Message{
		RoutingKey:    models.RoutingKeyUserGet,
		Body:          body,
		ContentType:   contentType,
		CorrelationID: requestID,
	})
}

// PublishSearchSuccess emits a SEARCH_SUCCESS response carrying the result
// page and an echo of the original criteria.
func (p *EventPublisher) PublishSearchSuccess(requestID string, req models.SearchRequest, totalElements int64, totalPages int, content []models.User) error {
	event := searchEventFor(requestID, req)
	event.Status = models.SearchSuccess
	event.TotalElements = totalElements
	event.TotalPages = totalPages
	event.ReturnedCount = len(content)
	event.Content = content
	return p.publishSearchEvent(event)
}

// PublishSearchError emits a SEARCH_ERROR response echoing the original
// criteria for debuggability.
func (p *EventPublisher) PublishSearchError(requestID string, req models.SearchRequest, message string) error {
	event := searchEventFor(requestID, req)
	event.Status = models.SearchFailure
	event.Error = message
	return p.publishSearchEvent(event)
}

func searchEventFor(requestID string, req models.SearchRequest) models.SearchEvent {
	return models.SearchEvent{
		RequestID:      requestID,
		At:             time.Now(),
		Q:              req.Q,
		IncludeDeleted: req.IncludeDeleted,
		Page:           req.Page,
		Size:           req.Size,
		SortBy:         req.SortBy,
		SortDir:        req.SortDir,
	}
}

func (p *EventPublisher) publishSearchEvent(event models.SearchEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	p.logger.Info("publishing search outcome",
		zap.String("status", string(event.Status)),
		zap.String("request_id", event.RequestID))

	return p.transport.Publish(rabbitmq.Message{
		RoutingKey:    models.RoutingKeyUserSearch,
		Body:          body,
		ContentType:   jsonContentType,
		CorrelationID: event.RequestID,
	})
}
