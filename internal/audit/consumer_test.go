package audit

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/choicespecs/user-service-microservice/pkg/models"
)

func makeDelivery(event models.UserEvent) amqp.Delivery {
	body, _ := json.Marshal(event)
	return amqp.Delivery{
		Body:       body,
		RoutingKey: string(event.EventType),
	}
}

func TestHandleMessage_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	consumer := NewConsumer(db, zap.NewNop())

	event := models.UserEvent{
		EventID:   "evt-001",
		EventType: models.EventUserCreated,
		Timestamp: time.Now(),
		Data: models.User{
			ID:       "user-001",
			Email:    "test@example.com",
			Username: "tester",
		},
	}

	// Idempotency check — not a duplicate
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("evt-001").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	// Audit row insert
	mock.ExpectExec("INSERT INTO audit_log").
		WithArgs("evt-001", "user.created", "user-001", "test@example.com", "tester").
		WillReturnResult(sqlmock.NewResult(1, 1))

	// Idempotency key insert
	mock.ExpectExec("INSERT INTO idempotency_keys").
		WithArgs("evt-001").
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := consumer.HandleMessage(makeDelivery(event)); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet sqlmock expectations: %v", err)
	}
}

func TestHandleMessage_DuplicateEvent(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	consumer := NewConsumer(db, zap.NewNop())

	event := models.UserEvent{
		EventID:   "evt-dup",
		EventType: models.EventUserUpdated,
		Timestamp: time.Now(),
		Data: models.User{
			ID:       "user-002",
			Email:    "dup@example.com",
			Username: "dup",
		},
	}

	// Idempotency check — IS a duplicate; nothing else runs
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("evt-dup").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	if err := consumer.HandleMessage(makeDelivery(event)); err != nil {
		t.Fatalf("expected no error for duplicate, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet sqlmock expectations: %v", err)
	}
}

func TestHandleMessage_InvalidJSON(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	consumer := NewConsumer(db, zap.NewNop())

	delivery := amqp.Delivery{
		Body:          []byte("{invalid json"),
		CorrelationId: "corr-bad",
	}

	if err := consumer.HandleMessage(delivery); err == nil {
		t.Fatal("expected error for invalid JSON, got nil")
	}
}

func TestHandleMessage_InsertFailureNacks(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	consumer := NewConsumer(db, zap.NewNop())

	event := models.UserEvent{
		EventID:   "evt-003",
		EventType: models.EventUserDeleted,
		Data:      models.User{ID: "user-003", Email: "x@y.z", Username: "x"},
	}

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("evt-003").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("INSERT INTO audit_log").
		WillReturnError(errors.New("disk full"))

	if err := consumer.HandleMessage(makeDelivery(event)); err == nil {
		t.Fatal("expected error when the audit insert fails")
	}
}
