package api

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/choicespecs/user-service-microservice/internal/repository"
	"github.com/choicespecs/user-service-microservice/pkg/models"
	"github.com/choicespecs/user-service-microservice/pkg/rabbitmq"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testQueue = "user-service-queue"

// mockPublisher implements CommandPublisher for testing.
type mockPublisher struct {
	published []publishedMsg
	err       error
}

type publishedMsg struct {
	Queue   string
	Message rabbitmq.Message
}

func (m *mockPublisher) PublishToQueue(queue string, msg rabbitmq.Message) error {
	m.published = append(m.published, publishedMsg{Queue: queue, Message: msg})
	return m.err
}

func newTestRouter(t *testing.T) (*gin.Engine, *mockPublisher, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	pub := &mockPublisher{}
	store := repository.New(db, zap.NewNop())
	handler := NewUserHandler(store, pub, testQueue, zap.NewNop())
	return NewRouter(handler), pub, mock, db
}

func userRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "email", "username", "first_name", "last_name", "phone", "deleted", "created_at", "updated_at"})
}

func TestCreateUser_Accepted(t *testing.T) {
	router, pub, _, db := newTestRouter(t)
	defer db.Close()

	body := `{"email":"test@example.com","username":"tester"}`
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/users", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", w.Code, w.Body.String())
	}

	var resp Accepted
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.Status != "accepted" {
		t.Errorf("expected status accepted, got %s", resp.Status)
	}
	if resp.CorrelationID == "" {
		t.Error("expected a correlation id in the response")
	}

	if len(pub.published) != 1 {
		t.Fatalf("expected 1 published message, got %d", len(pub.published))
	}
	if pub.published[0].Queue != testQueue {
		t.Errorf("expected queue %s, got %s", testQueue, pub.published[0].Queue)
	}

	var envelope struct {
		Action string      `json:"action"`
		User   models.User `json:"user"`
	}
	if err := json.Unmarshal(pub.published[0].Message.Body, &envelope); err != nil {
		t.Fatalf("failed to unmarshal envelope: %v", err)
	}
	if envelope.Action != "create" {
		t.Errorf("expected action create, got %s", envelope.Action)
	}
	if envelope.User.Email != "test@example.com" {
		t.Errorf("expected email test@example.com, got %s", envelope.User.Email)
	}
	if pub.published[0].Message.CorrelationID != resp.CorrelationID {
		t.Errorf("message correlation id %s does not match response %s",
			pub.published[0].Message.CorrelationID, resp.CorrelationID)
	}
}

func TestCreateUser_BadRequest(t *testing.T) {
	router, pub, _, db := newTestRouter(t)
	defer db.Close()

	// Missing required fields
	body := `{"email":"not-an-email"}`
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/users", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d: %s", w.Code, w.Body.String())
	}
	if len(pub.published) != 0 {
		t.Errorf("expected no published messages, got %d", len(pub.published))
	}
}

func TestCreateUser_PublishFailure(t *testing.T) {
	router, pub, _, db := newTestRouter(t)
	defer db.Close()
	pub.err = errors.New("broker unavailable")

	body := `{"email":"test@example.com","username":"tester"}`
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/users", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected status 502, got %d: %s", w.Code, w.Body.String())
	}
}

func TestUpdateUser_PathUsernameWins(t *testing.T) {
	router, pub, _, db := newTestRouter(t)
	defer db.Close()

	body := `{"username":"smuggled","email":"new@example.com"}`
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPut, "/users/jdoe", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", w.Code, w.Body.String())
	}

	if len(pub.published) != 1 {
		t.Fatalf("expected 1 published message, got %d", len(pub.published))
	}
	var envelope struct {
		Action string           `json:"action"`
		User   models.UserPatch `json:"user"`
	}
	if err := json.Unmarshal(pub.published[0].Message.Body, &envelope); err != nil {
		t.Fatalf("failed to unmarshal envelope: %v", err)
	}
	if envelope.Action != "update" {
		t.Errorf("expected action update, got %s", envelope.Action)
	}
	if envelope.User.Username == nil || *envelope.User.Username != "jdoe" {
		t.Errorf("expected username jdoe from the path, got %v", envelope.User.Username)
	}
	if envelope.User.Email == nil || *envelope.User.Email != "new@example.com" {
		t.Errorf("expected email new@example.com, got %v", envelope.User.Email)
	}
}

func TestDeleteUser_Accepted(t *testing.T) {
	router, pub, _, db := newTestRouter(t)
	defer db.Close()

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodDelete, "/users/test@example.com", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", w.Code, w.Body.String())
	}

	if len(pub.published) != 1 {
		t.Fatalf("expected 1 published message, got %d", len(pub.published))
	}
	var envelope struct {
		Action string `json:"action"`
		Email  string `json:"email"`
	}
	if err := json.Unmarshal(pub.published[0].Message.Body, &envelope); err != nil {
		t.Fatalf("failed to unmarshal envelope: %v", err)
	}
	if envelope.Action != "delete" {
		t.Errorf("expected action delete, got %s", envelope.Action)
	}
	if envelope.Email != "test@example.com" {
		t.Errorf("expected email test@example.com, got %s", envelope.Email)
	}
}

func TestLookupUser_Success(t *testing.T) {
	router, _, mock, db := newTestRouter(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery("SELECT id, email, username, first_name, last_name, phone, deleted, created_at, updated_at FROM users WHERE 1=1 AND deleted = false AND LOWER(email) = LOWER($1) LIMIT 1 OFFSET 0").
		WithArgs("test@example.com").
		WillReturnRows(userRows().AddRow("user-123", "test@example.com", "tester", "Test", "User", "", false, now, now))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/users/lookup?email=test@example.com", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var user models.User
	if err := json.Unmarshal(w.Body.Bytes(), &user); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if user.ID != "user-123" {
		t.Errorf("expected ID user-123, got %s", user.ID)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet sqlmock expectations: %v", err)
	}
}

func TestLookupUser_NotFound(t *testing.T) {
	router, _, mock, db := newTestRouter(t)
	defer db.Close()

	mock.ExpectQuery("SELECT id, email, username, first_name, last_name, phone, deleted, created_at, updated_at FROM users WHERE 1=1 AND deleted = false AND LOWER(username) = LOWER($1) LIMIT 1 OFFSET 0").
		WithArgs("ghost").
		WillReturnRows(userRows())

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/users/lookup?username=ghost", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d: %s", w.Code, w.Body.String())
	}
}

func TestLookupUser_SelectorArity(t *testing.T) {
	router, _, _, db := newTestRouter(t)
	defer db.Close()

	for _, target := range []string{
		"/users/lookup",
		"/users/lookup?email=a@b.com&username=jdoe",
	} {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, target, nil)
		router.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected status 400, got %d: %s", target, w.Code, w.Body.String())
		}
	}
}

func TestSearchUsers_DefaultPaging(t *testing.T) {
	router, _, mock, db := newTestRouter(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery("SELECT id, email, username, first_name, last_name, phone, deleted, created_at, updated_at FROM users WHERE 1=1 AND deleted = false ORDER BY created_at ASC LIMIT 50 OFFSET 0").
		WillReturnRows(userRows().
			AddRow("user-1", "one@example.com", "one", "", "", "", false, now, now).
			AddRow("user-2", "two@example.com", "two", "", "", "", false, now, now))
	mock.ExpectQuery("SELECT COUNT(*) FROM users WHERE 1=1 AND deleted = false").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/users", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var page UserPage
	if err := json.Unmarshal(w.Body.Bytes(), &page); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if len(page.Content) != 2 {
		t.Errorf("expected 2 users, got %d", len(page.Content))
	}
	if page.TotalElements != 2 {
		t.Errorf("expected totalElements 2, got %d", page.TotalElements)
	}
	if page.TotalPages != 1 {
		t.Errorf("expected totalPages 1, got %d", page.TotalPages)
	}
	if page.Size != 50 {
		t.Errorf("expected default size 50, got %d", page.Size)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet sqlmock expectations: %v", err)
	}
}

func TestSearchUsers_OversizedPageFallsBack(t *testing.T) {
	router, _, mock, db := newTestRouter(t)
	defer db.Close()

	// size=201 exceeds the cap and falls back to the default of 50.
	mock.ExpectQuery("SELECT id, email, username, first_name, last_name, phone, deleted, created_at, updated_at FROM users WHERE 1=1 AND deleted = false ORDER BY created_at ASC LIMIT 50 OFFSET 0").
		WillReturnRows(userRows())
	mock.ExpectQuery("SELECT COUNT(*) FROM users WHERE 1=1 AND deleted = false").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/users?size=201", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var page UserPage
	if err := json.Unmarshal(w.Body.Bytes(), &page); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if page.Size != 50 {
		t.Errorf("expected fallback size 50, got %d", page.Size)
	}
	if len(page.Content) != 0 {
		t.Errorf("expected empty content, got %d", len(page.Content))
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet sqlmock expectations: %v", err)
	}
}

func TestSearchUsers_StructuredFilter(t *testing.T) {
	router, _, mock, db := newTestRouter(t)
	defer db.Close()

	mock.ExpectQuery("SELECT id, email, username, first_name, last_name, phone, deleted, created_at, updated_at FROM users WHERE 1=1 AND deleted = false AND LOWER(first_name) LIKE $1 ESCAPE '\\' ORDER BY created_at ASC LIMIT 50 OFFSET 0").
		WithArgs("%jo%").
		WillReturnRows(userRows())
	mock.ExpectQuery("SELECT COUNT(*) FROM users WHERE 1=1 AND deleted = false AND LOWER(first_name) LIKE $1 ESCAPE '\\'").
		WithArgs("%jo%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/users?firstName=Jo", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet sqlmock expectations: %v", err)
	}
}

func TestCorrelationIDEchoed(t *testing.T) {
	router, pub, _, db := newTestRouter(t)
	defer db.Close()

	body := `{"email":"corr@example.com","username":"corr"}`
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/users", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Correlation-ID", "test-corr-id-123")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", w.Code, w.Body.String())
	}

	if got := w.Header().Get("X-Correlation-ID"); got != "test-corr-id-123" {
		t.Errorf("expected correlation header echoed, got %s", got)
	}
	if len(pub.published) != 1 {
		t.Fatalf("expected 1 published message, got %d", len(pub.published))
	}
	if pub.published[0].Message.CorrelationID != "test-corr-id-123" {
		t.Errorf("expected correlation ID test-corr-id-123, got %s",
			pub.published[0].Message.CorrelationID)
	}
}

func TestHealthCheck(t *testing.T) {
	router, _, _, db := newTestRouter(t)
	defer db.Close()

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status ok, got %s", resp["status"])
	}
}
