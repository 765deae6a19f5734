// Package api is the HTTP facade. Writes are translated into command
// envelopes and published onto the command queue; reads are served
// synchronously through the same query planner the consumer uses.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/choicespecs/user-service-microservice/internal/query"
	"github.com/choicespecs/user-service-microservice/internal/repository"
	"github.com/choicespecs/user-service-microservice/pkg/middleware"
	"github.com/choicespecs/user-service-microservice/pkg/models"
	"github.com/choicespecs/user-service-microservice/pkg/rabbitmq"
)

// CommandPublisher publishes command envelopes to the service's queue.
type CommandPublisher interface {
	PublishToQueue(queue string, msg rabbitmq.Message) error
}

// UserPage is the page envelope returned by the search endpoint.
type UserPage struct {
	Content       []models.User `json:"content"`
	TotalElements int64         `json:"totalElements"`
	TotalPages    int           `json:"totalPages"`
	Page          int           `json:"page"`
	Size          int           `json:"size"`
}

// Accepted is the reply for write endpoints: the command is queued, the
// outcome arrives asynchronously on the event exchange.
type Accepted struct {
	Status        string `json:"status"`
	CorrelationID string `json:"correlationId"`
}

// UserHandler handles user-related HTTP requests.
type UserHandler struct {
	store     *repository.UsersRepository
	publisher CommandPublisher
	queue     string
	logger    *zap.Logger
}

// NewUserHandler creates a new UserHandler. queue names the command queue
// write endpoints publish to.
func NewUserHandler(store *repository.UsersRepository, pub CommandPublisher, queue string, logger *zap.Logger) *UserHandler {
	return &UserHandler{store: store, publisher: pub, queue: queue, logger: logger}
}

type createEnvelope struct {
	Action models.ActionType `json:"action"`
	User   models.User       `json:"user"`
}

type updateEnvelope struct {
	Action models.ActionType `json:"action"`
	User   models.UserPatch  `json:"user"`
}

type deleteEnvelope struct {
	Action models.ActionType `json:"action"`
	Email  string            `json:"email"`
}

// CreateUser godoc
// @Summary      Create a new user
// @Description  Queues a create command; the record is persisted asynchronously
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        request  body      models.User  true  "User to create"
// @Success      202      {object}  Accepted
// @Failure      400      {object}  map[string]string
// @Failure      502      {object}  map[string]string
// @Router       /users [post]
func (h *UserHandler) CreateUser(c *gin.Context) {
	correlationID := middleware.GetCorrelationID(c)

	var user models.User
	if err := c.ShouldBindJSON(&user); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.publishCommand(c, correlationID, createEnvelope{Action: models.ActionCreate, User: user})
}

// UpdateUser godoc
// @Summary      Update an existing user
// @Description  Queues a partial update addressed by username
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        username  path      string            true  "Username"
// @Param        request   body      models.UserPatch  true  "Fields to change"
// @Success      202       {object}  Accepted
// @Failure      400       {object}  map[string]string
// @Failure      502       {object}  map[string]string
// @Router       /users/{username} [put]
func (h *UserHandler) UpdateUser(c *gin.Context) {
	correlationID := middleware.GetCorrelationID(c)
	username := c.Param("username")

	var patch models.UserPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// The path segment names the target; a username in the body is ignored.
	patch.Username = &username

	h.publishCommand(c, correlationID, updateEnvelope{Action: models.ActionUpdate, User: patch})
}

// DeleteUser godoc
// @Summary      Delete a user
// @Description  Queues a soft delete addressed by email
// @Tags         users
// @Produce      json
// @Param        email  path      string  true  "Email"
// @Success      202    {object}  Accepted
// @Failure      502    {object}  map[string]string
// @Router       /users/{email} [delete]
func (h *UserHandler) DeleteUser(c *gin.Context) {
	correlationID := middleware.GetCorrelationID(c)
	email := c.Param("email")

	h.publishCommand(c, correlationID, deleteEnvelope{Action: models.ActionDelete, Email: email})
}

func (h *UserHandler) publishCommand(c *gin.Context, correlationID string, envelope any) {
	body, err := json.Marshal(envelope)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to encode command"})
		return
	}

	msg := rabbitmq.Message{
		Body:          body,
		ContentType:   "application/json",
		CorrelationID: correlationID,
	}
	if err := h.publisher.PublishToQueue(h.queue, msg); err != nil {
		h.logger.Error("failed to publish command",
			zap.String("correlation_id", correlationID), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to queue command"})
		return
	}

	h.logger.Info("command queued", zap.String("correlation_id", correlationID))
	c.JSON(http.StatusAccepted, Accepted{Status: "accepted", CorrelationID: correlationID})
}

// LookupUser godoc
// @Summary      Look up a single user
// @Description  Resolves exactly one selector (username, email or phone)
// @Tags         users
// @Produce      json
// @Param        username  query     string  false  "Username"
// @Param        email     query     string  false  "Email"
// @Param        phone     query     string  false  "Phone"
// @Success      200  {object}  models.User
// @Failure      400  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /users/lookup [get]
func (h *UserHandler) LookupUser(c *gin.Context) {
	var sel models.UserSelector
	if err := c.ShouldBindQuery(&sel); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	plan, err := query.PlanGet(sel)
	if errors.Is(err, query.ErrSelectorArity) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	users, err := h.store.ExecuteQueryPlan(c.Request.Context(), plan)
	if err != nil {
		h.logger.Error("lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch user"})
		return
	}
	if len(users) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	c.JSON(http.StatusOK, users[0])
}

// SearchUsers godoc
// @Summary      Search users
// @Description  Free-text or structured search with paging and sorting
// @Tags         users
// @Produce      json
// @Param        q               query     string  false  "Free-text term"
// @Param        username        query     string  false  "Exact username"
// @Param        email           query     string  false  "Exact email"
// @Param        firstName       query     string  false  "First name substring"
// @Param        lastName        query     string  false  "Last name substring"
// @Param        phone           query     string  false  "Exact phone"
// @Param        page            query     int     false  "Page number (0-based)"
// @Param        size            query     int     false  "Page size (1-200)"
// @Param        sortBy          query     string  false  "Sort key"
// @Param        sortDir         query     string  false  "asc or desc"
// @Param        includeDeleted  query     bool    false  "Include soft-deleted users"
// @Success      200  {object}  UserPage
// @Failure      500  {object}  map[string]string
// @Router       /users [get]
func (h *UserHandler) SearchUsers(c *gin.Context) {
	var req models.SearchRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// The structured filter rides flat on the query string.
	var filter models.UserFilter
	if err := c.ShouldBindQuery(&filter); err == nil && filter != (models.UserFilter{}) {
		req.User = &filter
	}

	plan := query.PlanSearch(req)
	ctx := c.Request.Context()

	content, err := h.store.ExecuteQueryPlan(ctx, plan)
	if err != nil {
		h.logger.Error("search failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch users"})
		return
	}
	if content == nil {
		content = []models.User{}
	}

	total, err := h.store.ExecuteCountPlan(ctx, query.PlanCount(req))
	if err != nil {
		h.logger.Error("search count failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch users"})
		return
	}

	c.JSON(http.StatusOK, UserPage{
		Content:       content,
		TotalElements: total,
		TotalPages:    int((total + int64(plan.Limit) - 1) / int64(plan.Limit)),
		Page:          plan.Offset / plan.Limit,
		Size:          plan.Limit,
	})
}
