// Package service holds the per-action command handlers. The service owns
// the soft-delete and update-timestamp invariants; the repository owns
// durability.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/choicespecs/user-service-microservice/internal/cache"
	"github.com/choicespecs/user-service-microservice/internal/query"
	"github.com/choicespecs/user-service-microservice/internal/repository"
	"github.com/choicespecs/user-service-microservice/pkg/models"
)

// Store is the storage collaborator consumed by the handlers.
type Store interface {
	Save(ctx context.Context, u models.User) error
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	ExecuteQueryPlan(ctx context.Context, plan query.Plan) ([]models.User, error)
	ExecuteCountPlan(ctx context.Context, plan query.Plan) (int64, error)
}

// Events is the outbound event sink.
type Events interface {
	PublishUserCreated(user models.User) error
	PublishUserUpdated(user models.User) error
	PublishUserDeleted(user models.User) error
	PublishFound(requestID string, user models.User) error
	PublishNotFound(requestID string) error
	PublishGetError(requestID, message string) error
	PublishSearchSuccess(requestID string, req models.SearchRequest, totalElements int64, totalPages int, content []models.User) error
	PublishSearchError(requestID string, req models.SearchRequest, message string) error
}

// UserService orchestrates storage, events and the lookup cache for each
// command. Handlers run synchronously inside the transport's worker.
type UserService struct {
	store  Store
	events Events
	cache  *cache.UserCache
	logger *zap.Logger
	now    func() time.Time
}

// NewUserService creates a UserService. The cache may be nil.
func NewUserService(store Store, events Events, userCache *cache.UserCache, logger *zap.Logger) *UserService {
	return &UserService{
		store:  store,
		events: events,
		cache:  userCache,
		logger: logger,
		now:    time.Now,
	}
}

// Create persists a new user and emits a user.created event.
func (s *UserService) Create(ctx context.Context, user models.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	now := s.now()
	user.Deleted = false
	user.CreatedAt = now
	user.UpdatedAt = now

	if err := s.store.Save(ctx, user); err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	if err := s.events.PublishUserCreated(user); err != nil {
		// The record is durable; a missed event is not worth a redelivery
		// that would recreate the user.
		s.logger.Error("failed to publish user.created", zap.String("user_id", user.ID), zap.Error(err))
	}

	s.logger.Info("user created", zap.String("user_id", user.ID), zap.String("email", user.Email))
	return nil
}

// Delete soft-deletes the user with the given email. The operation is
// idempotent: re-deleting an already deleted user leaves deleted=true,
// refreshes updatedAt, and emits another user.deleted event. Only an
// unknown email is dropped.
func (s *UserService) Delete(ctx context.Context, email string) error {
	user, err := s.findForWrite(ctx, func() (*models.User, error) {
		return s.store.FindByEmail(ctx, email)
	}, "delete", zap.String("email", email))
	if err != nil || user == nil {
		return err
	}

	user.Deleted = true
	user.UpdatedAt = s.now()

	if err := s.store.Save(ctx, *user); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}

	s.cache.Invalidate(ctx, *user)

	if err := s.events.PublishUserDeleted(*user); err != nil {
		s.logger.Error("failed to publish user.deleted", zap.String("user_id", user.ID), zap.Error(err))
	}

	s.logger.Info("user deleted", zap.String("user_id", user.ID), zap.String("email", email))
	return nil
}

// Update applies the non-nil patch fields to the user with the given
// username and emits a user.updated event. Soft-deleted users are still
// addressable; the patch does not resurrect them.
func (s *UserService) Update(ctx context.Context, username string, patch models.UserPatch) error {
	user, err := s.findForWrite(ctx, func() (*models.User, error) {
		return s.store.FindByUsername(ctx, username)
	}, "update", zap.String("username", username))
	if err != nil || user == nil {
		return err
	}

	// Invalidate under the pre-image keys: the patch may change the
	// username or email the cache is keyed by.
	before := *user

	patch.Apply(user)
	user.UpdatedAt = s.now()

	if err := s.store.Save(ctx, *user); err != nil {
		return fmt.Errorf("update user: %w", err)
	}

	s.cache.Invalidate(ctx, before, *user)

	if err := s.events.PublishUserUpdated(*user); err != nil {
		s.logger.Error("failed to publish user.updated", zap.String("user_id", user.ID), zap.Error(err))
	}

	s.logger.Info("user updated", zap.String("user_id", user.ID), zap.String("username", username))
	return nil
}

// findForWrite resolves the target of a mutation. A missing user is logged
// and dropped (nil, nil): redelivering the command cannot make the user
// exist. Other failures propagate so the transport can retry.
func (s *UserService) findForWrite(ctx context.Context, find func() (*models.User, error), action string, field zap.Field) (*models.User, error) {
	user, err := find()
	if errors.Is(err, repository.ErrUserNotFound) {
		s.logger.Warn("user not found, dropping command", zap.String("action", action), field)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s user: %w", action, err)
	}
	return user, nil
}

// Get runs a single-row lookup and always emits exactly one terminal
// correlated event: FOUND, NOT_FOUND or ERROR.
func (s *UserService) Get(ctx context.Context, sel models.UserSelector, requestID string) {
	plan, err := query.PlanGet(sel)
	if err != nil {
		s.emitGetError(requestID, err)
		return
	}

	key := cache.SelectorKey(sel)
	if user, hit := s.cache.Get(ctx, key); hit {
		s.logger.Info("get served from cache", zap.String("request_id", requestID), zap.String("key", key))
		s.emitGetOutcome(requestID, s.events.PublishFound(requestID, *user))
		return
	}

	users, err := s.store.ExecuteQueryPlan(ctx, plan)
	if err != nil {
		s.emitGetError(requestID, err)
		return
	}

	if len(users) == 0 {
		s.emitGetOutcome(requestID, s.events.PublishNotFound(requestID))
		return
	}

	s.cache.Set(ctx, users[0])
	s.emitGetOutcome(requestID, s.events.PublishFound(requestID, users[0]))
}

func (s *UserService) emitGetError(requestID string, err error) {
	s.logger.Error("get failed", zap.String("request_id", requestID), zap.Error(err))
	s.emitGetOutcome(requestID, s.events.PublishGetError(requestID, err.Error()))
}

func (s *UserService) emitGetOutcome(requestID string, err error) {
	if err != nil {
		s.logger.Error("failed to publish get outcome", zap.String("request_id", requestID), zap.Error(err))
	}
}

// Search runs a filtered page query plus the matching count and always emits
// exactly one terminal correlated event: SEARCH_SUCCESS or SEARCH_ERROR.
func (s *UserService) Search(ctx context.Context, req models.SearchRequest, requestID string) {
	plan := query.PlanSearch(req)

	content, err := s.store.ExecuteQueryPlan(ctx, plan)
	if err != nil {
		s.emitSearchError(requestID, req, err)
		return
	}

	total, err := s.store.ExecuteCountPlan(ctx, query.PlanCount(req))
	if err != nil {
		s.emitSearchError(requestID, req, err)
		return
	}

	totalPages := int((total + int64(plan.Limit) - 1) / int64(plan.Limit))
	if err := s.events.PublishSearchSuccess(requestID, req, total, totalPages, content); err != nil {
		s.logger.Error("failed to publish search outcome", zap.String("request_id", requestID), zap.Error(err))
	}
}

func (s *UserService) emitSearchError(requestID string, req models.SearchRequest, err error) {
	s.logger.Error("search failed", zap.String("request_id", requestID), zap.Error(err))
	if pubErr := s.events.PublishSearchError(requestID, req, err.Error()); pubErr != nil {
		s.logger.Error("failed to publish search outcome", zap.String("request_id", requestID), zap.Error(pubErr))
	}
}
