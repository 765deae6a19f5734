// Package repository is the Postgres storage layer for user records. It is
// the only place query plans are rendered to SQL and executed.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/choicespecs/user-service-microservice/internal/query"
	"github.com/choicespecs/user-service-microservice/pkg/models"
)

// ErrUserNotFound is returned by the single-row finders when no matching,
// non-deleted user exists.
var ErrUserNotFound = errors.New("user not found")

const selectColumns = "id, email, username, first_name, last_name, phone, deleted, created_at, updated_at"

// UsersRepository provides durable user storage over database/sql.
type UsersRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// New creates a UsersRepository.
func New(db *sql.DB, logger *zap.Logger) *UsersRepository {
	return &UsersRepository{db: db, logger: logger}
}

// Save upserts the user by id. Create, update and soft-delete all funnel
// through here, so the write path has a single shape.
func (r *UsersRepository) Save(ctx context.Context, u models.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, username, first_name, last_name, phone, deleted, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			username = EXCLUDED.username,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			phone = EXCLUDED.phone,
			deleted = EXCLUDED.deleted,
			updated_at = EXCLUDED.updated_at`,
		u.ID, u.Email, u.Username, u.FirstName, u.LastName, u.Phone, u.Deleted, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save user %s: %w", u.ID, err)
	}
	return nil
}

// FindByEmail returns the user with the given email, case-insensitively.
// Soft-deleted rows are included: the write paths address them too (a repeat
// delete refreshes the record), only the lookup plans exclude them.
func (r *UsersRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findOne(ctx,
		"SELECT "+selectColumns+" FROM users WHERE LOWER(email) = LOWER($1)",
		email)
}

// FindByUsername returns the user with the given username,
// case-insensitively. Soft-deleted rows are included, as in FindByEmail.
func (r *UsersRepository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.findOne(ctx,
		"SELECT "+selectColumns+" FROM users WHERE LOWER(username) = LOWER($1)",
		username)
}

func (r *UsersRepository) findOne(ctx context.Context, q string, arg any) (*models.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, q, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// ExecuteQueryPlan renders the plan to a SELECT and returns the matching rows.
func (r *UsersRepository) ExecuteQueryPlan(ctx context.Context, plan query.Plan) ([]models.User, error) {
	stmt, args := renderSelect(plan)
	r.logger.Debug("executing query plan", zap.String("sql", stmt))

	rows, err := r.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("execute query plan: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// ExecuteCountPlan renders the plan to a SELECT COUNT(*) and returns the
// total number of matching rows. Sort and paging on the plan are ignored.
func (r *UsersRepository) ExecuteCountPlan(ctx context.Context, plan query.Plan) (int64, error) {
	stmt, args := renderCount(plan)
	r.logger.Debug("executing count plan", zap.String("sql", stmt))

	var count int64
	if err := r.db.QueryRowContext(ctx, stmt, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("execute count plan: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.FirstName, &u.LastName,
		&u.Phone, &u.Deleted, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

var namedParamRe = regexp.MustCompile(`:([A-Za-z_][A-Za-z0-9_]*)`)

// renderSelect turns a plan into positional-parameter SQL. Predicate
// expressions are fixed templates; only parameter values reach the driver.
func renderSelect(plan query.Plan) (string, []any) {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(selectColumns)
	sb.WriteString(" FROM users")

	args := renderWhere(&sb, plan)

	if plan.SortColumn != "" {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(plan.SortColumn)
		if plan.Descending {
			sb.WriteString(" DESC")
		} else {
			sb.WriteString(" ASC")
		}
	}
	if plan.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d OFFSET %d", plan.Limit, plan.Offset)
	}
	return sb.String(), args
}

func renderCount(plan query.Plan) (string, []any) {
	var sb strings.Builder
	sb.WriteString("SELECT COUNT(*) FROM users")
	args := renderWhere(&sb, plan)
	return sb.String(), args
}

func renderWhere(sb *strings.Builder, plan query.Plan) []any {
	sb.WriteString(" WHERE 1=1")

	var args []any
	for _, pred := range plan.Predicates {
		placeholders := make(map[string]string, len(pred.Params))
		for _, p := range pred.Params {
			args = append(args, p.Value)
			placeholders[p.Name] = fmt.Sprintf("$%d", len(args))
		}
		expr := namedParamRe.ReplaceAllStringFunc(pred.Expr, func(m string) string {
			if ph, ok := placeholders[m[1:]]; ok {
				return ph
			}
			return m
		})
		sb.WriteString(" AND ")
		sb.WriteString(expr)
	}
	return args
}
