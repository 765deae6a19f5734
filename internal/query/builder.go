package query

import (
	"errors"
	"strings"

	"github.com/choicespecs/user-service-microservice/pkg/models"
)

// ErrSelectorArity is returned by PlanGet when the selector does not carry
// exactly one non-blank field.
var ErrSelectorArity = errors.New("provide exactly one selector")

// Paging bounds. Requests outside them fall back to the defaults.
const (
	DefaultPage = 0
	DefaultSize = 50
	MaxSize     = 200
)

const defaultSortColumn = "created_at"

// sortColumns maps external sort keys to physical columns. Anything not in
// the map resolves to created_at, which closes off sort-parameter injection.
// Initialized once, read-only afterwards.
var sortColumns = map[string]string{
	"username":  "username",
	"email":     "email",
	"firstName": "first_name",
	"lastName":  "last_name",
	"createdAt": "created_at",
	"updatedAt": "updated_at",
}

// PlanGet builds a single-row lookup plan for the selector. Exactly one of
// username/email/phone must be non-blank; zero or multiple selectors is an
// error, never a silent pick. Deleted records are always excluded.
func PlanGet(sel models.UserSelector) (Plan, error) {
	p := Plan{Limit: 1}
	p.Predicates = append(p.Predicates, Predicate{Expr: "deleted = false"})

	selectors := 0
	if notBlank(sel.Username) {
		p.Predicates = append(p.Predicates, Predicate{
			Expr:   "LOWER(username) = LOWER(:username)",
			Params: []Param{{Name: "username", Value: sel.Username}},
		})
		selectors++
	}
	if notBlank(sel.Email) {
		p.Predicates = append(p.Predicates, Predicate{
			Expr:   "LOWER(email) = LOWER(:email)",
			Params: []Param{{Name: "email", Value: sel.Email}},
		})
		selectors++
	}
	if notBlank(sel.Phone) {
		p.Predicates = append(p.Predicates, Predicate{
			Expr:   "phone = :phone",
			Params: []Param{{Name: "phone", Value: sel.Phone}},
		})
		selectors++
	}

	if selectors != 1 {
		return Plan{}, ErrSelectorArity
	}
	return p, nil
}

// PlanSearch builds a filtered, sorted, paginated plan. All inputs are
// normalized, never rejected.
func PlanSearch(req models.SearchRequest) Plan {
	page, size := normalizePaging(req.Page, req.Size)

	return Plan{
		Predicates: searchPredicates(req),
		SortColumn: resolveSortBy(req.SortBy),
		Descending: resolveSortDir(req.SortDir),
		Limit:      size,
		Offset:     page * size,
	}
}

// PlanCount builds the matching count plan for the same request. It shares
// the predicate construction with PlanSearch so pagination metadata always
// agrees with the rows returned.
func PlanCount(req models.SearchRequest) Plan {
	return Plan{Predicates: searchPredicates(req)}
}

func searchPredicates(req models.SearchRequest) []Predicate {
	var preds []Predicate

	if !req.IncludeDeleted {
		preds = append(preds, Predicate{Expr: "deleted = false"})
	}

	// Free text short-circuits the structured filter entirely.
	if notBlank(req.Q) {
		preds = append(preds, Predicate{
			Expr: `(LOWER(username) LIKE :q ESCAPE '\' ` +
				`OR LOWER(email) LIKE :q ESCAPE '\' ` +
				`OR LOWER(first_name) LIKE :q ESCAPE '\' ` +
				`OR LOWER(last_name) LIKE :q ESCAPE '\' ` +
				`OR phone LIKE :q_phone ESCAPE '\')`,
			Params: []Param{
				{Name: "q", Value: contains(strings.ToLower(req.Q))},
				// Phone digits are matched literally, not case-folded.
				{Name: "q_phone", Value: contains(req.Q)},
			},
		})
		return preds
	}

	if req.User == nil {
		return preds
	}
	f := *req.User

	if notBlank(f.Username) {
		preds = append(preds, Predicate{
			Expr:   "LOWER(username) = LOWER(:username)",
			Params: []Param{{Name: "username", Value: f.Username}},
		})
	}
	if notBlank(f.Email) {
		preds = append(preds, Predicate{
			Expr:   "LOWER(email) = LOWER(:email)",
			Params: []Param{{Name: "email", Value: f.Email}},
		})
	}
	if notBlank(f.FirstName) {
		preds = append(preds, Predicate{
			Expr:   `LOWER(first_name) LIKE :firstName ESCAPE '\'`,
			Params: []Param{{Name: "firstName", Value: contains(strings.ToLower(f.FirstName))}},
		})
	}
	if notBlank(f.LastName) {
		preds = append(preds, Predicate{
			Expr:   `LOWER(last_name) LIKE :lastName ESCAPE '\'`,
			Params: []Param{{Name: "lastName", Value: contains(strings.ToLower(f.LastName))}},
		})
	}
	if notBlank(f.Phone) {
		preds = append(preds, Predicate{
			Expr:   "phone = :phone",
			Params: []Param{{Name: "phone", Value: f.Phone}},
		})
	}
	return preds
}

// resolveSortBy maps an external sort key through the allow-list.
func resolveSortBy(sortBy string) string {
	if col, ok := sortColumns[sortBy]; ok {
		return col
	}
	return defaultSortColumn
}

// resolveSortDir descends only on a case-insensitive literal "desc";
// everything else, garbage included, is ascending.
func resolveSortDir(sortDir string) bool {
	return strings.EqualFold(sortDir, "desc")
}

func normalizePaging(page, size *int) (int, int) {
	p := DefaultPage
	if page != nil && *page >= 0 {
		p = *page
	}
	s := DefaultSize
	if size != nil && *size > 0 && *size <= MaxSize {
		s = *size
	}
	return p, s
}

// escapeLike escapes the LIKE metacharacters so the pattern matches them
// literally. The rendered SQL must pair this with ESCAPE '\'.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "_", `\_`)
	s = strings.ReplaceAll(s, "%", `\%`)
	return s
}

func contains(s string) string {
	return "%" + escapeLike(s) + "%"
}

func notBlank(s string) bool {
	return strings.TrimSpace(s) != ""
}
