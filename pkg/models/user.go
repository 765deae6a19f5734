package models

import "time"

// User represents a user record in the system. The JSON field names are the
// wire format used on both command and event messages.
type User struct {
	ID        string    `json:"id" db:"id"`
	Email     string    `json:"email" db:"email" binding:"required,email"`
	Username  string    `json:"username" db:"username" binding:"required"`
	FirstName string    `json:"firstName" db:"first_name"`
	LastName  string    `json:"lastName" db:"last_name"`
	Phone     string    `json:"phone" db:"phone"`
	Deleted   bool      `json:"deleted" db:"deleted"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// UserPatch is a partial update: only non-nil fields are applied to the
// stored record.
type UserPatch struct {
	Username  *string `json:"username"`
	Email     *string `json:"email"`
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	Phone     *string `json:"phone"`
}

// Apply copies the non-nil patch fields onto the user.
func (p UserPatch) Apply(u *User) {
	if p.Username != nil {
		u.Username = *p.Username
	}
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.FirstName != nil {
		u.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		u.LastName = *p.LastName
	}
	if p.Phone != nil {
		u.Phone = *p.Phone
	}
}

// UserSelector is the GET criteria. Exactly one field must be non-blank;
// the query builder enforces that rule.
type UserSelector struct {
	Username string `json:"username" form:"username"`
	Email    string `json:"email" form:"email"`
	Phone    string `json:"phone" form:"phone"`
}

// UserFilter is the structured SEARCH criteria. Username/email/phone match
// exactly (username and email case-insensitively), names match as
// case-insensitive substrings.
type UserFilter struct {
	Username  string `json:"username" form:"username"`
	Email     string `json:"email" form:"email"`
	FirstName string `json:"firstName" form:"firstName"`
	LastName  string `json:"lastName" form:"lastName"`
	Phone     string `json:"phone" form:"phone"`
}

// SearchRequest is the full SEARCH payload: a free-text term or a structured
// filter, plus paging and sorting options. Page and Size are pointers so an
// absent value is distinguishable from zero; both are normalized by the
// query builder, never rejected. If Q is present the structured filter is
// ignored entirely.
type SearchRequest struct {
	Q              string      `json:"q" form:"q"`
	User           *UserFilter `json:"user"`
	Page           *int        `json:"page" form:"page"`
	Size           *int        `json:"size" form:"size"`
	SortBy         string      `json:"sortBy" form:"sortBy"`
	SortDir        string      `json:"sortDir" form:"sortDir"`
	IncludeDeleted bool        `json:"includeDeleted" form:"includeDeleted"`
}
