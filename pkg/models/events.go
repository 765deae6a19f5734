package models

import "time"

// EventType is the routing key family for domain events.
type EventType string

const (
	EventUserCreated EventType = "user.created"
	EventUserUpdated EventType = "user.updated"
	EventUserDeleted EventType = "user.deleted"
)

// Routing keys for correlated response events.
const (
	RoutingKeyUserGet    = "user.get"
	RoutingKeyUserSearch = "user.search"
)

// UserEvent is the domain event published after CREATE/UPDATE/DELETE.
// These flows are fire-and-forget, so no request id is carried.
type UserEvent struct {
	EventID   string    `json:"event_id"`
	EventType EventType `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	Data      User      `json:"data"`
}

// GetStatus classifies the outcome of a GET command.
type GetStatus string

const (
	GetFound    GetStatus = "FOUND"
	GetNotFound GetStatus = "NOT_FOUND"
	GetError    GetStatus = "ERROR"
)

// GetEvent is the correlated response to a GET command. Exactly one is
// published per valid, correlation-bearing request.
type GetEvent struct {
	Status    GetStatus `json:"status"`
	RequestID string    `json:"requestId"`
	At        time.Time `json:"at"`
	User      *User     `json:"user,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// SearchStatus classifies the outcome of a SEARCH command.
type SearchStatus string

const (
	SearchSuccess SearchStatus = "SEARCH_SUCCESS"
	SearchFailure SearchStatus = "SEARCH_ERROR"
)

// SearchEvent is the correlated response to a SEARCH command. The original
// query parameters are echoed back for auditability.
type SearchEvent struct {
	Status    SearchStatus `json:"status"`
	RequestID string       `json:"requestId"`
	At        time.Time    `json:"at"`

	// Echo of the request.
	Q              string `json:"q,omitempty"`
	IncludeDeleted bool   `json:"includeDeleted"`
	Page           *int   `json:"page,omitempty"`
	Size           *int   `json:"size,omitempty"`
	SortBy         string `json:"sortBy,omitempty"`
	SortDir        string `json:"sortDir,omitempty"`

	// Results, set on success.
	TotalElements int64  `json:"totalElements"`
	TotalPages    int    `json:"totalPages"`
	ReturnedCount int    `json:"returnedCount"`
	Content       []User `json:"content,omitempty"`

	// Set on error.
	Error string `json:"error,omitempty"`
}
