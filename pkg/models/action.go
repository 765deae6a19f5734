package models

import (
	"errors"
	"fmt"
	"strings"
)

// ActionType is the closed set of commands the service accepts.
type ActionType string

const (
	ActionCreate ActionType = "create"
	ActionUpdate ActionType = "update"
	ActionDelete ActionType = "delete"
	ActionGet    ActionType = "get"
	ActionSearch ActionType = "search"
)

// ErrBlankAction is returned when the action field is missing or blank.
var ErrBlankAction = errors.New("action cannot be null or blank")

// ParseAction resolves an action string to an ActionType with a
// case-insensitive exact match. Blank or unknown values are rejected.
func ParseAction(s string) (ActionType, error) {
	if strings.TrimSpace(s) == "" {
		return "", ErrBlankAction
	}
	switch ActionType(strings.ToLower(s)) {
	case ActionCreate:
		return ActionCreate, nil
	case ActionUpdate:
		return ActionUpdate, nil
	case ActionDelete:
		return ActionDelete, nil
	case ActionGet:
		return ActionGet, nil
	case ActionSearch:
		return ActionSearch, nil
	}
	return "", fmt.Errorf("unsupported action: %s", s)
}
