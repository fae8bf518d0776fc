package service

import (
	"fmt"

	"github.com/google/uuid"
)

// MissingAccountError aborts a distribution run when a recipient has no
// settlement account to pay into.
type MissingAccountError struct {
	AgentID   uuid.UUID
	AgentName string
}

func (e *MissingAccountError) Error() string {
	return fmt.Sprintf("agent %s (%s) has no settlement account", e.AgentName, e.AgentID)
}

// InsufficientDataError reports a contribution graph record too incomplete
// to value, e.g. a consume event with no resource reference.
type InsufficientDataError struct {
	EventID uuid.UUID
	Reason  string
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("event %s: %s", e.EventID, e.Reason)
}
