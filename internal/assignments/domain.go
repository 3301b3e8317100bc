package assignments

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/llave-asesoria/fiscal/internal/obligations"
)

// Assignment subscribes a client to an obligation with a periodicity and an active window.
type Assignment struct {
	ID             uuid.UUID
	ClientID       string
	ObligationCode string
	Periodicity    obligations.Periodicity
	ActiveFrom     time.Time
	ActiveUntil    *time.Time
	IsActive       bool
	Notes          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// EffectivelyActive reports whether the assignment is flagged active and today lies in its window.
func (a Assignment) EffectivelyActive(today time.Time) bool {
	if !a.IsActive || today.Before(a.ActiveFrom) {
		return false
	}
	return a.ActiveUntil == nil || !today.After(*a.ActiveUntil)
}

// CoversRange reports whether the active window intersects [start, end].
func (a Assignment) CoversRange(start, end time.Time) bool {
	if end.Before(a.ActiveFrom) {
		return false
	}
	return a.ActiveUntil == nil || !start.After(*a.ActiveUntil)
}

// Overlaps reports whether both assignments are flagged active for the same client
// and obligation with intersecting windows.
func (a Assignment) Overlaps(b Assignment) bool {
	if a.ID == b.ID || !a.IsActive || !b.IsActive {
		return false
	}
	if a.ClientID != b.ClientID || a.ObligationCode != b.ObligationCode {
		return false
	}
	end := farFuture
	if b.ActiveUntil != nil {
		end = *b.ActiveUntil
	}
	return a.CoversRange(b.ActiveFrom, end)
}

var farFuture = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)

// CreateInput captures a new subscription.
type CreateInput struct {
	ClientID       string                  `validate:"required,max=64"`
	ObligationCode string                  `validate:"required,max=16"`
	Periodicity    obligations.Periodicity `validate:"required,oneof=MONTHLY QUARTERLY ANNUAL SPECIAL"`
	ActiveFrom     time.Time               `validate:"required"`
	ActiveUntil    *time.Time
	Notes          string `validate:"max=1000"`
}

// UpdateInput replaces the editable fields of an assignment.
type UpdateInput struct {
	Periodicity obligations.Periodicity `validate:"required,oneof=MONTHLY QUARTERLY ANNUAL SPECIAL"`
	ActiveFrom  time.Time               `validate:"required"`
	ActiveUntil *time.Time
	IsActive    bool
	Notes       string `validate:"max=1000"`
}

// ListFilter narrows assignment listings. Zero values do not filter.
type ListFilter struct {
	ClientIDs      []string
	ObligationCode string
	ActiveOn       *time.Time
}

var (
	// ErrNotFound indicates the assignment does not exist.
	ErrNotFound = errors.New("assignments: assignment not found")
	// ErrInvalidInput wraps validation failures.
	ErrInvalidInput = errors.New("assignments: invalid input")
	// ErrDuplicateAssignment is wrapped by DuplicateAssignmentError.
	ErrDuplicateAssignment = errors.New("assignments: overlapping active assignments")
)

// DuplicateAssignmentError reports several active assignments for one client and obligation.
type DuplicateAssignmentError struct {
	ClientID       string
	ObligationCode string
	AssignmentIDs  []uuid.UUID
}

func (e *DuplicateAssignmentError) Error() string {
	ids := make([]string, len(e.AssignmentIDs))
	for i, id := range e.AssignmentIDs {
		ids[i] = id.String()
	}
	return fmt.Sprintf("assignments: client %s has overlapping active assignments for %s: %s",
		e.ClientID, e.ObligationCode, strings.Join(ids, ", "))
}

func (e *DuplicateAssignmentError) Unwrap() error { return ErrDuplicateAssignment }
