package filings

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// State enumerates the filing lifecycle.
type State string

const (
	StateAwaitingSubmission State = "AWAITING_SUBMISSION"
	StateSubmitted          State = "SUBMITTED"
)

// ParseState validates a stored state value.
func ParseState(raw string) (State, error) {
	switch State(raw) {
	case StateAwaitingSubmission, StateSubmitted:
		return State(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidState, raw)
}

// Filing tracks a client's progress towards submitting one period of an obligation.
type Filing struct {
	ID             uuid.UUID
	ClientID       string
	ObligationCode string
	PeriodID       uuid.UUID
	State          State
	SubmittedAt    *time.Time
	AttachmentRefs []string
	Notes          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Key returns the natural key of the filing.
func (f Filing) Key() Key {
	return Key{ClientID: f.ClientID, ObligationCode: f.ObligationCode, PeriodID: f.PeriodID}
}

// Key identifies a filing by client, obligation and period.
type Key struct {
	ClientID       string
	ObligationCode string
	PeriodID       uuid.UUID
}

var filingNamespace = uuid.MustParse("a3c5e1f0-7d2b-5c49-8e16-4b0f9d2a6c13")

// ID derives the stable identifier of the filing for k.
func (k Key) ID() uuid.UUID {
	return uuid.NewSHA1(filingNamespace, []byte(k.ClientID+"|"+k.ObligationCode+"|"+k.PeriodID.String()))
}

// NewAwaiting builds a filing in its initial state.
func NewAwaiting(k Key, now time.Time) Filing {
	return Filing{
		ID:             k.ID(),
		ClientID:       k.ClientID,
		ObligationCode: k.ObligationCode,
		PeriodID:       k.PeriodID,
		State:          StateAwaitingSubmission,
		AttachmentRefs: []string{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// ListFilter narrows filing listings. Zero values do not filter.
type ListFilter struct {
	ClientID       string
	ObligationCode string
	State          State
	PeriodIDs      []uuid.UUID
}

var (
	// ErrNotFound indicates the filing does not exist.
	ErrNotFound = errors.New("filings: filing not found")
	// ErrInvalidState indicates an unknown stored state.
	ErrInvalidState = errors.New("filings: invalid state")
	// ErrInvalidTransition is wrapped by InvalidTransitionError.
	ErrInvalidTransition = errors.New("filings: invalid transition")
	// ErrInvalidDate is wrapped by InvalidDateError.
	ErrInvalidDate = errors.New("filings: invalid submission date")
	// ErrDocumentNotFound indicates an attachment reference the document store does not know.
	ErrDocumentNotFound = errors.New("filings: attachment document not found")
)

// InvalidTransitionError reports a lifecycle transition the current state does not allow.
type InvalidTransitionError struct {
	FilingID uuid.UUID
	From     State
	To       State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("filings: filing %s cannot move from %s to %s", e.FilingID, e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// InvalidDateError reports a submission date after the current time.
type InvalidDateError struct {
	SubmittedAt time.Time
	Now         time.Time
}

func (e *InvalidDateError) Error() string {
	return fmt.Sprintf("filings: submission date %s is in the future (now %s)",
		e.SubmittedAt.Format(time.RFC3339), e.Now.Format(time.RFC3339))
}

func (e *InvalidDateError) Unwrap() error { return ErrInvalidDate }
