package filings

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func awaiting() Filing {
	return NewAwaiting(Key{ClientID: "client-a", ObligationCode: "303", PeriodID: uuid.New()},
		time.Date(2025, 10, 2, 8, 0, 0, 0, time.UTC))
}

func TestMarkSubmittedToday(t *testing.T) {
	now := time.Date(2025, 10, 15, 12, 0, 0, 0, time.UTC)
	today := time.Date(2025, 10, 15, 0, 0, 0, 0, time.UTC)
	f := awaiting()

	out, err := MarkSubmitted(f, today, []string{"doc-1", "doc-2"}, now)
	require.NoError(t, err)
	assert.Equal(t, StateSubmitted, out.State)
	require.NotNil(t, out.SubmittedAt)
	assert.Equal(t, today, *out.SubmittedAt)
	assert.Equal(t, []string{"doc-1", "doc-2"}, out.AttachmentRefs)
	assert.Equal(t, now, out.UpdatedAt)

	assert.Equal(t, StateAwaitingSubmission, f.State)
	assert.Nil(t, f.SubmittedAt)
}

func TestMarkSubmittedTwiceFails(t *testing.T) {
	now := time.Date(2025, 10, 15, 12, 0, 0, 0, time.UTC)
	out, err := MarkSubmitted(awaiting(), now, nil, now)
	require.NoError(t, err)
	assert.Empty(t, out.AttachmentRefs)

	_, err = MarkSubmitted(out, now, nil, now)
	var ite *InvalidTransitionError
	require.ErrorAs(t, err, &ite)
	assert.Equal(t, StateSubmitted, ite.From)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestMarkSubmittedFutureDateFails(t *testing.T) {
	now := time.Date(2025, 10, 15, 12, 0, 0, 0, time.UTC)
	_, err := MarkSubmitted(awaiting(), now.Add(time.Minute), nil, now)
	var ide *InvalidDateError
	require.ErrorAs(t, err, &ide)
	require.ErrorIs(t, err, ErrInvalidDate)
}

func TestMergeRefs(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, MergeRefs([]string{"a", "b"}, []string{"b", " ", "c", "a"}))
	assert.Equal(t, []string{"c"}, NewRefs([]string{"a", "b"}, []string{"b", "c"}))
	assert.Empty(t, NewRefs([]string{"a"}, nil))
}

func TestFilingKeyIDIsStable(t *testing.T) {
	k := Key{ClientID: "client-a", ObligationCode: "303", PeriodID: uuid.MustParse("0b7f6e1e-2f43-5a58-9b1d-8c0a3e7f4d21")}
	assert.Equal(t, k.ID(), k.ID())
	other := k
	other.ClientID = "client-b"
	assert.NotEqual(t, k.ID(), other.ID())
}
