package filings

import (
	"strings"
	"time"
)

// MarkSubmitted moves f to SUBMITTED at submittedAt, merging refs into its attachments.
// f is not modified.
func MarkSubmitted(f Filing, submittedAt time.Time, refs []string, now time.Time) (Filing, error) {
	if f.State != StateAwaitingSubmission {
		return Filing{}, &InvalidTransitionError{FilingID: f.ID, From: f.State, To: StateSubmitted}
	}
	if submittedAt.After(now) {
		return Filing{}, &InvalidDateError{SubmittedAt: submittedAt, Now: now}
	}

	out := f
	at := submittedAt
	out.State = StateSubmitted
	out.SubmittedAt = &at
	out.AttachmentRefs = MergeRefs(f.AttachmentRefs, refs)
	out.UpdatedAt = now
	return out, nil
}

// MergeRefs appends the refs not already present, keeping order and dropping blanks.
func MergeRefs(existing, refs []string) []string {
	out := make([]string, 0, len(existing)+len(refs))
	seen := make(map[string]struct{}, len(existing)+len(refs))
	for _, list := range [][]string{existing, refs} {
		for _, ref := range list {
			ref = strings.TrimSpace(ref)
			if ref == "" {
				continue
			}
			if _, ok := seen[ref]; ok {
				continue
			}
			seen[ref] = struct{}{}
			out = append(out, ref)
		}
	}
	return out
}

// NewRefs returns the refs in refs that are not in existing.
func NewRefs(existing, refs []string) []string {
	merged := MergeRefs(existing, refs)
	return merged[len(MergeRefs(nil, existing)):]
}
