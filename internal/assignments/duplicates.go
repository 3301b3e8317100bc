package assignments

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

type pairKey struct {
	client string
	code   string
}

// FindDuplicates groups the assignments effectively active on today by client and
// obligation and reports every group with more than one member. Nothing is resolved.
func FindDuplicates(list []Assignment, today time.Time) []*DuplicateAssignmentError {
	groups := make(map[pairKey][]uuid.UUID)
	for _, a := range list {
		if !a.EffectivelyActive(today) {
			continue
		}
		key := pairKey{client: a.ClientID, code: a.ObligationCode}
		groups[key] = append(groups[key], a.ID)
	}

	var out []*DuplicateAssignmentError
	for key, ids := range groups {
		if len(ids) < 2 {
			continue
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
		out = append(out, &DuplicateAssignmentError{ClientID: key.client, ObligationCode: key.code, AssignmentIDs: ids})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ClientID != out[j].ClientID {
			return out[i].ClientID < out[j].ClientID
		}
		return out[i].ObligationCode < out[j].ObligationCode
	})
	return out
}
