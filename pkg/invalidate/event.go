// Package invalidate notifies the static-site cache collaborator when public
// ids change. Delivery is best effort: failures are logged, never retried by
// the caller, and never block an identity operation.
package invalidate

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/quillpress/quill/pkg/models"
)

// Reason describes the identity change that produced an event.
type Reason string

const (
	ReasonCreated    Reason = "created"
	ReasonReassigned Reason = "reassigned"
	ReasonReordered  Reason = "reordered"
	ReasonImported   Reason = "imported"
	ReasonDeleted    Reason = "deleted"
	ReasonRestored   Reason = "restored"
	ReasonPurged     Reason = "purged"
	ReasonRepaired   Reason = "repaired"
)

// Event is the envelope handed to every backend.
type Event struct {
	ID         string            `json:"id"`
	Collection models.Collection `json:"collection"`
	IDs        []int             `json:"ids"`
	Reason     Reason            `json:"reason"`
	Timestamp  time.Time         `json:"timestamp"`
}

// NewEvent builds an event with sorted, de-duplicated ids.
func NewEvent(c models.Collection, reason Reason, ids ...int) Event {
	return Event{
		ID:         uuid.New().String(),
		Collection: c,
		IDs:        normalizeIDs(ids),
		Reason:     reason,
		Timestamp:  time.Now(),
	}
}

func normalizeIDs(ids []int) []int {
	seen := make(map[int]bool, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}
