package registry

import (
	"context"

	"taskdeck/internal/domain"
)

// Sequencer assigns positions inside one (organization, status)
// bucket. NextPosition followed by a later persist is not serialized
// against concurrent callers: two callers can read the same maximum and
// hand the same position to two tasks. Positions are a best-effort
// dense ordering for display, not a uniqueness guarantee.
type Sequencer struct {
	Tasks TaskStore
}

// NextPosition returns the append slot for the bucket: one past the
// current maximum, 0 for an empty bucket.
func (s Sequencer) NextPosition(ctx context.Context, orgID, status string) (int, error) {
	max, err := s.Tasks.MaxPosition(ctx, orgID, status)
	if err != nil {
		return 0, err
	}
	return max + 1, nil
}

// Reindex assigns each task its index in the ordered id list,
// regardless of prior status or position. Tasks not named in ordered
// are untouched.
func (s Sequencer) Reindex(ordered []string, byID map[string]*domain.Task) {
	for i, id := range ordered {
		if t, ok := byID[id]; ok {
			t.Position = i
		}
	}
}
