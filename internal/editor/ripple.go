package editor

import (
	"sort"

	"github.com/siwaht/bookx/pkg/models"
)

// resolveRipple computes the position changes needed so that no two clips on
// a track overlap after relocating the clip with movedID to targetMs.
// Clips starting at or after the moved clip are pushed later just enough to
// abut it; clips starting before it are pulled earlier symmetrically. When
// the left edge runs out of room (a pulled chain would cross position 0), a
// final forward sweep pushes the remainder right instead, so the non-overlap
// invariant holds unconditionally.
//
// clips is the track's current clip set, moved clip included at its old
// position. The returned map holds every clip whose stored position must
// change, the moved clip's own relocation included.
func resolveRipple(clips []models.Clip, movedID string, targetMs int64) map[string]int64 {
	working := make([]models.Clip, len(clips))
	copy(working, clips)

	var moved *models.Clip
	for i := range working {
		if working[i].ID == movedID {
			moved = &working[i]
		}
	}
	if moved == nil {
		return nil
	}
	moved.PositionMs = targetMs

	var before, after []*models.Clip
	for i := range working {
		c := &working[i]
		if c.ID == movedID {
			continue
		}
		if c.PositionMs >= moved.PositionMs {
			after = append(after, c)
		} else {
			before = append(before, c)
		}
	}

	// Push the later chain right: each clip must start at or after the end
	// of its predecessor.
	sort.Slice(after, func(i, j int) bool { return after[i].PositionMs < after[j].PositionMs })
	cursor := moved.EndMs()
	for _, c := range after {
		if c.PositionMs < cursor {
			c.PositionMs = cursor
		}
		cursor = c.EndMs()
	}

	// Pull the earlier chain left: each clip must end at or before the start
	// of its successor, clamped at the timeline origin.
	sort.Slice(before, func(i, j int) bool { return before[i].PositionMs > before[j].PositionMs })
	bound := moved.PositionMs
	for _, c := range before {
		if c.EndMs() > bound {
			c.PositionMs = bound - c.DurationMs()
			if c.PositionMs < 0 {
				c.PositionMs = 0
			}
		}
		bound = c.PositionMs
	}

	// Overflow sweep: if clamping at 0 left residual overlap on the left
	// edge, push everything (moved clip included) right in position order.
	all := make([]*models.Clip, 0, len(working))
	for i := range working {
		all = append(all, &working[i])
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].PositionMs == all[j].PositionMs {
			// The moved clip wins ties so the sweep displaces neighbors, not it.
			return all[i].ID == movedID
		}
		return all[i].PositionMs < all[j].PositionMs
	})
	cursor = 0
	for _, c := range all {
		if c.PositionMs < cursor {
			c.PositionMs = cursor
		}
		cursor = c.EndMs()
	}

	changes := make(map[string]int64)
	for i := range clips {
		for j := range working {
			if working[j].ID == clips[i].ID && working[j].PositionMs != clips[i].PositionMs {
				changes[clips[i].ID] = working[j].PositionMs
			}
		}
	}
	return changes
}
