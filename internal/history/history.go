package history

import (
	"sync"

	"github.com/siwaht/bookx/pkg/models"
)

// stacks holds one book's undo and redo snapshots.
type stacks struct {
	undo []*models.TimelineSnapshot
	redo []*models.TimelineSnapshot
}

// History keeps bounded undo/redo stacks of full-timeline snapshots, one
// pair of stacks per book so edits to one book can never consume another
// book's history. Snapshotting whole state rather than diffs trades memory
// for guaranteed correctness: a ripple move touching a dozen clips undoes
// exactly like a one-field edit. The zero value is not usable; construct
// with New.
type History struct {
	mu    sync.Mutex
	limit int
	books map[string]*stacks
}

// New creates a history with the given maximum undo depth per book.
func New(limit int) *History {
	if limit < 1 {
		limit = 1
	}
	return &History{limit: limit, books: make(map[string]*stacks)}
}

func (h *History) book(bookID string) *stacks {
	s, ok := h.books[bookID]
	if !ok {
		s = &stacks{}
		h.books[bookID] = s
	}
	return s
}

// Push records the pre-mutation snapshot for a book. It clears the book's
// redo stack (linear history, no branching) and evicts the oldest entry
// past the bound.
func (h *History) Push(bookID string, snapshot *models.TimelineSnapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := h.book(bookID)
	s.undo = append(s.undo, snapshot)
	if len(s.undo) > h.limit {
		s.undo = s.undo[1:]
	}
	s.redo = nil
}

// Undo hands the snapshot preceding the book's last mutation to apply and
// exchanges it for current. The stack mutation commits only after apply
// returns nil, so a failed restore leaves the history exactly as it was.
// Returns false when there is nothing to undo.
func (h *History) Undo(bookID string, current *models.TimelineSnapshot, apply func(*models.TimelineSnapshot) error) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := h.book(bookID)
	if len(s.undo) == 0 {
		return false, nil
	}
	top := s.undo[len(s.undo)-1]
	if err := apply(top); err != nil {
		return false, err
	}
	s.undo = s.undo[:len(s.undo)-1]
	s.redo = append(s.redo, current)
	return true, nil
}

// Redo is the symmetric inverse of Undo.
func (h *History) Redo(bookID string, current *models.TimelineSnapshot, apply func(*models.TimelineSnapshot) error) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := h.book(bookID)
	if len(s.redo) == 0 {
		return false, nil
	}
	top := s.redo[len(s.redo)-1]
	if err := apply(top); err != nil {
		return false, err
	}
	s.redo = s.redo[:len(s.redo)-1]
	s.undo = append(s.undo, current)
	return true, nil
}

// CanUndo reports whether a book has an undo step available.
func (h *History) CanUndo(bookID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.book(bookID).undo) > 0
}

// CanRedo reports whether a book has a redo step available.
func (h *History) CanRedo(bookID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.book(bookID).redo) > 0
}

// Depth returns a book's current undo stack depth.
func (h *History) Depth(bookID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.book(bookID).undo)
}
