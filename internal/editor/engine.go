package editor

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/siwaht/bookx/internal/config"
	"github.com/siwaht/bookx/internal/database"
	"github.com/siwaht/bookx/internal/history"
	"github.com/siwaht/bookx/pkg/models"
)

// ErrInvalidOperation is returned for edits rejected by policy: a split
// point outside the clip, a trim below the duration floor, a paste with an
// empty clipboard. No store mutation or history entry happens when it is
// returned.
var ErrInvalidOperation = errors.New("invalid operation")

func invalidOp(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrInvalidOperation)...)
}

// Engine implements the timeline edit operations with ripple collision
// resolution. Every committed mutation pushes a full-timeline snapshot to
// the history manager before touching the store, so validation errors never
// produce a spurious history entry and every committed edit is undoable.
type Engine struct {
	db      *database.Database
	history *history.History
	logger  *logrus.Logger

	minTrackGainDB float64
	maxTrackGainDB float64

	clipMu    sync.Mutex
	clipboard *models.ClipSnapshot
}

// NewEngine creates an edit engine over the given store and history.
func NewEngine(db *database.Database, hist *history.History, cfg config.EditingConfig) *Engine {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	return &Engine{
		db:             db,
		history:        hist,
		logger:         logger,
		minTrackGainDB: cfg.MinTrackGainDB,
		maxTrackGainDB: cfg.MaxTrackGainDB,
	}
}

// pushSnapshot records the current timeline as the undo point for the
// mutation about to be committed.
func (e *Engine) pushSnapshot(bookID string) error {
	snapshot, err := e.db.LoadSnapshot(bookID)
	if err != nil {
		return fmt.Errorf("failed to snapshot timeline: %w", err)
	}
	e.history.Push(bookID, snapshot)
	return nil
}

// bookForClip resolves the owning book of a clip via its track.
func (e *Engine) bookForClip(clip *models.Clip) (string, *models.Track, error) {
	track, err := e.db.GetTrackByID(clip.TrackID)
	if err != nil {
		return "", nil, err
	}
	return track.BookID, track, nil
}

// Undo restores the snapshot preceding the book's last committed mutation.
// It is a no-op when the book's undo stack is empty, and the stack is left
// untouched when the restore itself fails.
func (e *Engine) Undo(bookID string) (bool, error) {
	current, err := e.db.LoadSnapshot(bookID)
	if err != nil {
		return false, err
	}
	applied, err := e.history.Undo(bookID, current, func(previous *models.TimelineSnapshot) error {
		return e.db.RestoreSnapshot(bookID, previous)
	})
	if err != nil || !applied {
		return false, err
	}
	e.logger.WithField("book_id", bookID).Debug("Timeline undo applied")
	return true, nil
}

// Redo re-applies the book's last undone mutation. No-op when nothing was
// undone.
func (e *Engine) Redo(bookID string) (bool, error) {
	current, err := e.db.LoadSnapshot(bookID)
	if err != nil {
		return false, err
	}
	applied, err := e.history.Redo(bookID, current, func(next *models.TimelineSnapshot) error {
		return e.db.RestoreSnapshot(bookID, next)
	})
	if err != nil || !applied {
		return false, err
	}
	e.logger.WithField("book_id", bookID).Debug("Timeline redo applied")
	return true, nil
}

// clampGain bounds a gain value to the configured track gain range.
func (e *Engine) clampGain(gain float64) float64 {
	if gain < e.minTrackGainDB {
		return e.minTrackGainDB
	}
	if gain > e.maxTrackGainDB {
		return e.maxTrackGainDB
	}
	return gain
}

func requireUnlocked(track *models.Track) error {
	if track.Locked {
		return invalidOp("track %s is locked", track.ID)
	}
	return nil
}
