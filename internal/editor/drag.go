package editor

import "sync"

// DragSession tracks an in-progress interactive move. Updates apply
// optimistic local state only; nothing is persisted and no history entry is
// made until Commit, which performs a single committed Move. Cancel simply
// discards the preview.
type DragSession struct {
	mu       sync.Mutex
	engine   *Engine
	clipID   string
	trackID  string
	preview  int64
	finished bool
}

// BeginDrag starts an interactive drag of a clip.
func (e *Engine) BeginDrag(clipID string) (*DragSession, error) {
	clip, err := e.db.GetClipByID(clipID)
	if err != nil {
		return nil, err
	}
	_, track, err := e.bookForClip(clip)
	if err != nil {
		return nil, err
	}
	if err := requireUnlocked(track); err != nil {
		return nil, err
	}

	return &DragSession{
		engine:  e,
		clipID:  clipID,
		trackID: clip.TrackID,
		preview: clip.PositionMs,
	}, nil
}

// Update moves the preview position and returns the ripple-resolved
// positions the track would settle into, so a UI can draw the pending
// layout. The store is not touched.
func (d *DragSession) Update(positionMs int64) (map[string]int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.finished {
		return nil, invalidOp("drag session already finished")
	}
	if positionMs < 0 {
		positionMs = 0
	}
	d.preview = positionMs

	clips, err := d.engine.db.GetTrackClips(d.trackID)
	if err != nil {
		return nil, err
	}
	return resolveRipple(clips, d.clipID, positionMs), nil
}

// Commit persists the drag as one committed move (with history snapshot).
func (d *DragSession) Commit() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.finished {
		return invalidOp("drag session already finished")
	}
	d.finished = true
	return d.engine.Move(d.clipID, "", d.preview)
}

// Cancel discards the preview without touching the store.
func (d *DragSession) Cancel() {
	d.mu.Lock()
	d.finished = true
	d.mu.Unlock()
}

// PreviewClip returns the clip id under drag. Handy for UIs reconciling
// optimistic state.
func (d *DragSession) PreviewClip() string {
	return d.clipID
}
