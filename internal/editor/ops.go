package editor

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/siwaht/bookx/internal/database"
	"github.com/siwaht/bookx/pkg/models"
)

// Move relocates a clip to newPositionMs, clamped to the timeline origin,
// and ripple-resolves collisions so no two clips on the track overlap
// afterwards. An empty targetTrackID keeps the clip on its current track;
// otherwise ownership transfers to the target track before resolution.
func (e *Engine) Move(clipID, targetTrackID string, newPositionMs int64) error {
	clip, err := e.db.GetClipByID(clipID)
	if err != nil {
		return err
	}
	bookID, track, err := e.bookForClip(clip)
	if err != nil {
		return err
	}
	if err := requireUnlocked(track); err != nil {
		return err
	}

	destTrackID := clip.TrackID
	if targetTrackID != "" && targetTrackID != clip.TrackID {
		destTrack, err := e.db.GetTrackByID(targetTrackID)
		if err != nil {
			return err
		}
		if err := requireUnlocked(destTrack); err != nil {
			return err
		}
		if destTrack.BookID != bookID {
			return invalidOp("target track %s belongs to a different book", targetTrackID)
		}
		destTrackID = targetTrackID
	}

	if newPositionMs < 0 {
		newPositionMs = 0
	}

	clips, err := e.db.GetTrackClips(destTrackID)
	if err != nil {
		return err
	}
	if destTrackID != clip.TrackID {
		moved := *clip
		moved.TrackID = destTrackID
		clips = append(clips, moved)
	}

	changes := resolveRipple(clips, clipID, newPositionMs)

	if err := e.pushSnapshot(bookID); err != nil {
		return err
	}

	updates := make(map[string]database.ClipUpdate, len(changes))
	for id, pos := range changes {
		p := pos
		update := database.ClipUpdate{PositionMs: &p}
		if id == clipID && destTrackID != clip.TrackID {
			t := destTrackID
			update.TrackID = &t
		}
		updates[id] = update
	}
	if _, ok := updates[clipID]; !ok && destTrackID != clip.TrackID {
		t := destTrackID
		updates[clipID] = database.ClipUpdate{TrackID: &t}
	}

	if err := e.db.ApplyClipChanges(nil, updates, nil); err != nil {
		return err
	}

	e.logger.WithFields(logrus.Fields{
		"clip_id":     clipID,
		"position_ms": newPositionMs,
		"rippled":     len(changes) - 1,
	}).Debug("Clip moved")
	return nil
}

// TrimEdge names the clip edge a trim operates on.
type TrimEdge string

const (
	TrimStart TrimEdge = "start"
	TrimEnd   TrimEdge = "end"
)

// Trim adjusts a clip's audible sub-range by deltaMs at the given edge.
// Trimming the start anchors the clip position by the same delta so the
// audible start instant does not jump. Deltas that would violate the
// duration floor or push the clip before the origin are rejected.
func (e *Engine) Trim(clipID string, edge TrimEdge, deltaMs int64) error {
	clip, err := e.db.GetClipByID(clipID)
	if err != nil {
		return err
	}
	bookID, track, err := e.bookForClip(clip)
	if err != nil {
		return err
	}
	if err := requireUnlocked(track); err != nil {
		return err
	}

	update := database.ClipUpdate{}
	switch edge {
	case TrimStart:
		newTrimStart := clip.TrimStartMs + deltaMs
		newPosition := clip.PositionMs + deltaMs
		if newTrimStart < 0 {
			return invalidOp("trim start would precede the asset start")
		}
		if clip.TrimEndMs-newTrimStart < models.MinClipMs {
			return invalidOp("trim would shrink clip below %d ms", models.MinClipMs)
		}
		if newPosition < 0 {
			return invalidOp("trim would move clip before the timeline origin")
		}
		update.TrimStartMs = &newTrimStart
		update.PositionMs = &newPosition
	case TrimEnd:
		newTrimEnd := clip.TrimEndMs + deltaMs
		if newTrimEnd-clip.TrimStartMs < models.MinClipMs {
			return invalidOp("trim would shrink clip below %d ms", models.MinClipMs)
		}
		if asset, err := e.db.GetAssetByID(clip.AssetID); err == nil {
			if newTrimEnd > asset.DurationMs {
				return invalidOp("trim end would exceed the asset duration")
			}
		} else if !errors.Is(err, database.ErrNotFound) {
			return err
		}
		update.TrimEndMs = &newTrimEnd
	default:
		return invalidOp("unknown trim edge %q", string(edge))
	}

	if err := e.pushSnapshot(bookID); err != nil {
		return err
	}
	return e.db.UpdateClip(clipID, update)
}

// Split cuts a clip in two at an absolute timeline instant strictly inside
// its audible span. The left half keeps the original id and fade-in and
// stops exactly at the split point; the right half is a new clip starting
// there with the original fade-out. Both halves reference the same asset
// and their durations sum exactly to the original duration.
func (e *Engine) Split(clipID string, atMs int64) (*models.Clip, error) {
	clip, err := e.db.GetClipByID(clipID)
	if err != nil {
		return nil, err
	}
	bookID, track, err := e.bookForClip(clip)
	if err != nil {
		return nil, err
	}
	if err := requireUnlocked(track); err != nil {
		return nil, err
	}

	offset := atMs - clip.PositionMs
	duration := clip.DurationMs()
	if offset <= 0 || offset >= duration {
		return nil, invalidOp("split point %d ms is outside the clip span", atMs)
	}
	if offset < models.MinClipMs || duration-offset < models.MinClipMs {
		return nil, invalidOp("split would produce a clip below %d ms", models.MinClipMs)
	}

	splitTrim := clip.TrimStartMs + offset

	right := models.Clip{
		ID:          uuid.New().String(),
		TrackID:     clip.TrackID,
		AssetID:     clip.AssetID,
		SegmentID:   clip.SegmentID,
		PositionMs:  atMs,
		TrimStartMs: splitTrim,
		TrimEndMs:   clip.TrimEndMs,
		GainDB:      clip.GainDB,
		Speed:       clip.Speed,
		FadeInMs:    0,
		FadeOutMs:   clip.FadeOutMs,
		Notes:       clip.Notes,
		CreatedAt:   time.Now(),
	}

	zero := int64(0)
	leftUpdate := database.ClipUpdate{
		TrimEndMs: &splitTrim,
		FadeOutMs: &zero,
	}

	if err := e.pushSnapshot(bookID); err != nil {
		return nil, err
	}
	err = e.db.ApplyClipChanges(
		[]models.Clip{right},
		map[string]database.ClipUpdate{clipID: leftUpdate},
		nil)
	if err != nil {
		return nil, err
	}

	e.logger.WithFields(logrus.Fields{
		"clip_id":  clipID,
		"right_id": right.ID,
		"at_ms":    atMs,
	}).Debug("Clip split")
	return &right, nil
}

// Duplicate creates a copy of a clip immediately after it, separated by a
// fixed gap, rippling later clips out of the way.
func (e *Engine) Duplicate(clipID string) (*models.Clip, error) {
	clip, err := e.db.GetClipByID(clipID)
	if err != nil {
		return nil, err
	}
	bookID, track, err := e.bookForClip(clip)
	if err != nil {
		return nil, err
	}
	if err := requireUnlocked(track); err != nil {
		return nil, err
	}

	dup := *clip
	dup.ID = uuid.New().String()
	dup.PositionMs = clip.EndMs() + models.DuplicateGapMs
	dup.CreatedAt = time.Now()

	clips, err := e.db.GetTrackClips(clip.TrackID)
	if err != nil {
		return nil, err
	}
	clips = append(clips, dup)
	changes := resolveRipple(clips, dup.ID, dup.PositionMs)

	if pos, ok := changes[dup.ID]; ok {
		dup.PositionMs = pos
		delete(changes, dup.ID)
	}
	updates := make(map[string]database.ClipUpdate, len(changes))
	for id, pos := range changes {
		p := pos
		updates[id] = database.ClipUpdate{PositionMs: &p}
	}

	if err := e.pushSnapshot(bookID); err != nil {
		return nil, err
	}
	if err := e.db.ApplyClipChanges([]models.Clip{dup}, updates, nil); err != nil {
		return nil, err
	}
	return &dup, nil
}

// Copy captures a detached value snapshot of a clip on the clipboard.
func (e *Engine) Copy(clipID string) error {
	clip, err := e.db.GetClipByID(clipID)
	if err != nil {
		return err
	}
	e.clipMu.Lock()
	e.clipboard = &models.ClipSnapshot{Clip: *clip, SourceTrackID: clip.TrackID}
	e.clipMu.Unlock()
	return nil
}

// Cut copies a clip to the clipboard and deletes the source.
func (e *Engine) Cut(clipID string) error {
	clip, err := e.db.GetClipByID(clipID)
	if err != nil {
		return err
	}
	bookID, track, err := e.bookForClip(clip)
	if err != nil {
		return err
	}
	if err := requireUnlocked(track); err != nil {
		return err
	}

	e.clipMu.Lock()
	e.clipboard = &models.ClipSnapshot{Clip: *clip, SourceTrackID: clip.TrackID}
	e.clipMu.Unlock()

	if err := e.pushSnapshot(bookID); err != nil {
		return err
	}
	return e.db.DeleteClip(clipID)
}

// Paste instantiates a fresh clip from the clipboard snapshot on the target
// track at the playhead position, rippling collisions out of the way.
func (e *Engine) Paste(targetTrackID string, playheadMs int64) (*models.Clip, error) {
	e.clipMu.Lock()
	snapshot := e.clipboard
	e.clipMu.Unlock()
	if snapshot == nil {
		return nil, invalidOp("clipboard is empty")
	}

	track, err := e.db.GetTrackByID(targetTrackID)
	if err != nil {
		return nil, err
	}
	if err := requireUnlocked(track); err != nil {
		return nil, err
	}
	if playheadMs < 0 {
		playheadMs = 0
	}

	pasted := snapshot.Clip
	pasted.ID = uuid.New().String()
	pasted.TrackID = targetTrackID
	pasted.PositionMs = playheadMs
	pasted.SegmentID = ""
	pasted.CreatedAt = time.Now()

	clips, err := e.db.GetTrackClips(targetTrackID)
	if err != nil {
		return nil, err
	}
	clips = append(clips, pasted)
	changes := resolveRipple(clips, pasted.ID, pasted.PositionMs)

	if pos, ok := changes[pasted.ID]; ok {
		pasted.PositionMs = pos
		delete(changes, pasted.ID)
	}
	updates := make(map[string]database.ClipUpdate, len(changes))
	for id, pos := range changes {
		p := pos
		updates[id] = database.ClipUpdate{PositionMs: &p}
	}

	if err := e.pushSnapshot(track.BookID); err != nil {
		return nil, err
	}
	if err := e.db.ApplyClipChanges([]models.Clip{pasted}, updates, nil); err != nil {
		return nil, err
	}
	return &pasted, nil
}

// ClipProperties carries direct clip property edits; nil fields are left
// untouched.
type ClipProperties struct {
	GainDB    *float64
	Speed     *float64
	FadeInMs  *int64
	FadeOutMs *int64
	Notes     *string
}

// UpdateClipProperties applies direct property edits (gain, speed, fades,
// notes) to a clip. Gain is clamped to the configured bounds; speed must be
// positive and fades non-negative.
func (e *Engine) UpdateClipProperties(clipID string, props ClipProperties) error {
	clip, err := e.db.GetClipByID(clipID)
	if err != nil {
		return err
	}
	bookID, track, err := e.bookForClip(clip)
	if err != nil {
		return err
	}
	if err := requireUnlocked(track); err != nil {
		return err
	}

	update := database.ClipUpdate{Notes: props.Notes}
	if props.GainDB != nil {
		clamped := e.clampGain(*props.GainDB)
		update.GainDB = &clamped
	}
	if props.Speed != nil {
		if *props.Speed <= 0 {
			return invalidOp("speed must be positive")
		}
		update.Speed = props.Speed
	}
	if props.FadeInMs != nil {
		if *props.FadeInMs < 0 {
			return invalidOp("fade-in cannot be negative")
		}
		update.FadeInMs = props.FadeInMs
	}
	if props.FadeOutMs != nil {
		if *props.FadeOutMs < 0 {
			return invalidOp("fade-out cannot be negative")
		}
		update.FadeOutMs = props.FadeOutMs
	}

	if err := e.pushSnapshot(bookID); err != nil {
		return err
	}
	return e.db.UpdateClip(clipID, update)
}

// DeleteClip removes a clip behind a history snapshot.
func (e *Engine) DeleteClip(clipID string) error {
	clip, err := e.db.GetClipByID(clipID)
	if err != nil {
		return err
	}
	bookID, track, err := e.bookForClip(clip)
	if err != nil {
		return err
	}
	if err := requireUnlocked(track); err != nil {
		return err
	}
	if err := e.pushSnapshot(bookID); err != nil {
		return err
	}
	return e.db.DeleteClip(clipID)
}

// InsertClip places a new clip referencing an asset on a track, rippling
// collisions out of the way. The trim range defaults to the full asset.
func (e *Engine) InsertClip(trackID, assetID string, positionMs int64) (*models.Clip, error) {
	track, err := e.db.GetTrackByID(trackID)
	if err != nil {
		return nil, err
	}
	if err := requireUnlocked(track); err != nil {
		return nil, err
	}
	asset, err := e.db.GetAssetByID(assetID)
	if err != nil {
		return nil, err
	}
	if positionMs < 0 {
		positionMs = 0
	}

	clip := models.Clip{
		ID:          uuid.New().String(),
		TrackID:     trackID,
		AssetID:     assetID,
		PositionMs:  positionMs,
		TrimStartMs: 0,
		TrimEndMs:   asset.DurationMs,
		Speed:       1.0,
		CreatedAt:   time.Now(),
	}

	clips, err := e.db.GetTrackClips(trackID)
	if err != nil {
		return nil, err
	}
	clips = append(clips, clip)
	changes := resolveRipple(clips, clip.ID, clip.PositionMs)

	if pos, ok := changes[clip.ID]; ok {
		clip.PositionMs = pos
		delete(changes, clip.ID)
	}
	updates := make(map[string]database.ClipUpdate, len(changes))
	for id, pos := range changes {
		p := pos
		updates[id] = database.ClipUpdate{PositionMs: &p}
	}

	if err := e.pushSnapshot(track.BookID); err != nil {
		return nil, err
	}
	if err := e.db.ApplyClipChanges([]models.Clip{clip}, updates, nil); err != nil {
		return nil, err
	}
	return &clip, nil
}
