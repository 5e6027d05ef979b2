package editor

import (
	"time"

	"github.com/google/uuid"

	"github.com/siwaht/bookx/internal/database"
	"github.com/siwaht/bookx/pkg/models"
)

// CreateTrack adds a new track to a book's timeline. The sort order is
// appended after the existing tracks.
func (e *Engine) CreateTrack(bookID, name string, trackType models.TrackType) (*models.Track, error) {
	if !models.ValidTrackType(trackType) {
		return nil, invalidOp("unknown track type %q", string(trackType))
	}

	existing, err := e.db.ListTracks(bookID)
	if err != nil {
		return nil, err
	}

	track := models.Track{
		ID:        uuid.New().String(),
		BookID:    bookID,
		Name:      name,
		Type:      trackType,
		SortOrder: len(existing),
		CreatedAt: time.Now(),
	}

	if err := e.pushSnapshot(bookID); err != nil {
		return nil, err
	}
	if err := e.db.CreateTrack(track); err != nil {
		return nil, err
	}
	return &track, nil
}

// UpdateTrackSettings applies a partial track update. Gain is clamped to
// the configured range and pan to [-1, 1] at this boundary. A locked track
// only accepts a change to the Locked flag itself, so unlocking is always
// possible.
func (e *Engine) UpdateTrackSettings(trackID string, update database.TrackUpdate) error {
	track, err := e.db.GetTrackByID(trackID)
	if err != nil {
		return err
	}
	if editsNonLockFields(update) {
		if err := requireUnlocked(track); err != nil {
			return err
		}
	}

	if update.GainDB != nil {
		clamped := e.clampGain(*update.GainDB)
		update.GainDB = &clamped
	}
	if update.Pan != nil {
		pan := *update.Pan
		if pan < -1 {
			pan = -1
		}
		if pan > 1 {
			pan = 1
		}
		update.Pan = &pan
	}

	if err := e.pushSnapshot(track.BookID); err != nil {
		return err
	}
	return e.db.UpdateTrack(trackID, update)
}

func editsNonLockFields(update database.TrackUpdate) bool {
	return update.Name != nil || update.SortOrder != nil || update.GainDB != nil ||
		update.Pan != nil || update.Muted != nil || update.Solo != nil || update.Color != nil
}

// DeleteTrack removes a track and all its clips.
func (e *Engine) DeleteTrack(trackID string) error {
	track, err := e.db.GetTrackByID(trackID)
	if err != nil {
		return err
	}
	if err := e.pushSnapshot(track.BookID); err != nil {
		return err
	}
	return e.db.DeleteTrack(trackID)
}

// ReplaceMarkers swaps a book's chapter markers for a new set. Markers must
// be strictly ordered by position so the chapter partition stays total and
// non-overlapping.
func (e *Engine) ReplaceMarkers(bookID string, markers []models.ChapterMarker) error {
	for i := range markers {
		if markers[i].PositionMs < 0 {
			return invalidOp("marker position cannot be negative")
		}
		if markers[i].ID == "" {
			markers[i].ID = uuid.New().String()
		}
		if i > 0 && markers[i].PositionMs <= markers[i-1].PositionMs {
			return invalidOp("chapter markers must be strictly ordered by position")
		}
	}

	if err := e.pushSnapshot(bookID); err != nil {
		return err
	}
	return e.db.ReplaceMarkers(bookID, markers)
}

// Segment describes one generated script segment for auto-population.
type Segment struct {
	SegmentID    string `json:"segmentId"`
	ChapterID    string `json:"chapterId"`
	ChapterTitle string `json:"chapterTitle"`
	AssetID      string `json:"assetId"`
}

// AutoPopulate batch-inserts clips for generated segments onto a book's
// narration track, in order, separated by the given silence gaps, and seeds
// a chapter marker wherever the chapter changes. New content lands after
// everything already on the narration track, separated by the chapter gap,
// so populating a non-empty book never overlaps existing clips; markers
// already describing that content are kept. The whole batch commits behind
// a single history snapshot.
func (e *Engine) AutoPopulate(bookID string, segments []Segment, segmentGapMs, chapterGapMs int64) error {
	if len(segments) == 0 {
		return invalidOp("no segments to populate")
	}
	if segmentGapMs < 0 || chapterGapMs < 0 {
		return invalidOp("silence gaps cannot be negative")
	}

	tracks, err := e.db.ListTracks(bookID)
	if err != nil {
		return err
	}
	var narration *models.Track
	cursor := int64(0)
	for i := range tracks {
		if tracks[i].Type == models.TrackNarration {
			narration = &tracks[i].Track
			for _, clip := range tracks[i].Clips {
				if clip.EndMs() > cursor {
					cursor = clip.EndMs()
				}
			}
			break
		}
	}

	markers, err := e.db.ListMarkers(bookID)
	if err != nil {
		return err
	}
	if len(markers) > 0 {
		// New markers must stay strictly after the existing partition.
		if last := markers[len(markers)-1].PositionMs; cursor <= last {
			cursor = last + 1
		}
	}
	if cursor > 0 {
		cursor += chapterGapMs
	}

	var creates []models.Clip
	currentChapter := ""

	trackID := ""
	if narration != nil {
		trackID = narration.ID
	} else {
		trackID = uuid.New().String()
	}

	for _, seg := range segments {
		asset, err := e.db.GetAssetByID(seg.AssetID)
		if err != nil {
			return err
		}
		if seg.ChapterID != currentChapter {
			if currentChapter != "" {
				cursor += chapterGapMs
			}
			currentChapter = seg.ChapterID
			markers = append(markers, models.ChapterMarker{
				ID:         uuid.New().String(),
				ChapterID:  seg.ChapterID,
				PositionMs: cursor,
				Label:      seg.ChapterTitle,
			})
		}

		creates = append(creates, models.Clip{
			ID:          uuid.New().String(),
			TrackID:     trackID,
			AssetID:     seg.AssetID,
			SegmentID:   seg.SegmentID,
			PositionMs:  cursor,
			TrimStartMs: 0,
			TrimEndMs:   asset.DurationMs,
			Speed:       1.0,
			CreatedAt:   time.Now(),
		})
		duration := asset.DurationMs
		if duration < models.MinClipMs {
			duration = models.MinClipMs
		}
		cursor += duration + segmentGapMs
	}

	if err := e.pushSnapshot(bookID); err != nil {
		return err
	}

	if narration == nil {
		track := models.Track{
			ID:        trackID,
			BookID:    bookID,
			Name:      "Narration",
			Type:      models.TrackNarration,
			SortOrder: len(tracks),
			CreatedAt: time.Now(),
		}
		if err := e.db.CreateTrack(track); err != nil {
			return err
		}
	}
	if err := e.db.ApplyClipChanges(creates, nil, nil); err != nil {
		return err
	}
	return e.db.ReplaceMarkers(bookID, markers)
}
