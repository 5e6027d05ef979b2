package models

import "time"

// TrackType identifies the semantic role of a track.
type TrackType string

const (
	TrackNarration TrackType = "narration"
	TrackDialogue  TrackType = "dialogue"
	TrackSFX       TrackType = "sfx"
	TrackMusic     TrackType = "music"
	TrackImported  TrackType = "imported"
)

// ValidTrackType reports whether t is one of the known track types.
func ValidTrackType(t TrackType) bool {
	switch t {
	case TrackNarration, TrackDialogue, TrackSFX, TrackMusic, TrackImported:
		return true
	}
	return false
}

// MinClipMs is the duration floor for a clip. Trims and splits that would
// shrink a clip below this are rejected.
const MinClipMs int64 = 100

// DuplicateGapMs is the silence inserted between a clip and its duplicate.
const DuplicateGapMs int64 = 200

// Track is an ordered lane of clips on the timeline.
type Track struct {
	ID        string    `json:"id"`
	BookID    string    `json:"bookId"`
	Name      string    `json:"name"`
	Type      TrackType `json:"type"`
	SortOrder int       `json:"sortOrder"`
	GainDB    float64   `json:"gainDb"`
	Pan       float64   `json:"pan"` // -1.0 (left) .. 1.0 (right)
	Muted     bool      `json:"muted"`
	Solo      bool      `json:"solo"`
	Locked    bool      `json:"locked"`
	Color     string    `json:"color"`
	CreatedAt time.Time `json:"createdAt"`
}

// Clip is a placed, trimmed reference to an audio asset on a track.
// TrimStartMs and TrimEndMs are offsets into the referenced asset; the
// audible sub-range is [TrimStartMs, TrimEndMs).
type Clip struct {
	ID          string    `json:"id"`
	TrackID     string    `json:"trackId"`
	AssetID     string    `json:"assetId"`
	SegmentID   string    `json:"segmentId,omitempty"` // weak link to an originating script segment
	PositionMs  int64     `json:"positionMs"`
	TrimStartMs int64     `json:"trimStartMs"`
	TrimEndMs   int64     `json:"trimEndMs"`
	GainDB      float64   `json:"gainDb"`
	Speed       float64   `json:"speed"`
	FadeInMs    int64     `json:"fadeInMs"`
	FadeOutMs   int64     `json:"fadeOutMs"`
	Notes       string    `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// DurationMs returns the effective clip duration, floored at MinClipMs.
func (c *Clip) DurationMs() int64 {
	d := c.TrimEndMs - c.TrimStartMs
	if d < MinClipMs {
		return MinClipMs
	}
	return d
}

// EndMs returns the absolute timeline position where the clip stops sounding.
func (c *Clip) EndMs() int64 {
	return c.PositionMs + c.DurationMs()
}

// Overlaps reports whether the audible spans of two clips intersect.
func (c *Clip) Overlaps(other *Clip) bool {
	return c.PositionMs < other.EndMs() && other.PositionMs < c.EndMs()
}

// ChapterMarker partitions the timeline into contiguous chapter ranges.
// Markers are kept sorted ascending by position; range(i) runs from
// marker[i] to marker[i+1], and the last range extends to the end of the
// timeline.
type ChapterMarker struct {
	ID         string `json:"id"`
	ChapterID  string `json:"chapterId"` // weak reference to an external chapter
	PositionMs int64  `json:"positionMs"`
	Label      string `json:"label"`
}

// TrackWithClips is a track together with its position-ordered clips.
type TrackWithClips struct {
	Track
	Clips []Clip `json:"clips"`
}

// TimelineSnapshot is a detached value copy of the entire timeline. The
// history manager stores these; restoring one replaces the timeline
// wholesale, which makes arbitrarily complex mutations exactly undoable.
type TimelineSnapshot struct {
	Tracks  []Track         `json:"tracks"`
	Clips   []Clip          `json:"clips"`
	Markers []ChapterMarker `json:"markers"`
}

// ClipSnapshot is a detached copy of a clip captured by copy/cut, kept on
// the clipboard until pasted.
type ClipSnapshot struct {
	Clip          Clip   `json:"clip"`
	SourceTrackID string `json:"sourceTrackId"`
}
