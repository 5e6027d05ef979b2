package models

import "time"

// RenderStatus is the lifecycle state of a render job.
type RenderStatus string

const (
	RenderPending   RenderStatus = "pending"
	RenderRunning   RenderStatus = "running"
	RenderCompleted RenderStatus = "completed"
	RenderFailed    RenderStatus = "failed"
)

// RenderJob is a background job producing chapter-bounded output files.
// Chapters inside one job are processed sequentially; Progress is
// chaptersCompleted/chaptersTotal scaled to 0..100.
type RenderJob struct {
	ID           string       `json:"id"`
	BookID       string       `json:"bookId"`
	ChapterIDs   []string     `json:"chapterIds,omitempty"` // optional restriction
	Status       RenderStatus `json:"status"`
	Progress     int          `json:"progress"`
	QCReport     *QCReport    `json:"qc_report"`
	ErrorMessage string       `json:"error_message,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	CompletedAt  *time.Time   `json:"completed_at,omitempty"`
}

// ChapterQCReport holds the measured quality metrics for one rendered
// chapter file plus every threshold violation as a human-readable issue.
type ChapterQCReport struct {
	ChapterID        string   `json:"chapter_id"`
	ChapterTitle     string   `json:"chapter_title"`
	OutputPath       string   `json:"-"`
	DurationSeconds  float64  `json:"duration_seconds"`
	RMSDB            float64  `json:"rms_db"`
	TruePeakDB       float64  `json:"true_peak_db"`
	LUFS             float64  `json:"lufs"`
	NoiseFloorDB     float64  `json:"noise_floor_db"`
	ClippingDetected bool     `json:"clipping_detected"`
	ACXPass          bool     `json:"acx_pass"`
	Issues           []string `json:"issues"`
}

// QCReport aggregates chapter reports for a whole render job. OverallPass
// is true iff at least one chapter was analyzed and every chapter passed.
type QCReport struct {
	Chapters    []ChapterQCReport `json:"chapters"`
	OverallPass bool              `json:"overall_pass"`
}
