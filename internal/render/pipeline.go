package render

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/siwaht/bookx/internal/assets"
	"github.com/siwaht/bookx/internal/config"
	"github.com/siwaht/bookx/internal/database"
	"github.com/siwaht/bookx/internal/qc"
	"github.com/siwaht/bookx/pkg/models"
)

// Manager runs render jobs in the background. One goroutine per job;
// chapters inside a job are processed strictly sequentially so progress
// reporting stays meaningful and one bad chapter cannot corrupt another.
// Jobs are mirrored to sqlite so status survives a restart.
type Manager struct {
	db       *database.Database
	cache    *assets.BufferCache
	analyzer *qc.Analyzer
	config   config.RenderConfig
	logger   *logrus.Logger

	jobs    map[string]*models.RenderJob
	jobsMux sync.RWMutex
}

// NewManager creates a render manager and reloads persisted jobs. Jobs that
// were still pending or running when the process died are marked failed;
// there is no resume.
func NewManager(db *database.Database, cache *assets.BufferCache, analyzer *qc.Analyzer, cfg config.RenderConfig, logger *logrus.Logger) (*Manager, error) {
	if err := os.MkdirAll(cfg.OutputPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create render output directory: %w", err)
	}

	m := &Manager{
		db:       db,
		cache:    cache,
		analyzer: analyzer,
		config:   cfg,
		logger:   logger,
		jobs:     make(map[string]*models.RenderJob),
	}

	persisted, err := db.ListRenderJobs()
	if err != nil {
		return nil, fmt.Errorf("failed to load render jobs: %w", err)
	}
	for i := range persisted {
		job := persisted[i]
		if job.Status == models.RenderPending || job.Status == models.RenderRunning {
			job.Status = models.RenderFailed
			job.ErrorMessage = "Interrupted by server shutdown"
			if err := db.UpsertRenderJob(&job); err != nil {
				logger.WithError(err).WithField("job_id", job.ID).Warn("Failed to mark interrupted job")
			}
		}
		m.jobs[job.ID] = &job
	}

	return m, nil
}

// StartRender creates a render job for a book and begins processing it in
// the background. An empty chapterIDs renders every chapter.
func (m *Manager) StartRender(bookID string, chapterIDs []string) (*models.RenderJob, error) {
	job := &models.RenderJob{
		ID:         uuid.New().String(),
		BookID:     bookID,
		ChapterIDs: chapterIDs,
		Status:     models.RenderPending,
		Progress:   0,
		CreatedAt:  time.Now(),
	}

	if err := m.db.UpsertRenderJob(job); err != nil {
		return nil, fmt.Errorf("failed to persist render job: %w", err)
	}

	m.jobsMux.Lock()
	m.jobs[job.ID] = job
	m.jobsMux.Unlock()

	go m.processRender(job.ID)

	return m.snapshotJob(job.ID), nil
}

// GetJob returns a render job by ID
func (m *Manager) GetJob(jobID string) (*models.RenderJob, bool) {
	job := m.snapshotJob(jobID)
	return job, job != nil
}

// GetAllJobs returns all known render jobs
func (m *Manager) GetAllJobs() []*models.RenderJob {
	m.jobsMux.RLock()
	defer m.jobsMux.RUnlock()

	jobs := make([]*models.RenderJob, 0, len(m.jobs))
	for id := range m.jobs {
		jobs = append(jobs, m.copyLocked(id))
	}
	return jobs
}

// processRender drives one job to completion or failure. Errors inside the
// per-chapter loop are downgraded to failing chapter reports; only an error
// outside the loop fails the whole job. There is no cancellation path.
func (m *Manager) processRender(jobID string) {
	m.updateJob(jobID, func(job *models.RenderJob) {
		job.Status = models.RenderRunning
	})

	report, err := m.renderBook(jobID)
	if err != nil {
		m.logger.WithError(err).WithField("job_id", jobID).Error("Render job failed")
		m.updateJob(jobID, func(job *models.RenderJob) {
			job.Status = models.RenderFailed
			job.ErrorMessage = err.Error()
			now := time.Now()
			job.CompletedAt = &now
		})
		return
	}

	m.updateJob(jobID, func(job *models.RenderJob) {
		job.Status = models.RenderCompleted
		job.Progress = 100
		job.QCReport = report
		now := time.Now()
		job.CompletedAt = &now
	})
	m.logger.WithFields(logrus.Fields{
		"job_id":       jobID,
		"chapters":     len(report.Chapters),
		"overall_pass": report.OverallPass,
	}).Info("Render job completed")
}

func (m *Manager) renderBook(jobID string) (*models.QCReport, error) {
	job := m.snapshotJob(jobID)
	if job == nil {
		return nil, fmt.Errorf("render job %s disappeared", jobID)
	}

	markers, err := m.db.ListMarkers(job.BookID)
	if err != nil {
		return nil, fmt.Errorf("failed to load chapter markers: %w", err)
	}
	if len(markers) == 0 {
		return nil, fmt.Errorf("no chapter markers defined for book %s", job.BookID)
	}

	tracks, err := m.db.ListTracks(job.BookID)
	if err != nil {
		return nil, fmt.Errorf("failed to load timeline: %w", err)
	}

	var timelineEnd int64
	for _, tr := range tracks {
		for _, clip := range tr.Clips {
			if clip.EndMs() > timelineEnd {
				timelineEnd = clip.EndMs()
			}
		}
	}

	restricted := make(map[string]bool, len(job.ChapterIDs))
	for _, id := range job.ChapterIDs {
		restricted[id] = true
	}

	// Chapter ranges come from the full marker partition; the restriction
	// only selects which ranges get rendered.
	type chapterRange struct {
		marker models.ChapterMarker
		index  int
		start  int64
		end    int64
	}
	var selected []chapterRange
	for i, marker := range markers {
		end := timelineEnd
		if i+1 < len(markers) {
			end = markers[i+1].PositionMs
		}
		if len(restricted) > 0 && !restricted[marker.ChapterID] {
			continue
		}
		selected = append(selected, chapterRange{marker: marker, index: i + 1, start: marker.PositionMs, end: end})
	}
	if len(selected) == 0 {
		return nil, fmt.Errorf("no chapters matched the requested chapter ids")
	}

	report := &models.QCReport{Chapters: make([]models.ChapterQCReport, 0, len(selected))}
	for done, ch := range selected {
		chapterReport := m.renderChapter(tracks, ch.marker, ch.index, ch.start, ch.end)
		report.Chapters = append(report.Chapters, chapterReport)

		progress := (done + 1) * 100 / len(selected)
		m.updateJob(jobID, func(job *models.RenderJob) {
			job.Progress = progress
		})
	}

	report.OverallPass = len(report.Chapters) > 0
	for _, ch := range report.Chapters {
		if !ch.ACXPass {
			report.OverallPass = false
			break
		}
	}
	return report, nil
}

// renderChapter produces and analyzes one chapter file. Any failure is
// returned as a failing report so the job keeps going.
func (m *Manager) renderChapter(tracks []models.TrackWithClips, marker models.ChapterMarker, index int, startMs, endMs int64) models.ChapterQCReport {
	failing := func(issue string) models.ChapterQCReport {
		return models.ChapterQCReport{
			ChapterID:    marker.ChapterID,
			ChapterTitle: marker.Label,
			Issues:       []string{issue},
		}
	}

	clips := collectChapterClips(tracks, startMs, endMs)
	if len(clips) == 0 {
		return failing("No audio clips found for this chapter")
	}

	samples, err := assembleChapter(m.cache, clips, m.config.SampleRate)
	if err != nil {
		m.logger.WithError(err).WithField("chapter_id", marker.ChapterID).Warn("Chapter render failed")
		return failing(fmt.Sprintf("Failed to render chapter: %v", err))
	}
	if len(samples) == 0 {
		return failing("No audio clips found for this chapter")
	}

	normalizeLoudness(samples, m.config.SampleRate, m.config.TargetLUFS, m.config.PeakCeilingDB)

	filename := fmt.Sprintf("chapter_%02d_%s.wav", index, sanitizeFilename(marker.Label))
	outputPath := filepath.Join(m.config.OutputPath, filename)
	if err := writeWAV(outputPath, samples, m.config.SampleRate); err != nil {
		m.logger.WithError(err).WithField("chapter_id", marker.ChapterID).Warn("Chapter write failed")
		return failing(fmt.Sprintf("Failed to write chapter file: %v", err))
	}

	chapterReport := m.analyzer.AnalyzeFile(outputPath)
	chapterReport.ChapterID = marker.ChapterID
	chapterReport.ChapterTitle = marker.Label
	chapterReport.OutputPath = outputPath
	return chapterReport
}

// updateJob mutates a job under lock and mirrors it to the database.
func (m *Manager) updateJob(jobID string, mutate func(*models.RenderJob)) {
	m.jobsMux.Lock()
	job, exists := m.jobs[jobID]
	if !exists {
		m.jobsMux.Unlock()
		return
	}
	mutate(job)
	persisted := m.copyLocked(jobID)
	m.jobsMux.Unlock()

	if err := m.db.UpsertRenderJob(persisted); err != nil {
		m.logger.WithError(err).WithField("job_id", jobID).Warn("Failed to persist render job state")
	}
}

func (m *Manager) snapshotJob(jobID string) *models.RenderJob {
	m.jobsMux.RLock()
	defer m.jobsMux.RUnlock()
	if _, exists := m.jobs[jobID]; !exists {
		return nil
	}
	return m.copyLocked(jobID)
}

// copyLocked returns a detached copy of a job; caller holds jobsMux.
func (m *Manager) copyLocked(jobID string) *models.RenderJob {
	job := m.jobs[jobID]
	cp := *job
	if job.ChapterIDs != nil {
		cp.ChapterIDs = append([]string(nil), job.ChapterIDs...)
	}
	return &cp
}
