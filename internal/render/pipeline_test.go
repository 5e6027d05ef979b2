package render

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/siwaht/bookx/internal/assets"
	"github.com/siwaht/bookx/internal/config"
	"github.com/siwaht/bookx/internal/database"
	"github.com/siwaht/bookx/internal/qc"
	"github.com/siwaht/bookx/pkg/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel) // Reduce noise in tests
	return logger
}

// newTestManager wires a manager against a fresh database and asset store
// rooted in temp directories.
func newTestManager(t *testing.T) (*Manager, *database.Database, *assets.Store) {
	t.Helper()
	dir := t.TempDir()
	db, err := database.NewDatabase(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("NewDatabase: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store, err := assets.NewStore(filepath.Join(dir, "assets"), db)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	logger := testLogger()
	cfg := config.RenderConfig{
		OutputPath:    filepath.Join(dir, "renders"),
		SampleRate:    44100,
		TargetLUFS:    -20,
		PeakCeilingDB: -3,
	}
	m, err := NewManager(db, assets.NewBufferCache(store), qc.NewAnalyzer(qc.DefaultSpec(), logger), cfg, logger)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m, db, store
}

// seedToneAsset persists a sine tone asset so the cache can decode it.
func seedToneAsset(t *testing.T, db *database.Database, store *assets.Store, id string, durationMs int64) {
	t.Helper()
	asset := models.AudioAsset{
		ID: id, Name: "Tone", Source: models.AssetGenerated,
		Format: "wav", DurationMs: durationMs, CreatedAt: time.Now(),
	}
	if err := db.CreateAsset(asset); err != nil {
		t.Fatalf("CreateAsset: %v", err)
	}

	n := int(durationMs) * 44100 / 1000
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = 0.1 * math.Sin(2*math.Pi*440*float64(i)/44100)
	}
	if err := writeWAV(store.Path(&asset), samples, 44100); err != nil {
		t.Fatalf("writeWAV: %v", err)
	}
}

func seedTimeline(t *testing.T, db *database.Database, store *assets.Store) {
	t.Helper()
	err := db.CreateTrack(models.Track{
		ID: "t1", BookID: "book-1", Name: "Narration",
		Type: models.TrackNarration, CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("CreateTrack: %v", err)
	}
	seedToneAsset(t, db, store, "asset-1", 10000)
	err = db.CreateClip(models.Clip{
		ID: "c1", TrackID: "t1", AssetID: "asset-1",
		PositionMs: 0, TrimStartMs: 0, TrimEndMs: 10000,
		Speed: 1.0, CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("CreateClip: %v", err)
	}
	err = db.ReplaceMarkers("book-1", []models.ChapterMarker{
		{ID: "m1", ChapterID: "ch1", PositionMs: 0, Label: "Chapter 1"},
		{ID: "m2", ChapterID: "ch2", PositionMs: 60000, Label: "Chapter 2"},
	})
	if err != nil {
		t.Fatalf("ReplaceMarkers: %v", err)
	}
}

func waitForJob(t *testing.T, m *Manager, jobID string) *models.RenderJob {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		job, ok := m.GetJob(jobID)
		if !ok {
			t.Fatalf("job %s disappeared", jobID)
		}
		if job.Status == models.RenderCompleted || job.Status == models.RenderFailed {
			return job
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish in time", jobID)
	return nil
}

func TestRenderEmptyChapterFailsQC(t *testing.T) {
	m, db, store := newTestManager(t)
	seedTimeline(t, db, store)

	job, err := m.StartRender("book-1", nil)
	if err != nil {
		t.Fatalf("StartRender: %v", err)
	}
	job = waitForJob(t, m, job.ID)

	if job.Status != models.RenderCompleted {
		t.Fatalf("job status = %s (%s), want completed", job.Status, job.ErrorMessage)
	}
	if job.Progress != 100 {
		t.Errorf("progress = %d, want 100", job.Progress)
	}
	if job.QCReport == nil || len(job.QCReport.Chapters) != 2 {
		t.Fatalf("expected 2 chapter reports, got %+v", job.QCReport)
	}

	ch1 := job.QCReport.Chapters[0]
	if ch1.ChapterID != "ch1" {
		t.Errorf("first chapter = %s, want ch1", ch1.ChapterID)
	}
	if ch1.OutputPath == "" {
		t.Error("chapter with audio should produce an output file")
	} else if _, err := os.Stat(ch1.OutputPath); err != nil {
		t.Errorf("output file missing: %v", err)
	}

	ch2 := job.QCReport.Chapters[1]
	if ch2.ACXPass {
		t.Error("empty chapter must fail")
	}
	found := false
	for _, issue := range ch2.Issues {
		if issue == "No audio clips found for this chapter" {
			found = true
		}
	}
	if !found {
		t.Errorf("empty chapter issues = %v, want the no-clips message", ch2.Issues)
	}
	if ch2.OutputPath != "" {
		t.Error("empty chapter must not produce an output file")
	}

	// One failing chapter fails the whole report.
	if job.QCReport.OverallPass {
		t.Error("overall pass must be false when a chapter fails")
	}
}

func TestRenderRestrictedToChapter(t *testing.T) {
	m, db, store := newTestManager(t)
	seedTimeline(t, db, store)

	job, err := m.StartRender("book-1", []string{"ch1"})
	if err != nil {
		t.Fatalf("StartRender: %v", err)
	}
	job = waitForJob(t, m, job.ID)

	if job.Status != models.RenderCompleted {
		t.Fatalf("job status = %s (%s), want completed", job.Status, job.ErrorMessage)
	}
	if len(job.QCReport.Chapters) != 1 || job.QCReport.Chapters[0].ChapterID != "ch1" {
		t.Errorf("restricted render chapters = %+v, want just ch1", job.QCReport.Chapters)
	}
}

func TestRenderWithoutMarkersFails(t *testing.T) {
	m, db, store := newTestManager(t)
	_ = store

	err := db.CreateTrack(models.Track{
		ID: "t1", BookID: "book-1", Name: "Narration",
		Type: models.TrackNarration, CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("CreateTrack: %v", err)
	}

	job, err := m.StartRender("book-1", nil)
	if err != nil {
		t.Fatalf("StartRender: %v", err)
	}
	job = waitForJob(t, m, job.ID)

	if job.Status != models.RenderFailed {
		t.Fatalf("job status = %s, want failed", job.Status)
	}
	if !strings.Contains(job.ErrorMessage, "no chapter markers") {
		t.Errorf("error = %q, want a missing-markers message", job.ErrorMessage)
	}
}

func TestInterruptedJobsMarkedFailedOnReload(t *testing.T) {
	m, db, _ := newTestManager(t)

	stale := &models.RenderJob{
		ID: "job-stale", BookID: "book-1",
		Status: models.RenderRunning, CreatedAt: time.Now(),
	}
	if err := db.UpsertRenderJob(stale); err != nil {
		t.Fatalf("UpsertRenderJob: %v", err)
	}

	reloaded, err := NewManager(m.db, m.cache, m.analyzer, m.config, m.logger)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	job, ok := reloaded.GetJob("job-stale")
	if !ok {
		t.Fatal("stale job not reloaded")
	}
	if job.Status != models.RenderFailed || job.ErrorMessage != "Interrupted by server shutdown" {
		t.Errorf("stale job = %s %q, want failed and interrupted", job.Status, job.ErrorMessage)
	}
}

func TestCollectChapterClips(t *testing.T) {
	clip := func(id string, pos, dur int64) models.Clip {
		return models.Clip{ID: id, PositionMs: pos, TrimStartMs: 0, TrimEndMs: dur, Speed: 1.0}
	}
	tracks := []models.TrackWithClips{
		{Track: models.Track{ID: "t1"}, Clips: []models.Clip{
			clip("before", 0, 1000),
			clip("straddles", 4500, 1000),
			clip("inside", 6000, 1000),
		}},
		{Track: models.Track{ID: "muted", Muted: true}, Clips: []models.Clip{
			clip("silenced", 6000, 1000),
		}},
		{Track: models.Track{ID: "t2"}, Clips: []models.Clip{
			clip("after", 20000, 1000),
			clip("early", 5000, 500),
		}},
	}

	got := collectChapterClips(tracks, 5000, 10000)
	ids := make([]string, len(got))
	for i, c := range got {
		ids[i] = c.ID
	}
	want := []string{"straddles", "early", "inside"}
	if len(ids) != len(want) {
		t.Fatalf("got %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("clip %d = %s, want %s", i, ids[i], want[i])
		}
	}
}

func TestNormalizeLoudnessRespectsCeiling(t *testing.T) {
	const sampleRate = 44100
	samples := make([]float64, sampleRate*2)
	for i := range samples {
		samples[i] = 0.5 * math.Sin(2*math.Pi*440*float64(i)/44100)
	}

	// A target far above the measured loudness would push the peak past the
	// ceiling; the gain must be held back instead.
	normalizeLoudness(samples, sampleRate, 0, -3)

	peak := qc.PeakDB(samples)
	if peak > -3+0.1 {
		t.Errorf("peak after normalization = %.2f dB, want at most -3", peak)
	}
}

func TestNormalizeLoudnessSkipsSilence(t *testing.T) {
	samples := make([]float64, 44100)
	normalizeLoudness(samples, 44100, -20, -3)
	for _, s := range samples {
		if s != 0 {
			t.Fatal("silence must not be scaled")
		}
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Chapter 1", "Chapter 1"},
		{"a/b\\c:d", "a_b_c_d"},
		{"  ", "chapter"},
		{"q?*<>|", "q_____"},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.in); got != tt.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
