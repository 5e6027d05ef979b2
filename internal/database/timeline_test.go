package database

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/siwaht/bookx/pkg/models"
)

func newTestDatabase(t *testing.T) *Database {
	t.Helper()
	db, err := NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewDatabase: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testTrack(id, bookID string) models.Track {
	return models.Track{
		ID:        id,
		BookID:    bookID,
		Name:      "Narration",
		Type:      models.TrackNarration,
		CreatedAt: time.Now(),
	}
}

func testClip(id, trackID string, positionMs, durationMs int64) models.Clip {
	return models.Clip{
		ID:          id,
		TrackID:     trackID,
		AssetID:     "asset-1",
		PositionMs:  positionMs,
		TrimStartMs: 0,
		TrimEndMs:   durationMs,
		Speed:       1.0,
		CreatedAt:   time.Now(),
	}
}

func TestTrackCRUD(t *testing.T) {
	db := newTestDatabase(t)

	if err := db.CreateTrack(testTrack("t1", "book-1")); err != nil {
		t.Fatalf("CreateTrack: %v", err)
	}

	track, err := db.GetTrackByID("t1")
	if err != nil {
		t.Fatalf("GetTrackByID: %v", err)
	}
	if track.Name != "Narration" || track.Type != models.TrackNarration {
		t.Errorf("unexpected track: %+v", track)
	}

	name := "Chapter narration"
	muted := true
	if err := db.UpdateTrack("t1", TrackUpdate{Name: &name, Muted: &muted}); err != nil {
		t.Fatalf("UpdateTrack: %v", err)
	}
	track, err = db.GetTrackByID("t1")
	if err != nil {
		t.Fatalf("GetTrackByID after update: %v", err)
	}
	if track.Name != name || !track.Muted {
		t.Errorf("partial update not applied: %+v", track)
	}

	if err := db.DeleteTrack("t1"); err != nil {
		t.Fatalf("DeleteTrack: %v", err)
	}
	if _, err := db.GetTrackByID("t1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestUnknownIDsReturnNotFound(t *testing.T) {
	db := newTestDatabase(t)

	if _, err := db.GetTrackByID("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetTrackByID: want ErrNotFound, got %v", err)
	}
	if _, err := db.GetClipByID("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetClipByID: want ErrNotFound, got %v", err)
	}
	if err := db.UpdateTrack("missing", TrackUpdate{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateTrack: want ErrNotFound, got %v", err)
	}
	pos := int64(100)
	if err := db.UpdateClip("missing", ClipUpdate{PositionMs: &pos}); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateClip: want ErrNotFound, got %v", err)
	}
	if err := db.DeleteClip("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteClip: want ErrNotFound, got %v", err)
	}
	if _, err := db.GetAssetByID("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetAssetByID: want ErrNotFound, got %v", err)
	}
	if _, err := db.GetRenderJob("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetRenderJob: want ErrNotFound, got %v", err)
	}
}

func TestDeleteTrackCascadesClips(t *testing.T) {
	db := newTestDatabase(t)

	if err := db.CreateTrack(testTrack("t1", "book-1")); err != nil {
		t.Fatalf("CreateTrack: %v", err)
	}
	if err := db.CreateClip(testClip("c1", "t1", 0, 1000)); err != nil {
		t.Fatalf("CreateClip: %v", err)
	}

	if err := db.DeleteTrack("t1"); err != nil {
		t.Fatalf("DeleteTrack: %v", err)
	}
	if _, err := db.GetClipByID("c1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected clip to cascade with its track, got %v", err)
	}
}

func TestListTracksNestsOrderedClips(t *testing.T) {
	db := newTestDatabase(t)

	if err := db.CreateTrack(testTrack("t1", "book-1")); err != nil {
		t.Fatalf("CreateTrack: %v", err)
	}
	// Insert out of position order; listing must sort by position.
	if err := db.CreateClip(testClip("c2", "t1", 5000, 1000)); err != nil {
		t.Fatalf("CreateClip c2: %v", err)
	}
	if err := db.CreateClip(testClip("c1", "t1", 0, 1000)); err != nil {
		t.Fatalf("CreateClip c1: %v", err)
	}

	tracks, err := db.ListTracks("book-1")
	if err != nil {
		t.Fatalf("ListTracks: %v", err)
	}
	if len(tracks) != 1 || len(tracks[0].Clips) != 2 {
		t.Fatalf("unexpected shape: %d tracks", len(tracks))
	}
	if tracks[0].Clips[0].ID != "c1" || tracks[0].Clips[1].ID != "c2" {
		t.Errorf("clips not position-ordered: %s, %s", tracks[0].Clips[0].ID, tracks[0].Clips[1].ID)
	}
}

func TestApplyClipChangesAtomic(t *testing.T) {
	db := newTestDatabase(t)

	if err := db.CreateTrack(testTrack("t1", "book-1")); err != nil {
		t.Fatalf("CreateTrack: %v", err)
	}
	if err := db.CreateClip(testClip("c1", "t1", 0, 1000)); err != nil {
		t.Fatalf("CreateClip: %v", err)
	}

	// A batch updating an unknown clip must roll back entirely.
	pos := int64(2000)
	err := db.ApplyClipChanges(
		[]models.Clip{testClip("c2", "t1", 3000, 500)},
		map[string]ClipUpdate{"missing": {PositionMs: &pos}},
		nil)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := db.GetClipByID("c2"); !errors.Is(err, ErrNotFound) {
		t.Error("failed batch must not leave created clips behind")
	}

	// A valid batch applies creates, updates, and deletes together.
	err = db.ApplyClipChanges(
		[]models.Clip{testClip("c3", "t1", 5000, 500)},
		map[string]ClipUpdate{"c1": {PositionMs: &pos}},
		nil)
	if err != nil {
		t.Fatalf("ApplyClipChanges: %v", err)
	}
	c1, err := db.GetClipByID("c1")
	if err != nil {
		t.Fatalf("GetClipByID: %v", err)
	}
	if c1.PositionMs != 2000 {
		t.Errorf("c1 position = %d, want 2000", c1.PositionMs)
	}
	if _, err := db.GetClipByID("c3"); err != nil {
		t.Errorf("created clip missing: %v", err)
	}
}

func TestMarkersReplaceAndOrder(t *testing.T) {
	db := newTestDatabase(t)

	markers := []models.ChapterMarker{
		{ID: "m2", ChapterID: "ch2", PositionMs: 60000, Label: "Chapter 2"},
		{ID: "m1", ChapterID: "ch1", PositionMs: 0, Label: "Chapter 1"},
	}
	if err := db.ReplaceMarkers("book-1", markers); err != nil {
		t.Fatalf("ReplaceMarkers: %v", err)
	}

	got, err := db.ListMarkers("book-1")
	if err != nil {
		t.Fatalf("ListMarkers: %v", err)
	}
	if len(got) != 2 || got[0].ID != "m1" || got[1].ID != "m2" {
		t.Fatalf("markers not ordered by position: %+v", got)
	}

	// Replacing swaps the whole set.
	if err := db.ReplaceMarkers("book-1", markers[:1]); err != nil {
		t.Fatalf("ReplaceMarkers second: %v", err)
	}
	got, err = db.ListMarkers("book-1")
	if err != nil {
		t.Fatalf("ListMarkers: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("marker count = %d, want 1", len(got))
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	db := newTestDatabase(t)

	if err := db.CreateTrack(testTrack("t1", "book-1")); err != nil {
		t.Fatalf("CreateTrack: %v", err)
	}
	if err := db.CreateClip(testClip("c1", "t1", 0, 1000)); err != nil {
		t.Fatalf("CreateClip: %v", err)
	}
	if err := db.ReplaceMarkers("book-1", []models.ChapterMarker{
		{ID: "m1", PositionMs: 0, Label: "Chapter 1"},
	}); err != nil {
		t.Fatalf("ReplaceMarkers: %v", err)
	}

	snapshot, err := db.LoadSnapshot("book-1")
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}

	// Mutate the live state, then restore.
	pos := int64(9000)
	if err := db.UpdateClip("c1", ClipUpdate{PositionMs: &pos}); err != nil {
		t.Fatalf("UpdateClip: %v", err)
	}
	if err := db.CreateClip(testClip("c2", "t1", 2000, 500)); err != nil {
		t.Fatalf("CreateClip: %v", err)
	}

	if err := db.RestoreSnapshot("book-1", snapshot); err != nil {
		t.Fatalf("RestoreSnapshot: %v", err)
	}

	c1, err := db.GetClipByID("c1")
	if err != nil {
		t.Fatalf("GetClipByID: %v", err)
	}
	if c1.PositionMs != 0 {
		t.Errorf("restored c1 position = %d, want 0", c1.PositionMs)
	}
	if _, err := db.GetClipByID("c2"); !errors.Is(err, ErrNotFound) {
		t.Error("clip created after the snapshot should be gone after restore")
	}
}

func TestAssetDeleteCascadesClips(t *testing.T) {
	db := newTestDatabase(t)

	if err := db.CreateTrack(testTrack("t1", "book-1")); err != nil {
		t.Fatalf("CreateTrack: %v", err)
	}
	asset := models.AudioAsset{
		ID: "asset-1", Name: "Tone", Source: models.AssetGenerated,
		Format: "wav", DurationMs: 1000, CreatedAt: time.Now(),
	}
	if err := db.CreateAsset(asset); err != nil {
		t.Fatalf("CreateAsset: %v", err)
	}
	if err := db.CreateClip(testClip("c1", "t1", 0, 1000)); err != nil {
		t.Fatalf("CreateClip: %v", err)
	}

	if err := db.DeleteAsset("asset-1"); err != nil {
		t.Fatalf("DeleteAsset: %v", err)
	}
	if _, err := db.GetClipByID("c1"); !errors.Is(err, ErrNotFound) {
		t.Error("clips referencing a deleted asset should be deleted with it")
	}
	if _, err := db.GetAssetByID("asset-1"); !errors.Is(err, ErrNotFound) {
		t.Error("asset row should be gone")
	}
}

func TestAssetHashLookup(t *testing.T) {
	db := newTestDatabase(t)

	asset := models.AudioAsset{
		ID: "asset-1", Name: "Tone", Source: models.AssetGenerated,
		Format: "wav", ContentHash: "abc123", CreatedAt: time.Now(),
	}
	if err := db.CreateAsset(asset); err != nil {
		t.Fatalf("CreateAsset: %v", err)
	}

	found, err := db.GetAssetByHash("abc123")
	if err != nil {
		t.Fatalf("GetAssetByHash: %v", err)
	}
	if found.ID != "asset-1" {
		t.Errorf("found asset %s, want asset-1", found.ID)
	}
	if _, err := db.GetAssetByHash("unknown"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown hash: want ErrNotFound, got %v", err)
	}
}

func TestRenderJobPersistence(t *testing.T) {
	db := newTestDatabase(t)

	job := &models.RenderJob{
		ID:        "job-1",
		BookID:    "book-1",
		Status:    models.RenderPending,
		CreatedAt: time.Now(),
	}
	if err := db.UpsertRenderJob(job); err != nil {
		t.Fatalf("UpsertRenderJob: %v", err)
	}

	job.Status = models.RenderCompleted
	job.Progress = 100
	job.QCReport = &models.QCReport{
		Chapters: []models.ChapterQCReport{
			{ChapterID: "ch1", RMSDB: -20, ACXPass: true, Issues: []string{}},
		},
		OverallPass: true,
	}
	now := time.Now()
	job.CompletedAt = &now
	if err := db.UpsertRenderJob(job); err != nil {
		t.Fatalf("UpsertRenderJob update: %v", err)
	}

	loaded, err := db.GetRenderJob("job-1")
	if err != nil {
		t.Fatalf("GetRenderJob: %v", err)
	}
	if loaded.Status != models.RenderCompleted || loaded.Progress != 100 {
		t.Errorf("unexpected job state: %+v", loaded)
	}
	if loaded.QCReport == nil || !loaded.QCReport.OverallPass {
		t.Errorf("qc report not round-tripped: %+v", loaded.QCReport)
	}
	if len(loaded.QCReport.Chapters) != 1 || loaded.QCReport.Chapters[0].ChapterID != "ch1" {
		t.Errorf("chapter report not round-tripped: %+v", loaded.QCReport)
	}
}
