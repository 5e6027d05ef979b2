package playback

import (
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/sirupsen/logrus"

	"github.com/siwaht/bookx/internal/assets"
	"github.com/siwaht/bookx/internal/config"
	"github.com/siwaht/bookx/internal/database"
	"github.com/siwaht/bookx/pkg/models"
)

// captureSink records every schedule it receives.
type captureSink struct {
	mu        sync.Mutex
	epoch     time.Time
	clips     []ScheduledClip
	stopCount int
}

func (cs *captureSink) Schedule(epoch time.Time, clips []ScheduledClip) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.epoch = epoch
	cs.clips = clips
	return nil
}

func (cs *captureSink) Stop() {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.stopCount++
}

func (cs *captureSink) snapshot() (time.Time, []ScheduledClip, int) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.epoch, append([]ScheduledClip(nil), cs.clips...), cs.stopCount
}

func newTestScheduler(t *testing.T) (*Scheduler, *captureSink, *database.Database, *assets.Store) {
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

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel) // Reduce noise in tests

	sink := &captureSink{}
	sched := NewScheduler(db, assets.NewBufferCache(store), sink, NewStateManager(),
		config.PlaybackConfig{TickIntervalMs: 10, SampleRate: 44100}, logger)
	t.Cleanup(sched.Stop)
	return sched, sink, db, store
}

// seedToneAsset writes a decodable sine asset and registers it.
func seedToneAsset(t *testing.T, db *database.Database, store *assets.Store, id string, durationMs int64) {
	t.Helper()
	asset := models.AudioAsset{
		ID: id, Name: "Tone", Source: models.AssetGenerated,
		Format: "wav", DurationMs: durationMs, CreatedAt: time.Now(),
	}
	if err := db.CreateAsset(asset); err != nil {
		t.Fatalf("CreateAsset: %v", err)
	}

	const sampleRate = 44100
	n := int(durationMs) * sampleRate / 1000
	f, err := os.Create(store.Path(&asset))
	if err != nil {
		t.Fatalf("create asset file: %v", err)
	}
	defer f.Close()
	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		SourceBitDepth: 16,
		Data:           make([]int, n),
	}
	for i := range buf.Data {
		buf.Data[i] = int(0.1 * math.Sin(2*math.Pi*440*float64(i)/sampleRate) * 32767)
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("write wav: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close wav: %v", err)
	}
}

func seedTrack(t *testing.T, db *database.Database, track models.Track) {
	t.Helper()
	track.CreatedAt = time.Now()
	if err := db.CreateTrack(track); err != nil {
		t.Fatalf("CreateTrack: %v", err)
	}
}

func seedClip(t *testing.T, db *database.Database, clip models.Clip) {
	t.Helper()
	clip.Speed = 1.0
	clip.CreatedAt = time.Now()
	if err := db.CreateClip(clip); err != nil {
		t.Fatalf("CreateClip: %v", err)
	}
}

func findClip(clips []ScheduledClip, clipID string) *ScheduledClip {
	for i := range clips {
		if clips[i].ClipID == clipID {
			return &clips[i]
		}
	}
	return nil
}

func TestPlaySchedulesWholeTimelineAsBatch(t *testing.T) {
	sched, sink, db, store := newTestScheduler(t)
	seedTrack(t, db, models.Track{ID: "t1", BookID: "book-1", Name: "Narration", Type: models.TrackNarration, GainDB: -6})
	seedToneAsset(t, db, store, "asset-1", 10000)
	seedClip(t, db, models.Clip{ID: "c1", TrackID: "t1", AssetID: "asset-1", PositionMs: 0, TrimStartMs: 0, TrimEndMs: 2000, GainDB: -6})
	seedClip(t, db, models.Clip{ID: "c2", TrackID: "t1", AssetID: "asset-1", PositionMs: 3000, TrimStartMs: 500, TrimEndMs: 2500})

	if err := sched.Play("book-1", 0); err != nil {
		t.Fatalf("Play: %v", err)
	}
	epoch, clips, _ := sink.snapshot()
	if len(clips) != 2 {
		t.Fatalf("scheduled %d clips, want 2", len(clips))
	}

	c1 := findClip(clips, "c1")
	c2 := findClip(clips, "c2")
	if c1 == nil || c2 == nil {
		t.Fatal("expected both clips in the schedule")
	}

	// Track and clip gain in dB compose into one linear amplitude.
	wantAmp := math.Pow(10, -12.0/20)
	if math.Abs(c1.Amplitude-wantAmp) > 1e-9 {
		t.Errorf("c1 amplitude = %v, want %v", c1.Amplitude, wantAmp)
	}

	if !c1.StartAt.Equal(epoch) {
		t.Errorf("c1 starts %v after epoch, want immediately", c1.StartAt.Sub(epoch))
	}
	if gap := c2.StartAt.Sub(c1.StartAt); gap != 3*time.Second {
		t.Errorf("relative clip spacing = %v, want 3s", gap)
	}
	if c2.AssetOffsetMs != 500 {
		t.Errorf("c2 asset offset = %d, want its trim start 500", c2.AssetOffsetMs)
	}

	state := sched.state.GetState()
	if !state.IsPlaying || state.BookID != "book-1" {
		t.Errorf("state = %+v, want playing book-1", state)
	}
	if state.TimelineEndMs != 5000 {
		t.Errorf("timeline end = %d, want 5000", state.TimelineEndMs)
	}
}

func TestPlayMidClipOffsetsIntoAsset(t *testing.T) {
	sched, sink, db, store := newTestScheduler(t)
	seedTrack(t, db, models.Track{ID: "t1", BookID: "book-1", Name: "Narration", Type: models.TrackNarration})
	seedToneAsset(t, db, store, "asset-1", 10000)
	seedClip(t, db, models.Clip{ID: "c1", TrackID: "t1", AssetID: "asset-1", PositionMs: 0, TrimStartMs: 200, TrimEndMs: 5200})

	if err := sched.Play("book-1", 1500); err != nil {
		t.Fatalf("Play: %v", err)
	}
	epoch, clips, _ := sink.snapshot()
	c1 := findClip(clips, "c1")
	if c1 == nil {
		t.Fatal("clip missing from schedule")
	}
	if !c1.StartAt.Equal(epoch) {
		t.Error("a clip already under the playhead must start at the epoch")
	}
	// 1500 ms into the timeline is trim start plus the skipped span.
	if c1.AssetOffsetMs != 1700 {
		t.Errorf("asset offset = %d, want 1700", c1.AssetOffsetMs)
	}
	if c1.DurationMs != 3500 {
		t.Errorf("remaining duration = %d, want 3500", c1.DurationMs)
	}
}

func TestSoloOverridesMute(t *testing.T) {
	sched, sink, db, store := newTestScheduler(t)
	seedToneAsset(t, db, store, "asset-1", 10000)
	seedTrack(t, db, models.Track{ID: "plain", BookID: "book-1", Name: "Plain", Type: models.TrackNarration})
	seedTrack(t, db, models.Track{ID: "soloed", BookID: "book-1", Name: "Solo", Type: models.TrackMusic, Solo: true})
	seedTrack(t, db, models.Track{ID: "muted", BookID: "book-1", Name: "Muted", Type: models.TrackSFX, Muted: true})
	seedClip(t, db, models.Clip{ID: "on-plain", TrackID: "plain", AssetID: "asset-1", PositionMs: 0, TrimEndMs: 1000})
	seedClip(t, db, models.Clip{ID: "on-solo", TrackID: "soloed", AssetID: "asset-1", PositionMs: 0, TrimEndMs: 1000})
	seedClip(t, db, models.Clip{ID: "on-muted", TrackID: "muted", AssetID: "asset-1", PositionMs: 0, TrimEndMs: 1000})

	if err := sched.Play("book-1", 0); err != nil {
		t.Fatalf("Play: %v", err)
	}
	_, clips, _ := sink.snapshot()
	if len(clips) != 1 || clips[0].ClipID != "on-solo" {
		ids := make([]string, len(clips))
		for i, c := range clips {
			ids[i] = c.ClipID
		}
		t.Errorf("scheduled %v, want only on-solo when a track is soloed", ids)
	}
}

func TestUndecodableClipIsSkipped(t *testing.T) {
	sched, sink, db, store := newTestScheduler(t)
	seedTrack(t, db, models.Track{ID: "t1", BookID: "book-1", Name: "Narration", Type: models.TrackNarration})
	seedToneAsset(t, db, store, "asset-1", 10000)
	// This asset has a row but no bytes on disk.
	if err := db.CreateAsset(models.AudioAsset{
		ID: "ghost", Name: "Ghost", Source: models.AssetImported,
		Format: "wav", DurationMs: 1000, CreatedAt: time.Now(),
	}); err != nil {
		t.Fatalf("CreateAsset: %v", err)
	}
	seedClip(t, db, models.Clip{ID: "good", TrackID: "t1", AssetID: "asset-1", PositionMs: 0, TrimEndMs: 1000})
	seedClip(t, db, models.Clip{ID: "bad", TrackID: "t1", AssetID: "ghost", PositionMs: 2000, TrimEndMs: 1000})

	if err := sched.Play("book-1", 0); err != nil {
		t.Fatalf("Play must survive an undecodable clip: %v", err)
	}
	_, clips, _ := sink.snapshot()
	if len(clips) != 1 || clips[0].ClipID != "good" {
		t.Errorf("scheduled %d clips, want just the decodable one", len(clips))
	}
}

func TestPauseKeepsPlayhead(t *testing.T) {
	sched, sink, db, store := newTestScheduler(t)
	seedTrack(t, db, models.Track{ID: "t1", BookID: "book-1", Name: "Narration", Type: models.TrackNarration})
	seedToneAsset(t, db, store, "asset-1", 10000)
	seedClip(t, db, models.Clip{ID: "c1", TrackID: "t1", AssetID: "asset-1", PositionMs: 0, TrimEndMs: 10000})

	if err := sched.Play("book-1", 2000); err != nil {
		t.Fatalf("Play: %v", err)
	}
	sched.Pause()

	_, _, stops := sink.snapshot()
	if stops != 1 {
		t.Errorf("sink stopped %d times, want 1", stops)
	}
	state := sched.state.GetState()
	if state.IsPlaying {
		t.Error("paused state must not report playing")
	}
	if state.PositionMs < 2000 || state.BookID != "book-1" {
		t.Errorf("paused state = %+v, want position held at or past 2000 for book-1", state)
	}
	if sched.IsPlaying() {
		t.Error("scheduler must have no active session after pause")
	}
}

func TestPlayTwiceReplacesSession(t *testing.T) {
	sched, sink, db, store := newTestScheduler(t)
	seedTrack(t, db, models.Track{ID: "t1", BookID: "book-1", Name: "Narration", Type: models.TrackNarration})
	seedToneAsset(t, db, store, "asset-1", 10000)
	seedClip(t, db, models.Clip{ID: "c1", TrackID: "t1", AssetID: "asset-1", PositionMs: 0, TrimEndMs: 10000})

	if err := sched.Play("book-1", 0); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if err := sched.Play("book-1", 5000); err != nil {
		t.Fatalf("second Play: %v", err)
	}
	_, _, stops := sink.snapshot()
	if stops != 1 {
		t.Errorf("sink stopped %d times, want exactly 1 for the replaced session", stops)
	}

	sched.Stop()
	sched.Stop() // no active session; must be a no-op
	_, _, stops = sink.snapshot()
	if stops != 2 {
		t.Errorf("sink stopped %d times, want 2", stops)
	}
	if state := sched.state.GetState(); state.BookID != "" || state.IsPlaying {
		t.Errorf("state after stop = %+v, want cleared", state)
	}
}

func TestSeekWhileStoppedOnlyMovesPlayhead(t *testing.T) {
	sched, sink, _, _ := newTestScheduler(t)

	if err := sched.Seek(4000); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if sched.IsPlaying() {
		t.Error("seek without a session must not start playback")
	}
	if _, clips, _ := sink.snapshot(); len(clips) != 0 {
		t.Error("seek without a session must not schedule anything")
	}
	if pos := sched.state.GetState().PositionMs; pos != 4000 {
		t.Errorf("position = %d, want 4000", pos)
	}
}

func TestPlayheadAutoStopsAtTimelineEnd(t *testing.T) {
	sched, _, db, store := newTestScheduler(t)
	seedTrack(t, db, models.Track{ID: "t1", BookID: "book-1", Name: "Narration", Type: models.TrackNarration})
	seedToneAsset(t, db, store, "asset-1", 1000)
	seedClip(t, db, models.Clip{ID: "c1", TrackID: "t1", AssetID: "asset-1", PositionMs: 0, TrimEndMs: 200})

	if err := sched.Play("book-1", 0); err != nil {
		t.Fatalf("Play: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if !sched.IsPlaying() {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if sched.IsPlaying() {
		t.Fatal("playback did not stop at the timeline end")
	}
	state := sched.state.GetState()
	if state.IsPlaying {
		t.Error("state still reports playing after auto-stop")
	}
	if state.PositionMs != 200 {
		t.Errorf("final position = %d, want the timeline end 200", state.PositionMs)
	}
}
