package playback

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/siwaht/bookx/internal/assets"
	"github.com/siwaht/bookx/internal/config"
	"github.com/siwaht/bookx/internal/database"
	"github.com/siwaht/bookx/pkg/models"
)

// ScheduledClip is one clip resolved into an absolute playback plan. All
// times are instants relative to the session epoch, so overlapping clips on
// different tracks keep exact relative timing no matter when the sink picks
// them up.
type ScheduledClip struct {
	ClipID        string
	AssetID       string
	Buffer        *assets.Buffer
	StartAt       time.Time // absolute instant the clip starts sounding
	AssetOffsetMs int64     // offset into the asset at StartAt
	DurationMs    int64     // remaining audible timeline duration from StartAt
	Amplitude     float64   // linear gain, 10^((trackDb+clipDb)/20)
	Pan           float64
	Rate          float64   // playback-rate multiplier
	FadeInEndAt   time.Time // fade-in ramp runs from the clip's nominal start to here
	FadeOutFromAt time.Time // fade-out ramp runs from here to the clip's nominal end
}

// Sink receives the scheduled plan. The real audio device lives behind this
// interface; tests and headless deployments use NopSink.
type Sink interface {
	// Schedule hands the sink the complete plan for one session. The sink
	// owns the clips until Stop is called.
	Schedule(epoch time.Time, clips []ScheduledClip) error
	// Stop tears down the current plan. Must be safe to call when nothing
	// is scheduled.
	Stop()
}

// NopSink discards the schedule. Playback position still advances through
// the observer loop, so the control surface behaves normally without a
// device attached.
type NopSink struct{}

func (NopSink) Schedule(time.Time, []ScheduledClip) error { return nil }
func (NopSink) Stop()                                     {}

type session struct {
	bookID        string
	epoch         time.Time
	startOffsetMs int64
	timelineEndMs int64
	done          chan struct{}
	stopOnce      sync.Once
}

// Scheduler converts the current timeline into a clock-based playback plan.
// The whole graph is scheduled as a single batch when playback begins;
// nothing polls "what should be playing now" per frame.
type Scheduler struct {
	db     *database.Database
	cache  *assets.BufferCache
	sink   Sink
	state  *StateManager
	logger *logrus.Logger
	tick   time.Duration

	mu      sync.Mutex
	current *session
}

// NewScheduler creates a playback scheduler writing its plan to sink.
func NewScheduler(db *database.Database, cache *assets.BufferCache, sink Sink, state *StateManager, cfg config.PlaybackConfig, logger *logrus.Logger) *Scheduler {
	tick := time.Duration(cfg.TickIntervalMs) * time.Millisecond
	if tick <= 0 {
		tick = 50 * time.Millisecond
	}
	return &Scheduler{
		db:     db,
		cache:  cache,
		sink:   sink,
		state:  state,
		logger: logger,
		tick:   tick,
	}
}

// Play starts playback of a book's timeline from startOffsetMs. An active
// session is torn down first, so calling Play twice behaves like a seek.
func (s *Scheduler) Play(bookID string, startOffsetMs int64) error {
	if startOffsetMs < 0 {
		startOffsetMs = 0
	}

	tracks, err := s.db.ListTracks(bookID)
	if err != nil {
		return fmt.Errorf("failed to load timeline: %w", err)
	}

	plan, timelineEnd := s.buildPlan(tracks, startOffsetMs)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardownLocked()

	// The epoch is fixed only after every buffer is decoded, so decode
	// latency cannot skew relative start times.
	epoch := time.Now()
	for i := range plan {
		plan[i].StartAt = epoch.Add(plan[i].StartAt.Sub(time.Time{}))
		plan[i].FadeInEndAt = epoch.Add(plan[i].FadeInEndAt.Sub(time.Time{}))
		plan[i].FadeOutFromAt = epoch.Add(plan[i].FadeOutFromAt.Sub(time.Time{}))
	}

	if err := s.sink.Schedule(epoch, plan); err != nil {
		return fmt.Errorf("failed to schedule playback: %w", err)
	}

	sess := &session{
		bookID:        bookID,
		epoch:         epoch,
		startOffsetMs: startOffsetMs,
		timelineEndMs: timelineEnd,
		done:          make(chan struct{}),
	}
	s.current = sess
	s.state.UpdateSession(bookID, startOffsetMs, timelineEnd)

	go s.observePlayhead(sess)

	s.logger.WithFields(logrus.Fields{
		"book_id": bookID,
		"offset":  startOffsetMs,
		"clips":   len(plan),
	}).Info("Playback started")
	return nil
}

// buildPlan resolves every audible clip intersecting [startOffsetMs, inf)
// into a ScheduledClip. Returned StartAt values are offsets from the zero
// time; Play rebases them onto the real epoch after teardown.
func (s *Scheduler) buildPlan(tracks []models.TrackWithClips, startOffsetMs int64) ([]ScheduledClip, int64) {
	anySolo := false
	for _, tr := range tracks {
		if tr.Solo {
			anySolo = true
			break
		}
	}

	var plan []ScheduledClip
	var timelineEnd int64
	for _, tr := range tracks {
		for _, clip := range tr.Clips {
			if clip.EndMs() > timelineEnd {
				timelineEnd = clip.EndMs()
			}
		}
		if tr.Muted || (anySolo && !tr.Solo) {
			continue
		}
		for _, clip := range tr.Clips {
			if clip.EndMs() <= startOffsetMs {
				continue
			}
			sc, err := s.scheduleClip(&tr.Track, &clip, startOffsetMs)
			if err != nil {
				// A clip whose asset cannot be decoded is excluded
				// from the session rather than failing playback.
				s.logger.WithError(err).WithField("clip_id", clip.ID).Warn("Skipping unplayable clip")
				continue
			}
			plan = append(plan, *sc)
		}
	}
	return plan, timelineEnd
}

func (s *Scheduler) scheduleClip(track *models.Track, clip *models.Clip, startOffsetMs int64) (*ScheduledClip, error) {
	buf, err := s.cache.Get(clip.AssetID)
	if err != nil {
		return nil, fmt.Errorf("failed to decode asset %s: %w", clip.AssetID, err)
	}

	rate := clip.Speed
	if rate <= 0 {
		rate = 1.0
	}

	// skipMs is how far into the clip playback begins; zero when the clip
	// starts at or after the session offset.
	var skipMs, delayMs int64
	if clip.PositionMs >= startOffsetMs {
		delayMs = clip.PositionMs - startOffsetMs
	} else {
		skipMs = startOffsetMs - clip.PositionMs
	}

	// Timeline milliseconds map onto asset milliseconds through the rate.
	assetOffset := clip.TrimStartMs + int64(float64(skipMs)*rate)

	zero := time.Time{}
	sc := &ScheduledClip{
		ClipID:        clip.ID,
		AssetID:       clip.AssetID,
		Buffer:        buf,
		StartAt:       zero.Add(time.Duration(delayMs) * time.Millisecond),
		AssetOffsetMs: assetOffset,
		DurationMs:    clip.DurationMs() - skipMs,
		Amplitude:     math.Pow(10, (track.GainDB+clip.GainDB)/20),
		Pan:           track.Pan,
		Rate:          rate,
	}

	// Fade ramps anchor to the clip's nominal start and end on the
	// absolute schedule, so a mid-clip seek lands in the right spot on
	// the ramp instead of restarting it.
	nominalStartMs := clip.PositionMs - startOffsetMs
	nominalEndMs := clip.EndMs() - startOffsetMs
	sc.FadeInEndAt = zero.Add(time.Duration(nominalStartMs+clip.FadeInMs) * time.Millisecond)
	sc.FadeOutFromAt = zero.Add(time.Duration(nominalEndMs-clip.FadeOutMs) * time.Millisecond)
	return sc, nil
}

// Pause tears down the schedule but keeps the playhead where it stopped, so
// a following Play resumes from the same spot.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	sess := s.current
	s.teardownLocked()
	s.mu.Unlock()

	if sess == nil {
		return
	}
	pos := sess.startOffsetMs + time.Since(sess.epoch).Milliseconds()
	if pos > sess.timelineEndMs {
		pos = sess.timelineEndMs
	}
	s.state.UpdatePlaybackState(false)
	s.state.UpdatePosition(pos)
}

// Seek moves the playhead. While playing this is a full stop-and-reschedule
// from the new offset; there is no scrub-without-restart mode.
func (s *Scheduler) Seek(positionMs int64) error {
	if positionMs < 0 {
		positionMs = 0
	}
	s.mu.Lock()
	sess := s.current
	s.mu.Unlock()

	if sess != nil {
		return s.Play(sess.bookID, positionMs)
	}
	s.state.UpdatePosition(positionMs)
	return nil
}

// Stop tears down any active session and resets the playhead.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.teardownLocked()
	s.mu.Unlock()
	s.state.ClearSession()
}

// IsPlaying reports whether a session is active.
func (s *Scheduler) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

// teardownLocked stops the active session. Idempotent; caller holds s.mu.
func (s *Scheduler) teardownLocked() {
	if s.current == nil {
		return
	}
	sess := s.current
	s.current = nil
	sess.stopOnce.Do(func() {
		close(sess.done)
		s.sink.Stop()
	})
}

// observePlayhead advances the observational playhead once per tick. It
// reads elapsed wall time since the epoch; it never drives the audio
// schedule itself.
func (s *Scheduler) observePlayhead(sess *session) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-sess.done:
			return
		case <-ticker.C:
			pos := sess.startOffsetMs + time.Since(sess.epoch).Milliseconds()
			if pos >= sess.timelineEndMs {
				s.mu.Lock()
				// Only stop if this session is still the active one.
				if s.current == sess {
					s.teardownLocked()
					s.mu.Unlock()
					s.state.UpdatePlaybackState(false)
					s.state.UpdatePosition(sess.timelineEndMs)
				} else {
					s.mu.Unlock()
				}
				return
			}
			s.state.UpdatePosition(pos)
		}
	}
}
