package playback

import (
	"sync"
	"time"
)

// State represents the current playback state of the timeline
type State struct {
	BookID        string    `json:"bookId,omitempty"`
	IsPlaying     bool      `json:"isPlaying"`
	PositionMs    int64     `json:"positionMs"`    // observational playhead
	TimelineEndMs int64     `json:"timelineEndMs"` // end of the last scheduled clip
	UpdatedAt     time.Time `json:"updatedAt"`
}

// StateManager manages the playback state and notifies listeners
type StateManager struct {
	state     *State
	mutex     sync.RWMutex
	listeners []chan *State
}

// NewStateManager creates a new playback state manager
func NewStateManager() *StateManager {
	return &StateManager{
		state:     &State{UpdatedAt: time.Now()},
		listeners: make([]chan *State, 0),
	}
}

// GetState returns the current playback state (thread-safe)
func (sm *StateManager) GetState() *State {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()

	// Create a copy to avoid race conditions
	stateCopy := *sm.state
	return &stateCopy
}

// UpdateSession records a new playback session starting at positionMs
func (sm *StateManager) UpdateSession(bookID string, positionMs, timelineEndMs int64) {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	sm.state.BookID = bookID
	sm.state.IsPlaying = true
	sm.state.PositionMs = positionMs
	sm.state.TimelineEndMs = timelineEndMs
	sm.state.UpdatedAt = time.Now()
	sm.notifyListeners()
}

// UpdatePosition advances the observational playhead
func (sm *StateManager) UpdatePosition(positionMs int64) {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	sm.state.PositionMs = positionMs
	sm.state.UpdatedAt = time.Now()
	sm.notifyListeners()
}

// UpdatePlaybackState updates playback state (playing/paused)
func (sm *StateManager) UpdatePlaybackState(isPlaying bool) {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	sm.state.IsPlaying = isPlaying
	sm.state.UpdatedAt = time.Now()
	sm.notifyListeners()
}

// ClearSession resets the state when playback stops
func (sm *StateManager) ClearSession() {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	sm.state.BookID = ""
	sm.state.IsPlaying = false
	sm.state.PositionMs = 0
	sm.state.TimelineEndMs = 0
	sm.state.UpdatedAt = time.Now()
	sm.notifyListeners()
}

// Subscribe adds a listener for state changes
func (sm *StateManager) Subscribe() <-chan *State {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	ch := make(chan *State, 10) // Buffered channel to prevent blocking
	sm.listeners = append(sm.listeners, ch)
	return ch
}

// Unsubscribe removes a listener (call this when done to prevent memory leaks)
func (sm *StateManager) Unsubscribe(ch <-chan *State) {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	for i, listener := range sm.listeners {
		if listener == ch {
			close(listener)
			sm.listeners = append(sm.listeners[:i], sm.listeners[i+1:]...)
			break
		}
	}
}

// notifyListeners sends state updates to all subscribers (must be called with lock held)
func (sm *StateManager) notifyListeners() {
	stateCopy := *sm.state
	for i, listener := range sm.listeners {
		select {
		case listener <- &stateCopy:
			// Successfully sent
		default:
			// Channel is full or closed, remove it
			close(listener)
			sm.listeners = append(sm.listeners[:i], sm.listeners[i+1:]...)
		}
	}
}
