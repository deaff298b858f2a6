// Package presence tracks activity on hosted search sessions.
//
// The session server calls Touch whenever a client acts on a session
// (navigation, intents, list changes, stream reads). A background reaper
// sweeps the tracker and hands idle sessions to OnIdle, which tears them
// down, so pipelines of abandoned pages do not pile up.
package presence

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Entry is a snapshot of one session's activity.
type Entry struct {
	SessionID   string    `json:"session_id"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
	LastAction  string    `json:"last_action"` // e.g. "navigate", "intent", "stream"
	ActionCount int64     `json:"action_count"`
	IdleSecs    float64   `json:"idle_secs"`
	AgeSecs     float64   `json:"age_secs"`
	Watchers    int       `json:"watchers"` // open event streams
}

// ReaperConfig configures the background idle-session reaper.
type ReaperConfig struct {
	// IdleThreshold is how long a session may go without activity (and
	// without watchers) before it is reaped. Default: 15 minutes.
	IdleThreshold time.Duration

	// SweepInterval is how often the reaper scans. Default: 60 seconds.
	SweepInterval time.Duration

	// OnIdle is called for each reaped session, outside the lock.
	OnIdle func(sessionID string)
}

// Tracker maintains an in-memory map of session activity.
type Tracker struct {
	mu       sync.RWMutex
	sessions map[string]*sessionState
	now      func() time.Time
	logger   *slog.Logger

	reaperStop chan struct{}
	reaperDone chan struct{}
}

type sessionState struct {
	firstSeen   time.Time
	lastSeen    time.Time
	lastAction  string
	actionCount int64
	watchers    int
}

// New creates an empty tracker.
func New() *Tracker {
	return &Tracker{
		sessions: make(map[string]*sessionState),
		now:      time.Now,
		logger:   slog.Default(),
	}
}

// SetLogger replaces the tracker's logger.
func (t *Tracker) SetLogger(l *slog.Logger) {
	if l != nil {
		t.logger = l
	}
}

// Touch records activity on a session, registering it on first sight.
func (t *Tracker) Touch(sessionID, action string) {
	if sessionID == "" {
		return
	}
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.sessions[sessionID]
	if !ok {
		state = &sessionState{firstSeen: now}
		t.sessions[sessionID] = state
	}
	state.lastSeen = now
	state.lastAction = action
	state.actionCount++
}

// Watch marks an open event stream on the session. Watched sessions are
// never reaped. The returned function ends the watch.
func (t *Tracker) Watch(sessionID string) func() {
	t.Touch(sessionID, "stream")
	t.mu.Lock()
	if s, ok := t.sessions[sessionID]; ok {
		s.watchers++
	}
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			now := t.now()
			t.mu.Lock()
			defer t.mu.Unlock()
			if s, ok := t.sessions[sessionID]; ok {
				s.watchers--
				s.lastSeen = now
			}
		})
	}
}

// Remove forgets a session.
func (t *Tracker) Remove(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, sessionID)
}

// Len returns the number of tracked sessions.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}

// Roster returns a snapshot of all tracked sessions, most recently active
// first. Sessions idle for longer than staleThreshold are excluded; pass 0
// to include all of them.
func (t *Tracker) Roster(staleThreshold time.Duration) []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	now := t.now()
	entries := make([]Entry, 0, len(t.sessions))
	for id, s := range t.sessions {
		idle := now.Sub(s.lastSeen)
		if staleThreshold > 0 && idle > staleThreshold {
			continue
		}
		entries = append(entries, Entry{
			SessionID:   id,
			FirstSeen:   s.firstSeen,
			LastSeen:    s.lastSeen,
			LastAction:  s.lastAction,
			ActionCount: s.actionCount,
			IdleSecs:    idle.Seconds(),
			AgeSecs:     now.Sub(s.firstSeen).Seconds(),
			Watchers:    s.watchers,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].LastSeen.Equal(entries[j].LastSeen) {
			return entries[i].SessionID < entries[j].SessionID
		}
		return entries[i].LastSeen.After(entries[j].LastSeen)
	})
	return entries
}

// StartReaper launches a background goroutine that periodically reaps
// idle sessions. Call Stop() to shut it down.
func (t *Tracker) StartReaper(cfg *ReaperConfig) {
	if cfg == nil {
		cfg = &ReaperConfig{}
	}
	if cfg.IdleThreshold == 0 {
		cfg.IdleThreshold = 15 * time.Minute
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = 60 * time.Second
	}

	t.reaperStop = make(chan struct{})
	t.reaperDone = make(chan struct{})

	go t.reapLoop(cfg)
	t.logger.Info("presence: reaper started",
		"idle_threshold", cfg.IdleThreshold,
		"sweep_interval", cfg.SweepInterval)
}

// Stop shuts down the reaper goroutine.
func (t *Tracker) Stop() {
	if t.reaperStop != nil {
		close(t.reaperStop)
		<-t.reaperDone
		t.reaperStop = nil
		t.reaperDone = nil
	}
}

func (t *Tracker) reapLoop(cfg *ReaperConfig) {
	defer close(t.reaperDone)

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.reaperStop:
			return
		case <-ticker.C:
			t.Sweep(cfg)
		}
	}
}

// Sweep reaps every session idle for longer than cfg.IdleThreshold and
// returns their ids.
func (t *Tracker) Sweep(cfg *ReaperConfig) []string {
	now := t.now()
	var reaped []string

	t.mu.Lock()
	for id, s := range t.sessions {
		if s.watchers > 0 {
			continue
		}
		if now.Sub(s.lastSeen) > cfg.IdleThreshold {
			delete(t.sessions, id)
			reaped = append(reaped, id)
		}
	}
	t.mu.Unlock()

	sort.Strings(reaped)
	for _, id := range reaped {
		t.logger.Info("presence: reaped idle session",
			"session_id", id,
			"threshold", cfg.IdleThreshold)
		if cfg.OnIdle != nil {
			cfg.OnIdle(id)
		}
	}
	return reaped
}
