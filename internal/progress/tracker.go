package progress

import (
	"strconv"
	"sync"
	"time"
)

// State is the lifecycle of a tracked run.
type State string

const (
	StateRunning  State = "running"
	StateComplete State = "complete"
	StateError    State = "error"
)

// RunProgress is the latest known progress of one install run
type RunProgress struct {
	RunID                  string    `json:"run_id"`
	State                  State     `json:"state"`
	Step                   Step      `json:"step"`
	Percent                int       `json:"percent"`
	Message                string    `json:"message"`
	EstimatedTimeRemaining string    `json:"estimated_time_remaining,omitempty"`
	StartTime              time.Time `json:"start_time"`
	LastUpdate             time.Time `json:"last_update"`
	Error                  string    `json:"error,omitempty"`
}

// Tracker keeps progress for install runs
type Tracker struct {
	mu   sync.RWMutex
	runs map[string]*RunProgress
	now  func() time.Time
}

// NewTracker creates a new progress tracker
func NewTracker() *Tracker {
	return &Tracker{
		runs: make(map[string]*RunProgress),
		now:  time.Now,
	}
}

// Start begins tracking a run
func (t *Tracker) Start(runID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.runs[runID] = &RunProgress{
		RunID:      runID,
		State:      StateRunning,
		StartTime:  now,
		LastUpdate: now,
	}
}

// Apply folds an event into the run's progress
func (t *Tracker) Apply(runID string, ev Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	run, exists := t.runs[runID]
	if !exists {
		run = &RunProgress{RunID: runID, State: StateRunning, StartTime: now}
		t.runs[runID] = run
	}

	run.LastUpdate = now
	if ev.Step != "" {
		run.Step = ev.Step
	}
	if ev.Percent > run.Percent {
		run.Percent = ev.Percent
	}

	switch ev.Type {
	case EventError:
		run.State = StateError
		run.Error = ev.Message
		run.EstimatedTimeRemaining = ""
		return
	case EventDone:
		run.State = StateComplete
		run.Percent = 100
		run.Message = ev.Message
		run.EstimatedTimeRemaining = ""
		return
	}

	run.Message = ev.Message

	// Only estimate after some meaningful progress
	if run.Percent > 5 && run.Percent < 100 {
		elapsed := now.Sub(run.StartTime)
		total := time.Duration(float64(elapsed) * (100.0 / float64(run.Percent)))
		if remaining := total - elapsed; remaining > 0 {
			run.EstimatedTimeRemaining = formatDuration(remaining)
		}
	}
}

// Get returns a copy of the run's progress
func (t *Tracker) Get(runID string) (RunProgress, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	run, exists := t.runs[runID]
	if !exists {
		return RunProgress{}, false
	}
	return *run, true
}

// Remove stops tracking a run
func (t *Tracker) Remove(runID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.runs, runID)
}

// formatDuration formats a duration for display
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return "< 1m"
	}

	minutes := int(d.Minutes())
	if minutes < 60 {
		return strconv.Itoa(minutes) + "m"
	}

	hours := minutes / 60
	remainingMinutes := minutes % 60
	if remainingMinutes == 0 {
		return strconv.Itoa(hours) + "h"
	}
	return strconv.Itoa(hours) + "h " + strconv.Itoa(remainingMinutes) + "m"
}
