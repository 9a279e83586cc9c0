// Package progress defines install milestones and the events a run streams to its display.
package progress

import (
	"time"

	"crystalsetup/internal/logging"
)

// EventType distinguishes ordinary progress from terminal events.
type EventType string

const (
	EventProgress EventType = "progress"
	EventError    EventType = "error"
	EventDone     EventType = "done"
)

// Error codes carried by EventError.
const (
	CodeAuthFailed      = "auth_failed"
	CodeSecretsFailed   = "secrets_failed"
	CodeTransportFailed = "transport_failed"
	CodeExtractFailed   = "extract_failed"
	CodeManifestInvalid = "manifest_invalid"
	CodePlacementFailed = "placement_failed"
	CodeCancelled       = "cancelled"
)

// Event is one message from the install worker to the display.
type Event struct {
	Type    EventType `json:"type"`
	Step    Step      `json:"step,omitempty"`
	Message string    `json:"message,omitempty"`
	Code    string    `json:"code,omitempty"`
	Percent int       `json:"percent"`
}

// Terminal reports whether no further events follow.
func (e Event) Terminal() bool {
	return e.Type == EventDone || e.Type == EventError
}

// Step names a milestone.
type Step string

const (
	StepAuthenticate Step = "authenticate"
	StepPrepare      Step = "prepare"
	StepDownload     Step = "download"
	StepUnpack       Step = "unpack"
	StepSafeInstall  Step = "safe_install"
	StepLibraries    Step = "libraries"
	StepInstall      Step = "install"
	StepSetup        Step = "setup"
	StepFinish       Step = "finish"
)

// Milestone is a fixed point on the install progress bar.
type Milestone struct {
	Step    Step
	Text    string
	Percent int
}

// FinishedMessage is shown once the run has completed.
const FinishedMessage = "Successfully installed CrystalStudio! Please restart the app."

// Milestones returns the ordered milestones of one run. Only the first
// text depends on whether an account is being created.
func Milestones(createAccount bool) []Milestone {
	auth := Milestone{Step: StepAuthenticate, Text: "Logging in CrystalStudio account", Percent: 10}
	if createAccount {
		auth.Text = "Installing: Registering CrystalStudio account"
	}
	return []Milestone{
		auth,
		{Step: StepPrepare, Text: "Installing: Preparing download", Percent: 20},
		{Step: StepDownload, Text: "Installing: Downloading latest release...", Percent: 40},
		{Step: StepUnpack, Text: "Installing: Unpacking latest release...", Percent: 50},
		{Step: StepSafeInstall, Text: "Installing: Setting up safe installation...", Percent: 60},
		{Step: StepLibraries, Text: "Installing: Installing libraries...", Percent: 70},
		{Step: StepInstall, Text: "Installing: Installing CrystalStudio...", Percent: 80},
		{Step: StepSetup, Text: "Installing: Setting up CrystalStudio...", Percent: 90},
		{Step: StepFinish, Text: "Finishing...", Percent: 100},
	}
}

// Emitter writes events for a single run. Percentages never go backwards.
type Emitter struct {
	out   chan<- Event
	delay time.Duration
	sleep func(time.Duration)
	last  int
	step  Step
}

// NewEmitter returns an emitter pausing delay after every milestone.
func NewEmitter(out chan<- Event, delay time.Duration) *Emitter {
	return &Emitter{out: out, delay: delay, sleep: time.Sleep}
}

// Milestone announces m and then waits the cosmetic delay.
func (e *Emitter) Milestone(m Milestone) {
	percent := m.Percent
	if percent < e.last {
		logging.Warning("milestone %s regressed from %d%% to %d%%, holding at %d%%", m.Step, e.last, percent, e.last)
		percent = e.last
	}
	if percent > 100 {
		percent = 100
	}
	e.last = percent
	e.step = m.Step

	e.out <- Event{Type: EventProgress, Step: m.Step, Message: m.Text, Percent: percent}
	if e.delay > 0 {
		e.sleep(e.delay)
	}
}

// Fail sends the terminal error event for the current step.
func (e *Emitter) Fail(code, message string) {
	e.out <- Event{Type: EventError, Step: e.step, Code: code, Message: message, Percent: e.last}
}

// Done sends the terminal success event.
func (e *Emitter) Done() {
	e.out <- Event{Type: EventDone, Step: StepFinish, Message: FinishedMessage, Percent: 100}
}

// Percent returns the last emitted percentage.
func (e *Emitter) Percent() int {
	return e.last
}
