package wizard

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"crystalsetup/internal/auth"
	"crystalsetup/internal/installer"
	"crystalsetup/internal/logging"
)

// Messages shown by the account check.
const (
	PasswordMismatchMessage = "Passwords aren't the same!"
	MissingStateMessage     = "Something went wrong! Try again later. ('state' is None)"
	BadCharactersMessage    = "You can't use those characters"
)

// ErrNotChecked is returned by Finish before a successful account check.
var ErrNotChecked = errors.New("press Check before finishing")

// CheckError is a user-facing account check failure. The wizard state is
// unchanged when it is returned.
type CheckError struct {
	Message string
}

func (e *CheckError) Error() string { return e.Message }

// AccountService is the subset of the account client the wizard needs.
type AccountService interface {
	Query(ctx context.Context, tmpl, username, password string) (*auth.Response, error)
	LookupUsername(ctx context.Context, baseURL, name string) (string, error)
}

// State is everything collected by the pages.
type State struct {
	SaveFolder    string
	ProjectFolder string

	DesktopShortcut bool
	AddonDiscord    bool
	AddonGame2D     bool

	Mode           auth.Mode
	Username       string
	Password       string
	RepeatPassword string

	// Checked is set by a successful account check and locks Mode.
	Checked bool

	GOOS string
}

// DesktopShortcutAvailable reports whether the shortcut option can be toggled.
func (s State) DesktopShortcutAvailable() bool {
	return s.GOOS == "windows"
}

// PageView is what a display needs to draw one page.
type PageView struct {
	Index int
	Page  Page
	// Fields lists visible fields; FieldRepeatPassword only appears on the register tab.
	Fields      []Field
	NextLabel   string
	NextEnabled bool
	BackEnabled bool

	DesktopShortcutEnabled bool
	TabsEnabled            bool
	CheckEnabled           bool
}

// IsLast reports whether this is the final page.
func (v PageView) IsLast() bool {
	return v.Index == len(Pages)-1
}

// View renders page index for state s.
func View(index int, s State) PageView {
	if index < 0 {
		index = 0
	}
	if index >= len(Pages) {
		index = len(Pages) - 1
	}
	page := Pages[index]

	fields := make([]Field, 0, len(page.Fields))
	for _, f := range page.Fields {
		if f == FieldRepeatPassword && s.Mode != auth.ModeRegister {
			continue
		}
		fields = append(fields, f)
	}

	last := index == len(Pages)-1
	v := PageView{
		Index:                  index,
		Page:                   page,
		Fields:                 fields,
		NextLabel:              "Next",
		NextEnabled:            true,
		BackEnabled:            index > 0,
		DesktopShortcutEnabled: s.DesktopShortcutAvailable(),
		TabsEnabled:            !s.Checked,
		CheckEnabled:           !s.Checked,
	}
	if last {
		v.NextLabel = "Finish"
		v.NextEnabled = s.Checked
	}
	return v
}

// Endpoints are the account URLs used by the wizard.
type Endpoints struct {
	CheckURL string
	LoginURL string
	UserURL  string
}

// Wizard holds the page cursor and collected state.
type Wizard struct {
	State     State
	index     int
	endpoints Endpoints
	accounts  AccountService
}

// New starts the wizard on the welcome page.
func New(state State, endpoints Endpoints, accounts AccountService) *Wizard {
	return &Wizard{State: state, endpoints: endpoints, accounts: accounts}
}

// Index returns the current page index.
func (w *Wizard) Index() int {
	return w.index
}

// Current renders the current page.
func (w *Wizard) Current() PageView {
	return View(w.index, w.State)
}

// Next advances the cursor. It reports true when Finish was pressed on the
// last page; the cursor then stays where it is.
func (w *Wizard) Next() bool {
	v := w.Current()
	if !v.NextEnabled {
		return false
	}
	if v.IsLast() {
		return true
	}
	w.index++
	return false
}

// Back moves to the previous page.
func (w *Wizard) Back() {
	if w.Current().BackEnabled {
		w.index--
	}
}

// SetMode switches between the register and login tabs until checked.
func (w *Wizard) SetMode(mode auth.Mode) {
	if w.State.Checked {
		return
	}
	w.State.Mode = mode
}

// Check validates the account fields against the service. On success the
// mode is locked and Finish becomes available.
func (w *Wizard) Check(ctx context.Context) error {
	if w.State.Checked {
		return nil
	}

	tmpl := w.endpoints.LoginURL
	if w.State.Mode == auth.ModeRegister {
		if w.State.Password != w.State.RepeatPassword {
			return &CheckError{Message: PasswordMismatchMessage}
		}
		tmpl = w.endpoints.CheckURL
	}

	resp, err := w.accounts.Query(ctx, tmpl, w.State.Username, w.State.Password)
	if err != nil {
		logging.Warning("Account check failed: %v", err)
		return &CheckError{Message: BadCharactersMessage}
	}
	logging.Debug("Received answer from server: state=%q reason=%q", resp.State, resp.Reason)

	switch {
	case resp.State == "":
		return &CheckError{Message: MissingStateMessage}
	case resp.State == auth.StateError:
		if resp.Reason == "" {
			return &CheckError{Message: BadCharactersMessage}
		}
		return &CheckError{Message: resp.Reason}
	}

	w.State.Checked = true
	return nil
}

// Finish resolves the canonical username and builds the install config on
// top of base, which carries the non-interactive settings.
func (w *Wizard) Finish(ctx context.Context, base installer.InstallConfig) (installer.InstallConfig, error) {
	if !w.State.Checked {
		return installer.InstallConfig{}, ErrNotChecked
	}

	username, err := w.accounts.LookupUsername(ctx, w.endpoints.UserURL, w.State.Username)
	if err != nil {
		return installer.InstallConfig{}, fmt.Errorf("look up username: %w", err)
	}

	ic := base
	ic.CreateAccount = w.State.Mode == auth.ModeRegister
	ic.SaveFolder = strings.TrimSpace(w.State.SaveFolder)
	ic.ProjectsFolder = strings.TrimSpace(w.State.ProjectFolder)
	ic.Username = username
	ic.Password = w.State.Password
	ic.Options = w.State.Options()
	return ic, nil
}

// Options returns the install options selected on the options page.
func (s State) Options() installer.Options {
	opts := installer.Options{
		DesktopShortcut: s.DesktopShortcut && s.DesktopShortcutAvailable(),
		Addons:          []string{},
	}
	if s.AddonDiscord {
		opts.Addons = append(opts.Addons, installer.AddonDiscord)
	}
	if s.AddonGame2D {
		opts.Addons = append(opts.Addons, installer.AddonGame2D)
	}
	return opts
}

// InitialState seeds the pages from the default install config.
func InitialState(base installer.InstallConfig, goos string) State {
	return State{
		SaveFolder:    base.SaveFolder,
		ProjectFolder: base.ProjectsFolder,
		AddonDiscord:  true,
		AddonGame2D:   true,
		Mode:          auth.ModeRegister,
		GOOS:          goos,
	}
}
