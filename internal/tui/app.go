// Package tui is the interactive terminal front end of the setup.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	bprogress "github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"crystalsetup/internal/auth"
	"crystalsetup/internal/config"
	"crystalsetup/internal/installer"
	"crystalsetup/internal/logging"
	"crystalsetup/internal/progress"
	"crystalsetup/internal/systemcheck"
	"crystalsetup/internal/update"
	"crystalsetup/internal/wizard"
)

// Installer starts install runs.
type Installer interface {
	Run(ctx context.Context, ic installer.InstallConfig) (string, <-chan progress.Event)
	Tracker() *progress.Tracker
}

// Checker runs the startup checks.
type Checker interface {
	CheckConnectivity(ctx context.Context) systemcheck.CheckResult
	CheckPlatform(ctx context.Context) systemcheck.CheckResult
}

// VersionChecker reports whether a newer installer exists.
type VersionChecker interface {
	Check(ctx context.Context) (*update.UpdateInfo, error)
}

// Options wires the front end to the rest of the installer.
type Options struct {
	Base      installer.InstallConfig
	Endpoints wizard.Endpoints
	Accounts  wizard.AccountService
	Installer Installer
	Checker   Checker
	Updates   VersionChecker
	DevMode   bool
	GOOS      string
}

// Result describes how the session ended.
type Result struct {
	RunID     string
	Final     progress.Event
	Started   bool
	Installed bool
}

type State int

const (
	StartupState State = iota
	NoticeState
	PageState
	LoadingState
	InstallingState
	QuitState
)

const (
	actionNext  = "next"
	actionBack  = "back"
	actionCheck = "check"
	actionQuit  = "quit"
)

type notice struct {
	title   string
	message string
	fatal   bool
}

type (
	startupMsg struct {
		notices []notice
	}
	checkDoneMsg struct {
		err error
	}
	finishMsg struct {
		ic  installer.InstallConfig
		err error
	}
	eventMsg        progress.Event
	eventsClosedMsg struct{}
)

// pageFields holds the values bound to the current page form.
type pageFields struct {
	saveFolder    string
	projectFolder string
	shortcut      bool
	discord       bool
	game2d        bool
	mode          auth.Mode
	username      string
	password      string
	repeat        string
	action        string
}

func (f *pageFields) load(s wizard.State) {
	f.saveFolder = s.SaveFolder
	f.projectFolder = s.ProjectFolder
	f.shortcut = s.DesktopShortcut
	f.discord = s.AddonDiscord
	f.game2d = s.AddonGame2D
	f.mode = s.Mode
	f.username = s.Username
	f.password = s.Password
	f.repeat = s.RepeatPassword
	f.action = ""
}

func (f *pageFields) store(w *wizard.Wizard) {
	switch w.Current().Page.ID {
	case wizard.PageSaveFolder:
		w.State.SaveFolder = f.saveFolder
	case wizard.PageProjectFolder:
		w.State.ProjectFolder = f.projectFolder
	case wizard.PageOptions:
		w.State.DesktopShortcut = f.shortcut
		w.State.AddonDiscord = f.discord
		w.State.AddonGame2D = f.game2d
	case wizard.PageAccount:
		if w.State.Checked {
			return
		}
		w.SetMode(f.mode)
		w.State.Username = f.username
		w.State.Password = f.password
		w.State.RepeatPassword = f.repeat
	}
}

type model struct {
	ctx  context.Context
	opts Options

	state   State
	resume  State
	wizard  *wizard.Wizard
	form    *huh.Form
	fields  pageFields
	notices []notice

	spinner     spinner.Model
	bar         bprogress.Model
	loadingText string

	events <-chan progress.Event
	last   progress.Event
	result Result
}

func newModel(ctx context.Context, opts Options) *model {
	s := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(crystal)),
	)
	bar := bprogress.New(bprogress.WithDefaultGradient())
	bar.Width = contentWidth

	return &model{
		ctx:     ctx,
		opts:    opts,
		state:   StartupState,
		wizard:  wizard.New(wizard.InitialState(opts.Base, opts.GOOS), opts.Endpoints, opts.Accounts),
		spinner: s,
		bar:     bar,
	}
}

// Run shows the setup until the user quits or the install finishes.
func Run(ctx context.Context, opts Options) (Result, error) {
	if opts.Installer == nil || opts.Accounts == nil || opts.Checker == nil {
		return Result{}, errors.New("installer, accounts and checker are required")
	}

	logging.SetConsole(false)
	defer logging.SetConsole(true)

	m := newModel(ctx, opts)
	if _, err := tea.NewProgram(m, tea.WithContext(ctx)).Run(); err != nil {
		return m.result, fmt.Errorf("run setup screen: %w", err)
	}
	return m.result, nil
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.startupCmd())
}

func (m *model) startupCmd() tea.Cmd {
	return func() tea.Msg {
		var notices []notice
		if m.opts.DevMode {
			notices = append(notices, notice{title: "Warning", message: config.DevModeWarning})
		}

		if res := m.opts.Checker.CheckConnectivity(m.ctx); res.Status == systemcheck.StatusError {
			logging.Warning("Connectivity check failed: %s", res.Details)
			return startupMsg{notices: append(notices, notice{title: "Error", message: res.Message, fatal: true})}
		}

		if m.opts.Updates != nil {
			info, err := m.opts.Updates.Check(m.ctx)
			if err != nil {
				logging.Warning("Version check failed: %v", err)
			} else if msg := info.Message(); msg != "" {
				notices = append(notices, notice{title: "Error", message: msg})
			}
		}

		if res := m.opts.Checker.CheckPlatform(m.ctx); res.Status != systemcheck.StatusOK {
			notices = append(notices, notice{title: "Error", message: res.Message})
		}
		return startupMsg{notices: notices}
	}
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			switch m.state {
			case StartupState, LoadingState:
				m.state = QuitState
				return m, tea.Quit
			case InstallingState:
				// Runs are not interruptible from the screen.
				return m, nil
			}
		}
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case bprogress.FrameMsg:
		bar, cmd := m.bar.Update(msg)
		m.bar = bar.(bprogress.Model)
		return m, cmd
	case startupMsg:
		m.notices = msg.notices
		return m, m.showNotices(PageState)
	case checkDoneMsg:
		return m, m.checkDone(msg.err)
	case finishMsg:
		return m, m.startInstall(msg)
	case eventMsg:
		return m, m.handleEvent(progress.Event(msg))
	case eventsClosedMsg:
		if m.state == InstallingState {
			logging.Warning("Install events closed without a final event")
			return m, m.finishInstall(progress.Event{Type: progress.EventError, Message: "Installation stopped unexpectedly"})
		}
		return m, nil
	}

	switch m.state {
	case NoticeState:
		return m.updateNotice(msg)
	case PageState:
		return m.updatePage(msg)
	}
	return m, nil
}

// showNotices displays queued notices one by one, then moves to next.
func (m *model) showNotices(next State) tea.Cmd {
	m.resume = next
	if len(m.notices) == 0 {
		return m.enter(next)
	}

	n := m.notices[0]
	m.state = NoticeState
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Key("ok").
				Title(n.title).
				Description(n.message).
				Affirmative("OK").
				Negative(""),
		),
	).WithWidth(contentWidth).WithShowHelp(false).WithTheme(getBaseTheme())
	return m.form.Init()
}

func (m *model) updateNotice(msg tea.Msg) (tea.Model, tea.Cmd) {
	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted || m.form.State == huh.StateAborted {
		n := m.notices[0]
		m.notices = m.notices[1:]
		if n.fatal {
			m.state = QuitState
			return m, tea.Quit
		}
		return m, m.showNotices(m.resume)
	}
	return m, cmd
}

func (m *model) enter(state State) tea.Cmd {
	switch state {
	case PageState:
		m.state = PageState
		m.form = m.pageForm()
		return m.form.Init()
	case QuitState:
		m.state = QuitState
		return tea.Quit
	}
	m.state = state
	return nil
}

func (m *model) pageForm() *huh.Form {
	v := m.wizard.Current()
	m.fields.load(m.wizard.State)

	var inputs []huh.Field
	switch v.Page.ID {
	case wizard.PageSaveFolder:
		inputs = append(inputs, huh.NewInput().Key("save_folder").Title("Save folder").Value(&m.fields.saveFolder))
	case wizard.PageProjectFolder:
		inputs = append(inputs, huh.NewInput().Key("project_folder").Title("Project folder").Value(&m.fields.projectFolder))
	case wizard.PageOptions:
		if v.DesktopShortcutEnabled {
			inputs = append(inputs, toggle("desktop_shortcut", wizard.DesktopShortcutLabel, &m.fields.shortcut))
		}
		inputs = append(inputs,
			toggle("addon_discord", installer.AddonDiscord, &m.fields.discord).Description(wizard.AddonsLabel),
			toggle("addon_game2d", installer.AddonGame2D, &m.fields.game2d),
		)
	case wizard.PageAccount:
		if v.TabsEnabled {
			inputs = append(inputs,
				huh.NewSelect[auth.Mode]().
					Key("mode").
					Title("Account").
					Options(
						huh.NewOption("Register", auth.ModeRegister),
						huh.NewOption("Login", auth.ModeLogin),
					).
					Value(&m.fields.mode),
				huh.NewInput().Key("username").Title("Username").Value(&m.fields.username),
				huh.NewInput().Key("password").Title("Password").EchoMode(huh.EchoModePassword).Value(&m.fields.password),
			)
		}
	}

	var groups []*huh.Group
	if len(inputs) > 0 {
		groups = append(groups, huh.NewGroup(inputs...))
	}
	if v.Page.ID == wizard.PageAccount && v.TabsEnabled {
		groups = append(groups, huh.NewGroup(
			huh.NewInput().Key("repeat_password").Title("Repeat password").EchoMode(huh.EchoModePassword).Value(&m.fields.repeat),
		).WithHideFunc(func() bool {
			return m.fields.mode != auth.ModeRegister
		}))
	}
	groups = append(groups, huh.NewGroup(
		huh.NewSelect[string]().
			Key("action").
			Options(actionOptions(v)...).
			Value(&m.fields.action),
	))

	return huh.NewForm(groups...).WithWidth(contentWidth).WithShowHelp(false).WithTheme(getBaseTheme())
}

func toggle(k, title string, value *bool) *huh.Confirm {
	return huh.NewConfirm().Key(k).Title(title).Affirmative("Yes").Negative("No").Value(value)
}

func actionOptions(v wizard.PageView) []huh.Option[string] {
	var opts []huh.Option[string]
	if v.NextEnabled {
		opts = append(opts, huh.NewOption(v.NextLabel, actionNext))
	}
	if v.Page.ID == wizard.PageAccount && v.CheckEnabled {
		opts = append(opts, huh.NewOption("Check", actionCheck))
	}
	if v.BackEnabled {
		opts = append(opts, huh.NewOption("Back", actionBack))
	}
	return append(opts, huh.NewOption("Quit", actionQuit))
}

func (m *model) updatePage(msg tea.Msg) (tea.Model, tea.Cmd) {
	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateAborted:
		m.state = QuitState
		return m, tea.Quit
	case huh.StateCompleted:
		m.fields.store(m.wizard)
		return m, m.act(m.fields.action)
	}
	return m, cmd
}

// act applies one navigation button of the current page.
func (m *model) act(action string) tea.Cmd {
	switch action {
	case actionNext:
		if m.wizard.Next() {
			return m.finishCmd()
		}
	case actionBack:
		m.wizard.Back()
	case actionCheck:
		return m.checkCmd()
	case actionQuit:
		m.state = QuitState
		return tea.Quit
	}
	return m.enter(PageState)
}

func (m *model) setLoading(text string) tea.Cmd {
	m.state = LoadingState
	m.loadingText = text
	return m.spinner.Tick
}

func (m *model) checkCmd() tea.Cmd {
	check := func() tea.Msg {
		return checkDoneMsg{err: m.wizard.Check(m.ctx)}
	}
	return tea.Batch(m.setLoading("Checking account..."), check)
}

func (m *model) checkDone(err error) tea.Cmd {
	if err == nil {
		return m.enter(PageState)
	}

	var checkErr *wizard.CheckError
	message := err.Error()
	if errors.As(err, &checkErr) {
		message = checkErr.Message
	}
	m.notices = append(m.notices, notice{title: "Error", message: message})
	return m.showNotices(PageState)
}

func (m *model) finishCmd() tea.Cmd {
	finish := func() tea.Msg {
		ic, err := m.wizard.Finish(m.ctx, m.opts.Base)
		return finishMsg{ic: ic, err: err}
	}
	return tea.Batch(m.setLoading("Preparing installation..."), finish)
}

func (m *model) startInstall(msg finishMsg) tea.Cmd {
	if msg.err != nil {
		logging.Error("Could not prepare installation: %v", msg.err)
		m.notices = append(m.notices, notice{title: "Error", message: msg.err.Error()})
		return m.showNotices(PageState)
	}

	runID, events := m.opts.Installer.Run(m.ctx, msg.ic)
	m.result.RunID = runID
	m.result.Started = true
	m.events = events
	m.state = InstallingState
	m.last = progress.Event{Type: progress.EventProgress}
	return tea.Batch(m.spinner.Tick, m.waitForEvent())
}

// waitForEvent reads the next event of the running install.
func (m *model) waitForEvent() tea.Cmd {
	events := m.events
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg(ev)
	}
}

func (m *model) handleEvent(ev progress.Event) tea.Cmd {
	if m.state != InstallingState {
		return nil
	}
	if ev.Terminal() {
		return m.finishInstall(ev)
	}
	m.last = ev
	return tea.Batch(m.bar.SetPercent(float64(ev.Percent)/100), m.waitForEvent())
}

func (m *model) finishInstall(ev progress.Event) tea.Cmd {
	m.last = ev
	m.result.Final = ev
	m.result.Installed = ev.Type == progress.EventDone

	title := "Error"
	if m.result.Installed {
		title = "Done"
	}
	m.notices = append(m.notices, notice{title: title, message: ev.Message})
	return tea.Batch(m.bar.SetPercent(float64(ev.Percent)/100), m.showNotices(QuitState))
}

func (m *model) View() string {
	var b strings.Builder
	b.WriteString(banner())
	b.WriteString("\n")

	switch m.state {
	case StartupState:
		fmt.Fprintf(&b, "%s Checking your connection...\n", m.spinner.View())
	case LoadingState:
		fmt.Fprintf(&b, "%s %s\n", m.spinner.View(), m.loadingText)
	case NoticeState:
		b.WriteString(baseStyle.Render(m.form.View()))
	case PageState:
		b.WriteString(m.pageView())
	case InstallingState:
		b.WriteString(m.installView())
	}
	return b.String() + "\n"
}

func (m *model) pageView() string {
	v := m.wizard.Current()

	var b strings.Builder
	b.WriteString(titleStyle.Render(v.Page.Title))
	b.WriteString("\n\n")
	if v.Page.Text != "" {
		b.WriteString(textStyle.Render(v.Page.Text))
		b.WriteString("\n\n")
	}
	if v.Page.ID == wizard.PageAccount && m.wizard.State.Checked {
		b.WriteString(mutedStyle.Render(fmt.Sprintf("Account %q checked (%s).", m.wizard.State.Username, m.wizard.State.Mode)))
		b.WriteString("\n\n")
	}
	b.WriteString(m.form.View())
	return baseStyle.Render(b.String())
}

func (m *model) installView() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n\n", m.spinner.View(), m.last.Message)
	b.WriteString(m.bar.View())
	b.WriteString("\n")

	if run, ok := m.opts.Installer.Tracker().Get(m.result.RunID); ok && run.EstimatedTimeRemaining != "" {
		b.WriteString(mutedStyle.Render("About " + run.EstimatedTimeRemaining + " remaining"))
		b.WriteString("\n")
	}
	if m.last.Type == progress.EventError {
		b.WriteString(errorStyle.Render(m.last.Message))
		b.WriteString("\n")
	}
	return b.String()
}
