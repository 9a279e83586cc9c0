package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"crystalsetup/internal/installer"
	"crystalsetup/internal/progress"
	"crystalsetup/internal/systemcheck"
	"crystalsetup/internal/update"
)

// handledCodes end a run without a failing exit status. The user has
// already been told what went wrong with their account.
var handledCodes = map[string]bool{
	progress.CodeAuthFailed: true,
	CodeAccountCheckFailed:  true,
}

// Execute runs the CLI with the provided args and manager.
func Execute(args []string, manager Manager, out, errOut io.Writer) int {
	return ExecuteContext(context.Background(), args, manager, out, errOut)
}

// ExecuteContext is Execute with a context that is cancelled on process signals.
func ExecuteContext(ctx context.Context, args []string, manager Manager, out, errOut io.Writer) int {
	cmd := NewRootCommand(manager, out, errOut)
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		var usageErr *usageError
		if errors.As(err, &usageErr) {
			fmt.Fprintf(errOut, "Error: %v\n", err)
			return ExitInvalidUsage
		}
		var runErr *runtimeError
		if !errors.As(err, &runErr) {
			fmt.Fprintf(errOut, "Error: %v\n", err)
		}
		return ExitRuntimeError
	}
	return ExitSuccess
}

// NewRootCommand builds the root CLI command tree. Without a subcommand
// the interactive wizard runs.
func NewRootCommand(manager Manager, out, errOut io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "crystal-setup",
		Short:         "install CrystalStudio",
		SilenceErrors: true,
		SilenceUsage:  true,
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) > 0 {
				return &usageError{err: fmt.Errorf("unknown command %q", args[0])}
			}
			return nil
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return applyDevMode(cmd, manager)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWizard(cmd, manager)
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	flags := root.PersistentFlags()
	flags.Bool("json", false, "output JSONL")
	flags.Bool("dev", false, "enable developer mode")
	flags.String("check-url", "", "account check URL template (developer mode)")
	flags.String("register-url", "", "register URL template (developer mode)")
	flags.String("login-url", "", "login URL template (developer mode)")
	flags.Int("installer-version", 0, "pretend to be this installer version (developer mode)")

	root.AddCommand(newWizardCommand(manager))
	root.AddCommand(newInstallCommand(manager))
	root.AddCommand(newCheckCommand(manager))
	root.AddCommand(newVersionCheckCommand(manager))
	root.AddCommand(newSelfUpdateCommand(manager))
	root.AddCommand(newHistoryCommand(manager))
	root.AddCommand(newSecretsCommand(manager))

	return root
}

type usageError struct {
	err error
}

func (u *usageError) Error() string {
	if u.err == nil {
		return "invalid usage"
	}
	return u.err.Error()
}

func maxArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) > n {
			return &usageError{err: fmt.Errorf("accepts at most %d argument(s), received %d", n, len(args))}
		}
		return nil
	}
}

func applyDevMode(cmd *cobra.Command, manager Manager) error {
	dev, _ := cmd.Flags().GetBool("dev")
	var overrides DevOverrides
	overrides.CheckURL, _ = cmd.Flags().GetString("check-url")
	overrides.RegisterURL, _ = cmd.Flags().GetString("register-url")
	overrides.LoginURL, _ = cmd.Flags().GetString("login-url")
	overrides.InstallerVersion, _ = cmd.Flags().GetInt("installer-version")

	if !dev && !manager.DevMode() {
		if overrides != (DevOverrides{}) {
			return &usageError{err: errors.New("endpoint and version overrides require --dev")}
		}
		return nil
	}
	if overrides.InstallerVersion < 0 {
		return &usageError{err: errors.New("--installer-version must not be negative")}
	}
	manager.EnableDevMode(overrides)
	return nil
}

func newWizardCommand(manager Manager) *cobra.Command {
	return &cobra.Command{
		Use:   "wizard",
		Short: "run the interactive setup",
		Args:  maxArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWizard(cmd, manager)
		},
	}
}

func runWizard(cmd *cobra.Command, manager Manager) error {
	res, err := manager.Wizard(cmd.Context())
	if err != nil {
		return writeError(cmd, err)
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	if jsonOutput {
		if err := writeEvent(cmd, ProgressEvent{Type: "result", Data: res}); err != nil {
			return err
		}
	}
	if res.Started && !res.Installed && !handledCodes[res.Code] {
		return &runtimeError{err: fmt.Errorf("installation failed: %s", res.Message)}
	}
	return nil
}

func newInstallCommand(manager Manager) *cobra.Command {
	installCmd := &cobra.Command{
		Use:   "install",
		Short: "install CrystalStudio without the interactive pages",
		Args:  maxArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := InstallRequest{}
			req.Username, _ = cmd.Flags().GetString("username")
			req.Password, _ = cmd.Flags().GetString("password")
			req.Register, _ = cmd.Flags().GetBool("register")
			req.SaveFolder, _ = cmd.Flags().GetString("save-folder")
			req.ProjectsFolder, _ = cmd.Flags().GetString("projects-folder")
			req.DesktopShortcut, _ = cmd.Flags().GetBool("desktop-shortcut")
			req.Addons, _ = cmd.Flags().GetStringSlice("addons")

			if req.Username == "" || req.Password == "" {
				return &usageError{err: errors.New("username and password are required")}
			}
			for _, addon := range req.Addons {
				if !contains(installer.DefaultAddons, addon) {
					return &usageError{err: fmt.Errorf("unknown addon %q (available: %s)", addon, strings.Join(installer.DefaultAddons, ", "))}
				}
			}

			return streamEvents(cmd, manager.Install(cmd.Context(), req))
		},
	}
	installCmd.Flags().String("username", "", "account username")
	installCmd.Flags().String("password", "", "account password")
	installCmd.Flags().Bool("register", false, "create a new account instead of logging in")
	installCmd.Flags().String("save-folder", "", "folder for addons and account data")
	installCmd.Flags().String("projects-folder", "", "folder for CrystalStudio projects")
	installCmd.Flags().Bool("desktop-shortcut", false, "create a desktop shortcut (Windows only)")
	installCmd.Flags().StringSlice("addons", installer.DefaultAddons, "optional addons to install")
	return installCmd
}

func newCheckCommand(manager Manager) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "report whether this machine is ready for an install",
		Args:  maxArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			results, err := manager.Check(cmd.Context())
			if err != nil {
				return writeError(cmd, err)
			}

			var b strings.Builder
			for _, res := range results {
				fmt.Fprintf(&b, "[%s] %s: %s\n", res.Status, res.Name, res.Message)
				if res.Version != "" {
					fmt.Fprintf(&b, "    version: %s\n", res.Version)
				}
				for _, step := range res.Remediation {
					fmt.Fprintf(&b, "    - %s\n", step)
				}
			}
			if err := writeResult(cmd, results, strings.TrimRight(b.String(), "\n")); err != nil {
				return err
			}
			if systemcheck.Failed(results) {
				return &runtimeError{err: errors.New("system check failed")}
			}
			return nil
		},
	}
}

func newVersionCheckCommand(manager Manager) *cobra.Command {
	return &cobra.Command{
		Use:   "version-check",
		Short: "compare this installer with the published one",
		Args:  maxArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			status, err := manager.VersionCheck(cmd.Context())
			if err != nil {
				return writeError(cmd, err)
			}
			message := fmt.Sprintf("Installer is up to date (version %d)", status.CurrentVersion)
			if status.Outdated {
				message = update.OutdatedMessage
			}
			return writeEvent(cmd, ProgressEvent{Type: "result", Message: message, Data: status})
		},
	}
}

func newSelfUpdateCommand(manager Manager) *cobra.Command {
	return &cobra.Command{
		Use:   "self-update",
		Short: "replace this installer with the published version",
		Args:  maxArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return streamEvents(cmd, manager.SelfUpdate(cmd.Context()))
		},
	}
}

func newHistoryCommand(manager Manager) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "list recorded install runs or the log of one run",
		Args:  maxArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				logs, err := manager.RunLogs(cmd.Context(), args[0])
				if err != nil {
					return writeError(cmd, err)
				}
				var b strings.Builder
				for _, l := range logs {
					fmt.Fprintf(&b, "%s %-7s %s\n", l.Timestamp.Format("2006-01-02 15:04:05"), l.Level, l.Message)
				}
				return writeResult(cmd, logs, strings.TrimRight(b.String(), "\n"))
			}

			limit, _ := cmd.Flags().GetInt("limit")
			if limit <= 0 {
				return &usageError{err: errors.New("--limit must be positive")}
			}
			runs, err := manager.History(cmd.Context(), limit)
			if err != nil {
				return writeError(cmd, err)
			}
			if len(runs) == 0 {
				return writeResult(cmd, runs, "No install runs recorded")
			}
			var b strings.Builder
			for _, r := range runs {
				fmt.Fprintf(&b, "%s  %s  %-8s %-11s %3d%%", r.ID, r.CreatedAt.Format("2006-01-02 15:04"), r.Mode, r.Status, r.Progress)
				if r.Error != "" {
					fmt.Fprintf(&b, "  %s", r.Error)
				}
				b.WriteString("\n")
			}
			return writeResult(cmd, runs, strings.TrimRight(b.String(), "\n"))
		},
	}
	historyCmd.Flags().Int("limit", 20, "number of runs to show")
	return historyCmd
}

func newSecretsCommand(manager Manager) *cobra.Command {
	secretsCmd := &cobra.Command{
		Use:   "secrets",
		Short: "inspect stored account data",
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "print the stored username with the token masked",
		Args:  maxArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			account, err := manager.StoredAccount(cmd.Context())
			if err != nil {
				return writeError(cmd, err)
			}
			text := fmt.Sprintf("Username: %s\nToken: %s\nFile: %s", account.Username, account.Token, account.Path)
			return writeResult(cmd, account, text)
		},
	}

	secretsCmd.AddCommand(showCmd)
	return secretsCmd
}

func streamEvents(cmd *cobra.Command, events <-chan ProgressEvent) error {
	ctx := cmd.Context()
	jsonOutput, _ := cmd.Flags().GetBool("json")
	var failure *ProgressEvent
	for event := range events {
		if err := writeEventWithContext(ctx, cmd, event, jsonOutput); err != nil {
			return err
		}
		if event.Type == string(progress.EventError) && !handledCodes[event.Code] {
			failed := event
			failure = &failed
		}
	}
	if failure != nil {
		return &runtimeError{err: fmt.Errorf("operation failed: %s", failure.Code)}
	}
	return nil
}

type runtimeError struct {
	err error
}

func (r *runtimeError) Error() string {
	if r.err == nil {
		return "runtime error"
	}
	return r.err.Error()
}

func writeError(cmd *cobra.Command, err error) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	if jsonOutput {
		_ = writeEventWithContext(cmd.Context(), cmd, ProgressEvent{
			Type:    "error",
			Message: err.Error(),
		}, true)
	} else {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
	}
	return &runtimeError{err: err}
}

// writeResult emits data as a result event in JSON mode and text otherwise.
func writeResult(cmd *cobra.Command, data interface{}, text string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	if jsonOutput {
		return writeEventWithContext(cmd.Context(), cmd, ProgressEvent{Type: "result", Data: data}, true)
	}
	return writeEventWithContext(cmd.Context(), cmd, ProgressEvent{Type: "result", Message: text}, false)
}

func writeEvent(cmd *cobra.Command, event ProgressEvent) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	return writeEventWithContext(cmd.Context(), cmd, event, jsonOutput)
}

func writeEventWithContext(ctx context.Context, cmd *cobra.Command, event ProgressEvent, jsonOutput bool) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if jsonOutput {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		return encoder.Encode(event)
	}
	if event.Message != "" {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), event.Message)
		return err
	}
	return nil
}
