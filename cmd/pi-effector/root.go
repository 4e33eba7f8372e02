// ABOUTME: Root command, global flags, and the runtime wiring shared by every subcommand
// ABOUTME: Settings come from config files and env, then flags override them

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mauromedda/pi-effector/internal/agent"
	"github.com/mauromedda/pi-effector/internal/approval"
	"github.com/mauromedda/pi-effector/internal/command"
	"github.com/mauromedda/pi-effector/internal/config"
	pilog "github.com/mauromedda/pi-effector/internal/log"
	"github.com/mauromedda/pi-effector/internal/permission"
	"github.com/mauromedda/pi-effector/internal/project"
	"github.com/mauromedda/pi-effector/internal/tools"
)

// options holds the global flags.
type options struct {
	roots       []string
	configPath  string
	workdir     string
	yes         bool
	dryRun      bool
	reviewFiles bool
	verbose     bool
	auditLog    string
	format      string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "pi-effector",
		Short: "Apply model-proposed plans to a sandboxed workspace",
		Long: `pi-effector executes JSON action plans (as produced by a language model)
against a set of safe root directories: file writes, appends and patches
with backups and undo, and a fixed whitelist of commands including git.

Write-class steps are gated: file mutations show a diff, and git
add/commit/push are reviewed once per plan against the pending changes.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.verbose {
				pilog.SetLevel(pilog.LevelDebug)
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringArrayVar(&opts.roots, "root", nil, "Safe root directory (repeatable; overrides config)")
	pf.StringVar(&opts.configPath, "config", "", "Config file (default: ~/.pi-effector/config.{json,yaml})")
	pf.StringVar(&opts.workdir, "workdir", "", "Initial project directory or name")
	pf.BoolVarP(&opts.yes, "yes", "y", false, "Approve every write-class step without asking")
	pf.BoolVar(&opts.dryRun, "dry-run", false, "Plan mode: run read-only steps, deny every write")
	pf.BoolVar(&opts.reviewFiles, "review-files", true, "Show a diff and ask before each file mutation (interactive only)")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "Debug logging; mirror audit records to stderr")
	pf.StringVar(&opts.auditLog, "audit-log", "", "Append JSON audit records to this file")
	pf.StringVarP(&opts.format, "format", "o", "text", "Output format (text, json)")

	root.AddCommand(
		newRunCmd(opts),
		newUndoCmd(opts),
		newResolveCmd(opts),
		newCommandsCmd(opts),
		newVersionCmd(),
	)
	return root
}

// app is everything a subcommand needs to execute plans.
type app struct {
	cfg      *config.Settings
	sb       *permission.Sandbox
	resolver *project.Resolver
	exec     *agent.Executor
	sess     *agent.Session
	audit    *pilog.Audit
}

func (a *app) Close() error {
	return a.audit.Close()
}

// loadSettings merges config sources with flag overrides and validates.
func loadSettings(opts *options) (*config.Settings, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if len(opts.roots) > 0 {
		cfg.SafeRoots = append([]string(nil), opts.roots...)
	}
	if opts.auditLog != "" {
		cfg.AuditLog = opts.auditLog
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func approvalMode(opts *options) (approval.Mode, error) {
	switch {
	case opts.yes && opts.dryRun:
		return approval.ModeNormal, errors.New("--yes and --dry-run are mutually exclusive")
	case opts.yes:
		return approval.ModeYolo, nil
	case opts.dryRun:
		return approval.ModePlan, nil
	default:
		return approval.ModeNormal, nil
	}
}

// interactive reports whether r is a terminal a human can answer from.
func interactive(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// newApp wires the sandbox, engine, runner, gate, and executor.
func newApp(cmd *cobra.Command, opts *options) (*app, error) {
	cfg, err := loadSettings(opts)
	if err != nil {
		return nil, err
	}
	mode, err := approvalMode(opts)
	if err != nil {
		return nil, err
	}

	sb, err := permission.NewSandbox(cfg.SafeRoots, cfg.AllowedExts)
	if err != nil {
		return nil, fmt.Errorf("creating path sandbox: %w", err)
	}

	var ask approval.AskFunc
	if interactive(cmd.InOrStdin()) {
		ask = newPrompter(cmd.InOrStdin(), cmd.ErrOrStderr()).ask
	}
	gate := approval.NewGate(mode, ask,
		approval.WithFileReview(opts.reviewFiles && ask != nil),
		approval.WithRules(approval.ParseRules(cfg.ApprovalAllow, cfg.ApprovalDeny)),
	)

	audit, err := pilog.NewAudit(cfg.AuditLog, opts.verbose)
	if err != nil {
		return nil, err
	}

	engine := tools.NewEngine(sb, tools.Limits{
		MaxWriteBytes:  cfg.MaxWriteBytes,
		MaxAppendBytes: cfg.MaxAppendBytes,
		MaxPatchBytes:  cfg.MaxPatchBytes,
	}, tools.DefaultValidators())
	runner := command.NewRunner(sb,
		command.WithTimeout(time.Duration(cfg.CommandTimeoutMs)*time.Millisecond),
		command.WithMaxOutput(cfg.MaxCommandOutput),
	)
	resolver := project.NewResolver(sb, cfg.FuzzyCutoff)

	a := &app{
		cfg:      cfg,
		sb:       sb,
		resolver: resolver,
		audit:    audit,
		exec: agent.New(engine, runner, resolver, gate,
			agent.WithAudit(audit),
			agent.WithStateDir(cfg.StateDir),
			agent.WithFallbackReadLines(cfg.FallbackReadLines),
		),
		sess: agent.NewSession(
			agent.LLM{Provider: cfg.LLMProvider, Model: cfg.LLMModel},
			map[string]string{cfg.LLMProvider: cfg.LLMModel},
		),
	}

	if opts.workdir != "" {
		res, err := resolver.Resolve("", opts.workdir)
		if err != nil {
			_ = audit.Close()
			return nil, fmt.Errorf("--workdir: %w", err)
		}
		a.sess.SetWorkdir(res.Dir)
	}

	pilog.Debug("safe roots %v, mode %s, interactive %v", sb.Roots(), mode, ask != nil)
	return a, nil
}
