// ABOUTME: Subcommands: run, undo, resolve, commands, version
// ABOUTME: Config and plan-parse errors fail the command; step failures only show in the trace

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mauromedda/pi-effector/internal/command"
	"github.com/mauromedda/pi-effector/internal/plan"
	"github.com/mauromedda/pi-effector/internal/project"
)

func newRunCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run [FILE|-]",
		Short: "Execute a plan read from FILE or stdin",
		Long: `Execute a plan. The input may be raw model output: code fences are
stripped and the JSON object between the first '{' and the last '}' is used.

  {"action": "plan", "reason": "...", "actions": [{"action": "...", "params": {...}}]}
  {"action": "final", "final_answer": "..."}
  {"action": "list_dir", "params": {"path": "."}}   (single step shorthand)`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(opts.format); err != nil {
				return err
			}
			raw, err := readPlan(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			p, err := plan.ParseText(string(raw))
			if err != nil {
				return fmt.Errorf("parsing plan: %w", err)
			}
			if err := p.Validate(); err != nil {
				return err
			}

			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			tr, err := a.exec.Run(cmd.Context(), a.sess, p)
			if err != nil {
				return err
			}
			return renderTrace(cmd.OutOrStdout(), opts.format, tr)
		},
	}
}

// readPlan reads the plan document from args[0], or stdin for none or "-".
func readPlan(stdin io.Reader, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("reading plan from stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("reading plan: %w", err)
	}
	return data, nil
}

func newUndoCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "undo",
		Short: "Restore the files changed by the last mutating step",
		Long: `Restore the backups recorded by the most recent mutating step of the
project given by --workdir (or the primary safe root). Undo is one level
deep and cannot itself be undone.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(opts.format); err != nil {
				return err
			}
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			p := plan.Plan{
				Action:  plan.KindPlan,
				Reason:  "undo",
				Actions: []plan.Step{{Action: plan.UndoLast, Params: map[string]any{}}},
			}
			tr, err := a.exec.Run(cmd.Context(), a.sess, p)
			if err != nil {
				return err
			}
			return renderTrace(cmd.OutOrStdout(), opts.format, tr)
		},
	}
}

func newResolveCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve NAME",
		Short: "Show which project directory NAME resolves to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(opts.format); err != nil {
				return err
			}
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.resolver.Resolve(a.sess.Workdir(), args[0])
			if err != nil {
				var nf *project.NotFoundError
				if errors.As(err, &nf) && opts.format == "json" {
					_ = writeJSON(cmd.OutOrStdout(), map[string]any{
						"error":           "project_not_found",
						"input":           nf.Input,
						"candidates":      nf.Candidates,
						"candidate_count": nf.CandidateCount,
					})
				}
				return err
			}

			if opts.format == "json" {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			line := fmt.Sprintf("%s (%s", res.Dir, res.ResolvedBy)
			if res.MatchedName != "" {
				line += ": " + res.MatchedName
			}
			fmt.Fprintln(cmd.OutOrStdout(), line+")")
			return nil
		},
	}
}

func newCommandsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "commands",
		Short: "List the whitelisted commands available to run_cmd",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(opts.format); err != nil {
				return err
			}
			table := command.Table()
			if opts.format == "json" {
				return writeJSON(cmd.OutOrStdout(), table)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tCOMMAND\tCLASS\tARGS")
			for _, c := range table {
				class := c.Class
				if c.Write {
					class += " write"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.Key, strings.Join(c.Argv, " "), class, c.Usage)
			}
			return tw.Flush()
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pi-effector %s (%s) built %s\n", version, commit, date)
		},
	}
}
