// Command endpointconsole is an interactive response console for one
// Elastic endpoint: isolate or release the host and kill or suspend its
// processes.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	console "github.com/network-plane/planeconsole"
)

var version = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
	endpointID string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "endpointconsole",
		Short:         "Response console for an Elastic endpoint",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.Close()
			return a.interactive()
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", defaultConfigPath(), "Path to the TOML config file")
	cmd.PersistentFlags().StringVar(&opts.endpointID, "endpoint-id", "", "Endpoint agent ID (overrides config)")

	cmd.AddCommand(newExecCmd(opts))
	cmd.AddCommand(newHistoryCmd(opts))
	return cmd
}

func newExecCmd(opts *rootOptions) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "exec <command> [--arg value]...",
		Short: "Run one console command and wait for it to finish",
		Example: `  endpointconsole exec -- kill-process --pid 123 --comment "runaway"
  endpointconsole exec status`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			inv, err := a.engine.Exec(ctx, joinArgs(args))
			if err != nil {
				return err
			}
			if inv != nil && inv.Session.Status() == console.StatusError {
				return fmt.Errorf("%s failed", inv.Command.Name())
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "Maximum time to wait for the command")
	return cmd
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded invocations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.Close()
			if a.history == nil {
				return errors.New("history_path is not configured")
			}

			records, err := a.history.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := console.NewOutputChannel(cmd.OutOrStdout())
			if len(records) == 0 {
				out.Info("No recorded invocations.")
				return nil
			}
			rows := make([][]string, 0, len(records))
			for _, rec := range records {
				rows = append(rows, []string{
					rec.SubmittedAt.Local().Format(time.DateTime),
					rec.Command,
					string(rec.Status),
					rec.Input,
				})
			}
			out.WriteTable([]string{"Submitted", "Command", "Status", "Input"}, rows)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of invocations to show")
	return cmd
}

// joinArgs rebuilds a console line from shell arguments, quoting values
// that the console tokenizer would otherwise split.
func joinArgs(args []string) string {
	parts := make([]string, len(args))
	for i, arg := range args {
		if arg == "" || strings.ContainsAny(arg, " \t\"'") {
			arg = `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(arg) + `"`
		}
		parts[i] = arg
	}
	return strings.Join(parts, " ")
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "planeconsole.toml"
	}
	return filepath.Join(dir, "planeconsole", "config.toml")
}

func (a *app) interactive() error {
	historyFile := ""
	if dir, err := os.UserCacheDir(); err == nil {
		historyFile = filepath.Join(dir, "planeconsole", "readline_history")
		_ = os.MkdirAll(filepath.Dir(historyFile), 0o755)
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          a.engine.Prompt(),
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to start readline: %w", err)
	}
	defer rl.Close()
	a.engine.SetOutputWriter(rl.Stdout())

	fmt.Fprintf(rl.Stdout(), "Connected to %s. Type 'help' for commands.\n", a.target())
	return a.engine.Run(rl)
}
