// Package cli implements the reiteradas administration commands.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/rpattn/reiteradas/internal/app"
	"github.com/rpattn/reiteradas/internal/config"
	"github.com/rpattn/reiteradas/internal/logger"
)

// Opener builds the application for one command run.
type Opener func(ctx context.Context, configPath string) (*app.App, error)

// OpenFromConfig loads the configuration and opens its store.
func OpenFromConfig(ctx context.Context, configPath string) (*app.App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := logger.Init(cfg.Log); err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, logger.GetLogger("cli"))
}

type env struct {
	open       Opener
	configPath string
	stdout     io.Writer
	stderr     io.Writer
}

// run opens the application, hands it to fn and closes it afterwards.
func (e *env) run(ctx context.Context, fn func(a *app.App) error) (err error) {
	a, err := e.open(ctx, e.configPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(context.WithoutCancel(ctx)); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return fn(a)
}

func (e *env) printJSON(v any) error {
	enc := json.NewEncoder(e.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// NewRootCommand returns the reiteradas command tree.
func NewRootCommand(open Opener, stdout, stderr io.Writer) *cobra.Command {
	if open == nil {
		open = OpenFromConfig
	}
	e := &env{open: open, stdout: stdout, stderr: stderr}

	rc := &cobra.Command{
		Use:   "reiteradas",
		Short: "Administer the repeated-fault dataset",
		Long: `
Ingests fault spreadsheets into the configured store and manages the
upload history: list, delete single uploads or clear everything.
`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rc.SetOut(stdout)
	rc.SetErr(stderr)
	rc.PersistentFlags().StringVarP(&e.configPath, "config", "c", "", "Configuration file to read from.")

	rc.AddCommand(newIngestCommand(e))
	rc.AddCommand(newHistoryCommand(e))
	rc.AddCommand(newDeleteCommand(e))
	rc.AddCommand(newClearCommand(e))
	rc.AddCommand(newRankCommand(e))
	rc.AddCommand(newMigrateCommand(e))
	return rc
}

// Execute runs the command tree and reports the error on stderr.
func Execute(ctx context.Context, stdout, stderr io.Writer, args []string) int {
	rc := NewRootCommand(nil, stdout, stderr)
	rc.SetArgs(args)
	if err := rc.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	return 0
}
