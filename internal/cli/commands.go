package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/rpattn/reiteradas/internal/analytics"
	"github.com/rpattn/reiteradas/internal/app"
	"github.com/rpattn/reiteradas/internal/config"
	"github.com/rpattn/reiteradas/internal/db"
	"github.com/rpattn/reiteradas/internal/domain"
	"github.com/rpattn/reiteradas/internal/ingestion"
	"github.com/rpattn/reiteradas/internal/logger"
)

func newIngestCommand(e *env) *cobra.Command {
	var (
		territory  string
		uploadID   string
		uploadedBy string
		noProgress bool
	)
	cmd := &cobra.Command{
		Use:   "ingest FILE",
		Short: "Ingest a .csv or .xlsx fault spreadsheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			file, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer file.Close()

			return e.run(c.Context(), func(a *app.App) error {
				prepared, err := a.Service.Prepare(ingestion.Request{
					UploadID:   uploadID,
					Territory:  territory,
					FileName:   args[0],
					UploadedBy: uploadedBy,
					Data:       file,
				})
				if err != nil {
					return err
				}
				if prepared.DroppedRows > 0 {
					fmt.Fprintf(e.stderr, "dropped %d rows without INCIDENCIA\n", prepared.DroppedRows)
				}

				var onProgress domain.ProgressFunc
				if !noProgress {
					bar := progressbar.NewOptions(len(prepared.Records),
						progressbar.OptionSetWriter(e.stderr),
						progressbar.OptionSetDescription("saving "+prepared.Metadata.UploadID),
						progressbar.OptionSetWidth(40),
						progressbar.OptionShowCount(),
						progressbar.OptionThrottle(100*time.Millisecond),
						progressbar.OptionClearOnFinish(),
					)
					defer func() { _ = bar.Finish() }()
					onProgress = func(p domain.Progress) {
						bar.ChangeMax(p.Total)
						_ = bar.Set(p.Saved)
					}
				}

				outcome := a.Pipeline.Ingest(c.Context(), prepared.Records, prepared.Metadata, onProgress)
				if !outcome.Success {
					return fmt.Errorf("ingestion of %s failed after %d records: %w", outcome.UploadID, outcome.Count, outcome.Err)
				}
				fmt.Fprintf(e.stdout, "upload %s: %d records saved, %d skipped\n", outcome.UploadID, outcome.Count, outcome.Skipped)
				return nil
			})
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&territory, "regional", "r", "", "territory label of the run (ATLANTICO, NORTE, CENTRO NORTE or MISTO)")
	flags.StringVar(&uploadID, "upload-id", "", "upload id, generated when empty")
	flags.StringVar(&uploadedBy, "uploaded-by", "", "operator recorded in the history")
	flags.BoolVar(&noProgress, "no-progress", false, "disable the progress bar")
	return cmd
}

func newHistoryCommand(e *env) *cobra.Command {
	var territory string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List ingestion runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			return e.run(c.Context(), func(a *app.App) error {
				entries, err := a.Service.History(c.Context(), domain.Territory(territory))
				if err != nil {
					return err
				}
				return e.printJSON(entries)
			})
		},
	}
	cmd.Flags().StringVarP(&territory, "regional", "r", "", "only runs of this territory")
	return cmd
}

func newDeleteCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "delete UPLOAD_ID",
		Short: "Delete one upload and its records",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return e.run(c.Context(), func(a *app.App) error {
				result := a.Service.DeleteUpload(c.Context(), args[0])
				if !result.Success {
					return fmt.Errorf("delete stopped after %d records: %w", result.DeletedCount, result.Err)
				}
				fmt.Fprintf(e.stdout, "upload %s: %d records deleted\n", args[0], result.DeletedCount)
				return nil
			})
		},
	}
}

func newClearCommand(e *env) *cobra.Command {
	var confirm string
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every record and every upload",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			if confirm != ingestion.ClearConfirmation {
				return fmt.Errorf("refusing to clear without --confirm %s", ingestion.ClearConfirmation)
			}
			return e.run(c.Context(), func(a *app.App) error {
				result := a.Service.ClearAll(c.Context())
				if !result.Success {
					return fmt.Errorf("clear stopped after %d records and %d uploads: %w", result.DeletedData, result.DeletedUploads, result.Err)
				}
				fmt.Fprintf(e.stdout, "%d records and %d uploads deleted\n", result.DeletedData, result.DeletedUploads)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&confirm, "confirm", "", "must be "+ingestion.ClearConfirmation)
	return cmd
}

func newRankCommand(e *env) *cobra.Command {
	var (
		filter    domain.RecordFilter
		territory string
		field     string
		opts      analytics.Options
	)
	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Rank the records of one territory by ELEMENTO, CAUSA or ALIMENT.",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			filter.Territory = domain.Territory(territory)
			return e.run(c.Context(), func(a *app.App) error {
				entries, err := a.Service.Rankings(c.Context(), filter, field, opts)
				if err != nil {
					return err
				}
				return e.printJSON(entries)
			})
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&territory, "regional", "r", "", "territory to rank")
	flags.StringVar(&filter.From, "from", "", "first DATA, YYYY-MM-DD")
	flags.StringVar(&filter.To, "to", "", "last DATA, YYYY-MM-DD")
	flags.StringVarP(&field, "field", "f", domain.FieldElemento, "column to rank by")
	flags.IntVar(&opts.Top, "top", 10, "entries to keep, 0 keeps all")
	flags.IntVar(&opts.MinCount, "min", 2, "minimum occurrences")
	return cmd
}

func newMigrateCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the postgres schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := config.Load(e.configPath)
			if err != nil {
				return err
			}
			if cfg.Store.Driver != config.DriverPostgres {
				return errors.New("migrations only apply to the postgres driver")
			}
			if err := db.RunMigrations(cfg.Database, logger.GetLogger("migrate")); err != nil {
				return err
			}
			fmt.Fprintln(e.stdout, "migrations applied")
			return nil
		},
	}
}
