package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/gookit/color"
	"github.com/spf13/cobra"

	"github.com/dbsmedya/gomigrator/internal/database"
	"github.com/dbsmedya/gomigrator/internal/lock"
	"github.com/dbsmedya/gomigrator/internal/logger"
	"github.com/dbsmedya/gomigrator/internal/metrics"
	"github.com/dbsmedya/gomigrator/internal/migrator"
	"github.com/dbsmedya/gomigrator/internal/report"
)

var (
	migrateHistory bool
	migrateRuntime bool
	migrateRetry   bool
	migrateList    bool
	migrateTypes   []string
	migrateForce   bool
	migrateVerify  bool
	migrateFormat  string
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate history records and live process instances",
	Long: `Migrate copies legacy history records into the target tables and
transplants active legacy process instances onto the target engine.

Every record ends up in the migration ledger, either with its new target
key or with the reason it was skipped. Re-running resumes after the last
migrated record.

Modes:
  (default)        migrate records past the last recorded create time
  --retry-skipped  re-attempt records previously recorded as skipped
  --list-skipped   print skipped records without changing anything

Examples:
  gomigrator migrate --config gomigrator.yaml --history
  gomigrator migrate --history --types process_definition,process_instance
  gomigrator migrate --runtime --retry-skipped
  gomigrator migrate --history --list-skipped --format json`,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateHistory, "history", false,
		"Migrate history records (default when neither --history nor --runtime is given)")
	migrateCmd.Flags().BoolVar(&migrateRuntime, "runtime", false,
		"Transplant active runtime process instances")
	migrateCmd.Flags().BoolVar(&migrateRetry, "retry-skipped", false,
		"Retry previously skipped records")
	migrateCmd.Flags().BoolVar(&migrateList, "list-skipped", false,
		"List skipped records without migrating")
	migrateCmd.Flags().StringSliceVarP(&migrateTypes, "types", "t", nil,
		"History entity types to migrate (default: migration.entity_types or all)")
	migrateCmd.Flags().BoolVar(&migrateForce, "force", false,
		"Run even if the ledger lock cannot be acquired (use with caution)")
	migrateCmd.Flags().BoolVar(&migrateVerify, "verify", false,
		"Verify migrated history keys against the target tables afterwards")
	migrateCmd.Flags().StringVarP(&migrateFormat, "format", "f", "table",
		"Summary format (table, json, yaml)")

	rootCmd.AddCommand(migrateCmd)
}

// migrateMode maps the mode flags to a run mode.
func migrateMode(retry, list bool) (migrator.Mode, error) {
	switch {
	case retry && list:
		return 0, fmt.Errorf("--retry-skipped and --list-skipped are mutually exclusive")
	case retry:
		return migrator.ModeRetrySkipped, nil
	case list:
		return migrator.ModeListSkipped, nil
	}
	return migrator.ModeMigrate, nil
}

// migrateKinds returns which migrators run. History is the default.
func migrateKinds(history, runtime bool) (bool, bool) {
	if !history && !runtime {
		return true, false
	}
	return history, runtime
}

func runMigrate(cmd *cobra.Command, args []string) error {
	mode, err := migrateMode(migrateRetry, migrateList)
	if err != nil {
		return err
	}
	history, runtime := migrateKinds(migrateHistory, migrateRuntime)
	format, err := report.ParseFormat(migrateFormat)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateFor(history, runtime); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	ts, err := resolveTypes(migrateTypes, cfg.Migration.EntityTypes)
	if err != nil {
		return err
	}

	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	runID := uuid.NewString()
	log.Infow("Starting migrate operation",
		"run_id", runID,
		"mode", mode.String(),
		"history", history,
		"runtime", runtime,
		"config", GetConfigFile(),
	)

	ctx, stop := database.InterruptContext(context.Background(), func(sig os.Signal) {
		log.Warnw("Interrupted, finishing the current page; the next migrate run resumes from the ledger",
			"signal", sig.String(), "run_id", runID)
	})
	defer stop()

	dbManager := database.NewManager(cfg)
	defer dbManager.Close()

	if history {
		if err := dbManager.ConnectHistory(ctx); err != nil {
			return fmt.Errorf("failed to connect to databases: %w", err)
		}
	}
	store, dialect, err := openLedger(ctx, dbManager, cfg, log)
	if err != nil {
		return err
	}

	collector := metrics.NewCollector()
	renderer := report.NewRenderer(cmd.OutOrStdout(), format, color.SupportColor())

	execute := func() error {
		var errs []error

		if history {
			hm, err := newHistoryMigrator(dbManager, store, cfg, collector, log)
			if err != nil {
				return fmt.Errorf("failed to create history migrator: %w", err)
			}
			summary, runErr := hm.Run(ctx, runID, mode, ts...)
			if summary != nil {
				if err := renderer.Render(summary); err != nil {
					errs = append(errs, err)
				}
			}
			switch {
			case runErr != nil:
				errs = append(errs, fmt.Errorf("history migration: %w", runErr))
			case migrateVerify && mode != migrator.ModeListSkipped:
				if err := verifyHistory(ctx, cmd.OutOrStdout(), hm, dbManager, store, ts, log); err != nil {
					errs = append(errs, err)
				}
			}
		}

		if runtime && ctx.Err() == nil {
			tm, err := newTransplanter(store, cfg, collector, log)
			if err != nil {
				return errors.Join(append(errs, fmt.Errorf("failed to create runtime migrator: %w", err))...)
			}
			summary, runErr := tm.Run(ctx, runID, mode)
			if summary != nil {
				if err := renderer.Render(summary); err != nil {
					errs = append(errs, err)
				}
			}
			if runErr != nil {
				errs = append(errs, fmt.Errorf("runtime migration: %w", runErr))
			}
		}

		return errors.Join(errs...)
	}

	// Listing only reads the ledger.
	switch {
	case mode == migrator.ModeListSkipped:
		err = execute()
	case migrateForce:
		log.Warn("Skipping ledger lock acquisition (--force flag used)")
		err = execute()
	default:
		ledgerLock := lock.NewLedgerLock(dbManager.Ledger, dialect, cfg.Ledger.Table)
		err = lock.WithLock(ctx, ledgerLock, execute)
		if errors.Is(err, lock.ErrLockTimeout) {
			return fmt.Errorf("another migrator is running on this ledger (use --force to override): %w", err)
		}
	}

	if cfg.Metrics.Textfile != "" && mode != migrator.ModeListSkipped {
		if werr := collector.WriteTextfile(cfg.Metrics.Textfile); werr != nil {
			log.Warnw("Failed to write metrics", "path", cfg.Metrics.Textfile, "error", werr)
		}
	}

	if errors.Is(err, context.Canceled) {
		log.Warn("Migrate operation cancelled by user")
		return nil
	}
	return err
}
