package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/gomigrator/internal/database"
	"github.com/dbsmedya/gomigrator/internal/lock"
	"github.com/dbsmedya/gomigrator/internal/logger"
	"github.com/dbsmedya/gomigrator/internal/types"
)

var (
	resetTypes []string
	resetYes   bool
	resetForce bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete ledger rows so records are migrated again",
	Long: `Reset deletes migration ledger rows, either for the given entity
types or for all of them. Target rows written by earlier runs are NOT
removed; clean the target first or the next run writes duplicates.

Example:
  gomigrator reset --config gomigrator.yaml --types variable --yes`,
	RunE: runReset,
}

func init() {
	resetCmd.Flags().StringSliceVarP(&resetTypes, "types", "t", nil,
		"Entity types to reset (default: all, including runtime_process_instance)")
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false,
		"Confirm the deletion (required)")
	resetCmd.Flags().BoolVar(&resetForce, "force", false,
		"Reset even if the ledger lock cannot be acquired (use with caution)")

	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) error {
	if !resetYes {
		return fmt.Errorf("refusing to reset the ledger without --yes")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ts, err := types.ParseEntityTypes(resetTypes)
	if err != nil {
		return err
	}

	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	ctx := context.Background()

	dbManager := database.NewManager(cfg)
	defer dbManager.Close()

	store, dialect, err := openLedger(ctx, dbManager, cfg, log)
	if err != nil {
		return err
	}

	var deleted int64
	reset := func() error {
		var err error
		deleted, err = store.Reset(ctx, ts...)
		return err
	}

	if resetForce {
		log.Warn("Skipping ledger lock acquisition (--force flag used)")
		err = reset()
	} else {
		err = lock.WithLock(ctx, lock.NewLedgerLock(dbManager.Ledger, dialect, cfg.Ledger.Table), reset)
	}
	if errors.Is(err, lock.ErrLockTimeout) {
		return fmt.Errorf("a migrator is running on this ledger (use --force to override): %w", err)
	}
	if err != nil {
		return fmt.Errorf("failed to reset ledger: %w", err)
	}

	scope := "all types"
	if len(ts) > 0 {
		scope = fmt.Sprintf("%v", ts)
	}
	fmt.Fprintf(outputWriter, "Deleted %d ledger rows (%s)\n", deleted, scope)
	return nil
}
