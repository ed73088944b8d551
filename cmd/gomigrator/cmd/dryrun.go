package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/gomigrator/internal/database"
	"github.com/dbsmedya/gomigrator/internal/logger"
)

var dryrunTypes []string

var dryrunCmd = &cobra.Command{
	Use:   "dry-run",
	Short: "Estimate a history migration without making changes",
	Long: `Dry-run counts the legacy history records a migrate run would fetch
and reports them without writing to the target or the ledger.

The dry-run shows:
  - Remaining legacy records per type since the last migrated create time
  - Number of pages that would be fetched
  - Migrated and skipped counts already in the ledger

Example:
  gomigrator dry-run --config gomigrator.yaml`,
	RunE: runDryrun,
}

func init() {
	dryrunCmd.Flags().StringSliceVarP(&dryrunTypes, "types", "t", nil,
		"History entity types to estimate (default: migration.entity_types or all)")

	rootCmd.AddCommand(dryrunCmd)
}

func runDryrun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateFor(true, false); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	ts, err := resolveTypes(dryrunTypes, cfg.Migration.EntityTypes)
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

	if err := dbManager.ConnectHistory(ctx); err != nil {
		return fmt.Errorf("failed to connect to databases: %w", err)
	}
	store, _, err := openLedger(ctx, dbManager, cfg, log)
	if err != nil {
		return err
	}

	hm, err := newHistoryMigrator(dbManager, store, cfg, nil, log)
	if err != nil {
		return fmt.Errorf("failed to create history migrator: %w", err)
	}

	result, err := hm.Estimate(ctx, ts...)
	if err != nil {
		return fmt.Errorf("estimation failed: %w", err)
	}

	result.DisplayExecutionPlan(outputWriter)
	return nil
}
