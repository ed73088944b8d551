package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/gomigrator/internal/config"
	"github.com/dbsmedya/gomigrator/internal/database"
	"github.com/dbsmedya/gomigrator/internal/logger"
	"github.com/dbsmedya/gomigrator/internal/migrator"
	"github.com/dbsmedya/gomigrator/internal/types"
)

var (
	validateHistory bool
	validateRuntime bool
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and run preflight checks",
	Long: `Validate checks the configuration file and runs preflight checks
against the databases to ensure a migration can start.

Checks performed:
  - Configuration syntax and required fields
  - Database connectivity (legacy, target, ledger)
  - Legacy history tables and target tables exist
  - Target tables use a transactional storage engine
  - Ledger table can be created
  - Runtime migrator settings (with --runtime)

Example:
  gomigrator validate --config gomigrator.yaml --history --runtime`,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().BoolVar(&validateHistory, "history", false,
		"Validate the history migration (default when neither --history nor --runtime is given)")
	validateCmd.Flags().BoolVar(&validateRuntime, "runtime", false,
		"Validate the runtime migration")

	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	history, runtime := migrateKinds(validateHistory, validateRuntime)

	fmt.Fprintf(outputWriter, "\n=== Configuration Validation ===\n")
	fmt.Fprintf(outputWriter, "Config file: %s\n\n", GetConfigFile())

	if !printConfigErrors(cfg.ValidateFor(history, runtime)) {
		return fmt.Errorf("configuration is invalid")
	}
	fmt.Fprintf(outputWriter, "✅ Configuration is valid\n")

	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	log.Info("Starting validation checks...")

	ctx := context.Background()

	dbManager := database.NewManager(cfg)
	defer dbManager.Close()

	hasErrors := false

	store, _, err := openLedger(ctx, dbManager, cfg, log)
	if err != nil {
		fmt.Fprintf(outputWriter, "❌ Ledger: %v\n", err)
		hasErrors = true
	} else {
		fmt.Fprintf(outputWriter, "✅ Ledger table %q ready (%s)\n", cfg.Ledger.Table, cfg.Ledger.Driver)
	}

	if history {
		if err := preflightHistory(ctx, dbManager, cfg, log); err != nil {
			fmt.Fprintf(outputWriter, "❌ Preflight checks failed: %v\n", err)
			hasErrors = true
		} else {
			fmt.Fprintf(outputWriter, "✅ History preflight checks passed\n")
		}
	}

	if runtime && store != nil {
		if _, err := newTransplanter(store, cfg, nil, log); err != nil {
			fmt.Fprintf(outputWriter, "❌ Runtime migrator: %v\n", err)
			hasErrors = true
		} else {
			fmt.Fprintf(outputWriter, "✅ Runtime migrator configured (job type %q)\n", cfg.Runtime.JobType)
		}
	}

	if hasErrors {
		return fmt.Errorf("validation failed")
	}

	fmt.Fprintln(outputWriter, "\n=== Validation Complete ===")
	return nil
}

// printConfigErrors prints each configuration error and reports whether the
// configuration is valid.
func printConfigErrors(err error) bool {
	if err == nil {
		return true
	}
	var verrs config.ValidationErrors
	if !errors.As(err, &verrs) {
		fmt.Fprintf(outputWriter, "❌ %v\n", err)
		return false
	}
	for _, e := range verrs {
		fmt.Fprintf(outputWriter, "❌ %s: %s\n", e.Field, e.Message)
	}
	return false
}

func preflightHistory(ctx context.Context, dbManager *database.Manager, cfg *config.Config, log *logger.Logger) error {
	ts, err := resolveTypes(nil, cfg.Migration.EntityTypes)
	if err != nil {
		return err
	}
	if len(ts) == 0 {
		ts = types.HistoryTypes
	}

	if err := dbManager.ConnectHistory(ctx); err != nil {
		return fmt.Errorf("failed to connect to databases: %w", err)
	}

	checker, err := migrator.NewPreflightChecker(
		migrator.Schema{DB: dbManager.Legacy, Database: cfg.Legacy.Database},
		migrator.Schema{DB: dbManager.Target, Database: cfg.Target.Database},
		log,
	)
	if err != nil {
		return err
	}
	return checker.RunAllChecks(ctx, ts)
}
