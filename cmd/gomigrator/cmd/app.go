package cmd

import (
	"context"
	"fmt"

	"github.com/dbsmedya/gomigrator/internal/config"
	"github.com/dbsmedya/gomigrator/internal/convert"
	"github.com/dbsmedya/gomigrator/internal/database"
	"github.com/dbsmedya/gomigrator/internal/keygen"
	"github.com/dbsmedya/gomigrator/internal/ledger"
	"github.com/dbsmedya/gomigrator/internal/legacy"
	"github.com/dbsmedya/gomigrator/internal/logger"
	"github.com/dbsmedya/gomigrator/internal/metrics"
	"github.com/dbsmedya/gomigrator/internal/migrator"
	"github.com/dbsmedya/gomigrator/internal/restclient"
	"github.com/dbsmedya/gomigrator/internal/sqlutil"
	"github.com/dbsmedya/gomigrator/internal/target"
	"github.com/dbsmedya/gomigrator/internal/transplant"
	"github.com/dbsmedya/gomigrator/internal/types"
	"github.com/dbsmedya/gomigrator/internal/variables"
)

// loadConfig reads the config file and applies the CLI overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	overrides := GetCLIOverrides()
	cfg.ApplyOverrides(overrides.LogLevel, overrides.LogFormat,
		overrides.PageSize, overrides.SleepSeconds, overrides.MaxInstances)
	return cfg, nil
}

// resolveTypes parses the --types flag, falling back to the configured
// migration.entity_types. An empty result means every history type.
func resolveTypes(names, fallback []string) ([]types.EntityType, error) {
	if len(names) == 0 {
		names = fallback
	}
	return types.ParseEntityTypes(names)
}

// openLedger connects the ledger database and makes sure its table exists.
func openLedger(ctx context.Context, mgr *database.Manager, cfg *config.Config, log *logger.Logger) (*ledger.Store, sqlutil.Dialect, error) {
	dialect, err := sqlutil.ParseDialect(cfg.Ledger.Driver)
	if err != nil {
		return nil, "", err
	}
	if err := mgr.ConnectLedger(ctx); err != nil {
		return nil, "", err
	}

	store, err := ledger.NewStore(mgr.Ledger, dialect, cfg.Ledger.Table, log)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open ledger: %w", err)
	}
	if err := store.InitializeSchema(ctx); err != nil {
		return nil, "", fmt.Errorf("failed to initialize ledger schema: %w", err)
	}
	return store, dialect, nil
}

// newHistoryMigrator wires the history pipelines over the connected legacy
// and target databases.
func newHistoryMigrator(mgr *database.Manager, store *ledger.Store, cfg *config.Config, collector *metrics.Collector, log *logger.Logger) (*migrator.HistoryMigrator, error) {
	source, err := legacy.NewSQLHistorySource(mgr.Legacy)
	if err != nil {
		return nil, err
	}
	writer, err := target.NewSQLHistoryWriter(mgr.Target)
	if err != nil {
		return nil, err
	}

	chain := convert.DefaultChain(variables.DefaultPipeline(), cfg.Migration.DefaultTenantID)
	if err := chain.Disable(cfg.Migration.DisabledInterceptors...); err != nil {
		return nil, fmt.Errorf("invalid migration.disabled_interceptors: %w", err)
	}

	keys, err := keygen.NewPartitioned(cfg.Processing.PartitionID)
	if err != nil {
		return nil, fmt.Errorf("failed to create key allocator: %w", err)
	}

	return migrator.NewHistoryMigrator(migrator.Deps{
		Source:  source,
		Writer:  writer,
		Ledger:  store,
		Chain:   chain,
		Keys:    keys,
		Metrics: collector,
		Logger:  log,
	}, cfg.Processing)
}

// newTransplanter wires the runtime migrator over both REST APIs.
func newTransplanter(store *ledger.Store, cfg *config.Config, collector *metrics.Collector, log *logger.Logger) (*transplant.Migrator, error) {
	legacyClient, err := restclient.New(cfg.LegacyAPI, nil)
	if err != nil {
		return nil, fmt.Errorf("legacy_api: %w", err)
	}
	targetClient, err := restclient.New(cfg.TargetAPI, nil)
	if err != nil {
		return nil, fmt.Errorf("target_api: %w", err)
	}

	return transplant.NewMigrator(transplant.Deps{
		Source:   legacy.NewRESTRuntimeSource(legacyClient),
		Engine:   target.NewRESTEngine(targetClient),
		Ledger:   store,
		Pipeline: variables.DefaultPipeline(),
		Metrics:  collector,
		Logger:   log,
	}, cfg.Runtime, cfg.Processing, cfg.Migration.DefaultTenantID)
}
