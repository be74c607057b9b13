package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/invoice-memory/internal/resilience"
	"github.com/sells-group/invoice-memory/internal/store"
)

// openStore opens the configured store backend and runs migrations. Connecting
// retries transient failures so a restarting database doesn't fail the run.
func openStore(ctx context.Context) (store.Store, error) {
	var st store.Store

	retryCfg := resilience.DefaultRetryConfig()
	retryCfg.OnRetry = resilience.RetryLogger("open store")

	err := resilience.Do(ctx, retryCfg, func(ctx context.Context) error {
		var err error
		switch cfg.Store.Driver {
		case "postgres":
			st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL)
		case "sqlite", "":
			st, err = store.NewSQLite(cfg.Store.DatabaseURL)
		default:
			return eris.Errorf("unknown store driver: %s", cfg.Store.Driver)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}
