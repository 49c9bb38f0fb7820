package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/alma-cli/internal/governance"
	"github.com/sells-group/alma-cli/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// openStore validates config for mode, opens the store and migrates it.
func openStore(ctx context.Context, mode string) (store.Store, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

// newService builds the governance service. Stores that cannot compute
// portfolio signals leave signals unset.
func newService(st store.Store) *governance.Service {
	var signals governance.SignalCalculator
	if calc, ok := st.(governance.SignalCalculator); ok {
		signals = calc
	}
	return governance.NewService(st, signals)
}
