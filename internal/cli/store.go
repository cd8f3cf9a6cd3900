package cli

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/gravindex/internal/store"
)

// StoreOptions selects the durable store. A Postgres DSN takes precedence
// over the SQLite path.
type StoreOptions struct {
	Database string
	Postgres string
}

func (o *StoreOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.Database, "db", "gravindex.db", "path to SQLite database")
	cmd.Flags().StringVar(&o.Postgres, "postgres", "", "Postgres connection string (overrides --db)")
}

func (o *StoreOptions) open(ctx context.Context) (*store.Store, error) {
	if o.Postgres != "" {
		slog.Debug("opening postgres store")
		return store.OpenPostgres(ctx, o.Postgres)
	}
	slog.Debug("opening sqlite store", "path", o.Database)
	return store.Open(o.Database)
}

func closeStore(st *store.Store) {
	if err := st.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}
