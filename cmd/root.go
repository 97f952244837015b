package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/boardroom/config"
	"github.com/mohammad-safakhou/boardroom/internal/store"
)

func main() {
	var root = &cobra.Command{Use: "boardroom"}

	root.AddCommand(serveCMD(), migrateCMD(), discussCMD(), executeCMD())
	_ = root.Execute()
}

// openStore connects using the config file when it carries Postgres settings,
// otherwise falls back to the POSTGRES_* / DATABASE_URL environment.
func openStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	if err := cfg.Storage.Postgres.Validate(); err == nil {
		return store.NewWithDSN(ctx, cfg.Storage.Postgres.DSN())
	}
	return store.New(ctx)
}
