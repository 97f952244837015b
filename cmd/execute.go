package main

import (
	"context"
	"log"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/boardroom/config"
	"github.com/mohammad-safakhou/boardroom/internal/executor"
	"github.com/mohammad-safakhou/boardroom/internal/gateway"
	"github.com/mohammad-safakhou/boardroom/internal/telemetry"
)

func executeCMD() *cobra.Command {
	var cfgPath string
	var execute = &cobra.Command{
		Use:   "execute [strategy-id]",
		Short: "Execute a saved strategy's missions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			ctx := context.Background()

			st, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.DB.Close()

			tele := telemetry.NewTelemetry(cfg.Telemetry)
			gw := gateway.New(cfg.LLM, log.New(log.Writer(), "[GATEWAY] ", log.LstdFlags), gateway.WithTelemetry(tele))

			ex := executor.New(args[0], st, gw, cfg.Workspace, tele)
			return ex.Execute(ctx)
		},
	}
	execute.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return execute
}
