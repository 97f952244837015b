package main

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/boardroom/config"
	"github.com/mohammad-safakhou/boardroom/internal/board"
	"github.com/mohammad-safakhou/boardroom/internal/gateway"
	"github.com/mohammad-safakhou/boardroom/internal/notify"
	"github.com/mohammad-safakhou/boardroom/internal/telemetry"
)

func discussCMD() *cobra.Command {
	var cfgPath string
	var userID string
	var discuss = &cobra.Command{
		Use:   "discuss [topic]",
		Short: "Run a board discussion on a topic and save the resulting strategy",
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

			var notifier notify.Broadcaster = notify.NoopBroadcaster{}
			if cfg.Notify.Enabled {
				rb := notify.NewRedisBroadcaster(cfg.Notify)
				defer rb.Close()
				notifier = rb
			}

			b := board.New(cfg.LLM, args[0], userID, gw, st, notifier, tele)
			doc, err := b.RunDiscussion(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("strategy %s saved: %s (%d missions)\n", b.StrategyID, doc.EffectiveTitle(), len(doc.Missions))
			return nil
		},
	}
	discuss.Flags().StringVar(&userID, "user", "", "user id to attribute the strategy to")
	discuss.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return discuss
}
