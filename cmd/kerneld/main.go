// Command kerneld runs the matching-engine kernel as a standalone
// process: load config, recover durable state, start the event hub and
// liquidation monitor under tomb supervision, and block until a signal
// arrives. It generalizes the teacher's cmd/main.go (context + tomb +
// signal.NotifyContext wiring) into a cobra root command with subcommands,
// the pattern the retrieval pack's dbn-go-file CLI uses for multi-command
// tools.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	tomb "gopkg.in/tomb.v2"

	"rindex/internal/common"
	"rindex/internal/config"
	"rindex/internal/hub"
	"rindex/internal/kernel"
	"rindex/internal/liquidation"
	"rindex/internal/store"
)

// version is stamped at build time via -ldflags; "dev" otherwise.
var version = "dev"

var configPath string

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	rootCmd := &cobra.Command{
		Use:   "kerneld",
		Short: "kerneld runs the R.index perpetual-futures matching kernel",
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file (optional)")

	rootCmd.AddCommand(serveCmd(), seedCmd(), versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the kerneld build version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the matching kernel, event hub, and liquidation monitor",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			st, err := store.Open(cfg.DatabasePath, cfg.Instrument)
			if err != nil {
				return fmt.Errorf("kerneld: opening store: %w", err)
			}

			h := hub.New()
			k := kernel.New(cfg.Instrument, cfg, st, h)
			if err := k.Recover(); err != nil {
				return fmt.Errorf("kerneld: recovering kernel state: %w", err)
			}

			mon := liquidation.New(k, time.Duration(cfg.LiquidationCheckMS)*time.Millisecond)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			var t tomb.Tomb
			t.Go(func() error { return h.Run(&t) })
			t.Go(func() error { return mon.Run(&t) })

			log.Info().Str("instrument", cfg.Instrument).Str("db", cfg.DatabasePath).Msg("kerneld: serving")

			<-ctx.Done()
			log.Info().Msg("kerneld: shutdown signal received")
			t.Kill(nil)
			return t.Wait()
		},
	}
}

func seedCmd() *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Register demo traders into the configured database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			st, err := store.Open(cfg.DatabasePath, cfg.Instrument)
			if err != nil {
				return fmt.Errorf("kerneld: opening store: %w", err)
			}
			for i := 0; i < count; i++ {
				trader := common.Trader{
					ID:       uuid.New(),
					Username: fmt.Sprintf("demo-trader-%02d", i+1),
					Type:     common.Bot,
					Balance:  cfg.StartingTraderBalance,
					CreatedAt: nowUTC(),
				}
				if err := st.UpsertTrader(trader); err != nil {
					return fmt.Errorf("kerneld: seeding trader %s: %w", trader.Username, err)
				}
				log.Info().Str("username", trader.Username).Str("balance", trader.Balance.String()).Msg("kerneld: seeded trader")
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 5, "number of demo traders to seed")
	return cmd
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
