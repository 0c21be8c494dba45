package main

import (
	"fmt"
	core "trade_journal/internal/journal"
	"trade_journal/internal/modules/config"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRebuildStateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild-state",
		Short: "Rebuild the dedup state file from the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewConfig()
			if err != nil {
				return err
			}
			log, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			rows, err := core.ReadLedger(cfg.Journal.LedgerPath, cfg.Location())
			if err != nil {
				return err
			}

			exec := core.NewFileExecutor(1)
			defer exec.Close()
			state := core.NewStateStore(cfg.Journal.StatePath, exec, log.Named("state"))
			n := state.RecoverFromLedger(rows)
			if err := state.PersistNow(); err != nil {
				return err
			}

			log.Info("state rebuilt from ledger",
				zap.String("ledger", cfg.Journal.LedgerPath),
				zap.String("state", cfg.Journal.StatePath),
				zap.Int("rows", len(rows)),
				zap.Int("symbols", n),
			)
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d rows, %d symbols -> %s\n", len(rows), n, cfg.Journal.StatePath)
			return err
		},
	}
}
