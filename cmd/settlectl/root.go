package main

import (
	"github.com/erp/settlement/internal/infrastructure/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var version = "1.0.0"

type rootOptions struct {
	logLevel string
	log      *zap.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "settlectl",
		Short: "Offline tools for open item settlement",
		Long: `settlectl runs the settlement allocation engine against exported open items.

It reads a CSV or XLSX export, opens a settlement session in memory and prints
how the tendered amount would be spread over the documents.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			log, err := logger.New(&logger.Config{
				Level:  opts.logLevel,
				Format: "console",
				Output: "stderr",
			})
			if err != nil {
				return err
			}
			opts.log = log
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.log != nil {
				_ = opts.log.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	cmd.AddCommand(newAllocateCmd(opts))
	return cmd
}
