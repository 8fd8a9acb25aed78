package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/snipd/internal/config"
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Process the unprocessed backlog once and exit",
	Long: `Drain the current backlog of unprocessed entries through the full
pipeline (extraction, decision, execution) and exit. Suitable for
cron-style operation.`,
	RunE: runProcess,
}

func runProcess(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a, err := buildApp(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer a.close()

	return a.coord.Drain(ctx)
}
