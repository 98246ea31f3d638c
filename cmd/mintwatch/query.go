package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"mintWatch/internal/config"
)

func runQuery(cmd *cobra.Command, args []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.Validate(false); err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	if !app.commands.Known(args[0]) {
		return fmt.Errorf("unknown command %q", args[0])
	}

	out := cmd.OutOrStdout()
	for _, reply := range app.commands.Dispatch(ctx, args[0], strings.Join(args[1:], " ")) {
		fmt.Fprintln(out, reply.Text)
		if reply.ImageURL != "" {
			fmt.Fprintf(out, "Image: %s\n", reply.ImageURL)
		}
	}
	return nil
}
