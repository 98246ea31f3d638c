package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "mintwatch",
		Short:        "NFT mint tracker with Telegram alerts",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Watch the contract for mints and answer chat commands",
		RunE:  runWatcher,
	}

	addChainFlags(runCmd)
	runCmd.Flags().String("telegram-token", "", "Telegram bot token")
	runCmd.Flags().String("chat-id", "", "chat id or @channel receiving mint alerts")
	runCmd.Flags().Duration("poll-interval", 5*time.Second, "delay between poll ticks")
	runCmd.Flags().Duration("max-backoff", 2*time.Minute, "maximum delay after failed ticks")
	runCmd.Flags().Uint64("batch-size", 2000, "maximum blocks scanned per tick")
	runCmd.Flags().Uint64("start-block", 0, "first block to scan when no checkpoint exists, 0 means chain head")
	runCmd.Flags().Int("dedup-window", 10000, "number of mint keys remembered for deduplication")
	runCmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path")
	runCmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	runCmd.Flags().String("out", "./data/mints.jsonl", "mint journal JSONL path, empty disables it")
	runCmd.Flags().String("pg-dsn", "", "Postgres DSN for cursor, journal and dedup state")
	runCmd.Flags().String("metrics-addr", "", "prometheus listen address, empty disables it")
	runCmd.Flags().Int("queue-size", 64, "pending mint alerts before the poller waits")
	runCmd.Flags().Bool("commands-enabled", true, "answer chat commands")

	root.AddCommand(runCmd)

	queryCmd := &cobra.Command{
		Use:   "query <command> [arg]",
		Short: "Run a chat command once and print the reply",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runQuery,
	}

	addChainFlags(queryCmd)

	root.AddCommand(queryCmd)

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply Postgres schema migrations",
		RunE:  runMigrate,
	}

	migrateCmd.Flags().String("pg-dsn", "", "Postgres DSN")

	root.AddCommand(migrateCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addChainFlags(cmd *cobra.Command) {
	cmd.Flags().String("rpc", "", "chain RPC URL")
	cmd.Flags().String("contract", "", "NFT contract address")
	cmd.Flags().String("abi", "", "contract ABI JSON file, embedded ERC-721 ABI when empty")
	cmd.Flags().Duration("request-timeout", 15*time.Second, "timeout for each RPC and HTTP call")
	cmd.Flags().String("ipfs-gateway", "https://ipfs.io/ipfs/", "gateway used for ipfs:// URIs")
	cmd.Flags().Int("command-rate", 10, "contract calls per second issued by commands, 0 disables the cap")
	cmd.Flags().Uint64("transfers-window", 5000, "blocks scanned by the transfers command")
	cmd.Flags().Int("transfers-limit", 5, "transfers listed by the transfers command")
	cmd.Flags().Int("max-listed-tokens", 50, "tokens listed by the mytokens command")
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
