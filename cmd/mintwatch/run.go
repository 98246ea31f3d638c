package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mintWatch/internal/bot"
	"mintWatch/internal/chain"
	"mintWatch/internal/config"
	"mintWatch/internal/indexer"
	"mintWatch/internal/metadata"
	"mintWatch/internal/metrics"
	"mintWatch/internal/model"
	"mintWatch/internal/nft"
	"mintWatch/internal/notify"
	"mintWatch/internal/storage"
	"mintWatch/internal/storage/postgres"
)

// updatesTimeout is the long-poll window of getUpdates, in seconds.
const updatesTimeout = 30

func runWatcher(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.Validate(true); err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	target, err := notify.ParseTarget(cfg.ChatID)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		startMetricsServer(ctx, cfg.MetricsAddr, logger)
	}

	app, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	chainID, err := app.chain.GetChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}
	if !chainID.IsUint64() {
		return fmt.Errorf("chain id does not fit in uint64: %s", chainID)
	}

	persist, err := openPersistence(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer persist.Close()

	detector := indexer.NewMintDetector(cfg.DedupWindow)
	keys, err := persist.recentKeys(ctx, cfg.ContractAddress().Hex(), cfg.DedupWindow)
	if err != nil {
		logger.Warn("load recent mints failed, dedup starts empty", zap.Error(err))
	}
	detector.Seed(keys)

	sendBot, err := newBotAPI(cfg.TelegramToken, cfg.RequestTimeout)
	if err != nil {
		return fmt.Errorf("connect telegram: %w", err)
	}

	dispatcher := notify.NewDispatcher(
		app.enricher,
		notify.NewTelegramNotifier(sendBot, target),
		cfg.QueueSize,
		metrics.NewNotifier(),
		logger,
	)
	dispatcher.Start(ctx)

	poller := indexer.NewPoller(indexer.PollConfig{
		Contract:     cfg.ContractAddress(),
		ChainID:      chainID.Uint64(),
		StartBlock:   cfg.StartBlock,
		BatchSize:    cfg.BatchSize,
		PollInterval: cfg.PollInterval,
		MaxBackoff:   cfg.MaxBackoff,
	}, indexer.Deps{
		Chain:    app.chain,
		Detector: detector,
		Handler:  dispatcher,
		Store:    persist.cursor,
		Journal:  persist.journal,
		Metrics:  metrics.NewPoller(),
	}, logger)

	if err := poller.Init(ctx); err != nil {
		dispatcher.Close()
		return err
	}

	logger.Info("mintwatch start",
		zap.Uint64("chain_id", chainID.Uint64()),
		zap.String("contract", cfg.ContractAddress().Hex()),
		zap.String("chat", target.String()),
		zap.Duration("poll_interval", cfg.PollInterval),
		zap.Uint64("batch_size", cfg.BatchSize),
		zap.Int("seeded_mints", detector.Len()),
		zap.Bool("commands_enabled", cfg.CommandsEnabled),
		zap.Bool("postgres", cfg.PGDSN != ""),
	)

	var wg sync.WaitGroup
	if cfg.CommandsEnabled {
		updatesBot, err := newBotAPI(cfg.TelegramToken, cfg.RequestTimeout+updatesTimeout*time.Second)
		if err != nil {
			dispatcher.Close()
			return fmt.Errorf("connect telegram: %w", err)
		}
		listener := bot.NewListener(updatesBot, app.commands, 0, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := listener.Run(ctx); err != nil {
				logger.Error("command listener failed", zap.Error(err))
			}
		}()
	}

	runErr := poller.Run(ctx)
	stop()
	wg.Wait()
	dispatcher.Close()

	logger.Info("mintwatch stop", zap.Uint64("last_processed", poller.LastProcessed()))
	return runErr
}

// app holds the chain-facing components shared by run and query.
type app struct {
	chain    *chain.Client
	enricher *metadata.Enricher
	commands *bot.Commands
}

func newApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	chainClient, err := chain.NewClient(ctx, cfg.RPCURL, cfg.RequestTimeout, metrics.NewRPCClient())
	if err != nil {
		return nil, fmt.Errorf("connect rpc: %w", err)
	}

	parsed, err := nft.LoadABI(cfg.ABIPath)
	if err != nil {
		chainClient.Close()
		return nil, fmt.Errorf("load abi: %w", err)
	}
	contract := nft.NewContract(cfg.ContractAddress(), parsed, chainClient)

	enricher := metadata.NewEnricher(contract, metadata.Config{
		IPFSGateway: cfg.IPFSGateway,
		Timeout:     cfg.RequestTimeout,
	}, nil, metrics.NewMetadata(), logger)

	commands := bot.NewCommands(contract, enricher, bot.Config{
		TransfersWindow: cfg.TransfersWindow,
		TransfersLimit:  cfg.TransfersLimit,
		MaxListedTokens: cfg.MaxListedTokens,
		RatePerSecond:   cfg.CommandRate,
	}, metrics.NewCommands(), logger)

	return &app{chain: chainClient, enricher: enricher, commands: commands}, nil
}

func (a *app) Close() {
	a.chain.Close()
}

// persistence bundles the cursor store, journal and dedup seed source.
type persistence struct {
	cursor  indexer.CursorStore
	journal storage.Storage
	jsonl   *storage.JsonlStorage
	pg      *postgres.Store
}

func openPersistence(ctx context.Context, cfg config.Config, logger *zap.Logger) (*persistence, error) {
	p := &persistence{}
	var sinks storage.Multi

	if cfg.Out != "" {
		p.jsonl = storage.NewJsonlStorage(cfg.Out)
		sinks = append(sinks, p.jsonl)
	}

	if cfg.PGDSN != "" {
		applied, err := postgres.Migrate(cfg.PGDSN)
		if err != nil {
			return nil, err
		}
		logger.Info("postgres schema ready", zap.Bool("migrated", applied))

		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		p.pg = store
		sinks = append(sinks, store)
		p.cursor = &indexer.DBCursorStore{Store: store, Name: cursorName(cfg.Contract)}
	} else {
		p.cursor = indexer.NewFileCursorStore(cfg.Checkpoint, cfg.ContractAddress().Hex(), cfg.CheckpointEnabled)
	}

	if len(sinks) > 0 {
		p.journal = sinks
	}
	return p, nil
}

func (p *persistence) recentKeys(ctx context.Context, contract string, limit int) ([]model.EventKey, error) {
	switch {
	case p.pg != nil:
		return p.pg.RecentMintKeys(ctx, contract, limit)
	case p.jsonl != nil:
		return p.jsonl.RecentMintKeys(ctx, limit)
	default:
		return nil, nil
	}
}

func (p *persistence) Close() {
	if p.pg != nil {
		p.pg.Close()
	}
}

func cursorName(contract string) string {
	return "mints:" + strings.ToLower(contract)
}

func newBotAPI(token string, timeout time.Duration) (*tgbotapi.BotAPI, error) {
	client := &http.Client{Timeout: timeout}
	return tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, client)
}

func startMetricsServer(ctx context.Context, addr string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("starting metrics server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown metrics server", zap.Error(err))
		}
	}()
}
