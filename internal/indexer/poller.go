package indexer

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"mintWatch/internal/model"
	"mintWatch/internal/nft"
	"mintWatch/internal/storage"
)

// State is the phase the poller is in.
type State int32

const (
	StateIdle State = iota
	StateFetching
	StateProcessing
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateProcessing:
		return "processing"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// ChainReader is the read access the poller needs from the chain.
type ChainReader interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
}

// MintHandler receives every detected mint. Errors are logged and do not
// hold back the cursor.
type MintHandler interface {
	Handle(ctx context.Context, mint model.MintEvent) error
}

// Metrics records poller activity.
type Metrics interface {
	ObserveTick(err error, started time.Time)
	ObserveRange(from, to uint64, mints int)
	IncDecodeError()
}

// PollConfig holds runtime settings for the poller.
type PollConfig struct {
	Contract     common.Address
	ChainID      uint64
	StartBlock   uint64
	BatchSize    uint64
	PollInterval time.Duration
	MaxBackoff   time.Duration
}

// Deps are the collaborators of the poller. Store, Journal and Metrics are optional.
type Deps struct {
	Chain    ChainReader
	Detector *MintDetector
	Handler  MintHandler
	Store    CursorStore
	Journal  storage.Storage
	Metrics  Metrics
}

// Poller follows the chain head and hands newly minted tokens to a MintHandler.
// One tick runs at a time; the cursor only moves after a range is fully handled.
type Poller struct {
	cfg      PollConfig
	chain    ChainReader
	detector *MintDetector
	handler  MintHandler
	store    CursorStore
	journal  storage.Storage
	metrics  Metrics
	logger   *zap.Logger

	cursor  *Cursor
	backoff *Backoff
	state   atomic.Int32
	sleep   func(context.Context, time.Duration) error
	now     func() time.Time
}

// NewPoller builds a Poller with its dependencies.
func NewPoller(cfg PollConfig, deps Deps, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.MaxBackoff < cfg.PollInterval {
		cfg.MaxBackoff = cfg.PollInterval
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = nopMetrics{}
	}
	detector := deps.Detector
	if detector == nil {
		detector = NewMintDetector(0)
	}

	return &Poller{
		cfg:      cfg,
		chain:    deps.Chain,
		detector: detector,
		handler:  deps.Handler,
		store:    deps.Store,
		journal:  deps.Journal,
		metrics:  metrics,
		logger:   logger,
		backoff:  NewBackoff(cfg.PollInterval, cfg.MaxBackoff),
		sleep:    sleepContext,
		now:      time.Now,
	}
}

// State returns the current phase of the poller.
func (p *Poller) State() State {
	return State(p.state.Load())
}

// LastProcessed returns the cursor value. It is zero before Init.
func (p *Poller) LastProcessed() uint64 {
	if p.cursor == nil {
		return 0
	}
	return p.cursor.Last()
}

// Init positions the cursor: a stored checkpoint wins, then the configured
// start block, then the current chain head.
func (p *Poller) Init(ctx context.Context) error {
	if p.chain == nil {
		return fmt.Errorf("chain reader is nil")
	}
	if p.handler == nil {
		return fmt.Errorf("mint handler is nil")
	}

	var last uint64
	var resumed bool
	if p.store != nil {
		cp, ok, err := p.store.Load(ctx)
		if err != nil {
			return fmt.Errorf("load cursor: %w", err)
		}
		if ok {
			last, resumed = cp, true
		}
	}

	if p.cfg.StartBlock > 0 && (!resumed || p.cfg.StartBlock-1 > last) {
		last, resumed = p.cfg.StartBlock-1, true
	}

	if resumed {
		p.logger.Info("resume from cursor", zap.Uint64("last_processed", last))
	} else {
		head, err := p.chain.LatestBlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("get latest block: %w", err)
		}
		last = head
		p.logger.Info("start from chain head", zap.Uint64("head", head))
	}

	p.cursor = NewCursor(last, p.cfg.BatchSize)
	return nil
}

// Run executes the polling loop until ctx is canceled. RPC failures never
// end the loop; they push the next tick out by an exponential backoff.
func (p *Poller) Run(ctx context.Context) error {
	if p.cursor == nil {
		if err := p.Init(ctx); err != nil {
			return err
		}
	}

	p.logger.Info("poller start",
		zap.String("contract", p.cfg.Contract.Hex()),
		zap.Uint64("last_processed", p.cursor.Last()),
		zap.Duration("interval", p.cfg.PollInterval),
	)

	for {
		delay := p.cfg.PollInterval
		if err := p.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			delay = p.backoff.Next()
			p.logger.Warn("poll tick failed",
				zap.Error(err),
				zap.Uint64("last_processed", p.cursor.Last()),
				zap.Duration("retry_in", delay),
			)
		} else {
			p.backoff.Reset()
		}

		if err := p.sleep(ctx, delay); err != nil {
			p.logger.Info("poller stop", zap.Uint64("last_processed", p.cursor.Last()))
			return nil
		}
		p.setState(StateIdle)
	}
}

// Tick processes every block between the cursor and the current head.
func (p *Poller) Tick(ctx context.Context) error {
	if p.cursor == nil {
		return fmt.Errorf("poller not initialized")
	}

	started := p.now()
	err := p.tick(ctx)
	if err != nil {
		p.setState(StateError)
	} else {
		p.setState(StateIdle)
	}
	p.metrics.ObserveTick(err, started)
	return err
}

func (p *Poller) tick(ctx context.Context) error {
	p.setState(StateFetching)

	head, err := p.chain.LatestBlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("get latest block: %w", err)
	}

	blockRange, ok := p.cursor.NextRange(head)
	if !ok {
		return nil
	}

	p.logger.Debug("fetch logs", zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))

	logs, err := p.chain.FilterLogs(ctx, blockRange.From, blockRange.To, []common.Address{p.cfg.Contract}, []common.Hash{nft.TransferTopic})
	if err != nil {
		return fmt.Errorf("filter logs [%d, %d]: %w", blockRange.From, blockRange.To, err)
	}

	p.setState(StateProcessing)

	mints := p.detector.Detect(p.decode(logs))
	for _, mint := range mints {
		if err := p.handler.Handle(ctx, mint); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.logger.Warn("mint handoff failed",
				zap.String("token_id", mint.TokenID.String()),
				zap.Stringer("event", mint.Key()),
				zap.Error(err),
			)
		}
	}

	if p.journal != nil && len(mints) > 0 {
		records := buildMintRecords(p.cfg.ChainID, p.cfg.Contract.Hex(), mints, p.now())
		if err := p.journal.PutMintBatch(ctx, records); err != nil {
			p.logger.Warn("store mints failed", zap.Int("mints", len(mints)), zap.Error(err))
		}
	}

	if err := p.cursor.Advance(blockRange.To); err != nil {
		return err
	}
	if p.store != nil {
		if err := p.store.Save(ctx, blockRange.To); err != nil {
			p.logger.Warn("save cursor failed", zap.Uint64("last_processed", blockRange.To), zap.Error(err))
		}
	}
	p.metrics.ObserveRange(blockRange.From, blockRange.To, len(mints))

	p.logger.Info("batch complete",
		zap.Int("logs", len(logs)),
		zap.Int("mints", len(mints)),
		zap.Uint64("from", blockRange.From),
		zap.Uint64("to", blockRange.To),
	)
	return nil
}

func (p *Poller) decode(logs []types.Log) []model.TransferEvent {
	events := make([]model.TransferEvent, 0, len(logs))
	for _, log := range logs {
		if log.Removed || log.Address != p.cfg.Contract {
			continue
		}
		event, err := nft.DecodeTransfer(log)
		if err != nil {
			p.metrics.IncDecodeError()
			record := nft.DecodeErrorFromLog(log, err)
			p.logger.Warn("skip undecodable log",
				zap.Uint64("block_number", record.BlockNumber),
				zap.Uint64("log_index", record.LogIndex),
				zap.String("tx_hash", record.TxHash),
				zap.String("topic0", record.Topic0),
				zap.Error(err),
			)
			continue
		}
		events = append(events, event)
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Key().Less(events[j].Key())
	})
	return events
}

func (p *Poller) setState(s State) {
	p.state.Store(int32(s))
}

type nopMetrics struct{}

func (nopMetrics) ObserveTick(error, time.Time) {}
func (nopMetrics) ObserveRange(uint64, uint64, int) {}
func (nopMetrics) IncDecodeError() {}
