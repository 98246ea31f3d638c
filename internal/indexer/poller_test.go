package indexer

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mintWatch/internal/model"
	"mintWatch/internal/nft"
)

var testContract = common.HexToAddress("0x00000000000000000000000000000000000c0de1")

type logQuery struct {
	from, to uint64
}

type fakeChain struct {
	mu      sync.Mutex
	head    uint64
	headErr error
	logsErr error
	logs    []types.Log
	queries []logQuery
}

func (f *fakeChain) LatestBlockNumber(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.head, f.headErr
}

func (f *fakeChain) FilterLogs(_ context.Context, from, to uint64, _ []common.Address, _ []common.Hash) ([]types.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, logQuery{from: from, to: to})
	if f.logsErr != nil {
		return nil, f.logsErr
	}
	var out []types.Log
	for _, log := range f.logs {
		if log.BlockNumber >= from && log.BlockNumber <= to {
			out = append(out, log)
		}
	}
	return out, nil
}

type recordingHandler struct {
	mints []model.MintEvent
	err   error
}

func (h *recordingHandler) Handle(_ context.Context, mint model.MintEvent) error {
	h.mints = append(h.mints, mint)
	return h.err
}

type memCursorStore struct {
	last    uint64
	ok      bool
	saveErr error
	saves   []uint64
}

func (m *memCursorStore) Load(context.Context) (uint64, bool, error) {
	return m.last, m.ok, nil
}

func (m *memCursorStore) Save(_ context.Context, last uint64) error {
	m.saves = append(m.saves, last)
	if m.saveErr != nil {
		return m.saveErr
	}
	m.last, m.ok = last, true
	return nil
}

type memJournal struct {
	records []model.MintRecord
	err     error
}

func (j *memJournal) PutMintBatch(_ context.Context, records []model.MintRecord) error {
	if j.err != nil {
		return j.err
	}
	j.records = append(j.records, records...)
	return nil
}

func addressTopic(addr common.Address) common.Hash {
	return common.BytesToHash(common.LeftPadBytes(addr.Bytes(), 32))
}

func mintLog(to common.Address, tokenID int64, block uint64, index uint) types.Log {
	return transferLogAt(model.ZeroAddress, to, tokenID, block, index)
}

func transferLogAt(from, to common.Address, tokenID int64, block uint64, index uint) types.Log {
	return types.Log{
		Address: testContract,
		Topics: []common.Hash{
			nft.TransferTopic,
			addressTopic(from),
			addressTopic(to),
			common.BigToHash(big.NewInt(tokenID)),
		},
		BlockNumber: block,
		Index:       index,
		TxHash:      common.BigToHash(big.NewInt(int64(block)*1000 + int64(index))),
	}
}

func newTestPoller(chain *fakeChain, handler MintHandler, store CursorStore, journal *memJournal) *Poller {
	deps := Deps{Chain: chain, Handler: handler, Store: store}
	if journal != nil {
		deps.Journal = journal
	}
	return NewPoller(PollConfig{
		Contract:     testContract,
		ChainID:      56,
		PollInterval: time.Second,
		MaxBackoff:   8 * time.Second,
	}, deps, nil)
}

func TestPollerTickDetectsMint(t *testing.T) {
	owner := common.HexToAddress("0x000000000000000000000000000000000000abcd")
	chain := &fakeChain{head: 100, logs: []types.Log{mintLog(owner, 42, 103, 0)}}
	handler := &recordingHandler{}
	store := &memCursorStore{}
	journal := &memJournal{}

	p := newTestPoller(chain, handler, store, journal)
	require.NoError(t, p.Init(context.Background()))
	assert.Equal(t, uint64(100), p.LastProcessed())

	chain.head = 105
	require.NoError(t, p.Tick(context.Background()))

	assert.Equal(t, []logQuery{{from: 101, to: 105}}, chain.queries)
	require.Len(t, handler.mints, 1)
	assert.Equal(t, "42", handler.mints[0].TokenID.String())
	assert.Equal(t, owner, handler.mints[0].Owner())
	assert.Equal(t, uint64(105), p.LastProcessed())
	assert.Equal(t, []uint64{105}, store.saves)
	require.Len(t, journal.records, 1)
	assert.Equal(t, owner.Hex(), journal.records[0].Owner)
	assert.Equal(t, StateIdle, p.State())
}

func TestPollerTickUnchangedHead(t *testing.T) {
	chain := &fakeChain{head: 100}
	handler := &recordingHandler{}

	p := newTestPoller(chain, handler, nil, nil)
	require.NoError(t, p.Init(context.Background()))
	require.NoError(t, p.Tick(context.Background()))

	assert.Empty(t, chain.queries)
	assert.Empty(t, handler.mints)
	assert.Equal(t, uint64(100), p.LastProcessed())
}

func TestPollerTickIgnoresRegularTransfers(t *testing.T) {
	alice := common.HexToAddress("0x000000000000000000000000000000000000a11c")
	bob := common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	chain := &fakeChain{head: 10, logs: []types.Log{transferLogAt(alice, bob, 5, 12, 0)}}
	handler := &recordingHandler{}

	p := newTestPoller(chain, handler, nil, nil)
	require.NoError(t, p.Init(context.Background()))
	chain.head = 15
	require.NoError(t, p.Tick(context.Background()))

	assert.Empty(t, handler.mints)
	assert.Equal(t, uint64(15), p.LastProcessed())
}

func TestPollerTickSkipsMalformedAndRemovedLogs(t *testing.T) {
	owner := common.HexToAddress("0x000000000000000000000000000000000000abcd")
	malformed := mintLog(owner, 1, 11, 0)
	malformed.Topics = malformed.Topics[:3]
	removed := mintLog(owner, 2, 11, 1)
	removed.Removed = true
	good := mintLog(owner, 3, 12, 0)

	chain := &fakeChain{head: 10, logs: []types.Log{malformed, removed, good}}
	handler := &recordingHandler{}

	p := newTestPoller(chain, handler, nil, nil)
	require.NoError(t, p.Init(context.Background()))
	chain.head = 12
	require.NoError(t, p.Tick(context.Background()))

	require.Len(t, handler.mints, 1)
	assert.Equal(t, "3", handler.mints[0].TokenID.String())
	assert.Equal(t, uint64(12), p.LastProcessed())
}

func TestPollerTickFailureKeepsCursor(t *testing.T) {
	chain := &fakeChain{head: 100}
	p := newTestPoller(chain, &recordingHandler{}, nil, nil)
	require.NoError(t, p.Init(context.Background()))

	chain.head = 110
	chain.logsErr = errors.New("connection reset")
	require.Error(t, p.Tick(context.Background()))
	assert.Equal(t, uint64(100), p.LastProcessed())
	assert.Equal(t, StateError, p.State())

	chain.logsErr = nil
	require.NoError(t, p.Tick(context.Background()))
	assert.Equal(t, uint64(110), p.LastProcessed())
	assert.Equal(t, []logQuery{{from: 101, to: 110}, {from: 101, to: 110}}, chain.queries)
}

func TestPollerHandlerAndStoreFailuresDoNotBlockCursor(t *testing.T) {
	owner := common.HexToAddress("0x000000000000000000000000000000000000abcd")
	chain := &fakeChain{head: 100, logs: []types.Log{mintLog(owner, 1, 101, 0)}}
	handler := &recordingHandler{err: errors.New("telegram down")}
	store := &memCursorStore{saveErr: errors.New("disk full")}
	journal := &memJournal{err: errors.New("db down")}

	p := newTestPoller(chain, handler, store, journal)
	require.NoError(t, p.Init(context.Background()))
	chain.head = 101
	require.NoError(t, p.Tick(context.Background()))

	assert.Len(t, handler.mints, 1)
	assert.Equal(t, uint64(101), p.LastProcessed())
	assert.Equal(t, []uint64{101}, store.saves)
}

func TestPollerInitPrefersStoredCursor(t *testing.T) {
	chain := &fakeChain{head: 500}
	store := &memCursorStore{last: 200, ok: true}

	p := newTestPoller(chain, &recordingHandler{}, store, nil)
	require.NoError(t, p.Init(context.Background()))
	assert.Equal(t, uint64(200), p.LastProcessed())
}

func TestPollerInitStartBlock(t *testing.T) {
	tests := []struct {
		name  string
		start uint64
		store *memCursorStore
		want  uint64
	}{
		{name: "no checkpoint", start: 300, want: 299},
		{name: "first block", start: 1, want: 0},
		{name: "ahead of checkpoint", start: 300, store: &memCursorStore{last: 200, ok: true}, want: 299},
		{name: "behind checkpoint", start: 100, store: &memCursorStore{last: 200, ok: true}, want: 200},
		{name: "first block with checkpoint", start: 1, store: &memCursorStore{last: 200, ok: true}, want: 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := Deps{Chain: &fakeChain{head: 500}, Handler: &recordingHandler{}}
			if tt.store != nil {
				deps.Store = tt.store
			}
			p := NewPoller(PollConfig{Contract: testContract, StartBlock: tt.start}, deps, nil)

			require.NoError(t, p.Init(context.Background()))
			assert.Equal(t, tt.want, p.LastProcessed())
		})
	}
}

func TestPollerInitFailsWithoutHead(t *testing.T) {
	chain := &fakeChain{headErr: errors.New("dial tcp: refused")}
	p := newTestPoller(chain, &recordingHandler{}, nil, nil)

	require.Error(t, p.Init(context.Background()))
}

func TestPollerRunBacksOffAndResets(t *testing.T) {
	chain := &fakeChain{head: 100, headErr: errors.New("timeout")}
	p := newTestPoller(chain, &recordingHandler{}, &memCursorStore{last: 100, ok: true}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var delays []time.Duration
	p.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		switch len(delays) {
		case 3:
			chain.mu.Lock()
			chain.headErr = nil
			chain.mu.Unlock()
		case 4:
			cancel()
			return context.Canceled
		}
		return nil
	}

	require.NoError(t, p.Run(ctx))
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, time.Second}, delays)
}
