package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mintWatch/internal/model"
)

func record(block uint64, index uint32, tokenID string) model.MintRecord {
	return model.MintRecord{
		ChainID:     56,
		Contract:    "0x00000000000000000000000000000000000c0de1",
		BlockNumber: block,
		LogIndex:    index,
		TokenID:     tokenID,
		Owner:       "0x000000000000000000000000000000000000ABcD",
	}
}

func TestJsonlStorageAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "mints.jsonl")
	s := NewJsonlStorage(path)
	ctx := context.Background()

	require.NoError(t, s.PutMintBatch(ctx, []model.MintRecord{record(103, 0, "42")}))
	require.NoError(t, s.PutMintBatch(ctx, []model.MintRecord{record(104, 1, "43")}))
	require.NoError(t, s.PutMintBatch(ctx, nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"token_id":"42"`)
	assert.Contains(t, lines[1], `"block_number":104`)
}

func TestJsonlStorageRecentMintKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mints.jsonl")
	s := NewJsonlStorage(path)
	ctx := context.Background()

	keys, err := s.RecentMintKeys(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, keys)

	batch := make([]model.MintRecord, 0, 5)
	for i := uint64(1); i <= 5; i++ {
		batch = append(batch, record(i, 0, "1"))
	}
	require.NoError(t, s.PutMintBatch(ctx, batch))

	keys, err = s.RecentMintKeys(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []model.EventKey{{BlockNumber: 4}, {BlockNumber: 5}}, keys)
}

type failingSink struct{ err error }

func (f failingSink) PutMintBatch(context.Context, []model.MintRecord) error { return f.err }

func TestMultiWritesAllSinks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mints.jsonl")
	boom := errors.New("boom")
	m := Multi{failingSink{err: boom}, NewJsonlStorage(path)}

	err := m.PutMintBatch(context.Background(), []model.MintRecord{record(1, 0, "1")})
	require.ErrorIs(t, err, boom)

	_, statErr := os.Stat(path)
	assert.NoError(t, statErr)
}
