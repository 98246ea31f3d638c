package nft

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mintWatch/internal/model"
)

type fakeBackend struct {
	abi     abi.ABI
	results map[string][]interface{}
	errs    map[string]error
	head    uint64
	logs    []types.Log

	filterFrom uint64
	filterTo   uint64
}

func (f *fakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	method, err := f.abi.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	if err := f.errs[method.Name]; err != nil {
		return nil, err
	}
	values, ok := f.results[method.Name]
	if !ok {
		return nil, fmt.Errorf("execution reverted")
	}
	return method.Outputs.Pack(values...)
}

func (f *fakeBackend) LatestBlockNumber(context.Context) (uint64, error) {
	return f.head, nil
}

func (f *fakeBackend) FilterLogs(_ context.Context, from, to uint64, _ []common.Address, _ []common.Hash) ([]types.Log, error) {
	f.filterFrom, f.filterTo = from, to
	return f.logs, nil
}

func newTestContract(t *testing.T, parsed abi.ABI, backend *fakeBackend) *Contract {
	t.Helper()
	backend.abi = parsed
	return NewContract(common.HexToAddress("0x33df1aeb441456dd1257c1011c6d776e8464ebf5"), parsed, backend)
}

func TestContractReads(t *testing.T) {
	parsed, err := ERC721ABI()
	require.NoError(t, err)

	owner := common.HexToAddress("0x000000000000000000000000000000000000abcd")
	backend := &fakeBackend{results: map[string][]interface{}{
		"totalMinted":         {big.NewInt(120)},
		"remainingSupply":     {big.NewInt(880)},
		"tokenURI":            {"ipfs://meta/42"},
		"ownerOf":             {owner},
		"balanceOf":           {big.NewInt(2)},
		"tokenOfOwnerByIndex": {big.NewInt(7)},
	}}
	contract := newTestContract(t, parsed, backend)
	ctx := context.Background()

	minted, err := contract.TotalMinted(ctx)
	require.NoError(t, err)
	assert.Equal(t, "120", minted.String())

	remaining, err := contract.RemainingSupply(ctx)
	require.NoError(t, err)
	assert.Equal(t, "880", remaining.String())

	uri, err := contract.TokenURI(ctx, big.NewInt(42))
	require.NoError(t, err)
	assert.Equal(t, "ipfs://meta/42", uri)

	got, err := contract.OwnerOf(ctx, big.NewInt(42))
	require.NoError(t, err)
	assert.Equal(t, owner, got)

	balance, err := contract.BalanceOf(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, "2", balance.String())

	id, err := contract.TokenOfOwnerByIndex(ctx, owner, big.NewInt(0))
	require.NoError(t, err)
	assert.Equal(t, "7", id.String())
}

func TestContractRevert(t *testing.T) {
	parsed, err := ERC721ABI()
	require.NoError(t, err)

	revert := errors.New("execution reverted: ERC721: invalid token ID")
	backend := &fakeBackend{errs: map[string]error{"ownerOf": revert}}
	contract := newTestContract(t, parsed, backend)

	_, err = contract.OwnerOf(context.Background(), big.NewInt(42))
	require.Error(t, err)
	assert.True(t, errors.Is(err, revert))
}

func TestContractTokenDetailsMissingFromABI(t *testing.T) {
	parsed, err := ERC721ABI()
	require.NoError(t, err)
	contract := newTestContract(t, parsed, &fakeBackend{})

	_, err = contract.TokenDetails(context.Background(), big.NewInt(1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMethodNotInABI))
	assert.False(t, contract.HasMethod("getTokenDetails"))
}

func TestContractTokenDetailsTuple(t *testing.T) {
	path := filepath.Join(t.TempDir(), "abi.json")
	artifact := `{"contractName":"Collection","abi":[
	  {"inputs":[{"name":"tokenId","type":"uint256"}],"name":"getTokenDetails",
	   "outputs":[{"components":[{"name":"rarity","type":"string"},{"name":"level","type":"uint256"}],"name":"","type":"tuple"}],
	   "stateMutability":"view","type":"function"}
	]}`
	require.NoError(t, os.WriteFile(path, []byte(artifact), 0o644))

	parsed, err := LoadABI(path)
	require.NoError(t, err)
	assert.Contains(t, parsed.Methods, "ownerOf")
	assert.Contains(t, parsed.Events, "Transfer")

	details := struct {
		Rarity string
		Level  *big.Int
	}{Rarity: "legendary", Level: big.NewInt(9)}
	backend := &fakeBackend{results: map[string][]interface{}{"getTokenDetails": {details}}}
	contract := newTestContract(t, parsed, backend)

	fields, err := contract.TokenDetails(context.Background(), big.NewInt(5))
	require.NoError(t, err)
	assert.Equal(t, []Field{{Name: "rarity", Value: "legendary"}, {Name: "level", Value: "9"}}, fields)
}

func TestContractRecentTransfers(t *testing.T) {
	parsed, err := ERC721ABI()
	require.NoError(t, err)

	a := common.HexToAddress("0x1111111111111111111111111111111111111111")
	b := common.HexToAddress("0x2222222222222222222222222222222222222222")
	malformed := types.Log{Topics: []common.Hash{TransferTopic}, BlockNumber: 995}
	removed := transferLog(a, b, big.NewInt(99), 996, 0)
	removed.Removed = true

	backend := &fakeBackend{
		head: 1000,
		logs: []types.Log{
			transferLog(model.ZeroAddress, a, big.NewInt(1), 990, 0),
			malformed,
			removed,
			transferLog(a, b, big.NewInt(1), 997, 1),
			transferLog(model.ZeroAddress, b, big.NewInt(2), 999, 0),
		},
	}
	contract := newTestContract(t, parsed, backend)

	events, err := contract.RecentTransfers(context.Background(), 100, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, uint64(900), backend.filterFrom)
	assert.Equal(t, uint64(1000), backend.filterTo)
	assert.Equal(t, uint64(997), events[0].BlockNumber)
	assert.Equal(t, "2", events[1].TokenID.String())
}

func TestContractRecentTransfersWindowLargerThanHead(t *testing.T) {
	parsed, err := ERC721ABI()
	require.NoError(t, err)

	backend := &fakeBackend{head: 10}
	contract := newTestContract(t, parsed, backend)

	_, err = contract.RecentTransfers(context.Background(), 5000, 5)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), backend.filterFrom)
}
