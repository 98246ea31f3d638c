package bot

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mintWatch/internal/metadata"
	"mintWatch/internal/model"
	"mintWatch/internal/nft"
)

var holder = common.HexToAddress("0x000000000000000000000000000000000000abcd")

type fakeContract struct {
	methods   map[string]bool
	total     *big.Int
	remaining *big.Int
	owners    map[string]common.Address
	uris      map[string]string
	holdings  []int64
	details   []nft.Field
	transfers []model.TransferEvent
	err       error
	calls     int
}

func (f *fakeContract) HasMethod(method string) bool { return f.methods[method] }

func (f *fakeContract) TotalMinted(context.Context) (*big.Int, error) {
	f.calls++
	return f.total, f.err
}

func (f *fakeContract) RemainingSupply(context.Context) (*big.Int, error) {
	f.calls++
	return f.remaining, f.err
}

func (f *fakeContract) TokenURI(_ context.Context, id *big.Int) (string, error) {
	f.calls++
	uri, ok := f.uris[id.String()]
	if !ok {
		return "", errors.New("execution reverted: nonexistent token")
	}
	return uri, nil
}

func (f *fakeContract) OwnerOf(_ context.Context, id *big.Int) (common.Address, error) {
	f.calls++
	owner, ok := f.owners[id.String()]
	if !ok {
		return common.Address{}, errors.New("execution reverted: ERC721: invalid token ID")
	}
	return owner, nil
}

func (f *fakeContract) BalanceOf(context.Context, common.Address) (*big.Int, error) {
	f.calls++
	return big.NewInt(int64(len(f.holdings))), f.err
}

func (f *fakeContract) TokenOfOwnerByIndex(_ context.Context, _ common.Address, index *big.Int) (*big.Int, error) {
	f.calls++
	return big.NewInt(f.holdings[index.Int64()]), nil
}

func (f *fakeContract) TokenDetails(context.Context, *big.Int) ([]nft.Field, error) {
	f.calls++
	return f.details, f.err
}

func (f *fakeContract) RecentTransfers(_ context.Context, _ uint64, limit int) ([]model.TransferEvent, error) {
	f.calls++
	events := f.transfers
	if len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events, f.err
}

type fakeResolver struct {
	meta map[string]model.TokenMetadata
	errs map[string]error
}

func (f *fakeResolver) Resolve(_ context.Context, id *big.Int) (model.TokenMetadata, error) {
	if err, ok := f.errs[id.String()]; ok {
		return model.DefaultTokenMetadata(id), err
	}
	if meta, ok := f.meta[id.String()]; ok {
		return meta, nil
	}
	return model.DefaultTokenMetadata(id), nil
}

func newTestCommands(contract *fakeContract, resolver *fakeResolver) *Commands {
	if resolver == nil {
		resolver = &fakeResolver{}
	}
	return NewCommands(contract, resolver, Config{MaxListedTokens: 3}, nil, nil)
}

func TestOwnerCommand(t *testing.T) {
	contract := &fakeContract{owners: map[string]common.Address{"42": holder}}
	c := newTestCommands(contract, nil)

	replies := c.Dispatch(context.Background(), "owner", "42")
	require.Len(t, replies, 1)
	assert.Equal(t, "🏠 Token 42 is owned by:\n"+holder.Hex(), replies[0].Text)
}

func TestOwnerCommandRevertIsReply(t *testing.T) {
	contract := &fakeContract{owners: map[string]common.Address{}}
	c := newTestCommands(contract, nil)

	replies := c.Dispatch(context.Background(), "/owner", "42")
	require.Len(t, replies, 1)
	assert.True(t, strings.HasPrefix(replies[0].Text, "⚠️ Error fetching owner:"))
	assert.Contains(t, replies[0].Text, "execution reverted")
}

func TestTokenArgumentValidation(t *testing.T) {
	contract := &fakeContract{}
	c := newTestCommands(contract, nil)

	tests := []struct {
		command, args, want string
	}{
		{command: "owner", args: "", want: "missing token id"},
		{command: "preview", args: "abc", want: `invalid token id "abc"`},
		{command: "rarity", args: "-1", want: `invalid token id "-1"`},
		{command: "mytokens", args: "", want: "missing address"},
		{command: "mytokens", args: "0x1234", want: `invalid address "0x1234"`},
	}
	for _, tt := range tests {
		t.Run(tt.command+" "+tt.args, func(t *testing.T) {
			replies := c.Dispatch(context.Background(), tt.command, tt.args)
			require.Len(t, replies, 1)
			assert.Contains(t, replies[0].Text, tt.want)
			assert.Contains(t, replies[0].Text, "Usage: /"+tt.command)
		})
	}
	assert.Zero(t, contract.calls)
}

func TestMintCountCommand(t *testing.T) {
	contract := &fakeContract{
		methods:   map[string]bool{"remainingSupply": true},
		total:     big.NewInt(120),
		remaining: big.NewInt(880),
	}
	c := newTestCommands(contract, nil)

	replies := c.Dispatch(context.Background(), "mintcount", "")
	require.Len(t, replies, 1)
	assert.Equal(t, "🧮 Mint Count\nTotal Minted: 120\nRemaining Supply: 880", replies[0].Text)
}

func TestLatestChainsIntoPreview(t *testing.T) {
	contract := &fakeContract{
		total: big.NewInt(10),
		uris:  map[string]string{"9": "ipfs://QmMeta/9"},
	}
	resolver := &fakeResolver{meta: map[string]model.TokenMetadata{
		"9": {Name: "Nine", ImageURI: "https://cdn.example/9.png", Attributes: []model.Attribute{{TraitType: "Eyes", Value: "Laser"}}},
	}}
	c := newTestCommands(contract, resolver)

	replies := c.Dispatch(context.Background(), "latest", "")
	require.Len(t, replies, 2)
	assert.Equal(t, "🆕 Latest NFT Minted\nToken ID: 9\nipfs://QmMeta/9", replies[0].Text)
	assert.Equal(t, "🖼️ Nine\nToken ID: 9\nEyes: Laser", replies[1].Text)
	assert.Equal(t, "https://cdn.example/9.png", replies[1].ImageURL)
}

func TestLatestWithNoMints(t *testing.T) {
	c := newTestCommands(&fakeContract{total: big.NewInt(0)}, nil)

	replies := c.Dispatch(context.Background(), "latest", "")
	require.Len(t, replies, 1)
	assert.Equal(t, "No tokens minted yet.", replies[0].Text)
}

func TestPreviewDegradesOnFetchFailure(t *testing.T) {
	resolver := &fakeResolver{errs: map[string]error{
		"7": &metadata.Error{TokenID: big.NewInt(7), Stage: metadata.StageFetch, Err: errors.New("timeout")},
		"8": &metadata.Error{TokenID: big.NewInt(8), Stage: metadata.StageTokenURI, Err: errors.New("execution reverted")},
	}}
	c := newTestCommands(&fakeContract{}, resolver)

	replies := c.Dispatch(context.Background(), "preview", "7")
	require.Len(t, replies, 1)
	assert.Equal(t, "🖼️ Token #7\nToken ID: 7", replies[0].Text)
	assert.Empty(t, replies[0].ImageURL)

	replies = c.Dispatch(context.Background(), "preview", "8")
	require.Len(t, replies, 1)
	assert.Equal(t, "⚠️ Error fetching token: execution reverted", replies[0].Text)
}

func TestRarityUsesTokenDetails(t *testing.T) {
	contract := &fakeContract{
		methods: map[string]bool{"getTokenDetails": true},
		details: []nft.Field{{Name: "rarity", Value: "Legendary"}, {Name: "power", Value: "99"}},
	}
	c := newTestCommands(contract, nil)

	replies := c.Dispatch(context.Background(), "traits", "3")
	require.Len(t, replies, 1)
	assert.Equal(t, "📊 Rarity Details for Token 3:\nrarity: Legendary\npower: 99", replies[0].Text)
}

func TestRarityFallsBackToAttributes(t *testing.T) {
	resolver := &fakeResolver{meta: map[string]model.TokenMetadata{
		"3": {Name: "Three", Attributes: []model.Attribute{{TraitType: "Hat", Value: "Crown"}}},
	}}
	c := newTestCommands(&fakeContract{}, resolver)

	replies := c.Dispatch(context.Background(), "rarity", "3")
	require.Len(t, replies, 1)
	assert.Equal(t, "📊 Traits of Three:\nHat: Crown", replies[0].Text)

	replies = c.Dispatch(context.Background(), "rarity", "4")
	require.Len(t, replies, 1)
	assert.Equal(t, "No traits found for token 4.", replies[0].Text)
}

func TestMyTokensCapsListing(t *testing.T) {
	contract := &fakeContract{holdings: []int64{4, 8, 15, 16, 23}}
	c := newTestCommands(contract, nil)

	replies := c.Dispatch(context.Background(), "mytokens", holder.Hex())
	require.Len(t, replies, 1)
	assert.Equal(t, fmt.Sprintf("🎒 %s owns 5 tokens:\n4, 8, 15\n(showing first 3)", holder.Hex()), replies[0].Text)
}

func TestMyTokensEmpty(t *testing.T) {
	c := newTestCommands(&fakeContract{}, nil)

	replies := c.Dispatch(context.Background(), "mytokens", holder.Hex())
	require.Len(t, replies, 1)
	assert.Equal(t, fmt.Sprintf("🎒 %s owns no tokens.", holder.Hex()), replies[0].Text)
}

func TestTransfersCommand(t *testing.T) {
	other := common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	contract := &fakeContract{transfers: []model.TransferEvent{
		{From: model.ZeroAddress, To: holder, TokenID: big.NewInt(1)},
		{From: holder, To: other, TokenID: big.NewInt(1)},
	}}
	c := newTestCommands(contract, nil)

	replies := c.Dispatch(context.Background(), "transfers", "")
	require.Len(t, replies, 1)
	lines := strings.Split(replies[0].Text, "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, fmt.Sprintf("🔄 Token 1 from %s to %s", holder.Hex(), other.Hex()), lines[1])

	replies = newTestCommands(&fakeContract{}, nil).Dispatch(context.Background(), "transfers", "")
	assert.Equal(t, "No recent transfers.", replies[0].Text)
}

func TestUnknownAndHelp(t *testing.T) {
	c := newTestCommands(&fakeContract{}, nil)

	assert.False(t, c.Known("launch"))
	assert.True(t, c.Known("/Owner@mint_bot"))

	replies := c.Dispatch(context.Background(), "launch", "")
	assert.Equal(t, "Unknown command /launch. Try /help.", replies[0].Text)

	replies = c.Dispatch(context.Background(), "help", "")
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0].Text, "/mytokens <address>")
	assert.Contains(t, replies[0].Text, "/transfers")
}
