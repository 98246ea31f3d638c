package nft

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"reflect"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"mintWatch/internal/model"
)

// ErrMethodNotInABI is returned when the loaded ABI lacks a method.
var ErrMethodNotInABI = errors.New("method not in abi")

// Backend is the subset of the chain client used by Contract.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
}

// Field is a named value returned by a contract call.
type Field struct {
	Name  string
	Value string
}

// Contract issues typed read calls against the tracked NFT contract.
type Contract struct {
	address common.Address
	abi     abi.ABI
	backend Backend
}

// NewContract binds an ABI to a contract address.
func NewContract(address common.Address, parsed abi.ABI, backend Backend) *Contract {
	return &Contract{address: address, abi: parsed, backend: backend}
}

// Address returns the contract address.
func (c *Contract) Address() common.Address {
	return c.address
}

// HasMethod reports whether the loaded ABI declares method.
func (c *Contract) HasMethod(method string) bool {
	_, ok := c.abi.Methods[method]
	return ok
}

// TotalMinted returns totalMinted(), or totalSupply() when the ABI has no totalMinted.
func (c *Contract) TotalMinted(ctx context.Context) (*big.Int, error) {
	method := "totalMinted"
	if !c.HasMethod(method) {
		method = "totalSupply"
	}
	return c.callBigInt(ctx, method)
}

// RemainingSupply returns remainingSupply().
func (c *Contract) RemainingSupply(ctx context.Context) (*big.Int, error) {
	return c.callBigInt(ctx, "remainingSupply")
}

// TokenURI returns tokenURI(tokenID).
func (c *Contract) TokenURI(ctx context.Context, tokenID *big.Int) (string, error) {
	values, err := c.call(ctx, "tokenURI", tokenID)
	if err != nil {
		return "", err
	}
	return asString(values[0])
}

// OwnerOf returns ownerOf(tokenID).
func (c *Contract) OwnerOf(ctx context.Context, tokenID *big.Int) (common.Address, error) {
	values, err := c.call(ctx, "ownerOf", tokenID)
	if err != nil {
		return common.Address{}, err
	}
	return asAddress(values[0])
}

// BalanceOf returns balanceOf(owner).
func (c *Contract) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	return c.callBigInt(ctx, "balanceOf", owner)
}

// TokenOfOwnerByIndex returns tokenOfOwnerByIndex(owner, index).
func (c *Contract) TokenOfOwnerByIndex(ctx context.Context, owner common.Address, index *big.Int) (*big.Int, error) {
	return c.callBigInt(ctx, "tokenOfOwnerByIndex", owner, index)
}

// TokenDetails calls getTokenDetails(tokenID) and flattens its outputs into fields.
func (c *Contract) TokenDetails(ctx context.Context, tokenID *big.Int) ([]Field, error) {
	const name = "getTokenDetails"
	method, ok := c.abi.Methods[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrMethodNotInABI)
	}
	values, err := c.call(ctx, name, tokenID)
	if err != nil {
		return nil, err
	}

	fields := make([]Field, 0, len(values))
	for i, value := range values {
		if i >= len(method.Outputs) {
			break
		}
		out := method.Outputs[i]
		if out.Type.T == abi.TupleTy {
			fields = append(fields, tupleFields(out.Type, value)...)
			continue
		}
		fieldName := out.Name
		if fieldName == "" {
			fieldName = fmt.Sprintf("value%d", i)
		}
		fields = append(fields, Field{Name: fieldName, Value: formatValue(value)})
	}
	return fields, nil
}

// Transfers returns the decoded Transfer events of the contract in [fromBlock, toBlock].
// Logs that fail to decode are skipped.
func (c *Contract) Transfers(ctx context.Context, fromBlock, toBlock uint64) ([]model.TransferEvent, error) {
	logs, err := c.backend.FilterLogs(ctx, fromBlock, toBlock, []common.Address{c.address}, []common.Hash{TransferTopic})
	if err != nil {
		return nil, err
	}
	events := make([]model.TransferEvent, 0, len(logs))
	for _, log := range logs {
		if log.Removed {
			continue
		}
		event, err := DecodeTransfer(log)
		if err != nil {
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

// RecentTransfers returns at most limit Transfer events from the last window blocks, oldest first.
func (c *Contract) RecentTransfers(ctx context.Context, window uint64, limit int) ([]model.TransferEvent, error) {
	head, err := c.backend.LatestBlockNumber(ctx)
	if err != nil {
		return nil, err
	}
	var from uint64
	if head > window {
		from = head - window
	}

	events, err := c.Transfers(ctx, from, head)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events, nil
}

func (c *Contract) callBigInt(ctx context.Context, method string, args ...interface{}) (*big.Int, error) {
	values, err := c.call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	value, err := asBigInt(values[0])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	return value, nil
}

func (c *Contract) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	if c.backend == nil {
		return nil, fmt.Errorf("chain backend is nil")
	}
	if !c.HasMethod(method) {
		return nil, fmt.Errorf("%s: %w", method, ErrMethodNotInABI)
	}
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &c.address, Data: data}
	resp, err := c.backend.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := c.abi.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("unpack %s: no values", method)
	}
	return values, nil
}

func tupleFields(typ abi.Type, value interface{}) []Field {
	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return []Field{{Name: typ.String(), Value: formatValue(value)}}
	}

	fields := make([]Field, 0, rv.NumField())
	for i := 0; i < rv.NumField(); i++ {
		name := rv.Type().Field(i).Name
		if i < len(typ.TupleRawNames) && typ.TupleRawNames[i] != "" {
			name = typ.TupleRawNames[i]
		}
		fields = append(fields, Field{Name: name, Value: formatValue(rv.Field(i).Interface())})
	}
	return fields
}
