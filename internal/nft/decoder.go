package nft

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"mintWatch/internal/model"
)

// TransferTopic is topic0 of Transfer(address,address,uint256).
var TransferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// ErrMalformedLog is wrapped by every transfer decode failure.
var ErrMalformedLog = errors.New("malformed transfer log")

// DecodeTransfer converts an ERC-721 Transfer log into a TransferEvent.
// ERC-20 transfers share topic0 but carry the amount in data, so they fail
// the topic count check.
func DecodeTransfer(log types.Log) (model.TransferEvent, error) {
	parsed, err := ERC721ABI()
	if err != nil {
		return model.TransferEvent{}, fmt.Errorf("parse erc721 abi: %w", err)
	}
	event := parsed.Events["Transfer"]

	indexed := indexedArguments(event.Inputs)
	if len(log.Topics) != len(indexed)+1 {
		return model.TransferEvent{}, fmt.Errorf("%w: expected %d topics, got %d", ErrMalformedLog, len(indexed)+1, len(log.Topics))
	}
	if log.Topics[0] != event.ID {
		return model.TransferEvent{}, fmt.Errorf("%w: unexpected topic0 %s", ErrMalformedLog, log.Topics[0].Hex())
	}

	var out struct {
		From    common.Address
		To      common.Address
		TokenId *big.Int
	}
	if err := abi.ParseTopics(&out, indexed, log.Topics[1:]); err != nil {
		return model.TransferEvent{}, fmt.Errorf("%w: parse topics: %v", ErrMalformedLog, err)
	}
	if out.TokenId == nil {
		return model.TransferEvent{}, fmt.Errorf("%w: missing token id", ErrMalformedLog)
	}

	return model.TransferEvent{
		From:        out.From,
		To:          out.To,
		TokenID:     out.TokenId,
		BlockNumber: log.BlockNumber,
		LogIndex:    uint32(log.Index),
		TxHash:      log.TxHash,
	}, nil
}

// DecodeErrorFromLog builds a DecodeError record for a log that failed to decode.
func DecodeErrorFromLog(log types.Log, err error) model.DecodeError {
	topic0 := ""
	if len(log.Topics) > 0 {
		topic0 = log.Topics[0].Hex()
	}
	return model.DecodeError{
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash.Hex(),
		LogIndex:    uint64(log.Index),
		Address:     log.Address.Hex(),
		Topic0:      topic0,
		Error:       err.Error(),
	}
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}
