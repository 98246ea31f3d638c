package metadata

import (
	"fmt"
	"math/big"
)

// Stage names the step of a metadata lookup that failed.
type Stage string

const (
	StageTokenURI Stage = "token_uri"
	StageFetch    Stage = "fetch"
	StageDecode   Stage = "decode"
)

// Error is a failed metadata lookup.
type Error struct {
	TokenID *big.Int
	Stage   Stage
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("metadata %s for token %s: %v", e.Stage, e.TokenID, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
