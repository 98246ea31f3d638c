package model

import (
	"fmt"
	"math/big"
)

// Attribute is a single trait of a token.
type Attribute struct {
	TraitType string `json:"trait_type"`
	Value     string `json:"value"`
}

// TokenMetadata holds the display fields of a token's metadata document.
type TokenMetadata struct {
	TokenID    *big.Int    `json:"-"`
	Name       string      `json:"name"`
	ImageURI   string      `json:"image"`
	Attributes []Attribute `json:"attributes"`
}

// DefaultTokenName is the name used when the document has none.
func DefaultTokenName(tokenID *big.Int) string {
	return fmt.Sprintf("Token #%s", tokenIDString(tokenID))
}

// DefaultTokenMetadata returns the fallback metadata for a token.
func DefaultTokenMetadata(tokenID *big.Int) TokenMetadata {
	return TokenMetadata{
		TokenID:    tokenID,
		Name:       DefaultTokenName(tokenID),
		Attributes: []Attribute{},
	}
}

func tokenIDString(tokenID *big.Int) string {
	if tokenID == nil {
		return "0"
	}
	return tokenID.String()
}
