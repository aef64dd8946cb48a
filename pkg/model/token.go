package model

import (
	"github.com/ethereum/go-ethereum/common"
)

// Token is an ERC-20 style asset living on a single chain.
type Token struct {
	Address  common.Address `json:"address"`
	Symbol   string         `json:"symbol"`
	Name     string         `json:"name"`
	Decimals uint8          `json:"decimals"`
	Chain    ChainID        `json:"chain"`
}

// TokenKey is the identity of a token; two tokens with the same key are the same asset.
type TokenKey struct {
	Chain   ChainID
	Address common.Address
}

func NewToken(address, symbol, name string, decimals uint8, chain ChainID) Token {
	return Token{
		Address:  common.HexToAddress(address),
		Symbol:   symbol,
		Name:     name,
		Decimals: decimals,
		Chain:    chain,
	}
}

func (t Token) Key() TokenKey { return TokenKey{Chain: t.Chain, Address: t.Address} }

// Equal compares identity only; display fields are ignored.
func (t Token) Equal(o Token) bool { return t.Key() == o.Key() }

func (t Token) String() string {
	if t.Symbol != "" {
		return t.Symbol
	}
	return t.Address.Hex()
}
