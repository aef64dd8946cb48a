package model

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ChainID identifies an EVM chain by its EIP-155 chain id.
type ChainID uint64

const (
	EthereumMainnet ChainID = 1
	Optimism        ChainID = 10
	GnosisChain     ChainID = 100
	Polygon         ChainID = 137
	Base            ChainID = 8453
	ArbitrumOne     ChainID = 42161
)

var chainNames = map[ChainID]string{
	EthereumMainnet: "ethereum",
	Optimism:        "optimism",
	GnosisChain:     "gnosis",
	Polygon:         "polygon",
	Base:            "base",
	ArbitrumOne:     "arbitrum",
}

// SupportedChains returns every chain the solver knows, ascending by id.
func SupportedChains() []ChainID {
	return []ChainID{EthereumMainnet, Optimism, GnosisChain, Polygon, Base, ArbitrumOne}
}

// Supported reports whether c belongs to the closed set of known chains.
func (c ChainID) Supported() bool {
	_, ok := chainNames[c]
	return ok
}

func (c ChainID) String() string {
	if name, ok := chainNames[c]; ok {
		return name
	}
	return fmt.Sprintf("chain(%d)", uint64(c))
}

// ParseChainID accepts either a numeric id ("137") or a known name ("polygon").
func ParseChainID(s string) (ChainID, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if n, err := strconv.ParseUint(s, 10, 64); err == nil {
		c := ChainID(n)
		if !c.Supported() {
			return 0, errors.Errorf("unsupported chain id %d", n)
		}
		return c, nil
	}
	for id, name := range chainNames {
		if name == s {
			return id, nil
		}
	}
	return 0, errors.Errorf("unknown chain %q", s)
}
