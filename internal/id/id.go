package id

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	engerr "github.com/ggonzalez94/swap-engine/internal/errors"
)

var (
	eip155ChainPattern = regexp.MustCompile(`^eip155:[0-9]+$`)
	evmAddressPattern  = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
)

// NativeTokenAddress is the sentinel address wallets use for a chain's gas token.
const NativeTokenAddress = "0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee"

type Chain struct {
	Name          string
	Slug          string
	CAIP2         string
	EVMChainID    int64
	ServerID      string
	NativeSymbol  string
	NativeDecimal int
	WrappedNative string
}

func (c Chain) IsEVM() bool {
	return c.EVMChainID > 0
}

type Token struct {
	Symbol   string
	Address  string
	Decimals int
}

// IsNative reports whether the token is the chain gas token sentinel.
func (t Token) IsNative() bool {
	return strings.EqualFold(t.Address, NativeTokenAddress)
}

var chainBySlug = map[string]Chain{
	"ethereum":  {Name: "Ethereum", Slug: "ethereum", CAIP2: "eip155:1", EVMChainID: 1, ServerID: "eth", NativeSymbol: "ETH", NativeDecimal: 18, WrappedNative: "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"},
	"mainnet":   {Name: "Ethereum", Slug: "ethereum", CAIP2: "eip155:1", EVMChainID: 1, ServerID: "eth", NativeSymbol: "ETH", NativeDecimal: 18, WrappedNative: "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"},
	"base":      {Name: "Base", Slug: "base", CAIP2: "eip155:8453", EVMChainID: 8453, ServerID: "base", NativeSymbol: "ETH", NativeDecimal: 18, WrappedNative: "0x4200000000000000000000000000000000000006"},
	"arbitrum":  {Name: "Arbitrum", Slug: "arbitrum", CAIP2: "eip155:42161", EVMChainID: 42161, ServerID: "arb", NativeSymbol: "ETH", NativeDecimal: 18, WrappedNative: "0x82af49447d8a07e3bd95bd0d56f35241523fbab1"},
	"optimism":  {Name: "Optimism", Slug: "optimism", CAIP2: "eip155:10", EVMChainID: 10, ServerID: "op", NativeSymbol: "ETH", NativeDecimal: 18, WrappedNative: "0x4200000000000000000000000000000000000006"},
	"polygon":   {Name: "Polygon", Slug: "polygon", CAIP2: "eip155:137", EVMChainID: 137, ServerID: "matic", NativeSymbol: "POL", NativeDecimal: 18, WrappedNative: "0x0d500b1d8e8ef31e21c99d1db9a6444d3adf1270"},
	"avalanche": {Name: "Avalanche", Slug: "avalanche", CAIP2: "eip155:43114", EVMChainID: 43114, ServerID: "avax", NativeSymbol: "AVAX", NativeDecimal: 18, WrappedNative: "0xb31f66aa3c1e785363f0875a1b74e27b85fd66c7"},
	"bsc":       {Name: "BSC", Slug: "bsc", CAIP2: "eip155:56", EVMChainID: 56, ServerID: "bsc", NativeSymbol: "BNB", NativeDecimal: 18, WrappedNative: "0xbb4cdb9cbd36b01bd1cbaebf2de08d9173bc095c"},
}

var chainByID = map[int64]Chain{
	1:     chainBySlug["ethereum"],
	10:    chainBySlug["optimism"],
	56:    chainBySlug["bsc"],
	137:   chainBySlug["polygon"],
	8453:  chainBySlug["base"],
	42161: chainBySlug["arbitrum"],
	43114: chainBySlug["avalanche"],
}

var chainByServerID = func() map[string]Chain {
	out := make(map[string]Chain, len(chainByID))
	for _, chain := range chainByID {
		out[chain.ServerID] = chain
	}
	return out
}()

func ParseChain(input string) (Chain, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return Chain{}, engerr.New(engerr.CodeUsage, "chain is required")
	}
	norm := strings.ToLower(raw)

	if chain, ok := chainBySlug[norm]; ok {
		return chain, nil
	}
	if chain, ok := chainByServerID[norm]; ok {
		return chain, nil
	}

	if eip155ChainPattern.MatchString(norm) {
		parts := strings.Split(norm, ":")
		chainID, _ := strconv.ParseInt(parts[1], 10, 64)
		if known, ok := chainByID[chainID]; ok {
			return known, nil
		}
		return Chain{}, engerr.New(engerr.CodeUnsupported, fmt.Sprintf("chain %s is not supported for swaps", input))
	}

	if chainID, err := strconv.ParseInt(norm, 10, 64); err == nil {
		if chain, ok := chainByID[chainID]; ok {
			return chain, nil
		}
		return Chain{}, engerr.New(engerr.CodeUnsupported, fmt.Sprintf("chain id %d is not supported for swaps", chainID))
	}

	return Chain{}, engerr.New(engerr.CodeUsage, fmt.Sprintf("unsupported chain input: %s", input))
}

func ChainByID(chainID int64) (Chain, bool) {
	chain, ok := chainByID[chainID]
	return chain, ok
}

func SupportedChains() []Chain {
	out := make([]Chain, 0, len(chainByID))
	for _, chain := range chainByID {
		out = append(out, chain)
	}
	return out
}

// ParseToken accepts an ERC-20 address, the native sentinel, or the literal
// "native" alias. Decimals are resolved later from chain data.
func ParseToken(input string, chain Chain) (Token, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return Token{}, engerr.New(engerr.CodeUsage, "token is required")
	}
	if strings.EqualFold(raw, "native") || strings.EqualFold(raw, chain.NativeSymbol) {
		return Token{Symbol: chain.NativeSymbol, Address: NativeTokenAddress, Decimals: chain.NativeDecimal}, nil
	}
	if !evmAddressPattern.MatchString(raw) {
		return Token{}, engerr.New(engerr.CodeUsage, fmt.Sprintf("invalid token address: %s", input))
	}
	addr := strings.ToLower(raw)
	if addr == NativeTokenAddress {
		return Token{Symbol: chain.NativeSymbol, Address: NativeTokenAddress, Decimals: chain.NativeDecimal}, nil
	}
	return Token{Address: addr}, nil
}

func AddressEqual(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// IsWrapPair reports whether the pair is a native<->wrapped-native conversion,
// which routes through the wrap contract rather than an aggregator.
func IsWrapPair(chain Chain, from, to Token) bool {
	if from.IsNative() && AddressEqual(to.Address, chain.WrappedNative) {
		return true
	}
	if to.IsNative() && AddressEqual(from.Address, chain.WrappedNative) {
		return true
	}
	return false
}
