// Package decode extracts swap parameters from aggregator calldata so the
// engine can check that a venue's transaction actually trades what the
// quote says it trades. Each venue gets a decoder keyed by its router ABI;
// calldata the decoder does not recognize is reported as undecodable rather
// than failed, and the caller decides what that means.
package decode

import (
	"encoding/hex"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/ggonzalez94/swap-engine/internal/venue"
)

// SwapParams is what a router call commits to on chain.
type SwapParams struct {
	FromToken  string
	ToToken    string
	FromAmount *big.Int
	MinReceive *big.Int
}

// Decoder turns router calldata into SwapParams. The second return is false
// when the calldata is not recognized.
type Decoder interface {
	Decode(data []byte) (SwapParams, bool)
}

var decoders = map[string]Decoder{
	venue.OneInch:   newOneInchDecoder(),
	venue.ZeroX:     newZeroXDecoder(),
	venue.Paraswap:  newParaswapDecoder(),
	venue.OpenOcean: newOpenOceanDecoder(),
}

// For returns the decoder registered for a venue.
func For(venueName string) (Decoder, bool) {
	d, ok := decoders[strings.ToLower(venueName)]
	return d, ok
}

type abiDecoder struct {
	parsed  abi.ABI
	extract map[string]func(args []any) (SwapParams, bool)
}

func (d *abiDecoder) Decode(data []byte) (SwapParams, bool) {
	if len(data) < 4 {
		return SwapParams{}, false
	}
	method, err := d.parsed.MethodById(data[:4])
	if err != nil {
		return SwapParams{}, false
	}
	fn, ok := d.extract[method.Name]
	if !ok {
		return SwapParams{}, false
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return SwapParams{}, false
	}
	out, k := fn(args)
	if !k || out.FromAmount == nil || out.MinReceive == nil {
		return SwapParams{}, false
	}
	return out, true
}

func mustABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic("decode: bad ABI definition: " + err.Error())
	}
	return parsed
}

const oneInchABI = `[{
	"name": "swap",
	"type": "function",
	"inputs": [
		{"name": "executor", "type": "address"},
		{"name": "desc", "type": "tuple", "components": [
			{"name": "srcToken", "type": "address"},
			{"name": "dstToken", "type": "address"},
			{"name": "srcReceiver", "type": "address"},
			{"name": "dstReceiver", "type": "address"},
			{"name": "amount", "type": "uint256"},
			{"name": "minReturnAmount", "type": "uint256"},
			{"name": "flags", "type": "uint256"}
		]},
		{"name": "data", "type": "bytes"}
	]
}]`

type oneInchDesc struct {
	SrcToken        common.Address
	DstToken        common.Address
	SrcReceiver     common.Address
	DstReceiver     common.Address
	Amount          *big.Int
	MinReturnAmount *big.Int
	Flags           *big.Int
}

func newOneInchDecoder() Decoder {
	return &abiDecoder{
		parsed: mustABI(oneInchABI),
		extract: map[string]func(args []any) (SwapParams, bool){
			"swap": func(args []any) (SwapParams, bool) {
				if len(args) != 3 {
					return SwapParams{}, false
				}
				desc := *abi.ConvertType(args[1], new(oneInchDesc)).(*oneInchDesc)
				return SwapParams{
					FromToken:  strings.ToLower(desc.SrcToken.Hex()),
					ToToken:    strings.ToLower(desc.DstToken.Hex()),
					FromAmount: desc.Amount,
					MinReceive: desc.MinReturnAmount,
				}, true
			},
		},
	}
}

const zeroXABI = `[{
	"name": "transformERC20",
	"type": "function",
	"inputs": [
		{"name": "inputToken", "type": "address"},
		{"name": "outputToken", "type": "address"},
		{"name": "inputTokenAmount", "type": "uint256"},
		{"name": "minOutputTokenAmount", "type": "uint256"},
		{"name": "transformations", "type": "tuple[]", "components": [
			{"name": "deploymentNonce", "type": "uint32"},
			{"name": "data", "type": "bytes"}
		]}
	]
}]`

func newZeroXDecoder() Decoder {
	return &abiDecoder{
		parsed: mustABI(zeroXABI),
		extract: map[string]func(args []any) (SwapParams, bool){
			"transformERC20": func(args []any) (SwapParams, bool) {
				if len(args) != 5 {
					return SwapParams{}, false
				}
				input, ok1 := args[0].(common.Address)
				output, ok2 := args[1].(common.Address)
				amount, ok3 := args[2].(*big.Int)
				minOut, ok4 := args[3].(*big.Int)
				if !ok1 || !ok2 || !ok3 || !ok4 {
					return SwapParams{}, false
				}
				return SwapParams{
					FromToken:  strings.ToLower(input.Hex()),
					ToToken:    strings.ToLower(output.Hex()),
					FromAmount: amount,
					MinReceive: minOut,
				}, true
			},
		},
	}
}

const paraswapABI = `[{
	"name": "simpleSwap",
	"type": "function",
	"inputs": [
		{"name": "data", "type": "tuple", "components": [
			{"name": "fromToken", "type": "address"},
			{"name": "toToken", "type": "address"},
			{"name": "fromAmount", "type": "uint256"},
			{"name": "toAmount", "type": "uint256"},
			{"name": "expectedAmount", "type": "uint256"},
			{"name": "callees", "type": "address[]"},
			{"name": "exchangeData", "type": "bytes"},
			{"name": "startIndexes", "type": "uint256[]"},
			{"name": "values", "type": "uint256[]"},
			{"name": "beneficiary", "type": "address"},
			{"name": "partner", "type": "address"},
			{"name": "feePercent", "type": "uint256"},
			{"name": "permit", "type": "bytes"},
			{"name": "deadline", "type": "uint256"},
			{"name": "uuid", "type": "bytes16"}
		]}
	]
}]`

type paraswapSimpleData struct {
	FromToken      common.Address
	ToToken        common.Address
	FromAmount     *big.Int
	ToAmount       *big.Int
	ExpectedAmount *big.Int
	Callees        []common.Address
	ExchangeData   []byte
	StartIndexes   []*big.Int
	Values         []*big.Int
	Beneficiary    common.Address
	Partner        common.Address
	FeePercent     *big.Int
	Permit         []byte
	Deadline       *big.Int
	Uuid           [16]byte
}

func newParaswapDecoder() Decoder {
	return &abiDecoder{
		parsed: mustABI(paraswapABI),
		extract: map[string]func(args []any) (SwapParams, bool){
			"simpleSwap": func(args []any) (SwapParams, bool) {
				if len(args) != 1 {
					return SwapParams{}, false
				}
				data := *abi.ConvertType(args[0], new(paraswapSimpleData)).(*paraswapSimpleData)
				return SwapParams{
					FromToken:  strings.ToLower(data.FromToken.Hex()),
					ToToken:    strings.ToLower(data.ToToken.Hex()),
					FromAmount: data.FromAmount,
					MinReceive: data.ToAmount,
				}, true
			},
		},
	}
}

const openOceanABI = `[{
	"name": "swap",
	"type": "function",
	"inputs": [
		{"name": "caller", "type": "address"},
		{"name": "desc", "type": "tuple", "components": [
			{"name": "srcToken", "type": "address"},
			{"name": "dstToken", "type": "address"},
			{"name": "srcReceiver", "type": "address"},
			{"name": "dstReceiver", "type": "address"},
			{"name": "amount", "type": "uint256"},
			{"name": "minReturnAmount", "type": "uint256"},
			{"name": "guaranteedAmount", "type": "uint256"},
			{"name": "flags", "type": "uint256"},
			{"name": "referrer", "type": "address"},
			{"name": "permit", "type": "bytes"}
		]},
		{"name": "calls", "type": "tuple[]", "components": [
			{"name": "target", "type": "uint256"},
			{"name": "gasLimit", "type": "uint256"},
			{"name": "value", "type": "uint256"},
			{"name": "data", "type": "bytes"}
		]}
	]
}]`

type openOceanDesc struct {
	SrcToken         common.Address
	DstToken         common.Address
	SrcReceiver      common.Address
	DstReceiver      common.Address
	Amount           *big.Int
	MinReturnAmount  *big.Int
	GuaranteedAmount *big.Int
	Flags            *big.Int
	Referrer         common.Address
	Permit           []byte
}

func newOpenOceanDecoder() Decoder {
	return &abiDecoder{
		parsed: mustABI(openOceanABI),
		extract: map[string]func(args []any) (SwapParams, bool){
			"swap": func(args []any) (SwapParams, bool) {
				if len(args) != 3 {
					return SwapParams{}, false
				}
				desc := *abi.ConvertType(args[1], new(openOceanDesc)).(*openOceanDesc)
				return SwapParams{
					FromToken:  strings.ToLower(desc.SrcToken.Hex()),
					ToToken:    strings.ToLower(desc.DstToken.Hex()),
					FromAmount: desc.Amount,
					MinReceive: desc.MinReturnAmount,
				}, true
			},
		},
	}
}

// Selector returns the 4-byte selector of calldata as a hex string, for
// logging. Empty when the data is too short.
func Selector(data []byte) string {
	if len(data) < 4 {
		return ""
	}
	return "0x" + hex.EncodeToString(data[:4])
}
