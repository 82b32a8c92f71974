// Package wrap serves native<->wrapped-native conversions. No aggregator is
// involved: the quote is always 1:1 against the chain's wrap contract, built
// locally from the WETH9 deposit and withdraw calls.
package wrap

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"

	engerr "github.com/ggonzalez94/swap-engine/internal/errors"
	"github.com/ggonzalez94/swap-engine/internal/id"
	"github.com/ggonzalez94/swap-engine/internal/quote"
	"github.com/ggonzalez94/swap-engine/internal/venue"
)

const weth9ABI = `[
	{"name": "deposit", "type": "function", "stateMutability": "payable", "inputs": []},
	{"name": "withdraw", "type": "function", "inputs": [{"name": "wad", "type": "uint256"}]}
]`

type Client struct {
	parsed abi.ABI
}

func New() *Client {
	parsed, err := abi.JSON(strings.NewReader(weth9ABI))
	if err != nil {
		panic("wrap: bad WETH9 ABI: " + err.Error())
	}
	return &Client{parsed: parsed}
}

func (c *Client) Name() string { return venue.Wrap }

func (c *Client) Quote(_ context.Context, req quote.Request) (*quote.RawQuote, error) {
	if !id.IsWrapPair(req.Chain, req.From, req.To) {
		return nil, engerr.New(engerr.CodeUnsupported, "wrap venue only serves native<->wrapped pairs")
	}

	var (
		data  []byte
		value *big.Int
		err   error
	)
	if req.From.IsNative() {
		data, err = c.parsed.Pack("deposit")
		value = new(big.Int).Set(req.Amount)
	} else {
		data, err = c.parsed.Pack("withdraw", req.Amount)
		value = big.NewInt(0)
	}
	if err != nil {
		return nil, engerr.Wrap(engerr.CodeInternal, "encode wrap calldata", err)
	}

	return &quote.RawQuote{
		Venue:      venue.Wrap,
		FromAmount: req.Amount,
		ToAmount:   new(big.Int).Set(req.Amount),
		ToDecimals: req.To.Decimals,
		Tx: &quote.TxData{
			From:  req.UserAddr,
			To:    req.Chain.WrappedNative,
			Data:  data,
			Value: value,
		},
		// The wrap contract pulls nothing via transferFrom, so no
		// allowance and no spender.
	}, nil
}
