// Package verify runs the security checks a quote must clear before it can
// be auto-selected or executed: the transaction must call the venue's
// whitelisted router, any allowance must target the whitelisted spender,
// and the calldata must commit to the trade the quote describes. Checks
// against contracts the whitelist does not map are passed rather than
// failed, so adding a new chain never bricks swaps on it.
package verify

import (
	"math/big"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ggonzalez94/swap-engine/internal/id"
	"github.com/ggonzalez94/swap-engine/internal/quote"
	"github.com/ggonzalez94/swap-engine/internal/venue"
	"github.com/ggonzalez94/swap-engine/internal/venue/decode"
)

// minReceiveTolerance is the slack allowed between the calldata's minimum
// receive and the quoted amount after slippage. Venues round differently;
// anything within 5% of the expected floor, in either direction, is
// accepted. A minimum far above the floor is as suspect as one far below
// it: the calldata no longer commits to the quoted trade.
const minReceiveTolerance = 0.05

const zeroAddress = "0x0000000000000000000000000000000000000000"

type Verifier struct {
	log *logrus.Logger
}

func New(log *logrus.Logger) *Verifier {
	if log == nil {
		log = logrus.New()
	}
	return &Verifier{log: log}
}

// Check runs all three verifications for one quote.
func (v *Verifier) Check(req quote.Request, raw *quote.RawQuote) quote.Verification {
	out := quote.Verification{
		RouterPass:   v.checkRouter(req, raw),
		SpenderPass:  v.checkSpender(req, raw),
		CalldataPass: v.checkCalldata(req, raw),
	}
	if !out.Pass() {
		v.log.WithFields(logrus.Fields{
			"venue":    raw.Venue,
			"chain":    req.Chain.Slug,
			"router":   out.RouterPass,
			"spender":  out.SpenderPass,
			"calldata": out.CalldataPass,
		}).Warn("quote failed security verification")
	}
	return out
}

func (v *Verifier) checkRouter(req quote.Request, raw *quote.RawQuote) bool {
	if raw.Tx == nil {
		return false
	}
	if strings.EqualFold(raw.Venue, venue.Wrap) {
		// Wrap quotes are built locally, so instead of waving them
		// through the target is pinned to the chain's wrapped-native
		// contract, the only address a wrap may ever call.
		return id.AddressEqual(raw.Tx.To, req.Chain.WrappedNative)
	}
	expected, ok := venue.Router(raw.Venue, req.Chain.EVMChainID)
	if !ok {
		// Unmapped venue/chain pair: nothing to compare against.
		return true
	}
	return id.AddressEqual(raw.Tx.To, expected)
}

func (v *Verifier) checkSpender(req quote.Request, raw *quote.RawQuote) bool {
	// Native input and wrap conversions grant no allowance, so there is
	// no spender to vet.
	if req.From.IsNative() || id.IsWrapPair(req.Chain, req.From, req.To) {
		return true
	}
	if raw.Spender == "" {
		return false
	}
	expected, ok := venue.Spender(raw.Venue, req.Chain.EVMChainID)
	if !ok {
		return true
	}
	return id.AddressEqual(raw.Spender, expected)
}

func (v *Verifier) checkCalldata(req quote.Request, raw *quote.RawQuote) bool {
	if raw.Tx == nil {
		return false
	}
	decoder, ok := decode.For(raw.Venue)
	if !ok {
		// Wrap and any venue without a registered decoder: the router
		// check already pins the target contract.
		return true
	}
	params, ok := decoder.Decode(raw.Tx.Data)
	if !ok {
		// Routers ship calldata shapes faster than decoders learn them.
		v.log.WithFields(logrus.Fields{
			"venue":    raw.Venue,
			"selector": decode.Selector(raw.Tx.Data),
		}).Debug("calldata not decodable, skipping parameter check")
		return true
	}

	if !sourceTokenMatches(raw.Venue, params.FromToken, req.From) {
		return false
	}
	if !id.AddressEqual(params.ToToken, req.To.Address) {
		return false
	}
	if req.Amount != nil && params.FromAmount.Cmp(req.Amount) != 0 {
		return false
	}
	return minReceiveOK(params.MinReceive, raw.ToAmount, req.Slippage)
}

// sourceTokenMatches compares the calldata's source token against the pay
// token. Most venues encode the gas token with the same sentinel address
// the request carries, so a plain comparison suffices; OpenOcean's router
// takes native value directly and encodes the source as the zero address,
// and only that venue gets the zero-address exception.
func sourceTokenMatches(venueName, calldataAddr string, token id.Token) bool {
	if id.AddressEqual(calldataAddr, token.Address) {
		return true
	}
	if token.IsNative() && strings.EqualFold(venueName, venue.OpenOcean) {
		return id.AddressEqual(calldataAddr, zeroAddress)
	}
	return false
}

// minReceiveOK checks the calldata's minimum receive against the quoted
// amount reduced by slippage, with tolerance for venue rounding.
func minReceiveOK(minReceive, toAmount *big.Int, slippagePct float64) bool {
	if minReceive == nil || toAmount == nil {
		return false
	}
	floor := new(big.Float).SetInt(toAmount)
	floor.Mul(floor, big.NewFloat(1-slippagePct/100))
	if floor.Sign() <= 0 {
		return false
	}
	dev := new(big.Float).SetInt(minReceive)
	dev.Sub(dev, floor)
	dev.Abs(dev)
	dev.Quo(dev, floor)
	return dev.Cmp(big.NewFloat(minReceiveTolerance)) <= 0
}
