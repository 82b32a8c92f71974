package engine

import (
	"math"
	"sort"

	"github.com/ggonzalez94/swap-engine/internal/id"
	"github.com/ggonzalez94/swap-engine/internal/quote"
)

// ReceiveValue scores a quote in USD for ranking. In insufficient-balance
// mode no simulation can succeed, so the venue's own quoted amount is
// priced directly. Otherwise only quotes that cleared simulation and
// verification get a real score; everything else sinks to the bottom.
func ReceiveValue(r *quote.Result, req quote.Request, toPrice float64, includeGasFee bool) float64 {
	if r == nil || r.Raw == nil || r.Raw.ToAmount == nil {
		return math.Inf(-1)
	}
	if req.InsufficientBalance {
		return id.BaseToFloat(r.Raw.ToAmount, r.Raw.ToDecimals) * toPrice
	}
	if !r.Usable() {
		return math.Inf(-1)
	}
	value := id.BaseToFloat(r.PreExec.SimulatedReceive, r.Raw.ToDecimals) * toPrice
	if includeGasFee {
		value -= r.PreExec.GasUSD
	}
	return value
}

// Rank orders results best-first. Ties keep venue-name order so ranking is
// deterministic across refreshes.
func Rank(results []*quote.Result, req quote.Request, toPrice float64, includeGasFee bool) []*quote.Result {
	out := append([]*quote.Result(nil), results...)
	sort.SliceStable(out, func(i, j int) bool {
		vi := ReceiveValue(out[i], req, toPrice, includeGasFee)
		vj := ReceiveValue(out[j], req, toPrice, includeGasFee)
		if vi != vj {
			return vi > vj
		}
		return out[i].Venue < out[j].Venue
	})
	return out
}

// Eligible reports whether a quote may become the active selection. A
// verification-failed quote stays visible in the ranking but can never be
// selected, automatically or by hand. In insufficient-balance mode
// simulation cannot run, so any quoted result that did not fail
// verification qualifies; otherwise the full usability gate applies.
func Eligible(r *quote.Result, req quote.Request) bool {
	if r == nil || r.Raw == nil || r.Raw.ToAmount == nil {
		return false
	}
	if req.InsufficientBalance {
		return r.Verify == nil || r.Verify.Pass()
	}
	return r.Usable()
}

// Best returns the top selectable quote, or nil when nothing qualifies.
func Best(results []*quote.Result, req quote.Request, toPrice float64, includeGasFee bool) *quote.Result {
	ranked := Rank(results, req, toPrice, includeGasFee)
	for _, r := range ranked {
		if Eligible(r, req) {
			return r
		}
	}
	return nil
}

// Deviation reports how far the simulated receive strays from the venue's
// quoted amount, in percent. Negative means the simulation returned less
// than quoted. The bool is false when the quote has no comparable data.
func Deviation(r *quote.Result) (float64, bool) {
	if r == nil || r.Raw == nil || r.Raw.ToAmount == nil || r.Raw.ToAmount.Sign() == 0 {
		return 0, false
	}
	if r.PreExec == nil || r.PreExec.SimulatedReceive == nil {
		return 0, false
	}
	quoted := id.BaseToFloat(r.Raw.ToAmount, r.Raw.ToDecimals)
	simulated := id.BaseToFloat(r.PreExec.SimulatedReceive, r.Raw.ToDecimals)
	return (simulated - quoted) / quoted * 100, true
}

// undershootWarnPct flags quotes whose simulation receives over 1% less
// than promised.
const undershootWarnPct = -1.0

// Undershoots reports whether the quote deserves a shortfall warning.
func Undershoots(r *quote.Result) bool {
	dev, ok := Deviation(r)
	return ok && dev < undershootWarnPct
}
