// Package simulate runs a quote's full transaction chain through the
// pre-execution service before the user ever signs anything: any allowance
// reset, the approval itself, and finally the swap, in strict nonce order
// with the user's real pending queue replayed first. The result is a
// report the engine attaches to the quote; a failed simulation marks the
// quote unusable but is not an error.
package simulate

import (
	"context"
	"encoding/hex"
	"math/big"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ggonzalez94/swap-engine/internal/chaindata"
	engerr "github.com/ggonzalez94/swap-engine/internal/errors"
	"github.com/ggonzalez94/swap-engine/internal/gasprefs"
	"github.com/ggonzalez94/swap-engine/internal/id"
	"github.com/ggonzalez94/swap-engine/internal/quote"
	"github.com/ggonzalez94/swap-engine/internal/venue"
)

// DataSource is the chain data surface simulation depends on.
// *chaindata.Client satisfies it.
type DataSource interface {
	Token(ctx context.Context, chain id.Chain, userAddr, tokenAddr string) (chaindata.TokenInfo, error)
	Allowance(ctx context.Context, chain id.Chain, userAddr, tokenAddr, spender string) (*big.Int, error)
	RecommendNonce(ctx context.Context, chain id.Chain, userAddr string) (uint64, error)
	PendingTxList(ctx context.Context, chain id.Chain, userAddr string) ([]chaindata.PendingTx, error)
	GasMarket(ctx context.Context, chain id.Chain) ([]chaindata.GasLevel, error)
	PreExecTx(ctx context.Context, req chaindata.PreExecRequest) (chaindata.PreExecResult, error)
}

// GasPrefs looks up the user's last explicit gas selection.
type GasPrefs interface {
	Last(chainID int64) (gasprefs.Selection, bool, error)
}

type Simulator struct {
	data               DataSource
	prefs              GasPrefs
	log                *logrus.Logger
	unlimitedAllowance bool
}

func New(data DataSource, prefs GasPrefs, log *logrus.Logger, unlimitedAllowance bool) *Simulator {
	if log == nil {
		log = logrus.New()
	}
	return &Simulator{data: data, prefs: prefs, log: log, unlimitedAllowance: unlimitedAllowance}
}

// ApprovalStatus decides what allowance work a quote needs before its swap
// can execute.
func (s *Simulator) ApprovalStatus(ctx context.Context, req quote.Request, raw *quote.RawQuote) (quote.ApprovalKind, error) {
	if req.From.IsNative() || id.IsWrapPair(req.Chain, req.From, req.To) {
		return quote.ApprovalNone, nil
	}
	if raw.Spender == "" {
		return quote.ApprovalNone, nil
	}

	allowance, err := s.data.Allowance(ctx, req.Chain, req.UserAddr, req.From.Address, raw.Spender)
	if err != nil {
		return quote.ApprovalNone, err
	}
	if allowance.Cmp(req.Amount) >= 0 {
		return quote.ApprovalNone, nil
	}
	if allowance.Sign() > 0 && venue.NeedsAllowanceReset(req.Chain.EVMChainID, req.From.Address) {
		return quote.ApprovalTwoStep, nil
	}
	return quote.ApprovalSingle, nil
}

// Run simulates the quote's full approval chain plus swap and returns the
// report. The returned error covers infrastructure failures only; an
// on-chain revert comes back as a report with Succeeded=false.
func (s *Simulator) Run(ctx context.Context, req quote.Request, raw *quote.RawQuote) (*quote.PreExecReport, error) {
	approval, err := s.ApprovalStatus(ctx, req, raw)
	if err != nil {
		return nil, err
	}

	steps, err := s.buildSteps(req, raw, approval)
	if err != nil {
		return nil, err
	}

	nonce, err := s.data.RecommendNonce(ctx, req.Chain, req.UserAddr)
	if err != nil {
		return nil, err
	}
	for i := range steps {
		steps[i].Nonce = nonce + uint64(i)
	}

	pending, err := s.data.PendingTxList(ctx, req.Chain, req.UserAddr)
	if err != nil {
		return nil, err
	}

	gasPrice, err := s.resolveGasPrice(ctx, req.Chain)
	if err != nil {
		return nil, err
	}

	report := &quote.PreExecReport{
		Approval:    approval,
		Steps:       steps,
		GasPriceWei: gasPrice,
		Succeeded:   true,
	}

	queue := append([]chaindata.PendingTx(nil), pending...)
	for _, step := range steps {
		result, err := s.data.PreExecTx(ctx, chaindata.PreExecRequest{
			Chain:    req.Chain,
			UserAddr: req.UserAddr,
			Tx:       step.Tx,
			Nonce:    step.Nonce,
			Pending:  queue,
		})
		if err != nil {
			return nil, err
		}
		if !result.Success {
			s.log.WithFields(logrus.Fields{
				"venue": raw.Venue,
				"step":  string(step.Kind),
				"nonce": step.Nonce,
			}).Debug("quote simulation step reverted")
			report.Succeeded = false
			report.FailReason = result.ErrMsg
			if report.FailReason == "" {
				report.FailReason = string(step.Kind) + " step reverted in simulation"
			}
			return report, nil
		}

		report.GasUsed += result.GasUsed
		if step.Kind == quote.StepSwap {
			report.SimulatedReceive = receiveAmount(result, req)
		}

		// Later steps must see this one as already pending.
		queue = append(queue, chaindata.PendingTx{
			From:    step.Tx.From,
			To:      step.Tx.To,
			Data:    "0x" + hex.EncodeToString(step.Tx.Data),
			Value:   valueString(step.Tx.Value),
			Nonce:   step.Nonce,
			GasUsed: result.GasUsed,
		})
	}

	if report.SimulatedReceive == nil {
		report.Succeeded = false
		report.FailReason = "simulation reported no received amount"
		return report, nil
	}

	report.GasUSD, err = s.gasUSD(ctx, req, report.GasUsed, gasPrice)
	if err != nil {
		// Gas pricing is advisory; keep the report without it.
		s.log.WithError(err).Debug("could not price simulation gas")
	}
	return report, nil
}

func (s *Simulator) buildSteps(req quote.Request, raw *quote.RawQuote, approval quote.ApprovalKind) ([]quote.PlanStep, error) {
	var steps []quote.PlanStep

	if approval == quote.ApprovalTwoStep {
		reset, err := BuildApprove(req.UserAddr, req.From.Address, raw.Spender, big.NewInt(0))
		if err != nil {
			return nil, err
		}
		steps = append(steps, quote.PlanStep{Kind: quote.StepReset, Tx: reset})
	}
	if approval != quote.ApprovalNone {
		amount := new(big.Int).Set(req.Amount)
		if s.unlimitedAllowance {
			amount = new(big.Int).Set(quote.UnlimitedAllowance)
		}
		approve, err := BuildApprove(req.UserAddr, req.From.Address, raw.Spender, amount)
		if err != nil {
			return nil, err
		}
		steps = append(steps, quote.PlanStep{Kind: quote.StepApprove, Tx: approve})
	}

	if raw.Tx == nil {
		return nil, engerr.New(engerr.CodeSimulation, "quote carries no transaction to simulate")
	}
	steps = append(steps, quote.PlanStep{Kind: quote.StepSwap, Tx: *raw.Tx})
	return steps, nil
}

func (s *Simulator) resolveGasPrice(ctx context.Context, chain id.Chain) (*big.Int, error) {
	if s.prefs != nil {
		if sel, ok, err := s.prefs.Last(chain.EVMChainID); err == nil && ok {
			if price, parsed := new(big.Int).SetString(sel.GasPriceWei, 10); parsed {
				return price, nil
			}
		}
	}

	levels, err := s.data.GasMarket(ctx, chain)
	if err != nil {
		return nil, err
	}
	for _, level := range levels {
		if level.Level == "normal" {
			return big.NewInt(int64(level.Price)), nil
		}
	}
	return big.NewInt(int64(levels[0].Price)), nil
}

func (s *Simulator) gasUSD(ctx context.Context, req quote.Request, gasUsed uint64, gasPrice *big.Int) (float64, error) {
	native, err := s.data.Token(ctx, req.Chain, req.UserAddr, id.NativeTokenAddress)
	if err != nil {
		return 0, err
	}
	cost := new(big.Int).Mul(new(big.Int).SetUint64(gasUsed), gasPrice)
	return id.BaseToFloat(cost, req.Chain.NativeDecimal) * native.Price, nil
}

func receiveAmount(result chaindata.PreExecResult, req quote.Request) *big.Int {
	if amount, ok := result.ReceiveTokens[strings.ToLower(req.To.Address)]; ok {
		return amount
	}
	// Native receives are keyed by the chain's server id.
	if req.To.IsNative() {
		if amount, ok := result.ReceiveTokens[req.Chain.ServerID]; ok {
			return amount
		}
	}
	return nil
}

func valueString(v *big.Int) string {
	if v == nil {
		return "0x0"
	}
	return "0x" + v.Text(16)
}
