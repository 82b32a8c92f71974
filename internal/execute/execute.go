// Package execute turns a selected, verified quote into on-chain
// transactions. It walks the simulated plan in nonce order, waiting for
// each approval to land before the next step, and records the swap in the
// trade history so it can be settled once the receipt arrives.
package execute

import (
	"context"
	"fmt"
	"math/big"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	engerr "github.com/ggonzalez94/swap-engine/internal/errors"
	"github.com/ggonzalez94/swap-engine/internal/execute/submit"
	"github.com/ggonzalez94/swap-engine/internal/history"
	"github.com/ggonzalez94/swap-engine/internal/quote"
)

// Options tunes one execution run.
type Options struct {
	// MEVGuarded routes the swap transaction through a private relay when
	// the chain has one. Approvals always go through the public mempool.
	MEVGuarded bool
	// GasPriceWei pins a legacy gas price for every step when set.
	GasPriceWei *big.Int
}

// StepResult is one broadcast transaction of the plan.
type StepResult struct {
	Kind    quote.StepKind
	TxHash  string
	GasUsed uint64
}

// Outcome is the settled result of a full execution run.
type Outcome struct {
	TradeID string
	Venue   string
	Steps   []StepResult
	// Confirmed is false when the swap transaction reverted on chain.
	Confirmed bool
}

// Sequencer drives a quote's plan steps through a submitter.
type Sequencer struct {
	submitter submit.Submitter
	trades    *history.Store
	log       *logrus.Logger
}

// NewSequencer wires a sequencer. The history store may be nil, in which
// case trades are not recorded.
func NewSequencer(s submit.Submitter, trades *history.Store, log *logrus.Logger) *Sequencer {
	return &Sequencer{submitter: s, trades: trades, log: log}
}

// Run executes every step of the quote's simulated plan in order. The
// result must already have cleared the engine's freshness, simulation, and
// verification gates; Run re-checks only what it needs to build
// transactions.
func (s *Sequencer) Run(ctx context.Context, req quote.Request, result *quote.Result, opts Options) (*Outcome, error) {
	if !result.Usable() {
		return nil, engerr.New(engerr.CodeExecution, "quote is not executable")
	}
	steps := result.PreExec.Steps
	if len(steps) == 0 {
		return nil, engerr.New(engerr.CodeExecution, "quote has no plan steps")
	}

	outcome := &Outcome{
		TradeID: uuid.NewString(),
		Venue:   result.Venue,
	}

	for _, step := range steps {
		txReq := submit.TxRequest{
			Chain:       req.Chain,
			Tx:          step.Tx,
			Nonce:       step.Nonce,
			GasPriceWei: opts.GasPriceWei,
		}
		if step.Kind == quote.StepSwap {
			txReq.MEVGuarded = opts.MEVGuarded
			txReq.GasHint = result.Raw.Gas
		}

		txHash, err := s.submitter.Submit(ctx, txReq)
		if err != nil {
			return outcome, engerr.Wrap(engerr.CodeExecution, fmt.Sprintf("submit %s step", step.Kind), err)
		}
		s.log.WithFields(logrus.Fields{
			"step":  string(step.Kind),
			"tx":    txHash,
			"nonce": step.Nonce,
		}).Info("transaction broadcast")

		if step.Kind == quote.StepSwap {
			s.recordPending(req, result, txHash, outcome.TradeID)
		}

		receipt, err := s.submitter.WaitReceipt(ctx, req.Chain, txHash)
		if err != nil {
			return outcome, engerr.Wrap(engerr.CodeExecution, fmt.Sprintf("wait for %s receipt", step.Kind), err)
		}
		outcome.Steps = append(outcome.Steps, StepResult{
			Kind:    step.Kind,
			TxHash:  txHash,
			GasUsed: receipt.GasUsed,
		})

		if step.Kind == quote.StepSwap {
			outcome.Confirmed = receipt.Success
			s.settle(req, txHash, receipt)
			if !receipt.Success {
				return outcome, engerr.New(engerr.CodeExecution, fmt.Sprintf("swap reverted on chain: %s", txHash))
			}
			continue
		}
		if !receipt.Success {
			return outcome, engerr.New(engerr.CodeExecution, fmt.Sprintf("%s transaction reverted: %s", step.Kind, txHash))
		}
	}
	return outcome, nil
}

func (s *Sequencer) recordPending(req quote.Request, result *quote.Result, txHash, tradeID string) {
	if s.trades == nil {
		return
	}
	err := s.trades.Record(history.Trade{
		ID:             tradeID,
		ChainID:        req.Chain.EVMChainID,
		Venue:          result.Venue,
		FromToken:      req.From.Symbol,
		ToToken:        req.To.Symbol,
		FromAmount:     req.Amount.String(),
		QuotedToAmount: result.Raw.ToAmount.String(),
		Slippage:       req.Slippage,
		TxHash:         txHash,
	})
	if err != nil {
		s.log.WithError(err).Warn("failed to record trade")
	}
}

func (s *Sequencer) settle(req quote.Request, txHash string, receipt submit.Receipt) {
	if s.trades == nil {
		return
	}
	status := history.StatusConfirmed
	if !receipt.Success {
		status = history.StatusFailed
	}
	if err := s.trades.Settle(req.Chain.EVMChainID, txHash, status, receipt.GasUsed); err != nil {
		s.log.WithError(err).Warn("failed to settle trade")
	}
}
