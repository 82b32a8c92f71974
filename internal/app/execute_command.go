package app

import (
	"context"
	"math/big"

	"github.com/spf13/cobra"

	engerr "github.com/ggonzalez94/swap-engine/internal/errors"
	"github.com/ggonzalez94/swap-engine/internal/execute"
	"github.com/ggonzalez94/swap-engine/internal/execute/submit"
	"github.com/ggonzalez94/swap-engine/internal/gasprefs"
	"github.com/ggonzalez94/swap-engine/internal/history"
	"github.com/ggonzalez94/swap-engine/internal/out"
)

// executeView is the execute command's output payload.
type executeView struct {
	TradeID   string        `json:"trade_id"`
	Venue     string        `json:"venue"`
	Confirmed bool          `json:"confirmed"`
	Steps     []stepView    `json:"steps"`
	Quote     quoteRow      `json:"quote"`
	Trade     history.Trade `json:"trade,omitempty"`
}

type stepView struct {
	Kind    string `json:"kind"`
	TxHash  string `json:"tx_hash"`
	GasUsed uint64 `json:"gas_used"`
}

func (s *runtimeState) newExecuteCommand() *cobra.Command {
	var args swapArgs
	var mevGuarded bool
	var gasPriceWei string
	cmd := &cobra.Command{
		Use:   "execute",
		Short: "Quote, verify, and execute a swap end to end",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			req, err := s.buildRequest(ctx, args)
			if err != nil {
				return err
			}

			var gasPrice *big.Int
			if gasPriceWei != "" {
				var ok bool
				gasPrice, ok = new(big.Int).SetString(gasPriceWei, 10)
				if !ok || gasPrice.Sign() <= 0 {
					return engerr.New(engerr.CodeUsage, "--gas-price must be a positive wei amount")
				}
				// An explicit price only applies to single-transaction
				// swaps; approval chains are priced from the chain head.
				if !req.From.IsNative() {
					s.log.Warn("--gas-price ignored: pay token is not native")
					gasPrice = nil
				}
			}

			session, cleanup := s.buildSession(req)
			defer cleanup()

			if _, err := session.Refresh(ctx, req); err != nil {
				return err
			}
			waitCtx, cancel := context.WithTimeout(ctx, s.settings.Timeout*4)
			defer cancel()
			if err := session.Wait(waitCtx); err != nil {
				return err
			}
			if args.venue != "" {
				if err := session.Select(args.venue); err != nil {
					return err
				}
			}

			result, err := session.ActiveQuote()
			if err != nil {
				return err
			}
			snap := session.Snapshot()
			if snap.Request.InsufficientBalance {
				return engerr.New(engerr.CodeExecution, "balance is below the pay amount")
			}

			signer, err := submit.NewLocalSignerFromEnv(s.settings.KeystorePath)
			if err != nil {
				return err
			}
			submitOpts := submit.DefaultOptions()
			submitOpts.RPCEndpoints = s.settings.RPCEndpoints
			submitter := submit.NewRPCSubmitter(signer, submitOpts)

			trades, err := history.Open(s.settings.HistoryStorePath, s.settings.HistoryLockPath)
			if err != nil {
				return engerr.Wrap(engerr.CodeInternal, "open trade history", err)
			}
			defer func() { _ = trades.Close() }()

			if gasPrice != nil {
				s.recordGasChoice(req.Chain.EVMChainID, gasPrice)
			}

			mev := mevGuarded || s.settings.MEVGuarded
			seq := execute.NewSequencer(submitter, trades, s.log)
			outcome, runErr := seq.Run(ctx, snap.Request, result, execute.Options{
				MEVGuarded:  mev,
				GasPriceWei: gasPrice,
			})
			if runErr != nil {
				return runErr
			}

			view := executeView{
				TradeID:   outcome.TradeID,
				Venue:     outcome.Venue,
				Confirmed: outcome.Confirmed,
			}
			for _, step := range outcome.Steps {
				view.Steps = append(view.Steps, stepView{
					Kind:    string(step.Kind),
					TxHash:  step.TxHash,
					GasUsed: step.GasUsed,
				})
			}
			rows, warnings, statuses := buildQuoteView(snap, s.settings.IncludeGasFee)
			for _, row := range rows {
				if row.Venue == outcome.Venue {
					view.Quote = row
					break
				}
			}
			if len(view.Steps) > 0 {
				if trade, err := trades.Get(req.Chain.EVMChainID, view.Steps[len(view.Steps)-1].TxHash); err == nil {
					view.Trade = trade
				}
			}

			meta := out.EnvelopeMeta{Generation: uint64(snap.Generation), Venues: statuses}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), view, warnings, meta)
		},
	}
	args.register(cmd)
	cmd.Flags().BoolVar(&mevGuarded, "mev-guarded", false, "Broadcast the swap through a private relay when available")
	cmd.Flags().StringVar(&gasPriceWei, "gas-price", "", "Pin a legacy gas price in wei for every transaction")
	return cmd
}

// recordGasChoice remembers an explicit gas price so the next simulation
// round prices gas the way the user last chose.
func (s *runtimeState) recordGasChoice(chainID int64, gasPrice *big.Int) {
	store, err := gasprefs.Open(s.settings.GasPrefsPath, s.settings.GasPrefsLockPath)
	if err != nil {
		s.log.WithError(err).Debug("gas preference store unavailable")
		return
	}
	defer func() { _ = store.Close() }()
	if err := store.Record(chainID, gasPrice.String(), "custom"); err != nil {
		s.log.WithError(err).Debug("failed to record gas preference")
	}
}
