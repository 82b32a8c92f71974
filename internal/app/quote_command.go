package app

import (
	"context"
	"fmt"
	"math"
	"math/big"

	"github.com/spf13/cobra"

	"github.com/ggonzalez94/swap-engine/internal/engine"
	engerr "github.com/ggonzalez94/swap-engine/internal/errors"
	"github.com/ggonzalez94/swap-engine/internal/gasprefs"
	"github.com/ggonzalez94/swap-engine/internal/id"
	"github.com/ggonzalez94/swap-engine/internal/out"
	"github.com/ggonzalez94/swap-engine/internal/policy"
	"github.com/ggonzalez94/swap-engine/internal/quote"
	"github.com/ggonzalez94/swap-engine/internal/simulate"
	"github.com/ggonzalez94/swap-engine/internal/telemetry"
	"github.com/ggonzalez94/swap-engine/internal/venues"
	"github.com/ggonzalez94/swap-engine/internal/venues/wrap"
	"github.com/ggonzalez94/swap-engine/internal/verify"
)

// swapArgs holds the flags shared by the quote and execute commands.
type swapArgs struct {
	chain         string
	from          string
	to            string
	amount        string
	amountDecimal string
	account       string
	slippage      float64
	venue         string
}

func (a *swapArgs) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&a.chain, "chain", "", "Chain id/slug/CAIP-2")
	cmd.Flags().StringVar(&a.from, "from", "", "Token to pay (address or 'native')")
	cmd.Flags().StringVar(&a.to, "to", "", "Token to receive (address or 'native')")
	cmd.Flags().StringVar(&a.amount, "amount", "", "Pay amount in base units")
	cmd.Flags().StringVar(&a.amountDecimal, "amount-decimal", "", "Pay amount in token units like 1.5")
	cmd.Flags().StringVar(&a.account, "account", "", "User wallet address")
	cmd.Flags().Float64Var(&a.slippage, "slippage", 0, "Slippage tolerance percent (overrides config)")
	cmd.Flags().StringVar(&a.venue, "venue", "", "Pin a venue instead of auto-selecting the best quote")
	_ = cmd.MarkFlagRequired("chain")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("account")
}

// buildRequest resolves the flags into a quote request. Token decimals for
// ERC-20 inputs come from chain data so decimal amounts convert correctly.
func (s *runtimeState) buildRequest(ctx context.Context, args swapArgs) (quote.Request, error) {
	chain, err := id.ParseChain(args.chain)
	if err != nil {
		return quote.Request{}, err
	}
	from, err := id.ParseToken(args.from, chain)
	if err != nil {
		return quote.Request{}, err
	}
	to, err := id.ParseToken(args.to, chain)
	if err != nil {
		return quote.Request{}, err
	}
	if id.AddressEqual(from.Address, to.Address) {
		return quote.Request{}, engerr.New(engerr.CodeUsage, "pay and receive tokens must differ")
	}

	needFromInfo := from.Decimals == 0 && args.amountDecimal != ""
	autoSlippage := s.settings.AutoSlippage && args.slippage <= 0
	var fromPrice, toPrice float64
	if needFromInfo || autoSlippage {
		info, err := s.chainData.Token(ctx, chain, args.account, from.Address)
		if err != nil {
			return quote.Request{}, err
		}
		if from.Decimals == 0 {
			from.Decimals = info.Decimals
		}
		if from.Symbol == "" {
			from.Symbol = info.Symbol
		}
		fromPrice = info.Price
	}
	if autoSlippage {
		info, err := s.chainData.Token(ctx, chain, args.account, to.Address)
		if err != nil {
			return quote.Request{}, err
		}
		toPrice = info.Price
	}

	base, _, err := id.NormalizeAmount(args.amount, args.amountDecimal, from.Decimals)
	if err != nil {
		return quote.Request{}, err
	}
	amount, ok := new(big.Int).SetString(base, 10)
	if !ok || amount.Sign() <= 0 {
		return quote.Request{}, engerr.New(engerr.CodeUsage, "amount must be positive")
	}

	slippage := s.settings.Slippage
	switch {
	case args.slippage > 0:
		slippage = args.slippage
	case autoSlippage:
		if stablePair(fromPrice, toPrice) {
			slippage = 0.1
		} else {
			slippage = 0.5
		}
	}

	return quote.Request{
		Chain:    chain,
		From:     from,
		To:       to,
		Amount:   amount,
		UserAddr: args.account,
		Slippage: slippage,
		FeeRate:  s.settings.FeeRate,
	}, nil
}

// stablePair reports whether the pay and receive tokens trade within 1% of
// each other, which gets the tighter auto-slippage default.
func stablePair(fromPrice, toPrice float64) bool {
	if fromPrice <= 0 || toPrice <= 0 {
		return false
	}
	return math.Abs(fromPrice-toPrice)/fromPrice <= 0.01
}

// buildSession assembles the quote engine for one request. Native<->wrapped
// pairs skip the aggregators entirely and quote against the wrap contract.
func (s *runtimeState) buildSession(req quote.Request) (*engine.Session, func()) {
	var providers []venues.Provider
	if id.IsWrapPair(req.Chain, req.From, req.To) {
		providers = []venues.Provider{wrap.New()}
	} else {
		for _, p := range s.providers {
			if policy.CheckVenueAllowed(s.settings.EnableVenues, p.Name()) == nil {
				providers = append(providers, p)
			}
		}
	}

	var prefs simulate.GasPrefs
	closeStore := func() {}
	if store, err := gasprefs.Open(s.settings.GasPrefsPath, s.settings.GasPrefsLockPath); err == nil {
		prefs = store
		closeStore = func() { _ = store.Close() }
	} else {
		s.log.WithError(err).Debug("gas preference store unavailable")
	}

	reporter := telemetry.NewReporter(s.log)
	sim := simulate.New(s.chainData, prefs, s.log, s.settings.UnlimitedAllowance)
	session := engine.NewSession(providers, sim, verify.New(s.log), s.chainData, engine.Options{
		Debounce:      s.settings.Debounce,
		Expiry:        s.settings.QuoteExpiry,
		Retries:       s.settings.Retries,
		IncludeGasFee: s.settings.IncludeGasFee,
		Reporter:      reporter,
	}, s.log)
	cleanup := func() {
		reporter.Close()
		closeStore()
	}
	return session, cleanup
}

// quoteRow is one ranked venue in the quote command output.
type quoteRow struct {
	Rank             int      `json:"rank"`
	Venue            string   `json:"venue"`
	QuotedReceive    string   `json:"quoted_receive,omitempty"`
	SimulatedReceive string   `json:"simulated_receive,omitempty"`
	ReceiveValueUSD  *float64 `json:"receive_value_usd,omitempty"`
	GasUSD           *float64 `json:"gas_usd,omitempty"`
	Approval         string   `json:"approval,omitempty"`
	DeviationPct     *float64 `json:"deviation_pct,omitempty"`
	Verified         *bool    `json:"verified,omitempty"`
	Selected         bool     `json:"selected"`
	Usable           bool     `json:"usable"`
	Error            string   `json:"error,omitempty"`
}

func (s *runtimeState) newQuoteCommand() *cobra.Command {
	var args swapArgs
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Fetch and rank swap quotes from every enabled venue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			req, err := s.buildRequest(ctx, args)
			if err != nil {
				return err
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

			snap := session.Snapshot()
			rows, warnings, statuses := buildQuoteView(snap, s.settings.IncludeGasFee)
			warnings = append(warnings, s.slippageWarnings(ctx, snap.Request)...)
			meta := out.EnvelopeMeta{Generation: uint64(snap.Generation), Venues: statuses}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), rows, warnings, meta)
		},
	}
	args.register(cmd)
	return cmd
}

func buildQuoteView(snap engine.Snapshot, includeGasFee bool) ([]quoteRow, []string, []out.VenueStatus) {
	rows := make([]quoteRow, 0, len(snap.Ranked))
	var warnings []string
	statuses := make([]out.VenueStatus, 0, len(snap.Ranked))

	for i, result := range snap.Ranked {
		row := quoteRow{
			Rank:   i + 1,
			Venue:  result.Venue,
			Usable: result.Usable() || (snap.Request.InsufficientBalance && result.Raw != nil),
		}
		if snap.Selection != nil && snap.Selection.Venue == result.Venue {
			row.Selected = true
		}
		status := out.VenueStatus{Name: result.Venue, Status: "ok"}

		switch {
		case result.Loading:
			status.Status = "pending"
		case result.Err != nil:
			row.Error = result.Err.Error()
			status.Status = "error"
		default:
			if result.Raw != nil {
				row.QuotedReceive = result.Raw.ToAmount.String()
			}
			if result.PreExec != nil {
				row.Approval = result.PreExec.Approval.String()
				if result.PreExec.Succeeded {
					row.SimulatedReceive = result.PreExec.SimulatedReceive.String()
					gas := result.PreExec.GasUSD
					row.GasUSD = &gas
				} else {
					row.Error = result.PreExec.FailReason
					status.Status = "simulation_failed"
				}
			}
			if result.Verify != nil {
				verified := result.Verify.Pass()
				row.Verified = &verified
				if !verified {
					status.Status = "verification_failed"
					warnings = append(warnings, fmt.Sprintf("venue %s failed security verification", result.Venue))
				}
			}
			value := engine.ReceiveValue(result, snap.Request, snap.ToPrice, includeGasFee)
			if value > negativeInfCutoff {
				row.ReceiveValueUSD = &value
			}
			if dev, ok := engine.Deviation(result); ok {
				row.DeviationPct = &dev
				if engine.Undershoots(result) {
					warnings = append(warnings, fmt.Sprintf(
						"venue %s simulates %.2f%% below its quoted amount", result.Venue, -dev))
				}
			}
		}
		rows = append(rows, row)
		statuses = append(statuses, status)
	}

	if snap.Request.InsufficientBalance {
		warnings = append(warnings, "balance is below the pay amount; quotes are ranked by list price without simulation")
	}
	if snap.Expired {
		warnings = append(warnings, "the selected quote is older than the freshness window; refresh before executing")
	}
	return rows, warnings, statuses
}

// slippageWarnings asks the chain-data service whether the chosen slippage
// is sane for the pair. Advisory only; lookup failures are swallowed.
func (s *runtimeState) slippageWarnings(ctx context.Context, req quote.Request) []string {
	info, err := s.chainData.CheckSlippage(ctx, req.Chain, req.From.Address, req.To.Address, req.Slippage)
	if err != nil {
		s.log.WithError(err).Debug("slippage check unavailable")
		return nil
	}
	if info.IsValid {
		return nil
	}
	return []string{fmt.Sprintf(
		"slippage %.2f%% looks off for this pair; suggested %.2f%%",
		req.Slippage, info.SuggestSlippage*100)}
}

// Receive values below this are the unusable-quote sentinel.
const negativeInfCutoff = -1e300
