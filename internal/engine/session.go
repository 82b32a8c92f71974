// Package engine drives the quote lifecycle for one swap form: debounced
// refreshes, concurrent fan-out to every enabled venue, per-venue
// simulation and verification, generation-tagged staleness control, quote
// ranking with sticky manual selection, and the freshness window that
// expires a selection after thirty seconds.
package engine

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ggonzalez94/swap-engine/internal/chaindata"
	engerr "github.com/ggonzalez94/swap-engine/internal/errors"
	"github.com/ggonzalez94/swap-engine/internal/id"
	"github.com/ggonzalez94/swap-engine/internal/quote"
	"github.com/ggonzalez94/swap-engine/internal/telemetry"
	"github.com/ggonzalez94/swap-engine/internal/venues"
)

// Simulator runs a quote's transaction chain through pre-execution.
type Simulator interface {
	Run(ctx context.Context, req quote.Request, raw *quote.RawQuote) (*quote.PreExecReport, error)
}

// Verifier runs the router, spender, and calldata checks.
type Verifier interface {
	Check(req quote.Request, raw *quote.RawQuote) quote.Verification
}

// PriceSource resolves token metadata, balances, and USD prices.
type PriceSource interface {
	Token(ctx context.Context, chain id.Chain, userAddr, tokenAddr string) (chaindata.TokenInfo, error)
}

type Options struct {
	Debounce      time.Duration
	Expiry        time.Duration
	Retries       int
	IncludeGasFee bool
	// Reporter receives fire-and-forget round/result events. Optional.
	Reporter *telemetry.Reporter
}

type Session struct {
	providers []venues.Provider
	sim       Simulator
	verifier  Verifier
	prices    PriceSource
	opts      Options
	log       *logrus.Logger

	mu              sync.Mutex
	generation      quote.Generation
	req             quote.Request
	reqKey          string
	toPrice         float64
	slots           map[string]*quote.Result
	selection       *quote.Selection
	expired         bool
	slippageChanged bool

	pending     int
	waitCh      chan struct{}
	expiryTimer *time.Timer
}

func NewSession(providers []venues.Provider, sim Simulator, verifier Verifier, prices PriceSource, opts Options, log *logrus.Logger) *Session {
	if log == nil {
		log = logrus.New()
	}
	if opts.Expiry <= 0 {
		opts.Expiry = 30 * time.Second
	}
	done := make(chan struct{})
	close(done)
	return &Session{
		providers: providers,
		sim:       sim,
		verifier:  verifier,
		prices:    prices,
		opts:      opts,
		log:       log,
		slots:     make(map[string]*quote.Result),
		waitCh:    done,
	}
}

// Refresh starts a new quote round and returns its generation. Results from
// any earlier round are discarded when they arrive. A refresh with changed
// parameters drops the manual pin; a plain refresh keeps it.
func (s *Session) Refresh(ctx context.Context, req quote.Request) (quote.Generation, error) {
	if !req.Valid() {
		return 0, engerr.New(engerr.CodeUsage, "swap request is incomplete")
	}

	s.mu.Lock()
	s.generation++
	gen := s.generation
	key := req.Key()
	if key != s.reqKey {
		s.selection = nil
	}
	s.req = req
	s.reqKey = key
	s.expired = false
	s.slippageChanged = false
	s.stopExpiryLocked()
	s.slots = make(map[string]*quote.Result, len(s.providers))
	for _, p := range s.providers {
		s.slots[p.Name()] = &quote.Result{Venue: p.Name(), Generation: gen, Loading: true}
	}
	s.pending = len(s.providers)
	s.waitCh = make(chan struct{})
	if s.pending == 0 {
		close(s.waitCh)
	}
	debounce := s.opts.Debounce
	s.mu.Unlock()

	s.opts.Reporter.Report("quote round started", logrus.Fields{
		"generation": uint64(gen),
		"chain":      req.Chain.Slug,
		"from":       req.From.Address,
		"to":         req.To.Address,
	})

	go s.fanOut(ctx, gen, req, debounce)
	return gen, nil
}

func (s *Session) fanOut(ctx context.Context, gen quote.Generation, req quote.Request, debounce time.Duration) {
	if debounce > 0 {
		select {
		case <-ctx.Done():
			s.abandonRound(gen, ctx.Err())
			return
		case <-time.After(debounce):
		}
	}

	s.mu.Lock()
	superseded := gen != s.generation
	s.mu.Unlock()
	if superseded {
		return
	}

	req, err := s.resolveRequest(ctx, gen, req)
	if err != nil {
		s.abandonRound(gen, err)
		return
	}

	for _, p := range s.providers {
		go s.fetchOne(ctx, gen, req, p)
	}
}

// resolveRequest fills in token decimals, the to-token price, and the
// insufficient-balance flag from live chain data.
func (s *Session) resolveRequest(ctx context.Context, gen quote.Generation, req quote.Request) (quote.Request, error) {
	if s.prices == nil {
		return req, nil
	}
	from, err := s.prices.Token(ctx, req.Chain, req.UserAddr, req.From.Address)
	if err != nil {
		return req, err
	}
	to, err := s.prices.Token(ctx, req.Chain, req.UserAddr, req.To.Address)
	if err != nil {
		return req, err
	}
	if req.From.Decimals == 0 {
		req.From.Decimals = from.Decimals
	}
	if req.From.Symbol == "" {
		req.From.Symbol = from.Symbol
	}
	if req.To.Decimals == 0 {
		req.To.Decimals = to.Decimals
	}
	if req.To.Symbol == "" {
		req.To.Symbol = to.Symbol
	}
	req.InsufficientBalance = from.Balance().Cmp(req.Amount) < 0

	s.mu.Lock()
	if gen == s.generation {
		s.req = req
		s.toPrice = to.Price
	}
	s.mu.Unlock()
	return req, nil
}

func (s *Session) fetchOne(ctx context.Context, gen quote.Generation, req quote.Request, p venues.Provider) {
	result := &quote.Result{Venue: p.Name(), Generation: gen, ReceivedAt: time.Now()}

	raw, err := s.quoteWithRetry(ctx, req, p)
	if err != nil {
		result.Err = err
		s.deliver(gen, result)
		return
	}
	result.Raw = raw

	if !req.InsufficientBalance && s.sim != nil {
		report, err := s.sim.Run(ctx, req, raw)
		if err != nil {
			result.Err = err
			s.deliver(gen, result)
			return
		}
		result.PreExec = report
	}
	if s.verifier != nil {
		v := s.verifier.Check(req, raw)
		result.Verify = &v
	}
	s.deliver(gen, result)
}

// quoteWithRetry retries once on transient upstream failures.
func (s *Session) quoteWithRetry(ctx context.Context, req quote.Request, p venues.Provider) (*quote.RawQuote, error) {
	raw, err := p.Quote(ctx, req)
	for attempt := 0; err != nil && attempt < s.opts.Retries && engerr.Transient(err); attempt++ {
		raw, err = p.Quote(ctx, req)
	}
	return raw, err
}

func (s *Session) deliver(gen quote.Generation, result *quote.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		// Stale round; a newer refresh owns the slots now.
		s.log.WithFields(logrus.Fields{
			"venue":      result.Venue,
			"generation": uint64(gen),
		}).Debug("discarding stale quote result")
		return
	}

	result.Loading = false
	s.slots[result.Venue] = result
	s.pending--
	if s.pending == 0 {
		close(s.waitCh)
	}
	s.opts.Reporter.Report("venue quote result", logrus.Fields{
		"generation": uint64(gen),
		"venue":      result.Venue,
		"ok":         result.Err == nil,
	})

	s.autoSelectLocked()
}

// abandonRound fails every still-loading slot so waiters unblock.
func (s *Session) abandonRound(gen quote.Generation, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return
	}
	for name, slot := range s.slots {
		if slot.Loading {
			s.slots[name] = &quote.Result{Venue: name, Generation: gen, Err: err, ReceivedAt: time.Now()}
			s.pending--
		}
	}
	if s.pending == 0 {
		select {
		case <-s.waitCh:
		default:
			close(s.waitCh)
		}
	}
}

func (s *Session) autoSelectLocked() {
	if s.selection != nil && s.selection.ManuallyPinned {
		return
	}
	best := Best(s.resultsLocked(), s.req, s.toPrice, s.opts.IncludeGasFee)
	if best == nil {
		return
	}
	if s.selection != nil && s.selection.Venue == best.Venue {
		return
	}
	s.adoptLocked(best.Venue, false)
}

func (s *Session) adoptLocked(venueName string, manual bool) {
	s.selection = &quote.Selection{Venue: venueName, ManuallyPinned: manual, AdoptedAt: time.Now()}
	s.expired = false
	s.restartExpiryLocked()
}

// Select pins a venue manually. The pin survives refreshes of the same
// request until the parameters change. Quotes that failed verification,
// simulation, or fetching can never be pinned.
func (s *Session) Select(venueName string) error {
	name := strings.ToLower(strings.TrimSpace(venueName))
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[name]
	if !ok {
		return engerr.New(engerr.CodeUsage, "no quote slot for venue "+venueName)
	}
	if !Eligible(slot, s.req) {
		if slot.Verify != nil && !slot.Verify.Pass() {
			return engerr.New(engerr.CodeVerification, "venue "+venueName+" failed security verification")
		}
		return engerr.New(engerr.CodeUsage, "venue "+venueName+" has no usable quote")
	}
	s.adoptLocked(name, true)
	return nil
}

// SetSlippage flags the session when slippage moves after quotes were
// fetched; execution refuses until the next refresh re-quotes with it.
func (s *Session) SetSlippage(pct float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reqKey != "" && pct != s.req.Slippage {
		s.slippageChanged = true
	}
}

func (s *Session) restartExpiryLocked() {
	s.stopExpiryLocked()
	gen := s.generation
	s.expiryTimer = time.AfterFunc(s.opts.Expiry, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if gen != s.generation {
			return
		}
		s.expired = true
		s.log.WithField("generation", uint64(gen)).Debug("active quote expired")
	})
}

func (s *Session) stopExpiryLocked() {
	if s.expiryTimer != nil {
		s.expiryTimer.Stop()
		s.expiryTimer = nil
	}
}

// Wait blocks until every venue in the current round has answered or the
// context ends.
func (s *Session) Wait(ctx context.Context) error {
	s.mu.Lock()
	ch := s.waitCh
	s.mu.Unlock()
	select {
	case <-ctx.Done():
		return engerr.Wrap(engerr.CodeUnavailable, "quote round interrupted", ctx.Err())
	case <-ch:
		return nil
	}
}

// Snapshot is a consistent copy of the session state for rendering.
type Snapshot struct {
	Generation      quote.Generation
	Request         quote.Request
	ToPrice         float64
	Ranked          []*quote.Result
	Selection       *quote.Selection
	Expired         bool
	SlippageChanged bool
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sel *quote.Selection
	if s.selection != nil {
		copySel := *s.selection
		sel = &copySel
	}
	return Snapshot{
		Generation:      s.generation,
		Request:         s.req,
		ToPrice:         s.toPrice,
		Ranked:          Rank(s.resultsLocked(), s.req, s.toPrice, s.opts.IncludeGasFee),
		Selection:       sel,
		Expired:         s.expired,
		SlippageChanged: s.slippageChanged,
	}
}

func (s *Session) resultsLocked() []*quote.Result {
	out := make([]*quote.Result, 0, len(s.slots))
	for _, r := range s.slots {
		out = append(out, r)
	}
	return out
}

// ActiveQuote returns the selected quote if it is still executable. Every
// gate that blocks execution surfaces as a typed error here.
func (s *Session) ActiveQuote() (*quote.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.selection == nil {
		return nil, engerr.New(engerr.CodeUsage, "no quote selected")
	}
	if s.expired {
		return nil, engerr.New(engerr.CodeExpired, "active quote is older than the freshness window, refresh quotes")
	}
	if s.slippageChanged {
		return nil, engerr.New(engerr.CodeExpired, "slippage changed after quoting, refresh quotes")
	}
	r, ok := s.slots[s.selection.Venue]
	if !ok || r.Loading {
		return nil, engerr.New(engerr.CodeUnavailable, "selected quote is still loading")
	}
	if r.Err != nil {
		return nil, engerr.Wrap(engerr.CodeUnavailable, "selected venue failed to quote", r.Err)
	}
	if r.PreExec == nil || !r.PreExec.Succeeded {
		reason := "quote failed pre-execution simulation"
		if r.PreExec != nil && r.PreExec.FailReason != "" {
			reason = reason + ": " + r.PreExec.FailReason
		}
		return nil, engerr.New(engerr.CodeSimulation, reason)
	}
	if r.Verify == nil || !r.Verify.Pass() {
		return nil, engerr.New(engerr.CodeVerification, "quote failed security verification")
	}
	return r, nil
}
