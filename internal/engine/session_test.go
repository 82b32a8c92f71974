package engine

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ggonzalez94/swap-engine/internal/chaindata"
	engerr "github.com/ggonzalez94/swap-engine/internal/errors"
	"github.com/ggonzalez94/swap-engine/internal/id"
	"github.com/ggonzalez94/swap-engine/internal/quote"
	"github.com/ggonzalez94/swap-engine/internal/telemetry"
	"github.com/ggonzalez94/swap-engine/internal/venues"
)

const (
	usdcAddr = "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"
	wethAddr = "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"
	userAddr = "0x1111111111111111111111111111111111111111"
)

type fakeProvider struct {
	name   string
	amount int64
	delay  time.Duration
	err    error

	mu    sync.Mutex
	calls int
	// failFirst makes only the first call fail with err.
	failFirst bool
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Quote(ctx context.Context, req quote.Request) (*quote.RawQuote, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if f.err != nil && (!f.failFirst || call == 1) {
		return nil, f.err
	}
	return &quote.RawQuote{
		Venue:      f.name,
		FromAmount: req.Amount,
		ToAmount:   big.NewInt(f.amount),
		ToDecimals: 18,
		Tx:         &quote.TxData{From: req.UserAddr, To: "0xrouter", Data: []byte{0x01}, Value: big.NewInt(0)},
		Spender:    "0xspender",
	}, nil
}

type fakeSim struct {
	// shortfall is subtracted from the quoted amount in the report.
	shortfall int64
	failVenue string
	gasUSD    float64
}

func (f *fakeSim) Run(_ context.Context, _ quote.Request, raw *quote.RawQuote) (*quote.PreExecReport, error) {
	if raw.Venue == f.failVenue {
		return &quote.PreExecReport{Succeeded: false, FailReason: "reverted"}, nil
	}
	return &quote.PreExecReport{
		Succeeded:        true,
		GasUsed:          100000,
		GasPriceWei:      big.NewInt(20e9),
		GasUSD:           f.gasUSD,
		SimulatedReceive: new(big.Int).Sub(raw.ToAmount, big.NewInt(f.shortfall)),
	}, nil
}

type fakeVerifier struct {
	failVenue string
}

func (f *fakeVerifier) Check(_ quote.Request, raw *quote.RawQuote) quote.Verification {
	if raw.Venue == f.failVenue {
		return quote.Verification{RouterPass: false, SpenderPass: true, CalldataPass: true}
	}
	return quote.Verification{RouterPass: true, SpenderPass: true, CalldataPass: true}
}

type fakePrices struct {
	balance string
	price   float64
}

func (f *fakePrices) Token(_ context.Context, _ id.Chain, _, tokenAddr string) (chaindata.TokenInfo, error) {
	balance := f.balance
	if balance == "" {
		balance = "1000000000000000000000"
	}
	return chaindata.TokenInfo{Symbol: "TOKEN", Decimals: 18, Price: f.price, RawAmount: balance}, nil
}

func testReq(t *testing.T) quote.Request {
	t.Helper()
	chain, err := id.ParseChain("ethereum")
	if err != nil {
		t.Fatal(err)
	}
	return quote.Request{
		Chain:    chain,
		From:     id.Token{Symbol: "USDC", Address: usdcAddr, Decimals: 6},
		To:       id.Token{Symbol: "WETH", Address: wethAddr, Decimals: 18},
		Amount:   big.NewInt(1000000),
		UserAddr: userAddr,
		Slippage: 0.5,
	}
}

func providerList(ps ...*fakeProvider) []venues.Provider {
	out := make([]venues.Provider, len(ps))
	for i, p := range ps {
		out[i] = p
	}
	return out
}

func TestAutoSelectsBestQuote(t *testing.T) {
	providers := providerList(
		&fakeProvider{name: "oneinch", amount: 100},
		&fakeProvider{name: "zerox", amount: 300},
		&fakeProvider{name: "paraswap", amount: 200},
	)
	s := NewSession(providers, &fakeSim{}, &fakeVerifier{}, &fakePrices{price: 1}, Options{IncludeGasFee: true}, telemetry.NewSilentLogger())

	if _, err := s.Refresh(context.Background(), testReq(t)); err != nil {
		t.Fatal(err)
	}
	if err := s.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}

	snap := s.Snapshot()
	if snap.Selection == nil || snap.Selection.Venue != "zerox" {
		t.Fatalf("selection = %+v, want zerox", snap.Selection)
	}
	if snap.Ranked[0].Venue != "zerox" {
		t.Fatalf("top ranked = %s", snap.Ranked[0].Venue)
	}
	r, err := s.ActiveQuote()
	if err != nil {
		t.Fatalf("ActiveQuote: %v", err)
	}
	if r.Venue != "zerox" {
		t.Fatalf("active = %s", r.Venue)
	}
}

func TestStaleGenerationDiscarded(t *testing.T) {
	slow := &fakeProvider{name: "oneinch", amount: 999, delay: 150 * time.Millisecond}
	s := NewSession(providerList(slow), &fakeSim{}, &fakeVerifier{}, &fakePrices{price: 1}, Options{}, telemetry.NewSilentLogger())

	gen1, err := s.Refresh(context.Background(), testReq(t))
	if err != nil {
		t.Fatal(err)
	}

	// Second refresh before the slow venue answers the first round.
	req2 := testReq(t)
	req2.Amount = big.NewInt(2000000)
	gen2, err := s.Refresh(context.Background(), req2)
	if err != nil {
		t.Fatal(err)
	}
	if gen2 <= gen1 {
		t.Fatalf("generations not monotonic: %d then %d", gen1, gen2)
	}

	if err := s.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	// Allow the stale gen1 result to arrive and be dropped.
	time.Sleep(200 * time.Millisecond)

	snap := s.Snapshot()
	if snap.Generation != gen2 {
		t.Fatalf("generation = %d, want %d", snap.Generation, gen2)
	}
	for _, r := range snap.Ranked {
		if r.Generation != gen2 {
			t.Fatalf("slot %s carries generation %d, want %d", r.Venue, r.Generation, gen2)
		}
	}
}

func TestFailedSimulationNeverSelected(t *testing.T) {
	providers := providerList(
		&fakeProvider{name: "oneinch", amount: 500},
		&fakeProvider{name: "zerox", amount: 100},
	)
	// The biggest quote fails simulation, so the smaller one must win.
	s := NewSession(providers, &fakeSim{failVenue: "oneinch"}, &fakeVerifier{}, &fakePrices{price: 1}, Options{}, telemetry.NewSilentLogger())

	if _, err := s.Refresh(context.Background(), testReq(t)); err != nil {
		t.Fatal(err)
	}
	if err := s.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}

	snap := s.Snapshot()
	if snap.Selection == nil || snap.Selection.Venue != "zerox" {
		t.Fatalf("selection = %+v, want zerox", snap.Selection)
	}
}

func TestFailedVerificationBlocksExecution(t *testing.T) {
	providers := providerList(&fakeProvider{name: "oneinch", amount: 500})
	s := NewSession(providers, &fakeSim{}, &fakeVerifier{failVenue: "oneinch"}, &fakePrices{price: 1}, Options{}, telemetry.NewSilentLogger())

	if _, err := s.Refresh(context.Background(), testReq(t)); err != nil {
		t.Fatal(err)
	}
	if err := s.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}

	// The failed quote is never adopted, not even by a manual pin.
	if snap := s.Snapshot(); snap.Selection != nil {
		t.Fatalf("selection = %+v, want none", snap.Selection)
	}
	err := s.Select("oneinch")
	e, ok := engerr.As(err)
	if !ok || e.Code != engerr.CodeVerification {
		t.Fatalf("Select error = %v, want verification code", err)
	}
	if snap := s.Snapshot(); snap.Selection != nil {
		t.Fatalf("selection after rejected pin = %+v, want none", snap.Selection)
	}
	if _, err := s.ActiveQuote(); err == nil {
		t.Fatal("ActiveQuote must fail with no selection")
	}
}

func TestManualPinRejectsFailedSimulation(t *testing.T) {
	providers := providerList(
		&fakeProvider{name: "oneinch", amount: 500},
		&fakeProvider{name: "zerox", amount: 100},
	)
	s := NewSession(providers, &fakeSim{failVenue: "oneinch"}, &fakeVerifier{}, &fakePrices{price: 1}, Options{}, telemetry.NewSilentLogger())

	if _, err := s.Refresh(context.Background(), testReq(t)); err != nil {
		t.Fatal(err)
	}
	if err := s.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}

	err := s.Select("oneinch")
	e, ok := engerr.As(err)
	if !ok || e.Code != engerr.CodeUsage {
		t.Fatalf("Select error = %v, want usage code", err)
	}
	if snap := s.Snapshot(); snap.Selection == nil || snap.Selection.Venue != "zerox" {
		t.Fatalf("selection = %+v, want zerox to stay selected", snap.Selection)
	}
}

func TestManualPinSurvivesRefreshUntilParamsChange(t *testing.T) {
	providers := providerList(
		&fakeProvider{name: "oneinch", amount: 100},
		&fakeProvider{name: "zerox", amount: 300},
	)
	s := NewSession(providers, &fakeSim{}, &fakeVerifier{}, &fakePrices{price: 1}, Options{}, telemetry.NewSilentLogger())

	req := testReq(t)
	if _, err := s.Refresh(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	if err := s.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := s.Select("oneinch"); err != nil {
		t.Fatal(err)
	}

	// Same parameters: the pin holds even though zerox ranks higher.
	if _, err := s.Refresh(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	if err := s.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	snap := s.Snapshot()
	if snap.Selection == nil || snap.Selection.Venue != "oneinch" || !snap.Selection.ManuallyPinned {
		t.Fatalf("selection = %+v, want pinned oneinch", snap.Selection)
	}

	// Changed amount: pin drops and the best quote wins again.
	req2 := testReq(t)
	req2.Amount = big.NewInt(5000000)
	if _, err := s.Refresh(context.Background(), req2); err != nil {
		t.Fatal(err)
	}
	if err := s.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	snap = s.Snapshot()
	if snap.Selection == nil || snap.Selection.Venue != "zerox" || snap.Selection.ManuallyPinned {
		t.Fatalf("selection = %+v, want auto zerox", snap.Selection)
	}
}

func TestExpiryBlocksExecutionUntilRefresh(t *testing.T) {
	providers := providerList(&fakeProvider{name: "oneinch", amount: 100})
	s := NewSession(providers, &fakeSim{}, &fakeVerifier{}, &fakePrices{price: 1}, Options{Expiry: 30 * time.Millisecond}, telemetry.NewSilentLogger())

	if _, err := s.Refresh(context.Background(), testReq(t)); err != nil {
		t.Fatal(err)
	}
	if err := s.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ActiveQuote(); err != nil {
		t.Fatalf("fresh quote should be active: %v", err)
	}

	time.Sleep(60 * time.Millisecond)
	_, err := s.ActiveQuote()
	e, ok := engerr.As(err)
	if !ok || e.Code != engerr.CodeExpired {
		t.Fatalf("error = %v, want expired code", err)
	}

	// Refresh clears the expiry.
	if _, err := s.Refresh(context.Background(), testReq(t)); err != nil {
		t.Fatal(err)
	}
	if err := s.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ActiveQuote(); err != nil {
		t.Fatalf("refreshed quote should be active: %v", err)
	}
}

func TestSlippageChangeBlocksExecution(t *testing.T) {
	providers := providerList(&fakeProvider{name: "oneinch", amount: 100})
	s := NewSession(providers, &fakeSim{}, &fakeVerifier{}, &fakePrices{price: 1}, Options{}, telemetry.NewSilentLogger())

	if _, err := s.Refresh(context.Background(), testReq(t)); err != nil {
		t.Fatal(err)
	}
	if err := s.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}

	s.SetSlippage(1.0)
	_, err := s.ActiveQuote()
	e, ok := engerr.As(err)
	if !ok || e.Code != engerr.CodeExpired {
		t.Fatalf("error = %v, want expired code after slippage change", err)
	}
}

func TestTransientErrorRetriedOnce(t *testing.T) {
	flaky := &fakeProvider{
		name:      "oneinch",
		amount:    100,
		err:       engerr.New(engerr.CodeUnavailable, "upstream hiccup"),
		failFirst: true,
	}
	s := NewSession(providerList(flaky), &fakeSim{}, &fakeVerifier{}, &fakePrices{price: 1}, Options{Retries: 1}, telemetry.NewSilentLogger())

	if _, err := s.Refresh(context.Background(), testReq(t)); err != nil {
		t.Fatal(err)
	}
	if err := s.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}

	snap := s.Snapshot()
	if snap.Ranked[0].Err != nil {
		t.Fatalf("quote should have recovered: %v", snap.Ranked[0].Err)
	}
	if flaky.calls != 2 {
		t.Fatalf("calls = %d, want 2", flaky.calls)
	}
}

func TestInsufficientBalanceRanksByQuotedAmount(t *testing.T) {
	providers := providerList(
		&fakeProvider{name: "oneinch", amount: 100},
		&fakeProvider{name: "zerox", amount: 300},
	)
	// Balance below the requested amount switches to list-price mode.
	prices := &fakePrices{price: 1, balance: "1"}
	s := NewSession(providers, &fakeSim{failVenue: "oneinch"}, &fakeVerifier{}, prices, Options{}, telemetry.NewSilentLogger())

	if _, err := s.Refresh(context.Background(), testReq(t)); err != nil {
		t.Fatal(err)
	}
	if err := s.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}

	snap := s.Snapshot()
	if !snap.Request.InsufficientBalance {
		t.Fatal("request should be flagged insufficient")
	}
	// No simulation runs in this mode, so even venues whose simulation
	// would fail rank by quoted amount.
	if snap.Ranked[0].Venue != "zerox" {
		t.Fatalf("top = %s, want zerox", snap.Ranked[0].Venue)
	}
	if snap.Ranked[0].PreExec != nil {
		t.Fatal("insufficient mode must skip simulation")
	}
}

func TestDebounceCoalescesRefreshes(t *testing.T) {
	p := &fakeProvider{name: "oneinch", amount: 100}
	s := NewSession(providerList(p), &fakeSim{}, &fakeVerifier{}, &fakePrices{price: 1}, Options{Debounce: 80 * time.Millisecond}, telemetry.NewSilentLogger())

	req := testReq(t)
	for i := 0; i < 3; i++ {
		if _, err := s.Refresh(context.Background(), req); err != nil {
			t.Fatal(err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err := s.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}

	p.mu.Lock()
	calls := p.calls
	p.mu.Unlock()
	if calls != 1 {
		t.Fatalf("provider called %d times, want 1 after debounce", calls)
	}
}
