package oneinch

import (
	"context"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	engerr "github.com/ggonzalez94/swap-engine/internal/errors"
	"github.com/ggonzalez94/swap-engine/internal/httpx"
	"github.com/ggonzalez94/swap-engine/internal/id"
	"github.com/ggonzalez94/swap-engine/internal/quote"
)

func testRequest(t *testing.T) quote.Request {
	t.Helper()
	chain, err := id.ParseChain("ethereum")
	if err != nil {
		t.Fatal(err)
	}
	return quote.Request{
		Chain:    chain,
		From:     id.Token{Symbol: "USDC", Address: "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", Decimals: 6},
		To:       id.Token{Symbol: "WETH", Address: "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2", Decimals: 18},
		Amount:   big.NewInt(1000000),
		UserAddr: "0x1111111111111111111111111111111111111111",
		Slippage: 0.5,
		FeeRate:  0.0025,
	}
}

func TestQuoteParsesSwapResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("auth header = %q", got)
		}
		q := r.URL.Query()
		if q.Get("src") == "" || q.Get("amount") != "1000000" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{
			"dstAmount": "420000000000000",
			"tx": {
				"from": "0x1111111111111111111111111111111111111111",
				"to": "0x1111111254eeb25477b68fb85ed929f73a960582",
				"data": "0x12aa3caf",
				"value": "0",
				"gas": 210000
			}
		}`))
	}))
	defer srv.Close()

	c := NewWithBase(httpx.New(2*time.Second, 0), "test-key", srv.URL)
	raw, err := c.Quote(context.Background(), testRequest(t))
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if raw.ToAmount.String() != "420000000000000" {
		t.Fatalf("to amount = %s", raw.ToAmount)
	}
	if raw.Tx == nil || raw.Tx.To != "0x1111111254eeb25477b68fb85ed929f73a960582" {
		t.Fatalf("tx = %+v", raw.Tx)
	}
	if raw.Spender == "" {
		t.Fatal("erc20 input should carry a spender")
	}
	if raw.Gas != 210000 {
		t.Fatalf("gas = %d", raw.Gas)
	}
}

func TestQuoteNativeInputHasNoSpender(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"dstAmount":"1","tx":{"to":"0x1111111254eeb25477b68fb85ed929f73a960582","data":"0x00","value":"1000"}}`))
	}))
	defer srv.Close()

	req := testRequest(t)
	req.From = id.Token{Symbol: "ETH", Address: id.NativeTokenAddress, Decimals: 18}

	c := NewWithBase(httpx.New(2*time.Second, 0), "test-key", srv.URL)
	raw, err := c.Quote(context.Background(), req)
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if raw.Spender != "" {
		t.Fatalf("native input spender = %q, want empty", raw.Spender)
	}
	if raw.Tx.Value.Int64() != 1000 {
		t.Fatalf("value = %s", raw.Tx.Value)
	}
}

func TestQuoteMissingKey(t *testing.T) {
	c := New(httpx.New(2*time.Second, 0), "")
	_, err := c.Quote(context.Background(), testRequest(t))
	e, ok := engerr.As(err)
	if !ok || e.Code != engerr.CodeAuth {
		t.Fatalf("error = %v, want auth code", err)
	}
}
