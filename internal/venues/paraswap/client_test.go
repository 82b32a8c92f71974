package paraswap

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

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
	}
}

func TestQuoteRunsPriceThenTransaction(t *testing.T) {
	var txBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/prices"):
			_, _ = w.Write([]byte(`{
				"priceRoute": {
					"destAmount": "415000000000000",
					"destDecimals": 18,
					"tokenTransferProxy": "0x216b4b4ba9f3e719726886d34a177484278bfcae"
				}
			}`))
		case strings.HasPrefix(r.URL.Path, "/transactions/1"):
			if err := json.NewDecoder(r.Body).Decode(&txBody); err != nil {
				t.Errorf("decode tx body: %v", err)
			}
			_, _ = w.Write([]byte(`{
				"from": "0x1111111111111111111111111111111111111111",
				"to": "0xdef171fe48cf0115b1d80b88dc8eab59176fee57",
				"data": "0x54e3f31b",
				"value": "0",
				"gas": 350000
			}`))
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewWithBase(httpx.New(2*time.Second, 0), "", srv.URL)
	raw, err := c.Quote(context.Background(), testRequest(t))
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if raw.ToAmount.String() != "415000000000000" {
		t.Fatalf("to amount = %s", raw.ToAmount)
	}
	if raw.Tx.To != "0xdef171fe48cf0115b1d80b88dc8eab59176fee57" {
		t.Fatalf("router = %s", raw.Tx.To)
	}
	if raw.Spender != "0x216b4b4ba9f3e719726886d34a177484278bfcae" {
		t.Fatalf("spender should come from the price route, got %s", raw.Spender)
	}
	// 0.5% slippage goes to the tx builder in basis points.
	if got, ok := txBody["slippage"].(float64); !ok || got != 50 {
		t.Fatalf("slippage = %v", txBody["slippage"])
	}
	if txBody["priceRoute"] == nil {
		t.Fatal("price route must be echoed back to the tx builder")
	}
}

func TestQuoteFailsWithoutPriceRoute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewWithBase(httpx.New(2*time.Second, 0), "", srv.URL)
	if _, err := c.Quote(context.Background(), testRequest(t)); err == nil {
		t.Fatal("expected error when no price route is returned")
	}
}
