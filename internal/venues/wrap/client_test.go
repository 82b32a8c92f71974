package wrap

import (
	"context"
	"math/big"
	"testing"

	"github.com/ggonzalez94/swap-engine/internal/id"
	"github.com/ggonzalez94/swap-engine/internal/quote"
)

func TestDepositQuote(t *testing.T) {
	chain, _ := id.ParseChain("ethereum")
	req := quote.Request{
		Chain:    chain,
		From:     id.Token{Symbol: "ETH", Address: id.NativeTokenAddress, Decimals: 18},
		To:       id.Token{Symbol: "WETH", Address: chain.WrappedNative, Decimals: 18},
		Amount:   big.NewInt(1e18),
		UserAddr: "0x1111111111111111111111111111111111111111",
	}

	raw, err := New().Quote(context.Background(), req)
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if raw.ToAmount.Cmp(req.Amount) != 0 {
		t.Fatal("wrap must quote 1:1")
	}
	if raw.Tx.Value.Cmp(req.Amount) != 0 {
		t.Fatal("deposit carries the amount as tx value")
	}
	if raw.Tx.To != chain.WrappedNative {
		t.Fatalf("tx to = %s", raw.Tx.To)
	}
	if raw.Spender != "" {
		t.Fatal("wrap quotes never need an allowance")
	}
	// deposit() selector
	if len(raw.Tx.Data) != 4 {
		t.Fatalf("deposit calldata length = %d", len(raw.Tx.Data))
	}
}

func TestWithdrawQuote(t *testing.T) {
	chain, _ := id.ParseChain("ethereum")
	req := quote.Request{
		Chain:    chain,
		From:     id.Token{Symbol: "WETH", Address: chain.WrappedNative, Decimals: 18},
		To:       id.Token{Symbol: "ETH", Address: id.NativeTokenAddress, Decimals: 18},
		Amount:   big.NewInt(5e17),
		UserAddr: "0x1111111111111111111111111111111111111111",
	}

	raw, err := New().Quote(context.Background(), req)
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if raw.Tx.Value.Sign() != 0 {
		t.Fatal("withdraw sends no native value")
	}
	// withdraw(uint256) selector plus one word
	if len(raw.Tx.Data) != 4+32 {
		t.Fatalf("withdraw calldata length = %d", len(raw.Tx.Data))
	}
}

func TestRejectsNonWrapPair(t *testing.T) {
	chain, _ := id.ParseChain("ethereum")
	req := quote.Request{
		Chain:    chain,
		From:     id.Token{Symbol: "USDC", Address: "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", Decimals: 6},
		To:       id.Token{Symbol: "ETH", Address: id.NativeTokenAddress, Decimals: 18},
		Amount:   big.NewInt(1),
		UserAddr: "0x1111111111111111111111111111111111111111",
	}
	if _, err := New().Quote(context.Background(), req); err == nil {
		t.Fatal("expected rejection for non-wrap pair")
	}
}
