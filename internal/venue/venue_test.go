package venue

import "testing"

func TestLookupCaseInsensitive(t *testing.T) {
	v, ok := Lookup(" OneInch ")
	if !ok {
		t.Fatal("oneinch should exist")
	}
	if v.DisplayName != "1inch" {
		t.Fatalf("display = %q", v.DisplayName)
	}
	if _, ok := Lookup("uniswapx"); ok {
		t.Fatal("unknown venue should not resolve")
	}
}

func TestEnabledFilter(t *testing.T) {
	all := Enabled(nil)
	if len(all) != 4 {
		t.Fatalf("got %d venues, want 4", len(all))
	}
	for _, v := range all {
		if v.Name == Wrap {
			t.Fatal("wrap venue must not appear in the aggregator list")
		}
	}

	some := Enabled([]string{"zerox", "paraswap"})
	if len(some) != 2 {
		t.Fatalf("got %d venues, want 2", len(some))
	}
}

func TestWhitelistsCoverSameChains(t *testing.T) {
	for _, v := range All() {
		routers := routerWhitelist[v.Name]
		spenders := spenderWhitelist[v.Name]
		if len(routers) == 0 {
			t.Fatalf("%s has no router whitelist", v.Name)
		}
		for chainID := range routers {
			if _, ok := spenders[chainID]; !ok {
				t.Errorf("%s chain %d has a router but no spender", v.Name, chainID)
			}
		}
	}
}

func TestRouterUnmappedChain(t *testing.T) {
	if _, ok := Router(OneInch, 999999); ok {
		t.Fatal("unmapped chain should not resolve")
	}
	addr, ok := Router(OneInch, 1)
	if !ok || addr == "" {
		t.Fatal("mainnet router should resolve")
	}
}

func TestNeedsAllowanceReset(t *testing.T) {
	if !NeedsAllowanceReset(1, "0xdAC17F958D2ee523a2206206994597C13D831ec7") {
		t.Fatal("mainnet USDT requires reset")
	}
	if NeedsAllowanceReset(1, "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48") {
		t.Fatal("USDC does not require reset")
	}
	if NeedsAllowanceReset(137, "0xdac17f958d2ee523a2206206994597c13d831ec7") {
		t.Fatal("reset rule is chain scoped")
	}
}
