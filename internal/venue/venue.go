// Package venue is the static catalog of swap venues: which aggregators the
// engine talks to, and the per-chain router and spender contracts each one
// is allowed to use. The whitelists are the source of truth for quote
// verification; a venue response pointing anywhere else fails the check.
package venue

import (
	"strings"

	"github.com/ggonzalez94/swap-engine/internal/id"
)

const (
	OneInch   = "oneinch"
	ZeroX     = "zerox"
	Paraswap  = "paraswap"
	OpenOcean = "openocean"
	Wrap      = "wrap"
)

type Venue struct {
	Name        string
	DisplayName string
}

var catalog = map[string]Venue{
	OneInch:   {Name: OneInch, DisplayName: "1inch"},
	ZeroX:     {Name: ZeroX, DisplayName: "0x"},
	Paraswap:  {Name: Paraswap, DisplayName: "ParaSwap"},
	OpenOcean: {Name: OpenOcean, DisplayName: "OpenOcean"},
	Wrap:      {Name: Wrap, DisplayName: "Wrap Contract"},
}

// routerWhitelist maps venue -> chain id -> the only router contract quotes
// from that venue may call.
var routerWhitelist = map[string]map[int64]string{
	OneInch: {
		1:     "0x1111111254eeb25477b68fb85ed929f73a960582",
		10:    "0x1111111254eeb25477b68fb85ed929f73a960582",
		56:    "0x1111111254eeb25477b68fb85ed929f73a960582",
		137:   "0x1111111254eeb25477b68fb85ed929f73a960582",
		8453:  "0x1111111254eeb25477b68fb85ed929f73a960582",
		42161: "0x1111111254eeb25477b68fb85ed929f73a960582",
		43114: "0x1111111254eeb25477b68fb85ed929f73a960582",
	},
	ZeroX: {
		1:     "0xdef1c0ded9bec7f1a1670819833240f027b25eff",
		10:    "0xdef1abe32c034e558cdd535791643c58a13acc10",
		56:    "0xdef1c0ded9bec7f1a1670819833240f027b25eff",
		137:   "0xdef1c0ded9bec7f1a1670819833240f027b25eff",
		8453:  "0xdef1c0ded9bec7f1a1670819833240f027b25eff",
		42161: "0xdef1c0ded9bec7f1a1670819833240f027b25eff",
		43114: "0xdef1c0ded9bec7f1a1670819833240f027b25eff",
	},
	Paraswap: {
		1:     "0xdef171fe48cf0115b1d80b88dc8eab59176fee57",
		10:    "0xdef171fe48cf0115b1d80b88dc8eab59176fee57",
		56:    "0xdef171fe48cf0115b1d80b88dc8eab59176fee57",
		137:   "0xdef171fe48cf0115b1d80b88dc8eab59176fee57",
		8453:  "0x59c7c832e96d2568bea6db468c1aadcbbda08a52",
		42161: "0xdef171fe48cf0115b1d80b88dc8eab59176fee57",
		43114: "0xdef171fe48cf0115b1d80b88dc8eab59176fee57",
	},
	OpenOcean: {
		1:     "0x6352a56caadc4f1e25cd6c75970fa768a3304e64",
		10:    "0x6352a56caadc4f1e25cd6c75970fa768a3304e64",
		56:    "0x6352a56caadc4f1e25cd6c75970fa768a3304e64",
		137:   "0x6352a56caadc4f1e25cd6c75970fa768a3304e64",
		8453:  "0x6352a56caadc4f1e25cd6c75970fa768a3304e64",
		42161: "0x6352a56caadc4f1e25cd6c75970fa768a3304e64",
		43114: "0x6352a56caadc4f1e25cd6c75970fa768a3304e64",
	},
}

// spenderWhitelist maps venue -> chain id -> the only contract the user may
// grant an allowance to for that venue. For most venues this is the router
// itself; ParaSwap and OpenOcean use a separate token transfer proxy.
var spenderWhitelist = map[string]map[int64]string{
	OneInch: {
		1:     "0x1111111254eeb25477b68fb85ed929f73a960582",
		10:    "0x1111111254eeb25477b68fb85ed929f73a960582",
		56:    "0x1111111254eeb25477b68fb85ed929f73a960582",
		137:   "0x1111111254eeb25477b68fb85ed929f73a960582",
		8453:  "0x1111111254eeb25477b68fb85ed929f73a960582",
		42161: "0x1111111254eeb25477b68fb85ed929f73a960582",
		43114: "0x1111111254eeb25477b68fb85ed929f73a960582",
	},
	ZeroX: {
		1:     "0xdef1c0ded9bec7f1a1670819833240f027b25eff",
		10:    "0xdef1abe32c034e558cdd535791643c58a13acc10",
		56:    "0xdef1c0ded9bec7f1a1670819833240f027b25eff",
		137:   "0xdef1c0ded9bec7f1a1670819833240f027b25eff",
		8453:  "0xdef1c0ded9bec7f1a1670819833240f027b25eff",
		42161: "0xdef1c0ded9bec7f1a1670819833240f027b25eff",
		43114: "0xdef1c0ded9bec7f1a1670819833240f027b25eff",
	},
	Paraswap: {
		1:     "0x216b4b4ba9f3e719726886d34a177484278bfcae",
		10:    "0x216b4b4ba9f3e719726886d34a177484278bfcae",
		56:    "0x216b4b4ba9f3e719726886d34a177484278bfcae",
		137:   "0x216b4b4ba9f3e719726886d34a177484278bfcae",
		8453:  "0x93aaae79a53759cd164340e4c8766e4db5331cd7",
		42161: "0x216b4b4ba9f3e719726886d34a177484278bfcae",
		43114: "0x216b4b4ba9f3e719726886d34a177484278bfcae",
	},
	OpenOcean: {
		1:     "0xc9fe1bcd64d9ffbc2a023c6e14b5d15eb0a30c31",
		10:    "0xc9fe1bcd64d9ffbc2a023c6e14b5d15eb0a30c31",
		56:    "0xc9fe1bcd64d9ffbc2a023c6e14b5d15eb0a30c31",
		137:   "0xc9fe1bcd64d9ffbc2a023c6e14b5d15eb0a30c31",
		8453:  "0xc9fe1bcd64d9ffbc2a023c6e14b5d15eb0a30c31",
		42161: "0xc9fe1bcd64d9ffbc2a023c6e14b5d15eb0a30c31",
		43114: "0xc9fe1bcd64d9ffbc2a023c6e14b5d15eb0a30c31",
	},
}

// resetBeforeApprove lists tokens whose approve() reverts when moving from
// one non-zero allowance to another, forcing an approve(0) first.
var resetBeforeApprove = map[int64][]string{
	1: {"0xdac17f958d2ee523a2206206994597c13d831ec7"}, // mainnet USDT
}

func Lookup(name string) (Venue, bool) {
	v, ok := catalog[strings.ToLower(strings.TrimSpace(name))]
	return v, ok
}

// All returns the aggregator venues in a stable order. The wrap venue is
// excluded: it only serves native<->wrapped pairs and is selected directly.
func All() []Venue {
	return []Venue{catalog[OneInch], catalog[ZeroX], catalog[Paraswap], catalog[OpenOcean]}
}

// Enabled filters the aggregator list down to the configured names. An empty
// filter enables everything.
func Enabled(names []string) []Venue {
	if len(names) == 0 {
		return All()
	}
	allowed := make(map[string]bool, len(names))
	for _, n := range names {
		allowed[strings.ToLower(strings.TrimSpace(n))] = true
	}
	out := make([]Venue, 0, len(names))
	for _, v := range All() {
		if allowed[v.Name] {
			out = append(out, v)
		}
	}
	return out
}

// Router returns the whitelisted router contract for a venue on a chain.
// The second return is false when the pair is unmapped.
func Router(venueName string, chainID int64) (string, bool) {
	addr, ok := routerWhitelist[strings.ToLower(venueName)][chainID]
	return addr, ok
}

// Spender returns the whitelisted allowance target for a venue on a chain.
func Spender(venueName string, chainID int64) (string, bool) {
	addr, ok := spenderWhitelist[strings.ToLower(venueName)][chainID]
	return addr, ok
}

// SupportsChain reports whether a venue has a router mapping for the chain.
func SupportsChain(venueName string, chainID int64) bool {
	if strings.EqualFold(venueName, Wrap) {
		_, ok := id.ChainByID(chainID)
		return ok
	}
	_, ok := Router(venueName, chainID)
	return ok
}

// NeedsAllowanceReset reports whether a token requires its allowance to be
// zeroed before a new approval can be written.
func NeedsAllowanceReset(chainID int64, tokenAddr string) bool {
	for _, addr := range resetBeforeApprove[chainID] {
		if id.AddressEqual(addr, tokenAddr) {
			return true
		}
	}
	return false
}
