// Package venues defines the adapter contract every swap venue client
// implements, plus shared parsing helpers for the number formats aggregator
// APIs return.
package venues

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	engerr "github.com/ggonzalez94/swap-engine/internal/errors"
	"github.com/ggonzalez94/swap-engine/internal/quote"
)

// Provider fetches a swap quote from one venue. Implementations are safe
// for concurrent use; the engine fans out one call per enabled venue.
type Provider interface {
	Name() string
	Quote(ctx context.Context, req quote.Request) (*quote.RawQuote, error)
}

// ParseBig parses a decimal integer string from an API response.
func ParseBig(s, field string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, engerr.New(engerr.CodeUnavailable, fmt.Sprintf("venue response missing %s", field))
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, engerr.New(engerr.CodeUnavailable, fmt.Sprintf("venue response %s is not an integer: %s", field, s))
	}
	return n, nil
}

// ParseHexOrDec accepts 0x-prefixed hex or plain decimal, both of which
// appear in aggregator tx value fields. Empty means zero.
func ParseHexOrDec(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return big.NewInt(0), nil
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		n, ok := new(big.Int).SetString(s[2:], 16)
		if !ok {
			return nil, engerr.New(engerr.CodeUnavailable, fmt.Sprintf("invalid hex amount: %s", s))
		}
		return n, nil
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, engerr.New(engerr.CodeUnavailable, fmt.Sprintf("invalid amount: %s", s))
	}
	return n, nil
}

// ParseCalldata decodes 0x-prefixed hex calldata.
func ParseCalldata(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if s == "" {
		return nil, engerr.New(engerr.CodeUnavailable, "venue response missing calldata")
	}
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, engerr.Wrap(engerr.CodeUnavailable, "decode venue calldata", err)
	}
	return data, nil
}
