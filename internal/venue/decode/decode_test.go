package decode

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/ggonzalez94/swap-engine/internal/venue"
)

func packOneInch(t *testing.T, src, dst common.Address, amount, minReturn *big.Int) []byte {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(oneInchABI))
	if err != nil {
		t.Fatal(err)
	}
	desc := oneInchDesc{
		SrcToken:        src,
		DstToken:        dst,
		Amount:          amount,
		MinReturnAmount: minReturn,
		Flags:           big.NewInt(0),
	}
	data, err := parsed.Pack("swap", common.Address{}, desc, []byte{})
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestOneInchRoundTrip(t *testing.T) {
	src := common.HexToAddress("0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48")
	dst := common.HexToAddress("0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2")
	data := packOneInch(t, src, dst, big.NewInt(1000000), big.NewInt(420000))

	d, ok := For(venue.OneInch)
	if !ok {
		t.Fatal("oneinch decoder missing")
	}
	params, ok := d.Decode(data)
	if !ok {
		t.Fatal("decode failed")
	}
	if params.FromToken != strings.ToLower(src.Hex()) {
		t.Fatalf("from = %s", params.FromToken)
	}
	if params.ToToken != strings.ToLower(dst.Hex()) {
		t.Fatalf("to = %s", params.ToToken)
	}
	if params.FromAmount.Int64() != 1000000 {
		t.Fatalf("amount = %s", params.FromAmount)
	}
	if params.MinReceive.Int64() != 420000 {
		t.Fatalf("min receive = %s", params.MinReceive)
	}
}

func TestZeroXRoundTrip(t *testing.T) {
	parsed, err := abi.JSON(strings.NewReader(zeroXABI))
	if err != nil {
		t.Fatal(err)
	}
	input := common.HexToAddress("0xdac17f958d2ee523a2206206994597c13d831ec7")
	output := common.HexToAddress("0x6b175474e89094c44da98b954eedeac495271d0f")
	type transformation struct {
		DeploymentNonce uint32
		Data            []byte
	}
	data, err := parsed.Pack("transformERC20", input, output, big.NewInt(500), big.NewInt(490), []transformation{})
	if err != nil {
		t.Fatal(err)
	}

	d, _ := For(venue.ZeroX)
	params, ok := d.Decode(data)
	if !ok {
		t.Fatal("decode failed")
	}
	if params.FromToken != strings.ToLower(input.Hex()) || params.ToToken != strings.ToLower(output.Hex()) {
		t.Fatalf("tokens = %s -> %s", params.FromToken, params.ToToken)
	}
	if params.MinReceive.Int64() != 490 {
		t.Fatalf("min receive = %s", params.MinReceive)
	}
}

func TestUnknownSelectorNotDecoded(t *testing.T) {
	d, _ := For(venue.OneInch)
	if _, ok := d.Decode([]byte{0xde, 0xad, 0xbe, 0xef, 0x00}); ok {
		t.Fatal("unknown selector should not decode")
	}
	if _, ok := d.Decode([]byte{0x01}); ok {
		t.Fatal("short calldata should not decode")
	}
}

func TestUnknownVenueHasNoDecoder(t *testing.T) {
	if _, ok := For("wrap"); ok {
		t.Fatal("wrap venue has no router calldata to decode")
	}
}

func TestSelector(t *testing.T) {
	if got := Selector([]byte{0x12, 0xaa, 0x3c, 0xaf, 0x00}); got != "0x12aa3caf" {
		t.Fatalf("selector = %s", got)
	}
	if got := Selector([]byte{0x12}); got != "" {
		t.Fatalf("short selector = %q", got)
	}
}
