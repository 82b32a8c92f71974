package verify

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/ggonzalez94/swap-engine/internal/id"
	"github.com/ggonzalez94/swap-engine/internal/quote"
	"github.com/ggonzalez94/swap-engine/internal/venue"
)

const (
	usdcAddr = "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"
	wethAddr = "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"
	userAddr = "0x1111111111111111111111111111111111111111"
	router   = "0x1111111254eeb25477b68fb85ed929f73a960582"
)

// packOneInchSwap builds real 1inch swap calldata for calldata checks.
func packOneInchSwap(t *testing.T, src, dst string, amount, minReturn *big.Int) []byte {
	t.Helper()
	const def = `[{
		"name": "swap", "type": "function",
		"inputs": [
			{"name": "executor", "type": "address"},
			{"name": "desc", "type": "tuple", "components": [
				{"name": "srcToken", "type": "address"},
				{"name": "dstToken", "type": "address"},
				{"name": "srcReceiver", "type": "address"},
				{"name": "dstReceiver", "type": "address"},
				{"name": "amount", "type": "uint256"},
				{"name": "minReturnAmount", "type": "uint256"},
				{"name": "flags", "type": "uint256"}
			]},
			{"name": "data", "type": "bytes"}
		]
	}]`
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		t.Fatal(err)
	}
	desc := struct {
		SrcToken        common.Address
		DstToken        common.Address
		SrcReceiver     common.Address
		DstReceiver     common.Address
		Amount          *big.Int
		MinReturnAmount *big.Int
		Flags           *big.Int
	}{
		SrcToken:        common.HexToAddress(src),
		DstToken:        common.HexToAddress(dst),
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

func testPair(t *testing.T) (quote.Request, *quote.RawQuote) {
	t.Helper()
	chain, err := id.ParseChain("ethereum")
	if err != nil {
		t.Fatal(err)
	}
	req := quote.Request{
		Chain:    chain,
		From:     id.Token{Symbol: "USDC", Address: usdcAddr, Decimals: 6},
		To:       id.Token{Symbol: "WETH", Address: wethAddr, Decimals: 18},
		Amount:   big.NewInt(1000000),
		UserAddr: userAddr,
		Slippage: 0.5,
	}
	raw := &quote.RawQuote{
		Venue:      venue.OneInch,
		FromAmount: req.Amount,
		ToAmount:   big.NewInt(420000),
		Tx: &quote.TxData{
			From:  userAddr,
			To:    router,
			Data:  packOneInchSwap(t, usdcAddr, wethAddr, big.NewInt(1000000), big.NewInt(417000)),
			Value: big.NewInt(0),
		},
		Spender: router,
	}
	return req, raw
}

func TestAllChecksPass(t *testing.T) {
	req, raw := testPair(t)
	out := New(logrus.New()).Check(req, raw)
	if !out.Pass() {
		t.Fatalf("verification = %+v, want pass", out)
	}
}

func TestRouterMismatchFails(t *testing.T) {
	req, raw := testPair(t)
	raw.Tx.To = "0x2222222222222222222222222222222222222222"
	out := New(logrus.New()).Check(req, raw)
	if out.RouterPass {
		t.Fatal("wrong router must fail")
	}
	if out.Pass() {
		t.Fatal("quote must not pass overall")
	}
}

func TestSpenderMismatchFails(t *testing.T) {
	req, raw := testPair(t)
	raw.Spender = "0x3333333333333333333333333333333333333333"
	out := New(logrus.New()).Check(req, raw)
	if out.SpenderPass {
		t.Fatal("wrong spender must fail")
	}
}

func TestUnmappedChainFailsOpen(t *testing.T) {
	req, raw := testPair(t)
	// No whitelist entry for this chain id.
	req.Chain.EVMChainID = 424242
	out := New(logrus.New()).Check(req, raw)
	if !out.RouterPass || !out.SpenderPass {
		t.Fatal("unmapped venue/chain pair must pass, not fail")
	}
}

func TestNativeInputSkipsSpenderCheck(t *testing.T) {
	req, raw := testPair(t)
	req.From = id.Token{Symbol: "ETH", Address: id.NativeTokenAddress, Decimals: 18}
	raw.Spender = ""
	out := New(logrus.New()).Check(req, raw)
	if !out.SpenderPass {
		t.Fatal("native input has no spender to check")
	}
}

func TestCalldataTokenMismatchFails(t *testing.T) {
	req, raw := testPair(t)
	raw.Tx.Data = packOneInchSwap(t, usdcAddr, usdcAddr, big.NewInt(1000000), big.NewInt(417000))
	out := New(logrus.New()).Check(req, raw)
	if out.CalldataPass {
		t.Fatal("calldata trading the wrong token must fail")
	}
}

func TestCalldataAmountMismatchFails(t *testing.T) {
	req, raw := testPair(t)
	raw.Tx.Data = packOneInchSwap(t, usdcAddr, wethAddr, big.NewInt(999), big.NewInt(417000))
	out := New(logrus.New()).Check(req, raw)
	if out.CalldataPass {
		t.Fatal("calldata selling the wrong amount must fail")
	}
}

func TestCalldataMinReceiveTooLowFails(t *testing.T) {
	req, raw := testPair(t)
	// Quoted 420000 with 0.5% slippage and 5% tolerance floors around 397k.
	raw.Tx.Data = packOneInchSwap(t, usdcAddr, wethAddr, big.NewInt(1000000), big.NewInt(300000))
	out := New(logrus.New()).Check(req, raw)
	if out.CalldataPass {
		t.Fatal("min receive far below the slippage floor must fail")
	}
}

func TestCalldataMinReceiveTooHighFails(t *testing.T) {
	req, raw := testPair(t)
	// Floor is 420000*0.995 = 417900; 451332 sits 8% above it, outside
	// the tolerance on the high side.
	raw.Tx.Data = packOneInchSwap(t, usdcAddr, wethAddr, big.NewInt(1000000), big.NewInt(451332))
	out := New(logrus.New()).Check(req, raw)
	if out.CalldataPass {
		t.Fatal("min receive far above the slippage floor must fail")
	}
}

func TestMinReceiveToleranceIsTwoSided(t *testing.T) {
	to := big.NewInt(10000)
	// Floor at 0.5% slippage is 9950.
	if !minReceiveOK(big.NewInt(9950), to, 0.5) {
		t.Fatal("exact floor must pass")
	}
	if !minReceiveOK(big.NewInt(9600), to, 0.5) {
		t.Fatal("3.5% below the floor is within tolerance")
	}
	if !minReceiveOK(big.NewInt(10300), to, 0.5) {
		t.Fatal("3.5% above the floor is within tolerance")
	}
	if minReceiveOK(big.NewInt(9000), to, 0.5) {
		t.Fatal("9.5% below the floor must fail")
	}
	if minReceiveOK(big.NewInt(10746), to, 0.5) {
		t.Fatal("8% above the floor must fail")
	}
}

func TestNativeSourceZeroAddressScopedToOpenOcean(t *testing.T) {
	native := id.Token{Symbol: "ETH", Address: id.NativeTokenAddress, Decimals: 18}
	if !sourceTokenMatches(venue.OpenOcean, zeroAddress, native) {
		t.Fatal("OpenOcean encodes native as the zero address")
	}
	if sourceTokenMatches(venue.OneInch, zeroAddress, native) {
		t.Fatal("zero-address native must not pass for other venues")
	}
	if !sourceTokenMatches(venue.OneInch, id.NativeTokenAddress, native) {
		t.Fatal("sentinel native must pass everywhere")
	}
	if sourceTokenMatches(venue.OpenOcean, zeroAddress, id.Token{Symbol: "USDC", Address: usdcAddr, Decimals: 6}) {
		t.Fatal("zero address never matches an ERC-20 pay token")
	}
}

func TestUndecodableCalldataPasses(t *testing.T) {
	req, raw := testPair(t)
	raw.Tx.Data = []byte{0xde, 0xad, 0xbe, 0xef, 0x01, 0x02}
	out := New(logrus.New()).Check(req, raw)
	if !out.CalldataPass {
		t.Fatal("undecodable calldata must pass, not fail")
	}
}

func TestWrapQuoteVerifiesAgainstWrapContract(t *testing.T) {
	chain, _ := id.ParseChain("ethereum")
	req := quote.Request{
		Chain:    chain,
		From:     id.Token{Symbol: "ETH", Address: id.NativeTokenAddress, Decimals: 18},
		To:       id.Token{Symbol: "WETH", Address: chain.WrappedNative, Decimals: 18},
		Amount:   big.NewInt(1e18),
		UserAddr: userAddr,
	}
	raw := &quote.RawQuote{
		Venue:    venue.Wrap,
		ToAmount: big.NewInt(1e18),
		Tx:       &quote.TxData{From: userAddr, To: chain.WrappedNative, Data: []byte{0xd0, 0xe3, 0x0d, 0xb0}, Value: big.NewInt(1e18)},
	}
	out := New(logrus.New()).Check(req, raw)
	if !out.Pass() {
		t.Fatalf("wrap quote should pass: %+v", out)
	}

	raw.Tx.To = router
	out = New(logrus.New()).Check(req, raw)
	if out.RouterPass {
		t.Fatal("wrap quote calling a non-wrap contract must fail")
	}
}
