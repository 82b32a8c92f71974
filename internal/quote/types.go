// Package quote holds the shared domain model for the swap engine: the
// request that drives a quote round, the raw venue responses, and the
// simulation and verification artifacts attached to each quote before it
// is ranked or executed.
package quote

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ggonzalez94/swap-engine/internal/id"
)

// Generation identifies one quote round. Every refresh bumps it, and any
// result carrying an older generation is discarded on arrival.
type Generation uint64

// Request is the full input for a quote round.
type Request struct {
	Chain    id.Chain
	From     id.Token
	To       id.Token
	Amount   *big.Int
	UserAddr string
	Slippage float64
	FeeRate  float64
	// InsufficientBalance switches ranking to list-price mode because no
	// simulation can succeed without funds.
	InsufficientBalance bool
}

// Key collapses the request into a comparable identity so the engine can
// tell a parameter change from a plain refresh.
func (r Request) Key() string {
	amount := "0"
	if r.Amount != nil {
		amount = r.Amount.String()
	}
	return strings.ToLower(fmt.Sprintf("%d|%s|%s|%s|%s|%.4f",
		r.Chain.EVMChainID, r.From.Address, r.To.Address, amount, r.UserAddr, r.Slippage))
}

// Valid reports whether the request has everything needed to fan out.
func (r Request) Valid() bool {
	return r.Chain.EVMChainID > 0 &&
		r.From.Address != "" &&
		r.To.Address != "" &&
		r.UserAddr != "" &&
		r.Amount != nil && r.Amount.Sign() > 0
}

// TxData is the unsigned transaction body a venue hands back.
type TxData struct {
	From  string
	To    string
	Data  []byte
	Value *big.Int
}

// RawQuote is a venue's answer before simulation and verification.
type RawQuote struct {
	Venue      string
	FromAmount *big.Int
	ToAmount   *big.Int
	ToDecimals int
	Tx         *TxData
	// Spender is the contract that must hold the allowance. Empty for
	// native-input and wrap quotes.
	Spender string
	// Gas is the venue's own gas estimate, advisory only.
	Gas uint64
}

type StepKind string

const (
	StepReset   StepKind = "reset"
	StepApprove StepKind = "approve"
	StepSwap    StepKind = "swap"
)

// PlanStep is one transaction in an approval chain, simulated and later
// submitted in nonce order.
type PlanStep struct {
	Kind  StepKind
	Tx    TxData
	Nonce uint64
}

type ApprovalKind int

const (
	ApprovalNone ApprovalKind = iota
	ApprovalSingle
	ApprovalTwoStep
)

func (k ApprovalKind) String() string {
	switch k {
	case ApprovalSingle:
		return "approve"
	case ApprovalTwoStep:
		return "reset+approve"
	default:
		return "none"
	}
}

// PreExecReport is the outcome of simulating a quote's full approval chain
// plus the swap itself.
type PreExecReport struct {
	Approval         ApprovalKind
	Steps            []PlanStep
	GasUsed          uint64
	GasPriceWei      *big.Int
	GasUSD           float64
	SimulatedReceive *big.Int
	Succeeded        bool
	FailReason       string
}

// Verification is the security check bundle for one quote.
type Verification struct {
	RouterPass   bool
	SpenderPass  bool
	CalldataPass bool
}

// Pass reports whether every check succeeded. Only passing quotes may be
// auto-selected or executed.
func (v Verification) Pass() bool {
	return v.RouterPass && v.SpenderPass && v.CalldataPass
}

// Result is one venue's slot in a quote round. Exactly one of Raw or Err is
// meaningful once Loading clears.
type Result struct {
	Venue      string
	Generation Generation
	Loading    bool
	Raw        *RawQuote
	PreExec    *PreExecReport
	Verify     *Verification
	Err        error
	ReceivedAt time.Time
}

// Usable reports whether the quote cleared every gate that execution
// requires: a transaction body, a successful simulation, and verification.
func (r *Result) Usable() bool {
	return r != nil && r.Raw != nil && r.Raw.Tx != nil &&
		r.PreExec != nil && r.PreExec.Succeeded &&
		r.Verify != nil && r.Verify.Pass()
}

// Selection is the engine's current active quote.
type Selection struct {
	Venue          string
	ManuallyPinned bool
	AdoptedAt      time.Time
}

// UnlimitedAllowance is the max uint256 approval amount.
var UnlimitedAllowance = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
