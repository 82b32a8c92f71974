// Package submit broadcasts signed swap transactions over JSON-RPC and
// waits for their receipts. It is the only package that touches a live
// chain; everything above it works with unsigned transaction bodies.
package submit

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	engerr "github.com/ggonzalez94/swap-engine/internal/errors"
	"github.com/ggonzalez94/swap-engine/internal/id"
	"github.com/ggonzalez94/swap-engine/internal/quote"
)

// TxRequest is one transaction to broadcast, with execution preferences.
type TxRequest struct {
	Chain id.Chain
	Tx    quote.TxData
	Nonce uint64
	// GasPriceWei pins a legacy gas price when set; otherwise the
	// submitter prices the transaction from the chain head.
	GasPriceWei *big.Int
	// MEVGuarded routes the broadcast through a private relay endpoint
	// when one is configured for the chain.
	MEVGuarded bool
	// GasHint is a fallback gas limit for when estimation reverts. A
	// swap broadcast right after its approval cannot be estimated until
	// the approval is mined, so the venue's own estimate is used.
	GasHint uint64
}

// Receipt is the settled outcome of a broadcast transaction.
type Receipt struct {
	TxHash   string
	Success  bool
	GasUsed  uint64
	BlockNum uint64
}

// Submitter signs, broadcasts, and settles transactions.
type Submitter interface {
	Submit(ctx context.Context, req TxRequest) (string, error)
	WaitReceipt(ctx context.Context, chain id.Chain, txHash string) (Receipt, error)
}

// Options tunes the RPC submitter.
type Options struct {
	PollInterval  time.Duration
	WaitTimeout   time.Duration
	GasMultiplier float64
	// RPCEndpoints overrides the default public endpoint per chain id.
	RPCEndpoints map[int64]string
	// MEVEndpoints are private relay endpoints per chain id, used when a
	// request asks for MEV protection.
	MEVEndpoints map[int64]string
}

func DefaultOptions() Options {
	return Options{
		PollInterval:  2 * time.Second,
		WaitTimeout:   2 * time.Minute,
		GasMultiplier: 1.2,
	}
}

var defaultRPCByChainID = map[int64]string{
	1:     "https://eth.llamarpc.com",
	10:    "https://mainnet.optimism.io",
	56:    "https://bsc-dataseed.binance.org",
	137:   "https://polygon-rpc.com",
	8453:  "https://mainnet.base.org",
	42161: "https://arb1.arbitrum.io/rpc",
	43114: "https://api.avax.network/ext/bc/C/rpc",
}

var defaultMEVByChainID = map[int64]string{
	1: "https://rpc.flashbots.net",
}

type RPCSubmitter struct {
	signer Signer
	opts   Options
}

func NewRPCSubmitter(s Signer, opts Options) *RPCSubmitter {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = 2 * time.Minute
	}
	if opts.GasMultiplier <= 1 {
		opts.GasMultiplier = 1.2
	}
	return &RPCSubmitter{signer: s, opts: opts}
}

func (r *RPCSubmitter) endpoint(chain id.Chain, mevGuarded bool) (string, error) {
	if mevGuarded {
		if url, ok := r.opts.MEVEndpoints[chain.EVMChainID]; ok && url != "" {
			return url, nil
		}
		if url, ok := defaultMEVByChainID[chain.EVMChainID]; ok {
			return url, nil
		}
		// No private relay on this chain; fall through to the public
		// endpoint rather than refusing the swap.
	}
	if url, ok := r.opts.RPCEndpoints[chain.EVMChainID]; ok && url != "" {
		return url, nil
	}
	if url, ok := defaultRPCByChainID[chain.EVMChainID]; ok {
		return url, nil
	}
	return "", engerr.New(engerr.CodeUnsupported, fmt.Sprintf("no rpc endpoint for chain %s", chain.Slug))
}

func (r *RPCSubmitter) Submit(ctx context.Context, req TxRequest) (string, error) {
	if r.signer == nil {
		return "", engerr.New(engerr.CodeSigner, "missing signer")
	}
	url, err := r.endpoint(req.Chain, req.MEVGuarded)
	if err != nil {
		return "", err
	}
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return "", engerr.Wrap(engerr.CodeUnavailable, "connect rpc", err)
	}
	defer client.Close()

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return "", engerr.Wrap(engerr.CodeUnavailable, "read chain id", err)
	}
	if chainID.Int64() != req.Chain.EVMChainID {
		return "", engerr.New(engerr.CodeExecution, fmt.Sprintf("rpc chain mismatch: expected %d, got %d", req.Chain.EVMChainID, chainID.Int64()))
	}

	target := common.HexToAddress(req.Tx.To)
	value := req.Tx.Value
	if value == nil {
		value = big.NewInt(0)
	}
	msg := ethereum.CallMsg{From: r.signer.Address(), To: &target, Value: value, Data: req.Tx.Data}

	gasLimit, err := client.EstimateGas(ctx, msg)
	if err != nil {
		if req.GasHint == 0 {
			return "", engerr.Wrap(engerr.CodeExecution, "estimate gas", err)
		}
		gasLimit = req.GasHint
	}
	gasLimit = uint64(float64(gasLimit) * r.opts.GasMultiplier)

	var tx *types.Transaction
	if req.GasPriceWei != nil {
		tx = types.NewTx(&types.LegacyTx{
			Nonce:    req.Nonce,
			GasPrice: req.GasPriceWei,
			Gas:      gasLimit,
			To:       &target,
			Value:    value,
			Data:     req.Tx.Data,
		})
	} else {
		tipCap, err := client.SuggestGasTipCap(ctx)
		if err != nil {
			return "", engerr.Wrap(engerr.CodeUnavailable, "suggest tip cap", err)
		}
		header, err := client.HeaderByNumber(ctx, nil)
		if err != nil {
			return "", engerr.Wrap(engerr.CodeUnavailable, "fetch latest header", err)
		}
		baseFee := header.BaseFee
		if baseFee == nil {
			baseFee = big.NewInt(1_000_000_000)
		}
		feeCap := new(big.Int).Add(new(big.Int).Mul(baseFee, big.NewInt(2)), tipCap)
		tx = types.NewTx(&types.DynamicFeeTx{
			ChainID:   chainID,
			Nonce:     req.Nonce,
			GasTipCap: tipCap,
			GasFeeCap: feeCap,
			Gas:       gasLimit,
			To:        &target,
			Value:     value,
			Data:      req.Tx.Data,
		})
	}

	signed, err := r.signer.SignTx(chainID, tx)
	if err != nil {
		return "", engerr.Wrap(engerr.CodeSigner, "sign transaction", err)
	}
	if err := client.SendTransaction(ctx, signed); err != nil {
		return "", engerr.Wrap(engerr.CodeExecution, "broadcast transaction", err)
	}
	return signed.Hash().Hex(), nil
}

func (r *RPCSubmitter) WaitReceipt(ctx context.Context, chain id.Chain, txHash string) (Receipt, error) {
	url, err := r.endpoint(chain, false)
	if err != nil {
		return Receipt{}, err
	}
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return Receipt{}, engerr.Wrap(engerr.CodeUnavailable, "connect rpc", err)
	}
	defer client.Close()

	waitCtx, cancel := context.WithTimeout(ctx, r.opts.WaitTimeout)
	defer cancel()
	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()

	hash := common.HexToHash(txHash)
	for {
		receipt, err := client.TransactionReceipt(waitCtx, hash)
		if err == nil && receipt != nil {
			return Receipt{
				TxHash:   txHash,
				Success:  receipt.Status == types.ReceiptStatusSuccessful,
				GasUsed:  receipt.GasUsed,
				BlockNum: receipt.BlockNumber.Uint64(),
			}, nil
		}
		// Not mined yet, or a transient polling failure; keep polling
		// until the timeout fires.
		select {
		case <-waitCtx.Done():
			return Receipt{}, engerr.Wrap(engerr.CodeExecution, "timed out waiting for receipt", waitCtx.Err())
		case <-ticker.C:
		}
	}
}
