// Package chaindata talks to the wallet data service that backs quote
// simulation: token metadata and prices, allowances, recommended nonces,
// the pending transaction queue, the gas market, and the transaction
// pre-execution endpoint.
package chaindata

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/url"
	"strconv"

	engerr "github.com/ggonzalez94/swap-engine/internal/errors"
	"github.com/ggonzalez94/swap-engine/internal/httpx"
	"github.com/ggonzalez94/swap-engine/internal/id"
	"github.com/ggonzalez94/swap-engine/internal/quote"
)

type Client struct {
	http    *httpx.Client
	baseURL string
	apiKey  string
}

func New(httpClient *httpx.Client, baseURL, apiKey string) *Client {
	return &Client{http: httpClient, baseURL: baseURL, apiKey: apiKey}
}

func (c *Client) headers() map[string]string {
	if c.apiKey == "" {
		return nil
	}
	return map[string]string{"X-Api-Key": c.apiKey}
}

// TokenInfo is the service's view of a token, including its current USD
// price. Price is zero when the service has no quote for it.
type TokenInfo struct {
	ID        string  `json:"id"`
	Chain     string  `json:"chain"`
	Symbol    string  `json:"symbol"`
	Decimals  int     `json:"decimals"`
	Price     float64 `json:"price"`
	RawAmount string  `json:"raw_amount"`
}

// Balance returns the held raw amount, or zero for tokens the user does
// not hold.
func (t TokenInfo) Balance() *big.Int {
	if t.RawAmount == "" {
		return big.NewInt(0)
	}
	n, ok := new(big.Int).SetString(t.RawAmount, 10)
	if !ok {
		return big.NewInt(0)
	}
	return n
}

func (c *Client) Token(ctx context.Context, chain id.Chain, userAddr, tokenAddr string) (TokenInfo, error) {
	vals := url.Values{}
	vals.Set("id", tokenAddr)
	vals.Set("chain_id", chain.ServerID)
	vals.Set("user_addr", userAddr)

	var resp TokenInfo
	endpoint := fmt.Sprintf("%s/v1/user/token?%s", c.baseURL, vals.Encode())
	if _, err := c.http.GetJSON(ctx, endpoint, c.headers(), &resp); err != nil {
		return TokenInfo{}, err
	}
	if resp.Decimals == 0 && resp.Symbol == "" {
		return TokenInfo{}, engerr.New(engerr.CodeUnavailable, fmt.Sprintf("token %s not found on %s", tokenAddr, chain.Slug))
	}
	return resp, nil
}

// SlippageInfo is the upstream verdict on a chosen slippage tolerance.
type SlippageInfo struct {
	IsValid bool `json:"is_valid"`
	// SuggestSlippage is the recommended tolerance as a 0-1 fraction.
	SuggestSlippage float64 `json:"suggest_slippage"`
}

// CheckSlippage asks the upstream service whether a slippage tolerance is
// reasonable for the pair. The tolerance travels as a 0-1 fraction.
func (c *Client) CheckSlippage(ctx context.Context, chain id.Chain, fromAddr, toAddr string, slippagePct float64) (SlippageInfo, error) {
	vals := url.Values{}
	vals.Set("chain_id", chain.ServerID)
	vals.Set("from_token_id", fromAddr)
	vals.Set("to_token_id", toAddr)
	vals.Set("slippage", strconv.FormatFloat(slippagePct/100, 'f', -1, 64))

	var resp SlippageInfo
	endpoint := fmt.Sprintf("%s/v1/wallet/check_slippage?%s", c.baseURL, vals.Encode())
	if _, err := c.http.GetJSON(ctx, endpoint, c.headers(), &resp); err != nil {
		return SlippageInfo{}, err
	}
	return resp, nil
}

func (c *Client) Allowance(ctx context.Context, chain id.Chain, userAddr, tokenAddr, spender string) (*big.Int, error) {
	vals := url.Values{}
	vals.Set("chain_id", chain.ServerID)
	vals.Set("user_addr", userAddr)
	vals.Set("token_id", tokenAddr)
	vals.Set("spender", spender)

	var resp struct {
		Value string `json:"value"`
	}
	endpoint := fmt.Sprintf("%s/v1/user/token_allowance?%s", c.baseURL, vals.Encode())
	if _, err := c.http.GetJSON(ctx, endpoint, c.headers(), &resp); err != nil {
		return nil, err
	}
	if resp.Value == "" {
		return big.NewInt(0), nil
	}
	n, ok := new(big.Int).SetString(resp.Value, 10)
	if !ok {
		return nil, engerr.New(engerr.CodeUnavailable, fmt.Sprintf("invalid allowance value: %s", resp.Value))
	}
	return n, nil
}

// RecommendNonce is the next nonce the user should sign with, accounting
// for transactions already pending in the mempool.
func (c *Client) RecommendNonce(ctx context.Context, chain id.Chain, userAddr string) (uint64, error) {
	vals := url.Values{}
	vals.Set("chain_id", chain.ServerID)
	vals.Set("user_addr", userAddr)

	var resp struct {
		RecommendNonce string `json:"recommend_nonce"`
	}
	endpoint := fmt.Sprintf("%s/v1/wallet/recommend_nonce?%s", c.baseURL, vals.Encode())
	if _, err := c.http.GetJSON(ctx, endpoint, c.headers(), &resp); err != nil {
		return 0, err
	}
	return parseUint(resp.RecommendNonce, "recommend_nonce")
}

// PendingTx is a mempool transaction that must be replayed ahead of a
// simulation so state reflects what will actually land first.
type PendingTx struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Data     string `json:"data"`
	Value    string `json:"value"`
	Nonce    uint64 `json:"nonce"`
	GasUsed  uint64 `json:"gas_used"`
	GasLimit uint64 `json:"gas_limit"`
}

// Gas returns the replay gas budget for the pending tx: four times its
// known usage, falling back to its limit.
func (p PendingTx) Gas() uint64 {
	if p.GasUsed > 0 {
		return p.GasUsed * 4
	}
	return p.GasLimit
}

func (c *Client) PendingTxList(ctx context.Context, chain id.Chain, userAddr string) ([]PendingTx, error) {
	vals := url.Values{}
	vals.Set("chain_id", chain.ServerID)
	vals.Set("user_addr", userAddr)

	var resp struct {
		PendingTxList []PendingTx `json:"pending_tx_list"`
	}
	endpoint := fmt.Sprintf("%s/v1/wallet/pending_tx_list?%s", c.baseURL, vals.Encode())
	if _, err := c.http.GetJSON(ctx, endpoint, c.headers(), &resp); err != nil {
		return nil, err
	}
	return resp.PendingTxList, nil
}

// GasLevel is one tier of the chain's gas market. Price is in wei.
type GasLevel struct {
	Level string  `json:"level"`
	Price float64 `json:"price"`
}

func (c *Client) GasMarket(ctx context.Context, chain id.Chain) ([]GasLevel, error) {
	vals := url.Values{}
	vals.Set("chain_id", chain.ServerID)

	var resp []GasLevel
	endpoint := fmt.Sprintf("%s/v1/wallet/gas_market?%s", c.baseURL, vals.Encode())
	if _, err := c.http.GetJSON(ctx, endpoint, c.headers(), &resp); err != nil {
		return nil, err
	}
	if len(resp) == 0 {
		return nil, engerr.New(engerr.CodeUnavailable, fmt.Sprintf("no gas market data for %s", chain.Slug))
	}
	return resp, nil
}

// PreExecRequest describes one transaction to simulate, with the pending
// queue that precedes it.
type PreExecRequest struct {
	Chain    id.Chain
	UserAddr string
	Tx       quote.TxData
	Nonce    uint64
	Pending  []PendingTx
}

// PreExecResult is the simulation outcome for one transaction.
type PreExecResult struct {
	Success bool
	ErrMsg  string
	GasUsed uint64
	// ReceiveTokens maps token address -> raw amount credited to the user.
	ReceiveTokens map[string]*big.Int
}

func (c *Client) PreExecTx(ctx context.Context, req PreExecRequest) (PreExecResult, error) {
	pending := make([]map[string]any, 0, len(req.Pending))
	for _, p := range req.Pending {
		pending = append(pending, map[string]any{
			"from":  p.From,
			"to":    p.To,
			"data":  p.Data,
			"value": p.Value,
			"nonce": p.Nonce,
			"gas":   p.Gas(),
		})
	}

	body, err := json.Marshal(map[string]any{
		"chain_id": req.Chain.ServerID,
		"tx": map[string]any{
			"from":  req.Tx.From,
			"to":    req.Tx.To,
			"data":  "0x" + hex.EncodeToString(req.Tx.Data),
			"value": valueString(req.Tx.Value),
			"nonce": req.Nonce,
		},
		"user_addr":       req.UserAddr,
		"pending_tx_list": pending,
	})
	if err != nil {
		return PreExecResult{}, engerr.Wrap(engerr.CodeInternal, "encode pre-exec request", err)
	}

	var resp struct {
		PreExec struct {
			Success bool   `json:"success"`
			ErrMsg  string `json:"err_msg"`
		} `json:"pre_exec"`
		Gas struct {
			GasUsed uint64 `json:"gas_used"`
		} `json:"gas"`
		BalanceChange struct {
			ReceiveTokenList []struct {
				ID        string `json:"id"`
				RawAmount string `json:"raw_amount"`
			} `json:"receive_token_list"`
		} `json:"balance_change"`
	}
	endpoint := fmt.Sprintf("%s/v1/wallet/pre_exec_tx", c.baseURL)
	if _, err := c.http.PostJSON(ctx, endpoint, body, c.headers(), &resp); err != nil {
		return PreExecResult{}, err
	}

	receive := make(map[string]*big.Int, len(resp.BalanceChange.ReceiveTokenList))
	for _, item := range resp.BalanceChange.ReceiveTokenList {
		if n, ok := new(big.Int).SetString(item.RawAmount, 10); ok {
			receive[item.ID] = n
		}
	}
	return PreExecResult{
		Success:       resp.PreExec.Success,
		ErrMsg:        resp.PreExec.ErrMsg,
		GasUsed:       resp.Gas.GasUsed,
		ReceiveTokens: receive,
	}, nil
}

func parseUint(s, field string) (uint64, error) {
	if s == "" {
		return 0, engerr.New(engerr.CodeUnavailable, fmt.Sprintf("missing %s in response", field))
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, engerr.Wrap(engerr.CodeUnavailable, fmt.Sprintf("parse %s", field), err)
	}
	return n, nil
}

func valueString(v *big.Int) string {
	if v == nil {
		return "0x0"
	}
	return "0x" + v.Text(16)
}
