package paraswap

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	engerr "github.com/ggonzalez94/swap-engine/internal/errors"
	"github.com/ggonzalez94/swap-engine/internal/httpx"
	"github.com/ggonzalez94/swap-engine/internal/quote"
	"github.com/ggonzalez94/swap-engine/internal/venue"
	"github.com/ggonzalez94/swap-engine/internal/venues"
)

const defaultBase = "https://apiv5.paraswap.io"

// Client takes a ParaSwap quote in two calls: a price route lookup, then a
// transaction build against that route.
type Client struct {
	http    *httpx.Client
	baseURL string
	apiKey  string
}

func New(httpClient *httpx.Client, apiKey string) *Client {
	return &Client{http: httpClient, baseURL: defaultBase, apiKey: apiKey}
}

func NewWithBase(httpClient *httpx.Client, apiKey, baseURL string) *Client {
	return &Client{http: httpClient, baseURL: baseURL, apiKey: apiKey}
}

func (c *Client) Name() string { return venue.Paraswap }

type priceResponse struct {
	PriceRoute json.RawMessage `json:"priceRoute"`
}

type priceRoute struct {
	DestAmount         string `json:"destAmount"`
	DestDecimals       int    `json:"destDecimals"`
	TokenTransferProxy string `json:"tokenTransferProxy"`
}

type txResponse struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Data  string `json:"data"`
	Value string `json:"value"`
	Gas   uint64 `json:"gas"`
}

func (c *Client) Quote(ctx context.Context, req quote.Request) (*quote.RawQuote, error) {
	if !venue.SupportsChain(venue.Paraswap, req.Chain.EVMChainID) {
		return nil, engerr.New(engerr.CodeUnsupported, fmt.Sprintf("paraswap does not support chain %s", req.Chain.Slug))
	}

	route, rawRoute, err := c.fetchPriceRoute(ctx, req)
	if err != nil {
		return nil, err
	}
	toAmount, err := venues.ParseBig(route.DestAmount, "destAmount")
	if err != nil {
		return nil, err
	}

	tx, err := c.buildTransaction(ctx, req, route, rawRoute)
	if err != nil {
		return nil, err
	}
	data, err := venues.ParseCalldata(tx.Data)
	if err != nil {
		return nil, err
	}
	value, err := venues.ParseHexOrDec(tx.Value)
	if err != nil {
		return nil, err
	}

	spender := ""
	if !req.From.IsNative() {
		spender = route.TokenTransferProxy
		if spender == "" {
			spender, _ = venue.Spender(venue.Paraswap, req.Chain.EVMChainID)
		}
	}

	return &quote.RawQuote{
		Venue:      venue.Paraswap,
		FromAmount: req.Amount,
		ToAmount:   toAmount,
		ToDecimals: req.To.Decimals,
		Tx: &quote.TxData{
			From:  req.UserAddr,
			To:    tx.To,
			Data:  data,
			Value: value,
		},
		Spender: spender,
		Gas:     tx.Gas,
	}, nil
}

func (c *Client) fetchPriceRoute(ctx context.Context, req quote.Request) (priceRoute, json.RawMessage, error) {
	vals := url.Values{}
	vals.Set("srcToken", req.From.Address)
	vals.Set("destToken", req.To.Address)
	vals.Set("amount", req.Amount.String())
	vals.Set("srcDecimals", strconv.Itoa(req.From.Decimals))
	vals.Set("destDecimals", strconv.Itoa(req.To.Decimals))
	vals.Set("side", "SELL")
	vals.Set("network", strconv.FormatInt(req.Chain.EVMChainID, 10))
	vals.Set("userAddress", req.UserAddr)

	endpoint := fmt.Sprintf("%s/prices?%s", c.baseURL, vals.Encode())
	var resp priceResponse
	if _, err := c.http.GetJSON(ctx, endpoint, c.headers(), &resp); err != nil {
		return priceRoute{}, nil, err
	}
	if len(resp.PriceRoute) == 0 {
		return priceRoute{}, nil, engerr.New(engerr.CodeUnavailable, "paraswap returned no price route")
	}
	var route priceRoute
	if err := json.Unmarshal(resp.PriceRoute, &route); err != nil {
		return priceRoute{}, nil, engerr.Wrap(engerr.CodeUnavailable, "decode paraswap price route", err)
	}
	return route, resp.PriceRoute, nil
}

func (c *Client) buildTransaction(ctx context.Context, req quote.Request, route priceRoute, rawRoute json.RawMessage) (txResponse, error) {
	body, err := json.Marshal(map[string]any{
		"srcToken":     req.From.Address,
		"destToken":    req.To.Address,
		"srcAmount":    req.Amount.String(),
		"destAmount":   route.DestAmount,
		"priceRoute":   rawRoute,
		"userAddress":  req.UserAddr,
		"srcDecimals":  req.From.Decimals,
		"destDecimals": req.To.Decimals,
		"slippage":     int(req.Slippage * 100), // basis points
	})
	if err != nil {
		return txResponse{}, engerr.Wrap(engerr.CodeInternal, "encode paraswap tx request", err)
	}

	endpoint := fmt.Sprintf("%s/transactions/%d?ignoreChecks=true", c.baseURL, req.Chain.EVMChainID)
	var resp txResponse
	if _, err := c.http.PostJSON(ctx, endpoint, body, c.headers(), &resp); err != nil {
		return txResponse{}, err
	}
	if resp.To == "" || resp.Data == "" {
		return txResponse{}, engerr.New(engerr.CodeUnavailable, "paraswap transaction build returned no tx")
	}
	return resp, nil
}

func (c *Client) headers() map[string]string {
	if c.apiKey == "" {
		return nil
	}
	return map[string]string{"X-API-KEY": c.apiKey}
}
