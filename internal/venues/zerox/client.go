package zerox

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	engerr "github.com/ggonzalez94/swap-engine/internal/errors"
	"github.com/ggonzalez94/swap-engine/internal/httpx"
	"github.com/ggonzalez94/swap-engine/internal/quote"
	"github.com/ggonzalez94/swap-engine/internal/venue"
	"github.com/ggonzalez94/swap-engine/internal/venues"
)

const defaultBase = "https://api.0x.org"

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

func (c *Client) Name() string { return venue.ZeroX }

type quoteResponse struct {
	BuyAmount       string `json:"buyAmount"`
	To              string `json:"to"`
	Data            string `json:"data"`
	Value           string `json:"value"`
	Gas             string `json:"gas"`
	AllowanceTarget string `json:"allowanceTarget"`
}

func (c *Client) Quote(ctx context.Context, req quote.Request) (*quote.RawQuote, error) {
	if !venue.SupportsChain(venue.ZeroX, req.Chain.EVMChainID) {
		return nil, engerr.New(engerr.CodeUnsupported, fmt.Sprintf("0x does not support chain %s", req.Chain.Slug))
	}

	vals := url.Values{}
	vals.Set("sellToken", req.From.Address)
	vals.Set("buyToken", req.To.Address)
	vals.Set("sellAmount", req.Amount.String())
	vals.Set("takerAddress", req.UserAddr)
	vals.Set("slippagePercentage", strconv.FormatFloat(req.Slippage/100, 'f', -1, 64))
	vals.Set("skipValidation", "true")

	endpoint := fmt.Sprintf("%s/swap/v1/quote?%s", c.baseURL, vals.Encode())
	hReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, engerr.Wrap(engerr.CodeInternal, "build 0x quote request", err)
	}
	if c.apiKey != "" {
		hReq.Header.Set("0x-api-key", c.apiKey)
	}

	var resp quoteResponse
	if _, err := c.http.DoJSON(ctx, hReq, &resp); err != nil {
		return nil, err
	}

	toAmount, err := venues.ParseBig(resp.BuyAmount, "buyAmount")
	if err != nil {
		return nil, err
	}
	data, err := venues.ParseCalldata(resp.Data)
	if err != nil {
		return nil, err
	}
	value, err := venues.ParseHexOrDec(resp.Value)
	if err != nil {
		return nil, err
	}

	var gas uint64
	if resp.Gas != "" {
		if g, err := strconv.ParseUint(resp.Gas, 10, 64); err == nil {
			gas = g
		}
	}

	spender := ""
	if !req.From.IsNative() {
		spender = resp.AllowanceTarget
	}

	return &quote.RawQuote{
		Venue:      venue.ZeroX,
		FromAmount: req.Amount,
		ToAmount:   toAmount,
		ToDecimals: req.To.Decimals,
		Tx: &quote.TxData{
			From:  req.UserAddr,
			To:    resp.To,
			Data:  data,
			Value: value,
		},
		Spender: spender,
		Gas:     gas,
	}, nil
}
