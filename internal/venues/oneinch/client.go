package oneinch

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

const defaultBase = "https://api.1inch.dev"

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

func (c *Client) Name() string { return venue.OneInch }

type swapResponse struct {
	DstAmount string `json:"dstAmount"`
	Tx        struct {
		From     string `json:"from"`
		To       string `json:"to"`
		Data     string `json:"data"`
		Value    string `json:"value"`
		Gas      uint64 `json:"gas"`
		GasPrice string `json:"gasPrice"`
	} `json:"tx"`
}

func (c *Client) Quote(ctx context.Context, req quote.Request) (*quote.RawQuote, error) {
	if c.apiKey == "" {
		return nil, engerr.New(engerr.CodeAuth, "missing required API key for 1inch (SWAP_1INCH_API_KEY)")
	}
	if !venue.SupportsChain(venue.OneInch, req.Chain.EVMChainID) {
		return nil, engerr.New(engerr.CodeUnsupported, fmt.Sprintf("1inch does not support chain %s", req.Chain.Slug))
	}

	vals := url.Values{}
	vals.Set("src", req.From.Address)
	vals.Set("dst", req.To.Address)
	vals.Set("amount", req.Amount.String())
	vals.Set("from", req.UserAddr)
	vals.Set("slippage", strconv.FormatFloat(req.Slippage, 'f', -1, 64))
	if req.FeeRate > 0 {
		vals.Set("fee", strconv.FormatFloat(req.FeeRate*100, 'f', -1, 64))
	}
	vals.Set("disableEstimate", "true")

	endpoint := fmt.Sprintf("%s/swap/v6.0/%d/swap?%s", c.baseURL, req.Chain.EVMChainID, vals.Encode())
	hReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, engerr.Wrap(engerr.CodeInternal, "build 1inch swap request", err)
	}
	hReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	var resp swapResponse
	if _, err := c.http.DoJSON(ctx, hReq, &resp); err != nil {
		return nil, err
	}

	toAmount, err := venues.ParseBig(resp.DstAmount, "dstAmount")
	if err != nil {
		return nil, err
	}
	data, err := venues.ParseCalldata(resp.Tx.Data)
	if err != nil {
		return nil, err
	}
	value, err := venues.ParseHexOrDec(resp.Tx.Value)
	if err != nil {
		return nil, err
	}

	spender := ""
	if !req.From.IsNative() {
		spender, _ = venue.Spender(venue.OneInch, req.Chain.EVMChainID)
	}

	return &quote.RawQuote{
		Venue:      venue.OneInch,
		FromAmount: req.Amount,
		ToAmount:   toAmount,
		ToDecimals: req.To.Decimals,
		Tx: &quote.TxData{
			From:  req.UserAddr,
			To:    resp.Tx.To,
			Data:  data,
			Value: value,
		},
		Spender: spender,
		Gas:     resp.Tx.Gas,
	}, nil
}
