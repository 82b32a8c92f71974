package openocean

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	engerr "github.com/ggonzalez94/swap-engine/internal/errors"
	"github.com/ggonzalez94/swap-engine/internal/httpx"
	"github.com/ggonzalez94/swap-engine/internal/id"
	"github.com/ggonzalez94/swap-engine/internal/quote"
	"github.com/ggonzalez94/swap-engine/internal/venue"
	"github.com/ggonzalez94/swap-engine/internal/venues"
)

const defaultBase = "https://open-api.openocean.finance"

type Client struct {
	http    *httpx.Client
	baseURL string
}

func New(httpClient *httpx.Client) *Client {
	return &Client{http: httpClient, baseURL: defaultBase}
}

func NewWithBase(httpClient *httpx.Client, baseURL string) *Client {
	return &Client{http: httpClient, baseURL: baseURL}
}

func (c *Client) Name() string { return venue.OpenOcean }

type swapResponse struct {
	Code int `json:"code"`
	Data struct {
		OutAmount    string `json:"outAmount"`
		To           string `json:"to"`
		Data         string `json:"data"`
		Value        string `json:"value"`
		EstimatedGas string `json:"estimatedGas"`
	} `json:"data"`
}

func (c *Client) Quote(ctx context.Context, req quote.Request) (*quote.RawQuote, error) {
	if !venue.SupportsChain(venue.OpenOcean, req.Chain.EVMChainID) {
		return nil, engerr.New(engerr.CodeUnsupported, fmt.Sprintf("openocean does not support chain %s", req.Chain.Slug))
	}

	// OpenOcean takes the sell amount in token units, not base units.
	amountDecimal := id.FormatDecimal(req.Amount.String(), req.From.Decimals)

	vals := url.Values{}
	vals.Set("inTokenAddress", req.From.Address)
	vals.Set("outTokenAddress", req.To.Address)
	vals.Set("amount", amountDecimal)
	vals.Set("account", req.UserAddr)
	vals.Set("slippage", strconv.FormatFloat(req.Slippage, 'f', -1, 64))
	vals.Set("gasPrice", "1")

	endpoint := fmt.Sprintf("%s/v3/%d/swap_quote?%s", c.baseURL, req.Chain.EVMChainID, vals.Encode())
	var resp swapResponse
	if _, err := c.http.GetJSON(ctx, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Code != 200 && resp.Code != 0 {
		return nil, engerr.New(engerr.CodeUnavailable, fmt.Sprintf("openocean returned code %d", resp.Code))
	}

	toAmount, err := venues.ParseBig(resp.Data.OutAmount, "outAmount")
	if err != nil {
		return nil, err
	}
	data, err := venues.ParseCalldata(resp.Data.Data)
	if err != nil {
		return nil, err
	}
	value, err := venues.ParseHexOrDec(resp.Data.Value)
	if err != nil {
		return nil, err
	}

	var gas uint64
	if resp.Data.EstimatedGas != "" {
		if g, err := strconv.ParseUint(resp.Data.EstimatedGas, 10, 64); err == nil {
			gas = g
		}
	}

	spender := ""
	if !req.From.IsNative() {
		spender, _ = venue.Spender(venue.OpenOcean, req.Chain.EVMChainID)
	}

	return &quote.RawQuote{
		Venue:      venue.OpenOcean,
		FromAmount: req.Amount,
		ToAmount:   toAmount,
		ToDecimals: req.To.Decimals,
		Tx: &quote.TxData{
			From:  req.UserAddr,
			To:    resp.Data.To,
			Data:  data,
			Value: value,
		},
		Spender: spender,
		Gas:     gas,
	}, nil
}
