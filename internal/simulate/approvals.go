package simulate

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	engerr "github.com/ggonzalez94/swap-engine/internal/errors"
	"github.com/ggonzalez94/swap-engine/internal/quote"
)

const erc20ABI = `[{
	"name": "approve",
	"type": "function",
	"inputs": [
		{"name": "spender", "type": "address"},
		{"name": "amount", "type": "uint256"}
	],
	"outputs": [{"name": "", "type": "bool"}]
}]`

var erc20 = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		panic("simulate: bad ERC-20 ABI: " + err.Error())
	}
	return parsed
}()

// BuildApprove constructs an approve(spender, amount) transaction against a
// token contract. A zero amount is the allowance reset form.
func BuildApprove(userAddr, tokenAddr, spender string, amount *big.Int) (quote.TxData, error) {
	if !common.IsHexAddress(tokenAddr) || !common.IsHexAddress(spender) {
		return quote.TxData{}, engerr.New(engerr.CodeInternal, "approve requires valid token and spender addresses")
	}
	data, err := erc20.Pack("approve", common.HexToAddress(spender), amount)
	if err != nil {
		return quote.TxData{}, engerr.Wrap(engerr.CodeInternal, "encode approve calldata", err)
	}
	return quote.TxData{
		From:  userAddr,
		To:    tokenAddr,
		Data:  data,
		Value: big.NewInt(0),
	}, nil
}
