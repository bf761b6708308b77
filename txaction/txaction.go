// Package txaction classifies what a transaction is about to do: move the
// native currency, move or approve a token, swap, deploy, or just call a
// contract. Classification is best-effort and advisory; activity records
// store it when available.
package txaction

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/tranvictor/walletd/rpc"
)

type Kind string

const (
	KindTransfer      Kind = "transfer"
	KindTokenTransfer Kind = "tokenTransfer"
	KindTokenApprove  Kind = "tokenApprove"
	KindSwap          Kind = "swap"
	KindDeploy        Kind = "deploy"
	KindContractCall  Kind = "contractCall"
)

// Action is the decoded intent of a transaction. TokenAddress is set for
// token-touching kinds so callers can refresh the right balance.
type Action struct {
	Kind         Kind   `json:"kind"`
	TokenAddress string `json:"tokenAddress,omitempty"`
	Recipient    string `json:"recipient,omitempty"`
	Spender      string `json:"spender,omitempty"`
	Amount       string `json:"amount,omitempty"`
}

const erc20CallsJSON string = `[
	{"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"name":"transferFrom","outputs":[{"name":"","type":"bool"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"spender","type":"address"},{"name":"value","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"type":"function"}
]`

var erc20Calls abi.ABI

// selectors of the popular swap router entrypoints. Matching any of them is
// enough for the activity feed; exact route decoding is not our business.
var swapSelectors = map[string]bool{
	"0x38ed1739": true, // swapExactTokensForTokens
	"0x8803dbee": true, // swapTokensForExactTokens
	"0x7ff36ab5": true, // swapExactETHForTokens
	"0x18cbafe5": true, // swapExactTokensForETH
	"0x414bf389": true, // exactInputSingle
	"0xc04b8d59": true, // exactInput
	"0x5ae401dc": true, // multicall(deadline,bytes[])
	"0x12aa3caf": true, // 1inch swap
}

func init() {
	parsed, err := abi.JSON(strings.NewReader(erc20CallsJSON))
	if err != nil {
		panic(err)
	}
	erc20Calls = parsed
}

// ChainCaller is the gateway slice the classifier needs for its GetCode
// fallback.
type ChainCaller interface {
	Send(ctx context.Context, chainID int64, method string, params ...interface{}) (*rpc.Response, error)
}

type Classifier struct {
	caller ChainCaller
}

func NewClassifier(caller ChainCaller) *Classifier {
	return &Classifier{caller: caller}
}

// Classify inspects calldata first and falls back to an on-chain code check
// to tell a plain value transfer apart from a contract call.
func (c *Classifier) Classify(
	ctx context.Context,
	chainID int64,
	to string,
	value *big.Int,
	data []byte,
) (*Action, error) {
	if to == "" {
		if len(data) == 0 {
			return nil, fmt.Errorf("transaction has neither recipient nor data")
		}
		return &Action{Kind: KindDeploy}, nil
	}

	if len(data) < 4 {
		return &Action{
			Kind:      KindTransfer,
			Recipient: ethcommon.HexToAddress(to).Hex(),
		}, nil
	}

	selector := hexutil.Encode(data[:4])
	if swapSelectors[selector] {
		return &Action{Kind: KindSwap}, nil
	}

	if action := decodeERC20Call(to, data); action != nil {
		return action, nil
	}

	hasCode, err := c.hasCode(ctx, chainID, to)
	if err != nil {
		return nil, err
	}
	if !hasCode {
		return &Action{
			Kind:      KindTransfer,
			Recipient: ethcommon.HexToAddress(to).Hex(),
		}, nil
	}
	return &Action{Kind: KindContractCall}, nil
}

func decodeERC20Call(to string, data []byte) *Action {
	method, err := erc20Calls.MethodById(data[:4])
	if err != nil {
		return nil
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil
	}
	token := ethcommon.HexToAddress(to).Hex()
	switch method.Name {
	case "transfer":
		return &Action{
			Kind:         KindTokenTransfer,
			TokenAddress: token,
			Recipient:    args[0].(ethcommon.Address).Hex(),
			Amount:       args[1].(*big.Int).String(),
		}
	case "transferFrom":
		return &Action{
			Kind:         KindTokenTransfer,
			TokenAddress: token,
			Recipient:    args[1].(ethcommon.Address).Hex(),
			Amount:       args[2].(*big.Int).String(),
		}
	case "approve":
		return &Action{
			Kind:         KindTokenApprove,
			TokenAddress: token,
			Spender:      args[0].(ethcommon.Address).Hex(),
			Amount:       args[1].(*big.Int).String(),
		}
	}
	return nil
}

func (c *Classifier) hasCode(ctx context.Context, chainID int64, address string) (bool, error) {
	res, err := c.caller.Send(
		ctx, chainID, "eth_getCode",
		ethcommon.HexToAddress(address).Hex(), "latest",
	)
	if err != nil {
		return false, err
	}
	if res.Error != nil {
		return false, fmt.Errorf("eth_getCode failed: %w", res.Error)
	}
	var code string
	if err = res.UnmarshalResult(&code); err != nil {
		return false, err
	}
	return code != "" && code != "0x", nil
}
