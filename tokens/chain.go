package tokens

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

const erc20ABIJSON string = `[
	{"constant":true,"inputs":[],"name":"name","outputs":[{"name":"","type":"string"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"}
]`

var erc20ABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		panic(err)
	}
	erc20ABI = parsed
}

// ChainCaller is the slice of the RPC gateway the engine consumes.
type ChainCaller interface {
	Send(ctx context.Context, chainID int64, method string, params ...interface{}) (*rpc.Response, error)
}

type callArgs struct {
	To   string `json:"to"`
	Data string `json:"data"`
}

func ethCall(
	ctx context.Context,
	caller ChainCaller,
	chainID int64,
	to string,
	data []byte,
) ([]byte, error) {
	res, err := caller.Send(ctx, chainID, "eth_call", callArgs{
		To:   to,
		Data: hexutil.Encode(data),
	}, "latest")
	if err != nil {
		return nil, err
	}
	if res.Error != nil {
		return nil, fmt.Errorf("eth_call to %s failed: %w", to, res.Error)
	}
	var raw string
	if err = res.UnmarshalResult(&raw); err != nil {
		return nil, err
	}
	return hexutil.Decode(raw)
}

func readERC20(
	ctx context.Context,
	caller ChainCaller,
	chainID int64,
	tokenAddress string,
	result interface{},
	method string,
	args ...interface{},
) error {
	data, err := erc20ABI.Pack(method, args...)
	if err != nil {
		return err
	}
	response, err := ethCall(ctx, caller, chainID, tokenAddress, data)
	if err != nil {
		return err
	}
	return erc20ABI.UnpackIntoInterface(result, method, response)
}

// balanceFromChain reads the account's on-chain balance for one slug. The
// native slug uses eth_getBalance, contract slugs use balanceOf.
func balanceFromChain(
	ctx context.Context,
	caller ChainCaller,
	chainID int64,
	tokenSlug string,
	accountAddress string,
) (*big.Int, error) {
	standard, tokenAddress, err := ParseSlug(tokenSlug)
	if err != nil {
		return nil, err
	}
	if standard == StandardNative {
		res, err := caller.Send(
			ctx, chainID, "eth_getBalance",
			ethcommon.HexToAddress(accountAddress).Hex(), "latest",
		)
		if err != nil {
			return nil, err
		}
		if res.Error != nil {
			return nil, fmt.Errorf("eth_getBalance failed: %w", res.Error)
		}
		var raw string
		if err = res.UnmarshalResult(&raw); err != nil {
			return nil, err
		}
		return hexutil.DecodeBig(raw)
	}

	result := big.NewInt(0)
	err = readERC20(
		ctx, caller, chainID, tokenAddress,
		&result, "balanceOf", ethcommon.HexToAddress(accountAddress),
	)
	return result, err
}

type chainMetadata struct {
	Name     string
	Symbol   string
	Decimals int64
}

// metadataFromChain reads name/symbol/decimals straight from the contract.
// Decimals is the gate: a contract that can't answer it is not tracked.
func metadataFromChain(
	ctx context.Context,
	caller ChainCaller,
	chainID int64,
	standard Standard,
	tokenAddress string,
) (*chainMetadata, error) {
	meta := &chainMetadata{}

	if standard == StandardERC20 {
		var decimals uint8
		if err := readERC20(ctx, caller, chainID, tokenAddress, &decimals, "decimals"); err != nil {
			return nil, err
		}
		meta.Decimals = int64(decimals)
	}

	var name string
	if err := readERC20(ctx, caller, chainID, tokenAddress, &name, "name"); err == nil {
		meta.Name = name
	}
	var symbol string
	if err := readERC20(ctx, caller, chainID, tokenAddress, &symbol, "symbol"); err == nil {
		meta.Symbol = symbol
	}
	if standard != StandardERC20 && meta.Name == "" && meta.Symbol == "" {
		return nil, fmt.Errorf("no metadata for %s on chain %d", tokenAddress, chainID)
	}
	return meta, nil
}
