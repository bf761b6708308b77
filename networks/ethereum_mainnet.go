package networks

import (
	"time"
)

var EthereumMainnet Network = NewEthereumMainnet()

type ethereumMainnet struct{}

func NewEthereumMainnet() *ethereumMainnet {
	return &ethereumMainnet{}
}

func (self *ethereumMainnet) GetName() string {
	return "mainnet"
}

func (self *ethereumMainnet) GetChainID() int64 {
	return 1
}

func (self *ethereumMainnet) GetNativeTokenSymbol() string {
	return "ETH"
}

func (self *ethereumMainnet) GetNativeTokenDecimal() int64 {
	return 18
}

func (self *ethereumMainnet) GetBlockTime() time.Duration {
	return 14 * time.Second
}

func (self *ethereumMainnet) GetNodeVariableName() string {
	return "ETHEREUM_MAINNET_NODE"
}

func (self *ethereumMainnet) GetDefaultNodes() map[string]string {
	return map[string]string{
		"mainnet-cloudflare": "https://cloudflare-eth.com",
		"mainnet-public":     "https://ethereum-rpc.publicnode.com",
	}
}

func (self *ethereumMainnet) GetCoinGeckoPlatform() string {
	return "ethereum"
}

func (self *ethereumMainnet) GetAnalyticsSlug() string {
	return "eth"
}
