package networks

import (
	"time"
)

var BSCMainnet Network = NewBSCMainnet()

type bscMainnet struct{}

func NewBSCMainnet() *bscMainnet {
	return &bscMainnet{}
}

func (self *bscMainnet) GetName() string {
	return "bsc"
}

func (self *bscMainnet) GetChainID() int64 {
	return 56
}

func (self *bscMainnet) GetNativeTokenSymbol() string {
	return "BNB"
}

func (self *bscMainnet) GetNativeTokenDecimal() int64 {
	return 18
}

func (self *bscMainnet) GetBlockTime() time.Duration {
	return 3 * time.Second
}

func (self *bscMainnet) GetNodeVariableName() string {
	return "BSC_MAINNET_NODE"
}

func (self *bscMainnet) GetDefaultNodes() map[string]string {
	return map[string]string{
		"bsc-binance":  "https://bsc-dataseed.binance.org",
		"bsc-defibit":  "https://bsc-dataseed1.defibit.io",
		"bsc-ninicoin": "https://bsc-dataseed1.ninicoin.io",
	}
}

func (self *bscMainnet) GetCoinGeckoPlatform() string {
	return "binance-smart-chain"
}

func (self *bscMainnet) GetAnalyticsSlug() string {
	return "bsc"
}
