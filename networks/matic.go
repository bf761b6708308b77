package networks

import (
	"time"
)

var Matic Network = NewMatic()

type matic struct{}

func NewMatic() *matic {
	return &matic{}
}

func (self *matic) GetName() string {
	return "matic"
}

func (self *matic) GetChainID() int64 {
	return 137
}

func (self *matic) GetNativeTokenSymbol() string {
	return "MATIC"
}

func (self *matic) GetNativeTokenDecimal() int64 {
	return 18
}

func (self *matic) GetBlockTime() time.Duration {
	return 2 * time.Second
}

func (self *matic) GetNodeVariableName() string {
	return "MATIC_NODE"
}

func (self *matic) GetDefaultNodes() map[string]string {
	return map[string]string{
		"polygon-rpc": "https://polygon-rpc.com",
		"matic-quick": "https://rpc-mainnet.matic.quiknode.pro",
	}
}

func (self *matic) GetCoinGeckoPlatform() string {
	return "polygon-pos"
}

func (self *matic) GetAnalyticsSlug() string {
	return "matic"
}
