package networks

import (
	"time"
)

type Network interface {
	GetName() string
	GetChainID() int64
	GetNativeTokenSymbol() string
	GetNativeTokenDecimal() int64
	GetBlockTime() time.Duration

	GetNodeVariableName() string
	GetDefaultNodes() map[string]string

	// GetCoinGeckoPlatform returns the asset platform id on the price API,
	// or "" if the chain is not listed there.
	GetCoinGeckoPlatform() string

	// GetAnalyticsSlug returns the chain id on the chain-analytics API, or
	// "" if the chain is not supported there.
	GetAnalyticsSlug() string
}
