package tokens

import (
	"encoding/json"
	"fmt"

	"github.com/tranvictor/walletd/common"
	"github.com/tranvictor/walletd/repo"
)

type Type string

const (
	TypeAsset Type = "asset"
	TypeNFT   Type = "nft"
)

type Status string

const (
	StatusEnabled  Status = "enabled"
	StatusDisabled Status = "disabled"
)

// AccountToken is one token a wallet account holds, keyed by
// (chainID, accountAddress, tokenSlug). Assets carry pricing fields, NFTs
// don't.
type AccountToken struct {
	Type           Type   `json:"type"`
	Status         Status `json:"status"`
	ChainID        int64  `json:"chainId"`
	AccountAddress string `json:"accountAddress"`
	TokenSlug      string `json:"tokenSlug"`

	// Metadata
	Decimals int64  `json:"decimals,omitempty"`
	Name     string `json:"name,omitempty"`
	Symbol   string `json:"symbol,omitempty"`
	LogoURL  string `json:"logoUrl,omitempty"`

	// Volumes
	RawBalance     string  `json:"rawBalance"`
	BalanceUSD     float64 `json:"balanceUSD"`
	PriceUSD       string  `json:"priceUSD,omitempty"`
	PriceUSDChange string  `json:"priceUSDChange,omitempty"`
}

// ComputeBalanceUSD applies the balanceUSD invariant:
// rawBalance / 10^decimals * priceUSD.
func ComputeBalanceUSD(rawBalance string, decimals int64, priceUSD string) float64 {
	return common.StringToFloat(rawBalance, decimals) * common.ParseFloat(priceUSD)
}

func getAccountToken(kv repo.KV, key string) (*AccountToken, error) {
	content, found, err := kv.Get(repo.AccountTokens, key)
	if err != nil || !found {
		return nil, err
	}
	token := &AccountToken{}
	if err = json.Unmarshal(content, token); err != nil {
		return nil, fmt.Errorf("malformed account token record at %s: %w", key, err)
	}
	return token, nil
}

func putAccountToken(kv repo.KV, key string, token *AccountToken) error {
	content, err := json.Marshal(token)
	if err != nil {
		return err
	}
	return kv.Put(repo.AccountTokens, key, content)
}
