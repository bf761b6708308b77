// Package pricing talks to the two external price sources: a token price
// API keyed by contract address and a chain-analytics API that also serves
// token metadata.
package pricing

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Price is a USD quote for one token.
type Price struct {
	USD          float64 `json:"usd"`
	USD24hChange float64 `json:"usd_24h_change"`
}

// CoinGecko is price source #1.
type CoinGecko struct {
	Domain string
	APIKey string
}

func NewCoinGecko(apiKey string) *CoinGecko {
	return &CoinGecko{
		Domain: "https://api.coingecko.com/api/v3",
		APIKey: apiKey,
	}
}

func (cg *CoinGecko) tokenPriceAPIURL(platform string, addresses []string) string {
	query := url.Values{}
	query.Set("contract_addresses", strings.ToLower(strings.Join(addresses, ",")))
	query.Set("vs_currencies", "usd")
	query.Set("include_24hr_change", "true")
	if cg.APIKey != "" {
		query.Set("x_cg_api_key", cg.APIKey)
	}
	return fmt.Sprintf(
		"%s/simple/token_price/%s?%s",
		cg.Domain,
		platform,
		query.Encode(),
	)
}

// GetPrices returns USD quotes keyed by lowercased contract address. A chain
// without a platform id on the price API yields an empty map, not an error.
func (cg *CoinGecko) GetPrices(platform string, addresses []string) (map[string]Price, error) {
	if platform == "" || len(addresses) == 0 {
		return map[string]Price{}, nil
	}
	resp, err := http.Get(cg.tokenPriceAPIURL(platform, addresses))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("price api returned %d: %s", resp.StatusCode, string(body))
	}
	prices := map[string]Price{}
	if err = json.Unmarshal(body, &prices); err != nil {
		return nil, fmt.Errorf(
			"couldn't unmarshal %s to price map, err: %w",
			string(body),
			err,
		)
	}
	return prices, nil
}
