package pricing

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"
)

const CHAIN_LIST_CACHE_TIMEOUT int64 = 600 // seconds

// AnalyticsChain is a chain as the analytics API knows it.
type AnalyticsChain struct {
	ID          string `json:"id"`
	CommunityID int64  `json:"community_id"`
	Name        string `json:"name"`
}

// AnalyticsToken is token metadata plus an embedded USD price.
type AnalyticsToken struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Symbol   string  `json:"symbol"`
	LogoURL  string  `json:"logo_url"`
	Decimals int64   `json:"decimals"`
	Price    float64 `json:"price"`
}

// Analytics is price source #2: chain lookup by id, token metadata and
// price by (chain, address). Chains absent from its list are simply
// unsupported, not errors.
type Analytics struct {
	Domain string
	APIKey string

	chainsMu        sync.Mutex
	chains          []AnalyticsChain
	chainsFetchedAt int64
}

func NewAnalytics(apiKey string) *Analytics {
	return &Analytics{
		Domain: "https://pro-openapi.debank.com/v1",
		APIKey: apiKey,
	}
}

func (a *Analytics) get(path string, query url.Values, out interface{}) error {
	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s%s?%s", a.Domain, path, query.Encode()), nil)
	if err != nil {
		return err
	}
	if a.APIKey != "" {
		req.Header.Set("AccessKey", a.APIKey)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("analytics api returned %d: %s", resp.StatusCode, string(body))
	}
	if err = json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("couldn't unmarshal %s, err: %w", string(body), err)
	}
	return nil
}

func (a *Analytics) chainList() ([]AnalyticsChain, error) {
	a.chainsMu.Lock()
	defer a.chainsMu.Unlock()
	if a.chains != nil && time.Now().Unix()-a.chainsFetchedAt <= CHAIN_LIST_CACHE_TIMEOUT {
		return a.chains, nil
	}
	chains := []AnalyticsChain{}
	if err := a.get("/chain/list", url.Values{}, &chains); err != nil {
		return nil, fmt.Errorf("chain list lookup failed: %w", err)
	}
	a.chains = chains
	a.chainsFetchedAt = time.Now().Unix()
	return a.chains, nil
}

// GetChain resolves a chain id to the analytics API's chain descriptor.
// An unsupported chain returns (nil, nil).
func (a *Analytics) GetChain(chainID int64) (*AnalyticsChain, error) {
	chains, err := a.chainList()
	if err != nil {
		return nil, err
	}
	for i := range chains {
		if chains[i].CommunityID == chainID {
			return &chains[i], nil
		}
	}
	return nil, nil
}

// GetToken fetches metadata and price for a token on a supported chain.
func (a *Analytics) GetToken(chainSlug, address string) (*AnalyticsToken, error) {
	query := url.Values{}
	query.Set("chain_id", chainSlug)
	query.Set("id", address)
	token := &AnalyticsToken{}
	if err := a.get("/token", query, token); err != nil {
		return nil, err
	}
	if token.ID == "" {
		return nil, nil
	}
	return token, nil
}
