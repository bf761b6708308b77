package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/tranvictor/walletd/config"
)

// apiGet queries the running daemon's local API and decodes the JSON answer.
func apiGet(path string, query url.Values, out interface{}) error {
	u := fmt.Sprintf("http://%s%s", config.HTTPAddr, path)
	if len(query) > 0 {
		u = u + "?" + query.Encode()
	}
	client := &http.Client{Timeout: 10 * time.Second}
	res, err := client.Get(u)
	if err != nil {
		return fmt.Errorf("is walletd running on %s? %w", config.HTTPAddr, err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("daemon answered %s for %s", res.Status, path)
	}
	return json.NewDecoder(res.Body).Decode(out)
}
