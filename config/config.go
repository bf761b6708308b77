package config

import (
	"log"
	"os"
	"os/user"
	"path/filepath"
)

const (
	DATA_DIR_VAR          string = "WALLETD_DATA_DIR"
	ENV_VAR               string = "WALLETD_ENV"
	DEV_BLOCK_TX_SEND_VAR string = "WALLETD_DEV_BLOCK_TX_SEND"
	COINGECKO_API_KEY_VAR string = "WALLETD_COINGECKO_API_KEY"
	ANALYTICS_API_KEY_VAR string = "WALLETD_ANALYTICS_API_KEY"
)

var (
	// DataDir is where walletd keeps its database, keystores and search
	// index. Defaults to ~/.walletd.
	DataDir string

	// DefaultChainID is used when a connection approval carries no
	// preferred chain and the decision carries no override.
	DefaultChainID int64 = 1

	// Environment is "production" unless WALLETD_ENV says otherwise.
	Environment string = "production"

	// DevBlockTxSend aborts transaction submission in non-production
	// environments. It is a test/ops safety valve and has no effect when
	// Environment is "production".
	DevBlockTxSend bool

	HTTPAddr string = "127.0.0.1:18545"

	SyncWorkers int = 4
	SyncBacklog int = 1024

	CoinGeckoAPIKey string
	AnalyticsAPIKey string
)

func getHomeDir() string {
	usr, err := user.Current()
	if err != nil {
		log.Fatal(err)
	}
	return usr.HomeDir
}

// LoadEnv binds the env vars above onto the package vars. Flags set by the
// CLI take precedence because cobra binds them after LoadEnv runs.
func LoadEnv() {
	if dir := os.Getenv(DATA_DIR_VAR); dir != "" {
		DataDir = dir
	}
	if DataDir == "" {
		DataDir = filepath.Join(getHomeDir(), ".walletd")
	}
	if env := os.Getenv(ENV_VAR); env != "" {
		Environment = env
	}
	DevBlockTxSend = os.Getenv(DEV_BLOCK_TX_SEND_VAR) == "true"
	if key := os.Getenv(COINGECKO_API_KEY_VAR); key != "" {
		CoinGeckoAPIKey = key
	}
	if key := os.Getenv(ANALYTICS_API_KEY_VAR); key != "" {
		AnalyticsAPIKey = key
	}
}
