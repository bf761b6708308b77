// Copyright © 2018 Victor Tran
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tranvictor/walletd/config"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "walletd",
	Short: "Local wallet daemon handling dapp approvals and token sync",
	Long: fmt.Sprintf(`Walletd is the wallet background daemon. Pages ask it for account
connections, transaction broadcasts and message signatures; every request
becomes a pending approval that waits for the user's decision.

Walletd also keeps token balances and USD prices of the wallet's accounts
fresh, and records everything it does in a searchable activity feed.

By default walletd supports ethereum mainnet, bsc and polygon with public
nodes. You can point a chain at your own node by setting its env var:
	1. For mainnet: %s
	2. For bsc: %s
	3. For polygon: %s

Token prices come from CoinGecko and a chain analytics service. Default
public access is rate limited; set your own keys (recommended) via:
	1. %s
	2. %s

All daemon state lives under %s (or %s).`,
		"ETHEREUM_MAINNET_NODE",
		"BSC_MAINNET_NODE",
		"MATIC_NODE",
		config.COINGECKO_API_KEY_VAR,
		config.ANALYTICS_API_KEY_VAR,
		"~/.walletd",
		config.DATA_DIR_VAR,
	),
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	config.LoadEnv()

	rootCmd.PersistentFlags().StringVar(
		&config.DataDir, "data-dir", config.DataDir,
		"directory for the daemon's database, accounts and search index",
	)
	rootCmd.PersistentFlags().Int64Var(
		&config.DefaultChainID, "chain", config.DefaultChainID,
		"default chain id for connections that don't name one",
	)
	rootCmd.PersistentFlags().StringVar(
		&config.HTTPAddr, "http-addr", config.HTTPAddr,
		"listen address of the daemon API",
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
