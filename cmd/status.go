package cmd

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tranvictor/walletd/common"
	"github.com/tranvictor/walletd/networks"
)

type pendingApproval struct {
	ID             string `json:"id"`
	Kind           string `json:"kind"`
	Origin         string `json:"origin"`
	ChainID        int64  `json:"chainId"`
	AccountAddress string `json:"accountAddress"`
}

type syncStatus struct {
	BusyChains []int64 `json:"busyChains"`
}

// startSpinner shows msg with an animation on terminals and returns a stop
// function. On non-terminal outputs the message is printed once.
func startSpinner(msg string) func() {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Println(msg)
		return func() {}
	}
	s := spinner.New(spinner.CharSets[14], 80*time.Millisecond)
	s.Suffix = " " + msg
	s.Start()
	return func() {
		s.Stop()
		fmt.Println()
	}
}

func chainName(chainID int64) string {
	if network, err := networks.GetNetworkByChainID(chainID); err == nil {
		return network.GetName()
	}
	return strconv.FormatInt(chainID, 10)
}

// syncPollInterval follows the fastest busy chain's block time, since a
// refresh cannot observe anything new before the next block.
func syncPollInterval(chainIDs []int64) time.Duration {
	interval := 4 * time.Second
	for _, chainID := range chainIDs {
		network, err := networks.GetNetworkByChainID(chainID)
		if err != nil {
			continue
		}
		if blockTime := network.GetBlockTime(); blockTime < interval {
			interval = blockTime
		}
	}
	return interval
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pending approvals and token sync state of the running daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		stop := startSpinner("querying walletd...")

		var pending []pendingApproval
		pendingErr := apiGet("/api/approvals", nil, &pending)
		var sync syncStatus
		syncErr := apiGet("/api/sync/status", nil, &sync)
		stop()

		if pendingErr != nil {
			return pendingErr
		}
		if syncErr != nil {
			return syncErr
		}

		if len(pending) == 0 {
			fmt.Println(common.DimColor("no pending approvals"))
		} else {
			rows := make([][]string, 0, len(pending))
			for _, a := range pending {
				chain := ""
				if a.ChainID != 0 {
					chain = chainName(a.ChainID)
				}
				rows = append(rows, []string{a.ID, a.Kind, a.Origin, chain, a.AccountAddress})
			}
			renderTable(os.Stdout, []string{"Id", "Kind", "Origin", "Chain", "Account"}, rows)
		}

		if len(sync.BusyChains) == 0 {
			fmt.Printf("token sync: %s\n", common.InfoColor("idle"))
			return nil
		}
		names := make([]string, 0, len(sync.BusyChains))
		for _, chainID := range sync.BusyChains {
			names = append(names, chainName(chainID))
		}
		fmt.Printf("token sync: %s on %v\n", common.AlertColor("busy"), names)

		if !waitForSync {
			return nil
		}
		stop = startSpinner("waiting for token sync to settle...")
		for len(sync.BusyChains) > 0 {
			time.Sleep(syncPollInterval(sync.BusyChains))
			if err := apiGet("/api/sync/status", nil, &sync); err != nil {
				stop()
				return err
			}
		}
		stop()
		fmt.Printf("token sync: %s\n", common.InfoColor("idle"))
		return nil
	},
}

var waitForSync bool

func init() {
	statusCmd.Flags().BoolVar(&waitForSync, "wait", false, "keep polling until token sync is idle")
	rootCmd.AddCommand(statusCmd)
}
