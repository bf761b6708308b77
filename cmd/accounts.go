package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tranvictor/walletd/common"
	"github.com/tranvictor/walletd/config"
	"github.com/tranvictor/walletd/vault"
)

var accountDesc string

func accountRows(accounts []vault.AccDesc) [][]string {
	rows := make([][]string, 0, len(accounts))
	for _, acc := range accounts {
		rows = append(rows, []string{acc.ID, acc.Address, acc.Desc})
	}
	return rows
}

var accountsCmd = &cobra.Command{
	Use:   "accounts [query...]",
	Short: "List registered accounts, optionally fuzzy-matched against a query",
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := vault.LoadRegistry(config.DataDir)
		if err != nil {
			return err
		}

		accounts := registry.Accounts()
		if len(args) > 0 {
			accounts = registry.Search(strings.Join(args, " "))
		}
		if len(accounts) == 0 {
			fmt.Println(common.DimColor("no accounts"))
			return nil
		}
		renderTable(os.Stdout, []string{"Id", "Address", "Description"}, accountRows(accounts))
		return nil
	},
}

var accountsAddCmd = &cobra.Command{
	Use:   "add <keystore.json>",
	Short: "Register a keystore file as a wallet account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		keypath, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		content, err := os.ReadFile(keypath)
		if err != nil {
			return fmt.Errorf("couldn't read keystore file: %w", err)
		}
		var keystore struct {
			Address string `json:"address"`
		}
		if err = json.Unmarshal(content, &keystore); err != nil || keystore.Address == "" {
			return fmt.Errorf("%s doesn't look like a keystore file", keypath)
		}

		registry, err := vault.LoadRegistry(config.DataDir)
		if err != nil {
			return err
		}
		address := "0x" + strings.TrimPrefix(keystore.Address, "0x")
		if _, found := registry.AccountByAddress(address); found {
			return fmt.Errorf("account %s is already registered", address)
		}

		acc := vault.AccDesc{
			ID:      uuid.NewString(),
			Address: address,
			Keypath: keypath,
			Desc:    accountDesc,
		}
		if err = registry.Register(acc); err != nil {
			return err
		}
		fmt.Printf("registered %s as %s\n", common.InfoColor(acc.Address), acc.ID)
		return nil
	},
}

func init() {
	accountsAddCmd.Flags().StringVar(&accountDesc, "desc", "", "human description of the account")
	accountsCmd.AddCommand(accountsAddCmd)
	rootCmd.AddCommand(accountsCmd)
}
