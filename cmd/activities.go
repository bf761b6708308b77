package cmd

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tranvictor/walletd/activitysearch"
	"github.com/tranvictor/walletd/approval"
	"github.com/tranvictor/walletd/common"
)

func activityRow(a approval.Activity) []string {
	when := time.UnixMilli(a.TimeAt).Format("2006-01-02 15:04:05")
	detail := a.TxHash
	if detail == "" {
		detail = a.AccountAddress
	}
	state := common.InfoColor("done")
	if a.Pending != 0 {
		state = common.AlertColor("pending")
	}
	return []string{when, string(a.Kind), a.Source.Origin, detail, state}
}

var activitiesCmd = &cobra.Command{
	Use:   "activities [query...]",
	Short: "Show the activity feed, optionally filtered by a search query",
	RunE: func(cmd *cobra.Command, args []string) error {
		headers := []string{"Time", "Kind", "Origin", "Detail", "State"}

		if len(args) == 0 {
			var activities []approval.Activity
			if err := apiGet("/api/activities", nil, &activities); err != nil {
				return err
			}
			if len(activities) == 0 {
				fmt.Println(common.DimColor("no activities yet"))
				return nil
			}
			rows := make([][]string, 0, len(activities))
			for _, a := range activities {
				rows = append(rows, activityRow(a))
			}
			renderTable(os.Stdout, headers, rows)
			return nil
		}

		query := strings.Join(args, " ")
		var hits []activitysearch.Hit
		if err := apiGet("/api/activities", url.Values{"q": {query}}, &hits); err != nil {
			return err
		}
		if len(hits) == 0 {
			fmt.Printf("%s for %q\n", common.DimColor("no matches"), query)
			return nil
		}
		rows := make([][]string, 0, len(hits))
		for _, hit := range hits {
			rows = append(rows, activityRow(hit.Activity))
		}
		renderTable(os.Stdout, headers, rows)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(activitiesCmd)
}
