package cli

import (
	"strconv"

	"github.com/spf13/cobra"
)

// NewStatsCmd создаёт команду вывода агрегатов.
func NewStatsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show execution statistics per runbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			s, err := client.Stats()
			if err != nil {
				return err
			}

			headers := []string{"RUNBOOK", "TOTAL", "COMPLETED", "FAILED", "PENDING", "REJECTED", "FOUND", "ACTIONED", "LAST_RUN"}
			rows := make([][]string, len(s.Runbooks))
			for i, r := range s.Runbooks {
				rows[i] = []string{r.RunbookName, strconv.Itoa(r.Total), strconv.Itoa(r.Completed),
					strconv.Itoa(r.Failed), strconv.Itoa(r.Pending), strconv.Itoa(r.Rejected),
					strconv.Itoa(r.TotalItemsFound), strconv.Itoa(r.TotalItemsActioned), r.LastRun}
			}

			out.Print(headers, rows, s)
			return nil
		},
	}
}
