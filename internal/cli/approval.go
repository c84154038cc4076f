package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewApprovalCmd создаёт группу команд для approver'ов.
func NewApprovalCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approval",
		Short: "Review pending approvals",
	}

	cmd.AddCommand(
		newApprovalPendingCmd(clientFn, outputFn),
		newApprovalDecideCmd("approve", "approved", clientFn, outputFn),
		newApprovalDecideCmd("reject", "rejected", clientFn, outputFn),
	)

	return cmd
}

func newApprovalPendingCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List executions awaiting my decision",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			list, err := client.Pending()
			if err != nil {
				return err
			}

			headers := []string{"ID", "RUNBOOK", "MODE", "REQUIRED", "TRIGGERED_BY", "TRIGGERED_AT", "ESCALATED"}
			rows := make([][]string, len(list))
			for i, e := range list {
				rows[i] = []string{e.ID, e.RunbookName, e.ApprovalMode, fmt.Sprint(e.RequiredApprovals),
					e.TriggeredBy, e.TriggeredAt, fmt.Sprint(e.Escalated)}
			}

			out.Print(headers, rows, list)
			return nil
		},
	}
}

func newApprovalDecideCmd(verb, decision string, clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var comment string

	cmd := &cobra.Command{
		Use:   verb + " ID",
		Short: "Record a " + decision + " decision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			e, err := client.Decide(args[0], decision, comment)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Execution %s: %s", e.ID, e.Status))
			out.Print(executionHeaders, [][]string{executionRow(*e)}, e)
			return nil
		},
	}

	cmd.Flags().StringVar(&comment, "comment", "", "Decision comment")

	return cmd
}
