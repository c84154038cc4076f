package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var executionHeaders = []string{"ID", "RUNBOOK", "STATUS", "DRY_RUN", "TRIGGERED_BY", "TRIGGERED_AT", "FOUND", "ACTIONED"}

func executionRow(e ExecutionResponse) []string {
	return []string{e.ID, e.RunbookName, e.Status, strconv.FormatBool(e.DryRun), e.TriggeredBy,
		e.TriggeredAt, strconv.Itoa(e.ItemsFound), strconv.Itoa(e.ItemsActioned)}
}

func executionRows(list []ExecutionResponse) [][]string {
	rows := make([][]string, len(list))
	for i, e := range list {
		rows[i] = executionRow(e)
	}
	return rows
}

// NewExecCmd создаёт группу команд для управления executions.
func NewExecCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exec",
		Short: "Trigger and inspect executions",
	}

	cmd.AddCommand(
		newExecTriggerCmd(clientFn, outputFn),
		newExecShowCmd(clientFn, outputFn),
		newExecHistoryCmd(clientFn, outputFn),
		newExecMineCmd(clientFn, outputFn),
		newExecCancelCmd(clientFn, outputFn),
		newExecTrailCmd(clientFn, outputFn),
	)

	return cmd
}

func newExecTriggerCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var dryRun bool
	var pairs []string
	var paramsFile string

	cmd := &cobra.Command{
		Use:   "trigger NAME",
		Short: "Trigger a runbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseParams(pairs, paramsFile)
			if err != nil {
				return err
			}

			client := clientFn()
			out := outputFn()

			resp, err := client.Trigger(args[0], TriggerRequest{DryRun: dryRun, Parameters: params})
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Execution %s: %s", resp.ID, resp.Status))
			out.Note(resp.Note)
			out.Print(executionHeaders, [][]string{executionRow(resp.ExecutionResponse)}, resp)
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Run without side effects")
	cmd.Flags().StringArrayVar(&pairs, "param", nil, "Parameter as KEY=VALUE (repeatable)")
	cmd.Flags().StringVar(&paramsFile, "params-file", "", "YAML file with parameters")

	return cmd
}

func newExecShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show execution details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			e, err := client.GetExecution(args[0])
			if err != nil {
				return err
			}

			headers := append(executionHeaders[:len(executionHeaders):len(executionHeaders)], "APPROVED_BY", "ESCALATED", "ERROR")
			row := append(executionRow(*e), e.ApprovedBy, strconv.FormatBool(e.Escalated), e.ErrorMessage)
			out.Print(headers, [][]string{row}, e)
			return nil
		},
	}
}

func newExecHistoryCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var opts ListExecutionsOpts

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List executions",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			list, total, err := client.ListExecutions(opts)
			if err != nil {
				return err
			}

			out.Print(executionHeaders, executionRows(list), list)
			if len(list) < total {
				out.Success(fmt.Sprintf("Showing %d of %d", len(list), total))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Runbook, "runbook", "", "Filter by runbook name")
	cmd.Flags().StringVar(&opts.Status, "status", "", "Filter by status (pending_approval, queued, executing, completed, failed, rejected, cancelled)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Maximum number of results")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "Skip first N results")

	return cmd
}

func newExecMineCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var opts ListExecutionsOpts

	cmd := &cobra.Command{
		Use:   "mine",
		Short: "List executions triggered by me",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			list, _, err := client.ListMine(opts)
			if err != nil {
				return err
			}

			out.Print(executionHeaders, executionRows(list), list)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Status, "status", "", "Filter by status")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Maximum number of results")

	return cmd
}

func newExecCancelCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel ID",
		Short: "Cancel an execution that has not started",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			e, err := client.Cancel(args[0])
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Execution cancelled: %s", e.ID))
			return nil
		},
	}
}

func newExecTrailCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "trail ID",
		Short: "Show the audit trail of an execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			trs, err := client.Transitions(args[0])
			if err != nil {
				return err
			}
			decisions, err := client.Decisions(args[0])
			if err != nil {
				return err
			}

			if out.jsonMode {
				out.JSON(map[string]any{"transitions": trs, "decisions": decisions})
				return nil
			}

			rows := make([][]string, len(trs))
			for i, tr := range trs {
				from := tr.From
				if from == "" {
					from = "-"
				}
				rows[i] = []string{tr.At, from, tr.To, tr.Actor, tr.Note}
			}
			out.Table([]string{"AT", "FROM", "TO", "ACTOR", "NOTE"}, rows)

			if len(decisions) > 0 {
				rows = make([][]string, len(decisions))
				for i, d := range decisions {
					rows[i] = []string{d.At, d.Approver, d.Role, d.Decision, d.Comment}
				}
				out.Table([]string{"AT", "APPROVER", "ROLE", "DECISION", "COMMENT"}, rows)
			}
			return nil
		},
	}
}
