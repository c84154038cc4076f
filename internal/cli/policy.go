package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewPolicyCmd создаёт группу команд для политик одобрения.
func NewPolicyCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Manage approval policies",
	}

	cmd.AddCommand(
		newPolicyGetCmd(clientFn, outputFn),
		newPolicyPutCmd(clientFn, outputFn),
	)

	return cmd
}

var policyHeaders = []string{"TRIGGER_ROLE", "APPROVER_ROLE", "MODE", "REQUIRED", "ESCALATION_MIN", "AUTO_PER_DAY", "ENABLED"}

func policyRow(p PolicyResponse) []string {
	return []string{p.TriggerRole, p.ApproverRole, p.Mode, strconv.Itoa(p.RequiredApprovals),
		strconv.Itoa(p.EscalationTimeoutMinutes), strconv.Itoa(p.MaxAutoExecutionsPerDay), strconv.FormatBool(p.Enabled)}
}

func newPolicyGetCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "get NAME",
		Short: "Show policies of a runbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			list, err := client.ListPolicies(args[0])
			if err != nil {
				return err
			}

			rows := make([][]string, len(list))
			for i, p := range list {
				rows[i] = policyRow(p)
			}
			out.Print(policyHeaders, rows, list)
			return nil
		},
	}
}

func newPolicyPutCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "put NAME",
		Short: "Create or replace a policy from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := loadPolicyFile(file)
			if err != nil {
				return err
			}

			client := clientFn()
			out := outputFn()

			p, err := client.PutPolicy(args[0], req)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Policy saved: %s / %s", p.RunbookName, p.TriggerRole))
			out.Print(policyHeaders, [][]string{policyRow(*p)}, p)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Path to policy YAML file (required)")
	cmd.MarkFlagRequired("file")

	return cmd
}
