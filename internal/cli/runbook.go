package cli

import (
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// NewRunbookCmd создаёт группу команд для просмотра каталога.
func NewRunbookCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runbook",
		Short: "Browse the runbook catalog",
	}

	cmd.AddCommand(
		newRunbookListCmd(clientFn, outputFn),
		newRunbookShowCmd(clientFn, outputFn),
	)

	return cmd
}

func newRunbookListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List runbooks",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			list, err := client.ListRunbooks()
			if err != nil {
				return err
			}

			headers := []string{"NAME", "CATEGORY", "RISK", "DRY_RUN", "ENABLED"}
			rows := make([][]string, len(list))
			for i, rb := range list {
				rows[i] = []string{rb.Name, rb.Category, rb.RiskLevel,
					strconv.FormatBool(rb.SupportsDryRun), strconv.FormatBool(rb.Enabled)}
			}

			out.Print(headers, rows, list)
			return nil
		},
	}
}

func newRunbookShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show NAME",
		Short: "Show runbook details and parameters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			rb, err := client.GetRunbook(args[0])
			if err != nil {
				return err
			}

			names := make([]string, 0, len(rb.ParametersSchema))
			for name := range rb.ParametersSchema {
				names = append(names, name)
			}
			sort.Strings(names)

			headers := []string{"PARAM", "TYPE", "REQUIRED", "DEFAULT", "ENUM"}
			rows := make([][]string, len(names))
			for i, name := range names {
				def := rb.ParametersSchema[name]
				rows[i] = []string{name, stringOf(def["type"]), stringOf(def["required"]),
					stringOf(def["default"]), joinAny(def["enum"])}
			}

			out.Success(rb.Name + " (" + rb.RiskLevel + " risk): " + rb.Description)
			out.Print(headers, rows, rb)
			return nil
		},
	}
}

func stringOf(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return ""
	}
}

func joinAny(v any) string {
	list, ok := v.([]any)
	if !ok {
		return ""
	}
	parts := make([]string, len(list))
	for i, item := range list {
		parts[i] = stringOf(item)
	}
	return strings.Join(parts, ",")
}
