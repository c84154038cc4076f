// runbookctl — инструмент командной строки для каталога runbook'ов,
// запусков и одобрений через HTTP API.
//
// Использование:
//
//	runbookctl [--api-url URL] [--json] [--token T | --principal P --role R] <command> <subcommand> [flags]
//
// Команды:
//
//	runbook   Каталог
//	exec      Запуски и журнал
//	approval  Очередь одобрений
//	policy    Политики одобрения
//	stats     Агрегаты
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/Runbooks/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var jsonOutput bool
	var identity cli.Identity

	rootCmd := &cobra.Command{
		Use:           "runbookctl",
		Short:         "runbookctl — runbook orchestrator CLI",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", envOr("RUNBOOKS_API_URL", "http://localhost:8080"), "API server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVar(&identity.Token, "token", os.Getenv("RUNBOOKS_TOKEN"), "Bearer token (JWT)")
	rootCmd.PersistentFlags().StringVar(&identity.Principal, "principal", os.Getenv("USER"), "Caller principal (header auth mode)")
	rootCmd.PersistentFlags().StringVar(&identity.Role, "role", os.Getenv("RUNBOOKS_ROLE"), "Caller role (header auth mode)")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL, identity) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewRunbookCmd(clientFn, outputFn),
		cli.NewExecCmd(clientFn, outputFn),
		cli.NewApprovalCmd(clientFn, outputFn),
		cli.NewPolicyCmd(clientFn, outputFn),
		cli.NewStatsCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
