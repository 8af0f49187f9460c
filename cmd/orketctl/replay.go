package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/McElyea/orket-kernel/internal/kernel"
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Call replay_run against a run descriptor file",
	RunE:  runReplay,
}

func init() {
	replayCmd.Flags().String("descriptor-file", "", "path to a run_descriptor JSON file (required)")
	_ = replayCmd.MarkFlagRequired("descriptor-file")
	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	descriptorFile, _ := cmd.Flags().GetString("descriptor-file")

	var descriptor kernel.RunDescriptor
	if err := readJSONFile(descriptorFile, &descriptor); err != nil {
		return err
	}

	req := kernel.ReplayRunRequest{
		ContractVersion: kernel.ContractVersion,
		RunDescriptor:   &descriptor,
	}

	client := newKernelClient(serverURL)
	var report kernel.ReplayReport
	if err := client.post(context.Background(), "/v1/kernel/replay_run", req, &report); err != nil {
		return fmt.Errorf("replay_run: %w", err)
	}

	return printReplayReport(report)
}

func printReplayReport(report kernel.ReplayReport) error {
	if jsonOut {
		return printJSON(report)
	}
	fmt.Printf("mode=%s outcome=%s runs_compared=%d turns_compared=%d\n",
		report.Mode, report.Outcome, report.RunsCompared, report.TurnsCompared)
	fmt.Printf("parity: kind=%s matches=%d mismatches=%d\n", report.Parity.Kind, report.Parity.Matches, report.Parity.Mismatches)
	for _, issue := range report.Issues {
		fmt.Printf("  issue: %s %s %s\n", issue.Code, issue.Location, issue.Message)
	}
	return nil
}
