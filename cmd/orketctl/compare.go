package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/McElyea/orket-kernel/internal/kernel"
)

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Call compare_runs against two run payload files",
	RunE:  runCompare,
}

func init() {
	compareCmd.Flags().String("run-a-file", "", "path to run_a's RunPayload JSON file (required)")
	compareCmd.Flags().String("run-b-file", "", "path to run_b's RunPayload JSON file (required)")
	_ = compareCmd.MarkFlagRequired("run-a-file")
	_ = compareCmd.MarkFlagRequired("run-b-file")
	rootCmd.AddCommand(compareCmd)
}

func runCompare(cmd *cobra.Command, args []string) error {
	runAFile, _ := cmd.Flags().GetString("run-a-file")
	runBFile, _ := cmd.Flags().GetString("run-b-file")

	var runA, runB kernel.RunPayload
	if err := readJSONFile(runAFile, &runA); err != nil {
		return err
	}
	if err := readJSONFile(runBFile, &runB); err != nil {
		return err
	}

	req := kernel.CompareRunsRequest{
		ContractVersion: kernel.ContractVersion,
		RunA:            &runA,
		RunB:            &runB,
	}

	client := newKernelClient(serverURL)
	var report kernel.ReplayReport
	if err := client.post(context.Background(), "/v1/kernel/compare_runs", req, &report); err != nil {
		return fmt.Errorf("compare_runs: %w", err)
	}

	return printReplayReport(report)
}
