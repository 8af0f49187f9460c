package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/McElyea/orket-kernel/internal/kernel"
	"github.com/McElyea/orket-kernel/internal/promotion"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start a run and execute one or more turns against it",
	Long: `run calls start_run once, then execute_turn once per --turn-file, in
order, using sequential canonical turn IDs (turn-0001, turn-0002, ...).

Each --turn-file holds the JSON body of a kernel.TurnInput (tool_call and/or
stage_triplet, plus an optional capability context).`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().String("workflow", "", "workflow_id passed to start_run (required)")
	runCmd.Flags().String("visibility-mode", "", "start_run visibility_mode override")
	runCmd.Flags().String("workspace-root", "", "start_run workspace_root override")
	runCmd.Flags().StringArray("turn-file", nil, "path to a turn_input JSON file; repeatable")
	runCmd.Flags().String("commit-intent", string(kernel.CommitStageOnly), "commit_intent for every turn: stage_only or stage_and_request_promotion")
	_ = runCmd.MarkFlagRequired("workflow")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	workflowID, _ := cmd.Flags().GetString("workflow")
	visibilityMode, _ := cmd.Flags().GetString("visibility-mode")
	workspaceRoot, _ := cmd.Flags().GetString("workspace-root")
	turnFiles, _ := cmd.Flags().GetStringArray("turn-file")
	commitIntent, _ := cmd.Flags().GetString("commit-intent")

	ctx := context.Background()
	client := newKernelClient(serverURL)

	var startResp kernel.StartRunResponse
	startReq := kernel.StartRunRequest{
		ContractVersion: kernel.ContractVersion,
		WorkflowID:      workflowID,
		VisibilityMode:  visibilityMode,
		WorkspaceRoot:   workspaceRoot,
	}
	if err := client.post(ctx, "/v1/kernel/start_run", startReq, &startResp); err != nil {
		return fmt.Errorf("start_run: %w", err)
	}
	log.WithField("run_id", startResp.RunHandle.RunID).Info("run started")

	results := make([]kernel.TurnResult, 0, len(turnFiles))
	for i, path := range turnFiles {
		var turnInput kernel.TurnInput
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		if err := json.Unmarshal(data, &turnInput); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}

		turnID := promotion.FormatTurnID(i + 1)
		req := kernel.ExecuteTurnRequest{
			ContractVersion: kernel.ContractVersion,
			RunHandle:       &startResp.RunHandle,
			TurnID:          turnID,
			CommitIntent:    kernel.CommitIntent(commitIntent),
			TurnInput:       &turnInput,
		}

		var result kernel.TurnResult
		if err := client.post(ctx, "/v1/kernel/execute_turn", req, &result); err != nil {
			return fmt.Errorf("execute_turn %s: %w", turnID, err)
		}
		results = append(results, result)
		log.WithFields(logrusFields(result)).Info("turn executed")
	}

	if jsonOut {
		return printJSON(map[string]any{"run_handle": startResp.RunHandle, "turns": results})
	}
	for _, r := range results {
		fmt.Printf("%s  %-6s  stage=%-12s  errors=%d warnings=%d\n", r.TurnID, r.Outcome, r.Stage, r.Errors, r.Warnings)
	}
	return nil
}
