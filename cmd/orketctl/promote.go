package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/McElyea/orket-kernel/internal/kernel"
)

var promoteCmd = &cobra.Command{
	Use:   "promote",
	Short: "Execute a single turn with commit_intent=stage_and_request_promotion",
	Long: `promote is a convenience wrapper over execute_turn: it reads one
stage_triplet JSON file, attaches it to turn_input.stage_triplet, and always
sets commit_intent to stage_and_request_promotion.`,
	RunE: runPromote,
}

func init() {
	promoteCmd.Flags().String("run", "", "run_id of an already-started run (required)")
	promoteCmd.Flags().String("visibility-mode", kernel.DefaultVisibilityMode, "run_handle.visibility_mode")
	promoteCmd.Flags().String("workspace-root", kernel.DefaultWorkspaceRoot, "run_handle.workspace_root")
	promoteCmd.Flags().String("turn", "", "turn_id for this execute_turn call (required)")
	promoteCmd.Flags().String("triplet-file", "", "path to a stage_triplet JSON file (required)")
	_ = promoteCmd.MarkFlagRequired("run")
	_ = promoteCmd.MarkFlagRequired("turn")
	_ = promoteCmd.MarkFlagRequired("triplet-file")
	rootCmd.AddCommand(promoteCmd)
}

func runPromote(cmd *cobra.Command, args []string) error {
	runID, _ := cmd.Flags().GetString("run")
	visibilityMode, _ := cmd.Flags().GetString("visibility-mode")
	workspaceRoot, _ := cmd.Flags().GetString("workspace-root")
	turnID, _ := cmd.Flags().GetString("turn")
	tripletFile, _ := cmd.Flags().GetString("triplet-file")

	var triplet kernel.StageTripletInput
	if err := readJSONFile(tripletFile, &triplet); err != nil {
		return err
	}

	req := kernel.ExecuteTurnRequest{
		ContractVersion: kernel.ContractVersion,
		RunHandle: &kernel.RunHandle{
			ContractVersion: kernel.ContractVersion,
			RunID:           runID,
			VisibilityMode:  visibilityMode,
			WorkspaceRoot:   workspaceRoot,
		},
		TurnID:       turnID,
		CommitIntent: kernel.CommitStageAndRequestPromotion,
		TurnInput:    &kernel.TurnInput{StageTriplet: &triplet},
	}

	client := newKernelClient(serverURL)
	var result kernel.TurnResult
	if err := client.post(context.Background(), "/v1/kernel/execute_turn", req, &result); err != nil {
		return fmt.Errorf("execute_turn: %w", err)
	}

	log.WithFields(logrusFields(result)).Info("promotion turn executed")
	if jsonOut {
		return printJSON(result)
	}
	fmt.Printf("%s  %-6s  stage=%-12s  errors=%d warnings=%d\n", result.TurnID, result.Outcome, result.Stage, result.Errors, result.Warnings)
	for _, issue := range result.Issues {
		fmt.Printf("  issue: %s %s %s\n", issue.Code, issue.Location, issue.Message)
	}
	return nil
}
