package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/McElyea/orket-kernel/internal/lsi"
	"github.com/McElyea/orket-kernel/internal/promotion"
)

// promotionCmd groups filesystem-local maintenance commands that operate
// directly on a workspace's Local Sovereign Index, bypassing the server.
var promotionCmd = &cobra.Command{
	Use:   "promotion",
	Short: "Filesystem-local Local Sovereign Index maintenance commands",
}

var promotionRecoverInspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Report whether a workspace has an interrupted promotion swap",
	RunE:  runPromotionRecoverInspect,
}

var promotionRecoverApplyCmd = &cobra.Command{
	Use:   "recover",
	Short: "Apply an operator-chosen recovery action to an interrupted promotion swap",
	Long: `recover resolves a workspace left with a stray committed.__bak or
committed.__new directory after a process died mid-swap. There is no
automatic default action: the operator must inspect first (orketctl
promotion inspect) and pass --action explicitly.`,
	RunE: runPromotionRecoverApply,
}

func init() {
	promotionCmd.PersistentFlags().String("workspace", "", "workspace root containing the committed/ scope (required)")
	_ = promotionCmd.MarkPersistentFlagRequired("workspace")

	promotionRecoverApplyCmd.Flags().String("action", "", "recovery action: discard-backup, forward, or rollback (required)")
	_ = promotionRecoverApplyCmd.MarkFlagRequired("action")

	promotionCmd.AddCommand(promotionRecoverInspectCmd)
	promotionCmd.AddCommand(promotionRecoverApplyCmd)
	rootCmd.AddCommand(promotionCmd)
}

func runPromotionRecoverInspect(cmd *cobra.Command, args []string) error {
	workspace, _ := cmd.Flags().GetString("workspace")
	ix := lsi.New(workspace)
	status := promotion.Inspect(ix)

	if jsonOut {
		return printJSON(status)
	}
	fmt.Printf("committed exists: %v\n", status.CommittedExists)
	fmt.Printf("committed.__bak exists: %v\n", status.BackupExists)
	fmt.Printf("committed.__new exists: %v\n", status.NewExists)
	if status.Clean() {
		fmt.Println("no interrupted swap detected")
	} else {
		fmt.Println("interrupted swap detected; choose an action with `orketctl promotion recover --workspace ... --action ...`")
	}
	return nil
}

func runPromotionRecoverApply(cmd *cobra.Command, args []string) error {
	workspace, _ := cmd.Flags().GetString("workspace")
	action, _ := cmd.Flags().GetString("action")

	ix := lsi.New(workspace)
	if err := promotion.Recover(ix, promotion.RecoverAction(action)); err != nil {
		return fmt.Errorf("recover: %w", err)
	}

	log.WithField("action", action).Info("promotion recovery applied")
	fmt.Printf("recovery action %q applied\n", action)
	return nil
}
