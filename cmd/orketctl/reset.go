package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/McElyea/orket-kernel/internal/coordinator"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reseed the coordinator's card table via the admin reset endpoint",
	Long: `reset calls POST /v1/admin/reset, which only exists when the server
was started with kernel.admin_reset_enabled=true. It replaces the entire
in-memory card table with the contents of --cards-file.`,
	RunE: runReset,
}

func init() {
	resetCmd.Flags().String("cards-file", "", "path to a JSON file holding {\"cards\": [...]} (required)")
	_ = resetCmd.MarkFlagRequired("cards-file")
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) error {
	cardsFile, _ := cmd.Flags().GetString("cards-file")

	var body struct {
		Cards []coordinator.Card `json:"cards"`
	}
	if err := readJSONFile(cardsFile, &body); err != nil {
		return err
	}

	client := newKernelClient(serverURL)
	var result map[string]int
	if err := client.post(context.Background(), "/v1/admin/reset", body, &result); err != nil {
		return fmt.Errorf("admin reset: %w", err)
	}

	log.WithField("cards", result["cards"]).Info("card table reset")
	if jsonOut {
		return printJSON(result)
	}
	fmt.Printf("reset %d cards\n", result["cards"])
	return nil
}
