// Command orketctl is the kernel operator CLI: run/promote/replay/compare
// against a running server's Validator Front-End, plus reset and the
// filesystem-local promotion recovery command.
package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	serverURL string
	jsonOut   bool
	log       = logrus.New()
)

var rootCmd = &cobra.Command{
	Use:   "orketctl",
	Short: "Operator CLI for the Orket deterministic execution core",
	Long: `orketctl drives a running kernel server's Validator Front-End and
inspects/repairs a workspace's Local Sovereign Index directly on disk.

Examples:
  orketctl run --workflow wf-demo --turn-file turn.json
  orketctl promote --run run-abc123 --turn turn-0001 --triplet-file triplet.json
  orketctl replay --descriptor-file descriptor.json
  orketctl compare --run-a-file a.json --run-b-file b.json
  orketctl reset --cards-file cards.json
  orketctl promotion inspect --workspace ./workspace
  orketctl promotion recover --workspace ./workspace --action forward`,
}

func init() {
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "kernel server base URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "print raw JSON responses instead of a human-readable summary")
	rootCmd.PersistentFlags().String("log-level", "info", "logrus level: debug, info, warn, error")

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		levelName, _ := cmd.Flags().GetString("log-level")
		level, err := logrus.ParseLevel(levelName)
		if err != nil {
			level = logrus.InfoLevel
		}
		log.SetLevel(level)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.WithError(err).Error("command failed")
		os.Exit(1)
	}
}
