package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"sovereign-research-orchestrator/internal/config"
	"sovereign-research-orchestrator/internal/session"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print a session's accumulated statistics",
	Long: `stats opens the configured fact store and prints the user-visible
statistics contract: fallback, prune, and manual-review-conflict counts,
and tier distribution. It does not run any new iterations.`,
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	sess, err := session.New(context.Background(), cfg, workspaceDir)
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer sess.Close()

	printStats(sess)
	return nil
}

func printStats(sess *session.Session) {
	stats, err := sess.Stats()
	if err != nil {
		fmt.Printf("failed to compute stats: %v\n", err)
		return
	}

	fmt.Println("Session statistics:")
	fmt.Printf("  generator fallbacks:    %d\n", stats.GeneratorFallbacks)
	fmt.Printf("  facts extracted:        %d\n", stats.FactsExtracted)
	fmt.Printf("  manual-review conflicts: %d\n", stats.ManualReviewConflicts)
	fmt.Println("  nodes by status:")
	for status, count := range stats.NodesByStatus {
		fmt.Printf("    %-10s %d\n", status, count)
	}
	fmt.Println("  tier distribution:")
	fmt.Printf("    bronze: %d\n", stats.Tiers.Bronze)
	fmt.Printf("    silver: %d\n", stats.Tiers.Silver)
	fmt.Printf("    gold:   %d\n", stats.Tiers.Gold)
	fmt.Printf("    verified: %d / %d\n", stats.Tiers.Verified, stats.Tiers.Total)
	fmt.Printf("    mean confidence: %.3f\n", stats.Tiers.MeanConfidence)
}
