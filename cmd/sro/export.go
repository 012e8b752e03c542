package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"sovereign-research-orchestrator/internal/config"
	"sovereign-research-orchestrator/internal/session"
	"sovereign-research-orchestrator/internal/store"
	"sovereign-research-orchestrator/internal/tree"
)

var exportOutPath string

// exportSnapshot is the session persistence format spec.md §6 describes as
// "interface only": a round-trip-preserving dump of every tree node and
// every fact, with no further schema guarantee across versions.
type exportSnapshot struct {
	Nodes    []*tree.Node     `json:"nodes"`
	Triplets []*store.Triplet `json:"triplets"`
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a session's tree and fact store as JSON",
	Long: `export writes every tree node and every stored fact to a single
JSON document, preserving enough of the node and triplet fields to
reconstruct a session's state.`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportOutPath, "out", "", "output file (default: stdout)")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	sess, err := session.New(context.Background(), cfg, workspaceDir)
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer sess.Close()

	triplets, err := sess.Store.QueryTriplets(store.Query{Limit: 1_000_000})
	if err != nil {
		return fmt.Errorf("query triplets: %w", err)
	}

	snapshot := exportSnapshot{Nodes: sess.Tree.All(), Triplets: triplets}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if exportOutPath == "" {
		fmt.Println(string(data))
		return nil
	}
	return os.WriteFile(exportOutPath, data, 0644)
}
