package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"sovereign-research-orchestrator/internal/config"
	"sovereign-research-orchestrator/internal/session"
)

var maxIterations int

var runCmd = &cobra.Command{
	Use:   "run <question>",
	Short: "Run a research session on a question",
	Long: `run seeds a new tree-of-thoughts session with the given question,
then alternates decomposition, generation, and MCTS selection until the
iteration budget or token budget is exhausted.

Examples:
  sro run "what drives long-term inflation?"
  sro run --max-iterations 50 "how does CRISPR gene editing work?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().IntVar(&maxIterations, "max-iterations", 20, "maximum MCTS iterations to run")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	question := strings.Join(args, " ")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nsession cancelled, finishing current step")
		cancel()
	}()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	sess, err := session.New(ctx, cfg, workspaceDir)
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer sess.Close()

	if err := sess.Run(ctx, question, maxIterations); err != nil && err != context.Canceled {
		return fmt.Errorf("run session: %w", err)
	}

	root, err := sess.Tree.GetNode(sess.Tree.RootID())
	if err != nil {
		return fmt.Errorf("read root node: %w", err)
	}

	fmt.Printf("Question: %s\n\n", root.Question)
	fmt.Printf("Answer: %s\n", root.Answer)
	fmt.Printf("Confidence: %.2f\n\n", root.Confidence)

	printStats(sess)
	return nil
}
