package orchestrate

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"sovereign-research-orchestrator/internal/genai"
	"sovereign-research-orchestrator/internal/logging"
	"sovereign-research-orchestrator/internal/tree"
)

const decomposePromptTemplate = `You are breaking a research question into smaller sub-questions to investigate independently.

Parent question: %s

Produce exactly %d sub-questions that, taken together, make meaningful progress toward answering the parent question. Each sub-question should be answerable on its own and should not simply restate the parent.

Respond as a numbered list, one sub-question per line:
1. ...
2. ...`

// Decompose turns one node into up to branching-factor children by asking
// the generator for a numbered list of sub-questions. A node at or beyond
// max-depth decomposes into nothing.
func (o *Orchestrator) Decompose(ctx context.Context, nodeID string) ([]*tree.Node, error) {
	timer := logging.StartTimer(logging.CategoryOrchestrate, "Decompose")
	defer timer.Stop()

	node, err := o.tr.GetNode(nodeID)
	if err != nil {
		return nil, err
	}
	if node.Depth >= o.maxDepth {
		return nil, nil
	}

	if err := o.tr.SetStatus(nodeID, tree.StatusExploring); err != nil {
		return nil, err
	}

	if o.gen == nil {
		_ = o.tr.SetStatus(nodeID, tree.StatusEvaluated)
		return nil, nil
	}

	prompt := fmt.Sprintf(decomposePromptTemplate, node.Question, o.branchingFactor)
	result, err := o.gen.Generate(ctx, prompt, genai.CapabilityReasoning, genai.QualityFast, genai.Params{Temperature: 0.4, MaxTokens: 500})
	if err != nil {
		_ = o.tr.SetStatus(nodeID, tree.StatusEvaluated)
		o.recordFallback()
		logging.Get(logging.CategoryOrchestrate).Warn("decompose generation failed for %s: %v", nodeID, err)
		return nil, nil
	}

	questions := parseNumberedList(result.Content, o.branchingFactor)

	var children []*tree.Node
	for _, q := range questions {
		child, err := o.tr.AddChild(nodeID, q)
		if err != nil {
			if _, ok := err.(*tree.ErrNodeLimitExceeded); ok {
				break
			}
			logging.Get(logging.CategoryOrchestrate).Warn("add child failed for %s: %v", nodeID, err)
			continue
		}
		children = append(children, child)
	}

	_ = o.tr.SetStatus(nodeID, tree.StatusEvaluated)
	return children, nil
}

var numberedLineRe = regexp.MustCompile(`^\s*\d+[.):]\s*(.+)$`)

// parseNumberedList extracts up to max plausible sub-questions from a
// numbered-list response, discarding lines too short to be real questions.
func parseNumberedList(raw string, max int) []string {
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		m := numberedLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		q := strings.TrimSpace(m[1])
		if len(q) < 8 {
			continue
		}
		out = append(out, q)
		if len(out) >= max {
			break
		}
	}
	return out
}
