package genai

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"sovereign-research-orchestrator/internal/logging"

	googlegenai "google.golang.org/genai"
)

// ModelSet maps a Quality tier to the concrete Gemini model name used for it.
// Fast favors latency (used by C11's XoT prior, C14's llm simulation, and
// C15's decomposition); quality favors reasoning depth.
type ModelSet struct {
	Fast     string
	Balanced string
	Quality  string
}

// GeminiProvider implements Generator against Google's Gemini API.
type GeminiProvider struct {
	client *googlegenai.Client
	models ModelSet

	enableThinking bool
	thinkingLevel  string

	requestsInFlight int64
	totalRequests    int64
	totalTokens      int64
}

// NewGeminiProvider creates a Gemini-backed generator. apiKey must be
// non-empty; model names default to the 2.5 Flash/Pro family when empty.
func NewGeminiProvider(ctx context.Context, apiKey string, models ModelSet, enableThinking bool, thinkingLevel string) (*GeminiProvider, error) {
	timer := logging.StartTimer(logging.CategoryGenAI, "NewGeminiProvider")
	defer timer.Stop()

	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if models.Fast == "" {
		models.Fast = "gemini-2.5-flash-lite"
	}
	if models.Balanced == "" {
		models.Balanced = "gemini-2.5-flash"
	}
	if models.Quality == "" {
		models.Quality = "gemini-2.5-pro"
	}
	if thinkingLevel == "" {
		thinkingLevel = "high"
	}

	client, err := googlegenai.NewClient(ctx, &googlegenai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	logging.Get(logging.CategoryGenAI).Info("gemini provider ready: fast=%s balanced=%s quality=%s",
		models.Fast, models.Balanced, models.Quality)

	return &GeminiProvider{
		client:         client,
		models:         models,
		enableThinking: enableThinking,
		thinkingLevel:  thinkingLevel,
	}, nil
}

// NewDefaultGeminiProvider wires up the standard model set from a single
// model name override (used when a host only configures one model).
func NewDefaultGeminiProvider(ctx context.Context, apiKey, model string, enableThinking bool, thinkingLevel string) (*GeminiProvider, error) {
	set := ModelSet{Fast: model, Balanced: model, Quality: model}
	return NewGeminiProvider(ctx, apiKey, set, enableThinking, thinkingLevel)
}

// Capabilities reports that Gemini covers all four capabilities at all three
// quality tiers (the host may still route specific capabilities elsewhere).
func (g *GeminiProvider) Capabilities() map[Capability]map[Quality]bool {
	all := map[Quality]bool{QualityFast: true, QualityBalanced: true, QualityQuality: true}
	return map[Capability]map[Quality]bool{
		CapabilityExtraction: all,
		CapabilityReasoning:  all,
		CapabilitySynthesis:  all,
		CapabilityValidation: all,
	}
}

func (g *GeminiProvider) modelFor(quality Quality) string {
	switch quality {
	case QualityFast:
		return g.models.Fast
	case QualityQuality:
		return g.models.Quality
	default:
		return g.models.Balanced
	}
}

// Generate calls Gemini's GenerateContent API with the requested params.
func (g *GeminiProvider) Generate(ctx context.Context, prompt string, capability Capability, quality Quality, params Params) (Result, error) {
	atomic.AddInt64(&g.requestsInFlight, 1)
	defer atomic.AddInt64(&g.requestsInFlight, -1)

	model := g.modelFor(quality)
	timer := logging.StartTimer(logging.CategoryGenAI, "Generate:"+model)
	defer timer.Stop()

	cfg := &googlegenai.GenerateContentConfig{}
	if params.Temperature > 0 {
		t := float32(params.Temperature)
		cfg.Temperature = &t
	}
	if params.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(params.MaxTokens)
	}
	if len(params.Stop) > 0 {
		cfg.StopSequences = params.Stop
	}
	if g.enableThinking && quality == QualityQuality {
		cfg.ThinkingConfig = &googlegenai.ThinkingConfig{
			IncludeThoughts: false,
		}
	}

	contents := []*googlegenai.Content{
		googlegenai.NewContentFromText(prompt, googlegenai.RoleUser),
	}

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, model, contents, cfg)
	latency := time.Since(start)

	atomic.AddInt64(&g.totalRequests, 1)

	if err != nil {
		logging.Get(logging.CategoryGenAI).Error("generate failed for capability=%s quality=%s model=%s: %v",
			capability, quality, model, err)
		return Result{}, fmt.Errorf("gemini generate failed: %w", err)
	}

	text := resp.Text()
	tokens := 0
	if resp.UsageMetadata != nil {
		tokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	atomic.AddInt64(&g.totalTokens, int64(tokens))

	return Result{
		Content:    text,
		ModelID:    model,
		TokensUsed: tokens,
		LatencyMs:  latency.Milliseconds(),
		Metadata: map[string]interface{}{
			"capability": string(capability),
			"quality":    string(quality),
		},
	}, nil
}

// IsAvailable reports whether the client was constructed successfully.
func (g *GeminiProvider) IsAvailable() bool {
	return g.client != nil
}

// ResourceUsage reports introspection-only usage counters.
func (g *GeminiProvider) ResourceUsage() ResourceUsage {
	return ResourceUsage{
		RequestsInFlight: int(atomic.LoadInt64(&g.requestsInFlight)),
		TotalTokensUsed:  atomic.LoadInt64(&g.totalTokens),
		TotalRequests:    atomic.LoadInt64(&g.totalRequests),
	}
}
