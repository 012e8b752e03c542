// Package genai provides the generator abstraction (C1): a capability- and
// quality-tagged text generation interface the core consumes, plus a
// concrete provider backed by Google's Gemini API.
package genai

import (
	"context"
	"fmt"
)

// Capability names a kind of generation task the core requests.
type Capability string

const (
	CapabilityExtraction Capability = "extraction"
	CapabilityReasoning  Capability = "reasoning"
	CapabilitySynthesis  Capability = "synthesis"
	CapabilityValidation Capability = "validation"
)

// Quality names a speed/quality tradeoff tier.
type Quality string

const (
	QualityFast     Quality = "fast"
	QualityBalanced Quality = "balanced"
	QualityQuality  Quality = "quality"
)

// Params carries generation tuning. Zero values mean "provider default".
type Params struct {
	Temperature float64
	MaxTokens   int
	Stop        []string
}

// Result is the host-agnostic generation response.
type Result struct {
	Content    string
	ModelID    string
	TokensUsed int
	LatencyMs  int64
	Metadata   map[string]interface{}
}

// ResourceUsage reports introspection-only resource consumption.
type ResourceUsage struct {
	RequestsInFlight int
	TotalTokensUsed  int64
	TotalRequests    int64
}

// Generator is the interface the core consumes from the host (C1).
type Generator interface {
	// Capabilities reports the capability -> quality tiers this generator
	// claims to support.
	Capabilities() map[Capability]map[Quality]bool

	// Generate produces content for the given prompt at the requested
	// capability and quality.
	Generate(ctx context.Context, prompt string, capability Capability, quality Quality, params Params) (Result, error)

	// IsAvailable reports whether the generator is currently usable.
	IsAvailable() bool

	// ResourceUsage reports introspection-only usage counters.
	ResourceUsage() ResourceUsage
}

// ErrUnsupportedCapability is returned when a generator is asked for a
// capability/quality combination it does not claim to support.
type ErrUnsupportedCapability struct {
	Capability Capability
	Quality    Quality
}

func (e *ErrUnsupportedCapability) Error() string {
	return fmt.Sprintf("generator does not support capability=%s quality=%s", e.Capability, e.Quality)
}

// Supports is a convenience check against a capability map.
func Supports(caps map[Capability]map[Quality]bool, capability Capability, quality Quality) bool {
	qs, ok := caps[capability]
	if !ok {
		return false
	}
	return qs[quality]
}
