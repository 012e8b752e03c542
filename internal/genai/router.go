package genai

import (
	"context"
	"fmt"

	"sovereign-research-orchestrator/internal/logging"
)

// Router addresses multiple named generators and falls back to the next one
// in priority order when the preferred provider is unavailable or errors.
type Router struct {
	providers []namedProvider
}

type namedProvider struct {
	name string
	gen  Generator
}

// NewRouter creates an empty router. Providers are added with Register and
// tried in registration order (first registered is tried first).
func NewRouter() *Router {
	return &Router{}
}

// Register adds a provider under a name, at the end of the fallback chain.
func (r *Router) Register(name string, gen Generator) {
	r.providers = append(r.providers, namedProvider{name: name, gen: gen})
}

// Generate tries providers in registration order, skipping ones that are
// unavailable or don't claim the requested capability/quality, and falling
// back to the next on error.
func (r *Router) Generate(ctx context.Context, prompt string, capability Capability, quality Quality, params Params) (Result, error) {
	var lastErr error
	tried := 0

	for _, p := range r.providers {
		if !p.gen.IsAvailable() {
			continue
		}
		if !Supports(p.gen.Capabilities(), capability, quality) {
			continue
		}
		tried++
		res, err := p.gen.Generate(ctx, prompt, capability, quality, params)
		if err == nil {
			return res, nil
		}
		lastErr = err
		logging.Audit().GeneratorFallback(string(capability), fmt.Sprintf("%s: %v", p.name, err))
	}

	if tried == 0 {
		return Result{}, &ErrUnsupportedCapability{Capability: capability, Quality: quality}
	}
	return Result{}, fmt.Errorf("all providers failed for capability=%s quality=%s: %w", capability, quality, lastErr)
}

// IsAvailable reports whether any registered provider is available.
func (r *Router) IsAvailable() bool {
	for _, p := range r.providers {
		if p.gen.IsAvailable() {
			return true
		}
	}
	return false
}

// Capabilities merges the capability sets of every registered provider.
func (r *Router) Capabilities() map[Capability]map[Quality]bool {
	merged := make(map[Capability]map[Quality]bool)
	for _, p := range r.providers {
		for cap, qualities := range p.gen.Capabilities() {
			if merged[cap] == nil {
				merged[cap] = make(map[Quality]bool)
			}
			for q, ok := range qualities {
				if ok {
					merged[cap][q] = true
				}
			}
		}
	}
	return merged
}

// ResourceUsage sums usage across registered providers.
func (r *Router) ResourceUsage() ResourceUsage {
	var total ResourceUsage
	for _, p := range r.providers {
		u := p.gen.ResourceUsage()
		total.RequestsInFlight += u.RequestsInFlight
		total.TotalTokensUsed += u.TotalTokensUsed
		total.TotalRequests += u.TotalRequests
	}
	return total
}
