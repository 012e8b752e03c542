// Package extract implements the fact extractor (C4): turning free text into
// candidate SPO triplets via the generator, with a multi-stage parse cascade
// robust to the many ways a model can fail to return clean JSON.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"sovereign-research-orchestrator/internal/genai"
	"sovereign-research-orchestrator/internal/logging"
	"sovereign-research-orchestrator/internal/store"
)

const extractionPromptTemplate = `Task: extract facts from the text below as JSON triplets.

Text to analyze:
%s

Instructions:
1. Extract key facts as Subject-Predicate-Object triplets.
2. Subject = main entity, Predicate = relationship, Object = value.
3. Assign a confidence between 0.0 and 1.0 for each fact.
4. Return ONLY a valid JSON array, no other text.

Format (strict JSON array):
[{"subject": "entity", "predicate": "relation", "object": "value", "confidence": 0.8}]

Example:
Input: "Solar panels reduce CO2 emissions by up to 95%%."
Output: [{"subject": "solar panels", "predicate": "reduce", "object": "CO2 emissions", "confidence": 0.9}, {"subject": "CO2 reduction", "predicate": "percentage", "object": "95%%", "confidence": 0.85}]

Now extract from the text above. Return ONLY the JSON array:`

// Context supplies the provenance inputs the extractor needs to record.
type Context struct {
	SourceID string
	NodeID   string
}

// Options tunes extraction thresholds.
type Options struct {
	MinTextLength int     // default 10
	MinConfidence float64 // default 0.5
	MaxTriplets   int     // default 20
}

// DefaultOptions returns the spec's default thresholds.
func DefaultOptions() Options {
	return Options{MinTextLength: 10, MinConfidence: 0.5, MaxTriplets: 20}
}

// Extractor runs the extraction algorithm against a generator.
type Extractor struct {
	gen  genai.Generator
	opts Options
}

// New creates an Extractor.
func New(gen genai.Generator, opts Options) *Extractor {
	if opts.MinTextLength == 0 {
		opts.MinTextLength = 10
	}
	if opts.MinConfidence == 0 {
		opts.MinConfidence = 0.5
	}
	if opts.MaxTriplets == 0 {
		opts.MaxTriplets = 20
	}
	return &Extractor{gen: gen, opts: opts}
}

type candidate struct {
	Subject    string  `json:"subject"`
	Predicate  string  `json:"predicate"`
	Object     string  `json:"object"`
	Confidence float64 `json:"confidence"`
}

// Extract runs the full C4 algorithm: reject too-short input, prompt the
// generator, parse its response through the fallback cascade, filter by
// confidence, and build valid Bronze triplets.
func (e *Extractor) Extract(ctx context.Context, text string, extractCtx Context, quality genai.Quality) ([]*store.Triplet, error) {
	timer := logging.StartTimer(logging.CategoryExtract, "Extract")
	defer timer.Stop()

	if len(strings.TrimSpace(text)) < e.opts.MinTextLength {
		return nil, nil
	}

	truncated := text
	if len(truncated) > 2000 {
		truncated = truncated[:2000]
	}
	prompt := fmt.Sprintf(extractionPromptTemplate, truncated)

	result, err := e.gen.Generate(ctx, prompt, genai.CapabilityExtraction, quality, genai.Params{Temperature: 0.2, MaxTokens: 1500})
	if err != nil {
		logging.Get(logging.CategoryExtract).Warn("generator call failed: %v", err)
		return nil, nil
	}

	candidates := parseResponse(result.Content)

	var triplets []*store.Triplet
	for i, c := range candidates {
		if len(triplets) >= e.opts.MaxTriplets {
			break
		}
		conf := store.ClampConfidence(c.Confidence)
		if conf < e.opts.MinConfidence {
			continue
		}

		t := &store.Triplet{
			Subject:    strings.TrimSpace(c.Subject),
			Predicate:  strings.TrimSpace(c.Predicate),
			Object:     strings.TrimSpace(c.Object),
			Confidence: conf,
			Tier:       store.TierBronze,
			Provenance: store.Provenance{
				SourceID:         extractCtx.SourceID,
				ExtractionMethod: store.ExtractionLLMStructured,
				ModelID:          result.ModelID,
			},
			Metadata: map[string]interface{}{
				"node_id":          extractCtx.NodeID,
				"extraction_index": i,
			},
		}
		if err := t.Validate(); err != nil {
			continue
		}
		triplets = append(triplets, t)
	}

	return triplets, nil
}

var codeFenceRe = regexp.MustCompile("```[a-zA-Z]*\n?")

// parseResponse runs the multi-stage parse cascade described in spec §4.2:
// strict JSON array, then fence-stripped retry, then outermost bracket scan,
// then a line-wise key:value fallback.
func parseResponse(raw string) []candidate {
	text := strings.TrimSpace(raw)

	if c, ok := tryParseArray(text); ok {
		return c
	}

	stripped := strings.TrimSpace(codeFenceRe.ReplaceAllString(text, ""))
	if c, ok := tryParseArray(stripped); ok {
		return c
	}

	start := strings.Index(stripped, "[")
	end := strings.LastIndex(stripped, "]")
	if start != -1 && end > start {
		if c, ok := tryParseArray(stripped[start : end+1]); ok {
			return c
		}
	}

	return parseLineFallback(stripped)
}

func tryParseArray(text string) ([]candidate, bool) {
	var direct []candidate
	if err := json.Unmarshal([]byte(text), &direct); err == nil {
		return direct, true
	}

	var wrapped struct {
		Triplets []candidate `json:"triplets"`
	}
	if err := json.Unmarshal([]byte(text), &wrapped); err == nil && wrapped.Triplets != nil {
		return wrapped.Triplets, true
	}

	return nil, false
}

var keyLineRe = regexp.MustCompile(`(?i)(subject|predicate|object|confidence)\s*:\s*(.+)`)

// parseLineFallback accumulates subject/predicate/object/confidence fields
// per text block. A block ends at a blank line, when a field repeats, or at
// the end of the text; a block missing any of the three core fields is
// dropped.
func parseLineFallback(text string) []candidate {
	var out []candidate
	current := map[string]string{}

	flush := func() {
		if current["subject"] == "" || current["predicate"] == "" || current["object"] == "" {
			current = map[string]string{}
			return
		}
		conf := 0.5
		if v, ok := current["confidence"]; ok {
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				conf = f
			}
		}
		out = append(out, candidate{
			Subject:    current["subject"],
			Predicate:  current["predicate"],
			Object:     current["object"],
			Confidence: conf,
		})
		current = map[string]string{}
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			flush()
			continue
		}
		m := keyLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		key := strings.ToLower(m[1])
		value := strings.Trim(strings.TrimSpace(m[2]), `",`)
		if _, seen := current[key]; seen {
			flush()
		}
		current[key] = value
	}
	flush()

	return out
}
