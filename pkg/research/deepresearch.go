package research

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/carcerr"
	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/llm"
	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/models"
)

const researchSourceAuthority = "research"

// depthLabels maps the 1-6 depth level from spec.md §4.J onto the
// brief...exhaustive scale the research prompt names explicitly.
var depthLabels = map[int]string{
	1: "brief",
	2: "light",
	3: "moderate",
	4: "thorough",
	5: "deep",
	6: "exhaustive",
}

const researchSystemPrompt = `You are a research assistant producing a single long-form structured finding for a podcast episode.
Respond with a single JSON object only, no surrounding prose, matching exactly this shape:
{"overview": string, "key_findings": [string, ...], "detailed_body": string, "conclusion": string, "sources": [string, ...], "confidence": number between 0 and 1}`

// Artifact is the long-form structured result Deep Research returns
// for one question (spec.md §4.J).
type Artifact struct {
	Overview     string   `json:"overview"`
	KeyFindings  []string `json:"key_findings"`
	DetailedBody string   `json:"detailed_body"`
	Conclusion   string   `json:"conclusion"`
	Sources      []string `json:"sources"`
	Confidence   float64  `json:"confidence"`
}

// Researcher wraps an llm.Provider as the single external LLM-backed
// research endpoint the orchestrator calls for question-classified
// requests.
type Researcher struct {
	provider llm.Provider
}

// NewResearcher builds a Researcher atop an already-constructed
// llm.Provider (see llm.NewProvider).
func NewResearcher(provider llm.Provider) *Researcher {
	return &Researcher{provider: provider}
}

// Research issues a single-shot deep-research call for query at the
// given depth (1-6, clamped) with optional focus areas, and returns
// the resulting Artifact.
func (r *Researcher) Research(ctx context.Context, query string, depth int, focusAreas []string) (Artifact, error) {
	if r.provider == nil {
		return Artifact{}, carcerr.Internal("research: no provider configured", nil)
	}

	prompt := buildResearchPrompt(query, depth, focusAreas)

	stream, err := r.provider.Complete(ctx, []llm.Message{
		{Role: "system", Content: researchSystemPrompt},
		{Role: "user", Content: prompt},
	}, nil)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return Artifact{}, carcerr.Cancelled("research: context cancelled")
		}
		return Artifact{}, carcerr.Transport("deep_research", "completion request failed", err)
	}

	var body strings.Builder
	for {
		chunk, recvErr := stream.Recv()
		if recvErr != nil {
			if errors.Is(recvErr, io.EOF) {
				break
			}
			_ = stream.Close()
			return Artifact{}, carcerr.Transport("deep_research", "stream read failed", recvErr)
		}
		body.WriteString(chunk.Content)
	}
	_ = stream.Close()

	artifact, err := parseArtifact(body.String())
	if err != nil {
		return Artifact{}, carcerr.ParseFailure("deep_research", "could not parse artifact", err)
	}
	return artifact, nil
}

func buildResearchPrompt(query string, depth int, focusAreas []string) string {
	label := depthLabels[clampDepth(depth)]
	var b strings.Builder
	fmt.Fprintf(&b, "Research question: %s\n", query)
	fmt.Fprintf(&b, "Depth: %s\n", label)
	if len(focusAreas) > 0 {
		fmt.Fprintf(&b, "Focus areas: %s\n", strings.Join(focusAreas, ", "))
	}
	return b.String()
}

func clampDepth(depth int) int {
	if depth < 1 {
		return 1
	}
	if depth > 6 {
		return 6
	}
	return depth
}

// parseArtifact extracts the JSON object from a raw LLM completion,
// tolerating leading/trailing prose some providers add despite the
// system prompt's instruction not to.
func parseArtifact(raw string) (Artifact, error) {
	trimmed := strings.TrimSpace(raw)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end < start {
		return Artifact{}, errors.New("no JSON object found in completion")
	}
	var artifact Artifact
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), &artifact); err != nil {
		return Artifact{}, err
	}
	return artifact, nil
}

// ToCandidateItem wraps a Deep Research artifact as a single
// CandidateItem with source authority "research" (spec.md §4.J), ready
// to flow through the same Quality/Standout scoring pipeline as any
// other candidate.
func ToCandidateItem(query string, a Artifact) models.CandidateItem {
	var body strings.Builder
	body.WriteString(a.Overview)
	if len(a.KeyFindings) > 0 {
		body.WriteString("\n\nKey findings:\n")
		for _, f := range a.KeyFindings {
			body.WriteString("- " + f + "\n")
		}
	}
	if a.DetailedBody != "" {
		body.WriteString("\n" + a.DetailedBody)
	}
	if a.Conclusion != "" {
		body.WriteString("\n\n" + a.Conclusion)
	}

	item := models.CandidateItem{
		Title:           query,
		Body:            body.String(),
		SourceName:      "deep_research",
		SourceAuthority: researchSourceAuthority,
		Topics:          a.Sources,
	}
	return item
}
