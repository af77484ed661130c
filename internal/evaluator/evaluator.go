// Package evaluator is PRISM's optional Evaluator: it asks an external
// LLM whether a candidate Skill should be added, merged into an existing
// one, treated as redundant, or should invalidate an existing Skill
// (spec.md §4.8).
package evaluator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/antigravity-dev/prism/internal/logging"
	"github.com/antigravity-dev/prism/internal/prismerr"
	"github.com/antigravity-dev/prism/internal/skill"
)

// Verdict is the Evaluator's recommendation for a candidate Skill.
type Verdict string

const (
	VerdictAdd    Verdict = "ADD"
	VerdictUpdate Verdict = "UPDATE"
	VerdictNoop   Verdict = "NOOP"
	VerdictDelete Verdict = "DELETE"
)

func (v Verdict) valid() bool {
	switch v {
	case VerdictAdd, VerdictUpdate, VerdictNoop, VerdictDelete:
		return true
	}
	return false
}

// Result is the Evaluator's output. TargetSkillID is set for UPDATE (the
// Skill to merge into) and DELETE (the Skill the candidate invalidates);
// applying Result is left entirely to the caller — the Evaluator never
// mutates the store itself.
type Result struct {
	Verdict       Verdict `json:"verdict"`
	TargetSkillID string  `json:"target_skill_id,omitempty"`
	Reason        string  `json:"reason,omitempty"`
}

// Evaluator asks an LLM to judge a candidate Skill against the current
// store's near neighbors.
type Evaluator struct {
	client *genai.Client
	model  string
}

// New builds an Evaluator. An empty apiKey returns ConfigurationMissing, so
// a missing LLM credential disables the component instead of failing later.
func New(apiKey, model string) (*Evaluator, error) {
	if apiKey == "" {
		return nil, prismerr.ConfigurationMissing("evaluator requires an LLM API key")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, prismerr.Wrap(prismerr.KindExternalUnavailable, err, "create genai client for evaluator")
	}

	return &Evaluator{client: client, model: model}, nil
}

var responseSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"verdict": {
			Type: genai.TypeString,
			Enum: []string{string(VerdictAdd), string(VerdictUpdate), string(VerdictNoop), string(VerdictDelete)},
		},
		"target_skill_id": {Type: genai.TypeString},
		"reason":          {Type: genai.TypeString},
	},
	Required: []string{"verdict"},
}

// Evaluate asks the configured model to judge candidate against neighbors
// (the near-duplicate or conflicting Skills a caller has already retrieved
// from the store, typically via the Ranker) and returns one of
// ADD/UPDATE/NOOP/DELETE.
func (e *Evaluator) Evaluate(ctx context.Context, candidate *skill.Skill, neighbors []*skill.Skill) (Result, error) {
	timer := logging.StartTimer(logging.CategoryEvaluator, "Evaluate")
	defer timer.Stop()

	prompt := buildPrompt(candidate, neighbors)
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}

	resp, err := e.client.Models.GenerateContent(ctx, e.model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   responseSchema,
	})
	if err != nil {
		return Result{}, prismerr.Wrap(prismerr.KindExternalUnavailable, err, "evaluator generate content")
	}

	return parseResult(resp.Text())
}

// parseResult decodes the model's JSON response defensively: strict JSON
// first, falling back to extracting the first well-formed JSON object in
// the text (models occasionally wrap JSON in prose despite the schema
// constraint) before giving up.
func parseResult(text string) (Result, error) {
	var r Result
	if err := json.Unmarshal([]byte(text), &r); err == nil && r.Verdict.valid() {
		return r, nil
	}

	if start := strings.IndexByte(text, '{'); start >= 0 {
		if end := strings.LastIndexByte(text, '}'); end > start {
			if err := json.Unmarshal([]byte(text[start:end+1]), &r); err == nil && r.Verdict.valid() {
				return r, nil
			}
		}
	}

	return Result{}, prismerr.InvalidInput("evaluator returned an unparseable or invalid verdict: %q", text)
}

func buildPrompt(candidate *skill.Skill, neighbors []*skill.Skill) string {
	var b strings.Builder
	b.WriteString("You curate a shared memory store of reusable engineering Skills.\n")
	b.WriteString("Decide what to do with a candidate Skill given its closest existing neighbors.\n")
	b.WriteString("Respond with ADD if it's genuinely new, UPDATE if it should be merged into an\n")
	b.WriteString("existing Skill (give its skill_id as target_skill_id), NOOP if it's redundant\n")
	b.WriteString("with an existing Skill, or DELETE if it shows an existing Skill is now wrong\n")
	b.WriteString("(give that Skill's skill_id as target_skill_id).\n\n")

	fmt.Fprintf(&b, "## Candidate\n\n%s\n\n", skill.Render(candidate))

	b.WriteString("## Existing neighbors\n\n")
	if len(neighbors) == 0 {
		b.WriteString("(none)\n")
	}
	for _, n := range neighbors {
		fmt.Fprintf(&b, "%s\n\n", skill.Render(n))
	}

	return b.String()
}
