// Package skill defines PRISM's primary entity: a Markdown document with a
// structured YAML header, plus the invariants and (de)serialization rules
// from spec.md §3 and §6.
package skill

import (
	"fmt"
	"strings"
	"time"

	"github.com/antigravity-dev/prism/internal/prismerr"
	"github.com/antigravity-dev/prism/internal/tokens"
	"gopkg.in/yaml.v3"
)

// Type is one of the four kinds of Skill document.
type Type string

const (
	TypeSkill    Type = "skill"
	TypePattern  Type = "pattern"
	TypeGotcha   Type = "gotcha"
	TypeDecision Type = "decision"
)

func (t Type) valid() bool {
	switch t {
	case TypeSkill, TypePattern, TypeGotcha, TypeDecision:
		return true
	}
	return false
}

// Scope is global (reusable anywhere) or project (tied to project_origin).
type Scope string

const (
	ScopeGlobal  Scope = "global"
	ScopeProject Scope = "project"
)

func (s Scope) valid() bool {
	return s == ScopeGlobal || s == ScopeProject
}

// Status is the lifecycle state of a Skill.
type Status string

const (
	StatusActive      Status = "active"
	StatusDeprecated  Status = "deprecated"
	StatusConflicted  Status = "conflicted"
	StatusNeedsReview Status = "needs_review"
)

func (s Status) valid() bool {
	switch s {
	case StatusActive, StatusDeprecated, StatusConflicted, StatusNeedsReview:
		return true
	}
	return false
}

// VerifiedBy records who attested the Skill.
type VerifiedBy string

const (
	VerifiedByHuman VerifiedBy = "human"
	VerifiedByAgent VerifiedBy = "agent"
)

func (v VerifiedBy) valid() bool {
	return v == VerifiedByHuman || v == VerifiedByAgent
}

// Header holds the structured fields from spec.md §3. Unknown keys
// encountered on load are preserved in Extra and re-emitted verbatim on
// write, per Design Notes §9's "fixed struct plus side-mapping" guidance.
type Header struct {
	SkillID       string     `yaml:"skill_id"`
	Type          Type       `yaml:"type"`
	Title         string     `yaml:"title,omitempty"`
	KeyInsight    string     `yaml:"key_insight,omitempty"`
	DomainTags    []string   `yaml:"domain_tags"`
	Scope         Scope      `yaml:"scope"`
	StackContext  []string   `yaml:"stack_context,omitempty"`
	Created       string     `yaml:"created"`
	LastUsed      string     `yaml:"last_used"`
	ReuseCount    int        `yaml:"reuse_count"`
	ProjectOrigin string     `yaml:"project_origin,omitempty"`
	Status        Status     `yaml:"status"`
	VerifiedBy    VerifiedBy `yaml:"verified_by"`

	Extra map[string]interface{} `yaml:"-"`
}

// Skill is the full document: structured header plus free-form body.
type Skill struct {
	Header Header
	Body   string
}

const dateLayout = "2006-01-02"

// Validate checks the invariants from spec.md §3 that can be verified
// locally (global uniqueness of skill_id is the Store's job, not the
// document's).
func (s *Skill) Validate() error {
	h := s.Header
	if h.SkillID == "" {
		return prismerr.InvalidInput("skill_id is required")
	}
	if !isKebabCase(h.SkillID) {
		return prismerr.InvalidInput("skill_id %q must be stable kebab-case", h.SkillID)
	}
	if !h.Type.valid() {
		return prismerr.InvalidInput("type %q is not one of skill/pattern/gotcha/decision", h.Type)
	}
	if len(h.DomainTags) == 0 {
		return prismerr.InvalidInput("domain_tags must be non-empty")
	}
	if !h.Scope.valid() {
		return prismerr.InvalidInput("scope %q must be global or project", h.Scope)
	}
	if h.Scope == ScopeProject && h.ProjectOrigin == "" {
		return prismerr.InvalidInput("scope=project requires project_origin")
	}
	if !h.Status.valid() {
		return prismerr.InvalidInput("status %q is not a recognized value", h.Status)
	}
	if !h.VerifiedBy.valid() {
		return prismerr.InvalidInput("verified_by %q must be human or agent", h.VerifiedBy)
	}
	if h.ReuseCount < 0 {
		return prismerr.InvalidInput("reuse_count must be >= 0")
	}

	created, err := time.Parse(dateLayout, h.Created)
	if err != nil {
		return prismerr.InvalidInput("created %q is not a valid date: %v", h.Created, err)
	}
	lastUsed, err := time.Parse(dateLayout, h.LastUsed)
	if err != nil {
		return prismerr.InvalidInput("last_used %q is not a valid date: %v", h.LastUsed, err)
	}
	if lastUsed.Before(created) {
		return prismerr.InvalidInput("last_used (%s) must be >= created (%s)", h.LastUsed, h.Created)
	}
	return nil
}

func isKebabCase(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '-' && i != 0 && i != len(s)-1:
		default:
			return false
		}
	}
	return true
}

// FileName returns the on-disk file name derived from skill_id, per spec.md
// §3's "the on-disk file name is derived from skill_id and its type".
func (s *Skill) FileName() string {
	return s.Header.SkillID + ".md"
}

// Directory returns the subdirectory under the memory root this Skill's type
// is stored in (skills/, gotchas/, decisions/; patterns share skills/).
func (t Type) Directory() string {
	switch t {
	case TypeGotcha:
		return "gotchas"
	case TypeDecision:
		return "decisions"
	default:
		return "skills"
	}
}

// Marshal renders the Skill to its on-disk Markdown form: a `---`-fenced YAML
// header followed by the body, byte-for-byte reproducible given the same
// Header and Body (round-trip invariant, spec.md §8).
func Marshal(s *Skill) ([]byte, error) {
	node, err := headerToNode(s.Header)
	if err != nil {
		return nil, prismerr.Wrap(prismerr.KindInvalidInput, err, "marshal header")
	}

	yamlBytes, err := yaml.Marshal(node)
	if err != nil {
		return nil, prismerr.Wrap(prismerr.KindInvalidInput, err, "marshal yaml")
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.Write(yamlBytes)
	b.WriteString("---\n\n")
	b.WriteString(strings.TrimRight(s.Body, "\n"))
	b.WriteString("\n")
	return []byte(b.String()), nil
}

// Parse reads the on-disk Markdown form produced by Marshal, tolerating and
// preserving unknown header keys.
func Parse(data []byte) (*Skill, error) {
	lines := strings.Split(string(data), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return nil, prismerr.InvalidInput("missing opening --- header fence")
	}

	closeLine := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			closeLine = i
			break
		}
	}
	if closeLine < 0 {
		return nil, prismerr.InvalidInput("missing closing --- header fence")
	}

	headerText := strings.Join(lines[1:closeLine], "\n")
	body := strings.Join(lines[closeLine+1:], "\n")
	body = strings.TrimPrefix(body, "\n")

	var raw map[string]interface{}
	if err := yaml.Unmarshal([]byte(headerText), &raw); err != nil {
		return nil, prismerr.Wrap(prismerr.KindInvalidInput, err, "parse header yaml")
	}

	header, err := nodeToHeader(raw)
	if err != nil {
		return nil, err
	}

	return &Skill{Header: header, Body: strings.TrimRight(body, "\n")}, nil
}

var knownKeys = map[string]bool{
	"skill_id": true, "type": true, "title": true, "key_insight": true,
	"domain_tags": true, "scope": true, "stack_context": true,
	"created": true, "last_used": true, "reuse_count": true,
	"project_origin": true, "status": true, "verified_by": true,
}

func nodeToHeader(raw map[string]interface{}) (Header, error) {
	var h Header
	bytes, err := yaml.Marshal(raw)
	if err != nil {
		return h, prismerr.Wrap(prismerr.KindInvalidInput, err, "re-marshal header for typed decode")
	}
	if err := yaml.Unmarshal(bytes, &h); err != nil {
		return h, prismerr.Wrap(prismerr.KindInvalidInput, err, "decode typed header fields")
	}

	extra := make(map[string]interface{})
	for k, v := range raw {
		if !knownKeys[k] {
			extra[k] = v
		}
	}
	if len(extra) > 0 {
		h.Extra = extra
	}
	return h, nil
}

func headerToNode(h Header) (map[string]interface{}, error) {
	bytes, err := yaml.Marshal(h)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if err := yaml.Unmarshal(bytes, &out); err != nil {
		return nil, err
	}
	for k, v := range h.Extra {
		out[k] = v
	}
	return out, nil
}

// RenderedSize approximates the token count of this Skill's full rendered
// section (header line + body) the way it would appear in an injected
// artifact, using the 4-chars-per-token estimator from spec.md §4.3.
func RenderedSize(s *Skill, charsPerToken float64) int {
	return tokens.EstimateWithRatio(Render(s), charsPerToken)
}

// Render returns the canonical Markdown section for this Skill: title,
// type, skill_id, domain_tags, then body. The Context Injector emits this
// same text verbatim into its artifact, so RenderedSize's estimate always
// matches what actually gets written (spec.md §4.3).
func Render(s *Skill) string {
	return renderSection(s)
}

func renderSection(s *Skill) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n", displayTitle(s))
	fmt.Fprintf(&b, "- type: %s\n- skill_id: %s\n- domain_tags: %s\n\n",
		s.Header.Type, s.Header.SkillID, strings.Join(s.Header.DomainTags, ", "))
	b.WriteString(s.Body)
	return b.String()
}

func displayTitle(s *Skill) string {
	if s.Header.Title != "" {
		return s.Header.Title
	}
	return s.Header.SkillID
}
