// Package ranker implements PRISM's hybrid scorer: given a query, it merges
// independent lexical and semantic candidate sets from the Skill Store and
// combines five normalized component scores into one ranked sequence
// (spec.md §4.2).
package ranker

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/antigravity-dev/prism/internal/prismerr"
	"github.com/antigravity-dev/prism/internal/skill"
	"github.com/antigravity-dev/prism/internal/store"
)

// recencyWindowDays is the number of days after which a Skill's recency
// component bottoms out at 0 (spec.md §4.2).
const recencyWindowDays = 180

const dateLayout = "2006-01-02"

// Weights controls how the five component scores combine into one. Defaults
// come from spec.md §4.2; callers (CLI flags, Task Augmenter, Event Router,
// or a Project.Override.Ranker) may supply their own as long as every field
// stays non-negative.
type Weights struct {
	Lex     float64
	Sem     float64
	Tag     float64
	Reuse   float64
	Recency float64
}

// DefaultWeights returns spec.md §4.2's defaults: 1.0, 1.0, 3.0, 2.0, 1.5.
func DefaultWeights() Weights {
	return Weights{Lex: 1.0, Sem: 1.0, Tag: 3.0, Reuse: 2.0, Recency: 1.5}
}

// Validate rejects any negative weight.
func (w Weights) Validate() error {
	named := []struct {
		name string
		val  float64
	}{
		{"lex", w.Lex}, {"sem", w.Sem}, {"tag", w.Tag}, {"reuse", w.Reuse}, {"recency", w.Recency},
	}
	for _, n := range named {
		if n.val < 0 {
			return prismerr.InvalidInput("ranker weight %q must be >= 0, got %v", n.name, n.val)
		}
	}
	return nil
}

// Query is the Ranker's input (spec.md §4.2).
type Query struct {
	// Text is the textual query; may be empty.
	Text string
	// Tags is the context-tag set: project stack plus explicit focus tags.
	Tags []string
	// Limit bounds the number of RankedEntries returned; <= 0 defaults to 20.
	Limit int
	// Type restricts results to one Skill type; empty disables the filter.
	Type skill.Type
}

// Components holds the five per-candidate scores that fed a RankedEntry's
// combined Score, useful for debugging and for the CLI's verbose output.
type Components struct {
	Lex     float64
	Sem     float64
	Tag     float64
	Reuse   float64
	Recency float64
}

// RankedEntry is one output row: a Skill plus its combined score and the
// components that produced it.
type RankedEntry struct {
	Skill      *skill.Skill
	Score      float64
	Components Components
}

// Rank implements spec.md §4.2 end to end against a live Store: independent
// lexical and semantic retrieval, normalize-then-merge by skill_id, five
// component scores, weighted combination, deprecated/conflicted filtering,
// and stable tie-breaking (higher reuse_count, then smaller skill_id).
func Rank(ctx context.Context, st *store.Store, q Query, weights Weights) ([]RankedEntry, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}

	lexHits, err := st.LexicalSearch(q.Text, limit)
	if err != nil {
		return nil, err
	}
	semHits, err := st.SemanticSearch(ctx, q.Text, limit)
	if err != nil {
		return nil, err
	}

	rawLex := make(map[string]float64, len(lexHits))
	rawSem := make(map[string]float64, len(semHits))
	seen := make(map[string]bool, len(lexHits)+len(semHits))
	var order []string

	for _, h := range lexHits {
		rawLex[h.SkillID] = h.Score
		if !seen[h.SkillID] {
			seen[h.SkillID] = true
			order = append(order, h.SkillID)
		}
	}
	for _, h := range semHits {
		rawSem[h.SkillID] = h.Score
		if !seen[h.SkillID] {
			seen[h.SkillID] = true
			order = append(order, h.SkillID)
		}
	}

	normLex := normalize(rawLex)
	normSem := normalize(rawSem)

	skills := make(map[string]*skill.Skill, len(order))
	maxReuse := 0
	for _, id := range order {
		sk, err := st.Get(id)
		if err != nil {
			// Index referenced a skill the Store can no longer resolve on disk
			// (stale index, concurrent delete); drop it rather than fail the
			// whole ranking pass.
			continue
		}
		if sk.Header.Status == skill.StatusDeprecated || sk.Header.Status == skill.StatusConflicted {
			continue
		}
		if q.Type != "" && sk.Header.Type != q.Type {
			continue
		}
		skills[id] = sk
		if sk.Header.ReuseCount > maxReuse {
			maxReuse = sk.Header.ReuseCount
		}
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)

	entries := make([]RankedEntry, 0, len(skills))
	for _, id := range order {
		sk, ok := skills[id]
		if !ok {
			continue
		}
		comp := Components{
			Lex:     normLex[id],
			Sem:     normSem[id],
			Tag:     tagAffinity(q.Tags, sk),
			Reuse:   reuseScore(sk.Header.ReuseCount, maxReuse),
			Recency: recencyScore(sk.Header.LastUsed, today),
		}
		score := weights.Lex*comp.Lex + weights.Sem*comp.Sem + weights.Tag*comp.Tag +
			weights.Reuse*comp.Reuse + weights.Recency*comp.Recency
		entries = append(entries, RankedEntry{Skill: sk, Score: score, Components: comp})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		ri, rj := entries[i].Skill.Header.ReuseCount, entries[j].Skill.Header.ReuseCount
		if ri != rj {
			return ri > rj
		}
		return entries[i].Skill.Header.SkillID < entries[j].Skill.Header.SkillID
	})

	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// normalize divides each raw score by the set's maximum so the best hit in a
// set is always 1 (a set whose maximum is <= 0 yields no scores); candidates absent from raw are left at the zero value by the
// caller's map lookup, matching spec.md §4.2's "sem fixed 0 when off" rule.
func normalize(raw map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(raw))
	if len(raw) == 0 {
		return out
	}
	max := math.Inf(-1)
	for _, v := range raw {
		if v > max {
			max = v
		}
	}
	if max <= 0 {
		return out
	}
	for k, v := range raw {
		out[k] = v / max
	}
	return out
}

func tagAffinity(queryTags []string, sk *skill.Skill) float64 {
	if len(queryTags) == 0 {
		return 0
	}
	present := make(map[string]bool, len(sk.Header.DomainTags)+len(sk.Header.StackContext))
	for _, t := range sk.Header.DomainTags {
		present[strings.ToLower(t)] = true
	}
	for _, t := range sk.Header.StackContext {
		present[strings.ToLower(t)] = true
	}
	hit := 0
	for _, qt := range queryTags {
		if present[strings.ToLower(qt)] {
			hit++
		}
	}
	return float64(hit) / float64(len(queryTags))
}

func reuseScore(reuseCount, maxReuse int) float64 {
	if maxReuse <= 0 {
		return 0
	}
	return math.Log(1+float64(reuseCount)) / math.Log(1+float64(maxReuse))
}

func recencyScore(lastUsed string, today time.Time) float64 {
	t, err := time.Parse(dateLayout, lastUsed)
	if err != nil {
		return 0
	}
	days := today.Sub(t).Hours() / 24
	if days < 0 {
		days = 0
	}
	ratio := days / recencyWindowDays
	if ratio > 1 {
		ratio = 1
	}
	return 1 - ratio
}
