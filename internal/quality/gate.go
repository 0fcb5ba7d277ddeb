package quality

import (
	"sort"

	"github.com/cellarworks/enrich-cli/internal/model"
)

// Assessment is the outcome of running a field map through the gate.
type Assessment struct {
	Status model.Status `json:"status"`
	// Score is the weighted completeness against the COMPLETE level,
	// in [0,1].
	Score float64 `json:"score"`
	// Missing lists the fields that would advance the record to the
	// next status, sorted. Empty at COMPLETE.
	Missing []string `json:"missing,omitempty"`
}

// Gate evaluates field maps against immutable category rules. Assess is
// pure: the same inputs always produce the same assessment.
type Gate struct {
	rules Rules
}

func NewGate(rules Rules) *Gate {
	return &Gate{rules: rules}
}

// Assess determines the highest status level whose requirements the
// field map satisfies. A record that cannot satisfy SKELETON is
// REJECTED. COMPLETE additionally requires the weighted completeness
// score to reach the category threshold.
func (g *Gate) Assess(fields model.FieldMap, category model.Category) Assessment {
	cr := g.rules.For(category)
	exempt := toSet(cr.Exempt)
	score := completeness(fields, cr, exempt)

	for _, level := range levelLadder {
		rule, ok := cr.Levels[level]
		if !ok {
			continue
		}
		if !satisfies(fields, rule, cr.MinConfidence, exempt) {
			continue
		}
		if level == model.StatusComplete && score < cr.CompleteThreshold {
			continue
		}
		return Assessment{
			Status:  level,
			Score:   score,
			Missing: g.missingFor(fields, cr, level, exempt),
		}
	}
	return Assessment{
		Status:  model.StatusRejected,
		Score:   score,
		Missing: g.missingFor(fields, cr, model.StatusRejected, exempt),
	}
}

// satisfies reports whether the field map meets one level's rule.
// Exempt fields are treated as not required; an exemption that shrinks
// the any-of pool shrinks the count with it.
func satisfies(fields model.FieldMap, rule LevelRule, minConf float64, exempt map[string]bool) bool {
	for _, f := range rule.Required {
		if exempt[f] {
			continue
		}
		if !fields.Present(f, minConf) {
			return false
		}
	}
	pool, need := effectivePool(rule, exempt)
	have := 0
	for _, f := range pool {
		if fields.Present(f, minConf) {
			have++
		}
	}
	return have >= need
}

// effectivePool removes exempt fields from the any-of pool and shrinks
// the required count by one per removed field, capped at the remaining
// pool size.
func effectivePool(rule LevelRule, exempt map[string]bool) ([]string, int) {
	pool := make([]string, 0, len(rule.AnyOfPool))
	removed := 0
	for _, f := range rule.AnyOfPool {
		if exempt[f] {
			removed++
			continue
		}
		pool = append(pool, f)
	}
	need := rule.AnyOfCount - removed
	if need < 0 {
		need = 0
	}
	if need > len(pool) {
		need = len(pool)
	}
	return pool, need
}

// completeness is the weighted share of the COMPLETE level's
// requirements that are populated. Required fields score their
// configured weight; each needed any-of slot scores 1.0.
func completeness(fields model.FieldMap, cr CategoryRules, exempt map[string]bool) float64 {
	rule, ok := cr.Levels[model.StatusComplete]
	if !ok {
		return 0
	}
	weight := func(f string) float64 {
		if w, ok := cr.Weights[f]; ok {
			return w
		}
		return 1.0
	}
	var total, got float64
	for _, f := range rule.Required {
		if exempt[f] {
			continue
		}
		w := weight(f)
		total += w
		if fields.Present(f, cr.MinConfidence) {
			got += w
		}
	}
	pool, need := effectivePool(rule, exempt)
	have := 0
	for _, f := range pool {
		if fields.Present(f, cr.MinConfidence) {
			have++
		}
	}
	if have > need {
		have = need
	}
	total += float64(need)
	got += float64(have)
	if total == 0 {
		return 0
	}
	return got / total
}

// missingFor lists fields that would advance the record past the given
// status: unmet required fields of the next level, plus any-of pool
// candidates when the pool count falls short.
func (g *Gate) missingFor(fields model.FieldMap, cr CategoryRules, at model.Status, exempt map[string]bool) []string {
	next, ok := nextLevel(at)
	if !ok {
		return nil
	}
	rule, ok := cr.Levels[next]
	if !ok {
		return nil
	}
	seen := map[string]bool{}
	var missing []string
	add := func(f string) {
		if !seen[f] {
			seen[f] = true
			missing = append(missing, f)
		}
	}
	for _, f := range rule.Required {
		if exempt[f] || fields.Present(f, cr.MinConfidence) {
			continue
		}
		add(f)
	}
	pool, need := effectivePool(rule, exempt)
	have := 0
	for _, f := range pool {
		if fields.Present(f, cr.MinConfidence) {
			have++
		}
	}
	if have < need {
		for _, f := range pool {
			if !fields.Present(f, cr.MinConfidence) {
				add(f)
			}
		}
	}
	sort.Strings(missing)
	return missing
}

func nextLevel(at model.Status) (model.Status, bool) {
	for i := len(levelLadder) - 1; i >= 0; i-- {
		if levelLadder[i].Rank() > at.Rank() {
			return levelLadder[i], true
		}
	}
	return "", false
}

func toSet(fields []string) map[string]bool {
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}
