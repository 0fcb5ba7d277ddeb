// Package quality maps a field/confidence map to a discrete completeness
// status using category-aware, data-driven rules.
package quality

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/cellarworks/enrich-cli/internal/model"
)

// LevelRule is the requirement set for one status level. Each level is
// a superset of the one below it.
type LevelRule struct {
	Required   []string `yaml:"required"`
	AnyOfPool  []string `yaml:"any_of"`
	AnyOfCount int      `yaml:"any_of_count"`
}

// CategoryRules is the immutable rule set for one product category.
// Exemptions remove fields that products of the category legitimately
// lack (a blend has no single region or dominant cask type).
type CategoryRules struct {
	Levels            map[model.Status]LevelRule `yaml:"levels"`
	Exempt            []string                   `yaml:"exempt"`
	MinConfidence     float64                    `yaml:"min_confidence"`
	CompleteThreshold float64                    `yaml:"complete_threshold"`
	// Weights gives per-field completeness weight; unlisted fields and
	// any-of pool slots weigh 1.0.
	Weights map[string]float64 `yaml:"weights"`
}

// Rules holds all category rule sets plus a fallback.
type Rules struct {
	Categories map[string]CategoryRules `yaml:"categories"`
	Fallback   string                   `yaml:"fallback"`
}

// For resolves the rule set for a category, falling back first to the
// base category family (a "blended_whiskey" falls back to "whiskey"),
// then to the configured fallback.
func (r Rules) For(category model.Category) CategoryRules {
	key := string(category)
	if cr, ok := r.Categories[key]; ok {
		return cr
	}
	// Longest suffix wins, so colheita_tawny_port resolves to tawny_port
	// rather than port regardless of map order.
	best := ""
	for base := range r.Categories {
		if !strings.HasSuffix(key, "_"+base) && !strings.HasSuffix(key, base) {
			continue
		}
		if len(base) > len(best) || (len(base) == len(best) && base < best) {
			best = base
		}
	}
	if best != "" {
		return r.Categories[best]
	}
	return r.Categories[r.Fallback]
}

// LoadRules reads category rules from a YAML file.
func LoadRules(path string) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, eris.Wrapf(err, "quality: read rules %s", path)
	}
	var rules Rules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return Rules{}, eris.Wrapf(err, "quality: parse rules %s", path)
	}
	if len(rules.Categories) == 0 {
		return Rules{}, eris.Errorf("quality: rules file %s defines no categories", path)
	}
	if rules.Fallback == "" {
		for k := range rules.Categories {
			rules.Fallback = k
			break
		}
	}
	return rules, nil
}

// levelLadder is the evaluation order, highest first.
var levelLadder = []model.Status{
	model.StatusComplete,
	model.StatusEnriched,
	model.StatusBaseline,
	model.StatusPartial,
	model.StatusSkeleton,
}

// DefaultRules returns the built-in whiskey/port rule sets used when no
// rules file is configured.
func DefaultRules() Rules {
	whiskeyLevels := map[model.Status]LevelRule{
		model.StatusSkeleton: {Required: []string{"name"}},
		model.StatusPartial:  {Required: []string{"name", "brand"}},
		model.StatusBaseline: {
			Required:   []string{"name", "brand", "abv", "description"},
			AnyOfPool:  []string{"region", "age_statement", "cask_types", "country"},
			AnyOfCount: 2,
		},
		model.StatusEnriched: {
			Required:   []string{"name", "brand", "abv", "description", "tasting_notes"},
			AnyOfPool:  []string{"region", "age_statement", "cask_types", "country"},
			AnyOfCount: 3,
		},
		model.StatusComplete: {
			Required:   []string{"name", "brand", "abv", "description", "tasting_notes", "distillery"},
			AnyOfPool:  []string{"region", "age_statement", "cask_types", "country", "volume_ml", "bottler"},
			AnyOfCount: 4,
		},
	}

	portLevels := map[model.Status]LevelRule{
		model.StatusSkeleton: {Required: []string{"name"}},
		model.StatusPartial:  {Required: []string{"name", "brand"}},
		model.StatusBaseline: {
			Required:   []string{"name", "brand", "abv", "description"},
			AnyOfPool:  []string{"style", "vintage", "grape_varieties", "region"},
			AnyOfCount: 2,
		},
		model.StatusEnriched: {
			Required:   []string{"name", "brand", "abv", "description", "tasting_notes"},
			AnyOfPool:  []string{"style", "vintage", "grape_varieties", "region"},
			AnyOfCount: 3,
		},
		model.StatusComplete: {
			Required:   []string{"name", "brand", "abv", "description", "tasting_notes", "style"},
			AnyOfPool:  []string{"vintage", "grape_varieties", "region", "volume_ml", "bottling_year"},
			AnyOfCount: 3,
		},
	}

	base := func(levels map[model.Status]LevelRule, exempt ...string) CategoryRules {
		return CategoryRules{
			Levels:            levels,
			Exempt:            exempt,
			MinConfidence:     0.5,
			CompleteThreshold: 0.9,
			Weights: map[string]float64{
				"name":  2,
				"brand": 2,
				"abv":   1.5,
			},
		}
	}

	return Rules{
		Fallback: "whiskey",
		Categories: map[string]CategoryRules{
			"whiskey": base(whiskeyLevels),
			// Blends are sourced from many regions and cask programs;
			// neither attribute is a legitimate requirement.
			"blended_whiskey": base(whiskeyLevels, "region", "cask_types"),
			"port":            base(portLevels),
			// Aged tawnies carry an age indication instead of a vintage.
			"tawny_port": base(portLevels, "vintage"),
		},
	}
}
