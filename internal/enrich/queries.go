package enrich

import (
	"strings"

	"github.com/cellarworks/enrich-cli/internal/model"
	"github.com/cellarworks/enrich-cli/pkg/jina"
)

// QueryTemplate is one configured secondary-source search. Placeholders
// {name} and {brand} expand from the product identity. TargetFields
// names the field group the query hunts for; a template is skipped when
// all of its targets are already present.
type QueryTemplate struct {
	Template     string   `yaml:"template" mapstructure:"template"`
	TargetFields []string `yaml:"target_fields" mapstructure:"target_fields"`
}

// Expand substitutes the product identity into the template.
func (q QueryTemplate) Expand(p model.ProductIdentity) string {
	out := strings.ReplaceAll(q.Template, "{name}", p.Name)
	out = strings.ReplaceAll(out, "{brand}", p.Brand)
	return strings.Join(strings.Fields(out), " ")
}

// Wanted reports whether the template still targets at least one
// missing field. Templates with no target fields always run.
func (q QueryTemplate) Wanted(fields model.FieldMap, minConf float64) bool {
	if len(q.TargetFields) == 0 {
		return true
	}
	for _, f := range q.TargetFields {
		if !fields.Present(f, minConf) {
			return true
		}
	}
	return false
}

// DefaultTemplates is the built-in secondary-source query ladder,
// ordered by priority.
func DefaultTemplates() []QueryTemplate {
	return []QueryTemplate{
		{Template: `"{name}" {brand} review tasting notes`, TargetFields: []string{"tasting_notes"}},
		{Template: `"{name}" {brand} abv alcohol`, TargetFields: []string{"abv"}},
		{Template: `{brand} "{name}" cask maturation`, TargetFields: []string{"cask_types", "age_statement"}},
		{Template: `{brand} "{name}" region distillery`, TargetFields: []string{"region", "distillery", "country"}},
		{Template: `"{name}" {brand} specifications`},
	}
}

// retailerDomains lists aggregator/shop domains deprioritized during
// the authoritative-source step. Matching is by suffix so country
// storefronts of the same retailer match too.
var retailerDomains = []string{
	"masterofmalt.com",
	"thewhiskyexchange.com",
	"totalwine.com",
	"wine-searcher.com",
	"drizly.com",
	"caskers.com",
	"flaviar.com",
	"whiskybase.com",
	"amazon.com",
	"ebay.com",
}

// IsRetailer reports whether a host belongs to a known retailer or
// aggregator.
func IsRetailer(host string) bool {
	host = strings.ToLower(strings.TrimPrefix(host, "www."))
	for _, d := range retailerDomains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// RankAuthoritative orders search results so that likely
// producer/official pages come before retailer listings. Within each
// band the provider's original order is kept.
func RankAuthoritative(results []jina.SearchResult, brand string) []jina.SearchResult {
	brandToken := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(brand), " ", ""))
	var official, neutral, retail []jina.SearchResult
	for _, r := range results {
		host := hostOf(r.URL)
		switch {
		case brandToken != "" && strings.Contains(strings.ReplaceAll(host, "-", ""), brandToken):
			official = append(official, r)
		case IsRetailer(host):
			retail = append(retail, r)
		default:
			neutral = append(neutral, r)
		}
	}
	out := make([]jina.SearchResult, 0, len(results))
	out = append(out, official...)
	out = append(out, neutral...)
	out = append(out, retail...)
	return out
}

func hostOf(rawURL string) string {
	s := rawURL
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	return strings.ToLower(strings.TrimPrefix(s, "www."))
}
