// Package enrich runs the two-step enrichment pipeline: an
// authoritative-source pass followed by secondary corroborating
// sources, bounded by a session budget and guarded against
// cross-contamination by the match validator.
package enrich

import (
	"fmt"
	"strings"

	"github.com/cellarworks/enrich-cli/internal/model"
)

// exclusivePairs lists keyword groups that never co-occur for one
// product. Matching opposite sides across target and candidate is the
// strongest cross-contamination signal we have.
var exclusivePairs = [][2][]string{
	{{"bourbon"}, {"rye whiskey", "rye whisky", " rye "}},
	{{"single malt"}, {"blended whisky", "blended whiskey", "blended scotch"}},
	{{"late-bottled vintage", "late bottled vintage", "lbv"}, {"vintage port"}},
	{{"tawny"}, {"ruby"}},
	{{"peated"}, {"unpeated"}},
}

// nameStopwords are tokens carrying no product identity.
var nameStopwords = map[string]bool{
	"the": true, "and": true, "of": true, "with": true, "for": true,
	"year": true, "years": true, "old": true, "aged": true,
	"whisky": true, "whiskey": true, "port": true, "wine": true,
	"bottle": true, "edition": true, "release": true,
}

const (
	minTokenLen       = 3
	tokenOverlapFloor = 0.30
)

// Candidate is the text surface of an extracted entry as seen by the
// validator.
type Candidate struct {
	Name  string
	Brand string
	// Text is the candidate's combined free text (title, description,
	// tasting notes) used for exclusive-keyword matching.
	Text string
}

// Verdict is the validator outcome. Reason is human-readable and lands
// in the session audit trail on rejection.
type Verdict struct {
	Accept bool
	Reason string
}

// Validator decides whether extracted candidate data describes the
// target product. Three checks run in order; the first failure rejects.
type Validator struct {
	MinTokenOverlap float64
}

func NewValidator() *Validator {
	return &Validator{MinTokenOverlap: tokenOverlapFloor}
}

// Validate applies brand overlap, exclusive-keyword, and name
// token-overlap checks against the target identity.
func (v *Validator) Validate(target model.ProductIdentity, cand Candidate) Verdict {
	if verdict := checkBrand(target.Brand, cand.Brand); !verdict.Accept {
		return verdict
	}
	targetText := model.FoldText(strings.Join([]string{target.Name, target.Brand, string(target.Category)}, " "))
	candText := model.FoldText(strings.Join([]string{cand.Name, cand.Brand, cand.Text}, " "))
	if verdict := checkExclusive(targetText, candText); !verdict.Accept {
		return verdict
	}
	return v.checkTokenOverlap(target.Name, cand.Name)
}

// checkBrand requires one brand to contain the other, case-insensitive.
// A missing brand on either side passes: brand is not always
// extractable and absence is not evidence of mismatch.
func checkBrand(target, cand string) Verdict {
	t := model.FoldText(strings.TrimSpace(target))
	c := model.FoldText(strings.TrimSpace(cand))
	if t == "" || c == "" {
		return Verdict{Accept: true}
	}
	if strings.Contains(t, c) || strings.Contains(c, t) {
		return Verdict{Accept: true}
	}
	return Verdict{Accept: false, Reason: fmt.Sprintf("brand mismatch: %q vs %q", target, cand)}
}

func checkExclusive(targetText, candText string) Verdict {
	// Space-padded markers like " rye " need the text itself padded, so a
	// string that starts or ends with the bare word still matches.
	targetText = " " + targetText + " "
	candText = " " + candText + " "
	matches := func(text string, side []string) bool {
		for _, kw := range side {
			if strings.Contains(text, kw) {
				return true
			}
		}
		return false
	}
	for _, pair := range exclusivePairs {
		a, b := pair[0], pair[1]
		if matches(targetText, a) && matches(candText, b) && !matches(candText, a) {
			return Verdict{Accept: false, Reason: fmt.Sprintf("exclusive keywords: target %q vs candidate %q", a[0], b[0])}
		}
		if matches(targetText, b) && matches(candText, a) && !matches(candText, b) {
			return Verdict{Accept: false, Reason: fmt.Sprintf("exclusive keywords: target %q vs candidate %q", b[0], a[0])}
		}
	}
	return Verdict{Accept: true}
}

// checkTokenOverlap requires the name token intersection, over the
// larger token set, to reach the threshold. Empty token sets pass:
// too little signal to block on.
func (v *Validator) checkTokenOverlap(targetName, candName string) Verdict {
	t := nameTokens(targetName)
	c := nameTokens(candName)
	if len(t) == 0 || len(c) == 0 {
		return Verdict{Accept: true}
	}
	inter := 0
	for tok := range t {
		if c[tok] {
			inter++
		}
	}
	max := len(t)
	if len(c) > max {
		max = len(c)
	}
	ratio := float64(inter) / float64(max)
	if ratio >= v.MinTokenOverlap {
		return Verdict{Accept: true}
	}
	return Verdict{
		Accept: false,
		Reason: fmt.Sprintf("name overlap %.2f below %.2f: %q vs %q", ratio, v.MinTokenOverlap, targetName, candName),
	}
}

func nameTokens(name string) map[string]bool {
	folded := model.FoldText(name)
	fields := strings.FieldsFunc(folded, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	tokens := map[string]bool{}
	for _, f := range fields {
		if len(f) < minTokenLen && !isNumeric(f) {
			continue
		}
		if nameStopwords[f] {
			continue
		}
		tokens[f] = true
	}
	return tokens
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
