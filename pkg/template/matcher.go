package template

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/qistas/templar/pkg/invoice"
)

// DefaultMatchThreshold is the fuzzy score below which a candidate is
// rejected and no match is reported.
const DefaultMatchThreshold = 0.5

// Fuzzy score component weights.
const (
	nameWeight    = 0.4
	overlapWeight = 0.4
	docTypeWeight = 0.2
)

// Matcher resolves possibly partial observations to known templates.
// Lookups are read-only and safe to run concurrently.
type Matcher struct {
	store     *Store
	threshold float64
}

// NewMatcher creates a matcher over the given store. A non-positive
// threshold falls back to DefaultMatchThreshold.
func NewMatcher(store *Store, threshold float64) *Matcher {
	if threshold <= 0 {
		threshold = DefaultMatchThreshold
	}
	return &Matcher{store: store, threshold: threshold}
}

// Find resolves an observation to a template.
//
// A vendor tax id that hashes to a stored template is an exact hit: score
// 1.0, all template fields matched, and a confidence boost proportional to
// how well-established the template is. Without a tax id (or without an
// exact hit) every stored template is scored heuristically and the best
// candidate above the threshold wins; otherwise the zero match is returned.
func (m *Matcher) Find(obs *invoice.Observation) TemplateMatch {
	if obs == nil {
		return TemplateMatch{}
	}

	// Exact lookup by tax id hash. Deterministic, no tie-break needed.
	if obs.Vendor.TaxNumber != "" {
		if tpl, ok := m.store.Get(TemplateID(obs.Vendor.TaxNumber)); ok {
			return TemplateMatch{
				Template:        tpl,
				Score:           1.0,
				MatchedFields:   tpl.fieldNames(),
				Hints:           GenerateHints(tpl),
				ConfidenceBoost: tpl.ConfidenceScore * 0.1,
			}
		}
	}

	return m.fuzzyFind(obs)
}

// fuzzyFind scores every stored template and accepts the best candidate
// above the threshold. Ties are broken by template confidence, then by most
// recent update, then by id, so iteration order never decides the result.
func (m *Matcher) fuzzyFind(obs *invoice.Observation) TemplateMatch {
	present := obs.PresentFields()

	var best *InvoiceTemplate
	bestScore := 0.0

	for _, tpl := range m.store.List() {
		score := m.scoreTemplate(obs, present, tpl)
		if score <= bestScore && best != nil {
			if score < bestScore {
				continue
			}
			// Equal scores: prefer the better-established template.
			if tpl.ConfidenceScore < best.ConfidenceScore {
				continue
			}
			if tpl.ConfidenceScore == best.ConfidenceScore {
				if tpl.LastUpdated.Before(best.LastUpdated) {
					continue
				}
				if tpl.LastUpdated.Equal(best.LastUpdated) && tpl.TemplateID > best.TemplateID {
					continue
				}
			}
		}
		best = tpl
		bestScore = score
	}

	if best == nil || bestScore <= m.threshold {
		return TemplateMatch{}
	}

	return TemplateMatch{
		Template:        best,
		Score:           bestScore,
		MatchedFields:   overlappingFields(present, best),
		Hints:           GenerateHints(best),
		ConfidenceBoost: bestScore * best.ConfidenceScore * 0.05,
	}
}

// scoreTemplate computes the weighted heuristic score of one candidate.
func (m *Matcher) scoreTemplate(obs *invoice.Observation, present []string, tpl *InvoiceTemplate) float64 {
	score := nameWeight * nameSimilarity(obs.Vendor.Name, tpl.VendorName)
	score += overlapWeight * fieldOverlapRatio(present, tpl)
	if obs.DocumentType != "" && obs.DocumentType == tpl.DocumentType {
		score += docTypeWeight
	}
	return score
}

// nameSimilarity is the Jaccard index over the character sets of the two
// vendor names. Character sets make the measure order and frequency
// insensitive, which tolerates OCR word reordering at the cost of scoring
// anagrams as identical. Names are NFKC-normalized and lowercased first so
// Arabic presentation forms and Latin case differences do not depress the
// score.
func nameSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}

	setA := charSet(a)
	setB := charSet(b)

	intersection := 0
	for r := range setA {
		if setB[r] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// charSet collects the normalized, case-folded characters of a name,
// ignoring whitespace.
func charSet(name string) map[rune]bool {
	normalized := strings.ToLower(norm.NFKC.String(name))
	set := make(map[rune]bool, len(normalized))
	for _, r := range normalized {
		if r == ' ' || r == '\t' || r == '\n' {
			continue
		}
		set[r] = true
	}
	return set
}

// fieldOverlapRatio is |present ∩ template fields| / |template fields|.
func fieldOverlapRatio(present []string, tpl *InvoiceTemplate) float64 {
	if len(tpl.Fields) == 0 {
		return 0
	}
	overlap := 0
	for _, field := range present {
		if _, ok := tpl.Fields[field]; ok {
			overlap++
		}
	}
	return float64(overlap) / float64(len(tpl.Fields))
}

// overlappingFields returns the present fields the template also knows,
// in sorted order.
func overlappingFields(present []string, tpl *InvoiceTemplate) []string {
	var matched []string
	for _, name := range tpl.fieldNames() {
		for _, field := range present {
			if field == name {
				matched = append(matched, name)
				break
			}
		}
	}
	return matched
}
