package template

import (
	"github.com/qistas/templar/pkg/invoice"
)

// maxHintCandidates caps the candidate texts returned per field.
const maxHintCandidates = 5

// GenerateHints projects a template into per-field location hints.
// It is a pure projection of learned state; the template is not touched.
func GenerateHints(tpl *InvoiceTemplate) map[string]FieldHint {
	if tpl == nil || len(tpl.Fields) == 0 {
		return nil
	}
	hints := make(map[string]FieldHint, len(tpl.Fields))
	for name, field := range tpl.Fields {
		hints[name] = FieldHint{
			ExpectedRegion: field.ExpectedRegion,
			Position:       field.Position,
			Type:           field.Type,
			Confidence:     field.Confidence,
		}
	}
	return hints
}

// HintGenerator applies learned templates to concrete documents, pairing
// each field's expected region with the OCR text found inside it.
type HintGenerator struct {
	store *Store
}

// NewHintGenerator creates a hint generator over the given store.
func NewHintGenerator(store *Store) *HintGenerator {
	return &HintGenerator{store: store}
}

// Apply tests every text block against the expected regions of the keyed
// template and returns the candidate texts per field, capped at
// maxHintCandidates. Blocks and regions are assumed to share the same
// normalized coordinate space; the caller is responsible for that.
//
// The second return value is false when the template key is unknown.
func (g *HintGenerator) Apply(blocks []invoice.TextBlock, templateID string) (map[string]RegionHint, bool) {
	tpl, ok := g.store.Get(templateID)
	if !ok {
		return nil, false
	}

	hints := make(map[string]RegionHint)

	for name, field := range tpl.Fields {
		if field.ExpectedRegion.IsZero() {
			continue
		}

		var candidates []string
		for _, block := range blocks {
			centroid, ok := block.Centroid()
			if !ok {
				continue
			}
			if field.ExpectedRegion.Contains(centroid.X, centroid.Y) {
				candidates = append(candidates, block.Text)
				if len(candidates) == maxHintCandidates {
					break
				}
			}
		}

		if len(candidates) > 0 {
			hints[name] = RegionHint{
				Region:          field.ExpectedRegion,
				Candidates:      candidates,
				ConfidenceBoost: field.Confidence * 0.1,
			}
		}
	}

	if len(hints) == 0 {
		return nil, true
	}
	return hints, true
}
