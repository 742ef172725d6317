package template

import (
	"fmt"
	"testing"
	"time"

	"github.com/qistas/templar/pkg/invoice"
)

// hintedTemplate builds a template with learned regions for hint tests.
func hintedTemplate() *InvoiceTemplate {
	return &InvoiceTemplate{
		TemplateID:      TemplateID("3009"),
		VendorName:      "Hinted Vendor",
		VendorTaxNumber: "3009",
		Fields: map[string]*FieldInfo{
			invoice.FieldVendorName: {
				Name:            invoice.FieldVendorName,
				Type:            FieldText,
				Position:        PositionHeader,
				ExpectedRegion:  invoice.NewRegion(0.0, 0.0, 0.5, 0.2),
				OccurrenceCount: 3,
				Confidence:      0.8,
			},
			invoice.FieldTotal: {
				Name:            invoice.FieldTotal,
				Type:            FieldCurrency,
				Position:        PositionFooter,
				ExpectedRegion:  invoice.NewRegion(0.5, 0.8, 1.0, 1.0),
				OccurrenceCount: 3,
				Confidence:      0.8,
			},
			invoice.FieldLineItems: {
				// No learned region yet
				Name:     invoice.FieldLineItems,
				Type:     FieldTable,
				Position: PositionBody,
			},
		},
		SampleCount:     3,
		LastUpdated:     time.Now(),
		ConfidenceScore: 0.95,
	}
}

// TestGenerateHints verifies the pure projection of a template into hints.
func TestGenerateHints(t *testing.T) {
	tpl := hintedTemplate()
	hints := GenerateHints(tpl)

	if len(hints) != len(tpl.Fields) {
		t.Fatalf("expected %d hints, got %d", len(tpl.Fields), len(hints))
	}

	hint, ok := hints[invoice.FieldTotal]
	if !ok {
		t.Fatal("missing hint for totals.total")
	}
	if hint.Type != FieldCurrency || hint.Position != PositionFooter {
		t.Errorf("hint metadata wrong: %+v", hint)
	}
	if hint.ExpectedRegion != tpl.Fields[invoice.FieldTotal].ExpectedRegion {
		t.Error("hint region does not mirror the template region")
	}

	if GenerateHints(nil) != nil {
		t.Error("nil template should project to no hints")
	}
}

// TestApplyCentroidMatching verifies block-to-region assignment via
// polygon centroids and box midpoints.
func TestApplyCentroidMatching(t *testing.T) {
	store := newTestStore(t)
	tpl := hintedTemplate()
	store.Put(tpl)
	generator := NewHintGenerator(store)

	headerBox := invoice.NewRegion(0.1, 0.05, 0.3, 0.1)
	blocks := []invoice.TextBlock{
		// Polygon centroid inside the vendor name region
		{Text: "Hinted Vendor LLC", Polygon: []invoice.Point{
			{X: 0.1, Y: 0.05}, {X: 0.3, Y: 0.05}, {X: 0.3, Y: 0.1}, {X: 0.1, Y: 0.1},
		}},
		// Box midpoint inside the same region
		{Text: "VAT 3009", Box: &headerBox},
		// Centroid inside the totals region
		{Text: "1,250.00 SAR", Polygon: []invoice.Point{
			{X: 0.7, Y: 0.85}, {X: 0.9, Y: 0.85}, {X: 0.9, Y: 0.95}, {X: 0.7, Y: 0.95},
		}},
		// Centroid outside every region
		{Text: "Item description", Polygon: []invoice.Point{
			{X: 0.4, Y: 0.5}, {X: 0.6, Y: 0.5}, {X: 0.6, Y: 0.6}, {X: 0.4, Y: 0.6},
		}},
		// No geometry at all: never a candidate
		{Text: "floating text"},
	}

	hints, ok := generator.Apply(blocks, tpl.TemplateID)
	if !ok {
		t.Fatal("expected the template key to resolve")
	}

	vendorHint, ok := hints[invoice.FieldVendorName]
	if !ok {
		t.Fatal("expected candidates for vendor.name")
	}
	if len(vendorHint.Candidates) != 2 {
		t.Errorf("expected 2 vendor candidates, got %v", vendorHint.Candidates)
	}

	totalHint, ok := hints[invoice.FieldTotal]
	if !ok {
		t.Fatal("expected candidates for totals.total")
	}
	if len(totalHint.Candidates) != 1 || totalHint.Candidates[0] != "1,250.00 SAR" {
		t.Errorf("unexpected total candidates: %v", totalHint.Candidates)
	}

	// The regionless line_items field yields no hint
	if _, ok := hints[invoice.FieldLineItems]; ok {
		t.Error("field without a region should produce no hint")
	}
}

// TestApplyCandidateCap verifies the 5-candidate cap per field.
func TestApplyCandidateCap(t *testing.T) {
	store := newTestStore(t)
	tpl := hintedTemplate()
	store.Put(tpl)
	generator := NewHintGenerator(store)

	var blocks []invoice.TextBlock
	for i := 0; i < 8; i++ {
		box := invoice.NewRegion(0.1, 0.05, 0.3, 0.1)
		blocks = append(blocks, invoice.TextBlock{
			Text: fmt.Sprintf("candidate %d", i),
			Box:  &box,
		})
	}

	hints, ok := generator.Apply(blocks, tpl.TemplateID)
	if !ok {
		t.Fatal("expected the template key to resolve")
	}
	if got := len(hints[invoice.FieldVendorName].Candidates); got != maxHintCandidates {
		t.Errorf("expected %d candidates, got %d", maxHintCandidates, got)
	}
}

// TestApplyUnknownTemplate verifies the miss path.
func TestApplyUnknownTemplate(t *testing.T) {
	generator := NewHintGenerator(newTestStore(t))
	if _, ok := generator.Apply(nil, "ffffffffffffffff"); ok {
		t.Error("unknown template key should report false")
	}
}
