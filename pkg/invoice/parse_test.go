package invoice

import (
	"encoding/json"
	"errors"
	"testing"
)

// TestParseMapShape resolves the nested map shape emitted by the primary
// extraction pipeline.
func TestParseMapShape(t *testing.T) {
	raw := map[string]interface{}{
		"vendor": map[string]interface{}{
			"name":       "  Acme Trading Co ",
			"tax_number": "300111111111111",
		},
		"invoice": map[string]interface{}{
			"reference_number": "INV-0042",
			"date":             "2024-03-01",
		},
		"totals": map[string]interface{}{
			"subtotal":   "1,000.00",
			"tax_amount": 150.0,
			"total":      1150.0,
		},
		"line_items": []interface{}{
			map[string]interface{}{"description": "Widget", "amount": 1000.0},
		},
		"document_type": "tax_invoice",
		"layout": map[string]interface{}{
			"zones":        []interface{}{"header", map[string]interface{}{"type": "table"}},
			"column_count": 4.0,
			"has_header":   true,
		},
		"regions": map[string]interface{}{
			"totals.total": []interface{}{0.6, 0.8, 0.95, 0.9},
		},
	}

	obs, err := ParseExtractionResult(raw)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if obs.Vendor.Name != "Acme Trading Co" {
		t.Errorf("vendor name not trimmed: %q", obs.Vendor.Name)
	}
	if obs.Vendor.TaxNumber != "300111111111111" {
		t.Errorf("wrong tax number: %q", obs.Vendor.TaxNumber)
	}
	if obs.Totals.Subtotal == nil || *obs.Totals.Subtotal != 1000.0 {
		t.Errorf("subtotal with thousands separator not parsed: %v", obs.Totals.Subtotal)
	}
	if obs.Totals.Total == nil || *obs.Totals.Total != 1150.0 {
		t.Errorf("total not parsed: %v", obs.Totals.Total)
	}
	if len(obs.LineItems) != 1 || obs.LineItems[0]["description"] != "Widget" {
		t.Errorf("line items not parsed: %v", obs.LineItems)
	}
	if obs.Layout == nil || len(obs.Layout.Zones) != 2 || obs.Layout.ColumnCount != 4 || !obs.Layout.HasHeader {
		t.Errorf("layout not parsed: %+v", obs.Layout)
	}
	region, ok := obs.Region(FieldTotal)
	if !ok || region != NewRegion(0.6, 0.8, 0.95, 0.9) {
		t.Errorf("region not parsed: %+v ok=%v", region, ok)
	}
}

// TestParseListShape resolves the flat field-list shape.
func TestParseListShape(t *testing.T) {
	raw := []interface{}{
		map[string]interface{}{
			"field_name": "vendor.name",
			"value":      "Basma Foods",
			"label":      "Seller",
		},
		map[string]interface{}{
			"name":  "vendor.tax_number",
			"value": "300222222222222",
		},
		map[string]interface{}{
			"field_name": "totals.total",
			"value":      "425.50",
			"region": map[string]interface{}{
				"x1": 0.7, "y1": 0.85, "x2": 0.95, "y2": 0.92,
			},
		},
	}

	obs, err := ParseExtractionResult(raw)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if obs.Vendor.Name != "Basma Foods" || obs.Vendor.TaxNumber != "300222222222222" {
		t.Errorf("vendor not parsed: %+v", obs.Vendor)
	}
	if obs.Totals.Total == nil || *obs.Totals.Total != 425.50 {
		t.Errorf("total not parsed: %v", obs.Totals.Total)
	}
	if region, ok := obs.Region(FieldTotal); !ok || region.X1 != 0.7 {
		t.Errorf("region not parsed: %+v ok=%v", region, ok)
	}
	if labels := obs.Labels[FieldVendorName]; len(labels) != 1 || labels[0] != "Seller" {
		t.Errorf("labels not parsed: %v", obs.Labels)
	}
}

// TestParseUnsupportedShape verifies the explicit error kind for shapes the
// boundary cannot resolve.
func TestParseUnsupportedShape(t *testing.T) {
	tests := []interface{}{
		"just a string",
		42,
		[]interface{}{"not", "maps"},
		(*Observation)(nil),
	}

	for _, raw := range tests {
		if _, err := ParseExtractionResult(raw); !errors.Is(err, ErrUnsupportedShape) {
			t.Errorf("%T: expected ErrUnsupportedShape, got %v", raw, err)
		}
	}

	// An already-resolved observation passes through
	obs := &Observation{Vendor: Vendor{TaxNumber: "3001"}}
	parsed, err := ParseExtractionResult(obs)
	if err != nil || parsed != obs {
		t.Errorf("observation pass-through failed: %v", err)
	}
}

// TestParseFromJSON round-trips through encoding/json the way the HTTP
// surface receives bodies.
func TestParseFromJSON(t *testing.T) {
	body := []byte(`{
		"vendor": {"name": "مؤسسة الأمل", "tax_number": "300333333333333"},
		"totals": {"total": 75.25}
	}`)

	var raw interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		t.Fatal(err)
	}

	obs, err := ParseExtractionResult(raw)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if obs.Vendor.Name != "مؤسسة الأمل" {
		t.Errorf("Arabic vendor name mangled: %q", obs.Vendor.Name)
	}
	fields := obs.PresentFields()
	if len(fields) != 3 {
		t.Errorf("expected 3 present fields, got %v", fields)
	}
}

// TestNumberValue covers the loose numeric coercions.
func TestNumberValue(t *testing.T) {
	tests := []struct {
		in   interface{}
		want *float64
	}{
		{12.5, floatPtr(12.5)},
		{7, floatPtr(7)},
		{"1,234.56", floatPtr(1234.56)},
		{" 10 ", floatPtr(10)},
		{"", nil},
		{"n/a", nil},
		{nil, nil},
		{true, nil},
	}

	for _, test := range tests {
		got := numberValue(test.in)
		switch {
		case got == nil && test.want != nil:
			t.Errorf("numberValue(%v) = nil, expected %f", test.in, *test.want)
		case got != nil && test.want == nil:
			t.Errorf("numberValue(%v) = %f, expected nil", test.in, *got)
		case got != nil && *got != *test.want:
			t.Errorf("numberValue(%v) = %f, expected %f", test.in, *got, *test.want)
		}
	}
}

func floatPtr(f float64) *float64 { return &f }
