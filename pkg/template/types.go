// Package template implements per-vendor invoice template learning and
// matching.
//
// The engine incrementally learns the expected layout of recurring invoices
// from successfully processed documents and reuses that knowledge on later
// documents from the same vendor: exact lookup by vendor tax id, fuzzy lookup
// by weighted heuristic scoring, and projection of learned field regions into
// location hints for the extraction pipeline.
//
// Main Types:
//
// - Store: persistent keyed collection of templates with a capacity bound
// - Builder: creates or incrementally updates templates from observations
// - Matcher: resolves observations to known templates
// - HintGenerator: projects templates into field location hints
// - Engine: facade bundling the above behind the pipeline-facing surface
// - Registry: explicit per-language engine registry
package template

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/qistas/templar/pkg/invoice"
)

// FieldType classifies the value a field holds.
type FieldType string

// Field types assigned by the catalogue.
const (
	FieldText     FieldType = "text"
	FieldNumber   FieldType = "number"
	FieldDate     FieldType = "date"
	FieldCurrency FieldType = "currency"
	FieldTable    FieldType = "table"
)

// Position is the coarse vertical zone a field is expected in.
type Position string

// Position categories.
const (
	PositionHeader Position = "header"
	PositionBody   Position = "body"
	PositionFooter Position = "footer"
)

// FieldInfo is the learned metadata for one field of a vendor's invoices.
// It is mutated on every re-observation of the field.
type FieldInfo struct {
	Name            string         `json:"name"`
	Type            FieldType      `json:"type"`
	ExpectedRegion  invoice.Region `json:"expected_region"`
	LabelPatterns   []string       `json:"label_patterns,omitempty"`
	ValuePatterns   []string       `json:"value_patterns,omitempty"`
	Position        Position       `json:"position"`
	OccurrenceCount int            `json:"occurrence_count"`
	Confidence      float64        `json:"confidence"`
}

// InvoiceTemplate is the learned description of one vendor's invoice layout.
// Templates are exclusively owned by the Store: created on the first
// observation of a tax id, mutated on each subsequent one, and removed only
// by explicit removal or clearing.
type InvoiceTemplate struct {
	TemplateID      string                `json:"template_id"`
	VendorName      string                `json:"vendor_name"`
	VendorTaxNumber string                `json:"vendor_tax_number"`
	DocumentType    string                `json:"document_type"`
	Fields          map[string]*FieldInfo `json:"fields"`
	LayoutSignature string                `json:"layout_signature,omitempty"`
	SampleCount     int                   `json:"sample_count"`
	LastUpdated     time.Time             `json:"last_updated"`
	ConfidenceScore float64               `json:"confidence_score"`
	Metadata        map[string]string     `json:"metadata,omitempty"`
}

// TemplateMatch is the transient result of a template lookup.
// Template references the store-owned template and must not be mutated.
type TemplateMatch struct {
	Template        *InvoiceTemplate     `json:"template,omitempty"`
	Score           float64              `json:"score"`
	MatchedFields   []string             `json:"matched_fields,omitempty"`
	Hints           map[string]FieldHint `json:"hints,omitempty"`
	ConfidenceBoost float64              `json:"confidence_boost"`
}

// Matched reports whether a template was found.
func (m TemplateMatch) Matched() bool { return m.Template != nil }

// FieldHint is the projection of one learned field into a location hint.
type FieldHint struct {
	ExpectedRegion invoice.Region `json:"expected_region"`
	Position       Position       `json:"relative_position"`
	Type           FieldType      `json:"field_type"`
	Confidence     float64        `json:"confidence"`
}

// RegionHint pairs a field's learned region with the text blocks found
// inside it on a concrete document.
type RegionHint struct {
	Region          invoice.Region `json:"region"`
	Candidates      []string       `json:"candidates"`
	ConfidenceBoost float64        `json:"confidence_boost"`
}

// confidenceCeiling caps template and field confidence so residual
// uncertainty is always retained regardless of sample count.
const confidenceCeiling = 0.95

// TemplateID derives the deterministic template id for a vendor tax number.
// The same tax id always yields the same id, giving O(1) exact lookup.
func TemplateID(taxNumber string) string {
	normalized := strings.Join(strings.Fields(taxNumber), "")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])[:16]
}

// fieldCatalogue fixes the type and coarse position of every field path the
// engine learns. Vendor and invoice fields sit in the header, totals in the
// footer, line items in the body.
var fieldCatalogue = []struct {
	Path     string
	Type     FieldType
	Position Position
}{
	{invoice.FieldVendorName, FieldText, PositionHeader},
	{invoice.FieldVendorTaxNumber, FieldText, PositionHeader},
	{invoice.FieldReferenceNumber, FieldText, PositionHeader},
	{invoice.FieldInvoiceDate, FieldDate, PositionHeader},
	{invoice.FieldTotal, FieldCurrency, PositionFooter},
	{invoice.FieldSubtotal, FieldCurrency, PositionFooter},
	{invoice.FieldTaxAmount, FieldCurrency, PositionFooter},
	{invoice.FieldLineItems, FieldTable, PositionBody},
}

// catalogueEntry looks up the catalogue row for a field path.
func catalogueEntry(path string) (FieldType, Position, bool) {
	for _, entry := range fieldCatalogue {
		if entry.Path == path {
			return entry.Type, entry.Position, true
		}
	}
	return FieldText, PositionBody, false
}

// LayoutSignature hashes a layout descriptor into an order-independent
// signature: equivalent layouts always hash identically because zone types
// are sorted before hashing.
func LayoutSignature(layout *invoice.Layout) string {
	if layout == nil {
		return ""
	}

	types := make([]string, 0, len(layout.Zones))
	for _, zone := range layout.Zones {
		types = append(types, strings.ToLower(zone.Type))
	}
	sort.Strings(types)

	descriptor := fmt.Sprintf("%s|cols=%d|header=%t",
		strings.Join(types, ","), layout.ColumnCount, layout.HasHeader)
	sum := sha256.Sum256([]byte(descriptor))
	return hex.EncodeToString(sum[:])[:16]
}

// clone returns a deep copy of the template, used to hand templates across
// the export/import boundary without sharing store-owned state.
func (t *InvoiceTemplate) clone() *InvoiceTemplate {
	copied := *t
	copied.Fields = make(map[string]*FieldInfo, len(t.Fields))
	for name, field := range t.Fields {
		f := *field
		f.LabelPatterns = append([]string(nil), field.LabelPatterns...)
		f.ValuePatterns = append([]string(nil), field.ValuePatterns...)
		copied.Fields[name] = &f
	}
	if t.Metadata != nil {
		copied.Metadata = make(map[string]string, len(t.Metadata))
		for k, v := range t.Metadata {
			copied.Metadata[k] = v
		}
	}
	return &copied
}

// fieldNames returns the template's field names in sorted order.
func (t *InvoiceTemplate) fieldNames() []string {
	names := make([]string, 0, len(t.Fields))
	for name := range t.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
