// Package invoice defines the observation model consumed by the template
// engine and the ingestion boundary that produces it.
//
// An Observation is the structured result of processing one invoice document:
// the extracted field values, an optional layout descriptor, and the raw OCR
// text blocks with their positions. Observations can be built from three
// sources, each resolved once at the boundary:
//
// - A generic extraction map (ParseExtractionResult)
// - A Google Document AI response proto (ObservationFromProto)
// - An hOCR document, for the text blocks only (BlocksFromHOCR)
//
// All regions and block geometry are expressed as fractions of the page
// dimensions so they are resolution independent.
package invoice

// Region is a rectangle in normalized page coordinates.
// X1,Y1 is the top-left corner and X2,Y2 the bottom-right corner,
// each expressed as a fraction of the page width/height.
type Region struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// NewRegion creates a region from its corner coordinates.
func NewRegion(x1, y1, x2, y2 float64) Region {
	return Region{X1: x1, Y1: y1, X2: x2, Y2: y2}
}

// IsZero reports whether the region is the empty rectangle.
func (r Region) IsZero() bool {
	return r.X1 == 0 && r.Y1 == 0 && r.X2 == 0 && r.Y2 == 0
}

// Valid reports whether the corners are ordered and within the unit square.
func (r Region) Valid() bool {
	return r.X1 <= r.X2 && r.Y1 <= r.Y2 &&
		r.X1 >= 0 && r.Y1 >= 0 && r.X2 <= 1 && r.Y2 <= 1
}

// Contains reports whether the point (x, y) lies inside the region.
// Points on the boundary count as inside.
func (r Region) Contains(x, y float64) bool {
	return x >= r.X1 && x <= r.X2 && y >= r.Y1 && y <= r.Y2
}

// Point is a single coordinate pair in normalized page space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// TextBlock is one unit of recognized text with its position on the page.
// Either Polygon or Box may be set; Polygon takes precedence when both are.
type TextBlock struct {
	Text    string  `json:"text"`
	Polygon []Point `json:"polygon,omitempty"`
	Box     *Region `json:"box,omitempty"`
}

// Centroid returns the center point of the block's geometry.
// For polygons this is the vertex mean, for boxes the midpoint.
// The second return value is false when the block has no geometry.
func (b TextBlock) Centroid() (Point, bool) {
	if len(b.Polygon) > 0 {
		var sx, sy float64
		for _, p := range b.Polygon {
			sx += p.X
			sy += p.Y
		}
		n := float64(len(b.Polygon))
		return Point{X: sx / n, Y: sy / n}, true
	}
	if b.Box != nil {
		return Point{
			X: (b.Box.X1 + b.Box.X2) / 2,
			Y: (b.Box.Y1 + b.Box.Y2) / 2,
		}, true
	}
	return Point{}, false
}

// Zone describes one structural region of the document layout.
type Zone struct {
	Type string `json:"type"` // e.g. "header", "table", "footer"
}

// Layout is an optional structural descriptor of the document,
// produced by the upstream extraction pipeline.
type Layout struct {
	Zones       []Zone `json:"zones,omitempty"`
	ColumnCount int    `json:"column_count"`
	HasHeader   bool   `json:"has_header"`
}

// Vendor identifies the party that issued the invoice.
type Vendor struct {
	Name      string `json:"name,omitempty"`
	TaxNumber string `json:"tax_number,omitempty"`
}

// Header carries the invoice-level reference fields.
type Header struct {
	ReferenceNumber string `json:"reference_number,omitempty"`
	Date            string `json:"date,omitempty"`
}

// Totals carries the monetary summary of the invoice.
// Pointers distinguish "absent" from a legitimate zero amount.
type Totals struct {
	Subtotal  *float64 `json:"subtotal,omitempty"`
	TaxAmount *float64 `json:"tax_amount,omitempty"`
	Total     *float64 `json:"total,omitempty"`
}

// Observation is one processed document as seen by the template engine.
type Observation struct {
	Vendor       Vendor              `json:"vendor"`
	Invoice      Header              `json:"invoice"`
	Totals       Totals              `json:"totals"`
	LineItems    []map[string]string `json:"line_items,omitempty"`
	DocumentType string              `json:"document_type,omitempty"`

	// Layout is the optional structural descriptor.
	Layout *Layout `json:"layout,omitempty"`

	// Blocks are the raw OCR text blocks with positions.
	Blocks []TextBlock `json:"blocks,omitempty"`

	// Regions holds the observed region per canonical field path,
	// when the extraction pipeline located the field on the page.
	Regions map[string]Region `json:"regions,omitempty"`

	// Labels holds the label texts seen next to each field.
	Labels map[string][]string `json:"labels,omitempty"`
}

// Canonical field paths recognized by the template engine.
const (
	FieldVendorName      = "vendor.name"
	FieldVendorTaxNumber = "vendor.tax_number"
	FieldReferenceNumber = "invoice.reference_number"
	FieldInvoiceDate     = "invoice.date"
	FieldTotal           = "totals.total"
	FieldSubtotal        = "totals.subtotal"
	FieldTaxAmount       = "totals.tax_amount"
	FieldLineItems       = "line_items"
)

// PresentFields returns the canonical paths of all fields carried by the
// observation, in catalogue order.
func (o *Observation) PresentFields() []string {
	var fields []string
	if o.Vendor.Name != "" {
		fields = append(fields, FieldVendorName)
	}
	if o.Vendor.TaxNumber != "" {
		fields = append(fields, FieldVendorTaxNumber)
	}
	if o.Invoice.ReferenceNumber != "" {
		fields = append(fields, FieldReferenceNumber)
	}
	if o.Invoice.Date != "" {
		fields = append(fields, FieldInvoiceDate)
	}
	if o.Totals.Total != nil {
		fields = append(fields, FieldTotal)
	}
	if o.Totals.Subtotal != nil {
		fields = append(fields, FieldSubtotal)
	}
	if o.Totals.TaxAmount != nil {
		fields = append(fields, FieldTaxAmount)
	}
	if len(o.LineItems) > 0 {
		fields = append(fields, FieldLineItems)
	}
	return fields
}

// Region returns the observed region for a canonical field path, if any.
func (o *Observation) Region(field string) (Region, bool) {
	if o.Regions == nil {
		return Region{}, false
	}
	r, ok := o.Regions[field]
	return r, ok
}
