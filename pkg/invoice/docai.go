package invoice

import (
	"strings"

	"cloud.google.com/go/documentai/apiv1/documentaipb"
)

// entityFieldPaths maps Document AI invoice entity types onto the canonical
// field paths used by the template engine.
var entityFieldPaths = map[string]string{
	"supplier_name":    FieldVendorName,
	"vendor_name":      FieldVendorName,
	"supplier_tax_id":  FieldVendorTaxNumber,
	"vendor_tax_id":    FieldVendorTaxNumber,
	"invoice_id":       FieldReferenceNumber,
	"reference_number": FieldReferenceNumber,
	"invoice_date":     FieldInvoiceDate,
	"net_amount":       FieldSubtotal,
	"subtotal_amount":  FieldSubtotal,
	"total_tax_amount": FieldTaxAmount,
	"vat_amount":       FieldTaxAmount,
	"total_amount":     FieldTotal,
}

// ObservationFromProto converts a Document AI response into an Observation.
//
// Entity mention text feeds the structured fields, entity page anchors feed
// the observed regions, and the page lines become positioned text blocks.
// Nested entity properties (e.g. line_item rows) are walked recursively.
func ObservationFromProto(doc *documentaipb.Document) *Observation {
	obs := &Observation{}
	if doc == nil {
		return obs
	}

	for _, entity := range doc.Entities {
		processEntity(obs, entity)
	}

	obs.Blocks = blocksFromProto(doc)
	return obs
}

// processEntity folds one entity (and its nested properties) into the
// observation. Duplicate mentions keep the first non-empty value.
func processEntity(obs *Observation, entity *documentaipb.Document_Entity) {
	if entity == nil || entity.Type == "" {
		return
	}

	entityType := strings.ToLower(entity.Type)

	if entityType == "line_item" {
		row := make(map[string]string, len(entity.Properties))
		for _, prop := range entity.Properties {
			if prop.Type != "" {
				row[strings.ToLower(prop.Type)] = strings.TrimSpace(prop.MentionText)
			}
		}
		if len(row) > 0 {
			obs.LineItems = append(obs.LineItems, row)
		}
		if region, ok := entityRegion(entity); ok {
			setRegion(obs, FieldLineItems, region)
		}
		return
	}

	if path, ok := entityFieldPaths[entityType]; ok {
		setFieldValue(obs, path, strings.TrimSpace(entity.MentionText))
		if region, ok := entityRegion(entity); ok {
			setRegion(obs, path, region)
		}
	}

	// Walk nested properties so wrapped extractors (e.g. a "supplier" group
	// holding supplier_name and supplier_tax_id) still contribute fields.
	for _, prop := range entity.Properties {
		processEntity(obs, prop)
	}
}

// setFieldValue writes a canonical field if it is not already populated.
func setFieldValue(obs *Observation, path, value string) {
	if value == "" {
		return
	}
	switch path {
	case FieldVendorName:
		if obs.Vendor.Name == "" {
			obs.Vendor.Name = value
		}
	case FieldVendorTaxNumber:
		if obs.Vendor.TaxNumber == "" {
			obs.Vendor.TaxNumber = value
		}
	case FieldReferenceNumber:
		if obs.Invoice.ReferenceNumber == "" {
			obs.Invoice.ReferenceNumber = value
		}
	case FieldInvoiceDate:
		if obs.Invoice.Date == "" {
			obs.Invoice.Date = value
		}
	case FieldSubtotal:
		if obs.Totals.Subtotal == nil {
			obs.Totals.Subtotal = numberValue(value)
		}
	case FieldTaxAmount:
		if obs.Totals.TaxAmount == nil {
			obs.Totals.TaxAmount = numberValue(value)
		}
	case FieldTotal:
		if obs.Totals.Total == nil {
			obs.Totals.Total = numberValue(value)
		}
	}
}

func setRegion(obs *Observation, path string, region Region) {
	if obs.Regions == nil {
		obs.Regions = make(map[string]Region)
	}
	if _, exists := obs.Regions[path]; !exists {
		obs.Regions[path] = region
	}
}

// entityRegion derives the normalized bounding region of an entity from its
// first page anchor. Document AI already reports normalized vertices.
func entityRegion(entity *documentaipb.Document_Entity) (Region, bool) {
	anchor := entity.GetPageAnchor()
	if anchor == nil || len(anchor.PageRefs) == 0 {
		return Region{}, false
	}
	poly := anchor.PageRefs[0].GetBoundingPoly()
	return regionFromPoly(poly)
}

// regionFromPoly computes the axis-aligned bounds of a normalized polygon.
func regionFromPoly(poly *documentaipb.BoundingPoly) (Region, bool) {
	if poly == nil || len(poly.NormalizedVertices) == 0 {
		return Region{}, false
	}
	first := poly.NormalizedVertices[0]
	minX, minY := float64(first.X), float64(first.Y)
	maxX, maxY := minX, minY
	for _, v := range poly.NormalizedVertices[1:] {
		x, y := float64(v.X), float64(v.Y)
		if x < minX {
			minX = x
		}
		if x > maxX {
			maxX = x
		}
		if y < minY {
			minY = y
		}
		if y > maxY {
			maxY = y
		}
	}
	return NewRegion(minX, minY, maxX, maxY), true
}

// blocksFromProto turns every page line into a positioned text block.
func blocksFromProto(doc *documentaipb.Document) []TextBlock {
	var blocks []TextBlock

	for _, page := range doc.Pages {
		for _, line := range page.Lines {
			layout := line.GetLayout()
			if layout == nil {
				continue
			}
			text := strings.TrimSpace(textFromLayout(layout, doc.Text))
			if text == "" {
				continue
			}

			block := TextBlock{Text: text}
			if poly := layout.GetBoundingPoly(); poly != nil {
				for _, v := range poly.NormalizedVertices {
					block.Polygon = append(block.Polygon, Point{X: float64(v.X), Y: float64(v.Y)})
				}
			}
			blocks = append(blocks, block)
		}
	}

	return blocks
}

// textFromLayout extracts text from a layout's text anchor segments.
func textFromLayout(layout *documentaipb.Document_Page_Layout, fullText string) string {
	if layout == nil || layout.TextAnchor == nil {
		return ""
	}
	runes := []rune(fullText)
	result := strings.Builder{}
	totalRunes := len(runes)

	for _, seg := range layout.TextAnchor.TextSegments {
		start := int(seg.StartIndex)
		end := int(seg.EndIndex)
		if start < 0 {
			start = 0
		}
		if end > totalRunes {
			end = totalRunes
		}
		if start > end {
			start = end
		}
		result.WriteString(string(runes[start:end]))
	}
	return result.String()
}
