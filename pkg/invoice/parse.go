package invoice

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnsupportedShape is returned when an extraction result is neither a
// field map nor a field list and cannot be resolved into an Observation.
var ErrUnsupportedShape = errors.New("unsupported extraction result shape")

// ParseExtractionResult resolves a raw extraction result into an Observation.
//
// Upstream extractors emit one of two shapes: a nested map keyed by section
// (vendor, invoice, totals, ...) or a flat list of field entries, each with a
// name and value. The shape is inspected exactly once here; everything past
// this boundary works with the typed Observation.
func ParseExtractionResult(v interface{}) (*Observation, error) {
	switch result := v.(type) {
	case map[string]interface{}:
		return observationFromMap(result), nil
	case []interface{}:
		return observationFromList(result)
	case *Observation:
		if result == nil {
			return nil, fmt.Errorf("%w: nil observation", ErrUnsupportedShape)
		}
		return result, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedShape, v)
	}
}

// observationFromMap builds an Observation from the nested map shape.
func observationFromMap(m map[string]interface{}) *Observation {
	obs := &Observation{}

	if vendor, ok := m["vendor"].(map[string]interface{}); ok {
		obs.Vendor.Name = stringValue(vendor["name"])
		obs.Vendor.TaxNumber = stringValue(vendor["tax_number"])
	}

	if inv, ok := m["invoice"].(map[string]interface{}); ok {
		obs.Invoice.ReferenceNumber = stringValue(inv["reference_number"])
		obs.Invoice.Date = stringValue(inv["date"])
	}

	if totals, ok := m["totals"].(map[string]interface{}); ok {
		obs.Totals.Subtotal = numberValue(totals["subtotal"])
		obs.Totals.TaxAmount = numberValue(totals["tax_amount"])
		obs.Totals.Total = numberValue(totals["total"])
	}

	if items, ok := m["line_items"].([]interface{}); ok {
		for _, item := range items {
			entry, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			row := make(map[string]string, len(entry))
			for k, v := range entry {
				row[k] = stringValue(v)
			}
			obs.LineItems = append(obs.LineItems, row)
		}
	}

	obs.DocumentType = stringValue(m["document_type"])

	if layout, ok := m["layout"].(map[string]interface{}); ok {
		obs.Layout = layoutFromMap(layout)
	}

	if regions, ok := m["regions"].(map[string]interface{}); ok {
		obs.Regions = make(map[string]Region, len(regions))
		for field, raw := range regions {
			if region, ok := regionFromValue(raw); ok {
				obs.Regions[field] = region
			}
		}
	}

	return obs
}

// observationFromList builds an Observation from the flat field-list shape,
// where each entry carries a field name and its value.
func observationFromList(entries []interface{}) (*Observation, error) {
	obs := &Observation{}

	for i, raw := range entries {
		entry, ok := raw.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%w: list entry %d is %T", ErrUnsupportedShape, i, raw)
		}

		name := stringValue(entry["field_name"])
		if name == "" {
			name = stringValue(entry["name"])
		}
		value := entry["value"]

		switch name {
		case FieldVendorName:
			obs.Vendor.Name = stringValue(value)
		case FieldVendorTaxNumber:
			obs.Vendor.TaxNumber = stringValue(value)
		case FieldReferenceNumber:
			obs.Invoice.ReferenceNumber = stringValue(value)
		case FieldInvoiceDate:
			obs.Invoice.Date = stringValue(value)
		case FieldSubtotal:
			obs.Totals.Subtotal = numberValue(value)
		case FieldTaxAmount:
			obs.Totals.TaxAmount = numberValue(value)
		case FieldTotal:
			obs.Totals.Total = numberValue(value)
		case "document_type":
			obs.DocumentType = stringValue(value)
		}

		if region, ok := regionFromValue(entry["region"]); ok && name != "" {
			if obs.Regions == nil {
				obs.Regions = make(map[string]Region)
			}
			obs.Regions[name] = region
		}

		if label := stringValue(entry["label"]); label != "" && name != "" {
			if obs.Labels == nil {
				obs.Labels = make(map[string][]string)
			}
			obs.Labels[name] = append(obs.Labels[name], label)
		}
	}

	return obs, nil
}

// layoutFromMap converts the layout descriptor sub-map.
func layoutFromMap(m map[string]interface{}) *Layout {
	layout := &Layout{}

	if zones, ok := m["zones"].([]interface{}); ok {
		for _, z := range zones {
			switch zone := z.(type) {
			case map[string]interface{}:
				layout.Zones = append(layout.Zones, Zone{Type: stringValue(zone["type"])})
			case string:
				layout.Zones = append(layout.Zones, Zone{Type: zone})
			}
		}
	}
	if cols := numberValue(m["column_count"]); cols != nil {
		layout.ColumnCount = int(*cols)
	}
	if hdr, ok := m["has_header"].(bool); ok {
		layout.HasHeader = hdr
	}

	return layout
}

// regionFromValue accepts either a {x1,y1,x2,y2} map or a 4-element array.
func regionFromValue(v interface{}) (Region, bool) {
	switch r := v.(type) {
	case map[string]interface{}:
		x1 := numberValue(r["x1"])
		y1 := numberValue(r["y1"])
		x2 := numberValue(r["x2"])
		y2 := numberValue(r["y2"])
		if x1 == nil || y1 == nil || x2 == nil || y2 == nil {
			return Region{}, false
		}
		return NewRegion(*x1, *y1, *x2, *y2), true
	case []interface{}:
		if len(r) != 4 {
			return Region{}, false
		}
		coords := make([]float64, 4)
		for i, c := range r {
			n := numberValue(c)
			if n == nil {
				return Region{}, false
			}
			coords[i] = *n
		}
		return NewRegion(coords[0], coords[1], coords[2], coords[3]), true
	default:
		return Region{}, false
	}
}

// stringValue coerces a loosely typed value to a trimmed string.
func stringValue(v interface{}) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	case bool:
		return strconv.FormatBool(s)
	default:
		return ""
	}
}

// numberValue coerces a loosely typed value to a float, nil when absent or
// not numeric. Strings with currency separators are cleaned before parsing.
func numberValue(v interface{}) *float64 {
	switch n := v.(type) {
	case float64:
		return &n
	case int:
		f := float64(n)
		return &f
	case string:
		cleaned := strings.TrimSpace(strings.ReplaceAll(n, ",", ""))
		if cleaned == "" {
			return nil
		}
		f, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return nil
		}
		return &f
	default:
		return nil
	}
}
