// Package regionpdf renders a learned invoice template as a PDF overlay.
//
// Each field's expected region is drawn as a labeled rectangle on an empty
// page, colored by its position category. The overlay makes a learned layout
// inspectable: drop it on top of a sample invoice in a PDF reader and the
// rectangles show where the engine expects each field to appear.
package regionpdf

import (
	"bytes"
	"fmt"
	"sort"

	"codeberg.org/go-pdf/fpdf"
	"golang.org/x/text/encoding/charmap"

	"github.com/qistas/templar/pkg/template"
)

// RenderConfig holds user options for the overlay rendering.
type RenderConfig struct {
	LayerName string  // Name of the PDF layer holding the overlay
	FontName  string  // Label font (e.g. "Helvetica")
	FontSize  float64 // Label font size in points
	PageW     float64 // Page width in mm
	PageH     float64 // Page height in mm
}

// DefaultRenderConfig returns a config with sensible defaults (A4 portrait).
func DefaultRenderConfig() RenderConfig {
	return RenderConfig{
		LayerName: "Template Regions",
		FontName:  "Helvetica",
		FontSize:  8,
		PageW:     210,
		PageH:     297,
	}
}

// positionColors maps a field's position category to its outline color.
var positionColors = map[template.Position][3]int{
	template.PositionHeader: {41, 98, 255},  // blue
	template.PositionBody:   {46, 125, 50},  // green
	template.PositionFooter: {198, 40, 40},  // red
}

// RenderTemplate draws the template's expected field regions onto a single
// PDF page and returns the PDF bytes. Fields without a learned region are
// listed below the title instead of drawn.
func RenderTemplate(tpl *template.InvoiceTemplate, cfg RenderConfig) ([]byte, error) {
	if tpl == nil {
		return nil, fmt.Errorf("no template provided")
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont(cfg.FontName, "", cfg.FontSize)

	// Title line with the vendor identity
	title := fmt.Sprintf("%s (%s) - %d samples, confidence %.2f",
		tpl.VendorName, tpl.VendorTaxNumber, tpl.SampleCount, tpl.ConfidenceScore)
	pdf.Text(10, 8, latin1(title))

	layer := pdf.AddLayer(cfg.LayerName, true)
	pdf.BeginLayer(layer)

	// Deterministic drawing order keeps output reproducible
	names := make([]string, 0, len(tpl.Fields))
	for name := range tpl.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var unplaced []string
	for _, name := range names {
		field := tpl.Fields[name]
		if field.ExpectedRegion.IsZero() {
			unplaced = append(unplaced, name)
			continue
		}
		drawRegion(pdf, name, field, cfg)
	}

	pdf.EndLayer()

	// List fields that have no learned region yet
	y := 12.0
	for _, name := range unplaced {
		pdf.SetTextColor(120, 120, 120)
		pdf.Text(10, y, latin1("no region: "+name))
		y += 4
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render template overlay: %w", err)
	}
	return buf.Bytes(), nil
}

// drawRegion draws one field's rectangle and label at its page position.
func drawRegion(pdf *fpdf.Fpdf, name string, field *template.FieldInfo, cfg RenderConfig) {
	region := field.ExpectedRegion
	x := region.X1 * cfg.PageW
	y := region.Y1 * cfg.PageH
	w := (region.X2 - region.X1) * cfg.PageW
	h := (region.Y2 - region.Y1) * cfg.PageH

	color, ok := positionColors[field.Position]
	if !ok {
		color = [3]int{80, 80, 80}
	}
	pdf.SetDrawColor(color[0], color[1], color[2])
	pdf.SetTextColor(color[0], color[1], color[2])

	pdf.Rect(x, y, w, h, "D")

	label := fmt.Sprintf("%s (%.2f)", name, field.Confidence)
	pdf.Text(x, y-1, latin1(label))
}

// latin1 converts text to ISO-8859-1 to avoid PDF encoding issues,
// falling back to the raw text when conversion fails.
func latin1(text string) string {
	converted, err := charmap.ISO8859_1.NewEncoder().String(text)
	if err != nil {
		return text
	}
	return converted
}
