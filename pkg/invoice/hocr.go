package invoice

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/text/encoding/charmap"
)

// BlocksFromHOCR extracts positioned text blocks from an hOCR document.
//
// Each ocr_line element becomes one TextBlock whose box is normalized against
// the page bbox, so the blocks land in the same coordinate space as template
// regions. Pages without a bbox are skipped since their geometry cannot be
// normalized.
func BlocksFromHOCR(data []byte) ([]TextBlock, error) {
	// Figure out the character encoding
	content := string(data)
	decoded := data
	if strings.Contains(content, "charset=") && !strings.Contains(strings.ToLower(content), "charset=utf-8") {
		converted, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode hOCR data: %w", err)
		}
		decoded = converted
	}

	doc, err := html.Parse(strings.NewReader(string(decoded)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse hOCR HTML: %w", err)
	}

	var blocks []TextBlock

	var findPages func(*html.Node)
	findPages = func(n *html.Node) {
		if n.Type == html.ElementNode && hasClass(n, "ocr_page") {
			pageBox, ok := bboxFromTitle(attrValue(n, "title"))
			if ok && pageBox.X2 > pageBox.X1 && pageBox.Y2 > pageBox.Y1 {
				collectLines(n, pageBox, &blocks)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			findPages(c)
		}
	}
	findPages(doc)

	return blocks, nil
}

// collectLines walks a page subtree and emits one block per ocr_line.
func collectLines(n *html.Node, page Region, blocks *[]TextBlock) {
	if n.Type == html.ElementNode && hasClass(n, "ocr_line") {
		text := strings.Join(strings.Fields(nodeText(n)), " ")
		if text == "" {
			return
		}
		block := TextBlock{Text: text}
		if box, ok := bboxFromTitle(attrValue(n, "title")); ok {
			normalized := NewRegion(
				(box.X1-page.X1)/(page.X2-page.X1),
				(box.Y1-page.Y1)/(page.Y2-page.Y1),
				(box.X2-page.X1)/(page.X2-page.X1),
				(box.Y2-page.Y1)/(page.Y2-page.Y1),
			)
			block.Box = &normalized
		}
		*blocks = append(*blocks, block)
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectLines(c, page, blocks)
	}
}

// bboxFromTitle parses the "bbox x1 y1 x2 y2" property out of an hOCR title
// attribute. Properties in the title are semicolon separated.
func bboxFromTitle(title string) (Region, bool) {
	for _, prop := range strings.Split(title, ";") {
		fields := strings.Fields(strings.TrimSpace(prop))
		if len(fields) != 5 || fields[0] != "bbox" {
			continue
		}
		coords := make([]float64, 4)
		ok := true
		for i, f := range fields[1:] {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				ok = false
				break
			}
			coords[i] = v
		}
		if ok {
			return NewRegion(coords[0], coords[1], coords[2], coords[3]), true
		}
	}
	return Region{}, false
}

// hasClass reports whether the node's class attribute contains the class.
func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Key == "class" && strings.Contains(a.Val, class) {
			return true
		}
	}
	return false
}

// attrValue returns the value of the named attribute, or "".
func attrValue(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// nodeText concatenates all text content under a node.
func nodeText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(nodeText(c))
		sb.WriteString(" ")
	}
	return sb.String()
}
