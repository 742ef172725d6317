package template

import (
	"regexp"
	"sync"
	"time"

	"github.com/qistas/templar/pkg/invoice"
)

// Builder derives field metadata from structured extraction results and
// creates or incrementally updates templates in a store.
//
// Learns for the same vendor are serialized by the builder's mutex so two
// concurrent observations can never interleave the region averaging
// arithmetic; one write per processed document keeps contention negligible.
type Builder struct {
	mu          sync.Mutex
	store       *Store
	autoPersist bool
	now         func() time.Time
}

// NewBuilder creates a builder over the given store. When autoPersist is set
// every successful learn flushes the store to disk.
func NewBuilder(store *Store, autoPersist bool) *Builder {
	return &Builder{
		store:       store,
		autoPersist: autoPersist,
		now:         time.Now,
	}
}

// Learn updates the store from one processed document.
//
// An observation without a vendor tax identifier carries no stable key;
// that is not an error. Learn returns ("", false) and leaves the store
// unchanged. Otherwise it returns the deterministic template id and true.
func (b *Builder) Learn(obs *invoice.Observation) (string, bool) {
	if obs == nil || obs.Vendor.TaxNumber == "" {
		return "", false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	id := TemplateID(obs.Vendor.TaxNumber)
	now := b.now()

	// Copy-on-write: mutate a clone and swap it in, so concurrent matchers
	// keep reading a consistent snapshot of the previous revision.
	tpl, exists := b.store.Get(id)
	if !exists {
		tpl = b.newTemplate(id, obs, now)
	} else {
		tpl = tpl.clone()
		b.updateTemplate(tpl, obs, now)
	}

	b.store.Put(tpl)

	if b.autoPersist {
		// Save failures leave the in-memory state intact and are logged by
		// the store; learning itself still succeeded.
		_ = b.store.Save()
	}

	return id, true
}

// newTemplate builds a first-observation template: a fixed low confidence
// prior and one FieldInfo per catalogue field present in the observation.
func (b *Builder) newTemplate(id string, obs *invoice.Observation, now time.Time) *InvoiceTemplate {
	tpl := &InvoiceTemplate{
		TemplateID:      id,
		VendorName:      obs.Vendor.Name,
		VendorTaxNumber: obs.Vendor.TaxNumber,
		DocumentType:    obs.DocumentType,
		Fields:          make(map[string]*FieldInfo),
		LayoutSignature: LayoutSignature(obs.Layout),
		SampleCount:     1,
		LastUpdated:     now,
		ConfidenceScore: 0.5,
	}

	for _, path := range obs.PresentFields() {
		fieldType, position, _ := catalogueEntry(path)
		field := &FieldInfo{
			Name:            path,
			Type:            fieldType,
			Position:        position,
			OccurrenceCount: 1,
			Confidence:      fieldConfidence(1),
		}
		if region, ok := obs.Region(path); ok {
			field.ExpectedRegion = region
		}
		field.LabelPatterns = mergePatterns(nil, obs.Labels[path])
		field.ValuePatterns = mergePatterns(nil, valuePatterns(path, obs))
		tpl.Fields[path] = field
	}

	return tpl
}

// updateTemplate folds one more observation into an existing template.
func (b *Builder) updateTemplate(tpl *InvoiceTemplate, obs *invoice.Observation, now time.Time) {
	for _, path := range obs.PresentFields() {
		field, ok := tpl.Fields[path]
		if !ok {
			fieldType, position, _ := catalogueEntry(path)
			field = &FieldInfo{
				Name:     path,
				Type:     fieldType,
				Position: position,
			}
			tpl.Fields[path] = field
		}

		if region, ok := obs.Region(path); ok {
			field.ExpectedRegion = averageRegion(field.ExpectedRegion, region, field.OccurrenceCount)
		}
		field.LabelPatterns = mergePatterns(field.LabelPatterns, obs.Labels[path])
		field.ValuePatterns = mergePatterns(field.ValuePatterns, valuePatterns(path, obs))

		field.OccurrenceCount++
		field.Confidence = fieldConfidence(field.OccurrenceCount)
	}

	if obs.Vendor.Name != "" {
		tpl.VendorName = obs.Vendor.Name
	}
	if obs.DocumentType != "" {
		tpl.DocumentType = obs.DocumentType
	}
	if sig := LayoutSignature(obs.Layout); sig != "" {
		tpl.LayoutSignature = sig
	}

	tpl.SampleCount++
	tpl.LastUpdated = now
	tpl.ConfidenceScore = templateConfidence(tpl.SampleCount)
}

// fieldConfidence grows with each re-observation of a field, capped below 1.
func fieldConfidence(occurrences int) float64 {
	c := 0.5 + 0.1*float64(occurrences)
	if c > confidenceCeiling {
		return confidenceCeiling
	}
	return c
}

// templateConfidence saturates after three observations so a single noisy
// sample is never over-trusted and residual uncertainty is always retained.
func templateConfidence(sampleCount int) float64 {
	n := sampleCount
	if n > 3 {
		n = 3
	}
	c := 0.5 + 0.15*float64(n)
	if c > confidenceCeiling {
		return confidenceCeiling
	}
	return c
}

// averageRegion blends the learned region with a newly observed one.
// The prior is weighted by how often the field has been seen, so estimates
// stabilize as observations accumulate. A zero prior adopts the new region.
func averageRegion(old, observed invoice.Region, priorWeight int) invoice.Region {
	if old.IsZero() || priorWeight < 1 {
		return observed
	}
	w := float64(priorWeight)
	total := w + 1
	return invoice.Region{
		X1: (old.X1*w + observed.X1) / total,
		Y1: (old.Y1*w + observed.Y1) / total,
		X2: (old.X2*w + observed.X2) / total,
		Y2: (old.Y2*w + observed.Y2) / total,
	}
}

// mergePatterns unions new patterns into an existing set, preserving order.
func mergePatterns(existing, incoming []string) []string {
	if len(incoming) == 0 {
		return existing
	}
	seen := make(map[string]bool, len(existing))
	for _, p := range existing {
		seen[p] = true
	}
	for _, p := range incoming {
		if p != "" && !seen[p] {
			existing = append(existing, p)
			seen[p] = true
		}
	}
	return existing
}

var (
	digitsOnly  = regexp.MustCompile(`^\d+$`)
	datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)
)

// valuePatterns derives coarse value-shape patterns for a field from the
// observation, e.g. "numeric" for an all-digit tax number.
func valuePatterns(path string, obs *invoice.Observation) []string {
	switch path {
	case invoice.FieldVendorTaxNumber:
		if digitsOnly.MatchString(obs.Vendor.TaxNumber) {
			return []string{"numeric"}
		}
		return []string{"alphanumeric"}
	case invoice.FieldInvoiceDate:
		if datePattern.MatchString(obs.Invoice.Date) {
			return []string{"date-iso"}
		}
		return []string{"date"}
	case invoice.FieldTotal, invoice.FieldSubtotal, invoice.FieldTaxAmount:
		return []string{"amount"}
	case invoice.FieldLineItems:
		return []string{"table"}
	default:
		return nil
	}
}
