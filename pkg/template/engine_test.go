package template

import (
	"sync"
	"testing"

	"github.com/qistas/templar/pkg/invoice"
)

// TestEngineLearnMatchScenario walks the canonical flow: learn an invoice,
// match the identical observation, repeat the learn and watch confidence
// saturate.
func TestEngineLearnMatchScenario(t *testing.T) {
	engine := NewEngine(DefaultConfig(t.TempDir()))

	total := 100.0
	obs := &invoice.Observation{
		Vendor: invoice.Vendor{TaxNumber: "300111111111111", Name: "Acme"},
		Totals: invoice.Totals{Total: &total},
	}

	id, learned := engine.Learn(obs)
	if !learned || id == "" {
		t.Fatal("expected the first learn to return a template id")
	}

	match := engine.FindMatchingTemplate(obs)
	if !match.Matched() || match.Score != 1.0 {
		t.Fatalf("expected exact match with score 1.0, got %+v", match)
	}
	if match.Template.SampleCount != 1 {
		t.Errorf("expected sample count 1, got %d", match.Template.SampleCount)
	}

	// Two more learns: sample count 3, confidence saturated at 0.95
	engine.Learn(obs)
	engine.Learn(obs)

	tpl, ok := engine.Template(id)
	if !ok {
		t.Fatal("template disappeared")
	}
	if tpl.SampleCount != 3 {
		t.Errorf("expected sample count 3, got %d", tpl.SampleCount)
	}
	if diff := tpl.ConfidenceScore - 0.95; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected saturated confidence 0.95, got %f", tpl.ConfidenceScore)
	}
}

// TestEnginePersistence verifies that a flushed engine state is visible to a
// freshly constructed engine over the same directory.
func TestEnginePersistence(t *testing.T) {
	dir := t.TempDir()

	engine := NewEngine(DefaultConfig(dir))
	id, _ := engine.Learn(testObservation())
	if err := engine.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	reopened := NewEngine(DefaultConfig(dir))
	if _, ok := reopened.Template(id); !ok {
		t.Error("template not visible after reopening the engine")
	}
}

// TestEngineStats checks the summary statistics.
func TestEngineStats(t *testing.T) {
	engine := NewEngine(DefaultConfig(t.TempDir()))

	if stats := engine.Stats(); stats.Count != 0 || stats.AvgConfidence != 0 {
		t.Errorf("empty engine stats should be zero, got %+v", stats)
	}

	// Vendor A: 3 samples (reliable), vendor B: 1 sample
	obsA := testObservation()
	engine.Learn(obsA)
	engine.Learn(obsA)
	engine.Learn(obsA)

	obsB := testObservation()
	obsB.Vendor.TaxNumber = "300222222222222"
	obsB.Vendor.Name = "Basma Foods"
	engine.Learn(obsB)

	stats := engine.Stats()
	if stats.Count != 2 {
		t.Errorf("expected 2 templates, got %d", stats.Count)
	}
	if stats.TotalSamples != 4 {
		t.Errorf("expected 4 total samples, got %d", stats.TotalSamples)
	}
	if diff := stats.AvgSamplesPerTemplate - 2.0; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected avg 2.0 samples, got %f", stats.AvgSamplesPerTemplate)
	}
	if stats.ReliableTemplates != 1 {
		t.Errorf("expected 1 reliable template, got %d", stats.ReliableTemplates)
	}
	// Averaged over 0.95 and 0.5
	if diff := stats.AvgConfidence - 0.725; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected avg confidence 0.725, got %f", stats.AvgConfidence)
	}
}

// TestEngineConcurrentReads hammers lookups while learns are in flight; the
// store's read-write locking must keep this race free.
func TestEngineConcurrentReads(t *testing.T) {
	engine := NewEngine(DefaultConfig(t.TempDir()))
	engine.Learn(testObservation())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				match := engine.FindMatchingTemplate(testObservation())
				if !match.Matched() {
					t.Error("concurrent read lost the template")
					return
				}
			}
		}()
	}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				engine.Learn(testObservation())
			}
		}()
	}
	wg.Wait()

	tpl, _ := engine.Template(TemplateID("300111111111111"))
	if tpl.SampleCount != 101 {
		t.Errorf("expected 101 samples after concurrent learns, got %d", tpl.SampleCount)
	}
}

// TestRegistryLifecycle verifies per-language engine creation, reuse, and
// teardown.
func TestRegistryLifecycle(t *testing.T) {
	registry := NewRegistry(DefaultConfig(t.TempDir()))

	en := registry.Get("en")
	if en == nil {
		t.Fatal("expected an engine for en")
	}
	if registry.Get("en") != en {
		t.Error("expected the same engine instance on repeated Get")
	}

	ar := registry.Get("ar")
	if ar == en {
		t.Error("different languages should get different engines")
	}

	// Language stores are isolated
	en.Learn(testObservation())
	if ar.Stats().Count != 0 {
		t.Error("learn in one language leaked into another")
	}

	if langs := registry.Languages(); len(langs) != 2 {
		t.Errorf("expected 2 registered languages, got %v", langs)
	}

	if err := registry.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if langs := registry.Languages(); len(langs) != 0 {
		t.Errorf("expected no engines after close, got %v", langs)
	}
}
