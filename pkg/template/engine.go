package template

import (
	"fmt"
	"io"
	"path/filepath"
	"sync"

	"github.com/qistas/templar/pkg/invoice"
)

// Config holds the engine settings.
type Config struct {
	// StoreDir is the directory holding the persisted template record set.
	StoreDir string `yaml:"store_dir"`

	// MaxTemplates bounds the store; zero means unbounded.
	MaxTemplates int `yaml:"max_templates"`

	// AutoPersist flushes the store after every successful learn. Leave it
	// off to keep disk I/O away from the matching hot path and call Flush
	// explicitly instead.
	AutoPersist bool `yaml:"auto_persist"`

	// MatchThreshold is the fuzzy acceptance threshold; zero selects
	// DefaultMatchThreshold.
	MatchThreshold float64 `yaml:"match_threshold"`

	// Logger receives persistence warnings (nil = discard).
	Logger io.Writer `yaml:"-"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig(storeDir string) Config {
	return Config{
		StoreDir:       storeDir,
		MaxTemplates:   1000,
		AutoPersist:    false,
		MatchThreshold: DefaultMatchThreshold,
	}
}

// Engine bundles the store, builder, matcher and hint generator behind the
// surface the extraction pipeline consumes.
type Engine struct {
	store   *Store
	builder *Builder
	matcher *Matcher
	hints   *HintGenerator
}

// NewEngine creates an engine and loads any persisted templates from the
// store directory. Missing or corrupt persisted state starts the engine
// empty; it never fails construction.
func NewEngine(cfg Config) *Engine {
	store := NewStore(cfg.StoreDir, cfg.MaxTemplates, cfg.Logger)
	store.Load()

	return &Engine{
		store:   store,
		builder: NewBuilder(store, cfg.AutoPersist),
		matcher: NewMatcher(store, cfg.MatchThreshold),
		hints:   NewHintGenerator(store),
	}
}

// Learn updates the template set from one processed document.
// It returns the template id and true, or ("", false) when the observation
// carries no vendor tax identifier.
func (e *Engine) Learn(obs *invoice.Observation) (string, bool) {
	return e.builder.Learn(obs)
}

// FindMatchingTemplate resolves an observation to a known template,
// exact-first then fuzzy. The zero TemplateMatch means no match.
func (e *Engine) FindMatchingTemplate(obs *invoice.Observation) TemplateMatch {
	return e.matcher.Find(obs)
}

// ApplyTemplate pairs the text blocks of a concrete document with the keyed
// template's expected field regions. The boolean is false for unknown keys.
func (e *Engine) ApplyTemplate(blocks []invoice.TextBlock, templateID string) (map[string]RegionHint, bool) {
	return e.hints.Apply(blocks, templateID)
}

// Template returns a stored template by id.
func (e *Engine) Template(id string) (*InvoiceTemplate, bool) {
	return e.store.Get(id)
}

// Templates returns a snapshot of all stored templates.
func (e *Engine) Templates() []*InvoiceTemplate {
	return e.store.List()
}

// RemoveTemplate deletes a template by id, reporting whether it existed.
func (e *Engine) RemoveTemplate(id string) bool {
	return e.store.Remove(id)
}

// Clear drops all templates from memory.
func (e *Engine) Clear() {
	e.store.Clear()
}

// Flush persists the current template set.
func (e *Engine) Flush() error {
	return e.store.Save()
}

// Close flushes the store. The engine must not be used afterwards.
func (e *Engine) Close() error {
	return e.store.Save()
}

// Export writes the template set to an arbitrary path.
func (e *Engine) Export(path string) error {
	return e.store.Export(path)
}

// Import merges a template record set from an arbitrary path; per template
// id the record with the higher sample count wins.
func (e *Engine) Import(path string) (added, replaced int, err error) {
	return e.store.Import(path)
}

// Stats summarizes the learned template set.
type Stats struct {
	Count                 int     `json:"count"`
	TotalSamples          int     `json:"total_samples"`
	AvgSamplesPerTemplate float64 `json:"avg_samples_per_template"`
	AvgConfidence         float64 `json:"avg_confidence"`
	// ReliableTemplates counts templates backed by at least 3 samples.
	ReliableTemplates int `json:"reliable_templates"`
}

// Stats computes summary statistics over the stored templates.
func (e *Engine) Stats() Stats {
	templates := e.store.List()

	stats := Stats{Count: len(templates)}
	if stats.Count == 0 {
		return stats
	}

	var confidenceSum float64
	for _, tpl := range templates {
		stats.TotalSamples += tpl.SampleCount
		confidenceSum += tpl.ConfidenceScore
		if tpl.SampleCount >= 3 {
			stats.ReliableTemplates++
		}
	}
	stats.AvgSamplesPerTemplate = float64(stats.TotalSamples) / float64(stats.Count)
	stats.AvgConfidence = confidenceSum / float64(stats.Count)
	return stats
}

// Registry is an explicit collection of engines keyed by language code.
// It replaces implicit process-wide engine caching with defined creation
// and teardown.
type Registry struct {
	mu      sync.Mutex
	base    Config
	engines map[string]*Engine
}

// NewRegistry creates a registry. Each language's engine persists into a
// per-language subdirectory of the base store directory.
func NewRegistry(base Config) *Registry {
	return &Registry{
		base:    base,
		engines: make(map[string]*Engine),
	}
}

// Get returns the engine for a language, creating it on first use.
func (r *Registry) Get(language string) *Engine {
	r.mu.Lock()
	defer r.mu.Unlock()

	if engine, ok := r.engines[language]; ok {
		return engine
	}

	cfg := r.base
	cfg.StoreDir = filepath.Join(r.base.StoreDir, language)
	engine := NewEngine(cfg)
	r.engines[language] = engine
	return engine
}

// Languages lists the languages with a created engine.
func (r *Registry) Languages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	langs := make([]string, 0, len(r.engines))
	for lang := range r.engines {
		langs = append(langs, lang)
	}
	return langs
}

// Close flushes and releases every engine. The first flush error is
// returned after all engines have been attempted.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for lang, engine := range r.engines {
		if err := engine.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close engine %q: %w", lang, err)
		}
		delete(r.engines, lang)
	}
	return firstErr
}
