package template

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// ErrTemplateNotFound is returned by operations that require an existing
// template id.
var ErrTemplateNotFound = errors.New("template not found")

// storeFileName is the record set file kept inside a store directory.
const storeFileName = "templates.json"

// Store is the persistent keyed collection of invoice templates.
//
// All access goes through a read-write lock: lookups run concurrently,
// updates are exclusive. Persistence is a single JSON record set per store
// directory, written with a temp-file-then-rename discipline so a failed
// save can never corrupt previously durable state.
type Store struct {
	mu           sync.RWMutex
	dir          string
	maxTemplates int
	templates    map[string]*InvoiceTemplate
	logger       io.Writer
}

// NewStore creates a store persisting into dir. maxTemplates bounds the
// collection; zero or negative means unbounded. A nil logger discards
// warnings.
func NewStore(dir string, maxTemplates int, logger io.Writer) *Store {
	return &Store{
		dir:          dir,
		maxTemplates: maxTemplates,
		templates:    make(map[string]*InvoiceTemplate),
		logger:       logger,
	}
}

// warnf logs a persistence warning. Persistence problems are never fatal.
func (s *Store) warnf(format string, args ...interface{}) {
	if s.logger != nil {
		fmt.Fprintf(s.logger, "templates: "+format+"\n", args...)
	}
}

// Load reads the persisted record set. Missing or corrupt state is logged
// and leaves the store empty; Load never fails the caller.
func (s *Store) Load() {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, storeFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.warnf("failed to read %s, starting empty: %v", path, err)
		}
		return
	}

	loaded := make(map[string]*InvoiceTemplate)
	if err := json.Unmarshal(data, &loaded); err != nil {
		s.warnf("corrupt template state in %s, starting empty: %v", path, err)
		return
	}

	for id, tpl := range loaded {
		if tpl == nil || tpl.TemplateID == "" || tpl.TemplateID != id {
			s.warnf("dropping malformed template record %q", id)
			continue
		}
		if tpl.Fields == nil {
			tpl.Fields = make(map[string]*FieldInfo)
		}
		s.templates[id] = tpl
	}
}

// Save persists the full template set atomically. The in-memory state stays
// intact when the write fails; the error is returned for callers that need
// it and logged for those that do not.
func (s *Store) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writeRecordSet(filepath.Join(s.dir, storeFileName), s.templates)
}

// writeRecordSet marshals a record set and writes it via temp file + rename.
func (s *Store) writeRecordSet(path string, records map[string]*InvoiceTemplate) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		s.warnf("failed to marshal templates: %v", err)
		return fmt.Errorf("failed to marshal templates: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		s.warnf("failed to create store directory: %v", err)
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, storeFileName+".tmp-*")
	if err != nil {
		s.warnf("failed to create temp file: %v", err)
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		s.warnf("failed to write templates: %v", err)
		return fmt.Errorf("failed to write templates: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		s.warnf("failed to close temp file: %v", err)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		s.warnf("failed to replace %s: %v", path, err)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// Get returns the template with the given id.
func (s *Store) Get(id string) (*InvoiceTemplate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tpl, ok := s.templates[id]
	return tpl, ok
}

// Put inserts or replaces a template. When the capacity bound is exceeded
// the least-recently-updated template is evicted.
func (s *Store) Put(tpl *InvoiceTemplate) {
	if tpl == nil || tpl.TemplateID == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.templates[tpl.TemplateID] = tpl

	for s.maxTemplates > 0 && len(s.templates) > s.maxTemplates {
		oldest := ""
		for id, candidate := range s.templates {
			if oldest == "" || candidate.LastUpdated.Before(s.templates[oldest].LastUpdated) {
				oldest = id
			}
		}
		s.warnf("capacity %d exceeded, evicting least recently updated template %s",
			s.maxTemplates, oldest)
		delete(s.templates, oldest)
	}
}

// Remove deletes a template by id, reporting whether it existed.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.templates[id]
	delete(s.templates, id)
	return ok
}

// List returns all templates. The returned slice is a fresh snapshot but the
// templates themselves are shared; callers must not mutate them.
func (s *Store) List() []*InvoiceTemplate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := make([]*InvoiceTemplate, 0, len(s.templates))
	for _, tpl := range s.templates {
		list = append(list, tpl)
	}
	return list
}

// Len returns the number of stored templates.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.templates)
}

// Clear removes all templates from memory.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates = make(map[string]*InvoiceTemplate)
}

// Export writes the current template set to an arbitrary path in the same
// shape as the persisted record set. I/O errors are surfaced to the caller.
func (s *Store) Export(path string) error {
	s.mu.RLock()
	snapshot := make(map[string]*InvoiceTemplate, len(s.templates))
	for id, tpl := range s.templates {
		snapshot[id] = tpl.clone()
	}
	s.mu.RUnlock()

	return s.writeRecordSet(path, snapshot)
}

// Import merges a record set from an arbitrary path into the store. Per
// template id the record with the higher sample count wins. It returns the
// number of templates added and replaced.
func (s *Store) Import(path string) (added, replaced int, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read import file: %w", err)
	}

	incoming := make(map[string]*InvoiceTemplate)
	if err := json.Unmarshal(data, &incoming); err != nil {
		return 0, 0, fmt.Errorf("failed to parse import file: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, tpl := range incoming {
		if tpl == nil || tpl.TemplateID == "" || tpl.TemplateID != id {
			s.warnf("skipping malformed import record %q", id)
			continue
		}
		if tpl.Fields == nil {
			tpl.Fields = make(map[string]*FieldInfo)
		}
		existing, ok := s.templates[id]
		if !ok {
			s.templates[id] = tpl
			added++
			continue
		}
		if tpl.SampleCount > existing.SampleCount {
			s.templates[id] = tpl
			replaced++
		}
	}

	return added, replaced, nil
}
