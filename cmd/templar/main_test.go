package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/qistas/templar/pkg/invoice"
)

// writeConfigFile drops a YAML config into a temp directory.
func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "templar.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// TestLoadConfigDefaults covers the no-config-file path.
func TestLoadConfigDefaults(t *testing.T) {
	cfg, proc, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.StoreDir != "./templates" {
		t.Errorf("unexpected default store dir: %q", cfg.StoreDir)
	}
	if !cfg.AutoPersist {
		t.Error("the CLI should auto-persist by default")
	}
	if processorConfigured(proc) {
		t.Errorf("no config file should leave the processor unset: %+v", proc)
	}
}

// TestLoadConfigAutoPersistOmitted verifies that a config file which never
// mentions auto_persist keeps the CLI default instead of zeroing it.
func TestLoadConfigAutoPersistOmitted(t *testing.T) {
	path := writeConfigFile(t, "store_dir: /var/lib/templar\nmax_templates: 50\n")

	cfg, _, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if !cfg.AutoPersist {
		t.Error("omitted auto_persist must keep the default, not overwrite it")
	}
	if cfg.StoreDir != "/var/lib/templar" || cfg.MaxTemplates != 50 {
		t.Errorf("other keys not applied: %+v", cfg)
	}
}

// TestLoadConfigAutoPersistExplicit verifies that an explicit value wins
// either way.
func TestLoadConfigAutoPersistExplicit(t *testing.T) {
	tests := []struct {
		yaml string
		want bool
	}{
		{"auto_persist: false\n", false},
		{"auto_persist: true\n", true},
	}

	for _, test := range tests {
		cfg, _, err := loadConfig(writeConfigFile(t, test.yaml))
		if err != nil {
			t.Fatalf("loadConfig failed: %v", err)
		}
		if cfg.AutoPersist != test.want {
			t.Errorf("%q: auto-persist = %t, expected %t", test.yaml, cfg.AutoPersist, test.want)
		}
	}
}

// TestLoadConfigProcessor covers the Document AI processor settings feeding
// the -process command.
func TestLoadConfigProcessor(t *testing.T) {
	path := writeConfigFile(t, `store_dir: ./templates
processor:
  project_id: "my-project"
  location: "eu"
  processor_id: "abc123"
`)

	_, proc, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	want := invoice.ProcessorConfig{ProjectID: "my-project", Location: "eu", ProcessorID: "abc123"}
	if proc != want {
		t.Errorf("processor settings = %+v, expected %+v", proc, want)
	}
	if !processorConfigured(proc) {
		t.Error("fully specified processor settings should be usable")
	}
}

// TestProcessorConfigured rejects partial processor settings so -process
// fails fast instead of sending a doomed request.
func TestProcessorConfigured(t *testing.T) {
	tests := []struct {
		cfg  invoice.ProcessorConfig
		want bool
	}{
		{invoice.ProcessorConfig{}, false},
		{invoice.ProcessorConfig{ProjectID: "p"}, false},
		{invoice.ProcessorConfig{ProjectID: "p", Location: "eu"}, false},
		{invoice.ProcessorConfig{ProjectID: "p", Location: "eu", ProcessorID: "x"}, true},
	}

	for _, test := range tests {
		if got := processorConfigured(test.cfg); got != test.want {
			t.Errorf("processorConfigured(%+v) = %t, expected %t", test.cfg, got, test.want)
		}
	}
}
