// templar is a command-line tool for managing learned invoice templates.
//
// It wraps the template engine: feed it processed invoice observations to
// learn per-vendor layouts, match later observations against the learned set,
// apply a template's field regions to OCR text blocks, and inspect or move
// the template store. With Document AI processor settings configured it can
// also OCR a raw PDF end to end and learn from the result.
//
// Configuration:
//
// The tool reads an optional YAML configuration file:
//
//	store_dir: "./templates"
//	max_templates: 1000
//	auto_persist: true
//	match_threshold: 0.5
//	processor:
//	  project_id: "my-project"
//	  location: "eu"
//	  processor_id: "abc123"
//
// Usage:
//
//	templar -store ./templates [command flags]
//
// Commands (exactly one required):
//
//	-learn string     Path to an observation JSON file to learn from
//	-process string   Path to a PDF to OCR via Document AI and learn from
//	-match string     Path to an observation JSON file to match
//	-apply string     Path to a text blocks JSON file to apply a template to
//	-stats            Print template store statistics
//	-export string    Path to export the template set to
//	-import string    Path to import a template set from
//	-render string    Template id to render as a region overlay PDF
//
// Supporting flags:
//
//	-config string    Path to the YAML configuration file
//	-store string     Store directory (overrides the config file)
//	-template string  Template id for -apply
//	-hocr             Treat the -apply input as hOCR instead of JSON blocks
//	-output string    Output path for -render
//	-docai            Treat -learn/-match input as a raw Document AI response dump
//
// Example:
//
//	templar -store ./templates -learn invoice_0042.json
//	templar -config templar.yaml -process invoice_0042.pdf
//	templar -store ./templates -match unknown_vendor.json
//	templar -store ./templates -apply blocks.json -template 6a1f0c2d9b3e4f58
//	templar -store ./templates -render 6a1f0c2d9b3e4f58 -output layout.pdf
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"google.golang.org/protobuf/encoding/protojson"
	"gopkg.in/yaml.v3"

	"github.com/qistas/templar/pkg/invoice"
	"github.com/qistas/templar/pkg/regionpdf"
	"github.com/qistas/templar/pkg/template"
)

type yamlConfig struct {
	StoreDir       string                  `yaml:"store_dir"`
	MaxTemplates   int                     `yaml:"max_templates"`
	AutoPersist    *bool                   `yaml:"auto_persist"`
	MatchThreshold float64                 `yaml:"match_threshold"`
	Processor      invoice.ProcessorConfig `yaml:"processor"`
}

// loadConfig reads a YAML file and converts it to an engine config plus the
// optional Document AI processor settings.
func loadConfig(path string) (template.Config, invoice.ProcessorConfig, error) {
	cfg := template.DefaultConfig("./templates")
	cfg.AutoPersist = true
	cfg.Logger = os.Stderr
	var proc invoice.ProcessorConfig

	if path == "" {
		return cfg, proc, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, proc, err
	}
	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return cfg, proc, err
	}
	if yc.StoreDir != "" {
		cfg.StoreDir = yc.StoreDir
	}
	if yc.MaxTemplates > 0 {
		cfg.MaxTemplates = yc.MaxTemplates
	}
	if yc.MatchThreshold > 0 {
		cfg.MatchThreshold = yc.MatchThreshold
	}
	// A pointer distinguishes an omitted key from an explicit false, so a
	// config file that never mentions auto_persist keeps the default.
	if yc.AutoPersist != nil {
		cfg.AutoPersist = *yc.AutoPersist
	}
	return cfg, yc.Processor, nil
}

// processorConfigured reports whether all Document AI processor settings
// needed for -process are present.
func processorConfigured(cfg invoice.ProcessorConfig) bool {
	return cfg.ProjectID != "" && cfg.Location != "" && cfg.ProcessorID != ""
}

// loadObservation reads an observation from a JSON file, either the engine's
// native shape or a raw Document AI response dump.
func loadObservation(path string, docai bool) (*invoice.Observation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if docai {
		var doc documentaipb.Document
		if err := protojson.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse Document AI response: %w", err)
		}
		return invoice.ObservationFromProto(&doc), nil
	}

	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse observation JSON: %w", err)
	}
	return invoice.ParseExtractionResult(raw)
}

// printJSON writes a value as indented JSON to stdout.
func printJSON(v interface{}) {
	out, err := invoice.ToJSON(v)
	if err != nil {
		log.Fatalf("Failed to encode result: %v", err)
	}
	fmt.Println(out)
}

func main() {
	configPath := flag.String("config", "", "Path to the config YAML file")
	storeDir := flag.String("store", "", "Store directory (overrides config)")

	learnPath := flag.String("learn", "", "Path to an observation JSON file to learn from")
	processPath := flag.String("process", "", "Path to a PDF to OCR via Document AI and learn from")
	matchPath := flag.String("match", "", "Path to an observation JSON file to match")
	applyPath := flag.String("apply", "", "Path to a text blocks JSON file to apply a template to")
	statsFlag := flag.Bool("stats", false, "Print template store statistics")
	exportPath := flag.String("export", "", "Path to export the template set to")
	importPath := flag.String("import", "", "Path to import a template set from")
	renderID := flag.String("render", "", "Template id to render as a region overlay PDF")

	templateID := flag.String("template", "", "Template id for -apply")
	hocrInput := flag.Bool("hocr", false, "Treat the -apply input as hOCR instead of JSON blocks")
	outputPath := flag.String("output", "", "Output path for -render")
	docaiInput := flag.Bool("docai", false, "Treat -learn/-match input as a raw Document AI response dump")

	flag.Parse()

	// Exactly one command must be selected
	commands := 0
	for _, selected := range []bool{
		*learnPath != "", *processPath != "", *matchPath != "", *applyPath != "",
		*statsFlag, *exportPath != "", *importPath != "", *renderID != "",
	} {
		if selected {
			commands++
		}
	}
	if commands != 1 {
		fmt.Fprintln(os.Stderr, "Error: exactly one of -learn, -process, -match, -apply, -stats, -export, -import, -render must be provided")
		fmt.Fprintln(os.Stderr, "Usage:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	cfg, proc, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *storeDir != "" {
		cfg.StoreDir = *storeDir
	}

	engine := template.NewEngine(cfg)
	defer func() {
		if err := engine.Close(); err != nil {
			log.Printf("Failed to persist templates: %v", err)
		}
	}()

	switch {
	case *learnPath != "":
		obs, err := loadObservation(*learnPath, *docaiInput)
		if err != nil {
			log.Fatalf("Failed to load observation: %v", err)
		}
		id, learned := engine.Learn(obs)
		if !learned {
			fmt.Println("Observation has no vendor tax number; nothing learned")
			return
		}
		fmt.Println("Learned template:", id)

	case *processPath != "":
		if !processorConfigured(proc) {
			log.Fatalf("-process requires processor settings (project_id, location, processor_id) in the config file")
		}
		pdfBytes, err := os.ReadFile(*processPath)
		if err != nil {
			log.Fatalf("Failed to read PDF: %v", err)
		}
		doc, err := invoice.ProcessInvoice(context.Background(), pdfBytes, &proc)
		if err != nil {
			log.Fatalf("Failed to process PDF: %v", err)
		}
		id, learned := engine.Learn(invoice.ObservationFromProto(doc))
		if !learned {
			fmt.Println("Processed document has no vendor tax number; nothing learned")
			return
		}
		fmt.Println("Learned template:", id)

	case *matchPath != "":
		obs, err := loadObservation(*matchPath, *docaiInput)
		if err != nil {
			log.Fatalf("Failed to load observation: %v", err)
		}
		match := engine.FindMatchingTemplate(obs)
		if !match.Matched() {
			fmt.Println("No matching template")
			return
		}
		printJSON(match)

	case *applyPath != "":
		if *templateID == "" {
			log.Fatalf("-apply requires -template")
		}
		data, err := os.ReadFile(*applyPath)
		if err != nil {
			log.Fatalf("Failed to read blocks file: %v", err)
		}
		var blocks []invoice.TextBlock
		if *hocrInput {
			blocks, err = invoice.BlocksFromHOCR(data)
			if err != nil {
				log.Fatalf("Failed to parse hOCR: %v", err)
			}
		} else if err := json.Unmarshal(data, &blocks); err != nil {
			log.Fatalf("Failed to parse blocks JSON: %v", err)
		}
		hints, ok := engine.ApplyTemplate(blocks, *templateID)
		if !ok {
			log.Fatalf("Unknown template id: %s", *templateID)
		}
		printJSON(hints)

	case *statsFlag:
		printJSON(engine.Stats())

	case *exportPath != "":
		if err := engine.Export(*exportPath); err != nil {
			log.Fatalf("Failed to export templates: %v", err)
		}
		fmt.Println("Templates exported to:", *exportPath)

	case *importPath != "":
		added, replaced, err := engine.Import(*importPath)
		if err != nil {
			log.Fatalf("Failed to import templates: %v", err)
		}
		fmt.Printf("Imported templates: %d added, %d replaced\n", added, replaced)

	case *renderID != "":
		if *outputPath == "" {
			log.Fatalf("-render requires -output")
		}
		tpl, ok := engine.Template(*renderID)
		if !ok {
			log.Fatalf("Unknown template id: %s", *renderID)
		}
		pdfBytes, err := regionpdf.RenderTemplate(tpl, regionpdf.DefaultRenderConfig())
		if err != nil {
			log.Fatalf("Failed to render template: %v", err)
		}
		if err := os.WriteFile(*outputPath, pdfBytes, 0644); err != nil {
			log.Fatalf("Failed to write PDF: %v", err)
		}
		fmt.Println("Region overlay saved to:", *outputPath)
	}
}
