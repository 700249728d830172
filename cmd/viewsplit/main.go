package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"viewsplit/internal/logging"
	"viewsplit/pkg/config"
	"viewsplit/pkg/export"
	"viewsplit/pkg/isolation"
	"viewsplit/pkg/layout"
	"viewsplit/pkg/pipeline"
)

func main() {
	// Parse command line arguments
	inputPath := flag.String("input", "", "Composite character sheet to split")
	configPath := flag.String("config", "viewsplit.yaml", "YAML configuration file (defaults are used if missing)")
	outputDir := flag.String("output", "", "Directory for view images (overrides output.dir)")
	baseName := flag.String("name", "", "Base name for output files (default: input file stem)")
	backend := flag.String("backend", "", "Isolation backend: "+strings.Join(isolation.Backends(), ", "))
	layoutFlag := flag.String("layout", "", "Force a grid shape as ROWSxCOLS, e.g. 1x4 or 2x2")
	numCores := flag.Int("cores", 0, "Number of panels processed in parallel (default: from config)")
	saveIntermediary := flag.Bool("save-intermediary", false, "Save intermediary results during processing")
	writeConfig := flag.Bool("write-config", false, "Write the default configuration to -config and exit")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	if *writeConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to write config: %v", err)
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return
	}

	// Validate inputs
	if *inputPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *outputDir != "" {
		cfg.Output.Dir = *outputDir
	}
	if *backend != "" {
		cfg.Isolation.Backend = *backend
	}
	if *layoutFlag != "" {
		if _, err := fmt.Sscanf(strings.ToLower(*layoutFlag), "%dx%d", &cfg.Layout.Rows, &cfg.Layout.Cols); err != nil {
			log.Fatalf("Invalid -layout %q: expected ROWSxCOLS", *layoutFlag)
		}
	}
	if *numCores > 0 {
		cfg.Processing.NumCores = *numCores
	}
	if *saveIntermediary {
		cfg.Output.SaveIntermediaryResults = true
	}
	if *verbose {
		cfg.Output.Verbose = true
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration:\n%v", err)
	}

	level := slog.LevelInfo
	if cfg.Output.Verbose {
		level = slog.LevelDebug
	}
	logging.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	fmt.Println("================================")
	fmt.Println("VIEWSPLIT: COMPOSITE CHARACTER SHEET TO CANONICAL VIEWS")
	fmt.Println("================================")

	params, err := cfg.PipelineParams()
	if err != nil {
		log.Fatalf("Failed to set up isolation backend: %v", err)
	}

	img, format, err := export.Load(*inputPath)
	if err != nil {
		log.Fatalf("Failed to load input: %v", err)
	}
	b := img.Bounds()
	fmt.Printf("Loaded %s (%s, %dx%d)\n", *inputPath, format, b.Dx(), b.Dy())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// Run the pipeline
	fmt.Printf("Splitting with %s isolation on %d workers...\n", cfg.Isolation.Backend, params.Workers)
	result, err := pipeline.New(params).Process(ctx, img)
	if err != nil {
		log.Fatalf("Processing failed: %v", err)
	}

	name := *baseName
	if name == "" {
		name = export.BaseName(*inputPath)
	}
	paths, err := export.Save(result, cfg.Output.Dir, name)
	if err != nil {
		log.Fatalf("Failed to save views: %v", err)
	}

	views, _ := layout.ViewsFor(result.Layout.Rows, result.Layout.Cols)
	fmt.Printf("\nProcessing completed successfully in %.2f seconds!\n", result.Duration.Seconds())
	fmt.Printf("Run ID: %s\n", result.RunID)
	fmt.Printf("Layout: %dx%d (%s), views: %s\n",
		result.Layout.Rows, result.Layout.Cols, result.Layout.Source, strings.Join(views, ", "))

	fmt.Println("\nSaved views:")
	for _, p := range paths {
		fmt.Printf("- %s\n", p)
	}

	if len(result.DegradedViews) > 0 {
		fmt.Println("\nReduced quality views:")
		for _, out := range result.Outputs {
			if out.Degraded {
				fmt.Printf("- %s: %s\n", out.View, strings.Join(out.Warnings, ", "))
			}
		}
	}

	// Print information about intermediary results if saved
	if params.SaveIntermediaryResults {
		fmt.Println("\nIntermediary results saved to:")
		fmt.Printf("%s/%s\n", params.IntermediaryDir, result.RunID)
		fmt.Println("The following stages were saved:")
		fmt.Println("- 01_layout: Detected dividers and panel crops")
		fmt.Println("- 02_panels: Raw panels with overlap margin")
		fmt.Println("- 03_isolated: Panels after background removal")
		fmt.Println("- 04_cleaned: Panels after fragment cleanup")
	}
}
