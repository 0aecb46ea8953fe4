package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sunosaathi/sanket/internal/dataset"
)

func main() {
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	command := flag.Arg(0)
	args := flag.Args()[1:]

	switch command {
	case "generate":
		handleGenerate(args)
	case "verify":
		handleVerify(args)
	case "manifest":
		handleManifest(args)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`sanket-dataset - Dataset tooling for the sign recognition pipeline

Usage: sanket-dataset <command> [options]

Commands:
  generate   Write a synthetic keypoint dataset for pipeline testing
  verify     Check a processed dataset's structure before training
  manifest   Build a video manifest from a raw capture tree
  help       Show this help message

Examples:
  # Generate a ten-sign synthetic dataset
  sanket-dataset generate -output ./data

  # Verify a processed dataset before training on it
  sanket-dataset verify -data ./data

  # Build a video manifest from a YAML config
  sanket-dataset manifest -config ./manifest.yaml`)
}

func handleGenerate(args []string) {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	output := fs.String("output", "", "Output directory for the dataset (required)")
	signs := fs.Int("signs", 10, "Number of distinct sign labels")
	samples := fs.Int("samples", 50, "Samples generated per sign")
	trainSplit := fs.Float64("train-split", 0.8, "Fraction of each sign's samples routed to train/")
	seed := fs.Int64("seed", 1, "Random seed")
	fs.Parse(args)

	if *output == "" {
		fmt.Fprintln(os.Stderr, "Error: -output flag is required")
		fs.Usage()
		os.Exit(1)
	}

	summary, err := dataset.Generate(dataset.GenerateOptions{
		OutputDir:      *output,
		NumSigns:       *signs,
		SamplesPerSign: *samples,
		TrainSplit:     *trainSplit,
		Seed:           *seed,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Generation failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Generated %d signs: %d train samples in %s, %d val samples in %s\n",
		len(summary.Vocabulary), summary.TrainSamples, summary.TrainDir, summary.ValSamples, summary.ValDir)
	fmt.Printf("Vocabulary written to %s\n", summary.VocabPath)
}

func handleVerify(args []string) {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	data := fs.String("data", "", "Dataset directory containing train/, val/ and vocabulary.json (required)")
	fs.Parse(args)

	if *data == "" {
		fmt.Fprintln(os.Stderr, "Error: -data flag is required")
		fs.Usage()
		os.Exit(1)
	}

	report, err := dataset.Verify(*data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Verification failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Vocabulary: %d signs\n", report.VocabularySize)
	printSplit("train", report.TrainFiles, report.TrainCounts, report.TrainErrors)
	printSplit("val", report.ValFiles, report.ValCounts, report.ValErrors)

	if !report.OK() {
		fmt.Fprintf(os.Stderr, "\nDataset has %d problems\n", len(report.TrainErrors)+len(report.ValErrors))
		os.Exit(1)
	}
	fmt.Println("\nDataset OK")
}

func printSplit(name string, files int, counts map[string]int, errs []string) {
	fmt.Printf("\n%s: %d files\n", name, files)
	for _, label := range dataset.SortedLabels(counts) {
		fmt.Printf("  %-24s %d\n", label, counts[label])
	}
	for _, e := range errs {
		fmt.Printf("  ERROR %s\n", e)
	}
}

func handleManifest(args []string) {
	fs := flag.NewFlagSet("manifest", flag.ExitOnError)
	configPath := fs.String("config", "", "Manifest build config YAML (required)")
	fs.Parse(args)

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "Error: -config flag is required")
		fs.Usage()
		os.Exit(1)
	}

	cfg, err := dataset.LoadManifestConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load manifest config: %v\n", err)
		os.Exit(1)
	}

	entries, err := dataset.BuildManifest(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Manifest build failed: %v\n", err)
		os.Exit(1)
	}
	if err := dataset.WriteManifest(entries, cfg.OutputFile); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write manifest: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Wrote %d entries to %s\n", len(entries), cfg.OutputFile)
}
