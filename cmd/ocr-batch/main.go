package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"

	"github.com/maiphh/ocr/internal/common"
	"github.com/maiphh/ocr/internal/export"
	"github.com/maiphh/ocr/internal/llm"
	"github.com/maiphh/ocr/internal/ocr"
	"github.com/maiphh/ocr/internal/pdfsplit"
	"github.com/maiphh/ocr/internal/pipeline"
	"github.com/maiphh/ocr/internal/results"
	"github.com/maiphh/ocr/internal/schema"
	"github.com/maiphh/ocr/internal/server"
)

// printError prints to stderr, falling back to stdout if stderr fails.
func printError(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		dir        = flag.String("dir", "", "directory of PDF documents to process (required)")
		out        = flag.String("out", "", "output XLSX path (default <dir>/ocr_results.xlsx)")
		csvOut     = flag.String("csv", "", "optional CSV output path")
		schemaPath = flag.String("schema", "", "optional schema JSON file (default built-in schema)")
		engineName = flag.String("engine", "easyocr", "OCR engine")
		langsRaw   = flag.String("langs", "en,vi", "comma-separated OCR languages")
		configPath = flag.String("config", "", "optional YAML config file")
	)
	flag.Parse()

	if *dir == "" {
		printError("Error: --dir is required\n")
		os.Exit(1)
	}
	if *out == "" {
		*out = filepath.Join(*dir, "ocr_results.xlsx")
	}

	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	slog.SetDefault(logger)

	cfg, err := common.LoadConfig(*configPath)
	if err != nil {
		printError("Error: load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}

	activeSchema := schema.Default()
	if *schemaPath != "" {
		data, err := os.ReadFile(*schemaPath)
		if err != nil {
			printError("Error: read schema file: %v\n", err)
			os.Exit(1)
		}
		activeSchema, err = schema.Parse(data)
		if err != nil {
			printError("Error: parse schema file: %v\n", err)
			os.Exit(1)
		}
	}

	pdfs, err := listPDFs(*dir)
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}
	if len(pdfs) == 0 {
		printError("Error: no PDF files found in %s\n", *dir)
		os.Exit(1)
	}

	ocrClient := ocr.NewClient(ocr.Config{
		BaseURL: cfg.OCR.BaseURL,
		Timeout: cfg.OCR.Timeout,
	}, logger)
	llmClient := llm.NewClient(llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		APIKey:      cfg.LLM.APIKey,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
		RatePerSec:  cfg.LLM.RatePerSec,
	}, logger)
	splitter := pdfsplit.NewPopplerSplitter(pdfsplit.Config{}, logger)

	langs := server.ParseLanguages(*langsRaw)
	pipe := pipeline.New(logger, pipeline.Config{
		OCREngine:      *engineName,
		OCRLangs:       langs,
		LanguagePref:   cfg.Pipeline.LanguagePref,
		SchemaVersion:  cfg.Pipeline.SchemaVersion,
		MaxRetries:     cfg.Pipeline.MaxRetries,
		MaxPromptChars: cfg.Pipeline.MaxPromptChars,
	}, activeSchema, ocrClient, llmClient)

	ctx := context.Background()
	splitDir, err := os.MkdirTemp("", "ocr_batch_*")
	if err != nil {
		printError("Error: create temp dir: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = os.RemoveAll(splitDir)
	}()

	bar := progressbar.NewOptions(len(pdfs),
		progressbar.OptionSetDescription("Processing documents"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionClearOnFinish(),
	)

	var documents []results.ExtractionResult
	var splitNotes []string
	for _, path := range pdfs {
		name := filepath.Base(path)
		pages, err := splitter.Split(ctx, path, splitDir)
		if err != nil {
			splitNotes = append(splitNotes, fmt.Sprintf("Failed to split '%s': %v. Processed as-is.", name, err))
			pages = []pdfsplit.Page{{Path: path, OriginalName: name, PageNumber: 1, TotalPages: 1}}
		} else if len(pages) > 1 {
			splitNotes = append(splitNotes, fmt.Sprintf("Split '%s' into %d page PDFs.", name, len(pages)))
		}

		for _, page := range pages {
			doc := pipe.ProcessPage(ctx, page.Path, "", nil)
			doc.FileName = filepath.Base(page.Path)
			doc.OriginalFileName = page.OriginalName
			doc.PageNumber = page.PageNumber
			doc.TotalPages = page.TotalPages
			documents = append(documents, doc)
		}
		_ = bar.Add(1)
	}
	_ = bar.Finish()

	exporter := export.NewService(logger)
	xlsx, err := exporter.XLSX(documents, activeSchema.Fields())
	if err != nil {
		printError("Error: build xlsx: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, xlsx, 0o644); err != nil {
		printError("Error: write xlsx: %v\n", err)
		os.Exit(1)
	}
	if *csvOut != "" {
		csvData, err := exporter.CSV(documents, activeSchema.Fields())
		if err != nil {
			printError("Error: build csv: %v\n", err)
			os.Exit(1)
		}
		if err := os.WriteFile(*csvOut, csvData, 0o644); err != nil {
			printError("Error: write csv: %v\n", err)
			os.Exit(1)
		}
	}

	printSummary(documents, splitNotes, *out)
}

func listPDFs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}
	var pdfs []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasSuffix(strings.ToLower(entry.Name()), ".pdf") {
			pdfs = append(pdfs, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(pdfs)
	return pdfs, nil
}

func printSummary(documents []results.ExtractionResult, splitNotes []string, outPath string) {
	summary := results.CalculateSummary(documents)

	bold := color.New(color.Bold)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	_, _ = bold.Println("\nExtraction complete")
	fmt.Printf("  Documents:          %d\n", summary.TotalFiles)
	_, _ = green.Printf("  Average confidence: %.1f%%\n", summary.AverageConfidence*100)
	if summary.WarningsCount > 0 {
		_, _ = yellow.Printf("  With warnings:      %d\n", summary.WarningsCount)
	}
	for _, note := range splitNotes {
		_, _ = yellow.Printf("  Note: %s\n", note)
	}
	fmt.Printf("  Output:             %s\n", outPath)
}
