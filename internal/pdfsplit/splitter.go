// Package pdfsplit turns a multi-page PDF into an ordered list of single-page
// files. Splitting is delegated to poppler's pdfseparate; page counting uses
// the pdf reader directly.
package pdfsplit

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Page is one source page produced by a split, with its position metadata.
type Page struct {
	Path         string
	OriginalName string
	PageNumber   int
	TotalPages   int
}

// Splitter produces ordered single-page sources from one uploaded file.
// Single-page input yields a one-element list referencing the original file.
type Splitter interface {
	Split(ctx context.Context, path, outDir string) ([]Page, error)
}

// Config for the poppler-backed splitter.
type Config struct {
	Pdfseparate string // binary name or absolute path; if empty -> "pdfseparate"
}

type PopplerSplitter struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewPopplerSplitter(cfg Config, logger *slog.Logger) *PopplerSplitter {
	if cfg.Pdfseparate == "" {
		cfg.Pdfseparate = "pdfseparate"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PopplerSplitter{cfg: cfg, runner: execRunner{}, logger: logger}
}

// PageCount reads the page count without rendering.
func PageCount(path string) (int, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open pdf: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	return r.NumPage(), nil
}

var rePageFile = regexp.MustCompile(`_page_(\d+)\.pdf$`)

// Split separates path into single-page PDFs under outDir. A one-page source
// is returned as-is without touching outDir.
func (s *PopplerSplitter) Split(ctx context.Context, path, outDir string) ([]Page, error) {
	pages, err := PageCount(path)
	if err != nil {
		return nil, err
	}
	name := filepath.Base(path)
	if pages <= 1 {
		return []Page{{Path: path, OriginalName: name, PageNumber: 1, TotalPages: 1}}, nil
	}

	stem := strings.TrimSuffix(name, filepath.Ext(name))
	pattern := filepath.Join(outDir, stem+"_page_%d.pdf")
	if _, errb, err := s.runner.Run(ctx, s.cfg.Pdfseparate, path, pattern); err != nil {
		return nil, fmt.Errorf("pdfseparate: %w: %s", err, truncate(string(errb), 512))
	}

	matches, err := filepath.Glob(filepath.Join(outDir, stem+"_page_*.pdf"))
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("pdfseparate produced no pages for %q", name)
	}
	sortByPageNumber(matches)

	out := make([]Page, 0, len(matches))
	for i, m := range matches {
		out = append(out, Page{
			Path:         m,
			OriginalName: name,
			PageNumber:   i + 1,
			TotalPages:   len(matches),
		})
	}
	s.logger.Info("pdfsplit.ok", "file", name, "pages", len(matches))
	return out, nil
}

// sortByPageNumber orders split files numerically so page 10 follows page 9.
func sortByPageNumber(paths []string) {
	sort.Slice(paths, func(i, j int) bool {
		return pageIndex(paths[i]) < pageIndex(paths[j])
	})
}

func pageIndex(path string) int {
	m := rePageFile.FindStringSubmatch(path)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

// EnsureUniqueName generates a filesystem-safe, unique filename by appending a
// counter when needed. The chosen name is added to existing.
func EnsureUniqueName(existing map[string]bool, originalName string, index int) string {
	base := filepath.Base(originalName)
	if base == "" || base == "." || base == "/" {
		base = fmt.Sprintf("upload_%d.pdf", index)
	}
	if !strings.HasSuffix(strings.ToLower(base), ".pdf") {
		base += ".pdf"
	}

	candidate := base
	counter := 1
	for existing[candidate] {
		stem := strings.TrimSuffix(base, filepath.Ext(base))
		candidate = fmt.Sprintf("%s_%d%s", stem, counter, filepath.Ext(base))
		counter++
	}
	existing[candidate] = true
	return candidate
}
