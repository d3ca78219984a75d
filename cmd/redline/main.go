// Command redline converts annotated DOCX documents to Markdown, preserving
// comments, tracked changes, and highlights as inline annotation syntax.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/redlinekit/redline/core/bundle"
	"github.com/redlinekit/redline/core/cas"
	"github.com/redlinekit/redline/core/doc"
	rlerrors "github.com/redlinekit/redline/core/errors"
	"github.com/redlinekit/redline/core/linearize"
	"github.com/redlinekit/redline/core/xml"
	"github.com/redlinekit/redline/internal/api"
	"github.com/redlinekit/redline/internal/docx"
	"github.com/redlinekit/redline/internal/logging"
	"github.com/redlinekit/redline/internal/store"
)

const version = "0.1.0"

// CLI is the command tree.
var CLI struct {
	LogLevel  string `name:"log-level" help:"Minimum log level" enum:"debug,info,warn,error" default:"info"`
	LogFormat string `name:"log-format" help:"Log output format" enum:"text,json" default:"text"`
	Quiet     bool   `short:"q" help:"Suppress progress output"`

	Convert ConvertCmd `cmd:"" help:"Convert a DOCX file to Markdown"`
	Batch   BatchCmd   `cmd:"" help:"Convert every .docx file under a directory"`
	Inspect InspectCmd `cmd:"" help:"Summarize a DOCX container without converting"`
	Cache   CacheGroup `cmd:"" help:"Manage the conversion store"`
	Serve   ServeCmd   `cmd:"" help:"Serve conversions over HTTP"`
	Version VersionCmd `cmd:"" help:"Print version information"`
}

// say prints progress output unless --quiet was given. Converted Markdown is
// never routed through say; it is payload, not progress.
func say(format string, args ...any) {
	if CLI.Quiet {
		return
	}
	fmt.Printf(format, args...)
}

// ConvertCmd converts a single DOCX file to Markdown.
type ConvertCmd struct {
	Input  string `arg:"" help:"DOCX file to convert" type:"existingfile"`
	Output string `arg:"" optional:"" help:"Output path (\"-\" or empty writes to stdout)"`

	Cache   bool   `help:"Reuse stored conversions keyed by content digest"`
	CacheDB string `name:"cache-db" help:"Conversion store path" type:"path"`
	Force   bool   `help:"Convert even when the digest is already stored"`
}

func (c *ConvertCmd) Run(logger *slog.Logger) error {
	data, err := os.ReadFile(c.Input)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", c.Input, err)
	}

	var st *store.Store
	var digest string
	if c.Cache {
		st, err = openStore(c.CacheDB, logger)
		if err != nil {
			return err
		}
		defer st.Close()

		digest = cas.Sum(data)
		if !c.Force {
			conv, err := st.Get(context.Background(), digest)
			if err == nil {
				return emit(c.Input, c.Output, conv.Markdown, true)
			}
			if !rlerrors.Is(err, rlerrors.ErrNotFound) {
				logger.Warn("store lookup failed", "hash", digest, "error", err)
			}
		}
	}

	markdown, err := convertBytes(data, filepath.Base(c.Input), logger)
	if err != nil {
		return err
	}

	if st != nil {
		conv := &store.Conversion{
			Hash:       digest,
			SourceName: filepath.Base(c.Input),
			Markdown:   markdown,
		}
		if err := st.Put(context.Background(), conv); err != nil {
			logger.Warn("store write failed", "hash", digest, "error", err)
		}
	}

	return emit(c.Input, c.Output, markdown, false)
}

// BatchCmd converts every .docx file under a directory.
type BatchCmd struct {
	InputDir string `arg:"" help:"Directory to scan for .docx files" type:"existingdir"`
	OutDir   string `name:"out-dir" help:"Write outputs here instead of next to the inputs" type:"path"`
	Bundle   string `help:"Also pack outputs into a tar.xz bundle at this path" type:"path"`
}

func (c *BatchCmd) Run(logger *slog.Logger) error {
	inputs, err := findDocx(c.InputDir)
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		return fmt.Errorf("no .docx files under %s", c.InputDir)
	}

	if c.OutDir != "" {
		if err := os.MkdirAll(c.OutDir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", c.OutDir, err)
		}
	}

	var entries []bundle.Entry
	failed := 0
	for _, input := range inputs {
		markdown, err := convertFile(input, logger)
		if err != nil {
			say("[FAIL] %s: %v\n", input, err)
			failed++
			continue
		}

		out := markdownPath(input, c.OutDir)
		if err := writeOutput(out, markdown); err != nil {
			say("[FAIL] %s: %v\n", input, err)
			failed++
			continue
		}

		say("[OK] %s -> %s\n", input, out)
		entries = append(entries, bundle.Entry{Name: filepath.Base(out), Data: []byte(markdown)})
	}

	if c.Bundle != "" && len(entries) > 0 {
		if err := bundle.Create(c.Bundle, entries); err != nil {
			return err
		}
		say("Bundled: %s (%d files)\n", c.Bundle, len(entries))
	}

	say("Results: %d converted, %d failed\n", len(inputs)-failed, failed)
	if failed > 0 {
		return fmt.Errorf("%d of %d conversions failed", failed, len(inputs))
	}
	return nil
}

// InspectCmd summarizes a container: part sizes and well-formedness, the
// resolver tables, and marker balance. It never renders Markdown.
type InspectCmd struct {
	Input string `arg:"" help:"DOCX file to inspect" type:"existingfile"`
	JSON  bool   `help:"Output as JSON"`
	Part  string `help:"Dump the named part pretty-printed instead of the summary"`
}

func (c *InspectCmd) Run(logger *slog.Logger) error {
	f, err := docx.Open(c.Input, docx.Options{Logger: logger})
	if err != nil {
		return err
	}

	if c.Part != "" {
		data, ok := f.Part(c.Part)
		if !ok {
			return rlerrors.NewNotFound("part", c.Part)
		}
		formatted, err := xml.Format(data, xml.FormatOptions{Indent: "  "})
		if err != nil {
			return fmt.Errorf("failed to format %s: %w", c.Part, err)
		}
		os.Stdout.Write(formatted)
		return nil
	}

	report, err := buildReport(f)
	if err != nil {
		return err
	}

	if c.JSON {
		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	printReport(report)
	return nil
}

// CacheGroup contains conversion store maintenance commands.
type CacheGroup struct {
	Status CacheStatusCmd `cmd:"" help:"Show conversion store statistics"`
	Clear  CacheClearCmd  `cmd:"" help:"Remove every stored conversion"`
}

// CacheStatusCmd shows conversion store statistics.
type CacheStatusCmd struct {
	CacheDB string `name:"cache-db" help:"Conversion store path" type:"path"`
	JSON    bool   `help:"Output as JSON"`
}

func (c *CacheStatusCmd) Run(logger *slog.Logger) error {
	st, err := openStore(c.CacheDB, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	stats, err := st.Stats(context.Background())
	if err != nil {
		return err
	}

	if c.JSON {
		out, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	fmt.Printf("Conversion store: %s\n", stats.Path)
	fmt.Printf("  Driver:         %s\n", stats.Driver)
	fmt.Printf("  Conversions:    %d\n", stats.Conversions)
	fmt.Printf("  Markdown bytes: %d\n", stats.MarkdownBytes)
	return nil
}

// CacheClearCmd removes every stored conversion.
type CacheClearCmd struct {
	CacheDB string `name:"cache-db" help:"Conversion store path" type:"path"`
}

func (c *CacheClearCmd) Run(logger *slog.Logger) error {
	st, err := openStore(c.CacheDB, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	removed, err := st.Clear(context.Background())
	if err != nil {
		return err
	}

	fmt.Printf("Cleared: %d conversions\n", removed)
	return nil
}

// ServeCmd runs the HTTP conversion server until interrupted.
type ServeCmd struct {
	Addr    string `help:"Listen address" default:":8080"`
	CacheDB string `name:"cache-db" help:"Conversion store path (empty disables persistence)" type:"path"`
}

func (c *ServeCmd) Run(logger *slog.Logger) error {
	cfg := api.Config{Addr: c.Addr, Logger: logger}

	if c.CacheDB != "" {
		st, err := openStore(c.CacheDB, logger)
		if err != nil {
			return err
		}
		defer st.Close()
		cfg.Store = st
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	say("Listening on %s\n", c.Addr)
	return api.New(cfg).Start(ctx)
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("redline version %s\n", version)
	return nil
}

// Conversion helpers

// convertBytes runs the full pipeline over in-memory container bytes, one
// engine per call.
func convertBytes(data []byte, name string, logger *slog.Logger) (string, error) {
	start := time.Now()
	logging.ConversionStarted(logger, name, int64(len(data)))

	f, err := docx.OpenBytes(data, name, docx.Options{Logger: logger})
	if err != nil {
		logging.ConversionFailed(logger, name, err)
		return "", err
	}
	document, err := f.Document()
	if err != nil {
		logging.ConversionFailed(logger, name, err)
		return "", err
	}

	markdown, err := linearize.Linearize(document, linearize.Options{
		Styles:    f.Styles(),
		Numbering: f.Numbering(),
		Comments:  f.Comments(),
		Logger:    logger,
	})
	if err != nil {
		logging.ConversionFailed(logger, name, err)
		return "", err
	}

	logging.ConversionCompleted(logger, name, time.Since(start), len(markdown))
	return markdown, nil
}

// convertFile converts one file on disk.
func convertFile(path string, logger *slog.Logger) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		err = fmt.Errorf("failed to read %s: %w", path, err)
		logging.ConversionFailed(logger, filepath.Base(path), err)
		return "", err
	}
	return convertBytes(data, filepath.Base(path), logger)
}

// writeOutput writes markdown to path, creating parent directories. An empty
// path or "-" writes to stdout.
func writeOutput(path, markdown string) error {
	if path == "" || path == "-" {
		_, err := io.WriteString(os.Stdout, markdown)
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, []byte(markdown), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// emit writes markdown to the requested output and reports the result. The
// progress line is skipped for stdout output so the stream stays clean.
func emit(input, output, markdown string, cached bool) error {
	if err := writeOutput(output, markdown); err != nil {
		return err
	}
	if output != "" && output != "-" {
		if cached {
			say("Converted: %s -> %s (%d bytes, cached)\n", input, output, len(markdown))
		} else {
			say("Converted: %s -> %s (%d bytes)\n", input, output, len(markdown))
		}
	}
	return nil
}

// markdownPath returns the output path for input: a .md sibling, or the same
// base name under outDir when set.
func markdownPath(input, outDir string) string {
	name := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input)) + ".md"
	if outDir != "" {
		return filepath.Join(outDir, name)
	}
	return filepath.Join(filepath.Dir(input), name)
}

// findDocx walks root and returns every .docx path in sorted order. Word
// drops ~$ lock files next to open documents; those are skipped.
func findDocx(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if strings.HasPrefix(name, "~$") {
			return nil
		}
		if strings.EqualFold(filepath.Ext(name), ".docx") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", root, err)
	}
	sort.Strings(paths)
	return paths, nil
}

// Store helpers

// resolveCacheDB returns the store path, defaulting to the user cache dir.
func resolveCacheDB(path string) string {
	if path != "" {
		return path
	}
	dir, err := os.UserCacheDir()
	if err != nil {
		return "redline.db"
	}
	return filepath.Join(dir, "redline", "conversions.db")
}

// openStore opens the conversion store, creating parent directories first.
func openStore(path string, logger *slog.Logger) (*store.Store, error) {
	resolved := resolveCacheDB(path)
	if dir := filepath.Dir(resolved); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return store.Open(resolved, logger)
}

// Inspect helpers

// inspectReport is the inspect command's summary of a container.
type inspectReport struct {
	Name      string              `json:"name"`
	Parts     []partSummary       `json:"parts"`
	Headings  []docx.HeadingStyle `json:"heading_styles"`
	Numbering []docx.LevelInfo    `json:"numbering_levels"`
	Comments  []docx.CommentInfo  `json:"comments"`
	Markers   []markerBalance     `json:"markers"`
}

// partSummary describes one container entry. WellFormed is nil for parts
// that are not XML.
type partSummary struct {
	Name       string `json:"name"`
	Size       int64  `json:"size"`
	WellFormed *bool  `json:"well_formed,omitempty"`
}

// markerBalance tallies Start and End boundaries for one marker kind.
type markerBalance struct {
	Kind   string `json:"kind"`
	Starts int    `json:"starts"`
	Ends   int    `json:"ends"`
}

func buildReport(f *docx.File) (*inspectReport, error) {
	report := &inspectReport{
		Name:      f.Name(),
		Headings:  f.Styles().Headings(),
		Numbering: f.Numbering().Levels(),
		Comments:  f.Comments().List(),
	}

	for _, e := range f.Entries() {
		summary := partSummary{Name: e.Name, Size: e.Size}
		if strings.HasSuffix(e.Name, ".xml") || strings.HasSuffix(e.Name, ".rels") {
			data, _ := f.Part(e.Name)
			wellFormed := xml.Validate(data).Valid
			summary.WellFormed = &wellFormed
		}
		report.Parts = append(report.Parts, summary)
	}

	document, err := f.Document()
	if err != nil {
		return nil, err
	}
	report.Markers = countMarkers(document)
	return report, nil
}

// countMarkers walks the document in order and tallies boundaries per kind.
func countMarkers(d *doc.Document) []markerBalance {
	kinds := []doc.MarkerKind{
		doc.MarkerComment,
		doc.MarkerInsertion,
		doc.MarkerDeletion,
		doc.MarkerHighlight,
	}
	counts := make(map[doc.MarkerKind]*markerBalance, len(kinds))
	for _, k := range kinds {
		counts[k] = &markerBalance{Kind: string(k)}
	}

	var paragraphs []*doc.Paragraph
	for _, b := range d.Blocks {
		switch {
		case b.Paragraph != nil:
			paragraphs = append(paragraphs, b.Paragraph)
		case b.Table != nil:
			for _, row := range b.Table.Rows {
				for _, cell := range row.Cells {
					paragraphs = append(paragraphs, cell.Paragraphs...)
				}
			}
		}
	}

	for _, p := range paragraphs {
		for _, r := range p.Runs {
			for _, m := range r.Markers {
				tally, ok := counts[m.Kind]
				if !ok {
					continue
				}
				if m.Start() {
					tally.Starts++
				} else {
					tally.Ends++
				}
			}
		}
	}

	out := make([]markerBalance, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, *counts[k])
	}
	return out
}

func printReport(r *inspectReport) {
	fmt.Printf("Container: %s\n", r.Name)

	fmt.Println()
	fmt.Println("Parts")
	fmt.Println("-----")
	fmt.Printf("  %-42s %10s  %s\n", "NAME", "SIZE", "XML")
	for _, p := range r.Parts {
		fmt.Printf("  %-42s %10d  %s\n", p.Name, p.Size, wellFormedLabel(p.WellFormed))
	}

	fmt.Println()
	fmt.Println("Heading Styles")
	fmt.Println("--------------")
	if len(r.Headings) == 0 {
		fmt.Println("  (none)")
	}
	for _, h := range r.Headings {
		fmt.Printf("  %-20s level %d\n", h.StyleID, h.Level)
	}

	fmt.Println()
	fmt.Println("Numbering Levels")
	fmt.Println("----------------")
	if len(r.Numbering) == 0 {
		fmt.Println("  (none)")
	}
	for _, l := range r.Numbering {
		fmt.Printf("  num %-6s level %d  %-12s %q\n", l.NumID, l.Level, l.Format, l.Preview)
	}

	fmt.Println()
	fmt.Println("Comments")
	fmt.Println("--------")
	if len(r.Comments) == 0 {
		fmt.Println("  (none)")
	}
	for _, cm := range r.Comments {
		body := cm.Body
		if len(body) > 40 {
			body = body[:37] + "..."
		}
		fmt.Printf("  %-6s %-20s %-12s %s\n", cm.ID, cm.Author, cm.Date, body)
	}

	fmt.Println()
	fmt.Println("Markers")
	fmt.Println("-------")
	fmt.Printf("  %-10s %6s %6s  %s\n", "KIND", "STARTS", "ENDS", "BALANCED")
	for _, m := range r.Markers {
		balanced := "yes"
		if m.Starts != m.Ends {
			balanced = "NO"
		}
		fmt.Printf("  %-10s %6d %6d  %s\n", m.Kind, m.Starts, m.Ends, balanced)
	}
}

func wellFormedLabel(v *bool) string {
	switch {
	case v == nil:
		return "-"
	case *v:
		return "ok"
	default:
		return "malformed"
	}
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("redline"),
		kong.Description("Redline - DOCX annotation linearizer"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)

	logger, err := logging.Setup(logging.Config{
		Level:  logging.Level(CLI.LogLevel),
		Format: logging.Format(CLI.LogFormat),
	})
	ctx.FatalIfErrorf(err)

	err = ctx.Run(logger)
	ctx.FatalIfErrorf(err)
}
