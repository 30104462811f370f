// Package export writes requirement collections to the clipboard as JSON or
// to disk as a multi-sheet xlsx workbook.
package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/log"
	"github.com/natefinch/atomic"
	"github.com/xuri/excelize/v2"

	"req-studio/internal/gateway"
	"req-studio/internal/helpers"
	"req-studio/internal/models"
)

var (
	// ErrUnsupportedType is returned for types without an export strategy
	ErrUnsupportedType = errors.New("unsupported requirement type")

	// ErrUnsupportedFormat is returned for formats other than json and xlsx
	ErrUnsupportedFormat = errors.New("unsupported export format")
)

// Format is an export output format
type Format string

// Supported formats
const (
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
)

// Clipboard receives JSON exports
type Clipboard interface {
	WriteAll(text string) error
}

// SystemClipboard writes to the OS clipboard
type SystemClipboard struct{}

// WriteAll implements Clipboard
func (SystemClipboard) WriteAll(text string) error {
	return clipboard.WriteAll(text)
}

// NoClipboard drops the text; use it when the caller returns Output itself
type NoClipboard struct{}

// WriteAll implements Clipboard
func (NoClipboard) WriteAll(string) error { return nil }

// Options selects the output of one export
type Options struct {
	Format      Format
	ProjectName string
}

// Result reports the outcome of an export
type Result struct {
	Success bool
	Path    string
	Rows    int
	Output  string
	Error   error
}

// Pipeline picks a strategy per requirement type and writes its output
type Pipeline struct {
	fs        gateway.FileSystem
	clipboard Clipboard
	outputDir string
	logger    *log.Logger
	now       func() time.Time

	mu         sync.Mutex
	strategies map[models.RequirementType]Strategy
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithClipboard replaces the system clipboard
func WithClipboard(c Clipboard) Option {
	return func(p *Pipeline) { p.clipboard = c }
}

// WithLogger sets the diagnostics logger
func WithLogger(logger *log.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// WithClock sets the time source used in file names
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// NewPipeline creates a pipeline writing workbooks to outputDir
func NewPipeline(fs gateway.FileSystem, outputDir string, opts ...Option) *Pipeline {
	p := &Pipeline{
		fs:         fs,
		clipboard:  SystemClipboard{},
		outputDir:  outputDir,
		now:        time.Now,
		strategies: make(map[models.RequirementType]Strategy),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = helpers.OrDiscard(p.logger)
	return p
}

// GetStrategy returns the memoized strategy for t
func (p *Pipeline) GetStrategy(t models.RequirementType) (Strategy, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s, ok := p.strategies[t]; ok {
		return s, nil
	}

	var s Strategy
	switch t {
	case models.TypePRD:
		s = prdStrategy{baseStrategy: baseStrategy{reqType: t}, fs: p.fs}
	case models.TypeUS:
		s = usStrategy{}
	case models.TypeBRD, models.TypeNFR, models.TypeUIR, models.TypeBP:
		s = baseStrategy{reqType: t}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, t)
	}
	p.strategies[t] = s
	return s, nil
}

// Export formats src and writes it. Failures are logged and reported in the
// Result; nothing is written unless the whole output is ready.
func (p *Pipeline) Export(ctx context.Context, t models.RequirementType, src Source, opts Options) Result {
	res, err := p.export(ctx, t, src, opts)
	if err != nil {
		p.logger.Error("export failed", "type", t, "format", opts.Format, "err", err)
		return Result{Error: err}
	}
	res.Success = true
	return res
}

func (p *Pipeline) export(ctx context.Context, t models.RequirementType, src Source, opts Options) (Result, error) {
	strategy, err := p.GetStrategy(t)
	if err != nil {
		return Result{}, err
	}

	tables, err := strategy.Tables(ctx, src)
	if err != nil {
		return Result{}, fmt.Errorf("failed to prepare %s export: %w", t, err)
	}

	switch opts.Format {
	case FormatJSON:
		return p.writeJSON(tables[0])
	case FormatXLSX:
		return p.writeWorkbook(t, tables, opts.ProjectName)
	default:
		return Result{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, opts.Format)
	}
}

func (p *Pipeline) writeJSON(main Table) (Result, error) {
	data, err := json.Marshal(main.Rows)
	if err != nil {
		return Result{}, fmt.Errorf("failed to encode rows: %w", err)
	}
	if err := p.clipboard.WriteAll(string(data)); err != nil {
		return Result{}, fmt.Errorf("failed to write to clipboard: %w", err)
	}
	return Result{Rows: len(main.Rows), Output: string(data)}, nil
}

func (p *Pipeline) writeWorkbook(t models.RequirementType, tables []Table, projectName string) (Result, error) {
	f := excelize.NewFile()
	defer f.Close()

	rows := 0
	for i, table := range tables {
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), table.Sheet); err != nil {
				return Result{}, fmt.Errorf("failed to name sheet %s: %w", table.Sheet, err)
			}
		} else if _, err := f.NewSheet(table.Sheet); err != nil {
			return Result{}, fmt.Errorf("failed to add sheet %s: %w", table.Sheet, err)
		}

		if err := writeTable(f, table); err != nil {
			return Result{}, err
		}
		rows += len(table.Rows)
	}
	f.SetActiveSheet(0)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return Result{}, fmt.Errorf("failed to render workbook: %w", err)
	}

	if err := helpers.EnsureDir(p.outputDir); err != nil {
		return Result{}, err
	}
	out := helpers.GetOutputPath(p.outputDir, helpers.ExportFilename(projectName, string(t), string(FormatXLSX), p.now()))
	if err := atomic.WriteFile(out, buf); err != nil {
		return Result{}, fmt.Errorf("failed to save workbook: %w", err)
	}

	return Result{Path: out, Rows: rows}, nil
}

func writeTable(f *excelize.File, table Table) error {
	header := make([]interface{}, len(table.Columns))
	for i, c := range table.Columns {
		header[i] = c.Header
	}
	if err := f.SetSheetRow(table.Sheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write %s header: %w", table.Sheet, err)
	}

	for r, row := range table.Rows {
		values := make([]interface{}, len(table.Columns))
		for i, c := range table.Columns {
			values[i] = row[c.Key]
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(table.Sheet, cell, &values); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", table.Sheet, r+1, err)
		}
	}
	return nil
}
