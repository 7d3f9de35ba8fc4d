// Package export writes record sets to files in the export directory.
// Exports are read-only with respect to the datastore.
package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/gosimple/slug"

	"github.com/nugget/kith/internal/atomicfile"
	"github.com/nugget/kith/internal/model"
)

// Export formats.
const (
	FormatJSON     = "json"
	FormatCSV      = "csv"
	FormatVCard    = "vcard"
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
)

// Formats lists every supported export format.
var Formats = []string{FormatJSON, FormatCSV, FormatVCard, FormatMarkdown, FormatHTML}

var extensions = map[string]string{
	FormatJSON:     "json",
	FormatCSV:      "csv",
	FormatVCard:    "vcf",
	FormatMarkdown: "md",
	FormatHTML:     "html",
}

// ErrUnsupported is returned for an unknown format or a format that
// cannot represent the given records.
var ErrUnsupported = errors.New("unsupported export")

type encoder func(buf *bytes.Buffer, recs []model.Record, label string, at time.Time) error

var encoders = map[string]encoder{
	FormatJSON:     encodeJSON,
	FormatCSV:      encodeCSV,
	FormatVCard:    encodeVCard,
	FormatMarkdown: encodeMarkdown,
	FormatHTML:     encodeHTML,
}

// Exporter writes exports into a directory.
type Exporter struct {
	dir    string
	logger *slog.Logger
	now    func() time.Time
}

// New creates an Exporter writing into dir. The directory is created on
// first export.
func New(dir string, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{dir: dir, logger: logger.With("component", "export"), now: time.Now}
}

// Dir returns the export directory.
func (e *Exporter) Dir() string {
	return e.dir
}

// Export renders recs in format and writes them to a new file named
// after label. Returns the path written.
func (e *Exporter) Export(ctx context.Context, recs []model.Record, format, label string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	enc, ok := encoders[format]
	if !ok {
		return "", fmt.Errorf("%w: format %q (valid: %v)", ErrUnsupported, format, Formats)
	}

	at := e.now()
	var buf bytes.Buffer
	if err := enc(&buf, recs, label, at); err != nil {
		return "", err
	}

	if err := os.MkdirAll(e.dir, 0o700); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	path := e.filename(label, format, at)
	if err := atomicfile.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}

	e.logger.Info("records exported", "format", format, "count", len(recs), "path", path)
	return path, nil
}

// filename returns an unused path like "tech-contacts-20260301-120000.csv".
func (e *Exporter) filename(label, format string, at time.Time) string {
	base := slug.Make(label)
	if base == "" {
		base = "export"
	}
	base += "-" + at.Format("20060102-150405")
	ext := extensions[format]

	path := filepath.Join(e.dir, base+"."+ext)
	for i := 2; ; i++ {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return path
		}
		path = filepath.Join(e.dir, fmt.Sprintf("%s-%d.%s", base, i, ext))
	}
}

// fieldKeys returns the sorted union of field names across recs.
func fieldKeys(recs []model.Record) []string {
	var keys []string
	for _, r := range recs {
		for k := range r.Fields {
			if !slices.Contains(keys, k) {
				keys = append(keys, k)
			}
		}
	}
	slices.Sort(keys)
	return keys
}
