package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gookit/color"
	"github.com/mattn/go-runewidth"
	"gopkg.in/yaml.v3"

	"github.com/dbsmedya/gomigrator/internal/types"
)

// Format selects the report encoding.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// maxReasonWidth truncates long validation reasons in table output.
const maxReasonWidth = 60

// ParseFormat validates a --format value.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatTable:
		return FormatTable, nil
	case FormatJSON, FormatYAML:
		return f, nil
	}
	return "", fmt.Errorf("unknown report format %q (expected table, json or yaml)", s)
}

// Renderer writes summaries in one format.
type Renderer struct {
	out    io.Writer
	format Format
	color  bool
}

// NewRenderer creates a renderer. Color only applies to table output.
func NewRenderer(out io.Writer, format Format, useColor bool) *Renderer {
	return &Renderer{out: out, format: format, color: useColor}
}

type skippedRow struct {
	LegacyID   string    `json:"legacy_id" yaml:"legacy_id"`
	Type       string    `json:"type" yaml:"type"`
	CreateTime time.Time `json:"create_time" yaml:"create_time"`
	Reason     string    `json:"reason" yaml:"reason"`
	Category   string    `json:"category" yaml:"category"`
}

type document struct {
	RunID       string        `json:"run_id" yaml:"run_id"`
	Mode        string        `json:"mode" yaml:"mode"`
	StartedAt   time.Time     `json:"started_at" yaml:"started_at"`
	CompletedAt time.Time     `json:"completed_at" yaml:"completed_at"`
	Migrated    int64         `json:"migrated" yaml:"migrated"`
	Skipped     int64         `json:"skipped" yaml:"skipped"`
	Types       []TypeSummary `json:"types" yaml:"types"`
	Records     []skippedRow  `json:"skipped_records,omitempty" yaml:"skipped_records,omitempty"`
}

func newDocument(s *Summary) document {
	migrated, skipped := s.Totals()
	doc := document{
		RunID:       s.RunID,
		Mode:        s.Mode,
		StartedAt:   s.StartedAt,
		CompletedAt: s.CompletedAt,
		Migrated:    migrated,
		Skipped:     skipped,
		Types:       s.Types(),
	}
	for _, r := range s.Records() {
		doc.Records = append(doc.Records, skippedRow{
			LegacyID:   r.LegacyID,
			Type:       r.Type.String(),
			CreateTime: r.CreateTime,
			Reason:     r.Reason,
			Category:   string(types.CategoryOf(r.Reason)),
		})
	}
	return doc
}

// Render writes the summary.
func (r *Renderer) Render(s *Summary) error {
	switch r.format {
	case FormatJSON:
		enc := json.NewEncoder(r.out)
		enc.SetIndent("", "  ")
		return enc.Encode(newDocument(s))
	case FormatYAML:
		enc := yaml.NewEncoder(r.out)
		enc.SetIndent(2)
		if err := enc.Encode(newDocument(s)); err != nil {
			return err
		}
		return enc.Close()
	default:
		return r.renderTable(s)
	}
}

func (r *Renderer) renderTable(s *Summary) error {
	fmt.Fprintf(r.out, "%s %s (%s)\n\n", r.paint(color.OpBold, "Run"), s.RunID, s.Mode)

	t := newTable("TYPE", "STATUS", "MIGRATED", "SKIPPED", "EXISTING", "PAGES")
	for _, e := range s.Types() {
		t.add(e.Type.String(), e.Status,
			strconv.FormatInt(e.Migrated, 10),
			strconv.FormatInt(e.Skipped, 10),
			strconv.FormatInt(e.Existing, 10),
			strconv.Itoa(e.Pages))
	}
	t.write(r, func(col int, cell string) string {
		if col == 1 {
			return r.paint(statusColor(cell), cell)
		}
		return cell
	})

	reasons := newTable("TYPE", "REASON", "CATEGORY", "COUNT")
	for _, e := range s.Types() {
		keys := make([]string, 0, len(e.Reasons))
		for k := range e.Reasons {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			reasons.add(e.Type.String(), truncate(k), string(types.CategoryOf(k)), strconv.FormatInt(e.Reasons[k], 10))
		}
	}
	if len(reasons.rows) > 0 {
		fmt.Fprintf(r.out, "\n%s\n", r.paint(color.FgYellow, "Skipped by reason"))
		reasons.write(r, nil)
	}

	records := s.Records()
	if len(records) > 0 {
		fmt.Fprintf(r.out, "\n%s\n", r.paint(color.FgYellow, "Skipped records"))
		list := newTable("TYPE", "LEGACY ID", "CREATE TIME", "REASON")
		for _, rec := range records {
			list.add(rec.Type.String(), rec.LegacyID, rec.CreateTime.UTC().Format(time.RFC3339), truncate(rec.Reason))
		}
		list.write(r, nil)
	}

	for _, e := range s.Types() {
		if e.Error != "" {
			fmt.Fprintf(r.out, "\n%s %s: %s\n", r.paint(color.FgRed, "error"), e.Type, e.Error)
		}
	}

	migrated, skipped := s.Totals()
	fmt.Fprintf(r.out, "\nTotal: %d migrated, %d skipped\n", migrated, skipped)
	return nil
}

func (r *Renderer) paint(c color.Color, s string) string {
	if !r.color {
		return s
	}
	return c.Sprint(s)
}

func statusColor(status string) color.Color {
	switch status {
	case StatusCompleted:
		return color.FgGreen
	case StatusFailed:
		return color.FgRed
	case StatusCanceled:
		return color.FgYellow
	}
	return color.FgDefault
}

func truncate(s string) string {
	return runewidth.Truncate(s, maxReasonWidth, "...")
}

type table struct {
	headers []string
	rows    [][]string
}

func newTable(headers ...string) *table {
	return &table{headers: headers}
}

func (t *table) add(cells ...string) {
	t.rows = append(t.rows, cells)
}

// write pads every cell to its column width before decorate runs, so that
// escape sequences never count toward the width.
func (t *table) write(r *Renderer, decorate func(col int, cell string) string) {
	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if w := runewidth.StringWidth(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	line := func(cells []string, header bool) {
		parts := make([]string, len(cells))
		for i, cell := range cells {
			padded := cell
			if i < len(cells)-1 {
				padded = runewidth.FillRight(cell, widths[i])
			}
			switch {
			case header:
				padded = r.paint(color.OpBold, padded)
			case decorate != nil:
				padded = strings.Replace(padded, cell, decorate(i, cell), 1)
			}
			parts[i] = padded
		}
		fmt.Fprintln(r.out, strings.Join(parts, "  "))
	}

	line(t.headers, true)
	for _, row := range t.rows {
		line(row, false)
	}
}
