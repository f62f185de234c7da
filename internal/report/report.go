// Package report renders report documents from prepared report data.
//
// This package defines a Generator interface implemented by PDFGenerator,
// along with common helpers for formatting and styling reports in the
// Oversite brand style.
package report

import (
	"context"
	"io"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// =============================================================================
// Generator Interface
// =============================================================================

// Generator defines the interface for report generators.
type Generator interface {
	// Generate creates a report and writes it to the provided writer.
	// Returns the number of bytes written and any error.
	Generate(ctx context.Context, data *ReportData, w io.Writer) (int64, error)

	// ContentType returns the MIME type of the generated document.
	ContentType() string

	// FileExtension returns the file extension without a leading dot.
	FileExtension() string
}

// =============================================================================
// Report Data
// =============================================================================

// ReportKind identifies which report layout to render.
type ReportKind string

const (
	ReportKindAudit    ReportKind = "audit"
	ReportKindOverview ReportKind = "overview"
)

// CoverInfo holds the optional cover page fields of an audit report.
type CoverInfo struct {
	Owner        string
	Street       string
	City         string
	State        string
	Zip          string
	ContactName  string
	ContactEmail string
}

// Empty reports whether no cover field is set.
func (c *CoverInfo) Empty() bool {
	return c == nil || (c.Owner == "" && c.Street == "" && c.City == "" &&
		c.State == "" && c.Zip == "" && c.ContactName == "" && c.ContactEmail == "")
}

// Finding is a single audit finding included in a report.
type Finding struct {
	Category    string
	Description string
	Deficient   bool
	RecordedAt  time.Time
}

// ActivityItem is one line of a location overview.
type ActivityItem struct {
	Date         time.Time
	Summary      string
	Deficiencies int
}

// ReportData carries everything a generator needs to render a document.
// Audit fields and overview fields are populated according to Kind.
type ReportData struct {
	Kind        ReportKind
	Title       string
	GeneratedAt time.Time
	Narrative   string

	// Audit reports
	Address         string
	Cover           *CoverInfo
	Notes           string
	Recommendations string
	Findings        []Finding

	// Location overviews
	LocationName string
	RangeStart   time.Time
	RangeEnd     time.Time
	RangeLabel   string
	Activity     []ActivityItem
}

// DeficiencyCount returns the number of deficient findings.
func (d *ReportData) DeficiencyCount() int {
	n := 0
	for _, f := range d.Findings {
		if f.Deficient {
			n++
		}
	}
	return n
}

// =============================================================================
// Brand Colors
// =============================================================================

// BrandColors defines the color palette for reports.
var BrandColors = struct {
	Slate     string // Primary brand color
	Amber     string // Accent color for deficiencies
	TextDark  string // Primary text
	TextMuted string // Secondary text
	Border    string // Borders and dividers
}{
	Slate:     "#334155",
	Amber:     "#D97706",
	TextDark:  "#1F2937",
	TextMuted: "#6B7280",
	Border:    "#E5E7EB",
}

// =============================================================================
// Color Conversion Helpers
// =============================================================================

// HexToRGB converts a hex color string to RGB values.
// Input format: "#RRGGBB" or "RRGGBB"
func HexToRGB(hex string) (r, g, b int) {
	if len(hex) > 0 && hex[0] == '#' {
		hex = hex[1:]
	}
	if len(hex) != 6 {
		return 0, 0, 0
	}

	r = hexToDec(hex[0:2])
	g = hexToDec(hex[2:4])
	b = hexToDec(hex[4:6])
	return
}

// hexToDec converts a 2-character hex string to decimal.
func hexToDec(hex string) int {
	val := 0
	for _, c := range hex {
		val *= 16
		switch {
		case c >= '0' && c <= '9':
			val += int(c - '0')
		case c >= 'a' && c <= 'f':
			val += int(c - 'a' + 10)
		case c >= 'A' && c <= 'F':
			val += int(c - 'A' + 10)
		}
	}
	return val
}

// =============================================================================
// Text Formatting Helpers
// =============================================================================

var titleCaser = cases.Title(language.AmericanEnglish)

// TitleLabel renders a machine token like "fire_safety" or "last_30_days"
// as a display label.
func TitleLabel(token string) string {
	out := make([]byte, len(token))
	for i := 0; i < len(token); i++ {
		if token[i] == '_' || token[i] == '-' {
			out[i] = ' '
		} else {
			out[i] = token[i]
		}
	}
	return titleCaser.String(string(out))
}

// TruncateText truncates text to a maximum length, adding ellipsis if needed.
func TruncateText(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	if maxLen <= 3 {
		return text[:maxLen]
	}
	return text[:maxLen-3] + "..."
}

// FormatDate formats a date for display in reports.
func FormatDate(t time.Time) string {
	return t.Format("January 2, 2006")
}

// FormatDateTime formats a datetime for display in reports.
func FormatDateTime(t time.Time) string {
	return t.Format("January 2, 2006 at 3:04 PM")
}
