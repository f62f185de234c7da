package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/go-pdf/fpdf"
)

// =============================================================================
// PDF Generator
// =============================================================================

// PDFGenerator generates PDF documents from report data.
type PDFGenerator struct {
	// Page dimensions (A4 in mm)
	pageWidth  float64
	pageHeight float64
	margin     float64

	// Content area
	contentWidth float64
}

// NewPDFGenerator creates a new PDF generator with default settings.
func NewPDFGenerator() *PDFGenerator {
	margin := 15.0
	pageWidth := 210.0 // A4 width in mm
	return &PDFGenerator{
		pageWidth:    pageWidth,
		pageHeight:   297.0, // A4 height in mm
		margin:       margin,
		contentWidth: pageWidth - (2 * margin),
	}
}

// ContentType returns the MIME type of generated documents.
func (g *PDFGenerator) ContentType() string {
	return "application/pdf"
}

// FileExtension returns the extension for generated documents.
func (g *PDFGenerator) FileExtension() string {
	return "pdf"
}

// Generate creates a PDF report and writes it to the provided writer.
func (g *PDFGenerator) Generate(ctx context.Context, data *ReportData, w io.Writer) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	pdf := fpdf.New("P", "mm", "A4", "")

	pdf.SetTitle(data.Title, true)
	pdf.SetCreator("Oversite Property Reports", true)

	// Enable automatic page breaks with footer space
	pdf.SetAutoPageBreak(true, 20)

	pdf.SetFooterFunc(func() {
		g.addFooter(pdf, data)
	})

	switch data.Kind {
	case ReportKindOverview:
		g.addOverviewCover(pdf, data)
		g.addNarrative(pdf, data)
		g.addActivity(pdf, data)
	default:
		g.addAuditCover(pdf, data)
		g.addNarrative(pdf, data)
		g.addFindings(pdf, data)
		g.addNotesAndRecommendations(pdf, data)
	}

	if err := pdf.Error(); err != nil {
		return 0, fmt.Errorf("pdf generation error: %w", err)
	}

	// Write to buffer to count bytes
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return 0, fmt.Errorf("pdf output error: %w", err)
	}

	n, err := w.Write(buf.Bytes())
	return int64(n), err
}

// =============================================================================
// Cover Pages
// =============================================================================

func (g *PDFGenerator) addAuditCover(pdf *fpdf.Fpdf, data *ReportData) {
	pdf.AddPage()

	// Slate header bar
	r, gr, b := HexToRGB(BrandColors.Slate)
	pdf.SetFillColor(r, gr, b)
	pdf.Rect(0, 0, g.pageWidth, 70, "F")

	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont("Helvetica", "B", 32)
	pdf.SetXY(g.margin, 25)
	pdf.Cell(0, 12, "Property Inspection Report")

	pdf.SetFont("Helvetica", "", 14)
	pdf.SetXY(g.margin, 42)
	pdf.Cell(0, 8, data.Address)

	r, gr, b = HexToRGB(BrandColors.TextDark)
	pdf.SetTextColor(r, gr, b)

	// Property block
	pdf.SetXY(g.margin, 90)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "PROPERTY")
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(0, 7, data.Address)
	pdf.Ln(7)

	if !data.Cover.Empty() {
		cover := data.Cover

		if cover.Street != "" || cover.City != "" || cover.State != "" || cover.Zip != "" {
			if cover.Street != "" {
				pdf.Cell(0, 7, cover.Street)
				pdf.Ln(7)
			}
			cityState := strings.TrimSpace(strings.TrimSuffix(cover.City+", ", ", ") + " " + cover.State + " " + cover.Zip)
			if cityState != "" {
				pdf.Cell(0, 7, cityState)
				pdf.Ln(7)
			}
		}

		if cover.Owner != "" {
			pdf.Ln(10)
			pdf.SetFont("Helvetica", "B", 12)
			pdf.Cell(0, 8, "OWNER")
			pdf.Ln(10)
			pdf.SetFont("Helvetica", "", 12)
			pdf.Cell(0, 7, cover.Owner)
			pdf.Ln(7)
		}

		if cover.ContactName != "" || cover.ContactEmail != "" {
			pdf.Ln(10)
			pdf.SetFont("Helvetica", "B", 12)
			pdf.Cell(0, 8, "CONTACT")
			pdf.Ln(10)
			pdf.SetFont("Helvetica", "", 12)
			if cover.ContactName != "" {
				pdf.Cell(0, 7, cover.ContactName)
				pdf.Ln(7)
			}
			if cover.ContactEmail != "" {
				pdf.Cell(0, 7, cover.ContactEmail)
				pdf.Ln(7)
			}
		}
	}

	pdf.Ln(10)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "REPORT DATE")
	pdf.Ln(10)
	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(0, 7, FormatDate(data.GeneratedAt))
}

func (g *PDFGenerator) addOverviewCover(pdf *fpdf.Fpdf, data *ReportData) {
	pdf.AddPage()

	r, gr, b := HexToRGB(BrandColors.Slate)
	pdf.SetFillColor(r, gr, b)
	pdf.Rect(0, 0, g.pageWidth, 70, "F")

	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont("Helvetica", "B", 32)
	pdf.SetXY(g.margin, 25)
	pdf.Cell(0, 12, "Location Overview")

	pdf.SetFont("Helvetica", "", 14)
	pdf.SetXY(g.margin, 42)
	pdf.Cell(0, 8, data.LocationName)

	r, gr, b = HexToRGB(BrandColors.TextDark)
	pdf.SetTextColor(r, gr, b)

	pdf.SetXY(g.margin, 90)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "PERIOD")
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "", 12)
	period := fmt.Sprintf("%s to %s", FormatDate(data.RangeStart), FormatDate(data.RangeEnd))
	if data.RangeLabel != "" {
		period = fmt.Sprintf("%s (%s)", period, TitleLabel(data.RangeLabel))
	}
	pdf.Cell(0, 7, period)

	pdf.Ln(17)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "REPORT DATE")
	pdf.Ln(10)
	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(0, 7, FormatDate(data.GeneratedAt))
}

// =============================================================================
// Narrative
// =============================================================================

func (g *PDFGenerator) addNarrative(pdf *fpdf.Fpdf, data *ReportData) {
	if data.Narrative == "" {
		return
	}

	pdf.AddPage()
	g.addSectionHeader(pdf, "Summary")

	pdf.SetFont("Helvetica", "", 10)
	for _, para := range strings.Split(data.Narrative, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		pdf.MultiCell(g.contentWidth, 6, para, "", "L", false)
		pdf.Ln(4)
	}
}

// =============================================================================
// Findings Section
// =============================================================================

func (g *PDFGenerator) addFindings(pdf *fpdf.Fpdf, data *ReportData) {
	pdf.AddPage()
	g.addSectionHeader(pdf, "Findings")

	if len(data.Findings) == 0 {
		pdf.SetFont("Helvetica", "I", 11)
		pdf.Cell(0, 10, "No findings were recorded for this report.")
		return
	}

	// Deficiency count line
	pdf.SetFont("Helvetica", "", 10)
	pdf.Cell(0, 7, fmt.Sprintf("%d findings, %d deficient", len(data.Findings), data.DeficiencyCount()))
	pdf.Ln(12)

	for i, finding := range data.Findings {
		// Leave room for at least the finding header
		if pdf.GetY() > 240 {
			pdf.AddPage()
		}

		g.addFinding(pdf, finding, i+1)

		if i < len(data.Findings)-1 {
			pdf.Ln(6)
			r, gr, b := HexToRGB(BrandColors.Border)
			pdf.SetDrawColor(r, gr, b)
			pdf.Line(g.margin, pdf.GetY(), g.pageWidth-g.margin, pdf.GetY())
			pdf.Ln(6)
		}
	}
}

func (g *PDFGenerator) addFinding(pdf *fpdf.Fpdf, finding Finding, number int) {
	// Amber marker for deficient findings, muted for the rest
	markerColor := BrandColors.TextMuted
	if finding.Deficient {
		markerColor = BrandColors.Amber
	}
	r, gr, b := HexToRGB(markerColor)
	pdf.SetFillColor(r, gr, b)
	pdf.Rect(g.margin, pdf.GetY(), 4, 8, "F")

	pdf.SetX(g.margin + 8)
	pdf.SetFont("Helvetica", "B", 12)
	r, gr, b = HexToRGB(BrandColors.TextDark)
	pdf.SetTextColor(r, gr, b)
	pdf.Cell(0, 8, fmt.Sprintf("Finding #%d", number))
	pdf.Ln(10)

	if finding.Category != "" {
		pdf.SetX(g.margin + 8)
		pdf.SetFont("Helvetica", "", 10)
		r, gr, b = HexToRGB(BrandColors.TextMuted)
		pdf.SetTextColor(r, gr, b)
		pdf.Cell(0, 6, "Category: "+TitleLabel(finding.Category))
		pdf.Ln(8)
		r, gr, b = HexToRGB(BrandColors.TextDark)
		pdf.SetTextColor(r, gr, b)
	}

	if finding.Deficient {
		pdf.SetX(g.margin + 8)
		r, gr, b = HexToRGB(BrandColors.Amber)
		pdf.SetTextColor(r, gr, b)
		pdf.SetFont("Helvetica", "B", 10)
		pdf.Cell(0, 6, "Deficient")
		pdf.Ln(8)
		r, gr, b = HexToRGB(BrandColors.TextDark)
		pdf.SetTextColor(r, gr, b)
	}

	pdf.SetFont("Helvetica", "", 10)
	pdf.MultiCell(g.contentWidth, 5, finding.Description, "", "L", false)

	if !finding.RecordedAt.IsZero() {
		pdf.Ln(2)
		pdf.SetFont("Helvetica", "I", 9)
		r, gr, b = HexToRGB(BrandColors.TextMuted)
		pdf.SetTextColor(r, gr, b)
		pdf.Cell(0, 5, "Recorded "+FormatDate(finding.RecordedAt))
		pdf.Ln(5)
		r, gr, b = HexToRGB(BrandColors.TextDark)
		pdf.SetTextColor(r, gr, b)
	}
}

// =============================================================================
// Notes and Recommendations
// =============================================================================

func (g *PDFGenerator) addNotesAndRecommendations(pdf *fpdf.Fpdf, data *ReportData) {
	if data.Notes == "" && data.Recommendations == "" {
		return
	}

	pdf.AddPage()
	g.addSectionHeader(pdf, "Notes & Recommendations")

	if data.Notes != "" {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.Cell(0, 8, "Inspector Notes")
		pdf.Ln(10)
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(g.contentWidth, 6, data.Notes, "", "L", false)
		pdf.Ln(6)
	}

	if data.Recommendations != "" {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.Cell(0, 8, "Recommendations")
		pdf.Ln(10)
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(g.contentWidth, 6, data.Recommendations, "", "L", false)
	}
}

// =============================================================================
// Overview Activity
// =============================================================================

func (g *PDFGenerator) addActivity(pdf *fpdf.Fpdf, data *ReportData) {
	pdf.AddPage()
	g.addSectionHeader(pdf, "Inspection Activity")

	if len(data.Activity) == 0 {
		pdf.SetFont("Helvetica", "I", 11)
		pdf.Cell(0, 10, "No inspection activity was recorded in this period.")
		return
	}

	// Table header
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(245, 245, 245)
	pdf.CellFormat(40, 8, "Date", "1", 0, "L", true, 0, "")
	pdf.CellFormat(110, 8, "Summary", "1", 0, "L", true, 0, "")
	pdf.CellFormat(30, 8, "Deficiencies", "1", 1, "C", true, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	for _, item := range data.Activity {
		if pdf.GetY() > 260 {
			pdf.AddPage()
		}
		pdf.CellFormat(40, 8, item.Date.Format("2006-01-02"), "1", 0, "L", false, 0, "")
		pdf.CellFormat(110, 8, TruncateText(item.Summary, 70), "1", 0, "L", false, 0, "")
		pdf.CellFormat(30, 8, fmt.Sprintf("%d", item.Deficiencies), "1", 1, "C", false, 0, "")
	}
}

// =============================================================================
// Helper Methods
// =============================================================================

func (g *PDFGenerator) addSectionHeader(pdf *fpdf.Fpdf, title string) {
	r, gr, b := HexToRGB(BrandColors.Slate)
	pdf.SetDrawColor(r, gr, b)
	pdf.SetLineWidth(0.5)

	pdf.SetFont("Helvetica", "B", 16)
	pdf.SetTextColor(r, gr, b)
	pdf.Cell(0, 10, title)
	pdf.Ln(12)

	pdf.Line(g.margin, pdf.GetY(), g.pageWidth-g.margin, pdf.GetY())
	pdf.Ln(10)

	r, gr, b = HexToRGB(BrandColors.TextDark)
	pdf.SetTextColor(r, gr, b)
}

func (g *PDFGenerator) addFooter(pdf *fpdf.Fpdf, data *ReportData) {
	pdf.SetY(-15)

	r, gr, b := HexToRGB(BrandColors.Border)
	pdf.SetDrawColor(r, gr, b)
	pdf.Line(g.margin, pdf.GetY()-3, g.pageWidth-g.margin, pdf.GetY()-3)

	r, gr, b = HexToRGB(BrandColors.TextMuted)
	pdf.SetTextColor(r, gr, b)
	pdf.SetFont("Helvetica", "", 8)

	// Left: generation date
	pdf.Cell(0, 10, "Generated: "+FormatDateTime(data.GeneratedAt))

	// Right: page number
	pdf.SetX(-g.margin - 30)
	pdf.CellFormat(30, 10, fmt.Sprintf("Page %d", pdf.PageNo()), "", 0, "R", false, 0, "")
}
