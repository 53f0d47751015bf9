package services

import (
	"context"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/teampulse/insight/internal/analytics"
)

// ReportData is everything a renderer needs to lay out one report.
type ReportData struct {
	Title       string
	Owner       string
	GeneratedAt time.Time
	Advisory    *AdvisoryResult
	Project     *ProjectAnalytics
}

// ReportRenderer writes a report document to path.
type ReportRenderer interface {
	Render(ctx context.Context, data *ReportData, path string) error
}

// PDFRenderer lays reports out as A4 PDFs.
type PDFRenderer struct{}

func NewPDFRenderer() *PDFRenderer {
	return &PDFRenderer{}
}

func (r *PDFRenderer) Render(ctx context.Context, data *ReportData, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if data == nil || data.Advisory == nil {
		return fmt.Errorf("report data is empty")
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(data.Title, true)
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 10, tr(data.Title), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, tr(fmt.Sprintf("Generated %s for %s", data.GeneratedAt.Format("2006-01-02 15:04 MST"), data.Owner)), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	adv := data.Advisory
	pdfSection(pdf, tr, "Health")
	pdf.SetFont("Helvetica", "B", 28)
	pdf.CellFormat(0, 14, fmt.Sprintf("%d / 100", adv.HealthScore), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	b := adv.Breakdown
	pdf.MultiCell(0, 6, tr(fmt.Sprintf(
		"%d items: %d completed, %d in progress, %d not started, %d blocked. Completion %d%%, on time %.0f%%, late %.0f%%.",
		b.Total, b.Completed, b.InProgress, b.NotStarted, b.Blocked, b.CompletionRate, adv.OnTimeRate*100, adv.DelayRate*100)), "", "L", false)
	pdf.Ln(2)

	if data.Project != nil && data.Project.TimelineProgress != nil {
		tl := data.Project.TimelineProgress
		status := "behind schedule"
		if tl.OnTrack {
			status = "on track"
		}
		pdf.MultiCell(0, 6, tr(fmt.Sprintf("Timeline: %d%% of time elapsed, %d days remaining, %s.", tl.TimeProgress, tl.DaysRemaining, status)), "", "L", false)
		pdf.Ln(2)
	}

	pdfSection(pdf, tr, "Summary")
	pdf.SetFont("Helvetica", "", 11)
	pdf.MultiCell(0, 6, tr(adv.Insights), "", "L", false)
	pdf.Ln(2)

	pdfSection(pdf, tr, "Recommendations")
	pdf.SetFont("Helvetica", "", 11)
	for _, rec := range adv.Recommendations {
		pdf.MultiCell(0, 6, tr(fmt.Sprintf("[%s] %s", rec.Severity, rec.Message)), "", "L", false)
	}
	pdf.Ln(2)

	if len(adv.Blockers) > 0 {
		pdfSection(pdf, tr, "Blockers")
		pdfTable(pdf, tr, []string{"Item", "Reason", "Priority", "Days over"}, []float64{70, 60, 25, 25}, blockerRows(adv.Blockers))
		pdf.Ln(2)
	}

	if len(adv.TeamPerformance) > 0 {
		pdfSection(pdf, tr, "Team performance")
		pdfTable(pdf, tr, []string{"Member", "Completed", "In progress", "Blocked", "Rate"}, []float64{70, 28, 28, 26, 28}, memberRows(adv.TeamPerformance))
	}

	return pdf.OutputFileAndClose(path)
}

func pdfSection(pdf *gofpdf.Fpdf, tr func(string) string, title string) {
	pdf.SetFont("Helvetica", "B", 13)
	pdf.CellFormat(0, 8, tr(title), "B", 1, "L", false, 0, "")
	pdf.Ln(1)
}

func pdfTable(pdf *gofpdf.Fpdf, tr func(string) string, header []string, widths []float64, rows [][]string) {
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(235, 235, 235)
	for i, h := range header {
		pdf.CellFormat(widths[i], 7, tr(h), "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 10)
	for _, row := range rows {
		for i, cell := range row {
			pdf.CellFormat(widths[i], 6, tr(cell), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}
}

func blockerRows(blockers []analytics.Blocker) [][]string {
	rows := make([][]string, 0, len(blockers))
	for _, bl := range blockers {
		rows = append(rows, []string{truncateRunes(bl.Title, 40), bl.Reason, bl.Priority, fmt.Sprintf("%d", bl.DaysOverdue)})
	}
	return rows
}

func memberRows(stats []analytics.MemberStats) [][]string {
	rows := make([][]string, 0, len(stats))
	for _, m := range stats {
		rows = append(rows, []string{
			truncateRunes(m.Name, 40),
			fmt.Sprintf("%d", m.Completed),
			fmt.Sprintf("%d", m.InProgress),
			fmt.Sprintf("%d", m.Blocked),
			fmt.Sprintf("%d%%", m.CompletionRate),
		})
	}
	return rows
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
