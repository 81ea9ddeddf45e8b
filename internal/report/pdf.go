package report

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/ternarybob/arbor"

	"github.com/hugorneri/RPA-DCTFWEB/internal/models"
)

// Summary is the content of the PDF report
type Summary struct {
	Period      string
	Workbook    string
	GeneratedAt time.Time
	Batch       []models.Entity
	LastRun     *models.RunRecord // optional
}

// Writer renders ledger summaries as PDF
type Writer struct {
	logger arbor.ILogger
}

// NewWriter creates a new PDF report writer
func NewWriter(logger arbor.ILogger) *Writer {
	return &Writer{logger: logger}
}

// Render returns the PDF bytes of the summary
func (w *Writer) Render(summary Summary) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 10, 10)
	pdf.SetAutoPageBreak(true, 10)
	pdf.SetTitle(fmt.Sprintf("DCTFWeb %s", summary.Period), true)
	pdf.AddPage()

	// core fonts are cp1252; status labels and periods carry accents
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 8, tr(fmt.Sprintf("DCTFWeb - competência %s", summary.Period)), "", 1, "L", false, 0, "")

	pdf.SetFont("Arial", "", 9)
	pdf.CellFormat(0, 5, tr(fmt.Sprintf("Planilha: %s", summary.Workbook)), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 5, fmt.Sprintf("Gerado em: %s", summary.GeneratedAt.Format(timeLayout)), "", 1, "L", false, 0, "")
	if run := summary.LastRun; run != nil {
		line := fmt.Sprintf("Última execução: %s (%s, %d sessões)", run.ID, run.Outcome, run.SessionAttempts)
		pdf.CellFormat(0, 5, tr(line), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	w.countsTable(pdf, tr, models.CountStatuses(summary.Batch), len(summary.Batch))
	pdf.Ln(4)
	w.entityTable(pdf, tr, summary.Batch)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		w.logger.Error().Err(err).Msg("Failed to generate PDF output")
		return nil, fmt.Errorf("failed to generate PDF output: %w", err)
	}

	w.logger.Debug().Int("pdf_size", buf.Len()).Int("entities", len(summary.Batch)).Msg("PDF report generated")
	return buf.Bytes(), nil
}

// WriteFile renders the summary and writes it to path
func (w *Writer) WriteFile(path string, summary Summary) error {
	data, err := w.Render(summary)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report %s: %w", path, err)
	}
	w.logger.Info().Str("path", path).Msg("Report written")
	return nil
}

func (w *Writer) countsTable(pdf *fpdf.Fpdf, tr func(string) string, counts map[string]int, total int) {
	pdf.SetFont("Arial", "B", 9)
	pdf.SetFillColor(230, 230, 230)
	pdf.CellFormat(60, 6, "Status", "1", 0, "L", true, 0, "")
	pdf.CellFormat(25, 6, "Entidades", "1", 1, "R", true, 0, "")

	pdf.SetFont("Arial", "", 9)
	for _, s := range models.AllStatuses {
		n := counts[s.Label()]
		if n == 0 {
			continue
		}
		pdf.CellFormat(60, 6, tr(s.Label()), "1", 0, "L", false, 0, "")
		pdf.CellFormat(25, 6, fmt.Sprintf("%d", n), "1", 1, "R", false, 0, "")
	}

	pdf.SetFont("Arial", "B", 9)
	pdf.CellFormat(60, 6, "Total", "1", 0, "L", false, 0, "")
	pdf.CellFormat(25, 6, fmt.Sprintf("%d", total), "1", 1, "R", false, 0, "")
}

func (w *Writer) entityTable(pdf *fpdf.Fpdf, tr func(string) string, batch []models.Entity) {
	widths := []float64{15, 55, 30, 90}
	header := []string{"Linha", "CNPJ", "Código", "Status"}

	pdf.SetFont("Arial", "B", 9)
	pdf.SetFillColor(230, 230, 230)
	for i, h := range header {
		pdf.CellFormat(widths[i], 6, tr(h), "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, e := range batch {
		status := string(e.Status)
		if e.Status.IsPending() {
			status = "-"
		}
		pdf.CellFormat(widths[0], 6, fmt.Sprintf("%d", e.Row), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[1], 6, tr(string(e.ID)), "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[2], 6, tr(e.Code), "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[3], 6, tr(status), "1", 1, "L", false, 0, "")
	}
}
