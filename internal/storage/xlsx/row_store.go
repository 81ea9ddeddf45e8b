// -----------------------------------------------------------------------
// Workbook Row Store - ID/CODE/STATUS columns of an .xlsx sheet
// -----------------------------------------------------------------------

package xlsx

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/xuri/excelize/v2"

	"github.com/hugorneri/RPA-DCTFWEB/internal/models"
)

// Column headers and accepted aliases, compared after normalizeHeader
var (
	idHeaders     = []string{"ID", "CNPJ"}
	codeHeaders   = []string{"CODE", "COD", "CODIGO"}
	statusHeaders = []string{"STATUS"}
)

const statusHeader = "STATUS"

var accentReplacer = strings.NewReplacer(
	"Á", "A", "À", "A", "Â", "A", "Ã", "A",
	"É", "E", "Ê", "E",
	"Í", "I",
	"Ó", "O", "Ô", "O", "Õ", "O",
	"Ú", "U",
	"Ç", "C",
)

func normalizeHeader(h string) string {
	return accentReplacer.Replace(strings.ToUpper(strings.TrimSpace(h)))
}

// columns holds 1-based column numbers; 0 means absent
type columns struct {
	id, code, status int
	width            int
}

func findColumns(header []string) columns {
	cols := columns{width: len(header)}
	for i, h := range header {
		name := normalizeHeader(h)
		switch {
		case cols.id == 0 && contains(idHeaders, name):
			cols.id = i + 1
		case cols.code == 0 && contains(codeHeaders, name):
			cols.code = i + 1
		case cols.status == 0 && contains(statusHeaders, name):
			cols.status = i + 1
		}
	}
	return cols
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// RowStore reads and writes the batch from one worksheet
type RowStore struct {
	path   string
	sheet  string
	logger arbor.ILogger
}

// NewRowStore creates a row store. An empty sheet selects the first worksheet.
func NewRowStore(path, sheet string, logger arbor.ILogger) *RowStore {
	return &RowStore{
		path:   path,
		sheet:  sheet,
		logger: logger,
	}
}

// Location returns the workbook path
func (s *RowStore) Location() string {
	return s.path
}

func (s *RowStore) sheetName(f *excelize.File) (string, error) {
	if s.sheet != "" {
		if idx, err := f.GetSheetIndex(s.sheet); err != nil || idx < 0 {
			return "", fmt.Errorf("sheet %q not found in %s", s.sheet, s.path)
		}
		return s.sheet, nil
	}
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return "", fmt.Errorf("workbook %s has no sheets", s.path)
	}
	return sheets[0], nil
}

// LoadBatch reads every row with a non-blank ID in sheet order. Cells are read as displayed text.
func (s *RowStore) LoadBatch(ctx context.Context) ([]models.Entity, error) {
	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheet, err := s.sheetName(f)
	if err != nil {
		return nil, err
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %s is empty", sheet)
	}

	cols := findColumns(rows[0])
	if cols.id == 0 {
		return nil, fmt.Errorf("sheet %s has no ID column", sheet)
	}
	if cols.code == 0 {
		return nil, fmt.Errorf("sheet %s has no CODE column", sheet)
	}
	if cols.status == 0 {
		s.logger.Info().Str("sheet", sheet).Msg("No STATUS column, treating every entity as pending")
	}

	batch := make([]models.Entity, 0, len(rows)-1)
	skipped := 0
	for i, row := range rows[1:] {
		id := models.NormalizeTaxID(cell(row, cols.id))
		if id == "" {
			skipped++
			continue
		}
		batch = append(batch, models.Entity{
			ID:     id,
			Code:   models.NormalizeCell(cell(row, cols.code)),
			Status: models.ParseStatus(cell(row, cols.status)),
			Row:    i + 2,
		})
	}

	s.logger.Debug().
		Str("workbook", s.path).
		Str("sheet", sheet).
		Int("entities", len(batch)).
		Int("skipped", skipped).
		Msg("Batch loaded")

	return batch, nil
}

func cell(row []string, col int) string {
	if col == 0 || col > len(row) {
		return ""
	}
	return row[col-1]
}

// Persist writes the STATUS column only. The workbook is written to a temporary file
// in the same directory and renamed over the workbook.
func (s *RowStore) Persist(ctx context.Context, batch []models.Entity) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheet, err := s.sheetName(f)
	if err != nil {
		return err
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}
	var header []string
	if len(rows) > 0 {
		header = rows[0]
	}
	cols := findColumns(header)

	if cols.status == 0 {
		cols.status = cols.width + 1
		name, err := excelize.CoordinatesToCellName(cols.status, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellStr(sheet, name, statusHeader); err != nil {
			return fmt.Errorf("failed to add STATUS column: %w", err)
		}
	}

	for _, e := range batch {
		if e.Row < 2 {
			continue
		}
		name, err := excelize.CoordinatesToCellName(cols.status, e.Row)
		if err != nil {
			return err
		}
		if err := f.SetCellStr(sheet, name, string(e.Status)); err != nil {
			return fmt.Errorf("failed to write status for %s: %w", e.ID, err)
		}
	}

	return s.replace(f)
}

func (s *RowStore) replace(f *excelize.File) error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".dctfweb-*.xlsx")
	if err != nil {
		return fmt.Errorf("failed to create temporary workbook: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := f.Write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync workbook: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temporary workbook: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace workbook %s: %w", s.path, err)
	}
	return nil
}
