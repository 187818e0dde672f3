package xlsx

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/receiving-verifier/internal/core/domain"
)

const (
	summarySheet   = "Summary"
	documentsSheet = "Documents"
)

// Renderer writes a verification session as an Excel workbook.
type Renderer struct{}

func NewRenderer() *Renderer {
	return &Renderer{}
}

func (r *Renderer) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

func (r *Renderer) Render(session *domain.Session, w io.Writer) error {
	if session == nil {
		return errors.New("render report: session is nil")
	}
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("rename summary sheet: %w", err)
	}
	if _, err := f.NewSheet(documentsSheet); err != nil {
		return fmt.Errorf("create documents sheet: %w", err)
	}
	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	if err := writeSummary(f, session, header); err != nil {
		return err
	}
	if err := writeDocuments(f, session, header); err != nil {
		return err
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeSummary(f *excelize.File, s *domain.Session, header int) error {
	outcome := "pending"
	evaluated := ""
	if s.Verdict != nil {
		outcome = s.Verdict.Outcome()
		evaluated = s.Verdict.EvaluatedAt.Format(time.RFC3339)
	}
	rows := [][]any{
		{"Session", s.ID},
		{"Operator", s.Operator.UserID},
		{"Barcode", s.Barcode},
		{"Order ID", s.OrderID},
		{"Stage", string(s.Stage)},
		{"Outcome", outcome},
		{"Evaluated at", evaluated},
		{"Last error", s.LastError},
	}
	for i, row := range rows {
		if err := setRow(f, summarySheet, i+1, row); err != nil {
			return err
		}
	}
	if err := f.SetCellStyle(summarySheet, "A1", fmt.Sprintf("A%d", len(rows)), header); err != nil {
		return fmt.Errorf("style summary: %w", err)
	}
	if err := f.SetColWidth(summarySheet, "A", "A", 16); err != nil {
		return fmt.Errorf("size summary: %w", err)
	}
	return f.SetColWidth(summarySheet, "B", "B", 48)
}

func writeDocuments(f *excelize.File, s *domain.Session, header int) error {
	columns := []any{"Document", "Source", "File", "Status", "Score", "Matched", "Error", "Resubmit"}
	if err := setRow(f, documentsSheet, 1, columns); err != nil {
		return err
	}
	if err := f.SetCellStyle(documentsSheet, "A1", "H1", header); err != nil {
		return fmt.Errorf("style documents header: %w", err)
	}

	row := 2
	for _, docType := range domain.DocumentTypes() {
		slot, ok := s.Slots[docType]
		if !ok {
			continue
		}
		source, file := "", ""
		if slot.Source != nil {
			source = string(slot.Source.Source)
			file = slot.Source.FileName
		}
		score := any("")
		if slot.Scored {
			score = slot.Score
		}
		values := []any{
			docType.Label(), source, file, string(slot.Status), score,
			yesNo(slot.Matched), slot.Error, strings.Join(slot.ResubmissionReasons, "; "),
		}
		if err := setRow(f, documentsSheet, row, values); err != nil {
			return err
		}
		row++
	}
	return f.SetColWidth(documentsSheet, "A", "H", 18)
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("cell name: %w", err)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
