package xlsx

import (
	"bytes"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/receiving-verifier/internal/core/domain"
)

func TestRenderWritesSummaryAndDocuments(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	session := domain.NewSession("s-1", domain.Operator{UserID: "operator-7"}, now)
	session.Barcode = "BC12345"
	session.OrderID = "ORD-1"
	session.Stage = domain.StageResults

	invoice := session.Slot(domain.DocumentInvoice)
	invoice.Acquire(domain.Payload{FileName: "invoice.pdf", Source: domain.SourceFileUpload, Data: []byte("x")})
	invoice.ApplyExtraction("Invoice INV-2024-0007")
	invoice.ApplyScore(0.82, true)
	verdict := domain.NewVerdict(session.AcquiredSlots(), nil, now)
	session.Verdict = &verdict

	var buf bytes.Buffer
	if err := NewRenderer().Render(session, &buf); err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	if got, _ := f.GetCellValue(summarySheet, "B4"); got != "ORD-1" {
		t.Fatalf("expected order id in summary, got %q", got)
	}
	if got, _ := f.GetCellValue(summarySheet, "B6"); got != "pass" {
		t.Fatalf("expected pass outcome, got %q", got)
	}

	rows, err := f.GetRows(documentsSheet)
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("expected header plus 3 slots, got %d rows", len(rows))
	}
	if rows[1][0] != "invoice" || rows[1][2] != "invoice.pdf" || rows[1][5] != "yes" {
		t.Fatalf("unexpected invoice row: %v", rows[1])
	}
}

func TestRenderRejectsNilSession(t *testing.T) {
	var buf bytes.Buffer
	if err := NewRenderer().Render(nil, &buf); err == nil {
		t.Fatalf("expected error")
	}
}
