package matching

import (
	"strings"
	"testing"

	"github.com/kirillkom/receiving-verifier/internal/core/domain"
)

func TestExtractInvoiceNumber(t *testing.T) {
	got, ok := InvoiceNumberPattern.Extract("Commercial Invoice\nInvoice No: INV-2024-0007\nDate 2024-03-01")
	if !ok || got != "INV-2024-0007" {
		t.Fatalf("expected INV-2024-0007, got %q (ok=%v)", got, ok)
	}
}

func TestExtractReturnsFirstMatch(t *testing.T) {
	got, ok := AirwayBillNumberPattern.Extract("AWB-123456 and later AWB-999999")
	if !ok || got != "AWB-123456" {
		t.Fatalf("expected first awb, got %q", got)
	}
}

func TestExtractAbsent(t *testing.T) {
	if got, ok := InvoiceNumberPattern.Extract("Invoice date 2024-03-01"); ok {
		t.Fatalf("expected no match, got %q", got)
	}
}

func TestCheckReportsInvoiceMismatch(t *testing.T) {
	checker := NewChecker(nil)
	mismatches := checker.Check(map[domain.DocumentType]string{
		domain.DocumentInvoice:     "Invoice INV-2024-0007 AWB-123456",
		domain.DocumentBillOfEntry: "Bill of entry referencing INV-2024-0008",
	})
	if len(mismatches) != 1 {
		t.Fatalf("expected 1 mismatch, got %+v", mismatches)
	}
	m := mismatches[0]
	if m.Field != "invoice_number" || m.Source != domain.DocumentInvoice || m.Target != domain.DocumentBillOfEntry {
		t.Fatalf("unexpected mismatch: %+v", m)
	}
	if !strings.Contains(m.Reason, "bill of entry") || !strings.Contains(m.Reason, "invoice") {
		t.Fatalf("expected reason naming the pair, got %q", m.Reason)
	}
}

func TestCheckAirwayBillMatch(t *testing.T) {
	checker := NewChecker(nil)
	mismatches := checker.Check(map[domain.DocumentType]string{
		domain.DocumentInvoice:    "Invoice INV-2024-0007 shipped under AWB-123456",
		domain.DocumentAirwayBill: "Air waybill awb-123456 consignee ACME",
	})
	if len(mismatches) != 0 {
		t.Fatalf("expected no mismatch, got %+v", mismatches)
	}
}

func TestCheckReportsAllFailingPairs(t *testing.T) {
	checker := NewChecker(nil)
	mismatches := checker.Check(map[domain.DocumentType]string{
		domain.DocumentInvoice:     "Invoice INV-2024-0007 AWB-123456",
		domain.DocumentBillOfEntry: "INV-2024-0008",
		domain.DocumentAirwayBill:  "no airway number here",
	})
	if len(mismatches) != 2 {
		t.Fatalf("expected 2 mismatches, got %+v", mismatches)
	}
	if mismatches[1].Field != "airway_bill_number" || !strings.Contains(mismatches[1].Reason, "not found in airway bill") {
		t.Fatalf("unexpected airway mismatch: %+v", mismatches[1])
	}
}

func TestCheckSkipsRulesWithoutBothTexts(t *testing.T) {
	checker := NewChecker(nil)
	mismatches := checker.Check(map[domain.DocumentType]string{
		domain.DocumentBillOfEntry: "INV-2024-0008",
	})
	if len(mismatches) != 0 {
		t.Fatalf("expected no checks without invoice text, got %+v", mismatches)
	}
}

func TestNewFieldPatternRejectsInvalidRegex(t *testing.T) {
	_, err := NewFieldPattern("broken", "", "(")
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
