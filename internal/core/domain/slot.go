package domain

import (
	"fmt"
	"strings"
)

type DocumentType string

const (
	DocumentInvoice     DocumentType = "invoice"
	DocumentBillOfEntry DocumentType = "bill_of_entry"
	DocumentAirwayBill  DocumentType = "airway_bill"
)

// DocumentTypes lists the slot types in display order.
func DocumentTypes() []DocumentType {
	return []DocumentType{DocumentInvoice, DocumentBillOfEntry, DocumentAirwayBill}
}

// Label is the human readable name used in remediation messages.
func (t DocumentType) Label() string {
	switch t {
	case DocumentInvoice:
		return "invoice"
	case DocumentBillOfEntry:
		return "bill of entry"
	case DocumentAirwayBill:
		return "airway bill"
	default:
		return string(t)
	}
}

// ParseDocumentType accepts the canonical names plus the spellings used by the order API
// ("INVOICE", "Bill of Entry", "BOE", "AWB", "airway-bill", ...).
func ParseDocumentType(raw string) (DocumentType, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	normalized = strings.NewReplacer("-", "_", " ", "_").Replace(normalized)
	switch normalized {
	case "invoice", "commercial_invoice":
		return DocumentInvoice, nil
	case "bill_of_entry", "billofentry", "boe":
		return DocumentBillOfEntry, nil
	case "airway_bill", "air_waybill", "airwaybill", "awb":
		return DocumentAirwayBill, nil
	default:
		return "", WrapError(ErrInvalidInput, "parse document type", fmt.Errorf("unknown document type %q", raw))
	}
}

type SlotStatus string

const (
	SlotEmpty      SlotStatus = "empty"
	SlotCaptured   SlotStatus = "captured"
	SlotExtracting SlotStatus = "extracting"
	SlotScored     SlotStatus = "scored"
	SlotError      SlotStatus = "error"
)

// EmptyTextMarker stands in for the text of a slot whose OCR failed so scoring
// yields a mismatch instead of an error.
const EmptyTextMarker = "[EMPTY]"

type CaptureSource string

const (
	SourceFileUpload CaptureSource = "file_upload"
	SourceCamera     CaptureSource = "camera"
)

// Payload is an acquired document image or file.
type Payload struct {
	FileName string        `json:"file_name"`
	MimeType string        `json:"mime_type"`
	Source   CaptureSource `json:"source"`
	Data     []byte        `json:"-"`
}

func (p Payload) Size() int { return len(p.Data) }

type DocumentSlot struct {
	Type     DocumentType `json:"type"`
	Acquired bool         `json:"acquired"`
	Status   SlotStatus   `json:"status"`
	Source   *Payload     `json:"source,omitempty"`

	ExtractedText string `json:"extracted_text,omitempty"`
	ReferenceText string `json:"-"`
	HasReference  bool   `json:"has_reference"`

	Score   float64 `json:"score"`
	Scored  bool    `json:"scored"`
	Matched bool    `json:"matched"`

	Error               string   `json:"error,omitempty"`
	NeedsResubmission   bool     `json:"needs_resubmission,omitempty"`
	ResubmissionReasons []string `json:"resubmission_reasons,omitempty"`

	// Revision changes on every acquisition so late OCR results for a replaced
	// payload can be recognised and dropped.
	Revision  int  `json:"revision"`
	ocrFailed bool
}

func NewDocumentSlot(t DocumentType) *DocumentSlot {
	return &DocumentSlot{Type: t, Status: SlotEmpty}
}

// Acquire binds a freshly captured payload and clears every derived value.
func (s *DocumentSlot) Acquire(p Payload) {
	payload := p
	s.Acquired = true
	s.Source = &payload
	s.Status = SlotCaptured
	s.ExtractedText = ""
	s.clearScore()
	s.Error = ""
	s.ocrFailed = false
	s.ClearResubmission()
	s.Revision++
}

// NeedsExtraction reports whether confirmation must run OCR for the slot.
func (s *DocumentSlot) NeedsExtraction() bool {
	return s.Acquired && (s.ExtractedText == "" || s.ocrFailed)
}

func (s *DocumentSlot) BeginExtraction() {
	s.Status = SlotExtracting
	s.Error = ""
	s.clearScore()
}

func (s *DocumentSlot) ApplyExtraction(text string) {
	s.ExtractedText = text
	s.Status = SlotCaptured
	s.ocrFailed = false
}

// FailExtraction marks an OCR failure; the slot keeps a marker text so it still scores.
func (s *DocumentSlot) FailExtraction(reason string) {
	s.ExtractedText = EmptyTextMarker
	s.Status = SlotError
	s.Error = reason
	s.ocrFailed = true
}

func (s *DocumentSlot) OCRFailed() bool { return s.ocrFailed }

// ApplyScore records a similarity result. A slot already in error keeps its status.
func (s *DocumentSlot) ApplyScore(score float64, matched bool) {
	s.Score = score
	s.Matched = matched
	s.Scored = true
	if s.Status != SlotError {
		s.Status = SlotScored
	}
}

func (s *DocumentSlot) FailScore(reason string) {
	s.clearScore()
	s.Status = SlotError
	s.Error = reason
}

func (s *DocumentSlot) MarkForResubmission(reason string) {
	s.NeedsResubmission = true
	s.ResubmissionReasons = append(s.ResubmissionReasons, reason)
}

func (s *DocumentSlot) ClearResubmission() {
	s.NeedsResubmission = false
	s.ResubmissionReasons = nil
}

func (s *DocumentSlot) SetReference(text string) {
	s.ReferenceText = text
	s.HasReference = strings.TrimSpace(text) != ""
}

func (s *DocumentSlot) clearScore() {
	s.Score = 0
	s.Scored = false
	s.Matched = false
}

func (s *DocumentSlot) clone() *DocumentSlot {
	out := *s
	if s.Source != nil {
		payload := *s.Source
		out.Source = &payload
	}
	if s.ResubmissionReasons != nil {
		out.ResubmissionReasons = append([]string(nil), s.ResubmissionReasons...)
	}
	return &out
}
