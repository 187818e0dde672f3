package domain

import "time"

type Stage string

const (
	StageBarcode Stage = "barcode"
	StageUpload  Stage = "upload"
	StageResults Stage = "results"
)

// Operator identifies who drives a session. It replaces ambient auth state and
// is handed to the workflow when the session starts.
type Operator struct {
	UserID string `json:"user_id"`
}

type Session struct {
	ID       string   `json:"id"`
	Operator Operator `json:"operator"`
	Stage    Stage    `json:"stage"`
	Barcode  string   `json:"barcode,omitempty"`
	OrderID  string   `json:"order_id,omitempty"`

	Slots   map[DocumentType]*DocumentSlot `json:"slots"`
	Verdict *Verdict                       `json:"verdict,omitempty"`
	Capture *CaptureState                  `json:"capture,omitempty"`

	LastError string    `json:"last_error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CaptureState describes an in-progress camera capture.
type CaptureState struct {
	DocumentType DocumentType `json:"document_type"`
	Phase        CapturePhase `json:"phase"`
	Frame        *Frame       `json:"frame,omitempty"`
}

type CapturePhase string

const (
	CaptureStreaming CapturePhase = "streaming"
	CaptureCropping  CapturePhase = "cropping"
)

func NewSession(id string, operator Operator, now time.Time) *Session {
	s := &Session{
		ID:        id,
		Operator:  operator,
		CreatedAt: now,
	}
	s.Reset(now)
	return s
}

// Reset returns the session to the barcode stage with empty slots. The operator is kept.
func (s *Session) Reset(now time.Time) {
	s.Stage = StageBarcode
	s.Barcode = ""
	s.OrderID = ""
	s.Verdict = nil
	s.Capture = nil
	s.LastError = ""
	s.Slots = make(map[DocumentType]*DocumentSlot, len(DocumentTypes()))
	for _, t := range DocumentTypes() {
		s.Slots[t] = NewDocumentSlot(t)
	}
	s.UpdatedAt = now
}

func (s *Session) Slot(t DocumentType) *DocumentSlot {
	slot, ok := s.Slots[t]
	if !ok {
		slot = NewDocumentSlot(t)
		s.Slots[t] = slot
	}
	return slot
}

// AcquiredSlots returns acquired slots in display order.
func (s *Session) AcquiredSlots() []*DocumentSlot {
	out := make([]*DocumentSlot, 0, len(s.Slots))
	for _, t := range DocumentTypes() {
		if slot, ok := s.Slots[t]; ok && slot.Acquired {
			out = append(out, slot)
		}
	}
	return out
}

// Snapshot returns a copy that is safe to hand out while the session keeps changing.
func (s *Session) Snapshot() *Session {
	out := *s
	out.Slots = make(map[DocumentType]*DocumentSlot, len(s.Slots))
	for t, slot := range s.Slots {
		out.Slots[t] = slot.clone()
	}
	if s.Verdict != nil {
		verdict := s.Verdict.clone()
		out.Verdict = &verdict
	}
	if s.Capture != nil {
		capture := *s.Capture
		if s.Capture.Frame != nil {
			frame := *s.Capture.Frame
			capture.Frame = &frame
		}
		out.Capture = &capture
	}
	return &out
}
