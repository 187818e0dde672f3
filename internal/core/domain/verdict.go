package domain

import "time"

// FieldMismatch is one failing cross-document pair.
type FieldMismatch struct {
	Field       string       `json:"field"`
	Source      DocumentType `json:"source"`
	Target      DocumentType `json:"target"`
	SourceValue string       `json:"source_value,omitempty"`
	TargetValue string       `json:"target_value,omitempty"`
	Reason      string       `json:"reason"`
}

type SlotResult struct {
	Type    DocumentType `json:"type"`
	Status  SlotStatus   `json:"status"`
	Score   float64      `json:"score"`
	Matched bool         `json:"matched"`
	Error   string       `json:"error,omitempty"`
}

type Verdict struct {
	Passed      bool            `json:"passed"`
	Slots       []SlotResult    `json:"slots"`
	Mismatches  []FieldMismatch `json:"mismatches,omitempty"`
	EvaluatedAt time.Time       `json:"evaluated_at"`
}

// NewVerdict derives the overall outcome: every acquired slot scored and matched,
// no field mismatches.
func NewVerdict(slots []*DocumentSlot, mismatches []FieldMismatch, now time.Time) Verdict {
	v := Verdict{
		Passed:      len(slots) > 0 && len(mismatches) == 0,
		Slots:       make([]SlotResult, 0, len(slots)),
		Mismatches:  mismatches,
		EvaluatedAt: now,
	}
	for _, slot := range slots {
		v.Slots = append(v.Slots, SlotResult{
			Type:    slot.Type,
			Status:  slot.Status,
			Score:   slot.Score,
			Matched: slot.Matched,
			Error:   slot.Error,
		})
		if !slot.Scored || !slot.Matched || slot.Status == SlotError {
			v.Passed = false
		}
	}
	return v
}

func (v Verdict) Outcome() string {
	if v.Passed {
		return "pass"
	}
	return "fail"
}

func (v Verdict) clone() Verdict {
	out := v
	out.Slots = append([]SlotResult(nil), v.Slots...)
	out.Mismatches = append([]FieldMismatch(nil), v.Mismatches...)
	return out
}
