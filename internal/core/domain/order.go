package domain

import "time"

// ReferenceDocument is an expected document attached to a receiving order.
type ReferenceDocument struct {
	Type        DocumentType `json:"document_type"`
	DownloadURL string       `json:"download_url"`
}

type OrderLookup struct {
	OrderID   string              `json:"order_id"`
	Documents []ReferenceDocument `json:"documents"`
}

const ApprovalStatusApproved = "APPROVED"

type ApprovalRequest struct {
	Status   string `json:"status"`
	Comments string `json:"comments"`
	UserID   string `json:"user_id"`
}

// Region is a rectangle in pixel coordinates, origin at the top-left corner.
type Region struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (r Region) IsEmpty() bool { return r.Width <= 0 || r.Height <= 0 }

// Frame is a captured still awaiting the crop step.
type Frame struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	DefaultCrop Region `json:"default_crop"`
}

// FinalizedVerification is published once an order has been approved.
type FinalizedVerification struct {
	SessionID   string            `json:"session_id"`
	OrderID     string            `json:"order_id"`
	Barcode     string            `json:"barcode"`
	UserID      string            `json:"user_id"`
	Comments    string            `json:"comments,omitempty"`
	Verdict     Verdict           `json:"verdict"`
	ArchiveKeys map[string]string `json:"archive_keys,omitempty"`
	FinalizedAt time.Time         `json:"finalized_at"`
}
