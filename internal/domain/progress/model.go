package progress

import (
	"strings"

	"github.com/google/uuid"
)

// PanelStatus is the closed set of per-panel entry states the
// aggregator classifies on. Anything else parses to PanelUnknown and is
// handled explicitly rather than falling through a string comparison.
type PanelStatus string

const (
	PanelNotStarted PanelStatus = "not_started"
	PanelPartial    PanelStatus = "partial"
	PanelInProgress PanelStatus = "in_progress"
	PanelComplete   PanelStatus = "complete"
	PanelVerified   PanelStatus = "verified"
	PanelUnknown    PanelStatus = "unknown"
)

// ParsePanelStatus maps the display strings older clients still send
// ("Not started", "In progress") onto the enum.
func ParsePanelStatus(s string) PanelStatus {
	switch strings.ToLower(strings.TrimSpace(strings.ReplaceAll(s, " ", "_"))) {
	case "not_started", "notstarted", "":
		return PanelNotStarted
	case "partial":
		return PanelPartial
	case "in_progress", "inprogress":
		return PanelInProgress
	case "complete", "completed":
		return PanelComplete
	case "verified":
		return PanelVerified
	default:
		return PanelUnknown
	}
}

// PanelObservation is one row of the read-only projection the
// aggregator consumes: entry and verification state for one panel of
// one order.
type PanelObservation struct {
	OrderTestID      uuid.UUID   `json:"order_test_id"`
	TestGroupID      uuid.UUID   `json:"test_group_id"`
	ExpectedAnalytes int         `json:"expected_analytes"`
	EnteredAnalytes  int         `json:"entered_analytes"`
	HasResults       bool        `json:"has_results"`
	IsVerified       bool        `json:"is_verified"`
	PanelStatus      PanelStatus `json:"panel_status"`
}

// Counts buckets analytes by how far along they are.
type Counts struct {
	Draft    int `json:"draft"`
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
}

// PanelProgress is the per-panel slice of a computed rollup.
type PanelProgress struct {
	OrderTestID      uuid.UUID   `json:"order_test_id"`
	TestGroupID      uuid.UUID   `json:"test_group_id"`
	ExpectedAnalytes int         `json:"expected_analytes"`
	PanelStatus      PanelStatus `json:"panel_status"`
	Counts           Counts      `json:"counts"`
}

// Progress is the order-level rollup.
type Progress struct {
	ExpectedTotal int             `json:"expected_total"`
	Counts        Counts          `json:"counts"`
	Percent       int             `json:"percent"`
	ByPanel       []PanelProgress `json:"by_panel"`
}
