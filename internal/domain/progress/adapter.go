package progress

import (
	"strings"

	"github.com/google/uuid"
)

// PanelSpec names one ordered panel and how many analytes it expects.
type PanelSpec struct {
	OrderTestID      uuid.UUID
	TestGroupID      uuid.UUID
	ExpectedAnalytes int
}

// ResultRow is one analyte value from one submission, the raw input of
// the analyte-identity query path.
type ResultRow struct {
	TestGroupID        uuid.UUID
	VerificationStatus string
	AnalyteID          uuid.UUID
	AnalyteName        string
}

// Analyte rank by best-seen status across submissions. A later
// submission can raise an analyte's rank but never lower it.
const (
	rankRemaining = 0
	rankDraft     = 1
	rankPending   = 2
	rankApproved  = 3
)

func rankOf(verificationStatus string) int {
	switch verificationStatus {
	case "verified":
		return rankApproved
	case "pending_verification":
		return rankPending
	default:
		return rankDraft
	}
}

// analyteKey matches analytes across submissions by id when present,
// otherwise by normalized name.
func analyteKey(id uuid.UUID, name string) string {
	if id != uuid.Nil {
		return id.String()
	}
	return strings.ToLower(strings.TrimSpace(name))
}

// FromResultRows normalizes raw result rows into PanelObservations so
// the analyte-identity path reconciles to the same Compute output as
// the projection path. Each panel's analytes are deduplicated on
// identity keeping the best rank seen, then folded into one
// observation.
func FromResultRows(panels []PanelSpec, rows []ResultRow) []PanelObservation {
	ranks := make(map[uuid.UUID]map[string]int)
	for _, row := range rows {
		key := analyteKey(row.AnalyteID, row.AnalyteName)
		if key == "" {
			continue
		}
		byAnalyte := ranks[row.TestGroupID]
		if byAnalyte == nil {
			byAnalyte = make(map[string]int)
			ranks[row.TestGroupID] = byAnalyte
		}
		if r := rankOf(row.VerificationStatus); r > byAnalyte[key] {
			byAnalyte[key] = r
		}
	}

	observations := make([]PanelObservation, 0, len(panels))
	for _, panel := range panels {
		byAnalyte := ranks[panel.TestGroupID]
		entered, approved := 0, 0
		for _, r := range byAnalyte {
			if r >= rankDraft {
				entered++
			}
			if r == rankApproved {
				approved++
			}
		}

		obs := PanelObservation{
			OrderTestID:      panel.OrderTestID,
			TestGroupID:      panel.TestGroupID,
			ExpectedAnalytes: panel.ExpectedAnalytes,
			EnteredAnalytes:  entered,
			HasResults:       entered > 0,
		}
		switch {
		case entered > 0 && approved >= panel.ExpectedAnalytes:
			obs.IsVerified = true
			obs.PanelStatus = PanelVerified
		case entered >= panel.ExpectedAnalytes && entered > 0:
			obs.PanelStatus = PanelComplete
		case entered > 0:
			obs.PanelStatus = PanelPartial
		default:
			obs.PanelStatus = PanelNotStarted
		}
		observations = append(observations, obs)
	}
	return observations
}
