package progress

import "math"

// Compute rolls panel observations up into draft/pending/approved
// buckets and a completion percentage. Pure function over its input;
// zero observations yield zero counts and percent 0.
//
// Classification precedence per panel:
//  1. verified (or is_verified) counts every expected analyte approved
//  2. complete counts every expected analyte pending
//  3. partial / in_progress splits min(entered, expected) pending,
//     remainder draft
//  4. not started (or no results at all) counts everything draft
//  5. anything else (unknown status with results present) falls back
//     to the partial split, the conservative reading
//
// The buckets always sum to expected_analytes, so the order totals sum
// to ExpectedTotal.
func Compute(observations []PanelObservation) Progress {
	p := Progress{ByPanel: make([]PanelProgress, 0, len(observations))}
	for _, obs := range observations {
		counts := classify(obs)
		p.ExpectedTotal += obs.ExpectedAnalytes
		p.Counts.Draft += counts.Draft
		p.Counts.Pending += counts.Pending
		p.Counts.Approved += counts.Approved
		p.ByPanel = append(p.ByPanel, PanelProgress{
			OrderTestID:      obs.OrderTestID,
			TestGroupID:      obs.TestGroupID,
			ExpectedAnalytes: obs.ExpectedAnalytes,
			PanelStatus:      obs.PanelStatus,
			Counts:           counts,
		})
	}
	if p.ExpectedTotal > 0 {
		p.Percent = int(math.Round(float64(p.Counts.Approved) / float64(p.ExpectedTotal) * 100))
	}
	return p
}

func classify(obs PanelObservation) Counts {
	expected := obs.ExpectedAnalytes
	if expected < 0 {
		expected = 0
	}
	switch {
	case obs.PanelStatus == PanelVerified || obs.IsVerified:
		return Counts{Approved: expected}
	case obs.PanelStatus == PanelComplete:
		return Counts{Pending: expected}
	case obs.PanelStatus == PanelPartial || obs.PanelStatus == PanelInProgress:
		return partialSplit(obs.EnteredAnalytes, expected)
	case obs.PanelStatus == PanelNotStarted || !obs.HasResults:
		return Counts{Draft: expected}
	default:
		// Unknown or unrecognized status with results present.
		return partialSplit(obs.EnteredAnalytes, expected)
	}
}

func partialSplit(entered, expected int) Counts {
	if entered < 0 {
		entered = 0
	}
	pending := entered
	if pending > expected {
		pending = expected
	}
	return Counts{Pending: pending, Draft: expected - pending}
}
