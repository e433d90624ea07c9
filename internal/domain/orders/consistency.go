package orders

import "github.com/google/uuid"

// ConsistencyReport is the diagnostic outcome of comparing an order's status
// against its recorded collection facts. It never mutates anything; a caller
// must explicitly ask for the repair.
type ConsistencyReport struct {
	OrderID           uuid.UUID `json:"order_id"`
	Consistent        bool      `json:"consistent"`
	Reason            string    `json:"reason,omitempty"`
	RecommendedStatus *Status   `json:"recommended_status,omitempty"`
}

// CheckConsistency classifies the order as consistent or inconsistent.
// A collected sample with a pre-collection status recommends Collected; a
// missing sample with a post-collection processing status recommends
// PendingCollection.
func CheckConsistency(o *Order) ConsistencyReport {
	report := ConsistencyReport{OrderID: o.ID, Consistent: true}

	collected := o.SampleCollected()
	switch {
	case collected && (o.Status == StatusOrderCreated || o.Status == StatusPendingCollection):
		recommended := StatusCollected
		report.Consistent = false
		report.Reason = "sample is collected but status predates collection"
		report.RecommendedStatus = &recommended
	case !collected && (o.Status == StatusCollected || o.Status == StatusInProgress):
		recommended := StatusPendingCollection
		report.Consistent = false
		report.Reason = "status implies a collected sample but none is recorded"
		report.RecommendedStatus = &recommended
	}
	return report
}
