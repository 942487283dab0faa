package scheduler

import "time"

// Outcome is what a pass did with one subscription
type Outcome string

const (
	OutcomeSkipped    Outcome = "skipped"
	OutcomeCreated    Outcome = "created"
	OutcomeTerminated Outcome = "terminated"
	OutcomeExpired    Outcome = "expired"
	OutcomeErrored    Outcome = "errored"
)

// Reasons the runner adds on top of schedule.Decide's skip reasons
const (
	ReasonInFlight       = "in_flight"
	ReasonAlreadyOrdered = "already_ordered"
	ReasonDuplicateOrder = "duplicate_order"
	ReasonLockFailed     = "lock_failed"
	ReasonStoreFailed    = "store_failed"
	ReasonBackendFailed  = "backend_failed"
	ReasonRecordFailed   = "record_failed"
	ReasonScheduleFailed = "schedule_failed"
)

// ItemResult is the per-subscription entry of a RunReport
type ItemResult struct {
	ShippingDate   *time.Time `json:"shipping_date,omitempty"`
	SubscriptionID string     `json:"subscription_id"`
	Outcome        Outcome    `json:"outcome"`
	Reason         string     `json:"reason,omitempty"`
	BackendOrderID string     `json:"backend_order_id,omitempty"`
	Error          string     `json:"error,omitempty"`
	OrderPlaced    bool       `json:"order_placed,omitempty"`
	Retriable      bool       `json:"retriable,omitempty"`
}

// RunReport aggregates one scheduler pass.
// Created counts orders placed, including those that ended the subscription.
type RunReport struct {
	Now        time.Time    `json:"now"`
	RunID      string       `json:"run_id"`
	Items      []ItemResult `json:"items"`
	Processed  int          `json:"processed"`
	Created    int          `json:"created"`
	Skipped    int          `json:"skipped"`
	Terminated int          `json:"terminated"`
	Expired    int          `json:"expired"`
	Errored    int          `json:"errored"`
}

func (r *RunReport) add(item ItemResult) {
	r.Items = append(r.Items, item)
	r.Processed++
	if item.OrderPlaced {
		r.Created++
	}
	switch item.Outcome {
	case OutcomeSkipped:
		r.Skipped++
	case OutcomeTerminated:
		r.Terminated++
	case OutcomeExpired:
		r.Expired++
	case OutcomeErrored:
		r.Errored++
	}
}
