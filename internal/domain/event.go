package domain

import "time"

// ReportedStatus is the generic outcome a gateway reports for a transaction,
// mapped by the adapter from whatever the gateway's native vocabulary is.
type ReportedStatus string

const (
	ReportedStatusSuccess ReportedStatus = "SUCCESS"
	ReportedStatusPending ReportedStatus = "PENDING"
	ReportedStatusFailure ReportedStatus = "FAILURE"
)

// TargetOrderStatus maps a reported status to the order status it drives
// toward. ok is false for unrecognized values.
func (s ReportedStatus) TargetOrderStatus() (OrderStatus, bool) {
	switch s {
	case ReportedStatusSuccess:
		return OrderStatusCharged, true
	case ReportedStatusPending:
		return OrderStatusPending, true
	case ReportedStatusFailure:
		return OrderStatusFailed, true
	}
	return "", false
}

// GatewayEvent is the normalized form of one webhook notification. It is
// ephemeral; only its identity and outcome are persisted, as a WebhookEvent.
type GatewayEvent struct {
	Gateway          Gateway
	GatewayReference string
	OrderID          string
	ReportedStatus   ReportedStatus
	EventID          string
	ReceivedAt       time.Time
	RawPayload       []byte
}

type EventOutcome string

const (
	// OutcomeReceived is recorded before processing; it is what duplicate
	// deliveries of an in-flight event observe.
	OutcomeReceived      EventOutcome = "RECEIVED"
	OutcomeApplied       EventOutcome = "APPLIED"
	OutcomeDuplicate     EventOutcome = "DUPLICATE"
	OutcomeRejectedStale EventOutcome = "REJECTED_STALE"
	OutcomeUnresolved    EventOutcome = "UNRESOLVED"
)

// WebhookEvent is the durable dedup record for one (gateway, event_id) pair.
type WebhookEvent struct {
	Gateway        Gateway
	EventID        string
	OrderID        string
	ReportedStatus ReportedStatus
	Outcome        EventOutcome
	Payload        []byte
	ReceivedAt     time.Time
	ProcessedAt    *time.Time
}
