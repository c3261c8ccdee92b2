package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregateBottlingRun OutboxAggregateType = "bottling_run"
	AggregateReservation OutboxAggregateType = "reservation"
	AggregateGrapeLot    OutboxAggregateType = "grape_lot"
)

func (a OutboxAggregateType) IsValid() bool {
	switch a {
	case AggregateBottlingRun, AggregateReservation, AggregateGrapeLot:
		return true
	}
	return false
}

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	if a := OutboxAggregateType(value); a.IsValid() {
		return a, nil
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type column of outbox_events.
type OutboxEventType string

const (
	EventBottlingRunCreated       OutboxEventType = "bottling_run_created"
	EventBottlingRunStatusChanged OutboxEventType = "bottling_run_status_changed"
	EventReservationPlaced        OutboxEventType = "reservation_placed"
	EventReservationReleased      OutboxEventType = "reservation_released"
	EventReservationExpired       OutboxEventType = "reservation_expired"
	EventGrapeLotReceived         OutboxEventType = "grape_lot_received"
)

// eventAggregates pins every event type to the aggregate it describes.
var eventAggregates = map[OutboxEventType]OutboxAggregateType{
	EventBottlingRunCreated:       AggregateBottlingRun,
	EventBottlingRunStatusChanged: AggregateBottlingRun,
	EventReservationPlaced:        AggregateReservation,
	EventReservationReleased:      AggregateReservation,
	EventReservationExpired:       AggregateReservation,
	EventGrapeLotReceived:         AggregateGrapeLot,
}

func (e OutboxEventType) IsValid() bool {
	_, ok := eventAggregates[e]
	return ok
}

// Aggregate returns the aggregate type the event belongs to, or "" for an
// unknown event.
func (e OutboxEventType) Aggregate() OutboxAggregateType {
	return eventAggregates[e]
}

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	if e := OutboxEventType(value); e.IsValid() {
		return e, nil
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
