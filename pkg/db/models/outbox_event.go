package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/jasoncmcclain/mcpmp-api/pkg/enums"
)

// OutboxEvent is one domain event written in the same transaction as the
// ledger or run change it describes. The row id doubles as the envelope's
// event_id so consumers can deduplicate redeliveries.
//
// The relay job picks rows with published_at NULL in (created_at, id) order and
// either stamps published_at or bumps attempt_count and records last_error.
// Once attempt_count reaches the relay's cap the row is parked: the relay skips
// it and retention purges it after the retention window, as it does for
// published rows.
type OutboxEvent struct {
	ID            uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	EventType     enums.OutboxEventType     `gorm:"column:event_type;type:text;not null"`
	AggregateType enums.OutboxAggregateType `gorm:"column:aggregate_type;type:text;not null;index:idx_outbox_events_aggregate"`
	AggregateID   uuid.UUID                 `gorm:"column:aggregate_id;type:uuid;not null;index:idx_outbox_events_aggregate"`
	// Payload is the encoded outbox.PayloadEnvelope, not the bare event data.
	Payload   json.RawMessage `gorm:"column:payload;type:jsonb;not null"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
	// PublishedAt is set once the sink accepts the event. Retention measures age from it.
	PublishedAt *time.Time `gorm:"column:published_at"`
	// AttemptCount counts failed deliveries only.
	AttemptCount int `gorm:"column:attempt_count;not null;default:0"`
	// LastError holds the most recent delivery failure.
	LastError *string `gorm:"column:last_error"`
}

func (OutboxEvent) TableName() string { return "outbox_events" }

// FinalAttempt reports whether one more failed delivery parks the row under
// maxAttempts. A non-positive cap never parks.
func (e OutboxEvent) FinalAttempt(maxAttempts int) bool {
	return maxAttempts > 0 && e.AttemptCount+1 >= maxAttempts
}
