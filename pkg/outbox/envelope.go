package outbox

import (
	"context"
	"encoding/json"
	"time"
)

// EnvelopeVersion is written when an event does not pin its own version.
const EnvelopeVersion = 1

// Actor sources recorded on emitted events.
const (
	SourceAPI    = "api"
	SourceCron   = "cron"
	SourceImport = "import"
)

// ActorRef identifies the process, and for API calls the request, that
// caused an event.
type ActorRef struct {
	Source    string `json:"source"`
	RequestID string `json:"requestId,omitempty"`
}

// PayloadEnvelope is the JSON document stored in outbox_events.payload.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// DecodeData unmarshals the event body into v.
func (e PayloadEnvelope) DecodeData(v any) error {
	return json.Unmarshal(e.Data, v)
}

type actorKey struct{}

// WithActor attaches actor to ctx. Emit uses it when an event carries no
// explicit actor.
func WithActor(ctx context.Context, actor ActorRef) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the actor attached to ctx, if any.
func ActorFrom(ctx context.Context) (*ActorRef, bool) {
	if ctx == nil {
		return nil, false
	}
	actor, ok := ctx.Value(actorKey{}).(ActorRef)
	if !ok {
		return nil, false
	}
	return &actor, true
}
