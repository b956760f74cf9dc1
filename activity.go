package credentials

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported audit categories.
type ActivityEventType string

const (
	ActivityEventPairIssued     ActivityEventType = "session.pair.issued"
	ActivityEventPairRotated    ActivityEventType = "session.pair.rotated"
	ActivityEventRotateFailure  ActivityEventType = "session.pair.rotate_failure"
	ActivityEventCodeIssued     ActivityEventType = "twofa.code.issued"
	ActivityEventCodeVerified   ActivityEventType = "twofa.code.verified"
	ActivityEventCodeRejected   ActivityEventType = "twofa.code.rejected"
	ActivityEventResetIssued    ActivityEventType = "password.reset.issued"
	ActivityEventResetConsumed  ActivityEventType = "password.reset.consumed"
	ActivityEventInviteCreated  ActivityEventType = "invitation.created"
	ActivityEventInviteAccepted ActivityEventType = "invitation.accepted"
	ActivityEventInviteExpired  ActivityEventType = "invitation.expired"
)

// ActorRef identifies who/what triggered an event.
type ActorRef struct {
	ID   string
	Type string
}

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	Actor      ActorRef
	UserID     string
	IPAddress  string
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing purposes. Sinks run
// best-effort: failures are logged by the emitting service and never roll
// back the security action they describe.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}
