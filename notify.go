package memberkit

import (
	"context"
	"log/slog"
)

// EventKind identifies a lifecycle notification event.
type EventKind string

const (
	EventMemberApproved  EventKind = "member.approved"
	EventMemberRejected  EventKind = "member.rejected"
	EventMemberSuspended EventKind = "member.suspended"
	EventMemberActivated EventKind = "member.activated"
	EventMemberDeleted   EventKind = "member.deleted"
)

// Notification is the payload delivered to a Notifier after a successful
// transition.
type Notification struct {
	MemberID     string
	Event        EventKind
	ActorID      string
	Status       MembershipStatus // post-transition status, "" for removals
	MemberNumber string           // set for approvals
	Reason       string
}

// Notifier delivers lifecycle notifications. Delivery is fire-and-forget: a
// notifier error never fails the transition that produced it; the service
// logs it and moves on. Implementations that talk to slow backends should
// queue internally rather than block the transition path.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, n Notification) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// LogNotifier writes notifications to a structured logger. It is the default
// when no notifier is configured, so every deployment at least has a record
// of emitted events.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier. A nil logger uses slog.Default.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// Notify implements Notifier.
func (ln *LogNotifier) Notify(ctx context.Context, n Notification) error {
	ln.logger.InfoContext(ctx, "member event",
		"event", string(n.Event),
		"member_id", n.MemberID,
		"actor_id", n.ActorID,
		"status", string(n.Status),
	)
	return nil
}
