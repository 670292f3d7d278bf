package memberkit

import "time"

// MemberFilter provides options for member listing queries. The service adds
// the actor's region restriction on top of it for regionally scoped actors;
// callers cannot widen visibility through the filter.
type MemberFilter struct {
	// Filter by membership status
	Status MembershipStatus

	// Filter by region
	Region string

	// Case-insensitive substring match on name or email
	Search string

	// Pagination
	Limit  int
	Offset int
}

// NewMemberFilter creates a MemberFilter with default values.
func NewMemberFilter() MemberFilter {
	return MemberFilter{
		Limit: 100,
	}
}

// WithStatus sets the status filter.
func (f MemberFilter) WithStatus(status MembershipStatus) MemberFilter {
	f.Status = status
	return f
}

// WithRegion sets the region filter.
func (f MemberFilter) WithRegion(region string) MemberFilter {
	f.Region = region
	return f
}

// WithSearch sets the name/email search term.
func (f MemberFilter) WithSearch(term string) MemberFilter {
	f.Search = term
	return f
}

// WithPagination sets both limit and offset.
func (f MemberFilter) WithPagination(limit, offset int) MemberFilter {
	f.Limit = limit
	f.Offset = offset
	return f
}

// AuditLogFilter provides options for filtering audit log queries.
type AuditLogFilter struct {
	// Filter by actor who performed the action
	ActorID string

	// Filter by target member
	MemberID string

	// Filter by action (transition kind or "edit")
	Action string

	// Filter by time range
	Since time.Time
	Until time.Time

	// Pagination
	Limit  int
	Offset int
}

// NewAuditLogFilter creates a new AuditLogFilter with default values.
func NewAuditLogFilter() AuditLogFilter {
	return AuditLogFilter{
		Limit: 100,
	}
}

// WithActor sets the actor ID filter.
func (f AuditLogFilter) WithActor(actorID string) AuditLogFilter {
	f.ActorID = actorID
	return f
}

// WithMember sets the member ID filter.
func (f AuditLogFilter) WithMember(memberID string) AuditLogFilter {
	f.MemberID = memberID
	return f
}

// WithAction sets the action filter.
func (f AuditLogFilter) WithAction(action string) AuditLogFilter {
	f.Action = action
	return f
}

// WithTimeRange sets the time range filter.
func (f AuditLogFilter) WithTimeRange(since, until time.Time) AuditLogFilter {
	f.Since = since
	f.Until = until
	return f
}

// WithSince sets the start time filter.
func (f AuditLogFilter) WithSince(since time.Time) AuditLogFilter {
	f.Since = since
	return f
}

// WithUntil sets the end time filter.
func (f AuditLogFilter) WithUntil(until time.Time) AuditLogFilter {
	f.Until = until
	return f
}

// WithPagination sets both limit and offset.
func (f AuditLogFilter) WithPagination(limit, offset int) AuditLogFilter {
	f.Limit = limit
	f.Offset = offset
	return f
}
