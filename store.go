package memberkit

import (
	"context"
)

// MemberStore is the persistence port the engine drives. Implementations must
// make CASUpdateStatus, Delete, and UpdateProfile apply the mutation and its
// audit entry as one atomic unit. All decision logic lives above the store;
// the store only moves bytes.
//
// Error contract: a missing member id surfaces as ErrNotFound; everything
// else the backend produces is wrapped as ErrInfrastructure by the caller.
type MemberStore interface {
	// Load returns the member with the given id.
	Load(ctx context.Context, id string) (*Member, error)

	// List returns members matching the filter.
	List(ctx context.Context, filter MemberFilter) ([]Member, error)

	// Create inserts a new member record. Used by registration intake; the
	// engine itself never creates members during transitions.
	Create(ctx context.Context, member *Member) error

	// CASUpdateStatus applies a status update only if the member's current
	// status equals expected, writing the audit entry in the same unit.
	// Returns false (and no error) when the compare failed because the status
	// changed concurrently.
	CASUpdateStatus(ctx context.Context, id string, expected MembershipStatus, update StatusUpdate, audit *AuditEntry) (bool, error)

	// UpdateProfile applies profile field changes and the audit entry.
	UpdateProfile(ctx context.Context, id string, changes ProfileChanges, audit *AuditEntry) error

	// Delete removes the member record irreversibly, cascading to dependent
	// rows, and writes the audit entry. Returns false when the id is gone.
	Delete(ctx context.Context, id string, audit *AuditEntry) (bool, error)

	// AllocateMemberNumber issues the next member number. Numbers are unique
	// and never reissued; a number burned by a lost CAS race leaves a gap,
	// which is acceptable.
	AllocateMemberNumber(ctx context.Context) (string, error)

	// AppendAudit writes a standalone audit entry, used for decisions that do
	// not mutate a member row.
	AppendAudit(ctx context.Context, entry *AuditEntry) error

	// AuditLog returns audit entries matching the filter, newest first.
	AuditLog(ctx context.Context, filter AuditLogFilter) ([]MemberAuditLog, error)
}
