package memberkit

import (
	"time"

	"github.com/uptrace/bun"
)

// MembershipStatus is the lifecycle state of a member record. The enumeration
// is closed: no other value is ever valid, and status only changes through
// the transition table.
type MembershipStatus string

const (
	// StatusPending is a registration awaiting review ("calon anggota").
	StatusPending MembershipStatus = "calon_anggota"

	// StatusActive is an approved, active member ("aktif").
	StatusActive MembershipStatus = "aktif"

	// StatusSuspended is a deactivated member ("tidak aktif"). Suspension is
	// reversible through Activate.
	StatusSuspended MembershipStatus = "tidak_aktif"
)

// Valid reports whether the status is one of the enumerated values.
func (s MembershipStatus) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusSuspended:
		return true
	}
	return false
}

// Member is a membership record. Created when a registration request is
// submitted (status pending); mutated only through state machine transitions.
type Member struct {
	bun.BaseModel `bun:"table:members,alias:m"`

	ID           string           `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	FullName     string           `bun:"full_name,notnull"`
	Email        string           `bun:"email,notnull"`
	Phone        string           `bun:"phone"`
	Region       string           `bun:"region,notnull"`
	Status       MembershipStatus `bun:"membership_status,notnull"`
	MemberNumber string           `bun:"member_number"` // assigned on approval, never reissued

	// Approval audit trail.
	ApprovedBy   string    `bun:"approved_by"`
	ApprovedAt   time.Time `bun:"approved_at,nullzero"`
	StatusReason string    `bun:"status_reason"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// MemberAuditLog records every lifecycle decision for compliance and
// operator diagnosis.
type MemberAuditLog struct {
	bun.BaseModel `bun:"table:member_audit_log,alias:mal"`

	ID        string    `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	Timestamp time.Time `bun:"timestamp,notnull,default:current_timestamp"`

	// Who performed the action
	ActorID    string   `bun:"actor_id,notnull"`
	ActorRoles []string `bun:"actor_roles,type:text[]"`

	// What action was performed
	Action string `bun:"action,notnull"` // transition kind, or "edit"

	// Target of the action
	MemberID   string           `bun:"member_id,notnull"`
	FromStatus MembershipStatus `bun:"from_status"`
	ToStatus   MembershipStatus `bun:"to_status"`
	Reason     string           `bun:"reason"`

	// Request metadata for forensics
	IPAddress string `bun:"ip_address"`
	UserAgent string `bun:"user_agent"`
	RequestID string `bun:"request_id"`
}

// AuditEntry is used to create new audit log entries.
type AuditEntry struct {
	ActorID    string
	ActorRoles []string
	Action     string
	MemberID   string
	FromStatus MembershipStatus
	ToStatus   MembershipStatus
	Reason     string
	IPAddress  string
	UserAgent  string
	RequestID  string
}

// ToModel converts an AuditEntry to a MemberAuditLog model.
func (e *AuditEntry) ToModel() *MemberAuditLog {
	return &MemberAuditLog{
		ActorID:    e.ActorID,
		ActorRoles: e.ActorRoles,
		Action:     e.Action,
		MemberID:   e.MemberID,
		FromStatus: e.FromStatus,
		ToStatus:   e.ToStatus,
		Reason:     e.Reason,
		IPAddress:  e.IPAddress,
		UserAgent:  e.UserAgent,
		RequestID:  e.RequestID,
		Timestamp:  time.Now(),
	}
}

// StatusUpdate carries the fields a transition writes alongside the new
// status. The store applies it and the matching audit entry as one atomic
// unit, guarded by a compare-and-set on the previous status.
type StatusUpdate struct {
	Status       MembershipStatus
	MemberNumber string // set on approval only
	ActorID      string
	Reason       string
	At           time.Time
}

// ProfileChanges describes an edit to member profile fields. Zero-valued
// fields are left untouched. Email changes are gated behind a more privileged
// permission than other profile fields.
type ProfileChanges struct {
	FullName string
	Email    string
	Phone    string
	Region   string
}

// Empty reports whether the change set alters nothing.
func (p ProfileChanges) Empty() bool {
	return p == ProfileChanges{}
}

// TransitionResult is the outcome of one transition attempt for one member.
// Bulk operations return one result per distinct member id.
type TransitionResult struct {
	MemberID string

	// Status is the member's status after a successful transition. Empty for
	// removals (reject, delete) and for failures.
	Status MembershipStatus

	// MemberNumber is set when the transition issued one (approval).
	MemberNumber string

	// Err is nil on success, otherwise one of the package's typed errors.
	Err error
}

// OK reports whether the transition succeeded.
func (r TransitionResult) OK() bool {
	return r.Err == nil
}

// Summarize counts successes and failures in a bulk result set.
func Summarize(results []TransitionResult) (succeeded, failed int) {
	for _, r := range results {
		if r.OK() {
			succeeded++
		} else {
			failed++
		}
	}
	return succeeded, failed
}
