package memberkit

// TransitionKind identifies a membership lifecycle transition.
type TransitionKind string

const (
	// TransitionApprove accepts a pending registration. The member becomes
	// active and receives a member number, issued exactly once.
	TransitionApprove TransitionKind = "approve"

	// TransitionReject turns down a pending registration. Requires a reason;
	// the record is removed and the reason is retained in the audit log.
	TransitionReject TransitionKind = "reject"

	// TransitionSuspend deactivates an active member.
	TransitionSuspend TransitionKind = "suspend"

	// TransitionActivate restores a suspended member to active.
	TransitionActivate TransitionKind = "activate"

	// TransitionDelete removes a member record irreversibly, from any status.
	TransitionDelete TransitionKind = "delete"
)

// transitionRule is one row of the transition table.
type transitionRule struct {
	from           []MembershipStatus // empty = any current status
	to             MembershipStatus   // "" when the record is removed
	permissions    []string           // actor needs any of these
	requiresReason bool
	removes        bool
	event          EventKind
}

// transitionTable is the single authority on which lifecycle changes are
// legal. Adding a status or a verb means updating this table, nothing else.
var transitionTable = map[TransitionKind]transitionRule{
	TransitionApprove: {
		from:        []MembershipStatus{StatusPending},
		to:          StatusActive,
		permissions: []string{"member.approve"},
		event:       EventMemberApproved,
	},
	TransitionReject: {
		from:           []MembershipStatus{StatusPending},
		permissions:    []string{"member.approve"},
		requiresReason: true,
		removes:        true,
		event:          EventMemberRejected,
	},
	TransitionSuspend: {
		from:        []MembershipStatus{StatusActive},
		to:          StatusSuspended,
		permissions: []string{"member.suspend", "member.manage"},
		event:       EventMemberSuspended,
	},
	TransitionActivate: {
		from:        []MembershipStatus{StatusSuspended},
		to:          StatusActive,
		permissions: []string{"member.suspend", "member.manage"},
		event:       EventMemberActivated,
	},
	TransitionDelete: {
		permissions: []string{"member.delete"},
		removes:     true,
		event:       EventMemberDeleted,
	},
}

// TransitionKinds returns every transition kind in the table.
func TransitionKinds() []TransitionKind {
	return []TransitionKind{
		TransitionApprove,
		TransitionReject,
		TransitionSuspend,
		TransitionActivate,
		TransitionDelete,
	}
}

// Valid reports whether the kind exists in the transition table.
func (k TransitionKind) Valid() bool {
	_, ok := transitionTable[k]
	return ok
}

// RequiresReason reports whether the transition demands a non-empty reason.
func (k TransitionKind) RequiresReason() bool {
	return transitionTable[k].requiresReason
}

// Removes reports whether the transition ends the member record (reject,
// delete) rather than moving it to another status.
func (k TransitionKind) Removes() bool {
	return transitionTable[k].removes
}

// Permissions returns the permission keys that guard the transition; the
// actor needs any one of them.
func (k TransitionKind) Permissions() []string {
	rule := transitionTable[k]
	out := make([]string, len(rule.permissions))
	copy(out, rule.permissions)
	return out
}

// Target returns the status the transition moves to, or "" for removals.
func (k TransitionKind) Target() MembershipStatus {
	return transitionTable[k].to
}

// Event returns the notification event emitted on success.
func (k TransitionKind) Event() EventKind {
	return transitionTable[k].event
}

// AllowedFrom reports whether the transition is legal from a current status.
func (k TransitionKind) AllowedFrom(current MembershipStatus) bool {
	rule, ok := transitionTable[k]
	if !ok {
		return false
	}
	if len(rule.from) == 0 {
		return true
	}
	for _, s := range rule.from {
		if s == current {
			return true
		}
	}
	return false
}
