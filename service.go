package memberkit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Service drives the membership lifecycle: permission checks, state machine
// transitions, profile edits, and scoped listing. Every decision is made
// against an immutable catalog snapshot, so a concurrent ReloadCatalog never
// changes the rules mid-operation.
//
// Error Handling:
// All operations return the package's typed errors. Check them with the Is*
// helpers or errors.Is against the sentinels, and shape responses with
// PublicError so denials never reveal member existence.
//
// Example error handling:
//
//	result, err := service.Transition(ctx, actor, id, memberkit.TransitionApprove, "")
//	if err != nil {
//	    if memberkit.IsDenial(err) {
//	        // present as unauthorized, log the full error
//	    }
//	    if memberkit.IsConflict(err) {
//	        // another operator changed the member first
//	    }
//	}
type Service struct {
	catalog     atomic.Pointer[Catalog]
	store       MemberStore
	notifier    Notifier
	logger      *slog.Logger
	monitor     *transitionMonitor
	bulkWorkers int
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier sets the notifier that receives lifecycle events. Defaults to
// a LogNotifier on the service logger.
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

// WithLogger sets the structured logger. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithBulkWorkers sets the concurrency limit for bulk transitions.
// Defaults to 8.
func WithBulkWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.bulkWorkers = n
		}
	}
}

// NewService creates a MemberKit service.
//
// Example:
//
//	catalog, _ := memberkit.LoadCatalog("roles.yaml")
//	db, _ := dbkit.New(dbkit.Config{URL: "postgres://..."})
//	service := memberkit.NewService(catalog, memberkit.NewDatabaseStore(db))
func NewService(catalog *Catalog, store MemberStore, opts ...Option) *Service {
	s := &Service{
		store:       store,
		monitor:     newTransitionMonitor(),
		bulkWorkers: 8,
	}
	s.catalog.Store(catalog)

	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.notifier == nil {
		s.notifier = NewLogNotifier(s.logger)
	}
	return s
}

// Catalog returns the current catalog snapshot. Holders keep answering from
// the snapshot they took even while the catalog is reloaded.
func (s *Service) Catalog() *Catalog {
	return s.catalog.Load()
}

// ReloadCatalog atomically swaps in a new catalog. In-flight operations keep
// the snapshot they started with; new operations see the new rules.
func (s *Service) ReloadCatalog(catalog *Catalog) error {
	if catalog == nil {
		return NewError(ErrInvalidCatalog, "nil catalog")
	}
	s.catalog.Store(catalog)
	s.logger.Info("permission catalog reloaded",
		"roles", len(catalog.roles),
		"permissions", len(catalog.keys),
	)
	return nil
}

// CheckerFor binds an actor to the current catalog snapshot for repeated
// permission and scope checks.
func (s *Service) CheckerFor(actor Actor) *Checker {
	return NewChecker(actor, s.Catalog())
}

// IsAllowed reports whether the actor may use a permission key. Unknown keys
// are always denied.
func (s *Service) IsAllowed(actor Actor, key string) bool {
	return s.Catalog().isAllowed(actor.Roles, key)
}

// CheckPermission checks a permission key for an actor, returning a typed
// error on denial.
func (s *Service) CheckPermission(actor Actor, key string) error {
	if actor.ID == "" {
		return NewError(ErrNoActor, "permission check requires an actor")
	}
	if s.IsAllowed(actor, key) {
		return nil
	}
	return NewError(ErrUnauthorized, "permission denied").
		WithActor(actor.ID).
		WithPermission(key)
}

// ============================================================================
// REGISTRATION
// ============================================================================

// Register creates a pending member record from a registration request. No
// permission is required: registration is the self-service entry into the
// lifecycle, and everything after it goes through the state machine.
func (s *Service) Register(ctx context.Context, member *Member) (*Member, error) {
	if member == nil {
		return nil, NewError(ErrValidation, "member required")
	}
	if member.FullName == "" || member.Email == "" || member.Region == "" {
		return nil, NewError(ErrValidation, "full name, email and region are required")
	}

	if member.ID == "" {
		member.ID = uuid.NewString()
	}
	now := time.Now()
	member.Status = StatusPending
	member.MemberNumber = ""
	member.CreatedAt = now
	member.UpdatedAt = now

	if err := s.store.Create(ctx, member); err != nil {
		return nil, s.storeErr(err, member.ID)
	}

	audit := GetAuditContext(ctx)
	entry := &AuditEntry{
		ActorID:   member.ID, // self-service: the registrant is the actor
		Action:    "register",
		MemberID:  member.ID,
		ToStatus:  StatusPending,
		IPAddress: audit.IPAddress,
		UserAgent: audit.UserAgent,
		RequestID: audit.RequestID,
	}
	if err := s.store.AppendAudit(ctx, entry); err != nil {
		s.logger.WarnContext(ctx, "audit write failed", "member_id", member.ID, "error", err)
	}

	return member, nil
}

// ============================================================================
// TRANSITIONS
// ============================================================================

// Transition applies one lifecycle transition to one member. Guards run in a
// fixed order: request validation, permission, load, regional scope, state
// check; then the status change and its audit entry commit as one unit,
// compare-and-set on the previous status. A lost race is retried once against
// the fresh status before surfacing Conflict.
func (s *Service) Transition(ctx context.Context, actor Actor, memberID string, kind TransitionKind, reason string) (*TransitionResult, error) {
	start := time.Now()
	result, err := s.transition(ctx, actor, memberID, kind, reason)
	s.monitor.record(kind, time.Since(start), err)
	return result, err
}

func (s *Service) transition(ctx context.Context, actor Actor, memberID string, kind TransitionKind, reason string) (*TransitionResult, error) {
	rule, ok := transitionTable[kind]
	if !ok {
		return nil, NewError(ErrValidation, fmt.Sprintf("unknown transition kind %q", kind)).WithMember(memberID)
	}
	if memberID == "" {
		return nil, NewError(ErrValidation, "member id required")
	}
	if rule.requiresReason && strings.TrimSpace(reason) == "" {
		return nil, NewError(ErrValidation, string(kind)+" requires a reason").WithMember(memberID)
	}
	if actor.ID == "" {
		return nil, NewError(ErrNoActor, "transition requires an actor")
	}

	// Permission before load: an unauthorized caller learns nothing about
	// whether the member exists.
	checker := s.CheckerFor(actor)
	if !checker.AllowsAny(rule.permissions...) {
		s.logDenial(ctx, "unauthorized", actor, string(kind), memberID)
		return nil, NewError(ErrUnauthorized, "permission denied").
			WithActor(actor.ID).
			WithMember(memberID).
			WithPermission(rule.permissions[0])
	}

	member, err := s.store.Load(ctx, memberID)
	if err != nil {
		return nil, s.storeErr(err, memberID)
	}

	if !checker.InScope(member) {
		s.logDenial(ctx, "out_of_scope", actor, string(kind), memberID)
		return nil, NewError(ErrOutOfScope, "member outside actor scope").
			WithActor(actor.ID).
			WithMember(memberID)
	}

	// Two passes: the second runs only after a lost CAS race, against the
	// freshly loaded status.
	for attempt := 0; attempt < 2; attempt++ {
		if !kind.AllowedFrom(member.Status) {
			return nil, NewError(ErrInvalidTransition, "").
				WithActor(actor.ID).
				WithMember(memberID).
				WithStatuses(member.Status, rule.to)
		}

		audit := s.auditEntry(ctx, actor, string(kind), memberID, member.Status, rule.to, reason)

		if rule.removes {
			removed, err := s.store.Delete(ctx, memberID, audit)
			if err != nil {
				return nil, s.storeErr(err, memberID)
			}
			if !removed {
				return nil, NewError(ErrConflict, "member changed concurrently").
					WithActor(actor.ID).
					WithMember(memberID)
			}
			s.logApplied(ctx, actor, kind, memberID, "")
			s.notify(ctx, actor, kind, memberID, "", "", reason)
			return &TransitionResult{MemberID: memberID}, nil
		}

		update := StatusUpdate{
			Status:  rule.to,
			ActorID: actor.ID,
			Reason:  reason,
			At:      time.Now(),
		}
		if kind == TransitionApprove && member.MemberNumber == "" {
			// Allocated before the CAS; a number burned by a lost race
			// leaves a gap in the sequence, which is acceptable.
			number, err := s.store.AllocateMemberNumber(ctx)
			if err != nil {
				return nil, s.storeErr(err, memberID)
			}
			update.MemberNumber = number
		}

		swapped, err := s.store.CASUpdateStatus(ctx, memberID, member.Status, update, audit)
		if err != nil {
			return nil, s.storeErr(err, memberID)
		}
		if swapped {
			number := update.MemberNumber
			if number == "" {
				number = member.MemberNumber
			}
			s.logApplied(ctx, actor, kind, memberID, number)
			s.notify(ctx, actor, kind, memberID, rule.to, update.MemberNumber, reason)
			return &TransitionResult{
				MemberID:     memberID,
				Status:       rule.to,
				MemberNumber: number,
			}, nil
		}

		// Lost the race; reload and re-evaluate the state guard once.
		member, err = s.store.Load(ctx, memberID)
		if err != nil {
			return nil, s.storeErr(err, memberID)
		}
	}

	return nil, NewError(ErrConflict, "concurrent status change").
		WithActor(actor.ID).
		WithMember(memberID)
}

// ============================================================================
// PROFILE EDITS
// ============================================================================

// UpdateProfile applies profile field changes to a member. Requires
// member.edit; changing the email address additionally requires
// member.manage. Profile edits never touch membership status.
func (s *Service) UpdateProfile(ctx context.Context, actor Actor, memberID string, changes ProfileChanges) error {
	if memberID == "" {
		return NewError(ErrValidation, "member id required")
	}
	if changes.Empty() {
		return NewError(ErrValidation, "no profile changes").WithMember(memberID)
	}
	if actor.ID == "" {
		return NewError(ErrNoActor, "profile update requires an actor")
	}

	checker := s.CheckerFor(actor)
	if !checker.Allows("member.edit") {
		s.logDenial(ctx, "unauthorized", actor, "edit", memberID)
		return NewError(ErrUnauthorized, "permission denied").
			WithActor(actor.ID).
			WithMember(memberID).
			WithPermission("member.edit")
	}
	if changes.Email != "" && !checker.Allows("member.manage") {
		s.logDenial(ctx, "unauthorized", actor, "edit", memberID)
		return NewError(ErrUnauthorized, "email change requires member.manage").
			WithActor(actor.ID).
			WithMember(memberID).
			WithPermission("member.manage")
	}

	member, err := s.store.Load(ctx, memberID)
	if err != nil {
		return s.storeErr(err, memberID)
	}
	if !checker.InScope(member) {
		s.logDenial(ctx, "out_of_scope", actor, "edit", memberID)
		return NewError(ErrOutOfScope, "member outside actor scope").
			WithActor(actor.ID).
			WithMember(memberID)
	}

	audit := s.auditEntry(ctx, actor, "edit", memberID, member.Status, member.Status, "")
	if err := s.store.UpdateProfile(ctx, memberID, changes, audit); err != nil {
		return s.storeErr(err, memberID)
	}
	return nil
}

// ============================================================================
// QUERIES
// ============================================================================

// GetMember loads one member for an actor. Requires member.view. A member
// outside the actor's regional scope yields OutOfScope, which PublicError
// collapses to the same shape as Unauthorized.
func (s *Service) GetMember(ctx context.Context, actor Actor, memberID string) (*Member, error) {
	if memberID == "" {
		return nil, NewError(ErrValidation, "member id required")
	}
	if actor.ID == "" {
		return nil, NewError(ErrNoActor, "member lookup requires an actor")
	}

	checker := s.CheckerFor(actor)
	if !checker.Allows("member.view") {
		s.logDenial(ctx, "unauthorized", actor, "view", memberID)
		return nil, NewError(ErrUnauthorized, "permission denied").
			WithActor(actor.ID).
			WithMember(memberID).
			WithPermission("member.view")
	}

	member, err := s.store.Load(ctx, memberID)
	if err != nil {
		return nil, s.storeErr(err, memberID)
	}
	if !checker.InScope(member) {
		s.logDenial(ctx, "out_of_scope", actor, "view", memberID)
		return nil, NewError(ErrOutOfScope, "member outside actor scope").
			WithActor(actor.ID).
			WithMember(memberID)
	}
	return member, nil
}

// ListVisibleMembers returns the members the actor may see. Requires
// member.view. Regionally scoped actors get the filter's region forced to
// their own; the filter can narrow visibility but never widen it.
func (s *Service) ListVisibleMembers(ctx context.Context, actor Actor, filter MemberFilter) ([]Member, error) {
	if actor.ID == "" {
		return nil, NewError(ErrNoActor, "member listing requires an actor")
	}

	checker := s.CheckerFor(actor)
	if !checker.Allows("member.view") {
		s.logDenial(ctx, "unauthorized", actor, "list", "")
		return nil, NewError(ErrUnauthorized, "permission denied").
			WithActor(actor.ID).
			WithPermission("member.view")
	}

	if scope := checker.Scope(); scope.IsRegional() {
		filter.Region = scope.Region()
	}

	members, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, s.storeErr(err, "")
	}
	return members, nil
}

// GetAuditLog retrieves audit log entries with optional filters.
func (s *Service) GetAuditLog(ctx context.Context, filter AuditLogFilter) ([]MemberAuditLog, error) {
	logs, err := s.store.AuditLog(ctx, filter)
	if err != nil {
		return nil, s.storeErr(err, "")
	}
	return logs, nil
}

// ============================================================================
// METRICS
// ============================================================================

// GetTransitionMetrics returns the current transition performance metrics.
func (s *Service) GetTransitionMetrics() TransitionMetrics {
	return s.monitor.getMetrics()
}

// ResetTransitionMetrics resets all transition metrics.
func (s *Service) ResetTransitionMetrics() {
	s.monitor.reset()
}

// IsTransitionHealthy checks if transition performance is within acceptable
// thresholds: infrastructure failure rate under 5%, average duration under
// one second. Denials and conflicts are normal operation, not failures.
func (s *Service) IsTransitionHealthy() bool {
	metrics := s.monitor.getMetrics()

	// If we have very few transitions, consider it healthy
	if metrics.TotalTransitions < 10 {
		return true
	}

	failureRate := float64(metrics.FailedTransitions) / float64(metrics.TotalTransitions)
	if failureRate > 0.05 {
		return false
	}

	if metrics.AverageDuration > time.Second {
		return false
	}

	return true
}

// ============================================================================
// INTERNAL HELPERS
// ============================================================================

// storeErr classifies a store error: the package's own typed errors pass
// through, everything else becomes ErrInfrastructure.
func (s *Service) storeErr(err error, memberID string) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return NewError(ErrInfrastructure, err.Error()).WithMember(memberID)
}

func (s *Service) auditEntry(ctx context.Context, actor Actor, action, memberID string, from, to MembershipStatus, reason string) *AuditEntry {
	audit := GetAuditContext(ctx)
	return &AuditEntry{
		ActorID:    actor.ID,
		ActorRoles: actor.Roles,
		Action:     action,
		MemberID:   memberID,
		FromStatus: from,
		ToStatus:   to,
		Reason:     reason,
		IPAddress:  audit.IPAddress,
		UserAgent:  audit.UserAgent,
		RequestID:  audit.RequestID,
	}
}

// logDenial records a denial with its real cause. Out-of-scope denials look
// identical to unauthorized ones in responses; the log is where operators can
// tell them apart.
func (s *Service) logDenial(ctx context.Context, denial string, actor Actor, action, memberID string) {
	s.logger.WarnContext(ctx, "access denied",
		"denial", denial,
		"actor", actor.String(),
		"action", action,
		"member_id", memberID,
	)
}

func (s *Service) logApplied(ctx context.Context, actor Actor, kind TransitionKind, memberID, memberNumber string) {
	s.logger.InfoContext(ctx, "transition applied",
		"kind", string(kind),
		"actor_id", actor.ID,
		"member_id", memberID,
		"member_number", memberNumber,
	)
}

// notify dispatches the lifecycle event. Delivery failures are logged, never
// propagated: the transition already committed.
func (s *Service) notify(ctx context.Context, actor Actor, kind TransitionKind, memberID string, status MembershipStatus, memberNumber, reason string) {
	n := Notification{
		MemberID:     memberID,
		Event:        kind.Event(),
		ActorID:      actor.ID,
		Status:       status,
		MemberNumber: memberNumber,
		Reason:       reason,
	}
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.logger.WarnContext(ctx, "notification delivery failed",
			"event", string(n.Event),
			"member_id", memberID,
			"error", err,
		)
	}
}
