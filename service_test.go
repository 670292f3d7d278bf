package memberkit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// eventRecorder captures notifications for assertions.
type eventRecorder struct {
	mu     sync.Mutex
	events []Notification
	err    error
}

func (r *eventRecorder) Notify(ctx context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, n)
	return r.err
}

func (r *eventRecorder) all() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.events...)
}

// stubStore wraps a MemberStore with injectable failures.
type stubStore struct {
	MemberStore
	casErr  error
	loadErr error
}

func (s *stubStore) CASUpdateStatus(ctx context.Context, id string, expected MembershipStatus, update StatusUpdate, audit *AuditEntry) (bool, error) {
	if s.casErr != nil {
		return false, s.casErr
	}
	return s.MemberStore.CASUpdateStatus(ctx, id, expected, update, audit)
}

func (s *stubStore) Load(ctx context.Context, id string) (*Member, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.MemberStore.Load(ctx, id)
}

// TestServiceApproveByPengurus validates the happy path: a pengurus approves
// a pending registration, the member becomes active with a member number,
// and the decision is audited and notified.
func TestServiceApproveByPengurus(t *testing.T) {
	ctx := context.Background()
	recorder := &eventRecorder{}
	svc, store := newTestService(t, WithNotifier(recorder))
	member := seedMember(t, store, "jakarta", StatusPending)

	result, err := svc.Transition(ctx, actorPengurus, member.ID, TransitionApprove, "")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, result.Status)
	assert.Equal(t, "M-000001", result.MemberNumber)

	loaded, err := store.Load(ctx, member.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, loaded.Status)
	assert.Equal(t, "M-000001", loaded.MemberNumber)
	assert.Equal(t, actorPengurus.ID, loaded.ApprovedBy)

	logs, err := svc.GetAuditLog(ctx, NewAuditLogFilter().WithMember(member.ID))
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "approve", logs[0].Action)
	assert.Equal(t, StatusPending, logs[0].FromStatus)
	assert.Equal(t, StatusActive, logs[0].ToStatus)

	events := recorder.all()
	require.Len(t, events, 1)
	assert.Equal(t, EventMemberApproved, events[0].Event)
	assert.Equal(t, "M-000001", events[0].MemberNumber)
}

// TestServiceApproveUnauthorized validates that an anggota cannot approve,
// and that the member is untouched.
func TestServiceApproveUnauthorized(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	member := seedMember(t, store, "jakarta", StatusPending)

	_, err := svc.Transition(ctx, actorAnggota, member.ID, TransitionApprove, "")
	require.True(t, IsUnauthorized(err))

	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, actorAnggota.ID, e.ActorID)

	loaded, err := store.Load(ctx, member.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, loaded.Status)
	assert.Empty(t, loaded.MemberNumber)
}

// TestServiceApproveOutOfScope validates that a koordinator cannot act on a
// member of another region, and that the denial collapses to the
// unauthorized shape publicly.
func TestServiceApproveOutOfScope(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	member := seedMember(t, store, "surabaya", StatusPending)

	_, err := svc.Transition(ctx, actorKoordinator, member.ID, TransitionApprove, "")
	require.True(t, IsOutOfScope(err))
	assert.Equal(t, ErrUnauthorized, PublicError(err))

	// same actor, own region: allowed
	own := seedMember(t, store, "jakarta", StatusPending)
	result, err := svc.Transition(ctx, actorKoordinator, own.ID, TransitionApprove, "")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, result.Status)
}

// TestServiceInvalidTransitions validates state machine refusals with status
// detail and no silent coercion.
func TestServiceInvalidTransitions(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)

	active := seedMember(t, store, "jakarta", StatusActive)
	suspended := seedMember(t, store, "jakarta", StatusSuspended)
	pending := seedMember(t, store, "jakarta", StatusPending)

	// approving an already active member
	_, err := svc.Transition(ctx, actorPengurus, active.ID, TransitionApprove, "")
	require.True(t, IsInvalidTransition(err))
	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, StatusActive, e.From)
	assert.Equal(t, StatusActive, e.To)

	// activating an active member
	_, err = svc.Transition(ctx, actorSuperadmin, active.ID, TransitionActivate, "")
	assert.True(t, IsInvalidTransition(err))

	// suspending a pending member
	_, err = svc.Transition(ctx, actorPengurus, pending.ID, TransitionSuspend, "")
	assert.True(t, IsInvalidTransition(err))

	// suspend and activate work from the right statuses
	result, err := svc.Transition(ctx, actorPengurus, active.ID, TransitionSuspend, "dues unpaid")
	require.NoError(t, err)
	assert.Equal(t, StatusSuspended, result.Status)

	result, err = svc.Transition(ctx, actorPengurus, suspended.ID, TransitionActivate, "")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, result.Status)
}

// TestServiceRejectRequiresReason validates the reject reason gate.
func TestServiceRejectRequiresReason(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	member := seedMember(t, store, "jakarta", StatusPending)

	for _, reason := range []string{"", "   "} {
		_, err := svc.Transition(ctx, actorPengurus, member.ID, TransitionReject, reason)
		require.True(t, IsValidation(err))
	}

	loaded, err := store.Load(ctx, member.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, loaded.Status)
}

// TestServiceRejectRemovesMember validates that rejection deletes the record
// while the audit log retains the reason.
func TestServiceRejectRemovesMember(t *testing.T) {
	ctx := context.Background()
	recorder := &eventRecorder{}
	svc, store := newTestService(t, WithNotifier(recorder))
	member := seedMember(t, store, "jakarta", StatusPending)

	result, err := svc.Transition(ctx, actorPengurus, member.ID, TransitionReject, "incomplete documents")
	require.NoError(t, err)
	assert.Equal(t, member.ID, result.MemberID)
	assert.Empty(t, result.Status)

	_, err = store.Load(ctx, member.ID)
	assert.True(t, IsNotFound(err))

	logs, err := svc.GetAuditLog(ctx, NewAuditLogFilter().WithMember(member.ID))
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "reject", logs[0].Action)
	assert.Equal(t, "incomplete documents", logs[0].Reason)

	events := recorder.all()
	require.Len(t, events, 1)
	assert.Equal(t, EventMemberRejected, events[0].Event)
	assert.Equal(t, "incomplete documents", events[0].Reason)
}

// TestServiceRejectOnlyFromPending validates that reject is limited to
// pending registrations; active members go through delete.
func TestServiceRejectOnlyFromPending(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	member := seedMember(t, store, "jakarta", StatusActive)

	_, err := svc.Transition(ctx, actorPengurus, member.ID, TransitionReject, "nope")
	assert.True(t, IsInvalidTransition(err))
}

// TestServiceDeleteFromAnyStatus validates irreversible deletion.
func TestServiceDeleteFromAnyStatus(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)

	for _, status := range []MembershipStatus{StatusPending, StatusActive, StatusSuspended} {
		member := seedMember(t, store, "jakarta", status)

		// pengurus lacks member.delete
		_, err := svc.Transition(ctx, actorPengurus, member.ID, TransitionDelete, "")
		require.True(t, IsUnauthorized(err))

		_, err = svc.Transition(ctx, actorSuperadmin, member.ID, TransitionDelete, "")
		require.NoError(t, err)

		_, err = store.Load(ctx, member.ID)
		assert.True(t, IsNotFound(err))
	}
}

// TestServiceTransitionValidation validates request-shape failures.
func TestServiceTransitionValidation(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	member := seedMember(t, store, "jakarta", StatusPending)

	_, err := svc.Transition(ctx, actorPengurus, member.ID, TransitionKind("promote"), "")
	assert.True(t, IsValidation(err))

	_, err = svc.Transition(ctx, actorPengurus, "", TransitionApprove, "")
	assert.True(t, IsValidation(err))

	_, err = svc.Transition(ctx, Actor{}, member.ID, TransitionApprove, "")
	assert.True(t, IsNoActor(err))

	// an unknown member id is NotFound internally, unauthorized publicly
	_, err = svc.Transition(ctx, actorPengurus, "missing", TransitionApprove, "")
	require.True(t, IsNotFound(err))
	assert.Equal(t, ErrUnauthorized, PublicError(err))
}

// TestServiceConcurrentApprove validates that two racing approvals produce
// exactly one winner and a single member number.
func TestServiceConcurrentApprove(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	member := seedMember(t, store, "jakarta", StatusPending)

	var wg sync.WaitGroup
	results := make([]*TransitionResult, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = svc.Transition(ctx, actorPengurus, member.ID, TransitionApprove, "")
		}()
	}
	wg.Wait()

	var won, lost int
	var winnerNumber string
	for i, err := range errs {
		if err == nil {
			won++
			winnerNumber = results[i].MemberNumber
			continue
		}
		lost++
		// the loser either lost the CAS race outright or, after reload,
		// found the member already active
		assert.True(t, IsConflict(err) || IsInvalidTransition(err), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, 1, lost)

	// the committed number is whichever the winner allocated; a number
	// burned by the loser leaves a sequence gap, never a second assignment
	loaded, err := store.Load(ctx, member.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, loaded.Status)
	assert.NotEmpty(t, loaded.MemberNumber)
	assert.Equal(t, winnerNumber, loaded.MemberNumber)

	// exactly one approval audit entry
	logs, err := svc.GetAuditLog(ctx, NewAuditLogFilter().WithMember(member.ID).WithAction("approve"))
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

// gatedAllocStore parks the first member number allocation until released,
// forcing a chosen interleaving of racing approvals.
type gatedAllocStore struct {
	MemberStore
	entered chan struct{}
	release chan struct{}
	first   atomic.Bool
}

func (s *gatedAllocStore) AllocateMemberNumber(ctx context.Context) (string, error) {
	number, err := s.MemberStore.AllocateMemberNumber(ctx)
	// only the first caller parks; sync.Once would block later callers too
	if s.first.CompareAndSwap(false, true) {
		close(s.entered)
		<-s.release
	}
	return number, err
}

// TestServiceConcurrentApproveLateAllocator validates the interleaving where
// the racer that allocated first commits last: the committed member number is
// the winner's allocation, the earlier number becomes a sequence gap, and the
// overtaken racer is refused.
func TestServiceConcurrentApproveLateAllocator(t *testing.T) {
	ctx := context.Background()
	memory := NewMemoryStore()
	gated := &gatedAllocStore{
		MemberStore: memory,
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	svc := NewService(testCatalog(t), gated, WithLogger(testLogger()))
	member := seedMember(t, memory, "jakarta", StatusPending)

	slowErr := make(chan error, 1)
	go func() {
		_, err := svc.Transition(ctx, actorPengurus, member.ID, TransitionApprove, "")
		slowErr <- err
	}()

	// the slow racer holds M-000001 inside allocation; the fast one
	// allocates M-000002 and commits
	<-gated.entered
	result, err := svc.Transition(ctx, actorPengurus, member.ID, TransitionApprove, "")
	require.NoError(t, err)
	assert.Equal(t, "M-000002", result.MemberNumber)

	close(gated.release)
	err = <-slowErr
	require.Error(t, err)
	assert.True(t, IsConflict(err) || IsInvalidTransition(err), "unexpected error: %v", err)

	loaded, err := memory.Load(ctx, member.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, loaded.Status)
	assert.Equal(t, "M-000002", loaded.MemberNumber)
}

// TestServiceInfrastructureFailure validates that store failures surface as
// InfrastructureFailure and leave no partial state visible.
func TestServiceInfrastructureFailure(t *testing.T) {
	ctx := context.Background()
	memory := NewMemoryStore()
	stub := &stubStore{MemberStore: memory, casErr: errors.New("disk on fire")}
	svc := NewService(testCatalog(t), stub, WithLogger(testLogger()))
	member := seedMember(t, memory, "jakarta", StatusPending)

	_, err := svc.Transition(ctx, actorPengurus, member.ID, TransitionApprove, "")
	require.True(t, IsInfrastructure(err))

	loaded, err := memory.Load(ctx, member.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, loaded.Status)
}

// TestServiceNotifierFailureDoesNotFailTransition validates fire-and-forget
// notification semantics.
func TestServiceNotifierFailureDoesNotFailTransition(t *testing.T) {
	ctx := context.Background()
	recorder := &eventRecorder{err: errors.New("smtp down")}
	svc, store := newTestService(t, WithNotifier(recorder))
	member := seedMember(t, store, "jakarta", StatusPending)

	result, err := svc.Transition(ctx, actorPengurus, member.ID, TransitionApprove, "")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, result.Status)
}

// TestServiceUpdateProfile validates the edit permission split.
func TestServiceUpdateProfile(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	member := seedMember(t, store, "jakarta", StatusActive)

	// plain field edit by pengurus
	err := svc.UpdateProfile(ctx, actorPengurus, member.ID, ProfileChanges{Phone: "+62-811"})
	require.NoError(t, err)

	// email change needs member.manage, which pengurus lacks
	err = svc.UpdateProfile(ctx, actorPengurus, member.ID, ProfileChanges{Email: "new@example.com"})
	require.True(t, IsUnauthorized(err))

	// superadmin holds member.* including member.manage
	err = svc.UpdateProfile(ctx, actorSuperadmin, member.ID, ProfileChanges{Email: "new@example.com"})
	require.NoError(t, err)

	loaded, err := store.Load(ctx, member.ID)
	require.NoError(t, err)
	assert.Equal(t, "+62-811", loaded.Phone)
	assert.Equal(t, "new@example.com", loaded.Email)

	// anggota may not edit at all
	err = svc.UpdateProfile(ctx, actorAnggota, member.ID, ProfileChanges{Phone: "+62-812"})
	assert.True(t, IsUnauthorized(err))

	// an empty change set is a validation error
	err = svc.UpdateProfile(ctx, actorPengurus, member.ID, ProfileChanges{})
	assert.True(t, IsValidation(err))

	// cross-region koordinator is out of scope
	other := seedMember(t, store, "surabaya", StatusActive)
	err = svc.UpdateProfile(ctx, actorKoordinator, other.ID, ProfileChanges{Phone: "+62-813"})
	assert.True(t, IsOutOfScope(err))
}

// TestServiceGetMember validates scoped single-member lookup.
func TestServiceGetMember(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	member := seedMember(t, store, "surabaya", StatusActive)

	got, err := svc.GetMember(ctx, actorPengurus, member.ID)
	require.NoError(t, err)
	assert.Equal(t, member.ID, got.ID)

	_, err = svc.GetMember(ctx, actorKoordinator, member.ID)
	require.True(t, IsOutOfScope(err))
	assert.Equal(t, ErrUnauthorized, PublicError(err))

	_, err = svc.GetMember(ctx, Actor{ID: "u1"}, member.ID)
	assert.True(t, IsUnauthorized(err))
}

// TestServiceListVisibleMembers validates region forcing for scoped actors.
func TestServiceListVisibleMembers(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	seedMember(t, store, "jakarta", StatusActive)
	seedMember(t, store, "jakarta", StatusPending)
	seedMember(t, store, "surabaya", StatusActive)

	all, err := svc.ListVisibleMembers(ctx, actorPengurus, NewMemberFilter())
	require.NoError(t, err)
	assert.Len(t, all, 3)

	// a koordinator only ever sees their own region
	scoped, err := svc.ListVisibleMembers(ctx, actorKoordinator, NewMemberFilter())
	require.NoError(t, err)
	require.Len(t, scoped, 2)
	for _, m := range scoped {
		assert.Equal(t, "jakarta", m.Region)
	}

	// asking for another region does not widen visibility
	forced, err := svc.ListVisibleMembers(ctx, actorKoordinator, NewMemberFilter().WithRegion("surabaya"))
	require.NoError(t, err)
	require.Len(t, forced, 2)
	for _, m := range forced {
		assert.Equal(t, "jakarta", m.Region)
	}

	// narrowing within the region still works
	pending, err := svc.ListVisibleMembers(ctx, actorKoordinator, NewMemberFilter().WithStatus(StatusPending))
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	// an actor without member.view sees nothing, loudly
	_, err = svc.ListVisibleMembers(ctx, Actor{ID: "u1"}, NewMemberFilter())
	assert.True(t, IsUnauthorized(err))
}

// TestServiceRegister validates the registration intake.
func TestServiceRegister(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)

	member, err := svc.Register(ctx, &Member{FullName: "Budi", Email: "budi@example.com", Region: "jakarta"})
	require.NoError(t, err)
	assert.NotEmpty(t, member.ID)
	assert.Equal(t, StatusPending, member.Status)
	assert.Empty(t, member.MemberNumber)

	logs, err := store.AuditLog(ctx, AuditLogFilter{MemberID: member.ID})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "register", logs[0].Action)

	_, err = svc.Register(ctx, &Member{FullName: "Budi"})
	assert.True(t, IsValidation(err))
	_, err = svc.Register(ctx, nil)
	assert.True(t, IsValidation(err))
}

// TestServiceCheckPermission validates the standalone permission entry point.
func TestServiceCheckPermission(t *testing.T) {
	svc, _ := newTestService(t)

	assert.NoError(t, svc.CheckPermission(actorPengurus, "member.approve"))

	err := svc.CheckPermission(actorAnggota, "member.approve")
	require.True(t, IsUnauthorized(err))

	err = svc.CheckPermission(Actor{}, "member.view")
	assert.True(t, IsNoActor(err))

	assert.True(t, svc.IsAllowed(actorSuperadmin, "member.delete"))
	assert.False(t, svc.IsAllowed(actorSuperadmin, "member.unknown"))
}

// TestServiceReloadCatalog validates the atomic rule swap.
func TestServiceReloadCatalog(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	member := seedMember(t, store, "jakarta", StatusPending)

	assert.True(t, IsInvalidCatalog(svc.ReloadCatalog(nil)))

	// a tightened catalog where pengurus loses member.approve
	tightened, err := NewCatalog().
		Permissions("member.view", "member.approve").
		Role("pengurus").Grants("member.view").
		Role("superadmin").Grants("member.*").
		Build()
	require.NoError(t, err)
	require.NoError(t, svc.ReloadCatalog(tightened))

	_, err = svc.Transition(ctx, actorPengurus, member.ID, TransitionApprove, "")
	assert.True(t, IsUnauthorized(err))

	// superadmin still passes under the new rules
	result, err := svc.Transition(ctx, actorSuperadmin, member.ID, TransitionApprove, "")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, result.Status)
}

// TestServiceAuditContextPropagation validates that request metadata lands
// in the audit trail.
func TestServiceAuditContextPropagation(t *testing.T) {
	ctx := WithAuditContext(context.Background(), AuditContext{
		IPAddress: "10.0.0.1",
		UserAgent: "back-office/1.0",
		RequestID: "req-42",
	})
	svc, store := newTestService(t)
	member := seedMember(t, store, "jakarta", StatusPending)

	_, err := svc.Transition(ctx, actorPengurus, member.ID, TransitionApprove, "")
	require.NoError(t, err)

	logs, err := svc.GetAuditLog(context.Background(), NewAuditLogFilter().WithMember(member.ID))
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "10.0.0.1", logs[0].IPAddress)
	assert.Equal(t, "back-office/1.0", logs[0].UserAgent)
	assert.Equal(t, "req-42", logs[0].RequestID)
	assert.Equal(t, actorPengurus.Roles, logs[0].ActorRoles)
}

// TestServiceTransitionMetrics validates the monitor wiring.
func TestServiceTransitionMetrics(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	member := seedMember(t, store, "jakarta", StatusPending)

	_, err := svc.Transition(ctx, actorPengurus, member.ID, TransitionApprove, "")
	require.NoError(t, err)
	_, err = svc.Transition(ctx, actorAnggota, member.ID, TransitionSuspend, "")
	require.Error(t, err)

	metrics := svc.GetTransitionMetrics()
	assert.Equal(t, int64(2), metrics.TotalTransitions)
	assert.Equal(t, int64(1), metrics.AppliedTransitions)
	assert.Equal(t, int64(1), metrics.DeniedTransitions)
	assert.Equal(t, int64(1), metrics.ByKind[TransitionApprove])
	assert.Equal(t, int64(1), metrics.ByKind[TransitionSuspend])

	assert.True(t, svc.IsTransitionHealthy())

	svc.ResetTransitionMetrics()
	assert.Equal(t, int64(0), svc.GetTransitionMetrics().TotalTransitions)
}
