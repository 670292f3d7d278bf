package memberkit

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory MemberStore. It backs the package tests and
// works for embedding scenarios that do not need durability. All operations
// are safe for concurrent use; CASUpdateStatus serializes on the store lock,
// which gives the same guarantee a row lock would.
type MemoryStore struct {
	mu      sync.RWMutex
	members map[string]*Member
	audit   []MemberAuditLog
	seq     int64
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		members: make(map[string]*Member),
	}
}

// Load implements MemberStore.
func (s *MemoryStore) Load(ctx context.Context, id string) (*Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.members[id]
	if !ok {
		return nil, NewError(ErrNotFound, "no such member").WithMember(id)
	}
	cp := *m
	return &cp, nil
}

// List implements MemberStore.
func (s *MemoryStore) List(ctx context.Context, filter MemberFilter) ([]Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Member
	for _, m := range s.members {
		if filter.Status != "" && m.Status != filter.Status {
			continue
		}
		if filter.Region != "" && m.Region != filter.Region {
			continue
		}
		if filter.Search != "" {
			term := strings.ToLower(filter.Search)
			if !strings.Contains(strings.ToLower(m.FullName), term) &&
				!strings.Contains(strings.ToLower(m.Email), term) {
				continue
			}
		}
		out = append(out, *m)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Create implements MemberStore.
func (s *MemoryStore) Create(ctx context.Context, member *Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if member.ID == "" {
		member.ID = uuid.NewString()
	}
	if member.Status == "" {
		member.Status = StatusPending
	}
	now := time.Now()
	if member.CreatedAt.IsZero() {
		member.CreatedAt = now
	}
	member.UpdatedAt = now

	cp := *member
	s.members[member.ID] = &cp
	return nil
}

// CASUpdateStatus implements MemberStore.
func (s *MemoryStore) CASUpdateStatus(ctx context.Context, id string, expected MembershipStatus, update StatusUpdate, audit *AuditEntry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.members[id]
	if !ok {
		return false, NewError(ErrNotFound, "no such member").WithMember(id)
	}
	if m.Status != expected {
		return false, nil
	}

	m.Status = update.Status
	m.StatusReason = update.Reason
	m.UpdatedAt = update.At
	if update.MemberNumber != "" {
		m.MemberNumber = update.MemberNumber
		m.ApprovedBy = update.ActorID
		m.ApprovedAt = update.At
	}

	s.appendAuditLocked(audit)
	return true, nil
}

// UpdateProfile implements MemberStore.
func (s *MemoryStore) UpdateProfile(ctx context.Context, id string, changes ProfileChanges, audit *AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.members[id]
	if !ok {
		return NewError(ErrNotFound, "no such member").WithMember(id)
	}

	if changes.FullName != "" {
		m.FullName = changes.FullName
	}
	if changes.Email != "" {
		m.Email = changes.Email
	}
	if changes.Phone != "" {
		m.Phone = changes.Phone
	}
	if changes.Region != "" {
		m.Region = changes.Region
	}
	m.UpdatedAt = time.Now()

	s.appendAuditLocked(audit)
	return nil
}

// Delete implements MemberStore.
func (s *MemoryStore) Delete(ctx context.Context, id string, audit *AuditEntry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.members[id]; !ok {
		return false, nil
	}
	delete(s.members, id)
	s.appendAuditLocked(audit)
	return true, nil
}

// AllocateMemberNumber implements MemberStore.
func (s *MemoryStore) AllocateMemberNumber(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	return fmt.Sprintf("M-%06d", s.seq), nil
}

// AppendAudit implements MemberStore.
func (s *MemoryStore) AppendAudit(ctx context.Context, entry *AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.appendAuditLocked(entry)
	return nil
}

// AuditLog implements MemberStore.
func (s *MemoryStore) AuditLog(ctx context.Context, filter AuditLogFilter) ([]MemberAuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []MemberAuditLog
	for i := len(s.audit) - 1; i >= 0; i-- { // newest first
		e := s.audit[i]
		if filter.ActorID != "" && e.ActorID != filter.ActorID {
			continue
		}
		if filter.MemberID != "" && e.MemberID != filter.MemberID {
			continue
		}
		if filter.Action != "" && e.Action != filter.Action {
			continue
		}
		if !filter.Since.IsZero() && e.Timestamp.Before(filter.Since) {
			continue
		}
		if !filter.Until.IsZero() && e.Timestamp.After(filter.Until) {
			continue
		}
		out = append(out, e)
	}

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	limit := filter.Limit
	if limit == 0 {
		limit = 100
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) appendAuditLocked(entry *AuditEntry) {
	if entry == nil {
		return
	}
	model := entry.ToModel()
	model.ID = uuid.NewString()
	s.audit = append(s.audit, *model)
}
