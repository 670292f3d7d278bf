package memberkit

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/fernandezvara/dbkit"
)

// DatabaseStore is the dbkit/bun-backed MemberStore. Status mutations and
// their audit entries run inside a single transaction, and the status change
// itself is a compare-and-set on the previous value, so two concurrent
// transitions on one member can never both apply.
type DatabaseStore struct {
	db dbkit.IDB
}

// NewDatabaseStore creates a DatabaseStore on an existing dbkit connection.
//
// Example:
//
//	db, _ := dbkit.New(dbkit.Config{URL: "postgres://..."})
//	store := memberkit.NewDatabaseStore(db)
func NewDatabaseStore(db dbkit.IDB) *DatabaseStore {
	return &DatabaseStore{db: db}
}

// transact runs fn inside a transaction. Nested calls use savepoints.
func (s *DatabaseStore) transact(ctx context.Context, fn func(db dbkit.IDB) error) error {
	switch db := s.db.(type) {
	case *dbkit.Tx:
		return db.Transaction(ctx, func(tx *dbkit.Tx) error {
			return fn(tx)
		})
	case *dbkit.DBKit:
		return db.Transaction(ctx, func(tx *dbkit.Tx) error {
			return fn(tx)
		})
	default:
		return fmt.Errorf("transaction support requires a dbkit.DBKit or dbkit.Tx instance")
	}
}

// Load implements MemberStore.
func (s *DatabaseStore) Load(ctx context.Context, id string) (*Member, error) {
	var member Member
	err := dbkit.WithErr1(s.db.NewSelect().Model(&member).Where("id = ?", id).Limit(1).Scan(ctx), "LoadMember").Err()
	if err != nil {
		if dbkit.IsNotFound(err) {
			return nil, NewError(ErrNotFound, "no such member").WithMember(id)
		}
		return nil, err
	}
	return &member, nil
}

// List implements MemberStore.
func (s *DatabaseStore) List(ctx context.Context, filter MemberFilter) ([]Member, error) {
	var members []Member
	q := s.db.NewSelect().Model(&members)
	if filter.Status != "" {
		q = q.Where("membership_status = ?", filter.Status)
	}
	if filter.Region != "" {
		q = q.Where("region = ?", filter.Region)
	}
	if filter.Search != "" {
		term := "%" + filter.Search + "%"
		q = q.Where("(full_name ILIKE ? OR email ILIKE ?)", term, term)
	}

	limit := filter.Limit
	if limit == 0 {
		limit = 100 // Default limit
	}
	q = q.Limit(limit)

	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	q = q.Order("created_at ASC", "id ASC")
	err := dbkit.WithErr1(q.Scan(ctx), "ListMembers").Err()
	if err != nil {
		return nil, err
	}
	return members, nil
}

// Create implements MemberStore.
func (s *DatabaseStore) Create(ctx context.Context, member *Member) error {
	if member.Status == "" {
		member.Status = StatusPending
	}
	result, err := s.db.NewInsert().Model(member).Exec(ctx)
	return dbkit.WithErr(result, err, "CreateMember").Err()
}

// CASUpdateStatus implements MemberStore.
func (s *DatabaseStore) CASUpdateStatus(ctx context.Context, id string, expected MembershipStatus, update StatusUpdate, audit *AuditEntry) (bool, error) {
	var swapped bool

	err := s.transact(ctx, func(db dbkit.IDB) error {
		q := db.NewUpdate().Model((*Member)(nil)).
			Set("membership_status = ?", update.Status).
			Set("status_reason = ?", update.Reason).
			Set("updated_at = ?", update.At).
			Where("id = ? AND membership_status = ?", id, expected)
		if update.MemberNumber != "" {
			q = q.Set("member_number = ?", update.MemberNumber).
				Set("approved_by = ?", update.ActorID).
				Set("approved_at = ?", update.At)
		}

		result, err := q.Exec(ctx)
		if err = dbkit.WithErr(result, err, "CASUpdateStatus").Err(); err != nil {
			return err
		}

		rows, _ := result.RowsAffected()
		if rows == 0 {
			exists, err := dbkit.Exists[Member](ctx, db, func(q *bun.SelectQuery) *bun.SelectQuery {
				return q.Where("id = ?", id)
			})
			if err != nil {
				return dbkit.WithErr1(err, "CASUpdateStatusExists").Err()
			}
			if !exists {
				return NewError(ErrNotFound, "no such member").WithMember(id)
			}
			// Status moved under us; report the lost race, commit nothing.
			return nil
		}

		swapped = true
		_, err = db.NewInsert().Model(audit.ToModel()).Exec(ctx)
		return dbkit.WithErr1(err, "CASUpdateStatusAudit").Err()
	})
	if err != nil {
		return false, err
	}
	return swapped, nil
}

// UpdateProfile implements MemberStore.
func (s *DatabaseStore) UpdateProfile(ctx context.Context, id string, changes ProfileChanges, audit *AuditEntry) error {
	return s.transact(ctx, func(db dbkit.IDB) error {
		q := db.NewUpdate().Model((*Member)(nil)).
			Set("updated_at = current_timestamp").
			Where("id = ?", id)
		if changes.FullName != "" {
			q = q.Set("full_name = ?", changes.FullName)
		}
		if changes.Email != "" {
			q = q.Set("email = ?", changes.Email)
		}
		if changes.Phone != "" {
			q = q.Set("phone = ?", changes.Phone)
		}
		if changes.Region != "" {
			q = q.Set("region = ?", changes.Region)
		}

		result, err := q.Exec(ctx)
		if err = dbkit.WithErr(result, err, "UpdateMemberProfile").Err(); err != nil {
			return err
		}
		rows, _ := result.RowsAffected()
		if rows == 0 {
			return NewError(ErrNotFound, "no such member").WithMember(id)
		}

		_, err = db.NewInsert().Model(audit.ToModel()).Exec(ctx)
		return dbkit.WithErr1(err, "UpdateMemberProfileAudit").Err()
	})
}

// Delete implements MemberStore.
func (s *DatabaseStore) Delete(ctx context.Context, id string, audit *AuditEntry) (bool, error) {
	var removed bool

	err := s.transact(ctx, func(db dbkit.IDB) error {
		result, err := db.NewDelete().Model((*Member)(nil)).Where("id = ?", id).Exec(ctx)
		if err = dbkit.WithErr(result, err, "DeleteMember").Err(); err != nil {
			return err
		}
		rows, _ := result.RowsAffected()
		if rows == 0 {
			return nil
		}

		removed = true
		_, err = db.NewInsert().Model(audit.ToModel()).Exec(ctx)
		return dbkit.WithErr1(err, "DeleteMemberAudit").Err()
	})
	if err != nil {
		return false, err
	}
	return removed, nil
}

// AllocateMemberNumber implements MemberStore. Numbers come from a database
// sequence, so they are unique across concurrent approvals; a number lost to
// a failed CAS leaves a gap in the sequence.
func (s *DatabaseStore) AllocateMemberNumber(ctx context.Context) (string, error) {
	var n int64
	err := dbkit.WithErr1(s.db.NewRaw("SELECT nextval('member_number_seq')").Scan(ctx, &n), "AllocateMemberNumber").Err()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("M-%06d", n), nil
}

// AppendAudit implements MemberStore.
func (s *DatabaseStore) AppendAudit(ctx context.Context, entry *AuditEntry) error {
	_, err := s.db.NewInsert().Model(entry.ToModel()).Exec(ctx)
	return dbkit.WithErr1(err, "AppendAudit").Err()
}

// AuditLog implements MemberStore.
func (s *DatabaseStore) AuditLog(ctx context.Context, filter AuditLogFilter) ([]MemberAuditLog, error) {
	var logs []MemberAuditLog
	q := s.db.NewSelect().Model(&logs)
	if filter.ActorID != "" {
		q = q.Where("actor_id = ?", filter.ActorID)
	}
	if filter.MemberID != "" {
		q = q.Where("member_id = ?", filter.MemberID)
	}
	if filter.Action != "" {
		q = q.Where("action = ?", filter.Action)
	}
	if !filter.Since.IsZero() {
		q = q.Where("timestamp >= ?", filter.Since)
	}
	if !filter.Until.IsZero() {
		q = q.Where("timestamp <= ?", filter.Until)
	}

	limit := filter.Limit
	if limit == 0 {
		limit = 100 // Default limit
	}
	q = q.Limit(limit)

	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	q = q.Order("timestamp DESC")
	err := dbkit.WithErr1(q.Scan(ctx), "AuditLog").Err()
	if err != nil {
		return nil, err
	}
	return logs, nil
}

// ============================================================================
// HEALTH
// ============================================================================

// Health performs a comprehensive health check of the database connection.
func (s *DatabaseStore) Health(ctx context.Context) dbkit.HealthStatus {
	if db, ok := s.db.(*dbkit.DBKit); ok {
		return db.Health(ctx)
	}
	return dbkit.HealthStatus{
		Healthy: s.Ping(ctx) == nil,
		Error:   "Limited health check - not a DBKit instance",
	}
}

// Ping performs a basic connectivity test to the database.
func (s *DatabaseStore) Ping(ctx context.Context) error {
	var result int
	return s.db.NewSelect().Model((*struct{})(nil)).ColumnExpr("1").Limit(1).Scan(ctx, &result)
}

// PoolStats returns connection pool statistics for monitoring. Returns zero
// values if the underlying instance doesn't expose pool statistics.
func (s *DatabaseStore) PoolStats() dbkit.PoolStats {
	if db, ok := s.db.(*dbkit.DBKit); ok {
		return dbkit.PoolStatsFromSQL(db.Stats())
	}
	return dbkit.PoolStats{}
}
