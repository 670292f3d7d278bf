package memberkit

import (
	"github.com/fernandezvara/dbkit"
)

// Migrations returns all database migrations required for MemberKit.
// Use db.Migrate(ctx, memberkit.Migrations()) to run migrations.
func Migrations() []dbkit.Migration {
	return []dbkit.Migration{
		{
			ID:          "memberkit-001",
			Description: "Create members table",
			SQL: `
                CREATE TABLE IF NOT EXISTS members (
                    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
                    full_name TEXT NOT NULL,
                    email TEXT NOT NULL,
                    phone TEXT,
                    region TEXT NOT NULL,
                    membership_status TEXT NOT NULL DEFAULT 'calon_anggota',
                    member_number TEXT UNIQUE,
                    approved_by TEXT,
                    approved_at TIMESTAMPTZ,
                    status_reason TEXT,
                    created_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
                    updated_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp
                )`,
		},
		{
			ID:          "memberkit-002",
			Description: "Create member_number_seq sequence",
			SQL:         `CREATE SEQUENCE IF NOT EXISTS member_number_seq START 1`,
		},
		{
			ID:          "memberkit-003",
			Description: "Create member_audit_log table",
			SQL: `
                CREATE TABLE IF NOT EXISTS member_audit_log (
                    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
                    timestamp TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
                    actor_id TEXT NOT NULL,
                    actor_roles TEXT[],
                    action TEXT NOT NULL,
                    member_id TEXT NOT NULL,
                    from_status TEXT,
                    to_status TEXT,
                    reason TEXT,
                    ip_address TEXT,
                    user_agent TEXT,
                    request_id TEXT
                )`,
		},
		{
			ID:          "memberkit-004",
			Description: "Create indexes for member lookups",
			SQL: `
                CREATE INDEX IF NOT EXISTS idx_members_status ON members (membership_status);
                CREATE INDEX IF NOT EXISTS idx_members_region ON members (region);
                CREATE INDEX IF NOT EXISTS idx_member_audit_log_member ON member_audit_log (member_id);
                CREATE INDEX IF NOT EXISTS idx_member_audit_log_actor ON member_audit_log (actor_id)`,
		},
	}
}
