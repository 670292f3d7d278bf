package memberkit

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// testCatalog builds the role matrix the tests run against: a global
// superadmin, a global pengurus, a regionally scoped koordinator, and a
// plain anggota.
func testCatalog(t *testing.T) *Catalog {
	t.Helper()

	catalog, err := NewCatalog().
		Permissions(
			"member.view", "member.approve", "member.suspend",
			"member.edit", "member.delete", "member.manage",
		).
		Role("superadmin").Title("Super Admin").Grants("member.*").
		Role("pengurus").Title("Pengurus").Grants("member.view", "member.approve", "member.suspend", "member.edit").
		Role("koordinator").Title("Koordinator Wilayah").Regional().Grants("member.view", "member.approve", "member.edit").
		Role("anggota").Title("Anggota").Grants("member.view").
		Build()
	require.NoError(t, err)
	return catalog
}

// newTestService wires a service on the in-memory store with silenced logs.
func newTestService(t *testing.T, opts ...Option) (*Service, *MemoryStore) {
	t.Helper()

	store := NewMemoryStore()
	opts = append([]Option{WithLogger(testLogger())}, opts...)
	return NewService(testCatalog(t), store, opts...), store
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// seedMember inserts a member directly into the store, bypassing the service.
func seedMember(t *testing.T, store *MemoryStore, region string, status MembershipStatus) *Member {
	t.Helper()

	member := &Member{
		ID:       uuid.NewString(),
		FullName: "Test Member",
		Email:    "member@example.com",
		Region:   region,
		Status:   status,
	}
	if status != StatusPending {
		member.MemberNumber = "M-999999"
	}
	require.NoError(t, store.Create(context.Background(), member))
	return member
}

var (
	actorSuperadmin  = Actor{ID: "actor-superadmin", Roles: []string{"superadmin"}}
	actorPengurus    = Actor{ID: "actor-pengurus", Roles: []string{"pengurus"}}
	actorKoordinator = Actor{ID: "actor-koordinator", Roles: []string{"koordinator"}, Region: "jakarta"}
	actorAnggota     = Actor{ID: "actor-anggota", Roles: []string{"anggota"}, Region: "jakarta"}
)
