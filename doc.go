// Package memberkit provides the authorization and membership-lifecycle engine
// for a membership-management back office.
//
// MemberKit answers two questions: "may this actor perform this action?" and
// "is this lifecycle change legal for this member right now?". It combines a
// role-permission catalog with wildcard grants, a regional scoping gate, an
// explicit membership state machine, and a bulk coordinator with per-item
// failure isolation.
//
// # Core Concepts
//
// Permission key: a dot-separated string like "member.approve" or "member.edit".
// Grants support exact keys and resource wildcards ("member.*").
//
// Role: a named, immutable set of grant patterns loaded at startup from a
// Catalog. Actors may hold multiple roles; their permissions are the UNION.
//
// Scope: every actor is either Global or Regional. Regionally scoped roles
// (such as a regional coordinator) may only see and act on members of their
// own region. Scope is a hard authorization gate, not a display filter.
//
// Membership status: a member is pending ("calon_anggota"), active ("aktif"),
// or suspended ("tidak_aktif"). Status only changes through the transition
// table: Approve, Reject, Suspend, Activate, Delete. Invalid transitions are
// refused, never coerced.
//
// # Key Features
//
//   - Catalog compiled once: per-role expanded permission sets, so checks are
//     map lookups with no ambient global state
//   - Fail-fast configuration: unknown roles, malformed keys, and grants that
//     match nothing are rejected at build/load time
//   - Compare-and-set status updates: concurrent transitions cannot
//     double-apply, and a member number is issued exactly once
//   - Bulk operations with partial-failure semantics: one member's denial or
//     state conflict never aborts the rest of the batch
//   - Audit trail for every transition: actor, statuses, reason, request
//     metadata
//   - DBKit integration: uses your existing database connection
//
// # Basic Usage
//
//	// 1. Define the catalog (at application startup).
//	catalog, err := memberkit.NewCatalog().
//	    Permissions(
//	        "member.view", "member.approve", "member.suspend",
//	        "member.edit", "member.manage", "member.delete",
//	    ).
//	    Role("superadmin").Grants("member.*").
//	    Role("pengurus").Grants("member.view", "member.approve", "member.suspend", "member.edit").
//	    Role("koordinator").Regional().Grants("member.view", "member.approve", "member.edit").
//	    Role("anggota").Grants("member.view").
//	    Build()
//
//	// 2. Create the service.
//	db, _ := dbkit.New(dbkit.Config{URL: "postgres://..."})
//	store := memberkit.NewDatabaseStore(db)
//	service := memberkit.NewService(catalog, store)
//
//	// 3. Run migrations.
//	db.Migrate(ctx, memberkit.Migrations())
//
//	// 4. Authorize and transition.
//	actor := memberkit.Actor{ID: "u1", Roles: []string{"pengurus"}}
//	if service.IsAllowed(actor, "member.approve") {
//	    result, err := service.Transition(ctx, actor, memberID, memberkit.TransitionApprove, "")
//	    if err != nil {
//	        // typed failure: unauthorized, invalid transition, conflict, ...
//	    }
//	    _ = result
//	}
//
//	// 5. Bulk operations.
//	results, err := service.BulkTransition(ctx, actor, memberkit.TransitionApprove, ids, "")
//
// # Catalog Files
//
// Catalogs can also be loaded from YAML, which keeps role configuration out of
// code:
//
//	permissions:
//	  - member.view
//	  - member.approve
//	roles:
//	  superadmin:
//	    title: Super Administrator
//	    grants: ["member.*"]
//	  koordinator:
//	    title: Koordinator Wilayah
//	    regional: true
//	    grants: ["member.view", "member.approve"]
//
//	catalog, err := memberkit.LoadCatalog("roles.yaml")
//
// Reloading swaps the compiled catalog atomically via Service.ReloadCatalog;
// in-flight decisions keep the snapshot they started with.
//
// # Error Shape
//
// Denials never leak resource existence: OutOfScope and NotFound collapse to
// the same public shape as Unauthorized (see PublicError), while the full
// typed error stays available for logging and superadmin diagnostics.
package memberkit
