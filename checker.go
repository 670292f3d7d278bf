package memberkit

// Checker binds an actor to a catalog snapshot for repeated permission and
// scope checks. It is pure: the same checker always gives the same answers,
// so it is safe to cache per request and store in context.
type Checker struct {
	actor   Actor
	catalog *Catalog
	scope   Scope
}

// NewChecker creates a Checker for an actor against a catalog snapshot.
func NewChecker(actor Actor, catalog *Catalog) *Checker {
	return &Checker{
		actor:   actor,
		catalog: catalog,
		scope:   catalog.ScopeOf(actor),
	}
}

// Actor returns the actor this checker is for.
func (c *Checker) Actor() Actor {
	return c.actor
}

// Scope returns the actor's derived visibility scope.
func (c *Checker) Scope() Scope {
	return c.scope
}

// Allows checks if the actor may use a permission key. Roles are unioned and
// the check short-circuits on the first grant that matches. Unknown keys are
// always denied.
//
// Example:
//
//	if checker.Allows("member.approve") {
//	    // actor may approve registrations
//	}
func (c *Checker) Allows(key string) bool {
	return c.catalog.isAllowed(c.actor.Roles, key)
}

// AllowsAny checks if the actor may use any of the permission keys.
//
// Example:
//
//	if checker.AllowsAny("member.suspend", "member.manage") {
//	    // actor may suspend members
//	}
func (c *Checker) AllowsAny(keys ...string) bool {
	for _, key := range keys {
		if c.Allows(key) {
			return true
		}
	}
	return false
}

// AllowsAll checks if the actor may use all of the permission keys.
func (c *Checker) AllowsAll(keys ...string) bool {
	for _, key := range keys {
		if !c.Allows(key) {
			return false
		}
	}
	return true
}

// Permissions returns the full expanded permission set of the actor, the
// union across all held roles, sorted.
func (c *Checker) Permissions() []string {
	seen := make(map[string]bool)
	for _, role := range c.actor.Roles {
		for _, key := range c.catalog.PermissionsFor(role) {
			seen[key] = true
		}
	}

	// KnownPermissions is sorted, so filtering it keeps the order.
	var out []string
	for _, key := range c.catalog.keys {
		if seen[key] {
			out = append(out, key)
		}
	}
	return out
}

// InScope checks if a member falls inside the actor's visibility scope.
// Regionally scoped actors only cover members of their own region; everyone
// else has global scope. A scope failure must be treated as an authorization
// denial, never as an empty result.
func (c *Checker) InScope(member *Member) bool {
	return c.scope.Covers(member.Region)
}

// IsEmpty reports whether the actor holds no roles.
func (c *Checker) IsEmpty() bool {
	return len(c.actor.Roles) == 0
}
