package memberkit

import "strings"

// Actor is a resolved identity at decision time. Authentication happens
// upstream; MemberKit only consumes the result. Roles are unioned for
// permission checks. Region is only meaningful when every held role is
// regionally scoped.
type Actor struct {
	ID     string
	Roles  []string
	Region string
}

// HasRole reports whether the actor holds a role.
func (a Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// String returns a compact representation for log fields.
func (a Actor) String() string {
	return a.ID + "[" + strings.Join(a.Roles, ",") + "]"
}

// Scope is the visibility capability of an actor: either global, or limited
// to a single region. It is a tagged value rather than a nullable field so a
// forgotten region can never silently widen access.
type Scope struct {
	regional bool
	region   string
}

// GlobalScope returns the unrestricted scope.
func GlobalScope() Scope {
	return Scope{}
}

// RegionScope returns a scope limited to one region.
func RegionScope(region string) Scope {
	return Scope{regional: true, region: region}
}

// IsRegional reports whether the scope is limited to a region.
func (s Scope) IsRegional() bool {
	return s.regional
}

// Region returns the region the scope is limited to, or "" for global scope.
func (s Scope) Region() string {
	if !s.regional {
		return ""
	}
	return s.region
}

// Covers reports whether a member region falls inside the scope.
func (s Scope) Covers(region string) bool {
	if !s.regional {
		return true
	}
	return s.region == region
}

// String returns "global" or "region:<id>".
func (s Scope) String() string {
	if !s.regional {
		return "global"
	}
	return "region:" + s.region
}

// ScopeOf derives an actor's scope from the catalog. Holding any role that is
// not regionally scoped grants global scope. Actors holding only regional
// roles (or no roles at all) are limited to their own region.
func (c *Catalog) ScopeOf(actor Actor) Scope {
	for _, role := range actor.Roles {
		if r := c.roles[role]; r != nil && !r.Regional {
			return GlobalScope()
		}
	}
	return RegionScope(actor.Region)
}
