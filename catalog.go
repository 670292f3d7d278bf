package memberkit

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Catalog is the compiled, immutable registry of permission keys and
// role grants. It is built once at startup (from the fluent builder or a YAML
// file) and shared read-only; replacing it at runtime goes through
// Service.ReloadCatalog, which swaps the whole snapshot atomically.
type Catalog struct {
	keys   []string // sorted known permission keys
	keySet map[string]bool
	roles  map[string]*Role
}

// Role is a compiled role definition inside a Catalog.
type Role struct {
	Name        string
	Title       string
	Description string

	// Regional marks the role as regionally scoped: actors holding only
	// regional roles may act solely on members of their own region.
	Regional bool

	grants  []string        // configured patterns, in declaration order
	allowed map[string]bool // expanded known keys this role may use
}

// KnownPermissions returns all permission keys the catalog recognizes, sorted.
func (c *Catalog) KnownPermissions() []string {
	out := make([]string, len(c.keys))
	copy(out, c.keys)
	return out
}

// HasPermission reports whether a permission key is defined in the catalog.
func (c *Catalog) HasPermission(key string) bool {
	return c.keySet[key]
}

// Roles returns all role names defined in the catalog, sorted.
func (c *Catalog) Roles() []string {
	names := make([]string, 0, len(c.roles))
	for name := range c.roles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RoleDefinition returns the compiled role, or nil if the role is unknown.
func (c *Catalog) RoleDefinition(name string) *Role {
	return c.roles[name]
}

// GrantsFor returns the configured grant patterns for a role, in declaration
// order. Returns nil for unknown roles.
func (c *Catalog) GrantsFor(role string) []string {
	r := c.roles[role]
	if r == nil {
		return nil
	}
	out := make([]string, len(r.grants))
	copy(out, r.grants)
	return out
}

// PermissionsFor returns the expanded permission keys a role may use, sorted.
func (c *Catalog) PermissionsFor(role string) []string {
	r := c.roles[role]
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.allowed))
	for k := range r.allowed {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// IsRegional reports whether a role is regionally scoped. Unknown roles are
// treated as regional, the most restrictive interpretation.
func (c *Catalog) IsRegional(role string) bool {
	r := c.roles[role]
	if r == nil {
		return true
	}
	return r.Regional
}

// isAllowed reports whether any of the given roles may use the permission key.
// Unknown keys are always denied, so a typo in a call site cannot silently
// grant access. Roles are unioned; the check short-circuits on first match.
func (c *Catalog) isAllowed(roles []string, key string) bool {
	if !c.keySet[key] {
		return false
	}
	for _, role := range roles {
		if r := c.roles[role]; r != nil && r.allowed[key] {
			return true
		}
	}
	return false
}

// ============================================================================
// FLUENT BUILDER
// ============================================================================

// CatalogBuilder assembles a Catalog. Configuration errors are reported by
// Build, so chains stay unconditional.
type CatalogBuilder struct {
	keys  []string
	roles []*roleConfig
}

type roleConfig struct {
	name        string
	title       string
	description string
	regional    bool
	grants      []string
	builder     *CatalogBuilder
}

// NewCatalog starts building a catalog.
//
// Example:
//
//	catalog, err := memberkit.NewCatalog().
//	    Permissions("member.view", "member.approve").
//	    Role("pengurus").Grants("member.view", "member.approve").
//	    Role("anggota").Grants("member.view").
//	    Build()
func NewCatalog() *CatalogBuilder {
	return &CatalogBuilder{}
}

// Permissions declares known permission keys. May be called multiple times.
func (b *CatalogBuilder) Permissions(keys ...string) *CatalogBuilder {
	b.keys = append(b.keys, keys...)
	return b
}

// Role starts defining a role. Returns a RoleBuilder for fluent configuration.
func (b *CatalogBuilder) Role(name string) *RoleBuilder {
	rc := &roleConfig{name: name, builder: b}
	b.roles = append(b.roles, rc)
	return &RoleBuilder{config: rc}
}

// RoleBuilder configures a single role within a CatalogBuilder.
type RoleBuilder struct {
	config *roleConfig
}

// Title sets the display title of the role.
func (rb *RoleBuilder) Title(title string) *RoleBuilder {
	rb.config.title = title
	return rb
}

// Describe sets the role description.
func (rb *RoleBuilder) Describe(description string) *RoleBuilder {
	rb.config.description = description
	return rb
}

// Regional marks the role as regionally scoped.
func (rb *RoleBuilder) Regional() *RoleBuilder {
	rb.config.regional = true
	return rb
}

// Grants sets the grant patterns for this role. Patterns are exact permission
// keys or resource wildcards ("member.*").
func (rb *RoleBuilder) Grants(patterns ...string) *RoleBuilder {
	rb.config.grants = append(rb.config.grants, patterns...)
	return rb
}

// Role continues defining roles on the parent builder (fluent API).
func (rb *RoleBuilder) Role(name string) *RoleBuilder {
	return rb.config.builder.Role(name)
}

// Build compiles and validates the catalog on the parent builder.
func (rb *RoleBuilder) Build() (*Catalog, error) {
	return rb.config.builder.Build()
}

// Build compiles and validates the catalog. Malformed configuration is a
// startup error: unknown keys referenced by a grant, empty patterns, wildcard
// grants that match nothing, and duplicate role names all fail here.
func (b *CatalogBuilder) Build() (*Catalog, error) {
	if len(b.keys) == 0 {
		return nil, NewError(ErrInvalidCatalog, "catalog defines no permission keys")
	}

	keySet := make(map[string]bool, len(b.keys))
	var keys []string
	for _, key := range b.keys {
		if err := ValidatePermissionKey(key); err != nil {
			return nil, err
		}
		if !keySet[key] {
			keySet[key] = true
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	roles := make(map[string]*Role, len(b.roles))
	for _, rc := range b.roles {
		if rc.name == "" {
			return nil, NewError(ErrInvalidCatalog, "role name cannot be empty")
		}
		if _, exists := roles[rc.name]; exists {
			return nil, NewError(ErrInvalidCatalog, fmt.Sprintf("role %q defined twice", rc.name))
		}

		allowed := make(map[string]bool)
		for _, pattern := range rc.grants {
			if err := ValidateGrantPattern(pattern); err != nil {
				return nil, err
			}
			matched := false
			for _, key := range keys {
				if MatchPermission(pattern, key) {
					allowed[key] = true
					matched = true
				}
			}
			if !matched {
				return nil, NewError(ErrInvalidCatalog,
					fmt.Sprintf("grant %q for role %q matches no known permission", pattern, rc.name))
			}
		}

		roles[rc.name] = &Role{
			Name:        rc.name,
			Title:       rc.title,
			Description: rc.description,
			Regional:    rc.regional,
			grants:      append([]string(nil), rc.grants...),
			allowed:     allowed,
		}
	}

	return &Catalog{
		keys:   keys,
		keySet: keySet,
		roles:  roles,
	}, nil
}

// ============================================================================
// YAML LOADING
// ============================================================================

type catalogFile struct {
	Permissions []string               `yaml:"permissions"`
	Roles       map[string]roleFileDef `yaml:"roles"`
}

type roleFileDef struct {
	Title       string   `yaml:"title"`
	Description string   `yaml:"description"`
	Regional    bool     `yaml:"regional"`
	Grants      []string `yaml:"grants"`
}

// ParseCatalog builds a catalog from YAML configuration bytes.
func ParseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, NewError(ErrInvalidCatalog, fmt.Sprintf("parse catalog: %v", err))
	}

	builder := NewCatalog().Permissions(file.Permissions...)

	// Sort role names so validation errors are deterministic.
	names := make([]string, 0, len(file.Roles))
	for name := range file.Roles {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		def := file.Roles[name]
		rb := builder.Role(name).Title(def.Title).Describe(def.Description).Grants(def.Grants...)
		if def.Regional {
			rb.Regional()
		}
	}

	return builder.Build()
}

// LoadCatalog builds a catalog from a YAML configuration file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewError(ErrInvalidCatalog, fmt.Sprintf("read catalog file: %v", err))
	}
	return ParseCatalog(data)
}
