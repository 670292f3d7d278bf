package memberkit

import (
	"strings"
)

// MatchPermission checks if a grant pattern matches a permission key.
//
// A pattern matches when it equals the key exactly, or when it is a resource
// wildcard ("resource.*") and the key starts with "resource.". There is no
// deny form: absence of a match is the only way to deny.
//
// Examples:
//
//	MatchPermission("member.approve", "member.approve") // true - exact
//	MatchPermission("member.*", "member.approve")       // true - wildcard
//	MatchPermission("member.*", "member.edit")          // true - wildcard
//	MatchPermission("member.*", "role.edit")            // false - other resource
//	MatchPermission("member.edit", "member.approve")    // false - no match
func MatchPermission(pattern, key string) bool {
	if pattern == key {
		return true
	}

	prefix, ok := strings.CutSuffix(pattern, ".*")
	if !ok {
		return false
	}

	return strings.HasPrefix(key, prefix+".")
}

// MatchAnyPermission checks if any of the patterns match the permission key.
// Short-circuits on the first match.
func MatchAnyPermission(patterns []string, key string) bool {
	for _, pattern := range patterns {
		if MatchPermission(pattern, key) {
			return true
		}
	}
	return false
}

// ExpandPatterns returns the subset of known permission keys that a set of
// grant patterns would allow. Only known keys are considered: a pattern can
// never grant a key the catalog does not define.
func ExpandPatterns(patterns []string, known []string) []string {
	matched := make(map[string]bool)

	for _, key := range known {
		for _, pattern := range patterns {
			if MatchPermission(pattern, key) {
				matched[key] = true
				break
			}
		}
	}

	result := make([]string, 0, len(matched))
	for k := range matched {
		result = append(result, k)
	}
	return result
}

// ValidatePermissionKey checks that a permission key has the form
// "resource.action" with lowercase identifier segments.
func ValidatePermissionKey(key string) error {
	if key == "" {
		return NewError(ErrInvalidCatalog, "permission key cannot be empty")
	}

	parts := strings.Split(key, ".")
	if len(parts) < 2 {
		return NewError(ErrInvalidCatalog, "permission key must have at least two parts (resource.action)").WithPermission(key)
	}

	for _, part := range parts {
		if part == "" {
			return NewError(ErrInvalidCatalog, "permission key parts cannot be empty").WithPermission(key)
		}
		for _, c := range part {
			if !isValidKeyChar(c) {
				return NewError(ErrInvalidCatalog, "permission key contains invalid character").WithPermission(key)
			}
		}
	}

	return nil
}

// ValidateGrantPattern checks that a grant pattern is either a valid
// permission key or a resource wildcard ("resource.*").
func ValidateGrantPattern(pattern string) error {
	if pattern == "" {
		return NewError(ErrInvalidCatalog, "grant pattern cannot be empty")
	}

	if prefix, ok := strings.CutSuffix(pattern, ".*"); ok {
		if prefix == "" {
			return NewError(ErrInvalidCatalog, "wildcard grant needs a resource prefix").WithPermission(pattern)
		}
		for _, part := range strings.Split(prefix, ".") {
			if part == "" {
				return NewError(ErrInvalidCatalog, "grant pattern parts cannot be empty").WithPermission(pattern)
			}
			for _, c := range part {
				if !isValidKeyChar(c) {
					return NewError(ErrInvalidCatalog, "grant pattern contains invalid character").WithPermission(pattern)
				}
			}
		}
		return nil
	}

	return ValidatePermissionKey(pattern)
}

func isValidKeyChar(c rune) bool {
	return (c >= 'a' && c <= 'z') ||
		(c >= '0' && c <= '9') ||
		c == '_'
}
