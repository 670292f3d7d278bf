package memberkit

import (
	"errors"
	"fmt"
)

// Sentinel errors for MemberKit operations.
var (
	// ErrUnauthorized is returned when an actor lacks the permission key for
	// an action. It never reveals whether the target member exists.
	ErrUnauthorized = errors.New("memberkit: unauthorized")

	// ErrOutOfScope is returned when an actor holds the permission in general
	// but not over this member's region. Callers see the same denial shape as
	// ErrUnauthorized; the distinction exists for audit logging.
	ErrOutOfScope = errors.New("memberkit: out of scope")

	// ErrInvalidTransition is returned when a member's current status does not
	// permit the requested transition.
	ErrInvalidTransition = errors.New("memberkit: invalid state transition")

	// ErrValidation is returned for malformed requests: missing required
	// reason, empty bulk id list, empty member id, unknown transition kind.
	ErrValidation = errors.New("memberkit: validation failed")

	// ErrNotFound is returned when a member id does not exist.
	ErrNotFound = errors.New("memberkit: member not found")

	// ErrConflict is returned when a compare-and-set update fails because the
	// member's status changed concurrently and a single retry also failed.
	ErrConflict = errors.New("memberkit: concurrent status change")

	// ErrInfrastructure is returned when the persistence layer fails. The
	// member's state is guaranteed unchanged.
	ErrInfrastructure = errors.New("memberkit: infrastructure failure")

	// ErrInvalidCatalog is returned when catalog configuration is malformed:
	// unknown permission keys in grants, empty patterns, duplicate roles.
	ErrInvalidCatalog = errors.New("memberkit: invalid catalog")

	// ErrNoActor is returned when an operation requires an actor and none was
	// provided.
	ErrNoActor = errors.New("memberkit: no actor")
)

// Error wraps a sentinel error with decision context.
type Error struct {
	Err        error  // Underlying sentinel error
	Message    string // Additional context
	ActorID    string // Actor who triggered the decision (if applicable)
	MemberID   string // Member involved (if applicable)
	Permission string // Permission key involved (if applicable)

	// Status detail for ErrInvalidTransition: which current status blocked
	// which requested target.
	From MembershipStatus
	To   MembershipStatus
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == ErrInvalidTransition && e.From != "" {
		if e.To != "" {
			return fmt.Sprintf("%s: status %q does not permit transition to %q", e.Err.Error(), e.From, e.To)
		}
		return fmt.Sprintf("%s: status %q does not permit this transition", e.Err.Error(), e.From)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is checks if the error matches a target error.
func (e *Error) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewError creates a new Error with context.
func NewError(err error, message string) *Error {
	return &Error{
		Err:     err,
		Message: message,
	}
}

// WithActor adds actor information to the error.
func (e *Error) WithActor(actorID string) *Error {
	e.ActorID = actorID
	return e
}

// WithMember adds member information to the error.
func (e *Error) WithMember(memberID string) *Error {
	e.MemberID = memberID
	return e
}

// WithPermission adds the permission key to the error.
func (e *Error) WithPermission(key string) *Error {
	e.Permission = key
	return e
}

// WithStatuses adds status detail for invalid-transition errors.
func (e *Error) WithStatuses(from, to MembershipStatus) *Error {
	e.From = from
	e.To = to
	return e
}

// IsUnauthorized checks if an error is a permission denial.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsOutOfScope checks if an error is a regional scope denial.
func IsOutOfScope(err error) bool {
	return errors.Is(err, ErrOutOfScope)
}

// IsInvalidTransition checks if an error is a state machine refusal.
func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}

// IsValidation checks if an error is a request validation failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsNotFound checks if an error is a missing member.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict checks if an error is a concurrent modification conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsInfrastructure checks if an error is a persistence layer failure.
func IsInfrastructure(err error) bool {
	return errors.Is(err, ErrInfrastructure)
}

// IsInvalidCatalog checks if an error is a catalog configuration failure.
func IsInvalidCatalog(err error) bool {
	return errors.Is(err, ErrInvalidCatalog)
}

// IsNoActor checks if an error is a missing-actor failure.
func IsNoActor(err error) bool {
	return errors.Is(err, ErrNoActor)
}

// IsDenial reports whether an error is any authorization denial: unauthorized,
// out of scope, or not found. These three share one public shape so callers
// cannot probe for member existence or region.
func IsDenial(err error) bool {
	return IsUnauthorized(err) || IsOutOfScope(err) || IsNotFound(err)
}

// PublicError returns the error as it should be presented to ordinary actors.
// OutOfScope and NotFound collapse to a bare ErrUnauthorized so the response
// leaks neither member existence nor region. All other errors pass through.
// The original error should still be logged in full for audit.
func PublicError(err error) error {
	if err == nil {
		return nil
	}
	if IsOutOfScope(err) || IsNotFound(err) {
		return ErrUnauthorized
	}
	return err
}
