package memberkit

import (
	"context"
)

// Context keys for MemberKit values.
type contextKey string

const (
	contextKeyActor     contextKey = "memberkit:actor"
	contextKeyIPAddress contextKey = "memberkit:ip_address"
	contextKeyUserAgent contextKey = "memberkit:user_agent"
	contextKeyRequestID contextKey = "memberkit:request_id"
	contextKeyChecker   contextKey = "memberkit:checker"
)

// WithActor adds the acting identity to the context. This is the resolved
// identity of the current request, supplied by the authentication layer.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, contextKeyActor, actor)
}

// ActorFromContext retrieves the actor from context. The second return value
// is false if no actor was set.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	if v := ctx.Value(contextKeyActor); v != nil {
		if a, ok := v.(Actor); ok {
			return a, true
		}
	}
	return Actor{}, false
}

// MustActorFromContext retrieves the actor from context. Panics if not set.
func MustActorFromContext(ctx context.Context) Actor {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		panic("memberkit: actor not in context")
	}
	return actor
}

// WithIPAddress adds the client IP address to the context (for audit).
func WithIPAddress(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, contextKeyIPAddress, ip)
}

// GetIPAddress retrieves the IP address from context.
func GetIPAddress(ctx context.Context) string {
	if v := ctx.Value(contextKeyIPAddress); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// WithUserAgent adds the user agent to the context (for audit).
func WithUserAgent(ctx context.Context, ua string) context.Context {
	return context.WithValue(ctx, contextKeyUserAgent, ua)
}

// GetUserAgent retrieves the user agent from context.
func GetUserAgent(ctx context.Context) string {
	if v := ctx.Value(contextKeyUserAgent); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// WithRequestID adds a request ID to the context (for audit and correlation).
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, contextKeyRequestID, requestID)
}

// GetRequestID retrieves the request ID from context.
func GetRequestID(ctx context.Context) string {
	if v := ctx.Value(contextKeyRequestID); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// WithChecker adds a Checker to the context.
// This is set by middleware and can be retrieved in handlers.
func WithChecker(ctx context.Context, checker *Checker) context.Context {
	return context.WithValue(ctx, contextKeyChecker, checker)
}

// CheckerFromContext retrieves the Checker from context.
// Returns nil if not set.
func CheckerFromContext(ctx context.Context) *Checker {
	if v := ctx.Value(contextKeyChecker); v != nil {
		if c, ok := v.(*Checker); ok {
			return c
		}
	}
	return nil
}

// AuditContext holds the request metadata recorded with every audit entry.
type AuditContext struct {
	IPAddress string
	UserAgent string
	RequestID string
}

// GetAuditContext extracts all audit metadata from context.
func GetAuditContext(ctx context.Context) AuditContext {
	return AuditContext{
		IPAddress: GetIPAddress(ctx),
		UserAgent: GetUserAgent(ctx),
		RequestID: GetRequestID(ctx),
	}
}

// WithAuditContext adds all audit metadata to context at once.
func WithAuditContext(ctx context.Context, ac AuditContext) context.Context {
	if ac.IPAddress != "" {
		ctx = WithIPAddress(ctx, ac.IPAddress)
	}
	if ac.UserAgent != "" {
		ctx = WithUserAgent(ctx, ac.UserAgent)
	}
	if ac.RequestID != "" {
		ctx = WithRequestID(ctx, ac.RequestID)
	}
	return ctx
}
