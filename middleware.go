package memberkit

import (
	"net/http"
)

// Middleware provides HTTP middleware for permission checking. It sits
// between the authentication layer (which resolves the Actor) and handlers
// (which call the service).
type Middleware struct {
	service      *Service
	getActor     func(*http.Request) (Actor, bool)
	errorHandler func(http.ResponseWriter, *http.Request, error)
}

// MiddlewareOption configures the Middleware.
type MiddlewareOption func(*Middleware)

// NewMiddleware creates a new Middleware instance.
//
// Example:
//
//	mw := memberkit.NewMiddleware(service,
//	    memberkit.WithActorExtractor(func(r *http.Request) (memberkit.Actor, bool) {
//	        return sessionActor(r)
//	    }),
//	)
func NewMiddleware(service *Service, opts ...MiddlewareOption) *Middleware {
	m := &Middleware{
		service:      service,
		getActor:     defaultGetActor,
		errorHandler: defaultErrorHandler,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// WithActorExtractor sets a custom function to extract the actor from a
// request. The default reads the actor set on the request context by the
// authentication layer.
func WithActorExtractor(fn func(*http.Request) (Actor, bool)) MiddlewareOption {
	return func(m *Middleware) {
		m.getActor = fn
	}
}

// WithMiddlewareErrorHandler sets a custom error handler for middleware.
func WithMiddlewareErrorHandler(fn func(http.ResponseWriter, *http.Request, error)) MiddlewareOption {
	return func(m *Middleware) {
		m.errorHandler = fn
	}
}

func defaultGetActor(r *http.Request) (Actor, bool) {
	return ActorFromContext(r.Context())
}

// defaultErrorHandler renders denials through PublicError: unauthorized,
// out-of-scope, and not-found all become a plain 403, so responses leak
// neither member existence nor region.
func defaultErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	err = PublicError(err)
	switch {
	case IsUnauthorized(err):
		http.Error(w, "Forbidden", http.StatusForbidden)
	case IsNoActor(err):
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	case IsValidation(err):
		http.Error(w, "Bad Request", http.StatusBadRequest)
	case IsConflict(err), IsInvalidTransition(err):
		http.Error(w, "Conflict", http.StatusConflict)
	default:
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// RequirePermission creates middleware that requires a permission key.
//
// Example:
//
//	router.With(mw.RequirePermission("member.approve")).
//	    Post("/members/{memberID}/approve", approveHandler)
func (m *Middleware) RequirePermission(key string) func(http.Handler) http.Handler {
	return m.requireAny(key)
}

// RequireAnyPermission creates middleware that requires any of the keys.
//
// Example:
//
//	router.With(mw.RequireAnyPermission("member.suspend", "member.manage")).
//	    Post("/members/{memberID}/suspend", suspendHandler)
func (m *Middleware) RequireAnyPermission(keys ...string) func(http.Handler) http.Handler {
	return m.requireAny(keys...)
}

func (m *Middleware) requireAny(keys ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := m.getActor(r)
			if !ok || actor.ID == "" {
				m.errorHandler(w, r, NewError(ErrNoActor, "no actor on request"))
				return
			}

			checker := m.service.CheckerFor(actor)
			if !checker.AllowsAny(keys...) {
				m.errorHandler(w, r, NewError(ErrUnauthorized, "missing required permission").
					WithActor(actor.ID).
					WithPermission(keys[0]))
				return
			}

			// Add checker to context for use in handlers
			ctx := WithChecker(r.Context(), checker)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole creates middleware that requires a specific role.
//
// Example:
//
//	router.With(mw.RequireRole("pengurus")).Get("/back-office", dashboardHandler)
func (m *Middleware) RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := m.getActor(r)
			if !ok || actor.ID == "" {
				m.errorHandler(w, r, NewError(ErrNoActor, "no actor on request"))
				return
			}

			if !actor.HasRole(role) {
				m.errorHandler(w, r, NewError(ErrUnauthorized, "missing required role").
					WithActor(actor.ID))
				return
			}

			ctx := WithChecker(r.Context(), m.service.CheckerFor(actor))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// LoadChecker creates middleware that loads the actor's Checker into context.
// Use this when you want to do permission checks in the handler rather than
// middleware.
//
// Example:
//
//	router.With(mw.LoadChecker()).Get("/dashboard", dashboardHandler)
//
//	func dashboardHandler(w http.ResponseWriter, r *http.Request) {
//	    checker := memberkit.CheckerFromContext(r.Context())
//	    if checker != nil && checker.Allows("member.approve") {
//	        // Show the approval queue
//	    }
//	}
func (m *Middleware) LoadChecker() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := m.getActor(r)
			if !ok || actor.ID == "" {
				// No actor, continue without checker
				next.ServeHTTP(w, r)
				return
			}

			ctx := WithChecker(r.Context(), m.service.CheckerFor(actor))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// InjectAuditContext creates middleware that extracts audit information from
// the request and adds it to the context, so lifecycle operations record
// where the decision came from.
//
// Example:
//
//	router.Use(mw.InjectAuditContext())
func (m *Middleware) InjectAuditContext() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			// Extract IP address
			ip := r.Header.Get("X-Forwarded-For")
			if ip == "" {
				ip = r.Header.Get("X-Real-IP")
			}
			if ip == "" {
				ip = r.RemoteAddr
			}
			ctx = WithIPAddress(ctx, ip)

			// Extract User Agent
			ctx = WithUserAgent(ctx, r.UserAgent())

			// Extract Request ID (commonly set by other middleware)
			requestID := r.Header.Get("X-Request-ID")
			if requestID != "" {
				ctx = WithRequestID(ctx, requestID)
			}

			// Propagate the actor if the extractor can resolve one
			if actor, ok := m.getActor(r); ok && actor.ID != "" {
				ctx = WithActor(ctx, actor)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
