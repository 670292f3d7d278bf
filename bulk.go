package memberkit

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// BulkTransition applies one transition kind to many members, each evaluated
// independently through the full guard chain: one member failing never stops
// the others, and there is no batch rollback. Returns one result per distinct
// member id, in input order.
//
// Destructive kinds (reject, delete) validate the shared reason before any
// member is touched. An infrastructure failure cancels the unprocessed
// remainder; members already transitioned stay transitioned, and cancelled
// items report InfrastructureFailure.
//
// Example:
//
//	results, err := service.BulkTransition(ctx, actor, memberkit.TransitionApprove, ids, "")
//	if err != nil {
//	    // the request itself was invalid; nothing ran
//	}
//	ok, failed := memberkit.Summarize(results)
func (s *Service) BulkTransition(ctx context.Context, actor Actor, kind TransitionKind, memberIDs []string, reason string) ([]TransitionResult, error) {
	if !kind.Valid() {
		return nil, NewError(ErrValidation, fmt.Sprintf("unknown transition kind %q", kind))
	}

	ids := dedupeIDs(memberIDs)
	if len(ids) == 0 {
		return nil, NewError(ErrValidation, "no member ids")
	}

	// Reason check runs eagerly so a missing reason fails the whole batch
	// before any member is mutated.
	if (kind.RequiresReason() || kind.Removes()) && strings.TrimSpace(reason) == "" {
		return nil, NewError(ErrValidation, string(kind)+" requires a reason")
	}
	if actor.ID == "" {
		return nil, NewError(ErrNoActor, "bulk transition requires an actor")
	}

	results := make([]TransitionResult, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.bulkWorkers)
	for i, id := range ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i] = TransitionResult{
					MemberID: id,
					Err:      NewError(ErrInfrastructure, "cancelled before processing").WithMember(id),
				}
				return nil
			}

			result, err := s.transitionWithRetry(gctx, actor, id, kind, reason)
			if err != nil {
				results[i] = TransitionResult{MemberID: id, Err: err}
				if IsInfrastructure(err) {
					// Cancel the unprocessed remainder; committed items stand.
					return err
				}
				return nil
			}
			results[i] = *result
			return nil
		})
	}

	// Per-item outcomes live in results; the group error only drove
	// cancellation of the remainder.
	_ = g.Wait()

	succeeded, failed := Summarize(results)
	s.logger.InfoContext(ctx, "bulk transition finished",
		"kind", string(kind),
		"actor_id", actor.ID,
		"total", len(ids),
		"succeeded", succeeded,
		"failed", failed,
	)

	return results, nil
}

// transitionWithRetry runs one transition, retrying transient infrastructure
// errors with exponential backoff and jitter. Decision errors (denials,
// validation, state, conflict) are never retried.
func (s *Service) transitionWithRetry(ctx context.Context, actor Actor, memberID string, kind TransitionKind, reason string) (*TransitionResult, error) {
	const maxAttempts = 3

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		result, err := s.Transition(ctx, actor, memberID, kind, reason)
		if err == nil {
			return result, nil
		}

		lastErr = err
		if !isTransientInfraError(err) {
			return nil, err
		}
		if attempt == maxAttempts-1 {
			break
		}

		// Exponential backoff with jitter
		backoff := time.Duration(1<<uint(attempt)) * 100 * time.Millisecond
		jitter := time.Duration(float64(backoff) * 0.1 * (0.5 + rand.Float64()))
		select {
		case <-ctx.Done():
			return nil, lastErr
		case <-time.After(backoff + jitter):
		}
	}

	return nil, lastErr
}

// isTransientInfraError checks if an infrastructure error is transient and
// worth retrying. Cancellation is not: it means the batch is being torn down.
func isTransientInfraError(err error) bool {
	if !IsInfrastructure(err) {
		return false
	}

	msg := strings.ToLower(err.Error())
	transient := []string{
		"connection",
		"timeout",
		"deadlock",
		"broken pipe",
		"temporary failure",
		"try again",
		"resource temporarily unavailable",
	}
	for _, t := range transient {
		if strings.Contains(msg, t) {
			return true
		}
	}
	return false
}

// dedupeIDs drops duplicate and empty ids, preserving first-seen order.
func dedupeIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
