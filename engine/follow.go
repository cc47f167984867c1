package engine

import (
	"context"

	"github.com/AjaxSelectButtonGames/spotlight/platform"
)

// EnsureFollowed makes sure a follow relationship exists for the account,
// idempotently. No-op for empty, already-recorded, or blocked accounts.
// Callers treat a returned error as non-fatal.
func (e *Engine) EnsureFollowed(ctx context.Context, did string) error {
	if did == "" {
		return nil
	}
	blocked, err := e.store.IsBlocked(ctx, did)
	if err != nil {
		return err
	}
	if blocked {
		return nil
	}
	followed, err := e.store.IsFollowed(ctx, did)
	if err != nil {
		return err
	}
	if followed {
		return nil
	}

	following, err := e.client.IsFollowing(ctx, did)
	if err != nil {
		return err
	}
	if following {
		// pre-existing follow, just record it
		return e.store.MarkFollowed(ctx, did)
	}
	if err := e.client.Follow(ctx, did); err != nil {
		return err
	}
	followsIssued.Inc()
	e.logger.Info("followed account", "did", did)
	if err := e.store.MarkFollowed(ctx, did); err != nil {
		return err
	}
	// rate-limit courtesy pause after a write
	return e.limiter.Wait(ctx)
}

// scanFollowBack reciprocates follows from accounts following the bot.
func (e *Engine) scanFollowBack(ctx context.Context) error {
	dids, err := e.client.Followers(ctx, e.cfg.FetchLimit)
	if err != nil {
		return err
	}
	for _, did := range dids {
		if err := e.EnsureFollowed(ctx, did); err != nil {
			e.logger.Warn("follow-back failed", "did", did, "err", err)
		}
	}
	return nil
}

// handleOptOut blocks the author, removes any follow, and suppresses all
// future processing of their content.
func (e *Engine) handleOptOut(ctx context.Context, p platform.Post) {
	optOutsReceived.Inc()
	e.logger.Info("processing opt-out request", "did", p.AuthorDID, "handle", p.AuthorHandle)
	if err := e.store.Block(ctx, p.AuthorDID, p.AuthorHandle, "requested"); err != nil {
		e.logger.Warn("failed to record opt-out", "did", p.AuthorDID, "err", err)
		return
	}
	if err := e.client.Unfollow(ctx, p.AuthorDID); err != nil {
		e.logger.Warn("unfollow failed", "did", p.AuthorDID, "err", err)
	}
	// don't reprocess the opt-out mention itself
	if err := e.store.MarkKnown(ctx, p.URI); err != nil {
		e.logger.Warn("failed to mark opt-out mention", "uri", p.URI, "err", err)
	}
}
