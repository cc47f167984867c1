package engine

import (
	"context"
	"time"

	"github.com/AjaxSelectButtonGames/spotlight/classify"
	"github.com/AjaxSelectButtonGames/spotlight/platform"
	"github.com/AjaxSelectButtonGames/spotlight/store"
)

func (e *Engine) scanMentions(ctx context.Context) error {
	posts, err := e.client.FetchMentions(ctx, e.cfg.FetchLimit)
	if err != nil {
		return err
	}
	return e.processBatch(ctx, posts)
}

func (e *Engine) scanSearch(ctx context.Context) error {
	for _, term := range e.cfg.SearchTerms {
		posts, err := e.client.SearchByTerm(ctx, term, e.cfg.FetchLimit)
		if err != nil {
			// a failed term doesn't abort the rest of the scan
			e.logger.Warn("search failed", "term", term, "err", err)
			continue
		}
		if err := e.processBatch(ctx, posts); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) scanTimeline(ctx context.Context) error {
	posts, err := e.client.FetchTimeline(ctx, e.cfg.FetchLimit)
	if err != nil {
		return err
	}
	return e.processBatch(ctx, posts)
}

// processBatch walks candidates in fetch order, pacing per-item work with
// the courtesy limiter. Per-item failures are logged and skipped.
func (e *Engine) processBatch(ctx context.Context, posts []platform.Post) error {
	for _, p := range posts {
		if err := e.limiter.Wait(ctx); err != nil {
			return err
		}
		if e.isOptOut(p) {
			e.handleOptOut(ctx, p)
			continue
		}
		if err := e.processCandidate(ctx, p); err != nil {
			e.logger.Warn("failed to process candidate", "uri", p.URI, "err", err)
		}
	}
	return nil
}

// only direct mentions count as opt-out requests
func (e *Engine) isOptOut(p platform.Post) bool {
	return p.Source == "mention" && classify.ContainsAny(classify.Normalize(p.Text), e.cfg.OptOutPhrases)
}

func (e *Engine) processCandidate(ctx context.Context, p platform.Post) error {
	if p.URI == "" || p.AuthorDID == "" {
		return nil
	}
	candidatesSeen.WithLabelValues(p.Source).Inc()

	blocked, err := e.store.IsBlocked(ctx, p.AuthorDID)
	if err != nil {
		return err
	}
	if blocked {
		return nil
	}

	known, err := e.store.IsKnown(ctx, p.URI)
	if err != nil {
		return err
	}
	if known {
		return nil
	}
	if err := e.store.MarkKnown(ctx, p.URI); err != nil {
		return err
	}

	d := e.rules.Evaluate(p.Text)
	if !d.Accept {
		candidatesRejected.WithLabelValues(d.Rule).Inc()
		return nil
	}
	candidatesAccepted.WithLabelValues(d.Rule).Inc()
	e.logger.Info("accepted candidate", "uri", p.URI, "author", p.AuthorHandle, "rule", d.Rule, "source", p.Source)

	discovered := p.CreatedAt
	if discovered.IsZero() {
		discovered = time.Now()
	}
	if err := e.store.Enqueue(ctx, store.QueueEntry{
		URI:          p.URI,
		CID:          p.CID,
		AuthorDID:    p.AuthorDID,
		AuthorHandle: p.AuthorHandle,
		Text:         p.Text,
		Source:       p.Source,
		DiscoveredAt: discovered,
	}); err != nil {
		return err
	}

	// side effects are non-fatal: the candidate is already queued
	if err := e.EnsureFollowed(ctx, p.AuthorDID); err != nil {
		e.logger.Warn("follow failed", "did", p.AuthorDID, "err", err)
	}
	e.notifyWebhook(ctx, p, d.Rule)
	return nil
}
