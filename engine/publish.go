package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/AjaxSelectButtonGames/spotlight/classify"
	"github.com/AjaxSelectButtonGames/spotlight/platform"
	"github.com/AjaxSelectButtonGames/spotlight/store"

	"github.com/rivo/uniseg"
)

const ellipsis = "…"

// TruncateText cuts text to at most max grapheme clusters, replacing the
// last cluster with an ellipsis when anything was cut.
func TruncateText(text string, max int) string {
	if max <= 0 {
		return ""
	}
	if uniseg.GraphemeClusterCount(text) <= max {
		return text
	}
	var b strings.Builder
	g := uniseg.NewGraphemes(text)
	n := 0
	for g.Next() {
		if n >= max-1 {
			break
		}
		b.WriteString(g.Str())
		n++
	}
	return b.String() + ellipsis
}

func (e *Engine) renderFrame(handle, link, body string) string {
	msg := fmt.Sprintf("🔦 Spotlight on @%s:\n\n%s", handle, body)
	if link != "" {
		msg += "\n\n" + link
	}
	if e.cfg.ClosingTag != "" {
		msg += "\n" + e.cfg.ClosingTag
	}
	return msg
}

// renderSpotlight strips campaign hashtags from the candidate text and fits
// the remainder into the message budget: body gets CharLimit minus the fixed
// template plus link overhead.
func (e *Engine) renderSpotlight(entry *store.QueueEntry) string {
	link := platform.PostWebURL(entry.AuthorHandle, entry.URI)
	body := classify.StripTags(entry.Text, e.rules.AllTags())
	overhead := uniseg.GraphemeClusterCount(e.renderFrame(entry.AuthorHandle, link, ""))
	body = TruncateText(body, e.cfg.CharLimit-overhead)
	return e.renderFrame(entry.AuthorHandle, link, body)
}

// PublishNext takes the oldest eligible queue entry and posts its spotlight.
// No-op on an empty queue. A failed publish leaves the entry queued; after
// MaxPublishAttempts failures the entry is dead-lettered instead.
func (e *Engine) PublishNext(ctx context.Context) error {
	entry, err := e.store.PeekOldest(ctx, e.cfg.PublishBackoffBase)
	if err != nil {
		return err
	}
	if entry == nil {
		return nil
	}

	msg := e.renderSpotlight(entry)
	res, err := e.client.Publish(ctx, msg)
	if err != nil {
		publishesFailed.Inc()
		e.logger.Error("publish failed, leaving entry queued", "uri", entry.URI, "attempts", entry.Attempts+1, "err", err)
		if err := e.store.MarkAttempt(ctx, entry.ID); err != nil {
			return err
		}
		if e.cfg.MaxPublishAttempts > 0 && entry.Attempts+1 >= e.cfg.MaxPublishAttempts {
			publishesDeadLettered.Inc()
			e.logger.Warn("giving up on entry after repeated failures", "uri", entry.URI, "attempts", entry.Attempts+1)
			return e.store.MarkFailed(ctx, entry.ID)
		}
		return nil
	}

	publishesSucceeded.Inc()
	e.logger.Info("published spotlight", "subject", entry.URI, "post", res.URI, "author", entry.AuthorHandle)
	if err := e.store.Remove(ctx, entry.ID); err != nil {
		return err
	}
	// remember our own spotlight so discovery never picks it back up
	if err := e.store.MarkKnown(ctx, res.URI); err != nil {
		e.logger.Warn("failed to record published URI", "uri", res.URI, "err", err)
	}

	if entry.CID != "" {
		if err := e.client.Like(ctx, entry.URI, entry.CID); err != nil {
			e.logger.Warn("like failed", "uri", entry.URI, "err", err)
		}
	}
	if e.cfg.ReplyNotify {
		parent := platform.Post{URI: entry.URI, CID: entry.CID}
		note := fmt.Sprintf("@%s your post just got a community spotlight ✨", entry.AuthorHandle)
		if err := e.client.Reply(ctx, parent, note); err != nil {
			e.logger.Warn("reply notification failed", "uri", entry.URI, "err", err)
		}
	}
	return nil
}
