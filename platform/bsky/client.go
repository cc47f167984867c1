// Package bsky implements the platform interfaces against a Bluesky PDS
// using the indigo XRPC client and generated lexicon API.
package bsky

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/AjaxSelectButtonGames/spotlight/platform"

	comatproto "github.com/bluesky-social/indigo/api/atproto"
	appbsky "github.com/bluesky-social/indigo/api/bsky"
	"github.com/bluesky-social/indigo/atproto/syntax"
	lexutil "github.com/bluesky-social/indigo/lex/util"
	"github.com/bluesky-social/indigo/xrpc"
)

var _ platform.Client = (*Client)(nil)

type Client struct {
	xrpcc  *xrpc.Client
	logger *slog.Logger
}

// NewClient creates an authenticated session against the PDS. A failed login
// is fatal to the caller; nothing else works without a session.
func NewClient(ctx context.Context, host, identifier, password string, logger *slog.Logger) (*Client, error) {
	xrpcc := &xrpc.Client{
		Client: robustHTTPClient(logger),
		Host:   host,
		Auth:   &xrpc.AuthInfo{},
	}
	sess, err := comatproto.ServerCreateSession(ctx, xrpcc, &comatproto.ServerCreateSession_Input{
		Identifier: identifier,
		Password:   password,
	})
	if err != nil {
		return nil, fmt.Errorf("creating session for %s: %w", identifier, err)
	}
	xrpcc.Auth.AccessJwt = sess.AccessJwt
	xrpcc.Auth.RefreshJwt = sess.RefreshJwt
	xrpcc.Auth.Did = sess.Did
	xrpcc.Auth.Handle = sess.Handle
	return &Client{xrpcc: xrpcc, logger: logger}, nil
}

// DID returns the bot account's own identifier.
func (c *Client) DID() string {
	return c.xrpcc.Auth.Did
}

func (c *Client) FetchMentions(ctx context.Context, limit int) ([]platform.Post, error) {
	resp, err := appbsky.NotificationListNotifications(ctx, c.xrpcc, "", int64(limit), false, nil, "")
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	var out []platform.Post
	for _, notif := range resp.Notifications {
		switch notif.Reason {
		case "mention", "reply", "quote":
		default:
			continue
		}
		if notif.Record == nil {
			continue
		}
		rec, ok := notif.Record.Val.(*appbsky.FeedPost)
		if !ok {
			continue
		}
		out = append(out, platform.Post{
			URI:          notif.Uri,
			CID:          notif.Cid,
			AuthorDID:    notif.Author.Did,
			AuthorHandle: notif.Author.Handle,
			Text:         rec.Text,
			CreatedAt:    parseCreatedAt(rec.CreatedAt, notif.IndexedAt),
			Source:       "mention",
		})
	}
	return out, nil
}

func (c *Client) SearchByTerm(ctx context.Context, term string, limit int) ([]platform.Post, error) {
	resp, err := appbsky.FeedSearchPosts(ctx, c.xrpcc, "", "", "", "", int64(limit), "", term, "", "latest", nil, "", "")
	if err != nil {
		return nil, fmt.Errorf("searching posts for %q: %w", term, err)
	}
	var out []platform.Post
	for _, pv := range resp.Posts {
		if p, ok := c.fromPostView(pv, "search"); ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (c *Client) FetchTimeline(ctx context.Context, limit int) ([]platform.Post, error) {
	resp, err := appbsky.FeedGetTimeline(ctx, c.xrpcc, "reverse-chronological", "", int64(limit))
	if err != nil {
		return nil, fmt.Errorf("fetching timeline: %w", err)
	}
	var out []platform.Post
	for _, fvp := range resp.Feed {
		// skip reposts; the original will come around on its own
		if fvp.Reason != nil {
			continue
		}
		if p, ok := c.fromPostView(fvp.Post, "timeline"); ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (c *Client) fromPostView(pv *appbsky.FeedDefs_PostView, source string) (platform.Post, bool) {
	if pv == nil || pv.Record == nil || pv.Author == nil {
		return platform.Post{}, false
	}
	// never re-spotlight our own posts
	if pv.Author.Did == c.DID() {
		return platform.Post{}, false
	}
	rec, ok := pv.Record.Val.(*appbsky.FeedPost)
	if !ok {
		return platform.Post{}, false
	}
	return platform.Post{
		URI:          pv.Uri,
		CID:          pv.Cid,
		AuthorDID:    pv.Author.Did,
		AuthorHandle: pv.Author.Handle,
		Text:         rec.Text,
		CreatedAt:    parseCreatedAt(rec.CreatedAt, pv.IndexedAt),
		Source:       source,
	}, true
}

func (c *Client) Publish(ctx context.Context, text string) (*platform.PublishResult, error) {
	now := time.Now()
	resp, err := comatproto.RepoCreateRecord(ctx, c.xrpcc, &comatproto.RepoCreateRecord_Input{
		Collection: "app.bsky.feed.post",
		Repo:       c.DID(),
		Record: &lexutil.LexiconTypeDecoder{Val: &appbsky.FeedPost{
			Text:      text,
			CreatedAt: syntax.DatetimeNow().String(),
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("creating post: %w", err)
	}
	return &platform.PublishResult{URI: resp.Uri, CID: resp.Cid, CreatedAt: now}, nil
}

func (c *Client) Like(ctx context.Context, uri, cid string) error {
	_, err := comatproto.RepoCreateRecord(ctx, c.xrpcc, &comatproto.RepoCreateRecord_Input{
		Collection: "app.bsky.feed.like",
		Repo:       c.DID(),
		Record: &lexutil.LexiconTypeDecoder{Val: &appbsky.FeedLike{
			LexiconTypeID: "app.bsky.feed.like",
			CreatedAt:     syntax.DatetimeNow().String(),
			Subject:       &comatproto.RepoStrongRef{Uri: uri, Cid: cid},
		}},
	})
	if err != nil {
		return fmt.Errorf("liking %s: %w", uri, err)
	}
	return nil
}

func (c *Client) Reply(ctx context.Context, parent platform.Post, text string) error {
	ref := &comatproto.RepoStrongRef{Uri: parent.URI, Cid: parent.CID}
	_, err := comatproto.RepoCreateRecord(ctx, c.xrpcc, &comatproto.RepoCreateRecord_Input{
		Collection: "app.bsky.feed.post",
		Repo:       c.DID(),
		Record: &lexutil.LexiconTypeDecoder{Val: &appbsky.FeedPost{
			Text:      text,
			CreatedAt: syntax.DatetimeNow().String(),
			Reply: &appbsky.FeedPost_ReplyRef{
				Root:   ref,
				Parent: ref,
			},
		}},
	})
	if err != nil {
		return fmt.Errorf("replying to %s: %w", parent.URI, err)
	}
	return nil
}

func (c *Client) IsFollowing(ctx context.Context, did string) (bool, error) {
	profile, err := appbsky.ActorGetProfile(ctx, c.xrpcc, did)
	if err != nil {
		return false, fmt.Errorf("fetching profile %s: %w", did, err)
	}
	return profile.Viewer != nil && profile.Viewer.Following != nil, nil
}

func (c *Client) Follow(ctx context.Context, did string) error {
	_, err := comatproto.RepoCreateRecord(ctx, c.xrpcc, &comatproto.RepoCreateRecord_Input{
		Collection: "app.bsky.graph.follow",
		Repo:       c.DID(),
		Record: &lexutil.LexiconTypeDecoder{Val: &appbsky.GraphFollow{
			LexiconTypeID: "app.bsky.graph.follow",
			CreatedAt:     syntax.DatetimeNow().String(),
			Subject:       did,
		}},
	})
	if err != nil {
		return fmt.Errorf("following %s: %w", did, err)
	}
	return nil
}

// Unfollow looks up our follow record for the account and deletes it. A
// no-op if we aren't following.
func (c *Client) Unfollow(ctx context.Context, did string) error {
	profile, err := appbsky.ActorGetProfile(ctx, c.xrpcc, did)
	if err != nil {
		return fmt.Errorf("fetching profile %s: %w", did, err)
	}
	if profile.Viewer == nil || profile.Viewer.Following == nil {
		return nil
	}
	aturi, err := syntax.ParseATURI(*profile.Viewer.Following)
	if err != nil {
		return fmt.Errorf("invalid follow record URI %q: %w", *profile.Viewer.Following, err)
	}
	_, err = comatproto.RepoDeleteRecord(ctx, c.xrpcc, &comatproto.RepoDeleteRecord_Input{
		Collection: "app.bsky.graph.follow",
		Repo:       c.DID(),
		Rkey:       aturi.RecordKey().String(),
	})
	if err != nil {
		return fmt.Errorf("unfollowing %s: %w", did, err)
	}
	return nil
}

func (c *Client) Followers(ctx context.Context, limit int) ([]string, error) {
	resp, err := appbsky.GraphGetFollowers(ctx, c.xrpcc, c.DID(), "", int64(limit))
	if err != nil {
		return nil, fmt.Errorf("fetching followers: %w", err)
	}
	var out []string
	for _, f := range resp.Followers {
		out = append(out, f.Did)
	}
	return out, nil
}

func parseCreatedAt(createdAt, indexedAt string) time.Time {
	if t, err := syntax.ParseDatetimeTime(createdAt); err == nil {
		return t
	}
	if t, err := syntax.ParseDatetimeTime(indexedAt); err == nil {
		return t
	}
	return time.Now()
}
