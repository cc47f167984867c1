// Package platform defines the narrow interfaces the bot needs from the
// social platform, keeping the engine independent of any one SDK.
package platform

import (
	"context"
	"fmt"
	"time"

	"github.com/bluesky-social/indigo/atproto/syntax"
)

// Post is a candidate piece of content fetched from a discovery source.
type Post struct {
	URI          string
	CID          string
	AuthorDID    string
	AuthorHandle string
	Text         string
	CreatedAt    time.Time
	// Source labels which discovery path found the post ("mention",
	// "search", "timeline").
	Source string
}

type PublishResult struct {
	URI       string
	CID       string
	CreatedAt time.Time
}

// Source produces candidate posts.
type Source interface {
	FetchMentions(ctx context.Context, limit int) ([]Post, error)
	SearchByTerm(ctx context.Context, term string, limit int) ([]Post, error)
	FetchTimeline(ctx context.Context, limit int) ([]Post, error)
}

// Publisher emits content as the bot account.
type Publisher interface {
	Publish(ctx context.Context, text string) (*PublishResult, error)
	Like(ctx context.Context, uri, cid string) error
	Reply(ctx context.Context, parent Post, text string) error
}

// Graph manages follow relationships.
type Graph interface {
	IsFollowing(ctx context.Context, did string) (bool, error)
	Follow(ctx context.Context, did string) error
	Unfollow(ctx context.Context, did string) error
	Followers(ctx context.Context, limit int) ([]string, error)
}

// Client is the full platform surface.
type Client interface {
	Source
	Publisher
	Graph
}

// PostWebURL converts an AT-URI plus handle into the public web URL for a
// post. Returns empty string if the URI doesn't parse as a record URI.
func PostWebURL(handle, uri string) string {
	aturi, err := syntax.ParseATURI(uri)
	if err != nil {
		return ""
	}
	rkey := aturi.RecordKey().String()
	if handle == "" || rkey == "" {
		return ""
	}
	return fmt.Sprintf("https://bsky.app/profile/%s/post/%s", handle, rkey)
}
