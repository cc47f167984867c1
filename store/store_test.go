package store

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	db, err := SetupDatabase("sqlite://:memory:", 1)
	require.NoError(t, err)
	s, err := NewStore(db, slog.Default())
	require.NoError(t, err)
	return s
}

func TestMarkKnownIdempotent(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := testStore(t)

	known, err := s.IsKnown(ctx, "at://did:plc:abc/app.bsky.feed.post/111")
	assert.NoError(err)
	assert.False(known)

	assert.NoError(s.MarkKnown(ctx, "at://did:plc:abc/app.bsky.feed.post/111"))
	assert.NoError(s.MarkKnown(ctx, "at://did:plc:abc/app.bsky.feed.post/111"))

	known, err = s.IsKnown(ctx, "at://did:plc:abc/app.bsky.feed.post/111")
	assert.NoError(err)
	assert.True(known)

	stats, err := s.Stats(ctx)
	assert.NoError(err)
	assert.Equal(int64(1), stats.Posted)
}

func TestEnqueueIdempotent(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := testStore(t)

	entry := QueueEntry{
		URI:          "at://did:plc:abc/app.bsky.feed.post/111",
		AuthorDID:    "did:plc:abc",
		AuthorHandle: "alice.example.com",
		Text:         "I made a thing",
		DiscoveredAt: time.Now(),
	}
	assert.NoError(s.Enqueue(ctx, entry))
	assert.NoError(s.Enqueue(ctx, entry))

	stats, err := s.Stats(ctx)
	assert.NoError(err)
	assert.Equal(int64(1), stats.QueuedPending)
}

func TestPeekOldestFIFO(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := testStore(t)

	base := time.Unix(0, 0)
	for _, ts := range []int64{100, 50, 200} {
		assert.NoError(s.Enqueue(ctx, QueueEntry{
			URI:          "at://did:plc:abc/app.bsky.feed.post/" + time.Unix(ts, 0).Format("150405"),
			DiscoveredAt: base.Add(time.Duration(ts) * time.Second),
		}))
	}

	entry, err := s.PeekOldest(ctx, 0)
	assert.NoError(err)
	if assert.NotNil(entry) {
		assert.Equal(base.Add(50*time.Second).Unix(), entry.DiscoveredAt.Unix())
	}

	// peek does not remove
	again, err := s.PeekOldest(ctx, 0)
	assert.NoError(err)
	if assert.NotNil(again) {
		assert.Equal(entry.ID, again.ID)
	}
}

func TestQueueBound(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := testStore(t)
	s.MaxQueueSize = 2

	for i, uri := range []string{"at://a/p/1", "at://a/p/2", "at://a/p/3"} {
		assert.NoError(s.Enqueue(ctx, QueueEntry{URI: uri, DiscoveredAt: time.Now().Add(time.Duration(i) * time.Second)}))
	}

	stats, err := s.Stats(ctx)
	assert.NoError(err)
	assert.Equal(int64(2), stats.QueuedPending)
}

func TestRemoveAndFail(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := testStore(t)

	assert.NoError(s.Enqueue(ctx, QueueEntry{URI: "at://a/p/1", DiscoveredAt: time.Now()}))
	entry, err := s.PeekOldest(ctx, 0)
	assert.NoError(err)
	assert.NotNil(entry)

	assert.NoError(s.Remove(ctx, entry.ID))
	entry, err = s.PeekOldest(ctx, 0)
	assert.NoError(err)
	assert.Nil(entry)

	assert.NoError(s.Enqueue(ctx, QueueEntry{URI: "at://a/p/2", DiscoveredAt: time.Now()}))
	entry, err = s.PeekOldest(ctx, 0)
	assert.NoError(err)
	assert.NotNil(entry)
	assert.NoError(s.MarkFailed(ctx, entry.ID))

	// dead-lettered entries are never peeked again
	entry, err = s.PeekOldest(ctx, 0)
	assert.NoError(err)
	assert.Nil(entry)

	stats, err := s.Stats(ctx)
	assert.NoError(err)
	assert.Equal(int64(0), stats.QueuedPending)
	assert.Equal(int64(1), stats.QueuedFailed)
}

func TestBackoffWindow(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := testStore(t)

	assert.NoError(s.Enqueue(ctx, QueueEntry{URI: "at://a/p/1", DiscoveredAt: time.Now()}))
	entry, err := s.PeekOldest(ctx, time.Minute)
	assert.NoError(err)
	assert.NotNil(entry)

	assert.NoError(s.MarkAttempt(ctx, entry.ID))

	// freshly failed entry sits out its backoff window
	entry, err = s.PeekOldest(ctx, time.Minute)
	assert.NoError(err)
	assert.Nil(entry)

	// with no backoff configured it is immediately eligible again
	entry, err = s.PeekOldest(ctx, 0)
	assert.NoError(err)
	if assert.NotNil(entry) {
		assert.Equal(1, entry.Attempts)
	}
}

func TestAccountColumnMapping(t *testing.T) {
	assert := assert.New(t)
	s := testStore(t)

	// the raw queries in IsFollowed/IsBlocked depend on these exact
	// column names; gorm's default naming would mangle DID to "d_id"
	assert.True(s.db.Migrator().HasColumn(&FollowRecord{}, "did"))
	assert.True(s.db.Migrator().HasColumn(&BlockRecord{}, "did"))
	assert.True(s.db.Migrator().HasColumn(&QueueEntry{}, "cid"))
	assert.True(s.db.Migrator().HasColumn(&QueueEntry{}, "author_did"))
}

func TestFollowAndBlockRecords(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := testStore(t)

	followed, err := s.IsFollowed(ctx, "did:plc:abc")
	assert.NoError(err)
	assert.False(followed)

	assert.NoError(s.MarkFollowed(ctx, "did:plc:abc"))
	assert.NoError(s.MarkFollowed(ctx, "did:plc:abc"))
	followed, err = s.IsFollowed(ctx, "did:plc:abc")
	assert.NoError(err)
	assert.True(followed)

	blocked, err := s.IsBlocked(ctx, "did:plc:xyz")
	assert.NoError(err)
	assert.False(blocked)

	assert.NoError(s.Block(ctx, "did:plc:xyz", "bob.example.com", "requested"))
	assert.NoError(s.Block(ctx, "did:plc:xyz", "bob.example.com", "requested"))
	blocked, err = s.IsBlocked(ctx, "did:plc:xyz")
	assert.NoError(err)
	assert.True(blocked)

	stats, err := s.Stats(ctx)
	assert.NoError(err)
	assert.Equal(int64(1), stats.Followed)
	assert.Equal(int64(1), stats.Blocked)
}

func TestUnblock(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := testStore(t)

	// unblocking an account that was never blocked is a no-op
	assert.NoError(s.Unblock(ctx, "did:plc:xyz"))

	assert.NoError(s.Block(ctx, "did:plc:xyz", "bob.example.com", "requested"))
	assert.NoError(s.Unblock(ctx, "did:plc:xyz"))

	blocked, err := s.IsBlocked(ctx, "did:plc:xyz")
	assert.NoError(err)
	assert.False(blocked)

	stats, err := s.Stats(ctx)
	assert.NoError(err)
	assert.Equal(int64(0), stats.Blocked)
}
