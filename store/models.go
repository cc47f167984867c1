package store

import "time"

// PostedRecord marks a content URI as already evaluated or published, so
// repeated discovery passes never reprocess it. Rows are never deleted.
type PostedRecord struct {
	ID        uint   `gorm:"primarykey"`
	URI       string `gorm:"uniqueIndex;not null"`
	CreatedAt time.Time
}

// FollowRecord marks an account the bot has a confirmed follow for.
type FollowRecord struct {
	ID uint `gorm:"primarykey"`
	// gorm would otherwise map DID to "d_id"
	DID       string `gorm:"column:did;uniqueIndex;not null"`
	CreatedAt time.Time
}

// BlockRecord marks an account that opted out. Its content is never
// processed again and any existing follow gets removed.
type BlockRecord struct {
	ID        uint   `gorm:"primarykey"`
	DID       string `gorm:"column:did;uniqueIndex;not null"`
	Handle    string
	Reason    string
	CreatedAt time.Time
}

const (
	QueueStatusPending = "pending"
	QueueStatusFailed  = "failed"
)

// QueueEntry is an accepted candidate awaiting publication. At most one
// entry exists per content URI; publishing order is FIFO by DiscoveredAt.
type QueueEntry struct {
	ID            uint   `gorm:"primarykey"`
	URI           string `gorm:"uniqueIndex;not null"`
	CID           string `gorm:"column:cid"`
	AuthorDID     string `gorm:"column:author_did"`
	AuthorHandle  string
	Text          string
	Source        string
	DiscoveredAt  time.Time `gorm:"index"`
	Attempts      int
	LastAttemptAt *time.Time
	Status        string `gorm:"index;default:pending"`
	CreatedAt     time.Time
}
