// Package store persists the bot's dedup state, follow/block records, and
// the submission queue behind a narrow repository interface.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const membershipCacheSize = 20_000

type Store struct {
	db     *gorm.DB
	logger *slog.Logger

	// MaxQueueSize bounds the queue; 0 means unbounded. Enqueue past the
	// bound drops the candidate with a warning, not an error.
	MaxQueueSize int

	// read-through caches for the hot membership checks; safe because this
	// process is the only writer
	known    *lru.Cache[string, bool]
	followed *lru.Cache[string, bool]
}

func NewStore(db *gorm.DB, logger *slog.Logger) (*Store, error) {
	if err := db.AutoMigrate(&PostedRecord{}, &FollowRecord{}, &BlockRecord{}, &QueueEntry{}); err != nil {
		return nil, fmt.Errorf("migrating tables: %w", err)
	}
	known, err := lru.New[string, bool](membershipCacheSize)
	if err != nil {
		return nil, err
	}
	followed, err := lru.New[string, bool](membershipCacheSize)
	if err != nil {
		return nil, err
	}
	return &Store{
		db:       db,
		logger:   logger,
		known:    known,
		followed: followed,
	}, nil
}

// IsKnown reports whether a content URI has been evaluated or queued before.
func (s *Store) IsKnown(ctx context.Context, uri string) (bool, error) {
	if v, ok := s.known.Get(uri); ok && v {
		return true, nil
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&PostedRecord{}).Where("uri = ?", uri).Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		s.known.Add(uri, true)
	}
	return count > 0, nil
}

// MarkKnown records a content URI. Repeated calls are no-ops.
func (s *Store) MarkKnown(ctx context.Context, uri string) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&PostedRecord{URI: uri}).Error
	if err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) {
		return err
	}
	s.known.Add(uri, true)
	return nil
}

func (s *Store) IsFollowed(ctx context.Context, did string) (bool, error) {
	if v, ok := s.followed.Get(did); ok && v {
		return true, nil
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&FollowRecord{}).Where("did = ?", did).Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		s.followed.Add(did, true)
	}
	return count > 0, nil
}

func (s *Store) MarkFollowed(ctx context.Context, did string) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&FollowRecord{DID: did}).Error
	if err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) {
		return err
	}
	s.followed.Add(did, true)
	return nil
}

func (s *Store) IsBlocked(ctx context.Context, did string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&BlockRecord{}).Where("did = ?", did).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Block records an opt-out. Idempotent; the first reason recorded wins.
func (s *Store) Block(ctx context.Context, did, handle, reason string) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&BlockRecord{DID: did, Handle: handle, Reason: reason}).Error
	if err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) {
		return err
	}
	return nil
}

// Unblock removes an opt-out record so the account's content can be
// processed again. No-op if the account isn't blocked.
func (s *Store) Unblock(ctx context.Context, did string) error {
	return s.db.WithContext(ctx).Where("did = ?", did).Delete(&BlockRecord{}).Error
}

// Enqueue inserts a queue entry unless one already exists for the content
// URI. Past MaxQueueSize new candidates are dropped with a warning.
func (s *Store) Enqueue(ctx context.Context, entry QueueEntry) error {
	if s.MaxQueueSize > 0 {
		var depth int64
		if err := s.db.WithContext(ctx).Model(&QueueEntry{}).Where("status = ?", QueueStatusPending).Count(&depth).Error; err != nil {
			return err
		}
		if depth >= int64(s.MaxQueueSize) {
			s.logger.Warn("submission queue full, dropping candidate", "uri", entry.URI, "depth", depth)
			return nil
		}
	}
	if entry.Status == "" {
		entry.Status = QueueStatusPending
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&entry).Error
	if err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) {
		return err
	}
	return nil
}

// PeekOldest returns the oldest pending entry without removing it, or nil if
// the queue is empty. An entry inside its retry backoff window blocks the
// head of the queue (publishing stays strictly FIFO), so nil is returned
// until the window elapses. Backoff doubles per attempt from backoffBase,
// capped at one hour; backoffBase <= 0 disables backoff.
func (s *Store) PeekOldest(ctx context.Context, backoffBase time.Duration) (*QueueEntry, error) {
	var entry QueueEntry
	err := s.db.WithContext(ctx).
		Where("status = ?", QueueStatusPending).
		Order("discovered_at asc").
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if backoffBase > 0 && entry.Attempts > 0 && entry.LastAttemptAt != nil {
		wait := backoffBase << (entry.Attempts - 1)
		if wait > time.Hour || wait <= 0 {
			wait = time.Hour
		}
		if time.Since(*entry.LastAttemptAt) < wait {
			return nil, nil
		}
	}
	return &entry, nil
}

// Remove deletes a queue entry after successful publication.
func (s *Store) Remove(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Delete(&QueueEntry{}, id).Error
}

// MarkAttempt bumps the attempt counter after a failed publication.
func (s *Store) MarkAttempt(ctx context.Context, id uint) error {
	now := time.Now()
	return s.db.WithContext(ctx).Model(&QueueEntry{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"attempts":        gorm.Expr("attempts + 1"),
			"last_attempt_at": &now,
		}).Error
}

// MarkFailed moves an entry to the dead-letter state; it stays visible in
// stats but is never retried.
func (s *Store) MarkFailed(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Model(&QueueEntry{}).Where("id = ?", id).
		Update("status", QueueStatusFailed).Error
}

type Stats struct {
	QueuedPending int64
	QueuedFailed  int64
	Posted        int64
	Followed      int64
	Blocked       int64
}

func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	var out Stats
	db := s.db.WithContext(ctx)
	if err := db.Model(&QueueEntry{}).Where("status = ?", QueueStatusPending).Count(&out.QueuedPending).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&QueueEntry{}).Where("status = ?", QueueStatusFailed).Count(&out.QueuedFailed).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&PostedRecord{}).Count(&out.Posted).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&FollowRecord{}).Count(&out.Followed).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&BlockRecord{}).Count(&out.Blocked).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

// Close flushes and closes the underlying connection.
func (s *Store) Close() error {
	sqldb, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqldb.Close()
}
