// Package engine wires discovery, classification, the submission queue, and
// publishing together, driven by independent periodic timers.
package engine

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/AjaxSelectButtonGames/spotlight/classify"
	"github.com/AjaxSelectButtonGames/spotlight/platform"
	"github.com/AjaxSelectButtonGames/spotlight/store"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

type Config struct {
	SearchTerms   []string
	OptOutPhrases []string

	MentionInterval    time.Duration
	SearchInterval     time.Duration
	TimelineInterval   time.Duration
	PublishInterval    time.Duration
	FollowBackInterval time.Duration

	EnableMentions   bool
	EnableSearch     bool
	EnableTimeline   bool
	EnableFollowBack bool

	FetchLimit int

	// MaxPublishAttempts dead-letters a queue entry after this many failed
	// publishes; 0 retries forever.
	MaxPublishAttempts int
	// PublishBackoffBase is the first retry delay, doubling per attempt.
	PublishBackoffBase time.Duration

	// CharLimit is the platform's total message budget.
	CharLimit  int
	ClosingTag string
	// ReplyNotify posts a short reply on the original post after a
	// successful spotlight.
	ReplyNotify bool

	WebhookURL string

	Logger *slog.Logger
}

type Engine struct {
	logger  *slog.Logger
	store   *store.Store
	client  platform.Client
	rules   *classify.RuleSet
	cfg     Config
	limiter *rate.Limiter

	webhookClient *http.Client

	mentionsLk   sync.Mutex
	searchLk     sync.Mutex
	timelineLk   sync.Mutex
	publishLk    sync.Mutex
	followBackLk sync.Mutex
}

func New(st *store.Store, client platform.Client, rules *classify.RuleSet, cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MentionInterval == 0 {
		cfg.MentionInterval = time.Minute
	}
	if cfg.SearchInterval == 0 {
		cfg.SearchInterval = 2 * time.Minute
	}
	if cfg.TimelineInterval == 0 {
		cfg.TimelineInterval = 5 * time.Minute
	}
	if cfg.PublishInterval == 0 {
		cfg.PublishInterval = 10 * time.Minute
	}
	if cfg.FollowBackInterval == 0 {
		cfg.FollowBackInterval = 30 * time.Minute
	}
	if cfg.FetchLimit == 0 {
		cfg.FetchLimit = 50
	}
	if cfg.CharLimit == 0 {
		cfg.CharLimit = 300
	}
	if len(cfg.OptOutPhrases) == 0 {
		cfg.OptOutPhrases = []string{"opt out", "optout", "unsubscribe", "stop featuring"}
	}
	return &Engine{
		logger: logger,
		store:  st,
		client: client,
		rules:  rules,
		cfg:    cfg,
		// courtesy delay between per-candidate API calls
		limiter:       rate.NewLimiter(rate.Every(2*time.Second), 1),
		webhookClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Run starts the enabled timer loops and blocks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)
	if e.cfg.EnableMentions {
		eg.Go(func() error {
			return e.runLoop(ctx, "mentions", e.cfg.MentionInterval, &e.mentionsLk, e.scanMentions)
		})
	}
	if e.cfg.EnableSearch {
		eg.Go(func() error {
			return e.runLoop(ctx, "search", e.cfg.SearchInterval, &e.searchLk, e.scanSearch)
		})
	}
	if e.cfg.EnableTimeline {
		eg.Go(func() error {
			return e.runLoop(ctx, "timeline", e.cfg.TimelineInterval, &e.timelineLk, e.scanTimeline)
		})
	}
	if e.cfg.EnableFollowBack {
		eg.Go(func() error {
			return e.runLoop(ctx, "followback", e.cfg.FollowBackInterval, &e.followBackLk, e.scanFollowBack)
		})
	}
	eg.Go(func() error {
		return e.runLoop(ctx, "publish", e.cfg.PublishInterval, &e.publishLk, e.PublishNext)
	})
	e.logger.Info("engine started",
		"mentions", e.cfg.EnableMentions,
		"search", e.cfg.EnableSearch,
		"timeline", e.cfg.EnableTimeline,
		"followback", e.cfg.EnableFollowBack,
		"publishInterval", e.cfg.PublishInterval,
	)
	return eg.Wait()
}

// runLoop ticks fn at the given interval. Timers share session and store
// state, so a pass that outlives its interval is not run concurrently with
// itself: the tick is skipped and counted instead.
func (e *Engine) runLoop(ctx context.Context, name string, interval time.Duration, lk *sync.Mutex, fn func(context.Context) error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !lk.TryLock() {
				ticksSkipped.WithLabelValues(name).Inc()
				e.logger.Warn("previous pass still running, skipping tick", "loop", name)
				continue
			}
			lctx, span := tracer.Start(ctx, name)
			if err := fn(lctx); err != nil {
				e.logger.Error("pass failed", "loop", name, "err", err)
			}
			span.End()
			lk.Unlock()
		}
	}
}
