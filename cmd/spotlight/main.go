// spotlight is a Bluesky bot that watches for community self-promotion
// posts, queues the good ones, and periodically re-posts a templated
// spotlight crediting the author.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/AjaxSelectButtonGames/spotlight/classify"
	"github.com/AjaxSelectButtonGames/spotlight/engine"
	"github.com/AjaxSelectButtonGames/spotlight/platform/bsky"
	"github.com/AjaxSelectButtonGames/spotlight/store"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "spotlight",
		Usage:   "bluesky community self-promotion spotlight bot",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "pds-host",
			Usage:   "method, hostname, and port of PDS instance",
			Value:   "https://bsky.social",
			EnvVars: []string{"ATP_PDS_HOST"},
		},
		&cli.StringFlag{
			Name:    "handle",
			Usage:   "handle of the bot account",
			EnvVars: []string{"SPOTLIGHT_HANDLE"},
		},
		&cli.StringFlag{
			Name:    "password",
			Usage:   "app password for the bot account",
			EnvVars: []string{"SPOTLIGHT_PASSWORD"},
		},
		&cli.StringFlag{
			Name:    "database-url",
			Value:   "sqlite://data/spotlight/bot.db",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.StringFlag{
			Name:    "rules-file",
			Usage:   "JSON file overriding the default classifier keyword tables",
			EnvVars: []string{"SPOTLIGHT_RULES_FILE"},
		},
	}

	app.Commands = []*cli.Command{
		runCmd,
		statsCmd,
		checkCmd,
		unblockCmd,
	}
	return app.Run(args)
}

func configLogger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)
	return logger
}

func loadRules(cctx *cli.Context) (*classify.RuleSet, error) {
	rules := classify.DefaultRuleSet()
	if path := cctx.String("rules-file"); path != "" {
		if err := rules.LoadFromFileJSON(path); err != nil {
			return nil, fmt.Errorf("loading rules file: %w", err)
		}
	}
	return rules, nil
}

func openStore(cctx *cli.Context, logger *slog.Logger) (*store.Store, error) {
	db, err := store.SetupDatabase(cctx.String("database-url"), 40)
	if err != nil {
		return nil, err
	}
	return store.NewStore(db, logger)
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "run the bot",
	Flags: []cli.Flag{
		&cli.StringSliceFlag{
			Name:    "search-term",
			Usage:   "search query for the keyword discovery source (repeatable)",
			Value:   cli.NewStringSlice("#buildinpublic", "#spotlightme"),
			EnvVars: []string{"SPOTLIGHT_SEARCH_TERMS"},
		},
		&cli.DurationFlag{
			Name:    "mention-interval",
			Value:   time.Minute,
			EnvVars: []string{"SPOTLIGHT_MENTION_INTERVAL"},
		},
		&cli.DurationFlag{
			Name:    "search-interval",
			Value:   2 * time.Minute,
			EnvVars: []string{"SPOTLIGHT_SEARCH_INTERVAL"},
		},
		&cli.DurationFlag{
			Name:    "timeline-interval",
			Value:   5 * time.Minute,
			EnvVars: []string{"SPOTLIGHT_TIMELINE_INTERVAL"},
		},
		&cli.DurationFlag{
			Name:    "publish-interval",
			Value:   10 * time.Minute,
			EnvVars: []string{"SPOTLIGHT_PUBLISH_INTERVAL"},
		},
		&cli.DurationFlag{
			Name:    "followback-interval",
			Value:   30 * time.Minute,
			EnvVars: []string{"SPOTLIGHT_FOLLOWBACK_INTERVAL"},
		},
		&cli.BoolFlag{
			Name:    "no-mentions",
			Usage:   "disable the mention discovery source",
			EnvVars: []string{"SPOTLIGHT_NO_MENTIONS"},
		},
		&cli.BoolFlag{
			Name:    "no-search",
			Usage:   "disable the keyword search discovery source",
			EnvVars: []string{"SPOTLIGHT_NO_SEARCH"},
		},
		&cli.BoolFlag{
			Name:    "no-timeline",
			Usage:   "disable the followed-accounts timeline discovery source",
			EnvVars: []string{"SPOTLIGHT_NO_TIMELINE"},
		},
		&cli.BoolFlag{
			Name:    "no-followback",
			Usage:   "disable reciprocal follows",
			EnvVars: []string{"SPOTLIGHT_NO_FOLLOWBACK"},
		},
		&cli.IntFlag{
			Name:    "fetch-limit",
			Value:   50,
			EnvVars: []string{"SPOTLIGHT_FETCH_LIMIT"},
		},
		&cli.IntFlag{
			Name:    "max-queue-size",
			Usage:   "bound on pending queue entries; 0 is unbounded",
			Value:   500,
			EnvVars: []string{"SPOTLIGHT_MAX_QUEUE_SIZE"},
		},
		&cli.IntFlag{
			Name:    "max-publish-attempts",
			Usage:   "dead-letter a queue entry after this many failed publishes; 0 retries forever",
			Value:   10,
			EnvVars: []string{"SPOTLIGHT_MAX_PUBLISH_ATTEMPTS"},
		},
		&cli.DurationFlag{
			Name:    "publish-backoff",
			Usage:   "first retry delay after a failed publish, doubling per attempt",
			Value:   time.Minute,
			EnvVars: []string{"SPOTLIGHT_PUBLISH_BACKOFF"},
		},
		&cli.IntFlag{
			Name:    "char-limit",
			Value:   300,
			EnvVars: []string{"SPOTLIGHT_CHAR_LIMIT"},
		},
		&cli.StringFlag{
			Name:    "closing-tag",
			Value:   "#CommunitySpotlight",
			EnvVars: []string{"SPOTLIGHT_CLOSING_TAG"},
		},
		&cli.BoolFlag{
			Name:    "reply-notify",
			Usage:   "reply on the original post after a successful spotlight",
			EnvVars: []string{"SPOTLIGHT_REPLY_NOTIFY"},
		},
		&cli.StringFlag{
			Name:    "webhook-url",
			Usage:   "site bridge endpoint notified of accepted candidates",
			EnvVars: []string{"SPOTLIGHT_WEBHOOK_URL"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics",
			Value:   ":3989",
			EnvVars: []string{"SPOTLIGHT_METRICS_LISTEN"},
		},
	},
	Action: func(cctx *cli.Context) error {
		logger := configLogger()

		// Enable OTLP HTTP exporter.
		// For relevant environment variables:
		// https://pkg.go.dev/go.opentelemetry.io/otel/exporters/otlp/otlptrace#readme-environment-variables
		if ep := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); ep != "" {
			logger.Info("setting up trace exporter", "endpoint", ep)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			exp, err := otlptracehttp.New(ctx)
			if err != nil {
				return fmt.Errorf("creating trace exporter: %w", err)
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				if err := exp.Shutdown(ctx); err != nil {
					logger.Error("failed to shutdown trace exporter", "err", err)
				}
			}()

			tp := tracesdk.NewTracerProvider(
				tracesdk.WithBatcher(exp),
				tracesdk.WithResource(resource.NewWithAttributes(
					semconv.SchemaURL,
					semconv.ServiceNameKey.String("spotlight"),
					attribute.String("env", os.Getenv("ENVIRONMENT")),
				)),
			)
			otel.SetTracerProvider(tp)
		}

		rules, err := loadRules(cctx)
		if err != nil {
			return err
		}

		st, err := openStore(cctx, logger)
		if err != nil {
			return err
		}
		st.MaxQueueSize = cctx.Int("max-queue-size")

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		// auth failure here is fatal: no timers get scheduled
		client, err := bsky.NewClient(ctx, cctx.String("pds-host"), cctx.String("handle"), cctx.String("password"), logger)
		if err != nil {
			st.Close()
			return err
		}
		logger.Info("session created", "did", client.DID(), "pds", cctx.String("pds-host"))

		e := engine.New(st, client, rules, engine.Config{
			SearchTerms:        cctx.StringSlice("search-term"),
			MentionInterval:    cctx.Duration("mention-interval"),
			SearchInterval:     cctx.Duration("search-interval"),
			TimelineInterval:   cctx.Duration("timeline-interval"),
			PublishInterval:    cctx.Duration("publish-interval"),
			FollowBackInterval: cctx.Duration("followback-interval"),
			EnableMentions:     !cctx.Bool("no-mentions"),
			EnableSearch:       !cctx.Bool("no-search"),
			EnableTimeline:     !cctx.Bool("no-timeline"),
			EnableFollowBack:   !cctx.Bool("no-followback"),
			FetchLimit:         cctx.Int("fetch-limit"),
			MaxPublishAttempts: cctx.Int("max-publish-attempts"),
			PublishBackoffBase: cctx.Duration("publish-backoff"),
			CharLimit:          cctx.Int("char-limit"),
			ClosingTag:         cctx.String("closing-tag"),
			ReplyNotify:        cctx.Bool("reply-notify"),
			WebhookURL:         cctx.String("webhook-url"),
			Logger:             logger,
		})

		go func() {
			if err := e.RunMetrics(cctx.String("metrics-listen")); err != nil {
				logger.Error("failed to start metrics endpoint", "err", err)
			}
		}()

		runErr := e.Run(ctx)

		// final stats dump before closing up
		dumpCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if stats, err := st.Stats(dumpCtx); err == nil {
			logger.Info("shutting down",
				"queued", stats.QueuedPending,
				"failed", stats.QueuedFailed,
				"posted", stats.Posted,
				"followed", stats.Followed,
				"blocked", stats.Blocked,
			)
		}
		if err := st.Close(); err != nil {
			logger.Error("failed to close store", "err", err)
		}
		return runErr
	},
}

var statsCmd = &cli.Command{
	Name:  "stats",
	Usage: "print store counts and exit",
	Action: func(cctx *cli.Context) error {
		logger := configLogger()
		st, err := openStore(cctx, logger)
		if err != nil {
			return err
		}
		defer st.Close()

		stats, err := st.Stats(cctx.Context)
		if err != nil {
			return err
		}
		fmt.Printf("queued (pending): %d\n", stats.QueuedPending)
		fmt.Printf("queued (failed):  %d\n", stats.QueuedFailed)
		fmt.Printf("posted:           %d\n", stats.Posted)
		fmt.Printf("followed:         %d\n", stats.Followed)
		fmt.Printf("blocked:          %d\n", stats.Blocked)
		return nil
	},
}

var unblockCmd = &cli.Command{
	Name:      "unblock",
	Usage:     "remove an account's opt-out record so its content is processed again",
	ArgsUsage: `<did>`,
	Action: func(cctx *cli.Context) error {
		logger := configLogger()
		did := cctx.Args().First()
		if did == "" {
			return fmt.Errorf("account DID is required")
		}
		st, err := openStore(cctx, logger)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Unblock(cctx.Context, did); err != nil {
			return err
		}
		logger.Info("unblocked account", "did", did)
		return nil
	},
}

var checkCmd = &cli.Command{
	Name:      "check",
	Usage:     "classify a text and print the verdict",
	ArgsUsage: `<text>`,
	Action: func(cctx *cli.Context) error {
		rules, err := loadRules(cctx)
		if err != nil {
			return err
		}
		text := strings.Join(cctx.Args().Slice(), " ")
		d := rules.Evaluate(text)
		if d.Accept {
			fmt.Printf("accept (%s)\n", d.Rule)
		} else {
			fmt.Printf("reject (%s)\n", d.Rule)
		}
		return nil
	},
}
