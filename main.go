// Newsbrief is the daily news digest service.
//
// It scrapes articles from the configured news site, summarizes them,
// assembles them into downloadable digests, and mails those digests to
// subscribers on their own daily schedules.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/jmoiron/sqlx"
	"github.com/sethvargo/go-envconfig"
	_ "golang.org/x/crypto/x509roots/fallback"
	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"

	"github.com/rpatel/newsbrief/internal/api"
	"github.com/rpatel/newsbrief/internal/assemble"
	"github.com/rpatel/newsbrief/internal/cache"
	"github.com/rpatel/newsbrief/internal/digest"
	"github.com/rpatel/newsbrief/internal/dispatch"
	"github.com/rpatel/newsbrief/internal/migrations"
	"github.com/rpatel/newsbrief/internal/pipeline"
	"github.com/rpatel/newsbrief/internal/schedule"
	"github.com/rpatel/newsbrief/internal/source"
	"github.com/rpatel/newsbrief/internal/sqlite"
	"github.com/rpatel/newsbrief/internal/summarize"
	"github.com/rpatel/newsbrief/logger"
)

type config struct {
	Port     int    `env:"PORT, default=4444"`
	Database string `env:"DATABASE, required"`

	SourceURL  string        `env:"SOURCE_URL, default=https://indianexpress.com"`
	FetchDelay time.Duration `env:"FETCH_DELAY, default=500ms"`

	// AnthropicAPIKey enables the remote summarizer. Without it, every
	// digest uses the local extractive backend.
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`

	SMTPHost     string `env:"SMTP_HOST, required"`
	SMTPPort     int    `env:"SMTP_PORT, default=587"`
	SMTPUsername string `env:"SMTP_USERNAME, required"`
	SMTPPassword string `env:"SMTP_PASSWORD, required"`
	SMTPFrom     string `env:"SMTP_FROM, required"`

	ArtifactDir         string        `env:"ARTIFACT_DIR, default=./artifacts"`
	ArticlesPerCategory int           `env:"ARTICLES_PER_CATEGORY, default=10"`
	CacheRetention      time.Duration `env:"CACHE_RETENTION, default=96h"`
	DeliveryConcurrency int           `env:"DELIVERY_CONCURRENCY, default=4"`

	// Timezone delivery times-of-day are interpreted in.
	Timezone string `env:"TIMEZONE, default=Asia/Kolkata"`

	CorsOrigin string `env:"CORS_ORIGIN, default=*"`

	// Which format to use for logging: either text or json
	LoggerFormat string `env:"LOGGER_FORMAT, default=text"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	// Parse the config
	var cfg config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		log.Fatalf("error parsing config: %s", err)
	}

	// Determine which logger format to use
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, nil)
	if cfg.LoggerFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, nil)
	}
	l := slog.New(logger.NewContextHandler(handler))
	slog.SetDefault(l)

	// Start the application
	if err := run(ctx, cfg); err != nil {
		slog.Error("error running", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config) error {
	slog.Info("running", "port", cfg.Port, "source", cfg.SourceURL)

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return fmt.Errorf("error loading timezone: %s", err)
	}

	// Connect to the db
	dbx, err := sqlx.Open("sqlite", fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000", cfg.Database))
	if err != nil {
		return fmt.Errorf("error opening database: %s", err)
	}

	// Migrate, always
	if err := migrations.Run(dbx); err != nil {
		return fmt.Errorf("error migrating: %s", err)
	}

	repo := sqlite.New(dbx)

	src, err := source.New(source.Config{
		BaseURL:    cfg.SourceURL,
		FetchDelay: cfg.FetchDelay,
	})
	if err != nil {
		return fmt.Errorf("error creating source client: %s", err)
	}

	var remote digest.Summarizer
	if cfg.AnthropicAPIKey != "" {
		remote = summarize.NewClaude(anthropic.NewClient(option.WithAPIKey(cfg.AnthropicAPIKey)))
	} else {
		slog.Warn("no anthropic api key configured, summarizing locally")
	}
	newSummarizer := summarize.Factory(remote, summarize.NewExtractive())

	articleCache := cache.New(repo, cfg.CacheRetention)

	pipe := pipeline.New(pipeline.Deps{
		Source:        src,
		Cache:         articleCache,
		NewSummarizer: newSummarizer,
	})

	if err := os.MkdirAll(cfg.ArtifactDir, 0o755); err != nil {
		return fmt.Errorf("error creating artifact dir: %s", err)
	}
	assembler := assemble.New(assemble.NewHTMLRenderer(), repo, cfg.ArtifactDir)

	mailer, err := dispatch.NewSMTP(dispatch.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	})
	if err != nil {
		return fmt.Errorf("error creating mailer: %s", err)
	}

	scheduler := schedule.New(repo, pipe, assembler, mailer, schedule.Config{
		ArticlesPerCategory: cfg.ArticlesPerCategory,
		Concurrency:         cfg.DeliveryConcurrency,
		Location:            loc,
	})

	s := api.NewServer(api.ServerConfig{
		Port:         cfg.Port,
		CorsOrigin:   cfg.CorsOrigin,
		DefaultCount: cfg.ArticlesPerCategory,
	}, repo, pipe, assembler, mailer, scheduler)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Start the server
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("error listening: %s", err)
		}

		return nil
	})
	g.Go(func() error {
		// Block from shutting down until the group is canceled
		<-gCtx.Done()

		downCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.Shutdown(downCtx); err != nil {
			slog.Error("error shutting down server", "error", err)
		}

		return nil
	})

	g.Go(func() error {
		// Start the delivery scheduler
		if err := scheduler.Start(gCtx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("error running scheduler: %s", err)
		}

		return nil
	})

	g.Go(func() error {
		// Sweep stale cache entries in the background
		if err := articleCache.Janitor(gCtx, time.Hour); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("error running cache janitor: %s", err)
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("error running: %s", err)
	}

	return nil
}
