// Package schedule owns recurring daily delivery: deciding which
// subscribers are due, claiming the day's delivery record, and driving
// pipeline, assembly, and dispatch for each claim.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rpatel/newsbrief/internal/digest"
	nberrs "github.com/rpatel/newsbrief/internal/errors"
	"github.com/rpatel/newsbrief/logger"
)

type (
	// Store is the slice of persistence the scheduler needs.
	Store interface {
		ActiveSubscribers(ctx context.Context) ([]digest.Subscriber, error)
		Subscriber(ctx context.Context, id string) (digest.Subscriber, error)
		ClaimDelivery(ctx context.Context, subscriberID, day string) (digest.DeliveryRecord, error)
		ResolveDelivery(ctx context.Context, id string, status digest.DeliveryStatus, detail string) error
		PendingDeliveries(ctx context.Context, day string) ([]digest.DeliveryRecord, error)
	}

	// Runner generates a document for a set of categories.
	Runner interface {
		Run(ctx context.Context, categories []digest.Category, perCategory int) (digest.Document, error)
	}

	// Assembler renders a document into a downloadable artifact.
	Assembler interface {
		Assemble(ctx context.Context, doc digest.Document) (digest.Artifact, error)
	}

	// Scheduler runs the per-subscriber daily state machine off a
	// single wall-clock tick. The UNIQUE(subscriber, day) claim in the
	// store is the only cross-subscriber invariant: however many ticks
	// fire before a run resolves, exactly one record per day exists.
	Scheduler struct {
		store     Store
		pipeline  Runner
		assembler Assembler
		mailer    digest.Mailer

		perCategory int
		concurrency int
		tick        time.Duration
		loc         *time.Location
		now         func() time.Time
	}

	Config struct {
		// ArticlesPerCategory for scheduled digests.
		ArticlesPerCategory int
		// Concurrency bounds how many subscriber runs happen at once.
		Concurrency int
		// Tick is how often due-ness is checked. Defaults to a minute.
		Tick time.Duration
		// Location delivery times-of-day are interpreted in.
		Location *time.Location
	}
)

func New(store Store, pipeline Runner, assembler Assembler, mailer digest.Mailer, cfg Config) *Scheduler {
	if cfg.ArticlesPerCategory <= 0 {
		cfg.ArticlesPerCategory = 10
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Tick <= 0 {
		cfg.Tick = time.Minute
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	return &Scheduler{
		store:       store,
		pipeline:    pipeline,
		assembler:   assembler,
		mailer:      mailer,
		perCategory: cfg.ArticlesPerCategory,
		concurrency: cfg.Concurrency,
		tick:        cfg.Tick,
		loc:         cfg.Location,
		now:         time.Now,
	}
}

// Start resumes any deliveries interrupted by a restart, then ticks
// until ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.resumePending(ctx); err != nil {
		slog.ErrorContext(ctx, "error resuming pending deliveries", "error", err)
	}

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	slog.InfoContext(ctx, "scheduler started", "tick", s.tick)

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep claims and runs every subscriber currently due. Safe to call
// from overlapping ticks: the claim makes re-processing impossible.
func (s *Scheduler) Sweep(ctx context.Context) {
	now := s.now().In(s.loc)
	day := now.Format("2006-01-02")

	subs, err := s.store.ActiveSubscribers(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "error listing active subscribers", "error", err)
		return
	}

	g := &errgroup.Group{}
	g.SetLimit(s.concurrency)

	for _, sub := range subs {
		sub := sub
		if !due(sub, now) {
			continue
		}

		rec, err := s.store.ClaimDelivery(ctx, sub.ID, day)
		if errors.Is(err, digest.ErrConflict) {
			// Already claimed or resolved today.
			continue
		}
		if err != nil {
			slog.ErrorContext(ctx, "error claiming delivery", "subscriber", sub.ID, "error", err)
			continue
		}

		g.Go(func() error {
			s.deliver(ctx, sub, rec)
			return nil
		})
	}

	// Workers never return errors; failures land on delivery records.
	_ = g.Wait()
}

// due reports whether a subscriber's delivery time has arrived today.
// Anything at or after the configured time counts, so a tick missed at
// the exact minute (downtime, slow sweep) still delivers later that
// day.
func due(sub digest.Subscriber, now time.Time) bool {
	var hour, minute int
	if _, err := fmt.Sscanf(sub.DeliverAt, "%d:%d", &hour, &minute); err != nil {
		return false
	}

	return now.Hour()*60+now.Minute() >= hour*60+minute
}

// deliver runs the full generate-assemble-send sequence for one
// claimed record and resolves it to a terminal status. Terminal for
// the day either way: failures wait for a manual re-trigger rather
// than burning more provider quota.
func (s *Scheduler) deliver(ctx context.Context, sub digest.Subscriber, rec digest.DeliveryRecord) {
	ctx = logger.With(ctx,
		slog.String("subscriber", sub.ID),
		slog.String("day", rec.Day),
	)

	doc, err := s.pipeline.Run(ctx, sub.Categories, s.perCategory)
	if err != nil {
		s.resolve(ctx, rec.ID, digest.DeliveryFailed, fmt.Sprintf("pipeline: %s", err))
		return
	}

	art, err := s.assembler.Assemble(ctx, doc)
	if err != nil {
		s.resolve(ctx, rec.ID, digest.DeliveryFailed, fmt.Sprintf("assemble: %s", err))
		return
	}

	if err := s.mailer.Send(ctx, sub, art); err != nil {
		detail := fmt.Sprintf("dispatch: %s", err)
		if reason := nberrs.ReasonOf(err); reason != "" {
			detail = fmt.Sprintf("dispatch (%s): %s", reason, err)
		}
		s.resolve(ctx, rec.ID, digest.DeliveryFailed, detail)
		return
	}

	s.resolve(ctx, rec.ID, digest.DeliverySent, "")
	slog.InfoContext(ctx, "digest delivered", "email", sub.Email)
}

func (s *Scheduler) resolve(ctx context.Context, recID string, status digest.DeliveryStatus, detail string) {
	if err := s.store.ResolveDelivery(ctx, recID, status, detail); err != nil {
		slog.ErrorContext(ctx, "error resolving delivery record", "record", recID, "error", err)
	}
	if status == digest.DeliveryFailed {
		slog.ErrorContext(ctx, "delivery failed", "record", recID, "detail", detail)
	}
}

// resumePending picks up today's records left at pending by an
// interrupted process and runs each exactly once more. The claim
// already exists, so this cannot double-send.
func (s *Scheduler) resumePending(ctx context.Context) error {
	day := s.now().In(s.loc).Format("2006-01-02")

	recs, err := s.store.PendingDeliveries(ctx, day)
	if err != nil {
		return fmt.Errorf("error listing pending deliveries: %w", err)
	}
	if len(recs) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "resuming interrupted deliveries", "count", len(recs))

	g := &errgroup.Group{}
	g.SetLimit(s.concurrency)

	for _, rec := range recs {
		rec := rec
		g.Go(func() error {
			sub, err := s.store.Subscriber(ctx, rec.SubscriberID)
			if err != nil {
				s.resolve(ctx, rec.ID, digest.DeliveryFailed, fmt.Sprintf("resume: %s", err))
				return nil
			}
			if !sub.Active {
				s.resolve(ctx, rec.ID, digest.DeliveryFailed, "resume: subscriber no longer active")
				return nil
			}

			s.deliver(ctx, sub, rec)
			return nil
		})
	}

	return g.Wait()
}

// SendNow is the manual re-trigger: it claims today's record when it
// is still unclaimed, but a resolved or in-flight record doesn't block
// the send, since the operator asked for it explicitly.
func (s *Scheduler) SendNow(ctx context.Context, subscriberID string) error {
	sub, err := s.store.Subscriber(ctx, subscriberID)
	if err != nil {
		return fmt.Errorf("error fetching subscriber: %w", err)
	}
	if !sub.Active {
		return digest.ErrNotFound
	}

	day := s.now().In(s.loc).Format("2006-01-02")

	rec, err := s.store.ClaimDelivery(ctx, sub.ID, day)
	switch {
	case errors.Is(err, digest.ErrConflict):
		// Run without touching the existing record.
		return s.sendOnce(ctx, sub)
	case err != nil:
		return fmt.Errorf("error claiming delivery: %w", err)
	default:
		s.deliver(ctx, sub, rec)
		return nil
	}
}

func (s *Scheduler) sendOnce(ctx context.Context, sub digest.Subscriber) error {
	doc, err := s.pipeline.Run(ctx, sub.Categories, s.perCategory)
	if err != nil {
		return err
	}
	art, err := s.assembler.Assemble(ctx, doc)
	if err != nil {
		return err
	}

	return s.mailer.Send(ctx, sub, art)
}
