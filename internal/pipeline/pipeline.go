// Package pipeline drives one digest generation: listing fetch, dedup
// cache, summarization, and accumulation into an ordered document.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rpatel/newsbrief/internal/cache"
	"github.com/rpatel/newsbrief/internal/digest"
	nberrs "github.com/rpatel/newsbrief/internal/errors"
	"github.com/rpatel/newsbrief/logger"
)

type (
	// Pipeline orchestrates Source -> Cache -> Summarizer for a set of
	// categories. Stateless across runs; everything mutable lives in
	// the cache.
	Pipeline struct {
		source digest.Source
		cache  *cache.Cache
		// A fresh summarizer per run so the remote-backend fallback is
		// sticky within a run but never outlives it.
		newSummarizer func() digest.Summarizer

		maxSentences int
		concurrency  int
	}

	Deps struct {
		Source        digest.Source
		Cache         *cache.Cache
		NewSummarizer func() digest.Summarizer

		// MaxSentences per article summary. Defaults to 4.
		MaxSentences int
		// Concurrency bounds how many categories are processed at
		// once. Defaults to 3.
		Concurrency int
	}
)

func New(deps Deps) *Pipeline {
	if deps.MaxSentences <= 0 {
		deps.MaxSentences = 4
	}
	if deps.Concurrency <= 0 {
		deps.Concurrency = 3
	}

	return &Pipeline{
		source:        deps.Source,
		cache:         deps.Cache,
		newSummarizer: deps.NewSummarizer,
		maxSentences:  deps.MaxSentences,
		concurrency:   deps.Concurrency,
	}
}

// Run produces a document for the requested categories, up to
// perCategory articles each. Categories are processed independently: a
// failing one contributes nothing rather than aborting the rest. Only
// when every category comes back empty does the run fail.
func (p *Pipeline) Run(ctx context.Context, categories []digest.Category, perCategory int) (digest.Document, error) {
	if len(categories) == 0 {
		categories = digest.Categories()
	}

	summarizer := p.newSummarizer()

	// Indexed slice keeps output in requested category order no matter
	// which goroutine finishes first.
	sections := make([]digest.Section, len(categories))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for i, category := range categories {
		i, category := i, category
		g.Go(func() error {
			sections[i] = p.category(gctx, summarizer, category, perCategory)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return digest.Document{}, err
	}

	doc := digest.Document{
		GeneratedAt: time.Now().UTC(),
	}
	for _, section := range sections {
		if len(section.Items) > 0 {
			doc.Sections = append(doc.Sections, section)
		}
	}
	if len(doc.Sections) == 0 {
		return digest.Document{}, nberrs.E(nberrs.KindNoContent, "no articles available in any requested category")
	}

	return doc, nil
}

// category fetches, dedups, and summarizes one category. Per-article
// failures are logged and skipped; an empty section is a valid result.
func (p *Pipeline) category(ctx context.Context, summarizer digest.Summarizer, category digest.Category, limit int) digest.Section {
	ctx = logger.With(ctx, slog.String("category", string(category)))
	section := digest.Section{Category: category}

	refs, err := p.source.Listing(ctx, category, limit)
	if err != nil {
		slog.ErrorContext(ctx, "error fetching category listing", "error", err)
		return section
	}

	for _, ref := range refs {
		item, ok := p.article(ctx, summarizer, ref)
		if !ok {
			continue
		}
		section.Items = append(section.Items, item)
	}

	slog.InfoContext(ctx, "category processed", "found", len(refs), "summarized", len(section.Items))

	return section
}

// article resolves one reference into a summarized item, via the cache
// when possible.
func (p *Pipeline) article(ctx context.Context, summarizer digest.Summarizer, ref digest.ArticleRef) (digest.Item, bool) {
	fp := digest.NewFingerprint(ref.URL)

	entry, hit, err := p.cache.Lookup(ctx, fp)
	if err != nil {
		slog.ErrorContext(ctx, "cache lookup failed", "url", ref.URL, "error", err)
	}
	if hit {
		return digest.Item{
			Ref:     ref,
			Heading: entry.Heading,
			Summary: entry.Summary,
		}, true
	}

	article, err := p.source.Article(ctx, ref)
	if err != nil {
		slog.WarnContext(ctx, "skipping article, fetch failed", "url", ref.URL, "error", err)
		return digest.Item{}, false
	}

	summary, err := summarizer.Summarize(ctx, digest.SummaryRequest{
		Title:        article.Ref.Title,
		Text:         article.Body,
		MaxSentences: p.maxSentences,
	})
	if err != nil {
		slog.WarnContext(ctx, "skipping article, summarization failed", "url", ref.URL, "error", err)
		return digest.Item{}, false
	}
	if summary.Heading == "" {
		summary.Heading = article.Ref.Title
	}

	if err := p.cache.Store(ctx, digest.CacheEntry{
		Fingerprint: fp,
		Category:    ref.Category,
		URL:         digest.NormalizeURL(ref.URL),
		Title:       article.Ref.Title,
		Heading:     summary.Heading,
		Summary:     summary.Body,
		ContentHash: article.ContentHash,
	}); err != nil {
		// The summary is still usable for this run; only reuse is lost.
		slog.ErrorContext(ctx, "cache store failed", "url", ref.URL, "error", err)
	}

	return digest.Item{
		Ref:     article.Ref,
		Heading: summary.Heading,
		Summary: summary.Body,
	}, true
}
