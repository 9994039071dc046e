package digest

import (
	"context"
	"time"
)

type (
	// Source fetches article references and bodies from the news site.
	Source interface {
		// Listing returns up to limit article references for one
		// category, in discovery order.
		Listing(ctx context.Context, category Category, limit int) ([]ArticleRef, error)
		// Article fetches and extracts one article's body text.
		Article(ctx context.Context, ref ArticleRef) (Article, error)
	}

	// SummaryRequest is the input to a summarizer backend.
	SummaryRequest struct {
		Title        string
		Text         string
		MaxSentences int
	}

	// Summarizer produces a heading and summary for one article's text.
	Summarizer interface {
		Summarize(ctx context.Context, req SummaryRequest) (Summary, error)
	}

	// Renderer turns a document into artifact bytes. Treated as an
	// external engine: any failure aborts the whole request.
	Renderer interface {
		Render(ctx context.Context, doc Document) (data []byte, contentType string, err error)
	}

	// Mailer hands a finished artifact to the mail relay for one
	// recipient. One attempt per call; the caller decides on retries.
	Mailer interface {
		Send(ctx context.Context, sub Subscriber, art Artifact) error
	}
)

// Repository is the persistence surface for subscribers, delivery
// records, cache entries, and artifacts.
type Repository interface {
	UpsertSubscriber(ctx context.Context, email string, categories []Category, deliverAt string) (Subscriber, error)
	Subscriber(ctx context.Context, id string) (Subscriber, error)
	ActiveSubscribers(ctx context.Context) ([]Subscriber, error)
	AllSubscribers(ctx context.Context) ([]Subscriber, error)
	DeactivateSubscriber(ctx context.Context, id string) error

	// ClaimDelivery creates the day's pending record for a subscriber.
	// Returns ErrConflict when a record for (subscriber, day) already
	// exists, claimed or resolved.
	ClaimDelivery(ctx context.Context, subscriberID, day string) (DeliveryRecord, error)
	ResolveDelivery(ctx context.Context, id string, status DeliveryStatus, detail string) error
	PendingDeliveries(ctx context.Context, day string) ([]DeliveryRecord, error)

	CacheEntry(ctx context.Context, fp Fingerprint) (CacheEntry, error)
	StoreCacheEntry(ctx context.Context, entry CacheEntry) error
	EvictCacheEntries(ctx context.Context, olderThan time.Time) (int64, error)

	InsertArtifact(ctx context.Context, art Artifact) (Artifact, error)
	Artifact(ctx context.Context, id string) (Artifact, error)
}
