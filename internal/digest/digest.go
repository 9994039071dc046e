// Package digest holds the domain model shared by the pipeline, the
// scheduler, and the delivery surfaces.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"strings"
	"time"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

type (
	// ArticleRef is a discovered article: where it lives and what it
	// claims to be about. Identity is the normalized URL.
	ArticleRef struct {
		Category Category `json:"category"`
		URL      string   `json:"url"`
		Title    string   `json:"title"`
	}

	// Article is a reference plus its fetched body text.
	Article struct {
		Ref         ArticleRef
		Body        string
		ContentHash string
	}

	// Summary is the output of a summarizer backend for one article.
	Summary struct {
		Heading string
		Body    string
	}

	// CacheEntry records a finished summarization so later runs can skip
	// the fetch and the summarizer call. Read-only after creation.
	CacheEntry struct {
		Fingerprint Fingerprint `db:"fingerprint"`
		Category    Category    `db:"category"`
		URL         string      `db:"url"`
		Title       string      `db:"title"`
		Heading     string      `db:"heading"`
		Summary     string      `db:"summary"`
		ContentHash string      `db:"content_hash"`
		CreatedAt   time.Time   `db:"created_at"`
	}

	// Subscriber is a recipient of the daily digest. Never hard-deleted:
	// unsubscribe flips Active so delivery history stays linked.
	Subscriber struct {
		ID         string
		Email      string
		Categories []Category
		DeliverAt  string // HH:MM, 24-hour
		Active     bool
		CreatedAt  time.Time
	}

	// DeliveryRecord tracks one subscriber's delivery for one calendar
	// day. The (SubscriberID, Day) pair is unique; claiming it is what
	// makes the daily send idempotent.
	DeliveryRecord struct {
		ID           string         `db:"id"`
		SubscriberID string         `db:"subscriber_id"`
		Day          string         `db:"day"` // YYYY-MM-DD
		Status       DeliveryStatus `db:"status"`
		Detail       string         `db:"detail"`
		CreatedAt    time.Time      `db:"created_at"`
		UpdatedAt    time.Time      `db:"updated_at"`
	}

	// Document is the ordered collection of summarized articles for one
	// generation request. Ephemeral: only the rendered artifact outlives
	// the run.
	Document struct {
		GeneratedAt time.Time
		Sections    []Section
	}

	Section struct {
		Category Category
		Items    []Item
	}

	Item struct {
		Ref     ArticleRef
		Heading string
		Summary string
	}

	// Artifact is a rendered document on disk, addressable for download.
	Artifact struct {
		ID          string    `db:"id"`
		Path        string    `db:"path"`
		ContentType string    `db:"content_type"`
		CreatedAt   time.Time `db:"created_at"`
	}
)

type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
)

// Fingerprint is the dedup cache key for one article.
type Fingerprint string

// NewFingerprint derives the cache key from an article's identity.
//
// The key covers the normalized URL only so the cache can be probed
// before the body is fetched; the content hash lives on the entry and
// catches silently edited articles at store time.
func NewFingerprint(rawURL string) Fingerprint {
	sum := sha256.Sum256([]byte(NormalizeURL(rawURL)))
	return Fingerprint(hex.EncodeToString(sum[:]))
}

// NormalizeURL strips the parts of a URL that vary without changing
// which article it points at.
func NormalizeURL(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return strings.TrimSpace(rawURL)
	}
	u.Fragment = ""
	u.RawQuery = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Path = strings.TrimSuffix(u.Path, "/")

	return u.String()
}
