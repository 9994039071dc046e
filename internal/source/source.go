// Package source is the client for the news site: category listing
// pages and article bodies. The site is treated as an unstable external
// dependency, so every failure here is per-item, never fatal to a run.
package source

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
	"github.com/sethvargo/go-retry"

	"github.com/rpatel/newsbrief/internal/digest"
	nberrs "github.com/rpatel/newsbrief/internal/errors"
)

const (
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
	maxBodyBytes     = 4 << 20
	maxTitleLen      = 150
)

type (
	// Client fetches listing pages and article bodies. No state beyond
	// the HTTP client; safe for concurrent use.
	Client struct {
		base       *url.URL
		httpClient *http.Client
		userAgent  string
		fetchDelay time.Duration
	}

	Config struct {
		// BaseURL is the root of the news site.
		BaseURL string
		// Timeout bounds each HTTP call.
		Timeout time.Duration
		// FetchDelay is the pause before each article fetch, to stay
		// polite with the source site.
		FetchDelay time.Duration
		UserAgent  string
	}
)

var _ digest.Source = (*Client)(nil)

func New(cfg Config) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("error parsing base url: %w", err)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}

	return &Client{
		base: base,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		userAgent:  cfg.UserAgent,
		fetchDelay: cfg.FetchDelay,
	}, nil
}

// Selectors tried in order when hunting for headlines on a listing
// page.
var headlineSelectors = []string{
	"h2 a", "h3 a", "h4 a", "h5 a", "h6 a",
	".title a", ".headline a", ".story-title a",
}

// Listing fetches one category's listing page and returns up to limit
// article references in discovery order.
func (c *Client) Listing(ctx context.Context, category digest.Category, limit int) ([]digest.ArticleRef, error) {
	path := digest.ListingPath(category)
	if path == "" {
		return nil, fmt.Errorf("unknown category: %s", category)
	}

	body, err := c.get(ctx, c.base.ResolveReference(&url.URL{Path: path}).String())
	if err != nil {
		return nil, nberrs.E(nberrs.KindTransientFetch, fmt.Errorf("error fetching listing for %s: %w", category, err))
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, nberrs.E(nberrs.KindTransientFetch, fmt.Errorf("error parsing listing for %s: %w", category, err))
	}

	var (
		refs []digest.ArticleRef
		seen = map[string]bool{}
	)
	// Overfetch so near-duplicate titles can be dropped and still
	// leave a full page of results.
	collect := func(sel *goquery.Selection, minTitle int) {
		sel.Each(func(_ int, link *goquery.Selection) {
			if len(refs) >= limit*2 {
				return
			}

			full := c.absoluteURL(link.AttrOr("href", ""))
			if full == "" || seen[full] || !c.validArticleURL(full) {
				return
			}

			title := cleanTitle(extractTitle(link))
			if len(title) <= minTitle {
				return
			}

			seen[full] = true
			refs = append(refs, digest.ArticleRef{
				Category: category,
				URL:      full,
				Title:    title,
			})
		})
	}

	for _, selector := range headlineSelectors {
		collect(doc.Find(selector), 15)
	}
	// Not enough headlines: fall back to scanning every anchor.
	if len(refs) < limit {
		collect(doc.Find("a[href]"), 15)
	}

	refs = dedupeByTitle(refs)
	if len(refs) > limit {
		refs = refs[:limit]
	}

	return refs, nil
}

// Article fetches one article page and extracts its readable body.
func (c *Client) Article(ctx context.Context, ref digest.ArticleRef) (digest.Article, error) {
	if c.fetchDelay > 0 {
		select {
		case <-ctx.Done():
			return digest.Article{}, ctx.Err()
		case <-time.After(c.fetchDelay):
		}
	}

	body, err := c.get(ctx, ref.URL)
	if err != nil {
		return digest.Article{}, nberrs.E(nberrs.KindTransientFetch, fmt.Errorf("error fetching article: %w", err))
	}

	pageURL, err := url.Parse(ref.URL)
	if err != nil {
		return digest.Article{}, nberrs.E(nberrs.KindTransientFetch, fmt.Errorf("error with article url: %w", err))
	}

	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err != nil {
		return digest.Article{}, nberrs.E(nberrs.KindTransientFetch, fmt.Errorf("error extracting article: %w", err))
	}

	text := strings.TrimSpace(article.TextContent)
	if text == "" {
		return digest.Article{}, nberrs.E(nberrs.KindTransientFetch, "no extractable body")
	}

	title := ref.Title
	if title == "" {
		title = cleanTitle(article.Title)
	}
	sum := sha256.Sum256([]byte(text))

	return digest.Article{
		Ref: digest.ArticleRef{
			Category: ref.Category,
			URL:      ref.URL,
			Title:    title,
		},
		Body:        text,
		ContentHash: hex.EncodeToString(sum[:]),
	}, nil
}

// get fetches a URL with bounded retries on transient failures.
func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	var body []byte
	backoff := retry.WithMaxRetries(2, retry.NewFibonacci(250*time.Millisecond))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return err
		}
		req.Header.Set("User-Agent", c.userAgent)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= http.StatusInternalServerError {
			return retry.RetryableError(fmt.Errorf("unexpected status code: %d", resp.StatusCode))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		}

		b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return retry.RetryableError(err)
		}
		body = b

		return nil
	})

	return body, err
}

// absoluteURL resolves an href against the source site, returning ""
// for anything that doesn't point back at it.
func (c *Client) absoluteURL(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}

	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	full := c.base.ResolveReference(ref)
	if full.Host != c.base.Host {
		return ""
	}

	return full.String()
}

// Link paths that are never articles.
var skipPatterns = []string{
	"/videos/", "/photos/", "/gallery/", "/live-blog/",
	"/subscribe", "/newsletter", "/contact", "/about",
	"/privacy", "/terms", "/advertise", "/jobs",
}

// Paths that clearly are.
var validPatterns = []string{
	"/section/", "/article/", "/explained/", "/opinion/",
	"/sports/", "/business/", "/cities/", "/lifestyle/",
	"/entertainment/", "/technology/", "/world/",
}

func (c *Client) validArticleURL(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	for _, p := range skipPatterns {
		if strings.Contains(lower, p) {
			return false
		}
	}
	for _, p := range validPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}

	// Deep-enough paths are likely stories.
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.Count(strings.Trim(u.Path, "/"), "/") >= 1
}

func extractTitle(link *goquery.Selection) string {
	title := strings.TrimSpace(link.Text())
	if len(title) >= 10 {
		return title
	}

	if attr := strings.TrimSpace(link.AttrOr("title", "")); len(attr) >= 10 {
		return attr
	}

	// Image links often carry the headline in alt text.
	img := link.Find("img").First()
	if alt := strings.TrimSpace(img.AttrOr("alt", "")); len(alt) >= 10 {
		return alt
	}

	return title
}

var (
	stripPolicy = bluemonday.StrictPolicy()

	titleArtifacts = []string{
		"Read More", "READ MORE", "Continue Reading",
		"Click here", "View Details", "Share", "Tweet",
		"Advertisement", "Sponsored", "|", "–",
	}
)

// cleanTitle strips markup, boilerplate artifacts, and excess length
// from a scraped headline.
func cleanTitle(title string) string {
	title = stripPolicy.Sanitize(title)
	title = strings.Join(strings.Fields(title), " ")

	for _, artifact := range titleArtifacts {
		title = strings.ReplaceAll(title, artifact, "")
	}
	title = strings.Trim(title, " .,;:-–|")

	if len(title) > maxTitleLen {
		truncated := title[:maxTitleLen]
		if last := strings.LastIndex(truncated, " "); last > 100 {
			truncated = truncated[:last]
		}
		title = truncated + "..."
	}

	return title
}

// dedupeByTitle drops refs whose headlines overlap heavily with one
// already kept. Listing pages repeat the same story under several
// widgets with slightly different titles.
func dedupeByTitle(refs []digest.ArticleRef) []digest.ArticleRef {
	var (
		unique []digest.ArticleRef
		kept   []map[string]bool
	)

	for _, ref := range refs {
		words := titleWords(ref.Title)

		duplicate := false
		for _, seen := range kept {
			if titleSimilarity(words, seen) > 0.7 {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}

		unique = append(unique, ref)
		kept = append(kept, words)
	}

	return unique
}

func titleWords(title string) map[string]bool {
	words := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(title)) {
		words[w] = true
	}
	return words
}

func titleSimilarity(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	common := 0
	for w := range a {
		if b[w] {
			common++
		}
	}

	return float64(common) / float64(max(len(a), len(b)))
}
