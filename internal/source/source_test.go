package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpatel/newsbrief/internal/digest"
	nberrs "github.com/rpatel/newsbrief/internal/errors"
)

const testListingPage = `<!DOCTYPE html>
<html>
<body>
  <div class="section">
    <h2><a href="/technology/new-chip-plant-announced-in-gujarat-9912/">New chip plant announced in Gujarat</a></h2>
    <h2><a href="/technology/satellite-broadband-rollout-expands-9913/">Satellite broadband rollout expands to rural districts</a></h2>
    <h3><a href="/technology/new-chip-plant-announced-in-gujarat-9912/">New chip plant announced in Gujarat</a></h3>
    <h3><a href="/technology/chip-plant-announced-gujarat-deal-9914/">New chip plant announced in Gujarat after deal</a></h3>
    <h2><a href="/videos/tech-week-recap-9915/">Tech week recap in ninety seconds</a></h2>
    <h2><a href="https://elsewhere.example.com/technology/offsite-story/">Offsite story that should not appear here</a></h2>
    <h2><a href="/technology/quantum-lab-opens-at-iisc-bengaluru-9916/">Quantum research lab opens at IISc Bengaluru</a></h2>
  </div>
</body>
</html>`

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL, Timeout: 5 * time.Second})
	require.NoError(t, err)

	return c, srv
}

func TestListing(t *testing.T) {
	c, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/section/technology/", r.URL.Path)
		w.Write([]byte(testListingPage))
	}))

	refs, err := c.Listing(context.Background(), digest.CategoryTechnology, 10)
	require.NoError(t, err)

	// The exact duplicate, the near-duplicate title, the video link,
	// and the offsite link are all dropped.
	require.Len(t, refs, 3)
	assert.Equal(t, "New chip plant announced in Gujarat", refs[0].Title)
	assert.Equal(t, srv.URL+"/technology/new-chip-plant-announced-in-gujarat-9912/", refs[0].URL)
	assert.Equal(t, digest.CategoryTechnology, refs[0].Category)
	assert.Equal(t, "Satellite broadband rollout expands to rural districts", refs[1].Title)
	assert.Equal(t, "Quantum research lab opens at IISc Bengaluru", refs[2].Title)
}

func TestListing_Limit(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testListingPage))
	}))

	refs, err := c.Listing(context.Background(), digest.CategoryTechnology, 2)
	require.NoError(t, err)
	require.Len(t, refs, 2)
}

func TestListing_ServerDown(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	_, err := c.Listing(context.Background(), digest.CategoryTechnology, 10)
	require.Error(t, err)
	assert.True(t, nberrs.IsKind(err, nberrs.KindTransientFetch))
}

const testArticlePage = `<!DOCTYPE html>
<html>
<head><title>New chip plant announced in Gujarat</title></head>
<body>
  <article>
    <h1>New chip plant announced in Gujarat</h1>
    <p>A consortium of semiconductor manufacturers announced on Monday that it
    will build a new fabrication plant near Dholera, marking the largest single
    investment in the state's electronics sector to date.</p>
    <p>Officials said construction is expected to begin early next year, with
    the first production lines coming online within three years. The plant will
    focus on mature process nodes used in automotive and industrial chips.</p>
    <p>Industry analysts called the announcement a significant step for the
    domestic supply chain, though they cautioned that hiring enough specialized
    engineers remains a challenge for the region.</p>
  </article>
</body>
</html>`

func TestArticle(t *testing.T) {
	c, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testArticlePage))
	}))

	art, err := c.Article(context.Background(), digest.ArticleRef{
		Category: digest.CategoryTechnology,
		URL:      srv.URL + "/technology/new-chip-plant-announced-in-gujarat-9912/",
		Title:    "New chip plant announced in Gujarat",
	})
	require.NoError(t, err)

	assert.Equal(t, "New chip plant announced in Gujarat", art.Ref.Title)
	assert.Contains(t, art.Body, "fabrication plant near Dholera")
	assert.NotEmpty(t, art.ContentHash)
}

func TestArticle_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(testArticlePage))
	}))

	_, err := c.Article(context.Background(), digest.ArticleRef{
		Category: digest.CategoryTechnology,
		URL:      srv.URL + "/technology/new-chip-plant-announced-in-gujarat-9912/",
		Title:    "New chip plant announced in Gujarat",
	})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestArticle_NotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := c.Article(context.Background(), digest.ArticleRef{
		Category: digest.CategoryTechnology,
		URL:      srv.URL + "/technology/gone-story-0001/",
	})
	require.Error(t, err)
	assert.True(t, nberrs.IsKind(err, nberrs.KindTransientFetch))
	assert.Equal(t, int32(1), calls.Load())
}

func TestValidArticleURL(t *testing.T) {
	c, err := New(Config{BaseURL: "https://news.example.com"})
	require.NoError(t, err)

	tests := []struct {
		url   string
		valid bool
	}{
		{"https://news.example.com/technology/story-one-123/", true},
		{"https://news.example.com/article/some-story/", true},
		{"https://news.example.com/videos/clip-456/", false},
		{"https://news.example.com/newsletter", false},
		{"https://news.example.com/about", false},
		{"https://news.example.com/shallow", false},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.valid, c.validArticleURL(tc.url), tc.url)
	}
}

func TestCleanTitle(t *testing.T) {
	assert.Equal(t,
		"Markets rally after rate cut",
		cleanTitle("  Markets   rally after rate cut | Read More"),
	)
	assert.Equal(t,
		"Monsoon arrives early",
		cleanTitle("<b>Monsoon</b> arrives early Advertisement"),
	)

	long := strings.Repeat("longword ", 30)
	cleaned := cleanTitle(long)
	assert.LessOrEqual(t, len(cleaned), maxTitleLen+3)
	assert.True(t, strings.HasSuffix(cleaned, "..."))
}

func TestDedupeByTitle(t *testing.T) {
	refs := []digest.ArticleRef{
		{URL: "u1", Title: "Election results declared in five states today"},
		{URL: "u2", Title: "Election results declared in five states"},
		{URL: "u3", Title: "Cricket team wins the series opener abroad"},
	}

	unique := dedupeByTitle(refs)
	require.Len(t, unique, 2)
	assert.Equal(t, "u1", unique[0].URL)
	assert.Equal(t, "u3", unique[1].URL)
}
