package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rpatel/newsbrief/internal/digest"
)

func (r Repo) CacheEntry(ctx context.Context, fp digest.Fingerprint) (digest.CacheEntry, error) {
	const q = `SELECT * FROM cache_entries WHERE fingerprint = ?;`

	var entry digest.CacheEntry
	err := r.db.GetContext(ctx, &entry, q, fp)
	if errors.Is(err, sql.ErrNoRows) {
		return digest.CacheEntry{}, digest.ErrNotFound
	}
	if err != nil {
		return digest.CacheEntry{}, fmt.Errorf("error fetching cache entry: %s", err)
	}

	return entry, nil
}

// StoreCacheEntry upserts by fingerprint. Two runs racing on the same
// article both land here; last write wins and that's fine.
func (r Repo) StoreCacheEntry(ctx context.Context, entry digest.CacheEntry) error {
	const q = `INSERT INTO cache_entries (fingerprint, category, url, title, heading, summary, content_hash, created_at)
	VALUES (:fingerprint, :category, :url, :title, :heading, :summary, :content_hash, :created_at)
	ON CONFLICT(fingerprint) DO UPDATE SET
		heading = excluded.heading,
		summary = excluded.summary,
		content_hash = excluded.content_hash,
		created_at = excluded.created_at;`
	if _, err := r.db.NamedExecContext(ctx, q, entry); err != nil {
		return fmt.Errorf("error storing cache entry: %s", err)
	}

	return nil
}

// EvictCacheEntries removes everything summarized before the cutoff.
func (r Repo) EvictCacheEntries(ctx context.Context, olderThan time.Time) (int64, error) {
	const q = `DELETE FROM cache_entries WHERE created_at < ?;`

	res, err := r.db.ExecContext(ctx, q, olderThan)
	if err != nil {
		return 0, fmt.Errorf("error evicting cache entries: %s", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("error counting evicted entries: %s", err)
	}

	return n, nil
}
