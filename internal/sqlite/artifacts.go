package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rpatel/newsbrief/internal/digest"
)

func (r Repo) InsertArtifact(ctx context.Context, art digest.Artifact) (digest.Artifact, error) {
	if art.CreatedAt.IsZero() {
		art.CreatedAt = time.Now().UTC()
	}

	const q = `INSERT INTO artifacts (id, path, content_type, created_at)
	VALUES (:id, :path, :content_type, :created_at);`
	if _, err := r.db.NamedExecContext(ctx, q, art); err != nil {
		return digest.Artifact{}, fmt.Errorf("error inserting artifact: %s", err)
	}

	return art, nil
}

func (r Repo) Artifact(ctx context.Context, id string) (digest.Artifact, error) {
	const q = `SELECT * FROM artifacts WHERE id = ?;`

	var art digest.Artifact
	err := r.db.GetContext(ctx, &art, q, id)
	if errors.Is(err, sql.ErrNoRows) {
		return digest.Artifact{}, digest.ErrNotFound
	}
	if err != nil {
		return digest.Artifact{}, fmt.Errorf("error fetching artifact: %s", err)
	}

	return art, nil
}
