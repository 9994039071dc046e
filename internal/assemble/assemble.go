// Package assemble turns a document into a downloadable artifact by
// way of a rendering engine.
package assemble

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/rpatel/newsbrief/internal/digest"
	nberrs "github.com/rpatel/newsbrief/internal/errors"
)

const artifactNamespace = "-art"

// ArtifactIndex is the slice of persistence the assembler needs.
type ArtifactIndex interface {
	InsertArtifact(ctx context.Context, art digest.Artifact) (digest.Artifact, error)
}

// Assembler renders documents and files the results away under its
// artifact directory.
type Assembler struct {
	renderer digest.Renderer
	index    ArtifactIndex
	dir      string
}

func New(renderer digest.Renderer, index ArtifactIndex, dir string) *Assembler {
	return &Assembler{
		renderer: renderer,
		index:    index,
		dir:      dir,
	}
}

// Assemble renders doc into an artifact. Any renderer failure aborts
// the request whole: a malformed document is worse than no document,
// so there is no partial-artifact fallback.
func (a *Assembler) Assemble(ctx context.Context, doc digest.Document) (digest.Artifact, error) {
	data, contentType, err := a.renderer.Render(ctx, doc)
	if err != nil {
		return digest.Artifact{}, nberrs.E(nberrs.KindRenderFailure, fmt.Errorf("error rendering document: %w", err))
	}

	id := uuid.NewString() + artifactNamespace
	path := filepath.Join(a.dir, id+extensionFor(contentType))

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return digest.Artifact{}, nberrs.E(nberrs.KindRenderFailure, fmt.Errorf("error writing artifact: %w", err))
	}

	art, err := a.index.InsertArtifact(ctx, digest.Artifact{
		ID:          id,
		Path:        path,
		ContentType: contentType,
	})
	if err != nil {
		return digest.Artifact{}, fmt.Errorf("error indexing artifact: %w", err)
	}

	return art, nil
}

func extensionFor(contentType string) string {
	exts, err := mime.ExtensionsByType(contentType)
	if err != nil || len(exts) == 0 {
		return ".bin"
	}
	// mime returns extensions unordered; prefer the obvious one.
	for _, ext := range exts {
		if ext == ".html" {
			return ext
		}
	}
	return exts[0]
}
