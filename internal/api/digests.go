package api

import (
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"

	"github.com/rpatel/newsbrief/internal/digest"
	nberrs "github.com/rpatel/newsbrief/internal/errors"
)

type generateRequest struct {
	Categories []digest.Category `json:"categories"`
	Count      int               `json:"count"`
	// Email, when set, also mails the artifact to this address.
	Email string `json:"email"`
}

func (r generateRequest) Validate() error {
	for _, c := range r.Categories {
		if !digest.ValidCategory(c) {
			return nberrs.E(http.StatusUnprocessableEntity, "unknown category: "+string(c))
		}
	}
	if r.Count < 0 {
		return nberrs.E(http.StatusUnprocessableEntity, "count must not be negative")
	}

	return nil
}

type generateResponse struct {
	ArtifactID  string    `json:"artifact_id"`
	ContentType string    `json:"content_type"`
	GeneratedAt time.Time `json:"generated_at"`
	Articles    int       `json:"articles"`
	Mailed      bool      `json:"mailed"`
}

// postDigests generates a digest on demand, outside any subscriber
// schedule.
func (s *Server) postDigests(w http.ResponseWriter, r *http.Request) error {
	body, err := decodeValid[generateRequest](r.Body)
	if err != nil {
		return nberrs.E(err, http.StatusBadRequest)
	}

	categories := body.Categories
	if len(categories) == 0 {
		categories = digest.Categories()
	}
	count := body.Count
	if count == 0 {
		count = s.defaultCount
	}

	doc, err := s.pipeline.Run(r.Context(), categories, count)
	if err != nil {
		return err
	}

	art, err := s.assembler.Assemble(r.Context(), doc)
	if err != nil {
		return err
	}

	mailed := false
	if body.Email != "" {
		sub := digest.Subscriber{Email: body.Email}
		if err := s.mailer.Send(r.Context(), sub, art); err != nil {
			return err
		}
		mailed = true
	}

	articles := 0
	for _, sec := range doc.Sections {
		articles += len(sec.Items)
	}

	return writeJSON(w, http.StatusCreated, generateResponse{
		ArtifactID:  art.ID,
		ContentType: art.ContentType,
		GeneratedAt: doc.GeneratedAt,
		Articles:    articles,
		Mailed:      mailed,
	})
}

// getArtifact streams a rendered digest back for download.
func (s *Server) getArtifact(w http.ResponseWriter, r *http.Request) error {
	id := mux.Vars(r)["artifactID"]

	art, err := s.repo.Artifact(r.Context(), id)
	if errors.Is(err, digest.ErrNotFound) {
		return nberrs.E(http.StatusNotFound, "artifact not found")
	}
	if err != nil {
		return err
	}

	f, err := os.Open(art.Path)
	if err != nil {
		return nberrs.E(err, http.StatusInternalServerError)
	}
	defer f.Close()

	w.Header().Set("Content-Type", art.ContentType)
	http.ServeContent(w, r, art.ID, art.CreatedAt, f)

	return nil
}

type categoriesResponse struct {
	Categories []digest.Category `json:"categories"`
}

func (s *Server) getCategories(w http.ResponseWriter, r *http.Request) error {
	return writeJSON(w, http.StatusOK, categoriesResponse{Categories: digest.Categories()})
}
