package api

import (
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/rpatel/newsbrief/internal/digest"
	nberrs "github.com/rpatel/newsbrief/internal/errors"
)

var deliverAtRE = regexp.MustCompile(`^([01]?\d|2[0-3]):[0-5]\d$`)

type subscribeRequest struct {
	Email      string            `json:"email"`
	Categories []digest.Category `json:"categories"`
	DeliverAt  string            `json:"deliver_at"`
}

func (r subscribeRequest) Validate() error {
	if strings.TrimSpace(r.Email) == "" || !strings.Contains(r.Email, "@") {
		return nberrs.E(http.StatusUnprocessableEntity, "a valid email is required")
	}
	if !deliverAtRE.MatchString(r.DeliverAt) {
		return nberrs.E(http.StatusUnprocessableEntity, "deliver_at must be HH:MM, 24-hour")
	}
	for _, c := range r.Categories {
		if !digest.ValidCategory(c) {
			return nberrs.E(http.StatusUnprocessableEntity, "unknown category: "+string(c))
		}
	}

	return nil
}

type subscriberResponse struct {
	ID         string            `json:"id"`
	Email      string            `json:"email"`
	Categories []digest.Category `json:"categories"`
	DeliverAt  string            `json:"deliver_at"`
	Active     bool              `json:"active"`
	CreatedAt  time.Time         `json:"created_at"`
}

func toSubscriberResponse(sub digest.Subscriber) subscriberResponse {
	return subscriberResponse{
		ID:         sub.ID,
		Email:      sub.Email,
		Categories: sub.Categories,
		DeliverAt:  sub.DeliverAt,
		Active:     sub.Active,
		CreatedAt:  sub.CreatedAt,
	}
}

// postSubscribers creates a subscriber, or re-activates and updates an
// existing one with the same email.
func (s *Server) postSubscribers(w http.ResponseWriter, r *http.Request) error {
	body, err := decodeValid[subscribeRequest](r.Body)
	if err != nil {
		return nberrs.E(err, http.StatusBadRequest)
	}

	categories := body.Categories
	if len(categories) == 0 {
		categories = digest.Categories()
	}

	sub, err := s.repo.UpsertSubscriber(r.Context(), strings.ToLower(strings.TrimSpace(body.Email)), categories, body.DeliverAt)
	if err != nil {
		return nberrs.E(err, http.StatusInternalServerError)
	}

	return writeJSON(w, http.StatusCreated, toSubscriberResponse(sub))
}

type subscribersResponse struct {
	Subscribers []subscriberResponse `json:"subscribers"`
}

func (s *Server) getSubscribers(w http.ResponseWriter, r *http.Request) error {
	subs, err := s.repo.AllSubscribers(r.Context())
	if err != nil {
		return nberrs.E(err, http.StatusInternalServerError)
	}

	resp := subscribersResponse{Subscribers: []subscriberResponse{}}
	for _, sub := range subs {
		resp.Subscribers = append(resp.Subscribers, toSubscriberResponse(sub))
	}

	return writeJSON(w, http.StatusOK, resp)
}

// deleteSubscriber unsubscribes. The row stays so delivery history
// keeps pointing at something.
func (s *Server) deleteSubscriber(w http.ResponseWriter, r *http.Request) error {
	id := mux.Vars(r)["subscriberID"]

	err := s.repo.DeactivateSubscriber(r.Context(), id)
	if errors.Is(err, digest.ErrNotFound) {
		return nberrs.E(http.StatusNotFound, "subscriber not found")
	}
	if err != nil {
		return nberrs.E(err, http.StatusInternalServerError)
	}

	w.WriteHeader(http.StatusNoContent)
	return nil
}

// postSendNow triggers an immediate delivery for one subscriber,
// regardless of their schedule.
func (s *Server) postSendNow(w http.ResponseWriter, r *http.Request) error {
	id := mux.Vars(r)["subscriberID"]

	err := s.scheduler.SendNow(r.Context(), id)
	if errors.Is(err, digest.ErrNotFound) {
		return nberrs.E(http.StatusNotFound, "subscriber not found")
	}
	if err != nil {
		return err
	}

	return writeJSON(w, http.StatusAccepted, struct{}{})
}
