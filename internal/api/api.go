// Package api is the dashboard-facing HTTP surface: thin
// request/response wrappers over the pipeline, assembler, scheduler,
// and repository.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/rpatel/newsbrief/internal/digest"
	nberrs "github.com/rpatel/newsbrief/internal/errors"
	"github.com/rpatel/newsbrief/internal/schedule"
)

func writeJSON(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		return fmt.Errorf("error encoding json response: %s", err)
	}

	return nil
}

// validator is a surface that can validate itself and return an error
// if something is wrong.
type validator interface {
	Validate() error
}

// decodeValid decodes a request and then validates it.
func decodeValid[V validator](r io.Reader) (V, error) {
	var v V
	if err := json.NewDecoder(r).Decode(&v); err != nil {
		return v, fmt.Errorf("error decoding request: %w", err)
	}
	if err := v.Validate(); err != nil {
		return v, fmt.Errorf("error validating request: %w", err)
	}

	return v, nil
}

// HandlerFuncE is a modified type of [http.HandlerFunc] that returns an error.
type HandlerFuncE func(w http.ResponseWriter, r *http.Request) error

func (f HandlerFuncE) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	err := f(w, r)
	if err == nil {
		return
	}

	// Either it's already a structured error, or coerce it to one
	nbErr := &nberrs.Error{}
	if !errors.As(err, &nbErr) {
		slog.Error("unclassified handler error", "err", err)
		nbErr = nberrs.E(http.StatusInternalServerError, "internal server error")
	}

	if err := writeJSON(w, nbErr.Status, nbErr); err != nil {
		slog.Error("error writing response", "error", err)
	}
}

// errRouter is a newtype around a mux router that allows attaching handlers that return errors.
type errRouter struct {
	*mux.Router
}

func (r errRouter) HandleFuncE(path string, f HandlerFuncE) *mux.Route {
	return r.Handle(path, f)
}

type (
	// Server handles the dashboard operations.
	Server struct {
		*http.Server

		repo      digest.Repository
		pipeline  schedule.Runner
		assembler schedule.Assembler
		mailer    digest.Mailer
		scheduler *schedule.Scheduler

		defaultCount int
	}

	ServerConfig struct {
		Port         int
		CorsOrigin   string
		DefaultCount int
	}
)

func NewServer(cfg ServerConfig, repo digest.Repository, pipe schedule.Runner, asm schedule.Assembler, mailer digest.Mailer, sched *schedule.Scheduler) *Server {
	r := errRouter{Router: mux.NewRouter()}

	if cfg.DefaultCount <= 0 {
		cfg.DefaultCount = 10
	}

	srvr := Server{
		repo:         repo,
		pipeline:     pipe,
		assembler:    asm,
		mailer:       mailer,
		scheduler:    sched,
		defaultCount: cfg.DefaultCount,
		Server: &http.Server{
			Addr:        fmt.Sprintf(":%d", cfg.Port),
			ReadTimeout: 5 * time.Second,
			// Generation requests fetch and summarize on demand.
			WriteTimeout: 5 * time.Minute,
			Handler: handlers.CORS(
				handlers.AllowedOrigins([]string{cfg.CorsOrigin}),
				handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}),
				handlers.AllowedHeaders([]string{"content-type"}),
			)(r),
		},
	}

	r.Use(accessLogMiddleware)

	r.HandleFuncE("/v1/digests", srvr.postDigests).Methods(http.MethodPost)
	r.HandleFuncE("/v1/artifacts/{artifactID}", srvr.getArtifact).Methods(http.MethodGet)

	r.HandleFuncE("/v1/subscribers", srvr.postSubscribers).Methods(http.MethodPost)
	r.HandleFuncE("/v1/subscribers", srvr.getSubscribers).Methods(http.MethodGet)
	r.HandleFuncE("/v1/subscribers/{subscriberID}", srvr.deleteSubscriber).Methods(http.MethodDelete)
	r.HandleFuncE("/v1/subscribers/{subscriberID}/send", srvr.postSendNow).Methods(http.MethodPost)

	r.HandleFuncE("/v1/categories", srvr.getCategories).Methods(http.MethodGet)

	slog.Debug("configured api server", "port", cfg.Port)

	return &srvr
}

func accessLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Info("request handled", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
