package summarize

import (
	"context"
	"log/slog"
	"sync"

	"github.com/rpatel/newsbrief/internal/digest"
	nberrs "github.com/rpatel/newsbrief/internal/errors"
)

// Selector routes between the remote and local backends for the span
// of one pipeline run. The first upstream-unavailable failure from the
// remote flips the run to the local backend for good: no mid-run
// retries of a struggling provider, which keeps run latency bounded.
type Selector struct {
	remote digest.Summarizer // nil when no credential is configured
	local  digest.Summarizer

	mu       sync.Mutex
	fellBack bool
}

var _ digest.Summarizer = (*Selector)(nil)

// NewSelector builds a fresh selector. remote may be nil, in which
// case every request goes local.
func NewSelector(remote, local digest.Summarizer) *Selector {
	return &Selector{
		remote: remote,
		local:  local,
	}
}

func (s *Selector) Summarize(ctx context.Context, req digest.SummaryRequest) (digest.Summary, error) {
	s.mu.Lock()
	useRemote := s.remote != nil && !s.fellBack
	s.mu.Unlock()

	if !useRemote {
		return s.local.Summarize(ctx, req)
	}

	result, err := s.remote.Summarize(ctx, req)
	if nberrs.IsKind(err, nberrs.KindUpstreamUnavailable) {
		s.mu.Lock()
		s.fellBack = true
		s.mu.Unlock()

		slog.WarnContext(ctx, "remote summarizer unavailable, using local backend for rest of run", "error", err)
		return s.local.Summarize(ctx, req)
	}

	return result, err
}

// Factory returns a constructor for per-run selectors. Each pipeline
// run gets its own so fallback stickiness never leaks across runs.
func Factory(remote, local digest.Summarizer) func() digest.Summarizer {
	return func() digest.Summarizer {
		return NewSelector(remote, local)
	}
}
