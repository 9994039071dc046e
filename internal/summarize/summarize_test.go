package summarize

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpatel/newsbrief/internal/digest"
	nberrs "github.com/rpatel/newsbrief/internal/errors"
)

const testArticleText = `The state government announced a new water pipeline project on Monday.
The pipeline project will connect three drought-prone districts to the main reservoir.
Officials said the pipeline should be completed within two years of construction starting.
Farmers in the affected districts welcomed the pipeline announcement cautiously.
Opposition leaders questioned the funding plan behind the pipeline project.
A separate committee will review environmental clearances next month.
Local schools closed early on Monday because of a heat advisory.
The reservoir itself was expanded twice in the past decade.`

func TestExtractive_RanksAndOrders(t *testing.T) {
	e := NewExtractive()

	summary, err := e.Summarize(context.Background(), digest.SummaryRequest{
		Title:        "New water pipeline project announced",
		Text:         testArticleText,
		MaxSentences: 3,
	})
	require.NoError(t, err)

	assert.Equal(t, "New water pipeline project announced", summary.Heading)

	sentences := strings.SplitAfter(summary.Body, ".")
	var kept []string
	for _, s := range sentences {
		if strings.TrimSpace(s) != "" {
			kept = append(kept, strings.TrimSpace(s))
		}
	}
	require.Len(t, kept, 3)

	// Picked sentences keep their original order.
	var positions []int
	for _, s := range kept {
		idx := strings.Index(testArticleText, s)
		require.GreaterOrEqual(t, idx, 0, "summary sentence not from source text: %q", s)
		positions = append(positions, idx)
	}
	assert.IsNonDecreasing(t, positions)

	// The dominant "pipeline" topic beats the one-off heat advisory.
	assert.NotContains(t, summary.Body, "heat advisory")
}

func TestExtractive_EmptyInput(t *testing.T) {
	e := NewExtractive()

	_, err := e.Summarize(context.Background(), digest.SummaryRequest{Text: "   "})
	require.Error(t, err)
	assert.True(t, nberrs.IsKind(err, nberrs.KindEmptyInput))
}

func TestExtractive_ShortTextPassesThrough(t *testing.T) {
	e := NewExtractive()

	summary, err := e.Summarize(context.Background(), digest.SummaryRequest{
		Title: "Brief update on the metro line",
		Text:  "The metro line opens next week.",
	})
	require.NoError(t, err)
	assert.Equal(t, "The metro line opens next week.", summary.Body)
}

func TestExtractive_StripsClutter(t *testing.T) {
	e := NewExtractive()

	summary, err := e.Summarize(context.Background(), digest.SummaryRequest{
		Title: "Some headline for this story",
		Text:  "Advertisement The council met today. Read More",
	})
	require.NoError(t, err)
	assert.NotContains(t, summary.Body, "Advertisement")
	assert.NotContains(t, summary.Body, "Read More")
}

func TestDeriveHeading(t *testing.T) {
	assert.Equal(t, "A perfectly sized title", DeriveHeading("ignored", "A perfectly sized title"))

	long := strings.Repeat("word ", 30)
	heading := DeriveHeading("ignored", long)
	assert.LessOrEqual(t, len(heading), 83)
	assert.True(t, strings.HasSuffix(heading, "..."))

	// No usable title: fall back to the first sentence.
	assert.Equal(t,
		"The council approved the budget on Tuesday.",
		DeriveHeading("The council approved the budget on Tuesday. More followed.", ""),
	)
}

// scriptedSummarizer fails i times with the given error before
// succeeding.
type scriptedSummarizer struct {
	failures int
	err      error
	calls    int
}

func (s *scriptedSummarizer) Summarize(_ context.Context, req digest.SummaryRequest) (digest.Summary, error) {
	s.calls++
	if s.calls <= s.failures {
		return digest.Summary{}, s.err
	}
	return digest.Summary{Heading: "remote heading", Body: "remote body"}, nil
}

type staticSummarizer struct {
	calls int
}

func (s *staticSummarizer) Summarize(_ context.Context, req digest.SummaryRequest) (digest.Summary, error) {
	s.calls++
	return digest.Summary{Heading: "local heading", Body: "local body"}, nil
}

func TestSelector_PrefersRemote(t *testing.T) {
	remote := &scriptedSummarizer{}
	local := &staticSummarizer{}
	s := NewSelector(remote, local)

	summary, err := s.Summarize(context.Background(), digest.SummaryRequest{Text: "text"})
	require.NoError(t, err)
	assert.Equal(t, "remote heading", summary.Heading)
	assert.Equal(t, 0, local.calls)
}

func TestSelector_FallbackIsSticky(t *testing.T) {
	remote := &scriptedSummarizer{
		failures: 1,
		err:      nberrs.E(nberrs.KindUpstreamUnavailable, "quota exhausted"),
	}
	local := &staticSummarizer{}
	s := NewSelector(remote, local)

	// First call fails over to local.
	summary, err := s.Summarize(context.Background(), digest.SummaryRequest{Text: "text"})
	require.NoError(t, err)
	assert.Equal(t, "local heading", summary.Heading)

	// And the remote is never consulted again, even though it would
	// succeed now.
	for i := 0; i < 3; i++ {
		summary, err = s.Summarize(context.Background(), digest.SummaryRequest{Text: "text"})
		require.NoError(t, err)
		assert.Equal(t, "local heading", summary.Heading)
	}
	assert.Equal(t, 1, remote.calls)
	assert.Equal(t, 4, local.calls)
}

func TestSelector_OtherErrorsPropagate(t *testing.T) {
	remote := &scriptedSummarizer{
		failures: 1,
		err:      nberrs.E(nberrs.KindEmptyInput, "nothing to summarize"),
	}
	local := &staticSummarizer{}
	s := NewSelector(remote, local)

	_, err := s.Summarize(context.Background(), digest.SummaryRequest{Text: ""})
	require.Error(t, err)
	assert.True(t, nberrs.IsKind(err, nberrs.KindEmptyInput))
	assert.Equal(t, 0, local.calls)

	// A non-availability error doesn't trip the fallback.
	summary, err := s.Summarize(context.Background(), digest.SummaryRequest{Text: "text"})
	require.NoError(t, err)
	assert.Equal(t, "remote heading", summary.Heading)
}

func TestSelector_NilRemoteGoesLocal(t *testing.T) {
	local := &staticSummarizer{}
	s := NewSelector(nil, local)

	summary, err := s.Summarize(context.Background(), digest.SummaryRequest{Text: "text"})
	require.NoError(t, err)
	assert.Equal(t, "local heading", summary.Heading)
}

func TestFactory_FreshSelectorPerRun(t *testing.T) {
	remote := &scriptedSummarizer{
		failures: 1,
		err:      nberrs.E(nberrs.KindUpstreamUnavailable, "down"),
	}
	local := &staticSummarizer{}
	factory := Factory(remote, local)

	first := factory()
	_, err := first.Summarize(context.Background(), digest.SummaryRequest{Text: "text"})
	require.NoError(t, err)
	assert.Equal(t, 1, local.calls)

	// A new run starts back at the remote.
	second := factory()
	summary, err := second.Summarize(context.Background(), digest.SummaryRequest{Text: "text"})
	require.NoError(t, err)
	assert.Equal(t, "remote heading", summary.Heading)
}
