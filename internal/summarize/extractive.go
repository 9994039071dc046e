package summarize

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/rpatel/newsbrief/internal/digest"
	nberrs "github.com/rpatel/newsbrief/internal/errors"
)

// Extractive is the local summarizer backend: frequency-based sentence
// ranking, no network. Never fails for non-empty input.
type Extractive struct{}

var _ digest.Summarizer = (*Extractive)(nil)

func NewExtractive() *Extractive {
	return &Extractive{}
}

func (e *Extractive) Summarize(_ context.Context, req digest.SummaryRequest) (digest.Summary, error) {
	text := cleanText(req.Text)
	if text == "" {
		return digest.Summary{}, nberrs.E(nberrs.KindEmptyInput, "no article text")
	}

	heading := DeriveHeading(text, req.Title)

	// Too short to rank; hand back what we have.
	if len(strings.Fields(text)) < 20 {
		return digest.Summary{
			Heading: heading,
			Body:    truncate(text, 300),
		}, nil
	}

	sentences := splitSentences(text)
	n := req.MaxSentences
	if n <= 0 {
		n = 4
	}
	if len(sentences) <= n {
		return digest.Summary{
			Heading: heading,
			Body:    strings.Join(sentences, " "),
		}, nil
	}

	// Score each sentence by the document-wide frequency of its
	// non-stopword terms, normalized by sentence length so long
	// sentences don't win by default.
	freq := wordFrequencies(text)
	type scored struct {
		idx   int
		score float64
	}
	ranked := make([]scored, len(sentences))
	for i, sentence := range sentences {
		var total float64
		words := contentWords(sentence)
		for _, w := range words {
			total += freq[w]
		}
		if len(words) > 0 {
			total /= float64(len(words))
		}
		ranked[i] = scored{idx: i, score: total}
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	top := ranked[:n]
	// Restore original order so the summary reads as prose.
	sort.Slice(top, func(i, j int) bool { return top[i].idx < top[j].idx })

	picked := make([]string, len(top))
	for i, s := range top {
		picked[i] = sentences[s.idx]
	}

	return digest.Summary{
		Heading: heading,
		Body:    strings.Join(picked, " "),
	}, nil
}

var (
	wsRE       = regexp.MustCompile(`\s+`)
	clutterRE  = regexp.MustCompile(`(?i)(advertisement|read more|subscribe)`)
	sentenceRE = regexp.MustCompile(`[^.!?]+[.!?]+`)
	wordRE     = regexp.MustCompile(`[a-z']+`)
)

// cleanText collapses whitespace and drops the boilerplate phrases
// article pages tend to leak into their body text.
func cleanText(text string) string {
	text = clutterRE.ReplaceAllString(text, "")
	text = wsRE.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

func splitSentences(text string) []string {
	matches := sentenceRE.FindAllString(text, -1)
	var out []string
	for _, m := range matches {
		m = strings.TrimSpace(m)
		if len(m) > 20 {
			out = append(out, m)
		}
	}
	if len(out) == 0 {
		return []string{text}
	}
	return out
}

func wordFrequencies(text string) map[string]float64 {
	freq := map[string]float64{}
	for _, w := range contentWords(text) {
		freq[w]++
	}
	return freq
}

func contentWords(text string) []string {
	var out []string
	for _, w := range wordRE.FindAllString(strings.ToLower(text), -1) {
		if stopwords[w] || len(w) < 3 {
			continue
		}
		out = append(out, w)
	}
	return out
}

var stopwords = func() map[string]bool {
	list := []string{
		"the", "and", "for", "are", "but", "not", "you", "all", "can",
		"had", "her", "was", "one", "our", "out", "has", "have", "been",
		"this", "that", "with", "from", "they", "will", "would", "there",
		"their", "what", "about", "which", "when", "were", "said", "his",
		"she", "him", "also", "more", "who", "its", "into", "than", "then",
		"them", "these", "some", "could", "other", "after", "over", "such",
	}
	m := make(map[string]bool, len(list))
	for _, w := range list {
		m[w] = true
	}
	return m
}()

// DeriveHeading builds a heading from the article title, or failing
// that the first sentence, truncated at a word boundary.
func DeriveHeading(text, title string) string {
	if len(title) > 10 {
		return truncateAtWord(title, 80)
	}

	sentences := splitSentences(text)
	if len(sentences) > 0 {
		return truncateAtWord(sentences[0], 80)
	}

	return "News Update"
}

func truncateAtWord(s string, limit int) string {
	s = strings.TrimSpace(s)
	if len(s) <= limit {
		return s
	}

	cut := s[:limit]
	if last := strings.LastIndex(cut, " "); last > limit/2 {
		cut = cut[:last]
	}

	return cut + "..."
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
