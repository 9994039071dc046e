// Package summarize holds the summarizer backends and the per-run
// selection between them.
package summarize

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/rpatel/newsbrief/internal/digest"
	nberrs "github.com/rpatel/newsbrief/internal/errors"
)

//go:embed system_prompt.txt
var systemPrompt string

// Cap on article text sent upstream, to stay well inside token limits.
const maxPromptChars = 8000

// Claude is the remote summarizer backend.
type Claude struct {
	client anthropic.Client
	model  anthropic.Model
}

var _ digest.Summarizer = (*Claude)(nil)

func NewClaude(client anthropic.Client) *Claude {
	return &Claude{
		client: client,
		model:  anthropic.Model("claude-haiku-4-5"),
	}
}

type claudeResult struct {
	Heading string `json:"heading"`
	Summary string `json:"summary"`
}

// Summarize sends the article text to Claude and parses the JSON
// heading/summary it returns. Auth, quota, and network failures all
// surface as upstream-unavailable so the caller can fall back locally.
func (c *Claude) Summarize(ctx context.Context, req digest.SummaryRequest) (digest.Summary, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return digest.Summary{}, nberrs.E(nberrs.KindEmptyInput, "no article text")
	}
	if len(text) > maxPromptChars {
		text = text[:maxPromptChars] + "..."
	}

	userMessage := fmt.Sprintf(`Article text:
---
%s
---
Constraints:
- Heading: short, 6 to 10 words.
- Summary: %d sentences at most, concise, no filler.
- Output JSON only: {"heading": "...", "summary": "..."}`, text, req.MaxSentences)

	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 512,
		System: []anthropic.TextBlockParam{{
			Text: systemPrompt,
		}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userMessage)),
		},
	})
	if err != nil {
		return digest.Summary{}, classifyClaudeErr(err)
	}

	var out strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	raw := strings.TrimSpace(out.String())

	var result claudeResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil || result.Summary == "" {
		// Model ignored the JSON contract; salvage the text.
		return digest.Summary{
			Heading: DeriveHeading(raw, req.Title),
			Body:    truncate(raw, 500),
		}, nil
	}

	return digest.Summary{
		Heading: result.Heading,
		Body:    result.Summary,
	}, nil
}

func classifyClaudeErr(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return nberrs.E(nberrs.KindUpstreamUnavailable, fmt.Errorf("claude returned %d: %w", apiErr.StatusCode, err))
	}

	return nberrs.E(nberrs.KindUpstreamUnavailable, fmt.Errorf("error reaching claude: %w", err))
}
