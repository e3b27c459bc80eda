package service

import (
	"context"
	"fmt"
	"strings"

	"klee-ai/internal/llm"
)

const titlePrompt = "Summarize the conversation below as a title of at most ten words. " +
	"Reply with the title only, without quotes or punctuation at the end.\n" +
	"Question: %s\n" +
	"Answer: %s\n" +
	"Title: "

// maxTitleRunes caps stored titles.
const maxTitleRunes = 60

// TitleGenerator names untitled conversations after their first answer.
type TitleGenerator struct{}

// Generate asks p for a short title. Reasoning blocks, quotes and a trailing
// period are removed.
func (TitleGenerator) Generate(ctx context.Context, p llm.Provider, question, answer string) (string, error) {
	reply, err := p.Complete(ctx, fmt.Sprintf(titlePrompt, question, truncateRunes(answer, 500)))
	if err != nil {
		return "", fmt.Errorf("failed to generate title: %w", err)
	}

	title := llm.StripThinking(reply)
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = title[:i]
	}
	title = strings.TrimSpace(strings.Trim(strings.TrimSpace(title), `"'`))
	title = strings.TrimSuffix(title, ".")
	if title == "" {
		return "", fmt.Errorf("model returned an empty title")
	}
	return truncateRunes(title, maxTitleRunes), nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
