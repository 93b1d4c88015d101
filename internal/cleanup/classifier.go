package cleanup

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/inboxvalet/inboxvalet/internal/gmail"
	"github.com/inboxvalet/inboxvalet/internal/llm"
)

const (
	// promptLabelLimit bounds how many existing labels are offered to the
	// model so the prompt stays a predictable size.
	promptLabelLimit = 100
	// promptSnippetLimit caps the single-line snippet embedded in the prompt.
	promptSnippetLimit = 400
)

const cleanupPromptFormat = `You are triaging a busy founder's Gmail inbox so that only items requiring attention remain.
Classify the email described below and respond with a single JSON object containing:
- "category": one of ["spam", "receipt", "useful_archive", "requires_response", "should_read"]
- "label": label to use when category is "receipt" or "useful_archive"; otherwise use null or ""
- "confidence": number between 0 and 1
- "reason": brief justification
- "summary": concise (<160 chars) synopsis for the user

Guidelines:
- Use "spam" only for clear spam/phishing. These will be deleted.
- Use "receipt" for purchase confirmations or invoices. Always set "label" to "` + ReceiptLabel + `".
- Use "useful_archive" for reference info worth keeping. Prefer an existing label from this list: %s. If none apply, suggest a concise new label name in Title Case.
- Use "requires_response" when the founder needs to reply. Leave the email in the inbox; do not suggest additional labels.
- Use "should_read" for items to read soon without responding. Leave in inbox without new labels.
Always return valid JSON and nothing else.

Email metadata:
From: %s
To: %s
Date: %s
Subject: %s
Snippet: %s
`

// MessageClassifier produces a cleanup Decision for one message.
type MessageClassifier interface {
	Classify(ctx context.Context, meta gmail.MessageMeta, existingLabels []string) (Decision, error)
}

// Classifier formats a deterministic prompt from message headers and snippet
// and parses the backend's reply. It does not retry malformed output; the
// batch loop treats a parse failure as a per-message error.
type Classifier struct {
	LLM llm.Completer
}

func (c *Classifier) Classify(ctx context.Context, meta gmail.MessageMeta, existingLabels []string) (Decision, error) {
	prompt := BuildCleanupPrompt(meta, existingLabels)
	reply, err := c.LLM.Complete(ctx, prompt)
	if err != nil {
		return Decision{}, fmt.Errorf("classification backend: %w", err)
	}
	return ParseDecision(reply)
}

// BuildCleanupPrompt renders the classification prompt. Existing labels are
// deduplicated, sorted, and capped; the snippet is flattened to one line and
// truncated.
func BuildCleanupPrompt(meta gmail.MessageMeta, existingLabels []string) string {
	return fmt.Sprintf(cleanupPromptFormat,
		formatLabelList(existingLabels),
		meta.Header("From"),
		meta.Header("To"),
		meta.Header("Date"),
		meta.Header("Subject"),
		flattenSnippet(meta.Snippet),
	)
}

func formatLabelList(labels []string) string {
	seen := map[string]struct{}{}
	unique := make([]string, 0, len(labels))
	for _, l := range labels {
		if l == "" {
			continue
		}
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		unique = append(unique, l)
	}
	if len(unique) == 0 {
		return "None"
	}
	sort.Strings(unique)
	if len(unique) > promptLabelLimit {
		unique = unique[:promptLabelLimit]
	}
	return strings.Join(unique, ", ")
}

func flattenSnippet(snippet string) string {
	s := strings.ReplaceAll(snippet, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.TrimSpace(s)
	return truncateRunes(s, promptSnippetLimit)
}

// truncateRunes caps s at limit runes, never splitting a multi-byte character.
func truncateRunes(s string, limit int) string {
	n := 0
	for i := range s {
		if n == limit {
			return s[:i] + "..."
		}
		n++
	}
	return s
}
