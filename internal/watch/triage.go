package watch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/inboxvalet/inboxvalet/internal/gmail"
	"github.com/inboxvalet/inboxvalet/internal/llm"
)

// Action is what to do with a newly arrived message.
type Action string

const (
	ActionAlertImmediately Action = "alert_immediately"
	ActionAlertToday       Action = "alert_today"
	ActionArchive          Action = "archive"
	ActionDelete           Action = "delete"
)

func (a Action) Valid() bool {
	switch a {
	case ActionAlertImmediately, ActionAlertToday, ActionArchive, ActionDelete:
		return true
	}
	return false
}

// ErrInvalidResponse marks an unusable model reply.
var ErrInvalidResponse = errors.New("invalid triage response")

// Decision is the parsed triage verdict for one message.
type Decision struct {
	Action     Action   `json:"action"`
	Summary    string   `json:"summary"`
	Confidence float64  `json:"confidence"`
	Reason     string   `json:"reason"`
	Labels     []string `json:"labels,omitempty"`
}

// Classifier produces a triage decision for a message.
type Classifier interface {
	Classify(ctx context.Context, meta gmail.MessageMeta) (Decision, error)
}

// CriteriaSource appends user-defined refinements to the base prompt.
type CriteriaSource interface {
	Augment(base string) (string, error)
}

const baseTriagePrompt = `You triage incoming email for a busy founder. Decide what should happen to
the message below and answer with a single JSON object, no prose:
{"action": "...", "summary": "...", "confidence": 0.0, "reason": "...", "labels": []}

Actions:
- "alert_immediately": time-sensitive and important; summary will be pushed to
  the founder right away. Summary is required.
- "alert_today": worth knowing about today but not urgent; goes into the daily
  digest. Summary is required.
- "archive": keep for reference but remove from the inbox. Optional labels
  name Gmail labels to apply.
- "delete": spam or worthless; remove permanently.

Confidence is a number between 0 and 1.`

// Triager builds the triage prompt and parses the model reply.
type Triager struct {
	LLM llm.Completer
	// Criteria is optional; when set, enabled user criteria are appended to
	// the base prompt before each call.
	Criteria   CriteriaSource
	BasePrompt string
}

func NewTriager(completer llm.Completer, criteria CriteriaSource) *Triager {
	return &Triager{LLM: completer, Criteria: criteria, BasePrompt: baseTriagePrompt}
}

func (t *Triager) Classify(ctx context.Context, meta gmail.MessageMeta) (Decision, error) {
	prompt, err := t.buildPrompt(meta)
	if err != nil {
		return Decision{}, err
	}
	raw, err := t.LLM.Complete(ctx, prompt)
	if err != nil {
		return Decision{}, fmt.Errorf("triage completion: %w", err)
	}
	return ParseDecision(raw)
}

func (t *Triager) buildPrompt(meta gmail.MessageMeta) (string, error) {
	base := t.BasePrompt
	if base == "" {
		base = baseTriagePrompt
	}
	if t.Criteria != nil {
		augmented, err := t.Criteria.Augment(base)
		if err != nil {
			return "", fmt.Errorf("augment triage prompt: %w", err)
		}
		base = augmented
	}
	return fmt.Sprintf("%s\n\nEmail metadata:\nFrom: %s\nTo: %s\nDate: %s\nSubject: %s\nSnippet: %s\n",
		base,
		meta.Header("From"),
		meta.Header("To"),
		meta.Header("Date"),
		meta.Header("Subject"),
		meta.Snippet,
	), nil
}

// ParseDecision decodes a triage reply. Unlike the cleanup parser this one
// accepts strict JSON only; fenced output from the triage model has not been
// observed.
func ParseDecision(raw string) (Decision, error) {
	var payload struct {
		Action     string          `json:"action"`
		Summary    string          `json:"summary"`
		Confidence json.RawMessage `json:"confidence"`
		Reason     string          `json:"reason"`
		Labels     []string        `json:"labels"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	action := Action(payload.Action)
	if !action.Valid() {
		return Decision{}, fmt.Errorf("%w: unknown action %q", ErrInvalidResponse, payload.Action)
	}
	summary := strings.TrimSpace(payload.Summary)
	if (action == ActionAlertImmediately || action == ActionAlertToday) && summary == "" {
		return Decision{}, fmt.Errorf("%w: alert action without a summary", ErrInvalidResponse)
	}
	return Decision{
		Action:     action,
		Summary:    summary,
		Confidence: parseConfidence(payload.Confidence),
		Reason:     strings.TrimSpace(payload.Reason),
		Labels:     payload.Labels,
	}, nil
}

func parseConfidence(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}
	text := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

var _ Classifier = (*Triager)(nil)
