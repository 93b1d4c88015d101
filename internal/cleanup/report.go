package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// BatchReport is the per-page aggregate handed to the reporter after a batch
// completes. It is never mutated once built.
type BatchReport struct {
	Mailbox          string
	BatchNumber      int
	BatchSize        int64
	ProcessedInBatch int
	BatchCounts      map[Category]int
	TotalCounts      map[Category]int
	Requiring        []MessageRecord
	ShouldRead       []MessageRecord
	ErrorsInBatch    int
	TotalErrors      int
	TotalProcessed   int
	TotalEstimate    int64 // <= 0 when the provider gave no estimate
	HasMore          bool
}

// reportExampleLimit caps how many example subjects each list shows.
const reportExampleLimit = 5

// Render produces the operator-facing summary text in canonical category
// order.
func (r BatchReport) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Inbox cleanup for %s\n", r.Mailbox)
	fmt.Fprintf(&b, "Batch %d: processed %d messages.\n", r.BatchNumber, r.ProcessedInBatch)
	if r.TotalEstimate > 0 {
		fmt.Fprintf(&b, "Processed so far: %d of ~%d\n", r.TotalProcessed, r.TotalEstimate)
	} else {
		fmt.Fprintf(&b, "Processed so far: %d\n", r.TotalProcessed)
	}

	b.WriteString("\nThis batch:\n")
	writeCounts(&b, r.BatchCounts, r.ErrorsInBatch)
	b.WriteString("\nCumulative:\n")
	writeCounts(&b, r.TotalCounts, r.TotalErrors)

	writeExamples(&b, "Requires response:", r.Requiring)
	writeExamples(&b, "Should read:", r.ShouldRead)
	return b.String()
}

func writeCounts(b *strings.Builder, counts map[Category]int, errors int) {
	for _, cat := range Categories {
		fmt.Fprintf(b, "- %s: %d\n", cat.Display(), counts[cat])
	}
	if errors > 0 {
		fmt.Fprintf(b, "- Errors: %d\n", errors)
	}
}

func writeExamples(b *strings.Builder, heading string, items []MessageRecord) {
	if len(items) == 0 {
		return
	}
	b.WriteString("\n" + heading + "\n")
	for i, item := range items {
		if i == reportExampleLimit {
			break
		}
		subject := item.Subject
		if subject == "" {
			subject = "(no subject)"
		}
		if item.From != "" {
			fmt.Fprintf(b, "- %s (%s)\n", subject, item.From)
		} else {
			fmt.Fprintf(b, "- %s\n", subject)
		}
	}
}

// Outcome is the operator's (or the reporter's fail-safe) decision after a
// batch summary.
type Outcome string

const (
	OutcomeContinue Outcome = "continue"
	OutcomeStop     Outcome = "stop"
)

// Action is an interactive token attached to an outgoing notification.
type Action struct {
	Label string
	Token string
}

// Notifier is the outbound notification channel. Send failures never halt a
// cleanup run; AwaitSelection returns the selected token or "" on timeout.
type Notifier interface {
	Send(ctx context.Context, text string, actions []Action) error
	AwaitSelection(ctx context.Context, tokens []string, timeout time.Duration) (string, error)
}

// defaultConfirmTimeout bounds how long a run waits for the operator between
// batches before pausing (fail-closed).
const defaultConfirmTimeout = 300 * time.Second

// Reporter renders batch summaries, sends them over the notification channel,
// and optionally blocks for the operator's continue/stop selection.
type Reporter struct {
	Channel        Notifier
	Log            *slog.Logger
	ConfirmTimeout time.Duration
	// NewToken generates the opaque confirmation token; overridable in tests.
	NewToken func() string
}

// Report sends the batch summary and resolves the operator's decision.
// A missing or failing channel, a final batch, or awaitConfirmation=false all
// resolve to continue without blocking. An unanswered confirmation resolves
// to stop so an unattended run pauses instead of churning on.
func (r *Reporter) Report(ctx context.Context, rep BatchReport, awaitConfirmation bool) Outcome {
	if r.Channel == nil {
		return OutcomeContinue
	}
	log := r.Log
	if log == nil {
		log = slog.Default()
	}

	var actions []Action
	var continueToken, stopToken string
	if rep.HasMore {
		token := r.token()
		continueToken = fmt.Sprintf("inbox-cleanup:%s:continue", token)
		stopToken = fmt.Sprintf("inbox-cleanup:%s:stop", token)
		actions = []Action{
			{Label: fmt.Sprintf("Continue to next %d", rep.BatchSize), Token: continueToken},
			{Label: "Stop cleanup", Token: stopToken},
		}
	}

	if err := r.Channel.Send(ctx, rep.Render(), actions); err != nil {
		log.Warn("batch report send failed", "mailbox", rep.Mailbox, "batch", rep.BatchNumber, "error", err)
		return OutcomeContinue
	}
	if !rep.HasMore || !awaitConfirmation {
		return OutcomeContinue
	}

	timeout := r.ConfirmTimeout
	if timeout <= 0 {
		timeout = defaultConfirmTimeout
	}
	selected, err := r.Channel.AwaitSelection(ctx, []string{continueToken, stopToken}, timeout)
	if err != nil {
		log.Warn("confirmation wait failed", "mailbox", rep.Mailbox, "error", err)
		selected = ""
	}

	switch selected {
	case continueToken:
		return OutcomeContinue
	case stopToken:
		r.send(ctx, "Stopping inbox cleanup at your request.")
		return OutcomeStop
	default:
		r.send(ctx, "No response received. Inbox cleanup paused.")
		return OutcomeStop
	}
}

// SendText delivers a plain informational message, best-effort.
func (r *Reporter) SendText(ctx context.Context, text string) {
	if r.Channel == nil {
		return
	}
	r.send(ctx, text)
}

func (r *Reporter) send(ctx context.Context, text string) {
	if err := r.Channel.Send(ctx, text, nil); err != nil && r.Log != nil {
		r.Log.Warn("notification send failed", "error", err)
	}
}

func (r *Reporter) token() string {
	if r.NewToken != nil {
		return r.NewToken()
	}
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
