package watch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/inboxvalet/inboxvalet/internal/store"
)

// DigestStore is the slice of the store the digest sender needs.
type DigestStore interface {
	QueuedAlerts(ctx context.Context) ([]store.Alert, error)
	MarkAlertsSent(ctx context.Context, ids []int64) error
}

// Digest flushes alerts queued by alert_today triage decisions into a single
// summary message, typically from a daily cron.
type Digest struct {
	Store  DigestStore
	Alerts Alerter
	Log    *slog.Logger
}

// Send delivers the queued alerts and marks them sent. Nothing is sent when
// the queue is empty; alerts stay queued when delivery fails.
func (d *Digest) Send(ctx context.Context) (int, error) {
	alerts, err := d.Store.QueuedAlerts(ctx)
	if err != nil {
		return 0, fmt.Errorf("load queued alerts: %w", err)
	}
	if len(alerts) == 0 {
		if d.Log != nil {
			d.Log.Info("alert queue empty, no digest sent")
		}
		return 0, nil
	}

	if err := d.Alerts.Send(ctx, renderDigest(alerts)); err != nil {
		return 0, fmt.Errorf("send digest: %w", err)
	}

	ids := make([]int64, 0, len(alerts))
	for _, a := range alerts {
		ids = append(ids, a.ID)
	}
	if err := d.Store.MarkAlertsSent(ctx, ids); err != nil {
		return len(alerts), fmt.Errorf("mark alerts sent: %w", err)
	}
	return len(alerts), nil
}

func renderDigest(alerts []store.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Daily email digest (%d items)\n", len(alerts))
	for _, a := range alerts {
		summary := a.Summary
		if summary == "" {
			summary = "(no summary)"
		}
		fmt.Fprintf(&b, "- %s\n", summary)
	}
	return b.String()
}
