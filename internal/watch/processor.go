package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/inboxvalet/inboxvalet/internal/cleanup"
	"github.com/inboxvalet/inboxvalet/internal/gmail"
	"github.com/inboxvalet/inboxvalet/internal/rate"
	"github.com/inboxvalet/inboxvalet/internal/store"
)

// StateStore is the slice of the store the processor needs.
type StateStore interface {
	Mailbox(ctx context.Context, email string) (*store.MailboxState, error)
	UpsertMailbox(ctx context.Context, st store.MailboxState) error
	LogAlert(ctx context.Context, mailbox, gmailID, summary, status, errorDetail string) error
	RecordDecision(ctx context.Context, mailbox, gmailID string, payload any) error
}

// Alerter delivers an immediate plain-text alert to the operator.
type Alerter interface {
	Send(ctx context.Context, text string) error
}

// Result summarizes one processed notification.
type Result struct {
	Mailbox      string `json:"email"`
	Processed    int    `json:"processed_messages"`
	AlertsSent   int    `json:"alerts_sent"`
	AlertsQueued int    `json:"alerts_queued"`
	Errors       int    `json:"error_count"`
	HistoryID    uint64 `json:"history_id"`
}

// Processor turns Gmail push notifications into triage actions. It pages the
// mailbox history since the stored cursor, classifies each added message, and
// applies the verdict.
type Processor struct {
	Factory    gmail.Factory
	Classifier Classifier
	Store      StateStore
	Alerts     Alerter
	Limiter    rate.Limiter
	Log        *slog.Logger
	// AutoReauth permits one forced reauthorization per notification when the
	// provider reports an authorization or scope failure.
	AutoReauth bool
}

func NewProcessor(factory gmail.Factory, classifier Classifier, st StateStore, log *slog.Logger) *Processor {
	if log == nil {
		log = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &Processor{Factory: factory, Classifier: classifier, Store: st, Log: log}
}

// ProcessEnvelope decodes a Pub/Sub envelope and processes the notification
// it carries. A non-Gmail envelope is skipped without error.
func (p *Processor) ProcessEnvelope(ctx context.Context, raw []byte) (*Result, error) {
	notification, err := ParseEnvelope(raw)
	if err != nil {
		return nil, err
	}
	if notification == nil {
		p.Log.Info("envelope carried no gmail notification, skipping")
		return nil, nil
	}
	return p.Process(ctx, *notification)
}

// Process fetches history since the stored cursor (falling back to the
// notification's own history id on first contact) and triages every added
// message. The mailbox cursor is advanced afterwards even when individual
// messages failed.
func (p *Processor) Process(ctx context.Context, n Notification) (*Result, error) {
	state, err := p.Store.Mailbox(ctx, n.EmailAddress)
	if err != nil {
		return nil, err
	}
	start := n.HistoryID
	if state != nil && state.HistoryID != 0 {
		start = state.HistoryID
	}

	client, err := p.Factory.Connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect gmail: %w", err)
	}
	w := &worker{
		proc:    p,
		mailbox: n.EmailAddress,
		client:  client,
		labels:  cleanup.NewLabelCache(client),
		result:  &Result{Mailbox: n.EmailAddress},
	}
	if err := w.preflight(ctx); err != nil {
		return nil, err
	}

	ids, latest, err := w.collectAdded(ctx, start)
	if err != nil {
		return nil, err
	}
	if latest == 0 {
		latest = n.HistoryID
	}
	for _, id := range ids {
		w.processMessage(ctx, id)
	}

	w.result.HistoryID = latest
	expiration := n.Expiration
	if state != nil && expiration == 0 {
		expiration = state.WatchExpiration
	}
	if err := p.Store.UpsertMailbox(ctx, store.MailboxState{
		Email:           n.EmailAddress,
		HistoryID:       latest,
		WatchExpiration: expiration,
	}); err != nil {
		return nil, fmt.Errorf("advance mailbox cursor: %w", err)
	}
	return w.result, nil
}

// StartWatch registers push notifications for the mailbox and records the
// returned cursor so the first notification has a baseline.
func (p *Processor) StartWatch(ctx context.Context, mailbox, topic string) (gmail.WatchInfo, error) {
	client, err := p.Factory.Connect(ctx)
	if err != nil {
		return gmail.WatchInfo{}, fmt.Errorf("connect gmail: %w", err)
	}
	info, err := client.Watch(ctx, topic)
	if err != nil {
		return gmail.WatchInfo{}, fmt.Errorf("start watch: %w", err)
	}
	if err := p.Store.UpsertMailbox(ctx, store.MailboxState{
		Email:           mailbox,
		HistoryID:       info.HistoryID,
		WatchExpiration: info.Expiration,
	}); err != nil {
		return gmail.WatchInfo{}, err
	}
	return info, nil
}

// StopWatch cancels push notifications for the mailbox.
func (p *Processor) StopWatch(ctx context.Context) error {
	client, err := p.Factory.Connect(ctx)
	if err != nil {
		return fmt.Errorf("connect gmail: %w", err)
	}
	if err := client.StopWatch(ctx); err != nil {
		return fmt.Errorf("stop watch: %w", err)
	}
	return nil
}

// worker holds the mutable state of one notification's processing.
type worker struct {
	proc     *Processor
	mailbox  string
	client   gmail.Client
	labels   *cleanup.LabelCache
	reauthed bool
	result   *Result
}

// preflight verifies the token can list labels, forcing one reauthorization
// when that is enabled and the provider reports a scope problem.
func (w *worker) preflight(ctx context.Context) error {
	if err := w.wait(ctx); err != nil {
		return err
	}
	_, err := w.client.ListLabels(ctx)
	if err == nil {
		return nil
	}
	if gmail.IsPermissionDenied(err) && w.proc.AutoReauth && !w.reauthed {
		if rerr := w.reauthorize(ctx); rerr != nil {
			return fmt.Errorf("preflight: %w", err)
		}
		if _, err := w.client.ListLabels(ctx); err != nil {
			return fmt.Errorf("preflight after reauthorization: %w", err)
		}
		return nil
	}
	return fmt.Errorf("preflight: %w", err)
}

func (w *worker) collectAdded(ctx context.Context, start uint64) ([]gmail.MessageID, uint64, error) {
	var ids []gmail.MessageID
	var latest uint64
	pageToken := ""
	for {
		if err := w.wait(ctx); err != nil {
			return nil, 0, err
		}
		page, err := w.client.ListHistory(ctx, start, pageToken)
		if err != nil {
			return nil, 0, fmt.Errorf("list history: %w", err)
		}
		ids = append(ids, page.Added...)
		if page.HistoryID != 0 {
			latest = page.HistoryID
		}
		pageToken = page.NextPageToken
		if pageToken == "" {
			return ids, latest, nil
		}
	}
}

// processMessage triages one added message. Failures are absorbed: the
// decision record captures the error and the notification keeps going.
func (w *worker) processMessage(ctx context.Context, id gmail.MessageID) {
	rec := triageRecord{Mode: "watch"}
	if err := w.handleMessage(ctx, id, &rec); err != nil {
		rec.Status = "error"
		rec.Error = err.Error()
		w.result.Errors++
	} else {
		w.result.Processed++
	}
	if err := w.proc.Store.RecordDecision(context.WithoutCancel(ctx), w.mailbox, string(id), rec); err != nil {
		w.proc.Log.Warn("audit record failed", "mailbox", w.mailbox, "gmail_id", string(id), "error", err)
	}
}

func (w *worker) handleMessage(ctx context.Context, id gmail.MessageID, rec *triageRecord) error {
	meta, err := w.fetchMeta(ctx, id)
	if err != nil {
		return err
	}
	rec.Metadata = &recordMetadata{Snippet: meta.Snippet, Headers: meta.Headers}

	dec, err := w.proc.Classifier.Classify(ctx, meta)
	if err != nil {
		return err
	}
	rec.Decision = &dec

	if err := w.apply(ctx, id, dec); err != nil {
		return err
	}
	rec.Status = "processed"

	switch dec.Action {
	case ActionAlertImmediately:
		rec.AlertStatus = w.sendAlert(ctx, id, dec.Summary)
	case ActionAlertToday:
		if err := w.proc.Store.LogAlert(ctx, w.mailbox, string(id), dec.Summary, store.AlertQueued, ""); err != nil {
			w.proc.Log.Warn("queue alert failed", "gmail_id", string(id), "error", err)
		} else {
			w.result.AlertsQueued++
			rec.AlertStatus = store.AlertQueued
		}
	}
	return nil
}

// apply executes the triage verdict. Archive removes the inbox label; labels
// named by the decision are resolved (and created when missing) through the
// per-notification cache.
func (w *worker) apply(ctx context.Context, id gmail.MessageID, dec Decision) error {
	if dec.Action == ActionDelete {
		if err := w.wait(ctx); err != nil {
			return err
		}
		return w.client.DeleteMessage(ctx, id)
	}
	var add []gmail.LabelID
	for _, name := range dec.Labels {
		labelID, err := w.labels.Ensure(ctx, name, true)
		if err != nil {
			return err
		}
		add = append(add, labelID)
	}
	var remove []gmail.LabelID
	if dec.Action == ActionArchive {
		remove = append(remove, gmail.LabelInbox)
	}
	if len(add) == 0 && len(remove) == 0 {
		return nil
	}
	if err := w.wait(ctx); err != nil {
		return err
	}
	return w.client.ModifyLabels(ctx, id, add, remove)
}

func (w *worker) sendAlert(ctx context.Context, id gmail.MessageID, summary string) string {
	if w.proc.Alerts == nil {
		return ""
	}
	if err := w.proc.Alerts.Send(ctx, summary); err != nil {
		w.proc.Log.Warn("telegram alert failed", "gmail_id", string(id), "error", err)
		if lerr := w.proc.Store.LogAlert(ctx, w.mailbox, string(id), summary, store.AlertError, err.Error()); lerr != nil {
			w.proc.Log.Warn("log alert failed", "gmail_id", string(id), "error", lerr)
		}
		return store.AlertError
	}
	if err := w.proc.Store.LogAlert(ctx, w.mailbox, string(id), summary, store.AlertSent, ""); err != nil {
		w.proc.Log.Warn("log alert failed", "gmail_id", string(id), "error", err)
	}
	w.result.AlertsSent++
	return store.AlertSent
}

func (w *worker) fetchMeta(ctx context.Context, id gmail.MessageID) (gmail.MessageMeta, error) {
	meta, err := w.getMessage(ctx, id)
	if err == nil || !gmail.IsPermissionDenied(err) {
		return meta, err
	}
	if w.proc.AutoReauth && !w.reauthed {
		if rerr := w.reauthorize(ctx); rerr != nil {
			return gmail.MessageMeta{}, err
		}
		return w.getMessage(ctx, id)
	}
	return gmail.MessageMeta{}, err
}

func (w *worker) getMessage(ctx context.Context, id gmail.MessageID) (gmail.MessageMeta, error) {
	if err := w.wait(ctx); err != nil {
		return gmail.MessageMeta{}, err
	}
	meta, err := w.client.GetMessage(ctx, id, false)
	if err == nil || !gmail.IsPermissionDenied(err) {
		return meta, err
	}
	if werr := w.wait(ctx); werr != nil {
		return gmail.MessageMeta{}, werr
	}
	return w.client.GetMessage(ctx, id, true)
}

func (w *worker) reauthorize(ctx context.Context) error {
	w.reauthed = true
	client, err := w.proc.Factory.Reauthorize(ctx)
	if err != nil {
		return fmt.Errorf("reauthorize: %w", err)
	}
	w.client = client
	w.labels = cleanup.NewLabelCache(client)
	w.proc.Log.Info("gmail client reauthorized", "mailbox", w.mailbox)
	return nil
}

func (w *worker) wait(ctx context.Context) error {
	if w.proc.Limiter == nil {
		return nil
	}
	if err := w.proc.Limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}
	return nil
}

// triageRecord is the audit-log payload for one watched message.
type triageRecord struct {
	Mode        string          `json:"mode"`
	Status      string          `json:"status"`
	Metadata    *recordMetadata `json:"metadata,omitempty"`
	Decision    *Decision       `json:"decision,omitempty"`
	AlertStatus string          `json:"alert_status,omitempty"`
	Error       string          `json:"error,omitempty"`
}

type recordMetadata struct {
	Snippet string            `json:"snippet"`
	Headers map[string]string `json:"headers"`
}
