package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/inboxvalet/inboxvalet/internal/gmail"
	"github.com/inboxvalet/inboxvalet/internal/rate"
)

// DecisionLog records per-message audit entries. Recording is best-effort;
// failures are logged and never surfaced to the run.
type DecisionLog interface {
	RecordDecision(ctx context.Context, mailbox, gmailID string, payload any) error
}

// Spec configures one cleanup run for one mailbox.
type Spec struct {
	Mailbox   string
	BatchSize int64
	// AwaitConfirmation blocks between batches until the operator answers the
	// batch report (or the confirmation timeout fires).
	AwaitConfirmation bool
	// SingleBatch processes at most one page and then stops cleanly.
	SingleBatch bool
	// AutoReauth permits one forced reauthorization per run when the provider
	// reports an authorization or scope failure.
	AutoReauth bool
}

// RunResult is the terminal value of a completed (or operator-stopped) run.
// A fatal provider failure returns an error and no partial result.
type RunResult struct {
	Mailbox          string           `json:"email"`
	Processed        int              `json:"processed_messages"`
	Batches          int              `json:"batches_processed"`
	Counts           map[Category]int `json:"counts"`
	RequiresResponse []MessageRecord  `json:"requires_response"`
	ShouldRead       []MessageRecord  `json:"should_read"`
	Errors           []MessageError   `json:"errors"`
	ErrorCount       int              `json:"error_count"`
	StoppedEarly     bool             `json:"stopped_early"`
}

// Progress is handed to the optional progress callback after every batch.
type Progress struct {
	Batch            int
	ProcessedInBatch int
	TotalProcessed   int
	TotalEstimate    int64
	HasMore          bool
}

// Service owns one mailbox's cleanup loop. All collaborators are narrow
// interfaces so the loop is testable without Gmail, the LLM, or Telegram.
type Service struct {
	Factory    gmail.Factory
	Classifier MessageClassifier
	Reporter   *Reporter
	Audit      DecisionLog
	Limiter    rate.Limiter
	Log        *slog.Logger
	// OnProgress, when set, is invoked synchronously after each batch.
	OnProgress func(Progress)
}

// NewService constructs a Service with sane defaults.
func NewService(factory gmail.Factory, classifier MessageClassifier, reporter *Reporter, log *slog.Logger) *Service {
	if log == nil {
		log = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &Service{
		Factory:    factory,
		Classifier: classifier,
		Reporter:   reporter,
		Log:        log,
	}
}

// Run drives the batch loop: list a page of inbox ids, classify and act on
// each message, report the batch, and continue until the mailbox is drained,
// the operator stops the run, or ctx is cancelled. Per-message failures are
// absorbed into the result's error list; listing failures are fatal.
func (s *Service) Run(ctx context.Context, spec Spec) (*RunResult, error) {
	if spec.BatchSize <= 0 {
		return nil, fmt.Errorf("%w: batch size must be a positive integer", ErrInvalidArgument)
	}
	client, err := s.Factory.Connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect gmail: %w", err)
	}
	r := &run{
		svc:    s,
		spec:   spec,
		client: client,
		labels: NewLabelCache(client),
		result: &RunResult{
			Mailbox:          spec.Mailbox,
			Counts:           zeroCounts(),
			RequiresResponse: []MessageRecord{},
			ShouldRead:       []MessageRecord{},
			Errors:           []MessageError{},
		},
	}
	return r.execute(ctx)
}

func zeroCounts() map[Category]int {
	counts := make(map[Category]int, len(Categories))
	for _, cat := range Categories {
		counts[cat] = 0
	}
	return counts
}

// run holds the mutable state of a single invocation: the (possibly swapped)
// client, the per-run label cache, and the accumulating result.
type run struct {
	svc      *Service
	spec     Spec
	client   gmail.Client
	labels   *LabelCache
	reauthed bool
	result   *RunResult
}

type batchState struct {
	counts     map[Category]int
	requiring  []MessageRecord
	shouldRead []MessageRecord
	errors     int
	attempted  int
}

func (r *run) execute(ctx context.Context) (*RunResult, error) {
	res := r.result
	pageToken := ""
	estimate := int64(-1)

	for {
		page, err := r.listPage(ctx, pageToken)
		if err != nil {
			return nil, err
		}
		if estimate < 0 {
			estimate = page.ResultSizeEstimate
		}
		if len(page.IDs) == 0 {
			break
		}

		res.Batches++
		batch := &batchState{counts: zeroCounts()}
		cancelled := false
		for _, id := range page.IDs {
			if ctx.Err() != nil {
				cancelled = true
				break
			}
			r.processMessage(ctx, id, batch)
		}
		res.Processed += batch.attempted
		pageToken = page.NextPageToken
		hasMore := pageToken != ""

		if cancelled {
			res.StoppedEarly = true
			r.flushCancelled(ctx)
			break
		}

		rep := BatchReport{
			Mailbox:          r.spec.Mailbox,
			BatchNumber:      res.Batches,
			BatchSize:        r.spec.BatchSize,
			ProcessedInBatch: batch.attempted,
			BatchCounts:      batch.counts,
			TotalCounts:      res.Counts,
			Requiring:        batch.requiring,
			ShouldRead:       batch.shouldRead,
			ErrorsInBatch:    batch.errors,
			TotalErrors:      len(res.Errors),
			TotalProcessed:   res.Processed,
			TotalEstimate:    estimate,
			HasMore:          hasMore,
		}
		if r.svc.OnProgress != nil {
			r.svc.OnProgress(Progress{
				Batch:            rep.BatchNumber,
				ProcessedInBatch: rep.ProcessedInBatch,
				TotalProcessed:   rep.TotalProcessed,
				TotalEstimate:    rep.TotalEstimate,
				HasMore:          hasMore,
			})
		}

		outcome := OutcomeContinue
		if r.svc.Reporter != nil {
			outcome = r.svc.Reporter.Report(ctx, rep, r.spec.AwaitConfirmation)
		}
		if outcome == OutcomeStop {
			res.StoppedEarly = true
			break
		}
		if !hasMore || r.spec.SingleBatch {
			break
		}
		if ctx.Err() != nil {
			res.StoppedEarly = true
			r.flushCancelled(ctx)
			break
		}
	}

	res.ErrorCount = len(res.Errors)
	return res, nil
}

// listPage fetches one page of inbox ids, retrying exactly once through a
// forced reauthorization when that is enabled. Without a successful retry the
// failure is fatal to the whole run.
func (r *run) listPage(ctx context.Context, pageToken string) (gmail.ListPage, error) {
	if err := r.wait(ctx); err != nil {
		return gmail.ListPage{}, err
	}
	page, err := r.client.ListInbox(ctx, pageToken, r.spec.BatchSize)
	if err == nil {
		return page, nil
	}
	if gmail.IsPermissionDenied(err) && r.spec.AutoReauth && !r.reauthed {
		if rerr := r.reauthorize(ctx); rerr != nil {
			return gmail.ListPage{}, fmt.Errorf("list inbox: %w", err)
		}
		if werr := r.wait(ctx); werr != nil {
			return gmail.ListPage{}, werr
		}
		page, err = r.client.ListInbox(ctx, pageToken, r.spec.BatchSize)
		if err == nil {
			return page, nil
		}
	}
	return gmail.ListPage{}, fmt.Errorf("list inbox: %w", err)
}

// processMessage runs the fetch→classify→apply pipeline for one id. Whatever
// goes wrong is recorded as a per-message error; the batch always continues.
func (r *run) processMessage(ctx context.Context, id gmail.MessageID, batch *batchState) {
	batch.attempted++
	rec := decisionRecord{Mode: "cleanup"}
	if err := r.handleMessage(ctx, id, batch, &rec); err != nil {
		rec.Status = "error"
		rec.Error = err.Error()
		batch.errors++
		r.result.Errors = append(r.result.Errors, MessageError{GmailID: string(id), Error: err.Error()})
	}
	r.audit(ctx, id, rec)
}

func (r *run) handleMessage(ctx context.Context, id gmail.MessageID, batch *batchState, rec *decisionRecord) error {
	meta, err := r.fetchMeta(ctx, id)
	if err != nil {
		return err
	}
	rec.Metadata = &recordMetadata{Snippet: meta.Snippet, Headers: meta.Headers}

	names, err := r.labels.UserLabelNames(ctx)
	if err != nil {
		return err
	}
	dec, err := r.svc.Classifier.Classify(ctx, meta, names)
	if err != nil {
		return err
	}
	rec.Decision = &dec

	action, err := applyDecision(ctx, r.client, id, dec, r.labels)
	if err != nil {
		return err
	}
	rec.Status = "processed"
	rec.ActionDetail = &action

	batch.counts[dec.Category]++
	r.result.Counts[dec.Category]++

	record := MessageRecord{
		GmailID: string(id),
		Subject: meta.Header("Subject"),
		From:    meta.Header("From"),
		Summary: dec.Summary,
		Reason:  dec.Reason,
	}
	if record.Subject == "" {
		record.Subject = "(no subject)"
	}
	if record.Summary == "" {
		record.Summary = flattenSnippet(meta.Snippet)
	}
	switch dec.Category {
	case CategoryRequiresResponse:
		batch.requiring = append(batch.requiring, record)
		r.result.RequiresResponse = append(r.result.RequiresResponse, record)
	case CategoryShouldRead:
		batch.shouldRead = append(batch.shouldRead, record)
		r.result.ShouldRead = append(r.result.ShouldRead, record)
	}
	return nil
}

// fetchMeta prefers a metadata-format read, falls back to a full read when
// the token's scopes reject metadata, and forces one reauthorization per run
// when even that fails with a permission error.
func (r *run) fetchMeta(ctx context.Context, id gmail.MessageID) (gmail.MessageMeta, error) {
	meta, err := r.getMessage(ctx, id)
	if err == nil || !gmail.IsPermissionDenied(err) {
		return meta, err
	}
	if r.spec.AutoReauth && !r.reauthed {
		if rerr := r.reauthorize(ctx); rerr != nil {
			return gmail.MessageMeta{}, err
		}
		return r.getMessage(ctx, id)
	}
	return gmail.MessageMeta{}, err
}

func (r *run) getMessage(ctx context.Context, id gmail.MessageID) (gmail.MessageMeta, error) {
	if err := r.wait(ctx); err != nil {
		return gmail.MessageMeta{}, err
	}
	meta, err := r.client.GetMessage(ctx, id, false)
	if err == nil || !gmail.IsPermissionDenied(err) {
		return meta, err
	}
	if werr := r.wait(ctx); werr != nil {
		return gmail.MessageMeta{}, werr
	}
	return r.client.GetMessage(ctx, id, true)
}

func (r *run) reauthorize(ctx context.Context) error {
	r.reauthed = true
	client, err := r.svc.Factory.Reauthorize(ctx)
	if err != nil {
		return fmt.Errorf("reauthorize: %w", err)
	}
	r.client = client
	r.labels = NewLabelCache(client)
	r.svc.Log.Info("gmail client reauthorized", "mailbox", r.spec.Mailbox)
	return nil
}

func (r *run) flushCancelled(ctx context.Context) {
	r.svc.Log.Info("cleanup cancelled", "mailbox", r.spec.Mailbox, "processed", r.result.Processed)
	if r.svc.Reporter == nil {
		return
	}
	r.svc.Reporter.SendText(context.WithoutCancel(ctx),
		fmt.Sprintf("Inbox cleanup for %s cancelled after %d messages.", r.spec.Mailbox, r.result.Processed))
}

func (r *run) audit(ctx context.Context, id gmail.MessageID, rec decisionRecord) {
	if r.svc.Audit == nil {
		return
	}
	if err := r.svc.Audit.RecordDecision(context.WithoutCancel(ctx), r.spec.Mailbox, string(id), rec); err != nil {
		r.svc.Log.Warn("audit record failed", "mailbox", r.spec.Mailbox, "gmail_id", string(id), "error", err)
	}
}

func (r *run) wait(ctx context.Context) error {
	if r.svc.Limiter == nil {
		return nil
	}
	if err := r.svc.Limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}
	return nil
}

// decisionRecord is the audit-log payload for one message.
type decisionRecord struct {
	Mode         string          `json:"mode"`
	Status       string          `json:"status"`
	Metadata     *recordMetadata `json:"metadata,omitempty"`
	Decision     *Decision       `json:"decision,omitempty"`
	ActionDetail *ActionRecord   `json:"action_detail,omitempty"`
	Error        string          `json:"error,omitempty"`
}

type recordMetadata struct {
	Snippet string            `json:"snippet"`
	Headers map[string]string `json:"headers"`
}
