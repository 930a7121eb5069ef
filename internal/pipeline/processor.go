// Package pipeline drives a processing run: fetch labeled threads, classify
// each new message, reconcile into the application table, relabel threads,
// and recompute aggregates.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/jkoval/apptrack/internal/aggregate"
	"github.com/jkoval/apptrack/internal/fallback"
	"github.com/jkoval/apptrack/internal/gmail"
	"github.com/jkoval/apptrack/internal/oracle"
	"github.com/jkoval/apptrack/internal/reconcile"
	"github.com/jkoval/apptrack/internal/status"
	"github.com/jkoval/apptrack/internal/storage"
)

// MailQueue abstracts the labeled mail provider.
type MailQueue interface {
	ListThreads(ctx context.Context, labelID string, limit int) ([]gmail.Thread, error)
	ModifyThreadLabels(ctx context.Context, threadID string, add, remove []string) error
}

// Classifier abstracts the extraction oracle.
type Classifier interface {
	Extract(ctx context.Context, subject, body string) (oracle.Extraction, error)
}

// Store is the persistence surface the processor needs.
type Store interface {
	ListApplications() ([]storage.Application, error)
	InsertApplication(storage.Application) (storage.Application, error)
	UpdateApplication(storage.Application) error
	ProcessedMessageIDs() (map[string]bool, error)
	MarkProcessed(messageID string, at time.Time) error
	AcquireRunLease(holder string, ttl time.Duration) error
	ReleaseRunLease(holder string) error
}

// Options bound one run.
type Options struct {
	PendingLabel   string
	ProcessedLabel string
	MaxThreads     int           // threads fetched per run
	MaxMessages    int           // messages processed per run
	Budget         time.Duration // wall-clock ceiling, checked at loop granularity
	MessagesPerSec float64       // pacing toward the mail and oracle APIs
}

func (o *Options) setDefaults() {
	if o.MaxThreads <= 0 {
		o.MaxThreads = 25
	}
	if o.MaxMessages <= 0 {
		o.MaxMessages = 40
	}
	if o.Budget <= 0 {
		o.Budget = 4 * time.Minute
	}
	if o.MessagesPerSec <= 0 {
		o.MessagesPerSec = 1
	}
}

// Report summarizes one run.
type Report struct {
	RunID          string               `json:"run_id"`
	Started        time.Time            `json:"started"`
	Duration       time.Duration        `json:"duration"`
	Fetched        int                  `json:"fetched"`
	Skipped        int                  `json:"skipped"`
	Processed      int                  `json:"processed"`
	Created        int                  `json:"created"`
	Updated        int                  `json:"updated"`
	Manual         int                  `json:"manual"`
	Failed         int                  `json:"failed"`
	BudgetExceeded bool                 `json:"budget_exceeded"`
	Aggregates     aggregate.Aggregates `json:"aggregates"`
}

// Processor executes runs. Runs are serial: the storage lease rejects any
// overlapping attempt against the same database.
type Processor struct {
	queue   MailQueue
	oracle  Classifier
	store   Store
	opts    Options
	limiter *rate.Limiter
	now     func() time.Time
	logger  *slog.Logger
}

// New creates a Processor with the given collaborators.
func New(queue MailQueue, cls Classifier, store Store, opts Options) *Processor {
	opts.setDefaults()
	return &Processor{
		queue:   queue,
		oracle:  cls,
		store:   store,
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(opts.MessagesPerSec), 1),
		now:     time.Now,
		logger:  slog.Default(),
	}
}

// workItem pairs one message with its owning thread.
type workItem struct {
	threadID string
	msg      gmail.Message
}

// Run executes one full pass: Fetching → Sorting → PerMessageProcessing →
// Relabeling → Aggregating. One message's failure never aborts the batch;
// the budget and message cap truncate cleanly, leaving the rest for the
// next run.
func (p *Processor) Run(ctx context.Context) (Report, error) {
	started := p.now()
	report := Report{RunID: uuid.New().String(), Started: started.UTC()}

	leaseTTL := p.opts.Budget + time.Minute
	if err := p.store.AcquireRunLease(report.RunID, leaseTTL); err != nil {
		return report, fmt.Errorf("acquiring run lease: %w", err)
	}
	defer func() {
		if err := p.store.ReleaseRunLease(report.RunID); err != nil {
			p.logger.Error("failed to release run lease", "error", err)
		}
	}()

	processed, err := p.store.ProcessedMessageIDs()
	if err != nil {
		return report, fmt.Errorf("loading idempotence set: %w", err)
	}

	rows, err := p.store.ListApplications()
	if err != nil {
		return report, fmt.Errorf("loading applications: %w", err)
	}
	rec := reconcile.New(p.store, reconcile.NewIndex(rows))

	threads, err := p.queue.ListThreads(ctx, p.opts.PendingLabel, p.opts.MaxThreads)
	if err != nil {
		return report, fmt.Errorf("fetching threads: %w", err)
	}

	// Expand to messages, skipping anything already folded in. Ascending
	// date order keeps latest-wins merges deterministic even when a thread
	// delivered out of order.
	var items []workItem
	for _, t := range threads {
		for _, m := range t.Messages {
			report.Fetched++
			if processed[m.ID] {
				report.Skipped++
				continue
			}
			items = append(items, workItem{threadID: t.ID, msg: m})
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].msg.Date.Before(items[j].msg.Date)
	})

	// Threads with any manual, failed, or deferred message stay in the
	// pending queue for retry; a thread absent from this map relabels as
	// done.
	needsReview := make(map[string]bool)

	next := 0
	for ; next < len(items); next++ {
		item := items[next]

		if ctx.Err() != nil {
			report.BudgetExceeded = true
			break
		}
		if p.now().Sub(started) >= p.opts.Budget {
			p.logger.Info("wall-clock budget reached, deferring remaining messages",
				"processed", report.Processed)
			report.BudgetExceeded = true
			break
		}
		if report.Processed+report.Failed >= p.opts.MaxMessages {
			break
		}

		if err := p.limiter.Wait(ctx); err != nil {
			report.BudgetExceeded = true
			break
		}

		outcome, err := p.processMessage(ctx, rec, item.msg)
		if err != nil {
			// Not marked processed: the message stays retryable next run.
			p.logger.Warn("message processing failed",
				"message_id", item.msg.ID, "subject", item.msg.Subject, "error", err)
			needsReview[item.threadID] = true
			report.Failed++
			continue
		}

		processed[item.msg.ID] = true
		report.Processed++
		if outcome.Created {
			report.Created++
		} else {
			report.Updated++
		}
		if outcome.Manual {
			needsReview[item.threadID] = true
			report.Manual++
		}
	}

	// Deferred messages keep their threads pending so no work is lost.
	for _, item := range items[next:] {
		needsReview[item.threadID] = true
	}

	p.relabel(ctx, threads, needsReview)

	// Aggregates recompute unconditionally so out-of-band table edits are
	// reflected even on an idle run.
	finalRows, err := p.store.ListApplications()
	if err != nil {
		return report, fmt.Errorf("loading applications for aggregation: %w", err)
	}
	report.Aggregates = aggregate.Compute(finalRows)
	report.Duration = p.now().Sub(started)

	p.logger.Info("run complete",
		"run_id", report.RunID,
		"fetched", report.Fetched, "skipped", report.Skipped,
		"processed", report.Processed, "created", report.Created,
		"updated", report.Updated, "manual", report.Manual,
		"failed", report.Failed, "budget_exceeded", report.BudgetExceeded,
	)
	return report, nil
}

// processMessage classifies and reconciles a single message. A returned
// error means no table write happened; the caller must leave the message
// unprocessed. Panics are contained here so one malformed message cannot
// abort the batch.
func (p *Processor) processMessage(ctx context.Context, rec *reconcile.Reconciler, msg gmail.Message) (outcome reconcile.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic processing message %s: %v", msg.ID, r)
		}
	}()

	ext := p.classify(ctx, msg)

	outcome, err = rec.Apply(ext)
	if err != nil {
		return reconcile.Outcome{}, err
	}

	// Uniform rule: processed means a table write happened, manual-review
	// rows included. Failures above never reach this point.
	if err := p.store.MarkProcessed(msg.ID, p.now()); err != nil {
		return reconcile.Outcome{}, fmt.Errorf("marking processed: %w", err)
	}
	return outcome, nil
}

// classify runs the oracle with deterministic fallback. This stage cannot
// fail: at worst every field degrades to the sentinel.
func (p *Processor) classify(ctx context.Context, msg gmail.Message) reconcile.Extraction {
	fb := fallback.Extract(msg.Subject, msg.Body, msg.From)

	ext := reconcile.Extraction{
		Company:      fb.Company,
		JobTitle:     fb.JobTitle,
		Status:       fb.Status,
		Platform:     fb.Platform,
		EmailDate:    msg.Date,
		EmailID:      msg.ID,
		EmailSubject: msg.Subject,
		EmailLink:    msg.Link,
	}

	res, err := p.oracle.Extract(ctx, msg.Subject, msg.Body)
	if err != nil {
		if !errors.Is(err, oracle.ErrUnavailable) {
			p.logger.Warn("unexpected oracle error, using fallback", "error", err)
		}
		return ext
	}

	// Oracle fields win where resolved; sentinel fields keep the pattern
	// extraction's attempt.
	if res.Company != status.ManualReview {
		ext.Company = res.Company
	}
	if res.JobTitle != status.ManualReview {
		ext.JobTitle = res.JobTitle
	}
	switch res.Status {
	case status.ManualReview, status.UpdateOther:
		// Catch-all oracle status: prefer the keyword scan when it found a
		// concrete category; its applied-default is no more specific.
		if fb.Status != status.Applied {
			ext.Status = fb.Status
		} else {
			ext.Status = res.Status
		}
	default:
		ext.Status = res.Status
	}
	return ext
}

// relabel moves fully-done threads to the processed label. Threads with
// manual or failed messages stay pending, producing automatic retry on the
// next run. A thread whose every message was already processed counts as
// done — this recovers threads orphaned by a crash between write and
// relabel.
func (p *Processor) relabel(ctx context.Context, threads []gmail.Thread, needsReview map[string]bool) {
	for _, t := range threads {
		if needsReview[t.ID] {
			continue
		}
		err := p.queue.ModifyThreadLabels(ctx, t.ID, []string{p.opts.ProcessedLabel}, []string{p.opts.PendingLabel})
		if err != nil {
			p.logger.Warn("relabeling thread failed, will retry next run", "thread_id", t.ID, "error", err)
		}
	}
}
