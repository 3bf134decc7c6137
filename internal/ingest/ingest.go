// Package ingest drives the budgeted, idempotent fold of unseen messages
// into the aggregate store.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/charmbracelet/log"

	"mailcensus/internal/classify"
	"mailcensus/internal/identity"
	"mailcensus/internal/model"
	"mailcensus/internal/store"
)

// Source is the paginated message-reference source. Authentication is the
// caller's concern; both calls are strictly sequential, one at a time.
type Source interface {
	// ListPage returns one page of message ids plus the token of the next
	// page, or "" when the source is exhausted.
	ListPage(ctx context.Context, pageToken string) (ids []string, nextToken string, err error)
	// Metadata fetches the From/Subject headers and label ids for one message.
	Metadata(ctx context.Context, id string) (model.MessageMeta, error)
}

// Runner executes one ingestion run: page through the source, fold every
// unseen message into the store, stop on budget, exhaustion, or
// cancellation, and flush exactly once before returning.
type Runner struct {
	Source Source
	Store  store.Store
	// Budget caps the new messages folded this run; non-positive means no cap.
	Budget int
	Logger *log.Logger
	// Now is the clock used for first/last-seen stamps; nil means time.Now.
	Now func() time.Time
}

// Run processes messages until a stop condition fires. The returned summary
// reflects exactly what was persisted. Cancellation is observed between
// messages, never mid-update, and still ends in a flush; the only path that
// skips the flush is a source failure before anything changed, which is a
// fatal setup error.
func (r *Runner) Run(ctx context.Context) (model.RunSummary, error) {
	now := r.Now
	if now == nil {
		now = time.Now
	}
	logger := r.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	budget := r.Budget
	if budget <= 0 {
		budget = math.MaxInt
	}

	var sum model.RunSummary
	pageToken := ""
	pages := 0

paging:
	for {
		if ctx.Err() != nil {
			sum.Interrupted = true
			break
		}
		ids, next, err := r.Source.ListPage(ctx, pageToken)
		if err != nil {
			if canceled(ctx, err) {
				sum.Interrupted = true
				break
			}
			if pages == 0 && sum.Processed == 0 {
				// Nothing has changed; abort without touching storage.
				return sum, fmt.Errorf("list messages: %w", err)
			}
			logger.Warn("page fetch failed; stopping early", "err", err)
			break
		}
		pages++
		logger.Debug("page fetched", "page", pages, "refs", len(ids))

		for _, id := range ids {
			if ctx.Err() != nil {
				sum.Interrupted = true
				break paging
			}
			if r.Store.Seen(id) {
				continue
			}
			meta, err := r.Source.Metadata(ctx, id)
			switch {
			case err != nil && canceled(ctx, err):
				sum.Interrupted = true
				break paging
			case err != nil:
				// Mark failing messages processed so a permanently
				// malformed message is not retried forever.
				logger.Warn("message fetch failed; recorded without aggregate update", "id", id, "err", err)
				r.Store.MarkSeen(id)
				sum.Processed++
				sum.Failed++
			default:
				sender := identity.Extract(meta.From)
				category := classify.Classify(meta.Subject, meta.Labels)
				r.Store.Upsert(sender, category, now())
				r.Store.MarkSeen(id)
				sum.Processed++
				logger.Debug("message folded", "id", id, "key", identity.Key(sender), "category", category)
			}
			if sum.Processed >= budget {
				logger.Debug("budget reached", "budget", budget)
				break paging
			}
		}

		if next == "" {
			break
		}
		pageToken = next
	}

	// Flush exactly once on every exit path, including interruption. The
	// flush itself must not be cut short by the cancellation that stopped
	// the run.
	if err := r.Store.Flush(context.WithoutCancel(ctx)); err != nil {
		return sum, fmt.Errorf("flush stores: %w", err)
	}
	sum.TotalSenders = r.Store.SenderCount()
	return sum, nil
}

func canceled(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
