// ABOUTME: Batch executor running heterogeneous send items sequentially and in order
// ABOUTME: Per-item failures are data; stop-on-error ends the run after the first failure

// Package batch executes ordered lists of send items.
package batch

import (
	"context"
	"log/slog"
	"strconv"
)

// Item statuses.
const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// Item is one entry of a batch. Type names the variant ("text", "media").
type Item interface {
	ItemType() string
}

// SendFunc performs the send for one item and returns the new message id.
type SendFunc[T Item] func(ctx context.Context, index int, item T) (int64, error)

// Options control a run.
type Options struct {
	StopOnError bool
}

// ItemResult is the outcome of one attempted item.
type ItemResult struct {
	Index     int    `json:"index"`
	Type      string `json:"type"`
	Status    string `json:"status"`
	MessageID string `json:"messageId,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Result is the aggregate outcome of a run. Items never attempted after an
// early stop have no entry in Results.
type Result struct {
	OK          bool         `json:"ok"`
	Total       int          `json:"total"`
	SentCount   int          `json:"sentCount"`
	FailedCount int          `json:"failedCount"`
	Results     []ItemResult `json:"results"`
}

// LastMessageID returns the id of the last successfully sent item.
func (r *Result) LastMessageID() (int64, bool) {
	for i := len(r.Results) - 1; i >= 0; i-- {
		if r.Results[i].Status == StatusSent {
			id, err := strconv.ParseInt(r.Results[i].MessageID, 10, 64)
			return id, err == nil
		}
	}
	return 0, false
}

// Executor runs batches.
type Executor struct {
	logger *slog.Logger
}

// NewExecutor creates an Executor.
func NewExecutor(logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{logger: logger.With("component", "batch")}
}

// Run sends items one at a time in input order. Successful sends before a
// failure stay sent; nothing is compensated. A cancelled context stops the
// run before the next item, which gets no result entry.
func Run[T Item](ctx context.Context, e *Executor, items []T, opts Options, send SendFunc[T]) Result {
	res := Result{Total: len(items), Results: make([]ItemResult, 0, len(items))}

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			e.logger.Debug("batch stopped", "index", i, "error", err)
			break
		}

		r := ItemResult{Index: i, Type: item.ItemType()}

		id, err := send(ctx, i, item)
		if err != nil {
			r.Status = StatusFailed
			r.Error = err.Error()
			res.Results = append(res.Results, r)
			res.FailedCount++
			e.logger.Debug("batch item failed", "index", i, "type", r.Type, "error", err)
			if opts.StopOnError {
				break
			}
			continue
		}

		r.Status = StatusSent
		r.MessageID = strconv.FormatInt(id, 10)
		res.Results = append(res.Results, r)
		res.SentCount++
	}

	res.OK = res.FailedCount == 0
	e.logger.Debug("batch finished", "total", res.Total, "sent", res.SentCount, "failed", res.FailedCount)
	return res
}
