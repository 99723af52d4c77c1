package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/askdocs/askdocs/internal/index"
	"github.com/askdocs/askdocs/internal/queue"
)

// ReindexWorker runs incremental index passes off the queue. Passes are
// idempotent, so a retried or duplicated task converges to the same index.
type ReindexWorker struct {
	reindexer *index.Reindexer
}

func NewReindexWorker(r *index.Reindexer) *ReindexWorker {
	return &ReindexWorker{reindexer: r}
}

func (w *ReindexWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.ReindexPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	slog.Info("reindex task started", "reason", payload.Reason)

	report, err := w.reindexer.Reindex(ctx)
	if err != nil {
		return fmt.Errorf("reindex: %w", err)
	}

	slog.Info("reindex task finished",
		"indexed", report.Indexed,
		"unchanged", report.Unchanged,
		"removed", report.Removed,
		"skipped", len(report.Skipped),
	)
	return nil
}
