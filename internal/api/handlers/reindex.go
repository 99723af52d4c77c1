package handlers

import (
	"net/http"

	"github.com/askdocs/askdocs/internal/index"
	"github.com/askdocs/askdocs/internal/queue"
)

// ReindexHandler triggers index passes. With a queue client the pass runs on
// the worker and the request returns immediately; without one it runs inline,
// which is the single-process local mode.
type ReindexHandler struct {
	queueClient *queue.Client
	reindexer   *index.Reindexer
}

func NewReindexHandler(qc *queue.Client, r *index.Reindexer) *ReindexHandler {
	return &ReindexHandler{queueClient: qc, reindexer: r}
}

func (h *ReindexHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	if h.queueClient != nil {
		if err := h.queueClient.EnqueueReindex(queue.ReindexPayload{Reason: "api request"}); err != nil {
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
		return
	}

	report, err := h.reindexer.Reindex(r.Context())
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, report)
}
