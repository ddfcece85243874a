package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/pisaprep/internal/response"
	"github.com/stemsi/pisaprep/internal/worker"
)

// SyncHandler lets the app request a sync run.
type SyncHandler struct {
	worker *worker.SyncWorker
	log    zerolog.Logger
}

// NewSyncHandler creates a new SyncHandler.
func NewSyncHandler(w *worker.SyncWorker, log zerolog.Logger) *SyncHandler {
	return &SyncHandler{
		worker: w,
		log:    log.With().Str("component", "sync_handler").Logger(),
	}
}

// Run godoc
// POST /api/v1/sync/run
// Queues a run-now request. Results land asynchronously.
func (h *SyncHandler) Run(c *gin.Context) {
	if err := h.worker.Trigger(c.Request.Context(), "api"); err != nil {
		h.log.Warn().Err(err).Msg("Failed to enqueue sync request")
		response.Fail(c, http.StatusServiceUnavailable, response.ErrSyncUnavailable)
		return
	}
	response.Success(c, http.StatusAccepted, gin.H{"queued": true})
}

// Status godoc
// GET /api/v1/sync/status
func (h *SyncHandler) Status(c *gin.Context) {
	response.Success(c, http.StatusOK, h.worker.LastRun())
}
