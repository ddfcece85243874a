package handler

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const healthProbeTimeout = 2 * time.Second

// HealthHandler reports the agent's dependencies.
type HealthHandler struct {
	db        *sql.DB
	rdb       *redis.Client
	online    func(ctx context.Context) bool
	startTime time.Time
}

// NewHealthHandler creates a new HealthHandler. rdb and online may be nil.
func NewHealthHandler(db *sql.DB, rdb *redis.Client, online func(ctx context.Context) bool) *HealthHandler {
	return &HealthHandler{db: db, rdb: rdb, online: online, startTime: time.Now()}
}

type healthReport struct {
	Status     string `json:"status"`
	LocalStore string `json:"local_store"`
	Redis      string `json:"redis"`
	Remote     string `json:"remote"`
	Uptime     string `json:"uptime"`
	Goroutines int    `json:"goroutines"`
	HeapBytes  uint64 `json:"heap_bytes"`
}

// Health godoc
// GET /health
// Only the local store decides the status: the agent works offline.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthProbeTimeout)
	defer cancel()

	report := healthReport{
		Status:     "ok",
		LocalStore: "ok",
		Redis:      "disabled",
		Remote:     "disabled",
		Uptime:     formatDuration(time.Since(h.startTime)),
		Goroutines: runtime.NumGoroutine(),
	}

	if err := h.db.PingContext(ctx); err != nil {
		report.Status = "degraded"
		report.LocalStore = err.Error()
	}
	if h.rdb != nil {
		report.Redis = "ok"
		if err := h.rdb.Ping(ctx).Err(); err != nil {
			report.Redis = err.Error()
		}
	}
	if h.online != nil {
		report.Remote = "offline"
		if h.online(ctx) {
			report.Remote = "online"
		}
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	report.HeapBytes = mem.HeapAlloc

	status := http.StatusOK
	if report.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
