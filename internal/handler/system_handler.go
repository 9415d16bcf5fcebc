package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/talentgrid/assessment-backend/internal/config"
	"github.com/talentgrid/assessment-backend/internal/response"
)

const healthTimeout = 2 * time.Second

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// LiveCounter reports how many sessions this instance is hosting.
type LiveCounter interface {
	LiveCount() (running, finished int)
}

// SystemHandler serves health and operational status.
type SystemHandler struct {
	db        Pinger
	rdb       *redis.Client
	sessions  LiveCounter
	startTime time.Time
	log       zerolog.Logger
}

// NewSystemHandler creates a new SystemHandler.
func NewSystemHandler(db Pinger, rdb *redis.Client, sessions LiveCounter, log zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		db:        db,
		rdb:       rdb,
		sessions:  sessions,
		startTime: time.Now(),
		log:       log.With().Str("component", "system_handler").Logger(),
	}
}

type dependencyStatus struct {
	Postgres string `json:"postgres"`
	Redis    string `json:"redis"`
}

type systemStatus struct {
	Uptime          string           `json:"uptime"`
	Dependencies    dependencyStatus `json:"dependencies"`
	RunningSessions int              `json:"running_sessions"`
	PendingResults  int              `json:"finished_sessions_in_memory"`
	QueueAnswers    int64            `json:"queue_answers"`
	QueueResults    int64            `json:"queue_results"`
	Goroutines      int              `json:"goroutines"`
	HeapAlloc       uint64           `json:"heap_alloc"`
	GoVersion       string           `json:"go_version"`
}

// Health godoc
// GET /health
// Reports 503 when PostgreSQL or Redis is unreachable.
func (h *SystemHandler) Health(c *gin.Context) {
	deps := h.checkDependencies(c.Request.Context())
	if deps.Postgres != "ok" || deps.Redis != "ok" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "dependencies": deps})
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": "ok"})
}

// Status godoc
// GET /api/v1/recruiter/system/status
func (h *SystemHandler) Status(c *gin.Context) {
	ctx := c.Request.Context()

	s := systemStatus{
		Uptime:       time.Since(h.startTime).Round(time.Second).String(),
		Dependencies: h.checkDependencies(ctx),
		Goroutines:   runtime.NumGoroutine(),
		GoVersion:    runtime.Version(),
	}
	s.RunningSessions, s.PendingResults = h.sessions.LiveCount()

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	s.HeapAlloc = ms.HeapAlloc

	pipe := h.rdb.Pipeline()
	answersCmd := pipe.LLen(ctx, config.WorkerKey.PersistAnswersQueue)
	resultsCmd := pipe.LLen(ctx, config.WorkerKey.PersistResultsQueue)
	if _, err := pipe.Exec(ctx); err == nil {
		s.QueueAnswers, _ = answersCmd.Result()
		s.QueueResults, _ = resultsCmd.Result()
	}

	response.Success(c, http.StatusOK, s)
}

func (h *SystemHandler) checkDependencies(ctx context.Context) dependencyStatus {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	deps := dependencyStatus{Postgres: "ok", Redis: "ok"}
	if err := h.db.Ping(ctx); err != nil {
		h.log.Warn().Err(err).Msg("PostgreSQL ping failed")
		deps.Postgres = "unreachable"
	}
	if err := h.rdb.Ping(ctx).Err(); err != nil {
		h.log.Warn().Err(err).Msg("Redis ping failed")
		deps.Redis = "unreachable"
	}
	return deps
}
