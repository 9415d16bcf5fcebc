package worker

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/talentgrid/assessment-backend/internal/config"
	"github.com/talentgrid/assessment-backend/internal/model"
)

// ResultWriter is implemented by repository.ExamSessionRepository.
type ResultWriter interface {
	CompleteBatch(ctx context.Context, results []model.SubmissionResult) error
	Complete(ctx context.Context, res model.SubmissionResult) error
}

// ResultWorker consumes persist_results_queue, marks sessions SUBMITTED with
// their scores and then clears the sessions' autosave buffers.
type ResultWorker struct {
	b   queueBatcher[model.SubmissionResult]
	rdb *redis.Client
}

// NewResultWorker creates a new ResultWorker.
func NewResultWorker(results ResultWriter, rdb *redis.Client, log zerolog.Logger) *ResultWorker {
	w := &ResultWorker{rdb: rdb}
	w.b = queueBatcher[model.SubmissionResult]{
		rdb:         rdb,
		queue:       config.WorkerKey.PersistResultsQueue,
		deadLetter:  config.WorkerKey.DeadLetter(config.WorkerKey.PersistResultsQueue),
		log:         log.With().Str("component", "result_worker").Logger(),
		size:        BatchSize,
		maxWait:     BatchTimeout,
		poll:        PollTimeout,
		maxAttempts: MaxAttempts,
		writeBatch:  results.CompleteBatch,
		writeOne:    results.Complete,
		persisted:   w.clearSessionBuffers,
	}
	return w
}

// Start runs until ctx is cancelled, then drains the queue. Call in a goroutine.
func (w *ResultWorker) Start(ctx context.Context) {
	w.b.run(ctx)
}

// clearSessionBuffers deletes the autosave hash and cursor of persisted sessions.
// The cached result stays until its TTL so finished sessions can still be read.
func (w *ResultWorker) clearSessionBuffers(ctx context.Context, results []model.SubmissionResult) {
	pipe := w.rdb.Pipeline()
	for _, res := range results {
		id := res.SessionID.String()
		pipe.Del(ctx, config.CacheKey.SessionAnswersKey(id), config.CacheKey.SessionCursorKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.b.log.Warn().Err(err).Int("sessions", len(results)).Msg("Clearing autosave buffers failed")
	}
}
