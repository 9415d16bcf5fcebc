package worker

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/talentgrid/assessment-backend/internal/config"
	"github.com/talentgrid/assessment-backend/internal/model"
)

// AnswerWriter is implemented by repository.AnswerRepository.
type AnswerWriter interface {
	UpsertBatch(ctx context.Context, answers []model.AutosavedAnswer) error
	Upsert(ctx context.Context, a model.AutosavedAnswer) error
}

// AutosaveWorker consumes persist_answers_queue and UPSERTs answers to PostgreSQL.
type AutosaveWorker struct {
	b queueBatcher[model.AutosavedAnswer]
}

// NewAutosaveWorker creates a new AutosaveWorker.
func NewAutosaveWorker(answers AnswerWriter, rdb *redis.Client, log zerolog.Logger) *AutosaveWorker {
	return &AutosaveWorker{b: queueBatcher[model.AutosavedAnswer]{
		rdb:         rdb,
		queue:       config.WorkerKey.PersistAnswersQueue,
		deadLetter:  config.WorkerKey.DeadLetter(config.WorkerKey.PersistAnswersQueue),
		log:         log.With().Str("component", "autosave_worker").Logger(),
		size:        BatchSize,
		maxWait:     BatchTimeout,
		poll:        PollTimeout,
		maxAttempts: MaxAttempts,
		writeBatch:  answers.UpsertBatch,
		writeOne:    answers.Upsert,
	}}
}

// Start runs until ctx is cancelled, then drains the queue. Call in a goroutine.
func (w *AutosaveWorker) Start(ctx context.Context) {
	w.b.run(ctx)
}
