package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
	drainTimeout = 10 * time.Second

	// MaxAttempts is how many failed writes an item survives before it is
	// moved to the queue's dead-letter list.
	MaxAttempts = 5
)

// envelope wraps an item pushed back after a failed write. Producers push bare
// items, which decode with zero attempts.
type envelope struct {
	Attempts int             `json:"_attempts"`
	Item     json.RawMessage `json:"_item"`
	Error    string          `json:"_error,omitempty"`
}

type queued[T any] struct {
	item     T
	attempts int
}

// queueBatcher drains a Redis list into batches of T. A failed batch is
// retried item by item. Items that still fail go back to the queue until they
// reach maxAttempts, then to the dead-letter list.
type queueBatcher[T any] struct {
	rdb        *redis.Client
	queue      string
	deadLetter string
	log        zerolog.Logger

	size    int
	maxWait time.Duration
	poll    time.Duration

	maxAttempts int

	writeBatch func(ctx context.Context, items []T) error
	writeOne   func(ctx context.Context, item T) error
	// persisted is called with the items that reached PostgreSQL.
	persisted func(ctx context.Context, items []T)
}

func (b *queueBatcher[T]) run(ctx context.Context) {
	b.log.Info().Str("queue", b.queue).Msg("Worker started")

	batch := make([]queued[T], 0, b.size)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 && (len(batch) >= b.size || time.Since(lastFlush) >= b.maxWait) {
			b.flush(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			b.log.Info().Int("pending", len(batch)).Msg("Shutdown requested, draining queue...")
			drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			b.flush(drainCtx, batch)
			b.drain(drainCtx)
			cancel()
			b.log.Info().Msg("Worker stopped")
			return
		default:
		}

		item, err := b.rdb.BLPop(ctx, b.poll, b.queue).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
				b.log.Error().Err(err).Msg("BLPop error")
				time.Sleep(b.poll)
			}
			continue
		}
		if len(item) < 2 {
			continue
		}

		v, err := decodeQueued[T](item[1])
		if err != nil {
			b.log.Error().Err(err).Msg("Invalid JSON payload, dropped")
			continue
		}
		batch = append(batch, v)
	}
}

func decodeQueued[T any](raw string) (queued[T], error) {
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err == nil && len(env.Item) > 0 {
		var v T
		if err := json.Unmarshal(env.Item, &v); err != nil {
			return queued[T]{}, err
		}
		return queued[T]{item: v, attempts: env.Attempts}, nil
	}

	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return queued[T]{}, err
	}
	return queued[T]{item: v}, nil
}

// flush writes a batch and returns how many items were requeued.
func (b *queueBatcher[T]) flush(ctx context.Context, batch []queued[T]) int {
	if len(batch) == 0 {
		return 0
	}

	items := make([]T, len(batch))
	for i, q := range batch {
		items[i] = q.item
	}

	err := b.writeBatch(ctx, items)
	if err == nil {
		if b.persisted != nil {
			b.persisted(ctx, items)
		}
		return 0
	}
	b.log.Warn().Err(err).Int("size", len(batch)).Msg("Batch write failed, using fallback")

	ok := make([]T, 0, len(batch))
	requeued := 0
	for _, q := range batch {
		if err := b.writeOne(ctx, q.item); err != nil {
			if b.retry(ctx, q, err) {
				requeued++
			}
			continue
		}
		ok = append(ok, q.item)
	}
	if len(ok) > 0 && b.persisted != nil {
		b.persisted(ctx, ok)
	}
	return requeued
}

// retry pushes a failed item back to the queue, or to the dead-letter list
// once it has failed maxAttempts times. It reports whether the item was requeued.
func (b *queueBatcher[T]) retry(ctx context.Context, q queued[T], cause error) bool {
	item, err := json.Marshal(q.item)
	if err != nil {
		b.log.Error().Err(err).Msg("Encode failed item, dropped")
		return false
	}

	env := envelope{Attempts: q.attempts + 1, Item: item}
	target, requeue := b.queue, true
	limit := b.maxAttempts
	if limit <= 0 {
		limit = MaxAttempts
	}
	if env.Attempts >= limit {
		target, requeue = b.deadLetter, false
		env.Error = cause.Error()
	}

	raw, _ := json.Marshal(env)
	if err := b.rdb.RPush(context.WithoutCancel(ctx), target, raw).Err(); err != nil {
		b.log.Error().Err(err).Str("queue", target).Msg("Requeue failed, item lost")
		return false
	}

	if requeue {
		b.log.Error().Err(cause).Int("attempts", env.Attempts).Msg("Single write failed, requeueing")
	} else {
		b.log.Error().Err(cause).Int("attempts", env.Attempts).Str("dead_letter", target).Msg("Single write failed, moved to dead letter")
	}
	return requeue
}

// drain empties the queue before shutdown. It stops at the first requeue so a
// failing database cannot spin it forever.
func (b *queueBatcher[T]) drain(ctx context.Context) {
	drained := 0
	for ctx.Err() == nil {
		batch := make([]queued[T], 0, b.size)
		for len(batch) < b.size {
			raw, err := b.rdb.LPop(ctx, b.queue).Result()
			if err != nil {
				break
			}
			v, err := decodeQueued[T](raw)
			if err != nil {
				b.log.Error().Err(err).Msg("Drain unmarshal error")
				continue
			}
			batch = append(batch, v)
		}
		if len(batch) == 0 {
			break
		}
		drained += len(batch)
		if b.flush(ctx, batch) > 0 {
			break
		}
	}

	if drained > 0 {
		b.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
}
