package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/talentgrid/assessment-backend/internal/config"
	"github.com/talentgrid/assessment-backend/internal/database"
	"github.com/talentgrid/assessment-backend/internal/evaluator"
	"github.com/talentgrid/assessment-backend/internal/handler"
	"github.com/talentgrid/assessment-backend/internal/logger"
	"github.com/talentgrid/assessment-backend/internal/middleware"
	"github.com/talentgrid/assessment-backend/internal/model"
	"github.com/talentgrid/assessment-backend/internal/repository"
	"github.com/talentgrid/assessment-backend/internal/router"
	"github.com/talentgrid/assessment-backend/internal/sandbox"
	"github.com/talentgrid/assessment-backend/internal/service"
	"github.com/talentgrid/assessment-backend/internal/validator"
	"github.com/talentgrid/assessment-backend/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Str("result_sink", cfg.ResultSink).
		Bool("sandbox", cfg.SandboxEnabled).
		Msg("Starting assessment backend")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	examRepo := repository.NewExamRepository(pool)
	sessionRepo := repository.NewExamSessionRepository(pool)
	answerRepo := repository.NewAnswerRepository(pool)

	// ─── Evaluator ─────────────────────────────────────────────────────
	evalOpts := []evaluator.Option{
		evaluator.WithQuestionTimeout(cfg.EvalTimeout),
		evaluator.WithRunner(model.LanguageJavaScript, evaluator.NewJavaScriptRunner(
			evaluator.WithCaseTimeout(cfg.EvalCaseTimeout),
			evaluator.WithMaxCallStack(cfg.EvalMaxCallStack),
		)),
	}
	if cfg.SandboxEnabled {
		engine, err := sandbox.NewDockerEngine()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Docker")
		}
		evalOpts = append(evalOpts, evaluator.WithRunner(model.LanguagePython, sandbox.NewPythonRunner(engine, sandbox.Config{
			Image:       cfg.SandboxPythonImage,
			CaseTimeout: cfg.EvalCaseTimeout,
			MemoryMB:    cfg.SandboxMemoryMB,
			PidsLimit:   cfg.SandboxPidsLimit,
		}, log)))
	} else {
		log.Warn().Msg("Sandbox disabled, Python questions will report INTERNAL_ERROR")
	}
	eval := evaluator.New(log, evalOpts...)

	// ─── Result Sink ───────────────────────────────────────────────────
	sink, closeSink := buildResultSink(cfg, rdb, log)
	defer closeSink()

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg.JWTSecret)
	examService := service.NewExamService(examRepo, rdb, log)
	sessionService := service.NewExamSessionService(
		examService, sessionRepo, answerRepo, rdb, sink, eval, log,
		service.WithUngradedAsZero(cfg.ScoreUngradedAsZero),
	)

	runLimiter := middleware.NewRateLimiter(cfg.RunRatePerMinute)

	// ─── Initialize Handlers ──────────────────────────────────────────
	// srv.Shutdown does not close hijacked WebSocket connections, so streams
	// hang off their own context.
	streamCtx, streamCancel := context.WithCancel(context.Background())
	defer streamCancel()

	handlers := &router.Handlers{
		Exam:    handler.NewExamHandler(examService, sessionService),
		Session: handler.NewSessionHandler(sessionService),
		WS:      handler.NewWSHandler(rdb, sessionService, runLimiter, log, cfg.AllowedOrigins, handler.WithStreamContext(streamCtx)),
		System:  handler.NewSystemHandler(pool, rdb, sessionService, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	autosaveWorker := worker.NewAutosaveWorker(answerRepo, rdb, log)
	resultWorker := worker.NewResultWorker(sessionRepo, rdb, log)
	workers.Go(func() { autosaveWorker.Start(workerCtx) })
	workers.Go(func() { resultWorker.Start(workerCtx) })

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				runLimiter.Sweep()
			}
		}
	}()

	// ─── Prewarm Redis Caches ─────────────────────────────────────────
	// Load every exam into Redis BEFORE accepting traffic so session
	// starts never stampede PostgreSQL.
	if err := examService.PrewarmAllCaches(ctx); err != nil {
		log.Warn().Err(err).Msg("Cache prewarm failed")
	}

	// ─── Re-arm Session Timers ────────────────────────────────────────
	if err := sessionService.RestoreActive(ctx); err != nil {
		log.Error().Err(err).Msg("Session restore failed")
	}
	timerCtx, timerCancel := context.WithCancel(context.Background())
	timerDone := make(chan struct{})
	go func() {
		sessionService.RunTimer(timerCtx)
		close(timerDone)
	}()

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, runLimiter, handlers, cfg, log)

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv.RegisterOnShutdown(streamCancel)

	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests. RegisterOnShutdown closes open streams.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop the session timer. Running sessions resume from PostgreSQL
	// and the autosave buffer on the next start.
	timerCancel()
	<-timerDone

	// 3. Stop background workers and wait for queues to drain.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}

// buildResultSink always feeds the Redis queue drained by ResultWorker and,
// with RESULT_SINK=amqp, also publishes to RabbitMQ.
func buildResultSink(cfg *config.Config, rdb *redis.Client, log zerolog.Logger) (service.ResultSink, func()) {
	redisSink := service.NewRedisQueueSink(rdb)
	if cfg.ResultSink != "amqp" {
		return redisSink, func() {}
	}

	conn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to RabbitMQ")
	}
	ch, err := conn.Channel()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open RabbitMQ channel")
	}
	amqpSink, err := service.NewAMQPSink(ch, cfg.AMQPResultQueue)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to declare result queue")
	}
	log.Info().Str("queue", cfg.AMQPResultQueue).Msg("Publishing results to RabbitMQ")

	return service.NewMultiSink(log, redisSink, amqpSink), func() {
		_ = ch.Close()
		_ = conn.Close()
	}
}
