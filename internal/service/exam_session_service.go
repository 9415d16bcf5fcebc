package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/talentgrid/assessment-backend/internal/config"
	"github.com/talentgrid/assessment-backend/internal/model"
	"github.com/talentgrid/assessment-backend/internal/response"
	"github.com/talentgrid/assessment-backend/internal/session"
)

const (
	// finishedRetention keeps submitted sessions in memory until the result
	// worker has persisted them.
	finishedRetention = 10 * time.Minute
	resultCacheTTL    = 24 * time.Hour
	sessionKeyGrace   = time.Hour
)

// liveSession is a session with an armed timer.
type liveSession struct {
	sess *session.Session

	// pending counts timer ticks not yet applied; ticking is set while a
	// goroutine applies them.
	pending atomic.Int32
	ticking atomic.Bool

	doneAt time.Time // guarded by ExamSessionService.mu
}

// SessionView is returned when a candidate opens an exam.
type SessionView struct {
	State model.SessionState `json:"state"`
	Paper model.ExamPaper    `json:"paper"`
}

// ExamSessionService hosts live exam sessions: it creates and restores them,
// serializes candidate actions, drives their one-second timers, autosaves
// answers and hands finished results to the ResultSink.
type ExamSessionService struct {
	exams     ExamLoader
	sessions  SessionStore
	answers   AnswerStore
	rdb       *redis.Client
	sink      ResultSink
	evaluator session.Evaluator
	log       zerolog.Logger

	now            func() time.Time
	ungradedAsZero bool

	mu   sync.Mutex
	live map[uuid.UUID]*liveSession
}

// ExamSessionOption configures an ExamSessionService.
type ExamSessionOption func(*ExamSessionService)

// WithUngradedAsZero counts questions without test cases as 0 in total scores.
func WithUngradedAsZero(v bool) ExamSessionOption {
	return func(s *ExamSessionService) { s.ungradedAsZero = v }
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) ExamSessionOption {
	return func(s *ExamSessionService) { s.now = now }
}

// NewExamSessionService creates a new ExamSessionService.
func NewExamSessionService(
	exams ExamLoader,
	sessions SessionStore,
	answers AnswerStore,
	rdb *redis.Client,
	sink ResultSink,
	evaluator session.Evaluator,
	log zerolog.Logger,
	opts ...ExamSessionOption,
) *ExamSessionService {
	s := &ExamSessionService{
		exams:     exams,
		sessions:  sessions,
		answers:   answers,
		rdb:       rdb,
		sink:      sink,
		evaluator: evaluator,
		log:       log.With().Str("component", "exam_session_service").Logger(),
		now:       time.Now,
		live:      make(map[uuid.UUID]*liveSession),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ─── Lifecycle ──────────────────────────────────────────────────────

// StartSession opens the exam for a candidate. A candidate with a live
// attempt on the exam gets that attempt back instead of a new one.
func (s *ExamSessionService) StartSession(ctx context.Context, examID uuid.UUID, candidateID string) (*SessionView, error) {
	exam, err := s.exams.LoadExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if len(exam.Questions) == 0 {
		return nil, ErrNoQuestions
	}

	row, err := s.sessions.GetActive(ctx, examID, candidateID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("check active session: %w", err)
	}

	if row == nil {
		row = &model.ExamSession{ExamID: examID, CandidateID: candidateID}
		if err := s.sessions.Create(ctx, row); err != nil {
			if !errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("create session: %w", err)
			}
			// Lost a concurrent start; use the winner's row.
			row, err = s.sessions.GetActive(ctx, examID, candidateID)
			if err != nil {
				return nil, fmt.Errorf("concurrent start detected, but fetch failed: %w", err)
			}
		} else {
			ls := s.register(session.New(exam, s.evaluator, s.sessionOptions(row)...))
			s.log.Info().
				Str("session_id", row.ID.String()).
				Str("exam_id", examID.String()).
				Str("candidate_id", candidateID).
				Int("duration_seconds", exam.DurationSeconds).
				Msg("Session started")
			return &SessionView{State: ls.sess.State(), Paper: exam.Paper()}, nil
		}
	}

	ls, err := s.attach(ctx, row, exam)
	if err != nil {
		return nil, err
	}
	return &SessionView{State: ls.sess.State(), Paper: exam.Paper()}, nil
}

// RestoreActive re-arms the timers of every IN_PROGRESS session. Call once on
// startup, before RunTimer.
func (s *ExamSessionService) RestoreActive(ctx context.Context) error {
	rows, err := s.sessions.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active sessions: %w", err)
	}

	restored := 0
	for i := range rows {
		exam, err := s.exams.LoadExam(ctx, rows[i].ExamID)
		if err != nil {
			s.log.Warn().Err(err).Str("session_id", rows[i].ID.String()).Msg("Cannot restore session")
			continue
		}
		if _, err := s.attach(ctx, &rows[i], exam); err != nil {
			s.log.Warn().Err(err).Str("session_id", rows[i].ID.String()).Msg("Cannot restore session")
			continue
		}
		restored++
	}

	s.log.Info().Int("restored", restored).Int("total", len(rows)).Msg("Active sessions restored")
	return nil
}

// RunTimer ticks every live session once per second until ctx is done.
func (s *ExamSessionService) RunTimer(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	s.log.Info().Msg("Session timer started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("Session timer stopped")
			return
		case <-ticker.C:
			s.tickAll(ctx)
		}
	}
}

// ─── Candidate actions ──────────────────────────────────────────────

// State returns the session snapshot. Finished sessions are served from the
// cached or stored result.
func (s *ExamSessionService) State(ctx context.Context, sessionID uuid.UUID, candidateID string) (*model.SessionState, error) {
	ls, err := s.lookup(ctx, sessionID, candidateID)
	if err == nil {
		state := ls.sess.State()
		return &state, nil
	}
	if !errors.Is(err, session.ErrInvalidTransition) {
		return nil, err
	}
	return s.finishedState(ctx, sessionID)
}

// Navigate moves the question cursor. Out-of-range indexes are ignored.
func (s *ExamSessionService) Navigate(ctx context.Context, sessionID uuid.UUID, candidateID string, index int) (*model.SessionState, error) {
	ls, err := s.lookup(ctx, sessionID, candidateID)
	if err != nil {
		return nil, err
	}
	if err := ls.sess.Navigate(index); err != nil {
		return nil, err
	}

	ttl := s.keyTTL(ls)
	if err := s.rdb.Set(ctx, config.CacheKey.SessionCursorKey(sessionID.String()), ls.sess.CurrentIndex(), ttl).Err(); err != nil {
		s.log.Warn().Err(err).Str("session_id", sessionID.String()).Msg("Cursor save failed")
	}

	state := ls.sess.State()
	return &state, nil
}

// EditAnswer replaces a question's answer and autosaves it.
func (s *ExamSessionService) EditAnswer(ctx context.Context, sessionID uuid.UUID, candidateID string, index int, source string) error {
	ls, err := s.lookup(ctx, sessionID, candidateID)
	if err != nil {
		return err
	}
	if err := ls.sess.EditAnswer(index, source); err != nil {
		return err
	}

	qid := ls.sess.Exam().Questions[index].ID
	raw, _ := json.Marshal(model.AutosavedAnswer{SessionID: sessionID, QuestionID: qid, Source: source})
	answersKey := config.CacheKey.SessionAnswersKey(sessionID.String())

	pipe := s.rdb.Pipeline()
	pipe.HSet(ctx, answersKey, qid.String(), source)
	pipe.Expire(ctx, answersKey, s.keyTTL(ls))
	pipe.RPush(ctx, config.WorkerKey.PersistAnswersQueue, raw)
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Error().Err(err).Str("session_id", sessionID.String()).Msg("Autosave failed")
	}
	return nil
}

// RunQuestion evaluates one question and publishes its verdicts.
func (s *ExamSessionService) RunQuestion(ctx context.Context, sessionID uuid.UUID, candidateID string, index int) (*model.RunResult, error) {
	ls, err := s.lookup(ctx, sessionID, candidateID)
	if err != nil {
		return nil, err
	}

	// A dropped connection must not turn into TIMEOUT verdicts.
	verdicts, err := ls.sess.RunQuestion(context.WithoutCancel(ctx), index)
	if err != nil {
		return nil, err
	}

	qid := ls.sess.Exam().Questions[index].ID
	res := &model.RunResult{
		QuestionIndex: index,
		Verdicts:      verdicts,
		Score:         ls.sess.Scores()[qid],
		TotalScore:    ls.sess.TotalScore(),
	}

	s.publishEvent(ctx, model.SessionEvent{
		Type:          model.SessionEventVerdicts,
		SessionID:     sessionID,
		TimeRemaining: ls.sess.TimeRemaining(),
		QuestionIndex: &res.QuestionIndex,
		Verdicts:      verdicts,
		Score:         &res.Score,
	})

	s.log.Debug().
		Str("session_id", sessionID.String()).
		Int("question_index", index).
		Int("passed", model.CountPassed(verdicts)).
		Int("total", len(verdicts)).
		Msg("Question run")
	return res, nil
}

// Submit evaluates any unrun questions and finalizes the session.
func (s *ExamSessionService) Submit(ctx context.Context, sessionID uuid.UUID, candidateID string) (*model.SubmissionResult, error) {
	ls, err := s.lookup(ctx, sessionID, candidateID)
	if err != nil {
		return nil, err
	}

	res, err := ls.sess.Submit(context.WithoutCancel(ctx))
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// ─── Results ────────────────────────────────────────────────────────

// ListResults returns the candidate's attempts, newest first.
func (s *ExamSessionService) ListResults(ctx context.Context, candidateID string) ([]model.CandidateResult, error) {
	return s.sessions.ListByCandidate(ctx, candidateID)
}

// ExamResults returns a page of attempts on an exam for recruiters.
func (s *ExamSessionService) ExamResults(ctx context.Context, examID uuid.UUID, page, perPage int) ([]model.ExamResultRow, *response.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	if perPage > 100 {
		perPage = 100
	}

	if _, err := s.exams.LoadExam(ctx, examID); err != nil {
		return nil, nil, err
	}

	rows, total, err := s.sessions.ListByExam(ctx, examID, page, perPage)
	if err != nil {
		return nil, nil, fmt.Errorf("list results: %w", err)
	}
	return rows, response.NewPagination(page, perPage, total), nil
}

// ─── Internal ───────────────────────────────────────────────────────

func (s *ExamSessionService) sessionOptions(row *model.ExamSession) []session.Option {
	return []session.Option{
		session.WithID(row.ID),
		session.WithCandidate(row.CandidateID),
		session.WithClock(s.now),
		session.WithUngradedAsZero(s.ungradedAsZero),
		session.WithOnSubmit(s.handoff),
	}
}

// register adds a session to the live set. If another goroutine registered
// the same ID first, that entry wins.
func (s *ExamSessionService) register(sess *session.Session) *liveSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.live[sess.ID()]; ok {
		return existing
	}
	ls := &liveSession{sess: sess}
	s.live[sess.ID()] = ls
	return ls
}

func (s *ExamSessionService) get(id uuid.UUID) *liveSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live[id]
}

// lookup returns the live session, restoring it from storage when this
// instance does not hold it. Finished sessions yield session.ErrInvalidTransition.
func (s *ExamSessionService) lookup(ctx context.Context, sessionID uuid.UUID, candidateID string) (*liveSession, error) {
	if ls := s.get(sessionID); ls != nil {
		if ls.sess.CandidateID() != candidateID {
			return nil, ErrNotSessionOwner
		}
		return ls, nil
	}

	row, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	if row.CandidateID != candidateID {
		return nil, ErrNotSessionOwner
	}
	if row.Status != model.SessionStatusInProgress {
		return nil, session.ErrInvalidTransition
	}

	exam, err := s.exams.LoadExam(ctx, row.ExamID)
	if err != nil {
		return nil, err
	}
	ls, err := s.attach(ctx, row, exam)
	if err != nil {
		return nil, err
	}
	if ls.sess.Submitted() {
		return nil, session.ErrInvalidTransition
	}
	return ls, nil
}

// attach returns the live session for an IN_PROGRESS row, rebuilding it from
// autosaved answers and the elapsed wall-clock time if necessary.
func (s *ExamSessionService) attach(ctx context.Context, row *model.ExamSession, exam *model.Exam) (*liveSession, error) {
	if ls := s.get(row.ID); ls != nil {
		return ls, nil
	}

	// Finalized but not yet persisted by the result worker.
	if exists, err := s.rdb.Exists(ctx, config.CacheKey.SessionResultKey(row.ID.String())).Result(); err == nil && exists > 0 {
		return nil, session.ErrInvalidTransition
	}

	answers, err := s.loadAnswers(ctx, row.ID)
	if err != nil {
		return nil, err
	}

	cursor := 0
	if v, err := s.rdb.Get(ctx, config.CacheKey.SessionCursorKey(row.ID.String())).Result(); err == nil {
		cursor, _ = strconv.Atoi(v)
	}

	elapsed := int(s.now().Sub(row.StartedAt).Seconds())
	remaining := max(exam.DurationSeconds-elapsed, 0)

	sess := session.Restore(exam, s.evaluator, session.Snapshot{
		CurrentIndex:  cursor,
		Answers:       answers,
		TimeRemaining: remaining,
	}, s.sessionOptions(row)...)
	ls := s.register(sess)

	s.log.Info().
		Str("session_id", row.ID.String()).
		Int("time_remaining", sess.TimeRemaining()).
		Int("answers", len(answers)).
		Msg("Session restored")

	if ls.sess.TimeRemaining() == 0 {
		// Expired while nobody held it. The caller hanging up must not
		// cancel scoring of the remaining questions.
		_, _, _ = ls.sess.Tick(context.WithoutCancel(ctx))
	}
	return ls, nil
}

// loadAnswers reads the Redis autosave hash, falling back to PostgreSQL and
// self-healing the hash.
func (s *ExamSessionService) loadAnswers(ctx context.Context, sessionID uuid.UUID) (map[uuid.UUID]string, error) {
	key := config.CacheKey.SessionAnswersKey(sessionID.String())

	cached, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		s.log.Warn().Err(err).Str("session_id", sessionID.String()).Msg("Autosave read failed")
	}
	if len(cached) > 0 {
		answers := make(map[uuid.UUID]string, len(cached))
		for k, v := range cached {
			if qid, err := uuid.Parse(k); err == nil {
				answers[qid] = v
			}
		}
		return answers, nil
	}

	answers, err := s.answers.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load answers: %w", err)
	}
	if len(answers) > 0 {
		fields := make(map[string]any, len(answers))
		for qid, src := range answers {
			fields[qid.String()] = src
		}
		_ = s.rdb.HSet(ctx, key, fields).Err()
	}
	return answers, nil
}

// finishedState rebuilds the snapshot of a session that is no longer live.
func (s *ExamSessionService) finishedState(ctx context.Context, sessionID uuid.UUID) (*model.SessionState, error) {
	var res *model.SubmissionResult

	if raw, err := s.rdb.Get(ctx, config.CacheKey.SessionResultKey(sessionID.String())).Bytes(); err == nil {
		var cached model.SubmissionResult
		if json.Unmarshal(raw, &cached) == nil {
			res = &cached
		}
	}

	if res == nil {
		row, err := s.sessions.GetByID(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("get session: %w", err)
		}
		scores, err := s.sessions.ListQuestionScores(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("list question scores: %w", err)
		}
		res = &model.SubmissionResult{
			SessionID:         row.ID,
			ExamID:            row.ExamID,
			CandidateID:       row.CandidateID,
			PerQuestionScores: scores,
		}
		if row.FinalScore != nil {
			res.TotalScore = *row.FinalScore
		}
		if row.FinishedAt != nil {
			res.CompletedAt = *row.FinishedAt
		}
		if row.SubmitReason != nil {
			res.Reason = *row.SubmitReason
		}
	}

	qs := make([]model.QuestionState, len(res.PerQuestionScores))
	for i, score := range res.PerQuestionScores {
		qs[i] = model.QuestionState{QuestionID: score.QuestionID, Evaluated: true, Score: score.Score}
	}

	return &model.SessionState{
		SessionID:          res.SessionID,
		ExamID:             res.ExamID,
		Status:             model.SessionStatusSubmitted,
		TimeRemainingLabel: session.FormatRemaining(0),
		Questions:          qs,
		TotalScore:         res.TotalScore,
		Result:             res,
	}, nil
}

// handoff caches the result, hands it to the sink and notifies subscribers.
// Sessions call it once, when they are submitted or expire.
func (s *ExamSessionService) handoff(res model.SubmissionResult) {
	s.mu.Lock()
	if ls, ok := s.live[res.SessionID]; ok {
		ls.doneAt = s.now()
	}
	s.mu.Unlock()

	pubCtx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if raw, err := json.Marshal(res); err == nil {
		if err := s.rdb.Set(pubCtx, config.CacheKey.SessionResultKey(res.SessionID.String()), raw, resultCacheTTL).Err(); err != nil {
			s.log.Warn().Err(err).Str("session_id", res.SessionID.String()).Msg("Result cache write failed")
		}
	}

	if err := s.sink.Publish(pubCtx, res); err != nil {
		s.log.Error().Err(err).Str("session_id", res.SessionID.String()).Msg("Result hand-off failed")
	}

	s.publishEvent(pubCtx, model.SessionEvent{
		Type:      model.SessionEventSubmitted,
		SessionID: res.SessionID,
		Score:     &res.TotalScore,
		Result:    &res,
	})

	s.log.Info().
		Str("session_id", res.SessionID.String()).
		Str("candidate_id", res.CandidateID).
		Str("reason", string(res.Reason)).
		Int("total_score", res.TotalScore).
		Msg("Session submitted")
}

func (s *ExamSessionService) publishEvent(ctx context.Context, ev model.SessionEvent) {
	raw, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := s.rdb.Publish(ctx, config.CacheKey.SessionEventsChannel(ev.SessionID.String()), raw).Err(); err != nil {
		s.log.Debug().Err(err).Str("session_id", ev.SessionID.String()).Msg("Event publish failed")
	}
}

// tickAll schedules one tick for every running session and evicts sessions
// that finished more than finishedRetention ago.
func (s *ExamSessionService) tickAll(ctx context.Context) {
	now := s.now()

	s.mu.Lock()
	running := make([]*liveSession, 0, len(s.live))
	for id, ls := range s.live {
		if !ls.doneAt.IsZero() {
			if now.Sub(ls.doneAt) > finishedRetention {
				delete(s.live, id)
			}
			continue
		}
		running = append(running, ls)
	}
	s.mu.Unlock()

	for _, ls := range running {
		ls.pending.Add(1)
		if ls.ticking.CompareAndSwap(false, true) {
			go s.applyTicks(ctx, ls)
		}
	}
}

// applyTicks drains pending ticks. A session busy evaluating code holds its
// lock, so ticks accumulate here instead of stalling the other sessions.
func (s *ExamSessionService) applyTicks(ctx context.Context, ls *liveSession) {
	defer ls.ticking.Store(false)

	// The expiring tick scores unrun questions; shutdown must not cancel it.
	tickCtx := context.WithoutCancel(ctx)

	for {
		n := ls.pending.Swap(0)
		if n == 0 {
			return
		}
		for range n {
			expired, _, err := ls.sess.Tick(tickCtx)
			if err != nil || expired {
				return
			}
		}
		s.publishEvent(ctx, model.SessionEvent{
			Type:          model.SessionEventTick,
			SessionID:     ls.sess.ID(),
			TimeRemaining: ls.sess.TimeRemaining(),
		})
	}
}

// keyTTL keeps per-session Redis keys alive for the rest of the attempt plus a grace period.
func (s *ExamSessionService) keyTTL(ls *liveSession) time.Duration {
	return time.Duration(ls.sess.TimeRemaining())*time.Second + sessionKeyGrace
}

// LiveCount returns the number of running sessions and of finished sessions
// still held in memory.
func (s *ExamSessionService) LiveCount() (running, finished int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ls := range s.live {
		if ls.doneAt.IsZero() {
			running++
		} else {
			finished++
		}
	}
	return running, finished
}
