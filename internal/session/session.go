// Package session implements the timed exam state machine. A Session is
// created IN_PROGRESS with its timer armed at the exam duration and reaches
// SUBMITTED exactly once, either through Submit or when Tick drains the timer.
//
// All methods are safe for concurrent use; the timer goroutine and request
// handlers are serialized on the session's mutex.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/talentgrid/assessment-backend/internal/model"
)

// Evaluator runs a submission against a question's test cases. It must return
// exactly one verdict per test case and never fail.
type Evaluator interface {
	Evaluate(ctx context.Context, q model.Question, source string) []model.Verdict
}

// Session is one candidate's attempt at an exam.
type Session struct {
	mu sync.Mutex

	id          uuid.UUID
	candidateID string
	exam        *model.Exam
	evaluator   Evaluator
	now         func() time.Time

	ungradedAsZero bool
	onSubmit       func(model.SubmissionResult)

	current   int
	answers   map[uuid.UUID]string
	results   map[uuid.UUID][]model.Verdict
	scores    map[uuid.UUID]int
	remaining int
	status    model.SessionStatus
	result    *model.SubmissionResult
}

// Option configures a Session.
type Option func(*Session)

// WithID sets the session ID (defaults to a random UUID).
func WithID(id uuid.UUID) Option {
	return func(s *Session) { s.id = id }
}

// WithCandidate records the owning candidate.
func WithCandidate(candidateID string) Option {
	return func(s *Session) { s.candidateID = candidateID }
}

// WithClock overrides the clock used for CompletedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithUngradedAsZero counts questions without test cases as 0 in the
// aggregate instead of leaving them out of the mean.
func WithUngradedAsZero(v bool) Option {
	return func(s *Session) { s.ungradedAsZero = v }
}

// WithOnSubmit registers fn to receive the result once the session is
// submitted, whether explicitly or by the timer. fn runs after the session
// lock is released, on the goroutine that finalized it.
func WithOnSubmit(fn func(model.SubmissionResult)) Option {
	return func(s *Session) { s.onSubmit = fn }
}

// New creates an IN_PROGRESS session with answers seeded from starter code.
func New(exam *model.Exam, evaluator Evaluator, opts ...Option) *Session {
	s := &Session{
		id:        uuid.New(),
		exam:      exam,
		evaluator: evaluator,
		now:       time.Now,
		answers:   make(map[uuid.UUID]string, len(exam.Questions)),
		results:   make(map[uuid.UUID][]model.Verdict, len(exam.Questions)),
		scores:    make(map[uuid.UUID]int, len(exam.Questions)),
		remaining: max(exam.DurationSeconds, 0),
		status:    model.SessionStatusInProgress,
	}
	for _, q := range exam.Questions {
		s.answers[q.ID] = q.StarterCode
		s.scores[q.ID] = 0
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot is the state needed to rebuild a live session after a restart.
type Snapshot struct {
	CurrentIndex  int
	Answers       map[uuid.UUID]string
	TimeRemaining int
}

// Restore rebuilds an IN_PROGRESS session from persisted state. Answers for
// unknown question IDs are ignored; missing ones keep their starter code.
func Restore(exam *model.Exam, evaluator Evaluator, snap Snapshot, opts ...Option) *Session {
	s := New(exam, evaluator, opts...)
	for id, text := range snap.Answers {
		if _, ok := s.answers[id]; ok {
			s.answers[id] = text
		}
	}
	if snap.CurrentIndex >= 0 && snap.CurrentIndex < len(exam.Questions) {
		s.current = snap.CurrentIndex
	}
	s.remaining = min(max(snap.TimeRemaining, 0), s.remaining)
	return s
}

// ID returns the session ID.
func (s *Session) ID() uuid.UUID { return s.id }

// CandidateID returns the owning candidate.
func (s *Session) CandidateID() string { return s.candidateID }

// Exam returns the exam definition.
func (s *Session) Exam() *model.Exam { return s.exam }

// Navigate moves the cursor. Out-of-range indexes are ignored.
func (s *Session) Navigate(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != model.SessionStatusInProgress {
		return ErrInvalidTransition
	}
	if index < 0 || index >= len(s.exam.Questions) {
		return nil
	}
	s.current = index
	return nil
}

// EditAnswer overwrites the answer text for a question. Last write wins.
func (s *Session) EditAnswer(index int, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != model.SessionStatusInProgress {
		return ErrInvalidTransition
	}
	q, err := s.question(index)
	if err != nil {
		return err
	}
	s.answers[q.ID] = text
	return nil
}

// RunQuestion evaluates the current answer of a question, stores the verdicts
// and recomputes its score.
func (s *Session) RunQuestion(ctx context.Context, index int) ([]model.Verdict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != model.SessionStatusInProgress {
		return nil, ErrInvalidTransition
	}
	q, err := s.question(index)
	if err != nil {
		return nil, err
	}
	return cloneVerdicts(s.run(ctx, q)), nil
}

// Tick decrements the timer by one second. When the timer reaches zero the
// session is submitted and the result returned with expired set.
func (s *Session) Tick(ctx context.Context) (expired bool, result *model.SubmissionResult, err error) {
	s.mu.Lock()
	if s.status != model.SessionStatusInProgress {
		s.mu.Unlock()
		return false, nil, ErrInvalidTransition
	}
	if s.remaining > 0 {
		s.remaining--
	}
	if s.remaining > 0 {
		s.mu.Unlock()
		return false, nil, nil
	}
	res := s.finalize(ctx, model.SubmitReasonTimeExpired)
	s.mu.Unlock()

	s.notify(res)
	return true, &res, nil
}

// Submit evaluates every question that has not been run and finalizes the session.
func (s *Session) Submit(ctx context.Context) (model.SubmissionResult, error) {
	s.mu.Lock()
	if s.status != model.SessionStatusInProgress {
		s.mu.Unlock()
		return model.SubmissionResult{}, ErrInvalidTransition
	}
	res := s.finalize(ctx, model.SubmitReasonExplicit)
	s.mu.Unlock()

	s.notify(res)
	return res, nil
}

func (s *Session) notify(res model.SubmissionResult) {
	if s.onSubmit != nil {
		s.onSubmit(res)
	}
}

// ─── Read accessors ─────────────────────────────────────────────────

// CurrentIndex returns the question cursor.
func (s *Session) CurrentIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// TimeRemaining returns the remaining seconds.
func (s *Session) TimeRemaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining
}

// Snapshot returns the state Restore needs to rebuild this session.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	answers := make(map[uuid.UUID]string, len(s.answers))
	for k, v := range s.answers {
		answers[k] = v
	}
	return Snapshot{
		CurrentIndex:  s.current,
		Answers:       answers,
		TimeRemaining: s.remaining,
	}
}

// Submitted reports whether the session is terminal.
func (s *Session) Submitted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status == model.SessionStatusSubmitted
}

// Answer returns the answer text of a question.
func (s *Session) Answer(index int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, err := s.question(index)
	if err != nil {
		return "", err
	}
	return s.answers[q.ID], nil
}

// Answers returns a copy of the answers keyed by question ID.
func (s *Session) Answers() map[uuid.UUID]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[uuid.UUID]string, len(s.answers))
	for k, v := range s.answers {
		out[k] = v
	}
	return out
}

// TestResults returns a copy of the stored verdicts keyed by question ID.
// Questions that were never run are absent.
func (s *Session) TestResults() map[uuid.UUID][]model.Verdict {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[uuid.UUID][]model.Verdict, len(s.results))
	for k, v := range s.results {
		out[k] = cloneVerdicts(v)
	}
	return out
}

// Scores returns a copy of the per-question scores keyed by question ID.
func (s *Session) Scores() map[uuid.UUID]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[uuid.UUID]int, len(s.scores))
	for k, v := range s.scores {
		out[k] = v
	}
	return out
}

// TotalScore returns the aggregate score computed from the current scores.
func (s *Session) TotalScore() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalScore()
}

// Result returns the submission result, or nil while the session is in progress.
func (s *Session) Result() *model.SubmissionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return nil
	}
	r := *s.result
	return &r
}

// State returns a full snapshot for the host UI.
func (s *Session) State() model.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	qs := make([]model.QuestionState, len(s.exam.Questions))
	for i, q := range s.exam.Questions {
		verdicts, evaluated := s.results[q.ID]
		qs[i] = model.QuestionState{
			QuestionID: q.ID,
			Answer:     s.answers[q.ID],
			Evaluated:  evaluated,
			Verdicts:   cloneVerdicts(verdicts),
			Score:      s.scores[q.ID],
		}
	}

	state := model.SessionState{
		SessionID:     s.id,
		ExamID:        s.exam.ID,
		Status:        s.status,
		CurrentIndex:  s.current,
		TimeRemaining: s.remaining,
		Questions:     qs,
		TotalScore:    s.totalScore(),

		TimeRemainingLabel: FormatRemaining(s.remaining),
	}
	if s.result != nil {
		r := *s.result
		state.Result = &r
	}
	return state
}

// ─── Internal ───────────────────────────────────────────────────────
// Callers hold s.mu.

func (s *Session) question(index int) (*model.Question, error) {
	if index < 0 || index >= len(s.exam.Questions) {
		return nil, ErrQuestionOutOfRange
	}
	return &s.exam.Questions[index], nil
}

func (s *Session) run(ctx context.Context, q *model.Question) []model.Verdict {
	verdicts := s.evaluator.Evaluate(ctx, *q, s.answers[q.ID])
	if verdicts == nil {
		verdicts = []model.Verdict{}
	}
	s.results[q.ID] = verdicts
	s.scores[q.ID] = QuestionScore(model.CountPassed(verdicts), len(q.TestCases))
	return verdicts
}

func (s *Session) finalize(ctx context.Context, reason model.SubmitReason) model.SubmissionResult {
	for i := range s.exam.Questions {
		q := &s.exam.Questions[i]
		if _, ok := s.results[q.ID]; !ok {
			s.run(ctx, q)
		}
	}

	perQuestion := make([]model.QuestionScore, len(s.exam.Questions))
	for i, q := range s.exam.Questions {
		perQuestion[i] = model.QuestionScore{
			QuestionID: q.ID,
			Score:      s.scores[q.ID],
			Passed:     model.CountPassed(s.results[q.ID]),
			Total:      len(q.TestCases),
		}
	}

	s.status = model.SessionStatusSubmitted
	s.result = &model.SubmissionResult{
		SessionID:         s.id,
		ExamID:            s.exam.ID,
		CandidateID:       s.candidateID,
		PerQuestionScores: perQuestion,
		TotalScore:        s.totalScore(),
		CompletedAt:       s.now().UTC(),
		Reason:            reason,
	}
	return *s.result
}

func (s *Session) totalScore() int {
	graded := make([]int, 0, len(s.exam.Questions))
	for _, q := range s.exam.Questions {
		if len(q.TestCases) == 0 && !s.ungradedAsZero {
			continue
		}
		graded = append(graded, s.scores[q.ID])
	}
	return Aggregate(graded)
}

func cloneVerdicts(vs []model.Verdict) []model.Verdict {
	if vs == nil {
		return nil
	}
	out := make([]model.Verdict, len(vs))
	copy(out, vs)
	return out
}
