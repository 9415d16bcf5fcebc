package session

import "errors"

var (
	// ErrInvalidTransition is returned for any action against a submitted session.
	ErrInvalidTransition = errors.New("session already submitted")
	// ErrQuestionOutOfRange is returned when an edit or run names a question index outside the exam.
	ErrQuestionOutOfRange = errors.New("question index out of range")
)
