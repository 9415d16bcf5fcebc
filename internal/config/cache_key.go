package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// ExamDefinitionKey returns the cache key for a full exam definition (questions and test cases).
func (r *CacheKeyStruct) ExamDefinitionKey(examID string) string {
	return fmt.Sprintf("exam:%s:definition", examID)
}

// ExamCatalogKey returns the cache key for the public exam catalog.
func (r *CacheKeyStruct) ExamCatalogKey() string {
	return "exam:catalog"
}

// SessionAnswersKey returns the hash holding autosaved answers, field = question ID.
func (r *CacheKeyStruct) SessionAnswersKey(sessionID string) string {
	return fmt.Sprintf("session:%s:answers", sessionID)
}

// SessionCursorKey returns the cache key for the current question index.
func (r *CacheKeyStruct) SessionCursorKey(sessionID string) string {
	return fmt.Sprintf("session:%s:cursor", sessionID)
}

// SessionResultKey returns the cache key for a finalized session's SubmissionResult.
func (r *CacheKeyStruct) SessionResultKey(sessionID string) string {
	return fmt.Sprintf("session:%s:result", sessionID)
}

// SessionEventsChannel returns the Redis PubSub channel for a session's live events.
func (r *CacheKeyStruct) SessionEventsChannel(sessionID string) string {
	return fmt.Sprintf("session:%s:events", sessionID)
}

var CacheKey = NewCacheKeyStruct()
