package models

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// SessionStatus is the lifecycle status of a coaching session
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionPaused    SessionStatus = "paused"
)

// Valid reports whether s is a known status
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionActive, SessionCompleted, SessionPaused:
		return true
	}
	return false
}

// Terminal reports whether s is a status a session may be closed with
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionPaused
}

// Sender identifies who produced a message
type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

// Valid reports whether s is a known sender
func (s Sender) Valid() bool {
	return s == SenderUser || s == SenderAI
}

// Session is one coaching conversation
type Session struct {
	ID              uuid.UUID      `json:"id" db:"id"`
	UserID          uuid.UUID      `json:"user_id" db:"user_id"`
	StartedAt       time.Time      `json:"started_at" db:"started_at"`
	EndedAt         *time.Time     `json:"ended_at" db:"ended_at"`
	DurationSeconds *int           `json:"duration_seconds" db:"duration_seconds"`
	Status          SessionStatus  `json:"status" db:"status"`
	Summary         *string        `json:"summary" db:"summary"`
	MainGoals       pq.StringArray `json:"main_goals" db:"main_goals"`
	TopicsDiscussed pq.StringArray `json:"topics_discussed" db:"topics_discussed"`
	Rating          *int           `json:"rating" db:"rating"`
	Feedback        pq.StringArray `json:"feedback" db:"feedback"`
	CreatedAt       time.Time      `json:"created_at" db:"created_at"`
}

// Close moves an active session to a terminal status. The duration is derived
// from StartedAt and is only ever set here.
func (s *Session) Close(status SessionStatus, endedAt time.Time) error {
	if s.Status != SessionActive {
		return fmt.Errorf("session %s is %s, not active", s.ID, s.Status)
	}
	if !status.Terminal() {
		return fmt.Errorf("invalid terminal status %q", status)
	}
	duration := DurationSeconds(s.StartedAt, endedAt)
	s.Status = status
	s.EndedAt = &endedAt
	s.DurationSeconds = &duration
	return nil
}

// DurationSeconds rounds the elapsed time between start and end to whole seconds
func DurationSeconds(start, end time.Time) int {
	return int(math.Round(end.Sub(start).Seconds()))
}

// Message is one finalized turn in a session transcript
type Message struct {
	ID        uuid.UUID `json:"id" db:"id"`
	SessionID uuid.UUID `json:"session_id" db:"session_id"`
	Sender    Sender    `json:"sender" db:"sender"`
	Content   string    `json:"content" db:"content"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// SystemPrompt is a named set of coaching instructions
type SystemPrompt struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	Name       string     `json:"name" db:"name"`
	PromptText string     `json:"prompt_text" db:"prompt_text"`
	IsActive   bool       `json:"is_active" db:"is_active"`
	CreatedBy  *uuid.UUID `json:"created_by" db:"created_by"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}

// Summary is the structured digest produced for a finished session
type Summary struct {
	Summary         string   `json:"summary"`
	MainGoals       []string `json:"main_goals"`
	TopicsDiscussed []string `json:"topics_discussed"`
}
