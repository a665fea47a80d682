// Package summary turns a finished session's transcript into a structured
// digest: a short prose summary, the user's goals, and the topics covered.
package summary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/coachline/coachline/internal/logging"
	"github.com/coachline/coachline/internal/models"
	"github.com/coachline/coachline/internal/repository"
)

const (
	// DefaultEmptySummary is stored when a session has no transcript
	DefaultEmptySummary = "Session completed. No conversation transcript was recorded."
	// FallbackSummary is stored when the model's answer cannot be parsed
	FallbackSummary = "Conversation completed. Unable to generate detailed summary."

	analystInstruction = "You are an expert conversation analyst. Analyze the following conversation and extract key insights. Be concise and action-oriented."
)

// Error is a summarization failure with the HTTP status and message the
// caller should see.
type Error struct {
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

var fencePattern = regexp.MustCompile("```(?:json)?\\n?|\\n?```")

// Worker produces and persists session summaries
type Worker struct {
	sessions  repository.SessionRepository
	messages  repository.MessageRepository
	completer Completer
	log       logrus.FieldLogger
}

// NewWorker creates a worker. A nil completer means the AI service is not configured.
func NewWorker(sessions repository.SessionRepository, messages repository.MessageRepository, completer Completer, log logrus.FieldLogger) *Worker {
	return &Worker{
		sessions:  sessions,
		messages:  messages,
		completer: completer,
		log:       logging.OrDiscard(log),
	}
}

// Summarize builds the digest for sessionID and stores it on the session
func (w *Worker) Summarize(ctx context.Context, sessionID uuid.UUID) (*models.Summary, error) {
	log := w.log.WithField("session_id", sessionID)

	messages, err := w.messages.ListBySession(ctx, sessionID)
	if err != nil {
		log.WithError(err).Error("failed to fetch messages")
		return nil, &Error{Status: http.StatusInternalServerError, Message: "Failed to fetch messages", Err: err}
	}

	if len(messages) == 0 {
		log.Info("no messages found for session, creating default summary")
		result := models.Summary{Summary: DefaultEmptySummary, MainGoals: []string{}, TopicsDiscussed: []string{}}
		if err := w.sessions.UpdateSummary(ctx, sessionID, result); err != nil {
			log.WithError(err).Error("failed to update session with default summary")
		}
		return &result, nil
	}

	if isNilCompleter(w.completer) {
		log.Error("summary completer is not configured")
		return nil, &Error{Status: http.StatusInternalServerError, Message: "AI service not configured"}
	}

	reply, err := w.completer.Complete(ctx, analystInstruction, analysisPrompt(FormatTranscript(messages)))
	if err != nil {
		return nil, w.upstreamError(log, err)
	}
	if strings.TrimSpace(reply) == "" {
		log.Error("no analysis content in AI response")
		return nil, &Error{Status: http.StatusInternalServerError, Message: "AI analysis produced no content"}
	}

	result, err := ParseAnalysis(reply)
	if err != nil {
		log.WithError(err).WithField("reply", reply).Warn("failed to parse AI response, using fallback summary")
		result = models.Summary{Summary: FallbackSummary, MainGoals: []string{}, TopicsDiscussed: []string{}}
	}

	if err := w.sessions.UpdateSummary(ctx, sessionID, result); err != nil {
		log.WithError(err).Error("failed to update session")
		return nil, &Error{Status: http.StatusInternalServerError, Message: "Failed to save analysis", Err: err}
	}

	log.Info("session summary generated")
	return &result, nil
}

// upstreamError keeps rate-limit and quota statuses visible to the caller
func (w *Worker) upstreamError(log logrus.FieldLogger, err error) error {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		switch provErr.Status {
		case http.StatusTooManyRequests:
			return &Error{Status: http.StatusTooManyRequests, Message: "Rate limits exceeded, please try again later.", Err: err}
		case http.StatusPaymentRequired:
			return &Error{Status: http.StatusPaymentRequired, Message: "AI service credits exhausted.", Err: err}
		}
	}
	log.WithError(err).Error("AI gateway error")
	return &Error{Status: http.StatusInternalServerError, Message: "AI analysis failed", Err: err}
}

// FormatTranscript renders messages as "User:"/"AI:" lines separated by blank lines
func FormatTranscript(messages []models.Message) string {
	lines := make([]string, len(messages))
	for i, m := range messages {
		speaker := "AI"
		if m.Sender == models.SenderUser {
			speaker = "User"
		}
		lines[i] = speaker + ": " + m.Content
	}
	return strings.Join(lines, "\n\n")
}

func analysisPrompt(transcript string) string {
	return `Analyze this conversation and provide a structured analysis:

` + transcript + `

Provide your analysis in the following format (respond with ONLY valid JSON, no markdown):
{
  "summary": "A 2-3 sentence summary of what was discussed",
  "main_goals": ["goal1", "goal2", "goal3"],
  "topics_discussed": ["topic1", "topic2", "topic3"]
}`
}

// ParseAnalysis decodes the model's JSON answer, tolerating markdown code
// fences. A missing summary counts as malformed.
func ParseAnalysis(reply string) (models.Summary, error) {
	cleaned := strings.TrimSpace(fencePattern.ReplaceAllString(reply, ""))

	var parsed struct {
		Summary         *string  `json:"summary"`
		MainGoals       []string `json:"main_goals"`
		TopicsDiscussed []string `json:"topics_discussed"`
	}
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return models.Summary{}, fmt.Errorf("invalid analysis JSON: %w", err)
	}
	if parsed.Summary == nil || strings.TrimSpace(*parsed.Summary) == "" {
		return models.Summary{}, errors.New("analysis has no summary")
	}

	result := models.Summary{
		Summary:         *parsed.Summary,
		MainGoals:       parsed.MainGoals,
		TopicsDiscussed: parsed.TopicsDiscussed,
	}
	if result.MainGoals == nil {
		result.MainGoals = []string{}
	}
	if result.TopicsDiscussed == nil {
		result.TopicsDiscussed = []string{}
	}
	return result, nil
}

func isNilCompleter(c Completer) bool {
	if c == nil {
		return true
	}
	oc, ok := c.(*OpenAICompleter)
	return ok && oc == nil
}
