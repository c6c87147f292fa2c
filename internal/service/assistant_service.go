package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/facetrack/facetrack-api/internal/models"
	"github.com/facetrack/facetrack-api/pkg/config"
	appErrors "github.com/facetrack/facetrack-api/pkg/errors"
)

type chatCompleter interface {
	Complete(ctx context.Context, messages []models.ChatMessage) (string, error)
}

type overviewProvider interface {
	Overview(ctx context.Context, scope models.Scope) (*models.Overview, error)
}

type aiQueryLogger interface {
	Create(ctx context.Context, entry *models.AIQuery) error
}

type conversationCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// AssistantService answers natural-language questions about attendance. It
// grounds every conversation in the caller's current statistics snapshot,
// so the model only ever sees data the caller is allowed to see.
type AssistantService struct {
	chat      chatCompleter
	stats     overviewProvider
	queryRepo aiQueryLogger
	cache     conversationCache
	cfg       config.AssistantConfig
	logger    *zap.Logger
}

// NewAssistantService constructs the assistant service.
func NewAssistantService(chat chatCompleter, stats overviewProvider, queries aiQueryLogger, cache conversationCache, cfg config.AssistantConfig, logger *zap.Logger) *AssistantService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssistantService{
		chat:      chat,
		stats:     stats,
		queryRepo: queries,
		cache:     cache,
		cfg:       cfg,
		logger:    logger,
	}
}

// AskRequest is one user question.
type AskRequest struct {
	Question string `json:"question" validate:"required"`
}

// AskResponse carries the assistant's answer.
type AskResponse struct {
	Answer string `json:"answer"`
}

// Ask answers the question using the scope's attendance data as context,
// keeping a short rolling conversation history per user.
func (s *AssistantService) Ask(ctx context.Context, scope models.Scope, userID, question string) (*AskResponse, error) {
	if !s.cfg.Enabled {
		return nil, appErrors.Clone(appErrors.ErrValidation, "assistant is disabled")
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "question is required")
	}

	overview, err := s.stats.Overview(ctx, scope)
	if err != nil {
		return nil, err
	}

	historyKey := "assistant:history:" + userID
	var history []models.ChatMessage
	if s.cache != nil {
		if err := s.cache.Get(ctx, historyKey, &history); err != nil && !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("assistant history read failed", zap.Error(err))
		}
	}

	messages := make([]models.ChatMessage, 0, len(history)+2)
	messages = append(messages, models.ChatMessage{Role: "system", Content: buildSystemPrompt(overview)})
	messages = append(messages, history...)
	messages = append(messages, models.ChatMessage{Role: "user", Content: question})

	answer, err := s.chat.Complete(ctx, messages)
	if err != nil {
		s.logger.Error("assistant completion failed", zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrGatewayUnavailable.Code, appErrors.ErrGatewayUnavailable.Status, "assistant unavailable")
	}

	history = append(history,
		models.ChatMessage{Role: "user", Content: question},
		models.ChatMessage{Role: "assistant", Content: answer})
	maxTurns := s.cfg.MaxTurns
	if maxTurns <= 0 {
		maxTurns = 6
	}
	if len(history) > maxTurns*2 {
		history = history[len(history)-maxTurns*2:]
	}
	if s.cache != nil {
		ttl := s.cfg.HistoryTTL
		if ttl <= 0 {
			ttl = 30 * time.Minute
		}
		if err := s.cache.Set(ctx, historyKey, history, ttl); err != nil {
			s.logger.Warn("assistant history write failed", zap.Error(err))
		}
	}

	entry := &models.AIQuery{Query: question, Response: answer}
	if userID != "" {
		entry.UserID = &userID
	}
	if err := s.queryRepo.Create(ctx, entry); err != nil {
		s.logger.Warn("assistant query logging failed", zap.Error(err))
	}

	return &AskResponse{Answer: answer}, nil
}

// buildSystemPrompt renders the scope's attendance snapshot into the model
// context. The prompt instructs the model to stay on topic and to answer
// only from the provided data.
func buildSystemPrompt(overview *models.Overview) string {
	var b strings.Builder
	b.WriteString("You are an attendance assistant for a classroom face-recognition system. ")
	b.WriteString("Answer questions only about the attendance data below. ")
	b.WriteString("If a question is unrelated to attendance, students, sessions or classes, say you can only help with attendance. ")
	b.WriteString("Do not invent students, sessions or numbers that are not in the data.\n\n")

	fmt.Fprintf(&b, "Today: %s. Students: %d. Sessions: %d. Records: %d.\n\n", overview.TodayDate, overview.TotalStudents, overview.TotalSessions, len(overview.Records))

	b.WriteString("Student statistics:\n")
	for _, stat := range overview.StudentStats {
		fmt.Fprintf(&b, "- %s: attended %d of %d eligible sessions (%.1f%%), late %d times, on time %d times\n",
			stat.StudentName, stat.SessionsAttended, stat.EligibleSessions, stat.AttendancePercentage, stat.TimesLate, stat.TimesOnTime)
	}

	b.WriteString("\nSession details:\n")
	for _, stat := range overview.SessionStats {
		fmt.Fprintf(&b, "- %s (%s, %s): %d of %d present (%.1f%%), late: %s, absent: %s\n",
			stat.SessionName, stat.ClassName, stat.Date, stat.PresentCount, stat.EligibleCount, stat.AttendancePercentage,
			joinOrNone(stat.LateStudents), joinOrNone(stat.AbsentStudents))
	}
	return b.String()
}

func joinOrNone(names []string) string {
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ", ")
}
