package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/facetrack/facetrack-api/internal/models"
	"github.com/facetrack/facetrack-api/pkg/config"
	appErrors "github.com/facetrack/facetrack-api/pkg/errors"
)

type fakeChat struct {
	reply    string
	err      error
	received []models.ChatMessage
}

func (f *fakeChat) Complete(_ context.Context, messages []models.ChatMessage) (string, error) {
	f.received = messages
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type fakeOverviewProvider struct {
	overview *models.Overview
}

func (f *fakeOverviewProvider) Overview(_ context.Context, _ models.Scope) (*models.Overview, error) {
	return f.overview, nil
}

type fakeQueryLog struct {
	entries []*models.AIQuery
}

func (f *fakeQueryLog) Create(_ context.Context, entry *models.AIQuery) error {
	f.entries = append(f.entries, entry)
	return nil
}

type memoryCache struct {
	data map[string][]models.ChatMessage
}

func (m *memoryCache) Get(_ context.Context, key string, dest interface{}) error {
	history, ok := m.data[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	*(dest.(*[]models.ChatMessage)) = history
	return nil
}

func (m *memoryCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	m.data[key] = value.([]models.ChatMessage)
	return nil
}

func testOverview() *models.Overview {
	return &models.Overview{
		TotalStudents: 1,
		TotalSessions: 2,
		TodayDate:     "2026-03-02",
		StudentStats: []models.StudentStats{{
			StudentID:            "s1",
			StudentName:          "Ada",
			SessionsAttended:     2,
			EligibleSessions:     2,
			AttendancePercentage: 100.0,
		}},
		SessionStats: []models.SessionStats{{
			SessionID:   "sess1",
			SessionName: "Lecture 1",
			ClassName:   "Math 101",
			Date:        "2026-03-02",
		}},
	}
}

func newAssistantFixture() (*AssistantService, *fakeChat, *fakeQueryLog, *memoryCache) {
	chat := &fakeChat{reply: "Ada attended every session."}
	queries := &fakeQueryLog{}
	cache := &memoryCache{data: map[string][]models.ChatMessage{}}
	cfg := config.AssistantConfig{Enabled: true, MaxTurns: 2, HistoryTTL: time.Minute}
	svc := NewAssistantService(chat, &fakeOverviewProvider{overview: testOverview()}, queries, cache, cfg, zap.NewNop())
	return svc, chat, queries, cache
}

func TestAskGroundsPromptInScopeData(t *testing.T) {
	svc, chat, queries, _ := newAssistantFixture()

	resp, err := svc.Ask(context.Background(), models.TeacherScope("t1"), "u1", "How is Ada doing?")
	require.NoError(t, err)
	assert.Equal(t, "Ada attended every session.", resp.Answer)

	require.NotEmpty(t, chat.received)
	system := chat.received[0]
	assert.Equal(t, "system", system.Role)
	assert.Contains(t, system.Content, "Ada")
	assert.Contains(t, system.Content, "Lecture 1")
	assert.Contains(t, system.Content, "only help with attendance")

	require.Len(t, queries.entries, 1)
	assert.Equal(t, "How is Ada doing?", queries.entries[0].Query)
}

func TestAskKeepsRollingHistoryCapped(t *testing.T) {
	svc, chat, _, cache := newAssistantFixture()

	for i := 0; i < 4; i++ {
		_, err := svc.Ask(context.Background(), models.TeacherScope("t1"), "u1", "question")
		require.NoError(t, err)
	}

	history := cache.data["assistant:history:u1"]
	// MaxTurns of 2 means at most 2 user/assistant pairs survive.
	assert.Len(t, history, 4)
	// The last request carried system + history + new question.
	assert.Equal(t, "system", chat.received[0].Role)
	assert.Equal(t, "user", chat.received[len(chat.received)-1].Role)
}

func TestAskDisabledAssistant(t *testing.T) {
	svc := NewAssistantService(&fakeChat{}, &fakeOverviewProvider{overview: testOverview()}, &fakeQueryLog{}, nil, config.AssistantConfig{Enabled: false}, zap.NewNop())

	_, err := svc.Ask(context.Background(), models.AdminScope(), "u1", "hello")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAskEmptyQuestion(t *testing.T) {
	svc, _, _, _ := newAssistantFixture()

	_, err := svc.Ask(context.Background(), models.AdminScope(), "u1", "   ")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAskCompletionFailure(t *testing.T) {
	svc, chat, queries, _ := newAssistantFixture()
	chat.err = assert.AnError

	_, err := svc.Ask(context.Background(), models.AdminScope(), "u1", "question")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrGatewayUnavailable.Code, appErrors.FromError(err).Code)
	assert.Empty(t, queries.entries)
}
