package idol

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	analysis "github.com/zhouzirui/idolchat/internal/analysis/emotion"
	"github.com/zhouzirui/idolchat/internal/history"
	"github.com/zhouzirui/idolchat/internal/model/chat"
	"github.com/zhouzirui/idolchat/internal/model/persona"
	emotionservice "github.com/zhouzirui/idolchat/internal/service/emotion"
)

type scriptedResponder struct {
	reply   string
	err     error
	history []chat.Turn
	mood    *emotionservice.State
}

func (r *scriptedResponder) Respond(_ context.Context, _ *persona.Persona, history []chat.Turn, _ string, mood *emotionservice.State) (string, error) {
	r.history = history
	r.mood = mood
	return r.reply, r.err
}

func newTestService(t *testing.T, deps Deps) (*Service, history.Store) {
	t.Helper()
	if deps.Store == nil {
		deps.Store = history.NewMemoryStore()
	}
	svc, err := NewService(deps)
	require.NoError(t, err)
	return svc, deps.Store
}

func TestChatEchoesAndRecordsHistory(t *testing.T) {
	svc, store := newTestService(t, Deps{})
	ctx := context.Background()

	result, err := svc.Chat(ctx, "u1", "hello", "web")
	require.NoError(t, err)
	assert.Equal(t, "你說: \"hello\"", result.Reply)
	assert.Equal(t, analysis.Neutral, result.Emotion)
	assert.InDelta(t, 0.5, result.Intensity, 1e-9)

	turns := store.Get(ctx, "u1")
	require.Len(t, turns, 2)
	assert.Equal(t, chat.RoleUser, turns[0].Role)
	assert.Equal(t, "hello", turns[0].Text)
	assert.Equal(t, chat.RoleAssistant, turns[1].Role)
	assert.Equal(t, "neutral", turns[1].Emotion)

	got, err := svc.History(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, turns, got)
}

func TestChatLabelsReplyEmotion(t *testing.T) {
	svc, _ := newTestService(t, Deps{Responder: &scriptedResponder{reply: "太棒了！！我好興奮！"}})

	result, err := svc.Chat(context.Background(), "u1", "猜猜看", "web")
	require.NoError(t, err)
	assert.Equal(t, analysis.Excited, result.Emotion)
	assert.Equal(t, result.Emotion, svc.Mood().Emotion)
}

func TestChatValidatesInput(t *testing.T) {
	svc, _ := newTestService(t, Deps{})
	ctx := context.Background()

	_, err := svc.Chat(ctx, " ", "hi", "web")
	assert.ErrorIs(t, err, ErrUserIDRequired)

	_, err = svc.Chat(ctx, "u1", "  ", "web")
	assert.ErrorIs(t, err, ErrMessageRequired)

	_, err = svc.History(ctx, "")
	assert.ErrorIs(t, err, ErrUserIDRequired)
}

func TestChatResponderFailureRecordsNothing(t *testing.T) {
	boom := errors.New("model down")
	svc, store := newTestService(t, Deps{Responder: &scriptedResponder{err: boom}})

	_, err := svc.Chat(context.Background(), "u1", "hi", "web")
	require.ErrorIs(t, err, boom)
	assert.Empty(t, store.Get(context.Background(), "u1"))
}

func TestChatLimitsContextToMaxMemories(t *testing.T) {
	responder := &scriptedResponder{reply: "ok"}
	svc, _ := newTestService(t, Deps{Responder: responder, MaxMemories: 3})
	ctx := context.Background()

	for _, msg := range []string{"a", "b", "c"} {
		_, err := svc.Chat(ctx, "u1", msg, "web")
		require.NoError(t, err)
	}

	require.Len(t, responder.history, 3)
	assert.Equal(t, "ok", responder.history[0].Text)
	assert.Equal(t, "b", responder.history[1].Text)
	require.NotNil(t, responder.mood)
}

func TestChatDecaysMoodBeforeResponding(t *testing.T) {
	engine := emotionservice.NewEngine(analysis.Neutral, 0.1)
	engine.Update(analysis.Happy, 0.8)
	responder := &scriptedResponder{reply: "ok"}
	svc, _ := newTestService(t, Deps{Responder: responder, Engine: engine})

	_, err := svc.Chat(context.Background(), "u1", "hi", "web")
	require.NoError(t, err)
	require.NotNil(t, responder.mood)
	assert.Equal(t, analysis.Happy, responder.mood.Emotion)
	assert.InDelta(t, 0.7, responder.mood.Intensity, 1e-9)
}

func TestNewServiceRequiresStore(t *testing.T) {
	_, err := NewService(Deps{})
	require.Error(t, err)
}

func TestChatAppliesMoodTrigger(t *testing.T) {
	fsm := emotionservice.NewFSM(func() float64 { return 0 })
	engine := emotionservice.NewEngine(analysis.Neutral, 0.1, emotionservice.WithFSM(fsm))
	responder := &scriptedResponder{reply: "ok"}
	svc, _ := newTestService(t, Deps{Responder: responder, Engine: engine})

	_, err := svc.Chat(context.Background(), "u1", "谢谢你", "web")
	require.NoError(t, err)
	require.NotNil(t, responder.mood)
	assert.Equal(t, analysis.Happy, responder.mood.Emotion)
	assert.InDelta(t, chat.DefaultIntensity, responder.mood.Intensity, 1e-9)
}

func TestChatTriggerHonoursPlatformConditions(t *testing.T) {
	fsm := emotionservice.NewFSM(func() float64 { return 0 })
	fsm.Add(emotionservice.Transition{
		From:       analysis.Neutral,
		To:         analysis.Shy,
		Trigger:    emotionservice.TriggerComfort,
		Conditions: map[string]string{"platform": "vip"},
	})
	engine := emotionservice.NewEngine(analysis.Neutral, 0.1, emotionservice.WithFSM(fsm))
	responder := &scriptedResponder{reply: "ok"}
	svc, _ := newTestService(t, Deps{Responder: responder, Engine: engine})
	ctx := context.Background()

	_, err := svc.Chat(ctx, "u1", "抱抱", "web")
	require.NoError(t, err)
	assert.Equal(t, analysis.Neutral, responder.mood.Emotion)

	_, err = svc.Chat(ctx, "u1", "抱抱", "vip")
	require.NoError(t, err)
	assert.Equal(t, analysis.Shy, responder.mood.Emotion)
}

func TestCleanupOldMemories(t *testing.T) {
	store := history.NewMemoryStore()
	svc, _ := newTestService(t, Deps{Store: store, Retention: 30 * 24 * time.Hour})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	ctx := context.Background()

	stale := chat.NewUserTurn("last month")
	stale.Timestamp = now.Add(-31 * 24 * time.Hour)
	fresh := chat.NewUserTurn("yesterday")
	fresh.Timestamp = now.Add(-24 * time.Hour)
	require.NoError(t, store.Append(ctx, "u1", []chat.Turn{stale, fresh}))

	removed, err := svc.CleanupOldMemories(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	got, err := svc.History(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, fresh.ID, got[0].ID)
}

func TestCleanupOldMemoriesDisabled(t *testing.T) {
	store := history.NewMemoryStore()
	svc, _ := newTestService(t, Deps{Store: store})
	ctx := context.Background()

	stale := chat.NewUserTurn("ancient")
	stale.Timestamp = time.Now().Add(-365 * 24 * time.Hour)
	require.NoError(t, store.Append(ctx, "u1", []chat.Turn{stale}))

	removed, err := svc.CleanupOldMemories(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)
	assert.Len(t, store.Get(ctx, "u1"), 1)
}

func TestRunRetentionSweepsUntilCancelled(t *testing.T) {
	store := history.NewMemoryStore()
	svc, _ := newTestService(t, Deps{Store: store, Retention: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())

	stale := chat.NewUserTurn("old")
	stale.Timestamp = time.Now().Add(-2 * time.Hour)
	require.NoError(t, store.Append(ctx, "u1", []chat.Turn{stale}))

	done := make(chan struct{})
	go func() {
		defer close(done)
		svc.RunRetention(ctx, time.Millisecond)
	}()

	require.Eventually(t, func() bool {
		return len(store.Get(context.Background(), "u1")) == 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("retention loop did not stop")
	}
}
