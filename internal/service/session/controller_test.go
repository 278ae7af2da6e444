package session

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zhouzirui/idolchat/internal/avatar"
	"github.com/zhouzirui/idolchat/internal/history"
	"github.com/zhouzirui/idolchat/internal/model/chat"
)

var ignoreStamp = cmpopts.IgnoreFields(chat.Turn{}, "ID", "Timestamp")

var testIdentity = chat.Identity{UserID: "test_user", Username: "Test User"}

type fixture struct {
	gw         *fakeGateway
	store      history.Store
	driver     *recordingDriver
	controller *Controller
}

func newFixture(t *testing.T, gw *fakeGateway, store history.Store) fixture {
	t.Helper()
	if store == nil {
		store = history.NewMemoryStore()
	}
	driver := &recordingDriver{}
	controller := NewController(testIdentity, Deps{
		Gateway:        gw,
		Store:          store,
		Driver:         driver,
		Logger:         zap.NewNop(),
		RequestTimeout: time.Second,
	})
	return fixture{gw: gw, store: store, driver: driver, controller: controller}
}

func wait(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("submission did not settle")
	}
}

func TestSubmitBlankTextIsNoop(t *testing.T) {
	f := newFixture(t, &fakeGateway{}, nil)

	for _, text := range []string{"", " ", "\t\n", "　"} {
		done, ok := f.controller.Submit(context.Background(), text)
		assert.False(t, ok, "text %q", text)
		assert.Nil(t, done)
	}

	assert.Empty(t, f.controller.Transcript())
	assert.Empty(t, f.gw.Calls())
	assert.Equal(t, PhaseIdle, f.controller.Phase())
	assert.Empty(t, f.driver.Commands())
}

func TestSubmitSuccess(t *testing.T) {
	gw := &fakeGateway{reply: chat.Reply{Text: "Hi there!", Emotion: "happy", EmotionIntensity: floatPtr(0.8)}}
	f := newFixture(t, gw, nil)

	done, ok := f.controller.Submit(context.Background(), "Hello!")
	require.True(t, ok)
	wait(t, done)

	want := []chat.Turn{
		{Role: chat.RoleUser, Text: "Hello!"},
		{Role: chat.RoleAssistant, Text: "Hi there!", Emotion: "happy", EmotionIntensity: 0.8},
	}
	if diff := cmp.Diff(want, f.controller.Transcript(), ignoreStamp); diff != "" {
		t.Fatalf("transcript mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, []sendCall{{userID: "test_user", text: "Hello!"}}, gw.Calls())
	assert.Equal(t, []avatar.Command{{ExpressionID: avatar.ExpressionHeart, Intensity: 0.8}}, f.driver.Commands())
	assert.Equal(t, Emotion{Label: "happy", Intensity: 0.8}, f.controller.LastEmotion())
	assert.Equal(t, PhaseIdle, f.controller.Phase())
	assert.Empty(t, f.store.Get(context.Background(), "test_user"), "delivered turns stay remote")
}

func TestSubmitDefaultsMissingIntensity(t *testing.T) {
	gw := &fakeGateway{reply: chat.Reply{Text: "hmm", Emotion: "shy"}}
	f := newFixture(t, gw, nil)

	done, ok := f.controller.Submit(context.Background(), "you look cute")
	require.True(t, ok)
	wait(t, done)

	transcript := f.controller.Transcript()
	require.Len(t, transcript, 2)
	assert.Equal(t, "shy", transcript[1].Emotion)
	assert.InDelta(t, 0.5, transcript[1].EmotionIntensity, 1e-9)
	assert.Equal(t, []avatar.Command{{ExpressionID: avatar.ExpressionBlush, Intensity: 0.5}}, f.driver.Commands())
}

func TestSubmitWithoutEmotionShowsNeutral(t *testing.T) {
	gw := &fakeGateway{reply: chat.Reply{Text: "ok"}}
	f := newFixture(t, gw, nil)

	done, ok := f.controller.Submit(context.Background(), "hi")
	require.True(t, ok)
	wait(t, done)

	transcript := f.controller.Transcript()
	require.Len(t, transcript, 2)
	assert.Empty(t, transcript[1].Emotion)
	assert.Equal(t, []avatar.Command{{ExpressionID: avatar.DefaultExpression, Intensity: 0.5}}, f.driver.Commands())
	assert.Equal(t, Emotion{Label: "neutral", Intensity: 0.5}, f.controller.LastEmotion())
}

func TestSubmitUnknownEmotionUsesDefaultExpression(t *testing.T) {
	gw := &fakeGateway{reply: chat.Reply{Text: "there there", Emotion: "tender", EmotionIntensity: floatPtr(0.3)}}
	f := newFixture(t, gw, nil)

	done, ok := f.controller.Submit(context.Background(), "hug")
	require.True(t, ok)
	wait(t, done)

	assert.Equal(t, "tender", f.controller.Transcript()[1].Emotion)
	assert.Equal(t, []avatar.Command{{ExpressionID: avatar.DefaultExpression, Intensity: 0.3}}, f.driver.Commands())
}

func TestSubmitEchoesBeforeReplyAndRejectsOverlap(t *testing.T) {
	gw := &fakeGateway{
		reply:   chat.Reply{Text: "first reply", Emotion: "happy", EmotionIntensity: floatPtr(0.6)},
		release: make(chan struct{}),
	}
	f := newFixture(t, gw, nil)

	done, ok := f.controller.Submit(context.Background(), "first")
	require.True(t, ok)

	transcript := f.controller.Transcript()
	require.Len(t, transcript, 1, "user turn is visible before the gateway answers")
	assert.Equal(t, "first", transcript[0].Text)
	assert.Equal(t, PhaseSubmitting, f.controller.Phase())

	second, ok := f.controller.Submit(context.Background(), "second")
	assert.False(t, ok)
	assert.Nil(t, second)

	close(gw.release)
	wait(t, done)

	transcript = f.controller.Transcript()
	require.Len(t, transcript, 2)
	assert.Equal(t, "first", transcript[0].Text)
	assert.Equal(t, "first reply", transcript[1].Text)
	assert.Len(t, gw.Calls(), 1)
	assert.Equal(t, PhaseIdle, f.controller.Phase())
}

func TestSubmitFailureFallsBackLocally(t *testing.T) {
	gw := &fakeGateway{err: errUnreachable}
	store := history.NewMemoryStore()
	f := newFixture(t, gw, store)

	before := len(store.Get(context.Background(), "test_user"))

	done, ok := f.controller.Submit(context.Background(), "Test")
	require.True(t, ok)
	wait(t, done)

	want := []chat.Turn{
		{Role: chat.RoleUser, Text: "Test"},
		{Role: chat.RoleAssistant, Text: FallbackText, Emotion: "sad", EmotionIntensity: 0.8},
	}
	if diff := cmp.Diff(want, f.controller.Transcript(), ignoreStamp); diff != "" {
		t.Fatalf("transcript mismatch (-want +got):\n%s", diff)
	}

	persisted := store.Get(context.Background(), "test_user")
	assert.Equal(t, before+2, len(persisted))
	assert.Equal(t, f.controller.Transcript(), persisted)

	assert.Equal(t, []avatar.Command{{ExpressionID: avatar.ExpressionTears, Intensity: 0.8}}, f.driver.Commands())
	assert.Equal(t, Emotion{Label: "sad", Intensity: 0.8}, f.controller.LastEmotion())
	assert.Equal(t, PhaseIdle, f.controller.Phase())
}

func TestFallbackAppendsToPriorHistory(t *testing.T) {
	store := history.NewMemoryStore()
	prior := []chat.Turn{chat.NewUserTurn("old"), chat.NewAssistantTurn(FallbackText, "sad", 0.8)}
	require.NoError(t, store.Append(context.Background(), "test_user", prior))

	f := newFixture(t, &fakeGateway{err: errUnreachable}, store)
	done, ok := f.controller.Submit(context.Background(), "again")
	require.True(t, ok)
	wait(t, done)

	persisted := store.Get(context.Background(), "test_user")
	require.Len(t, persisted, 4)
	assert.Equal(t, prior[0].ID, persisted[0].ID)
	assert.Equal(t, "again", persisted[2].Text)
}

func TestFallbackStoreFailureDoesNotCascade(t *testing.T) {
	f := newFixture(t, &fakeGateway{err: errUnreachable}, failingStore{})

	done, ok := f.controller.Submit(context.Background(), "Test")
	require.True(t, ok)
	wait(t, done)

	assert.Len(t, f.controller.Transcript(), 2)
	assert.Len(t, f.driver.Commands(), 1)
	assert.Equal(t, PhaseIdle, f.controller.Phase())

	done, ok = f.controller.Submit(context.Background(), "Test again")
	require.True(t, ok)
	wait(t, done)
	assert.Len(t, f.controller.Transcript(), 4)
}

func TestNoAutomaticRetry(t *testing.T) {
	gw := &fakeGateway{err: errUnreachable}
	f := newFixture(t, gw, nil)

	done, ok := f.controller.Submit(context.Background(), "Test")
	require.True(t, ok)
	wait(t, done)

	assert.Len(t, gw.Calls(), 1)
}

func TestSubmitSurvivesCallerCancellation(t *testing.T) {
	gw := &fakeGateway{
		reply:   chat.Reply{Text: "still here", Emotion: "confident"},
		release: make(chan struct{}),
	}
	f := newFixture(t, gw, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done, ok := f.controller.Submit(ctx, "hello")
	require.True(t, ok)
	cancel()
	close(gw.release)
	wait(t, done)

	calls := gw.Calls()
	require.Len(t, calls, 1)
	assert.NoError(t, calls[0].ctxErr)
	assert.Equal(t, "still here", f.controller.Transcript()[1].Text)
}

func TestResetDiscardsLateReply(t *testing.T) {
	gw := &fakeGateway{err: errUnreachable, release: make(chan struct{})}
	store := history.NewMemoryStore()
	f := newFixture(t, gw, store)

	done, ok := f.controller.Submit(context.Background(), "before logout")
	require.True(t, ok)

	f.controller.Reset()
	assert.Empty(t, f.controller.Transcript())
	assert.Equal(t, PhaseIdle, f.controller.Phase())

	close(gw.release)
	wait(t, done)

	assert.Empty(t, f.controller.Transcript())
	assert.Empty(t, f.driver.Commands())
	assert.Empty(t, store.Get(context.Background(), "test_user"))
}

func TestResetDoesNotReleaseNewSubmission(t *testing.T) {
	gw := &fakeGateway{reply: chat.Reply{Text: "late"}, release: make(chan struct{})}
	f := newFixture(t, gw, nil)

	stale, ok := f.controller.Submit(context.Background(), "old")
	require.True(t, ok)
	f.controller.Reset()

	fresh, ok := f.controller.Submit(context.Background(), "new")
	require.True(t, ok)

	close(gw.release)
	wait(t, stale)
	wait(t, fresh)

	transcript := f.controller.Transcript()
	require.Len(t, transcript, 2)
	assert.Equal(t, "new", transcript[0].Text)
	assert.Len(t, f.driver.Commands(), 1)
	assert.Equal(t, PhaseIdle, f.controller.Phase())
}

func TestResetLeavesPersistedHistory(t *testing.T) {
	store := history.NewMemoryStore()
	f := newFixture(t, &fakeGateway{err: errUnreachable}, store)

	done, ok := f.controller.Submit(context.Background(), "Test")
	require.True(t, ok)
	wait(t, done)

	f.controller.Reset()
	assert.Empty(t, f.controller.Transcript())
	assert.Len(t, store.Get(context.Background(), "test_user"), 2)
}

func TestHistoryPrefersGateway(t *testing.T) {
	remote := []chat.Turn{chat.NewUserTurn("remote")}
	store := history.NewMemoryStore()
	require.NoError(t, store.Append(context.Background(), "test_user", []chat.Turn{chat.NewUserTurn("local")}))

	f := newFixture(t, &fakeGateway{history: remote}, store)
	got := f.controller.History(context.Background())
	require.Len(t, got, 1)
	assert.Equal(t, "remote", got[0].Text)
}

func TestHistoryIgnoresCallerCancellation(t *testing.T) {
	remote := []chat.Turn{chat.NewUserTurn("remote")}
	store := history.NewMemoryStore()
	require.NoError(t, store.Append(context.Background(), "test_user", []chat.Turn{chat.NewUserTurn("local")}))

	f := newFixture(t, &fakeGateway{history: remote}, store)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got := f.controller.History(ctx)
	require.Len(t, got, 1)
	assert.Equal(t, "remote", got[0].Text)
}

func TestHistoryFallsBackToStore(t *testing.T) {
	store := history.NewMemoryStore()
	require.NoError(t, store.Append(context.Background(), "test_user", []chat.Turn{chat.NewUserTurn("local")}))

	f := newFixture(t, &fakeGateway{historyErr: errUnreachable}, store)
	got := f.controller.History(context.Background())
	require.Len(t, got, 1)
	assert.Equal(t, "local", got[0].Text)
}

func TestFreshSessionIgnoresPersistedHistory(t *testing.T) {
	store := history.NewMemoryStore()
	require.NoError(t, store.Append(context.Background(), "test_user", []chat.Turn{chat.NewUserTurn("local")}))

	f := newFixture(t, &fakeGateway{}, store)
	assert.Empty(t, f.controller.Transcript())
}
