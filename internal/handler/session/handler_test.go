package session

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zhouzirui/idolchat/internal/gateway"
	"github.com/zhouzirui/idolchat/internal/history"
	"github.com/zhouzirui/idolchat/internal/model/chat"
	sessionservice "github.com/zhouzirui/idolchat/internal/service/session"
)

type stubGateway struct {
	reply chat.Reply
	err   error
}

func (g stubGateway) Send(context.Context, string, string) (chat.Reply, error) {
	return g.reply, g.err
}

func (g stubGateway) History(context.Context, string) ([]chat.Turn, error) {
	return nil, &gateway.StatusError{Code: http.StatusServiceUnavailable}
}

func setupRouter(gw gateway.Client) (*chi.Mux, history.Store) {
	store := history.NewMemoryStore()
	manager := sessionservice.NewManager(sessionservice.Deps{
		Gateway: gw,
		Store:   store,
		Logger:  zap.NewNop(),
	})

	r := chi.NewRouter()
	New(manager).RegisterRoutes(r)
	return r, store
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func login(t *testing.T, r http.Handler) sessionservice.Info {
	t.Helper()
	resp := do(r, http.MethodPost, "/session", `{"userId":"u1","username":"Alice"}`)
	require.Equal(t, http.StatusCreated, resp.Code)

	var info sessionservice.Info
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &info))
	return info
}

type transcriptBody struct {
	Turns []chat.Turn `json:"turns"`
	Phase string      `json:"phase"`
}

func waitIdle(t *testing.T, r http.Handler, sessionID string) transcriptBody {
	t.Helper()
	var body transcriptBody
	require.Eventually(t, func() bool {
		resp := do(r, http.MethodGet, "/session/"+sessionID+"/transcript", "")
		if resp.Code != http.StatusOK {
			return false
		}
		body = transcriptBody{}
		if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
			return false
		}
		return body.Phase == string(sessionservice.PhaseIdle)
	}, 2*time.Second, 10*time.Millisecond)
	return body
}

func TestLoginRequiresUserID(t *testing.T) {
	r, _ := setupRouter(stubGateway{})

	resp := do(r, http.MethodPost, "/session", `{"username":"Alice"}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestLoginEchoesIdentity(t *testing.T) {
	r, _ := setupRouter(stubGateway{})

	info := login(t, r)
	assert.NotEmpty(t, info.ID)
	assert.Equal(t, "u1", info.UserID)
	assert.Equal(t, "Alice", info.Username)
}

func TestSubmitDeliversReplyAndEmotion(t *testing.T) {
	intensity := 0.8
	r, _ := setupRouter(stubGateway{reply: chat.Reply{Text: "嗨！", Emotion: "happy", EmotionIntensity: &intensity}})
	info := login(t, r)

	resp := do(r, http.MethodPost, "/session/"+info.ID+"/messages", `{"text":"hello"}`)
	require.Equal(t, http.StatusAccepted, resp.Code)
	var accepted struct {
		Accepted bool `json:"accepted"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &accepted))
	assert.True(t, accepted.Accepted)

	body := waitIdle(t, r, info.ID)
	require.Len(t, body.Turns, 2)
	assert.Equal(t, "hello", body.Turns[0].Text)
	assert.Equal(t, "嗨！", body.Turns[1].Text)

	resp = do(r, http.MethodGet, "/session/"+info.ID+"/emotion", "")
	require.Equal(t, http.StatusOK, resp.Code)
	var emotion sessionservice.Emotion
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &emotion))
	assert.Equal(t, "happy", emotion.Label)
	assert.InDelta(t, 0.8, emotion.Intensity, 1e-9)
}

func TestSubmitBlankIsNotAccepted(t *testing.T) {
	r, _ := setupRouter(stubGateway{})
	info := login(t, r)

	resp := do(r, http.MethodPost, "/session/"+info.ID+"/messages", `{"text":"   "}`)
	require.Equal(t, http.StatusAccepted, resp.Code)
	assert.JSONEq(t, `{"accepted":false,"phase":"idle"}`, resp.Body.String())
}

func TestHistoryFallsBackToLocalStore(t *testing.T) {
	r, _ := setupRouter(stubGateway{err: gateway.ErrTransport})
	info := login(t, r)

	do(r, http.MethodPost, "/session/"+info.ID+"/messages", `{"text":"hello"}`)
	waitIdle(t, r, info.ID)

	resp := do(r, http.MethodGet, "/session/"+info.ID+"/history", "")
	require.Equal(t, http.StatusOK, resp.Code)
	var body struct {
		Messages []chat.Turn `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Len(t, body.Messages, 2)
	assert.Equal(t, sessionservice.FallbackText, body.Messages[1].Text)
}

func TestLogoutForgetsSession(t *testing.T) {
	r, _ := setupRouter(stubGateway{})
	info := login(t, r)

	resp := do(r, http.MethodDelete, "/session/"+info.ID, "")
	require.Equal(t, http.StatusNoContent, resp.Code)

	resp = do(r, http.MethodGet, "/session/"+info.ID+"/transcript", "")
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = do(r, http.MethodDelete, "/session/"+info.ID, "")
	assert.Equal(t, http.StatusNotFound, resp.Code)
}
