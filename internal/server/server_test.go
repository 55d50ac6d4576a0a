// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/inkweaver/internal/generate"
	"github.com/jeranaias/inkweaver/internal/model"
	"github.com/jeranaias/inkweaver/internal/session"
	"github.com/jeranaias/inkweaver/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubGen streams fixed fragments, or fails with err.
type stubGen struct {
	fragments []string
	err       error
}

func (g *stubGen) Generate(ctx context.Context, history []model.Message, prompt string, cfg model.ModelConfig, onPartial generate.PartialFunc) (model.GenerationResult, error) {
	var acc strings.Builder
	for _, f := range g.fragments {
		acc.WriteString(f)
		onPartial(acc.String())
	}
	if g.err != nil {
		return model.GenerationResult{}, g.err
	}
	return model.GenerationResult{Text: acc.String(), UsedModel: model.VariantFlash, Attempts: 2}, nil
}

func (g *stubGen) SynthesizeTitle(ctx context.Context, history []model.Message) string {
	return ""
}

type testServer struct {
	srv *Server
	svc *session.Service
	gen *stubGen
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store, err := storage.NewJSONStore(t.TempDir())
	require.NoError(t, err)

	l := logrus.New()
	l.SetOutput(io.Discard)

	gen := &stubGen{fragments: []string{"Rain ", "on tin."}}
	svc := session.NewService(store, gen, session.WithLogger(l))
	srv := New(svc, Options{Logger: l, Version: "test", MaxBodyBytes: 4096})
	t.Cleanup(svc.Wait)
	return &testServer{srv: srv, svc: svc, gen: gen}
}

func (ts *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(w, req)
	return w
}

type sseEvent struct {
	name string
	data string
}

func parseEvents(t *testing.T, body string) []sseEvent {
	t.Helper()
	var (
		events []sseEvent
		cur    sseEvent
	)
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			cur.name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			cur.data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		case line == "" && cur.name != "":
			events = append(events, cur)
			cur = sseEvent{}
		}
	}
	if cur.name != "" {
		events = append(events, cur)
	}
	return events
}

func (ts *testServer) create(t *testing.T) *model.ChatSession {
	t.Helper()
	sess, err := ts.svc.Create(nil)
	require.NoError(t, err)
	return sess
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "test", resp.Version)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestCreateAndGetSession(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodPost, "/api/sessions", "")
	require.Equal(t, http.StatusCreated, w.Code)
	var created model.ChatSession
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, model.DefaultTitle, created.Title)

	w = ts.do(http.MethodPost, "/api/sessions",
		`{"model_config":{"model":"lite","auto_switch":false,"thinking_budget":2048}}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var lite model.ChatSession
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &lite))
	assert.Equal(t, model.VariantLite, lite.Config.Variant)
	assert.False(t, lite.Config.AutoSwitch)

	w = ts.do(http.MethodGet, "/api/sessions/"+created.ID, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(http.MethodGet, "/api/sessions/does-not-exist", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateSession_InvalidConfig(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(http.MethodPost, "/api/sessions", `{"model_config":{"model":"pro","thinking_budget":7}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListSessions(t *testing.T) {
	ts := newTestServer(t)
	ts.create(t)
	ts.create(t)

	w := ts.do(http.MethodGet, "/api/sessions", "")
	require.Equal(t, http.StatusOK, w.Code)
	var metas []model.SessionMeta
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &metas))
	assert.Len(t, metas, 2)

	w = ts.do(http.MethodGet, "/api/sessions?grouped=true", "")
	require.Equal(t, http.StatusOK, w.Code)
	var groups []model.SessionGroup
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &groups))
	require.Len(t, groups, 1)
	assert.Equal(t, model.BucketToday, groups[0].Label)
	assert.Len(t, groups[0].Sessions, 2)
}

func TestDeleteSession(t *testing.T) {
	ts := newTestServer(t)
	sess := ts.create(t)

	w := ts.do(http.MethodDelete, "/api/sessions/"+sess.ID, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = ts.do(http.MethodDelete, "/api/sessions/"+sess.ID, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateConfig(t *testing.T) {
	ts := newTestServer(t)
	sess := ts.create(t)

	w := ts.do(http.MethodPut, "/api/sessions/"+sess.ID+"/config",
		`{"model":"flash","auto_switch":true,"deep_thinking":true,"thinking_budget":4096,"enable_search":true}`)
	require.Equal(t, http.StatusOK, w.Code)

	got, err := ts.svc.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.VariantFlash, got.Config.Variant)
	assert.Equal(t, 4096, got.Config.ThinkingBudget)

	w = ts.do(http.MethodPut, "/api/sessions/"+sess.ID+"/config", `{"model":"ultra"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRename(t *testing.T) {
	ts := newTestServer(t)
	sess := ts.create(t)

	w := ts.do(http.MethodPut, "/api/sessions/"+sess.ID+"/title", `{"title":"Salt Road"}`)
	require.Equal(t, http.StatusOK, w.Code)
	got, _ := ts.svc.Get(sess.ID)
	assert.Equal(t, "Salt Road", got.Title)

	w = ts.do(http.MethodPut, "/api/sessions/"+sess.ID+"/title", `{"title":"   "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSendMessage_Streams(t *testing.T) {
	ts := newTestServer(t)
	sess := ts.create(t)

	w := ts.do(http.MethodPost, "/api/sessions/"+sess.ID+"/messages", `{"text":"Begin"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	events := parseEvents(t, w.Body.String())
	require.Len(t, events, 3)
	assert.Equal(t, EventPartial, events[0].name)
	assert.JSONEq(t, `{"text":"Rain "}`, events[0].data)
	assert.JSONEq(t, `{"text":"Rain on tin."}`, events[1].data)

	assert.Equal(t, EventDone, events[2].name)
	var done struct {
		SessionID string `json:"session_id"`
		Text      string `json:"text"`
		UsedModel string `json:"used_model"`
		Attempts  int    `json:"attempts"`
	}
	require.NoError(t, json.Unmarshal([]byte(events[2].data), &done))
	assert.Equal(t, sess.ID, done.SessionID)
	assert.Equal(t, "Rain on tin.", done.Text)
	assert.Equal(t, "FLASH", done.UsedModel)
	assert.Equal(t, 2, done.Attempts)

	got, _ := ts.svc.Get(sess.ID)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "Rain on tin.", got.Messages[1].Text)
}

func TestSendMessage_ErrorEvent(t *testing.T) {
	ts := newTestServer(t)
	ts.gen.err = errors.New("all models failed")
	ts.gen.fragments = nil
	sess := ts.create(t)

	w := ts.do(http.MethodPost, "/api/sessions/"+sess.ID+"/messages", `{"text":"Begin"}`)
	require.Equal(t, http.StatusOK, w.Code)

	events := parseEvents(t, w.Body.String())
	require.Len(t, events, 1)
	assert.Equal(t, EventError, events[0].name)
	assert.Contains(t, events[0].data, "all models failed")
}

func TestSendMessage_Validation(t *testing.T) {
	ts := newTestServer(t)
	sess := ts.create(t)

	w := ts.do(http.MethodPost, "/api/sessions/"+sess.ID+"/messages", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(http.MethodPost, "/api/sessions/missing/messages", `{"text":"hi"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(http.MethodPost, "/api/sessions/"+sess.ID+"/messages",
		`{"text":"`+strings.Repeat("x", 5000)+`"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestRegenerate(t *testing.T) {
	ts := newTestServer(t)
	sess := ts.create(t)

	w := ts.do(http.MethodPost, "/api/sessions/"+sess.ID+"/regenerate", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	_, err := ts.svc.Send(context.Background(), sess.ID, "Begin", nil)
	require.NoError(t, err)

	ts.gen.fragments = []string{"Snow."}
	w = ts.do(http.MethodPost, "/api/sessions/"+sess.ID+"/regenerate", "")
	require.Equal(t, http.StatusOK, w.Code)
	events := parseEvents(t, w.Body.String())
	require.NotEmpty(t, events)
	assert.Equal(t, EventDone, events[len(events)-1].name)

	got, _ := ts.svc.Get(sess.ID)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "Snow.", got.Messages[1].Text)
}

func TestDevelopCharacter(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodPost, "/api/characters", `{"name":""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(http.MethodPost, "/api/characters", `{"name":"Mara","role":"Antagonist","goals":"Own the harbor"}`)
	require.Equal(t, http.StatusOK, w.Code)
	events := parseEvents(t, w.Body.String())
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	require.Equal(t, EventDone, last.name)

	var done DoneEvent
	require.NoError(t, json.Unmarshal([]byte(last.data), &done))
	sess, err := ts.svc.Get(done.SessionID)
	require.NoError(t, err)
	require.NotEmpty(t, sess.Messages)
	assert.Contains(t, sess.Messages[0].Text, "Name: Mara")
	assert.Contains(t, sess.Messages[0].Text, "Role: Antagonist")
}

func TestExport(t *testing.T) {
	ts := newTestServer(t)
	sess := ts.create(t)
	_, err := ts.svc.Rename(sess.ID, "Rain Song")
	require.NoError(t, err)
	_, err = ts.svc.Send(context.Background(), sess.ID, "Begin", nil)
	require.NoError(t, err)

	w := ts.do(http.MethodGet, "/api/sessions/"+sess.ID+"/export", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/markdown")
	assert.Contains(t, w.Header().Get("Content-Disposition"), `filename="rain_song.md"`)
	assert.True(t, strings.HasPrefix(w.Body.String(), "# Rain Song\n"))
	assert.Contains(t, w.Body.String(), "### INKWEAVER:\nRain on tin.")

	w = ts.do(http.MethodGet, "/api/sessions/"+sess.ID+"/export?format=json", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "rain_song.json")

	w = ts.do(http.MethodGet, "/api/sessions/"+sess.ID+"/export?format=pdf", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCORS(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/sessions", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestNoRoute(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"not found"}`, w.Body.String())
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(session.ErrNotFound))
	assert.Equal(t, http.StatusConflict, statusFor(session.ErrBusy))
	assert.Equal(t, http.StatusBadRequest, statusFor(storage.ErrInvalidID))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("disk on fire")))
}
