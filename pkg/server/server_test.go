package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/contextcanvas/pkg/claude"
	"github.com/go-go-golems/contextcanvas/pkg/events"
	"github.com/go-go-golems/contextcanvas/pkg/orchestrator"
	"github.com/go-go-golems/contextcanvas/pkg/render"
	"github.com/go-go-golems/contextcanvas/pkg/store"
	"github.com/go-go-golems/contextcanvas/pkg/templates"
)

type fakeGateway struct {
	responses []*claude.Response
	calls     int
}

func (g *fakeGateway) Complete(_ context.Context, _ *claude.Request) (*claude.Response, error) {
	resp := g.responses[g.calls%len(g.responses)]
	g.calls++
	return resp, nil
}

type fakeRasterizer struct{}

func (fakeRasterizer) Render(_ context.Context, _ string, width, height int) (*render.Image, error) {
	return &render.Image{Bytes: []byte("png"), MimeType: "image/png", Width: width, Height: height}, nil
}

func newTestServer(t *testing.T, responses ...*claude.Response) *Server {
	t.Helper()
	if len(responses) == 0 {
		responses = []*claude.Response{{
			Content:    []claude.ContentBlock{claude.NewTextBlock("hello")},
			StopReason: "end_turn",
			Usage:      claude.Usage{InputTokens: 1, OutputTokens: 2},
		}}
	}
	router, err := events.NewEventRouter()
	require.NoError(t, err)
	orch := orchestrator.New(
		&fakeGateway{responses: responses},
		fakeRasterizer{},
		orchestrator.NewToolRegistry(),
		orchestrator.Config{Model: "test-model"},
	)
	return NewServer(DefaultSettings(), router, orch, store.NewMemoryStore(), templates.Builtin())
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s.Handler(), http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestChatBuffered(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/chat", ChatRequest{
		Message:  "say hello",
		CanvasJS: "// my canvas",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "hello", resp.Response)
	assert.NotEmpty(t, resp.SessionID)
	assert.Equal(t, "// my canvas", resp.CanvasJS)
	assert.Equal(t, claude.Usage{InputTokens: 1, OutputTokens: 2}, resp.Usage)
}

func TestChatRequiresMessage(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/chat", ChatRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatConflictWhenRunInProgress(t *testing.T) {
	s := newTestServer(t)
	sess, _ := s.sessions.GetOrCreate("busy")
	_, err := sess.TryAcquireRun()
	require.NoError(t, err)

	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/chat", ChatRequest{
		Message:   "hi",
		SessionID: "busy",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCanvasCRUD(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/canvases", SaveCanvasRequest{
		Name:     "first",
		CanvasJS: "// art",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created store.Canvas
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)

	rec = doJSON(t, h, http.MethodGet, "/api/canvases/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodPut, "/api/canvases/"+created.ID, SaveCanvasRequest{Name: "renamed"})
	require.Equal(t, http.StatusOK, rec.Code)
	var updated store.Canvas
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, "renamed", updated.Name)
	assert.Equal(t, "// art", updated.CanvasJS)

	rec = doJSON(t, h, http.MethodGet, "/api/canvases", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "renamed")

	rec = doJSON(t, h, http.MethodDelete, "/api/canvases/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/canvases/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSaveCanvasFromTemplate(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/canvases", SaveCanvasRequest{
		Name:     "from-template",
		Template: "landscape",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created store.Canvas
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Contains(t, created.CanvasJS, "// ELEMENT: sun")

	rec = doJSON(t, h, http.MethodPost, "/api/canvases", SaveCanvasRequest{
		Name:     "bad",
		Template: "nope",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTemplates(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	rec := doJSON(t, h, http.MethodGet, "/api/templates", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "landscape")

	rec = doJSON(t, h, http.MethodGet, "/api/templates/landscape", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ELEMENT: sun")

	rec = doJSON(t, h, http.MethodGet, "/api/templates/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestViewport(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()
	s.sessions.GetOrCreate("v-sess")

	rec := doJSON(t, h, http.MethodPut, "/api/sessions/v-sess/viewport", orchestrator.Viewport{
		OffsetX: 10, OffsetY: -5, Scale: 99,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var v orchestrator.Viewport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.Equal(t, orchestrator.MaxViewportScale, v.Scale)
	assert.Equal(t, 10.0, v.OffsetX)

	rec = doJSON(t, h, http.MethodGet, "/api/sessions/v-sess/viewport", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/sessions/missing/viewport", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChatStreamPreparesTopicBeforeSubscribe(t *testing.T) {
	var prepared []string
	router, err := events.NewEventRouter(events.WithTopicPreparer(func(_ context.Context, topic string) error {
		prepared = append(prepared, topic)
		return nil
	}))
	require.NoError(t, err)
	orch := orchestrator.New(
		&fakeGateway{responses: []*claude.Response{{
			Content:    []claude.ContentBlock{claude.NewTextBlock("ok")},
			StopReason: "end_turn",
		}}},
		fakeRasterizer{},
		orchestrator.NewToolRegistry(),
		orchestrator.Config{Model: "test-model"},
	)
	s := NewServer(DefaultSettings(), router, orch, store.NewMemoryStore(), templates.Builtin())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	body, err := json.Marshal(ChatRequest{Message: "go", SessionID: "prep-sess"})
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+"/api/chat-stream", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_, _ = io.Copy(io.Discard, resp.Body)

	assert.Equal(t, []string{events.TopicForSession("prep-sess")}, prepared)
}

func TestChatStreamEmitsConnectedThenEventsUntilDone(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	body, err := json.Marshal(ChatRequest{Message: "stream it", SessionID: "stream-sess"})
	require.NoError(t, err)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(srv.URL+"/api/chat-stream", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/x-ndjson", resp.Header.Get("Content-Type"))

	var types []events.EventType
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		e, err := events.NewEventFromJSON([]byte(line))
		require.NoError(t, err)
		types = append(types, e.EventType())
	}
	require.NoError(t, scanner.Err())

	require.NotEmpty(t, types)
	assert.Equal(t, events.EventTypeConnected, types[0])
	assert.Equal(t, events.EventTypeDone, types[len(types)-1])
	assert.Contains(t, types, events.EventTypeMessage)
}
