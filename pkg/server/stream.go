package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/gorilla/websocket"

	"github.com/go-go-golems/contextcanvas/pkg/events"
)

// handleChatStream runs one orchestration and streams its events as
// newline-delimited JSON envelopes. The subscription is opened before the
// run starts so no event can slip past; the response ends after done (or
// error).
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	sess, _ := s.sessions.GetOrCreate(req.SessionID)
	if _, err := sess.TryAcquireRun(); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		sess.EndRun()
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	topic := events.TopicForSession(sess.ID)
	if err := s.router.PrepareTopic(ctx, topic); err != nil {
		sess.EndRun()
		writeError(w, http.StatusInternalServerError, "subscribe failed")
		return
	}
	msgs, err := s.router.Subscriber.Subscribe(ctx, topic)
	if err != nil {
		sess.EndRun()
		writeError(w, http.StatusInternalServerError, "subscribe failed")
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	writeEvent := func(e events.Event) bool {
		payload, err := events.MarshalEvent(e)
		if err != nil {
			return false
		}
		if _, err := w.Write(append(payload, '\n')); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}
	writeEvent(&events.ConnectedEvent{SessionID: sess.ID})

	sink := events.NewWatermillSink(s.router.Publisher, topic)
	go func() {
		defer sess.EndRun()
		result, err := s.orch.Run(ctx, sess, runInput(req), sink)
		if err != nil {
			s.logger.Error().Err(err).Str("session_id", sess.ID).Msg("streamed run failed")
			// The error event was already published by the run; a done
			// event closes the stream with the state we got to.
			_ = sink.Publish(&events.DoneEvent{FinalSource: result.Source, Usage: result.Usage})
		}
	}()

	s.forwardEvents(ctx, msgs, writeEvent)
}

// handleWebSocket upgrades and forwards a session's event stream to the
// client. Unlike chat-stream it does not start a run: it is a passive
// observer, typically paired with POST /api/chat-stream from another tab.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "missing session_id")
		return
	}
	sess, _ := s.sessions.GetOrCreate(sessionID)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer func() { _ = conn.Close() }()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	topic := events.TopicForSession(sess.ID)
	if err := s.router.PrepareTopic(ctx, topic); err != nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"subscribe failed"}`))
		return
	}
	msgs, err := s.router.Subscriber.Subscribe(ctx, topic)
	if err != nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"subscribe failed"}`))
		return
	}

	// Drain client reads so pings and close frames are processed.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	payload, _ := events.MarshalEvent(&events.ConnectedEvent{SessionID: sess.ID})
	_ = conn.WriteMessage(websocket.TextMessage, payload)

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			msg.Ack()
			if err := conn.WriteMessage(websocket.TextMessage, msg.Payload); err != nil {
				return
			}
		}
	}
}

// forwardEvents copies messages to the client until a done event arrives
// or the context ends. Events that fail to decode are forwarded raw; only
// decoding done matters for termination.
func (s *Server) forwardEvents(ctx context.Context, msgs <-chan *message.Message, writeEvent func(events.Event) bool) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			msg.Ack()
			e, err := events.NewEventFromJSON(msg.Payload)
			if err != nil {
				s.logger.Warn().Err(err).Msg("undecodable event on session topic")
				continue
			}
			if !writeEvent(e) {
				return
			}
			if e.EventType() == events.EventTypeDone {
				return
			}
		}
	}
}
