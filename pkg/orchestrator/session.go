package orchestrator

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/contextcanvas/pkg/canvasdoc"
	"github.com/go-go-golems/contextcanvas/pkg/claude"
	"github.com/go-go-golems/contextcanvas/pkg/render"
)

const (
	// MaxHistoryTurns bounds the conversation carried between runs. Older
	// turns are dropped from the front, keeping tool_use/tool_result pairs
	// intact.
	MaxHistoryTurns = 20

	MinViewportScale = 0.1
	MaxViewportScale = 5.0
)

// Viewport is the client's pan/zoom state for a session's canvas. It is
// stored server-side so reconnecting clients resume where they left off.
type Viewport struct {
	OffsetX float64 `json:"offsetX"`
	OffsetY float64 `json:"offsetY"`
	Scale   float64 `json:"scale"`
}

// Clamped returns the viewport with scale forced into [0.1, 5.0]. A zero
// scale is treated as unset and becomes 1.0.
func (v Viewport) Clamped() Viewport {
	if v.Scale == 0 {
		v.Scale = 1.0
	}
	if v.Scale < MinViewportScale {
		v.Scale = MinViewportScale
	}
	if v.Scale > MaxViewportScale {
		v.Scale = MaxViewportScale
	}
	return v
}

// Session is the per-conversation state: the canvas document, the carried
// message history, the last rendered frame, and the viewport. All mutation
// happens under mu; a run holds the session exclusively for its duration.
type Session struct {
	ID string

	mu         sync.Mutex
	doc        *canvasdoc.Document
	turns      []claude.Message
	lastImage  *render.Image
	viewport   Viewport
	running    bool
	runID      string
	lastActive time.Time
}

// ErrRunInProgress is reported when a second run is started on a session
// that already has one active.
type ErrRunInProgress struct {
	SessionID string
}

func (e *ErrRunInProgress) Error() string {
	return "a run is already in progress for session " + e.SessionID
}

func newSession(id string) *Session {
	return &Session{
		ID:         id,
		doc:        canvasdoc.New(""),
		viewport:   Viewport{Scale: 1.0},
		lastActive: time.Now(),
	}
}

// Document returns the current canvas source. Safe to call concurrently
// with a run; the returned string is a snapshot.
func (s *Session) Document() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Text()
}

// SetDocument replaces the canvas source wholesale, e.g. when the client
// submits its own edited copy with a chat request.
func (s *Session) SetDocument(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.ReplaceAll(text)
	s.lastActive = time.Now()
}

// LastImage returns the most recent rendered frame, or nil if the canvas
// has never been rasterized.
func (s *Session) LastImage() *render.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastImage
}

func (s *Session) setLastImage(img *render.Image) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastImage = img
}

// Viewport returns the stored pan/zoom state.
func (s *Session) Viewport() Viewport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewport
}

// SetViewport stores the client's pan/zoom state, clamping scale.
func (s *Session) SetViewport(v Viewport) Viewport {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.viewport = v.Clamped()
	s.lastActive = time.Now()
	return s.viewport
}

// Turns returns a copy of the carried conversation history.
func (s *Session) Turns() []claude.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]claude.Message, len(s.turns))
	copy(out, s.turns)
	return out
}

func (s *Session) setTurns(turns []claude.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = TrimTurns(turns, MaxHistoryTurns)
}

// TryAcquireRun marks the session as running and returns a fresh run ID.
// A session admits one run at a time; concurrent attempts get
// ErrRunInProgress.
func (s *Session) TryAcquireRun() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return "", &ErrRunInProgress{SessionID: s.ID}
	}
	s.running = true
	s.runID = uuid.NewString()
	s.lastActive = time.Now()
	return s.runID, nil
}

// EndRun releases the session after a run finishes, successfully or not.
func (s *Session) EndRun() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.runID = ""
	s.lastActive = time.Now()
}

// Running reports whether a run currently holds the session.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// TrimTurns bounds history to the last max turns without ever splitting a
// tool_use/tool_result pair. After cutting, the history must open with a
// plain user turn: leading assistant turns (whose preceding user turn was
// dropped) and user turns opening with a tool_result (whose matching
// assistant tool_use turn was dropped) are removed until that holds.
func TrimTurns(turns []claude.Message, max int) []claude.Message {
	if len(turns) <= max {
		return turns
	}
	trimmed := turns[len(turns)-max:]
	for len(trimmed) > 0 && (trimmed[0].Role != claude.RoleUser || opensWithToolResult(trimmed[0])) {
		trimmed = trimmed[1:]
	}
	return trimmed
}

func opensWithToolResult(m claude.Message) bool {
	if m.Role != claude.RoleUser || len(m.Content) == 0 {
		return false
	}
	return m.Content[0].Type == claude.BlockTypeToolResult
}

// SessionStore hands out sessions by ID and evicts idle ones.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	idleTTL  time.Duration
	logger   zerolog.Logger
}

func NewSessionStore(idleTTL time.Duration) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Session),
		idleTTL:  idleTTL,
		logger:   log.With().Str("component", "session-store").Logger(),
	}
}

// GetOrCreate returns the session for id, creating it on first use. An
// empty id gets a fresh UUID.
func (st *SessionStore) GetOrCreate(id string) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if id == "" {
		id = uuid.NewString()
	}
	if s, ok := st.sessions[id]; ok {
		return s, false
	}
	s := newSession(id)
	st.sessions[id] = s
	st.logger.Debug().Str("session_id", id).Msg("created session")
	return s, true
}

// Get returns the session for id if it exists.
func (st *SessionStore) Get(id string) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[id]
	return s, ok
}

// EvictIdle drops sessions whose last activity is older than the store's
// TTL. Sessions with a run in flight are kept. Returns the number evicted.
func (st *SessionStore) EvictIdle() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	cutoff := time.Now().Add(-st.idleTTL)
	evicted := 0
	for id, s := range st.sessions {
		s.mu.Lock()
		idle := !s.running && s.lastActive.Before(cutoff)
		s.mu.Unlock()
		if idle {
			delete(st.sessions, id)
			evicted++
		}
	}
	if evicted > 0 {
		st.logger.Info().Int("count", evicted).Msg("evicted idle sessions")
	}
	return evicted
}

// StartEvictionLoop runs EvictIdle on a ticker until the stop channel
// closes.
func (st *SessionStore) StartEvictionLoop(interval time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				st.EvictIdle()
			case <-stop:
				return
			}
		}
	}()
}
