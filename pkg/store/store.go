package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrNotFound is returned when a canvas id does not exist.
var ErrNotFound = errors.New("canvas not found")

// Canvas is a saved drawing: the element-tagged JavaScript source plus
// naming metadata. Saved canvases survive session eviction and server
// restarts (with the SQLite store).
type Canvas struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Template string    `json:"template,omitempty"`
	CanvasJS string    `json:"canvas_js"`
	Created  time.Time `json:"created"`
	Modified time.Time `json:"modified"`
}

// CanvasStore persists saved canvases.
type CanvasStore interface {
	Save(ctx context.Context, c *Canvas) error
	Get(ctx context.Context, id string) (*Canvas, error)
	List(ctx context.Context) ([]*Canvas, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// MemoryStore keeps canvases in a map; the default when no DSN is
// configured.
type MemoryStore struct {
	mu       sync.RWMutex
	canvases map[string]*Canvas
}

var _ CanvasStore = &MemoryStore{}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{canvases: make(map[string]*Canvas)}
}

func (s *MemoryStore) Save(_ context.Context, c *Canvas) error {
	if c == nil {
		return errors.New("canvas store: nil canvas")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if c.ID == "" {
		c.ID = uuid.NewString()
		c.Created = now
	} else if existing, ok := s.canvases[c.ID]; ok {
		c.Created = existing.Created
	} else if c.Created.IsZero() {
		c.Created = now
	}
	c.Modified = now
	cp := *c
	s.canvases[c.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Canvas, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.canvases[id]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "id %s", id)
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) List(_ context.Context) ([]*Canvas, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Canvas, 0, len(s.canvases))
	for _, c := range s.canvases {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Modified.After(out[j].Modified)
	})
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.canvases[id]; !ok {
		return errors.Wrapf(ErrNotFound, "id %s", id)
	}
	delete(s.canvases, id)
	return nil
}

func (s *MemoryStore) Close() error { return nil }
