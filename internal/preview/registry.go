// Package preview keeps session-scoped copies of uploaded files for playback.
// References do not survive a restart: the directory is wiped when a
// Registry is created.
package preview

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// URLPrefix is the path under which references are served.
const URLPrefix = "/api/previews/"

var (
	ErrLimitReached = errors.New("preview reference limit reached")
	ErrNotFound     = errors.New("preview not found")
)

// Reference is a handle to one preview file.
type Reference struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"createdAt"`
}

// Registry owns the preview files of the current process.
type Registry struct {
	mu   sync.RWMutex
	dir  string
	max  int
	refs map[string]*Reference
}

// NewRegistry creates a Registry in dir, removing anything left behind by a
// previous process. max <= 0 means unlimited.
func NewRegistry(dir string, max int) (*Registry, error) {
	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("clearing preview directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating preview directory: %w", err)
	}

	return &Registry{
		dir:  dir,
		max:  max,
		refs: make(map[string]*Reference),
	}, nil
}

// Create copies r into a new preview file.
func (g *Registry) Create(name string, r io.Reader) (*Reference, error) {
	if r == nil {
		return nil, errors.New("no content")
	}

	id := uuid.New().String()

	// reserve the slot before copying so the cap holds under concurrent uploads
	g.mu.Lock()
	if g.max > 0 && len(g.refs) >= g.max {
		g.mu.Unlock()
		return nil, ErrLimitReached
	}
	ref := &Reference{
		ID:        id,
		Name:      name,
		URL:       URLPrefix + id,
		CreatedAt: time.Now(),
	}
	g.refs[id] = ref
	g.mu.Unlock()

	path := filepath.Join(g.dir, id)
	f, err := os.Create(path)
	if err != nil {
		g.forget(id)
		return nil, fmt.Errorf("creating preview file: %w", err)
	}
	defer f.Close()

	size, err := io.Copy(f, r)
	if err != nil {
		os.Remove(path)
		g.forget(id)
		return nil, fmt.Errorf("writing preview file: %w", err)
	}

	g.mu.Lock()
	ref.Size = size
	out := *ref
	g.mu.Unlock()

	return &out, nil
}

// Get returns the reference with id.
func (g *Registry) Get(id string) (*Reference, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	ref, ok := g.refs[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *ref
	return &out, nil
}

// Open opens the preview file for reading.
func (g *Registry) Open(id string) (*os.File, *Reference, error) {
	ref, err := g.Get(id)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(filepath.Join(g.dir, id))
	if err != nil {
		return nil, nil, fmt.Errorf("opening preview: %w", err)
	}
	return f, ref, nil
}

// Release frees a reference given its id or URL. Unknown references are ignored.
func (g *Registry) Release(ref string) bool {
	id := strings.TrimPrefix(ref, URLPrefix)

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.refs[id]; !ok {
		return false
	}
	if err := os.Remove(filepath.Join(g.dir, id)); err != nil && !os.IsNotExist(err) {
		return false
	}
	delete(g.refs, id)
	return true
}

// ReleaseAll frees every outstanding reference.
func (g *Registry) ReleaseAll() {
	g.mu.Lock()
	defer g.mu.Unlock()

	for id := range g.refs {
		os.Remove(filepath.Join(g.dir, id))
	}
	g.refs = make(map[string]*Reference)
}

// Len returns the number of outstanding references.
func (g *Registry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.refs)
}

func (g *Registry) forget(id string) {
	g.mu.Lock()
	delete(g.refs, id)
	g.mu.Unlock()
}
