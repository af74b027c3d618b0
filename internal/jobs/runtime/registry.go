package runtime

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var ErrDuplicateHandler = errors.New("job type already has a handler")

// Handler executes one job type. Run reports progress and the terminal
// state through the Context; a returned error marks the run failed.
type Handler interface {
	Type() string
	Run(ctx *Context) error
}

// Registry maps job_type to its Handler.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: map[string]Handler{}}
}

// Register adds every handler or none of them.
func (r *Registry) Register(hs ...Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	pending := make(map[string]Handler, len(hs))
	for _, h := range hs {
		if h == nil || h.Type() == "" {
			return fmt.Errorf("register: handler without a job type")
		}
		jt := h.Type()
		_, taken := r.handlers[jt]
		if _, dup := pending[jt]; taken || dup {
			return fmt.Errorf("register %s: %w", jt, ErrDuplicateHandler)
		}
		pending[jt] = h
	}
	for jt, h := range pending {
		r.handlers[jt] = h
	}
	return nil
}

func (r *Registry) Get(jobType string) (Handler, bool) {
	r.mu.RLock()
	h, ok := r.handlers[jobType]
	r.mu.RUnlock()
	return h, ok
}

// Types lists the registered job types, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.handlers))
	for jt := range r.handlers {
		out = append(out, jt)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}
