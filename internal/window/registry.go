package window

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/bryanchriswhite/SplitScreen/internal/logger"
)

// Registry enumerates capturable windows through a Backend and filters out
// the ones that should never be offered for selection.
type Registry struct {
	backend Backend
	exclude []*regexp.Regexp

	mu        sync.RWMutex
	connected bool
	last      []Handle
}

// NewRegistry creates a registry over backend. Each exclude entry is a
// regular expression matched against window titles.
func NewRegistry(backend Backend, exclude []string) (*Registry, error) {
	r := &Registry{backend: backend}
	for _, pattern := range exclude {
		if strings.TrimSpace(pattern) == "" {
			continue
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
		}
		r.exclude = append(r.exclude, re)
	}
	return r, nil
}

// ExcludeTitle returns an exclude pattern matching exactly title
func ExcludeTitle(title string) string {
	return "^" + regexp.QuoteMeta(title) + "$"
}

// BackendName returns the name of the underlying backend
func (r *Registry) BackendName() string {
	return r.backend.Name()
}

func (r *Registry) ensureConnected() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.connected {
		return nil
	}
	if err := r.backend.Connect(); err != nil {
		return err
	}
	r.connected = true
	return nil
}

// Close releases the backend connection
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.connected {
		return nil
	}
	r.connected = false
	r.last = nil
	return r.backend.Close()
}

// ListWindows queries the backend for the current windows. Windows with an
// empty title or an excluded title are dropped.
//
// On failure the result is an empty, non-nil slice together with an error
// wrapping ErrRegistryUnavailable. Zero windows is not an error.
func (r *Registry) ListWindows() ([]Handle, error) {
	log := logger.WithComponent("window-registry")

	if err := r.ensureConnected(); err != nil {
		log.Warn().Err(err).Str("backend", r.backend.Name()).Msg("Window registry unavailable")
		return []Handle{}, fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
	}

	all, err := r.backend.ListWindows()
	if err != nil {
		log.Warn().Err(err).Str("backend", r.backend.Name()).Msg("Window enumeration failed")
		return []Handle{}, fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
	}

	windows := make([]Handle, 0, len(all))
	for _, h := range all {
		if strings.TrimSpace(h.Title) == "" || r.excluded(h.Title) {
			continue
		}
		windows = append(windows, h)
	}

	r.mu.Lock()
	r.last = windows
	r.mu.Unlock()

	log.Debug().Int("count", len(windows)).Int("total", len(all)).Msg("Listed windows")
	return windows, nil
}

func (r *Registry) excluded(title string) bool {
	for _, re := range r.exclude {
		if re.MatchString(title) {
			return true
		}
	}
	return false
}

// Lookup returns the handle with id from the most recent listing
func (r *Registry) Lookup(id uint32) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, h := range r.last {
		if h.ID == id {
			return h, true
		}
	}
	return Handle{}, false
}

// Find refreshes the listing and returns the first window whose title or
// class matches pattern.
func (r *Registry) Find(pattern string) (Handle, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Handle{}, fmt.Errorf("invalid window pattern %q: %w", pattern, err)
	}

	windows, err := r.ListWindows()
	if err != nil {
		return Handle{}, err
	}
	for _, h := range windows {
		if re.MatchString(h.Title) || re.MatchString(h.Class) {
			return h, nil
		}
	}
	return Handle{}, fmt.Errorf("%w: no window matches %q", ErrWindowNotFound, pattern)
}

// Geometry queries the live geometry of h. Nothing is cached.
func (r *Registry) Geometry(h Handle) (Geometry, error) {
	if err := r.ensureConnected(); err != nil {
		return Geometry{}, fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
	}

	g, err := r.backend.Geometry(h.ID)
	if err != nil {
		if errors.Is(err, ErrWindowNotFound) || errors.Is(err, ErrRegistryUnavailable) {
			return Geometry{}, err
		}
		return Geometry{}, fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
	}
	return g, nil
}
