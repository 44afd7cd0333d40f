package session

import (
	"time"

	"github.com/bryanchriswhite/SplitScreen/internal/capture"
	"github.com/bryanchriswhite/SplitScreen/internal/compositor"
	"github.com/bryanchriswhite/SplitScreen/internal/scheduler"
	"github.com/bryanchriswhite/SplitScreen/internal/window"
)

// RegistryStatus reports whether the window list could be read
type RegistryStatus struct {
	Backend   string `json:"backend"`
	Available bool   `json:"available"`
	Error     string `json:"error,omitempty"`
}

// CameraStatus describes the camera panel's source
type CameraStatus struct {
	Enabled   bool          `json:"enabled"`
	State     capture.State `json:"state"`
	Message   string        `json:"message"`
	Error     string        `json:"error,omitempty"`
	ErrorKind string        `json:"error_kind,omitempty"`
}

// WindowStatus describes the app panel's source
type WindowStatus struct {
	Selected   *window.Handle `json:"selected,omitempty"`
	Generation uint64         `json:"generation"`
	State      capture.State  `json:"state"`
	Hung       bool           `json:"hung"`
}

// Status is a point-in-time view of a session
type Status struct {
	SessionID string                        `json:"session_id"`
	Running   bool                          `json:"running"`
	StartedAt *time.Time                    `json:"started_at,omitempty"`
	Window    WindowStatus                  `json:"window"`
	Camera    CameraStatus                  `json:"camera"`
	Registry  RegistryStatus                `json:"registry"`
	Panels    []compositor.PanelStatus      `json:"panels"`
	Jobs      map[string]scheduler.JobStats `json:"jobs"`
}

// Status returns the current session status
func (s *Session) Status() Status {
	st := Status{
		SessionID: s.id,
		Running:   s.running.Load(),
		Panels:    s.comp.Status(),
		Jobs:      s.sched.Stats(),
	}
	if st.Running {
		t := s.startedAt
		st.StartedAt = &t
	}

	if h, ok := s.windowSrc.Selected(); ok {
		st.Window.Selected = &h
	}
	st.Window.Generation = s.windowSrc.Generation()
	st.Window.State = s.windowSrc.State()
	st.Window.Hung = s.windowSrc.Hung()

	s.regMu.Lock()
	st.Registry = RegistryStatus{
		Backend:   s.registry.BackendName(),
		Available: s.regErr == nil,
	}
	if s.regErr != nil {
		st.Registry.Error = s.regErr.Error()
	}
	s.regMu.Unlock()

	c := &s.camera
	c.mu.Lock()
	st.Camera.Enabled = c.enabled
	if c.source != nil {
		st.Camera.State = c.source.State()
	}
	if c.lastErr != nil {
		st.Camera.Error = c.lastErr.Error()
		st.Camera.ErrorKind = capture.Kind(c.lastErr)
	}
	c.mu.Unlock()
	st.Camera.Message = c.text()

	return st
}

// Subscribe returns a channel receiving the status after every selection,
// camera or availability change. Slow subscribers only see the latest
// status. The channel is closed by Unsubscribe or when the session closes.
func (s *Session) Subscribe() <-chan Status {
	ch := make(chan Status, 1)

	s.subMu.Lock()
	defer s.subMu.Unlock()
	if s.subsClosed {
		close(ch)
		return ch
	}
	s.subs[ch] = ch
	return ch
}

// Unsubscribe stops delivery to ch and closes it
func (s *Session) Unsubscribe(ch <-chan Status) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if c, ok := s.subs[ch]; ok {
		delete(s.subs, ch)
		close(c)
	}
}

func (s *Session) notify() {
	st := s.Status()

	s.subMu.Lock()
	defer s.subMu.Unlock()
	if s.subsClosed {
		return
	}
	for _, ch := range s.subs {
		select {
		case ch <- st:
			continue
		default:
		}
		// replace the stale status nobody has read yet
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- st:
		default:
		}
	}
}

func (s *Session) closeSubscribers() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.subsClosed = true
	for key, ch := range s.subs {
		delete(s.subs, key)
		close(ch)
	}
}
