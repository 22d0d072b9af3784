package tenant

import "sync"

// State holds the process-wide active tenant (the project a connected client
// is currently working in). It is an explicit injected object rather than a
// package-level singleton so tests can run independent instances in
// isolation. The surrounding session/transport layer owns the value; this
// core only reads it when building elicitation callbacks and dynamic-tool
// requests.
type State struct {
	mu     sync.RWMutex
	active string
	set    bool
}

// NewState creates a State with no active tenant.
func NewState() *State {
	return &State{}
}

// SetActive records the given project as the active tenant. An empty id
// clears the tenant, mirroring setActiveTenant(null).
func (s *State) SetActive(project string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if project == "" {
		s.active = ""
		s.set = false
		return
	}
	s.active = project
	s.set = true
}

// Clear removes the active tenant.
func (s *State) Clear() {
	s.SetActive("")
}

// Active returns the current tenant id and whether one is resolved.
func (s *State) Active() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active, s.set
}
