package registry

import (
	"log/slog"
	"sync"

	"mcphub/internal/domain"
)

// Registry is a per-group immutable name→ToolService index, built once from
// a GroupConfig at instance-creation time and read-only thereafter.
// NOTE: This index is process-lifetime only; nothing is persisted.
type Registry struct {
	group    string
	mu       sync.RWMutex
	services map[string]domain.ToolService
	decls    map[string]domain.ToolDeclaration
	order    []string // names in first-registration order
	logger   *slog.Logger
}

// Build indexes every declaration from every configured ToolService, in
// registration order. Registering a duplicate name overwrites the prior
// binding (last registration wins) and emits a structured warning naming the
// group and the tool; duplicates are deliberately not an error so that
// configuration overlays can replace individual tools.
func Build(cfg *domain.GroupConfig, logger *slog.Logger) *Registry {
	r := &Registry{
		group:    cfg.Name,
		services: make(map[string]domain.ToolService),
		decls:    make(map[string]domain.ToolDeclaration),
		logger:   logger.With("component", "tool_registry", "group", cfg.Name),
	}

	for _, svc := range cfg.ToolServices {
		for _, decl := range svc.Declarations() {
			name := decl.Tool.Name
			if name == "" {
				r.logger.Warn("Skipping tool declaration with empty name")
				continue
			}
			if _, exists := r.services[name]; exists {
				r.logger.Warn("Duplicate tool registration, later binding wins",
					slog.String("group", cfg.Name),
					slog.String("tool", name))
			} else {
				r.order = append(r.order, name)
			}
			r.services[name] = svc
			r.decls[name] = decl
		}
	}

	r.logger.Debug("Tool registry built", slog.Int("tool_count", len(r.order)))
	return r
}

// Lookup returns the ToolService bound to the given tool name.
func (r *Registry) Lookup(name string) (domain.ToolService, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	svc, ok := r.services[name]
	return svc, ok
}

// Declarations returns every static declaration in registration order. A
// name that was registered twice appears once, carrying the later contract.
func (r *Registry) Declarations() []domain.ToolDeclaration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]domain.ToolDeclaration, 0, len(r.order))
	for _, name := range r.order {
		list = append(list, r.decls[name])
	}
	return list
}

// Len returns the number of distinct tool names in the index.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
