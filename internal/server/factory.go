package server

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"go.opentelemetry.io/otel"

	"mcphub/internal/domain"
	"mcphub/internal/elicitation"
	"mcphub/internal/registry"
	"mcphub/internal/tenant"
)

// Factory lazily builds and caches one running Instance per group name,
// wiring the tool registry, the dynamic hooks and the shared elicitation
// coordinator together. The known-group map is fixed at construction and
// never mutable at runtime; the instance cache is an explicit injected map
// (not a package singleton) so tests can run independent factories, and it
// is mutex-guarded because Go is genuinely parallel.
type Factory struct {
	mu        sync.Mutex
	configs   map[string]*domain.GroupConfig
	instances map[string]*Instance

	coord   *elicitation.Coordinator
	tenants *tenant.State
	logger  *slog.Logger
}

// ResourceBinding links a tool declaration carrying UI-routing metadata to
// the resource a presentation layer should render for it.
type ResourceBinding struct {
	Tool          string `json:"tool"`
	QualifiedName string `json:"qualifiedName"`
	Group         string `json:"group"`
	Resource      string `json:"resource"`
}

// NewFactory creates a Factory serving the given group configurations.
// Groups sharing a name are a configuration error; the later one wins, same
// as duplicate tool names.
func NewFactory(groups []*domain.GroupConfig, coord *elicitation.Coordinator, tenants *tenant.State, logger *slog.Logger) *Factory {
	configs := make(map[string]*domain.GroupConfig, len(groups))
	for _, g := range groups {
		if _, exists := configs[g.Name]; exists {
			logger.Warn("Duplicate group configuration, later definition wins",
				slog.String("group", g.Name))
		}
		configs[g.Name] = g
	}
	return &Factory{
		configs:   configs,
		instances: make(map[string]*Instance),
		coord:     coord,
		tenants:   tenants,
		logger:    logger.With("component", "group_factory"),
	}
}

// GetOrCreateInstance returns the cached instance for the group, building it
// on first access. A group name absent from the configuration map fails with
// ErrGroupNotFound. Once created, an instance is reused for the remainder of
// the process lifetime, never rebuilt.
func (f *Factory) GetOrCreateInstance(groupName string) (*Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if inst, ok := f.instances[groupName]; ok {
		return inst, nil
	}
	cfg, ok := f.configs[groupName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrGroupNotFound, groupName)
	}

	inst := &Instance{
		cfg:      cfg,
		registry: registry.Build(cfg, f.logger),
		coord:    f.coord,
		tenants:  f.tenants,
		tracer:   otel.Tracer("mcphub"),
		logger:   f.logger.With("group", groupName),
	}
	f.instances[groupName] = inst
	f.logger.Info("Group instance created",
		slog.String("group", groupName),
		slog.Int("static_tools", inst.registry.Len()))
	return inst, nil
}

// ListGroups returns the configured group names, sorted. A pure read of the
// static configuration.
func (f *Factory) ListGroups() []string {
	names := make([]string, 0, len(f.configs))
	for name := range f.configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListExposedResourceBindings emits one binding per tool declaration that
// carries UI-routing metadata, across every group. Pure and side-effect
// free: it walks the static configuration without instantiating any group.
func (f *Factory) ListExposedResourceBindings() []ResourceBinding {
	var bindings []ResourceBinding
	for _, group := range f.ListGroups() {
		cfg := f.configs[group]
		for _, svc := range cfg.ToolServices {
			for _, decl := range svc.Declarations() {
				if decl.UIResource == "" {
					continue
				}
				bindings = append(bindings, ResourceBinding{
					Tool:          decl.Tool.Name,
					QualifiedName: fmt.Sprintf("%s:%s", group, decl.Tool.Name),
					Group:         group,
					Resource:      decl.UIResource,
				})
			}
		}
	}
	return bindings
}
