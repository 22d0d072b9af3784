package toolsvc

import (
	"context"
	"fmt"

	"mcphub/internal/domain"
)

// Handler executes one tool. The elicit callback is scoped to the current
// invocation; handlers that never need human confirmation can ignore it.
type Handler func(ctx context.Context, args map[string]any, elicit domain.ElicitFunc) (any, error)

// Service is a simple static ToolService: a named bundle of declarations
// with one handler per tool. Host applications build their built-in tool
// services with it; tests use it for fixtures.
type Service struct {
	name     string
	decls    []domain.ToolDeclaration
	handlers map[string]Handler
}

// New creates an empty Service. The name only shows up in errors and logs;
// tool names themselves must be unique within the owning group.
func New(name string) *Service {
	return &Service{
		name:     name,
		handlers: make(map[string]Handler),
	}
}

// Add registers a declaration with its handler and returns the service for
// chaining.
func (s *Service) Add(decl domain.ToolDeclaration, h Handler) *Service {
	s.decls = append(s.decls, decl)
	s.handlers[decl.Tool.Name] = h
	return s
}

// Declarations implements domain.ToolService.
func (s *Service) Declarations() []domain.ToolDeclaration {
	return s.decls
}

// Execute implements domain.ToolService.
func (s *Service) Execute(ctx context.Context, name string, args map[string]any, elicit domain.ElicitFunc) (any, error) {
	h, ok := s.handlers[name]
	if !ok {
		return nil, fmt.Errorf("service %s: %w: %s", s.name, domain.ErrUnknownTool, name)
	}
	return h(ctx, args, elicit)
}
