package elicitation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"mcphub/internal/domain"
	"mcphub/internal/tenant"
)

// DefaultTimeout is how long an unanswered elicitation stays pending before
// it auto-resolves with a cancel outcome. The timeout is the only internal
// cancellation this core applies; it guarantees a tool invocation can never
// hang forever even if no human ever responds.
const DefaultTimeout = 5 * time.Minute

// Event is the notification published when a tool requests human input.
type Event struct {
	ID        string         `json:"id"`
	Message   string         `json:"message"`
	Schema    map[string]any `json:"requestedSchema,omitempty"`
	ToolName  string         `json:"toolName"`
	SessionID string         `json:"sessionId,omitempty"`
	Tenant    string         `json:"tenant"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Broadcaster fans an event out to any number of passive observers of one
// tenant. Emission is fire-and-forget; a failing observer never aborts the
// waiting tool.
type Broadcaster interface {
	Emit(tenantID string, event Event)
}

// Emitter is the optional process-wide "active" receiver, typically the live
// UI connection currently showing confirmation dialogs.
type Emitter interface {
	Emit(event Event) error
}

// Request is a read-only snapshot of one pending elicitation, used for
// diagnostics only.
type Request struct {
	ID        string         `json:"id"`
	Message   string         `json:"message"`
	Schema    map[string]any `json:"requestedSchema,omitempty"`
	ToolName  string         `json:"toolName"`
	SessionID string         `json:"sessionId,omitempty"`
	Tenant    string         `json:"tenant"`
	CreatedAt time.Time      `json:"createdAt"`
}

type pendingRequest struct {
	req   Request
	done  chan domain.ElicitOutcome // buffered, receives the single outcome
	timer *time.Timer
}

// Coordinator issues and resolves pending human-confirmation requests. It is
// shared across all groups, process-wide. The pending table is the only
// mutable shared structure besides the group instance cache, so it is
// guarded by a mutex: every resolution path removes the entry under the lock
// first, which is what makes each outcome happen at most once.
type Coordinator struct {
	mu      sync.Mutex
	pending map[string]*pendingRequest
	active  Emitter

	tenants *tenant.State
	hub     Broadcaster
	timeout time.Duration
	logger  *slog.Logger
}

// NewCoordinator creates a Coordinator. hub may be nil when no broadcast
// channel is wired; timeout <= 0 falls back to DefaultTimeout.
func NewCoordinator(tenants *tenant.State, hub Broadcaster, timeout time.Duration, logger *slog.Logger) *Coordinator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Coordinator{
		pending: make(map[string]*pendingRequest),
		tenants: tenants,
		hub:     hub,
		timeout: timeout,
		logger:  logger.With("component", "elicitation_coordinator"),
	}
}

// SetActiveEmitter registers e as the single process-wide active emitter,
// replacing any previous one. Passing nil unregisters.
func (c *Coordinator) SetActiveEmitter(e Emitter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = e
}

// ClearActiveEmitter unregisters e only if it is still the registered
// emitter, so a stale connection cannot evict its replacement.
func (c *Coordinator) ClearActiveEmitter(e Emitter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == e {
		c.active = nil
	}
}

// Callback builds the invocation-scoped elicitation function handed to one
// tool execution. Each call of the returned function registers a fresh
// pending request and blocks until a human responds, the timeout elapses or
// the invocation's context is cancelled.
func (c *Coordinator) Callback(toolName, sessionID string) domain.ElicitFunc {
	return func(ctx context.Context, message string, requestedSchema map[string]any) (domain.ElicitOutcome, error) {
		tenantID, ok := c.tenants.Active()
		if !ok {
			// A tool must never hang indefinitely for a context-less
			// invocation: no timer, no emission, immediate decline.
			c.logger.Warn("Elicitation requested without an active tenant, declining",
				slog.String("tool", toolName))
			return domain.ElicitOutcome{Action: domain.ElicitDecline}, nil
		}

		id := uuid.NewString()
		p := &pendingRequest{
			req: Request{
				ID:        id,
				Message:   message,
				Schema:    requestedSchema,
				ToolName:  toolName,
				SessionID: sessionID,
				Tenant:    tenantID,
				CreatedAt: time.Now(),
			},
			done: make(chan domain.ElicitOutcome, 1),
		}

		c.mu.Lock()
		c.pending[id] = p
		p.timer = time.AfterFunc(c.timeout, func() {
			if c.finish(id, domain.ElicitOutcome{Action: domain.ElicitCancel}) {
				c.logger.Info("Elicitation timed out, auto-cancelled",
					slog.String("id", id),
					slog.String("tool", toolName))
			}
		})
		c.mu.Unlock()

		c.emit(tenantID, Event{
			ID:        id,
			Message:   message,
			Schema:    requestedSchema,
			ToolName:  toolName,
			SessionID: sessionID,
			Tenant:    tenantID,
			CreatedAt: p.req.CreatedAt,
		})

		c.logger.Debug("Elicitation pending",
			slog.String("id", id),
			slog.String("tool", toolName),
			slog.String("tenant", tenantID))

		select {
		case outcome := <-p.done:
			return outcome, nil
		case <-ctx.Done():
			// The protocol exchange holding this tool open went away. Drop
			// the pending entry so a late response becomes a no-op.
			c.finish(id, domain.ElicitOutcome{Action: domain.ElicitCancel})
			return domain.ElicitOutcome{Action: domain.ElicitCancel}, nil
		}
	}
}

// Resolve delivers a human response into the pending request with the given
// id. It returns false when the id is unknown, already resolved or timed
// out; duplicate and late responses are expected under network retries, so
// this is a safe no-op rather than an error.
func (c *Coordinator) Resolve(id string, action domain.ElicitAction, content map[string]any) bool {
	if !c.finish(id, domain.ElicitOutcome{Action: action, Content: content}) {
		c.logger.Warn("Response for unknown or already resolved elicitation",
			slog.String("id", id),
			slog.String("action", string(action)))
		return false
	}
	c.logger.Info("Elicitation resolved",
		slog.String("id", id),
		slog.String("action", string(action)))
	return true
}

// Pending returns a snapshot of every outstanding request, for diagnostics.
func (c *Coordinator) Pending() []Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := make([]Request, 0, len(c.pending))
	for _, p := range c.pending {
		list = append(list, p.req)
	}
	return list
}

// finish removes the pending entry and delivers the outcome. Exactly one
// caller wins the removal; everyone else gets false.
func (c *Coordinator) finish(id string, outcome domain.ElicitOutcome) bool {
	c.mu.Lock()
	p, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	if !ok {
		return false
	}
	p.timer.Stop()
	p.done <- outcome
	return true
}

// emit publishes the event on both notification channels. Both emissions are
// best-effort; neither failing aborts the wait.
func (c *Coordinator) emit(tenantID string, event Event) {
	if c.hub != nil {
		c.hub.Emit(tenantID, event)
	}

	c.mu.Lock()
	active := c.active
	c.mu.Unlock()
	if active != nil {
		if err := active.Emit(event); err != nil {
			c.logger.Warn("Active emitter rejected elicitation event",
				slog.String("id", event.ID),
				slog.Any("error", err))
		}
	}
}
