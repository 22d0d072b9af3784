package elicitation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"mcphub/internal/domain"
	"mcphub/internal/elicitation"
	"mcphub/internal/tenant"
)

type elicitResult struct {
	outcome domain.ElicitOutcome
	err     error
}

// startElicit runs the callback in a goroutine and returns the channel it
// reports on, so the test can play the role of the responding human.
func startElicit(ctx context.Context, elicit domain.ElicitFunc, message string) <-chan elicitResult {
	resultCh := make(chan elicitResult, 1)
	go func() {
		outcome, err := elicit(ctx, message, map[string]any{"type": "object"})
		resultCh <- elicitResult{outcome: outcome, err: err}
	}()
	return resultCh
}

func TestCoordinator_AcceptRoundTrip(t *testing.T) {
	assert := assert.New(t)
	logger := testLogger()

	tenants := tenant.NewState()
	tenants.SetActive("proj-a")
	hub := elicitation.NewHub(logger)
	events, cancel := hub.Subscribe("proj-a")
	defer cancel()

	coord := elicitation.NewCoordinator(tenants, hub, time.Minute, logger)
	elicit := coord.Callback("deploy", "sess-1")

	resultCh := startElicit(context.Background(), elicit, "Deploy to prod?")

	var event elicitation.Event
	select {
	case event = <-events:
	case <-time.After(time.Second):
		t.Fatal("no elicitation event broadcast")
	}
	assert.NotEmpty(event.ID)
	assert.Equal("Deploy to prod?", event.Message)
	assert.Equal("deploy", event.ToolName)
	assert.Equal("sess-1", event.SessionID)
	assert.Equal("proj-a", event.Tenant)

	assert.Len(coord.Pending(), 1)

	handled := coord.Resolve(event.ID, domain.ElicitAccept, map[string]any{"note": "go"})
	assert.True(handled)

	select {
	case res := <-resultCh:
		assert.NoError(res.err)
		assert.Equal(domain.ElicitAccept, res.outcome.Action)
		assert.Equal(map[string]any{"note": "go"}, res.outcome.Content)
	case <-time.After(time.Second):
		t.Fatal("elicitation did not unblock after resolve")
	}

	// A duplicate response is a safe no-op.
	assert.False(coord.Resolve(event.ID, domain.ElicitDecline, nil))
	assert.Empty(coord.Pending())
}

func TestCoordinator_TimeoutAutoCancels(t *testing.T) {
	assert := assert.New(t)
	logger := testLogger()

	tenants := tenant.NewState()
	tenants.SetActive("proj-a")

	coord := elicitation.NewCoordinator(tenants, nil, 30*time.Millisecond, logger)
	elicit := coord.Callback("deploy", "")

	outcome, err := elicit(context.Background(), "anyone there?", nil)
	assert.NoError(err)
	assert.Equal(domain.ElicitCancel, outcome.Action)
	assert.Empty(coord.Pending())
}

func TestCoordinator_NoActiveTenantDeclinesImmediately(t *testing.T) {
	assert := assert.New(t)
	logger := testLogger()

	tenants := tenant.NewState()
	hub := elicitation.NewHub(logger)
	events, cancel := hub.Subscribe("proj-a")
	defer cancel()

	coord := elicitation.NewCoordinator(tenants, hub, time.Minute, logger)
	elicit := coord.Callback("deploy", "")

	outcome, err := elicit(context.Background(), "Deploy?", nil)
	assert.NoError(err)
	assert.Equal(domain.ElicitDecline, outcome.Action)
	assert.Empty(coord.Pending())

	select {
	case ev := <-events:
		t.Fatalf("unexpected event %q for tenant-less elicitation", ev.ID)
	default:
	}
}

func TestCoordinator_ContextCancellationResolvesCancel(t *testing.T) {
	assert := assert.New(t)
	logger := testLogger()

	tenants := tenant.NewState()
	tenants.SetActive("proj-a")
	hub := elicitation.NewHub(logger)
	events, cancelSub := hub.Subscribe("proj-a")
	defer cancelSub()

	coord := elicitation.NewCoordinator(tenants, hub, time.Minute, logger)
	elicit := coord.Callback("deploy", "")

	ctx, cancel := context.WithCancel(context.Background())
	resultCh := startElicit(ctx, elicit, "Deploy?")

	var event elicitation.Event
	select {
	case event = <-events:
	case <-time.After(time.Second):
		t.Fatal("no elicitation event broadcast")
	}

	cancel()

	select {
	case res := <-resultCh:
		assert.NoError(res.err)
		assert.Equal(domain.ElicitCancel, res.outcome.Action)
	case <-time.After(time.Second):
		t.Fatal("elicitation did not unblock after context cancellation")
	}

	// The pending entry is gone, so a late response is a no-op.
	assert.False(coord.Resolve(event.ID, domain.ElicitAccept, nil))
}

type captureEmitter struct {
	events chan elicitation.Event
	err    error
}

func (e *captureEmitter) Emit(event elicitation.Event) error {
	e.events <- event
	return e.err
}

func TestCoordinator_ActiveEmitterReceivesEvents(t *testing.T) {
	assert := assert.New(t)
	logger := testLogger()

	tenants := tenant.NewState()
	tenants.SetActive("proj-a")

	coord := elicitation.NewCoordinator(tenants, nil, time.Minute, logger)

	emitter := &captureEmitter{events: make(chan elicitation.Event, 1)}
	coord.SetActiveEmitter(emitter)

	elicit := coord.Callback("deploy", "")
	resultCh := startElicit(context.Background(), elicit, "Deploy?")

	var event elicitation.Event
	select {
	case event = <-emitter.events:
	case <-time.After(time.Second):
		t.Fatal("active emitter received no event")
	}
	assert.Equal("deploy", event.ToolName)

	assert.True(coord.Resolve(event.ID, domain.ElicitDecline, nil))
	res := <-resultCh
	assert.NoError(res.err)
	assert.Equal(domain.ElicitDecline, res.outcome.Action)
}

func TestCoordinator_ClearActiveEmitterOnlyRemovesItself(t *testing.T) {
	assert := assert.New(t)
	logger := testLogger()

	tenants := tenant.NewState()
	tenants.SetActive("proj-a")
	coord := elicitation.NewCoordinator(tenants, nil, time.Minute, logger)

	stale := &captureEmitter{events: make(chan elicitation.Event, 1)}
	replacement := &captureEmitter{events: make(chan elicitation.Event, 1)}

	coord.SetActiveEmitter(stale)
	coord.SetActiveEmitter(replacement)

	// The stale connection closing must not evict its replacement.
	coord.ClearActiveEmitter(stale)

	elicit := coord.Callback("deploy", "")
	startElicit(context.Background(), elicit, "Deploy?")

	var event elicitation.Event
	select {
	case event = <-replacement.events:
	case <-time.After(time.Second):
		t.Fatal("replacement emitter received no event")
	}
	assert.True(coord.Resolve(event.ID, domain.ElicitCancel, nil))
}
