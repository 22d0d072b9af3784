package elicitation_test

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"mcphub/internal/elicitation"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHub_EmitReachesTenantSubscribersOnly(t *testing.T) {
	assert := assert.New(t)
	hub := elicitation.NewHub(testLogger())

	chA, cancelA := hub.Subscribe("tenant-a")
	defer cancelA()
	chB, cancelB := hub.Subscribe("tenant-b")
	defer cancelB()

	hub.Emit("tenant-a", elicitation.Event{ID: "ev-1", Tenant: "tenant-a"})

	select {
	case ev := <-chA:
		assert.Equal("ev-1", ev.ID)
	default:
		t.Fatal("expected event for tenant-a subscriber")
	}

	select {
	case ev := <-chB:
		t.Fatalf("tenant-b subscriber received foreign event %q", ev.ID)
	default:
	}
}

func TestHub_CancelRemovesSubscription(t *testing.T) {
	assert := assert.New(t)
	hub := elicitation.NewHub(testLogger())

	_, cancel := hub.Subscribe("tenant-a")
	assert.Equal(1, hub.SubscriberCount("tenant-a"))

	cancel()
	assert.Equal(0, hub.SubscriberCount("tenant-a"))

	// A second cancel is a no-op.
	cancel()
	assert.Equal(0, hub.SubscriberCount("tenant-a"))
}

func TestHub_EmitWithoutSubscribersIsNoOp(t *testing.T) {
	hub := elicitation.NewHub(testLogger())
	hub.Emit("nobody-home", elicitation.Event{ID: "ev-1"})
}
