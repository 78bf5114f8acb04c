package event

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mvstudio/backend/internal/domain/credit"
	"github.com/mvstudio/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type recordingHandler struct {
	mu      sync.Mutex
	types   []string
	handled []shared.DomainEvent
	err     error
	panics  bool
}

func (h *recordingHandler) EventTypes() []string { return h.types }

func (h *recordingHandler) Handle(_ context.Context, ev shared.DomainEvent) error {
	if h.panics {
		panic("boom")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handled = append(h.handled, ev)
	return h.err
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.handled)
}

func startedBus(t *testing.T, logger *zap.Logger) *InMemoryEventBus {
	t.Helper()
	bus := NewInMemoryEventBus(logger)
	require.NoError(t, bus.Start(context.Background()))
	t.Cleanup(func() { _ = bus.Stop(context.Background()) })
	return bus
}

func TestInMemoryEventBus_RoutesByType(t *testing.T) {
	bus := startedBus(t, zap.NewNop())
	deductions := &recordingHandler{types: []string{credit.EventTypeCreditsDeducted}}
	everything := &recordingHandler{}
	bus.Subscribe(deductions)
	bus.Subscribe(everything)

	err := bus.Publish(context.Background(),
		credit.NewCreditsDeductedEvent("u1", "storyboard", 15, credit.BucketPersonal, 45),
		credit.NewCreditsGrantedEvent("u1", 50, credit.SourcePurchase, 60))
	require.NoError(t, err)

	assert.Equal(t, 1, deductions.count())
	assert.Equal(t, 2, everything.count())
}

func TestInMemoryEventBus_HandlerFailuresAreIsolated(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	bus := startedBus(t, zap.New(core))

	failing := &recordingHandler{types: []string{credit.EventTypeCreditsGranted}, err: errors.New("downstream")}
	panicking := &recordingHandler{types: []string{credit.EventTypeCreditsGranted}, panics: true}
	healthy := &recordingHandler{types: []string{credit.EventTypeCreditsGranted}}
	bus.Subscribe(failing)
	bus.Subscribe(panicking)
	bus.Subscribe(healthy)

	err := bus.Publish(context.Background(), credit.NewCreditsGrantedEvent("u1", 10, credit.SourceAdmin, 10))
	require.NoError(t, err)

	assert.Equal(t, 1, healthy.count())
	assert.Equal(t, 2, logs.FilterMessage("Event handler failed").Len())
}

func TestInMemoryEventBus_UnsubscribeAndStop(t *testing.T) {
	bus := startedBus(t, zap.NewNop())
	h := &recordingHandler{types: []string{credit.EventTypeCreditsGranted}}
	bus.Subscribe(h)
	bus.Unsubscribe(h)

	ev := credit.NewCreditsGrantedEvent("u1", 10, credit.SourceAdmin, 10)
	require.NoError(t, bus.Publish(context.Background(), ev))
	assert.Equal(t, 0, h.count())

	bus.Subscribe(h)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, bus.Stop(ctx))
	require.NoError(t, bus.Publish(context.Background(), ev))
	assert.Equal(t, 0, h.count())
}

func TestHandlerRegistry_Len(t *testing.T) {
	r := NewHandlerRegistry()
	h := &recordingHandler{}
	r.Register(h, "a", "b")
	r.Register(&recordingHandler{})

	assert.Equal(t, 2, r.Len())
	assert.Len(t, r.HandlersFor("a"), 2)
	assert.Len(t, r.HandlersFor("z"), 1)

	r.Unregister(h)
	assert.Equal(t, 1, r.Len())
}
