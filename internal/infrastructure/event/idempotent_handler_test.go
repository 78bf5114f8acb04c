package event

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mvstudio/backend/internal/domain/credit"
	"github.com/mvstudio/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapStore struct {
	keys    map[string]bool
	failing bool
}

func newMapStore() *mapStore { return &mapStore{keys: map[string]bool{}} }

func (s *mapStore) MarkProcessed(_ context.Context, key string, _ time.Duration) (bool, error) {
	if s.failing {
		return false, errors.New("store down")
	}
	if s.keys[key] {
		return false, nil
	}
	s.keys[key] = true
	return true, nil
}

func (s *mapStore) IsProcessed(_ context.Context, key string) (bool, error) { return s.keys[key], nil }

func (s *mapStore) Forget(_ context.Context, key string) error {
	delete(s.keys, key)
	return nil
}

func (s *mapStore) Close() error { return nil }

func TestIdempotentHandler_SkipsRedelivery(t *testing.T) {
	inner := &recordingHandler{types: []string{credit.EventTypeCreditsGranted}}
	h := NewIdempotentHandler(inner, newMapStore(), nil)
	ev := credit.NewCreditsGrantedEvent("u1", 50, credit.SourcePurchase, 50)

	require.NoError(t, h.Handle(context.Background(), ev))
	require.NoError(t, h.Handle(context.Background(), ev))

	assert.Equal(t, 1, inner.count())
	assert.Equal(t, DeliveryStats{Processed: 1, Duplicate: 1}, h.Stats())
	assert.Equal(t, inner.EventTypes(), h.EventTypes())
}

func TestIdempotentHandler_FailureReleasesClaim(t *testing.T) {
	inner := &recordingHandler{err: errors.New("transient")}
	store := newMapStore()
	h := NewIdempotentHandler(inner, store, nil)
	ev := credit.NewCreditsGrantedEvent("u1", 50, credit.SourcePurchase, 50)

	require.Error(t, h.Handle(context.Background(), ev))
	assert.Empty(t, store.keys)

	inner.err = nil
	require.NoError(t, h.Handle(context.Background(), ev))
	assert.Equal(t, 2, inner.count())
	assert.Equal(t, int64(1), h.Stats().Failed)
}

func TestIdempotentHandler_StoreOutageProcessesAnyway(t *testing.T) {
	inner := &recordingHandler{}
	store := newMapStore()
	store.failing = true
	h := NewIdempotentHandler(inner, store, nil)

	require.NoError(t, h.Handle(context.Background(), credit.NewCreditsGrantedEvent("u1", 1, credit.SourceAdmin, 1)))
	assert.Equal(t, 1, inner.count())
}

func TestIdempotentHandler_Disabled(t *testing.T) {
	inner := &recordingHandler{}
	store := newMapStore()
	h := NewIdempotentHandler(inner, store, nil, WithIdempotencyConfig(shared.IdempotencyConfig{Enabled: false}))
	ev := credit.NewCreditsGrantedEvent("u1", 1, credit.SourceAdmin, 1)

	require.NoError(t, h.Handle(context.Background(), ev))
	require.NoError(t, h.Handle(context.Background(), ev))
	assert.Equal(t, 2, inner.count())
	assert.Empty(t, store.keys)
}
