package realtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/loopio/feedback-tracker/internal/observability"
)

func TestRedisRelay_DeliverCountsLocalOutcomes(t *testing.T) {
	hub := NewHub(4, zap.NewNop())
	c := hub.Register("u1")
	require.NoError(t, hub.Join(c, "u1"))

	metrics := observability.NewMetrics()
	relay := NewRedisRelay(nil, "events", hub, zap.NewNop(), metrics)

	relay.deliver(context.Background(), []byte(`{"user_id":"u1","event":"notification_new","data":{"id":"n1"}}`))
	frame := readFrame(t, c)
	assert.Equal(t, EventNotificationNew, frame.Event)
	assert.JSONEq(t, `{"id":"n1"}`, string(frame.Data))

	relay.deliver(context.Background(), []byte(`{"user_id":"u2","event":"notification_new"}`))
	assertEmpty(t, c)

	relay.deliver(context.Background(), []byte(`not json`))

	counts := metrics.Snapshot().Relay
	assert.Equal(t, int64(1), counts[EventNotificationNew+"|"+observability.RelayDelivered])
	assert.Equal(t, int64(1), counts[EventNotificationNew+"|"+observability.RelayNoSubscribers])
	assert.Len(t, counts, 2)
}

func TestRedisRelay_IsDeferred(t *testing.T) {
	relay := NewRedisRelay(nil, "events", NewHub(1, zap.NewNop()), zap.NewNop(), nil)
	assert.True(t, relay.Deferred())

	// nil metrics must not panic on delivery.
	relay.deliver(context.Background(), []byte(`{"user_id":"nobody","event":"notification_new"}`))
}
