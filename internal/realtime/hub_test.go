package realtime

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func readFrame(t *testing.T, c *Client) inboundFrame {
	t.Helper()
	select {
	case msg := <-c.Send():
		var f inboundFrame
		require.NoError(t, json.Unmarshal(msg, &f))
		return f
	default:
		t.Fatal("expected a queued frame")
		return inboundFrame{}
	}
}

func assertEmpty(t *testing.T, c *Client) {
	t.Helper()
	select {
	case msg := <-c.Send():
		t.Fatalf("unexpected frame %s", msg)
	default:
	}
}

func TestHub_PushBeforeJoinIsLost(t *testing.T) {
	hub := NewHub(4, zap.NewNop())
	c := hub.Register("u1")

	err := hub.EmitToUser(context.Background(), "u1", EventNotificationNew, map[string]string{"id": "n1"})
	assert.ErrorIs(t, err, ErrNoSubscribers)
	assertEmpty(t, c)
}

func TestHub_JoinRoomAckAndDelivery(t *testing.T) {
	hub := NewHub(4, zap.NewNop())
	c := hub.Register("u1")

	hub.HandleMessage(c, []byte(`{"event":"join_room","data":"u1"}`))
	ack := readFrame(t, c)
	assert.Equal(t, EventRoomJoinedAck, ack.Event)
	assert.JSONEq(t, `{"room":"u1"}`, string(ack.Data))

	require.NoError(t, hub.EmitToUser(context.Background(), "u1", EventNotificationNew, map[string]string{"id": "n1"}))
	frame := readFrame(t, c)
	assert.Equal(t, EventNotificationNew, frame.Event)
	assert.JSONEq(t, `{"id":"n1"}`, string(frame.Data))
}

func TestHub_JoinIsIdempotent(t *testing.T) {
	hub := NewHub(4, zap.NewNop())
	c := hub.Register("u1")

	require.NoError(t, hub.Join(c, "u1"))
	require.NoError(t, hub.Join(c, "u1"))
	assert.Equal(t, 1, hub.roomSize("u1"))

	require.NoError(t, hub.EmitToUser(context.Background(), "u1", EventNotificationNew, nil))
	readFrame(t, c)
	assertEmpty(t, c)
}

func TestHub_CannotJoinForeignRoom(t *testing.T) {
	hub := NewHub(4, zap.NewNop())
	c := hub.Register("u1")

	assert.ErrorIs(t, hub.Join(c, "u2"), ErrForeignRoom)

	hub.HandleMessage(c, []byte(`{"event":"join_room","data":{"userId":"u2"}}`))
	assert.Equal(t, EventError, readFrame(t, c).Event)
	assert.Zero(t, hub.roomSize("u2"))
}

func TestHub_BroadcastReachesUnjoinedClients(t *testing.T) {
	hub := NewHub(4, zap.NewNop())
	a := hub.Register("u1")
	b := hub.Register("u2")
	require.NoError(t, hub.Join(a, "u1"))

	require.NoError(t, hub.Broadcast(context.Background(), EventFeedbackAdded, map[string]string{"id": "f1"}))
	assert.Equal(t, EventFeedbackAdded, readFrame(t, a).Event)
	assert.Equal(t, EventFeedbackAdded, readFrame(t, b).Event)
}

func TestHub_ReconnectRequiresRejoin(t *testing.T) {
	hub := NewHub(4, zap.NewNop())
	first := hub.Register("u1")
	require.NoError(t, hub.Join(first, "u1"))
	hub.Unregister(first)
	hub.Unregister(first)

	_, open := <-first.Send()
	assert.False(t, open)
	assert.Zero(t, hub.roomSize("u1"))

	second := hub.Register("u1")
	assert.ErrorIs(t, hub.EmitToUser(context.Background(), "u1", EventNotificationNew, nil), ErrNoSubscribers)
	require.NoError(t, hub.Join(second, "u1"))
	require.NoError(t, hub.EmitToUser(context.Background(), "u1", EventNotificationNew, nil))
	readFrame(t, second)
}

func TestHub_FullBufferDropsInsteadOfBlocking(t *testing.T) {
	hub := NewHub(1, zap.NewNop())
	c := hub.Register("u1")
	require.NoError(t, hub.Join(c, "u1"))

	require.NoError(t, hub.EmitToUser(context.Background(), "u1", "first", nil))
	require.NoError(t, hub.EmitToUser(context.Background(), "u1", "second", nil))

	assert.Equal(t, "first", readFrame(t, c).Event)
	assertEmpty(t, c)
}

func TestHub_MultipleConnectionsSameUser(t *testing.T) {
	hub := NewHub(4, zap.NewNop())
	a := hub.Register("u1")
	b := hub.Register("u1")
	require.NoError(t, hub.Join(a, "u1"))
	require.NoError(t, hub.Join(b, "u1"))
	assert.Equal(t, 2, hub.ClientCount())

	require.NoError(t, hub.EmitToUser(context.Background(), "u1", EventNotificationNew, nil))
	readFrame(t, a)
	readFrame(t, b)
}

func TestDecodeRoom(t *testing.T) {
	assert.Equal(t, "u1", decodeRoom(json.RawMessage(`"u1"`)))
	assert.Equal(t, "u1", decodeRoom(json.RawMessage(`{"userId":"u1"}`)))
	assert.Equal(t, "", decodeRoom(json.RawMessage(`42`)))
}
