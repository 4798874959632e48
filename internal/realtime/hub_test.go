package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, sub *Subscriber) Envelope {
	t.Helper()
	select {
	case frame, ok := <-sub.Messages():
		require.True(t, ok, "subscriber closed")
		var env Envelope
		require.NoError(t, json.Unmarshal(frame, &env))
		return env
	case <-time.After(time.Second):
		t.Fatal("no message received")
		return Envelope{}
	}
}

func assertEmpty(t *testing.T, sub *Subscriber) {
	t.Helper()
	select {
	case frame := <-sub.Messages():
		t.Fatalf("unexpected frame %s", frame)
	default:
	}
}

func TestPublishDeliversToExactSubscribers(t *testing.T) {
	hub := newHub(4, nil)
	kitchen, err := hub.Subscribe(ChannelKitchen)
	require.NoError(t, err)
	updates, err := hub.Subscribe(ChannelOrderUpdates)
	require.NoError(t, err)

	require.NoError(t, hub.Publish(context.Background(), ChannelKitchen, map[string]string{"id": "o-1"}))

	env := receive(t, kitchen)
	assert.Equal(t, ChannelKitchen, env.Channel)
	assert.JSONEq(t, `{"id":"o-1"}`, string(env.Payload))
	assert.False(t, env.SentAt.IsZero())
	assertEmpty(t, updates)
}

func TestPublishMatchesWildcardSegment(t *testing.T) {
	hub := newHub(4, nil)
	tables, err := hub.Subscribe("tables.*.orders")
	require.NoError(t, err)

	require.NoError(t, hub.Publish(context.Background(), TableChannel("t-7"), "x"))
	require.NoError(t, hub.Publish(context.Background(), ChannelNewOrders, "y"))

	assert.Equal(t, "tables.t-7.orders", receive(t, tables).Channel)
	assertEmpty(t, tables)
}

func TestMatch(t *testing.T) {
	cases := []struct {
		pattern, channel string
		want             bool
	}{
		{"orders.new", "orders.new", true},
		{"orders.*", "orders.new", true},
		{"orders.*", "orders.new.extra", false},
		{"*.orders", "kitchen.orders", true},
		{"tables.*.orders", "tables.1.orders", true},
		{"tables.*.orders", "tables.1.items", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Match(tc.pattern, tc.channel), "%s vs %s", tc.pattern, tc.channel)
	}
}

func TestPublishDropsWhenBufferFull(t *testing.T) {
	hub := newHub(1, nil)
	slow, err := hub.Subscribe(ChannelKitchen)
	require.NoError(t, err)

	require.NoError(t, hub.Publish(context.Background(), ChannelKitchen, 1))
	require.NoError(t, hub.Publish(context.Background(), ChannelKitchen, 2))

	assert.Equal(t, uint64(1), slow.Dropped())
	assert.Equal(t, uint64(1), hub.Dropped())
	assert.JSONEq(t, "1", string(receive(t, slow).Payload))
	assertEmpty(t, slow)
}

func TestPublishWithoutSubscribersSucceeds(t *testing.T) {
	assert.NoError(t, newHub(1, nil).Publish(context.Background(), ChannelNewOrders, "x"))
}

func TestPublishRejectsPatternsAndBadPayloads(t *testing.T) {
	hub := newHub(1, nil)

	assert.ErrorIs(t, hub.Publish(context.Background(), "tables.*.orders", "x"), ErrInvalidChannel)
	assert.ErrorIs(t, hub.Publish(context.Background(), "", "x"), ErrInvalidChannel)
	assert.Error(t, hub.Publish(context.Background(), ChannelKitchen, make(chan int)))
}

func TestSubscribeRejectsEmptySegments(t *testing.T) {
	_, err := newHub(1, nil).Subscribe("orders..new")
	assert.ErrorIs(t, err, ErrInvalidChannel)
}

func TestSubscriberAddAndRemove(t *testing.T) {
	hub := newHub(4, nil)
	sub, err := hub.Subscribe()
	require.NoError(t, err)

	require.NoError(t, sub.Add(ChannelNewOrders))
	assert.ElementsMatch(t, []string{ChannelNewOrders}, sub.Patterns())
	require.NoError(t, hub.Publish(context.Background(), ChannelNewOrders, "a"))
	receive(t, sub)

	sub.Remove(ChannelNewOrders)
	require.NoError(t, hub.Publish(context.Background(), ChannelNewOrders, "b"))
	assertEmpty(t, sub)
}

func TestSubscriberCloseIsIdempotent(t *testing.T) {
	hub := newHub(1, nil)
	sub, err := hub.Subscribe(ChannelKitchen)
	require.NoError(t, err)

	sub.Close()
	sub.Close()

	_, ok := <-sub.Messages()
	assert.False(t, ok)
	assert.Zero(t, hub.Subscribers())
	assert.NoError(t, hub.Publish(context.Background(), ChannelKitchen, "x"))
}

func TestHubCloseDisconnectsEveryone(t *testing.T) {
	hub := newHub(1, nil)
	sub, err := hub.Subscribe(ChannelKitchen)
	require.NoError(t, err)

	hub.Close()
	sub.Close()

	_, ok := <-sub.Messages()
	assert.False(t, ok)
	_, err = hub.Subscribe(ChannelKitchen)
	assert.ErrorIs(t, err, ErrHubClosed)
}

func TestRegisterMetricsReportsSubscribers(t *testing.T) {
	hub := newHub(4, nil)
	reg := prometheus.NewRegistry()
	require.NoError(t, hub.RegisterMetrics(reg))

	_, err := hub.Subscribe(ChannelNewOrders)
	require.NoError(t, err)
	_, err = hub.Subscribe(ChannelKitchen)
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	values := make(map[string]float64, len(families))
	for _, f := range families {
		require.Len(t, f.GetMetric(), 1)
		m := f.GetMetric()[0]
		if g := m.GetGauge(); g != nil {
			values[f.GetName()] = g.GetValue()
		} else {
			values[f.GetName()] = m.GetCounter().GetValue()
		}
	}
	assert.Equal(t, 2.0, values["cafe_realtime_subscribers"])
	assert.Equal(t, 0.0, values["cafe_realtime_dropped_total"])

	assert.Error(t, hub.RegisterMetrics(reg), "duplicate registration is rejected")
}
