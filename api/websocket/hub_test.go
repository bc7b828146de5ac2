package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/cloud-vm-monitor/pkg/config"
	"github.com/OldStager01/cloud-vm-monitor/pkg/models"
)

func startHub(t *testing.T, clients ...*Client) *Hub {
	t.Helper()
	hub := clients[0].hub
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	for _, c := range clients {
		hub.Register(c)
	}
	require.Eventually(t, func() bool { return hub.ClientCount() == len(clients) }, time.Second, 5*time.Millisecond)
	return hub
}

func received(c *Client) []string {
	var out []string
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return out
			}
			out = append(out, string(msg))
		case <-time.After(50 * time.Millisecond):
			return out
		}
	}
}

func TestNewSettings(t *testing.T) {
	s := NewSettings(nil)
	assert.Equal(t, 60*time.Second, s.PongWait)
	assert.Equal(t, 54*time.Second, s.PingPeriod)

	s = NewSettings(&config.WebSocketConfig{PingInterval: 2 * time.Minute, PongTimeout: 30 * time.Second, ClientBuffer: 8})
	assert.Equal(t, 27*time.Second, s.PingPeriod)
	assert.Equal(t, 8, s.ClientBuffer)
}

func TestHub_FiltersByUserAndVM(t *testing.T) {
	hub := NewHub(nil)
	allVMs := NewClient(hub, nil, "u1", "")
	oneVM := NewClient(hub, nil, "u1", "vm-1")
	other := NewClient(hub, nil, "u2", "")
	startHub(t, allVMs, oneVM, other)

	hub.Broadcast("u1", "vm-1", []byte("a"))
	hub.Broadcast("u1", "vm-2", []byte("b"))
	hub.Broadcast("u1", "", []byte("c"))
	hub.Broadcast("", "", []byte("d"))

	assert.Equal(t, []string{"a", "b", "c", "d"}, received(allVMs))
	assert.Equal(t, []string{"a", "c", "d"}, received(oneVM))
	assert.Equal(t, []string{"d"}, received(other))
}

func TestHub_DropsSlowClient(t *testing.T) {
	hub := NewHub(&config.WebSocketConfig{ClientBuffer: 1})
	slow := NewClient(hub, nil, "u1", "")
	startHub(t, slow)

	hub.Broadcast("u1", "", []byte("1"))
	hub.Broadcast("u1", "", []byte("2"))

	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"1"}, received(slow))
}

func TestClient_Subscription(t *testing.T) {
	hub := NewHub(nil)
	c := NewClient(hub, nil, "u1", "")

	c.handleMessage(&IncomingMessage{Type: "subscribe", VMID: "vm-9"})
	assert.Equal(t, "vm-9", c.subscription())
	assert.False(t, c.wants("u1", "vm-1"))
	assert.True(t, c.wants("u1", "vm-9"))

	c.handleMessage(&IncomingMessage{Type: "unsubscribe"})
	assert.Equal(t, "", c.subscription())

	msgs := received(c)
	require.Len(t, msgs, 2)
	var update SubscriptionUpdate
	require.NoError(t, json.Unmarshal([]byte(msgs[1]), &update))
	assert.Equal(t, "unsubscribed", update.Action)
	assert.Equal(t, "vm-9", update.VMID)
}

func TestEventBridge(t *testing.T) {
	hub := NewHub(nil)
	owner := NewClient(hub, nil, "u1", "")
	stranger := NewClient(hub, nil, "u2", "")
	startHub(t, owner, stranger)

	events := make(chan *models.Event, 8)
	bridge := NewEventBridge(hub, events)
	bridge.Start()
	defer bridge.Stop()

	events <- models.NewEvent(models.EventTypeAlertCreated, "vm-1", "High CPU usage on web").WithUser("u1")
	events <- models.NewEvent(models.EventTypeAlertSuppressed, "vm-1", "dup").WithUser("u1")
	events <- models.NewEvent(models.EventTypeError, "vm-1", "ownerless")
	events <- models.NewEvent(models.EventTypeJobCompleted, "", "Job metric_poll finished")

	var ownerTypes []MessageType
	require.Eventually(t, func() bool {
		for _, raw := range received(owner) {
			var msg Event
			if json.Unmarshal([]byte(raw), &msg) == nil {
				ownerTypes = append(ownerTypes, msg.Type)
			}
		}
		return len(ownerTypes) == 2
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []MessageType{MessageTypeAlert, MessageTypeJob}, ownerTypes)

	strangerMsgs := received(stranger)
	require.Len(t, strangerMsgs, 1)
	assert.Contains(t, strangerMsgs[0], `"type":"job"`)
}
