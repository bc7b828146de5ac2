package websocket

import (
	"encoding/json"
	"sync"

	"github.com/OldStager01/cloud-vm-monitor/internal/logger"
	"github.com/OldStager01/cloud-vm-monitor/pkg/models"
)

// EventBridge forwards bus events to the websocket clients allowed to see
// them. Job runs reach every client; other events without an owner are
// dropped.
type EventBridge struct {
	hub        *Hub
	eventsChan <-chan *models.Event
	done       chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

func NewEventBridge(hub *Hub, eventsChan <-chan *models.Event) *EventBridge {
	return &EventBridge{
		hub:        hub,
		eventsChan: eventsChan,
		done:       make(chan struct{}),
	}
}

func (b *EventBridge) Start() {
	b.wg.Add(1)
	go b.run()
	logger.Info("WebSocket event bridge started")
}

func (b *EventBridge) Stop() {
	b.stopOnce.Do(func() { close(b.done) })
	b.wg.Wait()
	logger.Info("WebSocket event bridge stopped")
}

func (b *EventBridge) run() {
	defer b.wg.Done()
	for {
		select {
		case <-b.done:
			return
		case event, ok := <-b.eventsChan:
			if !ok {
				logger.Info("Event channel closed, stopping bridge")
				return
			}
			b.forward(event)
		}
	}
}

func (b *EventBridge) forward(event *models.Event) {
	msg := fromEvent(event)
	if msg == nil || (event.UserID == "" && msg.Type != MessageTypeJob) {
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		logger.Errorf("Failed to marshal WebSocket message: %v", err)
		return
	}
	b.hub.Broadcast(event.UserID, event.VMID, data)
}
