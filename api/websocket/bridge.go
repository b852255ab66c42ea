package websocket

import (
	"context"

	"github.com/OldStager01/car-price-predictor/internal/logger"
	"github.com/OldStager01/car-price-predictor/pkg/models"
)

// EventBridge forwards bus events to WebSocket clients. Run-scoped events
// go to that run's subscribers; the rest go to everyone.
type EventBridge struct {
	hub        *Hub
	eventsChan <-chan *models.Event
	ctx        context.Context
	cancel     context.CancelFunc
}

func NewEventBridge(hub *Hub, eventsChan <-chan *models.Event) *EventBridge {
	ctx, cancel := context.WithCancel(context.Background())
	return &EventBridge{
		hub:        hub,
		eventsChan: eventsChan,
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (b *EventBridge) Start() {
	go b.run()
	logger.Debug("WebSocket event bridge started")
}

func (b *EventBridge) Stop() {
	b.cancel()
	logger.Debug("WebSocket event bridge stopped")
}

func (b *EventBridge) run() {
	for {
		select {
		case <-b.ctx.Done():
			return
		case event, ok := <-b.eventsChan:
			if !ok {
				logger.Debug("Event channel closed, stopping bridge")
				return
			}
			b.forwardEvent(event)
		}
	}
}

func (b *EventBridge) forwardEvent(event *models.Event) {
	msg := FromEvent(event)
	if msg == nil {
		return
	}

	if event.RunID != "" {
		b.hub.BroadcastToRun(event.RunID, msg.JSON())
		return
	}
	b.hub.Broadcast(msg.JSON())
}
