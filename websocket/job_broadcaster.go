package websocket

import (
	"context"
	"log"
	"time"

	"choraid-server/models"
	"choraid-server/services"
)

// JobBroadcaster forwards domain events to the next publisher and announces
// newly posted jobs to every connected worker
type JobBroadcaster struct {
	hub  *Hub
	next services.EventPublisher
}

func NewJobBroadcaster(hub *Hub, next services.EventPublisher) *JobBroadcaster {
	if next == nil {
		next = services.NoopPublisher{}
	}
	return &JobBroadcaster{hub: hub, next: next}
}

func (b *JobBroadcaster) Publish(ctx context.Context, key string, data any) error {
	if key == services.EventJobCreated && b.hub != nil {
		sent := b.hub.BroadcastToRole(models.RoleWorker, &Message{
			Type:      "job_posted",
			Data:      data,
			Timestamp: time.Now(),
		})
		if sent > 0 {
			log.Printf("📡 New job broadcast to %d worker connections", sent)
		}
	}
	return b.next.Publish(ctx, key, data)
}

func (b *JobBroadcaster) Close() error {
	return b.next.Close()
}
