package websocket

import (
	"context"

	"github.com/inkify/engine/internal/logger"
	"github.com/inkify/engine/internal/store"
	"go.uber.org/zap"
)

// Bridge forwards document-store change events to connected clients as
// feed invalidations. Events arrive at-least-once; a duplicate just
// triggers an extra refetch on the client, which is harmless.
type Bridge struct {
	store store.DocumentStore
	hub   *Hub
}

// NewBridge creates a bridge between the store's change feed and the hub
func NewBridge(st store.DocumentStore, hub *Hub) *Bridge {
	return &Bridge{store: st, hub: hub}
}

// Run consumes post change events until ctx is cancelled
func (b *Bridge) Run(ctx context.Context) {
	events, cancel := b.store.Subscribe(store.Posts)
	defer cancel()

	logger.Log.Info("feed invalidation bridge started")
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			b.hub.Broadcast(NewMessage(MessageTypeFeedInvalidate, FeedInvalidatePayload{
				Collection: ev.Collection,
				Reason:     ev.Kind,
			}))
			logger.Log.Debug("feed invalidation broadcast",
				zap.String("doc_id", ev.DocID),
				zap.String("kind", ev.Kind))
		}
	}
}
