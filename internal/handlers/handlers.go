// Package handlers contains the HTTP handlers for the engine API.
package handlers

import (
	"github.com/inkify/engine/internal/engagement"
	"github.com/inkify/engine/internal/feed"
	"github.com/inkify/engine/internal/identity"
	"github.com/inkify/engine/internal/notify"
	"github.com/inkify/engine/internal/store"
	"github.com/inkify/engine/internal/thread"
	"github.com/inkify/engine/internal/websocket"
)

// Handlers contains all HTTP handlers for the API
type Handlers struct {
	store         store.DocumentStore
	feed          *feed.Service
	threads       *thread.Service
	ledger        *engagement.Ledger
	notifications *notify.Service
	resolver      *identity.Resolver

	wsHandler *websocket.Handler
	jwtSecret []byte
}

// NewHandlers creates a new handlers instance
func NewHandlers(
	st store.DocumentStore,
	feedSvc *feed.Service,
	threadSvc *thread.Service,
	ledger *engagement.Ledger,
	notifications *notify.Service,
	resolver *identity.Resolver,
	jwtSecret []byte,
) *Handlers {
	return &Handlers{
		store:         st,
		feed:          feedSvc,
		threads:       threadSvc,
		ledger:        ledger,
		notifications: notifications,
		resolver:      resolver,
		jwtSecret:     jwtSecret,
	}
}

// SetWebSocketHandler sets the WebSocket handler for real-time pushes
func (h *Handlers) SetWebSocketHandler(ws *websocket.Handler) {
	h.wsHandler = ws
}
