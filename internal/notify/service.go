// Package notify owns the durable notification log and its live fan-out.
package notify

import (
	"context"
	"time"

	"github.com/inkify/engine/internal/logger"
	"github.com/inkify/engine/internal/metrics"
	"github.com/inkify/engine/internal/models"
	"github.com/inkify/engine/internal/store"
	"go.uber.org/zap"
)

// DefaultCap bounds the per-recipient notification log
const DefaultCap = 100

// Publisher delivers a notification to a connected recipient in real time.
// The websocket hub provides the production implementation.
type Publisher interface {
	PublishNotification(recipientID string, n *models.Notification)
}

// Service writes notification records after the triggering mutation has
// committed and pushes them to connected clients. Self-engagement never
// notifies.
type Service struct {
	store store.DocumentStore
	cap   int
	pub   Publisher
}

// NewService creates a notification service. pub may be nil (CLI tools).
func NewService(st store.DocumentStore, logCap int, pub Publisher) *Service {
	if logCap <= 0 {
		logCap = DefaultCap
	}
	return &Service{store: st, cap: logCap, pub: pub}
}

// Emit persists a notification and fans it out. Returns without writing
// when actor and recipient are the same user.
func (s *Service) Emit(ctx context.Context, n *models.Notification) error {
	if n.RecipientID == "" || n.ActorID == n.RecipientID {
		return nil
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	err := s.store.Tx(ctx, func(ts store.DocumentStore) error {
		if err := ts.Create(ctx, store.Notifications, n); err != nil {
			return err
		}
		return s.trim(ctx, ts, n.RecipientID)
	})
	if err != nil {
		return err
	}
	metrics.Get().NotificationsEmitted.WithLabelValues(n.Type).Inc()

	if s.pub != nil {
		go s.pub.PublishNotification(n.RecipientID, n)
	}
	return nil
}

// trim drops the oldest records beyond the per-recipient cap
func (s *Service) trim(ctx context.Context, ts store.DocumentStore, recipientID string) error {
	var overflow []models.Notification
	q := store.Query{
		Filters: []store.Filter{{Field: "recipient_id", Op: store.OpEq, Value: recipientID}},
		OrderBy: "created_at",
		Desc:    true,
		Offset:  s.cap,
		Limit:   s.cap,
	}
	if err := ts.Query(ctx, store.Notifications, q, &overflow); err != nil {
		return err
	}
	for _, old := range overflow {
		if err := ts.Delete(ctx, store.Notifications, old.ID); err != nil {
			logger.Log.Warn("notification trim failed",
				zap.String("notification_id", old.ID), zap.Error(err))
		}
	}
	return nil
}

// List returns a page of the recipient's notifications, newest first
func (s *Service) List(ctx context.Context, recipientID string, limit, offset int) ([]models.Notification, error) {
	if limit <= 0 || limit > s.cap {
		limit = 20
	}
	var notifs []models.Notification
	q := store.Query{
		Filters: []store.Filter{{Field: "recipient_id", Op: store.OpEq, Value: recipientID}},
		OrderBy: "created_at",
		Desc:    true,
		Limit:   limit,
		Offset:  offset,
	}
	if err := s.store.Query(ctx, store.Notifications, q, &notifs); err != nil {
		return nil, err
	}
	return notifs, nil
}

// Counts returns the unread and unseen totals for badge display
func (s *Service) Counts(ctx context.Context, recipientID string) (unread, unseen int, err error) {
	// Newest-first so a legacy over-cap log counts the same window the
	// trim keeps
	var notifs []models.Notification
	q := store.Query{
		Filters: []store.Filter{{Field: "recipient_id", Op: store.OpEq, Value: recipientID}},
		OrderBy: "created_at",
		Desc:    true,
		Limit:   s.cap,
	}
	if err := s.store.Query(ctx, store.Notifications, q, &notifs); err != nil {
		return 0, 0, err
	}
	for _, n := range notifs {
		if !n.Read {
			unread++
		}
		if !n.Seen {
			unseen++
		}
	}
	return unread, unseen, nil
}

// MarkAllRead marks every notification for the recipient as read
func (s *Service) MarkAllRead(ctx context.Context, recipientID string) error {
	return s.store.UpdateWhere(ctx, store.Notifications,
		[]store.Filter{{Field: "recipient_id", Op: store.OpEq, Value: recipientID}},
		map[string]interface{}{"read": true},
	)
}

// MarkAllSeen marks every notification for the recipient as seen
func (s *Service) MarkAllSeen(ctx context.Context, recipientID string) error {
	return s.store.UpdateWhere(ctx, store.Notifications,
		[]store.Filter{{Field: "recipient_id", Op: store.OpEq, Value: recipientID}},
		map[string]interface{}{"seen": true},
	)
}
