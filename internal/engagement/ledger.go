// Package engagement owns likes and view counting for posts.
package engagement

import (
	"context"
	"sync"
	"time"

	"github.com/inkify/engine/internal/cache"
	"github.com/inkify/engine/internal/identity"
	"github.com/inkify/engine/internal/logger"
	"github.com/inkify/engine/internal/metrics"
	"github.com/inkify/engine/internal/models"
	"github.com/inkify/engine/internal/notify"
	"github.com/inkify/engine/internal/store"
	"go.uber.org/zap"
)

// DefaultDebounce is how long a view must be pending before it lands
const DefaultDebounce = 5 * time.Second

// viewGuardTTL bounds the Redis session marker that short-circuits
// repeat view pings without a store read
const viewGuardTTL = 12 * time.Hour

// Ledger records likes and views. All array mutations go through the
// store's per-element atomic operations; counters move in the same
// transaction so they stay in lockstep with the arrays.
type Ledger struct {
	store    store.DocumentStore
	notify   *notify.Service
	resolver *identity.Resolver
	redis    *cache.RedisClient
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// NewLedger creates an engagement ledger. redis may be nil.
func NewLedger(st store.DocumentStore, n *notify.Service, r *identity.Resolver, redis *cache.RedisClient, debounce time.Duration) *Ledger {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Ledger{
		store:    st,
		notify:   n,
		resolver: r,
		redis:    redis,
		debounce: debounce,
		pending:  make(map[string]*time.Timer),
	}
}

// ToggleLike flips the caller's like on a post. Re-delivery of the same
// toggle is safe: the array add/remove reports whether the element
// actually moved, and the counter only follows an actual move. A
// notification goes out only on the transition to liked.
func (l *Ledger) ToggleLike(ctx context.Context, postID, userID string) (liked bool, likeCount int, err error) {
	var post models.Post
	if err := l.store.Get(ctx, store.Posts, postID, &post); err != nil {
		return false, 0, err
	}

	wasLiked := post.Likes.Contains(userID)
	changed := false

	err = l.store.Tx(ctx, func(ts store.DocumentStore) error {
		if wasLiked {
			removed, err := ts.AtomicArrayRemove(ctx, store.Posts, postID, "likes", userID)
			if err != nil {
				return err
			}
			if removed {
				changed = true
				return ts.AtomicIncrement(ctx, store.Posts, postID, "like_count", -1)
			}
			return nil
		}

		added, err := ts.AtomicArrayAdd(ctx, store.Posts, postID, "likes", userID)
		if err != nil {
			return err
		}
		if added {
			changed = true
			return ts.AtomicIncrement(ctx, store.Posts, postID, "like_count", 1)
		}
		return nil
	})
	if err != nil {
		return false, 0, err
	}

	liked = !wasLiked
	likeCount = post.LikeCount
	if changed {
		if liked {
			likeCount++
		} else {
			likeCount--
		}
	}
	if likeCount < 0 {
		likeCount = 0
	}

	if liked && changed {
		l.notifyEngagement(ctx, &post, userID, models.NotificationLike)
	}
	return liked, likeCount, nil
}

func (l *Ledger) notifyEngagement(ctx context.Context, post *models.Post, actorID, notifType string) {
	actorName, err := l.resolver.ResolveOne(ctx, actorID)
	if err != nil {
		actorName = models.AnonymousName
	}
	err = l.notify.Emit(ctx, &models.Notification{
		RecipientID: post.AuthorID,
		Type:        notifType,
		ActorID:     actorID,
		ActorName:   actorName,
		PostID:      post.ID,
		PostTitle:   post.Title,
	})
	if err != nil {
		logger.Log.Warn("engagement notification failed",
			zap.String("type", notifType),
			zap.String("post_id", post.ID), zap.Error(err))
	}
}

// ToggleSave flips the caller's bookmark on a post. The set lives on the
// user document; the author hears about it only on the transition to
// saved.
func (l *Ledger) ToggleSave(ctx context.Context, postID, userID string) (saved bool, err error) {
	var post models.Post
	if err := l.store.Get(ctx, store.Posts, postID, &post); err != nil {
		return false, err
	}
	var user models.User
	if err := l.store.Get(ctx, store.Users, userID, &user); err != nil {
		return false, err
	}

	if user.SavedPosts.Contains(postID) {
		_, err := l.store.AtomicArrayRemove(ctx, store.Users, userID, "saved_posts", postID)
		return false, err
	}

	added, err := l.store.AtomicArrayAdd(ctx, store.Users, userID, "saved_posts", postID)
	if err != nil {
		return false, err
	}
	if added {
		l.notifyEngagement(ctx, &post, userID, models.NotificationSave)
	}
	return true, nil
}

// SharePost notifies the author that someone shared their post. Shares
// carry no engine state beyond the notification.
func (l *Ledger) SharePost(ctx context.Context, postID, userID string) error {
	var post models.Post
	if err := l.store.Get(ctx, store.Posts, postID, &post); err != nil {
		return err
	}
	l.notifyEngagement(ctx, &post, userID, models.NotificationShare)
	return nil
}

// RecordView schedules a view mark for (post, viewer). The mark lands only
// after the debounce window; repeated pings inside the window coalesce
// into one pending mark. Views count at most once per viewer, ever.
func (l *Ledger) RecordView(postID, viewerID string) {
	if postID == "" || viewerID == "" {
		return
	}
	key := postID + ":" + viewerID

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.pending[key]; ok {
		return
	}
	l.pending[key] = time.AfterFunc(l.debounce, func() {
		l.mu.Lock()
		delete(l.pending, key)
		l.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := l.MarkViewed(ctx, postID, viewerID); err != nil {
			logger.Log.Warn("view mark failed",
				zap.String("post_id", postID),
				zap.String("viewer_id", viewerID),
				zap.Error(err))
		}
	})
}

// MarkViewed applies the view immediately: one atomic update moves both
// the counter and the viewer set, so Views never falls behind ViewedBy.
// Returns whether this viewer was newly counted.
func (l *Ledger) MarkViewed(ctx context.Context, postID, viewerID string) (bool, error) {
	// Session guard: a set marker means this viewer was already counted
	// recently, so skip the store round trip
	if l.redis != nil {
		key := "engagement:viewed:" + postID + ":" + viewerID
		fresh, err := l.redis.SetNX(ctx, key, 1, viewGuardTTL)
		if err != nil {
			logger.Log.Warn("view guard unavailable", zap.Error(err))
		} else if !fresh {
			return false, nil
		}
	}

	counted := false
	err := l.store.Tx(ctx, func(ts store.DocumentStore) error {
		added, err := ts.AtomicArrayAdd(ctx, store.Posts, postID, "viewed_by", viewerID)
		if err != nil {
			return err
		}
		if !added {
			return nil
		}
		counted = true
		return ts.AtomicIncrement(ctx, store.Posts, postID, "views", 1)
	})
	if err != nil {
		return false, err
	}
	if counted {
		metrics.Get().ViewsRecordedTotal.Inc()
	}
	return counted, nil
}

// PendingViews reports how many view marks are waiting out the debounce
func (l *Ledger) PendingViews() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}
