// Package thread assembles flat comment arrays into reply trees and owns
// comment mutations.
package thread

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/inkify/engine/internal/errors"
	"github.com/inkify/engine/internal/identity"
	"github.com/inkify/engine/internal/logger"
	"github.com/inkify/engine/internal/models"
	"github.com/inkify/engine/internal/notify"
	"github.com/inkify/engine/internal/store"
	"go.uber.org/zap"
)

// Thread is a root comment with its replies attached
type Thread struct {
	models.Comment
	Replies []models.Comment `json:"replies"`
}

// Assemble groups a post's flat comment array into root threads. Roots
// sort newest first, replies within a thread oldest first. A reply whose
// ParentRef matches no root is dropped without error; the data stays put
// and reappears if the parent does.
func Assemble(comments []models.Comment) []Thread {
	if len(comments) == 0 {
		return []Thread{}
	}

	var roots []Thread
	byRef := make(map[int64]int)
	for _, c := range comments {
		if c.IsReply {
			continue
		}
		byRef[c.CreatedAt] = len(roots)
		roots = append(roots, Thread{Comment: c, Replies: []models.Comment{}})
	}

	for _, c := range comments {
		if !c.IsReply || c.ParentRef == nil {
			continue
		}
		idx, ok := byRef[*c.ParentRef]
		if !ok {
			continue // orphaned reply
		}
		roots[idx].Replies = append(roots[idx].Replies, c)
	}

	for i := range roots {
		replies := roots[i].Replies
		sort.SliceStable(replies, func(a, b int) bool {
			return replies[a].CreatedAt < replies[b].CreatedAt
		})
	}
	sort.SliceStable(roots, func(a, b int) bool {
		return roots[a].CreatedAt > roots[b].CreatedAt
	})

	if roots == nil {
		roots = []Thread{}
	}
	return roots
}

// Service owns comment reads and writes for posts
type Service struct {
	store    store.DocumentStore
	notify   *notify.Service
	resolver *identity.Resolver
}

// NewService creates a thread service
func NewService(st store.DocumentStore, n *notify.Service, r *identity.Resolver) *Service {
	return &Service{store: st, notify: n, resolver: r}
}

// GetThreads loads a post's comments assembled into threads
func (s *Service) GetThreads(ctx context.Context, postID string) ([]Thread, error) {
	var post models.Post
	if err := s.store.Get(ctx, store.Posts, postID, &post); err != nil {
		return nil, err
	}
	return Assemble(post.Comments), nil
}

// AddComment appends a root comment and bumps the comment counter in the
// same transaction
func (s *Service) AddComment(ctx context.Context, postID, authorID, text string) (models.Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Comment{}, errors.ValidationError("text", "comment text is required")
	}

	var post models.Post
	if err := s.store.Get(ctx, store.Posts, postID, &post); err != nil {
		return models.Comment{}, err
	}

	authorName, err := s.resolver.ResolveOne(ctx, authorID)
	if err != nil {
		authorName = models.AnonymousName
	}

	comment := models.Comment{
		ID:         uuid.New().String(),
		AuthorID:   authorID,
		AuthorName: authorName,
		Text:       text,
		CreatedAt:  time.Now().UTC().UnixMilli(),
	}

	err = s.store.Tx(ctx, func(ts store.DocumentStore) error {
		if err := ts.AtomicArrayAppend(ctx, store.Posts, postID, "comments", comment); err != nil {
			return err
		}
		return ts.AtomicIncrement(ctx, store.Posts, postID, "comment_count", 1)
	})
	if err != nil {
		return models.Comment{}, err
	}

	s.emitCommentNotification(ctx, &post, &comment, models.NotificationComment, post.AuthorID)
	return comment, nil
}

// AddReply appends a reply to the root comment identified by parentRef
// (the root's CreatedAt). The parent must be an existing root comment.
func (s *Service) AddReply(ctx context.Context, postID, authorID, text string, parentRef int64) (models.Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Comment{}, errors.ValidationError("text", "reply text is required")
	}

	var post models.Post
	if err := s.store.Get(ctx, store.Posts, postID, &post); err != nil {
		return models.Comment{}, err
	}

	var parent *models.Comment
	for i := range post.Comments {
		c := &post.Comments[i]
		if !c.IsReply && c.CreatedAt == parentRef {
			parent = c
			break
		}
	}
	if parent == nil {
		return models.Comment{}, errors.NotFound("parent comment")
	}

	authorName, err := s.resolver.ResolveOne(ctx, authorID)
	if err != nil {
		authorName = models.AnonymousName
	}

	ref := parentRef
	reply := models.Comment{
		ID:         uuid.New().String(),
		AuthorID:   authorID,
		AuthorName: authorName,
		Text:       text,
		CreatedAt:  time.Now().UTC().UnixMilli(),
		IsReply:    true,
		ParentRef:  &ref,
		RepliedTo: &models.RepliedTo{
			AuthorID:   parent.AuthorID,
			AuthorName: parent.AuthorName,
		},
	}

	err = s.store.Tx(ctx, func(ts store.DocumentStore) error {
		if err := ts.AtomicArrayAppend(ctx, store.Posts, postID, "comments", reply); err != nil {
			return err
		}
		return ts.AtomicIncrement(ctx, store.Posts, postID, "comment_count", 1)
	})
	if err != nil {
		return models.Comment{}, err
	}

	s.emitCommentNotification(ctx, &post, &reply, models.NotificationReply, parent.AuthorID)
	return reply, nil
}

// DeleteComment removes the comment identified by the structural triple
// (authorID, text, createdAt). Exactly one comment must match: zero
// matches is NOT_FOUND, more than one is AMBIGUOUS and nothing is
// deleted. Only the comment author or the post author may delete.
func (s *Service) DeleteComment(ctx context.Context, postID, requesterID, authorID, text string, createdAt int64) error {
	return s.store.Tx(ctx, func(ts store.DocumentStore) error {
		var post models.Post
		if err := ts.GetForUpdate(ctx, store.Posts, postID, &post); err != nil {
			return err
		}

		if requesterID != authorID && requesterID != post.AuthorID {
			return errors.Forbidden("only the comment author or the post author may delete a comment")
		}

		matchIdx := -1
		matches := 0
		for i, c := range post.Comments {
			if c.Matches(authorID, text, createdAt) {
				matches++
				matchIdx = i
			}
		}
		switch {
		case matches == 0:
			return errors.NotFound("comment")
		case matches > 1:
			return errors.Ambiguous("comment")
		}

		updated := make(models.CommentList, 0, len(post.Comments)-1)
		updated = append(updated, post.Comments[:matchIdx]...)
		updated = append(updated, post.Comments[matchIdx+1:]...)

		count := post.CommentCount - 1
		if count < 0 {
			count = 0
		}
		return ts.Update(ctx, store.Posts, postID, map[string]interface{}{
			"comments":      updated,
			"comment_count": count,
		})
	})
}

func (s *Service) emitCommentNotification(ctx context.Context, post *models.Post, c *models.Comment, kind, recipientID string) {
	err := s.notify.Emit(ctx, &models.Notification{
		RecipientID: recipientID,
		Type:        kind,
		ActorID:     c.AuthorID,
		ActorName:   c.AuthorName,
		PostID:      post.ID,
		PostTitle:   post.Title,
		Excerpt:     c.Text,
	})
	if err != nil {
		logger.Log.Warn("comment notification failed",
			zap.String("post_id", post.ID), zap.Error(err))
	}
}
