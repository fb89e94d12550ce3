// Package feed builds paginated post feeds over the document store.
package feed

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/inkify/engine/internal/errors"
	"github.com/inkify/engine/internal/identity"
	"github.com/inkify/engine/internal/models"
	"github.com/inkify/engine/internal/store"
)

// DefaultPageSize matches the original product's feed page
const DefaultPageSize = 5

// PublicPageSize is used for the unauthenticated landing feed
const PublicPageSize = 20

// seenCap bounds how many emitted post ids a cursor carries for
// cross-page dedupe
const seenCap = 200

// Scope selects whose posts appear in the feed
type Scope string

const (
	ScopeAll       Scope = "all"
	ScopeFollowing Scope = "following"
)

// SortKey orders the feed
type SortKey string

const (
	SortRecency      SortKey = "recency"
	SortLikeCount    SortKey = "likeCount"
	SortCommentCount SortKey = "commentCount"
)

// column maps a sort key onto its posts column
func (k SortKey) column() string {
	switch k {
	case SortLikeCount:
		return "like_count"
	case SortCommentCount:
		return "comment_count"
	default:
		return "created_at"
	}
}

// PageRequest describes one feed page fetch
type PageRequest struct {
	UserID   string
	Scope    Scope
	Sort     SortKey
	Category string
	Cursor   string
}

// Page is one feed page. Exhausted means no further pages exist.
type Page struct {
	Items     []models.Post `json:"items"`
	Cursor    *string       `json:"cursor"`
	Exhausted bool          `json:"exhausted"`
}

// cursor is the opaque pagination token. It pins the query criteria so a
// criteria switch invalidates it, carries the keyset position as the
// (sort value, created-at nanos, id) triple, and remembers emitted ids
// because concurrent inserts shift pages.
type cursor struct {
	Key       string   `json:"k"`
	SortVal   int64    `json:"v"`
	CreatedAt int64    `json:"c"`
	LastID    string   `json:"id"`
	Seen      []string `json:"seen,omitempty"`
}

// Service assembles feed pages
type Service struct {
	store    store.DocumentStore
	resolver *identity.Resolver
	pageSize int
}

// NewService creates a feed service
func NewService(st store.DocumentStore, r *identity.Resolver, pageSize int) *Service {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Service{store: st, resolver: r, pageSize: pageSize}
}

// Page fetches one feed page. The following scope with nobody followed
// short-circuits to an exhausted empty page without querying posts.
func (s *Service) Page(ctx context.Context, req PageRequest) (*Page, error) {
	if req.Scope == "" {
		req.Scope = ScopeAll
	}
	if req.Sort == "" {
		req.Sort = SortRecency
	}
	if req.Scope != ScopeAll && req.Scope != ScopeFollowing {
		return nil, errors.ValidationError("scope", "scope must be all or following")
	}
	if req.Sort != SortRecency && req.Sort != SortLikeCount && req.Sort != SortCommentCount {
		return nil, errors.ValidationError("sort", "unknown sort key")
	}

	var following []string
	if req.Scope == ScopeFollowing {
		// The follow list lives on the caller's user document, so this
		// one read precedes the empty short-circuit; posts are never
		// touched for a follower of nobody.
		var user models.User
		if err := s.store.Get(ctx, store.Users, req.UserID, &user); err != nil {
			return nil, err
		}
		following = user.Following
		if len(following) == 0 {
			return &Page{Items: []models.Post{}, Cursor: nil, Exhausted: true}, nil
		}
	}

	cur := s.decodeCursor(req)
	candidates, err := s.fetchCandidates(ctx, req, following, cur)
	if err != nil {
		return nil, err
	}

	items := s.rank(req.Sort, candidates, cur)
	exhausted := len(items) < s.pageSize
	if len(items) > s.pageSize {
		items = items[:s.pageSize]
	}

	if err := s.hydrateAuthors(ctx, items); err != nil {
		return nil, err
	}

	page := &Page{Items: items, Exhausted: exhausted}
	if !exhausted && len(items) > 0 {
		token := s.encodeCursor(req, cur, items)
		page.Cursor = &token
	}
	return page, nil
}

// Public returns the unauthenticated landing feed: newest posts, one
// fixed-size page, no cursor state.
func (s *Service) Public(ctx context.Context, limit int) ([]models.Post, error) {
	if limit <= 0 || limit > 100 {
		limit = PublicPageSize
	}
	var posts []models.Post
	q := store.Query{OrderBy: "created_at", Desc: true, Limit: limit}
	if err := s.store.Query(ctx, store.Posts, q, &posts); err != nil {
		return nil, err
	}
	if err := s.hydrateAuthors(ctx, posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// Recent returns the latest posts for the sidebar rail
func (s *Service) Recent(ctx context.Context) ([]models.Post, error) {
	return s.Public(ctx, DefaultPageSize)
}

// Saved returns the caller's bookmarked posts, newest first. Bookmarks
// of deleted posts drop out naturally because the id lookup misses.
func (s *Service) Saved(ctx context.Context, userID string) ([]models.Post, error) {
	var user models.User
	if err := s.store.Get(ctx, store.Users, userID, &user); err != nil {
		return nil, err
	}
	if len(user.SavedPosts) == 0 {
		return []models.Post{}, nil
	}

	var merged []models.Post
	for _, chunk := range identity.Chunk(user.SavedPosts, identity.ChunkSize) {
		var posts []models.Post
		q := store.Query{Filters: []store.Filter{{Field: "id", Op: store.OpIn, Value: chunk}}}
		if err := s.store.Query(ctx, store.Posts, q, &posts); err != nil {
			return nil, err
		}
		merged = append(merged, posts...)
	}
	if merged == nil {
		merged = []models.Post{}
	}
	sort.Slice(merged, func(a, b int) bool {
		return merged[a].CreatedAt.After(merged[b].CreatedAt)
	})

	if err := s.hydrateAuthors(ctx, merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// Categories lists the distinct categories currently in use
func (s *Service) Categories(ctx context.Context) ([]string, error) {
	var categories []string
	q := store.Query{Pluck: "category", OrderBy: "category"}
	if err := s.store.Query(ctx, store.Posts, q, &categories); err != nil {
		return nil, err
	}
	out := categories[:0]
	for _, c := range categories {
		if c != "" {
			out = append(out, c)
		}
	}
	return out, nil
}

// AuthorStats aggregates engagement totals across an author's posts
type AuthorStats struct {
	AuthorID      string `json:"author_id"`
	Posts         int    `json:"posts"`
	LikesReceived int    `json:"likes_received"`
	Views         int    `json:"views"`
	Comments      int    `json:"comments"`
}

// Stats computes an author's engagement totals
func (s *Service) Stats(ctx context.Context, authorID string) (*AuthorStats, error) {
	var posts []models.Post
	q := store.Query{
		Filters: []store.Filter{{Field: "author_id", Op: store.OpEq, Value: authorID}},
	}
	if err := s.store.Query(ctx, store.Posts, q, &posts); err != nil {
		return nil, err
	}

	stats := &AuthorStats{AuthorID: authorID, Posts: len(posts)}
	for _, p := range posts {
		stats.LikesReceived += p.LikeCount
		stats.Views += p.Views
		stats.Comments += p.CommentCount
	}
	return stats, nil
}

// fetchCandidates pulls an over-fetched window of posts for ranking. The
// window orders by the full (sort, created_at, id) triple and resumes
// strictly after the cursor position, so tied sort values never hide
// rows from later pages. The following scope runs one "in" query per id
// chunk and merges.
func (s *Service) fetchCandidates(ctx context.Context, req PageRequest, following []string, cur *cursor) ([]models.Post, error) {
	limit := s.pageSize + 1
	if cur != nil {
		limit += len(cur.Seen)
	}

	base := store.Query{
		OrderBys: orderFor(req.Sort),
		Limit:    limit,
	}
	if req.Category != "" {
		base.Filters = append(base.Filters,
			store.Filter{Field: "category", Op: store.OpEq, Value: req.Category})
	}
	if cur != nil {
		base.After = keysetFor(req.Sort, cur)
	}

	if req.Scope != ScopeFollowing {
		var posts []models.Post
		if err := s.store.Query(ctx, store.Posts, base, &posts); err != nil {
			return nil, err
		}
		return posts, nil
	}

	var merged []models.Post
	for _, chunk := range identity.Chunk(following, identity.ChunkSize) {
		q := base
		q.Filters = append(append([]store.Filter{}, base.Filters...),
			store.Filter{Field: "author_id", Op: store.OpIn, Value: chunk})
		var posts []models.Post
		if err := s.store.Query(ctx, store.Posts, q, &posts); err != nil {
			return nil, err
		}
		merged = append(merged, posts...)
	}
	return merged, nil
}

// rank orders candidates, drops already-emitted ids, and enforces the
// keyset bound. Chunked merges can overlap, so dedupe runs here too.
func (s *Service) rank(key SortKey, candidates []models.Post, cur *cursor) []models.Post {
	seen := make(map[string]bool)
	if cur != nil {
		for _, id := range cur.Seen {
			seen[id] = true
		}
	}

	items := make([]models.Post, 0, len(candidates))
	for _, p := range candidates {
		if seen[p.ID] {
			continue
		}
		if cur != nil && !s.after(key, p, cur) {
			continue
		}
		seen[p.ID] = true
		items = append(items, p)
	}

	sort.SliceStable(items, func(a, b int) bool {
		va, vb := sortValue(key, items[a]), sortValue(key, items[b])
		if va != vb {
			return va > vb
		}
		ca, cb := items[a].CreatedAt.UnixNano(), items[b].CreatedAt.UnixNano()
		if ca != cb {
			return ca > cb
		}
		return items[a].ID > items[b].ID
	})
	return items
}

// after reports whether p sorts strictly after the cursor position
func (s *Service) after(key SortKey, p models.Post, cur *cursor) bool {
	v := sortValue(key, p)
	if v != cur.SortVal {
		return v < cur.SortVal
	}
	c := p.CreatedAt.UnixNano()
	if c != cur.CreatedAt {
		return c < cur.CreatedAt
	}
	return p.ID < cur.LastID
}

// orderFor is the total order every page walks: the sort column first,
// created_at and id as tie-breaks so equal sort values still have one
// deterministic sequence
func orderFor(key SortKey) []store.Order {
	orders := []store.Order{{Field: key.column(), Desc: true}}
	if key != SortRecency {
		orders = append(orders, store.Order{Field: "created_at", Desc: true})
	}
	return append(orders, store.Order{Field: "id", Desc: true})
}

// keysetFor turns a cursor into the resume position under orderFor
func keysetFor(key SortKey, cur *cursor) store.Keyset {
	created := time.Unix(0, cur.CreatedAt).UTC()
	if key == SortRecency {
		return store.Keyset{
			Fields: []string{"created_at", "id"},
			Values: []interface{}{created, cur.LastID},
		}
	}
	return store.Keyset{
		Fields: []string{key.column(), "created_at", "id"},
		Values: []interface{}{cur.SortVal, created, cur.LastID},
	}
}

// hydrateAuthors overwrites author snapshots with freshly resolved names
func (s *Service) hydrateAuthors(ctx context.Context, posts []models.Post) error {
	if len(posts) == 0 {
		return nil
	}
	ids := make([]string, 0, len(posts))
	for _, p := range posts {
		ids = append(ids, p.AuthorID)
	}
	names, err := s.resolver.Resolve(ctx, ids)
	if err != nil {
		return err
	}
	for i := range posts {
		if name, ok := names[posts[i].AuthorID]; ok {
			posts[i].AuthorName = name
		}
	}
	return nil
}

// decodeCursor parses the pagination token; a token minted under
// different criteria is ignored, which resets pagination
func (s *Service) decodeCursor(req PageRequest) *cursor {
	if req.Cursor == "" {
		return nil
	}
	data, err := base64.URLEncoding.DecodeString(req.Cursor)
	if err != nil {
		return nil
	}
	var cur cursor
	if err := json.Unmarshal(data, &cur); err != nil {
		return nil
	}
	if cur.Key != criteriaKey(req) {
		return nil
	}
	return &cur
}

func (s *Service) encodeCursor(req PageRequest, prev *cursor, items []models.Post) string {
	last := items[len(items)-1]

	var seen []string
	if prev != nil {
		seen = prev.Seen
	}
	for _, p := range items {
		seen = append(seen, p.ID)
	}
	if len(seen) > seenCap {
		seen = seen[len(seen)-seenCap:]
	}

	cur := cursor{
		Key:       criteriaKey(req),
		SortVal:   sortValue(req.Sort, last),
		CreatedAt: last.CreatedAt.UnixNano(),
		LastID:    last.ID,
		Seen:      seen,
	}
	data, _ := json.Marshal(cur)
	return base64.URLEncoding.EncodeToString(data)
}

func criteriaKey(req PageRequest) string {
	return fmt.Sprintf("%s|%s|%s|%s", req.Scope, req.Sort, req.Category, req.UserID)
}

func sortValue(key SortKey, p models.Post) int64 {
	switch key {
	case SortLikeCount:
		return int64(p.LikeCount)
	case SortCommentCount:
		return int64(p.CommentCount)
	default:
		return p.CreatedAt.UnixNano()
	}
}
