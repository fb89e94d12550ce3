package feed

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/inkify/engine/internal/errors"
	"github.com/inkify/engine/internal/identity"
	"github.com/inkify/engine/internal/logger"
	"github.com/inkify/engine/internal/models"
	"github.com/inkify/engine/internal/store"
)

func TestMain(m *testing.M) {
	_ = logger.Initialize("error", "")
	os.Exit(m.Run())
}

type fixture struct {
	store   *store.GormStore
	service *Service
	clock   time.Time
}

func newFixture(t *testing.T, pageSize int) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Post{}))

	st := store.NewGormStore(db)
	resolver := identity.NewResolver(st, nil, time.Minute)
	return &fixture{
		store:   st,
		service: NewService(st, resolver, pageSize),
		clock:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (f *fixture) createUser(t *testing.T, username string, following ...string) models.User {
	t.Helper()
	u := models.User{
		Username:  username,
		Following: models.StringArray(following),
		Followers: models.StringArray{},
	}
	if u.Following == nil {
		u.Following = models.StringArray{}
	}
	require.NoError(t, f.store.Create(context.Background(), store.Users, &u))
	return u
}

// createPost mints a post one minute newer than the previous one
func (f *fixture) createPost(t *testing.T, author models.User, title, category string, likes, comments int) models.Post {
	t.Helper()
	f.clock = f.clock.Add(time.Minute)
	p := models.Post{
		AuthorID:     author.ID,
		AuthorName:   author.Username,
		Title:        title,
		Content:      "content",
		Category:     category,
		Likes:        models.StringArray{},
		ViewedBy:     models.StringArray{},
		Comments:     models.CommentList{},
		LikeCount:    likes,
		CommentCount: comments,
		CreatedAt:    f.clock,
	}
	require.NoError(t, f.store.Create(context.Background(), store.Posts, &p))
	return p
}

// createPostAt mints a post with an explicit creation time
func (f *fixture) createPostAt(t *testing.T, author models.User, title string, createdAt time.Time) models.Post {
	t.Helper()
	p := models.Post{
		AuthorID:   author.ID,
		AuthorName: author.Username,
		Title:      title,
		Content:    "content",
		Category:   "Tech",
		Likes:      models.StringArray{},
		ViewedBy:   models.StringArray{},
		Comments:   models.CommentList{},
		CreatedAt:  createdAt,
	}
	require.NoError(t, f.store.Create(context.Background(), store.Posts, &p))
	return p
}

// collectAll pages with fixed criteria until exhausted and returns the
// concatenation of every page
func collectAll(t *testing.T, f *fixture, req PageRequest) []models.Post {
	t.Helper()
	var all []models.Post
	token := ""
	for i := 0; i < 50; i++ {
		req.Cursor = token
		page, err := f.service.Page(context.Background(), req)
		require.NoError(t, err)
		all = append(all, page.Items...)
		if page.Exhausted {
			require.Nil(t, page.Cursor)
			return all
		}
		require.NotNil(t, page.Cursor)
		token = *page.Cursor
	}
	t.Fatal("pagination never exhausted")
	return nil
}

func titles(items []models.Post) []string {
	out := make([]string, 0, len(items))
	for _, p := range items {
		out = append(out, p.Title)
	}
	return out
}

func TestPageRecencyPaginates(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()

	author := f.createUser(t, "author")
	reader := f.createUser(t, "reader")
	for i := 0; i < 8; i++ {
		f.createPost(t, author, fmt.Sprintf("post-%d", i), "Tech", 0, 0)
	}

	page1, err := f.service.Page(ctx, PageRequest{UserID: reader.ID, Scope: ScopeAll, Sort: SortRecency})
	require.NoError(t, err)
	require.Len(t, page1.Items, 5)
	assert.False(t, page1.Exhausted)
	require.NotNil(t, page1.Cursor)
	assert.Equal(t, []string{"post-7", "post-6", "post-5", "post-4", "post-3"}, titles(page1.Items))

	page2, err := f.service.Page(ctx, PageRequest{
		UserID: reader.ID, Scope: ScopeAll, Sort: SortRecency, Cursor: *page1.Cursor,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"post-2", "post-1", "post-0"}, titles(page2.Items))
	assert.True(t, page2.Exhausted)
	assert.Nil(t, page2.Cursor)

	// No post appears on both pages
	seen := make(map[string]bool)
	for _, p := range append(page1.Items, page2.Items...) {
		assert.False(t, seen[p.ID], "post %s emitted twice", p.Title)
		seen[p.ID] = true
	}
}

// Every matching post must come out exactly once when paging to
// exhaustion, even when the sort column ties across the whole set and
// creation times do not follow insertion order.
func TestPageTiedSortValuesEmitEveryPost(t *testing.T) {
	f := newFixture(t, 5)

	author := f.createUser(t, "author")
	reader := f.createUser(t, "reader")
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 20; i++ {
		created := base.Add(time.Duration((i*7)%20) * time.Minute)
		f.createPostAt(t, author, fmt.Sprintf("post-%d", i), created)
	}

	all := collectAll(t, f, PageRequest{UserID: reader.ID, Scope: ScopeAll, Sort: SortLikeCount})
	require.Len(t, all, 20)

	seen := make(map[string]bool)
	for _, p := range all {
		assert.False(t, seen[p.ID], "post %s emitted twice", p.Title)
		seen[p.ID] = true
	}
}

// Posts created inside the same millisecond must still paginate without
// loss; the cursor has to carry the full timestamp precision.
func TestPageRecencySubMillisecondTimestamps(t *testing.T) {
	f := newFixture(t, 5)

	author := f.createUser(t, "author")
	reader := f.createUser(t, "reader")
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 8; i++ {
		f.createPostAt(t, author, fmt.Sprintf("post-%d", i), base.Add(time.Duration(i)*time.Microsecond))
	}

	all := collectAll(t, f, PageRequest{UserID: reader.ID, Scope: ScopeAll, Sort: SortRecency})
	require.Len(t, all, 8)
	assert.Equal(t, []string{
		"post-7", "post-6", "post-5", "post-4", "post-3", "post-2", "post-1", "post-0",
	}, titles(all))
}

func TestPageSortByLikeCount(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()

	author := f.createUser(t, "author")
	f.createPost(t, author, "cold", "Tech", 1, 0)
	f.createPost(t, author, "hot", "Tech", 9, 0)
	f.createPost(t, author, "warm", "Tech", 4, 0)

	page, err := f.service.Page(ctx, PageRequest{UserID: author.ID, Sort: SortLikeCount})
	require.NoError(t, err)
	assert.Equal(t, []string{"hot", "warm", "cold"}, titles(page.Items))
}

func TestPageSortByCommentCount(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()

	author := f.createUser(t, "author")
	f.createPost(t, author, "quiet", "Tech", 0, 0)
	f.createPost(t, author, "busy", "Tech", 0, 7)

	page, err := f.service.Page(ctx, PageRequest{UserID: author.ID, Sort: SortCommentCount})
	require.NoError(t, err)
	assert.Equal(t, []string{"busy", "quiet"}, titles(page.Items))
}

func TestPageCategoryFilter(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()

	author := f.createUser(t, "author")
	f.createPost(t, author, "about go", "Tech", 0, 0)
	f.createPost(t, author, "about pasta", "Food", 0, 0)

	page, err := f.service.Page(ctx, PageRequest{UserID: author.ID, Category: "Food"})
	require.NoError(t, err)
	assert.Equal(t, []string{"about pasta"}, titles(page.Items))
}

func TestPageFollowingScope(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()

	followed := f.createUser(t, "followed")
	ignored := f.createUser(t, "ignored")
	reader := f.createUser(t, "reader", followed.ID)

	f.createPost(t, followed, "wanted", "Tech", 0, 0)
	f.createPost(t, ignored, "unwanted", "Tech", 0, 0)

	page, err := f.service.Page(ctx, PageRequest{UserID: reader.ID, Scope: ScopeFollowing})
	require.NoError(t, err)
	assert.Equal(t, []string{"wanted"}, titles(page.Items))
	assert.True(t, page.Exhausted)
}

func TestPageFollowingNobodyShortCircuits(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()

	author := f.createUser(t, "author")
	loner := f.createUser(t, "loner")
	f.createPost(t, author, "invisible", "Tech", 0, 0)

	page, err := f.service.Page(ctx, PageRequest{UserID: loner.ID, Scope: ScopeFollowing})
	require.NoError(t, err)
	assert.NotNil(t, page.Items)
	assert.Empty(t, page.Items)
	assert.True(t, page.Exhausted)
	assert.Nil(t, page.Cursor)
}

func TestPageCursorIgnoredAfterCriteriaSwitch(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()

	author := f.createUser(t, "author")
	for i := 0; i < 5; i++ {
		f.createPost(t, author, fmt.Sprintf("post-%d", i), "Tech", i, 0)
	}

	page1, err := f.service.Page(ctx, PageRequest{UserID: author.ID, Sort: SortRecency})
	require.NoError(t, err)
	require.NotNil(t, page1.Cursor)

	// Same token under a different sort starts from the top
	switched, err := f.service.Page(ctx, PageRequest{
		UserID: author.ID, Sort: SortLikeCount, Cursor: *page1.Cursor,
	})
	require.NoError(t, err)
	require.Len(t, switched.Items, 2)
	assert.Equal(t, "post-4", switched.Items[0].Title)
}

func TestPageGarbageCursorResets(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()

	author := f.createUser(t, "author")
	f.createPost(t, author, "only", "Tech", 0, 0)

	page, err := f.service.Page(ctx, PageRequest{UserID: author.ID, Cursor: "not-base64!!"})
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
}

func TestPageValidation(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()

	_, err := f.service.Page(ctx, PageRequest{Scope: "everyone"})
	assert.True(t, errors.Is(err, errors.ErrValidation))

	_, err = f.service.Page(ctx, PageRequest{Sort: "controversial"})
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestPageHydratesAuthorNames(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()

	author := f.createUser(t, "original")
	reader := f.createUser(t, "reader")
	post := f.createPost(t, author, "stale snapshot", "Tech", 0, 0)

	// Rename after publish; the feed should show the fresh name
	require.NoError(t, f.store.Update(ctx, store.Users, author.ID,
		map[string]interface{}{"username": "renamed"}))

	page, err := f.service.Page(ctx, PageRequest{UserID: reader.ID})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, post.ID, page.Items[0].ID)
	assert.Equal(t, "renamed", page.Items[0].AuthorName)
}

func TestPublicFeed(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()

	author := f.createUser(t, "author")
	for i := 0; i < 25; i++ {
		f.createPost(t, author, fmt.Sprintf("post-%d", i), "Tech", 0, 0)
	}

	posts, err := f.service.Public(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, posts, PublicPageSize)
	assert.Equal(t, "post-24", posts[0].Title)

	recent, err := f.service.Recent(ctx)
	require.NoError(t, err)
	assert.Len(t, recent, DefaultPageSize)
}

func TestCategories(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()

	author := f.createUser(t, "author")
	f.createPost(t, author, "a", "Tech", 0, 0)
	f.createPost(t, author, "b", "Tech", 0, 0)
	f.createPost(t, author, "c", "Food", 0, 0)

	categories, err := f.service.Categories(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Food", "Tech"}, categories)
}

func TestStats(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()

	author := f.createUser(t, "author")
	other := f.createUser(t, "other")
	p1 := f.createPost(t, author, "a", "Tech", 3, 2)
	f.createPost(t, author, "b", "Tech", 1, 0)
	f.createPost(t, other, "c", "Tech", 9, 9)

	require.NoError(t, f.store.AtomicIncrement(ctx, store.Posts, p1.ID, "views", 7))

	stats, err := f.service.Stats(ctx, author.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Posts)
	assert.Equal(t, 4, stats.LikesReceived)
	assert.Equal(t, 2, stats.Comments)
	assert.Equal(t, 7, stats.Views)
}
