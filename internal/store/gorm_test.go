package store

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/inkify/engine/internal/errors"
	"github.com/inkify/engine/internal/logger"
	"github.com/inkify/engine/internal/models"
)

func TestMain(m *testing.M) {
	_ = logger.Initialize("error", "")
	os.Exit(m.Run())
}

func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	// In-memory sqlite is per connection; pin the pool to one
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Post{}, &models.Notification{}))
	return NewGormStore(db)
}

func createPost(t *testing.T, st *GormStore, post *models.Post) {
	t.Helper()
	if post.Likes == nil {
		post.Likes = models.StringArray{}
	}
	if post.ViewedBy == nil {
		post.ViewedBy = models.StringArray{}
	}
	if post.Comments == nil {
		post.Comments = models.CommentList{}
	}
	require.NoError(t, st.Create(context.Background(), Posts, post))
}

func TestGetNotFound(t *testing.T) {
	st := newTestStore(t)

	var post models.Post
	err := st.Get(context.Background(), Posts, "nope", &post)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestAtomicArrayAddIsIdempotent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	post := models.Post{AuthorID: "a1", Title: "t", Content: "c"}
	createPost(t, st, &post)

	added, err := st.AtomicArrayAdd(ctx, Posts, post.ID, "likes", "u1")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = st.AtomicArrayAdd(ctx, Posts, post.ID, "likes", "u1")
	require.NoError(t, err)
	assert.False(t, added)

	var got models.Post
	require.NoError(t, st.Get(ctx, Posts, post.ID, &got))
	assert.Equal(t, models.StringArray{"u1"}, got.Likes)
}

func TestAtomicArrayRemove(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	post := models.Post{AuthorID: "a1", Title: "t", Content: "c", Likes: models.StringArray{"u1", "u2"}}
	createPost(t, st, &post)

	removed, err := st.AtomicArrayRemove(ctx, Posts, post.ID, "likes", "u1")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = st.AtomicArrayRemove(ctx, Posts, post.ID, "likes", "u1")
	require.NoError(t, err)
	assert.False(t, removed)

	var got models.Post
	require.NoError(t, st.Get(ctx, Posts, post.ID, &got))
	assert.Equal(t, models.StringArray{"u2"}, got.Likes)
}

func TestAtomicArrayAppendKeepsDuplicates(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	post := models.Post{AuthorID: "a1", Title: "t", Content: "c"}
	createPost(t, st, &post)

	comment := models.Comment{AuthorID: "u1", Text: "same", CreatedAt: 1000}
	require.NoError(t, st.AtomicArrayAppend(ctx, Posts, post.ID, "comments", comment))
	require.NoError(t, st.AtomicArrayAppend(ctx, Posts, post.ID, "comments", comment))

	var got models.Post
	require.NoError(t, st.Get(ctx, Posts, post.ID, &got))
	assert.Len(t, got.Comments, 2)
}

func TestAtomicIncrement(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	post := models.Post{AuthorID: "a1", Title: "t", Content: "c"}
	createPost(t, st, &post)

	require.NoError(t, st.AtomicIncrement(ctx, Posts, post.ID, "like_count", 3))
	require.NoError(t, st.AtomicIncrement(ctx, Posts, post.ID, "like_count", -1))

	var got models.Post
	require.NoError(t, st.Get(ctx, Posts, post.ID, &got))
	assert.Equal(t, 2, got.LikeCount)

	err := st.AtomicIncrement(ctx, Posts, "missing", "like_count", 1)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestUpdateWhere(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		post := models.Post{AuthorID: "a1", AuthorName: "old", Title: "t", Content: "c"}
		createPost(t, st, &post)
	}
	other := models.Post{AuthorID: "a2", AuthorName: "keep", Title: "t", Content: "c"}
	createPost(t, st, &other)

	err := st.UpdateWhere(ctx, Posts,
		[]Filter{{Field: "author_id", Op: OpEq, Value: "a1"}},
		map[string]interface{}{"author_name": "new"})
	require.NoError(t, err)

	var renamed []models.Post
	require.NoError(t, st.Query(ctx, Posts, Query{
		Filters: []Filter{{Field: "author_name", Op: OpEq, Value: "new"}},
	}, &renamed))
	assert.Len(t, renamed, 3)

	var got models.Post
	require.NoError(t, st.Get(ctx, Posts, other.ID, &got))
	assert.Equal(t, "keep", got.AuthorName)
}

func TestQueryPluckDistinct(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	for _, cat := range []string{"Tech", "Tech", "Travel"} {
		post := models.Post{AuthorID: "a1", Title: "t", Content: "c", Category: cat}
		createPost(t, st, &post)
	}

	var categories []string
	require.NoError(t, st.Query(ctx, Posts, Query{Pluck: "category", OrderBy: "category"}, &categories))
	assert.Equal(t, []string{"Tech", "Travel"}, categories)
}

func TestTxRollbackDiscardsWritesAndEvents(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	events, cancel := st.Subscribe(Posts)
	defer cancel()

	post := models.Post{AuthorID: "a1", Title: "t", Content: "c"}
	err := st.Tx(ctx, func(ts DocumentStore) error {
		if err := ts.Create(ctx, Posts, &post); err != nil {
			return err
		}
		return errors.InvalidState("boom")
	})
	require.Error(t, err)

	var got models.Post
	err = st.Get(ctx, Posts, post.ID, &got)
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	select {
	case ev := <-events:
		t.Fatalf("unexpected event after rollback: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTxEventsFlushOnCommit(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	events, cancel := st.Subscribe(Posts)
	defer cancel()

	post := models.Post{AuthorID: "a1", Title: "t", Content: "c"}
	err := st.Tx(ctx, func(ts DocumentStore) error {
		return ts.Create(ctx, Posts, &post)
	})
	require.NoError(t, err)

	select {
	case ev := <-events:
		assert.Equal(t, Posts, ev.Collection)
		assert.Equal(t, EventCreated, ev.Kind)
		assert.Equal(t, post.ID, ev.DocID)
	case <-time.After(time.Second):
		t.Fatal("expected a change event after commit")
	}
}

func TestSubscribeFiltersByCollection(t *testing.T) {
	st := newTestStore(t)

	events, cancel := st.Subscribe(Users)
	defer cancel()

	post := models.Post{AuthorID: "a1", Title: "t", Content: "c"}
	createPost(t, st, &post)

	select {
	case ev := <-events:
		t.Fatalf("user subscriber received post event: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDeleteNotFound(t *testing.T) {
	st := newTestStore(t)
	err := st.Delete(context.Background(), Posts, "missing")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestQueryKeysetResumesAfterPosition(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, id := range []string{"pa", "pb", "pc", "pd"} {
		post := models.Post{ID: id, AuthorID: "a1", Title: id, Content: "c", CreatedAt: created}
		createPost(t, st, &post)
	}

	q := Query{
		OrderBys: []Order{
			{Field: "like_count", Desc: true},
			{Field: "created_at", Desc: true},
			{Field: "id", Desc: true},
		},
		After: Keyset{
			Fields: []string{"like_count", "created_at", "id"},
			Values: []interface{}{0, created, "pc"},
		},
	}
	var got []models.Post
	require.NoError(t, st.Query(ctx, Posts, q, &got))

	// Everything sorts equal except the id tie-break, so only the rows
	// strictly past "pc" remain, in descending id order
	require.Len(t, got, 2)
	assert.Equal(t, "pb", got[0].ID)
	assert.Equal(t, "pa", got[1].ID)
}

func TestAtomicArrayAddConcurrentCallers(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	post := models.Post{AuthorID: "a1", Title: "t", Content: "c"}
	createPost(t, st, &post)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, user := range []string{"u1", "u2"} {
		wg.Add(1)
		go func(i int, user string) {
			defer wg.Done()
			_, errs[i] = st.AtomicArrayAdd(ctx, Posts, post.ID, "likes", user)
		}(i, user)
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	var got models.Post
	require.NoError(t, st.Get(ctx, Posts, post.ID, &got))
	assert.ElementsMatch(t, []string{"u1", "u2"}, []string(got.Likes))
}

func TestBroadcasterCountsDroppedEvents(t *testing.T) {
	b := NewBroadcaster()
	_, cancel := b.Subscribe(Posts)
	defer cancel()

	// Nobody drains the channel, so everything past the buffer drops
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < subscriberBuffer; i++ {
				b.Publish(ChangeEvent{Collection: Posts, DocID: "d", Kind: EventUpdated})
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(3*subscriberBuffer), b.Dropped())
}
