package engagement

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

	"github.com/inkify/engine/internal/identity"
	"github.com/inkify/engine/internal/logger"
	"github.com/inkify/engine/internal/models"
	"github.com/inkify/engine/internal/notify"
	"github.com/inkify/engine/internal/store"
)

func TestMain(m *testing.M) {
	_ = logger.Initialize("error", "")
	os.Exit(m.Run())
}

type fixture struct {
	store  *store.GormStore
	ledger *Ledger
	notify *notify.Service
}

func newFixture(t *testing.T, debounce time.Duration) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Post{}, &models.Notification{}))

	st := store.NewGormStore(db)
	resolver := identity.NewResolver(st, nil, time.Minute)
	notifSvc := notify.NewService(st, 0, nil)
	return &fixture{
		store:  st,
		ledger: NewLedger(st, notifSvc, resolver, nil, debounce),
		notify: notifSvc,
	}
}

func (f *fixture) createUser(t *testing.T, username string) models.User {
	t.Helper()
	u := models.User{Username: username, Following: models.StringArray{}, Followers: models.StringArray{}}
	require.NoError(t, f.store.Create(context.Background(), store.Users, &u))
	return u
}

func (f *fixture) createPost(t *testing.T, author models.User) models.Post {
	t.Helper()
	p := models.Post{
		AuthorID:   author.ID,
		AuthorName: author.Username,
		Title:      "a post",
		Content:    "content",
		Likes:      models.StringArray{},
		ViewedBy:   models.StringArray{},
		Comments:   models.CommentList{},
	}
	require.NoError(t, f.store.Create(context.Background(), store.Posts, &p))
	return p
}

func (f *fixture) getPost(t *testing.T, id string) models.Post {
	t.Helper()
	var p models.Post
	require.NoError(t, f.store.Get(context.Background(), store.Posts, id, &p))
	return p
}

func TestToggleLikeRoundTrip(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()

	author := f.createUser(t, "author")
	fan := f.createUser(t, "fan")
	post := f.createPost(t, author)

	liked, count, err := f.ledger.ToggleLike(ctx, post.ID, fan.ID)
	require.NoError(t, err)
	assert.True(t, liked)
	assert.Equal(t, 1, count)

	got := f.getPost(t, post.ID)
	assert.Equal(t, models.StringArray{fan.ID}, got.Likes)
	assert.Equal(t, 1, got.LikeCount)

	liked, count, err = f.ledger.ToggleLike(ctx, post.ID, fan.ID)
	require.NoError(t, err)
	assert.False(t, liked)
	assert.Equal(t, 0, count)

	got = f.getPost(t, post.ID)
	assert.Empty(t, got.Likes)
	assert.Equal(t, 0, got.LikeCount)
}

func TestToggleLikeNotifiesOnLikeOnly(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()

	author := f.createUser(t, "author")
	fan := f.createUser(t, "fan")
	post := f.createPost(t, author)

	_, _, err := f.ledger.ToggleLike(ctx, post.ID, fan.ID)
	require.NoError(t, err)

	notifs, err := f.notify.List(ctx, author.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, notifs, 1)
	assert.Equal(t, models.NotificationLike, notifs[0].Type)
	assert.Equal(t, "fan", notifs[0].ActorName)
	assert.Equal(t, post.ID, notifs[0].PostID)

	// The unlike transition stays silent
	_, _, err = f.ledger.ToggleLike(ctx, post.ID, fan.ID)
	require.NoError(t, err)

	notifs, err = f.notify.List(ctx, author.ID, 10, 0)
	require.NoError(t, err)
	assert.Len(t, notifs, 1)
}

func TestToggleLikeSelfDoesNotNotify(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()

	author := f.createUser(t, "author")
	post := f.createPost(t, author)

	liked, count, err := f.ledger.ToggleLike(ctx, post.ID, author.ID)
	require.NoError(t, err)
	assert.True(t, liked)
	assert.Equal(t, 1, count)

	notifs, err := f.notify.List(ctx, author.ID, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, notifs)
}

func TestToggleLikeConcurrentUsers(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()

	author := f.createUser(t, "author")
	fan1 := f.createUser(t, "fan1")
	fan2 := f.createUser(t, "fan2")
	post := f.createPost(t, author)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, fan := range []models.User{fan1, fan2} {
		wg.Add(1)
		go func(i int, userID string) {
			defer wg.Done()
			_, _, errs[i] = f.ledger.ToggleLike(ctx, post.ID, userID)
		}(i, fan.ID)
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	got := f.getPost(t, post.ID)
	assert.ElementsMatch(t, []string{fan1.ID, fan2.ID}, []string(got.Likes))
	assert.Equal(t, 2, got.LikeCount)
}

func TestToggleLikeMissingPost(t *testing.T) {
	f := newFixture(t, time.Second)
	_, _, err := f.ledger.ToggleLike(context.Background(), "missing", "u1")
	assert.Error(t, err)
}

func TestToggleSaveRoundTrip(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()

	author := f.createUser(t, "author")
	fan := f.createUser(t, "fan")
	post := f.createPost(t, author)

	saved, err := f.ledger.ToggleSave(ctx, post.ID, fan.ID)
	require.NoError(t, err)
	assert.True(t, saved)

	var got models.User
	require.NoError(t, f.store.Get(ctx, store.Users, fan.ID, &got))
	assert.Equal(t, models.StringArray{post.ID}, got.SavedPosts)

	// The save transition notifies the author; unsaving stays silent
	notifs, err := f.notify.List(ctx, author.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, notifs, 1)
	assert.Equal(t, models.NotificationSave, notifs[0].Type)

	saved, err = f.ledger.ToggleSave(ctx, post.ID, fan.ID)
	require.NoError(t, err)
	assert.False(t, saved)

	require.NoError(t, f.store.Get(ctx, store.Users, fan.ID, &got))
	assert.Empty(t, got.SavedPosts)

	notifs, err = f.notify.List(ctx, author.ID, 10, 0)
	require.NoError(t, err)
	assert.Len(t, notifs, 1)
}

func TestToggleSaveMissingPost(t *testing.T) {
	f := newFixture(t, time.Second)
	fan := f.createUser(t, "fan")

	_, err := f.ledger.ToggleSave(context.Background(), "missing", fan.ID)
	assert.Error(t, err)
}

func TestSharePostNotifiesAuthor(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()

	author := f.createUser(t, "author")
	fan := f.createUser(t, "fan")
	post := f.createPost(t, author)

	require.NoError(t, f.ledger.SharePost(ctx, post.ID, fan.ID))

	notifs, err := f.notify.List(ctx, author.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, notifs, 1)
	assert.Equal(t, models.NotificationShare, notifs[0].Type)
	assert.Equal(t, post.ID, notifs[0].PostID)
}

func TestMarkViewedCountsOncePerViewer(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()

	author := f.createUser(t, "author")
	reader := f.createUser(t, "reader")
	post := f.createPost(t, author)

	counted, err := f.ledger.MarkViewed(ctx, post.ID, reader.ID)
	require.NoError(t, err)
	assert.True(t, counted)

	counted, err = f.ledger.MarkViewed(ctx, post.ID, reader.ID)
	require.NoError(t, err)
	assert.False(t, counted)

	got := f.getPost(t, post.ID)
	assert.Equal(t, 1, got.Views)
	assert.Equal(t, models.StringArray{reader.ID}, got.ViewedBy)
}

func TestRecordViewDebounceCoalesces(t *testing.T) {
	f := newFixture(t, 30*time.Millisecond)

	author := f.createUser(t, "author")
	reader := f.createUser(t, "reader")
	post := f.createPost(t, author)

	// Rapid repeats inside the window collapse into one pending mark
	f.ledger.RecordView(post.ID, reader.ID)
	f.ledger.RecordView(post.ID, reader.ID)
	f.ledger.RecordView(post.ID, reader.ID)
	assert.Equal(t, 1, f.ledger.PendingViews())

	require.Eventually(t, func() bool {
		return f.ledger.PendingViews() == 0
	}, time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		var p models.Post
		if err := f.store.Get(context.Background(), store.Posts, post.ID, &p); err != nil {
			return false
		}
		return p.Views == 1 && len(p.ViewedBy) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestRecordViewIgnoresBlankIDs(t *testing.T) {
	f := newFixture(t, time.Second)
	f.ledger.RecordView("", "reader")
	f.ledger.RecordView("post", "")
	assert.Equal(t, 0, f.ledger.PendingViews())
}
