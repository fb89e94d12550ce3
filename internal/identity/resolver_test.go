package identity

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

	"github.com/inkify/engine/internal/logger"
	"github.com/inkify/engine/internal/models"
	"github.com/inkify/engine/internal/store"
)

func TestMain(m *testing.M) {
	_ = logger.Initialize("error", "")
	os.Exit(m.Run())
}

func newTestStore(t *testing.T) *store.GormStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	require.NoError(t, db.AutoMigrate(&models.User{}))
	return store.NewGormStore(db)
}

func createUser(t *testing.T, st *store.GormStore, username string) models.User {
	t.Helper()
	u := models.User{
		Username:  username,
		Following: models.StringArray{},
		Followers: models.StringArray{},
	}
	require.NoError(t, st.Create(context.Background(), store.Users, &u))
	return u
}

func TestResolveKnownAndUnknown(t *testing.T) {
	st := newTestStore(t)
	r := NewResolver(st, nil, time.Minute)

	alice := createUser(t, st, "alice")
	bob := createUser(t, st, "bob")

	names, err := r.Resolve(context.Background(), []string{alice.ID, bob.ID, "ghost"})
	require.NoError(t, err)
	assert.Equal(t, "alice", names[alice.ID])
	assert.Equal(t, "bob", names[bob.ID])
	assert.Equal(t, models.AnonymousName, names["ghost"])
	assert.Len(t, names, 3)
}

func TestResolveEmptyAndDuplicateIDs(t *testing.T) {
	st := newTestStore(t)
	r := NewResolver(st, nil, time.Minute)

	alice := createUser(t, st, "alice")

	names, err := r.Resolve(context.Background(), []string{alice.ID, alice.ID, ""})
	require.NoError(t, err)
	assert.Len(t, names, 1)
	assert.Equal(t, "alice", names[alice.ID])

	names, err = r.Resolve(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestResolveManyChunksLookups(t *testing.T) {
	st := newTestStore(t)
	r := NewResolver(st, nil, time.Minute)

	ids := make([]string, 0, ChunkSize*2+5)
	for i := 0; i < ChunkSize*2+5; i++ {
		u := createUser(t, st, fmt.Sprintf("writer%03d", i))
		ids = append(ids, u.ID)
	}

	names, err := r.Resolve(context.Background(), ids)
	require.NoError(t, err)
	require.Len(t, names, len(ids))
	assert.Equal(t, "writer000", names[ids[0]])
	assert.Equal(t, fmt.Sprintf("writer%03d", len(ids)-1), names[ids[len(ids)-1]])
}

func TestResolveServesFromCacheUntilInvalidated(t *testing.T) {
	st := newTestStore(t)
	r := NewResolver(st, nil, time.Minute)
	ctx := context.Background()

	alice := createUser(t, st, "alice")

	name, err := r.ResolveOne(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", name)

	// Rename behind the resolver's back; the cached entry still answers
	require.NoError(t, st.Update(ctx, store.Users, alice.ID, map[string]interface{}{"username": "alicia"}))

	name, err = r.ResolveOne(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", name)

	r.Invalidate(ctx, alice.ID)

	name, err = r.ResolveOne(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "alicia", name)
}

func TestResolveCacheExpires(t *testing.T) {
	st := newTestStore(t)
	r := NewResolver(st, nil, 10*time.Millisecond)
	ctx := context.Background()

	alice := createUser(t, st, "alice")
	_, err := r.ResolveOne(ctx, alice.ID)
	require.NoError(t, err)

	require.NoError(t, st.Update(ctx, store.Users, alice.ID, map[string]interface{}{"username": "alicia"}))
	time.Sleep(30 * time.Millisecond)

	name, err := r.ResolveOne(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "alicia", name)
}

func TestChunk(t *testing.T) {
	tests := []struct {
		name string
		ids  []string
		size int
		want [][]string
	}{
		{name: "empty", ids: nil, size: 3, want: nil},
		{name: "zero size", ids: []string{"a"}, size: 0, want: nil},
		{name: "single chunk", ids: []string{"a", "b"}, size: 3, want: [][]string{{"a", "b"}}},
		{name: "exact multiple", ids: []string{"a", "b", "c", "d"}, size: 2, want: [][]string{{"a", "b"}, {"c", "d"}}},
		{name: "remainder", ids: []string{"a", "b", "c"}, size: 2, want: [][]string{{"a", "b"}, {"c"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Chunk(tt.ids, tt.size))
		})
	}
}
