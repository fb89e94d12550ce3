package seed

import (
	"fmt"
	"log"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"gorm.io/gorm"

	"github.com/inkify/engine/internal/models"
)

// Categories used by the dev seeder. The engine itself derives the category
// list from the posts table, so this is just a plausible spread.
var seedCategories = []string{
	"Technology", "Travel", "Food", "Lifestyle", "Health",
	"Finance", "Education", "Entertainment", "Sports", "Science",
}

// Seeder populates the database with fake users, posts, threads and
// engagement so feeds and notifications have something to show.
type Seeder struct {
	db *gorm.DB
}

func NewSeeder(db *gorm.DB) *Seeder {
	gofakeit.Seed(time.Now().UnixNano())
	return &Seeder{db: db}
}

// SeedDev fills a development database with realistic data.
func (s *Seeder) SeedDev() error {
	users, err := s.seedUsers(25)
	if err != nil {
		return fmt.Errorf("seeding users: %w", err)
	}
	log.Printf("created %d users", len(users))

	if err := s.seedFollows(users); err != nil {
		return fmt.Errorf("seeding follows: %w", err)
	}

	posts, err := s.seedPosts(users, 80)
	if err != nil {
		return fmt.Errorf("seeding posts: %w", err)
	}
	log.Printf("created %d posts", len(posts))

	if err := s.seedEngagement(posts, users); err != nil {
		return fmt.Errorf("seeding engagement: %w", err)
	}
	if err := s.seedNotifications(posts, users); err != nil {
		return fmt.Errorf("seeding notifications: %w", err)
	}
	return nil
}

// SeedTest creates a small fixed cast for integration tests.
func (s *Seeder) SeedTest() error {
	names := []string{"alice", "bob", "charlie", "diana", "eve"}
	users := make([]models.User, 0, len(names))
	for _, name := range names {
		u := models.User{
			Username:  name,
			Bio:       fmt.Sprintf("Test account for %s", name),
			Following: models.StringArray{},
			Followers: models.StringArray{},
		}
		if err := s.db.Create(&u).Error; err != nil {
			return err
		}
		users = append(users, u)
	}

	// alice follows bob, bob follows alice back
	if err := s.follow(&users[0], &users[1]); err != nil {
		return err
	}
	if err := s.follow(&users[1], &users[0]); err != nil {
		return err
	}

	for i := range users[:3] {
		post := models.Post{
			AuthorID:   users[i].ID,
			AuthorName: users[i].Username,
			Title:      fmt.Sprintf("Hello from %s", users[i].Username),
			Content:    gofakeit.Paragraph(2, 4, 12, " "),
			Category:   seedCategories[i%len(seedCategories)],
			Likes:      models.StringArray{},
			ViewedBy:   models.StringArray{},
			Comments:   models.CommentList{},
		}
		if err := s.db.Create(&post).Error; err != nil {
			return err
		}
	}
	return nil
}

// Clean wipes all rows from the seeded tables. Destructive.
func (s *Seeder) Clean() error {
	for _, model := range []interface{}{
		&models.Notification{}, &models.Post{}, &models.User{},
	} {
		if err := s.db.Session(&gorm.Session{AllowGlobalUpdate: true}).
			Unscoped().Delete(model).Error; err != nil {
			return err
		}
	}
	return nil
}

func (s *Seeder) seedUsers(n int) ([]models.User, error) {
	users := make([]models.User, 0, n)
	for i := 0; i < n; i++ {
		u := models.User{
			Username:  fmt.Sprintf("%s%d", gofakeit.Username(), i),
			Bio:       gofakeit.Sentence(10),
			Following: models.StringArray{},
			Followers: models.StringArray{},
		}
		if err := s.db.Create(&u).Error; err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}

// seedFollows gives each user a handful of random follows, keeping both
// sides of the edge in sync.
func (s *Seeder) seedFollows(users []models.User) error {
	for i := range users {
		n := gofakeit.Number(2, 8)
		for j := 0; j < n; j++ {
			target := &users[gofakeit.Number(0, len(users)-1)]
			if target.ID == users[i].ID {
				continue
			}
			if err := s.follow(&users[i], target); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Seeder) follow(follower, target *models.User) error {
	for _, id := range follower.Following {
		if id == target.ID {
			return nil
		}
	}
	follower.Following = append(follower.Following, target.ID)
	target.Followers = append(target.Followers, follower.ID)
	if err := s.db.Model(follower).Update("following", follower.Following).Error; err != nil {
		return err
	}
	return s.db.Model(target).Update("followers", target.Followers).Error
}

func (s *Seeder) seedPosts(users []models.User, n int) ([]models.Post, error) {
	posts := make([]models.Post, 0, n)
	for i := 0; i < n; i++ {
		author := users[gofakeit.Number(0, len(users)-1)]
		createdAt := time.Now().Add(-time.Duration(gofakeit.Number(0, 60*24*30)) * time.Minute)
		post := models.Post{
			AuthorID:   author.ID,
			AuthorName: author.Username,
			Title:      gofakeit.Sentence(gofakeit.Number(4, 9)),
			Content:    gofakeit.Paragraph(gofakeit.Number(2, 6), 4, 14, "\n\n"),
			Category:   seedCategories[gofakeit.Number(0, len(seedCategories)-1)],
			Likes:      models.StringArray{},
			ViewedBy:   models.StringArray{},
			Comments:   s.fakeThread(users, createdAt),
			CreatedAt:  createdAt,
		}
		post.CommentCount = len(post.Comments)
		if err := s.db.Create(&post).Error; err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, nil
}

// fakeThread builds an embedded comment array with a few roots and replies.
// Replies point at their root through the root's creation timestamp.
func (s *Seeder) fakeThread(users []models.User, postCreated time.Time) models.CommentList {
	comments := models.CommentList{}
	roots := gofakeit.Number(0, 4)
	ts := postCreated.UnixMilli()
	for i := 0; i < roots; i++ {
		author := users[gofakeit.Number(0, len(users)-1)]
		ts += int64(gofakeit.Number(60_000, 3_600_000))
		root := models.Comment{
			AuthorID:   author.ID,
			AuthorName: author.Username,
			Text:       gofakeit.Sentence(gofakeit.Number(5, 18)),
			CreatedAt:  ts,
		}
		comments = append(comments, root)

		replies := gofakeit.Number(0, 3)
		for j := 0; j < replies; j++ {
			replier := users[gofakeit.Number(0, len(users)-1)]
			ts += int64(gofakeit.Number(60_000, 1_800_000))
			parentRef := root.CreatedAt
			comments = append(comments, models.Comment{
				AuthorID:   replier.ID,
				AuthorName: replier.Username,
				Text:       gofakeit.Sentence(gofakeit.Number(3, 12)),
				CreatedAt:  ts,
				IsReply:    true,
				ParentRef:  &parentRef,
				RepliedTo: &models.RepliedTo{
					AuthorID:   root.AuthorID,
					AuthorName: root.AuthorName,
				},
			})
		}
	}
	return comments
}

// seedEngagement sprinkles likes and views over the posts, keeping the
// denormalized counters in lockstep with the arrays.
func (s *Seeder) seedEngagement(posts []models.Post, users []models.User) error {
	for i := range posts {
		post := &posts[i]
		likers := pickUsers(users, gofakeit.Number(0, 12))
		viewers := pickUsers(users, gofakeit.Number(len(likers), 20))
		for id := range likers {
			post.Likes = append(post.Likes, id)
			viewers[id] = struct{}{} // likers have seen the post
		}
		for id := range viewers {
			post.ViewedBy = append(post.ViewedBy, id)
		}
		post.LikeCount = len(post.Likes)
		post.Views = len(post.ViewedBy)

		err := s.db.Model(post).Updates(map[string]interface{}{
			"likes":      post.Likes,
			"viewed_by":  post.ViewedBy,
			"like_count": post.LikeCount,
			"views":      post.Views,
		}).Error
		if err != nil {
			return err
		}
	}
	return nil
}

// seedNotifications writes a like notification for a sample of posts so
// badge counts are non-zero out of the box.
func (s *Seeder) seedNotifications(posts []models.Post, users []models.User) error {
	count := 0
	for i := range posts {
		post := &posts[i]
		if len(post.Likes) == 0 || gofakeit.Number(0, 2) != 0 {
			continue
		}
		actorID := post.Likes[0]
		if actorID == post.AuthorID {
			continue
		}
		n := models.Notification{
			RecipientID: post.AuthorID,
			Type:        models.NotificationLike,
			ActorID:     actorID,
			ActorName:   usernameOf(users, actorID),
			PostID:      post.ID,
			PostTitle:   post.Title,
			CreatedAt:   post.CreatedAt.Add(time.Hour),
		}
		if err := s.db.Create(&n).Error; err != nil {
			return err
		}
		count++
	}
	log.Printf("created %d notifications", count)
	return nil
}

func pickUsers(users []models.User, n int) map[string]struct{} {
	picked := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		picked[users[gofakeit.Number(0, len(users)-1)].ID] = struct{}{}
	}
	return picked
}

func usernameOf(users []models.User, id string) string {
	for _, u := range users {
		if u.ID == id {
			return u.Username
		}
	}
	return models.AnonymousName
}
