package database

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/inkify/engine/internal/metrics"
	"github.com/inkify/engine/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB holds the database connection
var DB *gorm.DB

// Initialize creates and configures the database connection
func Initialize() error {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		// Fallback to individual components
		host := getEnvOrDefault("DB_HOST", "localhost")
		port := getEnvOrDefault("DB_PORT", "5432")
		user := getEnvOrDefault("DB_USER", "postgres")
		password := getEnvOrDefault("DB_PASSWORD", "")
		dbname := getEnvOrDefault("DB_NAME", "inkify")
		sslmode := getEnvOrDefault("DB_SSLMODE", "disable")

		databaseURL = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			host, port, user, password, dbname, sslmode)
	}

	gormLogger := logger.Default
	if os.Getenv("ENVIRONMENT") == "development" {
		gormLogger = logger.Default.LogMode(logger.Info)
	}

	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		Logger: gormLogger,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	registerMetricsCallbacks(db)

	DB = db
	log.Println("✅ Database connected successfully")

	return nil
}

// registerMetricsCallbacks hooks query timing into gorm's callback chain
func registerMetricsCallbacks(db *gorm.DB) {
	const startKey = "metrics:start"

	before := func(tx *gorm.DB) {
		tx.InstanceSet(startKey, time.Now())
	}
	after := func(queryType string) func(*gorm.DB) {
		return func(tx *gorm.DB) {
			v, ok := tx.InstanceGet(startKey)
			if !ok {
				return
			}
			start, ok := v.(time.Time)
			if !ok {
				return
			}
			table := tx.Statement.Table
			if table == "" {
				table = "unknown"
			}
			// ErrRecordNotFound is an expected outcome, not a failure
			status := "success"
			if tx.Error != nil && !errors.Is(tx.Error, gorm.ErrRecordNotFound) {
				status = "error"
			}
			m := metrics.Get()
			m.DatabaseQueryDuration.WithLabelValues(queryType, table).Observe(time.Since(start).Seconds())
			m.DatabaseQueriesTotal.WithLabelValues(queryType, table, status).Inc()
		}
	}

	_ = db.Callback().Query().Before("gorm:query").Register("metrics:before_query", before)
	_ = db.Callback().Query().After("gorm:query").Register("metrics:after_query", after("query"))
	_ = db.Callback().Create().Before("gorm:create").Register("metrics:before_create", before)
	_ = db.Callback().Create().After("gorm:create").Register("metrics:after_create", after("create"))
	_ = db.Callback().Update().Before("gorm:update").Register("metrics:before_update", before)
	_ = db.Callback().Update().After("gorm:update").Register("metrics:after_update", after("update"))
	_ = db.Callback().Delete().Before("gorm:delete").Register("metrics:before_delete", before)
	_ = db.Callback().Delete().After("gorm:delete").Register("metrics:after_delete", after("delete"))
	_ = db.Callback().Row().Before("gorm:row").Register("metrics:before_row", before)
	_ = db.Callback().Row().After("gorm:row").Register("metrics:after_row", after("row"))
	_ = db.Callback().Raw().Before("gorm:raw").Register("metrics:before_raw", before)
	_ = db.Callback().Raw().After("gorm:raw").Register("metrics:after_raw", after("raw"))
}

// Migrate runs auto-migration for all models
func Migrate() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	if err := DB.AutoMigrate(
		&models.User{},
		&models.Post{},
		&models.Notification{},
	); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := createIndexes(); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	log.Println("✅ Database migrations completed")
	return nil
}

// createIndexes creates performance indexes
func createIndexes() error {
	// Users
	DB.Exec("CREATE INDEX IF NOT EXISTS idx_users_username_lower ON users (LOWER(username))")

	// Posts: feed queries sort on these in both scopes
	DB.Exec("CREATE INDEX IF NOT EXISTS idx_posts_author_created ON posts (author_id, created_at DESC)")
	DB.Exec("CREATE INDEX IF NOT EXISTS idx_posts_created ON posts (created_at DESC)")
	DB.Exec("CREATE INDEX IF NOT EXISTS idx_posts_like_count ON posts (like_count DESC, created_at DESC)")
	DB.Exec("CREATE INDEX IF NOT EXISTS idx_posts_comment_count ON posts (comment_count DESC, created_at DESC)")
	DB.Exec("CREATE INDEX IF NOT EXISTS idx_posts_category_created ON posts (category, created_at DESC)")

	// Notifications: list and trim both walk recipient+created
	DB.Exec("CREATE INDEX IF NOT EXISTS idx_notifications_recipient_created ON notifications (recipient_id, created_at DESC)")
	DB.Exec("CREATE INDEX IF NOT EXISTS idx_notifications_recipient_unread ON notifications (recipient_id) WHERE read = false")

	return nil
}

// Close closes the database connection
func Close() error {
	if DB == nil {
		return nil
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}

// Health checks database connectivity
func Health() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}

	metrics.Get().DatabaseConnectionsOpen.WithLabelValues("postgres").
		Set(float64(sqlDB.Stats().OpenConnections))

	return sqlDB.Ping()
}

// getEnvOrDefault returns environment variable or default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
