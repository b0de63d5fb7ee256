// internal/database/postgres.go
package database

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"signaling-service/internal/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	db    *gorm.DB
	dbMux sync.RWMutex
)

// InitPostgres initializes the PostgreSQL connection. Call history is an
// auxiliary concern, so a failed connection only returns an error; the
// service keeps running without it (EKS pod survival).
func InitPostgres() (*gorm.DB, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	logLevel := logger.Silent
	if os.Getenv("ENV") == "dev" {
		logLevel = logger.Info
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var err error
	var conn *gorm.DB

	done := make(chan bool, 1)
	go func() {
		conn, err = gorm.Open(postgres.Open(dsn), gormConfig)
		done <- true
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("database connection timeout")
	case <-done:
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := autoMigrate(conn); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	dbMux.Lock()
	db = conn
	dbMux.Unlock()

	log.Println("✅ PostgreSQL connected and migrated successfully")
	return conn, nil
}

// InitPostgresAsync keeps retrying the connection in the background
// without blocking startup.
func InitPostgresAsync(retryInterval time.Duration) {
	go func() {
		for {
			if IsDBReady() {
				return
			}

			_, err := InitPostgres()
			if err != nil {
				log.Printf("⚠️  DB connection failed, retrying in %v: %v\n", retryInterval, err)
				time.Sleep(retryInterval)
				continue
			}
			return
		}
	}()
}

func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.CallHistory{},
	)
}

// GetDB returns the database instance (nil if not connected).
func GetDB() *gorm.DB {
	dbMux.RLock()
	defer dbMux.RUnlock()
	return db
}

// IsDBReady returns whether DB is connected.
func IsDBReady() bool {
	dbMux.RLock()
	defer dbMux.RUnlock()
	return db != nil
}
