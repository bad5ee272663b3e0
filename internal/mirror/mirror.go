// Package mirror keeps a best-effort relational copy of artifact metadata.
// The JSON file store remains authoritative; the mirror exists for external
// reporting queries and is written after the fact, with failures logged and
// swallowed rather than surfaced to users.
package mirror

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"promptcanvas/internal/config"
	"promptcanvas/internal/model"
)

// Artifact is the relational projection of a persisted artifact record.
type Artifact struct {
	ID             string    `gorm:"type:varchar(64);primaryKey"`
	Owner          string    `gorm:"type:varchar(255);index;not null"`
	Prompt         string    `gorm:"type:text"`
	Model          string    `gorm:"type:varchar(255)"`
	Width          int       `gorm:"not null"`
	Height         int       `gorm:"not null"`
	FileURL        string    `gorm:"type:text"`
	FileSize       int64     `gorm:"default:0"`
	GenerationTime float64   `gorm:"default:0"`
	IsFavorite     bool      `gorm:"default:false;not null"`
	CreatedAt      time.Time `gorm:"autoCreateTime"`
}

// Service defines the mirror operations the HTTP layer depends on. This
// allows for mocking in tests.
type Service interface {
	SaveArtifact(record model.Artifact) error
	SetFavorite(id, owner string, favorite bool) error
	DeleteArtifact(id, owner string) error
	CountArtifacts() (int64, error)
}

type gormService struct {
	db *gorm.DB
}

// NewService opens the configured database and migrates the schema.
func NewService(cfg config.DatabaseConfig) (Service, error) {
	var dialector gorm.Dialector
	switch cfg.Type {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&Artifact{}); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate database: %w", err)
	}

	return &gormService{db: db}, nil
}

func (s *gormService) SaveArtifact(record model.Artifact) error {
	createdAt, err := time.Parse(time.RFC3339, record.CreatedAt)
	if err != nil {
		createdAt = time.Now().UTC()
	}

	row := Artifact{
		ID:             record.ID,
		Owner:          record.Owner,
		Prompt:         record.Prompt,
		Model:          record.Model,
		Width:          record.Width,
		Height:         record.Height,
		FileURL:        record.FileURL,
		FileSize:       record.FileSize,
		GenerationTime: record.GenerationTime,
		IsFavorite:     record.IsFavorite,
		CreatedAt:      createdAt,
	}
	if err := s.db.Create(&row).Error; err != nil {
		return fmt.Errorf("failed to mirror artifact %s: %w", record.ID, err)
	}
	return nil
}

func (s *gormService) SetFavorite(id, owner string, favorite bool) error {
	result := s.db.Model(&Artifact{}).
		Where("id = ? AND owner = ?", id, owner).
		Update("is_favorite", favorite)
	if result.Error != nil {
		return fmt.Errorf("failed to mirror favorite update for %s: %w", id, result.Error)
	}
	// Zero rows is fine: the mirror may lag the authoritative store.
	return nil
}

func (s *gormService) DeleteArtifact(id, owner string) error {
	result := s.db.Where("id = ? AND owner = ?", id, owner).Delete(&Artifact{})
	if result.Error != nil {
		return fmt.Errorf("failed to mirror delete for %s: %w", id, result.Error)
	}
	return nil
}

func (s *gormService) CountArtifacts() (int64, error) {
	var count int64
	if err := s.db.Model(&Artifact{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count mirrored artifacts: %w", err)
	}
	return count, nil
}
