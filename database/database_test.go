package database

import (
	"testing"

	"gorm.io/gorm/logger"

	"choraid-server/config"
	"choraid-server/models"
)

func TestSeedCategoriesIsIdempotent(t *testing.T) {
	db, err := Open(config.DatabaseConfig{Driver: "sqlite", URL: ":memory:", LogLevel: "silent"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer Close(db)
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	n, err := SeedCategories(db)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if n != int64(len(DefaultCategories)) {
		t.Fatalf("seeded %d, want %d", n, len(DefaultCategories))
	}
	if _, err := SeedCategories(db); err != nil {
		t.Fatalf("second seed: %v", err)
	}

	var count int64
	db.Model(&models.Category{}).Count(&count)
	if count != int64(len(DefaultCategories)) {
		t.Fatalf("categories = %d after reseeding", count)
	}
	if DefaultCategories[0].IsActive {
		t.Fatal("seeding must not mutate DefaultCategories")
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open(config.DatabaseConfig{Driver: "mysql"}); err == nil {
		t.Fatal("expected an error")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]logger.LogLevel{
		"SILENT":  logger.Silent,
		"error":   logger.Error,
		"info":    logger.Info,
		"":        logger.Warn,
		"verbose": logger.Warn,
	}
	for in, want := range tests {
		if got := parseLogLevel(in); got != want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
