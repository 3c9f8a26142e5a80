package database

import (
	"log"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"choraid-server/models"
)

// DefaultCategories is the catalog created by the seed command
var DefaultCategories = []models.Category{
	{Name: "Plumbing", Slug: "plumbing", Description: "Leaks, pipes, water heaters and fixtures", Icon: "wrench", SortOrder: 1},
	{Name: "Electrical", Slug: "electrical", Description: "Wiring, outlets, lighting and panels", Icon: "bolt", SortOrder: 2},
	{Name: "Cleaning", Slug: "cleaning", Description: "Home and office cleaning", Icon: "sparkles", SortOrder: 3},
	{Name: "Painting", Slug: "painting", Description: "Interior and exterior painting", Icon: "brush", SortOrder: 4},
	{Name: "Carpentry", Slug: "carpentry", Description: "Furniture assembly, doors and woodwork", Icon: "hammer", SortOrder: 5},
	{Name: "Moving", Slug: "moving", Description: "Packing, loading and transport", Icon: "truck", SortOrder: 6},
	{Name: "Gardening", Slug: "gardening", Description: "Lawn care, planting and trimming", Icon: "leaf", SortOrder: 7},
	{Name: "Appliance Repair", Slug: "appliance-repair", Description: "Washers, fridges, ovens and AC units", Icon: "plug", SortOrder: 8},
	{Name: "Handyman", Slug: "handyman", Description: "Small repairs and odd jobs", Icon: "toolbox", SortOrder: 9},
}

// SeedCategories inserts the default categories, skipping slugs that already exist
func SeedCategories(db *gorm.DB) (int64, error) {
	categories := make([]models.Category, len(DefaultCategories))
	copy(categories, DefaultCategories)
	for i := range categories {
		categories[i].IsActive = true
	}

	result := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&categories)
	if result.Error != nil {
		log.Printf("❌ Failed to seed categories: %v", result.Error)
		return 0, result.Error
	}

	log.Printf("✅ Seeded %d categories", result.RowsAffected)
	return result.RowsAffected, nil
}
