package database

import (
	"fmt"
	"log"
	"os"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/sahilchouksey/learnhub-api/model"
	"github.com/sahilchouksey/learnhub-api/utils/auth"
)

// Seeder handles database seeding operations
type Seeder struct {
	db *gorm.DB
}

// NewSeeder creates a new seeder instance
func NewSeeder(db *gorm.DB) *Seeder {
	return &Seeder{db: db}
}

// SeedAll runs all seed functions
func (s *Seeder) SeedAll() error {
	log.Println("Starting database seeding...")

	if err := s.SeedAdminUser(); err != nil {
		return fmt.Errorf("failed to seed admin user: %w", err)
	}

	if err := s.SeedBadgeTypes(); err != nil {
		return fmt.Errorf("failed to seed badge types: %w", err)
	}

	if err := s.SeedCourses(); err != nil {
		return fmt.Errorf("failed to seed courses: %w", err)
	}

	log.Println("Database seeding completed successfully!")
	return nil
}

// SeedAdminUser creates the default admin user from ADMIN_EMAIL and
// ADMIN_PASSWORD environment variables.
func (s *Seeder) SeedAdminUser() error {
	var count int64
	if err := s.db.Model(&model.User{}).Where("role = ?", "admin").Count(&count).Error; err != nil {
		return err
	}

	if count > 0 {
		log.Println("Admin user already exists, skipping...")
		return nil
	}

	adminEmail := os.Getenv("ADMIN_EMAIL")
	adminPassword := os.Getenv("ADMIN_PASSWORD")

	if adminEmail == "" || adminPassword == "" {
		log.Println("ADMIN_EMAIL and ADMIN_PASSWORD environment variables not set, skipping admin user creation")
		return nil
	}

	passwordHash, err := auth.HashPassword(adminPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	admin := &model.User{
		Email:        adminEmail,
		PasswordHash: passwordHash,
		Name:         "System Administrator",
		Role:         "admin",
		TokenVersion: 0,
	}

	if err := s.db.Create(admin).Error; err != nil {
		return err
	}

	log.Printf("Created admin user: %s\n", admin.Email)
	return nil
}

// SeedBadgeTypes creates the default badge tiers. Ranges partition the
// non-negative integers with no gaps and no overlaps.
func (s *Seeder) SeedBadgeTypes() error {
	var count int64
	if err := s.db.Model(&model.BadgeType{}).Count(&count).Error; err != nil {
		return err
	}

	if count > 0 {
		log.Println("Badge types already exist, skipping...")
		return nil
	}

	intPtr := func(v int) *int { return &v }

	badges := []model.BadgeType{
		{Name: "Beginner", MinPoints: 0, MaxPoints: intPtr(99), LevelOrder: 1, IsActive: true},
		{Name: "Learner", MinPoints: 100, MaxPoints: intPtr(499), LevelOrder: 2, IsActive: true},
		{Name: "Achiever", MinPoints: 500, MaxPoints: intPtr(1499), LevelOrder: 3, IsActive: true},
		{Name: "Scholar", MinPoints: 1500, MaxPoints: intPtr(4999), LevelOrder: 4, IsActive: true},
		{Name: "Master", MinPoints: 5000, MaxPoints: nil, LevelOrder: 5, IsActive: true},
	}

	if err := s.db.Create(&badges).Error; err != nil {
		return err
	}

	log.Printf("Created %d badge tiers\n", len(badges))
	return nil
}

// SeedCourses creates a few sample courses for development
func (s *Seeder) SeedCourses() error {
	var count int64
	if err := s.db.Model(&model.Course{}).Count(&count).Error; err != nil {
		return err
	}

	if count > 0 {
		log.Println("Courses already exist, skipping...")
		return nil
	}

	courses := []model.Course{
		{
			Title:       "Data Structures and Algorithms",
			Slug:        "dsa-fundamentals",
			Description: "Arrays, linked lists, trees, graphs, and the algorithms that operate on them.",
			Price:       decimal.NewFromFloat(499.00),
			Currency:    "INR",
			Status:      model.CourseStatusPublished,
			IsActive:    true,
		},
		{
			Title:       "Database Systems",
			Slug:        "database-systems",
			Description: "Relational modelling, SQL, transactions, and indexing.",
			Price:       decimal.NewFromFloat(799.00),
			Currency:    "INR",
			Status:      model.CourseStatusPublished,
			IsActive:    true,
		},
		{
			Title:       "Introduction to Programming",
			Slug:        "intro-programming",
			Description: "A free starter course covering programming basics.",
			Price:       decimal.Zero,
			Currency:    "INR",
			Status:      model.CourseStatusPublished,
			IsActive:    true,
		},
	}

	if err := s.db.Create(&courses).Error; err != nil {
		return err
	}

	log.Printf("Created %d sample courses\n", len(courses))
	return nil
}

// RunSeeds is the entry point used by cmd/seed
func RunSeeds(db *gorm.DB) error {
	return NewSeeder(db).SeedAll()
}
