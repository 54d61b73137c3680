package repository

import (
	"time"

	"gorm.io/gorm/clause"

	"github.com/stakepact/stakepact/internal/models"
)

// BadgeRepository handles badge-related database operations.
type BadgeRepository struct {
	db *DB
}

// NewBadgeRepository creates a new badge repository.
func NewBadgeRepository(db *DB) *BadgeRepository {
	return &BadgeRepository{db: db}
}

// Create creates a new badge in the database.
func (r *BadgeRepository) Create(badge *models.Badge) error {
	return r.db.Create(badge).Error
}

// Upsert inserts the badge or updates an existing one by name. Used by the
// catalog seeder at startup.
func (r *BadgeRepository) Upsert(badge *models.Badge) error {
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"description", "category", "rarity",
			"criteria_type", "criteria_value",
			"reward_points", "reward_freezes", "active",
		}),
	}).Create(badge).Error
}

// GetAll retrieves all badges from the database.
func (r *BadgeRepository) GetAll() ([]models.Badge, error) {
	var badges []models.Badge
	err := r.db.Order("created_at ASC").Find(&badges).Error
	return badges, err
}

// GetActive retrieves all active badges.
func (r *BadgeRepository) GetActive() ([]models.Badge, error) {
	var badges []models.Badge
	err := r.db.Where("active = ?", true).Order("id ASC").Find(&badges).Error
	return badges, err
}

// HasUserEarnedBadge checks if a user has earned a specific badge.
func (r *BadgeRepository) HasUserEarnedBadge(userID, badgeID uint) (bool, error) {
	var count int64
	err := r.db.Model(&models.Achievement{}).
		Where("user_id = ? AND badge_id = ?", userID, badgeID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Award records a badge as earned by a user. Awarding an already-earned
// badge is a no-op.
func (r *BadgeRepository) Award(userID, badgeID uint, earnedAt time.Time) error {
	earned, err := r.HasUserEarnedBadge(userID, badgeID)
	if err != nil {
		return err
	}
	if earned {
		return nil
	}

	achievement := &models.Achievement{
		UserID:   userID,
		BadgeID:  badgeID,
		EarnedAt: earnedAt,
		Progress: 100,
	}
	return r.db.Create(achievement).Error
}

// GetUserAchievements retrieves all badges earned by a user with badge
// details preloaded.
func (r *BadgeRepository) GetUserAchievements(userID uint) ([]models.Achievement, error) {
	var achievements []models.Achievement
	err := r.db.
		Where("user_id = ?", userID).
		Preload("Badge").
		Order("earned_at DESC").
		Find(&achievements).Error
	return achievements, err
}

// GetUserBadgeCount returns the total number of badges a user has earned.
func (r *BadgeRepository) GetUserBadgeCount(userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Achievement{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	return count, err
}

// GetBadgeHoldersCount returns the number of users who have earned a badge.
func (r *BadgeRepository) GetBadgeHoldersCount(badgeID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Achievement{}).
		Where("badge_id = ?", badgeID).
		Count(&count).Error
	return count, err
}
