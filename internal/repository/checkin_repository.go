package repository

import (
	"time"

	"github.com/stakepact/stakepact/internal/models"
)

// CheckInRepository handles check-in database operations.
type CheckInRepository struct {
	db *DB
}

// NewCheckInRepository creates a new check-in repository.
func NewCheckInRepository(db *DB) *CheckInRepository {
	return &CheckInRepository{db: db}
}

// Create records a check-in.
func (r *CheckInRepository) Create(checkIn *models.CheckIn) error {
	return r.db.Create(checkIn).Error
}

// CountVerified returns the number of verified check-ins for a challenge.
func (r *CheckInRepository) CountVerified(challengeID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.CheckIn{}).
		Where("challenge_id = ? AND verified = ?", challengeID, true).
		Count(&count).Error
	return count, err
}

// CountVerifiedByUser returns the number of verified check-ins one user made
// against a challenge.
func (r *CheckInRepository) CountVerifiedByUser(challengeID, userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.CheckIn{}).
		Where("challenge_id = ? AND user_id = ? AND verified = ?", challengeID, userID, true).
		Count(&count).Error
	return count, err
}

// ListRecentByUser retrieves the user's check-ins since the given time,
// newest first.
func (r *CheckInRepository) ListRecentByUser(userID uint, since time.Time) ([]models.CheckIn, error) {
	var checkIns []models.CheckIn
	err := r.db.
		Where("user_id = ? AND checked_at >= ?", userID, since).
		Order("checked_at DESC").
		Find(&checkIns).Error
	return checkIns, err
}

// LatestByUser returns the user's most recent check-in, or nil if none exist.
func (r *CheckInRepository) LatestByUser(userID uint) (*models.CheckIn, error) {
	var checkIns []models.CheckIn
	err := r.db.
		Where("user_id = ?", userID).
		Order("checked_at DESC").
		Limit(1).
		Find(&checkIns).Error
	if err != nil {
		return nil, err
	}
	if len(checkIns) == 0 {
		return nil, nil
	}
	return &checkIns[0], nil
}
