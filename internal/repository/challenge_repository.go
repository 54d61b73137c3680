package repository

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/stakepact/stakepact/internal/models"
)

// ErrChallengeNotFound is returned when a challenge record does not exist.
var ErrChallengeNotFound = errors.New("challenge not found")

// ChallengeRepository handles challenge-related database operations.
type ChallengeRepository struct {
	db *DB
}

// NewChallengeRepository creates a new challenge repository.
func NewChallengeRepository(db *DB) *ChallengeRepository {
	return &ChallengeRepository{db: db}
}

// Create creates a new challenge with its participants.
func (r *ChallengeRepository) Create(challenge *models.Challenge) error {
	return r.db.Create(challenge).Error
}

// GetByID retrieves a challenge with participants and winners preloaded.
func (r *ChallengeRepository) GetByID(id uint) (*models.Challenge, error) {
	var challenge models.Challenge
	err := r.db.
		Preload("Participants").
		Preload("Winners").
		First(&challenge, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrChallengeNotFound
	}
	if err != nil {
		return nil, err
	}
	return &challenge, nil
}

// Update persists all fields of the challenge record.
func (r *ChallengeRepository) Update(challenge *models.Challenge) error {
	return r.db.Save(challenge).Error
}

// ListExpiredActive retrieves active challenges whose end date has passed.
func (r *ChallengeRepository) ListExpiredActive(now time.Time) ([]models.Challenge, error) {
	var challenges []models.Challenge
	err := r.db.
		Preload("Participants").
		Where("status = ? AND end_date < ?", models.StatusActive, now).
		Order("end_date ASC").
		Find(&challenges).Error
	return challenges, err
}

// UpdateParticipant persists a single participant record.
func (r *ChallengeRepository) UpdateParticipant(p *models.Participant) error {
	return r.db.Save(p).Error
}
