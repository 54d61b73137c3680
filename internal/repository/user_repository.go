package repository

import (
	"errors"

	"gorm.io/gorm"

	"github.com/stakepact/stakepact/internal/models"
)

// ErrUserNotFound is returned when a user record does not exist.
var ErrUserNotFound = errors.New("user not found")

// UserRepository handles user-related database operations.
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new user repository.
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create creates a new user in the database.
func (r *UserRepository) Create(user *models.User) error {
	return r.db.Create(user).Error
}

// GetByID retrieves a user by their ID.
func (r *UserRepository) GetByID(id uint) (*models.User, error) {
	var user models.User
	err := r.db.First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByUsername retrieves a user by their username.
func (r *UserRepository) GetByUsername(username string) (*models.User, error) {
	var user models.User
	err := r.db.Where("username = ?", username).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Update persists all fields of the user record.
func (r *UserRepository) Update(user *models.User) error {
	return r.db.Save(user).Error
}

// List retrieves all users ordered by id.
func (r *UserRepository) List() ([]models.User, error) {
	var users []models.User
	err := r.db.Order("id ASC").Find(&users).Error
	return users, err
}

// ListTopByPoints retrieves users ordered by points descending.
func (r *UserRepository) ListTopByPoints(limit int) ([]models.User, error) {
	var users []models.User
	err := r.db.Order("points DESC").Limit(limit).Find(&users).Error
	return users, err
}

// ListTopByStreak retrieves users ordered by current streak descending.
func (r *UserRepository) ListTopByStreak(limit int) ([]models.User, error) {
	var users []models.User
	err := r.db.Order("current_streak DESC").Limit(limit).Find(&users).Error
	return users, err
}

// ListTopByCompleted retrieves users ordered by completed challenges descending.
func (r *UserRepository) ListTopByCompleted(limit int) ([]models.User, error) {
	var users []models.User
	err := r.db.Order("completed_challenges DESC").Limit(limit).Find(&users).Error
	return users, err
}

// CountGroupParticipations returns the number of duel/group challenges the
// user has joined.
func (r *UserRepository) CountGroupParticipations(userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Participant{}).
		Where("user_id = ? AND status = ?", userID, models.ParticipantJoined).
		Count(&count).Error
	return count, err
}
