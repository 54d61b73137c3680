// Package ledger is the single write path for user balances, points and
// lifetime stats. All other components mutate user money state through it.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/stakepact/stakepact/internal/models"
	"github.com/stakepact/stakepact/internal/repository"
	"github.com/stakepact/stakepact/pkg/logger"
)

// Sentinel errors for ledger operations.
var (
	// ErrNotFound is returned when the user no longer exists.
	ErrNotFound = errors.New("user not found")
	// ErrInvalidDelta is returned when applying the delta would drive
	// points, balance or freeze tokens negative.
	ErrInvalidDelta = errors.New("delta would violate ledger invariants")
)

// Delta describes the changes to apply to one user record. Zero-valued
// fields are left untouched. Callers compute amounts; the ledger only
// applies them atomically.
type Delta struct {
	Points       int
	Money        decimal.Decimal
	FreezeTokens int
	FreezesUsed  int

	CompletedChallenges int
	FailedChallenges    int
	Earned              decimal.Decimal
	Donated             decimal.Decimal
}

// Service applies deltas to user records in single transactions.
type Service struct {
	db  *repository.DB
	log *logger.Logger
}

// NewService creates a new ledger service.
func NewService(db *repository.DB, log *logger.Logger) *Service {
	return &Service{db: db, log: log.Component("ledger")}
}

// ApplyDelta applies all deltas to one user record in a single transaction.
// No partial application is observable.
func (s *Service) ApplyDelta(ctx context.Context, userID uint, delta Delta) (*models.User, error) {
	var updated *models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := applyIn(tx, userID, delta)
		if err != nil {
			return err
		}
		updated = user
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ApplyDeltaIn applies the delta inside an existing transaction. Callers
// that need the user credit and other writes to commit together (challenge
// settlement, prize distribution) use this form.
func (s *Service) ApplyDeltaIn(tx *gorm.DB, userID uint, delta Delta) (*models.User, error) {
	return applyIn(tx, userID, delta)
}

func applyIn(tx *gorm.DB, userID uint, delta Delta) (*models.User, error) {
	var user models.User
	err := tx.First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	user.Points += delta.Points
	user.Balance = user.Balance.Add(delta.Money)
	user.FreezesAvailable += delta.FreezeTokens
	user.FreezesUsed += delta.FreezesUsed
	user.TotalEarned = user.TotalEarned.Add(delta.Earned)
	user.TotalDonated = user.TotalDonated.Add(delta.Donated)

	if delta.CompletedChallenges != 0 || delta.FailedChallenges != 0 {
		user.CompletedChallenges += delta.CompletedChallenges
		user.FailedChallenges += delta.FailedChallenges
		user.RecalculateSuccessRate()
	}

	if user.Points < 0 || user.FreezesAvailable < 0 || user.Balance.IsNegative() {
		return nil, fmt.Errorf("%w: user %d", ErrInvalidDelta, userID)
	}

	if err := tx.Save(&user).Error; err != nil {
		return nil, fmt.Errorf("failed to save user: %w", err)
	}
	return &user, nil
}
