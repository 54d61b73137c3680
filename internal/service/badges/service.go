// Package badges provides badge evaluation and awarding services.
package badges

import (
	"context"
	"fmt"
	"time"

	"github.com/stakepact/stakepact/internal/metrics"
	"github.com/stakepact/stakepact/internal/models"
	"github.com/stakepact/stakepact/internal/notify"
	"github.com/stakepact/stakepact/internal/repository"
	"github.com/stakepact/stakepact/internal/service/ledger"
	"github.com/stakepact/stakepact/pkg/logger"
)

// BadgeRepository interface for badge operations.
type BadgeRepository interface {
	GetActive() ([]models.Badge, error)
	HasUserEarnedBadge(userID, badgeID uint) (bool, error)
	Award(userID, badgeID uint, earnedAt time.Time) error
	GetUserAchievements(userID uint) ([]models.Achievement, error)
}

// UserRepository interface for user operations.
type UserRepository interface {
	GetByID(id uint) (*models.User, error)
	CountGroupParticipations(userID uint) (int64, error)
}

// CheckInRepository interface for check-in history lookups.
type CheckInRepository interface {
	LatestByUser(userID uint) (*models.CheckIn, error)
	ListRecentByUser(userID uint, since time.Time) ([]models.CheckIn, error)
}

// Ledger interface for badge reward application.
type Ledger interface {
	ApplyDelta(ctx context.Context, userID uint, delta ledger.Delta) (*models.User, error)
}

// Service handles badge evaluation and awarding.
type Service struct {
	badgeRepo   BadgeRepository
	userRepo    UserRepository
	checkInRepo CheckInRepository
	ledger      Ledger
	emitter     notify.Emitter
	loc         *time.Location
	log         *logger.Logger
}

// NewService creates a new badge service.
func NewService(
	badgeRepo *repository.BadgeRepository,
	userRepo *repository.UserRepository,
	checkInRepo *repository.CheckInRepository,
	ledgerSvc *ledger.Service,
	emitter notify.Emitter,
	loc *time.Location,
	log *logger.Logger,
) *Service {
	return NewServiceWithInterfaces(badgeRepo, userRepo, checkInRepo, ledgerSvc, emitter, loc, log)
}

// NewServiceWithInterfaces creates a new badge service with interface
// dependencies (useful for testing).
func NewServiceWithInterfaces(
	badgeRepo BadgeRepository,
	userRepo UserRepository,
	checkInRepo CheckInRepository,
	ledgerSvc Ledger,
	emitter notify.Emitter,
	loc *time.Location,
	log *logger.Logger,
) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		badgeRepo:   badgeRepo,
		userRepo:    userRepo,
		checkInRepo: checkInRepo,
		ledger:      ledgerSvc,
		emitter:     emitter,
		loc:         loc,
		log:         log.Component("badges"),
	}
}

// EvaluateUser evaluates all active badges for a user and awards the ones
// newly earned. All awards are persisted before any notification fires;
// notification failures never roll back an award.
func (s *Service) EvaluateUser(ctx context.Context, userID uint) ([]models.Badge, error) {
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	badges, err := s.badgeRepo.GetActive()
	if err != nil {
		return nil, fmt.Errorf("failed to get badges: %w", err)
	}

	var newlyEarned []models.Badge

	for _, badge := range badges {
		earned, err := s.badgeRepo.HasUserEarnedBadge(userID, badge.ID)
		if err != nil {
			s.log.Error().
				Err(err).
				Uint("user_id", userID).
				Uint("badge_id", badge.ID).
				Msg("Failed to check if user has badge")
			continue
		}
		if earned {
			continue
		}

		qualifies, err := s.meetsCriteria(&badge, user)
		if err != nil {
			s.log.Error().
				Err(err).
				Uint("user_id", userID).
				Str("badge", badge.Name).
				Msg("Failed to evaluate badge")
			continue
		}
		if !qualifies {
			continue
		}

		if err := s.award(ctx, userID, &badge); err != nil {
			s.log.Error().
				Err(err).
				Uint("user_id", userID).
				Str("badge", badge.Name).
				Msg("Failed to award badge")
			continue
		}

		newlyEarned = append(newlyEarned, badge)
		s.log.Info().
			Uint("user_id", userID).
			Str("badge", badge.Name).
			Msg("Badge awarded")
	}

	// Awards are persisted; notifications are best-effort per badge.
	for _, badge := range newlyEarned {
		s.emitter.EmitToUser(userID, "badge_earned", map[string]any{
			"badge":  badge.Name,
			"rarity": badge.Rarity,
		})
	}

	return newlyEarned, nil
}

// award persists the achievement and applies the badge reward through the
// ledger.
func (s *Service) award(ctx context.Context, userID uint, badge *models.Badge) error {
	if err := s.badgeRepo.Award(userID, badge.ID, time.Now()); err != nil {
		return err
	}

	if badge.RewardPoints != 0 || badge.RewardFreezes != 0 {
		_, err := s.ledger.ApplyDelta(ctx, userID, ledger.Delta{
			Points:       badge.RewardPoints,
			FreezeTokens: badge.RewardFreezes,
		})
		if err != nil {
			return fmt.Errorf("failed to apply badge reward: %w", err)
		}
	}

	metrics.RecordBadgeAwarded(badge.Name)
	return nil
}

// GetUserAchievements retrieves all badges earned by a user.
func (s *Service) GetUserAchievements(userID uint) ([]models.Achievement, error) {
	return s.badgeRepo.GetUserAchievements(userID)
}
