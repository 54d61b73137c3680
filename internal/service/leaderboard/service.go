// Package leaderboard provides ranking and user statistics services.
package leaderboard

import (
	"context"
	"fmt"

	"github.com/stakepact/stakepact/internal/models"
	"github.com/stakepact/stakepact/internal/repository"
	"github.com/stakepact/stakepact/pkg/logger"
)

// UserRepository interface for user ranking queries.
type UserRepository interface {
	GetByID(id uint) (*models.User, error)
	ListTopByPoints(limit int) ([]models.User, error)
	ListTopByStreak(limit int) ([]models.User, error)
	ListTopByCompleted(limit int) ([]models.User, error)
}

// BadgeRepository interface for badge counts.
type BadgeRepository interface {
	GetUserBadgeCount(userID uint) (int64, error)
}

// Entry represents a single entry in a leaderboard.
type Entry struct {
	UserID              uint    `json:"user_id"`
	Username            string  `json:"username"`
	Points              int     `json:"points"`
	CurrentStreak       int     `json:"current_streak"`
	CompletedChallenges int     `json:"completed_challenges"`
	SuccessRate         float64 `json:"success_rate"`
	BadgeCount          int     `json:"badge_count"`
	Rank                int     `json:"rank"`
}

// UserStats aggregates one user's gamification state.
type UserStats struct {
	UserID              uint    `json:"user_id"`
	Username            string  `json:"username"`
	Points              int     `json:"points"`
	Balance             string  `json:"balance"`
	CurrentStreak       int     `json:"current_streak"`
	LongestStreak       int     `json:"longest_streak"`
	FreezesAvailable    int     `json:"freezes_available"`
	CompletedChallenges int     `json:"completed_challenges"`
	FailedChallenges    int     `json:"failed_challenges"`
	SuccessRate         float64 `json:"success_rate"`
	TotalEarned         string  `json:"total_earned"`
	TotalDonated        string  `json:"total_donated"`
	BadgeCount          int     `json:"badge_count"`
}

// Service handles leaderboard generation and user statistics.
type Service struct {
	userRepo  UserRepository
	badgeRepo BadgeRepository
	log       *logger.Logger
}

// NewService creates a new leaderboard service with concrete repository types.
func NewService(
	userRepo *repository.UserRepository,
	badgeRepo *repository.BadgeRepository,
	log *logger.Logger,
) *Service {
	return NewServiceWithInterfaces(userRepo, badgeRepo, log)
}

// NewServiceWithInterfaces creates a new leaderboard service with interface
// dependencies (useful for testing).
func NewServiceWithInterfaces(
	userRepo UserRepository,
	badgeRepo BadgeRepository,
	log *logger.Logger,
) *Service {
	return &Service{
		userRepo:  userRepo,
		badgeRepo: badgeRepo,
		log:       log.Component("leaderboard"),
	}
}

// GetLeaderboard returns the top users for a metric
// (points, streak or completed).
//
//nolint:revive // ctx reserved for future context-aware operations
func (s *Service) GetLeaderboard(ctx context.Context, metric string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	var (
		users []models.User
		err   error
	)
	switch metric {
	case "points", "":
		users, err = s.userRepo.ListTopByPoints(limit)
	case "streak":
		users, err = s.userRepo.ListTopByStreak(limit)
	case "completed":
		users, err = s.userRepo.ListTopByCompleted(limit)
	default:
		return nil, fmt.Errorf("unsupported leaderboard metric: %s", metric)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load users: %w", err)
	}

	entries := make([]Entry, 0, len(users))
	for i, user := range users {
		badgeCount, err := s.badgeRepo.GetUserBadgeCount(user.ID)
		if err != nil {
			s.log.Error().Err(err).Uint("user_id", user.ID).Msg("Failed to count badges")
		}
		entries = append(entries, Entry{
			UserID:              user.ID,
			Username:            user.Username,
			Points:              user.Points,
			CurrentStreak:       user.CurrentStreak,
			CompletedChallenges: user.CompletedChallenges,
			SuccessRate:         user.SuccessRate,
			BadgeCount:          int(badgeCount),
			Rank:                i + 1,
		})
	}
	return entries, nil
}

// GetUserStats returns one user's aggregated gamification state.
//
//nolint:revive // ctx reserved for future context-aware operations
func (s *Service) GetUserStats(ctx context.Context, userID uint) (*UserStats, error) {
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return nil, err
	}

	badgeCount, err := s.badgeRepo.GetUserBadgeCount(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count badges: %w", err)
	}

	return &UserStats{
		UserID:              user.ID,
		Username:            user.Username,
		Points:              user.Points,
		Balance:             user.Balance.StringFixed(2),
		CurrentStreak:       user.CurrentStreak,
		LongestStreak:       user.LongestStreak,
		FreezesAvailable:    user.FreezesAvailable,
		CompletedChallenges: user.CompletedChallenges,
		FailedChallenges:    user.FailedChallenges,
		SuccessRate:         user.SuccessRate,
		TotalEarned:         user.TotalEarned.StringFixed(2),
		TotalDonated:        user.TotalDonated.StringFixed(2),
		BadgeCount:          int(badgeCount),
	}, nil
}
