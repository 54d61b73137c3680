// Package streak implements the check-in streak state machine and freeze
// token management.
package streak

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stakepact/stakepact/internal/config"
	"github.com/stakepact/stakepact/internal/metrics"
	"github.com/stakepact/stakepact/internal/models"
	"github.com/stakepact/stakepact/internal/repository"
	"github.com/stakepact/stakepact/internal/service/ledger"
	"github.com/stakepact/stakepact/pkg/logger"
)

// Streak window boundaries in hours since the last check-in.
const (
	sameDayWindow = 24 // below this a check-in is a same-day repeat
	resetWindow   = 48 // at or above this the streak is gone
)

// Sentinel errors for freeze operations.
var (
	ErrNoFreezeAvailable   = errors.New("no freeze token available")
	ErrNoActiveStreak      = errors.New("no active streak")
	ErrStreakNotAtRisk     = errors.New("streak is not at risk")
	ErrStreakExpired       = errors.New("streak already expired")
	ErrInsufficientPoints  = errors.New("insufficient points")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrUnknownMethod       = errors.New("unknown purchase method")
)

// PurchaseMethod selects how a freeze token is paid for.
type PurchaseMethod string

// Purchase methods.
const (
	MethodPoints PurchaseMethod = "points"
	MethodMoney  PurchaseMethod = "money"
)

// UserRepository interface for user operations.
type UserRepository interface {
	GetByID(id uint) (*models.User, error)
	Update(user *models.User) error
}

// Ledger interface for balance mutations.
type Ledger interface {
	ApplyDelta(ctx context.Context, userID uint, delta ledger.Delta) (*models.User, error)
}

// BadgeEvaluator interface for post-check-in badge evaluation.
type BadgeEvaluator interface {
	EvaluateUser(ctx context.Context, userID uint) ([]models.Badge, error)
}

// Locker serializes operations per user.
type Locker interface {
	Acquire(ctx context.Context, key string) error
	Release(ctx context.Context, key string)
}

// Result is the streak state returned to callers after an update.
type Result struct {
	Current          int    `json:"current"`
	Longest          int    `json:"longest"`
	FreezesAvailable int    `json:"freezes_available"`
	FreezesUsed      int    `json:"freezes_used"`
	Change           string `json:"change"` // started, extended, unchanged, reset
}

// Service implements the streak and freeze engine.
type Service struct {
	userRepo UserRepository
	ledger   Ledger
	badges   BadgeEvaluator
	locker   Locker
	cfg      *config.StreakConfig
	log      *logger.Logger
}

// NewService creates a new streak service with concrete repository types.
func NewService(
	userRepo *repository.UserRepository,
	ledgerSvc *ledger.Service,
	badges BadgeEvaluator,
	locker Locker,
	cfg *config.StreakConfig,
	log *logger.Logger,
) *Service {
	return NewServiceWithInterfaces(userRepo, ledgerSvc, badges, locker, cfg, log)
}

// NewServiceWithInterfaces creates a new streak service with interface
// dependencies (useful for testing).
func NewServiceWithInterfaces(
	userRepo UserRepository,
	ledgerSvc Ledger,
	badges BadgeEvaluator,
	locker Locker,
	cfg *config.StreakConfig,
	log *logger.Logger,
) *Service {
	return &Service{
		userRepo: userRepo,
		ledger:   ledgerSvc,
		badges:   badges,
		locker:   locker,
		cfg:      cfg,
		log:      log.Component("streak"),
	}
}

func lockKey(userID uint) string {
	return fmt.Sprintf("user:%d", userID)
}

// UpdateStreak advances the user's streak for a verified check-in at the
// current time. Same-day repeats are idempotent no-ops. After every update
// the badge evaluator runs for the user.
func (s *Service) UpdateStreak(ctx context.Context, userID uint) (*Result, error) {
	if err := s.locker.Acquire(ctx, lockKey(userID)); err != nil {
		return nil, err
	}
	defer s.locker.Release(ctx, lockKey(userID))

	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	change := s.applyCheckIn(user, now)

	if change != "unchanged" {
		if err := s.userRepo.Update(user); err != nil {
			return nil, fmt.Errorf("failed to save streak: %w", err)
		}
	}
	metrics.RecordStreakUpdate(change)

	// Badge evaluation runs on every check-in; its failure never blocks the
	// streak result.
	if _, err := s.badges.EvaluateUser(ctx, userID); err != nil {
		s.log.Error().Err(err).Uint("user_id", userID).Msg("Badge evaluation failed after check-in")
	}

	s.log.Debug().
		Uint("user_id", userID).
		Int("current", user.CurrentStreak).
		Str("change", change).
		Msg("Streak updated")

	return &Result{
		Current:          user.CurrentStreak,
		Longest:          user.LongestStreak,
		FreezesAvailable: user.FreezesAvailable,
		FreezesUsed:      user.FreezesUsed,
		Change:           change,
	}, nil
}

// applyCheckIn mutates the user's streak state for a check-in at now and
// returns the kind of change made.
func (s *Service) applyCheckIn(user *models.User, now time.Time) string {
	hours := user.HoursSinceLastCheckIn(now)

	switch {
	case user.LastCheckIn == nil:
		user.CurrentStreak = 1
		if user.LongestStreak < 1 {
			user.LongestStreak = 1
		}
		user.LastCheckIn = &now
		return "started"

	case hours < sameDayWindow:
		return "unchanged"

	case hours < resetWindow:
		user.CurrentStreak++
		if user.CurrentStreak > user.LongestStreak {
			user.LongestStreak = user.CurrentStreak
		}
		// The only automatic source of free freeze tokens.
		if s.cfg.GrantEveryDays > 0 && user.CurrentStreak%s.cfg.GrantEveryDays == 0 {
			user.FreezesAvailable++
		}
		user.LastCheckIn = &now
		return "extended"

	default:
		user.CurrentStreak = 1
		user.LastCheckIn = &now
		return "reset"
	}
}

// UseFreeze consumes a freeze token to preserve the streak across a missed
// day. Only permitted in the danger window, after a missed day but before
// the streak is gone.
func (s *Service) UseFreeze(ctx context.Context, userID uint) (*Result, error) {
	if err := s.locker.Acquire(ctx, lockKey(userID)); err != nil {
		return nil, err
	}
	defer s.locker.Release(ctx, lockKey(userID))

	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return nil, err
	}

	if user.FreezesAvailable <= 0 {
		return nil, ErrNoFreezeAvailable
	}
	if user.LastCheckIn == nil {
		return nil, ErrNoActiveStreak
	}

	now := time.Now()
	hours := user.HoursSinceLastCheckIn(now)
	if hours < sameDayWindow {
		return nil, ErrStreakNotAtRisk
	}
	if hours >= resetWindow {
		return nil, ErrStreakExpired
	}

	user.FreezesAvailable--
	user.FreezesUsed++
	// Extends the streak window without incrementing the count.
	user.LastCheckIn = &now

	if err := s.userRepo.Update(user); err != nil {
		return nil, fmt.Errorf("failed to save freeze use: %w", err)
	}
	metrics.RecordFreezeUsed()

	s.log.Info().
		Uint("user_id", userID).
		Int("freezes_remaining", user.FreezesAvailable).
		Msg("Streak freeze used")

	return &Result{
		Current:          user.CurrentStreak,
		Longest:          user.LongestStreak,
		FreezesAvailable: user.FreezesAvailable,
		FreezesUsed:      user.FreezesUsed,
		Change:           "frozen",
	}, nil
}

// PurchaseFreeze buys a freeze token with points or money. The cost debit
// and the token credit are applied as one ledger delta.
func (s *Service) PurchaseFreeze(ctx context.Context, userID uint, method PurchaseMethod) (*Result, error) {
	if err := s.locker.Acquire(ctx, lockKey(userID)); err != nil {
		return nil, err
	}
	defer s.locker.Release(ctx, lockKey(userID))

	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return nil, err
	}

	var delta ledger.Delta
	switch method {
	case MethodPoints:
		if user.Points < s.cfg.FreezePointsPrice {
			return nil, ErrInsufficientPoints
		}
		delta = ledger.Delta{Points: -s.cfg.FreezePointsPrice, FreezeTokens: 1}
	case MethodMoney:
		price := s.cfg.FreezeMoneyAmount()
		if user.Balance.LessThan(price) {
			return nil, ErrInsufficientBalance
		}
		delta = ledger.Delta{Money: price.Neg(), FreezeTokens: 1}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}

	updated, err := s.ledger.ApplyDelta(ctx, userID, delta)
	if err != nil {
		return nil, fmt.Errorf("failed to apply purchase: %w", err)
	}
	metrics.RecordFreezePurchased(string(method))

	s.log.Info().
		Uint("user_id", userID).
		Str("method", string(method)).
		Int("freezes_available", updated.FreezesAvailable).
		Msg("Streak freeze purchased")

	return &Result{
		Current:          updated.CurrentStreak,
		Longest:          updated.LongestStreak,
		FreezesAvailable: updated.FreezesAvailable,
		FreezesUsed:      updated.FreezesUsed,
		Change:           "purchased",
	}, nil
}
