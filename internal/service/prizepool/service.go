// Package prizepool distributes finished duel/group challenge pools to
// winning participants.
package prizepool

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/stakepact/stakepact/internal/metrics"
	"github.com/stakepact/stakepact/internal/models"
	"github.com/stakepact/stakepact/internal/notify"
	"github.com/stakepact/stakepact/internal/repository"
	"github.com/stakepact/stakepact/internal/service/ledger"
	"github.com/stakepact/stakepact/pkg/logger"
)

// Sentinel errors for prize pool distribution.
var (
	// ErrAlreadyDistributed guards against running distribution twice for
	// one challenge.
	ErrAlreadyDistributed = errors.New("prize pool already distributed")
	// ErrNotDistributable is returned for solo challenges, which have no
	// prize pool.
	ErrNotDistributable = errors.New("challenge has no prize pool")
	// ErrNotSettled is returned when the challenge has not reached a
	// terminal status yet; distributing from partial tallies would pay the
	// wrong people.
	ErrNotSettled = errors.New("challenge not yet settled")
	// ErrUnknownStrategy is returned for an unrecognized distribution value.
	ErrUnknownStrategy = errors.New("unknown distribution strategy")
)

// successFraction is the share of required check-ins a participant must
// complete to qualify for the pool.
const successFraction = 0.8

// topPerformersCount caps the winner list for the top_performers strategy.
const topPerformersCount = 3

// Payout is a single winner's share of the pool.
type Payout struct {
	UserID uint            `json:"user_id"`
	Rank   int             `json:"rank"`
	Amount decimal.Decimal `json:"amount"`
}

// Result describes the outcome of a distribution run.
type Result struct {
	Winners       []Payout        `json:"winners"`
	Distributed   bool            `json:"distributed"`
	Charity       bool            `json:"charity"`
	CharityAmount decimal.Decimal `json:"charity_amount"`
}

// ChallengeRepository interface for challenge loads.
type ChallengeRepository interface {
	GetByID(id uint) (*models.Challenge, error)
}

// Service executes prize pool distribution.
type Service struct {
	db            *repository.DB
	challengeRepo ChallengeRepository
	ledger        *ledger.Service
	emitter       notify.Emitter
	log           *logger.Logger
}

// NewService creates a new prize pool service with concrete repository types.
func NewService(
	db *repository.DB,
	challengeRepo *repository.ChallengeRepository,
	ledgerSvc *ledger.Service,
	emitter notify.Emitter,
	log *logger.Logger,
) *Service {
	return NewServiceWithInterfaces(db, challengeRepo, ledgerSvc, emitter, log)
}

// NewServiceWithInterfaces creates a new prize pool service with interface
// dependencies (useful for testing).
func NewServiceWithInterfaces(
	db *repository.DB,
	challengeRepo ChallengeRepository,
	ledgerSvc *ledger.Service,
	emitter notify.Emitter,
	log *logger.Logger,
) *Service {
	return &Service{
		db:            db,
		challengeRepo: challengeRepo,
		ledger:        ledgerSvc,
		emitter:       emitter,
		log:           log.Component("prizepool"),
	}
}

// Distribute pays out the pool of one finished duel/group challenge. The
// distributed latch is written in the same transaction as the payouts, so a
// successful run can never repeat.
func (s *Service) Distribute(ctx context.Context, challengeID uint) (*Result, error) {
	challenge, err := s.challengeRepo.GetByID(challengeID)
	if err != nil {
		return nil, err
	}

	if !challenge.Type.IsMultiParticipant() {
		return nil, fmt.Errorf("%w: challenge %d is %s", ErrNotDistributable, challengeID, challenge.Type)
	}
	if challenge.Status != models.StatusCompleted && challenge.Status != models.StatusFailed {
		return nil, fmt.Errorf("%w: challenge %d is %s", ErrNotSettled, challengeID, challenge.Status)
	}
	if challenge.PoolDistributed {
		return nil, fmt.Errorf("%w: challenge %d", ErrAlreadyDistributed, challengeID)
	}

	successful := successfulParticipants(challenge)

	if len(successful) == 0 {
		return s.donateToCharity(ctx, challenge)
	}

	// Rank descending by completed check-ins; the stable sort keeps the
	// participant order for ties.
	sort.SliceStable(successful, func(i, j int) bool {
		return successful[i].CompletedCheckIns > successful[j].CompletedCheckIns
	})

	payouts, err := buildPayouts(challenge.PoolDistribution, challenge.PoolTotal, successful)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, p := range payouts {
			_, err := s.ledger.ApplyDeltaIn(tx, p.UserID, ledger.Delta{
				Money:  p.Amount,
				Earned: p.Amount,
			})
			if err != nil {
				return fmt.Errorf("failed to credit winner %d: %w", p.UserID, err)
			}

			winner := models.PrizeWinner{
				ChallengeID: challenge.ID,
				UserID:      p.UserID,
				Rank:        p.Rank,
				Amount:      p.Amount,
			}
			if err := tx.Create(&winner).Error; err != nil {
				return fmt.Errorf("failed to record winner: %w", err)
			}
		}

		// The latch write is the terminal step of a successful run. The
		// pool_distributed predicate re-checks the latch under the payout
		// transaction: a concurrent run that claimed it first rolls this
		// whole transaction back, payouts included.
		return s.claimLatch(tx, challenge.ID, nil)
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordPrizePoolDistributed(string(challenge.PoolDistribution))

	for _, p := range payouts {
		s.emitter.EmitToUser(p.UserID, "prize_awarded", map[string]any{
			"challenge_id": challenge.ID,
			"rank":         p.Rank,
			"amount":       p.Amount.String(),
		})
	}

	s.log.Info().
		Uint("challenge_id", challenge.ID).
		Str("strategy", string(challenge.PoolDistribution)).
		Int("winners", len(payouts)).
		Str("pool", challenge.PoolTotal.String()).
		Msg("Prize pool distributed")

	return &Result{Winners: payouts, Distributed: true}, nil
}

// claimLatch sets pool_distributed inside tx, guarded on it still being
// unset. Any extra columns are written in the same statement. Returns
// ErrAlreadyDistributed when a concurrent run claimed the latch first,
// rolling tx back.
func (s *Service) claimLatch(tx *gorm.DB, challengeID uint, extra map[string]any) error {
	updates := map[string]any{"pool_distributed": true}
	for k, v := range extra {
		updates[k] = v
	}
	res := tx.Model(&models.Challenge{}).
		Where("id = ? AND pool_distributed = ?", challengeID, false).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: challenge %d", ErrAlreadyDistributed, challengeID)
	}
	return nil
}

// donateToCharity handles the no-winners case: the whole pool goes to
// charity and no user balance changes.
func (s *Service) donateToCharity(ctx context.Context, challenge *models.Challenge) (*Result, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.claimLatch(tx, challenge.ID, map[string]any{
			"charity_donated": true,
			"charity_amount":  challenge.PoolTotal,
		})
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordPrizePoolDistributed("charity")

	s.log.Info().
		Uint("challenge_id", challenge.ID).
		Str("amount", challenge.PoolTotal.String()).
		Msg("Prize pool donated to charity, no successful participants")

	return &Result{
		Distributed:   true,
		Charity:       true,
		CharityAmount: challenge.PoolTotal,
	}, nil
}

// successfulParticipants filters joined participants who completed at least
// the success fraction of required check-ins.
func successfulParticipants(challenge *models.Challenge) []models.Participant {
	threshold := successFraction * float64(challenge.RequiredCheckIns)

	var successful []models.Participant
	for _, p := range challenge.Participants {
		if p.Status != models.ParticipantJoined {
			continue
		}
		if float64(p.CompletedCheckIns) >= threshold {
			successful = append(successful, p)
		}
	}
	return successful
}

// buildPayouts applies the distribution strategy to the ranked successful
// participants.
func buildPayouts(strategy models.Distribution, total decimal.Decimal, ranked []models.Participant) ([]Payout, error) {
	switch strategy {
	case models.DistributionWinnerTakesAll:
		return []Payout{{UserID: ranked[0].UserID, Rank: 1, Amount: total}}, nil

	case models.DistributionEqualSplit:
		return splitEven(total, ranked), nil

	case models.DistributionTopPerformers:
		n := len(ranked)
		if n > topPerformersCount {
			n = topPerformersCount
		}
		return splitEven(total, ranked[:n]), nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}
}

// splitEven divides the pool among participants to the cent using the
// largest-remainder method: everyone gets the truncated even share and the
// leftover cents go one each to the highest ranks. The payouts always sum
// to exactly the total.
func splitEven(total decimal.Decimal, ranked []models.Participant) []Payout {
	n := decimal.NewFromInt(int64(len(ranked)))
	base := total.Div(n).Truncate(2)
	leftoverCents := total.Sub(base.Mul(n)).Mul(decimal.NewFromInt(100)).IntPart()

	cent := decimal.New(1, -2)
	payouts := make([]Payout, 0, len(ranked))
	for i, p := range ranked {
		amount := base
		if int64(i) < leftoverCents {
			amount = amount.Add(cent)
		}
		payouts = append(payouts, Payout{UserID: p.UserID, Rank: i + 1, Amount: amount})
	}
	return payouts
}
