// Package settlement runs the periodic challenge expiry processor: it
// closes expired challenges, settles solo stakes, and hands finished
// duel/group challenges to the prize pool distributor.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/stakepact/stakepact/internal/cache"
	"github.com/stakepact/stakepact/internal/config"
	"github.com/stakepact/stakepact/internal/metrics"
	"github.com/stakepact/stakepact/internal/models"
	"github.com/stakepact/stakepact/internal/notify"
	"github.com/stakepact/stakepact/internal/repository"
	"github.com/stakepact/stakepact/internal/service/ledger"
	"github.com/stakepact/stakepact/internal/service/prizepool"
	"github.com/stakepact/stakepact/pkg/logger"
)

// runLockKey guards against overlapping settlement batches across instances.
const runLockKey = "settlement:batch"

// Distributor interface for prize pool distribution.
type Distributor interface {
	Distribute(ctx context.Context, challengeID uint) (*prizepool.Result, error)
}

// Service handles scheduled challenge settlement.
type Service struct {
	cfg           *config.Config
	db            *repository.DB
	challengeRepo *repository.ChallengeRepository
	checkInRepo   *repository.CheckInRepository
	ledger        *ledger.Service
	distributor   Distributor
	locker        *cache.KeyedLocker
	emitter       notify.Emitter
	log           *logger.Logger
	cron          *cron.Cron
}

// NewService creates a new settlement service.
func NewService(
	cfg *config.Config,
	db *repository.DB,
	challengeRepo *repository.ChallengeRepository,
	checkInRepo *repository.CheckInRepository,
	ledgerSvc *ledger.Service,
	distributor Distributor,
	locker *cache.KeyedLocker,
	emitter notify.Emitter,
	log *logger.Logger,
) *Service {
	return &Service{
		cfg:           cfg,
		db:            db,
		challengeRepo: challengeRepo,
		checkInRepo:   checkInRepo,
		ledger:        ledgerSvc,
		distributor:   distributor,
		locker:        locker,
		emitter:       emitter,
		log:           log.Component("settlement"),
	}
}

// Start initializes and starts the cron scheduler.
func (s *Service) Start() error {
	if !s.cfg.Scheduler.Enabled {
		s.log.Info().Msg("Settlement scheduler is disabled in configuration")
		return nil
	}

	location, err := s.cfg.Scheduler.GetLocation()
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", s.cfg.Scheduler.Timezone, err)
	}

	s.cron = cron.New(cron.WithLocation(location))

	_, err = s.cron.AddFunc(s.cfg.Scheduler.Cron, func() {
		s.runScheduled(context.Background())
	})
	if err != nil {
		return fmt.Errorf("failed to register settlement job: %w", err)
	}

	s.cron.Start()

	entries := s.cron.Entries()
	nextRun := ""
	if len(entries) > 0 {
		nextRun = entries[0].Next.Format(time.RFC3339)
	}

	s.log.Info().
		Str("schedule", s.cfg.Scheduler.Cron).
		Str("timezone", s.cfg.Scheduler.Timezone).
		Str("next_run", nextRun).
		Msg("Settlement scheduler started")

	return nil
}

// Stop gracefully shuts down the scheduler, draining the current batch.
func (s *Service) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.log.Info().Msg("Settlement scheduler stopped")
	}
}

// runScheduled wraps RunSettlementBatch for cron invocations.
func (s *Service) runScheduled(ctx context.Context) {
	if _, err := s.RunSettlementBatch(ctx); err != nil {
		if errors.Is(err, cache.ErrLockHeld) {
			s.log.Warn().Msg("Skipping settlement batch, previous run still holds the lock")
			return
		}
		s.log.Error().Err(err).Msg("Settlement batch failed")
	}
}

// RunSettlementBatch settles every expired active challenge. It is safe to
// invoke out-of-band for operational recovery; a run lock prevents
// overlapping batches. One challenge's failure never aborts the batch; the
// challenge stays active and is retried on the next run. Returns the number
// of challenges settled.
func (s *Service) RunSettlementBatch(ctx context.Context) (int, error) {
	if err := s.locker.TryAcquire(ctx, runLockKey); err != nil {
		return 0, err
	}
	defer s.locker.Release(ctx, runLockKey)

	start := time.Now()
	defer func() {
		metrics.ObserveSettlementDuration(time.Since(start))
	}()

	s.log.Info().Msg("Running settlement batch")

	expired, err := s.challengeRepo.ListExpiredActive(time.Now())
	if err != nil {
		metrics.RecordSettlementRun("error")
		return 0, fmt.Errorf("failed to list expired challenges: %w", err)
	}

	settled := 0
	for i := range expired {
		challenge := &expired[i]
		if err := s.settleChallenge(ctx, challenge); err != nil {
			s.log.Error().
				Err(err).
				Uint("challenge_id", challenge.ID).
				Str("type", string(challenge.Type)).
				Msg("Failed to settle challenge, will retry next run")
			continue
		}
		settled++
	}

	metrics.RecordSettlementRun("success")

	s.log.Info().
		Int("expired", len(expired)).
		Int("settled", settled).
		Dur("duration", time.Since(start)).
		Msg("Settlement batch complete")

	return settled, nil
}

// settleChallenge finalizes one expired challenge.
func (s *Service) settleChallenge(ctx context.Context, challenge *models.Challenge) error {
	verified, err := s.checkInRepo.CountVerified(challenge.ID)
	if err != nil {
		return fmt.Errorf("failed to count check-ins: %w", err)
	}

	successRate := float64(verified) / float64(challenge.TotalDays()) * 100
	isSuccess := successRate >= s.cfg.Settlement.SuccessThreshold

	if challenge.Type.IsMultiParticipant() {
		return s.settleGroup(ctx, challenge, isSuccess)
	}
	return s.settleSolo(ctx, challenge, isSuccess)
}

// settleSolo flips the challenge status and applies the owner's refund,
// reward or charity donation in a single transaction.
func (s *Service) settleSolo(ctx context.Context, challenge *models.Challenge, isSuccess bool) error {
	now := time.Now()

	target := models.StatusFailed
	if isSuccess {
		target = models.StatusCompleted
	}
	if err := challenge.TransitionTo(target, now); err != nil {
		return err
	}

	delta := ledger.Delta{}
	if isSuccess {
		delta.CompletedChallenges = 1
		if challenge.DepositPaid {
			payout := challenge.DepositAmount.Add(challenge.RewardAmount)
			delta.Money = payout
			delta.Earned = challenge.RewardAmount
		}
	} else {
		delta.FailedChallenges = 1
		if challenge.DepositPaid {
			challenge.CharityDonated = true
			challenge.CharityAmount = challenge.DepositAmount
			delta.Donated = challenge.DepositAmount
		}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Challenge{}).
			Where("id = ?", challenge.ID).
			Updates(map[string]any{
				"status":          challenge.Status,
				"completed_at":    challenge.CompletedAt,
				"failed_at":       challenge.FailedAt,
				"charity_donated": challenge.CharityDonated,
				"charity_amount":  challenge.CharityAmount,
			}).Error; err != nil {
			return fmt.Errorf("failed to update challenge: %w", err)
		}

		if _, err := s.ledger.ApplyDeltaIn(tx, challenge.OwnerID, delta); err != nil {
			return fmt.Errorf("failed to settle owner ledger: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	outcome := "failed"
	if isSuccess {
		outcome = "completed"
	}
	metrics.RecordChallengeSettled(string(challenge.Type), outcome)

	s.emitter.EmitToUser(challenge.OwnerID, "challenge_settled", map[string]any{
		"challenge_id": challenge.ID,
		"outcome":      outcome,
	})

	s.log.Info().
		Uint("challenge_id", challenge.ID).
		Str("outcome", outcome).
		Bool("deposit_paid", challenge.DepositPaid).
		Msg("Solo challenge settled")

	return nil
}

// settleGroup refreshes participant performance and the challenge status in
// one transaction, then delegates to the prize pool distributor. A failed
// distribution reopens the challenge so the next batch retries it; the
// distributor's latch keeps a retry from paying twice.
func (s *Service) settleGroup(ctx context.Context, challenge *models.Challenge, isSuccess bool) error {
	now := time.Now()

	target := models.StatusFailed
	if isSuccess {
		target = models.StatusCompleted
	}
	if err := challenge.TransitionTo(target, now); err != nil {
		return err
	}

	// Final tally of each joined participant's verified check-ins.
	for i := range challenge.Participants {
		p := &challenge.Participants[i]
		if p.Status != models.ParticipantJoined {
			continue
		}
		completed, err := s.checkInRepo.CountVerifiedByUser(challenge.ID, p.UserID)
		if err != nil {
			return fmt.Errorf("failed to count participant check-ins: %w", err)
		}
		p.CompletedCheckIns = int(completed)
		missed := challenge.RequiredCheckIns - p.CompletedCheckIns
		if missed < 0 {
			missed = 0
		}
		p.MissedCheckIns = missed
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range challenge.Participants {
			p := &challenge.Participants[i]
			if p.Status != models.ParticipantJoined {
				continue
			}
			if err := tx.Model(&models.Participant{}).
				Where("id = ?", p.ID).
				Updates(map[string]any{
					"completed_check_ins": p.CompletedCheckIns,
					"missed_check_ins":    p.MissedCheckIns,
				}).Error; err != nil {
				return fmt.Errorf("failed to update participant: %w", err)
			}
		}

		return tx.Model(&models.Challenge{}).
			Where("id = ?", challenge.ID).
			Updates(map[string]any{
				"status":       challenge.Status,
				"completed_at": challenge.CompletedAt,
				"failed_at":    challenge.FailedAt,
			}).Error
	})
	if err != nil {
		return err
	}

	if _, err := s.distributor.Distribute(ctx, challenge.ID); err != nil {
		// A distributed pool from a previous partial run is fine.
		if !errors.Is(err, prizepool.ErrAlreadyDistributed) {
			// The pool is still owed. Compensate the status flip so the
			// challenge shows up in the next batch and distribution is
			// retried; a terminal status would hide it forever.
			s.reopenChallenge(ctx, challenge.ID)
			return fmt.Errorf("failed to distribute prize pool: %w", err)
		}
	}

	outcome := "failed"
	if isSuccess {
		outcome = "completed"
	}
	metrics.RecordChallengeSettled(string(challenge.Type), outcome)

	s.log.Info().
		Uint("challenge_id", challenge.ID).
		Str("outcome", outcome).
		Int("participants", len(challenge.Participants)).
		Msg("Group challenge settled")

	return nil
}

// reopenChallenge puts a challenge back to active after a failed
// distribution, clearing the terminal timestamps. Best effort; a failure
// here is logged and the challenge needs manual remediation via the admin
// distribute endpoint.
func (s *Service) reopenChallenge(ctx context.Context, challengeID uint) {
	err := s.db.WithContext(ctx).Model(&models.Challenge{}).
		Where("id = ?", challengeID).
		Updates(map[string]any{
			"status":       models.StatusActive,
			"completed_at": nil,
			"failed_at":    nil,
		}).Error
	if err != nil {
		s.log.Error().
			Err(err).
			Uint("challenge_id", challengeID).
			Msg("Failed to reopen challenge after distribution failure")
	}
}
