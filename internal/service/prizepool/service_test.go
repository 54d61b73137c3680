package prizepool

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/stakepact/stakepact/internal/models"
	"github.com/stakepact/stakepact/internal/notify"
	"github.com/stakepact/stakepact/internal/repository"
	"github.com/stakepact/stakepact/internal/service/ledger"
	"github.com/stakepact/stakepact/pkg/logger"
)

// setupPoolTestDB creates an in-memory SQLite database for testing.
func setupPoolTestDB(t *testing.T) *repository.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}

	err = db.AutoMigrate(
		&models.User{},
		&models.Challenge{},
		&models.Participant{},
		&models.PrizeWinner{},
	)
	if err != nil {
		t.Fatalf("Failed to auto-migrate tables: %v", err)
	}

	return &repository.DB{DB: db}
}

func newPoolTestService(t *testing.T, db *repository.DB) *Service {
	t.Helper()
	log := logger.Get()
	return NewService(
		db,
		repository.NewChallengeRepository(db),
		ledger.NewService(db, log),
		notify.NoopEmitter{},
		log,
	)
}

// seedPoolChallenge creates a group challenge with one user and participant
// row per entry in checkIns, keyed by completed check-in counts.
func seedPoolChallenge(t *testing.T, db *repository.DB, dist models.Distribution, pool string, required int, checkIns []int) *models.Challenge {
	t.Helper()

	owner := models.User{Username: "owner"}
	if err := db.Create(&owner).Error; err != nil {
		t.Fatalf("Failed to create owner: %v", err)
	}

	challenge := models.Challenge{
		OwnerID:          owner.ID,
		Title:            "Group run streak",
		Type:             models.ChallengeGroup,
		Status:           models.StatusCompleted,
		StartDate:        time.Now().Add(-10 * 24 * time.Hour),
		EndDate:          time.Now().Add(-time.Hour),
		RequiredCheckIns: required,
		PoolTotal:        decimal.RequireFromString(pool),
		PoolDistribution: dist,
	}
	if err := db.Create(&challenge).Error; err != nil {
		t.Fatalf("Failed to create challenge: %v", err)
	}

	for i, completed := range checkIns {
		user := models.User{Username: fmt.Sprintf("runner%d", i+1)}
		if err := db.Create(&user).Error; err != nil {
			t.Fatalf("Failed to create participant user: %v", err)
		}
		p := models.Participant{
			ChallengeID:       challenge.ID,
			UserID:            user.ID,
			Status:            models.ParticipantJoined,
			CompletedCheckIns: completed,
		}
		if err := db.Create(&p).Error; err != nil {
			t.Fatalf("Failed to create participant: %v", err)
		}
	}

	return &challenge
}

func userBalance(t *testing.T, db *repository.DB, userID uint) decimal.Decimal {
	t.Helper()
	var user models.User
	if err := db.First(&user, userID).Error; err != nil {
		t.Fatalf("Failed to load user %d: %v", userID, err)
	}
	return user.Balance
}

func TestDistributeEqualSplit(t *testing.T) {
	db := setupPoolTestDB(t)
	svc := newPoolTestService(t, db)
	challenge := seedPoolChallenge(t, db, models.DistributionEqualSplit, "400.00", 10, []int{10, 9})

	res, err := svc.Distribute(context.Background(), challenge.ID)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if !res.Distributed || res.Charity {
		t.Errorf("Result = %+v, want distributed non-charity", res)
	}
	if len(res.Winners) != 2 {
		t.Fatalf("Winners = %d, want 2", len(res.Winners))
	}
	for _, w := range res.Winners {
		if !w.Amount.Equal(decimal.RequireFromString("200.00")) {
			t.Errorf("Winner %d amount = %s, want 200.00", w.UserID, w.Amount)
		}
		if !userBalance(t, db, w.UserID).Equal(w.Amount) {
			t.Errorf("Winner %d balance not credited", w.UserID)
		}
	}

	var winners []models.PrizeWinner
	if err := db.Where("challenge_id = ?", challenge.ID).Find(&winners).Error; err != nil {
		t.Fatalf("Failed to load prize winners: %v", err)
	}
	if len(winners) != 2 {
		t.Errorf("Stored winners = %d, want 2", len(winners))
	}
}

func TestDistributeWinnerTakesAll(t *testing.T) {
	db := setupPoolTestDB(t)
	svc := newPoolTestService(t, db)
	challenge := seedPoolChallenge(t, db, models.DistributionWinnerTakesAll, "150.00", 10, []int{8, 10, 9})

	res, err := svc.Distribute(context.Background(), challenge.ID)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(res.Winners) != 1 {
		t.Fatalf("Winners = %d, want 1", len(res.Winners))
	}
	if !res.Winners[0].Amount.Equal(decimal.RequireFromString("150.00")) {
		t.Errorf("Amount = %s, want 150.00", res.Winners[0].Amount)
	}

	// The winner is the participant with the most completed check-ins.
	var top models.Participant
	if err := db.Where("challenge_id = ? AND completed_check_ins = ?", challenge.ID, 10).First(&top).Error; err != nil {
		t.Fatalf("Failed to find top participant: %v", err)
	}
	if res.Winners[0].UserID != top.UserID {
		t.Errorf("Winner = user %d, want user %d", res.Winners[0].UserID, top.UserID)
	}
}

func TestDistributeTopPerformersCapsWinners(t *testing.T) {
	db := setupPoolTestDB(t)
	svc := newPoolTestService(t, db)
	challenge := seedPoolChallenge(t, db, models.DistributionTopPerformers, "90.00", 10, []int{10, 9, 8, 8, 10})

	res, err := svc.Distribute(context.Background(), challenge.ID)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(res.Winners) != 3 {
		t.Fatalf("Winners = %d, want top 3", len(res.Winners))
	}
	for _, w := range res.Winners {
		if !w.Amount.Equal(decimal.RequireFromString("30.00")) {
			t.Errorf("Winner amount = %s, want 30.00", w.Amount)
		}
	}
}

func TestDistributeRemainderCents(t *testing.T) {
	db := setupPoolTestDB(t)
	svc := newPoolTestService(t, db)
	challenge := seedPoolChallenge(t, db, models.DistributionEqualSplit, "100.00", 10, []int{10, 9, 8})

	res, err := svc.Distribute(context.Background(), challenge.ID)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(res.Winners) != 3 {
		t.Fatalf("Winners = %d, want 3", len(res.Winners))
	}

	// 100.00 / 3 = 33.33 with one leftover cent going to rank 1.
	sum := decimal.Zero
	for _, w := range res.Winners {
		sum = sum.Add(w.Amount)
	}
	if !sum.Equal(decimal.RequireFromString("100.00")) {
		t.Errorf("Payout sum = %s, want exactly 100.00", sum)
	}
	if !res.Winners[0].Amount.Equal(decimal.RequireFromString("33.34")) {
		t.Errorf("Rank 1 amount = %s, want 33.34", res.Winners[0].Amount)
	}
	if !res.Winners[2].Amount.Equal(decimal.RequireFromString("33.33")) {
		t.Errorf("Rank 3 amount = %s, want 33.33", res.Winners[2].Amount)
	}
}

func TestDistributeNoWinnersDonatesPool(t *testing.T) {
	db := setupPoolTestDB(t)
	svc := newPoolTestService(t, db)
	challenge := seedPoolChallenge(t, db, models.DistributionEqualSplit, "400.00", 10, []int{3, 2})

	res, err := svc.Distribute(context.Background(), challenge.ID)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if !res.Charity {
		t.Error("Expected charity outcome")
	}
	if !res.CharityAmount.Equal(decimal.RequireFromString("400.00")) {
		t.Errorf("CharityAmount = %s, want 400.00", res.CharityAmount)
	}

	var stored models.Challenge
	if err := db.First(&stored, challenge.ID).Error; err != nil {
		t.Fatalf("Failed to reload challenge: %v", err)
	}
	if !stored.CharityDonated || !stored.PoolDistributed {
		t.Errorf("Charity latch not written: donated=%v distributed=%v", stored.CharityDonated, stored.PoolDistributed)
	}
}

func TestDistributeIsIdempotent(t *testing.T) {
	db := setupPoolTestDB(t)
	svc := newPoolTestService(t, db)
	challenge := seedPoolChallenge(t, db, models.DistributionEqualSplit, "400.00", 10, []int{10, 9})

	if _, err := svc.Distribute(context.Background(), challenge.ID); err != nil {
		t.Fatalf("First run failed: %v", err)
	}

	_, err := svc.Distribute(context.Background(), challenge.ID)
	if !errors.Is(err, ErrAlreadyDistributed) {
		t.Errorf("Second run error = %v, want ErrAlreadyDistributed", err)
	}

	// Balances untouched by the second attempt.
	var winners []models.PrizeWinner
	if err := db.Where("challenge_id = ?", challenge.ID).Find(&winners).Error; err != nil {
		t.Fatalf("Failed to load winners: %v", err)
	}
	if len(winners) != 2 {
		t.Errorf("Winners = %d, want 2 after repeat attempt", len(winners))
	}
	for _, w := range winners {
		if !userBalance(t, db, w.UserID).Equal(w.Amount) {
			t.Errorf("User %d balance changed on repeat attempt", w.UserID)
		}
	}
}

func TestDistributeRejectsSolo(t *testing.T) {
	db := setupPoolTestDB(t)
	svc := newPoolTestService(t, db)

	owner := models.User{Username: "solo"}
	if err := db.Create(&owner).Error; err != nil {
		t.Fatalf("Failed to create owner: %v", err)
	}
	challenge := models.Challenge{
		OwnerID:          owner.ID,
		Title:            "Solo reading",
		Type:             models.ChallengeSolo,
		Status:           models.StatusCompleted,
		StartDate:        time.Now().Add(-7 * 24 * time.Hour),
		EndDate:          time.Now().Add(-time.Hour),
		RequiredCheckIns: 7,
	}
	if err := db.Create(&challenge).Error; err != nil {
		t.Fatalf("Failed to create challenge: %v", err)
	}

	_, err := svc.Distribute(context.Background(), challenge.ID)
	if !errors.Is(err, ErrNotDistributable) {
		t.Errorf("Error = %v, want ErrNotDistributable", err)
	}
}

func TestDistributeRequiresSettledChallenge(t *testing.T) {
	db := setupPoolTestDB(t)
	svc := newPoolTestService(t, db)
	challenge := seedPoolChallenge(t, db, models.DistributionEqualSplit, "400.00", 10, []int{10, 9})

	// A still-running challenge has partial tallies; paying out now would be
	// wrong even when participants already qualify.
	if err := db.Model(&models.Challenge{}).Where("id = ?", challenge.ID).
		Update("status", models.StatusActive).Error; err != nil {
		t.Fatalf("Failed to reset status: %v", err)
	}

	_, err := svc.Distribute(context.Background(), challenge.ID)
	if !errors.Is(err, ErrNotSettled) {
		t.Fatalf("Error = %v, want ErrNotSettled", err)
	}

	var winners []models.PrizeWinner
	if err := db.Where("challenge_id = ?", challenge.ID).Find(&winners).Error; err != nil {
		t.Fatalf("Failed to load winners: %v", err)
	}
	if len(winners) != 0 {
		t.Errorf("Winners = %d, want 0 for an active challenge", len(winners))
	}
}

func TestDistributeFailedChallengeStillDistributable(t *testing.T) {
	db := setupPoolTestDB(t)
	svc := newPoolTestService(t, db)
	challenge := seedPoolChallenge(t, db, models.DistributionEqualSplit, "400.00", 10, []int{10, 2})

	if err := db.Model(&models.Challenge{}).Where("id = ?", challenge.ID).
		Update("status", models.StatusFailed).Error; err != nil {
		t.Fatalf("Failed to set status: %v", err)
	}

	res, err := svc.Distribute(context.Background(), challenge.ID)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(res.Winners) != 1 {
		t.Errorf("Winners = %d, want 1 (qualifying minority still paid)", len(res.Winners))
	}
}

// staleChallengeRepo returns a fixed in-memory challenge, simulating a read
// taken before a concurrent distribution committed.
type staleChallengeRepo struct {
	challenge *models.Challenge
}

func (r *staleChallengeRepo) GetByID(_ uint) (*models.Challenge, error) {
	return r.challenge, nil
}

func TestDistributeRechecksLatchInTransaction(t *testing.T) {
	db := setupPoolTestDB(t)
	log := logger.Get()
	challenge := seedPoolChallenge(t, db, models.DistributionEqualSplit, "400.00", 10, []int{10, 9})

	// Another instance finished distribution after our snapshot was taken.
	if err := db.Model(&models.Challenge{}).Where("id = ?", challenge.ID).
		Update("pool_distributed", true).Error; err != nil {
		t.Fatalf("Failed to latch challenge: %v", err)
	}

	stale, err := repository.NewChallengeRepository(db).GetByID(challenge.ID)
	if err != nil {
		t.Fatalf("Failed to load challenge: %v", err)
	}
	stale.PoolDistributed = false // the snapshot predates the latch

	svc := NewServiceWithInterfaces(
		db,
		&staleChallengeRepo{challenge: stale},
		ledger.NewService(db, log),
		notify.NoopEmitter{},
		log,
	)

	_, err = svc.Distribute(context.Background(), challenge.ID)
	if !errors.Is(err, ErrAlreadyDistributed) {
		t.Fatalf("Error = %v, want ErrAlreadyDistributed", err)
	}

	// The in-transaction latch check must roll the payouts back.
	var winners []models.PrizeWinner
	if err := db.Where("challenge_id = ?", challenge.ID).Find(&winners).Error; err != nil {
		t.Fatalf("Failed to load winners: %v", err)
	}
	if len(winners) != 0 {
		t.Errorf("Winners = %d, want 0 after rollback", len(winners))
	}
	for _, p := range stale.Participants {
		if !userBalance(t, db, p.UserID).Equal(decimal.Zero) {
			t.Errorf("User %d balance credited despite rollback", p.UserID)
		}
	}
}

func TestDistributeExcludesNonJoined(t *testing.T) {
	db := setupPoolTestDB(t)
	svc := newPoolTestService(t, db)
	challenge := seedPoolChallenge(t, db, models.DistributionEqualSplit, "100.00", 10, []int{10})

	invited := models.User{Username: "ghost"}
	if err := db.Create(&invited).Error; err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	p := models.Participant{
		ChallengeID:       challenge.ID,
		UserID:            invited.ID,
		Status:            models.ParticipantInvited,
		CompletedCheckIns: 10,
	}
	if err := db.Create(&p).Error; err != nil {
		t.Fatalf("Failed to create participant: %v", err)
	}

	res, err := svc.Distribute(context.Background(), challenge.ID)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(res.Winners) != 1 {
		t.Fatalf("Winners = %d, want 1 (invited participant excluded)", len(res.Winners))
	}
	if res.Winners[0].UserID == invited.ID {
		t.Error("Invited participant must not win")
	}
}
