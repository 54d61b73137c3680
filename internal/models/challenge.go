package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ChallengeType distinguishes solo goals from multi-participant challenges.
type ChallengeType string

// Challenge types.
const (
	ChallengeSolo  ChallengeType = "solo"
	ChallengeDuel  ChallengeType = "duel"
	ChallengeGroup ChallengeType = "group"
)

// IsMultiParticipant reports whether the challenge type carries a prize pool.
func (t ChallengeType) IsMultiParticipant() bool {
	return t == ChallengeDuel || t == ChallengeGroup
}

// ChallengeStatus is the lifecycle state of a challenge.
type ChallengeStatus string

// Challenge statuses.
const (
	StatusDraft          ChallengeStatus = "draft"
	StatusPendingPayment ChallengeStatus = "pending_payment"
	StatusActive         ChallengeStatus = "active"
	StatusPaused         ChallengeStatus = "paused"
	StatusCompleted      ChallengeStatus = "completed"
	StatusFailed         ChallengeStatus = "failed"
	StatusCancelled      ChallengeStatus = "cancelled"
)

// statusTransitions is the closed transition table for challenge statuses.
// Terminal states (completed, failed, cancelled) have no outgoing edges.
var statusTransitions = map[ChallengeStatus][]ChallengeStatus{
	StatusDraft:          {StatusPendingPayment, StatusActive, StatusCancelled},
	StatusPendingPayment: {StatusActive, StatusCancelled},
	StatusActive:         {StatusPaused, StatusCompleted, StatusFailed, StatusCancelled},
	StatusPaused:         {StatusActive, StatusCancelled},
}

// CanTransition reports whether the status machine allows moving to target.
func (s ChallengeStatus) CanTransition(target ChallengeStatus) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status has no outgoing transitions.
func (s ChallengeStatus) IsTerminal() bool {
	return len(statusTransitions[s]) == 0
}

// Distribution selects the prize pool payout strategy.
type Distribution string

// Prize pool distribution strategies.
const (
	DistributionWinnerTakesAll Distribution = "winner_takes_all"
	DistributionEqualSplit     Distribution = "equal_split"
	DistributionTopPerformers  Distribution = "top_performers"
)

// Challenge represents a staked goal, solo or multi-participant.
type Challenge struct {
	ID      uint `gorm:"primaryKey" json:"id"`
	OwnerID uint `gorm:"not null;index" json:"owner_id"`
	Owner   User `gorm:"foreignKey:OwnerID" json:"owner,omitempty"`

	Title            string          `gorm:"not null;size:255" json:"title"`
	Type             ChallengeType   `gorm:"not null;size:20" json:"type"`
	Status           ChallengeStatus `gorm:"not null;size:30;index" json:"status"`
	StartDate        time.Time       `gorm:"not null" json:"start_date"`
	EndDate          time.Time       `gorm:"not null;index" json:"end_date"`
	RequiredCheckIns int             `gorm:"not null" json:"required_check_ins"`

	DepositAmount   decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"deposit_amount"`
	DepositCurrency string          `gorm:"size:3;not null;default:'USD'" json:"deposit_currency"`
	DepositPaid     bool            `gorm:"not null;default:false" json:"deposit_paid"`

	RewardAmount decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"reward_amount"`

	CharityDonated bool            `gorm:"not null;default:false" json:"charity_donated"`
	CharityAmount  decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"charity_amount"`

	// Prize pool (duel/group only)
	PoolTotal        decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"pool_total"`
	PoolDistribution Distribution    `gorm:"size:30" json:"pool_distribution"`
	PoolDistributed  bool            `gorm:"not null;default:false" json:"pool_distributed"`

	Participants []Participant `gorm:"foreignKey:ChallengeID" json:"participants,omitempty"`
	Winners      []PrizeWinner `gorm:"foreignKey:ChallengeID" json:"winners,omitempty"`

	CompletedAt *time.Time `json:"completed_at"`
	FailedAt    *time.Time `json:"failed_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TableName specifies the table name for Challenge model.
func (Challenge) TableName() string {
	return "challenges"
}

// TransitionTo moves the challenge to the target status, enforcing the
// transition table. Terminal states are never re-entered.
func (c *Challenge) TransitionTo(target ChallengeStatus, now time.Time) error {
	if !c.Status.CanTransition(target) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, target)
	}
	c.Status = target
	switch target {
	case StatusCompleted:
		c.CompletedAt = &now
	case StatusFailed:
		c.FailedAt = &now
	}
	return nil
}

// TotalDays returns the challenge duration in whole days, at least 1.
func (c *Challenge) TotalDays() int {
	days := int(c.EndDate.Sub(c.StartDate).Hours() / 24)
	if days < 1 {
		days = 1
	}
	return days
}

// ParticipantStatus is the invitation state of a challenge participant.
type ParticipantStatus string

// Participant statuses.
const (
	ParticipantInvited  ParticipantStatus = "invited"
	ParticipantJoined   ParticipantStatus = "joined"
	ParticipantDeclined ParticipantStatus = "declined"
)

// Participant represents a user's membership in a duel or group challenge.
type Participant struct {
	ID          uint `gorm:"primaryKey" json:"id"`
	ChallengeID uint `gorm:"not null;index;uniqueIndex:idx_challenge_user" json:"challenge_id"`
	UserID      uint `gorm:"not null;index;uniqueIndex:idx_challenge_user" json:"user_id"`
	User        User `gorm:"foreignKey:UserID" json:"user,omitempty"`

	Status        ParticipantStatus `gorm:"not null;size:20" json:"status"`
	DepositAmount decimal.Decimal   `gorm:"type:decimal(12,2);not null;default:0" json:"deposit_amount"`
	DepositPaid   bool              `gorm:"not null;default:false" json:"deposit_paid"`

	CompletedCheckIns int `gorm:"not null;default:0" json:"completed_check_ins"`
	MissedCheckIns    int `gorm:"not null;default:0" json:"missed_check_ins"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for Participant model.
func (Participant) TableName() string {
	return "participants"
}

// PrizeWinner records a single payout from a distributed prize pool.
type PrizeWinner struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	ChallengeID uint            `gorm:"not null;index" json:"challenge_id"`
	UserID      uint            `gorm:"not null;index" json:"user_id"`
	Rank        int             `gorm:"not null" json:"rank"`
	Amount      decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	CreatedAt   time.Time       `json:"created_at"`
}

// TableName specifies the table name for PrizeWinner model.
func (PrizeWinner) TableName() string {
	return "prize_winners"
}
