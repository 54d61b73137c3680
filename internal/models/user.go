// Package models defines domain models for the settlement and gamification engine.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// User represents a participant in the staking system with their ledger state.
type User struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Username string `gorm:"uniqueIndex;not null;size:255" json:"username"`
	Email    string `gorm:"size:255" json:"email"`

	// Ledger
	Points       int             `gorm:"not null;default:0" json:"points"`
	Balance      decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"balance"`
	TotalEarned  decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"total_earned"`
	TotalDonated decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"total_donated"`

	// Streak state
	CurrentStreak    int        `gorm:"not null;default:0" json:"current_streak"`
	LongestStreak    int        `gorm:"not null;default:0" json:"longest_streak"`
	LastCheckIn      *time.Time `json:"last_check_in"`
	FreezesAvailable int        `gorm:"not null;default:0" json:"freezes_available"`
	FreezesUsed      int        `gorm:"not null;default:0" json:"freezes_used"`

	// Lifetime challenge stats
	CompletedChallenges int     `gorm:"not null;default:0" json:"completed_challenges"`
	FailedChallenges    int     `gorm:"not null;default:0" json:"failed_challenges"`
	SuccessRate         float64 `gorm:"not null;default:0" json:"success_rate"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for User model.
func (User) TableName() string {
	return "users"
}

// RecalculateSuccessRate recomputes the lifetime success rate from the
// completed/failed counters.
func (u *User) RecalculateSuccessRate() {
	total := u.CompletedChallenges + u.FailedChallenges
	if total == 0 {
		u.SuccessRate = 0
		return
	}
	u.SuccessRate = float64(u.CompletedChallenges) / float64(total) * 100
}

// HoursSinceLastCheckIn returns the elapsed hours between the last check-in
// and now, or -1 if the user has never checked in.
func (u *User) HoursSinceLastCheckIn(now time.Time) float64 {
	if u.LastCheckIn == nil {
		return -1
	}
	return now.Sub(*u.LastCheckIn).Hours()
}
