package models

import "time"

// CriteriaType is the closed set of badge earning criteria.
type CriteriaType string

// Badge criteria types.
const (
	CriteriaStreakDays          CriteriaType = "streak_days"
	CriteriaChallengesCompleted CriteriaType = "challenges_completed"
	CriteriaPerfectWeek         CriteriaType = "perfect_week"
	CriteriaEarlyBird           CriteriaType = "early_bird"
	CriteriaWeekendWarrior      CriteriaType = "weekend_warrior"
	CriteriaSocialButterfly     CriteriaType = "social_butterfly"
	CriteriaCustom              CriteriaType = "custom"
)

// Badge represents an earnable achievement in the catalog.
type Badge struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Name        string `gorm:"uniqueIndex;not null;size:100" json:"name"`
	Description string `gorm:"type:text" json:"description"`
	Category    string `gorm:"size:50" json:"category"`
	Rarity      string `gorm:"size:30" json:"rarity"`

	CriteriaType  CriteriaType `gorm:"not null;size:40" json:"criteria_type"`
	CriteriaValue int          `gorm:"not null;default:0" json:"criteria_value"`

	RewardPoints  int  `gorm:"not null;default:0" json:"reward_points"`
	RewardFreezes int  `gorm:"not null;default:0" json:"reward_freezes"`
	Active        bool `gorm:"not null;default:true" json:"active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for Badge model.
func (Badge) TableName() string {
	return "badges"
}

// Achievement represents a badge earned by a user.
type Achievement struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	UserID   uint      `gorm:"not null;index;uniqueIndex:idx_user_badge" json:"user_id"`
	User     User      `gorm:"foreignKey:UserID" json:"user,omitempty"`
	BadgeID  uint      `gorm:"not null;index;uniqueIndex:idx_user_badge" json:"badge_id"`
	Badge    Badge     `gorm:"foreignKey:BadgeID" json:"badge,omitempty"`
	EarnedAt time.Time `gorm:"not null" json:"earned_at"`
	Progress int       `gorm:"not null;default:0" json:"progress"`
}

// TableName specifies the table name for Achievement model.
func (Achievement) TableName() string {
	return "achievements"
}
