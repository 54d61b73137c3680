package models

import "time"

// CheckIn records a single verified day of progress on a challenge.
// The user+challenge+day unique index makes re-submitting the same day
// idempotent at the storage layer.
type CheckIn struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      uint      `gorm:"not null;index;uniqueIndex:idx_checkin_day" json:"user_id"`
	ChallengeID uint      `gorm:"not null;index;uniqueIndex:idx_checkin_day" json:"challenge_id"`
	Day         string    `gorm:"not null;size:10;uniqueIndex:idx_checkin_day" json:"day"` // YYYY-MM-DD
	Verified    bool      `gorm:"not null;default:false" json:"verified"`
	CheckedAt   time.Time `gorm:"not null" json:"checked_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName specifies the table name for CheckIn model.
func (CheckIn) TableName() string {
	return "check_ins"
}

// DayKey formats a timestamp as the canonical check-in day string.
func DayKey(t time.Time) string {
	return t.Format("2006-01-02")
}
