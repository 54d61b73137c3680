package badges

import (
	"fmt"
	"time"

	"github.com/stakepact/stakepact/internal/models"
)

// meetsCriteria evaluates a badge criterion against the user's current state.
// Each criterion type has its own evaluator, dispatched here.
func (s *Service) meetsCriteria(badge *models.Badge, user *models.User) (bool, error) {
	switch badge.CriteriaType {
	case models.CriteriaStreakDays:
		return user.CurrentStreak >= badge.CriteriaValue, nil

	case models.CriteriaChallengesCompleted:
		return user.CompletedChallenges >= badge.CriteriaValue, nil

	case models.CriteriaPerfectWeek:
		return user.CurrentStreak >= 7, nil

	case models.CriteriaEarlyBird:
		return s.checkEarlyBird(user.ID)

	case models.CriteriaWeekendWarrior:
		return s.checkWeekendWarrior(user.ID)

	case models.CriteriaSocialButterfly:
		count, err := s.userRepo.CountGroupParticipations(user.ID)
		if err != nil {
			return false, fmt.Errorf("failed to count participations: %w", err)
		}
		return count >= int64(badge.CriteriaValue), nil

	case models.CriteriaCustom:
		// Reserved; not exercised by the shipped catalog.
		return false, nil

	default:
		return false, fmt.Errorf("unsupported criteria type: %s", badge.CriteriaType)
	}
}

// checkEarlyBird reports whether the user's most recent check-in happened
// between 04:00 and 06:00 local time.
func (s *Service) checkEarlyBird(userID uint) (bool, error) {
	latest, err := s.checkInRepo.LatestByUser(userID)
	if err != nil {
		return false, fmt.Errorf("failed to load latest check-in: %w", err)
	}
	if latest == nil {
		return false, nil
	}
	hour := latest.CheckedAt.In(s.loc).Hour()
	return hour >= 4 && hour < 6, nil
}

// checkWeekendWarrior reports whether the user checked in on both a Saturday
// and a Sunday within the last 7 days.
func (s *Service) checkWeekendWarrior(userID uint) (bool, error) {
	since := time.Now().Add(-7 * 24 * time.Hour)
	checkIns, err := s.checkInRepo.ListRecentByUser(userID, since)
	if err != nil {
		return false, fmt.Errorf("failed to load recent check-ins: %w", err)
	}

	var sawSaturday, sawSunday bool
	for _, c := range checkIns {
		switch c.CheckedAt.In(s.loc).Weekday() {
		case time.Saturday:
			sawSaturday = true
		case time.Sunday:
			sawSunday = true
		}
	}
	return sawSaturday && sawSunday, nil
}
