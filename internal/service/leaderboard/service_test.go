package leaderboard

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stakepact/stakepact/internal/models"
	"github.com/stakepact/stakepact/pkg/logger"
)

// mockUserRepo implements UserRepository over a fixed user slice.
type mockUserRepo struct {
	users []models.User
}

func (m *mockUserRepo) GetByID(id uint) (*models.User, error) {
	for i := range m.users {
		if m.users[i].ID == id {
			return &m.users[i], nil
		}
	}
	return nil, errors.New("user not found")
}

func (m *mockUserRepo) top(limit int, less func(a, b models.User) bool) []models.User {
	sorted := make([]models.User, len(m.users))
	copy(sorted, m.users)
	sort.SliceStable(sorted, func(i, j int) bool { return less(sorted[i], sorted[j]) })
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted
}

func (m *mockUserRepo) ListTopByPoints(limit int) ([]models.User, error) {
	return m.top(limit, func(a, b models.User) bool { return a.Points > b.Points }), nil
}

func (m *mockUserRepo) ListTopByStreak(limit int) ([]models.User, error) {
	return m.top(limit, func(a, b models.User) bool { return a.CurrentStreak > b.CurrentStreak }), nil
}

func (m *mockUserRepo) ListTopByCompleted(limit int) ([]models.User, error) {
	return m.top(limit, func(a, b models.User) bool { return a.CompletedChallenges > b.CompletedChallenges }), nil
}

// mockBadgeRepo implements BadgeRepository with fixed counts per user.
type mockBadgeRepo struct {
	counts map[uint]int64
}

func (m *mockBadgeRepo) GetUserBadgeCount(userID uint) (int64, error) {
	return m.counts[userID], nil
}

func newLeaderboardTestService() *Service {
	users := &mockUserRepo{users: []models.User{
		{ID: 1, Username: "alice", Points: 500, CurrentStreak: 3, CompletedChallenges: 10},
		{ID: 2, Username: "bob", Points: 300, CurrentStreak: 21, CompletedChallenges: 2},
		{ID: 3, Username: "carol", Points: 800, CurrentStreak: 7, CompletedChallenges: 5},
	}}
	badges := &mockBadgeRepo{counts: map[uint]int64{1: 4, 2: 1, 3: 2}}
	return NewServiceWithInterfaces(users, badges, logger.Get())
}

func TestGetLeaderboardByPoints(t *testing.T) {
	svc := newLeaderboardTestService()

	entries, err := svc.GetLeaderboard(context.Background(), "points", 10)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(entries) != 3 {
		t.Fatalf("Entries = %d, want 3", len(entries))
	}
	if entries[0].Username != "carol" || entries[0].Rank != 1 {
		t.Errorf("Top entry = %s rank %d, want carol rank 1", entries[0].Username, entries[0].Rank)
	}
	if entries[2].Username != "bob" || entries[2].Rank != 3 {
		t.Errorf("Last entry = %s rank %d, want bob rank 3", entries[2].Username, entries[2].Rank)
	}
	if entries[0].BadgeCount != 2 {
		t.Errorf("BadgeCount = %d, want 2", entries[0].BadgeCount)
	}
}

func TestGetLeaderboardMetrics(t *testing.T) {
	svc := newLeaderboardTestService()

	tests := []struct {
		metric  string
		wantTop string
	}{
		{"points", "carol"},
		{"", "carol"}, // default metric
		{"streak", "bob"},
		{"completed", "alice"},
	}

	for _, tt := range tests {
		t.Run("metric "+tt.metric, func(t *testing.T) {
			entries, err := svc.GetLeaderboard(context.Background(), tt.metric, 10)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if entries[0].Username != tt.wantTop {
				t.Errorf("Top = %s, want %s", entries[0].Username, tt.wantTop)
			}
		})
	}
}

func TestGetLeaderboardUnknownMetric(t *testing.T) {
	svc := newLeaderboardTestService()

	if _, err := svc.GetLeaderboard(context.Background(), "karma", 10); err == nil {
		t.Error("Expected error for unknown metric")
	}
}

func TestGetLeaderboardLimitClamped(t *testing.T) {
	svc := newLeaderboardTestService()

	entries, err := svc.GetLeaderboard(context.Background(), "points", 1)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("Entries = %d, want 1", len(entries))
	}

	// Out-of-range limits fall back to the default of 20.
	entries, err = svc.GetLeaderboard(context.Background(), "points", -5)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("Entries = %d, want all 3 under default limit", len(entries))
	}
}

func TestGetUserStats(t *testing.T) {
	users := &mockUserRepo{users: []models.User{{
		ID:                  1,
		Username:            "alice",
		Points:              500,
		Balance:             decimal.RequireFromString("12.50"),
		CurrentStreak:       3,
		LongestStreak:       15,
		FreezesAvailable:    2,
		CompletedChallenges: 9,
		FailedChallenges:    1,
		SuccessRate:         90,
		TotalEarned:         decimal.RequireFromString("40.00"),
		TotalDonated:        decimal.RequireFromString("5.00"),
	}}}
	badges := &mockBadgeRepo{counts: map[uint]int64{1: 4}}
	svc := NewServiceWithInterfaces(users, badges, logger.Get())

	stats, err := svc.GetUserStats(context.Background(), 1)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if stats.Balance != "12.50" {
		t.Errorf("Balance = %s, want 12.50", stats.Balance)
	}
	if stats.TotalEarned != "40.00" || stats.TotalDonated != "5.00" {
		t.Errorf("Totals = %s/%s, want 40.00/5.00", stats.TotalEarned, stats.TotalDonated)
	}
	if stats.BadgeCount != 4 {
		t.Errorf("BadgeCount = %d, want 4", stats.BadgeCount)
	}
	if stats.LongestStreak != 15 {
		t.Errorf("LongestStreak = %d, want 15", stats.LongestStreak)
	}
}

func TestGetUserStatsNotFound(t *testing.T) {
	svc := newLeaderboardTestService()

	if _, err := svc.GetUserStats(context.Background(), 99); err == nil {
		t.Error("Expected error for unknown user")
	}
}
