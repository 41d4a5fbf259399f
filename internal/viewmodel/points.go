package viewmodel

import (
	"cmp"
	"slices"
	"strings"

	"github.com/dukerupert/chorely/internal/model"
)

// LifetimePoints sums the scores of completed tasks assigned to m.
func LifetimePoints(tasks []model.TaskItem, m model.HouseholdMember) int {
	total := 0
	for _, t := range tasks {
		if t.Status == model.StatusCompleted && t.IsAssigned(m) {
			total += t.Score
		}
	}
	return total
}

// SpentPoints sums the costs of m's redemptions.
func SpentPoints(ledger []model.RewardRedemption, m model.HouseholdMember) int {
	total := 0
	for _, r := range ledger {
		if redeemedBy(r, m) {
			total += r.Cost
		}
	}
	return total
}

func redeemedBy(r model.RewardRedemption, m model.HouseholdMember) bool {
	return model.MatchMembers(model.HouseholdMember{ID: r.MemberID, Name: r.MemberName}, m).Matched()
}

// AvailablePoints is lifetime points minus spent points, floored at zero.
func AvailablePoints(tasks []model.TaskItem, ledger []model.RewardRedemption, m model.HouseholdMember) int {
	return max(0, LifetimePoints(tasks, m)-SpentPoints(ledger, m))
}

// Redemptions returns m's ledger entries, preserving ledger order.
func Redemptions(ledger []model.RewardRedemption, m model.HouseholdMember) []model.RewardRedemption {
	var out []model.RewardRedemption
	for _, r := range ledger {
		if redeemedBy(r, m) {
			out = append(out, r)
		}
	}
	return out
}

type LeaderboardEntry struct {
	Rank            int                   `json:"rank"`
	Member          model.HouseholdMember `json:"member"`
	LifetimePoints  int                   `json:"lifetime_points"`
	AvailablePoints int                   `json:"available_points"`
	CompletedTasks  int                   `json:"completed_tasks"`
}

// Leaderboard ranks members by lifetime points, then by name. Members with
// equal points share a rank.
func Leaderboard(members []model.HouseholdMember, tasks []model.TaskItem, ledger []model.RewardRedemption) []LeaderboardEntry {
	entries := make([]LeaderboardEntry, 0, len(members))
	for _, m := range members {
		e := LeaderboardEntry{
			Member:          m,
			LifetimePoints:  LifetimePoints(tasks, m),
			AvailablePoints: AvailablePoints(tasks, ledger, m),
		}
		for _, t := range tasks {
			if t.Status == model.StatusCompleted && t.IsAssigned(m) {
				e.CompletedTasks++
			}
		}
		entries = append(entries, e)
	}

	slices.SortStableFunc(entries, func(a, b LeaderboardEntry) int {
		if c := cmp.Compare(b.LifetimePoints, a.LifetimePoints); c != 0 {
			return c
		}
		return strings.Compare(strings.ToLower(a.Member.Name), strings.ToLower(b.Member.Name))
	})
	for i := range entries {
		if i > 0 && entries[i].LifetimePoints == entries[i-1].LifetimePoints {
			entries[i].Rank = entries[i-1].Rank
		} else {
			entries[i].Rank = i + 1
		}
	}
	return entries
}
