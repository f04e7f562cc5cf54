package services

import (
	"testing"

	"github.com/sahilchouksey/learnhub-api/model"
)

func intPtr(v int) *int { return &v }

func defaultTiers() []model.BadgeType {
	return []model.BadgeType{
		{ID: 1, Name: "Beginner", MinPoints: 0, MaxPoints: intPtr(99), LevelOrder: 1, IsActive: true},
		{ID: 2, Name: "Learner", MinPoints: 100, MaxPoints: intPtr(499), LevelOrder: 2, IsActive: true},
		{ID: 3, Name: "Achiever", MinPoints: 500, MaxPoints: intPtr(1499), LevelOrder: 3, IsActive: true},
		{ID: 4, Name: "Scholar", MinPoints: 1500, MaxPoints: intPtr(4999), LevelOrder: 4, IsActive: true},
		{ID: 5, Name: "Master", MinPoints: 5000, MaxPoints: nil, LevelOrder: 5, IsActive: true},
	}
}

func TestResolveBadgeRangeBoundaries(t *testing.T) {
	tiers := defaultTiers()

	cases := []struct {
		total int
		want  string
	}{
		{0, "Beginner"},
		{99, "Beginner"},
		{100, "Learner"},
		{499, "Learner"},
		{500, "Achiever"},
		{1499, "Achiever"},
		{1500, "Scholar"},
		{4999, "Scholar"},
		{5000, "Master"},
		{1000000, "Master"}, // top tier is unbounded
	}

	for _, tc := range cases {
		badge := ResolveBadge(tiers, tc.total)
		if badge == nil {
			t.Fatalf("total %d: expected %s, got nil", tc.total, tc.want)
		}
		if badge.Name != tc.want {
			t.Errorf("total %d: expected %s, got %s", tc.total, tc.want, badge.Name)
		}
	}
}

func TestResolveBadgeBelowAllTiers(t *testing.T) {
	tiers := []model.BadgeType{
		{ID: 1, Name: "Bronze", MinPoints: 100, MaxPoints: nil, LevelOrder: 1, IsActive: true},
	}

	if badge := ResolveBadge(tiers, 50); badge != nil {
		t.Errorf("expected nil badge below all tiers, got %s", badge.Name)
	}
	if badge := ResolveBadge(nil, 500); badge != nil {
		t.Errorf("expected nil badge with no tiers, got %s", badge.Name)
	}
}

func TestResolveBadgeSkipsInactiveTiers(t *testing.T) {
	tiers := []model.BadgeType{
		{ID: 1, Name: "Old Bronze", MinPoints: 0, MaxPoints: nil, LevelOrder: 1, IsActive: false},
		{ID: 2, Name: "Bronze", MinPoints: 100, MaxPoints: nil, LevelOrder: 2, IsActive: true},
	}

	if badge := ResolveBadge(tiers, 50); badge != nil {
		t.Errorf("inactive tier should not match, got %s", badge.Name)
	}
	badge := ResolveBadge(tiers, 150)
	if badge == nil || badge.Name != "Bronze" {
		t.Errorf("expected Bronze, got %v", badge)
	}
}

func TestResolveBadgeOverlapPrefersHighestLevel(t *testing.T) {
	// Misconfigured overlapping ranges: the resolver must still return a
	// deterministic answer, the highest level that matches.
	tiers := []model.BadgeType{
		{ID: 1, Name: "Silver", MinPoints: 0, MaxPoints: intPtr(1000), LevelOrder: 1, IsActive: true},
		{ID: 2, Name: "Gold", MinPoints: 500, MaxPoints: intPtr(2000), LevelOrder: 2, IsActive: true},
	}

	badge := ResolveBadge(tiers, 750)
	if badge == nil || badge.Name != "Gold" {
		t.Errorf("expected Gold on overlap, got %v", badge)
	}
}

func standingsFixture() []LeaderboardEntry {
	// Sorted the way the aggregation query emits rows: total DESC, then
	// user id ASC. The tie on 300 straddles the page boundary at limit 3.
	return []LeaderboardEntry{
		{UserID: 7, Name: "g", Total: 500},
		{UserID: 2, Name: "b", Total: 300},
		{UserID: 4, Name: "d", Total: 300},
		{UserID: 9, Name: "i", Total: 300},
		{UserID: 1, Name: "a", Total: 120},
		{UserID: 5, Name: "e", Total: 120},
		{UserID: 3, Name: "c", Total: 10},
	}
}

func TestRankPageCoversEveryUserOnce(t *testing.T) {
	standings := standingsFixture()
	limit := 3

	wantRanks := map[uint]int{7: 1, 2: 2, 4: 2, 9: 2, 1: 3, 5: 3, 3: 4}

	seen := make(map[uint]int)
	var ordered []uint
	for page := 1; ; page++ {
		entries := RankPage(standings, page, limit)
		if len(entries) == 0 {
			break
		}
		if len(entries) > limit {
			t.Fatalf("page %d: %d entries exceeds limit %d", page, len(entries), limit)
		}
		for _, e := range entries {
			seen[e.UserID]++
			ordered = append(ordered, e.UserID)
			if e.Rank != wantRanks[e.UserID] {
				t.Errorf("page %d user %d: expected rank %d, got %d", page, e.UserID, wantRanks[e.UserID], e.Rank)
			}
		}
	}

	if len(seen) != len(standings) {
		t.Fatalf("expected %d distinct users across pages, got %d", len(standings), len(seen))
	}
	for userID, n := range seen {
		if n != 1 {
			t.Errorf("user %d appeared %d times across pages", userID, n)
		}
	}
	for i, e := range standings {
		if ordered[i] != e.UserID {
			t.Errorf("position %d: expected user %d, got %d", i, e.UserID, ordered[i])
		}
	}
}

func TestRankPageBoundaries(t *testing.T) {
	standings := standingsFixture()

	// Partial last page keeps ranks from the full set, not a restart.
	last := RankPage(standings, 3, 3)
	if len(last) != 1 {
		t.Fatalf("expected 1 entry on the last page, got %d", len(last))
	}
	if last[0].UserID != 3 || last[0].Rank != 4 {
		t.Errorf("expected user 3 rank 4, got user %d rank %d", last[0].UserID, last[0].Rank)
	}

	// A tie split across pages shares its rank on both sides.
	second := RankPage(standings, 2, 3)
	if second[0].UserID != 9 || second[0].Rank != 2 {
		t.Errorf("expected user 9 rank 2 at page 2, got user %d rank %d", second[0].UserID, second[0].Rank)
	}

	if out := RankPage(standings, 4, 3); len(out) != 0 {
		t.Errorf("expected empty page past the end, got %d entries", len(out))
	}
	if out := RankPage(nil, 1, 10); len(out) != 0 {
		t.Errorf("expected empty page for empty standings, got %d entries", len(out))
	}
}

func TestDenseRanks(t *testing.T) {
	cases := []struct {
		name   string
		totals []int
		want   []int
	}{
		{"empty", []int{}, []int{}},
		{"single", []int{10}, []int{1}},
		{"distinct", []int{30, 20, 10}, []int{1, 2, 3}},
		{"ties share rank", []int{30, 30, 10}, []int{1, 1, 2}},
		{"all tied", []int{5, 5, 5}, []int{1, 1, 1}},
		{"dense after tie", []int{40, 40, 30, 30, 20}, []int{1, 1, 2, 2, 3}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DenseRanks(tc.totals)
			if len(got) != len(tc.want) {
				t.Fatalf("expected %d ranks, got %d", len(tc.want), len(got))
			}
			for i := range tc.want {
				if got[i] != tc.want[i] {
					t.Errorf("position %d: expected rank %d, got %d", i, tc.want[i], got[i])
				}
			}
		})
	}
}
