package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/sahilchouksey/learnhub-api/model"
)

// PointsService owns the append-only points ledger and its read-side
// views: totals, badge resolution, and the leaderboard. Ledger rows are
// never updated or deleted; corrections are opposite-sign entries.
type PointsService struct {
	db  *gorm.DB
	log *logrus.Entry
}

// NewPointsService creates a new points service
func NewPointsService(db *gorm.DB) *PointsService {
	return &PointsService{
		db:  db,
		log: logrus.WithField("service", "points"),
	}
}

// Append inserts one immutable ledger row and returns its id.
func (s *PointsService) Append(ctx context.Context, entry *model.PointsLedgerEntry) (uint, error) {
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return 0, fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return entry.ID, nil
}

// TotalFor returns the user's point total, always computed as the sum of
// their ledger rows so it can never diverge from the audit trail.
func (s *PointsService) TotalFor(ctx context.Context, userID uint) (int, error) {
	var total int64
	err := s.db.WithContext(ctx).
		Model(&model.PointsLedgerEntry{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(points), 0)").
		Scan(&total).
		Error
	if err != nil {
		return 0, fmt.Errorf("failed to sum ledger for user %d: %w", userID, err)
	}
	return int(total), nil
}

// History returns the user's ledger rows, newest first.
func (s *PointsService) History(ctx context.Context, userID uint, page, limit int) ([]model.PointsLedgerEntry, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	query := s.db.WithContext(ctx).
		Model(&model.PointsLedgerEntry{}).
		Where("user_id = ?", userID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var entries []model.PointsLedgerEntry
	err := query.
		Order("created_at DESC, id DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&entries).
		Error
	if err != nil {
		return nil, 0, err
	}

	return entries, total, nil
}

// Grant appends an ADMIN_GRANT entry with a positive delta.
func (s *PointsService) Grant(ctx context.Context, adminID, userID uint, points int, reason string) (*model.PointsLedgerEntry, error) {
	if points <= 0 {
		return nil, ErrInvalidPoints
	}
	return s.adminAdjust(ctx, adminID, userID, points, model.PointsSourceAdminGrant, reason)
}

// Deduct appends an ADMIN_DEDUCT entry. The delta is stored negative so
// TotalFor stays a pure sum with no sign interpretation at read time.
func (s *PointsService) Deduct(ctx context.Context, adminID, userID uint, points int, reason string) (*model.PointsLedgerEntry, error) {
	if points <= 0 {
		return nil, ErrInvalidPoints
	}
	return s.adminAdjust(ctx, adminID, userID, -points, model.PointsSourceAdminDeduct, reason)
}

func (s *PointsService) adminAdjust(ctx context.Context, adminID, userID uint, delta int, source, reason string) (*model.PointsLedgerEntry, error) {
	var user model.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user %d: %w", userID, err)
	}

	refType := "admin"
	entry := model.PointsLedgerEntry{
		UserID:        userID,
		SourceCode:    source,
		Points:        delta,
		Description:   reason,
		ReferenceID:   &adminID,
		ReferenceType: &refType,
	}

	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return nil, fmt.Errorf("failed to append %s entry: %w", source, err)
	}

	s.log.WithFields(logrus.Fields{
		"event":    "points_adjusted",
		"user_id":  userID,
		"admin_id": adminID,
		"source":   source,
		"points":   delta,
	}).Info("points ledger entry appended")

	return &entry, nil
}

// ResolveBadge maps a point total to the active badge tier covering it.
// A nil badge is a valid business state, not an error: it means the
// total falls below every configured tier, or no tiers are active.
func (s *PointsService) ResolveBadge(ctx context.Context, total int) (*model.BadgeType, error) {
	var badges []model.BadgeType
	err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("level_order ASC").
		Find(&badges).
		Error
	if err != nil {
		return nil, fmt.Errorf("failed to load badge tiers: %w", err)
	}
	return ResolveBadge(badges, total), nil
}

// ResolveBadge picks the tier whose range covers total. If a
// misconfiguration makes multiple tiers match, the highest level wins.
func ResolveBadge(badges []model.BadgeType, total int) *model.BadgeType {
	var match *model.BadgeType
	for i := range badges {
		b := &badges[i]
		if !b.IsActive || !b.Matches(total) {
			continue
		}
		if match == nil || b.LevelOrder > match.LevelOrder {
			match = b
		}
	}
	return match
}

// BadgeFor resolves the badge for a user's current ledger total.
func (s *PointsService) BadgeFor(ctx context.Context, userID uint) (*model.BadgeType, int, error) {
	total, err := s.TotalFor(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	badge, err := s.ResolveBadge(ctx, total)
	if err != nil {
		return nil, 0, err
	}
	return badge, total, nil
}

// LeaderboardEntry is one ranked row of the leaderboard.
type LeaderboardEntry struct {
	UserID uint   `json:"user_id"`
	Name   string `json:"name"`
	Total  int    `json:"total_points"`
	Rank   int    `json:"rank"`
}

// Leaderboard aggregates the ledger into ranked standings. Ties on total
// break by ascending user id so pagination is stable: requesting every
// page yields each user exactly once. Ranks are dense (1, 2, 3, ...)
// and computed over the full sorted set, not per page.
func (s *PointsService) Leaderboard(ctx context.Context, page, limit int) ([]LeaderboardEntry, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 10
	}

	type row struct {
		UserID uint
		Name   string
		Total  int
	}

	var rows []row
	err := s.db.WithContext(ctx).
		Model(&model.PointsLedgerEntry{}).
		Select("points_ledger_entries.user_id AS user_id, users.name AS name, COALESCE(SUM(points_ledger_entries.points), 0) AS total").
		Joins("JOIN users ON users.id = points_ledger_entries.user_id").
		Group("points_ledger_entries.user_id, users.name").
		Order("total DESC, user_id ASC").
		Scan(&rows).
		Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to aggregate leaderboard: %w", err)
	}

	standings := make([]LeaderboardEntry, len(rows))
	for i, r := range rows {
		standings[i] = LeaderboardEntry{
			UserID: r.UserID,
			Name:   r.Name,
			Total:  r.Total,
		}
	}

	return RankPage(standings, page, limit), int64(len(standings)), nil
}

// RankPage assigns dense ranks over the full sorted standings and cuts
// out the requested page. Ranks are computed before slicing so a page
// boundary never resets or skips them.
func RankPage(standings []LeaderboardEntry, page, limit int) []LeaderboardEntry {
	totals := make([]int, len(standings))
	for i, e := range standings {
		totals[i] = e.Total
	}
	ranks := DenseRanks(totals)

	start := (page - 1) * limit
	if start >= len(standings) {
		return []LeaderboardEntry{}
	}
	end := start + limit
	if end > len(standings) {
		end = len(standings)
	}

	entries := make([]LeaderboardEntry, 0, end-start)
	for i := start; i < end; i++ {
		e := standings[i]
		e.Rank = ranks[i]
		entries = append(entries, e)
	}
	return entries
}

// DenseRanks assigns dense ranks (1, 2, 3, ...) to a list of totals that
// is already sorted in non-increasing order. Equal totals share a rank.
func DenseRanks(sortedTotals []int) []int {
	ranks := make([]int, len(sortedTotals))
	rank := 0
	for i, t := range sortedTotals {
		if i == 0 || t != sortedTotals[i-1] {
			rank++
		}
		ranks[i] = rank
	}
	return ranks
}
