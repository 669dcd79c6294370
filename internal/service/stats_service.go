package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/civitasfix/civitasfix-api/internal/models"
	appErrors "github.com/civitasfix/civitasfix-api/pkg/errors"
)

type statsRepository interface {
	CountByStatus(ctx context.Context, ownerID string) (map[models.ReportStatus]int, error)
	CountByCategory(ctx context.Context, ownerID string) (map[models.ReportCategory]int, error)
	CountCreatedSince(ctx context.Context, ownerID string, since time.Time) (int, error)
}

// StatsService aggregates report statistics with a read-through cache.
type StatsService struct {
	repo   statsRepository
	cache  *CacheService
	logger *zap.Logger
	now    func() time.Time
}

// NewStatsService constructs a StatsService.
func NewStatsService(repo statsRepository, cache *CacheService, logger *zap.Logger) *StatsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatsService{repo: repo, cache: cache, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Summary returns headline counts. The bool reports whether the cache served the result.
func (s *StatsService) Summary(ctx context.Context, principal *models.Principal) (*models.StatsSummary, bool, error) {
	if principal == nil {
		return nil, false, appErrors.Clone(appErrors.ErrUnauthorized, "authentication required")
	}
	owner := scopeOwner(principal)
	key := statsCacheKey(owner, "summary")

	var cached models.StatsSummary
	if s.cache.Get(ctx, key, &cached) {
		return &cached, true, nil
	}

	counts, err := s.repo.CountByStatus(ctx, owner)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count reports")
	}
	now := s.now()
	weekly, err := s.repo.CountCreatedSince(ctx, owner, now.AddDate(0, 0, -7))
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count weekly reports")
	}
	monthly, err := s.repo.CountCreatedSince(ctx, owner, now.AddDate(0, 0, -30))
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count monthly reports")
	}

	summary := &models.StatsSummary{
		Pending:    counts[models.ReportStatusPending],
		Confirmed:  counts[models.ReportStatusConfirmed],
		InProgress: counts[models.ReportStatusInProgress],
		Completed:  counts[models.ReportStatusCompleted],
		Rejected:   counts[models.ReportStatusRejected],
		Weekly:     weekly,
		Monthly:    monthly,
	}
	for _, n := range counts {
		summary.Total += n
	}

	s.cache.Set(ctx, key, summary, 0)
	return summary, false, nil
}

// Weekly returns the status and category breakdown.
func (s *StatsService) Weekly(ctx context.Context, principal *models.Principal) (*models.WeeklyStats, bool, error) {
	if principal == nil {
		return nil, false, appErrors.Clone(appErrors.ErrUnauthorized, "authentication required")
	}
	owner := scopeOwner(principal)
	key := statsCacheKey(owner, "weekly")

	var cached models.WeeklyStats
	if s.cache.Get(ctx, key, &cached) {
		return &cached, true, nil
	}

	byStatus, err := s.repo.CountByStatus(ctx, owner)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count reports by status")
	}
	byCategory, err := s.repo.CountByCategory(ctx, owner)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count reports by category")
	}

	stats := &models.WeeklyStats{
		ByStatus:   make(map[models.ReportStatus]int, len(models.ReportStatuses)),
		ByCategory: make(map[models.ReportCategory]int, len(models.ReportCategories)),
	}
	for _, status := range models.ReportStatuses {
		stats.ByStatus[status] = byStatus[status]
		stats.Totals.All += byStatus[status]
	}
	for _, category := range models.ReportCategories {
		stats.ByCategory[category] = byCategory[category]
	}
	stats.Totals.Pending = byStatus[models.ReportStatusPending]
	stats.Totals.Completed = byStatus[models.ReportStatusCompleted]

	s.cache.Set(ctx, key, stats, 0)
	return stats, false, nil
}

func statsCacheKey(owner, kind string) string {
	if owner == "" {
		owner = "all"
	}
	return fmt.Sprintf("stats:%s:%s", owner, kind)
}
