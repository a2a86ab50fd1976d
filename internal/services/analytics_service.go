package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/kento-1999/Alpus-links-sub000/internal/domain"
	"github.com/kento-1999/Alpus-links-sub000/internal/repositories"
)

const trendDateLayout = "2006-01-02"

// trendPeriods maps the named trend windows to their day spans.
var trendPeriods = map[string]int{
	"7d":  7,
	"30d": 30,
	"90d": 90,
}

// AnalyticsServiceDeps bundles collaborators for order analytics.
type AnalyticsServiceDeps struct {
	Orders repositories.OrderRepository
	Clock  func() time.Time
}

type analyticsService struct {
	orders repositories.OrderRepository
	clock  func() time.Time
}

// NewAnalyticsService wires dependencies into a concrete AnalyticsService.
func NewAnalyticsService(deps AnalyticsServiceDeps) (AnalyticsService, error) {
	if deps.Orders == nil {
		return nil, errors.New("analytics service: order repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &analyticsService{
		orders: deps.Orders,
		clock:  func() time.Time { return clock().UTC() },
	}, nil
}

// OrderStats returns per-status counts and completed revenue for the actor's scope.
func (s *analyticsService) OrderStats(ctx context.Context, actor Actor) (OrderStats, error) {
	scope, err := scopeForActor(actor)
	if err != nil {
		return OrderStats{}, err
	}

	counts, err := s.orders.CountByStatus(ctx, scope)
	if err != nil {
		return OrderStats{}, s.mapRepositoryError(err)
	}
	revenue, err := s.orders.SumCompletedRevenue(ctx, scope)
	if err != nil {
		return OrderStats{}, s.mapRepositoryError(err)
	}

	return OrderStats{
		StatusCounts:              counts,
		TotalRevenueFromCompleted: revenue,
	}, nil
}

// OrderTrends returns a dense day-bucketed series over the requested window.
// Days without orders appear with zero counts.
func (s *analyticsService) OrderTrends(ctx context.Context, cmd TrendQuery) ([]TrendPoint, error) {
	scope, err := scopeForActor(cmd.Actor)
	if err != nil {
		return nil, err
	}

	from, to, err := s.trendWindow(cmd)
	if err != nil {
		return nil, err
	}

	rows, err := s.orders.DailyStatusCounts(ctx, scope, from, to)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}

	return buildDenseSeries(from, to, rows), nil
}

// trendWindow resolves the [from, to) range: explicit bounds win, otherwise
// the named period counts back from today inclusive.
func (s *analyticsService) trendWindow(cmd TrendQuery) (time.Time, time.Time, error) {
	if cmd.From != nil && cmd.To != nil {
		from := dayStart(cmd.From.UTC())
		to := dayStart(cmd.To.UTC()).AddDate(0, 0, 1)
		if !from.Before(to) {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: range start must not be after range end", ErrOrderInvalidInput)
		}
		return from, to, nil
	}

	period := cmd.Period
	if period == "" {
		period = "7d"
	}
	days, ok := trendPeriods[period]
	if !ok {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: unknown period %q", ErrOrderInvalidInput, period)
	}

	today := dayStart(s.clock())
	to := today.AddDate(0, 0, 1)
	from := to.AddDate(0, 0, -days)
	return from, to, nil
}

func (s *analyticsService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("analytics: repository unavailable: %w", err)
		}
	}
	return err
}

// buildDenseSeries reshapes sparse per-day rows into one point per calendar
// day of [from, to). Every point carries an explicit count for every status,
// so days without orders report zeros rather than missing keys. Pure
// reshaping: no clock, no storage.
func buildDenseSeries(from, to time.Time, rows []domain.DailyStatusCount) []TrendPoint {
	counts := make(map[string]map[domain.OrderStatus]int64)
	for _, row := range rows {
		day, ok := counts[row.Date]
		if !ok {
			day = make(map[domain.OrderStatus]int64)
			counts[row.Date] = day
		}
		day[row.Status] += row.Count
	}

	statuses := domain.OrderStatusValues()

	var series []TrendPoint
	for cursor := dayStart(from.UTC()); cursor.Before(to); cursor = cursor.AddDate(0, 0, 1) {
		date := cursor.Format(trendDateLayout)
		point := TrendPoint{
			Date:   date,
			Counts: make(map[domain.OrderStatus]int64, len(statuses)),
		}
		for _, status := range statuses {
			point.Counts[status] = 0
		}
		for status, count := range counts[date] {
			point.Counts[status] = count
			point.Total += count
		}
		series = append(series, point)
	}
	return series
}

func dayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
