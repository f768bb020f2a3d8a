package services

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"fitness-crm/models"
	"fitness-crm/utils"
)

const expiringSoonDays = 7

type Dashboard struct {
	BranchID            *uint                `json:"branch_id,omitempty"`
	CustomersByStatus   []models.StatusCount `json:"customers_by_status"`
	NewCustomers        int64                `json:"new_customers"`
	Consultations       int64                `json:"consultations"`
	ConversionRate      float64              `json:"conversion_rate"`
	ActiveMemberships   int64                `json:"active_memberships"`
	ExpiringMemberships int64                `json:"expiring_memberships"`
	Revenue             decimal.Decimal      `json:"revenue"`
	CampaignsByStatus   []models.StatusCount `json:"campaigns_by_status"`
	GeneratedAt         time.Time            `json:"generated_at"`
}

type StatisticsService struct {
	repo  models.StatisticsRepository
	cache utils.RedisClient
	ttl   time.Duration
	log   logrus.FieldLogger
	now   func() time.Time
}

// NewStatisticsService returns the service. A nil cache disables caching.
func NewStatisticsService(repo models.StatisticsRepository, cache utils.RedisClient, ttl time.Duration, log logrus.FieldLogger) *StatisticsService {
	return &StatisticsService{
		repo:  repo,
		cache: cache,
		ttl:   ttl,
		log:   log.WithField("component", "statistics"),
		now:   time.Now,
	}
}

const dashboardPattern = "stats:dashboard:*"

func dashboardKey(branchID *uint) string {
	if branchID == nil {
		return "stats:dashboard:all"
	}
	return "stats:dashboard:" + strconv.FormatUint(uint64(*branchID), 10)
}

func monthStart(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
}

// Dashboard returns the headline numbers of one branch or the whole business.
func (s *StatisticsService) Dashboard(ctx context.Context, branchID *uint) (*Dashboard, error) {
	key := dashboardKey(branchID)

	if s.cache != nil {
		cached, err := s.cache.GetFromCache(ctx, key)
		if err == nil {
			var d Dashboard
			if err := json.Unmarshal([]byte(cached), &d); err == nil {
				return &d, nil
			}
		} else if !utils.IsCacheMiss(err) {
			s.log.WithError(err).Warn("statistics cache unavailable")
		}
	}

	d, err := s.compute(ctx, branchID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(d); err == nil {
			if err := s.cache.SetToCache(ctx, key, string(data), s.ttl); err != nil {
				s.log.WithError(err).Warn("failed to cache dashboard")
			}
		}
	}

	return d, nil
}

func (s *StatisticsService) compute(ctx context.Context, branchID *uint) (*Dashboard, error) {
	now := s.now()
	since := monthStart(now)
	d := &Dashboard{BranchID: branchID, GeneratedAt: now.UTC()}

	var err error
	if d.CustomersByStatus, err = s.repo.CustomerStatusCounts(ctx, branchID); err != nil {
		return nil, err
	}
	if d.NewCustomers, err = s.repo.CountNewCustomers(ctx, branchID, since); err != nil {
		return nil, err
	}

	results, err := s.repo.ConsultationResults(ctx, branchID, since)
	if err != nil {
		return nil, err
	}
	var registered int64
	for _, r := range results {
		d.Consultations += r.Count
		if r.Status == string(models.ResultRegistered) {
			registered += r.Count
		}
	}
	if d.Consultations > 0 {
		d.ConversionRate = float64(registered) / float64(d.Consultations)
	}

	if d.ActiveMemberships, err = s.repo.CountActiveMemberships(ctx, branchID, now); err != nil {
		return nil, err
	}
	if d.ExpiringMemberships, err = s.repo.CountExpiringMemberships(ctx, branchID, now, expiringSoonDays); err != nil {
		return nil, err
	}
	if d.Revenue, err = s.repo.RevenueSince(ctx, branchID, since); err != nil {
		return nil, err
	}
	if d.CampaignsByStatus, err = s.repo.CampaignStatusCounts(ctx, branchID); err != nil {
		return nil, err
	}

	return d, nil
}

// SeriesRange fills in the default window (the current month and the five
// before it) and rejects inverted ranges.
func (s *StatisticsService) SeriesRange(from, to time.Time) (time.Time, time.Time, error) {
	if to.IsZero() {
		to = s.now()
	}
	if from.IsZero() {
		from = monthStart(to).AddDate(0, -5, 0)
	}
	if from.After(to) {
		return time.Time{}, time.Time{}, ErrInvalidRange
	}
	return from, to, nil
}

func (s *StatisticsService) CustomerSeries(ctx context.Context, branchID *uint, from, to time.Time) ([]models.MonthlyCount, error) {
	from, to, err := s.SeriesRange(from, to)
	if err != nil {
		return nil, err
	}
	return s.repo.MonthlySignups(ctx, branchID, from, to)
}

func (s *StatisticsService) RevenueSeries(ctx context.Context, branchID *uint, from, to time.Time) ([]models.MonthlyRevenue, error) {
	from, to, err := s.SeriesRange(from, to)
	if err != nil {
		return nil, err
	}
	return s.repo.MonthlyRevenue(ctx, branchID, from, to)
}

// Invalidate drops the cached dashboards of the branch and the global one.
// Events without a branch touch every branch, so they clear all dashboards.
func (s *StatisticsService) Invalidate(ctx context.Context, branchID *uint) error {
	if s.cache == nil {
		return nil
	}
	if branchID == nil {
		return s.cache.DeleteByPattern(ctx, dashboardPattern)
	}
	return s.cache.Delete(ctx, dashboardKey(nil), dashboardKey(branchID))
}
