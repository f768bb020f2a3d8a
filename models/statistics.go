package models

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/shopspring/decimal"
)

type StatusCount struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

type MonthlyCount struct {
	Month string `json:"month"`
	Count int64  `json:"count"`
}

type MonthlyRevenue struct {
	Month    string          `json:"month"`
	Category string          `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
}

// StatisticsRepository serves the dashboard. Every query can be limited to
// one branch; a nil branch means the whole business.
type StatisticsRepository interface {
	CustomerStatusCounts(ctx context.Context, branchID *uint) ([]StatusCount, error)
	CountNewCustomers(ctx context.Context, branchID *uint, since time.Time) (int64, error)
	ConsultationResults(ctx context.Context, branchID *uint, since time.Time) ([]StatusCount, error)
	CountActiveMemberships(ctx context.Context, branchID *uint, now time.Time) (int64, error)
	CountExpiringMemberships(ctx context.Context, branchID *uint, now time.Time, days int) (int64, error)
	RevenueSince(ctx context.Context, branchID *uint, since time.Time) (decimal.Decimal, error)
	MonthlySignups(ctx context.Context, branchID *uint, from, to time.Time) ([]MonthlyCount, error)
	MonthlyRevenue(ctx context.Context, branchID *uint, from, to time.Time) ([]MonthlyRevenue, error)
	CampaignStatusCounts(ctx context.Context, branchID *uint) ([]StatusCount, error)
}

const monthExpr = "to_char(date_trunc('month', %s), 'YYYY-MM')"

func live(table string) sq.Sqlizer {
	return sq.Expr(table + ".deleted_at IS NULL")
}

func inBranch(q sq.SelectBuilder, column string, branchID *uint) sq.SelectBuilder {
	if branchID == nil {
		return q
	}
	return q.Where(sq.Eq{column: *branchID})
}

func (r *PostgresRepository) raw(ctx context.Context, q sq.SelectBuilder, dest any) error {
	query, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build statistics query: %w", err)
	}
	return translate(r.db.WithContext(ctx).Raw(query, args...).Scan(dest).Error)
}

func (r *PostgresRepository) count(ctx context.Context, q sq.SelectBuilder) (int64, error) {
	var n int64
	if err := r.raw(ctx, q, &n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *PostgresRepository) CustomerStatusCounts(ctx context.Context, branchID *uint) ([]StatusCount, error) {
	q := sq.Select("status", "COUNT(*) AS count").
		From("customers").
		Where(live("customers")).
		GroupBy("status").
		OrderBy("status")

	var rows []StatusCount
	err := r.raw(ctx, inBranch(q, "branch_id", branchID), &rows)
	return rows, err
}

func (r *PostgresRepository) CountNewCustomers(ctx context.Context, branchID *uint, since time.Time) (int64, error) {
	q := sq.Select("COUNT(*)").
		From("customers").
		Where(live("customers")).
		Where(sq.GtOrEq{"created_at": since})
	return r.count(ctx, inBranch(q, "branch_id", branchID))
}

func (r *PostgresRepository) ConsultationResults(ctx context.Context, branchID *uint, since time.Time) ([]StatusCount, error) {
	q := sq.Select("result AS status", "COUNT(*) AS count").
		From("consultations").
		Where(live("consultations")).
		Where(sq.GtOrEq{"scheduled_at": since}).
		GroupBy("result").
		OrderBy("result")

	var rows []StatusCount
	err := r.raw(ctx, inBranch(q, "branch_id", branchID), &rows)
	return rows, err
}

func (r *PostgresRepository) CountActiveMemberships(ctx context.Context, branchID *uint, now time.Time) (int64, error) {
	today := startOfDay(now)
	q := sq.Select("COUNT(DISTINCT customer_id)").
		From("memberships").
		Where(live("memberships")).
		Where(sq.Eq{"status": MembershipActive}).
		Where(sq.LtOrEq{"start_date": today}).
		Where(sq.GtOrEq{"end_date": today})
	return r.count(ctx, inBranch(q, "branch_id", branchID))
}

func (r *PostgresRepository) CountExpiringMemberships(ctx context.Context, branchID *uint, now time.Time, days int) (int64, error) {
	today := startOfDay(now)
	q := sq.Select("COUNT(*)").
		From("memberships").
		Where(live("memberships")).
		Where(sq.Eq{"status": MembershipActive}).
		Where(sq.GtOrEq{"end_date": today}).
		Where(sq.LtOrEq{"end_date": today.AddDate(0, 0, days)})
	return r.count(ctx, inBranch(q, "branch_id", branchID))
}

func (r *PostgresRepository) RevenueSince(ctx context.Context, branchID *uint, since time.Time) (decimal.Decimal, error) {
	q := sq.Select("COALESCE(SUM(paid_amount), 0) AS amount").
		From("memberships").
		Where(live("memberships")).
		Where(sq.NotEq{"status": MembershipCanceled}).
		Where(sq.GtOrEq{"created_at": since})

	var row struct{ Amount decimal.Decimal }
	if err := r.raw(ctx, inBranch(q, "branch_id", branchID), &row); err != nil {
		return decimal.Zero, err
	}
	return row.Amount, nil
}

func (r *PostgresRepository) MonthlySignups(ctx context.Context, branchID *uint, from, to time.Time) ([]MonthlyCount, error) {
	month := fmt.Sprintf(monthExpr, "created_at")
	q := sq.Select(month+" AS month", "COUNT(*) AS count").
		From("customers").
		Where(live("customers")).
		Where(sq.GtOrEq{"created_at": from}).
		Where(sq.Lt{"created_at": to}).
		GroupBy("month").
		OrderBy("month")

	var rows []MonthlyCount
	err := r.raw(ctx, inBranch(q, "branch_id", branchID), &rows)
	return rows, err
}

func (r *PostgresRepository) MonthlyRevenue(ctx context.Context, branchID *uint, from, to time.Time) ([]MonthlyRevenue, error) {
	month := fmt.Sprintf(monthExpr, "m.created_at")
	q := sq.Select(month+" AS month", "p.category AS category", "SUM(m.paid_amount) AS amount").
		From("memberships m").
		Join("products p ON p.id = m.product_id").
		Where(live("m")).
		Where(sq.NotEq{"m.status": MembershipCanceled}).
		Where(sq.GtOrEq{"m.created_at": from}).
		Where(sq.Lt{"m.created_at": to}).
		GroupBy("month", "p.category").
		OrderBy("month", "p.category")

	var rows []MonthlyRevenue
	err := r.raw(ctx, inBranch(q, "m.branch_id", branchID), &rows)
	return rows, err
}

func (r *PostgresRepository) CampaignStatusCounts(ctx context.Context, branchID *uint) ([]StatusCount, error) {
	q := sq.Select("status", "COUNT(*) AS count").
		From("campaigns").
		Where(live("campaigns")).
		GroupBy("status").
		OrderBy("status")

	var rows []StatusCount
	err := r.raw(ctx, inBranch(q, "branch_id", branchID), &rows)
	return rows, err
}
