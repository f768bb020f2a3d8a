package models

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
)

func (r *PostgresRepository) CreateCustomer(ctx context.Context, customer *Customer, first *Consultation) error {
	if customer.Status == "" {
		customer.Status = CustomerConsultation
	}

	return translate(r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Branch").Create(customer).Error; err != nil {
			return err
		}
		if first == nil {
			return nil
		}

		first.CustomerID = customer.ID
		first.BranchID = customer.BranchID
		if first.Result == "" {
			first.Result = ResultPending
		}
		return tx.Create(first).Error
	}))
}

func (r *PostgresRepository) GetCustomer(ctx context.Context, id uint) (*Customer, error) {
	var customer Customer
	if err := r.db.WithContext(ctx).Preload("Branch").First(&customer, id).Error; err != nil {
		return nil, translate(err)
	}
	return &customer, nil
}

func (r *PostgresRepository) ListCustomers(ctx context.Context, filter CustomerFilter, page Page) ([]Customer, int64, error) {
	page = page.Normalize()

	var total int64
	if err := filterCustomers(r.db.WithContext(ctx).Model(&Customer{}), filter).Count(&total).Error; err != nil {
		return nil, 0, translate(err)
	}

	var customers []Customer
	err := filterCustomers(r.db.WithContext(ctx).Preload("Branch"), filter).
		Order("created_at DESC, id DESC").
		Offset(page.Offset()).
		Limit(page.PageSize).
		Find(&customers).Error
	if err != nil {
		return nil, 0, translate(err)
	}

	return customers, total, nil
}

func filterCustomers(q *gorm.DB, f CustomerFilter) *gorm.DB {
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.BranchID != nil {
		q = q.Where("branch_id = ?", *f.BranchID)
	}
	if f.ManagerID != nil {
		q = q.Where("manager_id = ?", *f.ManagerID)
	}
	if s := strings.TrimSpace(f.Query); s != "" {
		like := "%" + s + "%"
		q = q.Where("name ILIKE ? OR phone LIKE ? OR email ILIKE ?", like, like, like)
	}
	return q
}

func (r *PostgresRepository) UpdateCustomer(ctx context.Context, customer *Customer) error {
	return translate(r.db.WithContext(ctx).Omit("Branch").Save(customer).Error)
}

func (r *PostgresRepository) DeleteCustomer(ctx context.Context, id uint) error {
	return deleted(r.db.WithContext(ctx).Delete(&Customer{}, id))
}

func (r *PostgresRepository) CreateConsultation(ctx context.Context, consultation *Consultation) error {
	if consultation.Result == "" {
		consultation.Result = ResultPending
	}
	return translate(r.db.WithContext(ctx).Create(consultation).Error)
}

func (r *PostgresRepository) GetConsultation(ctx context.Context, id uint) (*Consultation, error) {
	var consultation Consultation
	if err := r.db.WithContext(ctx).First(&consultation, id).Error; err != nil {
		return nil, translate(err)
	}
	return &consultation, nil
}

func (r *PostgresRepository) UpdateConsultation(ctx context.Context, consultation *Consultation) error {
	return translate(r.db.WithContext(ctx).Save(consultation).Error)
}

func (r *PostgresRepository) ListConsultations(ctx context.Context, customerID uint) ([]Consultation, error) {
	var consultations []Consultation
	err := r.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("scheduled_at DESC").
		Find(&consultations).Error
	return consultations, translate(err)
}

// RegisterMembership stores the membership and promotes the customer to
// registered. Open consultations of the customer are closed as registered.
func (r *PostgresRepository) RegisterMembership(ctx context.Context, membership *Membership) error {
	if membership.Status == "" {
		membership.Status = MembershipActive
	}

	return translate(r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Customer{}).
			Where("id = ?", membership.CustomerID).
			Update("status", CustomerRegistered)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		if err := tx.Omit("Product").Create(membership).Error; err != nil {
			return err
		}

		return tx.Model(&Consultation{}).
			Where("customer_id = ? AND result IN ?", membership.CustomerID,
				[]ConsultationResult{ResultPending, ResultConsidering}).
			Update("result", ResultRegistered).Error
	}))
}

func (r *PostgresRepository) GetMembership(ctx context.Context, id uint) (*Membership, error) {
	var membership Membership
	if err := r.db.WithContext(ctx).Preload("Product", withDeleted).First(&membership, id).Error; err != nil {
		return nil, translate(err)
	}
	return &membership, nil
}

func (r *PostgresRepository) ListMemberships(ctx context.Context, customerID uint) ([]Membership, error) {
	var memberships []Membership
	err := r.db.WithContext(ctx).
		Preload("Product", withDeleted).
		Where("customer_id = ?", customerID).
		Order("start_date DESC").
		Find(&memberships).Error
	return memberships, translate(err)
}

func (r *PostgresRepository) ActiveMembership(ctx context.Context, customerID uint, now time.Time) (*Membership, error) {
	today := startOfDay(now)

	var membership Membership
	err := r.db.WithContext(ctx).
		Preload("Product", withDeleted).
		Where("customer_id = ? AND status = ?", customerID, MembershipActive).
		Where("start_date <= ? AND end_date >= ?", today, today).
		Order("end_date DESC").
		First(&membership).Error
	if err != nil {
		return nil, translate(err)
	}
	return &membership, nil
}

// CancelMembership cancels an active membership. The customer drops to
// expired when nothing else keeps them registered.
func (r *PostgresRepository) CancelMembership(ctx context.Context, id uint) error {
	return translate(r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var membership Membership
		if err := tx.First(&membership, id).Error; err != nil {
			return err
		}
		if membership.Status != MembershipActive {
			return ErrConflict
		}

		if err := tx.Model(&membership).Update("status", MembershipCanceled).Error; err != nil {
			return err
		}

		return tx.Model(&Customer{}).
			Where("id = ? AND status = ?", membership.CustomerID, CustomerRegistered).
			Where(noActiveMembership, MembershipActive).
			Update("status", CustomerExpired).Error
	}))
}

// withDeleted keeps soft-deleted products visible on memberships sold from them.
func withDeleted(db *gorm.DB) *gorm.DB {
	return db.Unscoped()
}

const noActiveMembership = `NOT EXISTS (SELECT 1 FROM memberships m
	WHERE m.customer_id = customers.id AND m.status = ? AND m.deleted_at IS NULL)`

// ExpireLapsedMemberships marks memberships that ended before today as
// expired and returns the customers that lost their registered status.
func (r *PostgresRepository) ExpireLapsedMemberships(ctx context.Context, now time.Time) ([]uint, error) {
	today := startOfDay(now)

	var expired []uint
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var candidates []uint
		err := tx.Model(&Membership{}).
			Where("status = ? AND end_date < ?", MembershipActive, today).
			Distinct().
			Pluck("customer_id", &candidates).Error
		if err != nil || len(candidates) == 0 {
			return err
		}

		err = tx.Model(&Membership{}).
			Where("status = ? AND end_date < ?", MembershipActive, today).
			Update("status", MembershipExpired).Error
		if err != nil {
			return err
		}

		err = tx.Model(&Customer{}).
			Where("id IN ? AND status = ?", candidates, CustomerRegistered).
			Where(noActiveMembership, MembershipActive).
			Pluck("id", &expired).Error
		if err != nil || len(expired) == 0 {
			return err
		}

		return tx.Model(&Customer{}).
			Where("id IN ?", expired).
			Update("status", CustomerExpired).Error
	})
	if err != nil {
		return nil, translate(err)
	}

	return expired, nil
}
