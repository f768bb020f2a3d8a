package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"fitness-crm/models"
)

type MembershipStore interface {
	GetCustomer(ctx context.Context, id uint) (*models.Customer, error)
	GetProduct(ctx context.Context, id uint) (*models.Product, error)
	RegisterMembership(ctx context.Context, membership *models.Membership) error
	CancelMembership(ctx context.Context, id uint) error
	ExpireLapsedMemberships(ctx context.Context, now time.Time) ([]uint, error)
}

type MembershipService struct {
	repo   MembershipStore
	events *EventPublisher
	log    logrus.FieldLogger
	now    func() time.Time
}

func NewMembershipService(repo MembershipStore, events *EventPublisher, log logrus.FieldLogger) *MembershipService {
	return &MembershipService{
		repo:   repo,
		events: events,
		log:    log.WithField("component", "memberships"),
		now:    time.Now,
	}
}

// RegisterInput describes a sale. A zero StartDate means today and a nil
// PaidAmount means the product's list price.
type RegisterInput struct {
	ProductID  uint
	StartDate  time.Time
	PaidAmount *decimal.Decimal
	Memo       string
}

// Register sells a product to the customer, turning a consultation customer
// into a registered one.
func (s *MembershipService) Register(ctx context.Context, customer *models.Customer, in RegisterInput) (*models.Membership, error) {
	product, err := s.repo.GetProduct(ctx, in.ProductID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, ErrProductUnavailable
	}
	if err != nil {
		return nil, err
	}
	if !product.Active || (product.BranchID != nil && *product.BranchID != customer.BranchID) {
		return nil, ErrProductUnavailable
	}

	start := in.StartDate
	if start.IsZero() {
		start = s.now()
	}
	y, m, d := start.Date()
	start = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	paid := product.Price
	if in.PaidAmount != nil {
		paid = *in.PaidAmount
	}

	membership := &models.Membership{
		CustomerID: customer.ID,
		ProductID:  product.ID,
		BranchID:   customer.BranchID,
		StartDate:  start,
		EndDate:    product.EndDate(start),
		PaidAmount: paid,
		Status:     models.MembershipActive,
		Memo:       in.Memo,
	}
	if err := s.repo.RegisterMembership(ctx, membership); err != nil {
		return nil, fmt.Errorf("register membership: %w", err)
	}
	membership.Product = *product

	s.log.WithFields(logrus.Fields{
		"customer_id":   customer.ID,
		"membership_id": membership.ID,
		"product_id":    product.ID,
	}).Info("membership registered")

	branchID := customer.BranchID
	s.events.PublishAsync(EventMembershipRegistered, membership.ID, &branchID, map[string]any{
		"customer_id": customer.ID,
		"product_id":  product.ID,
		"category":    product.Category,
		"paid_amount": paid,
		"start_date":  start.Format(DateLayout),
		"end_date":    membership.EndDate.Format(DateLayout),
	})

	customer.Status = models.CustomerRegistered
	s.events.PublishCustomer(EventCustomerUpdated, customer)

	return membership, nil
}

// Cancel cancels an active membership. The customer expires when no other
// active membership is left.
func (s *MembershipService) Cancel(ctx context.Context, membership *models.Membership) error {
	if err := s.repo.CancelMembership(ctx, membership.ID); err != nil {
		return err
	}
	membership.Status = models.MembershipCanceled

	s.publishCustomer(ctx, membership.CustomerID)
	return nil
}

// ExpireLapsed expires memberships that ended before today and returns how
// many customers lost their registered status.
func (s *MembershipService) ExpireLapsed(ctx context.Context) (int, error) {
	ids, err := s.repo.ExpireLapsedMemberships(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("expire memberships: %w", err)
	}

	for _, id := range ids {
		s.publishCustomer(ctx, id)
	}

	if len(ids) > 0 {
		s.log.WithField("customers", len(ids)).Info("customers expired")
	}
	return len(ids), nil
}

func (s *MembershipService) publishCustomer(ctx context.Context, id uint) {
	customer, err := s.repo.GetCustomer(ctx, id)
	if err != nil {
		s.log.WithError(err).WithField("customer_id", id).Warn("failed to reload customer for event")
		return
	}
	s.events.PublishCustomer(EventCustomerUpdated, customer)
}
