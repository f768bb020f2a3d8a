package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"fitness-crm/monitoring"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")
	ErrInUse     = errors.New("record is still referenced")
	ErrConflict  = errors.New("record was changed concurrently")
)

type AccountRepository interface {
	CreateBranch(ctx context.Context, branch *Branch) error
	GetBranch(ctx context.Context, id uint) (*Branch, error)
	ListBranches(ctx context.Context) ([]Branch, error)
	UpdateBranch(ctx context.Context, branch *Branch) error
	DeleteBranch(ctx context.Context, id uint) error

	CreateRole(ctx context.Context, role *Role) error
	GetRole(ctx context.Context, id uint) (*Role, error)
	GetRoleByName(ctx context.Context, name string) (*Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	UpdateRole(ctx context.Context, role *Role) error
	DeleteRole(ctx context.Context, id uint) error

	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id uint) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	ListUsers(ctx context.Context, branchID *uint) ([]User, error)
	UpdateUser(ctx context.Context, user *User) error
	DeleteUser(ctx context.Context, id uint) error
	TouchLogin(ctx context.Context, id uint, at time.Time) error
}

type CustomerRepository interface {
	CreateCustomer(ctx context.Context, customer *Customer, first *Consultation) error
	GetCustomer(ctx context.Context, id uint) (*Customer, error)
	ListCustomers(ctx context.Context, filter CustomerFilter, page Page) ([]Customer, int64, error)
	UpdateCustomer(ctx context.Context, customer *Customer) error
	DeleteCustomer(ctx context.Context, id uint) error

	CreateConsultation(ctx context.Context, consultation *Consultation) error
	GetConsultation(ctx context.Context, id uint) (*Consultation, error)
	UpdateConsultation(ctx context.Context, consultation *Consultation) error
	ListConsultations(ctx context.Context, customerID uint) ([]Consultation, error)

	RegisterMembership(ctx context.Context, membership *Membership) error
	GetMembership(ctx context.Context, id uint) (*Membership, error)
	ListMemberships(ctx context.Context, customerID uint) ([]Membership, error)
	ActiveMembership(ctx context.Context, customerID uint, now time.Time) (*Membership, error)
	CancelMembership(ctx context.Context, id uint) error
	ExpireLapsedMemberships(ctx context.Context, now time.Time) ([]uint, error)
}

type ProductRepository interface {
	CreateProduct(ctx context.Context, product *Product) error
	GetProduct(ctx context.Context, id uint) (*Product, error)
	ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error)
	UpdateProduct(ctx context.Context, product *Product) error
	DeleteProduct(ctx context.Context, id uint) error
}

type CampaignRepository interface {
	CreateTemplate(ctx context.Context, template *MessageTemplate) error
	GetTemplate(ctx context.Context, id uint) (*MessageTemplate, error)
	ListTemplates(ctx context.Context, branchID *uint) ([]MessageTemplate, error)
	UpdateTemplate(ctx context.Context, template *MessageTemplate) error
	DeleteTemplate(ctx context.Context, id uint) error

	CreateCampaign(ctx context.Context, campaign *Campaign) error
	GetCampaign(ctx context.Context, id uint) (*Campaign, error)
	ListCampaigns(ctx context.Context, filter CampaignFilter) ([]Campaign, error)
	UpdateCampaign(ctx context.Context, campaign *Campaign) error
	DeleteCampaign(ctx context.Context, id uint) error

	DueCampaigns(ctx context.Context, now time.Time) ([]Campaign, error)
	TransitionCampaign(ctx context.Context, id uint, from []CampaignStatus, to CampaignStatus) error
	AudienceFor(ctx context.Context, campaign *Campaign, now time.Time) ([]Customer, error)
	SaveCampaignMessage(ctx context.Context, msg *CampaignMessage) error
	FinishCampaign(ctx context.Context, id uint, status CampaignStatus, sent, failed int, at time.Time) error
	ListCampaignMessages(ctx context.Context, campaignID uint, page Page) ([]CampaignMessage, int64, error)
}

type Repository interface {
	AccountRepository
	CustomerRepository
	ProductRepository
	CampaignRepository
	StatisticsRepository
	Ping(ctx context.Context) error
	Close() error
}

type PostgresRepository struct {
	db *gorm.DB
}

func NewPostgresRepository(dsn string, log *logrus.Logger) (*PostgresRepository, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger: logger.New(log, logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(
		&Branch{},
		&Role{},
		&User{},
		&Customer{},
		&Consultation{},
		&Product{},
		&Membership{},
		&MessageTemplate{},
		&Campaign{},
		&CampaignMessage{},
	); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate database: %w", err)
	}

	return NewRepositoryFromDB(db), nil
}

// NewRepositoryFromDB wraps an already opened connection without migrating it.
func NewRepositoryFromDB(db *gorm.DB) *PostgresRepository {
	countQueries(db)
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (r *PostgresRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func countQueries(db *gorm.DB) {
	inc := func(*gorm.DB) { monitoring.DatabaseQueries.Inc() }

	cb := db.Callback()
	_ = cb.Create().After("gorm:create").Register("metrics:create", inc)
	_ = cb.Query().After("gorm:query").Register("metrics:query", inc)
	_ = cb.Update().After("gorm:update").Register("metrics:update", inc)
	_ = cb.Delete().After("gorm:delete").Register("metrics:delete", inc)
	_ = cb.Raw().After("gorm:raw").Register("metrics:raw", inc)
	_ = cb.Row().After("gorm:row").Register("metrics:row", inc)
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return ErrInUse
	default:
		return err
	}
}

// deleted maps a delete result to ErrNotFound when nothing matched.
func deleted(res *gorm.DB) error {
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
