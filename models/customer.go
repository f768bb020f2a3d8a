package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type CustomerStatus string

const (
	CustomerConsultation CustomerStatus = "consultation"
	CustomerRegistered   CustomerStatus = "registered"
	CustomerExpired      CustomerStatus = "expired"
)

type Customer struct {
	gorm.Model
	Name             string         `gorm:"size:100;not null"`
	Phone            string         `gorm:"size:50;not null;index"`
	Email            string         `gorm:"size:255"`
	Gender           string         `gorm:"size:10"`
	BirthDate        *time.Time     `gorm:"type:date"`
	BranchID         uint           `gorm:"not null;index"`
	Branch           Branch
	ManagerID        *uint
	Status           CustomerStatus `gorm:"size:20;not null;index"`
	Source           string         `gorm:"size:50"`
	Occupation       string         `gorm:"size:100"`
	Goal             string         `gorm:"size:255"`
	Notes            string
	MarketingConsent bool `gorm:"not null;default:false"`
}

type ConsultationResult string

const (
	ResultPending     ConsultationResult = "pending"
	ResultRegistered  ConsultationResult = "registered"
	ResultConsidering ConsultationResult = "considering"
	ResultDeclined    ConsultationResult = "declined"
)

type Consultation struct {
	gorm.Model
	CustomerID   uint `gorm:"not null;index"`
	BranchID     uint `gorm:"not null;index"`
	ConsultantID *uint
	ScheduledAt  time.Time `gorm:"not null"`
	VisitedAt    *time.Time
	Channel      string             `gorm:"size:20;not null"`
	Interest     string             `gorm:"size:100"`
	Content      string
	Result       ConsultationResult `gorm:"size:20;not null"`
}

type MembershipStatus string

const (
	MembershipActive   MembershipStatus = "active"
	MembershipExpired  MembershipStatus = "expired"
	MembershipCanceled MembershipStatus = "canceled"
)

type Membership struct {
	gorm.Model
	CustomerID uint `gorm:"not null;index"`
	ProductID  uint `gorm:"not null"`
	Product    Product
	BranchID   uint            `gorm:"not null;index"`
	StartDate  time.Time       `gorm:"type:date;not null"`
	EndDate    time.Time       `gorm:"type:date;not null;index"`
	PaidAmount decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Status     MembershipStatus `gorm:"size:20;not null;index"`
	Memo       string
}

// Code is the value encoded into the membership card.
func (m *Membership) Code() string {
	return "MBR-" + uintToString(m.ID) + "-" + uintToString(m.CustomerID)
}

// CustomerFilter narrows customer lists. Nil pointers mean "any".
type CustomerFilter struct {
	Status    CustomerStatus
	BranchID  *uint
	ManagerID *uint
	Query     string
}

// Page is a 1-based page request.
type Page struct {
	Page     int
	PageSize int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
	return p
}

func (p Page) Offset() int {
	n := p.Normalize()
	return (n.Page - 1) * n.PageSize
}
