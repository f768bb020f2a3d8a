package models

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	CategoryMembership = "membership"
	CategoryPT         = "pt"
	CategoryGroup      = "group"
	CategoryLocker     = "locker"
	CategoryOther      = "other"
)

type Product struct {
	gorm.Model
	Name         string          `gorm:"size:100;not null"`
	Category     string          `gorm:"size:20;not null;index"`
	Price        decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	DurationDays int             `gorm:"not null"`
	SessionCount int             `gorm:"not null;default:0"`
	BranchID     *uint           `gorm:"index"`
	Active       bool            `gorm:"not null;default:true"`
	Description  string
}

// EndDate returns the last day a membership bought on start stays valid.
func (p *Product) EndDate(start time.Time) time.Time {
	return start.AddDate(0, 0, p.DurationDays)
}

// ProductFilter narrows product lists. BranchID also matches products
// offered at every branch.
type ProductFilter struct {
	Category string
	BranchID *uint
	Active   *bool
}

const (
	ChannelSMS   = "sms"
	ChannelEmail = "email"
)

type MessageTemplate struct {
	gorm.Model
	Name     string `gorm:"size:100;not null"`
	Channel  string `gorm:"size:10;not null"`
	Subject  string `gorm:"size:255"`
	Body     string `gorm:"not null"`
	BranchID *uint  `gorm:"index"`
}

type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignScheduled CampaignStatus = "scheduled"
	CampaignSending   CampaignStatus = "sending"
	CampaignSent      CampaignStatus = "sent"
	CampaignFailed    CampaignStatus = "failed"
	CampaignCanceled  CampaignStatus = "canceled"
)

const (
	AudienceAll          = "all"
	AudienceConsultation = "consultation"
	AudienceRegistered   = "registered"
	AudienceExpiring     = "expiring"
	AudienceExpired      = "expired"
)

type Campaign struct {
	gorm.Model
	Name               string `gorm:"size:100;not null"`
	TemplateID         uint   `gorm:"not null;index"`
	Template           MessageTemplate
	BranchID           *uint          `gorm:"index"`
	Audience           string         `gorm:"size:20;not null"`
	ExpiringWithinDays int            `gorm:"not null;default:0"`
	ScheduledAt        *time.Time     `gorm:"index"`
	Status             CampaignStatus `gorm:"size:20;not null;index"`
	SentCount          int            `gorm:"not null;default:0"`
	FailedCount        int            `gorm:"not null;default:0"`
	StartedAt          *time.Time
	FinishedAt         *time.Time
	CreatedByID        uint
}

// Editable reports whether the campaign can still be changed or canceled.
func (c *Campaign) Editable() bool {
	return c.Status == CampaignDraft || c.Status == CampaignScheduled
}

const (
	MessageSent    = "sent"
	MessageFailed  = "failed"
	MessageSkipped = "skipped"
)

type CampaignMessage struct {
	gorm.Model
	CampaignID uint   `gorm:"not null;index"`
	CustomerID uint   `gorm:"not null"`
	Channel    string `gorm:"size:10;not null"`
	Recipient  string `gorm:"size:255"`
	Body       string
	Status     string `gorm:"size:10;not null"`
	Error      string
	SentAt     *time.Time
}

type CampaignFilter struct {
	Status   CampaignStatus
	BranchID *uint
}

func uintToString(v uint) string {
	return strconv.FormatUint(uint64(v), 10)
}
