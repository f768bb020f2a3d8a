package models

import (
	"time"

	"gorm.io/gorm"
)

// Permission areas. Each area carries its own set of action flags.
const (
	AreaCustomers  = "customers"
	AreaProducts   = "products"
	AreaCampaigns  = "campaigns"
	AreaStatistics = "statistics"
	AreaSettings   = "settings"
)

const (
	ActionView   = "view"
	ActionCreate = "create"
	ActionEdit   = "edit"
	ActionDelete = "delete"
	ActionSend   = "send"
)

var Areas = []string{AreaCustomers, AreaProducts, AreaCampaigns, AreaStatistics, AreaSettings}

type Permission struct {
	View   bool `json:"view" yaml:"view"`
	Create bool `json:"create" yaml:"create"`
	Edit   bool `json:"edit" yaml:"edit"`
	Delete bool `json:"delete" yaml:"delete"`
	Send   bool `json:"send" yaml:"send"`
}

// PermissionSet maps an area to its flags. Unknown areas grant nothing.
type PermissionSet map[string]Permission

func (p PermissionSet) Allows(area, action string) bool {
	perm, ok := p[area]
	if !ok {
		return false
	}

	switch action {
	case ActionView:
		return perm.View
	case ActionCreate:
		return perm.Create
	case ActionEdit:
		return perm.Edit
	case ActionDelete:
		return perm.Delete
	case ActionSend:
		return perm.Send
	default:
		return false
	}
}

type Branch struct {
	gorm.Model
	Name    string `gorm:"size:100;not null;uniqueIndex"`
	Address string `gorm:"size:255"`
	Phone   string `gorm:"size:50"`
}

type Role struct {
	gorm.Model
	Name        string        `gorm:"size:50;not null;uniqueIndex"`
	Description string        `gorm:"size:255"`
	AllBranches bool          `gorm:"not null;default:false"`
	Permissions PermissionSet `gorm:"type:jsonb;serializer:json"`
}

type User struct {
	gorm.Model
	Username     string `gorm:"size:50;not null;uniqueIndex"`
	PasswordHash string `gorm:"not null"`
	Name         string `gorm:"size:100;not null"`
	Email        string `gorm:"size:255"`
	Phone        string `gorm:"size:50"`
	RoleID       uint   `gorm:"not null"`
	Role         Role
	BranchID     *uint
	Branch       *Branch
	Active       bool `gorm:"not null;default:true"`
	LastLoginAt  *time.Time
}
