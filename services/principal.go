package services

import "fitness-crm/models"

// Principal is the authenticated staff member behind a request.
type Principal struct {
	UserID      uint                 `json:"user_id"`
	SessionID   string               `json:"-"`
	Username    string               `json:"username"`
	Name        string               `json:"name"`
	RoleName    string               `json:"role"`
	BranchID    *uint                `json:"branch_id,omitempty"`
	AllBranches bool                 `json:"all_branches"`
	Permissions models.PermissionSet `json:"permissions"`
}

func principalOf(user *models.User, sessionID string) *Principal {
	return &Principal{
		UserID:      user.ID,
		SessionID:   sessionID,
		Username:    user.Username,
		Name:        user.Name,
		RoleName:    user.Role.Name,
		BranchID:    user.BranchID,
		AllBranches: user.Role.AllBranches,
		Permissions: user.Role.Permissions,
	}
}

func (p *Principal) Can(area, action string) bool {
	return p != nil && p.Permissions.Allows(area, action)
}

func (p *Principal) scoped() bool {
	return !p.AllBranches
}

// Unassigned reports a branch-bound principal whose account has no branch.
// Such a principal sees no branch at all.
func (p *Principal) Unassigned() bool {
	return p.scoped() && p.BranchID == nil
}

// ScopeBranch returns the branch a query must be limited to. Branch-bound
// staff always get their own branch regardless of what they asked for; an
// unassigned one gets branch 0, which matches no rows.
func (p *Principal) ScopeBranch(requested *uint) *uint {
	if !p.scoped() {
		return requested
	}
	if p.BranchID == nil {
		none := uint(0)
		return &none
	}
	return p.BranchID
}

// CanAccessBranch reports whether a record that belongs to branchID is
// visible to the principal.
func (p *Principal) CanAccessBranch(branchID uint) bool {
	if !p.scoped() {
		return true
	}
	return p.BranchID != nil && *p.BranchID == branchID
}

// CanAccessOptionalBranch is CanAccessBranch for records that may be shared
// by every branch (nil branch).
func (p *Principal) CanAccessOptionalBranch(branchID *uint) bool {
	return branchID == nil || p.CanAccessBranch(*branchID)
}

// Sections lists the areas the principal may open at all.
func (p *Principal) Sections() []string {
	sections := make([]string, 0, len(models.Areas))
	for _, area := range models.Areas {
		if p.Can(area, models.ActionView) {
			sections = append(sections, area)
		}
	}
	return sections
}
