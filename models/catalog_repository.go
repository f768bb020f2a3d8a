package models

import (
	"context"
	"time"

	"gorm.io/gorm"
)

func (r *PostgresRepository) CreateProduct(ctx context.Context, product *Product) error {
	return translate(r.db.WithContext(ctx).Create(product).Error)
}

func (r *PostgresRepository) GetProduct(ctx context.Context, id uint) (*Product, error) {
	var product Product
	if err := r.db.WithContext(ctx).First(&product, id).Error; err != nil {
		return nil, translate(err)
	}
	return &product, nil
}

func (r *PostgresRepository) ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error) {
	q := r.db.WithContext(ctx)
	if filter.Category != "" {
		q = q.Where("category = ?", filter.Category)
	}
	if filter.BranchID != nil {
		q = q.Where("branch_id = ? OR branch_id IS NULL", *filter.BranchID)
	}
	if filter.Active != nil {
		q = q.Where("active = ?", *filter.Active)
	}

	var products []Product
	err := q.Order("category, price").Find(&products).Error
	return products, translate(err)
}

func (r *PostgresRepository) UpdateProduct(ctx context.Context, product *Product) error {
	return translate(r.db.WithContext(ctx).Save(product).Error)
}

func (r *PostgresRepository) DeleteProduct(ctx context.Context, id uint) error {
	return deleted(r.db.WithContext(ctx).Delete(&Product{}, id))
}

func (r *PostgresRepository) CreateTemplate(ctx context.Context, template *MessageTemplate) error {
	return translate(r.db.WithContext(ctx).Create(template).Error)
}

func (r *PostgresRepository) GetTemplate(ctx context.Context, id uint) (*MessageTemplate, error) {
	var template MessageTemplate
	if err := r.db.WithContext(ctx).First(&template, id).Error; err != nil {
		return nil, translate(err)
	}
	return &template, nil
}

func (r *PostgresRepository) ListTemplates(ctx context.Context, branchID *uint) ([]MessageTemplate, error) {
	q := r.db.WithContext(ctx)
	if branchID != nil {
		q = q.Where("branch_id = ? OR branch_id IS NULL", *branchID)
	}

	var templates []MessageTemplate
	err := q.Order("name").Find(&templates).Error
	return templates, translate(err)
}

func (r *PostgresRepository) UpdateTemplate(ctx context.Context, template *MessageTemplate) error {
	return translate(r.db.WithContext(ctx).Save(template).Error)
}

func (r *PostgresRepository) DeleteTemplate(ctx context.Context, id uint) error {
	db := r.db.WithContext(ctx)

	var refs int64
	err := db.Model(&Campaign{}).
		Where("template_id = ? AND status IN ?", id,
			[]CampaignStatus{CampaignDraft, CampaignScheduled, CampaignSending}).
		Count(&refs).Error
	if err != nil {
		return translate(err)
	}
	if refs > 0 {
		return ErrInUse
	}

	return deleted(db.Delete(&MessageTemplate{}, id))
}

func (r *PostgresRepository) CreateCampaign(ctx context.Context, campaign *Campaign) error {
	return translate(r.db.WithContext(ctx).Omit("Template").Create(campaign).Error)
}

func (r *PostgresRepository) GetCampaign(ctx context.Context, id uint) (*Campaign, error) {
	var campaign Campaign
	if err := r.db.WithContext(ctx).Preload("Template").First(&campaign, id).Error; err != nil {
		return nil, translate(err)
	}
	return &campaign, nil
}

func (r *PostgresRepository) ListCampaigns(ctx context.Context, filter CampaignFilter) ([]Campaign, error) {
	q := r.db.WithContext(ctx).Preload("Template")
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.BranchID != nil {
		q = q.Where("branch_id = ?", *filter.BranchID)
	}

	var campaigns []Campaign
	err := q.Order("created_at DESC").Find(&campaigns).Error
	return campaigns, translate(err)
}

func (r *PostgresRepository) UpdateCampaign(ctx context.Context, campaign *Campaign) error {
	return translate(r.db.WithContext(ctx).Omit("Template").Save(campaign).Error)
}

func (r *PostgresRepository) DeleteCampaign(ctx context.Context, id uint) error {
	db := r.db.WithContext(ctx)

	var campaign Campaign
	if err := db.First(&campaign, id).Error; err != nil {
		return translate(err)
	}
	if campaign.Status == CampaignSending {
		return ErrConflict
	}

	return deleted(db.Delete(&Campaign{}, id))
}

func (r *PostgresRepository) DueCampaigns(ctx context.Context, now time.Time) ([]Campaign, error) {
	var campaigns []Campaign
	err := r.db.WithContext(ctx).
		Where("status = ? AND scheduled_at <= ?", CampaignScheduled, now).
		Order("scheduled_at").
		Find(&campaigns).Error
	return campaigns, translate(err)
}

// TransitionCampaign moves a campaign to status `to` only if it is currently
// in one of `from`. Losing a race yields ErrConflict.
func (r *PostgresRepository) TransitionCampaign(ctx context.Context, id uint, from []CampaignStatus, to CampaignStatus) error {
	updates := map[string]any{"status": to}
	if to == CampaignSending {
		updates["started_at"] = time.Now()
	}

	db := r.db.WithContext(ctx)
	res := db.Model(&Campaign{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var exists int64
	if err := db.Model(&Campaign{}).Where("id = ?", id).Count(&exists).Error; err != nil {
		return translate(err)
	}
	if exists == 0 {
		return ErrNotFound
	}
	return ErrConflict
}

// AudienceFor resolves the customers a campaign targets. Only customers who
// accepted marketing messages are ever returned.
func (r *PostgresRepository) AudienceFor(ctx context.Context, campaign *Campaign, now time.Time) ([]Customer, error) {
	q := r.db.WithContext(ctx).Where("marketing_consent = ?", true)
	if campaign.BranchID != nil {
		q = q.Where("branch_id = ?", *campaign.BranchID)
	}

	switch campaign.Audience {
	case AudienceConsultation:
		q = q.Where("status = ?", CustomerConsultation)
	case AudienceRegistered:
		q = q.Where("status = ?", CustomerRegistered)
	case AudienceExpired:
		q = q.Where("status = ?", CustomerExpired)
	case AudienceExpiring:
		q = expiringWithin(q, now, campaign.ExpiringWithinDays)
	}

	var customers []Customer
	err := q.Preload("Branch").Order("id").Find(&customers).Error
	return customers, translate(err)
}

func expiringWithin(q *gorm.DB, now time.Time, days int) *gorm.DB {
	today := startOfDay(now)
	return q.Where("status = ?", CustomerRegistered).
		Where(`EXISTS (SELECT 1 FROM memberships m
			WHERE m.customer_id = customers.id AND m.status = ? AND m.deleted_at IS NULL
			AND m.end_date BETWEEN ? AND ?)`,
			MembershipActive, today, today.AddDate(0, 0, days))
}

func (r *PostgresRepository) SaveCampaignMessage(ctx context.Context, msg *CampaignMessage) error {
	return translate(r.db.WithContext(ctx).Create(msg).Error)
}

func (r *PostgresRepository) FinishCampaign(ctx context.Context, id uint, status CampaignStatus, sent, failed int, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&Campaign{}).
		Where("id = ? AND status = ?", id, CampaignSending).
		Updates(map[string]any{
			"status":       status,
			"sent_count":   sent,
			"failed_count": failed,
			"finished_at":  at,
		})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

func (r *PostgresRepository) ListCampaignMessages(ctx context.Context, campaignID uint, page Page) ([]CampaignMessage, int64, error) {
	page = page.Normalize()
	db := r.db.WithContext(ctx)

	var total int64
	if err := db.Model(&CampaignMessage{}).Where("campaign_id = ?", campaignID).Count(&total).Error; err != nil {
		return nil, 0, translate(err)
	}

	var messages []CampaignMessage
	err := db.Where("campaign_id = ?", campaignID).
		Order("id").
		Offset(page.Offset()).
		Limit(page.PageSize).
		Find(&messages).Error
	if err != nil {
		return nil, 0, translate(err)
	}
	return messages, total, nil
}
