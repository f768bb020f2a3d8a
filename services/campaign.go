package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"fitness-crm/models"
	"fitness-crm/monitoring"
	"fitness-crm/utils"
)

// Sender delivers one rendered message over a channel.
type Sender interface {
	Send(ctx context.Context, recipient, subject, body string) error
}

type smsSender struct {
	client *utils.SMSClient
}

func NewSMSSender(client *utils.SMSClient) Sender {
	return &smsSender{client: client}
}

func (s *smsSender) Send(ctx context.Context, recipient, _, body string) error {
	_, err := s.client.Send(ctx, recipient, body)
	return err
}

type emailSender struct {
	mailer *utils.Mailer
}

func NewEmailSender(mailer *utils.Mailer) Sender {
	return &emailSender{mailer: mailer}
}

func (s *emailSender) Send(_ context.Context, recipient, subject, body string) error {
	return s.mailer.Send(recipient, subject, body)
}

// CampaignStore is the data the dispatcher needs.
type CampaignStore interface {
	GetCampaign(ctx context.Context, id uint) (*models.Campaign, error)
	DueCampaigns(ctx context.Context, now time.Time) ([]models.Campaign, error)
	TransitionCampaign(ctx context.Context, id uint, from []models.CampaignStatus, to models.CampaignStatus) error
	AudienceFor(ctx context.Context, campaign *models.Campaign, now time.Time) ([]models.Customer, error)
	SaveCampaignMessage(ctx context.Context, msg *models.CampaignMessage) error
	FinishCampaign(ctx context.Context, id uint, status models.CampaignStatus, sent, failed int, at time.Time) error
	ActiveMembership(ctx context.Context, customerID uint, now time.Time) (*models.Membership, error)
}

type CampaignService struct {
	repo    CampaignStore
	senders map[string]Sender
	events  *EventPublisher
	limiter *rate.Limiter
	log     logrus.FieldLogger
	now     func() time.Time
	wg      sync.WaitGroup
}

// NewCampaignService builds the dispatcher. Channels without a sender are
// refused when a campaign is started. perSecond <= 0 disables throttling.
func NewCampaignService(repo CampaignStore, senders map[string]Sender, events *EventPublisher, perSecond float64, log logrus.FieldLogger) *CampaignService {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}

	active := make(map[string]Sender, len(senders))
	for channel, sender := range senders {
		if sender != nil {
			active[channel] = sender
		}
	}

	return &CampaignService{
		repo:    repo,
		senders: active,
		events:  events,
		limiter: rate.NewLimiter(limit, 1),
		log:     log.WithField("component", "campaigns"),
		now:     time.Now,
	}
}

// HasChannel reports whether messages can be sent over channel.
func (s *CampaignService) HasChannel(channel string) bool {
	_, ok := s.senders[channel]
	return ok
}

var startable = []models.CampaignStatus{models.CampaignDraft, models.CampaignScheduled}

func (s *CampaignService) begin(ctx context.Context, id uint) (*models.Campaign, error) {
	campaign, err := s.repo.GetCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	if !campaign.Editable() {
		return nil, ErrCampaignState
	}
	if !s.HasChannel(campaign.Template.Channel) {
		return nil, ErrChannelUnavailable
	}

	err = s.repo.TransitionCampaign(ctx, id, startable, models.CampaignSending)
	if errors.Is(err, models.ErrConflict) {
		return nil, ErrCampaignState
	}
	if err != nil {
		return nil, err
	}

	now := s.now()
	campaign.Status = models.CampaignSending
	campaign.StartedAt = &now
	return campaign, nil
}

// Start moves the campaign to sending and delivers it in the background.
func (s *CampaignService) Start(ctx context.Context, id uint) (*models.Campaign, error) {
	campaign, err := s.begin(ctx, id)
	if err != nil {
		return nil, err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.deliver(context.WithoutCancel(ctx), campaign); err != nil {
			s.log.WithError(err).WithField("campaign_id", id).Error("campaign delivery failed")
		}
	}()

	return campaign, nil
}

// Dispatch sends the campaign and returns once every message was attempted.
func (s *CampaignService) Dispatch(ctx context.Context, id uint) error {
	campaign, err := s.begin(ctx, id)
	if err != nil {
		return err
	}
	return s.deliver(ctx, campaign)
}

// DispatchDue sends every scheduled campaign whose time has come and returns
// how many were sent. Campaigns taken by another dispatcher are skipped.
func (s *CampaignService) DispatchDue(ctx context.Context) (int, error) {
	due, err := s.repo.DueCampaigns(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("load due campaigns: %w", err)
	}

	dispatched := 0
	var errs []error
	for _, campaign := range due {
		err := s.Dispatch(ctx, campaign.ID)
		switch {
		case err == nil:
			dispatched++
		case errors.Is(err, ErrCampaignState):
			s.log.WithField("campaign_id", campaign.ID).Debug("campaign already taken")
		default:
			errs = append(errs, fmt.Errorf("campaign %d: %w", campaign.ID, err))
		}
	}

	return dispatched, errors.Join(errs...)
}

// Cancel stops a draft or scheduled campaign.
func (s *CampaignService) Cancel(ctx context.Context, id uint) error {
	err := s.repo.TransitionCampaign(ctx, id, startable, models.CampaignCanceled)
	if errors.Is(err, models.ErrConflict) {
		return ErrCampaignState
	}
	return err
}

// Wait blocks until background deliveries have finished.
func (s *CampaignService) Wait() {
	s.wg.Wait()
}

func (s *CampaignService) deliver(ctx context.Context, campaign *models.Campaign) error {
	log := s.log.WithFields(logrus.Fields{"campaign_id": campaign.ID, "channel": campaign.Template.Channel})

	// Bookkeeping outlives ctx: once a campaign is sending it must always be
	// finished, even when delivery is cut short by shutdown or a job timeout.
	store := context.WithoutCancel(ctx)

	audience, err := s.repo.AudienceFor(ctx, campaign, s.now())
	if err != nil {
		if ferr := s.repo.FinishCampaign(store, campaign.ID, models.CampaignFailed, 0, 0, s.now()); ferr != nil {
			log.WithError(ferr).Error("failed to mark campaign failed")
		}
		return fmt.Errorf("resolve audience: %w", err)
	}

	log.WithField("audience", len(audience)).Info("campaign delivery started")

	sender := s.senders[campaign.Template.Channel]
	sent, failed := 0, 0
	for i := range audience {
		msg := s.deliverOne(ctx, campaign, sender, &audience[i])
		switch msg.Status {
		case models.MessageSent:
			sent++
		case models.MessageFailed:
			failed++
		}
		monitoring.CampaignMessages.WithLabelValues(msg.Channel, msg.Status).Inc()

		if err := s.repo.SaveCampaignMessage(store, msg); err != nil {
			log.WithError(err).WithField("customer_id", msg.CustomerID).Error("failed to record campaign message")
		}
	}

	status := models.CampaignSent
	if failed > 0 && sent == 0 {
		status = models.CampaignFailed
	}

	campaign.Status = status
	campaign.SentCount = sent
	campaign.FailedCount = failed
	finished := s.now()
	campaign.FinishedAt = &finished

	if err := s.repo.FinishCampaign(store, campaign.ID, status, sent, failed, finished); err != nil {
		return fmt.Errorf("finish campaign: %w", err)
	}

	log.WithFields(logrus.Fields{"sent": sent, "failed": failed, "status": status}).Info("campaign delivery finished")

	s.events.PublishAsync(EventCampaignSent, campaign.ID, campaign.BranchID, map[string]any{
		"name":   campaign.Name,
		"status": status,
		"sent":   sent,
		"failed": failed,
	})
	return nil
}

func (s *CampaignService) deliverOne(ctx context.Context, campaign *models.Campaign, sender Sender, customer *models.Customer) *models.CampaignMessage {
	channel := campaign.Template.Channel
	data := s.templateData(ctx, customer)

	msg := &models.CampaignMessage{
		CampaignID: campaign.ID,
		CustomerID: customer.ID,
		Channel:    channel,
		Recipient:  recipientFor(channel, customer),
		Body:       RenderTemplate(campaign.Template.Body, data),
	}

	if msg.Recipient == "" {
		msg.Status = models.MessageSkipped
		msg.Error = "no " + channel + " contact"
		return msg
	}

	if err := s.limiter.Wait(ctx); err != nil {
		msg.Status = models.MessageFailed
		msg.Error = err.Error()
		return msg
	}

	subject := RenderTemplate(campaign.Template.Subject, data)
	if err := sender.Send(ctx, msg.Recipient, subject, msg.Body); err != nil {
		msg.Status = models.MessageFailed
		msg.Error = err.Error()
		return msg
	}

	now := s.now()
	msg.Status = models.MessageSent
	msg.SentAt = &now
	return msg
}

func recipientFor(channel string, customer *models.Customer) string {
	switch channel {
	case models.ChannelSMS:
		return customer.Phone
	case models.ChannelEmail:
		return customer.Email
	default:
		return ""
	}
}

func (s *CampaignService) templateData(ctx context.Context, customer *models.Customer) TemplateData {
	data := TemplateData{Name: customer.Name, Branch: customer.Branch.Name}

	membership, err := s.repo.ActiveMembership(ctx, customer.ID, s.now())
	if err == nil {
		data.Product = membership.Product.Name
		data.EndDate = membership.EndDate.Format(DateLayout)
	} else if !errors.Is(err, models.ErrNotFound) {
		s.log.WithError(err).WithField("customer_id", customer.ID).Warn("failed to load membership for template")
	}

	return data
}

// Preview renders a template for one customer, or for a sample customer
// when none is given.
func (s *CampaignService) Preview(ctx context.Context, tpl *models.MessageTemplate, customer *models.Customer) (string, string) {
	data := TemplateData{
		Name:    "Jane Doe",
		Branch:  "Main branch",
		Product: "12-month membership",
		EndDate: s.now().AddDate(0, 1, 0).Format(DateLayout),
	}
	if customer != nil {
		data = s.templateData(ctx, customer)
	}

	return RenderTemplate(tpl.Subject, data), RenderTemplate(tpl.Body, data)
}
