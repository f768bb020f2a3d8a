package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"fitness-crm/models"
	"fitness-crm/monitoring"
	"fitness-crm/utils"
)

const (
	EventCustomerCreated      = "customer_created"
	EventCustomerUpdated      = "customer_updated"
	EventCustomerDeleted      = "customer_deleted"
	EventMembershipRegistered = "membership_registered"
	EventCampaignSent         = "campaign_sent"
	EventProductChanged       = "product_changed"
)

// Event is the envelope written to the events topic.
type Event struct {
	Event      string          `json:"event"`
	ID         uint            `json:"id"`
	BranchID   *uint           `json:"branch_id,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// CustomerDocumentOf is the payload of customer events and the search
// index document.
func CustomerDocumentOf(c *models.Customer) utils.CustomerDocument {
	return utils.CustomerDocument{
		ID:       c.ID,
		Name:     c.Name,
		Phone:    c.Phone,
		Email:    c.Email,
		BranchID: c.BranchID,
		Status:   string(c.Status),
		Source:   c.Source,
		Notes:    c.Notes,
	}
}

type EventPublisher struct {
	producer utils.KafkaProducer
	topic    string
	log      logrus.FieldLogger
	wg       sync.WaitGroup
}

// NewEventPublisher returns a publisher. A nil producer turns publishing
// into a no-op.
func NewEventPublisher(producer utils.KafkaProducer, topic string, log logrus.FieldLogger) *EventPublisher {
	return &EventPublisher{
		producer: producer,
		topic:    topic,
		log:      log.WithField("component", "events"),
	}
}

func (p *EventPublisher) Publish(ctx context.Context, name string, id uint, branchID *uint, data any) error {
	if p == nil || p.producer == nil {
		return nil
	}

	event := Event{
		Event:      name,
		ID:         id,
		BranchID:   branchID,
		OccurredAt: time.Now().UTC(),
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("marshal %s payload: %w", name, err)
		}
		event.Data = raw
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", name, err)
	}

	key := []byte(strconv.FormatUint(uint64(id), 10))
	if err := p.producer.SendMessage(ctx, p.topic, key, value); err != nil {
		monitoring.EventsPublished.WithLabelValues(name, "error").Inc()
		return fmt.Errorf("publish %s: %w", name, err)
	}

	monitoring.EventsPublished.WithLabelValues(name, "ok").Inc()
	return nil
}

// PublishAsync publishes in the background and only logs failures.
func (p *EventPublisher) PublishAsync(name string, id uint, branchID *uint, data any) {
	if p == nil || p.producer == nil {
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := p.Publish(ctx, name, id, branchID, data); err != nil {
			p.log.WithError(err).WithFields(logrus.Fields{"event": name, "id": id}).Error("failed to publish event")
		}
	}()
}

// Wait blocks until background publishes have finished.
func (p *EventPublisher) Wait() {
	if p == nil {
		return
	}
	p.wg.Wait()
}

// PublishCustomer publishes a customer event carrying its index document.
func (p *EventPublisher) PublishCustomer(name string, c *models.Customer) {
	branchID := c.BranchID
	p.PublishAsync(name, c.ID, &branchID, CustomerDocumentOf(c))
}
