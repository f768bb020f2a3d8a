package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"fitness-crm/services"
	"fitness-crm/utils"
)

const retryDelay = 5 * time.Second

// Indexer keeps the customer search index in step with the database.
type Indexer interface {
	IndexCustomer(ctx context.Context, doc utils.CustomerDocument) error
	DeleteCustomer(ctx context.Context, id uint) error
}

// StatsInvalidator drops cached dashboards of a branch and the global scope.
type StatsInvalidator interface {
	Invalidate(ctx context.Context, branchID *uint) error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// EventConsumer reads the events topic and refreshes the read side: the
// search index and the statistics cache.
type EventConsumer struct {
	reader   messageReader
	index    Indexer
	stats    StatsInvalidator
	log      logrus.FieldLogger
	shutdown chan struct{}
	done     chan struct{}
}

// NewEventConsumer joins groupID on topic. index may be nil when search is
// not configured.
func NewEventConsumer(broker, topic, groupID string, index Indexer, stats StatsInvalidator, log logrus.FieldLogger) *EventConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: []string{broker},
		Topic:   topic,
		GroupID: groupID,
		MaxWait: 10 * time.Second,
	})
	return newEventConsumer(reader, index, stats, log)
}

func newEventConsumer(reader messageReader, index Indexer, stats StatsInvalidator, log logrus.FieldLogger) *EventConsumer {
	return &EventConsumer{
		reader:   reader,
		index:    index,
		stats:    stats,
		log:      log.WithField("component", "consumer"),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (c *EventConsumer) Start(ctx context.Context) {
	c.log.Info("starting event consumer")

	go func() {
		defer close(c.done)
		for {
			select {
			case <-c.shutdown:
				return
			case <-ctx.Done():
				return
			default:
				c.processNext(ctx)
			}
		}
	}()
}

// Stop ends the read loop and closes the reader.
func (c *EventConsumer) Stop() {
	close(c.shutdown)
	if err := c.reader.Close(); err != nil {
		c.log.WithError(err).Error("failed to close kafka reader")
	}
	<-c.done
}

func (c *EventConsumer) processNext(ctx context.Context) {
	msg, err := c.reader.FetchMessage(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
			return
		}
		c.log.WithError(err).Warn("kafka read failed, retrying")
		select {
		case <-time.After(retryDelay):
		case <-c.shutdown:
		case <-ctx.Done():
		}
		return
	}

	if err := c.Handle(ctx, msg.Value); err != nil {
		c.log.WithError(err).WithField("offset", msg.Offset).Error("failed to handle event")
	}

	// failed events are committed as well; the next change of the customer reindexes it
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		c.log.WithError(err).Warn("failed to commit offset")
	}
}

// Handle applies one event: customer events update the search index and
// every event invalidates the statistics cache of its branch.
func (c *EventConsumer) Handle(ctx context.Context, value []byte) error {
	var event services.Event
	if err := json.Unmarshal(value, &event); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}

	log := c.log.WithFields(logrus.Fields{"event": event.Event, "id": event.ID})

	var errs []error
	if err := c.updateIndex(ctx, &event); err != nil {
		errs = append(errs, err)
	}

	if c.stats != nil {
		if err := c.stats.Invalidate(ctx, event.BranchID); err != nil {
			errs = append(errs, fmt.Errorf("invalidate statistics: %w", err))
		}
	}

	if len(errs) == 0 {
		log.Debug("event processed")
	}
	return errors.Join(errs...)
}

func (c *EventConsumer) updateIndex(ctx context.Context, event *services.Event) error {
	if c.index == nil {
		return nil
	}

	switch event.Event {
	case services.EventCustomerCreated, services.EventCustomerUpdated:
		var doc utils.CustomerDocument
		if err := json.Unmarshal(event.Data, &doc); err != nil {
			return fmt.Errorf("decode customer document: %w", err)
		}
		if doc.ID == 0 {
			doc.ID = event.ID
		}
		if err := c.index.IndexCustomer(ctx, doc); err != nil {
			return fmt.Errorf("index customer %d: %w", doc.ID, err)
		}
	case services.EventCustomerDeleted:
		if err := c.index.DeleteCustomer(ctx, event.ID); err != nil {
			return fmt.Errorf("remove customer %d from index: %w", event.ID, err)
		}
	}
	return nil
}
