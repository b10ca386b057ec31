package broadcast

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/ThreeDotsLabs/watermill"
	watermillSQL "github.com/ThreeDotsLabs/watermill-sql/v2/pkg/sql"
	"github.com/ThreeDotsLabs/watermill/components/forwarder"

	"github.com/karangupta982/smart-event-booking-system/db"
	"github.com/karangupta982/smart-event-booking-system/event"
)

const outboxTopic = "availability_to_forward"

// OutboxBroadcaster publishes availability changes into the outbox table
// using the transaction carried in the context, so the publish is part of
// the allocation's atomic unit. The forwarder delivers committed rows to
// the transport in insertion order, which for a single event is commit
// order: the seat row lock is held until commit, so no two transactions for
// the same event interleave their outbox writes.
type OutboxBroadcaster struct {
	logger watermill.LoggerAdapter
}

func NewOutboxBroadcaster(logger watermill.LoggerAdapter) OutboxBroadcaster {
	return OutboxBroadcaster{
		logger: logger,
	}
}

func (b OutboxBroadcaster) PublishAvailabilityChanged(ctx context.Context, e event.AvailabilityChanged) error {
	tx, ok := db.TxFromContext(ctx)
	if !ok {
		return errors.New("no transaction in context")
	}

	sqlPublisher, err := watermillSQL.NewPublisher(
		tx.Tx,
		watermillSQL.PublisherConfig{
			SchemaAdapter: watermillSQL.DefaultPostgreSQLSchema{},
		},
		b.logger,
	)
	if err != nil {
		return fmt.Errorf("creating sql publisher: %w", err)
	}

	publisher := forwarder.NewPublisher(sqlPublisher, forwarder.PublisherConfig{
		ForwarderTopic: outboxTopic,
	})

	decoratedPublisher := log.CorrelationPublisherDecorator{Publisher: publisher}

	bus, err := newEventBus(decoratedPublisher, b.logger)
	if err != nil {
		return fmt.Errorf("creating sql event bus: %w", err)
	}

	if err := bus.Publish(ctx, e); err != nil {
		return fmt.Errorf("publishing to outbox: %w", err)
	}

	return nil
}
