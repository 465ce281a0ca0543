// Package feed carries change events from the server to every terminal of a
// venue. Events always hold the full updated record, never a diff, so a
// receiver can replace its cached copy without knowing what changed.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
)

// Entity names the kind of record an event carries.
type Entity string

const (
	EntityOrders Entity = "orders"
	EntityTables Entity = "tables"
)

// Op is the kind of change.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Event is one change notification.
type Event struct {
	VenueID string `json:"venue_id"`
	Entity  Entity `json:"entity"`
	Op      Op     `json:"op"`

	// ID and Version identify the record revision carried in Record.
	ID      string `json:"id"`
	Version int64  `json:"version"`

	Record json.RawMessage `json:"record"`
}

// NewEvent marshals record into an Event.
func NewEvent(venueID string, entity Entity, op Op, id string, version int64, record any) (Event, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal %s record: %w", entity, err)
	}
	return Event{
		VenueID: venueID,
		Entity:  entity,
		Op:      op,
		ID:      id,
		Version: version,
		Record:  raw,
	}, nil
}

// Publisher sends events to every subscriber of the event's venue.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Subscriber delivers the events of one venue. The returned channel is
// closed when ctx is done or the transport drops the subscription; the
// caller is expected to resubscribe and resnapshot in that case.
type Subscriber interface {
	Subscribe(ctx context.Context, venueID string) (<-chan Event, error)
}

// Bus is both ends of a transport.
type Bus interface {
	Publisher
	Subscriber
	Close() error
}
