// Package amqpfeed is a feed.Bus on a RabbitMQ topic exchange, used to fan
// change events out across server replicas.
//
// Events are published to the Exchange with routing key "<venue>.<entity>".
// Each subscription declares its own exclusive, auto-deleted queue bound to
// "<venue>.*", so every subscriber sees every event of its venue.
package amqpfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/mmynk/tableside/internal/feed"
	"github.com/mmynk/tableside/internal/metrics"
	"github.com/mmynk/tableside/internal/models"
)

// Exchange is the topic exchange events are published to.
const Exchange = "tableside.changes"

var _ feed.Bus = (*Bus)(nil)

// Bus publishes and consumes change events over AMQP.
type Bus struct {
	url            string
	reconnectDelay time.Duration

	mu           sync.Mutex
	conn         *amqp.Connection
	ch           *amqp.Channel
	reconnecting bool
	closed       bool
	done         chan struct{}
}

// Dial connects to the broker at url and declares the exchange.
func Dial(url string) (*Bus, error) {
	b := &Bus{
		url:            url,
		reconnectDelay: 5 * time.Second,
		done:           make(chan struct{}),
	}
	if err := b.connect(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Bus) connect() error {
	conn, err := amqp.Dial(b.url)
	if err != nil {
		return fmt.Errorf("failed to dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		conn.Close()
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	b.mu.Lock()
	b.conn = conn
	b.ch = ch
	b.mu.Unlock()

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	go func() {
		select {
		case err, ok := <-closed:
			if ok {
				slog.Warn("RabbitMQ connection lost", "error", err)
				go b.reconnect()
			}
		case <-b.done:
		}
	}()
	return nil
}

// reconnect redials until it succeeds or the bus is closed.
func (b *Bus) reconnect() {
	b.mu.Lock()
	if b.reconnecting || b.closed {
		b.mu.Unlock()
		return
	}
	b.reconnecting = true
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.reconnecting = false
		b.mu.Unlock()
	}()

	t := time.NewTicker(b.reconnectDelay)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			if err := b.connect(); err != nil {
				slog.Info("RabbitMQ reconnect failed", "error", err)
				continue
			}
			slog.Info("RabbitMQ reconnected")
			return
		case <-b.done:
			return
		}
	}
}

// IsAlive reports whether the connection and publish channel are open.
func (b *Bus) IsAlive() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn != nil && !b.conn.IsClosed() && b.ch != nil && !b.ch.IsClosed()
}

// Publish sends event to the exchange.
func (b *Bus) Publish(ctx context.Context, event feed.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	b.mu.Lock()
	ch := b.ch
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return feed.ErrClosed
	}
	if ch == nil || ch.IsClosed() {
		return fmt.Errorf("%w: rabbitmq channel closed", models.ErrUnavailable)
	}

	err = ch.PublishWithContext(ctx, Exchange, RoutingKey(event.VenueID, event.Entity), false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Transient,
			Timestamp:    time.Now(),
			Body:         body,
		})
	if err != nil {
		return fmt.Errorf("%w: failed to publish event: %v", models.ErrUnavailable, err)
	}
	metrics.FeedEvents.WithLabelValues(string(event.Entity)).Inc()
	return nil
}

// Subscribe binds a private queue to the venue's events.
func (b *Bus) Subscribe(ctx context.Context, venueID string) (<-chan feed.Event, error) {
	b.mu.Lock()
	conn := b.conn
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return nil, feed.ErrClosed
	}
	if conn == nil || conn.IsClosed() {
		return nil, fmt.Errorf("%w: rabbitmq connection closed", models.ErrUnavailable)
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open channel: %v", models.ErrUnavailable, err)
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, BindingKey(venueID), Exchange, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to bind queue: %w", err)
	}
	deliveries, err := ch.ConsumeWithContext(ctx, q.Name, "", true, true, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to consume: %w", err)
	}

	out := make(chan feed.Event, feed.DefaultBuffer)
	metrics.FeedSubscribers.Inc()
	go func() {
		defer metrics.FeedSubscribers.Dec()
		defer close(out)
		defer ch.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				event, err := Decode(d.Body)
				if err != nil {
					slog.Error("Dropping malformed feed message", "routing_key", d.RoutingKey, "error", err)
					continue
				}
				if event.VenueID != venueID {
					slog.Warn("Dropping feed message for another venue", "routing_key", d.RoutingKey, "venue_id", event.VenueID)
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close stops reconnecting and closes the connection.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	close(b.done)

	if b.ch != nil && !b.ch.IsClosed() {
		if err := b.ch.Close(); err != nil {
			return fmt.Errorf("close rabbitmq channel: %w", err)
		}
	}
	if b.conn != nil && !b.conn.IsClosed() {
		if err := b.conn.Close(); err != nil {
			return fmt.Errorf("close rabbitmq connection: %w", err)
		}
	}
	return nil
}

// RoutingKey is the key an event of entity in venueID is published with.
func RoutingKey(venueID string, entity feed.Entity) string {
	return escape(venueID) + "." + string(entity)
}

// BindingKey matches every event of venueID.
func BindingKey(venueID string) string {
	return escape(venueID) + ".*"
}

// wordEscaper keeps a venue ID to one topic word. Underscore is escaped too,
// so distinct venue IDs never share a word.
var wordEscaper = strings.NewReplacer("_", "_5f", ".", "_2e", "*", "_2a", "#", "_23")

func escape(venueID string) string {
	return wordEscaper.Replace(venueID)
}

// Decode parses a message body into an Event.
func Decode(body []byte) (feed.Event, error) {
	var event feed.Event
	if err := json.Unmarshal(body, &event); err != nil {
		return feed.Event{}, fmt.Errorf("failed to decode event: %w", err)
	}
	if event.VenueID == "" || event.Entity == "" {
		return feed.Event{}, fmt.Errorf("event missing venue or entity")
	}
	return event, nil
}
