// Package events publishes post lifecycle events to Redis and, when
// configured, to Kafka or RabbitMQ.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"nokoroa/internal/observability"

	"github.com/google/uuid"
)

// Type names a post lifecycle transition.
type Type string

const (
	PostCreated Type = "post_created"
	PostUpdated Type = "post_updated"
	PostDeleted Type = "post_deleted"
)

// FeedChannel is the Redis channel every instance publishes post events on
// and every feed hub subscribes to.
const FeedChannel = "posts:events"

// PostEvent describes one change to a post.
type PostEvent struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	PostID     uint      `json:"postId"`
	AuthorID   uint      `json:"authorId"`
	IsPublic   bool      `json:"isPublic"`
	OccurredAt time.Time `json:"occurredAt"`
}

// NewPostEvent stamps a new event with a fresh id and the current time.
func NewPostEvent(t Type, postID, authorID uint, isPublic bool) PostEvent {
	return PostEvent{
		ID:         uuid.NewString(),
		Type:       t,
		PostID:     postID,
		AuthorID:   authorID,
		IsPublic:   isPublic,
		OccurredAt: time.Now().UTC(),
	}
}

// Key is the partition/routing key for the event.
func (e PostEvent) Key() string {
	return fmt.Sprintf("%d", e.PostID)
}

// Encode renders the event as JSON.
func (e PostEvent) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses an encoded event.
func Decode(payload []byte) (PostEvent, error) {
	var e PostEvent
	if err := json.Unmarshal(payload, &e); err != nil {
		return PostEvent{}, fmt.Errorf("decode post event: %w", err)
	}
	if e.ID == "" || e.Type == "" {
		return PostEvent{}, errors.New("decode post event: missing id or type")
	}
	return e, nil
}

// Publisher delivers post events to one sink.
type Publisher interface {
	Publish(ctx context.Context, e PostEvent) error
	Close() error
}

// Sink is a named publisher.
type Sink struct {
	Name      string
	Publisher Publisher
}

// Fanout publishes each event to every sink. A failing sink does not stop
// the others; their errors are joined.
type Fanout struct {
	sinks []Sink
}

// NewFanout builds a publisher over sinks, skipping nil publishers.
func NewFanout(sinks ...Sink) *Fanout {
	f := &Fanout{}
	for _, s := range sinks {
		if s.Publisher != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

func (f *Fanout) Publish(ctx context.Context, e PostEvent) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Publisher.Publish(ctx, e); err != nil {
			observability.PostEventsPublished.WithLabelValues(s.Name, "error").Inc()
			slog.WarnContext(ctx, "post event not delivered",
				slog.String("sink", s.Name),
				slog.String("event_id", e.ID),
				slog.String("type", string(e.Type)),
				slog.String("error", err.Error()))
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
			continue
		}
		observability.PostEventsPublished.WithLabelValues(s.Name, "ok").Inc()
	}
	return errors.Join(errs...)
}

func (f *Fanout) Close() error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Sinks lists the configured sink names in publish order.
func (f *Fanout) Sinks() []string {
	names := make([]string, len(f.sinks))
	for i, s := range f.sinks {
		names[i] = s.Name
	}
	return names
}
