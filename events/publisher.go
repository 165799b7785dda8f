package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// MsgPublisher is satisfied by *nats.Conn.
type MsgPublisher interface {
	PublishMsg(msg *nats.Msg) error
}

// Publisher emits mutation events with the caller's trace context in the
// message headers.
type Publisher struct {
	conn MsgPublisher
}

func NewPublisher(conn MsgPublisher) *Publisher {
	return &Publisher{conn: conn}
}

func (p *Publisher) Publish(ctx context.Context, subject string, event Event) error {
	if err := event.Validate(subject); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("events: marshal: %w", err)
	}

	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
		Header:  nats.Header{},
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(msg.Header))

	return p.conn.PublishMsg(msg)
}

func (p *Publisher) PostCreated(ctx context.Context, viewerID string) error {
	return p.Publish(ctx, SubjectPostCreated, Event{ViewerID: viewerID})
}

func (p *Publisher) FollowChanged(ctx context.Context, viewerID string) error {
	return p.Publish(ctx, SubjectFollowChanged, Event{ViewerID: viewerID})
}

func (p *Publisher) LikeChanged(ctx context.Context, viewerID, postID string, liked bool) error {
	return p.Publish(ctx, SubjectLikeChanged, Event{ViewerID: viewerID, PostID: postID, Liked: liked})
}

func (p *Publisher) SignedOut(ctx context.Context, viewerID string) error {
	return p.Publish(ctx, SubjectSignedOut, Event{ViewerID: viewerID})
}
