package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/goliatone/go-feed-cache/events")

// Invalidator is the slice of the feed engine that reacts to mutations.
type Invalidator interface {
	PostCreated(viewerID string)
	FollowChanged(viewerID string)
	SignedOut(viewerID string)
	LikeChanged(viewerID, postID string, liked bool) bool
}

// Subscriber is satisfied by *nats.Conn.
type Subscriber interface {
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// Handler applies mutation events to an Invalidator.
type Handler struct {
	target Invalidator
	logger zerolog.Logger
}

func NewHandler(target Invalidator, logger zerolog.Logger) *Handler {
	return &Handler{target: target, logger: logger}
}

// Subscribe registers one subscription per subject. On failure the
// subscriptions created so far are drained.
func (h *Handler) Subscribe(conn Subscriber) ([]*nats.Subscription, error) {
	handlers := map[string]nats.MsgHandler{
		SubjectPostCreated:   h.HandlePostCreated,
		SubjectFollowChanged: h.HandleFollowChanged,
		SubjectLikeChanged:   h.HandleLikeChanged,
		SubjectSignedOut:     h.HandleSignedOut,
	}

	subs := make([]*nats.Subscription, 0, len(Subjects))
	for _, subject := range Subjects {
		sub, err := conn.Subscribe(subject, handlers[subject])
		if err != nil {
			for _, s := range subs {
				s.Unsubscribe()
			}
			return nil, fmt.Errorf("events: subscribe %s: %w", subject, err)
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

func (h *Handler) HandlePostCreated(msg *nats.Msg) {
	h.handle(msg, SubjectPostCreated, func(e Event) {
		h.target.PostCreated(e.ViewerID)
	})
}

func (h *Handler) HandleFollowChanged(msg *nats.Msg) {
	h.handle(msg, SubjectFollowChanged, func(e Event) {
		h.target.FollowChanged(e.ViewerID)
	})
}

func (h *Handler) HandleSignedOut(msg *nats.Msg) {
	h.handle(msg, SubjectSignedOut, func(e Event) {
		h.target.SignedOut(e.ViewerID)
	})
}

func (h *Handler) HandleLikeChanged(msg *nats.Msg) {
	h.handle(msg, SubjectLikeChanged, func(e Event) {
		if !h.target.LikeChanged(e.ViewerID, e.PostID, e.Liked) {
			h.logger.Debug().Str("viewer_id", e.ViewerID).Str("post_id", e.PostID).Msg("liked post not cached")
		}
	})
}

func (h *Handler) handle(msg *nats.Msg, subject string, apply func(Event)) {
	ctx := otel.GetTextMapPropagator().Extract(context.Background(), propagation.HeaderCarrier(msg.Header))
	_, span := tracer.Start(ctx, "events."+subject, trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	var event Event
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode")
		eventsHandled.WithLabelValues(subject, "invalid").Inc()
		h.logger.Error().Err(err).Str("subject", subject).Msg("invalid event payload")
		return
	}
	if err := event.Validate(subject); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validate")
		eventsHandled.WithLabelValues(subject, "invalid").Inc()
		h.logger.Warn().Err(err).Str("subject", subject).Msg("rejected event")
		return
	}

	span.SetAttributes(attribute.String("feed.viewer_id", event.ViewerID))
	apply(event)
	eventsHandled.WithLabelValues(subject, "applied").Inc()
	h.logger.Debug().Str("subject", subject).Stringer("event", event).Msg("event applied")
}
