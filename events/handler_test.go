package events

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

type mockInvalidator struct {
	mu        sync.Mutex
	callCount map[string]int
	viewers   []string
	likes     []Event
	cached    bool
}

func newMockInvalidator() *mockInvalidator {
	return &mockInvalidator{callCount: make(map[string]int), cached: true}
}

func (m *mockInvalidator) record(method, viewerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount[method]++
	m.viewers = append(m.viewers, viewerID)
}

func (m *mockInvalidator) PostCreated(viewerID string)   { m.record("PostCreated", viewerID) }
func (m *mockInvalidator) FollowChanged(viewerID string) { m.record("FollowChanged", viewerID) }
func (m *mockInvalidator) SignedOut(viewerID string)     { m.record("SignedOut", viewerID) }

func (m *mockInvalidator) LikeChanged(viewerID, postID string, liked bool) bool {
	m.record("LikeChanged", viewerID)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.likes = append(m.likes, Event{ViewerID: viewerID, PostID: postID, Liked: liked})
	return m.cached
}

func (m *mockInvalidator) calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount[method]
}

type mockSubscriber struct {
	handlers map[string]nats.MsgHandler
	err      error
}

func (m *mockSubscriber) Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.handlers == nil {
		m.handlers = make(map[string]nats.MsgHandler)
	}
	m.handlers[subject] = cb
	return &nats.Subscription{Subject: subject}, nil
}

type mockPublisher struct {
	msgs []*nats.Msg
}

func (m *mockPublisher) PublishMsg(msg *nats.Msg) error {
	m.msgs = append(m.msgs, msg)
	return nil
}

func TestHandler_Dispatch(t *testing.T) {
	tests := []struct {
		name    string
		subject string
		payload string
		method  string
	}{
		{"post created", SubjectPostCreated, `{"viewer_id":"v"}`, "PostCreated"},
		{"follow changed", SubjectFollowChanged, `{"viewer_id":"v"}`, "FollowChanged"},
		{"signed out", SubjectSignedOut, `{"viewer_id":"v"}`, "SignedOut"},
		{"like changed", SubjectLikeChanged, `{"viewer_id":"v","post_id":"p1","liked":true}`, "LikeChanged"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := newMockInvalidator()
			sub := &mockSubscriber{}
			h := NewHandler(target, zerolog.Nop())

			subs, err := h.Subscribe(sub)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(subs) != len(Subjects) {
				t.Errorf("expected %d subscriptions, got %d", len(Subjects), len(subs))
			}

			sub.handlers[tt.subject](&nats.Msg{Subject: tt.subject, Data: []byte(tt.payload)})

			if target.calls(tt.method) != 1 {
				t.Errorf("expected 1 call to %s, got %d", tt.method, target.calls(tt.method))
			}
			if len(target.viewers) != 1 || target.viewers[0] != "v" {
				t.Errorf("expected viewer v, got %v", target.viewers)
			}
		})
	}
}

func TestHandler_LikePayload(t *testing.T) {
	target := newMockInvalidator()
	target.cached = false
	h := NewHandler(target, zerolog.Nop())

	h.HandleLikeChanged(&nats.Msg{Data: []byte(`{"viewer_id":"v","post_id":"p9","liked":false}`)})

	if len(target.likes) != 1 {
		t.Fatalf("expected one like change, got %d", len(target.likes))
	}
	got := target.likes[0]
	if got.PostID != "p9" || got.Liked {
		t.Errorf("unexpected like event: %+v", got)
	}
}

func TestHandler_RejectsBadPayloads(t *testing.T) {
	tests := []struct {
		name    string
		handle  func(h *Handler, msg *nats.Msg)
		payload string
	}{
		{"malformed json", (*Handler).HandlePostCreated, `{`},
		{"missing viewer", (*Handler).HandleFollowChanged, `{"post_id":"p1"}`},
		{"like without post", (*Handler).HandleLikeChanged, `{"viewer_id":"v"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := newMockInvalidator()
			h := NewHandler(target, zerolog.Nop())

			tt.handle(h, &nats.Msg{Data: []byte(tt.payload)})

			if len(target.viewers) != 0 {
				t.Errorf("expected no invalidation, got calls for %v", target.viewers)
			}
		})
	}
}

func TestHandler_SubscribeError(t *testing.T) {
	h := NewHandler(newMockInvalidator(), zerolog.Nop())
	boom := errors.New("connection closed")

	_, err := h.Subscribe(&mockSubscriber{err: boom})
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped subscribe error but got: %v", err)
	}
}

func TestPublisher_RoundTrip(t *testing.T) {
	pub := &mockPublisher{}
	p := NewPublisher(pub)
	ctx := context.Background()

	if err := p.LikeChanged(ctx, "v", "p1", true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.SignedOut(ctx, "v"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pub.msgs) != 2 {
		t.Fatalf("expected 2 published messages, got %d", len(pub.msgs))
	}
	if pub.msgs[0].Subject != SubjectLikeChanged || pub.msgs[1].Subject != SubjectSignedOut {
		t.Errorf("unexpected subjects: %s, %s", pub.msgs[0].Subject, pub.msgs[1].Subject)
	}
	if pub.msgs[0].Header == nil {
		t.Error("expected headers for trace propagation")
	}

	target := newMockInvalidator()
	h := NewHandler(target, zerolog.Nop())
	h.HandleLikeChanged(pub.msgs[0])
	h.HandleSignedOut(pub.msgs[1])

	if target.calls("LikeChanged") != 1 || target.calls("SignedOut") != 1 {
		t.Errorf("expected published events to apply, got %v", target.callCount)
	}
	if target.likes[0] != (Event{ViewerID: "v", PostID: "p1", Liked: true}) {
		t.Errorf("unexpected like event: %+v", target.likes[0])
	}
}

func TestPublisher_Validates(t *testing.T) {
	pub := &mockPublisher{}
	p := NewPublisher(pub)

	if err := p.PostCreated(context.Background(), ""); err == nil {
		t.Error("expected error for missing viewer")
	}
	if err := p.LikeChanged(context.Background(), "v", "", true); !errors.Is(err, ErrPostRequired) {
		t.Errorf("expected ErrPostRequired but got: %v", err)
	}
	if len(pub.msgs) != 0 {
		t.Errorf("expected nothing published, got %d", len(pub.msgs))
	}
}
