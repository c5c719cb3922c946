package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/organlink/organlink/internal/platform/auth"
	"github.com/organlink/organlink/internal/platform/events"
)

func newTestClient(topics ...string) *Client {
	c := NewClient(context.Background())
	c.Topics = topics
	return c
}

func receive(t *testing.T, c *Client) events.Event {
	t.Helper()
	select {
	case msg := <-c.Send:
		var got events.Event
		if err := json.Unmarshal(msg, &got); err != nil {
			t.Fatalf("failed to unmarshal event: %v", err)
		}
		return got
	case <-time.After(time.Second):
		t.Fatalf("client %s did not receive event", c.ID)
	}
	return events.Event{}
}

func expectNothing(t *testing.T, c *Client) {
	t.Helper()
	select {
	case msg := <-c.Send:
		t.Fatalf("client %s should not have received %s", c.ID, msg)
	default:
	}
}

func TestHub_RegisterUnregister(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := newTestClient("matches")

	hub.Register(client)
	if hub.ClientCount() != 1 || hub.TopicCount("matches") != 1 {
		t.Fatalf("expected 1 client on matches, got %d/%d", hub.ClientCount(), hub.TopicCount("matches"))
	}

	hub.Unregister(client)
	if hub.ClientCount() != 0 || hub.TopicCount("matches") != 0 {
		t.Fatal("expected hub to be empty after unregister")
	}
	if _, ok := <-client.Send; ok {
		t.Fatal("expected Send channel to be closed after unregister")
	}

	// second unregister is a no-op
	hub.Unregister(client)
}

func TestHub_PublishToTopic(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	sub := newTestClient("chat/1")
	other := newTestClient("chat/2")
	hub.Register(sub)
	hub.Register(other)

	var pub events.Publisher = hub
	if err := pub.Publish(context.Background(), events.New(events.MessagePosted, "chat", "1", nil)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if got := receive(t, sub); got.Type != events.MessagePosted || got.Topic != "chat/1" {
		t.Errorf("unexpected event: %+v", got)
	}
	expectNothing(t, other)
}

func TestHub_CollectionReceivesItemEvents(t *testing.T) {
	hub := NewHub(zerolog.Nop(), "matches")
	collection := newTestClient("matches")
	item := newTestClient("matches/abc")
	both := newTestClient("matches", "matches/abc")
	chat := newTestClient("chat")
	hub.Register(collection)
	hub.Register(item)
	hub.Register(both)
	hub.Register(chat)

	hub.Publish(context.Background(), events.New(events.MatchDecided, "matches", "abc", nil))
	hub.Publish(context.Background(), events.New(events.MessagePosted, "chat", "9", nil))

	receive(t, collection)
	receive(t, item)
	receive(t, both)
	// one copy only, even though both topics matched
	expectNothing(t, both)
	// chat is not a configured collection
	expectNothing(t, chat)
}

func TestHub_SubscribeUnsubscribe(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := newTestClient()
	hub.Register(client)

	hub.Subscribe(client, []string{"users", "matches", "users"})
	if len(client.Topics) != 2 {
		t.Fatalf("expected duplicate subscribe to be ignored, got %v", client.Topics)
	}

	hub.Unsubscribe(client, []string{"users"})
	if hub.TopicCount("users") != 0 || hub.TopicCount("matches") != 1 {
		t.Fatal("unexpected topic counts after unsubscribe")
	}
	if len(client.Topics) != 1 || client.Topics[0] != "matches" {
		t.Fatalf("expected [matches], got %v", client.Topics)
	}
}

func TestHub_ProcessMessage_Authorizer(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := newTestClient()
	hub.Register(client)

	allowMatches := func(_ context.Context, topic string) bool {
		return strings.HasPrefix(topic, "matches")
	}
	ack := hub.ProcessMessage(client, ClientMessage{Action: "subscribe", Topics: []string{"matches/1", "chat/2", ""}}, allowMatches)

	if ack.Type != "subscribed" || len(ack.Accepted) != 1 || ack.Accepted[0] != "matches/1" {
		t.Errorf("unexpected ack: %+v", ack)
	}
	if len(ack.Rejected) != 1 || ack.Rejected[0] != "chat/2" {
		t.Errorf("expected chat/2 rejected, got %v", ack.Rejected)
	}
	if hub.TopicCount("chat/2") != 0 {
		t.Error("rejected topic must not be subscribed")
	}

	if ack := hub.ProcessMessage(client, ClientMessage{Action: "bogus"}, nil); ack.Type != "error" {
		t.Errorf("expected error ack, got %s", ack.Type)
	}
}

func TestHub_FullBufferDoesNotBlock(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := &Client{ID: "slow", Topics: []string{"users"}, Send: make(chan []byte, 1), ctx: context.Background()}
	hub.Register(client)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			hub.Broadcast("users", events.New(events.UserUpdated, "users", "", nil))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a full client buffer")
	}
}

func TestHub_ConcurrentRegisterUnregister(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	const n = 100

	clients := make([]*Client, n)
	for i := range clients {
		clients[i] = newTestClient("users")
	}

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(idx int) {
			defer wg.Done()
			hub.Register(clients[idx])
			hub.Publish(context.Background(), events.New(events.UserUpdated, "users", "", nil))
			hub.Unregister(clients[idx])
		}(i)
	}
	wg.Wait()

	if hub.ClientCount() != 0 {
		t.Fatalf("expected 0 clients, got %d", hub.ClientCount())
	}
}

func TestHandler_RegisterRoutes(t *testing.T) {
	e := echo.New()
	NewHandler(NewHub(zerolog.Nop()), nil, nil).RegisterRoutes(e.Group("/api/v1"))

	for _, r := range e.Routes() {
		if r.Path == "/api/v1/ws" && r.Method == http.MethodGet {
			return
		}
	}
	t.Fatal("expected GET /api/v1/ws route to be registered")
}

func TestHandler_RejectsPlainHTTP(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/ws", nil), rec)

	err := NewHandler(NewHub(zerolog.Nop()), nil, nil).HandleConnect(c)
	if err == nil && rec.Code == http.StatusSwitchingProtocols {
		t.Fatal("expected upgrade to fail for non-websocket request")
	}
}

func TestHandler_CheckOrigin(t *testing.T) {
	h := NewHandler(NewHub(zerolog.Nop()), nil, []string{"https://app.organlink.test"})

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "https://evil.test")
	if h.checkOrigin(req) {
		t.Error("expected foreign origin to be refused")
	}
	req.Header.Set("Origin", "https://app.organlink.test")
	if !h.checkOrigin(req) {
		t.Error("expected configured origin to be accepted")
	}
}

func TestHandler_EndToEnd(t *testing.T) {
	hub := NewHub(zerolog.Nop(), "matches")
	onlyDoctors := func(ctx context.Context, topic string) bool {
		return auth.HasRole(ctx, auth.RoleDoctor)
	}

	e := echo.New()
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := auth.WithUser(c.Request().Context(), "doc-1", []string{auth.RoleDoctor})
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	})
	NewHandler(hub, onlyDoctors, nil).RegisterRoutes(e.Group(""))

	srv := httptest.NewServer(e)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := gorillawebsocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(ClientMessage{Action: "subscribe", Topics: []string{"matches"}}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var ack Ack
	if err := conn.ReadJSON(&ack); err != nil {
		t.Fatalf("read ack failed: %v", err)
	}
	if len(ack.Accepted) != 1 || ack.Accepted[0] != "matches" {
		t.Fatalf("unexpected ack: %+v", ack)
	}

	hub.Publish(context.Background(), events.New(events.MatchCreated, "matches", "m-1", nil))

	var evt events.Event
	if err := conn.ReadJSON(&evt); err != nil {
		t.Fatalf("read event failed: %v", err)
	}
	if evt.Type != events.MatchCreated || evt.ResourceID != "m-1" {
		t.Errorf("unexpected event: %+v", evt)
	}
}
