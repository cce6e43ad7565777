package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/labstack/echo/v4"

	"github.com/teamlinkhq/teamlink/internal/bridge"
	"github.com/teamlinkhq/teamlink/internal/linking"
	"github.com/teamlinkhq/teamlink/internal/message"
	"github.com/teamlinkhq/teamlink/internal/timeline"
)

type stubClient struct {
	mu   sync.Mutex
	sent []string
}

func (c *stubClient) SendMessage(ctx context.Context, groupID, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, groupID+"|"+text)
	return nil
}

func (c *stubClient) GroupInfo(ctx context.Context, groupID string) (bridge.GroupInfo, error) {
	return bridge.GroupInfo{ID: groupID}, nil
}

func groupUpdate(chatID int64, text string) *bytes.Buffer {
	update := tgbotapi.Update{
		Message: &tgbotapi.Message{
			Text: text,
			Chat: &tgbotapi.Chat{ID: chatID, Type: "supergroup", Title: "Project Group"},
			From: &tgbotapi.User{ID: 777, UserName: "ext_user"},
		},
	}
	var buf bytes.Buffer
	json.NewEncoder(&buf).Encode(update)
	return &buf
}

func newWebhookFixture(store *stubStore, bindings *stubBindings, client bridge.Client) *WebhookHandler {
	coord := newTestCoordinator(store, bindings)
	return NewWebhookHandler(nil, coord, client, "hook-secret", "link-secret", 10*time.Minute)
}

func postWebhook(e *echo.Echo, h *WebhookHandler, secret string, body *bytes.Buffer) (*httptest.ResponseRecorder, error) {
	req := httptest.NewRequest(http.MethodPost, "/bridge/webhook/"+secret, body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("secret")
	c.SetParamValues(secret)
	return rec, h.receive(c)
}

func TestWebhookRejectsWrongSecret(t *testing.T) {
	t.Parallel()
	e := echo.New()
	h := newWebhookFixture(&stubStore{}, &stubBindings{}, &stubClient{})

	_, err := postWebhook(e, h, "wrong", groupUpdate(-100, "hi"))
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Fatalf("err = %v, want 404", err)
	}
}

func TestWebhookRelaysGroupMessage(t *testing.T) {
	t.Parallel()
	e := echo.New()
	store := &stubStore{}
	bindings := &stubBindings{byGroup: map[string]linking.Binding{
		"-100": {AreaID: "area-1", ExternalGroupID: "-100"},
	}}
	h := newWebhookFixture(store, bindings, &stubClient{})

	rec, err := postWebhook(e, h, "hook-secret", groupUpdate(-100, "from telegram"))
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(store.messages) != 1 {
		t.Fatalf("stored %d messages, want 1", len(store.messages))
	}
	got := store.messages[0]
	if got.Origin != message.OriginRelayed || got.Body != "from telegram" {
		t.Fatalf("message %+v", got)
	}
	if got.ExternalAuthor == nil || got.ExternalAuthor.DisplayName != "ext_user" {
		t.Fatalf("external author %+v", got.ExternalAuthor)
	}
}

func TestWebhookDropsUnlinkedGroup(t *testing.T) {
	t.Parallel()
	e := echo.New()
	store := &stubStore{}
	h := newWebhookFixture(store, &stubBindings{}, &stubClient{})

	rec, err := postWebhook(e, h, "hook-secret", groupUpdate(-999, "nobody listens"))
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(store.messages) != 0 {
		t.Fatalf("stored %d messages, want 0", len(store.messages))
	}
}

func TestWebhookDropsOversizedBody(t *testing.T) {
	t.Parallel()
	e := echo.New()
	store := &stubStore{}
	bindings := &stubBindings{byGroup: map[string]linking.Binding{
		"-100": {AreaID: "area-1", ExternalGroupID: "-100"},
	}}
	h := newWebhookFixture(store, bindings, &stubClient{})

	// 4096 multi-byte runes: a legitimate platform message, far over the
	// body limit. It can never be accepted, so it must be acknowledged or
	// the platform redelivers it forever ahead of everything else.
	long := strings.Repeat("é", timeline.MaxBodyBytes)
	rec, err := postWebhook(e, h, "hook-secret", groupUpdate(-100, long))
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(store.messages) != 0 {
		t.Fatalf("stored %d messages, want 0", len(store.messages))
	}

	// Delivery resumes for the next, acceptable update.
	rec, err = postWebhook(e, h, "hook-secret", groupUpdate(-100, "next one"))
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if rec.Code != http.StatusOK || len(store.messages) != 1 {
		t.Fatalf("status = %d, stored = %d, want 200 and 1", rec.Code, len(store.messages))
	}
}

func TestWebhookLinkCommandRepliesWithCode(t *testing.T) {
	t.Parallel()
	e := echo.New()
	client := &stubClient{}
	h := newWebhookFixture(&stubStore{}, &stubBindings{}, client)

	rec, err := postWebhook(e, h, "hook-secret", groupUpdate(-100, "/link"))
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(client.sent) != 1 {
		t.Fatalf("sent %d replies, want 1", len(client.sent))
	}
	reply := client.sent[0]
	if !strings.HasPrefix(reply, "-100|") {
		t.Fatalf("reply went to %q", reply)
	}
	// The code in the reply must redeem back to the same group.
	fields := strings.Fields(reply)
	code := fields[len(fields)-1]
	groupID, err := bridge.ParseLinkCode("link-secret", code, time.Now())
	if err != nil {
		t.Fatalf("ParseLinkCode: %v", err)
	}
	if groupID != "-100" {
		t.Fatalf("group id = %q, want -100", groupID)
	}
}
