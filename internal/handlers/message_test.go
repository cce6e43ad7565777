package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/teamlinkhq/teamlink/internal/area"
	"github.com/teamlinkhq/teamlink/internal/attachment"
	"github.com/teamlinkhq/teamlink/internal/bridge"
	"github.com/teamlinkhq/teamlink/internal/hub"
	"github.com/teamlinkhq/teamlink/internal/linking"
	"github.com/teamlinkhq/teamlink/internal/message"
	"github.com/teamlinkhq/teamlink/internal/timeline"
)

type stubStore struct {
	mu       sync.Mutex
	nextID   int
	messages []message.Message
}

func (s *stubStore) Append(ctx context.Context, input message.AppendInput) (message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	msg := message.Message{
		ID:             fmt.Sprintf("msg-%03d", s.nextID),
		AreaID:         input.AreaID,
		AuthorID:       input.AuthorID,
		ExternalAuthor: input.ExternalAuthor,
		Origin:         input.Origin,
		Body:           input.Body,
		AttachmentID:   input.AttachmentID,
		ReplyToID:      input.ReplyToID,
		CreatedAt:      input.CreatedAt,
	}
	s.messages = append(s.messages, msg)
	return msg, nil
}

func (s *stubStore) Get(ctx context.Context, areaID, messageID string) (message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.AreaID == areaID && m.ID == messageID {
			return m, nil
		}
	}
	return message.Message{}, message.ErrNotFound
}

func (s *stubStore) ListLatest(ctx context.Context, areaID string, limit int32) ([]message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []message.Message
	for _, m := range s.messages {
		if m.AreaID == areaID {
			out = append(out, m)
		}
	}
	if int32(len(out)) > limit {
		out = out[int32(len(out))-limit:]
	}
	return out, nil
}

func (s *stubStore) ListBefore(ctx context.Context, areaID string, before time.Time, limit int32) ([]message.Message, error) {
	return s.ListLatest(ctx, areaID, limit)
}

func (s *stubStore) MarkEdited(ctx context.Context, areaID, messageID, authorID, body string, editedAt time.Time) (message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.messages {
		if m.AreaID == areaID && m.ID == messageID {
			if m.AuthorID != authorID {
				return message.Message{}, message.ErrNotAuthor
			}
			m.Body = body
			m.EditedAt = &editedAt
			s.messages[i] = m
			return m, nil
		}
	}
	return message.Message{}, message.ErrNotFound
}

func (s *stubStore) MarkDeleted(ctx context.Context, areaID, messageID, actorID string, moderator bool, deletedAt time.Time) (message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.messages {
		if m.AreaID == areaID && m.ID == messageID {
			m.Body = ""
			m.DeletedAt = &deletedAt
			s.messages[i] = m
			return m, nil
		}
	}
	return message.Message{}, message.ErrNotFound
}

type stubAreas struct {
	roles map[string]area.Role
}

func (a *stubAreas) Get(ctx context.Context, areaID string) (area.Area, error) {
	return area.Area{ID: areaID}, nil
}

func (a *stubAreas) RoleOf(ctx context.Context, areaID, userID string) (area.Role, error) {
	if role, ok := a.roles[areaID+"/"+userID]; ok {
		return role, nil
	}
	return "", area.ErrNotAMember
}

type stubBindings struct {
	byGroup map[string]linking.Binding
}

func (b *stubBindings) ByArea(ctx context.Context, areaID string) (linking.Binding, error) {
	return linking.Binding{}, linking.ErrNotLinked
}

func (b *stubBindings) ByGroup(ctx context.Context, groupID string) (linking.Binding, error) {
	if bd, ok := b.byGroup[groupID]; ok {
		return bd, nil
	}
	return linking.Binding{}, linking.ErrNotLinked
}

type stubRelay struct{}

func (stubRelay) Enqueue(msg bridge.OutboundMessage) {}

type stubAttachments struct {
	byID map[string]attachment.Attachment
}

func (a *stubAttachments) Get(ctx context.Context, areaID, attachmentID string) (attachment.Attachment, error) {
	att, ok := a.byID[attachmentID]
	if !ok || att.AreaID != areaID {
		return attachment.Attachment{}, attachment.ErrNotFound
	}
	return att, nil
}

func newTestCoordinator(store *stubStore, bindings *stubBindings) *timeline.Coordinator {
	areas := &stubAreas{roles: map[string]area.Role{
		"area-1/alice": area.RoleMember,
		"area-1/mod":   area.RoleModerator,
	}}
	attachments := &stubAttachments{byID: map[string]attachment.Attachment{
		"att-1": {ID: "att-1", AreaID: "area-1", UploaderID: "alice"},
	}}
	return timeline.NewCoordinator(nil, store, areas, hub.NewHub(nil, time.Minute), bindings, stubRelay{}, attachments)
}

// authAs puts a validated token for the user into the request context the
// same way the JWT middleware does.
func authAs(c echo.Context, userID string) {
	c.Set("user", &jwt.Token{
		Valid:  true,
		Claims: jwt.MapClaims{"user_id": userID},
	})
}

func TestPostMessageEndpoint(t *testing.T) {
	t.Parallel()
	e := echo.New()
	store := &stubStore{}
	h := NewMessageHandler(nil, newTestCoordinator(store, &stubBindings{}))

	body := `{"body":"hello area"}`
	req := httptest.NewRequest(http.MethodPost, "/areas/area-1/messages", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/areas/:area_id/messages")
	c.SetParamNames("area_id")
	c.SetParamValues("area-1")
	authAs(c, "alice")

	if err := h.post(c); err != nil {
		t.Fatalf("post: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	var got message.Message
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Body != "hello area" || got.AuthorID != "alice" || got.Origin != message.OriginDirect {
		t.Fatalf("message %+v", got)
	}
}

func TestPostMessageNonMemberForbidden(t *testing.T) {
	t.Parallel()
	e := echo.New()
	h := NewMessageHandler(nil, newTestCoordinator(&stubStore{}, &stubBindings{}))

	req := httptest.NewRequest(http.MethodPost, "/areas/area-1/messages", strings.NewReader(`{"body":"x"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("area_id")
	c.SetParamValues("area-1")
	authAs(c, "stranger")

	err := h.post(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusForbidden {
		t.Fatalf("err = %v, want 403", err)
	}
}

func TestListMessagesEndpoint(t *testing.T) {
	t.Parallel()
	e := echo.New()
	store := &stubStore{}
	coord := newTestCoordinator(store, &stubBindings{})
	for i := 0; i < 3; i++ {
		if _, err := coord.PostDirect(context.Background(), timeline.DirectInput{
			AreaID: "area-1", AuthorID: "alice", Body: fmt.Sprintf("m%d", i),
		}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	h := NewMessageHandler(nil, coord)

	req := httptest.NewRequest(http.MethodGet, "/areas/area-1/messages?limit=2", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("area_id")
	c.SetParamValues("area-1")
	authAs(c, "alice")

	if err := h.list(c); err != nil {
		t.Fatalf("list: %v", err)
	}
	var got listMessagesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(got.Messages) != 2 {
		t.Fatalf("len = %d, want 2", len(got.Messages))
	}
}

func TestListMessagesRejectsBadParams(t *testing.T) {
	t.Parallel()
	e := echo.New()
	h := NewMessageHandler(nil, newTestCoordinator(&stubStore{}, &stubBindings{}))

	for _, query := range []string{"?before=yesterday", "?limit=-3", "?limit=abc"} {
		req := httptest.NewRequest(http.MethodGet, "/areas/area-1/messages"+query, nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("area_id")
		c.SetParamValues("area-1")
		authAs(c, "alice")

		err := h.list(c)
		httpErr, ok := err.(*echo.HTTPError)
		if !ok || httpErr.Code != http.StatusBadRequest {
			t.Errorf("query %s: err = %v, want 400", query, err)
		}
	}
}

func TestEditMessageEndpoint(t *testing.T) {
	t.Parallel()
	e := echo.New()
	store := &stubStore{}
	coord := newTestCoordinator(store, &stubBindings{})
	seeded, err := coord.PostDirect(context.Background(), timeline.DirectInput{
		AreaID: "area-1", AuthorID: "alice", Body: "v1",
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	h := NewMessageHandler(nil, coord)

	req := httptest.NewRequest(http.MethodPatch,
		"/areas/area-1/messages/"+seeded.ID, strings.NewReader(`{"body":"v2"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("area_id", "message_id")
	c.SetParamValues("area-1", seeded.ID)
	authAs(c, "alice")

	if err := h.edit(c); err != nil {
		t.Fatalf("edit: %v", err)
	}
	var got message.Message
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Body != "v2" || got.EditedAt == nil {
		t.Fatalf("message %+v", got)
	}
}
