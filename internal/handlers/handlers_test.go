package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/Ananth-NQI/whatsapp-relay/internal/logging"
	"github.com/Ananth-NQI/whatsapp-relay/internal/models"
	"github.com/Ananth-NQI/whatsapp-relay/internal/services"
	"github.com/Ananth-NQI/whatsapp-relay/internal/storage"
)

type stubAI struct{ reply string }

func (s stubAI) GenerateReply(context.Context, string, []models.Message) (string, error) {
	return s.reply, nil
}

type stubMessenger struct {
	sent []string
	err  error
}

func (s *stubMessenger) Send(_ context.Context, to, text string) (string, error) {
	s.sent = append(s.sent, to+"|"+text)
	if s.err != nil {
		return "", s.err
	}
	return "SM-stub", nil
}

// brokenStore fails every call with a storage error
type brokenStore struct {
	storage.Store
}

func (brokenStore) ResolveOrCreate(context.Context, string) (*models.Conversation, error) {
	return nil, &storage.StorageError{Op: "resolve conversation", Err: errors.New("connection refused")}
}

func (brokenStore) Stats(context.Context) (*models.StoreStats, error) {
	return nil, &storage.StorageError{Op: "count conversations", Err: errors.New("connection refused")}
}

func (brokenStore) ListRecentConversations(context.Context, int) ([]models.ConversationSummary, error) {
	return nil, &storage.StorageError{Op: "list conversations", Err: errors.New("connection refused")}
}

type testEnv struct {
	app       *fiber.App
	store     storage.Store
	messenger *stubMessenger
}

func newTestEnv(t *testing.T, store storage.Store) *testEnv {
	t.Helper()
	log := logging.Discard()
	messenger := &stubMessenger{}

	relay := services.NewWhatsAppService(store, stubAI{reply: "Olá!"}, messenger, services.WhatsAppOptions{
		AITimeout:       time.Second,
		OutboundTimeout: time.Second,
		HistoryLimit:    5,
		FallbackReply:   "fallback",
	}, log)
	humanReply := services.NewHumanReplyService(store, messenger, time.Second, log)

	app := fiber.New()
	wa := NewWhatsAppHandler(relay, log)
	app.Post("/webhook/whatsapp", wa.HandleWebhook)

	conv := NewConversationHandler(store, humanReply, log)
	app.Get("/api/conversations", conv.ListConversations)
	app.Get("/api/conversations/:id", conv.GetConversation)
	app.Get("/api/conversations/:id/messages", conv.GetMessages)
	app.Post("/api/conversations/:id/reply", conv.Reply)
	app.Put("/api/conversations/:id/mode", conv.SetMode)

	health := NewHealthHandler(store, "test", "memory", log)
	app.Get("/health", health.Check)

	return &testEnv{app: app, store: store, messenger: messenger}
}

func (e *testEnv) do(t *testing.T, req *http.Request) (int, []byte) {
	t.Helper()
	resp, err := e.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, body
}

func formRequest(form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestHandleWebhook(t *testing.T) {
	env := newTestEnv(t, storage.NewMemoryStore())

	status, body := env.do(t, formRequest(url.Values{
		"From":       {"whatsapp:+5511999990000"},
		"Body":       {"Oi"},
		"MessageSid": {"SM1"},
		"MediaUrl0":  {"https://api.twilio.com/media/ME1"},
	}))
	if status != fiber.StatusOK {
		t.Fatalf("status = %d, body %s", status, body)
	}
	if len(body) != 0 {
		t.Errorf("expected empty body, got %q", body)
	}

	summaries, _ := env.store.ListRecentConversations(context.Background(), 10)
	if len(summaries) != 1 || summaries[0].ClientNumber != "+5511999990000" {
		t.Fatalf("unexpected conversations %+v", summaries)
	}
	msgs, _ := env.store.ListMessages(context.Background(), summaries[0].ID)
	if len(msgs) != 2 || msgs[0].MediaURL == nil || msgs[1].Text != "Olá!" {
		t.Errorf("unexpected messages %+v", msgs)
	}
	if len(env.messenger.sent) != 1 || env.messenger.sent[0] != "+5511999990000|Olá!" {
		t.Errorf("unexpected outbound %v", env.messenger.sent)
	}
}

func TestHandleWebhookAcknowledgesWhenDeliveryFails(t *testing.T) {
	env := newTestEnv(t, storage.NewMemoryStore())
	env.messenger.err = errors.New("twilio down")

	status, _ := env.do(t, formRequest(url.Values{"From": {"whatsapp:+5511999990000"}, "Body": {"Oi"}}))
	if status != fiber.StatusOK {
		t.Errorf("status = %d, want 200", status)
	}
}

func TestHandleWebhookErrors(t *testing.T) {
	t.Run("missing sender", func(t *testing.T) {
		env := newTestEnv(t, storage.NewMemoryStore())
		status, _ := env.do(t, formRequest(url.Values{"Body": {"Oi"}}))
		if status != fiber.StatusBadRequest {
			t.Errorf("status = %d, want 400", status)
		}
	})

	t.Run("storage down", func(t *testing.T) {
		env := newTestEnv(t, brokenStore{Store: storage.NewMemoryStore()})
		status, body := env.do(t, formRequest(url.Values{"From": {"whatsapp:+5511999990000"}, "Body": {"Oi"}}))
		if status != fiber.StatusInternalServerError {
			t.Errorf("status = %d, want 500", status)
		}
		if strings.Contains(string(body), "connection refused") {
			t.Error("storage details leaked to the caller")
		}
	})
}

func TestConversationEndpoints(t *testing.T) {
	store := storage.NewMemoryStore()
	env := newTestEnv(t, store)
	ctx := context.Background()

	conv, _ := store.ResolveOrCreate(ctx, "+5511999990000")
	store.AppendMessage(ctx, conv.ID, models.SenderClient, "Oi", nil)

	status, body := env.do(t, httptest.NewRequest(http.MethodGet, "/api/conversations?limit=5", nil))
	if status != fiber.StatusOK {
		t.Fatalf("list status = %d", status)
	}
	var list struct {
		Conversations []struct {
			ID                 uint   `json:"id"`
			ClientNumber       string `json:"client_number"`
			Mode               string `json:"mode"`
			LastMessagePreview string `json:"last_message_preview"`
		} `json:"conversations"`
		Count int `json:"count"`
	}
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatalf("decode list: %v (%s)", err, body)
	}
	if list.Count != 1 || list.Conversations[0].Mode != "bot" || list.Conversations[0].LastMessagePreview != "Oi" {
		t.Errorf("unexpected list %s", body)
	}

	status, body = env.do(t, httptest.NewRequest(http.MethodGet, "/api/conversations/1", nil))
	if status != fiber.StatusOK || !strings.Contains(string(body), `"client_number":"+5511999990000"`) {
		t.Errorf("info: %d %s", status, body)
	}

	status, body = env.do(t, jsonRequest(http.MethodPut, "/api/conversations/1/mode", `{"mode":"human"}`))
	if status != fiber.StatusOK || !strings.Contains(string(body), `"mode":"human"`) {
		t.Errorf("set mode: %d %s", status, body)
	}

	status, body = env.do(t, jsonRequest(http.MethodPost, "/api/conversations/1/reply", `{"text":"Aqui é a Ana"}`))
	if status != fiber.StatusCreated {
		t.Fatalf("reply: %d %s", status, body)
	}
	var reply struct {
		Delivered  bool   `json:"delivered"`
		DeliveryID string `json:"delivery_id"`
		Message    struct {
			Sender string `json:"sender"`
			Text   string `json:"text"`
		} `json:"message"`
	}
	if err := json.Unmarshal(body, &reply); err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if !reply.Delivered || reply.DeliveryID != "SM-stub" || reply.Message.Sender != "human" {
		t.Errorf("unexpected reply %s", body)
	}

	status, body = env.do(t, httptest.NewRequest(http.MethodGet, "/api/conversations/1/messages", nil))
	if status != fiber.StatusOK || !strings.Contains(string(body), `"count":2`) {
		t.Errorf("messages: %d %s", status, body)
	}

	info, _ := store.GetConversationInfo(ctx, conv.ID)
	if info.Mode != models.ModeHuman {
		t.Errorf("mode = %v, want human", info.Mode)
	}
}

func TestConversationEndpointErrors(t *testing.T) {
	env := newTestEnv(t, storage.NewMemoryStore())
	env.store.ResolveOrCreate(context.Background(), "+5511999990000")

	tests := []struct {
		name string
		req  *http.Request
		want int
	}{
		{"bad limit", httptest.NewRequest(http.MethodGet, "/api/conversations?limit=abc", nil), fiber.StatusBadRequest},
		{"negative limit", httptest.NewRequest(http.MethodGet, "/api/conversations?limit=-2", nil), fiber.StatusBadRequest},
		{"bad id", httptest.NewRequest(http.MethodGet, "/api/conversations/abc", nil), fiber.StatusBadRequest},
		{"zero id", httptest.NewRequest(http.MethodGet, "/api/conversations/0/messages", nil), fiber.StatusBadRequest},
		{"unknown conversation", httptest.NewRequest(http.MethodGet, "/api/conversations/99", nil), fiber.StatusNotFound},
		{"unknown messages", httptest.NewRequest(http.MethodGet, "/api/conversations/99/messages", nil), fiber.StatusNotFound},
		{"reply unknown", jsonRequest(http.MethodPost, "/api/conversations/99/reply", `{"text":"hi"}`), fiber.StatusNotFound},
		{"reply blank", jsonRequest(http.MethodPost, "/api/conversations/1/reply", `{"text":"  "}`), fiber.StatusBadRequest},
		{"reply bad json", jsonRequest(http.MethodPost, "/api/conversations/1/reply", `{"text":`), fiber.StatusBadRequest},
		{"mode invalid", jsonRequest(http.MethodPut, "/api/conversations/1/mode", `{"mode":"robot"}`), fiber.StatusBadRequest},
		{"mode unknown conversation", jsonRequest(http.MethodPut, "/api/conversations/99/mode", `{"mode":"bot"}`), fiber.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := env.do(t, tt.req)
			if status != tt.want {
				t.Errorf("status = %d, want %d (%s)", status, tt.want, body)
			}
		})
	}

	if len(env.messenger.sent) != 0 {
		t.Errorf("rejected replies were sent: %v", env.messenger.sent)
	}
}

func TestListConversationsStorageFailure(t *testing.T) {
	env := newTestEnv(t, brokenStore{Store: storage.NewMemoryStore()})
	status, _ := env.do(t, httptest.NewRequest(http.MethodGet, "/api/conversations", nil))
	if status != fiber.StatusInternalServerError {
		t.Errorf("status = %d, want 500", status)
	}
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t, storage.NewMemoryStore())
	status, body := env.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	if status != fiber.StatusOK || !strings.Contains(string(body), `"status":"healthy"`) {
		t.Errorf("health: %d %s", status, body)
	}

	broken := newTestEnv(t, brokenStore{Store: storage.NewMemoryStore()})
	status, _ = broken.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	if status != fiber.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", status)
	}
}
