package routes

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/Ananth-NQI/whatsapp-relay/internal/logging"
	"github.com/Ananth-NQI/whatsapp-relay/internal/middleware"
	"github.com/Ananth-NQI/whatsapp-relay/internal/models"
	"github.com/Ananth-NQI/whatsapp-relay/internal/services"
	"github.com/Ananth-NQI/whatsapp-relay/internal/storage"
)

const authToken = "twilio-secret"

type echoAI struct{}

func (echoAI) GenerateReply(_ context.Context, text string, _ []models.Message) (string, error) {
	return "echo: " + text, nil
}

type nopMessenger struct{ count int }

func (m *nopMessenger) Send(context.Context, string, string) (string, error) {
	m.count++
	return "SM1", nil
}

func newApp(t *testing.T) (*fiber.App, storage.Store, *nopMessenger) {
	t.Helper()
	log := logging.Discard()
	store := storage.NewMemoryStore()
	messenger := &nopMessenger{}

	app := fiber.New()
	SetupRoutes(app, Dependencies{
		Store: store,
		WhatsApp: services.NewWhatsAppService(store, echoAI{}, messenger, services.WhatsAppOptions{
			AITimeout:       time.Second,
			OutboundTimeout: time.Second,
			HistoryLimit:    5,
			FallbackReply:   "fallback",
		}, log),
		HumanReply:   services.NewHumanReplyService(store, messenger, time.Second, log),
		Signature:    middleware.SignatureConfig{AuthToken: authToken},
		OperatorAuth: middleware.OperatorAuthConfig{APIKey: "operator-key"},
		Version:      "test",
		Environment:  "production",
		StorageType:  "memory",
		Log:          log,
	})
	return app, store, messenger
}

func signForm(requestURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	data := requestURL
	for _, k := range keys {
		data += k + form.Get(k)
	}
	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestWebhookRequiresSignature(t *testing.T) {
	app, store, messenger := newApp(t)
	form := url.Values{
		"From":       {"whatsapp:+5511999990000"},
		"Body":       {"Oi"},
		"MessageSid": {"SM9"},
	}

	newReq := func(sig string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "http://relay.example.com/webhook/whatsapp", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("X-Forwarded-Proto", "https")
		if sig != "" {
			req.Header.Set(middleware.SignatureHeader, sig)
		}
		return req
	}

	resp, err := app.Test(newReq(""))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Errorf("unsigned status = %d, want 401", resp.StatusCode)
	}
	stats, _ := store.Stats(context.Background())
	if stats.Conversations != 0 || messenger.count != 0 {
		t.Fatal("rejected webhook must have no effect")
	}

	resp, err = app.Test(newReq(signForm("https://relay.example.com/webhook/whatsapp", form)))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("signed status = %d, want 200", resp.StatusCode)
	}
	stats, _ = store.Stats(context.Background())
	if stats.Messages != 2 || messenger.count != 1 {
		t.Errorf("stats = %+v, sends = %d", stats, messenger.count)
	}
}

func TestOperatorAPIRequiresKey(t *testing.T) {
	app, _, _ := newApp(t)

	resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/api/conversations", nil))
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
	req.Header.Set("Authorization", "Bearer operator-key")
	resp, _ = app.Test(req)
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestPublicEndpoints(t *testing.T) {
	app, _, _ := newApp(t)
	for _, path := range []string{"/", "/health"} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
		if err != nil {
			t.Fatalf("app.Test(%s): %v", path, err)
		}
		if resp.StatusCode != fiber.StatusOK {
			t.Errorf("%s status = %d", path, resp.StatusCode)
		}
	}
}
