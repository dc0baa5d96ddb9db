package controller_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wizardl22111-coder/leve1up-sub000/controller"
	"github.com/wizardl22111-coder/leve1up-sub000/model"
	"github.com/wizardl22111-coder/leve1up-sub000/store"
)

// recordingMailer counts dispatches and remembers the last order it saw.
type recordingMailer struct {
	mu        sync.Mutex
	sends     int
	lastOrder *model.Order
	lastLinks map[int]string
	succeed   bool
}

func (m *recordingMailer) SendOrderConfirmation(ctx context.Context, order *model.Order, links map[int]string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sends++
	m.lastOrder = order
	m.lastLinks = links
	return m.succeed, nil
}

type webhookFixture struct {
	app    *fiber.App
	orders *store.OrderStore
	mailer *recordingMailer
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()
	db := store.NewBackends(store.NewMemoryStore())
	orders := store.NewOrderStore(db, 0)
	tokens := store.NewTokenIssuer(db)
	m := &recordingMailer{succeed: true}

	wc := controller.NewWebhookController(orders, tokens, m, nil, "http://localhost:3009", 30)

	app := fiber.New()
	app.Post("/api/webhook", wc.HandlePaymentEvent)

	return &webhookFixture{app: app, orders: orders, mailer: m}
}

func (f *webhookFixture) deliver(t *testing.T, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest("POST", "/api/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := f.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var parsed map[string]any
	require.NoError(t, json.Unmarshal(raw, &parsed))
	return resp.StatusCode, parsed
}

const completedPayload = `{
	"event": "payment_intent.status.updated",
	"data": {"id": "pay2", "status": "completed", "amount": 2999, "currency_code": "AED"}
}`

func pendingOrder(id, sessionID, paymentID string) *model.Order {
	return &model.Order{
		ID:            id,
		SessionID:     sessionID,
		PaymentID:     paymentID,
		Status:        model.StatusPending,
		Amount:        29.99,
		Currency:      "AED",
		CustomerEmail: "a@x.com",
		Items: []model.OrderItem{
			{ProductID: 7, Name: "Digital Marketing Guide", UnitPrice: 29.99, Quantity: 1, DownloadRef: "https://files.example/7.pdf"},
		},
	}
}

func TestWebhookWithoutPaymentIndexIsAcknowledged(t *testing.T) {
	f := newWebhookFixture(t)

	// Order created with only a session id: the payment index was never
	// populated, so the webhook must find nothing and still acknowledge.
	_, err := f.orders.Create(context.Background(), pendingOrder("o1", "s1", ""))
	require.NoError(t, err)

	code, body := f.deliver(t, `{
		"event": "payment_intent.status.updated",
		"data": {"id": "pay1", "status": "completed"}
	}`)

	assert.Equal(t, 200, code)
	assert.Equal(t, true, body["received"])
	assert.Zero(t, f.mailer.sends, "no fulfillment without a resolved order")

	order, err := f.orders.FindByID(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, order.Status)
}

func TestWebhookTransitionsPendingOrder(t *testing.T) {
	f := newWebhookFixture(t)
	ctx := context.Background()

	_, err := f.orders.Create(ctx, pendingOrder("o2", "", "pay2"))
	require.NoError(t, err)

	code, body := f.deliver(t, completedPayload)
	assert.Equal(t, 200, code)
	assert.Equal(t, true, body["received"])

	order, err := f.orders.FindByID(ctx, "o2")
	require.NoError(t, err)
	require.NotNil(t, order.PaidAt, "paidAt stamped on the pending→paid transition")
	assert.Equal(t, model.StatusCompleted, order.Status, "successful email advances to completed")

	require.Equal(t, 1, f.mailer.sends)
	assert.Equal(t, "o2", f.mailer.lastOrder.ID)
	require.Len(t, f.mailer.lastOrder.Items, 1)
	assert.Contains(t, f.mailer.lastLinks[7], "/api/download/")
}

func TestWebhookIsIdempotent(t *testing.T) {
	f := newWebhookFixture(t)
	ctx := context.Background()

	_, err := f.orders.Create(ctx, pendingOrder("o2", "", "pay2"))
	require.NoError(t, err)

	f.deliver(t, completedPayload)
	first, err := f.orders.FindByID(ctx, "o2")
	require.NoError(t, err)
	require.NotNil(t, first.PaidAt)

	code, body := f.deliver(t, completedPayload)
	assert.Equal(t, 200, code)
	assert.Equal(t, true, body["received"])

	second, err := f.orders.FindByID(ctx, "o2")
	require.NoError(t, err)
	assert.Equal(t, *first.PaidAt, *second.PaidAt, "paidAt stamped exactly once")
	assert.Equal(t, 1, f.mailer.sends, "duplicate delivery must not re-send the email")
}

func TestWebhookEmailFailureKeepsPaymentState(t *testing.T) {
	f := newWebhookFixture(t)
	f.mailer.succeed = false
	ctx := context.Background()

	_, err := f.orders.Create(ctx, pendingOrder("o2", "", "pay2"))
	require.NoError(t, err)

	code, _ := f.deliver(t, completedPayload)
	assert.Equal(t, 200, code, "email failure never fails the webhook response")

	order, err := f.orders.FindByID(ctx, "o2")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPaid, order.Status, "payment state survives the failed send")
	assert.NotNil(t, order.PaidAt)
	assert.Equal(t, 1, f.mailer.sends)
}

func TestWebhookFailedStatus(t *testing.T) {
	f := newWebhookFixture(t)
	ctx := context.Background()

	_, err := f.orders.Create(ctx, pendingOrder("o2", "", "pay2"))
	require.NoError(t, err)

	code, _ := f.deliver(t, `{
		"event": "payment_intent.status.updated",
		"data": {"id": "pay2", "status": "failed"}
	}`)
	assert.Equal(t, 200, code)

	order, err := f.orders.FindByID(ctx, "o2")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, order.Status)
	assert.Nil(t, order.PaidAt)
	assert.Zero(t, f.mailer.sends)
}

func TestWebhookIgnoresForeignEvents(t *testing.T) {
	f := newWebhookFixture(t)

	code, body := f.deliver(t, `{"event": "payment_intent.created", "data": {"id": "pay9"}}`)
	assert.Equal(t, 200, code)
	assert.Equal(t, true, body["received"])

	code, _ = f.deliver(t, `{
		"event": "payment_intent.status.updated",
		"data": {"id": "pay9", "status": "requires_action"}
	}`)
	assert.Equal(t, 200, code)
}

func TestWebhookMalformedPayloadStillAcknowledged(t *testing.T) {
	f := newWebhookFixture(t)

	code, body := f.deliver(t, `{not json`)
	assert.Equal(t, 200, code, "a retry cannot fix malformedness; never invite one")
	assert.Equal(t, true, body["received"])
	assert.NotEmpty(t, body["error"])

	code, body = f.deliver(t, `{"event": "payment_intent.status.updated", "data": {"status": "completed"}}`)
	assert.Equal(t, 200, code)
	assert.Equal(t, true, body["received"])
	assert.NotEmpty(t, body["error"], "missing payment id is noted in the body")
}
