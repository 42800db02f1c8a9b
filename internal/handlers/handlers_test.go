package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dolabb/dolabb-sub001/internal/gateway"
	"github.com/dolabb/dolabb-sub001/internal/idempotency"
	"github.com/dolabb/dolabb-sub001/internal/kv"
	"github.com/dolabb/dolabb-sub001/internal/ledger"
	"github.com/dolabb/dolabb-sub001/internal/payment"
	"github.com/dolabb/dolabb-sub001/internal/pending"
	"github.com/dolabb/dolabb-sub001/internal/reconcile"
)

type fakeCharger struct {
	res     *gateway.ChargeResult
	err     error
	charges int
	last    gateway.ChargeRequest
	fetched *payment.Payment
}

func (f *fakeCharger) Charge(ctx context.Context, req gateway.ChargeRequest) (*gateway.ChargeResult, error) {
	f.charges++
	f.last = req
	return f.res, f.err
}

func (f *fakeCharger) FetchPayment(ctx context.Context, id string) (*payment.Payment, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.fetched, nil
}

type fakeReconciler struct {
	sessionID string
	params    reconcile.CallbackParams
	out       reconcile.Outcome
}

func (f *fakeReconciler) Reconcile(ctx context.Context, sid string, p reconcile.CallbackParams) reconcile.Outcome {
	f.sessionID, f.params = sid, p
	return f.out
}

type fixture struct {
	router  *gin.Engine
	charger *fakeCharger
	engine  *fakeReconciler
	pending *pending.Store
	ledger  *ledger.Mirror
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := kv.NewMemory()
	f := &fixture{
		charger: &fakeCharger{},
		engine:  &fakeReconciler{},
		pending: pending.NewStore(store, time.Hour),
		ledger:  ledger.NewMirror(store, 0),
	}
	r := gin.New()
	RegisterPaymentRoutes(r, HandlerConfig{
		Gateway:      f.charger,
		Pending:      f.pending,
		Ledger:       f.ledger,
		Engine:       f.engine,
		Idempotency:  idempotency.NewMemoryStore(time.Hour),
		Destinations: reconcile.Destinations{Success: "/payment/success", Error: "/payment/error"},
		CallbackURL:  "https://api.local/payment/callback",
		Currency:     "SAR",
		Session:      SessionConfig{Cookie: "dolabb_sid", MaxAge: time.Hour},
		Logger:       zap.NewNop(),
	})
	f.router = r
	return f
}

func checkoutBody() []byte {
	b, _ := json.Marshal(map[string]interface{}{
		"orderId":    "ord_1",
		"offerId":    "off_1",
		"buyerId":    "buyer_1",
		"sellerId":   "seller_1",
		"product":    "Bag",
		"offerPrice": "200",
		"shipping":   "25",
		"totalPrice": "225",
		"card":       map[string]string{"name": "A B", "number": "4111111111111111", "month": "01", "year": "30", "cvc": "123"},
	})
	return b
}

func (f *fixture) do(method, target string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestCreatePayment_RequiresActionSavesPending(t *testing.T) {
	f := newFixture(t)
	f.charger.res = &gateway.ChargeResult{
		Payment:     payment.Payment{ID: "pay_1", Status: payment.StatusInitiated},
		RedirectURL: "https://3ds.local/auth",
	}

	w := f.do(http.MethodPost, "/payments", checkoutBody(), map[string]string{SessionHeader: "s1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "initiated", resp["status"])
	assert.Equal(t, "https://3ds.local/auth", resp["redirectUrl"])
	assert.Equal(t, int64(22500), f.charger.last.AmountMinor)
	assert.Equal(t, "SAR", f.charger.last.Currency)

	snap, err := f.pending.Consume(context.Background(), "s1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "pay_1", snap.PaymentID)
	assert.Equal(t, "ord_1", snap.OrderID)
	assert.Equal(t, "225", snap.TotalPrice)
}

func TestCreatePayment_ImmediatePaidGoesToCallback(t *testing.T) {
	f := newFixture(t)
	f.charger.res = &gateway.ChargeResult{Payment: payment.Payment{ID: "pay_2", Status: payment.StatusPaid}}

	w := f.do(http.MethodPost, "/payments", checkoutBody(), map[string]string{SessionHeader: "s2"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	u, err := url.Parse(resp["redirectUrl"])
	require.NoError(t, err)
	assert.Equal(t, "/payment/callback", u.Path)
	assert.Equal(t, "pay_2", u.Query().Get("id"))
	assert.Equal(t, "paid", u.Query().Get("status"))
	assert.Equal(t, "ord_1", u.Query().Get("orderId"))
	assert.Equal(t, "200", u.Query().Get("offerPrice"))

	snap, _ := f.pending.Consume(context.Background(), "s2")
	assert.Nil(t, snap)
}

func TestCreatePayment_ErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
		tag  string
	}{
		{gateway.ErrSelfPurchase, http.StatusUnprocessableEntity, "self_purchase"},
		{&gateway.RejectedError{Message: "DECLINED"}, http.StatusPaymentRequired, "payment_rejected"},
		{gateway.ErrUnavailable, http.StatusServiceUnavailable, "gateway_unavailable"},
	}
	for _, tc := range cases {
		f := newFixture(t)
		f.charger.err = tc.err
		w := f.do(http.MethodPost, "/payments", checkoutBody(), nil)
		assert.Equal(t, tc.code, w.Code)
		assert.Contains(t, w.Body.String(), tc.tag)
	}
}

func TestCreatePayment_ValidationFails(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodPost, "/payments", []byte(`{"orderId":"o","totalPrice":"10"}`), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "validation_failed")
	assert.Equal(t, 0, f.charger.charges)
}

func TestCreatePayment_IdempotencyKeyReplays(t *testing.T) {
	f := newFixture(t)
	f.charger.res = &gateway.ChargeResult{
		Payment:     payment.Payment{ID: "pay_3", Status: payment.StatusInitiated},
		RedirectURL: "https://3ds.local/x",
	}
	h := map[string]string{SessionHeader: "s3", "Idempotency-Key": "k1"}

	first := f.do(http.MethodPost, "/payments", checkoutBody(), h)
	second := f.do(http.MethodPost, "/payments", checkoutBody(), h)

	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusOK, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, f.charger.charges)
	assert.Equal(t, "checkout#s3#k1", f.charger.last.AttemptKey)
}

func TestCreatePayment_FailedAttemptReleasesKey(t *testing.T) {
	f := newFixture(t)
	f.charger.err = gateway.ErrUnavailable
	h := map[string]string{SessionHeader: "s4", "Idempotency-Key": "k2"}

	assert.Equal(t, http.StatusServiceUnavailable, f.do(http.MethodPost, "/payments", checkoutBody(), h).Code)

	f.charger.err = nil
	f.charger.res = &gateway.ChargeResult{Payment: payment.Payment{ID: "pay_4", Status: payment.StatusPaid}}
	assert.Equal(t, http.StatusOK, f.do(http.MethodPost, "/payments", checkoutBody(), h).Code)
	assert.Equal(t, 2, f.charger.charges)
}

func TestCallback_RedirectsWithSession(t *testing.T) {
	f := newFixture(t)
	f.engine.out = reconcile.Outcome{Kind: reconcile.KindSuccess, PaymentID: "pay_5", OrderID: "ord_5"}

	req := httptest.NewRequest(http.MethodGet, "/payment/callback?id=pay_5&status=paid", nil)
	req.AddCookie(&http.Cookie{Name: "dolabb_sid", Value: "cookie-session"})
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusFound, w.Code)
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/payment/success", loc.Path)
	assert.Equal(t, "ord_5", loc.Query().Get("orderId"))
	assert.Equal(t, "cookie-session", f.engine.sessionID)
	assert.Equal(t, "pay_5", f.engine.params.PaymentID)
}

func TestSession_IssuesCookie(t *testing.T) {
	f := newFixture(t)
	f.engine.out = reconcile.Outcome{Kind: reconcile.KindFailure, Reason: reconcile.ReasonPaymentError}

	w := f.do(http.MethodGet, "/payment/callback", nil, nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Set-Cookie"), "dolabb_sid="))
	assert.NotEmpty(t, f.engine.sessionID)
}

func TestVerify(t *testing.T) {
	f := newFixture(t)
	f.charger.fetched = &payment.Payment{ID: "pay_6", Status: payment.StatusPaid, Source: payment.Source{Brand: "visa", Number: "4242"}}

	w := f.do(http.MethodGet, "/api/payment/verify?paymentId=pay_6", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Success bool            `json:"success"`
		Payment payment.Payment `json:"payment"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, payment.StatusPaid, resp.Payment.Status)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/payment/verify", nil, nil).Code)

	f.charger.err = gateway.ErrUnavailable
	assert.Equal(t, http.StatusBadGateway, f.do(http.MethodGet, "/api/payment/verify?paymentId=x", nil, nil).Code)
}

func TestLedger_ListsSessionRecords(t *testing.T) {
	f := newFixture(t)
	_, err := f.ledger.Append(context.Background(), "s7", payment.LocalPaymentRecord{PaymentID: "pay_7", Status: payment.StatusPaid})
	require.NoError(t, err)

	w := f.do(http.MethodGet, "/payments/ledger", nil, map[string]string{SessionHeader: "s7"})
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Payments []payment.LocalPaymentRecord `json:"payments"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Payments, 1)
	assert.Equal(t, "pay_7", resp.Payments[0].PaymentID)

	other := f.do(http.MethodGet, "/payments/ledger", nil, map[string]string{SessionHeader: "someone-else"})
	assert.Contains(t, other.Body.String(), `"payments":[]`)
}
