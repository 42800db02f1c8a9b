package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dolabb/dolabb-sub001/internal/idempotency"
)

type backend struct {
	calls  atomic.Int32
	status int
	reply  string
	last   Notification
	mu     sync.Mutex
	gate   chan struct{}
}

func (b *backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.calls.Add(1)
	if b.gate != nil {
		<-b.gate
	}
	var n Notification
	_ = json.NewDecoder(r.Body).Decode(&n)
	b.mu.Lock()
	b.last = n
	b.mu.Unlock()
	if b.status != 0 {
		w.WriteHeader(b.status)
	}
	reply := b.reply
	if reply == "" {
		reply = `{"success":true}`
	}
	_, _ = w.Write([]byte(reply))
}

func newNotifier(t *testing.T, b *backend) (*Notifier, *idempotency.MemoryStore) {
	t.Helper()
	ts := httptest.NewServer(b)
	t.Cleanup(ts.Close)
	marker := idempotency.NewMemoryStore(24 * time.Hour)
	return NewNotifier(ts.URL, "tok", marker, zap.NewNop()), marker
}

func single() Notification {
	return Notification{PaymentID: "pay_1", Amount: 25000, OrderID: "ord_1", OfferID: "off_1"}
}

func TestNotify_SendsOnceAndMarks(t *testing.T) {
	b := &backend{}
	nt, marker := newNotifier(t, b)
	ctx := context.Background()

	res, err := nt.Notify(ctx, "sess", single())
	require.NoError(t, err)
	assert.True(t, res.Sent)
	assert.Equal(t, "paid", b.last.Status)
	assert.Equal(t, int64(25000), b.last.Amount)
	assert.Equal(t, "ord_1", b.last.OrderID)

	rec, err := marker.Get(ctx, idempotency.MarkerKey("sess", "pay_1"))
	require.NoError(t, err)
	assert.True(t, rec.Done())

	res, err = nt.Notify(ctx, "sess", single())
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, SkipAlreadyNotified, res.SkipReason)
	assert.Equal(t, int32(1), b.calls.Load())
}

func TestNotify_PresetMarkerSkipsNetwork(t *testing.T) {
	b := &backend{}
	nt, marker := newNotifier(t, b)
	ctx := context.Background()
	key := idempotency.MarkerKey("sess", "pay_1")
	_, _ = marker.CreateIfNotExists(ctx, key, "pay_1")
	require.NoError(t, marker.MarkDone(ctx, key, `{"success":true}`, 200))

	res, err := nt.Notify(ctx, "sess", single())
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, int32(0), b.calls.Load())
}

// flakyMarker fails the first failDone MarkDone calls.
type flakyMarker struct {
	*idempotency.MemoryStore
	failDone int
	doneCall int
}

func (m *flakyMarker) MarkDone(ctx context.Context, key, body string, status int) error {
	m.doneCall++
	if m.doneCall <= m.failDone {
		return errors.New("throttled")
	}
	return m.MemoryStore.MarkDone(ctx, key, body, status)
}

func TestNotify_MarkDoneRetriedAfterDelivery(t *testing.T) {
	b := &backend{}
	ts := httptest.NewServer(b)
	t.Cleanup(ts.Close)
	marker := &flakyMarker{MemoryStore: idempotency.NewMemoryStore(24 * time.Hour), failDone: 2}
	nt := NewNotifier(ts.URL, "tok", marker, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	res, err := nt.Notify(ctx, "sess", single())
	require.NoError(t, err)
	assert.True(t, res.Sent)
	assert.Equal(t, 3, marker.doneCall)
	cancel()

	rec, err := marker.Get(context.Background(), idempotency.MarkerKey("sess", "pay_1"))
	require.NoError(t, err)
	assert.True(t, rec.Done())

	res, err = nt.Notify(context.Background(), "sess", single())
	require.NoError(t, err)
	assert.Equal(t, SkipAlreadyNotified, res.SkipReason)
	assert.Equal(t, int32(1), b.calls.Load())
}

func TestNotify_FailureLeavesMarkerUnset(t *testing.T) {
	b := &backend{status: http.StatusBadGateway}
	nt, marker := newNotifier(t, b)
	ctx := context.Background()

	_, err := nt.Notify(ctx, "sess", single())
	assert.True(t, errors.Is(err, ErrDeliveryFailed))

	rec, err := marker.Get(ctx, idempotency.MarkerKey("sess", "pay_1"))
	require.NoError(t, err)
	assert.Nil(t, rec)

	b.status = 0
	res, err := nt.Notify(ctx, "sess", single())
	require.NoError(t, err)
	assert.True(t, res.Sent)
	assert.Equal(t, int32(2), b.calls.Load())
}

func TestNotify_SuccessFalseIsFailure(t *testing.T) {
	b := &backend{reply: `{"success":false,"message":"order not found"}`}
	nt, _ := newNotifier(t, b)
	_, err := nt.Notify(context.Background(), "sess", single())
	assert.True(t, errors.Is(err, ErrDeliveryFailed))
}

func TestNotify_GroupOrders(t *testing.T) {
	b := &backend{}
	nt, _ := newNotifier(t, b)
	n := Notification{PaymentID: "pay_g", Amount: 900, OrderIDs: []string{"o1", "o2"}, IsGroup: true}
	res, err := nt.Notify(context.Background(), "sess", n)
	require.NoError(t, err)
	assert.True(t, res.Sent)
	assert.Equal(t, []string{"o1", "o2"}, b.last.OrderIDs)
	assert.True(t, b.last.IsGroup)
	assert.Empty(t, b.last.OrderID)
}

func TestNotify_NoOrdersSkipped(t *testing.T) {
	b := &backend{}
	nt, _ := newNotifier(t, b)
	res, err := nt.Notify(context.Background(), "sess", Notification{PaymentID: "pay_x", Amount: 1})
	require.NoError(t, err)
	assert.Equal(t, SkipNoOrders, res.SkipReason)
	assert.Equal(t, int32(0), b.calls.Load())
}

func TestNotify_MissingPaymentID(t *testing.T) {
	nt, _ := newNotifier(t, &backend{})
	_, err := nt.Notify(context.Background(), "sess", Notification{OrderID: "o"})
	assert.ErrorIs(t, err, ErrNoPaymentID)
}

func TestNotify_ConcurrentDuplicatesPostOnce(t *testing.T) {
	b := &backend{gate: make(chan struct{})}
	nt, _ := newNotifier(t, b)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = nt.Notify(context.Background(), "sess", single())
		}()
	}
	// let the first request reach the backend before releasing it
	require.Eventually(t, func() bool { return b.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	close(b.gate)
	wg.Wait()

	assert.Equal(t, int32(1), b.calls.Load())
}

type fakePublisher struct {
	body  string
	attrs map[string]string
	err   error
}

func (f *fakePublisher) SendMessage(ctx context.Context, body string, attrs map[string]string) error {
	f.body, f.attrs = body, attrs
	return f.err
}

func TestRetryQueue_Enqueue(t *testing.T) {
	pub := &fakePublisher{}
	q := NewRetryQueue(pub)

	corr, err := q.Enqueue(context.Background(), "sess", single())
	require.NoError(t, err)
	assert.NotEmpty(t, corr)

	var msg RetryMessage
	require.NoError(t, json.Unmarshal([]byte(pub.body), &msg))
	assert.Equal(t, "sess", msg.SessionID)
	assert.Equal(t, "pay_1", msg.Notification.PaymentID)
	assert.Equal(t, corr, pub.attrs["correlation_id"])

	pub.err = errors.New("boom")
	_, err = q.Enqueue(context.Background(), "sess", single())
	assert.Error(t, err)
}
