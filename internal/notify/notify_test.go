package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/medorder/config"
	"github.com/d60-Lab/medorder/internal/model"
	"github.com/d60-Lab/medorder/internal/queue"
)

type fakeMailer struct {
	mu     sync.Mutex
	sent   []Message
	failTo map[string]error
}

func (m *fakeMailer) Send(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failTo[msg.To]; err != nil {
		return err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *fakeMailer) Sent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.sent...)
}

type fakeLog struct {
	mu      sync.Mutex
	records []model.Notification
}

func (l *fakeLog) LogNotification(_ context.Context, n *model.Notification) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, *n)
	return nil
}

func (l *fakeLog) ListNotifications(_ context.Context, _ *int64) ([]model.Notification, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]model.Notification(nil), l.records...), nil
}

func testOrder() model.Order {
	return model.Order{
		ID:             1001,
		Product:        "eye-booster",
		Quantity:       2,
		FullName:       "Taro Tanaka",
		CompanyAddress: "Tokyo",
		ContactName:    "Taro Tanaka",
		ContactPhone:   "090-0000-0000",
		ContactEmail:   "taro@example.com",
		Status:         model.OrderStatusPending,
		CreatedAt:      time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func testCfg() config.NotificationConfig {
	return config.NotificationConfig{
		AdminEmail:  "admin@example.com",
		FromEmail:   "noreply@example.com",
		BrandName:   "CVG",
		SendTimeout: time.Second,
	}
}

func TestNotifyOrderCreated(t *testing.T) {
	mailer := &fakeMailer{}
	log := &fakeLog{}
	n := NewNotifier(mailer, log, testCfg())

	n.NotifyOrderCreated(context.Background(), testOrder(), "license_1.pdf")

	sent := mailer.Sent()
	require.Len(t, sent, 2)

	admin := sent[0]
	assert.Equal(t, "admin@example.com", admin.To)
	assert.Equal(t, "noreply@example.com", admin.From)
	assert.Equal(t, "[CVG] 新規注文 #1001 - Taro Tanaka様", admin.Subject)
	assert.Contains(t, admin.Body, "注文ID: 1001")
	assert.Contains(t, admin.Body, "注文日時: 2025/01/02 12:04:05")
	assert.Contains(t, admin.Body, "医院住所: Tokyo")
	assert.Contains(t, admin.Body, "自宅住所: N/A")
	assert.Contains(t, admin.Body, "添付あり (license_1.pdf)")

	customer := sent[1]
	assert.Equal(t, "taro@example.com", customer.To)
	assert.Equal(t, "[CVG] ご注文確認 #1001", customer.Subject)
	assert.Contains(t, customer.Body, "Taro Tanaka 様")
	assert.Contains(t, customer.Body, "数量: 2")

	require.Len(t, log.records, 2)
	for _, r := range log.records {
		assert.Equal(t, model.NotificationSent, r.Status)
		assert.NotNil(t, r.SentAt)
		assert.Equal(t, int64(1001), r.OrderID)
	}
}

func TestNotifyOrderCreated_FailuresAreRecorded(t *testing.T) {
	mailer := &fakeMailer{failTo: map[string]error{"taro@example.com": errors.New("550 mailbox unavailable")}}
	log := &fakeLog{}
	cfg := testCfg()
	cfg.AdminEmail = ""
	n := NewNotifier(mailer, log, cfg)

	n.NotifyOrderCreated(context.Background(), testOrder(), "")

	assert.Empty(t, mailer.Sent())
	require.Len(t, log.records, 2)
	assert.Equal(t, model.NotificationAdmin, log.records[0].Kind)
	assert.Equal(t, model.NotificationSkipped, log.records[0].Status)
	assert.Equal(t, model.NotificationCustomer, log.records[1].Kind)
	assert.Equal(t, model.NotificationFailed, log.records[1].Status)
	assert.Contains(t, log.records[1].Error, "mailbox unavailable")
	assert.Nil(t, log.records[1].SentAt)
}

func TestNotifyOrderCreated_NoContactEmail(t *testing.T) {
	mailer := &fakeMailer{}
	n := NewNotifier(mailer, nil, testCfg())

	order := testOrder()
	order.ContactEmail = ""
	n.NotifyOrderCreated(context.Background(), order, "")

	sent := mailer.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "admin@example.com", sent[0].To)
	assert.Contains(t, sent[0].Body, "添付なし")
}

type countingNotifier struct {
	mu     sync.Mutex
	orders []int64
	delay  time.Duration
}

func (c *countingNotifier) NotifyOrderCreated(_ context.Context, order model.Order, _ string) {
	time.Sleep(c.delay)
	c.mu.Lock()
	c.orders = append(c.orders, order.ID)
	c.mu.Unlock()
}

func (c *countingNotifier) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.orders)
}

func TestDispatcher_DrainsOnStop(t *testing.T) {
	q := queue.NewMemoryQueue(100)
	notifier := &countingNotifier{delay: 5 * time.Millisecond}
	d := NewDispatcher(q, notifier, 3)
	stop := d.Start()

	for i := 0; i < 20; i++ {
		require.NoError(t, q.Enqueue(context.Background(), queue.Job{
			Order:      model.Order{ID: int64(i + 1)},
			EnqueuedAt: time.Now(),
		}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, stop(ctx))
	assert.Equal(t, 20, notifier.count())

	select {
	case lat := <-d.Metrics():
		assert.GreaterOrEqual(t, lat, time.Duration(0))
	default:
		t.Fatal("expected latency metric")
	}
	assert.Equal(t, int64(0), d.QueueLen(context.Background()))
}

type panicNotifier struct{ calls int }

func (p *panicNotifier) NotifyOrderCreated(context.Context, model.Order, string) {
	p.calls++
	panic("boom")
}

func TestDispatcher_RecoversPanic(t *testing.T) {
	q := queue.NewMemoryQueue(10)
	notifier := &panicNotifier{}
	d := NewDispatcher(q, notifier, 1)
	stop := d.Start()

	require.NoError(t, q.Enqueue(context.Background(), queue.Job{Order: model.Order{ID: 1}}))
	require.NoError(t, q.Enqueue(context.Background(), queue.Job{Order: model.Order{ID: 2}}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, stop(ctx))
	assert.Equal(t, 2, notifier.calls)
}

func TestNewMailer(t *testing.T) {
	_, isLog := NewMailer(config.SMTPConfig{}).(LogMailer)
	assert.True(t, isLog)

	_, isSMTP := NewMailer(config.SMTPConfig{Host: "smtp.example.com", Port: 587}).(*SMTPMailer)
	assert.True(t, isSMTP)

	assert.NoError(t, LogMailer{}.Send(context.Background(), Message{To: "a@example.com", Subject: "s"}))
}

func TestSMTPMailer_InvalidRecipient(t *testing.T) {
	m := NewSMTPMailer(config.SMTPConfig{Host: "127.0.0.1", Port: 2525})
	err := m.Send(context.Background(), Message{From: "noreply@example.com", To: "not an address", Subject: "x", Body: "y"})
	assert.Error(t, err)
}
