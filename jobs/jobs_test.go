package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/printhouse/textile-erp/internal/orders"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	f.opts = append(f.opts, opts)
	return &asynq.TaskInfo{ID: "x", Queue: "notifications"}, nil
}

type recordingMailer struct {
	to, subject, body string
	err               error
}

func (m *recordingMailer) Send(_ context.Context, to, subject, body string) error {
	m.to, m.subject, m.body = to, subject, body
	return m.err
}

func sampleOrder() orders.Order {
	order := orders.Order{
		ID:           42,
		UserID:       7,
		CustomerType: "business",
		Kind:         orders.KindOrder,
		Status:       orders.StatusSubmitted,
		Lines:        []orders.Line{{Quantity: 100}},
	}
	order.Lines[0].SetPrice(125)
	return order
}

func TestNotifyOrderCreatedEnqueuesTask(t *testing.T) {
	enq := &fakeEnqueuer{}
	n := NewOrderNotifier(enq, "notifications")

	require.NoError(t, n.NotifyOrderCreated(context.Background(), sampleOrder()))
	require.Len(t, enq.tasks, 1)
	assert.Equal(t, TaskTypeOrderCreated, enq.tasks[0].Type())

	var payload OrderCreatedPayload
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &payload))
	assert.Equal(t, int64(42), payload.OrderID)
	assert.Equal(t, int64(12500), payload.Total)
	assert.Equal(t, 1, payload.Lines)

	var ids []string
	for _, opt := range enq.opts[0] {
		if opt.Type() == asynq.TaskIDOpt {
			ids = append(ids, opt.Value().(string))
		}
	}
	assert.Equal(t, []string{"order-created:42"}, ids)
}

func TestNotifyOrderCreatedTreatsDuplicateAsDelivered(t *testing.T) {
	n := NewOrderNotifier(&fakeEnqueuer{err: asynq.ErrTaskIDConflict}, "")
	assert.NoError(t, n.NotifyOrderCreated(context.Background(), sampleOrder()))

	n = NewOrderNotifier(&fakeEnqueuer{err: errors.New("redis down")}, "")
	assert.Error(t, n.NotifyOrderCreated(context.Background(), sampleOrder()))
}

func TestOrderCreatedJobSendsFormattedMail(t *testing.T) {
	mailer := &recordingMailer{}
	job := NewOrderCreatedJob(mailer, "ops@example.com", nil, nil)

	data, err := json.Marshal(OrderCreatedPayload{OrderID: 42, UserID: 7, CustomerType: "business", Kind: "ORDER", Lines: 1, Total: 12500})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskTypeOrderCreated, data)))

	assert.Equal(t, "ops@example.com", mailer.to)
	assert.Equal(t, "New order #42", mailer.subject)
	assert.Contains(t, mailer.body, "12,500 EGP")

	subject, body := job.Render(OrderCreatedPayload{OrderID: 43, Kind: "QUOTATION", Lines: 2})
	assert.Equal(t, "Quotation request #43", subject)
	assert.Contains(t, body, "Price to be confirmed")
}

func TestOrderCreatedJobErrors(t *testing.T) {
	mailer := &recordingMailer{err: errors.New("smtp down")}
	job := NewOrderCreatedJob(mailer, "ops@example.com", nil, nil)

	err := job.Handle(context.Background(), asynq.NewTask(TaskTypeOrderCreated, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = job.Handle(context.Background(), asynq.NewTask(TaskTypeOrderCreated, []byte(`{"order_id":1}`)))
	assert.EqualError(t, err, "smtp down")
}

func TestHealthWithoutInspector(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(nil, "notifications", nil).MountRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"queue":"notifications","pending":0}`, rec.Body.String())
}

type fakePurger struct {
	olderThan time.Duration
	removed   int64
	err       error
}

func (p *fakePurger) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	p.olderThan = olderThan
	return p.removed, p.err
}

func TestIdempotencyCleanupJob(t *testing.T) {
	purger := &fakePurger{removed: 3}
	job := NewIdempotencyCleanupJob(purger, 0, nil, nil)
	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskTypeIdempotencyCleanup, nil)))
	assert.Equal(t, 72*time.Hour, purger.olderThan)

	purger.err = errors.New("db gone")
	assert.EqualError(t, job.Handle(context.Background(), asynq.NewTask(TaskTypeIdempotencyCleanup, nil)), "db gone")
}

func TestCleanupCronDefaultsQueue(t *testing.T) {
	entry := CleanupCron("@hourly", "")
	assert.Equal(t, "@hourly", entry.Spec)
	assert.Equal(t, TaskTypeIdempotencyCleanup, entry.Task.Type())
	assert.Len(t, entry.Options, 2)
}
