package jobs

import (
	"context"
	"errors"

	"github.com/hibiken/asynq"

	"github.com/printhouse/textile-erp/internal/orders"
)

// Enqueuer is the subset of asynq.Client used to submit tasks.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// OrderNotifier publishes order-created notifications to the queue.
type OrderNotifier struct {
	enqueuer Enqueuer
	queue    string
}

// NewOrderNotifier builds a notifier writing to queue.
func NewOrderNotifier(enqueuer Enqueuer, queue string) *OrderNotifier {
	if queue == "" {
		queue = QueueDefault
	}
	return &OrderNotifier{enqueuer: enqueuer, queue: queue}
}

// NotifyOrderCreated enqueues one notification per order. A task already
// queued for the same order counts as delivered.
func (n *OrderNotifier) NotifyOrderCreated(ctx context.Context, order orders.Order) error {
	task, err := NewOrderCreatedTask(OrderCreatedPayload{
		OrderID:      order.ID,
		UserID:       order.UserID,
		CustomerType: order.CustomerType,
		Kind:         string(order.Kind),
		Status:       string(order.Status),
		Lines:        len(order.Lines),
		Total:        int64(order.Total()),
		CreatedAt:    order.CreatedAt,
	})
	if err != nil {
		return err
	}
	_, err = n.enqueuer.EnqueueContext(ctx, task,
		asynq.Queue(n.queue),
		asynq.TaskID(OrderCreatedTaskID(order.ID)),
		asynq.MaxRetry(5),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}
