package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeOrderCreated is the task type for new order notifications.
	TaskTypeOrderCreated = "order:created"
)

// OrderCreatedPayload is the notification body for a newly created order.
type OrderCreatedPayload struct {
	OrderID      int64     `json:"order_id"`
	UserID       int64     `json:"user_id"`
	CustomerType string    `json:"customer_type"`
	Kind         string    `json:"kind"`
	Status       string    `json:"status"`
	Lines        int       `json:"lines"`
	Total        int64     `json:"total"`
	CreatedAt    time.Time `json:"created_at"`
}

// OrderCreatedTaskID deduplicates notifications for one order.
func OrderCreatedTaskID(orderID int64) string {
	return fmt.Sprintf("order-created:%d", orderID)
}

// NewOrderCreatedTask constructs an Asynq task.
func NewOrderCreatedTask(payload OrderCreatedPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeOrderCreated, data), nil
}
