package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	jobmetrics "github.com/printhouse/textile-erp/internal/jobs"
)

// Mailer delivers a plain text message.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// LogMailer writes messages to the log instead of sending them.
type LogMailer struct {
	Logger *slog.Logger
}

// Send logs the message.
func (m LogMailer) Send(_ context.Context, to, subject, body string) error {
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("mail", slog.String("to", to), slog.String("subject", subject), slog.String("body", body))
	return nil
}

// OrderCreatedJob tells the back office about new orders and quotation requests.
type OrderCreatedJob struct {
	Mailer     Mailer
	AdminEmail string
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
	printer    *message.Printer
}

// NewOrderCreatedJob initialises the notification handler.
func NewOrderCreatedJob(mailer Mailer, adminEmail string, logger *slog.Logger, metrics *jobmetrics.Metrics) *OrderCreatedJob {
	if logger == nil {
		logger = slog.Default()
	}
	if mailer == nil {
		mailer = LogMailer{Logger: logger}
	}
	return &OrderCreatedJob{
		Mailer:     mailer,
		AdminEmail: adminEmail,
		Logger:     logger,
		Metrics:    metrics,
		printer:    message.NewPrinter(language.English),
	}
}

// Handle executes the notification.
func (j *OrderCreatedJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil {
		return errors.New("order created: handler not configured")
	}
	var payload OrderCreatedPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(TaskTypeOrderCreated)
	defer func() {
		err = tracker.End(err)
	}()

	subject, body := j.Render(payload)
	if err := j.Mailer.Send(ctx, j.AdminEmail, subject, body); err != nil {
		j.Logger.Error("order notification failed", slog.Int64("order_id", payload.OrderID), slog.Any("error", err))
		return err
	}
	j.Logger.Info("order notification sent", slog.Int64("order_id", payload.OrderID), slog.String("kind", payload.Kind))
	return nil
}

// Render builds the subject and body of the notification.
func (j *OrderCreatedJob) Render(p OrderCreatedPayload) (string, string) {
	if p.Kind == "QUOTATION" {
		subject := j.printer.Sprintf("Quotation request #%d", p.OrderID)
		body := j.printer.Sprintf("Customer %d (%s) requested a quotation for %d line(s). Price to be confirmed.",
			p.UserID, p.CustomerType, p.Lines)
		return subject, body
	}
	subject := j.printer.Sprintf("New order #%d", p.OrderID)
	body := j.printer.Sprintf("Customer %d (%s) placed an order with %d line(s) totalling %d EGP.",
		p.UserID, p.CustomerType, p.Lines, p.Total)
	return subject, body
}
