package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	jobmetrics "github.com/llave-asesoria/fiscal/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskNotifySend hands a deadline reminder to the notification service.
	TaskNotifySend = "notify:send"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// NotifyPayload describes a reminder about a filing close to its deadline.
type NotifyPayload struct {
	FilingID       uuid.UUID `json:"filing_id"`
	ClientID       string    `json:"client_id"`
	ClientName     string    `json:"client_name"`
	ObligationCode string    `json:"obligation_code"`
	FiscalYear     int       `json:"fiscal_year"`
	Label          string    `json:"label"`
	Deadline       string    `json:"deadline"`
	DaysLeft       int       `json:"days_left"`
}

// NewNotifyTask constructs a notify:send task.
func NewNotifyTask(payload NotifyPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotifySend, data, asynq.Queue(QueueDefault)), nil
}

// HandleNotifyTask processes TaskNotifySend tasks. Delivery belongs to the notification
// service; the worker only records the hand-off.
func HandleNotifyTask(ctx context.Context, t *asynq.Task) error {
	var payload NotifyPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	slog.Default().InfoContext(ctx, "deadline reminder",
		slog.String("job", TaskNotifySend),
		slog.String("client_id", payload.ClientID),
		slog.String("client", payload.ClientName),
		slog.String("obligation", payload.ObligationCode),
		slog.Int("fiscal_year", payload.FiscalYear),
		slog.String("label", payload.Label),
		slog.String("deadline", payload.Deadline),
		slog.Int("days_left", payload.DaysLeft),
	)
	return nil
}

func formatDate(t time.Time) string {
	return t.Format(time.DateOnly)
}
