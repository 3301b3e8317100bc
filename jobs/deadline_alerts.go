package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/llave-asesoria/fiscal/internal/alerts"
	"github.com/llave-asesoria/fiscal/internal/clients"
	jobmetrics "github.com/llave-asesoria/fiscal/internal/jobs"
)

const (
	// TaskDeadlineAlerts scans for filings close to their deadline.
	TaskDeadlineAlerts = "calendar:deadline-alerts"
)

// AlertScanner returns the alerts due at now and records the delivered ones.
type AlertScanner interface {
	Scan(ctx context.Context, now time.Time) ([]alerts.Alert, error)
	Ack(ctx context.Context, alert alerts.Alert) error
}

// ClientDirectory resolves client display names.
type ClientDirectory interface {
	DisplayNames(ctx context.Context, ids []string) (map[string]string, error)
}

// NotifyEnqueuer hands reminders to the queue.
type NotifyEnqueuer interface {
	EnqueueNotify(ctx context.Context, payload NotifyPayload) error
}

// DeadlineAlertsJob turns deadline alerts into notification tasks.
type DeadlineAlertsJob struct {
	Scanner   AlertScanner
	Directory ClientDirectory
	Enqueuer  NotifyEnqueuer
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	clock     func() time.Time
}

// NewDeadlineAlertsJob constructs the job handler.
func NewDeadlineAlertsJob(scanner AlertScanner, directory ClientDirectory, enqueuer NotifyEnqueuer, logger *slog.Logger, metrics *jobmetrics.Metrics) *DeadlineAlertsJob {
	return &DeadlineAlertsJob{
		Scanner:   scanner,
		Directory: directory,
		Enqueuer:  enqueuer,
		Logger:    logger,
		Metrics:   metrics,
		clock:     time.Now,
	}
}

// NewDeadlineAlertsTask creates the scan task.
func NewDeadlineAlertsTask() *asynq.Task {
	return asynq.NewTask(TaskDeadlineAlerts, nil, asynq.Queue(QueueDefault))
}

// Handle scans for due alerts and enqueues one notification per alert.
func (j *DeadlineAlertsJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Scanner == nil || j.Enqueuer == nil {
		return errors.New("deadline alerts: dependencies not configured")
	}

	tracker := j.metrics().Track(TaskDeadlineAlerts)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	due, err := j.Scanner.Scan(ctx, j.now())
	if err != nil {
		resultErr = err
		j.log().Error("scan deadlines", slog.Any("error", err))
		return resultErr
	}
	if len(due) == 0 {
		j.log().Info("no deadline alerts due")
		return resultErr
	}

	names := j.names(ctx, due)
	perThreshold := make(map[int]int)
	for _, a := range due {
		payload := NotifyPayload{
			FilingID:       a.FilingID,
			ClientID:       a.ClientID,
			ClientName:     clients.Name(names, a.ClientID),
			ObligationCode: a.ObligationCode,
			FiscalYear:     a.FiscalYear,
			Label:          a.Label,
			Deadline:       formatDate(a.SubmissionEnd),
			DaysLeft:       a.DaysLeft,
		}
		if err := j.Enqueuer.EnqueueNotify(ctx, payload); err != nil {
			resultErr = err
			j.log().Error("enqueue reminder", slog.String("filing_id", a.FilingID.String()), slog.Any("error", err))
			return resultErr
		}
		if err := j.Scanner.Ack(ctx, a); err != nil {
			j.log().Warn("ack reminder", slog.String("filing_id", a.FilingID.String()), slog.Any("error", err))
		}
		perThreshold[a.DaysLeft]++
	}
	for days, count := range perThreshold {
		j.metrics().AddAlerts(days, count)
	}
	j.log().Info("deadline reminders enqueued", slog.Int("alerts", len(due)))
	return resultErr
}

func (j *DeadlineAlertsJob) names(ctx context.Context, due []alerts.Alert) map[string]string {
	if j.Directory == nil {
		return nil
	}
	ids := make([]string, 0, len(due))
	seen := make(map[string]struct{}, len(due))
	for _, a := range due {
		if _, ok := seen[a.ClientID]; ok {
			continue
		}
		seen[a.ClientID] = struct{}{}
		ids = append(ids, a.ClientID)
	}
	names, err := j.Directory.DisplayNames(ctx, ids)
	if err != nil {
		j.log().Warn("resolve client names", slog.Any("error", err))
		return nil
	}
	return names
}

func (j *DeadlineAlertsJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *DeadlineAlertsJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskDeadlineAlerts))
	}
	return slog.Default().With(slog.String("job", TaskDeadlineAlerts))
}

func (j *DeadlineAlertsJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now()
}

// WithClock overrides the internal clock for deterministic tests.
func (j *DeadlineAlertsJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}
