package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/llave-asesoria/fiscal/internal/jobs"
	"github.com/llave-asesoria/fiscal/internal/reconcile"
)

const (
	// TaskFilingsReconcile runs the filing reconciliation batch.
	TaskFilingsReconcile = "filings:reconcile"
)

// ReconcilePayload scopes a reconciliation run. An empty ClientID reconciles every client.
type ReconcilePayload struct {
	ClientID string `json:"client_id,omitempty"`
}

// Reconciler runs a reconciliation batch.
type Reconciler interface {
	Reconcile(ctx context.Context, scope reconcile.Scope) (reconcile.Report, error)
}

// ReconcileJob wires the reconciler into the worker.
type ReconcileJob struct {
	Reconciler Reconciler
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
}

// NewReconcileJob constructs the job handler.
func NewReconcileJob(reconciler Reconciler, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReconcileJob {
	return &ReconcileJob{Reconciler: reconciler, Logger: logger, Metrics: metrics}
}

// NewReconcileTask creates a reconciliation task for clientID, or for all clients when empty.
func NewReconcileTask(clientID string) (*asynq.Task, error) {
	body, err := json.Marshal(ReconcilePayload{ClientID: strings.TrimSpace(clientID)})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskFilingsReconcile, body, asynq.Queue(QueueDefault)), nil
}

// Handle executes a reconciliation run. Per-client failures are reported, not retried.
func (j *ReconcileJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Reconciler == nil {
		return errors.New("reconcile: dependencies not configured")
	}
	var payload ReconcilePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskFilingsReconcile)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	scope := reconcile.AllClients()
	if payload.ClientID != "" {
		scope = reconcile.SingleClient(payload.ClientID)
	}
	report, err := j.Reconciler.Reconcile(ctx, scope)
	if err != nil {
		resultErr = err
		j.log().Error("reconcile", slog.String("scope", scope.String()), slog.Any("error", err))
		return resultErr
	}

	m := j.metrics()
	m.AddReconciled(jobmetrics.ActionValidated, report.Validated)
	m.AddReconciled(jobmetrics.ActionCreated, report.Created)
	m.AddReconciled(jobmetrics.ActionDeleted, report.Deleted)
	reconcile.LogReport(j.log(), report)
	return resultErr
}

func (j *ReconcileJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *ReconcileJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskFilingsReconcile))
	}
	return slog.Default().With(slog.String("job", TaskFilingsReconcile))
}
