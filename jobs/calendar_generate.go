package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/llave-asesoria/fiscal/internal/calendar"
	jobmetrics "github.com/llave-asesoria/fiscal/internal/jobs"
)

const (
	// TaskCalendarGenerate (re)generates period definitions.
	TaskCalendarGenerate = "calendar:generate"
)

// CalendarGeneratePayload lists the fiscal years to generate. Empty means the current
// and next year.
type CalendarGeneratePayload struct {
	Years []int `json:"years,omitempty"`
}

// CalendarGenerator generates the calendar of every configured obligation.
type CalendarGenerator interface {
	GenerateAll(ctx context.Context, fiscalYear int) (calendar.GenerateResult, error)
	Today() time.Time
}

// CalendarGenerateJob wires calendar generation into the worker.
type CalendarGenerateJob struct {
	Generator CalendarGenerator
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewCalendarGenerateJob constructs the job handler.
func NewCalendarGenerateJob(generator CalendarGenerator, logger *slog.Logger, metrics *jobmetrics.Metrics) *CalendarGenerateJob {
	return &CalendarGenerateJob{Generator: generator, Logger: logger, Metrics: metrics}
}

// NewCalendarGenerateTask creates a generation task for years.
func NewCalendarGenerateTask(years ...int) (*asynq.Task, error) {
	body, err := json.Marshal(CalendarGeneratePayload{Years: years})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCalendarGenerate, body, asynq.Queue(QueueDefault)), nil
}

// Handle generates the requested years. Obligations with invalid rules are logged and
// skipped; storage errors fail the task.
func (j *CalendarGenerateJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Generator == nil {
		return errors.New("calendar generate: dependencies not configured")
	}
	var payload CalendarGeneratePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	years := payload.Years
	if len(years) == 0 {
		current := j.Generator.Today().Year()
		years = []int{current, current + 1}
	}

	tracker := j.metrics().Track(TaskCalendarGenerate)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	for _, year := range years {
		result, err := j.Generator.GenerateAll(ctx, year)
		if err != nil {
			resultErr = fmt.Errorf("generate %d: %w", year, err)
			j.log().Error("generate calendar", slog.Int("fiscal_year", year), slog.Any("error", err))
			return resultErr
		}
		for code, failure := range result.Failures {
			j.log().Warn("obligation skipped", slog.Int("fiscal_year", year), slog.String("obligation", code), slog.Any("error", failure))
		}
		j.log().Info("calendar generated",
			slog.Int("fiscal_year", year),
			slog.Int("obligations", len(result.Codes)),
			slog.Int("periods", result.Periods),
			slog.Int("skipped", len(result.Failures)),
		)
	}
	return resultErr
}

func (j *CalendarGenerateJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *CalendarGenerateJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskCalendarGenerate))
	}
	return slog.Default().With(slog.String("job", TaskCalendarGenerate))
}
