package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/llave-asesoria/fiscal/internal/calendar"
	"github.com/llave-asesoria/fiscal/internal/filings"
)

// DefaultThresholds are the days before a window closes at which alerts fire.
var DefaultThresholds = []int{7, 3, 1}

// Calendar supplies the periods about to close.
type Calendar interface {
	ClosingWithin(ctx context.Context, now time.Time, days int) ([]calendar.PeriodDefinition, error)
	Location() *time.Location
}

// Filings lists filings.
type Filings interface {
	List(ctx context.Context, filter filings.ListFilter) ([]filings.Filing, error)
}

// Alert reports a filing whose submission window closes in Threshold days.
type Alert struct {
	FilingID       uuid.UUID
	ClientID       string
	ObligationCode string
	FiscalYear     int
	Label          string
	SubmissionEnd  time.Time
	DaysLeft       int
}

// Config tunes a Scanner.
type Config struct {
	Thresholds []int
	DedupeTTL  time.Duration
}

// Scanner finds pending filings close to their deadline.
type Scanner struct {
	calendar   Calendar
	filings    Filings
	redis      redis.UniversalClient
	thresholds map[int]struct{}
	maxDays    int
	ttl        time.Duration
	logger     *slog.Logger
}

// NewScanner constructs a Scanner. A nil redis client disables deduplication.
func NewScanner(cal Calendar, repo Filings, rdb redis.UniversalClient, cfg Config, logger *slog.Logger) *Scanner {
	thresholds := cfg.Thresholds
	if len(thresholds) == 0 {
		thresholds = DefaultThresholds
	}
	if cfg.DedupeTTL <= 0 {
		cfg.DedupeTTL = 48 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scanner{
		calendar:   cal,
		filings:    repo,
		redis:      rdb,
		thresholds: make(map[int]struct{}, len(thresholds)),
		ttl:        cfg.DedupeTTL,
		logger:     logger,
	}
	for _, days := range thresholds {
		s.thresholds[days] = struct{}{}
		if days > s.maxDays {
			s.maxDays = days
		}
	}
	return s
}

// Scan returns the alerts due at now. Alerts acknowledged for the same filing and
// threshold are dropped. Scan does not mark anything; callers Ack each alert once it
// has been delivered.
func (s *Scanner) Scan(ctx context.Context, now time.Time) ([]Alert, error) {
	loc := s.calendar.Location()
	periods, err := s.calendar.ClosingWithin(ctx, now, s.maxDays)
	if err != nil {
		return nil, fmt.Errorf("alerts: closing periods: %w", err)
	}

	byID := make(map[uuid.UUID]calendar.PeriodDefinition)
	daysLeft := make(map[uuid.UUID]int)
	ids := make([]uuid.UUID, 0, len(periods))
	for _, p := range periods {
		days := calendar.DaysToEnd(p, now, loc)
		if _, ok := s.thresholds[days]; !ok {
			continue
		}
		byID[p.ID] = p
		daysLeft[p.ID] = days
		ids = append(ids, p.ID)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pending, err := s.filings.List(ctx, filings.ListFilter{State: filings.StateAwaitingSubmission, PeriodIDs: ids})
	if err != nil {
		return nil, fmt.Errorf("alerts: pending filings: %w", err)
	}

	var out []Alert
	for _, f := range pending {
		p, ok := byID[f.PeriodID]
		if !ok {
			continue
		}
		alert := Alert{
			FilingID:       f.ID,
			ClientID:       f.ClientID,
			ObligationCode: f.ObligationCode,
			FiscalYear:     p.FiscalYear,
			Label:          p.Label,
			SubmissionEnd:  p.SubmissionEnd,
			DaysLeft:       daysLeft[p.ID],
		}
		sent, err := s.acked(ctx, alert)
		if err != nil {
			return nil, err
		}
		if !sent {
			out = append(out, alert)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SubmissionEnd.Equal(out[j].SubmissionEnd) {
			return out[i].SubmissionEnd.Before(out[j].SubmissionEnd)
		}
		if out[i].ClientID != out[j].ClientID {
			return out[i].ClientID < out[j].ClientID
		}
		return out[i].ObligationCode < out[j].ObligationCode
	})
	s.logger.Debug("deadline scan", slog.Int("periods", len(ids)), slog.Int("alerts", len(out)))
	return out, nil
}

// Ack records a as delivered so later scans within the dedupe TTL skip it.
func (s *Scanner) Ack(ctx context.Context, a Alert) error {
	if s.redis == nil {
		return nil
	}
	if err := s.redis.SetNX(ctx, DedupeKey(a), 1, s.ttl).Err(); err != nil {
		return fmt.Errorf("alerts: ack: %w", err)
	}
	return nil
}

func (s *Scanner) acked(ctx context.Context, a Alert) (bool, error) {
	if s.redis == nil {
		return false, nil
	}
	n, err := s.redis.Exists(ctx, DedupeKey(a)).Result()
	if err != nil {
		return false, fmt.Errorf("alerts: dedupe: %w", err)
	}
	return n > 0, nil
}

// DedupeKey identifies an alert for deduplication.
func DedupeKey(a Alert) string {
	return fmt.Sprintf("fiscal:alert:%s:%d", a.FilingID, a.DaysLeft)
}
