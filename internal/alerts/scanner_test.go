package alerts

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/llave-asesoria/fiscal/internal/calendar"
	"github.com/llave-asesoria/fiscal/internal/filings"
	"github.com/llave-asesoria/fiscal/internal/obligations"
)

type stubCalendar struct {
	periods []calendar.PeriodDefinition
	loc     *time.Location
}

func (c stubCalendar) ClosingWithin(_ context.Context, now time.Time, days int) ([]calendar.PeriodDefinition, error) {
	var out []calendar.PeriodDefinition
	for _, p := range c.periods {
		if calendar.IsOpen(p, now, c.loc) && calendar.DaysToEnd(p, now, c.loc) <= days {
			out = append(out, p)
		}
	}
	return out, nil
}

func (c stubCalendar) Location() *time.Location { return c.loc }

type stubFilings []filings.Filing

func (s stubFilings) List(_ context.Context, filter filings.ListFilter) ([]filings.Filing, error) {
	wanted := make(map[uuid.UUID]bool)
	for _, id := range filter.PeriodIDs {
		wanted[id] = true
	}
	var out []filings.Filing
	for _, f := range s {
		if filter.State != "" && f.State != filter.State {
			continue
		}
		if len(wanted) > 0 && !wanted[f.PeriodID] {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

func period(code, label string, end time.Time) calendar.PeriodDefinition {
	return calendar.PeriodDefinition{
		ID:              calendar.PeriodID(code, 2025, label),
		ObligationCode:  code,
		FiscalYear:      2025,
		Label:           label,
		Kind:            obligations.PeriodicityQuarterly,
		SubmissionStart: end.AddDate(0, 0, -19),
		SubmissionEnd:   end,
		Active:          true,
	}
}

func fixture(t *testing.T) (stubCalendar, stubFilings) {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Madrid")
	require.NoError(t, err)
	closesIn3 := period("303", "3T", time.Date(2025, 10, 20, 0, 0, 0, 0, time.UTC))
	closesIn5 := period("130", "3T", time.Date(2025, 10, 22, 0, 0, 0, 0, time.UTC))
	pending := filings.NewAwaiting(filings.Key{ClientID: "A", ObligationCode: "303", PeriodID: closesIn3.ID}, time.Now())
	other := filings.NewAwaiting(filings.Key{ClientID: "B", ObligationCode: "130", PeriodID: closesIn5.ID}, time.Now())
	done := filings.NewAwaiting(filings.Key{ClientID: "C", ObligationCode: "303", PeriodID: closesIn3.ID}, time.Now())
	done.State = filings.StateSubmitted
	return stubCalendar{periods: []calendar.PeriodDefinition{closesIn3, closesIn5}, loc: loc}, stubFilings{pending, other, done}
}

func TestScanMatchesThresholds(t *testing.T) {
	cal, repo := fixture(t)
	now := time.Date(2025, 10, 17, 8, 0, 0, 0, time.UTC)

	alerts, err := NewScanner(cal, repo, nil, Config{}, nil).Scan(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.Equal(t, "A", alerts[0].ClientID)
	require.Equal(t, 3, alerts[0].DaysLeft)
	require.Equal(t, "3T", alerts[0].Label)
}

func TestScanDedupesWithRedis(t *testing.T) {
	cal, repo := fixture(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	scanner := NewScanner(cal, repo, client, Config{Thresholds: []int{3, 5}, DedupeTTL: time.Hour}, nil)
	now := time.Date(2025, 10, 17, 8, 0, 0, 0, time.UTC)

	first, err := scanner.Scan(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, first, 2)
	for _, a := range first {
		require.NoError(t, scanner.Ack(context.Background(), a))
	}
	require.True(t, mr.Exists(DedupeKey(first[0])))

	second, err := scanner.Scan(context.Background(), now.Add(2*time.Hour))
	require.NoError(t, err)
	require.Empty(t, second)

	mr.FastForward(2 * time.Hour)
	third, err := scanner.Scan(context.Background(), now.Add(3*time.Hour))
	require.NoError(t, err)
	require.Len(t, third, 2)
}

func TestScanNothingDue(t *testing.T) {
	cal, repo := fixture(t)
	now := time.Date(2025, 10, 14, 8, 0, 0, 0, time.UTC)
	alerts, err := NewScanner(cal, repo, nil, Config{}, nil).Scan(context.Background(), now)
	require.NoError(t, err)
	require.Empty(t, alerts)
}

func TestScanRepeatsUnacknowledgedAlerts(t *testing.T) {
	cal, repo := fixture(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	scanner := NewScanner(cal, repo, client, Config{Thresholds: []int{3}, DedupeTTL: time.Hour}, nil)
	now := time.Date(2025, 10, 17, 8, 0, 0, 0, time.UTC)

	first, err := scanner.Scan(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, first, 1)
	require.False(t, mr.Exists(DedupeKey(first[0])))

	retry, err := scanner.Scan(context.Background(), now.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, first, retry)

	require.NoError(t, scanner.Ack(context.Background(), retry[0]))
	after, err := scanner.Scan(context.Background(), now.Add(2*time.Minute))
	require.NoError(t, err)
	require.Empty(t, after)
}

func TestAckWithoutRedis(t *testing.T) {
	cal, repo := fixture(t)
	scanner := NewScanner(cal, repo, nil, Config{}, nil)
	require.NoError(t, scanner.Ack(context.Background(), Alert{ClientID: "A", DaysLeft: 3}))
}
