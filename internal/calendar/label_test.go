package calendar

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/llave-asesoria/fiscal/internal/obligations"
)

func TestParseLabel(t *testing.T) {
	cases := []struct {
		raw    string
		kind   LabelKind
		number int
	}{
		{"M04", LabelMonthly, 4},
		{"m12", LabelMonthly, 12},
		{"M13", LabelUnrecognized, 0},
		{"M00", LabelUnrecognized, 0},
		{"M4", LabelUnrecognized, 0},
		{"3T", LabelQuarterly, 3},
		{"5T", LabelUnrecognized, 0},
		{"ANUAL", LabelAnnual, 0},
		{" anual ", LabelAnnual, 0},
		{"2P", LabelInstallment, 2},
		{"Abril", LabelUnrecognized, 0},
		{"", LabelUnrecognized, 0},
	}
	for _, tc := range cases {
		got := ParseLabel(tc.raw)
		assert.Equal(t, tc.kind, got.Kind, tc.raw)
		assert.Equal(t, tc.number, got.Number, tc.raw)
		assert.Equal(t, tc.raw, got.Raw, tc.raw)
	}
}

func TestFormatLabelRoundTrip(t *testing.T) {
	for _, p := range obligations.Periodicities {
		label := FormatLabel(p, 3)
		parsed := ParseLabel(label)
		kind, ok := parsed.Periodicity()
		assert.True(t, ok, label)
		assert.Equal(t, p, kind, label)
		assert.Equal(t, label, parsed.String())
	}
	assert.Equal(t, "Abril", ParseLabel("Abril").String())
}

func TestLookupResolve(t *testing.T) {
	periods, err := Generate(mustRule(t, "303"), 2025)
	assert.NoError(t, err)
	lookup := NewLookup(periods)

	p, err := lookup.Resolve("303", 2025, ParseLabel("M04"))
	assert.NoError(t, err)
	assert.Equal(t, 4, p.Index)
	assert.Equal(t, obligations.PeriodicityMonthly, p.Kind)

	_, err = lookup.Resolve("303", 2025, ParseLabel("ANUAL"))
	var pnf *PeriodNotFoundError
	assert.ErrorAs(t, err, &pnf)

	_, err = lookup.Resolve("303", 2025, ParseLabel("Octubre"))
	assert.ErrorIs(t, err, ErrPeriodNotFound)

	_, err = lookup.Resolve("303", 2024, ParseLabel("3T"))
	assert.ErrorIs(t, err, ErrPeriodNotFound)
}
