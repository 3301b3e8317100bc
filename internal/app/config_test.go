package app

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("PG_DSN", "postgres://u:p@localhost:5432/db")
	t.Setenv("ALERT_THRESHOLDS", "10,2")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, 4, cfg.ReconcileConcurrency)
	require.Equal(t, 1, cfg.ReconcileLookbackYears)
	require.False(t, cfg.ReconcileWindowAware)
	require.Equal(t, []int{10, 2}, cfg.AlertThresholds)
	require.Equal(t, 48*time.Hour, cfg.AlertDedupeTTL)
	require.Equal(t, "0 2 * * *", cfg.CronReconcile)

	loc, err := cfg.Location()
	require.NoError(t, err)
	require.Equal(t, "Europe/Madrid", loc.String())
}

func TestConfigValidateRejectsBadValues(t *testing.T) {
	cfg := Config{PGDSN: "x", ReconcileConcurrency: 0}
	require.Error(t, cfg.Validate())

	cfg = Config{PGDSN: "x", ReconcileConcurrency: 1, CalendarTZ: "Nowhere/Land"}
	require.Error(t, cfg.Validate())

	cfg = Config{PGDSN: "x", ReconcileConcurrency: 1, AlertThresholds: []int{-1}}
	require.Error(t, cfg.Validate())
}

func TestNewLoggerJSON(t *testing.T) {
	buf := new(bytes.Buffer)
	logger := newLogger(&Config{LogFormat: "json", AppEnv: "production"}, buf)
	logger.Info("hello", "filings", 3)
	require.Contains(t, buf.String(), `"msg":"hello"`)
	require.Contains(t, buf.String(), `"filings":3`)
}
