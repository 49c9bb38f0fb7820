package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, int32(10), cfg.Store.MaxConns)
	assert.Equal(t, int32(2), cfg.Store.MinConns)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "output/alma-program-linkage-report.json", cfg.Linkage.ReportPath)
	assert.Equal(t, 200, cfg.Linkage.OrgReviewSample)
	assert.Equal(t, 300, cfg.Linkage.LinkReviewSample)
	assert.Equal(t, DefaultOrgStopwords, cfg.Linkage.OrgStopwords)
	assert.InDelta(t, 0.94, cfg.Linkage.Thresholds.OrgAccept, 0.001)
	assert.InDelta(t, 0.05, cfg.Linkage.Thresholds.OrgMargin, 0.001)
	assert.InDelta(t, 0.92, cfg.Linkage.Thresholds.OrgCoreOverlap, 0.001)
	assert.InDelta(t, 0.85, cfg.Linkage.Thresholds.NameOverlap, 0.001)
	assert.InDelta(t, 0.90, cfg.Linkage.Thresholds.LinkMinConfidence, 0.001)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
  database_url: alma.db
log:
  level: debug
  format: console
server:
  port: 9090
linkage:
  writes_per_second: 25
  thresholds:
    name_overlap: 0.8
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "alma.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.InDelta(t, 25.0, cfg.Linkage.WritesPerSecond, 0.001)
	assert.InDelta(t, 0.8, cfg.Linkage.Thresholds.NameOverlap, 0.001)
	// Defaults still apply for unset values
	assert.InDelta(t, 0.94, cfg.Linkage.Thresholds.OrgAccept, 0.001)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("ALMA_STORE_DRIVER", "postgres")
	t.Setenv("ALMA_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("ALMA_SERVER_PORT", "3000")
	t.Setenv("ALMA_LINKAGE_REPORT_PATH", "/tmp/report.json")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "/tmp/report.json", cfg.Linkage.ReportPath)
}

func TestLoadMalformedYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "postgres"
	cfg.Store.DatabaseURL = "postgres://localhost/alma"
	cfg.Server.Port = 8080
	cfg.Linkage.ReportPath = "report.json"
	cfg.Linkage.Thresholds = ThresholdsConfig{
		OrgAccept:         0.94,
		OrgMargin:         0.05,
		OrgCoreOverlap:    0.92,
		NameOverlap:       0.85,
		LinkMinConfidence: 0.90,
	}
	return cfg
}

func TestValidateLink_Valid(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("link"))
}

func TestValidateLink_MissingFields(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = ""
	cfg.Linkage.ReportPath = ""

	err := cfg.Validate("link")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
	assert.Contains(t, err.Error(), "linkage.report_path is required")
}

func TestValidateLink_ThresholdOutOfRange(t *testing.T) {
	cfg := validDefaults()
	cfg.Linkage.Thresholds.NameOverlap = 1.5

	err := cfg.Validate("link")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "linkage.thresholds.name_overlap")

	cfg.Linkage.Thresholds.NameOverlap = 0.85
	cfg.Linkage.Thresholds.OrgMargin = -0.1
	err = cfg.Validate("link")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "linkage.thresholds.org_margin")
}

func TestValidateLink_LinkConfidenceBelowFloor(t *testing.T) {
	cfg := validDefaults()
	cfg.Linkage.Thresholds.LinkMinConfidence = 0.85

	err := cfg.Validate("link")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "link_min_confidence must be >= 0.90")

	cfg.Linkage.Thresholds.LinkMinConfidence = 0.95
	assert.NoError(t, cfg.Validate("link"))
}

func TestValidateLink_NegativeWriteRate(t *testing.T) {
	cfg := validDefaults()
	cfg.Linkage.WritesPerSecond = -1

	err := cfg.Validate("link")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "writes_per_second")
}

func TestValidateServe_ValidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 9090

	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateUnknownDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"

	err := cfg.Validate("migrate")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "must be postgres or sqlite")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
