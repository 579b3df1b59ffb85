package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/RecoveryAshes/sitewalker/internal/browsing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "https://www.apple.com/jp/", cfg.Site.RootURL)
	assert.Equal(t, "http://127.0.0.1:40080", cfg.ControlAPIURL())
	assert.Equal(t, 12345, cfg.Session.DebugPort)
	assert.Equal(t, 10, cfg.Session.PortRange)
	assert.Equal(t, "/sessions", cfg.ControlAPI.Paths.List)

	run := cfg.RunConfig()
	assert.Equal(t, 60*time.Second, run.PerPageDuration)
	assert.Equal(t, 3, run.MajorCycles)
	assert.Equal(t, 8, run.MinorCyclesPerMajor)
	assert.Equal(t, 3, run.MaxRetries)
	assert.Equal(t, 5*time.Second, run.RetryDelay)

	scope, err := cfg.LinkScope()
	require.NoError(t, err)
	assert.Equal(t, "apple.com/jp/", scope)

	assert.Equal(t, browsing.DefaultScrollProfile(), cfg.ScrollProfile())
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("SITEWALKER_BROWSING_MAJOR_CYCLES", "5")
	t.Setenv("SITEWALKER_CONTROL_API_PORT", "50000")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Browsing.MajorCycles)
	assert.Equal(t, "http://127.0.0.1:50000", cfg.ControlAPIURL())
}

func TestLoadConfig_ScrollOverride(t *testing.T) {
	t.Setenv("SITEWALKER_BROWSING_SCROLL_MAX_STEP", "400")
	t.Setenv("SITEWALKER_BROWSING_SCROLL_MAX_PAUSE", "2500")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	profile := cfg.ScrollProfile()
	assert.Equal(t, 100, profile.MinStep)
	assert.Equal(t, 400, profile.MaxStep)
	assert.Equal(t, 2500*time.Millisecond, profile.MaxPause)
	assert.Equal(t, 3, profile.MaxMetricFailures)
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
site:
  root_url: "https://shop.example.co.uk/store/"
  link_scope: "example.co.uk/store"
browsing:
  per_page_duration: 0
  minor_cycles_per_major: 2
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	run := cfg.RunConfig()
	assert.Zero(t, run.PerPageDuration)
	assert.Equal(t, 2, run.MinorCyclesPerMajor)
	assert.Equal(t, 3, run.MajorCycles)

	scope, err := cfg.LinkScope()
	require.NoError(t, err)
	assert.Equal(t, "example.co.uk/store", scope)
}

func TestConfig_Validate(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	cfg.Site.RootURL = "apple.com"
	assert.Error(t, cfg.Validate())

	cfg, _ = LoadConfig("")
	cfg.Session.DebugPort = 70000
	assert.Error(t, cfg.Validate())

	cfg, _ = LoadConfig("")
	cfg.Browsing.MajorCycles = 0
	assert.Error(t, cfg.Validate())

	cfg, _ = LoadConfig("")
	cfg.Browsing.Scroll.MinStep = 300
	assert.Error(t, cfg.Validate(), "最小步长大于最大步长")

	cfg, _ = LoadConfig("")
	cfg.Browsing.Scroll.ReadingChance = 1.5
	assert.Error(t, cfg.Validate())
}
