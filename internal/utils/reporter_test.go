package utils

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/RecoveryAshes/sitewalker/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReporter_WriteRunReport(t *testing.T) {
	reporter := NewReporter(t.TempDir())
	report := &models.RunReport{
		ID:        "0b9f3c1e-1111-2222-3333-444455556666",
		ProfileID: "p1",
		Status:    models.RunStatusCompleted,
		StartedAt: time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC),
		Config:    models.DefaultRunConfig(),
		Stats:     models.RetrySummary{TotalRetries: 4, SucceededRetries: 3, PermanentFailures: 1},
	}

	path, err := reporter.WriteRunReport(report)
	require.NoError(t, err)
	assert.Equal(t, "run_20240501_103000_0b9f3c1e.json", filepath.Base(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "completed", decoded["status"])
	stats := decoded["stats"].(map[string]any)
	assert.EqualValues(t, 1, stats["permanent_failures"])
}

func TestReporter_WriteFleetReport(t *testing.T) {
	reporter := NewReporter(t.TempDir())
	reports := []*models.RunReport{
		{ID: "a", Status: models.RunStatusCompleted, Stats: models.RetrySummary{TotalRetries: 2, SucceededRetries: 2}},
		{ID: "b", Status: models.RunStatusFailed, Error: "没有空闲的配置文件", Stats: models.RetrySummary{PermanentFailures: 1}},
	}

	path, err := reporter.WriteFleetReport("fleet.json", reports)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `"succeeded": 1`))
	assert.True(t, strings.Contains(string(data), `"failed": 1`))
	assert.True(t, strings.Contains(string(data), `"total_retries": 2`))
}

func TestNewProgressBar(t *testing.T) {
	bar := NewProgressBar(3, "浏览页面", io.Discard)
	for i := 0; i < 3; i++ {
		require.NoError(t, bar.Add(1))
	}
	assert.True(t, bar.IsFinished())
}
