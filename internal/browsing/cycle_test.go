package browsing

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/RecoveryAshes/sitewalker/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestController(cfg CycleConfig, retries int) (*CycleController, *Retrier) {
	clock := newFakeClock()
	r := NewRetrier(retries, time.Second, NewControlWithClock(clock), nil, zerolog.Nop())
	catalog := NewLinkCatalog("apple.com/jp/", nil, nil, r, zerolog.Nop())
	visitor := NewPacedVisitor(r, rand.New(rand.NewSource(1)), zerolog.Nop())
	return NewCycleController(cfg, catalog, visitor, rand.New(rand.NewSource(2)), zerolog.Nop()), r
}

func bottomPage(htmls ...string) *fakePage {
	return &fakePage{
		metrics: ScrollMetrics{ScrollHeight: 800, ClientHeight: 800},
		htmls:   htmls,
	}
}

func TestCycleController_SkipsEmptyMajor(t *testing.T) {
	controller, r := newTestController(CycleConfig{
		RootURL:             rootURL,
		MajorCycles:         2,
		MinorCyclesPerMajor: 3,
		PerPageDuration:     10 * time.Second,
	}, 3)
	page := bottomPage("<html><body>メンテナンス中</body></html>", homeHTML)

	result := controller.Run(context.Background(), page)

	assert.True(t, result.Completed)
	assert.False(t, result.Stopped)
	assert.Equal(t, 1, result.SkippedMajors)
	assert.Equal(t, 3, result.PagesVisited)
	assert.Equal(t, 2, page.snapCalls, "第二个大循环仍应提取链接")

	visits := page.visits()
	require.Len(t, visits, 5)
	assert.Equal(t, []string{rootURL, rootURL}, visits[:2])
	for _, u := range visits[2:] {
		assert.Contains(t, u, "apple.com/jp/")
		assert.NotContains(t, u, "/search")
	}

	state := controller.State()
	assert.Equal(t, 1, state.MajorIndex)
	assert.Equal(t, 2, state.MinorIndex)
	assert.Equal(t, 6, state.PagesTotal)
	assert.Zero(t, r.Stats().Summary().PermanentFailures)
}

func TestCycleController_VisitedResetPerMajor(t *testing.T) {
	controller, _ := newTestController(CycleConfig{
		RootURL:             rootURL,
		MajorCycles:         3,
		MinorCyclesPerMajor: 2,
	}, 0)

	var progress []models.CycleProgress
	controller.OnVisit(func(p models.CycleProgress) { progress = append(progress, p) })

	result := controller.Run(context.Background(), bottomPage(homeHTML))

	assert.True(t, result.Completed)
	assert.Equal(t, 6, result.PagesVisited)
	require.Len(t, progress, 6)
	for i, p := range progress {
		assert.Equal(t, i/2, p.MajorIndex)
		assert.Equal(t, i+1, p.PagesVisited)
		assert.LessOrEqual(t, len(p.VisitedURLs), i%2+1)
	}
}

func TestCycleController_DefaultMinorCycles(t *testing.T) {
	controller, _ := newTestController(CycleConfig{RootURL: rootURL, MajorCycles: 1}, 0)

	result := controller.Run(context.Background(), bottomPage(homeHTML))

	assert.Equal(t, models.DefaultMinorCyclesPerMajor, result.PagesVisited)
}

func TestCycleController_StopUnwinds(t *testing.T) {
	controller, r := newTestController(CycleConfig{
		RootURL:             rootURL,
		MajorCycles:         5,
		MinorCyclesPerMajor: 8,
		PerPageDuration:     time.Minute,
	}, 3)
	controller.OnVisit(func(models.CycleProgress) { r.Control().Stop() })

	result := controller.Run(context.Background(), bottomPage(homeHTML))

	assert.False(t, result.Completed)
	assert.True(t, result.Stopped)
	assert.Equal(t, 1, result.PagesVisited)
}

func TestCycleController_RootNavigationFailure(t *testing.T) {
	controller, _ := newTestController(CycleConfig{
		RootURL:             rootURL,
		MajorCycles:         2,
		MinorCyclesPerMajor: 2,
	}, 1)
	page := bottomPage(homeHTML)
	page.navErr = errFake

	result := controller.Run(context.Background(), page)

	assert.True(t, result.Completed)
	assert.Equal(t, 2, result.SkippedMajors)
	assert.Zero(t, result.PagesVisited)
	assert.Zero(t, page.snapCalls)
}
