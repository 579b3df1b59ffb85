package browsing

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func newTestVisitor(maxRetries int, delay time.Duration) (*PacedVisitor, *fakeClock) {
	clock := newFakeClock()
	r := NewRetrier(maxRetries, delay, NewControlWithClock(clock), nil, zerolog.Nop())
	return NewPacedVisitor(r, rand.New(rand.NewSource(1)), zerolog.Nop()), clock
}

func TestPacedVisitor_ElapsedMatchesDuration(t *testing.T) {
	for _, d := range []time.Duration{0, time.Second, 60 * time.Second} {
		t.Run(d.String(), func(t *testing.T) {
			visitor, _ := newTestVisitor(3, 5*time.Second)
			// 页面已在底部,滚动阶段立即结束
			page := &fakePage{metrics: ScrollMetrics{ScrollHeight: 800, ClientHeight: 800}}

			elapsed := visitor.Visit(context.Background(), page, rootURL, d)

			assert.InDelta(t, d.Seconds(), elapsed.Seconds(), 0.1)
			assert.Equal(t, []string{rootURL}, page.visits())
		})
	}
}

func TestPacedVisitor_ScrollsToBottom(t *testing.T) {
	visitor, _ := newTestVisitor(3, 5*time.Second)
	page := &fakePage{metrics: ScrollMetrics{ScrollHeight: 3000, ClientHeight: 900}}

	elapsed := visitor.Visit(context.Background(), page, rootURL, 60*time.Second)

	assert.Equal(t, 2100, page.metrics.ScrollTop)
	assert.InDelta(t, 60.0, elapsed.Seconds(), 0.1)
	assert.Zero(t, visitor.retrier.Stats().Summary().PermanentFailures)
}

func TestPacedVisitor_CustomScrollProfile(t *testing.T) {
	visitor, _ := newTestVisitor(0, 0)
	profile := DefaultScrollProfile()
	profile.MinStep, profile.MaxStep = 300, 300
	profile.MinPause, profile.MaxPause = time.Second, time.Second
	profile.ReadingChance = 0
	visitor.WithScrollProfile(profile)
	page := &fakePage{metrics: ScrollMetrics{ScrollHeight: 3000, ClientHeight: 900}}

	elapsed := visitor.Visit(context.Background(), page, rootURL, 60*time.Second)

	// 2100像素按固定300像素滚动7次,第8次读取时已到底部
	assert.Equal(t, 2100, page.metrics.ScrollTop)
	assert.Equal(t, 8, page.metricsCalls)
	assert.InDelta(t, 60.0, elapsed.Seconds(), 0.1)
}

func TestPacedVisitor_NavigationFailureStillWaits(t *testing.T) {
	visitor, _ := newTestVisitor(2, 5*time.Second)
	page := &fakePage{navErr: errFake}

	elapsed := visitor.Visit(context.Background(), page, rootURL, 30*time.Second)

	assert.InDelta(t, 30.0, elapsed.Seconds(), 0.1)
	assert.Len(t, page.visits(), 3)
	assert.Zero(t, page.metricsCalls, "导航失败时不应滚动")
	assert.Equal(t, int64(1), visitor.retrier.Stats().Summary().PermanentFailures)
}

func TestPacedVisitor_MetricFailuresEndScrolling(t *testing.T) {
	visitor, _ := newTestVisitor(0, 0)
	page := &fakePage{metricsErr: errFake}

	elapsed := visitor.Visit(context.Background(), page, rootURL, 60*time.Second)

	assert.Equal(t, 3, page.metricsCalls)
	assert.InDelta(t, 60.0, elapsed.Seconds(), 0.1)
}

func TestPacedVisitor_StopDuringIdle(t *testing.T) {
	control := NewControl()
	r := NewRetrier(3, 5*time.Second, control, nil, zerolog.Nop())
	visitor := NewPacedVisitor(r, nil, zerolog.Nop())
	page := &fakePage{metrics: ScrollMetrics{ScrollHeight: 800, ClientHeight: 800}}

	timer := time.AfterFunc(200*time.Millisecond, control.Stop)
	defer timer.Stop()

	start := time.Now()
	elapsed := visitor.Visit(context.Background(), page, rootURL, 60*time.Second)

	assert.Less(t, time.Since(start), 200*time.Millisecond+SliceInterval)
	assert.Less(t, elapsed, time.Second)
}
