package browsing

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
)

// ScrollProfile 模拟阅读的滚动参数
type ScrollProfile struct {
	MinStep, MaxStep int // 单次滚动像素

	MinPause, MaxPause time.Duration // 每次滚动后的停顿

	ReadingChance          float64 // 额外"阅读"停顿的概率
	MinReading, MaxReading time.Duration

	// MaxMetricFailures 连续读取滚动信息失败多少次后结束滚动阶段
	MaxMetricFailures int
	// MetricBackoff 读取失败后的等待
	MetricBackoff time.Duration
}

// DefaultScrollProfile 默认滚动参数
func DefaultScrollProfile() ScrollProfile {
	return ScrollProfile{
		MinStep:           100,
		MaxStep:           250,
		MinPause:          500 * time.Millisecond,
		MaxPause:          1500 * time.Millisecond,
		ReadingChance:     0.1,
		MinReading:        time.Second,
		MaxReading:        3 * time.Second,
		MaxMetricFailures: 3,
		MetricBackoff:     2 * time.Second,
	}
}

// PacedVisitor 按固定时长浏览单个页面: 导航 → 滚动 → 空闲补足剩余时间
//
// rng不是并发安全的,每个运行持有自己的PacedVisitor。
type PacedVisitor struct {
	retrier *Retrier
	control *Control
	clock   Clock
	rng     *rand.Rand
	profile ScrollProfile
	logger  zerolog.Logger
}

// NewPacedVisitor 创建页面访问器,rng为nil时以当前时间播种
func NewPacedVisitor(retrier *Retrier, rng *rand.Rand, logger zerolog.Logger) *PacedVisitor {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &PacedVisitor{
		retrier: retrier,
		control: retrier.Control(),
		clock:   retrier.Control().Clock(),
		rng:     rng,
		profile: DefaultScrollProfile(),
		logger:  logger,
	}
}

// WithScrollProfile 替换滚动参数
func (v *PacedVisitor) WithScrollProfile(p ScrollProfile) *PacedVisitor {
	v.profile = p
	return v
}

// Visit 浏览url并保持d时长,返回实际耗时
//
// 无论导航和滚动成功与否,耗时都不少于 min(d, 收到停止信号前的时间)。
// 暂停期间不计入空闲阶段。
func (v *PacedVisitor) Visit(ctx context.Context, page Page, url string, d time.Duration) time.Duration {
	start := v.clock.Now()
	deadline := start.Add(d)

	_, ok := Execute(ctx, v.retrier, "navigate", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, page.Navigate(ctx, url)
	})
	if ok {
		v.scroll(ctx, page, deadline)
	} else if !v.control.ShouldStop(ctx) {
		v.logger.Error().Str("url", url).Msg("无法导航到页面,空闲等待剩余时间")
	}

	if remaining := deadline.Sub(v.clock.Now()); remaining > 0 {
		v.idle(ctx, remaining)
	}

	elapsed := v.clock.Now().Sub(start)
	v.logger.Debug().Str("url", url).Msgf("页面浏览完成,实际耗时: %.2f秒", elapsed.Seconds())
	return elapsed
}

// scroll 滚动到页面底部或到达截止时间
func (v *PacedVisitor) scroll(ctx context.Context, page Page, deadline time.Time) {
	failures := 0
	for v.clock.Now().Before(deadline) {
		if !v.control.Checkpoint(ctx) {
			return
		}

		metrics, ok := Execute(ctx, v.retrier, "scroll_metrics", page.ScrollMetrics)
		if !ok {
			if v.control.ShouldStop(ctx) {
				return
			}
			failures++
			if failures >= v.profile.MaxMetricFailures {
				v.logger.Warn().Msgf("连续 %d 次无法获取页面信息,结束滚动", failures)
				return
			}
			v.control.Sleep(ctx, v.profile.MetricBackoff)
			continue
		}
		failures = 0

		bottom := metrics.MaxScroll()
		if metrics.ScrollTop >= bottom {
			v.logger.Debug().Msg("已滚动到页面底部")
			return
		}

		target := min(metrics.ScrollTop+v.intBetween(v.profile.MinStep, v.profile.MaxStep), bottom)
		if _, ok := Execute(ctx, v.retrier, "scroll", func(ctx context.Context) (struct{}, error) {
			return struct{}{}, page.ScrollTo(ctx, target)
		}); !ok && v.control.ShouldStop(ctx) {
			return
		}

		if !v.control.Sleep(ctx, v.durationBetween(v.profile.MinPause, v.profile.MaxPause)) {
			return
		}
		if v.rng.Float64() < v.profile.ReadingChance {
			if !v.control.Sleep(ctx, v.durationBetween(v.profile.MinReading, v.profile.MaxReading)) {
				return
			}
		}
	}
}

// idle 分片等待,遇到暂停时在检查点阻塞,暂停时长不计入
func (v *PacedVisitor) idle(ctx context.Context, remaining time.Duration) {
	for remaining > 0 {
		if !v.control.Checkpoint(ctx) {
			return
		}
		step := min(remaining, SliceInterval)
		if !v.control.Sleep(ctx, step) {
			return
		}
		remaining -= step
	}
}

func (v *PacedVisitor) intBetween(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + v.rng.Intn(hi-lo+1)
}

func (v *PacedVisitor) durationBetween(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(v.rng.Int63n(int64(hi-lo)+1))
}
