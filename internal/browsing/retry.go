package browsing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RecoveryAshes/sitewalker/internal/models"
	"github.com/rs/zerolog"
)

// ErrOperationPanic 被包装操作发生panic(例如go-rod的Must*方法)
var ErrOperationPanic = errors.New("操作发生panic")

// Retrier 有界重试执行器
// 同一次运行内的所有网络/DOM操作共享一个Retrier及其统计
type Retrier struct {
	maxRetries int
	delay      time.Duration
	control    *Control
	stats      *models.RetryStats
	logger     zerolog.Logger
}

// NewRetrier 创建重试执行器
// control为nil时使用不会停止的Control,stats为nil时新建统计
func NewRetrier(maxRetries int, delay time.Duration, control *Control, stats *models.RetryStats, logger zerolog.Logger) *Retrier {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if control == nil {
		control = NewControl()
	}
	if stats == nil {
		stats = models.NewRetryStats()
	}
	return &Retrier{
		maxRetries: maxRetries,
		delay:      delay,
		control:    control,
		stats:      stats,
		logger:     logger,
	}
}

// Stats 重试统计
func (r *Retrier) Stats() *models.RetryStats { return r.stats }

// Control 运行信号
func (r *Retrier) Control() *Control { return r.control }

// Execute 执行op,失败后按Retrier的上限和间隔重试
//
// 第0次尝试立即执行,第1..maxRetries次尝试前各等待一次间隔。
// 返回ok=false表示操作不可用(重试耗尽或收到停止信号),调用方应降级继续。
func Execute[T any](ctx context.Context, r *Retrier, name string, op func(context.Context) (T, error)) (T, bool) {
	var zero T
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			r.logger.Info().Str("op", name).Msgf("⏳ 等待 %s 后重试", r.delay)
			if !r.control.Sleep(ctx, r.delay) {
				r.logger.Info().Str("op", name).Msg("在重试等待中收到停止信号")
				return zero, false
			}
			r.stats.AddAttempt()
		} else if r.control.ShouldStop(ctx) {
			r.logger.Info().Str("op", name).Msg("在重试操作中收到停止信号")
			return zero, false
		}

		result, err := invoke(ctx, op)
		if err == nil {
			if attempt > 0 {
				r.stats.AddRecovered()
				r.logger.Info().Str("op", name).Msgf("✅ 重试成功 (第 %d 次尝试)", attempt+1)
			}
			return result, true
		}

		if attempt < r.maxRetries {
			r.logger.Warn().Err(err).Str("op", name).Msgf("⚠️ 第 %d 次尝试失败", attempt+1)
			continue
		}
		r.stats.AddPermanentFailure()
		r.logger.Error().Err(err).Str("op", name).Msgf("❌ 所有重试都失败 (共 %d 次尝试)", attempt+1)
	}
	return zero, false
}

// invoke 调用op并把panic转换为错误
func invoke[T any](ctx context.Context, op func(context.Context) (T, error)) (result T, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrOperationPanic, p)
		}
	}()
	return op(ctx)
}
