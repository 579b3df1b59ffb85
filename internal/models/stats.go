package models

import "sync/atomic"

// RetryStats 单次运行的重试统计
// 计数只增不减,新运行开始时整体替换
type RetryStats struct {
	attempted           atomic.Int64
	succeededAfterRetry atomic.Int64
	permanentlyFailed   atomic.Int64
}

// NewRetryStats 创建空统计
func NewRetryStats() *RetryStats {
	return &RetryStats{}
}

// AddAttempt 记录一次重试(首次尝试不计入)
func (s *RetryStats) AddAttempt() { s.attempted.Add(1) }

// AddRecovered 记录一次重试后成功
func (s *RetryStats) AddRecovered() { s.succeededAfterRetry.Add(1) }

// AddPermanentFailure 记录一次重试耗尽
func (s *RetryStats) AddPermanentFailure() { s.permanentlyFailed.Add(1) }

// Summary 返回当前统计快照
func (s *RetryStats) Summary() RetrySummary {
	if s == nil {
		return RetrySummary{}
	}
	return RetrySummary{
		TotalRetries:      s.attempted.Load(),
		SucceededRetries:  s.succeededAfterRetry.Load(),
		PermanentFailures: s.permanentlyFailed.Load(),
	}
}

// RetrySummary 运行结束时输出的统计摘要
type RetrySummary struct {
	TotalRetries      int64 `json:"total_retries"`
	SucceededRetries  int64 `json:"succeeded_retries"`
	PermanentFailures int64 `json:"permanent_failures"`
}

// SuccessRate 重试成功率(百分比),无重试时为100
func (s RetrySummary) SuccessRate() float64 {
	if s.TotalRetries == 0 {
		return 100
	}
	return float64(s.SucceededRetries) / float64(s.TotalRetries) * 100
}

// Add 累加另一份摘要(用于多线程汇总)
func (s RetrySummary) Add(o RetrySummary) RetrySummary {
	return RetrySummary{
		TotalRetries:      s.TotalRetries + o.TotalRetries,
		SucceededRetries:  s.SucceededRetries + o.SucceededRetries,
		PermanentFailures: s.PermanentFailures + o.PermanentFailures,
	}
}
