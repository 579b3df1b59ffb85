package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// DefaultMinorCyclesPerMajor 每个大循环默认包含的页面访问次数
const DefaultMinorCyclesPerMajor = 8

// RunStatus 运行状态
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"   // 待执行
	RunStatusStarting  RunStatus = "starting"  // 正在分配配置文件和会话
	RunStatusRunning   RunStatus = "running"   // 执行中
	RunStatusPaused    RunStatus = "paused"    // 已暂停
	RunStatusCompleted RunStatus = "completed" // 全部循环完成
	RunStatusStopped   RunStatus = "stopped"   // 收到停止信号提前结束
	RunStatusFailed    RunStatus = "failed"    // 失败
)

// Terminal 是否为终止状态
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusStopped || s == RunStatusFailed
}

// RunConfig 单次浏览运行的参数
type RunConfig struct {
	PerPageDuration     time.Duration `json:"per_page_duration"`      // 每页停留时间
	MajorCycles         int           `json:"major_cycles"`           // 大循环次数
	MinorCyclesPerMajor int           `json:"minor_cycles_per_major"` // 每个大循环的页面数 (默认:8)
	MaxRetries          int           `json:"max_retries"`            // 单个操作的最大重试次数
	RetryDelay          time.Duration `json:"retry_delay"`            // 重试间隔
	ProfileID           string        `json:"profile_id,omitempty"`   // 指定配置文件,为空则从池中分配
	UseRunningSession   bool          `json:"use_running_session"`    // 附着到已运行的会话而不是启动新会话
}

// DefaultRunConfig 默认运行参数
func DefaultRunConfig() RunConfig {
	return RunConfig{
		PerPageDuration:     60 * time.Second,
		MajorCycles:         3,
		MinorCyclesPerMajor: DefaultMinorCyclesPerMajor,
		MaxRetries:          3,
		RetryDelay:          5 * time.Second,
	}
}

// Validate 验证配置
func (c *RunConfig) Validate() error {
	if c.PerPageDuration < 0 || c.PerPageDuration > time.Hour {
		return fmt.Errorf("每页停留时间必须在0-3600秒之间")
	}
	if c.MajorCycles < 1 || c.MajorCycles > 1000 {
		return fmt.Errorf("大循环次数必须在1-1000之间")
	}
	if c.MinorCyclesPerMajor < 1 || c.MinorCyclesPerMajor > 100 {
		return fmt.Errorf("每个大循环的页面数必须在1-100之间")
	}
	if c.MaxRetries < 0 || c.MaxRetries > 20 {
		return fmt.Errorf("最大重试次数必须在0-20之间")
	}
	if c.RetryDelay < 0 || c.RetryDelay > 10*time.Minute {
		return fmt.Errorf("重试间隔必须在0-600秒之间")
	}
	return nil
}

// TotalPages 本次运行计划访问的页面总数
func (c RunConfig) TotalPages() int {
	return c.MajorCycles * c.MinorCyclesPerMajor
}

// RunReport 运行报告
type RunReport struct {
	ID          string        `json:"id"`
	ProfileID   string        `json:"profile_id,omitempty"`
	SessionName string        `json:"session_name,omitempty"`
	Status      RunStatus     `json:"status"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at"`
	Duration    float64       `json:"duration"` // 秒
	Config      RunConfig     `json:"config"`
	Progress    CycleProgress `json:"progress"`
	Stats       RetrySummary  `json:"stats"`
	Error       string        `json:"error,omitempty"`
}

// ToJSON 序列化为JSON
func (r *RunReport) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
