package core

import (
	"fmt"
	"runtime"
	"time"

	"github.com/RecoveryAshes/sitewalker/internal/utils"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// ResourceGuardConfig 资源限制配置
type ResourceGuardConfig struct {
	MaxThreads       int     // 绝对最大并发运行数
	BrowserMemoryMB  int     // 单个浏览器会话的平均内存消耗(MB)
	CPULoadThreshold float64 // CPU负载阈值(%),>=200视为禁用
}

// ResourceGuard 根据系统可用内存和CPU负载限制并发运行数
//
// 远端浏览器和本进程运行在同一台机器上,每个并发运行都会占用一个浏览器实例的内存。
type ResourceGuard struct {
	cfg ResourceGuardConfig

	// 采样函数,测试中可替换
	availableMemory func() (uint64, error)
	cpuUsage        func() (float64, error)
	numCPU          func() int
}

// NewResourceGuard 创建资源限制器
func NewResourceGuard(cfg ResourceGuardConfig) *ResourceGuard {
	if cfg.BrowserMemoryMB <= 0 {
		cfg.BrowserMemoryMB = 500
	}
	if cfg.MaxThreads <= 0 {
		cfg.MaxThreads = 8
	}
	return &ResourceGuard{
		cfg:             cfg,
		availableMemory: sampleAvailableMemory,
		cpuUsage:        sampleCPUUsage,
		numCPU:          runtime.NumCPU,
	}
}

func sampleAvailableMemory() (uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.Available, nil
}

func sampleCPUUsage() (float64, error) {
	// 100毫秒采样,perCPU=false 返回所有核心的平均使用率
	percentages, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		return 0, err
	}
	if len(percentages) == 0 {
		return 0, fmt.Errorf("CPU使用率数据为空")
	}
	return percentages[0], nil
}

// Limit 计算允许的并发运行数
// 返回值不小于1且不大于requested,reason非空表示发生了限制
func (g *ResourceGuard) Limit(requested int) (int, string) {
	if requested < 1 {
		requested = 1
	}
	limit := requested
	reason := ""

	if limit > g.cfg.MaxThreads {
		limit = g.cfg.MaxThreads
		reason = fmt.Sprintf("超过最大并发数 %d", g.cfg.MaxThreads)
	}

	if n := g.numCPU(); n > 0 && limit > n {
		limit = n
		reason = fmt.Sprintf("CPU核心数 %d", n)
	}

	if avail, err := g.availableMemory(); err != nil {
		utils.Warnf("获取系统内存失败,不按内存限制并发: %v", err)
	} else {
		availMB := int(avail / (1024 * 1024))
		byMemory := max(1, availMB/g.cfg.BrowserMemoryMB)
		if limit > byMemory {
			limit = byMemory
			reason = fmt.Sprintf("可用内存不足(当前%dMB)", availMB)
		}
	}

	if g.cfg.CPULoadThreshold < 200 {
		if usage, err := g.cpuUsage(); err != nil {
			utils.Warnf("获取CPU使用率失败: %v", err)
		} else if usage > g.cfg.CPULoadThreshold && limit > 1 {
			limit = 1
			reason = fmt.Sprintf("CPU负载过高(当前%.1f%%)", usage)
		}
	}

	return limit, reason
}
