package main

import (
	"fmt"
	"strings"

	"github.com/RecoveryAshes/sitewalker/internal/core"
)

// ValidateFlags 验证覆盖后的配置和命令行标志
func ValidateFlags(cfg *core.Config, threads int, profileID string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	// 验证并发数
	if threads < 1 || threads > 100 {
		return fmt.Errorf("并发数必须在1-100之间,当前值: %d", threads)
	}
	if threads > cfg.Runs.MaxThreads {
		return fmt.Errorf("并发数 %d 超过配置的最大值 runs.max_threads=%d", threads, cfg.Runs.MaxThreads)
	}

	// 指定配置文件时只能有一个运行
	if profileID != "" {
		if strings.ContainsAny(profileID, " \t/") {
			return fmt.Errorf("无效的配置文件ID: %q", profileID)
		}
		if threads > 1 {
			return fmt.Errorf("--profile 不能与 --threads > 1 同时使用")
		}
	}

	// 端口范围不能越界
	if last := cfg.Session.DebugPort + cfg.Session.PortRange + threads - 1; last > 65535 {
		return fmt.Errorf("调试端口范围越界: %d-%d", cfg.Session.DebugPort, last)
	}
	return nil
}
