package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/RecoveryAshes/sitewalker/internal/core"
	"github.com/RecoveryAshes/sitewalker/internal/sphere"
	"github.com/rs/zerolog"
)

func main() {
	fmt.Println("==============================================")
	fmt.Println("  sitewalker 环境验证")
	fmt.Println("==============================================")
	fmt.Println()

	allOK := true

	fmt.Printf("✅ Go版本: %s\n", runtime.Version())
	fmt.Printf("✅ 操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)

	// 检查项目依赖
	fmt.Println()
	fmt.Println("检查Go模块依赖...")
	if _, err := os.Stat("go.mod"); err == nil {
		fmt.Println("✅ go.mod文件存在")
		fmt.Println("正在下载依赖...")
		if err := exec.Command("go", "mod", "download").Run(); err != nil {
			fmt.Printf("❌ go mod download失败: %v\n", err)
			allOK = false
		} else {
			fmt.Println("✅ 依赖下载完成")
		}
	} else {
		fmt.Println("❌ go.mod文件不存在")
		allOK = false
	}

	// 检查配置
	fmt.Println()
	fmt.Println("检查配置...")
	cfg, err := core.LoadConfig("")
	if err != nil {
		fmt.Printf("❌ 加载配置失败: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("❌ 配置无效: %v\n", err)
		allOK = false
	} else {
		fmt.Printf("✅ 目标站点: %s\n", cfg.Site.RootURL)
	}

	// 检查控制API
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	client := sphere.NewClient(sphere.ClientConfig{
		BaseURL: cfg.ControlAPIURL(),
		Timeout: 5 * time.Second,
		Paths:   cfg.ControlAPI.Paths,
	}, zerolog.Nop())
	sessions, err := client.ListSessions(ctx)
	if err != nil {
		fmt.Printf("❌ 控制API不可达 (%s): %v\n", cfg.ControlAPIURL(), err)
		fmt.Println("   请确认指纹浏览器已启动并开启本地API")
		allOK = false
	} else {
		running := 0
		for _, s := range sessions {
			if s.IsRunning() {
				running++
			}
		}
		fmt.Printf("✅ 控制API可达: %d 个配置文件, %d 个运行中\n", len(sessions), running)
	}

	// 检查调试端口(没有运行中的会话时只是警告)
	prober := sphere.NewProber(cfg.Session.DebugHost, cfg.Session.PortRange, 2*time.Second, zerolog.Nop())
	if port, err := prober.Find(ctx, cfg.Session.DebugPort); err != nil {
		fmt.Printf("⚠️  调试端口 %d-%d 无响应 (会话未启动时属正常)\n",
			cfg.Session.DebugPort, cfg.Session.DebugPort+cfg.Session.PortRange)
	} else {
		fmt.Printf("✅ 调试端点: %s:%d\n", prober.Host(), port)
	}

	// 检查项目结构
	fmt.Println()
	fmt.Println("检查项目结构...")
	requiredDirs := []string{
		"cmd/sitewalker",
		"internal/browsing",
		"internal/core",
		"internal/sphere",
		"internal/utils",
		"internal/models",
	}
	for _, dir := range requiredDirs {
		if _, err := os.Stat(dir); err == nil {
			fmt.Printf("✅ %s/\n", dir)
		} else {
			fmt.Printf("❌ %s/ 不存在\n", dir)
			allOK = false
		}
	}

	fmt.Println()
	fmt.Println("==============================================")
	if allOK {
		fmt.Println("✅ 环境验证通过!")
		fmt.Println()
		fmt.Println("下一步:")
		fmt.Println("  1. 运行 'go build ./cmd/sitewalker' 构建项目")
		fmt.Println("  2. 运行 './sitewalker sessions list' 查看会话")
		fmt.Println("  3. 运行 './sitewalker --help' 查看帮助")
		os.Exit(0)
	}
	fmt.Println("❌ 环境验证失败,请解决上述问题。")
	os.Exit(1)
}
