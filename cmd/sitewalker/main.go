package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/RecoveryAshes/sitewalker/internal/core"
	"github.com/RecoveryAshes/sitewalker/internal/models"
	"github.com/RecoveryAshes/sitewalker/internal/utils"
	"github.com/spf13/cobra"
)

// 命令行参数
var (
	// 全局参数
	configFile string
	verbose    bool
	logLevel   string

	// 控制API头部参数
	headers        []string
	apiKey         string
	validateConfig bool

	// 浏览参数
	rootURL      string
	duration     int
	majorCycles  int
	minorCycles  int
	maxRetries   int
	retryDelay   int
	threads      int
	profileID    string
	profilesFile string
	useRunning   bool
	headless     bool
	keepOpen     bool
	debugPort    int
	outputDir    string
	showProgress bool

	continueOnError bool
)

// appConfig 在PersistentPreRunE中加载,命令行参数已覆盖
var appConfig *core.Config

var rootCmd = &cobra.Command{
	Use:   "sitewalker",
	Short: "指纹浏览器无人值守浏览工具",
	Long: `sitewalker - 通过指纹浏览器控制API自动浏览目标站点

工作方式:
  • 通过本地控制API启动(或附着到)指纹浏览器会话
  • 经调试端口连接浏览器,按大循环/小循环随机访问站内链接
  • 每个页面模拟阅读: 平滑滚动、随机停顿、空闲等待
  • 网络和页面操作失败自动重试,运行结束输出重试统计
  • 多个配置文件可并发运行 (--threads)

示例:
  # 使用默认配置浏览 (3个大循环, 每个8页, 每页60秒)
  sitewalker

  # 指定站点和节奏
  sitewalker -u https://www.apple.com/jp/ -d 30 --major 2 --minor 5

  # 附着到已运行的会话, 2个并发
  sitewalker --use-running -t 2

  # 控制API需要认证
  sitewalker --api-key xxxx -H "X-Client: sitewalker"

  # 验证控制API头部配置
  sitewalker --validate-config

版本: ` + core.Version + `
构建时间: ` + core.BuildTime,
	Version:       core.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config, err := core.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}
		applyFlagOverrides(cmd, config)
		appConfig = config

		logConfig := utils.LogConfig{
			Level:      config.Logging.Level,
			LogDir:     config.Logging.LogDir,
			MaxSize:    config.Logging.Rotation.MaxSize,
			MaxBackups: config.Logging.Rotation.MaxBackups,
			MaxAge:     config.Logging.Rotation.MaxAge,
			Compress:   config.Logging.Rotation.Compress,
			Quiet:      showProgress,
		}
		if logLevel != "" {
			logConfig.Level = logLevel
		}
		if verbose && logLevel == "" {
			logConfig.Level = "debug"
		}

		if err := utils.InitLogger(logConfig); err != nil {
			return fmt.Errorf("初始化日志系统失败: %w", err)
		}
		if verbose {
			utils.Info("详细模式已启用")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if validateConfig {
			return runValidateConfig()
		}

		if err := ValidateFlags(appConfig, threads, profileID); err != nil {
			return err
		}
		return runBrowsing()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("sitewalker %s\n", core.Version)
		fmt.Printf("构建时间: %s\n", core.BuildTime)
		fmt.Printf("Git提交: %s\n", core.GitCommit)
	},
}

// applyFlagOverrides 只有显式指定的命令行参数才覆盖配置
func applyFlagOverrides(cmd *cobra.Command, cfg *core.Config) {
	flags := cmd.Flags()
	if flags.Changed("url") {
		cfg.Site.RootURL = rootURL
		// 站点变化时重新推导链接范围
		cfg.Site.LinkScope = ""
	}
	if flags.Changed("duration") {
		cfg.Browsing.PerPageDuration = duration
	}
	if flags.Changed("major") {
		cfg.Browsing.MajorCycles = majorCycles
	}
	if flags.Changed("minor") {
		cfg.Browsing.MinorCyclesPerMajor = minorCycles
	}
	if flags.Changed("retries") {
		cfg.Browsing.MaxRetries = maxRetries
	}
	if flags.Changed("retry-delay") {
		cfg.Browsing.RetryDelay = retryDelay
	}
	if flags.Changed("threads") {
		cfg.Runs.Threads = threads
	}
	if flags.Changed("profiles-file") {
		cfg.Session.ProfilesFile = profilesFile
	}
	if flags.Changed("use-running") {
		cfg.Session.UseRunningSessions = useRunning
	}
	if flags.Changed("headless") {
		cfg.Session.Headless = headless
	}
	if flags.Changed("keep-open") {
		cfg.Session.StopOnExit = !keepOpen
	}
	if flags.Changed("debug-port") {
		cfg.Session.DebugPort = debugPort
	}
	if flags.Changed("output") {
		cfg.Output.BaseDir = outputDir
	}
	if flags.Changed("api-key") {
		cfg.ControlAPI.APIKey = apiKey
	}
	threads = cfg.Runs.Threads
}

func newHeaderManager() (*core.HeaderManager, error) {
	hm, err := core.NewHeaderManager(appConfig.ControlAPI.HeadersFile, appConfig.ControlAPI.APIKey, headers)
	if err != nil {
		return nil, fmt.Errorf("创建头部管理器失败: %w", err)
	}
	return hm, nil
}

// newEnvironment 创建运行环境,配置文件池由Fleet.Prepare填充
func newEnvironment() (*core.Environment, error) {
	hm, err := newHeaderManager()
	if err != nil {
		return nil, err
	}
	return core.NewEnvironment(appConfig, core.NewProfilePool(nil), hm)
}

func runBrowsing() error {
	env, err := newEnvironment()
	if err != nil {
		return fmt.Errorf("创建运行环境失败: %w", err)
	}

	runConfig := appConfig.RunConfig()
	runConfig.ProfileID = profileID

	fleet := core.NewFleet(env, core.FleetConfig{
		Threads:         appConfig.Runs.Threads,
		Run:             runConfig,
		ProfilesFile:    appConfig.Session.ProfilesFile,
		ContinueOnError: continueOnError,
		Guard: core.NewResourceGuard(core.ResourceGuardConfig{
			MaxThreads:       appConfig.Runs.MaxThreads,
			BrowserMemoryMB:  appConfig.Runs.BrowserMemoryMB,
			CPULoadThreshold: appConfig.Runs.CPULoadThreshold,
		}),
	}, nil)

	if showProgress {
		bar := utils.NewProgressBar(runConfig.TotalPages(), "浏览页面", os.Stderr)
		fleet.OnVisit(func(string, models.CycleProgress) { _ = bar.Add(1) })
		defer bar.Finish()
	}

	// Ctrl+C 优雅停止,第二次强制退出
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	defer func() {
		signal.Stop(sigChan)
		close(done)
	}()
	go func() {
		select {
		case sig := <-sigChan:
			utils.Warnf("收到中断信号: %v, 正在停止所有运行...", sig)
			fleet.Stop()
		case <-done:
			return
		}
		select {
		case <-sigChan:
			utils.Warn("再次收到中断信号,强制退出")
			os.Exit(130)
		case <-done:
		}
	}()

	summary, runErr := fleet.Run(context.Background())
	if summary == nil {
		return runErr
	}

	reporter := utils.NewReporter(appConfig.Output.BaseDir)
	for _, report := range summary.Reports {
		if path, err := reporter.WriteRunReport(report); err != nil {
			utils.Warnf("保存运行报告失败: %v", err)
		} else {
			utils.Infof("📄 运行报告: %s", path)
		}
	}
	if len(summary.Reports) > 1 {
		name := fmt.Sprintf("fleet_%s.json", summary.Reports[0].StartedAt.Format("20060102_150405"))
		if _, err := reporter.WriteFleetReport(name, summary.Reports); err != nil {
			utils.Warnf("保存汇总报告失败: %v", err)
		}
	}

	if runErr != nil {
		return runErr
	}
	if summary.Failed > 0 && summary.Completed+summary.Stopped == 0 {
		return fmt.Errorf("全部 %d 个运行失败", summary.Failed)
	}
	utils.Info("✨ 浏览任务完成!")
	return nil
}

func runValidateConfig() error {
	utils.Info("🔍 验证控制API头部配置...")
	headerManager, err := newHeaderManager()
	if err != nil {
		return err
	}
	merged, err := headerManager.GetHeaders()
	if err != nil {
		return fmt.Errorf("配置验证失败: %w", err)
	}
	if err := appConfig.Validate(); err != nil {
		return fmt.Errorf("配置验证失败: %w", err)
	}

	utils.Info("✅ 配置验证通过!")
	utils.Infof("控制API: %s", appConfig.ControlAPIURL())
	utils.Infof("当前有效的请求头部 (%d个):", len(merged))
	for name := range merged {
		utils.Infof("  %s: %s", name, utils.RedactHeaderValue(name, merged.Get(name)))
	}
	return nil
}

func init() {
	// 全局参数
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "配置文件路径")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "详细输出模式")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 (trace|debug|info|warn|error)")

	// 控制API头部参数
	rootCmd.PersistentFlags().StringSliceVarP(&headers, "header", "H", []string{}, "控制API请求头部,格式: 'Name: Value',可多次指定")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "控制API密钥")
	rootCmd.Flags().BoolVar(&validateConfig, "validate-config", false, "验证配置文件正确性")

	// 浏览参数
	rootCmd.Flags().StringVarP(&rootURL, "url", "u", "", "目标站点根URL")
	rootCmd.Flags().IntVarP(&duration, "duration", "d", 60, "每页停留时间(秒)")
	rootCmd.Flags().IntVar(&majorCycles, "major", 3, "大循环次数")
	rootCmd.Flags().IntVar(&minorCycles, "minor", 8, "每个大循环访问的页面数")
	rootCmd.Flags().IntVar(&maxRetries, "retries", 3, "单个操作的最大重试次数")
	rootCmd.Flags().IntVar(&retryDelay, "retry-delay", 5, "重试间隔(秒)")
	rootCmd.Flags().IntVarP(&threads, "threads", "t", 1, "并发运行数")
	rootCmd.Flags().StringVarP(&profileID, "profile", "p", "", "指定配置文件ID")
	rootCmd.Flags().StringVarP(&profilesFile, "profiles-file", "f", "", "配置文件ID列表文件")
	rootCmd.Flags().BoolVar(&useRunning, "use-running", false, "附着到已运行的会话")
	rootCmd.Flags().BoolVar(&headless, "headless", false, "无头模式启动会话")
	rootCmd.Flags().BoolVar(&keepOpen, "keep-open", false, "结束后不停止本次启动的会话")
	rootCmd.Flags().IntVar(&debugPort, "debug-port", 12345, "首选调试端口")
	rootCmd.Flags().StringVarP(&outputDir, "output", "o", "output", "输出目录")
	rootCmd.Flags().BoolVar(&showProgress, "progress", false, "显示进度条(控制台不输出日志)")
	rootCmd.Flags().BoolVar(&continueOnError, "continue-on-error", true, "某个运行失败时继续其他运行")

	// 添加子命令
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(profilesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}
