package core

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/RecoveryAshes/sitewalker/internal/browsing"
	"github.com/RecoveryAshes/sitewalker/internal/models"
	"github.com/RecoveryAshes/sitewalker/internal/sphere"
	"github.com/RecoveryAshes/sitewalker/internal/utils"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀,例如 SITEWALKER_BROWSING_MAJOR_CYCLES
const EnvPrefix = "SITEWALKER"

// Config 应用程序配置
type Config struct {
	Site       SiteConfig       `mapstructure:"site"`
	Browsing   BrowsingConfig   `mapstructure:"browsing"`
	ControlAPI ControlAPIConfig `mapstructure:"control_api"`
	Session    SessionConfig    `mapstructure:"session"`
	Runs       RunsConfig       `mapstructure:"runs"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Output     OutputConfig     `mapstructure:"output"`
}

// SiteConfig 目标站点配置
type SiteConfig struct {
	RootURL string `mapstructure:"root_url"`
	// LinkScope 链接必须包含的子串,为空时由根URL推导
	LinkScope       string   `mapstructure:"link_scope"`
	LinkSelectors   []string `mapstructure:"link_selectors"`
	BlockedPatterns []string `mapstructure:"blocked_patterns"`
}

// BrowsingConfig 浏览节奏配置(时间单位: 秒)
type BrowsingConfig struct {
	PerPageDuration     int `mapstructure:"per_page_duration"`
	MajorCycles         int `mapstructure:"major_cycles"`
	MinorCyclesPerMajor int `mapstructure:"minor_cycles_per_major"`
	MaxRetries          int `mapstructure:"max_retries"`
	RetryDelay          int `mapstructure:"retry_delay"`
	NavigationTimeout   int `mapstructure:"navigation_timeout"`
	IdleTimeout         int `mapstructure:"idle_timeout"`

	Scroll ScrollConfig `mapstructure:"scroll"`
}

// ScrollConfig 页面内滚动节奏(时间单位: 毫秒)
type ScrollConfig struct {
	MinStep       int     `mapstructure:"min_step"`
	MaxStep       int     `mapstructure:"max_step"`
	MinPause      int     `mapstructure:"min_pause"`
	MaxPause      int     `mapstructure:"max_pause"`
	ReadingChance float64 `mapstructure:"reading_chance"`
	MinReading    int     `mapstructure:"min_reading"`
	MaxReading    int     `mapstructure:"max_reading"`
}

// ControlAPIConfig 指纹浏览器控制API配置
type ControlAPIConfig struct {
	Host        string       `mapstructure:"host"`
	Port        int          `mapstructure:"port"`
	Timeout     int          `mapstructure:"timeout"`
	StopTimeout int          `mapstructure:"stop_timeout"`
	APIKey      string       `mapstructure:"api_key"`
	HeadersFile string       `mapstructure:"headers_file"`
	Paths       sphere.Paths `mapstructure:"paths"`
}

// SessionConfig 会话与调试端口配置
type SessionConfig struct {
	DebugHost          string `mapstructure:"debug_host"`
	DebugPort          int    `mapstructure:"debug_port"`
	PortRange          int    `mapstructure:"port_range"`
	Headless           bool   `mapstructure:"headless"`
	UseRunningSessions bool   `mapstructure:"use_running_sessions"`
	StopOnExit         bool   `mapstructure:"stop_on_exit"`
	// ProfilesFile 预先准备的配置文件ID列表,为空时使用控制API返回的全部会话
	ProfilesFile string `mapstructure:"profiles_file"`
}

// RunsConfig 并发运行配置
type RunsConfig struct {
	Threads          int     `mapstructure:"threads"`
	MaxThreads       int     `mapstructure:"max_threads"`
	BrowserMemoryMB  int     `mapstructure:"browser_memory_mb"`
	CPULoadThreshold float64 `mapstructure:"cpu_load_threshold"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level    string         `mapstructure:"level"`
	LogDir   string         `mapstructure:"log_dir"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig 日志轮转配置
type RotationConfig struct {
	MaxSize    int  `mapstructure:"max_size"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAge     int  `mapstructure:"max_age"`
	Compress   bool `mapstructure:"compress"`
}

// OutputConfig 输出配置
type OutputConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// LoadConfig 加载配置
// 优先级: 命令行 > 环境变量(含.env) > 配置文件 > 默认值
func LoadConfig(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("加载.env文件失败: %w", err)
	}

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".sitewalker"))
		}
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	return &config, nil
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	v.SetDefault("site.root_url", "https://www.apple.com/jp/")
	v.SetDefault("site.link_scope", "")
	v.SetDefault("site.link_selectors", browsing.DefaultLinkSelectors)
	v.SetDefault("site.blocked_patterns", browsing.DefaultBlockedPatterns)

	defaults := models.DefaultRunConfig()
	v.SetDefault("browsing.per_page_duration", int(defaults.PerPageDuration/time.Second))
	v.SetDefault("browsing.major_cycles", defaults.MajorCycles)
	v.SetDefault("browsing.minor_cycles_per_major", defaults.MinorCyclesPerMajor)
	v.SetDefault("browsing.max_retries", defaults.MaxRetries)
	v.SetDefault("browsing.retry_delay", int(defaults.RetryDelay/time.Second))
	v.SetDefault("browsing.navigation_timeout", 30)
	v.SetDefault("browsing.idle_timeout", 10)

	scroll := browsing.DefaultScrollProfile()
	v.SetDefault("browsing.scroll.min_step", scroll.MinStep)
	v.SetDefault("browsing.scroll.max_step", scroll.MaxStep)
	v.SetDefault("browsing.scroll.min_pause", scroll.MinPause.Milliseconds())
	v.SetDefault("browsing.scroll.max_pause", scroll.MaxPause.Milliseconds())
	v.SetDefault("browsing.scroll.reading_chance", scroll.ReadingChance)
	v.SetDefault("browsing.scroll.min_reading", scroll.MinReading.Milliseconds())
	v.SetDefault("browsing.scroll.max_reading", scroll.MaxReading.Milliseconds())

	paths := sphere.DefaultPaths()
	v.SetDefault("control_api.host", "127.0.0.1")
	v.SetDefault("control_api.port", 40080)
	v.SetDefault("control_api.timeout", 30)
	v.SetDefault("control_api.stop_timeout", 30)
	v.SetDefault("control_api.api_key", "")
	v.SetDefault("control_api.headers_file", "")
	v.SetDefault("control_api.paths.list", paths.List)
	v.SetDefault("control_api.paths.start", paths.Start)
	v.SetDefault("control_api.paths.stop", paths.Stop)
	v.SetDefault("control_api.paths.create_quick", paths.CreateQuick)

	v.SetDefault("session.debug_host", "127.0.0.1")
	v.SetDefault("session.debug_port", 12345)
	v.SetDefault("session.port_range", 10)
	v.SetDefault("session.headless", false)
	v.SetDefault("session.use_running_sessions", false)
	v.SetDefault("session.stop_on_exit", true)
	v.SetDefault("session.profiles_file", "")

	v.SetDefault("runs.threads", 1)
	v.SetDefault("runs.max_threads", 8)
	v.SetDefault("runs.browser_memory_mb", 500)
	v.SetDefault("runs.cpu_load_threshold", 80.0)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.log_dir", "logs")
	v.SetDefault("logging.rotation.max_size", 10)
	v.SetDefault("logging.rotation.max_backups", 3)
	v.SetDefault("logging.rotation.max_age", 28)
	v.SetDefault("logging.rotation.compress", true)

	v.SetDefault("output.base_dir", "output")
}

// RunConfig 从浏览配置构造单次运行参数
func (c *Config) RunConfig() models.RunConfig {
	return models.RunConfig{
		PerPageDuration:     time.Duration(c.Browsing.PerPageDuration) * time.Second,
		MajorCycles:         c.Browsing.MajorCycles,
		MinorCyclesPerMajor: c.Browsing.MinorCyclesPerMajor,
		MaxRetries:          c.Browsing.MaxRetries,
		RetryDelay:          time.Duration(c.Browsing.RetryDelay) * time.Second,
		UseRunningSession:   c.Session.UseRunningSessions,
	}
}

// ScrollProfile 从滚动配置构造滚动参数,读取失败的处理沿用默认值
func (c *Config) ScrollProfile() browsing.ScrollProfile {
	ms := func(n int) time.Duration { return time.Duration(n) * time.Millisecond }
	profile := browsing.DefaultScrollProfile()
	profile.MinStep = c.Browsing.Scroll.MinStep
	profile.MaxStep = c.Browsing.Scroll.MaxStep
	profile.MinPause = ms(c.Browsing.Scroll.MinPause)
	profile.MaxPause = ms(c.Browsing.Scroll.MaxPause)
	profile.ReadingChance = c.Browsing.Scroll.ReadingChance
	profile.MinReading = ms(c.Browsing.Scroll.MinReading)
	profile.MaxReading = ms(c.Browsing.Scroll.MaxReading)
	return profile
}

// ControlAPIURL 控制API基础地址
func (c *Config) ControlAPIURL() string {
	return fmt.Sprintf("http://%s:%d", c.ControlAPI.Host, c.ControlAPI.Port)
}

// LinkScope 返回生效的链接范围
func (c *Config) LinkScope() (string, error) {
	if c.Site.LinkScope != "" {
		return c.Site.LinkScope, nil
	}
	return browsing.DefaultScope(c.Site.RootURL)
}

// Validate 验证配置
func (c *Config) Validate() error {
	if err := utils.ValidateURL(c.Site.RootURL); err != nil {
		return fmt.Errorf("site.root_url: %w", err)
	}
	if c.ControlAPI.Port <= 0 || c.ControlAPI.Port > 65535 {
		return fmt.Errorf("control_api.port 无效: %d", c.ControlAPI.Port)
	}
	if c.Session.DebugPort <= 0 || c.Session.DebugPort > 65535 {
		return fmt.Errorf("session.debug_port 无效: %d", c.Session.DebugPort)
	}
	if c.Session.PortRange < 0 || c.Session.PortRange > 100 {
		return fmt.Errorf("session.port_range 必须在0-100之间")
	}
	if c.Runs.Threads < 1 {
		return fmt.Errorf("runs.threads 必须大于0")
	}
	if err := c.validateScroll(); err != nil {
		return err
	}
	runConfig := c.RunConfig()
	return runConfig.Validate()
}

func (c *Config) validateScroll() error {
	sc := c.Browsing.Scroll
	switch {
	case sc.MinStep <= 0 || sc.MaxStep < sc.MinStep:
		return fmt.Errorf("browsing.scroll 滚动步长无效: %d-%d", sc.MinStep, sc.MaxStep)
	case sc.MinPause < 0 || sc.MaxPause < sc.MinPause:
		return fmt.Errorf("browsing.scroll 停顿时间无效: %d-%d", sc.MinPause, sc.MaxPause)
	case sc.MinReading < 0 || sc.MaxReading < sc.MinReading:
		return fmt.Errorf("browsing.scroll 阅读停顿无效: %d-%d", sc.MinReading, sc.MaxReading)
	case sc.ReadingChance < 0 || sc.ReadingChance > 1:
		return fmt.Errorf("browsing.scroll.reading_chance 必须在0-1之间")
	}
	return nil
}
