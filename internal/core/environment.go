package core

import (
	"time"

	"github.com/RecoveryAshes/sitewalker/internal/browsing"
	"github.com/RecoveryAshes/sitewalker/internal/models"
	"github.com/RecoveryAshes/sitewalker/internal/sphere"
	"github.com/RecoveryAshes/sitewalker/internal/utils"
)

// SiteSettings 目标站点
type SiteSettings struct {
	RootURL         string
	Scope           string
	Selectors       []string
	BlockedPatterns []string
}

// SessionSettings 会话参数
type SessionSettings struct {
	// DebugPort 首选调试端口,每个配置文件使用 DebugPort + 池内序号
	DebugPort  int
	Headless   bool
	StopOnExit bool
}

// Environment 多个运行共享的依赖
type Environment struct {
	Pool    *ProfilePool
	Client  *sphere.Client
	Prober  *sphere.Prober
	Dialer  sphere.Dialer
	Site    SiteSettings
	Session SessionSettings
	// Scroll 为nil时使用默认滚动参数
	Scroll *browsing.ScrollProfile
	// Clock 为nil时使用系统时钟
	Clock browsing.Clock
}

// NewEnvironment 根据配置创建运行环境
func NewEnvironment(cfg *Config, pool *ProfilePool, headers models.HeaderProvider) (*Environment, error) {
	scope, err := cfg.LinkScope()
	if err != nil {
		return nil, err
	}

	client := sphere.NewClient(sphere.ClientConfig{
		BaseURL:          cfg.ControlAPIURL(),
		Timeout:          time.Duration(cfg.ControlAPI.Timeout) * time.Second,
		StopTimeout:      time.Duration(cfg.ControlAPI.StopTimeout) * time.Second,
		StopConfirmDelay: 3 * time.Second,
		Paths:            cfg.ControlAPI.Paths,
		Headers:          headers,
	}, utils.Logger)

	prober := sphere.NewProber(cfg.Session.DebugHost, cfg.Session.PortRange, 5*time.Second, utils.Logger)

	dialer := &sphere.RodDialer{
		NavigationTimeout: time.Duration(cfg.Browsing.NavigationTimeout) * time.Second,
		IdleTimeout:       time.Duration(cfg.Browsing.IdleTimeout) * time.Second,
		Logger:            utils.Logger,
	}

	scroll := cfg.ScrollProfile()
	return &Environment{
		Pool:   pool,
		Client: client,
		Prober: prober,
		Dialer: dialer,
		Site: SiteSettings{
			RootURL:         cfg.Site.RootURL,
			Scope:           scope,
			Selectors:       cfg.Site.LinkSelectors,
			BlockedPatterns: cfg.Site.BlockedPatterns,
		},
		Session: SessionSettings{
			DebugPort:  cfg.Session.DebugPort,
			Headless:   cfg.Session.Headless,
			StopOnExit: cfg.Session.StopOnExit,
		},
		Scroll: &scroll,
	}, nil
}
