package browsing

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/rs/zerolog"
)

const (
	scrollMetricsJS = `() => ({
		scrollHeight: document.body ? document.body.scrollHeight : 0,
		clientHeight: window.innerHeight,
		scrollTop: window.pageYOffset
	})`
	scrollToJS     = `(top) => window.scrollTo({top: top, behavior: 'smooth'})`
	locationHrefJS = `() => window.location.href`
)

// RodPage 基于go-rod的Page实现
type RodPage struct {
	page              *rod.Page
	navigationTimeout time.Duration
	idleTimeout       time.Duration
	logger            zerolog.Logger
}

// NewRodPage 包装一个已连接的rod页面
func NewRodPage(page *rod.Page, navigationTimeout, idleTimeout time.Duration, logger zerolog.Logger) *RodPage {
	if navigationTimeout <= 0 {
		navigationTimeout = 30 * time.Second
	}
	return &RodPage{
		page:              page,
		navigationTimeout: navigationTimeout,
		idleTimeout:       idleTimeout,
		logger:            logger,
	}
}

// Navigate 导航并等待DOM加载,随后尽力等待页面空闲
func (p *RodPage) Navigate(ctx context.Context, url string) error {
	page := p.page.Context(ctx).Timeout(p.navigationTimeout)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("导航失败 [%s]: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("等待页面加载失败 [%s]: %w", url, err)
	}

	// 空闲等待超时不视为导航失败
	if p.idleTimeout > 0 {
		if err := p.page.Context(ctx).WaitIdle(p.idleTimeout); err != nil {
			p.logger.Debug().Err(err).Str("url", url).Msg("等待页面空闲超时,继续")
		}
	}
	return nil
}

// ScrollMetrics 读取滚动信息
func (p *RodPage) ScrollMetrics(ctx context.Context) (ScrollMetrics, error) {
	res, err := p.page.Context(ctx).Timeout(p.navigationTimeout).Eval(scrollMetricsJS)
	if err != nil {
		return ScrollMetrics{}, fmt.Errorf("获取页面滚动信息失败: %w", err)
	}
	return ScrollMetrics{
		ScrollHeight: res.Value.Get("scrollHeight").Int(),
		ClientHeight: res.Value.Get("clientHeight").Int(),
		ScrollTop:    res.Value.Get("scrollTop").Int(),
	}, nil
}

// ScrollTo 平滑滚动
func (p *RodPage) ScrollTo(ctx context.Context, top int) error {
	if _, err := p.page.Context(ctx).Timeout(p.navigationTimeout).Eval(scrollToJS, top); err != nil {
		return fmt.Errorf("滚动失败: %w", err)
	}
	return nil
}

// Snapshot 读取当前URL和HTML
func (p *RodPage) Snapshot(ctx context.Context) (Snapshot, error) {
	page := p.page.Context(ctx).Timeout(p.navigationTimeout)

	res, err := page.Eval(locationHrefJS)
	if err != nil {
		return Snapshot{}, fmt.Errorf("读取当前URL失败: %w", err)
	}
	html, err := page.HTML()
	if err != nil {
		return Snapshot{}, fmt.Errorf("读取页面HTML失败: %w", err)
	}
	return Snapshot{URL: res.Value.Str(), HTML: html}, nil
}
