package sphere

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/RecoveryAshes/sitewalker/internal/browsing"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/cdp"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"
)

// Driver 一个已连接的浏览器
type Driver interface {
	// Page 返回用于浏览的标签页(优先复用已打开的标签页)
	Page(ctx context.Context) (browsing.Page, error)
	// Close 断开连接,不关闭远端浏览器
	Close() error
}

// Dialer 连接调试端点 host:port
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Driver, error)
}

// RodDialer 基于go-rod的CDP连接
type RodDialer struct {
	NavigationTimeout time.Duration
	IdleTimeout       time.Duration
	Logger            zerolog.Logger
}

// Dial 解析WebSocket地址并连接浏览器
func (d *RodDialer) Dial(ctx context.Context, endpoint string) (Driver, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	wsURL, err := launcher.ResolveURL(endpoint)
	if err != nil {
		return nil, fmt.Errorf("解析调试端点失败 [%s]: %w", endpoint, err)
	}

	// WebSocket由本进程持有,Close时关闭它才能结束rod的读循环
	conn := &trackingDialer{}
	ws := &cdp.WebSocket{Dialer: conn}
	if err := ws.Connect(ctx, wsURL, nil); err != nil {
		conn.close()
		return nil, fmt.Errorf("连接浏览器失败 [%s]: %w", endpoint, err)
	}

	connCtx, cancel := context.WithCancel(context.Background())
	browser := rod.New().Client(cdp.New().Start(ws)).Context(connCtx)
	if err := browser.Connect(); err != nil {
		cancel()
		_ = ws.Close()
		return nil, fmt.Errorf("连接浏览器失败 [%s]: %w", endpoint, err)
	}

	d.Logger.Info().Str("endpoint", endpoint).Msg("✅ 成功连接到指纹浏览器")
	return &rodDriver{
		browser:           browser,
		ws:                ws,
		cancel:            cancel,
		navigationTimeout: d.NavigationTimeout,
		idleTimeout:       d.IdleTimeout,
		logger:            d.Logger,
	}, nil
}

// trackingDialer 记录已建立的TCP连接,握手失败时用于关闭
type trackingDialer struct {
	net.Dialer
	conn net.Conn
}

func (d *trackingDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	conn, err := d.Dialer.DialContext(ctx, network, address)
	d.conn = conn
	return conn, err
}

func (d *trackingDialer) close() {
	if d.conn != nil {
		_ = d.conn.Close()
	}
}

type rodDriver struct {
	browser           *rod.Browser
	ws                *cdp.WebSocket
	cancel            context.CancelFunc
	navigationTimeout time.Duration
	idleTimeout       time.Duration
	logger            zerolog.Logger

	closeOnce sync.Once
	closeErr  error
}

func (d *rodDriver) Page(ctx context.Context) (browsing.Page, error) {
	pages, err := d.browser.Context(ctx).Pages()
	if err != nil {
		return nil, fmt.Errorf("获取标签页失败: %w", err)
	}

	var page *rod.Page
	if len(pages) > 0 {
		page = pages.First()
		d.logger.Debug().Msgf("复用已打开的标签页 (共 %d 个)", len(pages))
	} else {
		page, err = d.browser.Context(ctx).Page(proto.TargetCreateTarget{URL: "about:blank"})
		if err != nil {
			return nil, fmt.Errorf("创建标签页失败: %w", err)
		}
	}

	// 标签页沿用连接的生命周期,不绑定调用方的ctx
	page = page.Context(d.browser.GetContext())
	return browsing.NewRodPage(page, d.navigationTimeout, d.idleTimeout, d.logger), nil
}

func (d *rodDriver) Close() error {
	d.closeOnce.Do(func() {
		d.cancel()
		d.closeErr = d.ws.Close()
	})
	return d.closeErr
}
