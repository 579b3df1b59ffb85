package sphere

import (
	"context"
	"errors"
	"fmt"

	"github.com/RecoveryAshes/sitewalker/internal/browsing"
	"github.com/RecoveryAshes/sitewalker/internal/models"
	"github.com/rs/zerolog"
)

// BrokerConfig 会话代理配置
type BrokerConfig struct {
	// Headless 启动会话时是否使用无头模式
	Headless bool
	// StopOnExit 释放连接时停止由本进程启动的会话
	StopOnExit bool
}

// Connection 一个运行独占的浏览器连接
type Connection struct {
	Session  models.BrowserSession
	Endpoint string
	Page     browsing.Page

	driver Driver
}

// Broker 发现、启动、附着和停止远端浏览器会话
// 所有控制API调用都经过运行的Retrier
type Broker struct {
	client  *Client
	prober  *Prober
	dialer  Dialer
	retrier *browsing.Retrier
	cfg     BrokerConfig
	logger  zerolog.Logger
}

// NewBroker 创建会话代理
func NewBroker(client *Client, prober *Prober, dialer Dialer, retrier *browsing.Retrier, cfg BrokerConfig, logger zerolog.Logger) *Broker {
	return &Broker{
		client:  client,
		prober:  prober,
		dialer:  dialer,
		retrier: retrier,
		cfg:     cfg,
		logger:  logger,
	}
}

// ListSessions 获取全部会话
func (b *Broker) ListSessions(ctx context.Context) ([]models.BrowserSession, error) {
	sessions, ok := browsing.Execute(ctx, b.retrier, "list_sessions", b.client.ListSessions)
	if !ok {
		return nil, fmt.Errorf("%w: 获取会话列表失败", ErrSessionUnavailable)
	}
	return sessions, nil
}

// RunningSessions 获取运行中的会话
func (b *Broker) RunningSessions(ctx context.Context) ([]models.BrowserSession, error) {
	sessions, err := b.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	running := make([]models.BrowserSession, 0, len(sessions))
	for _, s := range sessions {
		if s.IsRunning() {
			running = append(running, s)
		}
	}
	b.logger.Info().Msgf("发现 %d 个运行中的会话", len(running))
	return running, nil
}

type startOutcome struct {
	resp     *StartResponse
	conflict bool
}

// StartSession 为配置文件启动会话
// 配置文件已在运行时附着到现有会话(Owned=false)
func (b *Broker) StartSession(ctx context.Context, profileID string, debugPort int) (*models.BrowserSession, error) {
	outcome, ok := browsing.Execute(ctx, b.retrier, "start_session", func(ctx context.Context) (startOutcome, error) {
		resp, err := b.client.StartSession(ctx, StartRequest{
			ProfileID: profileID,
			Headless:  b.cfg.Headless,
			DebugPort: debugPort,
		})
		if errors.Is(err, ErrSessionConflict) {
			return startOutcome{conflict: true}, nil
		}
		if err != nil {
			return startOutcome{}, err
		}
		return startOutcome{resp: resp}, nil
	})
	if !ok {
		return nil, fmt.Errorf("%w: 启动会话失败 [%s]", ErrSessionUnavailable, profileID)
	}

	if outcome.conflict {
		b.logger.Warn().Str("profile", profileID).Msg("⚠️ 会话已在运行,使用现有会话")
		return b.existingSession(ctx, profileID, debugPort)
	}

	session := &models.BrowserSession{
		ProfileID: outcome.resp.ProfileID,
		Status:    models.SessionRunning,
		RawStatus: "running",
		DebugPort: outcome.resp.DebugPort,
		Owned:     true,
	}
	b.logger.Info().Str("profile", session.ShortID()).Int("debug_port", session.DebugPort).Msg("✅ 会话启动成功")
	return session, nil
}

// existingSession 查找已运行的会话,控制API未报告端口时使用请求的端口
func (b *Broker) existingSession(ctx context.Context, profileID string, debugPort int) (*models.BrowserSession, error) {
	session, ok := browsing.Execute(ctx, b.retrier, "find_session", func(ctx context.Context) (*models.BrowserSession, error) {
		return b.client.FindSession(ctx, profileID)
	})
	if !ok {
		// 列表不可用时仍可尝试探测请求的端口
		session = &models.BrowserSession{ProfileID: profileID, RawStatus: "running"}
	}
	session.Status = models.SessionRunning
	session.Owned = false
	if session.DebugPort == 0 {
		session.DebugPort = debugPort
	}
	return session, nil
}

// Attach 连接会话的调试端点
// 端点未知或未响应时,在 preferredPort 起的有界端口范围内探测
func (b *Broker) Attach(ctx context.Context, session *models.BrowserSession, preferredPort int) (*Connection, error) {
	port := session.DebugPort
	if port == 0 {
		port = preferredPort
	}

	found, ok := browsing.Execute(ctx, b.retrier, "probe_debug_port", func(ctx context.Context) (int, error) {
		return b.prober.Find(ctx, port)
	})
	if !ok {
		return nil, fmt.Errorf("%w: 会话 %s", ErrNoDebugEndpoint, session.ShortID())
	}
	session.DebugPort = found
	endpoint := session.DebugEndpoint(b.prober.Host())

	driver, ok := browsing.Execute(ctx, b.retrier, "connect_browser", func(ctx context.Context) (Driver, error) {
		return b.dialer.Dial(ctx, endpoint)
	})
	if !ok {
		return nil, fmt.Errorf("%w: 无法连接调试端点 %s", ErrSessionUnavailable, endpoint)
	}

	page, ok := browsing.Execute(ctx, b.retrier, "open_page", driver.Page)
	if !ok {
		_ = driver.Close()
		return nil, fmt.Errorf("%w: 无法获取标签页 %s", ErrSessionUnavailable, endpoint)
	}

	return &Connection{
		Session:  *session,
		Endpoint: endpoint,
		Page:     page,
		driver:   driver,
	}, nil
}

// Release 断开连接,按配置停止由本进程启动的会话
// 运行被停止后仍会执行,因此不经过Retrier
func (b *Broker) Release(ctx context.Context, conn *Connection) error {
	if conn == nil {
		return nil
	}
	if conn.driver != nil {
		if err := conn.driver.Close(); err != nil {
			b.logger.Warn().Err(err).Msg("断开浏览器连接失败")
		}
	}
	if !b.cfg.StopOnExit || !conn.Session.Owned {
		return nil
	}
	return b.StopSession(ctx, conn.Session.ProfileID)
}

// StopSession 停止会话
func (b *Broker) StopSession(ctx context.Context, profileID string) error {
	if err := b.client.StopSession(ctx, profileID); err != nil {
		return fmt.Errorf("停止会话失败 [%s]: %w", profileID, err)
	}
	return nil
}

// CreateQuickSession 创建新的配置文件
func (b *Broker) CreateQuickSession(ctx context.Context) (*models.BrowserSession, error) {
	session, ok := browsing.Execute(ctx, b.retrier, "create_quick_session", b.client.CreateQuickSession)
	if !ok {
		return nil, fmt.Errorf("%w: 创建会话失败", ErrSessionUnavailable)
	}
	return session, nil
}
