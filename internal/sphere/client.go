package sphere

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/RecoveryAshes/sitewalker/internal/models"
	"github.com/rs/zerolog"
)

// Paths 控制API路径,不同版本的浏览器可能不同
type Paths struct {
	List        string `mapstructure:"list"`
	Start       string `mapstructure:"start"`
	Stop        string `mapstructure:"stop"`
	CreateQuick string `mapstructure:"create_quick"`
}

// DefaultPaths 默认路径
func DefaultPaths() Paths {
	return Paths{
		List:        "/sessions",
		Start:       "/sessions/start",
		Stop:        "/sessions/stop",
		CreateQuick: "/sessions/create_quick",
	}
}

// ClientConfig 控制API客户端配置
type ClientConfig struct {
	// BaseURL 例如 http://127.0.0.1:40080
	BaseURL string
	// Timeout 普通请求超时
	Timeout time.Duration
	// StopTimeout 停止会话超时,关闭浏览器可能很慢
	StopTimeout time.Duration
	// StopConfirmDelay 停止请求超时后,等待多久再查询会话状态
	StopConfirmDelay time.Duration

	Paths   Paths
	Headers models.HeaderProvider

	HTTPClient *http.Client
}

// StartRequest 启动会话请求体
type StartRequest struct {
	ProfileID string `json:"uuid"`
	Headless  bool   `json:"headless"`
	DebugPort int    `json:"debug_port,omitempty"`
}

// StartResponse 启动会话响应
type StartResponse struct {
	ProfileID string `json:"uuid"`
	DebugPort int    `json:"debug_port"`
}

type stopResponse struct {
	ProfileID string `json:"uuid"`
	Success   bool   `json:"success"`
}

// Client 指纹浏览器本地控制API客户端
type Client struct {
	cfg    ClientConfig
	http   *http.Client
	logger zerolog.Logger
}

// NewClient 创建控制API客户端
func NewClient(cfg ClientConfig, logger zerolog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 30 * time.Second
	}
	if cfg.StopConfirmDelay < 0 {
		cfg.StopConfirmDelay = 0
	}
	defaults := DefaultPaths()
	if cfg.Paths.List == "" {
		cfg.Paths.List = defaults.List
	}
	if cfg.Paths.Start == "" {
		cfg.Paths.Start = defaults.Start
	}
	if cfg.Paths.Stop == "" {
		cfg.Paths.Stop = defaults.Stop
	}
	if cfg.Paths.CreateQuick == "" {
		cfg.Paths.CreateQuick = defaults.CreateQuick
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{cfg: cfg, http: httpClient, logger: logger}
}

// CheckConnection 检查控制API是否可达
func (c *Client) CheckConnection(ctx context.Context) error {
	sessions, err := c.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("%w (%s): %v", ErrControlAPIUnreachable, c.cfg.BaseURL, err)
	}
	c.logger.Info().Msgf("✅ 控制API连接成功,找到 %d 个配置文件", len(sessions))
	return nil
}

// ListSessions 获取全部会话,原始状态映射为SessionStatus
func (c *Client) ListSessions(ctx context.Context) ([]models.BrowserSession, error) {
	var sessions []models.BrowserSession
	if err := c.do(ctx, http.MethodGet, c.cfg.Paths.List, nil, c.cfg.Timeout, &sessions); err != nil {
		return nil, err
	}

	for i := range sessions {
		status, known := models.ParseSessionStatus(sessions[i].RawStatus)
		if !known {
			c.logger.Debug().
				Str("profile", sessions[i].ShortID()).
				Str("status", sessions[i].RawStatus).
				Msg("未知的会话状态,按已停止处理")
		}
		sessions[i].Status = status
	}
	return sessions, nil
}

// StartSession 启动会话
// 配置文件已在运行时返回的错误满足 errors.Is(err, ErrSessionConflict)
func (c *Client) StartSession(ctx context.Context, req StartRequest) (*StartResponse, error) {
	c.logger.Info().Str("profile", req.ProfileID).Int("debug_port", req.DebugPort).Msg("启动浏览器会话")

	var resp StartResponse
	if err := c.do(ctx, http.MethodPost, c.cfg.Paths.Start, req, c.cfg.Timeout, &resp); err != nil {
		return nil, err
	}
	if resp.ProfileID == "" {
		resp.ProfileID = req.ProfileID
	}
	if resp.DebugPort == 0 {
		resp.DebugPort = req.DebugPort
	}
	return &resp, nil
}

// StopSession 停止会话
// 请求超时时,等待片刻后重新查询会话列表,状态为已停止即视为成功
func (c *Client) StopSession(ctx context.Context, profileID string) error {
	c.logger.Info().Str("profile", profileID).Msg("停止会话")

	var resp stopResponse
	err := c.do(ctx, http.MethodPost, c.cfg.Paths.Stop, map[string]string{"uuid": profileID}, c.cfg.StopTimeout, &resp)
	if err == nil {
		if resp.ProfileID == profileID || resp.Success {
			c.logger.Info().Str("profile", profileID).Msg("成功停止会话")
			return nil
		}
		return fmt.Errorf("停止会话响应异常: %+v", resp)
	}

	if !isTimeout(err) || ctx.Err() != nil {
		return err
	}

	c.logger.Info().Str("profile", profileID).Msg("停止会话请求超时,但操作可能仍在进行,确认会话状态")
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.cfg.StopConfirmDelay):
	}

	session, lerr := c.FindSession(ctx, profileID)
	if lerr != nil {
		return fmt.Errorf("停止会话超时且无法确认状态: %w", err)
	}
	if session.Status == models.SessionStopped {
		c.logger.Info().Str("profile", profileID).Msg("会话已停止,操作成功")
		return nil
	}
	return fmt.Errorf("停止会话超时,当前状态: %s: %w", session.RawStatus, err)
}

// FindSession 按配置文件ID查找会话
func (c *Client) FindSession(ctx context.Context, profileID string) (*models.BrowserSession, error) {
	sessions, err := c.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	for i := range sessions {
		if sessions[i].ProfileID == profileID {
			return &sessions[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, profileID)
}

// CreateQuickSession 用默认参数创建新的配置文件
func (c *Client) CreateQuickSession(ctx context.Context) (*models.BrowserSession, error) {
	var session models.BrowserSession
	if err := c.do(ctx, http.MethodPost, c.cfg.Paths.CreateQuick, nil, c.cfg.Timeout, &session); err != nil {
		return nil, err
	}
	if session.ProfileID == "" {
		return nil, errors.New("创建会话响应缺少uuid")
	}
	session.Status, _ = models.ParseSessionStatus(session.RawStatus)
	c.logger.Info().Msgf("✅ 会话创建成功: %s (%s)", session.Name, session.ProfileID)
	return &session, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, timeout time.Duration, out any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("序列化请求失败: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}
	if c.cfg.Headers != nil {
		headers, err := c.cfg.Headers.GetHeaders()
		if err != nil {
			return fmt.Errorf("获取请求头部失败: %w", err)
		}
		for name, values := range headers {
			req.Header[name] = values
		}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("请求 %s %s 失败: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("读取响应失败: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(data)),
		}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("解析响应失败 [%s %s]: %w", method, path, err)
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
