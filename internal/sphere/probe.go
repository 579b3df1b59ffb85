package sphere

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Target 调试端点 /json 列出的标签页
type Target struct {
	ID                   string `json:"id"`
	Type                 string `json:"type"`
	Title                string `json:"title"`
	URL                  string `json:"url"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// Prober 在有界端口集合中探测浏览器调试端点
type Prober struct {
	host      string
	portRange int
	timeout   time.Duration
	http      *http.Client
	logger    zerolog.Logger
}

// NewProber 创建端口探测器
// portRange为首选端口之后额外尝试的相邻端口数量
func NewProber(host string, portRange int, timeout time.Duration, logger zerolog.Logger) *Prober {
	if host == "" {
		host = "127.0.0.1"
	}
	if portRange < 0 {
		portRange = 0
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Prober{
		host:      host,
		portRange: portRange,
		timeout:   timeout,
		http:      &http.Client{},
		logger:    logger,
	}
}

// Host 调试端点主机
func (p *Prober) Host() string { return p.host }

// Candidates 候选端口: 首选端口 + 之后的portRange个相邻端口
func (p *Prober) Candidates(port int) []int {
	if port <= 0 {
		return nil
	}
	ports := make([]int, 0, p.portRange+1)
	for i := 0; i <= p.portRange && port+i <= 65535; i++ {
		ports = append(ports, port+i)
	}
	return ports
}

// Probe 检查端口上的 /json 是否返回标签页列表
func (p *Prober) Probe(ctx context.Context, port int) ([]Target, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("http://%s:%d/json", p.host, port), nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("端口 %d 返回状态码 %d", port, resp.StatusCode)
	}
	var targets []Target
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&targets); err != nil {
		return nil, fmt.Errorf("端口 %d 不是调试端点: %w", port, err)
	}
	return targets, nil
}

// Find 依次探测候选端口,返回第一个响应的端口
func (p *Prober) Find(ctx context.Context, port int) (int, error) {
	candidates := p.Candidates(port)
	if len(candidates) == 0 {
		return 0, fmt.Errorf("%w: 未配置调试端口", ErrNoDebugEndpoint)
	}

	p.logger.Debug().Msgf("🔍 扫描端口范围: %d-%d", candidates[0], candidates[len(candidates)-1])
	for _, candidate := range candidates {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		targets, err := p.Probe(ctx, candidate)
		if err != nil {
			continue
		}
		p.logger.Info().Msgf("端口 %d 可用,找到 %d 个标签页", candidate, len(targets))
		return candidate, nil
	}
	return 0, fmt.Errorf("%w: %s:%d-%d", ErrNoDebugEndpoint, p.host, candidates[0], candidates[len(candidates)-1])
}
