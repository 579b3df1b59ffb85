package models

import (
	"fmt"
	"strings"
)

// SessionStatus 浏览器会话状态
type SessionStatus int

const (
	SessionStopped  SessionStatus = iota // 已停止(包含未知状态)
	SessionStarting                      // 启动中
	SessionRunning                       // 运行中
	SessionStopping                      // 停止中
)

// String 实现fmt.Stringer
func (s SessionStatus) String() string {
	switch s {
	case SessionStarting:
		return "starting"
	case SessionRunning:
		return "running"
	case SessionStopping:
		return "stopping"
	default:
		return "stopped"
	}
}

// rawStatusTable 控制API原始状态字符串到SessionStatus的映射
// 键为规范化后的字符串(小写,去掉空格/下划线/连字符)
//
// 控制API对"运行中"有多种同义写法,例如 running / automationRunning / active,
// 全部归入 SessionRunning。表中不存在的状态按 SessionStopped 处理,不会被当作可连接会话。
var rawStatusTable = map[string]SessionStatus{
	"running":           SessionRunning,
	"automationrunning": SessionRunning,
	"automation":        SessionRunning,
	"active":            SessionRunning,
	"started":           SessionRunning,
	"starting":          SessionStarting,
	"launching":         SessionStarting,
	"pending":           SessionStarting,
	"stopping":          SessionStopping,
	"closing":           SessionStopping,
	"stopped":           SessionStopped,
	"idle":              SessionStopped,
	"closed":            SessionStopped,
}

// ParseSessionStatus 将控制API返回的原始状态映射为SessionStatus
// 第二个返回值表示原始值是否在映射表中
func ParseSessionStatus(raw string) (SessionStatus, bool) {
	status, ok := rawStatusTable[normalizeStatus(raw)]
	if !ok {
		return SessionStopped, false
	}
	return status, true
}

func normalizeStatus(raw string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '_', '-', '\t':
			return -1
		}
		return r
	}, strings.ToLower(strings.TrimSpace(raw)))
}

// ProxyInfo 会话代理信息(仅用于展示)
type ProxyInfo struct {
	Protocol string `json:"protocol"`
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
}

// BrowserSession 远端指纹浏览器会话
type BrowserSession struct {
	ProfileID string        `json:"uuid"`
	Name      string        `json:"name"`
	Status    SessionStatus `json:"-"`
	RawStatus string        `json:"status"`
	Proxy     *ProxyInfo    `json:"proxy,omitempty"`

	// DebugPort 为0表示调试端点尚未确认
	DebugPort int `json:"debug_port,omitempty"`

	// Owned 会话是否由本进程启动(附着到已有会话时为false)
	Owned bool `json:"-"`
}

// IsRunning 会话是否处于运行状态
func (s BrowserSession) IsRunning() bool {
	return s.Status == SessionRunning
}

// HasDebugEndpoint 调试端点是否已知
func (s BrowserSession) HasDebugEndpoint() bool {
	return s.DebugPort > 0
}

// DebugEndpoint 返回调试端点地址 host:port
func (s BrowserSession) DebugEndpoint(host string) string {
	if !s.HasDebugEndpoint() {
		return ""
	}
	return fmt.Sprintf("%s:%d", host, s.DebugPort)
}

// ShortID 日志中使用的短ID
func (s BrowserSession) ShortID() string {
	if len(s.ProfileID) > 8 {
		return s.ProfileID[:8] + "..."
	}
	return s.ProfileID
}

// ProxyProtocol 代理协议,无代理时返回"none"
func (s BrowserSession) ProxyProtocol() string {
	if s.Proxy == nil || s.Proxy.Protocol == "" {
		return "none"
	}
	return s.Proxy.Protocol
}
