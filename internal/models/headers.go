package models

import (
	"fmt"
	"net/http"
	"strings"
)

// HeaderProvider 控制API请求头部提供者
type HeaderProvider interface {
	GetHeaders() (http.Header, error)
}

// HeaderConfig 控制API头部配置文件的内容
type HeaderConfig struct {
	// APIKey 非空时以 "Authorization: Bearer <key>" 发送
	APIKey  string            `mapstructure:"api_key" yaml:"api_key"`
	Headers map[string]string `mapstructure:"headers" yaml:"headers"`
}

// CliHeaders 命令行 -H 参数,每项格式为 "Name: Value"
type CliHeaders []string

// Parse 解析为 http.Header,同名头部后出现的覆盖先出现的
func (ch CliHeaders) Parse() (http.Header, error) {
	parsed := make(http.Header, len(ch))
	for i, raw := range ch {
		name, value, ok := strings.Cut(raw, ":")
		if !ok {
			return nil, fmt.Errorf("参数 --header 第%d项缺少冒号,应为 'Name: Value'", i+1)
		}
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("参数 --header 第%d项头部名称为空", i+1)
		}
		parsed.Set(name, strings.TrimSpace(value))
	}
	return parsed, nil
}

// ValidationError 头部验证失败
type ValidationError struct {
	Field      string // name 或 value
	HeaderName string
	Reason     string
	Suggestion string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "头部验证失败 [%s] %s: %s", e.HeaderName, e.Field, e.Reason)
	if e.Suggestion != "" {
		fmt.Fprintf(&b, " (建议: %s)", e.Suggestion)
	}
	return b.String()
}

// ConfigError 配置文件读取或解析失败
type ConfigError struct {
	FilePath string
	Cause    error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("配置文件错误 [%s]: %v", e.FilePath, e.Cause)
}

func (e *ConfigError) Unwrap() error { return e.Cause }
