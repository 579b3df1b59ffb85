package sphere

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrSessionConflict 配置文件已有运行中的会话(控制API返回409)
	ErrSessionConflict = errors.New("会话已在运行")

	// ErrSessionUnavailable 重试耗尽后仍无法获得会话
	ErrSessionUnavailable = errors.New("会话不可用")

	// ErrNoDebugEndpoint 候选端口全部探测失败
	ErrNoDebugEndpoint = errors.New("未找到可用的调试端口")

	// ErrControlAPIUnreachable 控制API完全不可达
	ErrControlAPIUnreachable = errors.New("控制API不可达")

	// ErrSessionNotFound 会话列表中没有该配置文件
	ErrSessionNotFound = errors.New("会话不存在")
)

// APIError 控制API返回的非2xx响应
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

// Error 实现error接口
func (e *APIError) Error() string {
	return fmt.Sprintf("控制API请求失败 [%s %s]: %d %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Is 409响应匹配ErrSessionConflict
func (e *APIError) Is(target error) bool {
	return target == ErrSessionConflict && e.StatusCode == http.StatusConflict
}
