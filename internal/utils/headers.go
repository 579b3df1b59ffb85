package utils

import (
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"

	"github.com/RecoveryAshes/sitewalker/internal/models"
)

// MaxHeaderValueLength 控制API请求头部值最大长度
const MaxHeaderValueLength = 8192

var (
	// ReservedHeaders 由控制API客户端设置,不允许自定义
	ReservedHeaders = []string{
		"Host",
		"Content-Length",
		"Content-Type",
		"Transfer-Encoding",
		"Connection",
	}

	// SensitiveKeywords 名称包含这些关键字的头部在日志中脱敏
	SensitiveKeywords = []string{"authorization", "token", "key", "secret", "password", "credential", "cookie"}

	headerTokenRegex = regexp.MustCompile("^[!#$%&'*+\\-.^_`|~0-9A-Za-z]+$")
	headerValueRegex = regexp.MustCompile(`^[\x20-\x7E\t]*$`)
)

// HeaderValidator 请求头部校验
type HeaderValidator struct {
	reserved map[string]struct{}
}

// NewHeaderValidator 创建校验器
func NewHeaderValidator() *HeaderValidator {
	reserved := make(map[string]struct{}, len(ReservedHeaders))
	for _, h := range ReservedHeaders {
		reserved[http.CanonicalHeaderKey(h)] = struct{}{}
	}
	return &HeaderValidator{reserved: reserved}
}

// IsReserved 是否为客户端保留头部
func (hv *HeaderValidator) IsReserved(name string) bool {
	_, ok := hv.reserved[http.CanonicalHeaderKey(name)]
	return ok
}

// ValidateHeader 校验单个头部
func (hv *HeaderValidator) ValidateHeader(name, value string) error {
	switch {
	case name == "":
		return &models.ValidationError{Field: "name", Reason: "头部名称不能为空"}
	case hv.IsReserved(name):
		return &models.ValidationError{
			Field:      "name",
			HeaderName: name,
			Reason:     "此头部由控制API客户端设置",
			Suggestion: fmt.Sprintf("移除 '%s'", name),
		}
	case !headerTokenRegex.MatchString(name):
		return &models.ValidationError{
			Field:      "name",
			HeaderName: name,
			Reason:     "头部名称包含非法字符",
			Suggestion: "使用字母、数字和连字符,例如 'X-Client'",
		}
	case len(value) > MaxHeaderValueLength:
		return &models.ValidationError{
			Field:      "value",
			HeaderName: name,
			Reason:     fmt.Sprintf("头部值过长: %d 字节 (最大 %d)", len(value), MaxHeaderValueLength),
		}
	case !headerValueRegex.MatchString(value):
		return &models.ValidationError{
			Field:      "value",
			HeaderName: name,
			Reason:     "头部值只能包含可打印ASCII字符",
		}
	}
	return nil
}

// Validate 校验全部头部,返回按名称排序后的第一个错误
func (hv *HeaderValidator) Validate(headers http.Header) error {
	for _, name := range sortedNames(headers) {
		for _, value := range headers[name] {
			if err := hv.ValidateHeader(name, value); err != nil {
				return err
			}
		}
	}
	return nil
}

// IsSensitiveHeader 头部名称是否包含敏感关键字
func IsSensitiveHeader(name string) bool {
	lower := strings.ToLower(name)
	for _, keyword := range SensitiveKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

// RedactHeaderValue 脱敏头部值
// "Bearer xxx" 保留认证方案,长值保留首尾各4位,短值完全隐藏
func RedactHeaderValue(name, value string) string {
	if !IsSensitiveHeader(name) {
		return value
	}
	if scheme, _, found := strings.Cut(value, " "); found && scheme != "" {
		return scheme + " ***"
	}
	if len(value) > 12 {
		return value[:4] + "***" + value[len(value)-4:]
	}
	return "***"
}

// RedactHeaders 返回用于日志的 "Name: value" 列表(已脱敏,按名称排序)
func RedactHeaders(headers http.Header) string {
	parts := make([]string, 0, len(headers))
	for _, name := range sortedNames(headers) {
		if len(headers[name]) == 0 {
			continue
		}
		parts = append(parts, name+": "+RedactHeaderValue(name, headers[name][0]))
	}
	return strings.Join(parts, ", ")
}

func sortedNames(headers http.Header) []string {
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
