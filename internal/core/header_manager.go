package core

import (
	"net/http"
	"sync"

	"github.com/RecoveryAshes/sitewalker/internal/config"
	"github.com/RecoveryAshes/sitewalker/internal/models"
	"github.com/RecoveryAshes/sitewalker/internal/utils"
)

// DefaultUserAgent 控制API请求的默认User-Agent
func DefaultUserAgent() string {
	return "sitewalker/" + Version
}

// HeaderManager 控制API请求头部
// 优先级: 默认 < 配置文件 < API密钥 < 命令行。实现 models.HeaderProvider。
type HeaderManager struct {
	loader    *config.HeaderConfigLoader
	apiKey    string
	cli       http.Header
	validator *utils.HeaderValidator

	once   sync.Once
	merged http.Header
	err    error
}

// NewHeaderManager 创建头部管理器
//   - headersFile: 头部配置文件,为空时不读取文件
//   - apiKey: 控制API密钥,非空时覆盖配置文件中的api_key
//   - cliHeaders: 命令行 -H 参数
func NewHeaderManager(headersFile, apiKey string, cliHeaders []string) (*HeaderManager, error) {
	cli, err := models.CliHeaders(cliHeaders).Parse()
	if err != nil {
		return nil, err
	}

	hm := &HeaderManager{
		apiKey:    apiKey,
		cli:       cli,
		validator: utils.NewHeaderValidator(),
	}
	if headersFile != "" {
		hm.loader = config.NewHeaderConfigLoader(headersFile)
	}
	return hm, nil
}

// GetHeaders 返回合并后的头部,首次调用时加载并验证
func (hm *HeaderManager) GetHeaders() (http.Header, error) {
	hm.once.Do(func() {
		hm.merged, hm.err = hm.build()
		if hm.err == nil && len(hm.merged) > 0 {
			utils.Debugf("控制API请求头部: %s", utils.RedactHeaders(hm.merged))
		}
	})
	if hm.err != nil {
		return nil, hm.err
	}
	return hm.merged.Clone(), nil
}

func (hm *HeaderManager) build() (http.Header, error) {
	result := http.Header{"User-Agent": {DefaultUserAgent()}}

	apiKey := hm.apiKey
	if hm.loader != nil {
		utils.Debugf("加载控制API头部配置: %s", hm.loader.Path())
		cfg, err := hm.loader.LoadConfig()
		if err != nil {
			utils.Errorf("加载控制API头部配置失败: %v", err)
			return nil, err
		}
		for name, value := range cfg.Headers {
			result.Set(name, value)
		}
		if apiKey == "" {
			apiKey = cfg.APIKey
		}
	}
	if apiKey != "" {
		result.Set("Authorization", "Bearer "+apiKey)
	}
	for name, values := range hm.cli {
		result[name] = values
	}

	if err := hm.validator.Validate(result); err != nil {
		return nil, err
	}
	return result, nil
}
