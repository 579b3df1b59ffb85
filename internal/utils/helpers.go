package utils

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"strings"
)

// ReadProfileIDsFromFile 从文件中读取配置文件ID列表
// 每行一个ID,空行和 # 开头的注释行被跳过,重复ID只保留第一次出现
func ReadProfileIDsFromFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件列表失败: %w", err)
	}
	defer file.Close()

	ids := make([]string, 0)
	seen := make(map[string]struct{})
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		// 允许 "uuid  名称" 格式,只取第一列
		id := strings.Fields(line)[0]
		if _, dup := seen[id]; dup {
			Warnf("跳过重复的配置文件ID (行 %d): %s", lineNum, id)
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("读取配置文件列表失败: %w", err)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("配置文件列表中没有有效的ID")
	}

	Infof("从文件加载了 %d 个配置文件ID", len(ids))
	return ids, nil
}

// ValidateURL 验证URL格式
func ValidateURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("URL格式无效: %w", err)
	}
	if parsed.Scheme == "" {
		return fmt.Errorf("URL缺少协议(http/https)")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("URL协议必须是http或https")
	}
	if parsed.Host == "" {
		return fmt.Errorf("URL缺少主机名")
	}
	return nil
}
