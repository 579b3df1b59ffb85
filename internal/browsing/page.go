package browsing

import "context"

// ScrollMetrics 页面滚动信息
type ScrollMetrics struct {
	ScrollHeight int `json:"scrollHeight"`
	ClientHeight int `json:"clientHeight"`
	ScrollTop    int `json:"scrollTop"`
}

// MaxScroll 可滚动的最大位置
func (m ScrollMetrics) MaxScroll() int {
	return max(0, m.ScrollHeight-m.ClientHeight)
}

// Snapshot 当前页面的DOM快照
type Snapshot struct {
	URL  string
	HTML string
}

// Page 浏览器标签页的最小控制面
// 每个方法都是一次可能失败的远程调用,调用方通过Retrier包装
type Page interface {
	// Navigate 打开url并等待DOM就绪(有界超时)
	Navigate(ctx context.Context, url string) error
	// ScrollMetrics 读取 scrollHeight/clientHeight/scrollTop
	ScrollMetrics(ctx context.Context) (ScrollMetrics, error)
	// ScrollTo 平滑滚动到指定位置
	ScrollTo(ctx context.Context, top int) error
	// Snapshot 读取当前URL和序列化后的DOM
	Snapshot(ctx context.Context) (Snapshot, error)
}
