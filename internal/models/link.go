package models

// Link 目录中的候选链接
// URL为绝对地址且位于目标站点范围内,同一快照内以URL唯一
type Link struct {
	URL  string `json:"url"`  // 绝对URL
	Text string `json:"text"` // 链接文字(已去除多余空白)
}

// LinkURLs 提取链接URL列表(用于日志与断言)
func LinkURLs(links []Link) []string {
	urls := make([]string, 0, len(links))
	for _, l := range links {
		urls = append(urls, l.URL)
	}
	return urls
}
