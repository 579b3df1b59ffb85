package browsing

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/RecoveryAshes/sitewalker/internal/models"
	"github.com/rs/zerolog"
	"golang.org/x/net/publicsuffix"
)

// DefaultLinkSelectors 默认选择器分组,按顺序查询: 导航栏,然后是磁贴/主视觉区域
var DefaultLinkSelectors = []string{
	"nav a, .globalnav a, .ac-gn-link",
	".tile a, .product-tile a, .hero a",
}

// DefaultBlockedPatterns 默认屏蔽的站内搜索功能
var DefaultBlockedPatterns = []string{"/search"}

// DefaultScope 由根URL推导链接范围: 可注册域名 + 路径前缀
// 例如 https://www.apple.com/jp/ → apple.com/jp/
func DefaultScope(rootURL string) (string, error) {
	u, err := url.Parse(rootURL)
	if err != nil {
		return "", fmt.Errorf("解析根URL失败: %w", err)
	}
	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("根URL缺少主机名: %s", rootURL)
	}

	domain := host
	if net.ParseIP(host) == nil {
		// localhost等没有公共后缀的主机名保持原样
		if d, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
			domain = d
		}
	}
	if u.Port() != "" {
		domain += ":" + u.Port()
	}

	path := u.Path
	if path == "" {
		path = "/"
	}
	return domain + path, nil
}

// Blocklist URL子串屏蔽列表(小写匹配)
type Blocklist struct {
	patterns []string
}

// NewBlocklist 创建屏蔽列表,空白模式被忽略
func NewBlocklist(patterns []string) *Blocklist {
	b := &Blocklist{}
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			b.patterns = append(b.patterns, p)
		}
	}
	return b
}

// Patterns 返回生效的屏蔽模式
func (b *Blocklist) Patterns() []string {
	return append([]string(nil), b.patterns...)
}

// Blocked URL是否被屏蔽,空URL总是被屏蔽
func (b *Blocklist) Blocked(rawURL string) bool {
	if rawURL == "" {
		return true
	}
	lower := strings.ToLower(rawURL)
	for _, p := range b.patterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// Filter 去除被屏蔽的链接,保留其余链接的原有顺序
func (b *Blocklist) Filter(links []models.Link) []models.Link {
	kept := make([]models.Link, 0, len(links))
	for _, l := range links {
		if !b.Blocked(l.URL) {
			kept = append(kept, l)
		}
	}
	return kept
}

// LinkCatalog 从已加载页面提取站内候选链接
type LinkCatalog struct {
	scope     string
	selectors []string
	blocklist *Blocklist
	retrier   *Retrier
	logger    zerolog.Logger
}

// NewLinkCatalog 创建链接目录
// selectors为空时使用DefaultLinkSelectors,blocklist为nil时使用DefaultBlockedPatterns
func NewLinkCatalog(scope string, selectors []string, blocklist *Blocklist, retrier *Retrier, logger zerolog.Logger) *LinkCatalog {
	if len(selectors) == 0 {
		selectors = DefaultLinkSelectors
	}
	if blocklist == nil {
		blocklist = NewBlocklist(DefaultBlockedPatterns)
	}
	return &LinkCatalog{
		scope:     scope,
		selectors: selectors,
		blocklist: blocklist,
		retrier:   retrier,
		logger:    logger,
	}
}

// Scope 链接范围
func (c *LinkCatalog) Scope() string { return c.scope }

// Extract 读取页面DOM并返回过滤后的链接
// 重试耗尽或收到停止信号时返回空列表
func (c *LinkCatalog) Extract(ctx context.Context, page Page) []models.Link {
	links, ok := Execute(ctx, c.retrier, "extract_links", func(ctx context.Context) ([]models.Link, error) {
		snap, err := page.Snapshot(ctx)
		if err != nil {
			return nil, err
		}
		return c.Collect(snap)
	})
	if !ok {
		c.logger.Warn().Msg("链接提取失败,本轮没有可用链接")
		return []models.Link{}
	}

	filtered := c.blocklist.Filter(links)
	c.logger.Info().Msgf("🔗 发现 %d 个链接,过滤后剩余 %d 个", len(links), len(filtered))
	return filtered
}

// Collect 从DOM快照中收集范围内链接并按首次出现顺序去重
func (c *LinkCatalog) Collect(snap Snapshot) ([]models.Link, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(snap.HTML))
	if err != nil {
		return nil, fmt.Errorf("解析页面HTML失败: %w", err)
	}

	base, err := url.Parse(snap.URL)
	if err != nil {
		return nil, fmt.Errorf("解析当前URL失败: %w", err)
	}
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if ref, err := url.Parse(strings.TrimSpace(href)); err == nil {
			base = base.ResolveReference(ref)
		}
	}

	current := trimSlash(snap.URL)
	seen := make(map[string]struct{})
	links := []models.Link{}

	for _, selector := range c.selectors {
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			href, ok := s.Attr("href")
			if !ok {
				return
			}
			abs, ok := resolveHref(base, href)
			if !ok || !c.inScope(abs) || trimSlash(abs) == current {
				return
			}
			if _, dup := seen[abs]; dup {
				return
			}
			seen[abs] = struct{}{}
			links = append(links, models.Link{
				URL:  abs,
				Text: strings.Join(strings.Fields(s.Text()), " "),
			})
		})
	}
	return links, nil
}

func (c *LinkCatalog) inScope(abs string) bool {
	if strings.Contains(abs, "#") {
		return false
	}
	return strings.Contains(abs, c.scope)
}

func resolveHref(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}
	return abs.String(), true
}

func trimSlash(s string) string {
	return strings.TrimRight(s, "/")
}
