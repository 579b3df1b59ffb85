package browsing

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/RecoveryAshes/sitewalker/internal/models"
	"github.com/rs/zerolog"
)

// CycleConfig 双层循环参数
type CycleConfig struct {
	RootURL             string
	MajorCycles         int
	MinorCyclesPerMajor int
	PerPageDuration     time.Duration
}

// CycleResult 循环结束时的结果
type CycleResult struct {
	// Completed 所有大循环都已执行(包括被跳过的)
	Completed bool
	// Stopped 因停止信号提前结束
	Stopped       bool
	PagesVisited  int
	SkippedMajors int
}

// CycleController 大循环 × 小循环的访问状态机
//
// 每个大循环: 回到根页面,清空访问记录,重新提取链接目录;目录为空则跳过该大循环。
// 每个小循环: 检查暂停/停止,随机选择一个链接(没有则访问根页面)并按固定时长浏览。
type CycleController struct {
	cfg     CycleConfig
	catalog *LinkCatalog
	visitor *PacedVisitor
	retrier *Retrier
	control *Control
	rng     *rand.Rand
	logger  zerolog.Logger

	onVisit func(models.CycleProgress)

	mu    sync.RWMutex
	state *models.CycleState
}

// NewCycleController 创建循环控制器
func NewCycleController(cfg CycleConfig, catalog *LinkCatalog, visitor *PacedVisitor, rng *rand.Rand, logger zerolog.Logger) *CycleController {
	if cfg.MinorCyclesPerMajor <= 0 {
		cfg.MinorCyclesPerMajor = models.DefaultMinorCyclesPerMajor
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &CycleController{
		cfg:     cfg,
		catalog: catalog,
		visitor: visitor,
		retrier: visitor.retrier,
		control: visitor.control,
		rng:     rng,
		logger:  logger,
		state:   models.NewCycleState(cfg.MajorCycles, cfg.MinorCyclesPerMajor),
	}
}

// OnVisit 设置每次页面访问完成后的回调(用于进度条)
func (c *CycleController) OnVisit(fn func(models.CycleProgress)) {
	c.onVisit = fn
}

// State 返回当前循环状态的只读副本
func (c *CycleController) State() models.CycleProgress {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Progress()
}

// Run 执行全部循环,直到完成或收到停止信号
func (c *CycleController) Run(ctx context.Context, page Page) CycleResult {
	total := c.cfg.MajorCycles * c.cfg.MinorCyclesPerMajor
	c.logger.Info().
		Int("major_cycles", c.cfg.MajorCycles).
		Int("minor_cycles", c.cfg.MinorCyclesPerMajor).
		Dur("per_page", c.cfg.PerPageDuration).
		Msgf("开始双层循环浏览,总页面访问次数: %d", total)

	for major := 0; major < c.cfg.MajorCycles; major++ {
		if !c.control.Checkpoint(ctx) {
			return c.result(false)
		}

		c.update(func(s *models.CycleState) {
			s.MajorIndex = major
			s.MinorIndex = 0
			s.ResetVisited()
		})
		c.logger.Info().Msgf("=== 大循环 %d/%d 开始 ===", major+1, c.cfg.MajorCycles)

		links := c.refresh(ctx, page)
		if c.control.ShouldStop(ctx) {
			return c.result(false)
		}
		if len(links) == 0 {
			c.update(func(s *models.CycleState) { s.SkippedMajors++ })
			c.logger.Error().Msgf("无法获取可用链接,跳过大循环 %d", major+1)
			continue
		}

		for minor := 0; minor < c.cfg.MinorCyclesPerMajor; minor++ {
			if !c.control.Checkpoint(ctx) {
				return c.result(false)
			}

			target := models.Link{URL: c.cfg.RootURL}
			if len(links) > 0 {
				target = links[c.rng.Intn(len(links))]
			}
			c.update(func(s *models.CycleState) {
				s.MinorIndex = minor
				s.CurrentURL = target.URL
			})

			pageNumber := major*c.cfg.MinorCyclesPerMajor + minor + 1
			c.logger.Info().Msgf("--- 大循环 %d, 小循环 %d/%d (总第 %d/%d 页) ---",
				major+1, minor+1, c.cfg.MinorCyclesPerMajor, pageNumber, total)
			c.logger.Info().Msgf("🎲 随机选择链接: %s (%s)", target.Text, target.URL)

			elapsed := c.visitor.Visit(ctx, page, target.URL, c.cfg.PerPageDuration)
			c.update(func(s *models.CycleState) { s.MarkVisited(target.URL) })
			c.logger.Info().Msgf("页面浏览完成,实际耗时: %.2f秒", elapsed.Seconds())

			if c.onVisit != nil {
				c.onVisit(c.State())
			}
			if c.control.ShouldStop(ctx) {
				return c.result(false)
			}
		}
		stats := c.retrier.Stats().Summary()
		c.logger.Info().
			Int64("retries", stats.TotalRetries).
			Int64("permanent_failures", stats.PermanentFailures).
			Msgf("=== 大循环 %d/%d 完成 ===", major+1, c.cfg.MajorCycles)
	}

	c.logger.Info().Msg("🎉 所有浏览循环完成")
	return c.result(true)
}

// refresh 回到根页面并重新提取链接
func (c *CycleController) refresh(ctx context.Context, page Page) []models.Link {
	c.logger.Info().Msg("刷新链接列表")
	_, ok := Execute(ctx, c.retrier, "navigate_root", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, page.Navigate(ctx, c.cfg.RootURL)
	})
	if !ok {
		c.logger.Error().Str("url", c.cfg.RootURL).Msg("无法返回主页,链接刷新失败")
		return nil
	}
	return c.catalog.Extract(ctx, page)
}

func (c *CycleController) update(fn func(s *models.CycleState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c.state)
}

func (c *CycleController) result(completed bool) CycleResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !completed {
		c.logger.Info().Msg("收到停止信号,结束循环")
	}
	return CycleResult{
		Completed:     completed,
		Stopped:       !completed,
		PagesVisited:  c.state.PagesVisited,
		SkippedMajors: c.state.SkippedMajors,
	}
}
