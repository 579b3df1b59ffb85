package core

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/RecoveryAshes/sitewalker/internal/models"
	"github.com/RecoveryAshes/sitewalker/internal/utils"
	"golang.org/x/sync/errgroup"
)

// FleetConfig 多个并发运行的配置
type FleetConfig struct {
	Threads int
	Run     models.RunConfig
	// ProfilesFile 配置文件ID列表,为空时使用控制API返回的全部会话
	ProfilesFile string
	// ContinueOnError 为false时任一运行失败会停止其余运行
	ContinueOnError bool
	// Guard 为nil时不按系统资源限制并发
	Guard *ResourceGuard
}

// FleetSummary 并发运行摘要
type FleetSummary struct {
	TotalRuns     int
	Completed     int
	Stopped       int
	Failed        int
	Stats         models.RetrySummary
	TotalDuration float64
	Reports       []*models.RunReport
}

// Fleet 并发执行多个浏览运行,每个运行独占一个配置文件
type Fleet struct {
	env  *Environment
	cfg  FleetConfig
	sink io.Writer

	onVisit func(runID string, p models.CycleProgress)

	mu      sync.Mutex
	runs    []*RunSupervisor
	stopped bool
}

// NewFleet 创建并发运行器
func NewFleet(env *Environment, cfg FleetConfig, sink io.Writer) *Fleet {
	if cfg.Threads < 1 {
		cfg.Threads = 1
	}
	return &Fleet{env: env, cfg: cfg, sink: sink}
}

// OnVisit 设置页面访问回调,需在Run之前设置
func (f *Fleet) OnVisit(fn func(runID string, p models.CycleProgress)) {
	f.onVisit = fn
}

// Prepare 检查控制API并刷新配置文件池
// 控制API不可达时不会预留任何配置文件
func (f *Fleet) Prepare(ctx context.Context) error {
	if err := f.env.Client.CheckConnection(ctx); err != nil {
		return err
	}

	var ids []string
	if f.cfg.ProfilesFile != "" {
		loaded, err := utils.ReadProfileIDsFromFile(f.cfg.ProfilesFile)
		if err != nil {
			return err
		}
		ids = loaded
	} else {
		sessions, err := f.env.Client.ListSessions(ctx)
		if err != nil {
			return fmt.Errorf("获取会话列表失败: %w", err)
		}
		for _, s := range sessions {
			ids = append(ids, s.ProfileID)
		}
	}

	f.env.Pool.Refresh(ids)
	if f.env.Pool.Size() == 0 {
		return fmt.Errorf("%w: 控制API中没有可用的配置文件", ErrNoFreeProfile)
	}
	utils.Infof("配置文件池: %d 个 (空闲 %d)", f.env.Pool.Size(), f.env.Pool.Available())
	return nil
}

// Threads 计算实际并发数
func (f *Fleet) Threads() int {
	threads := f.cfg.Threads
	if f.cfg.Run.ProfileID != "" {
		threads = 1
	}
	if f.cfg.Guard != nil {
		limited, reason := f.cfg.Guard.Limit(threads)
		if reason != "" && limited < threads {
			utils.Warnf("并发数从 %d 降低到 %d: %s", threads, limited, reason)
		}
		threads = limited
	}
	if avail := f.env.Pool.Available(); avail > 0 && threads > avail {
		utils.Warnf("空闲配置文件只有 %d 个,并发数降低到 %d", avail, avail)
		threads = avail
	}
	return max(1, threads)
}

// Run 执行全部运行并汇总
// 返回的错误只表示准备阶段失败,或ContinueOnError为false时的首个运行失败
func (f *Fleet) Run(ctx context.Context) (*FleetSummary, error) {
	if err := f.Prepare(ctx); err != nil {
		return nil, err
	}

	threads := f.Threads()
	utils.Infof("🚀 开始浏览: %d 个并发运行", threads)

	startTime := time.Now()
	reports := make([]*models.RunReport, threads)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(threads)
	for i := 0; i < threads; i++ {
		i := i
		sup := f.register(NewRunSupervisor(f.cfg.Run, f.env, f.sink))
		if f.onVisit != nil {
			id := sup.ID()
			sup.OnVisit(func(p models.CycleProgress) { f.onVisit(id, p) })
		}

		g.Go(func() error {
			res := sup.Run(gctx)
			reports[i] = res.Report
			if !res.Success() && !f.cfg.ContinueOnError {
				utils.Warn("运行失败,停止其余运行 (--continue-on-error=false)")
				return fmt.Errorf("运行 %s 失败: %w", utils.ShortID(sup.ID()), res.Err)
			}
			return nil
		})
	}
	err := g.Wait()

	summary := &FleetSummary{
		TotalRuns:     threads,
		TotalDuration: time.Since(startTime).Seconds(),
	}
	for _, r := range reports {
		if r == nil {
			continue
		}
		summary.Reports = append(summary.Reports, r)
		summary.Stats = summary.Stats.Add(r.Stats)
		switch r.Status {
		case models.RunStatusCompleted:
			summary.Completed++
		case models.RunStatusStopped:
			summary.Stopped++
		default:
			summary.Failed++
		}
	}

	f.printSummary(summary)
	return summary, err
}

func (f *Fleet) register(sup *RunSupervisor) *RunSupervisor {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, sup)
	if f.stopped {
		sup.Stop()
	}
	return sup
}

func (f *Fleet) each(fn func(*RunSupervisor)) {
	f.mu.Lock()
	runs := append([]*RunSupervisor(nil), f.runs...)
	f.mu.Unlock()
	for _, r := range runs {
		fn(r)
	}
}

// Stop 停止全部运行,之后注册的运行也会立即停止
func (f *Fleet) Stop() {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
	f.each((*RunSupervisor).Stop)
}

// Pause 暂停全部未结束的运行
func (f *Fleet) Pause() { f.eachActive((*RunSupervisor).Pause) }

// Resume 恢复全部未结束的运行
func (f *Fleet) Resume() { f.eachActive((*RunSupervisor).Resume) }

func (f *Fleet) eachActive(fn func(*RunSupervisor)) {
	f.each(func(r *RunSupervisor) {
		if !r.Progress().Status.Terminal() {
			fn(r)
		}
	})
}

// Progress 全部运行的进度
func (f *Fleet) Progress() []RunProgress {
	var progress []RunProgress
	f.each(func(r *RunSupervisor) { progress = append(progress, r.Progress()) })
	return progress
}

// printSummary 打印运行摘要
func (f *Fleet) printSummary(summary *FleetSummary) {
	utils.Info("==================================================")
	utils.Info("📊 浏览运行摘要")
	utils.Info("==================================================")
	utils.Infof("总运行数: %d", summary.TotalRuns)
	utils.Infof("✅ 完成: %d", summary.Completed)
	utils.Infof("⏹️  停止: %d", summary.Stopped)
	utils.Infof("❌ 失败: %d", summary.Failed)
	utils.Infof("⏱️  总耗时: %.2f秒", summary.TotalDuration)
	utils.Info("==================================================")
	utils.PrintRetrySummary(summary.Stats)

	if summary.Failed > 0 {
		utils.Warn("失败的运行:")
		for _, r := range summary.Reports {
			if r.Status == models.RunStatusFailed {
				utils.Warnf("  - %s [%s]: %s", utils.ShortID(r.ID), utils.ShortID(r.ProfileID), r.Error)
			}
		}
	}
}
