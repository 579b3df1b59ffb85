package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/RecoveryAshes/sitewalker/internal/browsing"
	"github.com/RecoveryAshes/sitewalker/internal/models"
	"github.com/RecoveryAshes/sitewalker/internal/sphere"
	"github.com/RecoveryAshes/sitewalker/internal/utils"
	"github.com/rs/zerolog"
)

// releaseTimeout 运行结束后断开连接并停止会话的最长时间
const releaseTimeout = 45 * time.Second

// ErrAlreadyStarted Run只能调用一次
var ErrAlreadyStarted = errors.New("运行已经开始")

// errInterrupted 会话操作因停止信号而放弃
var errInterrupted = errors.New("运行被停止")

// RunProgress 运行进度快照
type RunProgress struct {
	ID        string               `json:"id"`
	Status    models.RunStatus     `json:"status"`
	ProfileID string               `json:"profile_id,omitempty"`
	Cycle     models.CycleProgress `json:"cycle"`
}

// RunResult 运行结果
type RunResult struct {
	Report *models.RunReport
	Err    error
}

// Success 运行完成或被主动停止
func (r RunResult) Success() bool {
	return r.Err == nil
}

// RunSupervisor 单个浏览运行的协调者
//
// 持有一个配置文件预留、一个浏览器连接和一个CycleController。
// Pause/Resume/Stop 可在任意时刻调用且幂等,在循环检查点生效。
type RunSupervisor struct {
	id      string
	cfg     models.RunConfig
	env     *Environment
	control *browsing.Control
	stats   *models.RetryStats
	logger  zerolog.Logger
	onVisit func(models.CycleProgress)

	mu         sync.RWMutex
	started    bool
	status     models.RunStatus
	profileID  string
	controller *browsing.CycleController
}

// NewRunSupervisor 创建运行协调者
// sink非nil时运行日志同时写入sink
func NewRunSupervisor(cfg models.RunConfig, env *Environment, sink io.Writer) *RunSupervisor {
	id := models.NewRunID()
	clock := env.Clock
	if clock == nil {
		clock = browsing.RealClock
	}
	return &RunSupervisor{
		id:      id,
		cfg:     cfg,
		env:     env,
		control: browsing.NewControlWithClock(clock),
		stats:   models.NewRetryStats(),
		logger:  utils.NewRunLogger(id, "", sink),
		status:  models.RunStatusPending,
	}
}

// ID 运行ID
func (s *RunSupervisor) ID() string { return s.id }

// OnVisit 每次页面访问完成后的回调,需在Run之前设置
func (s *RunSupervisor) OnVisit(fn func(models.CycleProgress)) {
	s.onVisit = fn
}

// Pause 暂停运行(幂等)
func (s *RunSupervisor) Pause() {
	s.control.Pause()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == models.RunStatusRunning {
		s.status = models.RunStatusPaused
		s.logger.Info().Msg("⏸️ 运行已暂停")
	}
}

// Resume 恢复运行(幂等)
func (s *RunSupervisor) Resume() {
	s.control.Resume()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == models.RunStatusPaused {
		s.status = models.RunStatusRunning
		s.logger.Info().Msg("▶️ 运行已恢复")
	}
}

// Stop 停止运行(幂等),运行在最近的检查点退出
func (s *RunSupervisor) Stop() {
	if !s.control.Stopped() {
		s.logger.Info().Msg("⏹️ 收到停止信号")
	}
	s.control.Stop()
}

// Summary 重试统计摘要
func (s *RunSupervisor) Summary() models.RetrySummary {
	return s.stats.Summary()
}

// Progress 当前进度
func (s *RunSupervisor) Progress() RunProgress {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p := RunProgress{ID: s.id, Status: s.status, ProfileID: s.profileID}
	if s.controller != nil {
		p.Cycle = s.controller.State()
	}
	return p
}

// Run 执行运行: 预留配置文件 → 启动/附着会话 → 双层循环 → 汇总
// 任何路径上都会释放配置文件和浏览器连接,并且总会返回统计报告
func (s *RunSupervisor) Run(ctx context.Context) RunResult {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return RunResult{Err: ErrAlreadyStarted}
	}
	s.started = true
	s.status = models.RunStatusStarting
	s.mu.Unlock()

	report := &models.RunReport{
		ID:        s.id,
		Config:    s.cfg,
		StartedAt: time.Now(),
	}
	err := s.run(ctx, report)

	status := models.RunStatusCompleted
	switch {
	case err == nil && s.control.ShouldStop(ctx):
		status = models.RunStatusStopped
	case err != nil && (errors.Is(err, errInterrupted) || errors.Is(err, context.Canceled)):
		// 启动阶段被停止不算失败
		status = models.RunStatusStopped
		s.logger.Info().Err(err).Msg("运行在启动阶段被停止")
		err = nil
	case err != nil:
		status = models.RunStatusFailed
		report.Error = err.Error()
		s.logger.Error().Err(err).Msg("❌ 运行失败")
	}
	s.setStatus(status)

	report.Status = status
	report.ProfileID = s.currentProfile()
	report.FinishedAt = time.Now()
	report.Duration = report.FinishedAt.Sub(report.StartedAt).Seconds()
	report.Progress = s.Progress().Cycle
	report.Stats = s.stats.Summary()

	s.logSummary(report)
	return RunResult{Report: report, Err: err}
}

func (s *RunSupervisor) run(ctx context.Context, report *models.RunReport) error {
	if err := s.cfg.Validate(); err != nil {
		return fmt.Errorf("运行参数无效: %w", err)
	}

	retrier := browsing.NewRetrier(s.cfg.MaxRetries, s.cfg.RetryDelay, s.control, s.stats, s.logger)
	broker := sphere.NewBroker(s.env.Client, s.env.Prober, s.env.Dialer, retrier, sphere.BrokerConfig{
		Headless:   s.env.Session.Headless,
		StopOnExit: s.env.Session.StopOnExit,
	}, s.logger)

	profileID, session, err := s.reserve(ctx, broker)
	if err != nil {
		return err
	}
	defer func() {
		s.env.Pool.Release(profileID)
		s.logger.Debug().Str("profile", utils.ShortID(profileID)).Msg("配置文件已释放")
	}()

	s.mu.Lock()
	s.profileID = profileID
	s.mu.Unlock()
	logger := s.logger.With().Str("profile", utils.ShortID(profileID)).Logger()

	debugPort := s.env.Session.DebugPort + max(0, s.env.Pool.Slot(profileID))
	if session == nil {
		session, err = broker.StartSession(ctx, profileID, debugPort)
		if err != nil {
			return s.interrupted(ctx, err)
		}
	}
	report.SessionName = session.Name

	conn, err := broker.Attach(ctx, session, debugPort)
	if err != nil {
		s.abandonSession(ctx, broker, session, logger)
		return s.interrupted(ctx, err)
	}
	defer func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		if err := broker.Release(rctx, conn); err != nil {
			logger.Warn().Err(err).Msg("释放会话失败")
		}
	}()

	retrier = browsing.NewRetrier(s.cfg.MaxRetries, s.cfg.RetryDelay, s.control, s.stats, logger)
	blocklist := browsing.NewBlocklist(s.env.Site.BlockedPatterns)
	catalog := browsing.NewLinkCatalog(s.env.Site.Scope, s.env.Site.Selectors, blocklist, retrier, logger)
	visitor := browsing.NewPacedVisitor(retrier, nil, logger)
	if s.env.Scroll != nil {
		visitor.WithScrollProfile(*s.env.Scroll)
	}
	controller := browsing.NewCycleController(browsing.CycleConfig{
		RootURL:             s.env.Site.RootURL,
		MajorCycles:         s.cfg.MajorCycles,
		MinorCyclesPerMajor: s.cfg.MinorCyclesPerMajor,
		PerPageDuration:     s.cfg.PerPageDuration,
	}, catalog, visitor, nil, logger)
	if s.onVisit != nil {
		controller.OnVisit(s.onVisit)
	}

	s.mu.Lock()
	s.controller = controller
	if s.status == models.RunStatusStarting {
		s.status = models.RunStatusRunning
	}
	s.mu.Unlock()
	// Pause在启动阶段被调用时,状态仍需反映暂停
	if s.control.Paused() {
		s.setStatus(models.RunStatusPaused)
	}

	logger.Info().
		Str("endpoint", conn.Endpoint).
		Str("scope", catalog.Scope()).
		Strs("blocked", blocklist.Patterns()).
		Msg("🚀 开始浏览")
	controller.Run(ctx, conn.Page)
	return nil
}

// interrupted 在停止信号下失败的会话操作标记为中断
// 与停止无关的失败(例如没有空闲配置文件)保持原样
func (s *RunSupervisor) interrupted(ctx context.Context, err error) error {
	if s.control.ShouldStop(ctx) {
		return fmt.Errorf("%w: %w", errInterrupted, err)
	}
	return err
}

// abandonSession 连接失败时停止本进程启动的会话
func (s *RunSupervisor) abandonSession(ctx context.Context, broker *sphere.Broker, session *models.BrowserSession, logger zerolog.Logger) {
	if !session.Owned || !s.env.Session.StopOnExit {
		return
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := broker.StopSession(rctx, session.ProfileID); err != nil {
		logger.Warn().Err(err).Msg("停止未能连接的会话失败")
		return
	}
	logger.Info().Str("session", session.ShortID()).Msg("已停止未能连接的会话")
}

// reserve 预留配置文件
// 附着模式下同时返回对应的运行中会话,否则session为nil
func (s *RunSupervisor) reserve(ctx context.Context, broker *sphere.Broker) (string, *models.BrowserSession, error) {
	pool := s.env.Pool

	if s.cfg.UseRunningSession {
		running, err := broker.RunningSessions(ctx)
		if err != nil {
			return "", nil, s.interrupted(ctx, err)
		}
		candidates := make([]string, 0, len(running))
		for _, rs := range running {
			if s.cfg.ProfileID == "" || rs.ProfileID == s.cfg.ProfileID {
				candidates = append(candidates, rs.ProfileID)
			}
		}
		id, ok := pool.ReserveFrom(candidates)
		if !ok {
			return "", nil, fmt.Errorf("%w (运行中的会话: %d)", ErrNoFreeProfile, len(running))
		}
		for i := range running {
			if running[i].ProfileID == id {
				session := running[i]
				session.Owned = false
				s.logger.Info().Msgf("使用运行中的会话: %s (%s)", session.Name, session.ShortID())
				return id, &session, nil
			}
		}
	}

	if s.cfg.ProfileID != "" {
		if err := pool.ReserveID(s.cfg.ProfileID); err != nil {
			return "", nil, err
		}
		return s.cfg.ProfileID, nil, nil
	}

	id, ok := pool.Reserve()
	if !ok {
		return "", nil, ErrNoFreeProfile
	}
	return id, nil, nil
}

func (s *RunSupervisor) setStatus(status models.RunStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

func (s *RunSupervisor) currentProfile() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profileID
}

func (s *RunSupervisor) logSummary(report *models.RunReport) {
	stats := report.Stats
	s.logger.Info().
		Str("status", string(report.Status)).
		Int("pages_visited", report.Progress.PagesVisited).
		Int("skipped_majors", report.Progress.SkippedMajors).
		Int64("total_retries", stats.TotalRetries).
		Int64("succeeded_retries", stats.SucceededRetries).
		Int64("permanent_failures", stats.PermanentFailures).
		Msgf("📊 运行结束,重试成功率: %.1f%%", stats.SuccessRate())
}
