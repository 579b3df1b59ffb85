// Package browsing 实现单个浏览运行的核心: 重试执行、链接目录、定时页面访问和双层循环
//
// # 核心组件
//
//   - Control: 运行级暂停/停止信号,所有等待都被切分为不超过 SliceInterval 的分片
//   - Retrier / Execute: 有界重试,统计重试次数、重试成功次数和永久失败次数
//   - LinkCatalog / Blocklist: 用goquery从DOM快照中提取站内链接并过滤
//   - PacedVisitor: 导航 → 模拟阅读滚动 → 空闲补足,保证每页耗时固定
//   - CycleController: 大循环刷新链接目录,小循环随机访问页面
//
// 浏览器通过 Page 接口访问,RodPage 是基于go-rod的实现。
//
//	control := browsing.NewControl()
//	retrier := browsing.NewRetrier(3, 5*time.Second, control, nil, logger)
//	catalog := browsing.NewLinkCatalog(scope, nil, nil, retrier, logger)
//	visitor := browsing.NewPacedVisitor(retrier, nil, logger)
//	result := browsing.NewCycleController(cfg, catalog, visitor, nil, logger).Run(ctx, page)
package browsing
