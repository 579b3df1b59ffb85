package core

// 构建时通过 -ldflags "-X github.com/RecoveryAshes/sitewalker/internal/core.Version=..." 注入
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
