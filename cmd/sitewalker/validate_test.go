package main

import (
	"testing"

	"github.com/RecoveryAshes/sitewalker/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultConfig(t *testing.T) *core.Config {
	t.Helper()
	cfg, err := core.LoadConfig("")
	require.NoError(t, err)
	return cfg
}

func TestValidateFlags(t *testing.T) {
	tests := []struct {
		name      string
		threads   int
		profileID string
		mutate    func(*core.Config)
		wantErr   bool
	}{
		{name: "默认配置", threads: 1},
		{name: "多线程", threads: 4},
		{name: "线程为0", threads: 0, wantErr: true},
		{name: "超过max_threads", threads: 9, wantErr: true},
		{name: "指定配置文件", threads: 1, profileID: "2c5a1b7e-0d8f-4c31-9f0e-7d1b2a3c4e5f"},
		{name: "指定配置文件且多线程", threads: 2, profileID: "abc", wantErr: true},
		{name: "配置文件ID含空格", threads: 1, profileID: "a b", wantErr: true},
		{
			name:    "根URL无效",
			threads: 1,
			mutate:  func(c *core.Config) { c.Site.RootURL = "ftp://example.com" },
			wantErr: true,
		},
		{
			name:    "端口越界",
			threads: 2,
			mutate:  func(c *core.Config) { c.Session.DebugPort = 65530 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig(t)
			if tt.mutate != nil {
				tt.mutate(cfg)
			}
			err := ValidateFlags(cfg, tt.threads, tt.profileID)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
