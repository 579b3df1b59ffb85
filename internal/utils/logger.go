package utils

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	mainLogName  = "sitewalker.log"
	errorLogName = "sitewalker_error.log"
)

// Logger 全局日志器
var Logger zerolog.Logger

// logOutput 全局日志输出,运行日志器在此基础上追加输出
var logOutput io.Writer = io.Discard

// LogConfig 日志配置
type LogConfig struct {
	Level      string // 日志级别: trace, debug, info, warn, error, fatal, panic
	LogDir     string // 日志目录
	MaxSize    int    // 单个日志文件最大大小(MB)
	MaxBackups int    // 保留的旧日志文件数量
	MaxAge     int    // 保留天数
	Compress   bool   // 是否压缩旧日志
	Quiet      bool   // 不输出到控制台(进度条模式)
}

// DefaultLogConfig 默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:      "info",
		LogDir:     "logs",
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}
}

// InitLogger 初始化日志系统
// 控制台 + 主日志文件(全部级别) + 错误日志文件(error及以上),文件按大小轮转
func InitLogger(config LogConfig) error {
	if err := os.MkdirAll(config.LogDir, 0755); err != nil {
		return err
	}

	level, err := zerolog.ParseLevel(config.Level)
	if err != nil || config.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	writers := []io.Writer{
		config.rotatingFile(mainLogName),
		&levelWriter{out: config.rotatingFile(errorLogName), minLevel: zerolog.ErrorLevel},
	}
	if !config.Quiet {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	}
	// MultiLevelWriter 会把级别传给levelWriter.WriteLevel
	logOutput = zerolog.MultiLevelWriter(writers...)

	Logger = zerolog.New(logOutput).
		With().
		Timestamp().
		Logger()
	log.Logger = Logger

	Logger.Info().
		Str("level", level.String()).
		Str("log_dir", config.LogDir).
		Msg("日志系统初始化完成")

	return nil
}

func (c LogConfig) rotatingFile(name string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   filepath.Join(c.LogDir, name),
		MaxSize:    c.MaxSize,
		MaxBackups: c.MaxBackups,
		MaxAge:     c.MaxAge,
		Compress:   c.Compress,
	}
}

// NewRunLogger 为单次运行创建日志器
// sink非nil时日志行同时写入sink(供外部界面展示运行日志流)
func NewRunLogger(runID, profileID string, sink io.Writer) zerolog.Logger {
	out := logOutput
	if sink != nil {
		out = zerolog.MultiLevelWriter(logOutput, sink)
	}

	ctx := zerolog.New(out).With().Timestamp().Str("run_id", ShortID(runID))
	if profileID != "" {
		ctx = ctx.Str("profile", ShortID(profileID))
	}
	return ctx.Logger()
}

// ShortID 截取ID前8位用于日志
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// levelWriter 只写入不低于minLevel的日志,与MultiLevelWriter配合使用
type levelWriter struct {
	out      io.Writer
	minLevel zerolog.Level
}

// Write 不带级别的写入无法判断级别,直接丢弃
func (w *levelWriter) Write(p []byte) (int, error) {
	return len(p), nil
}

func (w *levelWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < w.minLevel {
		return len(p), nil
	}
	return w.out.Write(p)
}

// 命令行代码使用的快捷方法,组件内部应使用注入的zerolog.Logger

func Info(msg string)                   { Logger.Info().Msg(msg) }
func Infof(format string, args ...any)  { Logger.Info().Msgf(format, args...) }
func Warn(msg string)                   { Logger.Warn().Msg(msg) }
func Warnf(format string, args ...any)  { Logger.Warn().Msgf(format, args...) }
func Errorf(format string, args ...any) { Logger.Error().Msgf(format, args...) }
func Debugf(format string, args ...any) { Logger.Debug().Msgf(format, args...) }
