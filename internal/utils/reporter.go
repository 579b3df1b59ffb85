package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/RecoveryAshes/sitewalker/internal/models"
	"github.com/schollz/progressbar/v3"
)

// Reporter 运行报告生成器
type Reporter struct {
	outputDir string
}

// NewReporter 创建报告生成器,报告写入 <outputDir>/reports
func NewReporter(outputDir string) *Reporter {
	return &Reporter{outputDir: outputDir}
}

// ReportsDir 报告目录
func (r *Reporter) ReportsDir() string {
	return filepath.Join(r.outputDir, "reports")
}

// WriteRunReport 保存单次运行报告,返回文件路径
func (r *Reporter) WriteRunReport(report *models.RunReport) (string, error) {
	name := fmt.Sprintf("run_%s_%s.json", report.StartedAt.Format("20060102_150405"), ShortID(report.ID))
	data, err := report.ToJSON()
	if err != nil {
		return "", fmt.Errorf("序列化JSON失败: %w", err)
	}
	return r.writeReport(name, data)
}

// WriteFleetReport 保存多运行汇总报告
func (r *Reporter) WriteFleetReport(name string, reports []*models.RunReport) (string, error) {
	summary := models.RetrySummary{}
	completed := 0
	for _, rep := range reports {
		summary = summary.Add(rep.Stats)
		if rep.Status == models.RunStatusCompleted || rep.Status == models.RunStatusStopped {
			completed++
		}
	}

	data := struct {
		Runs      []*models.RunReport `json:"runs"`
		Succeeded int                 `json:"succeeded"`
		Failed    int                 `json:"failed"`
		Stats     models.RetrySummary `json:"stats"`
	}{
		Runs:      reports,
		Succeeded: completed,
		Failed:    len(reports) - completed,
		Stats:     summary,
	}
	return r.saveJSONReport(name, data)
}

func (r *Reporter) saveJSONReport(filename string, data interface{}) (string, error) {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", fmt.Errorf("序列化JSON失败: %w", err)
	}
	return r.writeReport(filename, jsonData)
}

func (r *Reporter) writeReport(filename string, jsonData []byte) (string, error) {
	dir := r.ReportsDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("创建报告目录失败: %w", err)
	}

	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		return "", fmt.Errorf("写入报告文件失败: %w", err)
	}

	Debugf("保存报告: %s", path)
	return path, nil
}

// PrintRetrySummary 输出重试统计报告
func PrintRetrySummary(summary models.RetrySummary) {
	Info("==================================================")
	Info("📊 重试机制统计报告")
	Info("==================================================")
	Infof("总重试次数: %d", summary.TotalRetries)
	Infof("成功重试次数: %d", summary.SucceededRetries)
	Infof("失败操作次数: %d", summary.PermanentFailures)
	if summary.TotalRetries > 0 {
		Infof("重试成功率: %.1f%%", summary.SuccessRate())
	} else {
		Info("重试成功率: 100% (无需重试)")
	}
	Info("==================================================")
}

// NewProgressBar 创建页面访问进度条
func NewProgressBar(max int, description string, out io.Writer) *progressbar.ProgressBar {
	if out == nil {
		out = os.Stderr
	}
	return progressbar.NewOptions(max,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(out) }),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}
