package logger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LogManager 日志文件管理器：创建、轮转并清理 log_*.txt
type LogManager struct {
	BaseDir string
	maxSize int64 // 最大文件大小（字节）
	maxAge  int   // 最大保留天数
}

// NewLogManager 创建日志管理器
func NewLogManager(baseDir string) *LogManager {
	return &LogManager{
		BaseDir: baseDir,
		maxSize: 100 * 1024 * 1024, // 100MB
		maxAge:  7,                  // 7天
	}
}

// CreateLogFile 生成新的日志文件路径，例如 log_20260110_143015.txt
func (m *LogManager) CreateLogFile() (string, error) {
	if err := os.MkdirAll(m.BaseDir, 0o755); err != nil {
		return "", fmt.Errorf("创建日志目录失败: %w", err)
	}

	timestamp := time.Now().Format("20060102_150405")
	return filepath.Join(m.BaseDir, fmt.Sprintf("log_%s.txt", timestamp)), nil
}

// CleanupOldLogs 清理过期日志文件，当前正在写入的文件除外
func (m *LogManager) CleanupOldLogs() error {
	entries, err := os.ReadDir(m.BaseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // 目录不存在，无需清理
		}
		return fmt.Errorf("读取日志目录失败: %w", err)
	}

	cutoff := time.Now().AddDate(0, 0, -m.maxAge)
	active := GetLogger().FilePath()
	cleanedCount := 0

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), "log_") {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		path := filepath.Join(m.BaseDir, entry.Name())
		if path == active || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			Debug("删除过期日志失败", "file", entry.Name(), "error", err)
			continue
		}
		cleanedCount++
		Debug("删除过期日志", "file", entry.Name(), "age_days", int(time.Since(info.ModTime()).Hours()/24))
	}

	if cleanedCount > 0 {
		Info("清理过期日志完成", "count", cleanedCount)
	}

	return nil
}

// CheckRotation 检查是否需要轮转（文件过大）
func (m *LogManager) CheckRotation(currentPath string) (needRotate bool, newPath string, err error) {
	info, err := os.Stat(currentPath)
	if err != nil {
		return false, "", err
	}

	if info.Size() > m.maxSize {
		newPath, err := m.CreateLogFile()
		if err != nil {
			return false, "", err
		}
		return true, newPath, nil
	}

	return false, "", nil
}

// Run 启动时清理一次，之后按 interval 清理过期日志并在文件过大时轮转
func (m *LogManager) Run(ctx context.Context, interval time.Duration) {
	m.tick()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	Info("[日志清理] 定时清理任务已启动", "interval", interval.String(), "max_age_days", m.maxAge)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick()
		}
	}
}

func (m *LogManager) tick() {
	if err := m.CleanupOldLogs(); err != nil {
		Error("[日志清理] 清理失败", "error", err)
	}

	current := GetLogger().FilePath()
	if current == "" {
		return
	}
	rotate, next, err := m.CheckRotation(current)
	if err != nil {
		Warn("[日志清理] 检查日志轮转失败", "error", err)
		return
	}
	if rotate {
		if err := EnableFile(next); err != nil {
			Error("[日志清理] 日志轮转失败", "error", err)
		}
	}
}
