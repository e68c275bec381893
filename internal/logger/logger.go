package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Logger 封装slog，支持日志级别调整与文件输出
type Logger struct {
	*slog.Logger
	level   *slog.LevelVar
	logFile *os.File
	mu      sync.RWMutex
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// Init 初始化全局logger（控制台输出，INFO级别）
func Init() *Logger {
	once.Do(func() {
		level := new(slog.LevelVar)
		level.Set(slog.LevelInfo)
		defaultLogger = &Logger{
			Logger: slog.New(newTextHandler(os.Stdout, level)),
			level:  level,
		}
	})
	return defaultLogger
}

// GetLogger 获取全局logger实例
func GetLogger() *Logger {
	if defaultLogger == nil {
		return Init()
	}
	return defaultLogger
}

// newTextHandler 创建自定义文本handler（中文友好的格式）
func newTextHandler(w io.Writer, level slog.Leveler) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// 自定义时间格式
			if a.Key == slog.TimeKey {
				t := a.Value.Time()
				return slog.String("time", t.Format("2006-01-02 15:04:05"))
			}
			// 自定义级别显示
			if a.Key == slog.LevelKey {
				level := a.Value.Any().(slog.Level)
				return slog.String("level", levelName(level))
			}
			return a
		},
	})
}

func levelName(level slog.Level) string {
	switch {
	case level < slog.LevelInfo:
		return "DEBUG"
	case level < slog.LevelWarn:
		return "INFO "
	case level < slog.LevelError:
		return "WARN "
	default:
		return "ERROR"
	}
}

// ParseLevel 解析 LOG_LEVEL，无法识别时返回 INFO
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetLevel 调整日志级别
func (l *Logger) SetLevel(level slog.Level) {
	l.level.Set(level)
}

// EnableFileLog 同时输出到控制台和指定文件
func (l *Logger) EnableFileLog(filePath string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	// 如果已经有文件打开，先关闭
	if l.logFile != nil {
		l.logFile.Close()
	}

	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("创建日志文件失败: %w", err)
	}
	l.logFile = f

	multiWriter := io.MultiWriter(os.Stdout, f)
	l.Logger = slog.New(newTextHandler(multiWriter, l.level))

	l.Info("文件日志已开启", "file", filePath)
	return nil
}

// Close 关闭日志文件并恢复仅控制台输出
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.logFile == nil {
		return
	}
	l.logFile.Close()
	l.logFile = nil
	l.Logger = slog.New(newTextHandler(os.Stdout, l.level))
}

// FilePath 当前日志文件路径，未开启时为空
func (l *Logger) FilePath() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.logFile != nil {
		return l.logFile.Name()
	}
	return ""
}

func (l *Logger) current() *slog.Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.Logger
}

// sanitizeArgs 脱敏敏感信息
func sanitizeArgs(args []any) []any {
	if len(args) == 0 {
		return args
	}

	result := make([]any, len(args))
	copy(result, args)

	for i := 0; i < len(result)-1; i += 2 {
		if keyStr, ok := result[i].(string); ok {
			keyLower := strings.ToLower(keyStr)
			if strings.Contains(keyLower, "password") ||
				strings.Contains(keyLower, "token") ||
				strings.Contains(keyLower, "secret") ||
				strings.Contains(keyLower, "key") && !strings.Contains(keyLower, "key=") {
				result[i+1] = "***"
			}
		}
	}

	return result
}

// 全局便捷方法
func Info(msg string, args ...any) {
	GetLogger().current().Info(msg, sanitizeArgs(args)...)
}

func Warn(msg string, args ...any) {
	GetLogger().current().Warn(msg, sanitizeArgs(args)...)
}

func Error(msg string, args ...any) {
	GetLogger().current().Error(msg, sanitizeArgs(args)...)
}

func Debug(msg string, args ...any) {
	GetLogger().current().Debug(msg, sanitizeArgs(args)...)
}

// SetLevel 全局调整日志级别
func SetLevel(level slog.Level) {
	GetLogger().SetLevel(level)
}

// EnableFile 全局开启文件日志
func EnableFile(filePath string) error {
	return GetLogger().EnableFileLog(filePath)
}

// Close 全局关闭文件日志
func Close() {
	GetLogger().Close()
}
