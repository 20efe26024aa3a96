package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger 包装 slog.Logger，统一 JSON 输出。
type Logger struct {
	*slog.Logger
}

// New 创建指定级别的日志器，输出到标准输出。
func New(level string) *Logger {
	return NewWithWriter(level, os.Stdout)
}

// NewWithWriter 创建输出到 w 的日志器，便于测试捕获。
func NewWithWriter(level string, w io.Writer) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	return &Logger{Logger: slog.New(slog.NewJSONHandler(w, opts))}
}

// Default 返回 info 级别日志器。
func Default() *Logger {
	return New("info")
}

// Discard 返回丢弃所有输出的日志器。
func Discard() *Logger {
	return NewWithWriter("error", io.Discard)
}

// Component 附加组件名。
func (l *Logger) Component(name string) *Logger {
	if l == nil {
		l = Default()
	}
	return &Logger{Logger: l.With("component", name)}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
