package coordinator

import (
	"log"
)

// StdLogger 以 [INFO]/[WARN]/[ERROR] 前缀写入标准库日志器；L 为空时使用 log 包默认实例。
type StdLogger struct {
	L *log.Logger
}

// NewStdLogger 包装给定的 *log.Logger。
func NewStdLogger(l *log.Logger) StdLogger {
	return StdLogger{L: l}
}

func (s StdLogger) printf(level, format string, args ...any) {
	if s.L == nil {
		log.Printf(level+format, args...)
		return
	}
	s.L.Printf(level+format, args...)
}

// Infof 输出普通信息。
func (s StdLogger) Infof(format string, args ...any) { s.printf("[INFO] ", format, args...) }

// Warnf 输出警告信息。
func (s StdLogger) Warnf(format string, args ...any) { s.printf("[WARN] ", format, args...) }

// Errorf 输出错误信息。
func (s StdLogger) Errorf(format string, args ...any) { s.printf("[ERROR] ", format, args...) }

// defaultLogger 在未传入 Logger 时返回默认实现。
func defaultLogger(l Logger) Logger {
	if l != nil {
		return l
	}
	return StdLogger{}
}
