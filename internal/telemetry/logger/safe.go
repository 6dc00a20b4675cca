package logger

import "context"

// Safe wraps l so that a panic raised by the underlying handler is
// recovered and dropped. Storage code logs through Safe so that a broken
// sink never aborts an operation. A nil l yields Nop().
func Safe(l Logger) Logger {
	if l == nil {
		return Nop()
	}
	if s, ok := l.(*safeLogger); ok {
		return s
	}
	return &safeLogger{next: l}
}

type safeLogger struct {
	next Logger
}

func (s *safeLogger) Debug(msg string, args ...any) {
	defer swallow()
	s.next.Debug(msg, args...)
}

func (s *safeLogger) Info(msg string, args ...any) {
	defer swallow()
	s.next.Info(msg, args...)
}

func (s *safeLogger) Warn(msg string, args ...any) {
	defer swallow()
	s.next.Warn(msg, args...)
}

func (s *safeLogger) Error(msg string, args ...any) {
	defer swallow()
	s.next.Error(msg, args...)
}

func (s *safeLogger) With(args ...any) (l Logger) {
	defer func() {
		if recover() != nil {
			l = s
		}
	}()
	return &safeLogger{next: s.next.With(args...)}
}

func (s *safeLogger) WithContext(ctx context.Context) (l Logger) {
	defer func() {
		if recover() != nil {
			l = s
		}
	}()
	return &safeLogger{next: s.next.WithContext(ctx)}
}

func swallow() {
	_ = recover()
}
