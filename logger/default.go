package logger

import "sync/atomic"

type loggerHolder struct {
	Logger
}

var defLogger atomic.Pointer[loggerHolder]

func init() {
	defLogger.Store(&loggerHolder{NewSlog(InfoLevel, false)})
}

// GetLogger returns the package default logger. Components created without a logger use it.
func GetLogger() Logger {
	return defLogger.Load().Logger
}

// SetLogger replaces the package default logger. A nil logger is ignored.
//
// Components keep the logger they were created with; SetLogger only affects the ones created
// afterwards and the package level functions.
func SetLogger(l Logger) {
	if l == nil {
		return
	}
	defLogger.Store(&loggerHolder{l})
}

// SetLevel changes the level of the default logger.
func SetLevel(level Level) { GetLogger().SetLevel(level) }

// With returns a child of the default logger.
func With(keyValues ...any) Logger { return GetLogger().With(keyValues...) }

func Debug(msg string, keysAndValues ...any) { GetLogger().Debug(msg, keysAndValues...) }
func Info(msg string, keysAndValues ...any)  { GetLogger().Info(msg, keysAndValues...) }
func Warn(msg string, keysAndValues ...any)  { GetLogger().Warn(msg, keysAndValues...) }
func Error(msg string, keysAndValues ...any) { GetLogger().Error(msg, keysAndValues...) }
func Fatal(msg string, keysAndValues ...any) { GetLogger().Fatal(msg, keysAndValues...) }
