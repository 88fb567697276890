package piconuclear

import "log/slog"

type Logger interface {
	Info(message string, module string)
	Error(string)
}

// ConsoleLogger sends informational messages and errors to separate slog
// loggers, usually text on stdout and JSON on stderr.
type ConsoleLogger struct {
	InfoLog  *slog.Logger
	ErrorLog *slog.Logger
}

func (l ConsoleLogger) Info(message string, module string) {
	l.InfoLog.Info(message, "module", module)
}

func (l ConsoleLogger) Error(message string) {
	l.ErrorLog.Error(message)
}

type discardLogger struct{}

func (discardLogger) Info(string, string) {}
func (discardLogger) Error(string)        {}

var logger Logger = discardLogger{}

func SetLogger(l Logger) {
	if l == nil {
		l = discardLogger{}
	}
	logger = l
}

func GetLogger() Logger {
	return logger
}
