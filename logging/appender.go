package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap/zapcore"
)

// DefaultTimeFormatStr is the timestamp layout used by every text appender.
const DefaultTimeFormatStr = "2006-01-02T15:04:05.000Z0700"

// Appender is an output for log entries. A zapcore.Core satisfies it, which is how the
// observed test logger captures entries.
type Appender interface {
	Write(zapcore.Entry, []zapcore.Field) error
	Sync() error
}

// consoleAppender writes tab separated, human readable lines to a writer.
type consoleAppender struct {
	core zapcore.Core
}

func newConsoleEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout(DefaultTimeFormatStr),
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

// NewWriterAppender returns an appender that writes console formatted lines to w.
func NewWriterAppender(w io.Writer) Appender {
	encoder := zapcore.NewConsoleEncoder(newConsoleEncoderConfig())
	return &consoleAppender{core: zapcore.NewCore(encoder, zapcore.AddSync(w), zapcore.DebugLevel)}
}

// NewStdoutAppender returns an appender that writes console formatted lines to stdout.
func NewStdoutAppender() Appender {
	return NewWriterAppender(os.Stdout)
}

func (ca *consoleAppender) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	return ca.core.Write(entry, fields)
}

func (ca *consoleAppender) Sync() error {
	return ca.core.Sync()
}

// Core exposes the underlying zap core so the logger can be converted into a zap logger.
func (ca *consoleAppender) Core() zapcore.Core {
	return ca.core
}

// callerToString returns "<directory>/<file>:<line>", e.g: "pipeline/pipeline.go:121".
func callerToString(caller *zapcore.EntryCaller) string {
	dir := filepath.Base(filepath.Dir(caller.File))
	return fmt.Sprintf("%s/%s:%d", dir, filepath.Base(caller.File), caller.Line)
}
