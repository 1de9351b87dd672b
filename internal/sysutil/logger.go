package sysutil

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log and LogSugar are the process-wide loggers. They discard everything
// until InitLogger runs.
var Log = zap.NewNop()
var LogSugar = Log.Sugar()

// SessionTimeLayout is the timestamp used in session log lines.
const SessionTimeLayout = "2006-01-02 15:04:05"

// LogOptions controls where InitLogger writes.
type LogOptions struct {
	// Verbose lowers the console level to Debug. The session file always
	// gets everything.
	Verbose bool
	// FilePath is the append-only session log. Empty disables it.
	FilePath string
}

// InitLogger tees a colour console core with a plain-text session file
// core whose lines read "<YYYY-MM-DD HH:MM:SS> - <message>".
func InitLogger(opts LogOptions) error {
	logger, err := NewLogger(opts)
	if err != nil {
		return err
	}
	Log = logger
	LogSugar = Log.Sugar()
	return nil
}

func NewLogger(opts LogOptions) (*zap.Logger, error) {
	config := zap.NewDevelopmentConfig()
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder

	consoleLevel := zap.InfoLevel
	if opts.Verbose {
		consoleLevel = zap.DebugLevel
	}
	cores := []zapcore.Core{
		zapcore.NewCore(
			zapcore.NewConsoleEncoder(config.EncoderConfig),
			zapcore.AddSync(os.Stdout),
			consoleLevel,
		),
	}

	if opts.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(opts.FilePath), 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(opts.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open session log: %w", err)
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(SessionEncoderConfig()),
			zapcore.AddSync(f),
			zap.DebugLevel,
		))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}

// SessionEncoderConfig renders only time and message, separated by " - ".
func SessionEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:          "ts",
		MessageKey:       "msg",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeTime:       zapcore.TimeEncoderOfLayout(SessionTimeLayout),
		EncodeDuration:   zapcore.StringDurationEncoder,
		ConsoleSeparator: " - ",
	}
}
