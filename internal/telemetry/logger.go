// Package telemetry wires structured, rotated logging the way the
// teacher pack's moto/utils/log.go does: zap cores over a lumberjack
// sink, keyed off the same level-name map, with the teacher's own
// pkg/logger.go Banner/Section presentation kept as thin helpers that
// print box-drawn headers straight to stdout with fmt (not through zap,
// and without ANSI escapes).
package telemetry

import (
	"fmt"
	"time"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wqdsca/policethief-go/internal/config"
)

var levelMap = map[string]zapcore.Level{
	"debug":  zapcore.DebugLevel,
	"info":   zapcore.InfoLevel,
	"warn":   zapcore.WarnLevel,
	"error":  zapcore.ErrorLevel,
	"dpanic": zapcore.DPanicLevel,
	"panic":  zapcore.PanicLevel,
	"fatal":  zapcore.FatalLevel,
}

// New builds a zap.Logger writing JSON lines to a lumberjack-rotated file
// at cfg.Log.Path, filtered to cfg.Log.Level and above, plus a console
// core at the same level so `serve` output is visible without tailing the
// log file — the teacher's pkg/logger.go always wrote to stdout, so this
// keeps that behavior alongside moto's file-rotation addition.
func New(cfg config.Log) (*zap.Logger, error) {
	level, ok := levelMap[cfg.Level]
	if !ok {
		level = zapcore.InfoLevel
	}
	enabler := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool { return lvl >= level })

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     timeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(stdoutSyncer{}), enabler),
	}
	if cfg.Path != "" {
		hook := &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    1024,
			MaxBackups: 5,
			MaxAge:     30,
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(hook), enabler))
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	return logger, nil
}

func timeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format("2006-01-02 15:04:05.000"))
}

// stdoutSyncer routes the console core through fmt.Print so it composes
// cleanly with Banner/Section below without fighting over os.Stdout's
// buffering.
type stdoutSyncer struct{}

func (stdoutSyncer) Write(p []byte) (int, error) { return fmt.Print(string(p)) }
func (stdoutSyncer) Sync() error                 { return nil }

// Banner prints the startup banner, adapted from the teacher's
// pkg/logger.go Banner but trimmed of SA-MP branding.
func Banner(title, version string) {
	border := "═══════════════════════════════════════════════════════════"
	fmt.Printf("\n╔%s╗\n", border)
	fmt.Printf("║ %-61s ║\n", fmt.Sprintf("%s — v%s", title, version))
	fmt.Printf("╚%s╝\n\n", border)
}

// Section prints a section header, adapted from the teacher's
// pkg/logger.go Section.
func Section(title string) {
	border := "───────────────────────────────────────────────────────────"
	fmt.Printf("\n%s\n%s\n%s\n", border, title, border)
}
