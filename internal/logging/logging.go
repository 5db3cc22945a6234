// Package logging builds the zap logger of rawsocket programs and adapts it
// to the rawsocket.Logger interface.
package logging

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Zereker/rawsocket"
	"github.com/Zereker/rawsocket/internal/config"
)

// Setup builds a zap.Logger from c and installs it as the global logger.
// The caller should defer logger.Sync().
func Setup(c config.LogConfig) (*zap.Logger, error) {
	name := strings.ToLower(strings.TrimSpace(c.Level))
	if name == "warning" {
		name = "warn"
	}
	level, err := zapcore.ParseLevel(name)
	if err != nil {
		return nil, errors.Wrap(err, "log level")
	}

	var encoder zapcore.Encoder
	if strings.ToLower(c.Format) == "json" {
		encoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	} else {
		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	var cores []zapcore.Core
	for _, out := range c.Outputs {
		ws, err := writerFor(out, c.Rotation)
		if err != nil {
			return nil, err
		}
		cores = append(cores, zapcore.NewCore(encoder, ws, level))
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel))
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func writerFor(out string, rotation config.RotationConfig) (zapcore.WriteSyncer, error) {
	switch strings.ToLower(out) {
	case "stdout":
		return zapcore.AddSync(os.Stdout), nil
	case "stderr":
		return zapcore.AddSync(os.Stderr), nil
	}

	if dir := filepath.Dir(out); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "log directory %s", dir)
		}
	}

	if rotation.Enable {
		return zapcore.AddSync(&lumberjack.Logger{
			Filename:   out,
			MaxSize:    max(rotation.MaxSizeMB, 10),
			MaxBackups: max(rotation.MaxBackups, 1),
			MaxAge:     max(rotation.MaxAgeDays, 7),
			Compress:   rotation.Compress,
		}), nil
	}

	f, err := os.OpenFile(out, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "open log file %s", out)
	}
	return zapcore.AddSync(f), nil
}

// Adapter lets a zap logger serve as a rawsocket.Logger.
type Adapter struct {
	s *zap.SugaredLogger
}

var _ rawsocket.Logger = (*Adapter)(nil)

// NewAdapter wraps l.
func NewAdapter(l *zap.Logger) *Adapter {
	return &Adapter{s: l.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

func (a *Adapter) Debug(msg string, args ...any) { a.s.Debugw(msg, args...) }
func (a *Adapter) Info(msg string, args ...any)  { a.s.Infow(msg, args...) }
func (a *Adapter) Warn(msg string, args ...any)  { a.s.Warnw(msg, args...) }
func (a *Adapter) Error(msg string, args ...any) { a.s.Errorw(msg, args...) }
