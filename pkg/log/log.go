// Copyright 2026 Arcentra Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package log provides the process-wide structured logger.
package log

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Conf defines logger configuration.
type Conf struct {
	Output     string `mapstructure:"output"` // stdout or file
	Path       string `mapstructure:"path"`
	Filename   string `mapstructure:"filename"`
	Level      string `mapstructure:"level"`
	KeepDays   int    `mapstructure:"keepDays"`
	RotateSize int    `mapstructure:"rotateSize"` // megabytes
	RotateNum  int    `mapstructure:"rotateNum"`
}

// SetDefaults fills zero-valued fields.
func (c *Conf) SetDefaults() {
	if c.Output == "" {
		c.Output = "stdout"
	}
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Filename == "" {
		c.Filename = "flowstore.log"
	}
	if c.RotateSize <= 0 {
		c.RotateSize = 100
	}
	if c.RotateNum <= 0 {
		c.RotateNum = 10
	}
	if c.KeepDays <= 0 {
		c.KeepDays = 7
	}
}

// Validate checks configuration consistency.
func (c *Conf) Validate() error {
	if c.Output == "file" && c.Path == "" {
		return fmt.Errorf("log path is required when output is 'file'")
	}
	return nil
}

var (
	mu     sync.RWMutex
	global = zap.NewNop().Sugar()
)

// Init builds the global logger from configuration.
func Init(conf *Conf) error {
	if conf == nil {
		conf = &Conf{}
	}
	conf.SetDefaults()
	if err := conf.Validate(); err != nil {
		return err
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var sink zapcore.WriteSyncer
	if conf.Output == "file" {
		if err := os.MkdirAll(conf.Path, 0o755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   filepath.Join(conf.Path, conf.Filename),
			MaxSize:    conf.RotateSize,
			MaxBackups: conf.RotateNum,
			MaxAge:     conf.KeepDays,
			Compress:   true,
		})
	} else {
		sink = zapcore.AddSync(os.Stdout)
	}

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), sink, parseLevel(conf.Level))
	l := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))

	mu.Lock()
	global = l.Sugar()
	mu.Unlock()
	return nil
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func logger() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

// Info logs a message at info level.
func Info(args ...any) { logger().Info(args...) }

// Infow logs a structured message at info level.
func Infow(msg string, keysAndValues ...any) { logger().Infow(msg, keysAndValues...) }

// Debug logs a message at debug level.
func Debug(args ...any) { logger().Debug(args...) }

// Debugw logs a structured message at debug level.
func Debugw(msg string, keysAndValues ...any) { logger().Debugw(msg, keysAndValues...) }

// Warn logs a message at warn level.
func Warn(args ...any) { logger().Warn(args...) }

// Warnw logs a structured message at warn level.
func Warnw(msg string, keysAndValues ...any) { logger().Warnw(msg, keysAndValues...) }

// Error logs a message at error level.
func Error(args ...any) { logger().Error(args...) }

// Errorw logs a structured message at error level.
func Errorw(msg string, keysAndValues ...any) { logger().Errorw(msg, keysAndValues...) }
