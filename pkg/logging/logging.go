// Package logging configures the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Options 日志配置
type Options struct {
	Level  string // debug, info, warn, error
	Pretty bool   // 控制台友好输出
	Out    io.Writer
}

// Setup 配置全局 logger，返回解析后的级别
func Setup(opts Options) zerolog.Level {
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}

	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(opts.Level)))
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}

	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(level)

	if opts.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen})
	} else {
		log.Logger = zerolog.New(out).With().Timestamp().Logger()
	}
	return level
}

// Component 返回带 component 字段的子 logger
func Component(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}
