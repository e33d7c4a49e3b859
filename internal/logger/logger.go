// Package logger 提供统一的结构化日志接口，底层由 zerolog 实现。
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger 结构化日志接口，kv 为键值对交替出现
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Err(err error, msg string, kv ...any)
}

// Options 日志输出配置
type Options struct {
	Level   string   // debug / info / warn / error
	Writers []string // console / file
	File    string   // file writer 的落盘路径
}

// New 根据配置创建 Logger
func New(opts Options) Logger {
	var ws []io.Writer
	for _, w := range opts.Writers {
		switch w {
		case "console":
			ws = append(ws, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
		case "file":
			file := opts.File
			if file == "" {
				file = "pagemock.log"
			}
			ws = append(ws, &lumberjack.Logger{
				Filename:   file,
				MaxSize:    50,
				MaxBackups: 3,
				MaxAge:     7,
			})
		}
	}
	if len(ws) == 0 {
		ws = append(ws, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	lvl, err := zerolog.ParseLevel(opts.Level)
	if err != nil || opts.Level == "" {
		lvl = zerolog.InfoLevel
	}
	l := zerolog.New(zerolog.MultiLevelWriter(ws...)).Level(lvl).With().Timestamp().Logger()
	return &zlogger{l: l}
}

// NewNop 返回丢弃一切输出的 Logger
func NewNop() Logger {
	return &zlogger{l: zerolog.Nop()}
}

type zlogger struct {
	l zerolog.Logger
}

func (z *zlogger) Debug(msg string, kv ...any) { emit(z.l.Debug(), msg, kv) }
func (z *zlogger) Info(msg string, kv ...any)  { emit(z.l.Info(), msg, kv) }
func (z *zlogger) Warn(msg string, kv ...any)  { emit(z.l.Warn(), msg, kv) }

func (z *zlogger) Err(err error, msg string, kv ...any) {
	emit(z.l.Error().Err(err), msg, kv)
}

func emit(ev *zerolog.Event, msg string, kv []any) {
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			continue
		}
		ev = ev.Interface(k, kv[i+1])
	}
	ev.Msg(msg)
}
