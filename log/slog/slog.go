// Package slog adapts a *slog.Logger to adsync.Logger.
package slog

import (
	"context"
	stdslog "log/slog"
	"sort"

	"github.com/unkn0wn-root/adsync"
)

var _ adsync.Logger = Logger{}

type Logger struct{ L *stdslog.Logger }

// New groups every attribute under "adsync". A nil l uses slog.Default.
func New(l *stdslog.Logger) Logger {
	if l == nil {
		l = stdslog.Default()
	}
	return Logger{L: l}
}

func (s Logger) Debug(msg string, f adsync.Fields) { s.log(stdslog.LevelDebug, msg, f) }
func (s Logger) Info(msg string, f adsync.Fields)  { s.log(stdslog.LevelInfo, msg, f) }
func (s Logger) Warn(msg string, f adsync.Fields)  { s.log(stdslog.LevelWarn, msg, f) }
func (s Logger) Error(msg string, f adsync.Fields) { s.log(stdslog.LevelError, msg, f) }

func (s Logger) log(level stdslog.Level, msg string, f adsync.Fields) {
	ctx := context.Background()
	if !s.L.Enabled(ctx, level) {
		return
	}
	if len(f) == 0 {
		s.L.LogAttrs(ctx, level, msg)
		return
	}
	s.L.LogAttrs(ctx, level, msg, stdslog.Attr{Key: "adsync", Value: stdslog.GroupValue(attrs(f)...)})
}

func attrs(f adsync.Fields) []stdslog.Attr {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]stdslog.Attr, 0, len(f))
	for _, k := range keys {
		out = append(out, stdslog.Any(k, f[k]))
	}
	return out
}
