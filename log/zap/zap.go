// Package zap adapts a *zap.Logger to adsync.Logger.
package zap

import (
	"sort"

	"go.uber.org/zap"

	"github.com/unkn0wn-root/adsync"
)

var _ adsync.Logger = Logger{}

type Logger struct{ L *zap.Logger }

// New wraps l under the "adsync" name. A nil l logs nothing.
func New(l *zap.Logger) Logger {
	if l == nil {
		l = zap.NewNop()
	}
	return Logger{L: l.Named("adsync")}
}

func (z Logger) Debug(msg string, f adsync.Fields) { z.L.Debug(msg, fields(f)...) }
func (z Logger) Info(msg string, f adsync.Fields)  { z.L.Info(msg, fields(f)...) }
func (z Logger) Warn(msg string, f adsync.Fields)  { z.L.Warn(msg, fields(f)...) }
func (z Logger) Error(msg string, f adsync.Fields) { z.L.Error(msg, fields(f)...) }

// fields sorts by key so encoded lines are stable.
func fields(f adsync.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]zap.Field, 0, len(f))
	for _, k := range keys {
		if err, ok := f[k].(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, f[k]))
	}
	return out
}
