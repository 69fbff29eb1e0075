// Package zerolog adapts a zerolog.Logger to adsync.Logger.
package zerolog

import (
	"github.com/rs/zerolog"

	"github.com/unkn0wn-root/adsync"
)

var _ adsync.Logger = Logger{}

type Logger struct{ L zerolog.Logger }

// New tags every event with component=adsync.
func New(l zerolog.Logger) Logger {
	return Logger{L: l.With().Str("component", "adsync").Logger()}
}

func (z Logger) Debug(msg string, f adsync.Fields) { emit(z.L.Debug(), msg, f) }
func (z Logger) Info(msg string, f adsync.Fields)  { emit(z.L.Info(), msg, f) }
func (z Logger) Warn(msg string, f adsync.Fields)  { emit(z.L.Warn(), msg, f) }
func (z Logger) Error(msg string, f adsync.Fields) { emit(z.L.Error(), msg, f) }

// emit tolerates a nil event, which zerolog returns for disabled levels.
func emit(e *zerolog.Event, msg string, f adsync.Fields) {
	if e == nil {
		return
	}
	for k, v := range f {
		if err, ok := v.(error); ok {
			e = e.AnErr(k, err)
			continue
		}
		e = e.Interface(k, v)
	}
	e.Msg(msg)
}
