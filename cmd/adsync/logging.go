package main

import (
	"fmt"
	stdslog "log/slog"
	"os"

	"github.com/rs/zerolog"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"

	"github.com/unkn0wn-root/adsync"
	"github.com/unkn0wn-root/adsync/config"
	adlogrus "github.com/unkn0wn-root/adsync/log/logrus"
	adslog "github.com/unkn0wn-root/adsync/log/slog"
	adzap "github.com/unkn0wn-root/adsync/log/zap"
	adzerolog "github.com/unkn0wn-root/adsync/log/zerolog"
)

// newLogger builds the configured backend. All of them write to stderr so
// command output stays clean. The returned func flushes buffered lines.
func newLogger(cfg config.LogConfig) (adsync.Logger, func() error, error) {
	nop := func() error { return nil }
	json := cfg.Format == "json"

	switch cfg.Backend {
	case "zerolog":
		level, err := zerolog.ParseLevel(cfg.Level)
		if err != nil {
			return nil, nil, err
		}
		var l zerolog.Logger
		if json {
			l = zerolog.New(os.Stderr)
		} else {
			l = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
		}
		return adzerolog.New(l.Level(level).With().Timestamp().Logger()), nop, nil

	case "logrus":
		level, err := logrus.ParseLevel(cfg.Level)
		if err != nil {
			return nil, nil, err
		}
		l := logrus.New()
		l.SetOutput(os.Stderr)
		l.SetLevel(level)
		if json {
			l.SetFormatter(&logrus.JSONFormatter{})
		}
		return adlogrus.New(l), nop, nil

	case "slog":
		level, err := slogLevel(cfg.Level)
		if err != nil {
			return nil, nil, err
		}
		opts := &stdslog.HandlerOptions{Level: level}
		var h stdslog.Handler = stdslog.NewTextHandler(os.Stderr, opts)
		if json {
			h = stdslog.NewJSONHandler(os.Stderr, opts)
		}
		return adslog.New(stdslog.New(h)), nop, nil

	default:
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, nil, err
		}
		zc := zap.NewDevelopmentConfig()
		if json {
			zc = zap.NewProductionConfig()
		}
		zc.Level = level
		zc.OutputPaths = []string{"stderr"}
		l, err := zc.Build()
		if err != nil {
			return nil, nil, err
		}
		return adzap.New(l), l.Sync, nil
	}
}

func slogLevel(s string) (stdslog.Level, error) {
	var level stdslog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log level: %w", err)
	}
	return level, nil
}
