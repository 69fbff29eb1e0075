package main

import (
	"context"
	"errors"
	"fmt"
	stdslog "log/slog"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/adsync"
	"github.com/unkn0wn-root/adsync/config"
	asynchook "github.com/unkn0wn-root/adsync/hooks/async"
	otelhooks "github.com/unkn0wn-root/adsync/hooks/otel"
	"github.com/unkn0wn-root/adsync/httptransport"
	"github.com/unkn0wn-root/adsync/orders"
	"github.com/unkn0wn-root/adsync/provider"
	"github.com/unkn0wn-root/adsync/provider/bigcache"
	"github.com/unkn0wn-root/adsync/provider/ristretto"
	"github.com/unkn0wn-root/adsync/sloghooks"
)

type rootFlags struct {
	baseURL  string
	email    string
	password string
	logLevel string
	json     bool
}

// overrides maps set flags onto their environment variables.
func (f *rootFlags) overrides() map[string]string {
	out := make(map[string]string)
	set := func(name, v string) {
		if v = strings.TrimSpace(v); v != "" {
			out[name] = v
		}
	}
	set("ADSYNC_BASE_URL", f.baseURL)
	set("ADSYNC_EMAIL", f.email)
	set("ADSYNC_PASSWORD", f.password)
	set("ADSYNC_LOG_LEVEL", f.logLevel)
	return out
}

type commandContext struct {
	flags *rootFlags

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(flags *rootFlags) *commandContext {
	return &commandContext{flags: flags}
}

func (c *commandContext) ensureConfig(ctx context.Context) (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, err := config.Load(ctx, c.flags.overrides())
		if err != nil {
			c.configErr = err
			return
		}
		c.config = &cfg
	})
	return c.config, c.configErr
}

// session is one connected client with everything it owns.
type session struct {
	cfg        *config.Config
	log        adsync.Logger
	client     *adsync.Client
	transport  *httptransport.Transport
	validators provider.Provider
	hooks      *asynchook.Hooks
	flushLog   func() error
}

// run opens a session, logs in when credentials are configured, and hands
// it to fn. The session is closed afterwards whatever fn returns.
func (c *commandContext) run(cmd *cobra.Command, fn func(ctx context.Context, s *session) error) (err error) {
	ctx := cmd.Context()
	cfg, err := c.ensureConfig(ctx)
	if err != nil {
		return err
	}
	s, err := openSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, s.close(context.WithoutCancel(ctx)))
	}()

	if cfg.Auth.Email != "" && cfg.Auth.Password != "" {
		creds := orders.Credentials{Email: cfg.Auth.Email, Password: cfg.Auth.Password}
		if _, err := s.client.Mutate(ctx, orders.Login(creds)); err != nil {
			return fmt.Errorf("login: %w", err)
		}
	}
	return fn(ctx, s)
}

func openSession(ctx context.Context, cfg *config.Config) (_ *session, err error) {
	s := &session{cfg: cfg}
	defer func() {
		if err != nil {
			_ = s.close(context.WithoutCancel(ctx))
		}
	}()

	s.log, s.flushLog, err = newLogger(cfg.Log)
	if err != nil {
		return nil, err
	}

	switch cfg.Cache.Validators {
	case "ristretto":
		p, perr := ristretto.New(ristretto.DefaultConfig())
		if perr != nil {
			return nil, fmt.Errorf("validator store: %w", perr)
		}
		s.validators = p
	case "bigcache":
		p, perr := bigcache.New(ctx, bigcache.Config{LifeWindow: cfg.Cache.ValidatorTTL})
		if perr != nil {
			return nil, fmt.Errorf("validator store: %w", perr)
		}
		s.validators = p
	}

	hc, err := httptransport.NewHTTPClient()
	if err != nil {
		return nil, err
	}
	hc.Timeout = cfg.Server.RequestTimeout
	s.transport, err = httptransport.New(httptransport.Options{
		BaseURL:      cfg.Server.BaseURL,
		HTTPClient:   hc,
		Validators:   s.validators,
		ValidatorTTL: cfg.Cache.ValidatorTTL,
		MaxBody:      cfg.Server.MaxBodyBytes,
		Logger:       s.log,
	})
	if err != nil {
		return nil, err
	}

	level, err := slogLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	hookLog := stdslog.New(stdslog.NewTextHandler(os.Stderr, &stdslog.HandlerOptions{Level: level}))
	s.hooks = asynchook.New(sloghooks.New(hookLog, sloghooks.Options{EvictedEvery: 10}), 1, 256)
	hooks, err := otelhooks.New(nil, s.hooks)
	if err != nil {
		return nil, err
	}

	s.client, err = adsync.New(adsync.Options{
		Transport:      s.transport,
		Logger:         s.log,
		Hooks:          hooks,
		IdleTimeout:    cfg.Cache.IdleTimeout,
		MaxIdleEntries: cfg.Cache.MaxIdleEntries,
	})
	if err != nil {
		return nil, err
	}
	if err := orders.Register(s.client); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *session) close(ctx context.Context) error {
	var errs []error
	if s.client != nil {
		errs = append(errs, s.client.Close(ctx))
	}
	if s.hooks != nil {
		s.hooks.Close()
	}
	if s.validators != nil {
		errs = append(errs, s.validators.Close(ctx))
	}
	if s.flushLog != nil {
		_ = s.flushLog()
	}
	return errors.Join(errs...)
}
