package sse

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/unkn0wn-root/adsync"
)

type SuperviseOptions struct {
	InitialInterval time.Duration // 0 => 500ms
	MaxInterval     time.Duration // 0 => 30s
	Logger          adsync.Logger // nil => NopLogger
}

// Supervise redials for r whenever it reports ConnReconnecting, backing off
// exponentially between attempts, and attaches each new connection. The
// backoff resets once a connection opens. It returns nil when r closes and
// ctx.Err() when ctx ends.
func Supervise(ctx context.Context, r *adsync.Reconciler, d adsync.PushDialer, routingKey string, opts SuperviseOptions) error {
	log := opts.Logger
	if log == nil {
		log = adsync.NopLogger{}
	}
	b := backoff.NewExponentialBackOff()
	if opts.InitialInterval > 0 {
		b.InitialInterval = opts.InitialInterval
	}
	if opts.MaxInterval > 0 {
		b.MaxInterval = opts.MaxInterval
	}
	b.Reset()

	changed, stop := r.Watch()
	defer stop()

	for {
		switch r.State() {
		case adsync.ConnClosed:
			return nil
		case adsync.ConnOpen:
			b.Reset()
		case adsync.ConnReconnecting:
			wait := b.NextBackOff()
			if wait == backoff.Stop {
				return errors.New("sse: redial attempts exhausted")
			}
			log.Info("push stream redial scheduled", adsync.Fields{"routing_key": routingKey, "in": wait.String()})
			if err := sleep(ctx, wait); err != nil {
				return err
			}
			if r.State() != adsync.ConnReconnecting {
				continue
			}
			conn, err := d.Dial(ctx, routingKey)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Warn("push stream redial failed", adsync.Fields{"routing_key": routingKey, "err": err})
				continue
			}
			if err := r.Attach(conn); err != nil {
				_ = conn.Close()
				if errors.Is(err, adsync.ErrClosed) {
					return nil
				}
				log.Warn("push stream attach failed", adsync.Fields{"err": err})
			}
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
